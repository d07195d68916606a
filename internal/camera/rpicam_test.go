package camera

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"agricam/internal/logger"
)

type fakeRunner struct {
	calls  [][]string
	output []byte
	err    error
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.output, f.err
}

func (f *fakeRunner) lastArgs() string {
	if len(f.calls) == 0 {
		return ""
	}
	return strings.Join(f.calls[len(f.calls)-1], " ")
}

func newTestRpicam(t *testing.T, runner *fakeRunner, found ...string) *Rpicam {
	t.Helper()

	c := NewRpicam(0, 1920, 1080, logger.NewNop())
	c.run = runner.run
	c.lookPath = func(name string) (string, error) {
		for _, f := range found {
			if f == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("not found")
	}
	return c
}

func TestRpicam_InitializeFallsBack(t *testing.T) {
	c := newTestRpicam(t, &fakeRunner{}, "libcamera-still")

	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if c.binary != "/usr/bin/libcamera-still" {
		t.Errorf("Expected libcamera-still fallback, got %s", c.binary)
	}
}

func TestRpicam_InitializeMissingBinary(t *testing.T) {
	c := newTestRpicam(t, &fakeRunner{})

	if err := c.Initialize(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
}

func TestRpicam_FocusArgs(t *testing.T) {
	runner := &fakeRunner{}
	c := newTestRpicam(t, runner, "rpicam-still")
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	c.SetAutoFocus(true)
	c.Capture(filepath.Join(t.TempDir(), "a.jpg"))
	args := runner.lastArgs()
	for _, want := range []string{"--autofocus-mode auto", "--autofocus-range macro", "--autofocus-speed fast", "--autofocus-on-capture"} {
		if !strings.Contains(args, want) {
			t.Errorf("Expected %q in %s", want, args)
		}
	}

	c.Capture(filepath.Join(t.TempDir(), "b.jpg"))
	if strings.Contains(runner.lastArgs(), "--autofocus-on-capture") {
		t.Error("Trigger should only apply to one frame")
	}

	pos := 4.5
	c.SetManualFocus(&pos)
	c.Capture(filepath.Join(t.TempDir(), "c.jpg"))
	args = runner.lastArgs()
	if !strings.Contains(args, "--autofocus-mode manual") || !strings.Contains(args, "--lens-position 4.500") {
		t.Errorf("Expected manual pinned args, got %s", args)
	}
}

func TestRpicam_ReadMetadata(t *testing.T) {
	runner := &fakeRunner{}
	c := newTestRpicam(t, runner, "rpicam-still")
	c.Start()

	runner.output = []byte(`{"LensPosition": 3.2, "AfState": 2, "ExposureTime": 12000, "AnalogueGain": 1.5, "SensorTemperature": 40.0}`)
	md, err := c.ReadMetadata()
	if err != nil {
		t.Fatalf("ReadMetadata failed: %v", err)
	}
	if md.LensPosition == nil || *md.LensPosition != 3.2 {
		t.Errorf("Expected lens 3.2, got %v", md.LensPosition)
	}
	if md.AFState != AFStateFocused || md.ExposureTime != 12000 || md.AnalogueGain != 1.5 {
		t.Errorf("Unexpected metadata: %+v", md)
	}
	if !strings.Contains(runner.lastArgs(), "--metadata - --metadata-format json") {
		t.Errorf("Expected metadata flags, got %s", runner.lastArgs())
	}
}

func TestRpicam_TriggerRunsInFirstMetadataFrame(t *testing.T) {
	runner := &fakeRunner{output: []byte(`{"LensPosition": 6.1, "AfState": 2}`)}
	c := newTestRpicam(t, runner, "rpicam-still")
	c.Start()

	c.SetAutoFocus(true)
	md, err := c.ReadMetadata()
	if err != nil {
		t.Fatalf("ReadMetadata failed: %v", err)
	}
	if md.AFState != AFStateFocused {
		t.Errorf("Expected the scan result in the first frame, got %s", md.AFState)
	}
	if !strings.Contains(runner.lastArgs(), "--autofocus-on-capture") {
		t.Errorf("First frame after trigger should run the scan, got %s", runner.lastArgs())
	}

	c.ReadMetadata()
	if strings.Contains(runner.lastArgs(), "--autofocus-on-capture") {
		t.Error("Follow-up polls should not rescan")
	}
	if len(runner.calls) != 2 {
		t.Errorf("Expected one process per call, got %d", len(runner.calls))
	}
}

func TestRpicam_ReadMetadata_Invalid(t *testing.T) {
	runner := &fakeRunner{}
	c := newTestRpicam(t, runner, "rpicam-still")
	c.Start()

	runner.output = []byte("not json")
	if _, err := c.ReadMetadata(); err == nil {
		t.Error("Expected decode error")
	}
}

func TestRpicam_NotStarted(t *testing.T) {
	c := newTestRpicam(t, &fakeRunner{}, "rpicam-still")
	c.Initialize()

	if err := c.SetAutoFocus(false); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Expected ErrNotStarted, got %v", err)
	}
}

func TestAFStateFromControl(t *testing.T) {
	tests := []struct {
		in   int
		want AFState
	}{
		{0, AFStateIdle},
		{1, AFStateScanning},
		{2, AFStateFocused},
		{3, AFStateFailed},
		{9, AFStateUnknown},
	}
	for _, tt := range tests {
		if got := afStateFromControl(tt.in); got != tt.want {
			t.Errorf("afStateFromControl(%d) = %s, expected %s", tt.in, got, tt.want)
		}
	}
}
