package camera

import (
	"errors"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startedSimulator(t *testing.T, opts ...SimulatorOption) *Simulator {
	t.Helper()

	sim := NewSimulator(opts...)
	if err := sim.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := sim.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return sim
}

func TestSimulator_NotStarted(t *testing.T) {
	sim := NewSimulator()

	if _, err := sim.ReadMetadata(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}

	sim.Initialize()
	if err := sim.Capture(filepath.Join(t.TempDir(), "a.jpg")); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Expected ErrNotStarted, got %v", err)
	}
}

func TestSimulator_Metadata(t *testing.T) {
	sim := startedSimulator(t)

	md, err := sim.ReadMetadata()
	if err != nil {
		t.Fatalf("ReadMetadata failed: %v", err)
	}
	if md.LensPosition == nil || *md.LensPosition != DefaultLensPosition {
		t.Errorf("Expected lens position %v, got %v", DefaultLensPosition, md.LensPosition)
	}
	if md.ExposureTime != 10000 || md.AnalogueGain != 1.0 {
		t.Errorf("Unexpected exposure/gain: %+v", md)
	}
	if md.AFState != AFStateIdle {
		t.Errorf("Expected idle before trigger, got %s", md.AFState)
	}
}

func TestSimulator_TriggerFocuses(t *testing.T) {
	sim := startedSimulator(t)

	if err := sim.SetAutoFocus(true); err != nil {
		t.Fatalf("SetAutoFocus failed: %v", err)
	}
	md, _ := sim.ReadMetadata()
	if md.AFState != AFStateFocused {
		t.Errorf("Expected focused with zero delay, got %s", md.AFState)
	}
}

func TestSimulator_FocusDelay(t *testing.T) {
	sim := startedSimulator(t, WithFocusDelay(60*time.Millisecond))

	sim.SetAutoFocus(true)
	if md, _ := sim.ReadMetadata(); md.AFState != AFStateScanning {
		t.Errorf("Expected scanning before delay, got %s", md.AFState)
	}

	time.Sleep(80 * time.Millisecond)
	if md, _ := sim.ReadMetadata(); md.AFState != AFStateFocused {
		t.Errorf("Expected focused after delay, got %s", md.AFState)
	}
}

func TestSimulator_NeverFocus(t *testing.T) {
	sim := startedSimulator(t, WithNeverFocus())

	sim.SetAutoFocus(true)
	time.Sleep(10 * time.Millisecond)
	if md, _ := sim.ReadMetadata(); md.AFState != AFStateScanning {
		t.Errorf("Expected scanning forever, got %s", md.AFState)
	}
}

func TestSimulator_ManualFocus(t *testing.T) {
	sim := startedSimulator(t)

	pos := 7.25
	if err := sim.SetManualFocus(&pos); err != nil {
		t.Fatalf("SetManualFocus failed: %v", err)
	}
	if !sim.Manual() {
		t.Error("Expected manual mode")
	}

	md, _ := sim.ReadMetadata()
	if md.LensPosition == nil || *md.LensPosition != pos {
		t.Errorf("Expected pinned lens position %v, got %v", pos, md.LensPosition)
	}

	sim.SetAutoFocus(false)
	if sim.Manual() {
		t.Error("Expected auto mode after SetAutoFocus")
	}
}

func TestSimulator_CaptureWritesJPEG(t *testing.T) {
	sim := startedSimulator(t)
	path := filepath.Join(t.TempDir(), "2025-01-01", "120000_abcdef_cam_a.jpg")

	if err := sim.Capture(path); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Captured file missing: %v", err)
	}
	defer f.Close()

	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("Captured file is not a JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("Unexpected image size %v", b)
	}
}

func TestSimulator_CaptureFailure(t *testing.T) {
	sim := startedSimulator(t, WithCaptureFailure())
	path := filepath.Join(t.TempDir(), "fail.jpg")

	if err := sim.Capture(path); err == nil {
		t.Fatal("Expected capture failure")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("No file should be written on failure")
	}

	sim.SetCaptureFailure(false)
	if err := sim.Capture(path); err != nil {
		t.Errorf("Capture should recover: %v", err)
	}
}
