package camera

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"agricam/internal/logger"
)

// commandTimeout bounds a single rpicam invocation, including a full AF scan.
const commandTimeout = 15 * time.Second

// runFunc executes a command and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Rpicam drives a Raspberry Pi camera through the rpicam-apps command line
// tools (libcamera-apps on older releases). Focus controls are kept in the
// adapter and passed to every invocation.
//
// Every Capture and ReadMetadata call spawns one process and takes one
// frame, so a call costs hundreds of milliseconds rather than the 50 ms
// focus poll interval. A triggered AF scan is therefore folded into a single
// --autofocus-on-capture invocation: the first ReadMetadata after
// SetAutoFocus(true) runs the whole scan and reports its final AfState, and
// later polls only re-read the settled lens.
type Rpicam struct {
	cameraID int
	width    int
	height   int
	logger   *logger.Logger

	binary      string
	initialized bool
	started     bool

	manual         bool
	lensPosition   *float64
	triggerPending bool

	lookPath func(string) (string, error)
	run      runFunc
}

// NewRpicam creates an uninitialized hardware adapter.
func NewRpicam(cameraID, width, height int, log *logger.Logger) *Rpicam {
	return &Rpicam{
		cameraID: cameraID,
		width:    width,
		height:   height,
		logger:   log,
		lookPath: exec.LookPath,
		run:      runCommand,
	}
}

// Initialize finds rpicam-still, falling back to libcamera-still.
func (c *Rpicam) Initialize() error {
	for _, name := range []string{"rpicam-still", "libcamera-still"} {
		if path, err := c.lookPath(name); err == nil {
			c.binary = path
			c.initialized = true
			c.logger.Info("Camera %d initialized with %s", c.cameraID, name)
			return nil
		}
	}
	return fmt.Errorf("%w: neither rpicam-still nor libcamera-still found (install rpicam-apps)", ErrNotInitialized)
}

// Start probes the camera and applies auto/macro/fast focus.
func (c *Rpicam) Start() error {
	if !c.initialized {
		if err := c.Initialize(); err != nil {
			return err
		}
	}

	c.manual = false
	c.lensPosition = nil
	c.triggerPending = false

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if _, err := c.run(ctx, c.binary, "--list-cameras"); err != nil {
		return fmt.Errorf("%w: failed to list cameras: %v", ErrNotInitialized, err)
	}

	c.started = true
	c.logger.Info("Camera %d started, focus mode auto/macro/fast", c.cameraID)
	return nil
}

func (c *Rpicam) Stop() {
	if c.started {
		c.started = false
		c.logger.Info("Camera %d stopped", c.cameraID)
	}
}

func (c *Rpicam) Close() {
	c.Stop()
	c.initialized = false
}

func (c *Rpicam) Capture(path string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}

	args := append(c.baseArgs(), "--output", path)
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if _, err := c.run(ctx, c.binary, args...); err != nil {
		return fmt.Errorf("failed to capture %s: %w", path, err)
	}
	c.triggerPending = false
	return nil
}

// ReadMetadata takes a throwaway frame and decodes the JSON metadata rpicam
// writes to stdout. A pending AF trigger is executed as part of this frame.
func (c *Rpicam) ReadMetadata() (Metadata, error) {
	if err := c.ready(); err != nil {
		return Metadata{}, err
	}

	args := append(c.baseArgs(), "--output", os.DevNull, "--metadata", "-", "--metadata-format", "json")
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	out, err := c.run(ctx, c.binary, args...)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	c.triggerPending = false

	md, err := parseMetadata(out)
	if err != nil {
		return Metadata{}, err
	}
	if c.manual && c.lensPosition != nil && md.LensPosition == nil {
		pos := *c.lensPosition
		md.LensPosition = &pos
	}
	return md, nil
}

func (c *Rpicam) SetAutoFocus(trigger bool) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.manual = false
	c.lensPosition = nil
	c.triggerPending = trigger
	return nil
}

func (c *Rpicam) SetManualFocus(lensPosition *float64) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.manual = true
	c.triggerPending = false
	if lensPosition != nil {
		pos := *lensPosition
		c.lensPosition = &pos
	}
	return nil
}

func (c *Rpicam) Name() string    { return fmt.Sprintf("rpicam:%d", c.cameraID) }
func (c *Rpicam) Simulated() bool { return false }

func (c *Rpicam) ready() error {
	if !c.initialized {
		return ErrNotInitialized
	}
	if !c.started {
		return ErrNotStarted
	}
	return nil
}

// baseArgs builds the common flags including the current focus controls.
func (c *Rpicam) baseArgs() []string {
	args := []string{
		"--camera", strconv.Itoa(c.cameraID),
		"--width", strconv.Itoa(c.width),
		"--height", strconv.Itoa(c.height),
		"--nopreview",
		"--immediate",
		"--timeout", "1",
	}

	if c.manual {
		args = append(args, "--autofocus-mode", "manual")
		if c.lensPosition != nil {
			args = append(args, "--lens-position", strconv.FormatFloat(*c.lensPosition, 'f', 3, 64))
		}
		return args
	}

	args = append(args,
		"--autofocus-mode", "auto",
		"--autofocus-range", "macro",
		"--autofocus-speed", "fast",
	)
	if c.triggerPending {
		args = append(args, "--autofocus-on-capture")
	}
	return args
}

// rpicamMetadata holds the libcamera control names we read back.
type rpicamMetadata struct {
	LensPosition *float64 `json:"LensPosition"`
	AfState      *int     `json:"AfState"`
	ExposureTime int      `json:"ExposureTime"`
	AnalogueGain float64  `json:"AnalogueGain"`
}

func parseMetadata(out []byte) (Metadata, error) {
	var raw rpicamMetadata
	if err := json.Unmarshal(bytes.TrimSpace(out), &raw); err != nil {
		return Metadata{}, fmt.Errorf("failed to decode metadata: %w", err)
	}

	md := Metadata{
		LensPosition: raw.LensPosition,
		AFState:      AFStateUnknown,
		ExposureTime: raw.ExposureTime,
		AnalogueGain: raw.AnalogueGain,
	}
	if raw.AfState != nil {
		md.AFState = afStateFromControl(*raw.AfState)
	}
	return md, nil
}

// afStateFromControl maps the libcamera AfState enum.
func afStateFromControl(v int) AFState {
	switch v {
	case 0:
		return AFStateIdle
	case 1:
		return AFStateScanning
	case 2:
		return AFStateFocused
	case 3:
		return AFStateFailed
	default:
		return AFStateUnknown
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w (stderr: %s)", filepath.Base(name), err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}
