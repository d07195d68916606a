package camera

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultLensPosition is the lens position a fresh simulator reports.
const DefaultLensPosition = 5.0

// Simulator is an in-process camera used on development machines and in tests.
// It never sleeps: a focus delay is measured against the wall clock when
// metadata is read.
type Simulator struct {
	mu sync.Mutex

	initialized bool
	started     bool

	lensPosition float64
	afState      AFState
	manual       bool
	scanning     bool
	scanStarted  time.Time

	focusDelay  time.Duration
	neverFocus  bool
	failCapture bool

	width  int
	height int
	frames int
}

// SimulatorOption customizes a Simulator.
type SimulatorOption func(*Simulator)

func WithLensPosition(pos float64) SimulatorOption {
	return func(s *Simulator) { s.lensPosition = pos }
}

// WithFocusDelay makes a triggered scan report scanning until d has elapsed.
func WithFocusDelay(d time.Duration) SimulatorOption {
	return func(s *Simulator) { s.focusDelay = d }
}

// WithNeverFocus keeps every triggered scan in the scanning state.
func WithNeverFocus() SimulatorOption {
	return func(s *Simulator) { s.neverFocus = true }
}

func WithCaptureFailure() SimulatorOption {
	return func(s *Simulator) { s.failCapture = true }
}

func WithResolution(width, height int) SimulatorOption {
	return func(s *Simulator) {
		s.width = width
		s.height = height
	}
}

// NewSimulator returns a stopped simulator at DefaultLensPosition.
func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		lensPosition: DefaultLensPosition,
		afState:      AFStateIdle,
		width:        64,
		height:       48,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	return nil
}

func (s *Simulator) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		s.initialized = true
	}
	s.started = true
	s.manual = false
	s.afState = AFStateIdle
	return nil
}

func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.scanning = false
}

func (s *Simulator) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.scanning = false
	s.initialized = false
}

// Capture writes a small synthetic grayscale JPEG.
func (s *Simulator) Capture(path string) error {
	s.mu.Lock()
	if err := s.ready(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.failCapture {
		s.mu.Unlock()
		return errors.New("simulated capture failure")
	}
	s.frames++
	frame := s.frames
	width, height := s.width, s.height
	s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, syntheticFrame(width, height, frame), &jpeg.Options{Quality: 85}); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return nil
}

func (s *Simulator) ReadMetadata() (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return Metadata{}, err
	}

	if s.scanning && !s.neverFocus && time.Since(s.scanStarted) >= s.focusDelay {
		s.scanning = false
		s.afState = AFStateFocused
	}

	pos := s.lensPosition
	return Metadata{
		LensPosition: &pos,
		AFState:      s.afState,
		ExposureTime: 10000,
		AnalogueGain: 1.0,
	}, nil
}

func (s *Simulator) SetAutoFocus(trigger bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}

	s.manual = false
	if trigger {
		s.scanning = true
		s.scanStarted = time.Now()
		s.afState = AFStateScanning
	} else {
		s.scanning = false
		s.afState = AFStateIdle
	}
	return nil
}

func (s *Simulator) SetManualFocus(lensPosition *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return err
	}

	s.manual = true
	s.scanning = false
	if lensPosition != nil {
		s.lensPosition = *lensPosition
	}
	s.afState = AFStateFocused
	return nil
}

// SetLensPosition changes the position the next metadata read reports.
func (s *Simulator) SetLensPosition(pos float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lensPosition = pos
}

// SetAFState overrides the reported AF state and cancels any scan in progress.
func (s *Simulator) SetAFState(state AFState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanning = false
	s.afState = state
}

func (s *Simulator) SetNeverFocus(never bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.neverFocus = never
}

func (s *Simulator) SetCaptureFailure(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCapture = fail
}

// Manual reports whether the simulator is in manual focus mode.
func (s *Simulator) Manual() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manual
}

func (s *Simulator) Name() string    { return "simulator" }
func (s *Simulator) Simulated() bool { return true }

func (s *Simulator) ready() error {
	if !s.initialized {
		return ErrNotInitialized
	}
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// syntheticFrame draws a checkerboard with a per-frame offset so consecutive
// frames differ and have non-trivial edge energy.
func syntheticFrame(width, height, frame int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	const cell = 8
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(40)
			if ((x+frame)/cell+y/cell)%2 == 0 {
				v = 215
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}
