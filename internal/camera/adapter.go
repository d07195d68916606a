package camera

import (
	"errors"

	"agricam/internal/config"
	"agricam/internal/logger"
)

// AFState is the autofocus state reported in camera metadata.
type AFState string

const (
	AFStateIdle     AFState = "idle"
	AFStateScanning AFState = "scanning"
	AFStateFocused  AFState = "focused"
	AFStateFailed   AFState = "failed"
	AFStateUnknown  AFState = "unknown"
)

var (
	// ErrNotInitialized is returned when the device was never opened or is gone.
	ErrNotInitialized = errors.New("camera not initialized")
	// ErrNotStarted is returned by operations that need a running camera.
	ErrNotStarted = errors.New("camera not started")
)

// Metadata is a snapshot of the camera controls after the last frame.
type Metadata struct {
	LensPosition *float64 `json:"lens_position"`
	AFState      AFState  `json:"af_state"`
	ExposureTime int      `json:"exposure_time"`
	AnalogueGain float64  `json:"analogue_gain"`
}

// Adapter is the driver-facing surface of a single autofocus camera.
// Implementations are not safe for concurrent use; callers serialize access.
type Adapter interface {
	Initialize() error
	Start() error
	Stop()
	Close()

	// Capture writes a still image to path, creating parent directories.
	Capture(path string) error
	ReadMetadata() (Metadata, error)

	// SetAutoFocus selects auto mode with macro range and fast speed.
	// trigger starts a one-shot scan.
	SetAutoFocus(trigger bool) error
	// SetManualFocus selects manual mode, pinned at lensPosition when it is not nil.
	SetManualFocus(lensPosition *float64) error

	Name() string
	Simulated() bool
}

// New picks the implementation once from configuration.
func New(cfg *config.Config, log *logger.Logger) Adapter {
	if cfg.UseMockCamera {
		log.Info("Using simulated camera")
		return NewSimulator(WithResolution(320, 240))
	}
	log.Info("Using rpicam camera %d at %dx%d", cfg.CameraID, cfg.CameraWidth, cfg.CameraHeight)
	return NewRpicam(cfg.CameraID, cfg.CameraWidth, cfg.CameraHeight, log)
}
