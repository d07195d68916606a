package capture

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"agricam/internal/logger"
	"agricam/internal/model"
)

const (
	DefaultInterval  = 1500 * time.Millisecond
	DefaultQueueSize = 50

	// MinInterval is the shortest interval the operator surface accepts.
	MinInterval = 50 * time.Millisecond

	errorBackoff       = time.Second
	defaultStopTimeout = 5 * time.Second
)

// ProfileSource yields the profile that tags each capture.
type ProfileSource interface {
	GetCurrentProfile() (*model.FocusProfile, error)
}

// Camera captures and scores a single image.
type Camera interface {
	CaptureAndScore(path string) (bool, float64)
}

// Store places images on disk and persists their metadata.
type Store interface {
	ImagePath(t time.Time, imageID string) (string, error)
	SaveImageMetadata(rec *model.ImageRecord) error
}

// Item is handed to downstream consumers after every successful capture.
type Item struct {
	Path   string            `json:"path"`
	Record model.ImageRecord `json:"record"`
}

type Status struct {
	IsRunning       bool    `json:"is_running"`
	TotalCount      int64   `json:"total_count"`
	LastCaptureTime *string `json:"last_capture_time"`
	IntervalSec     float64 `json:"interval_sec"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
	ErrorCount      int64   `json:"errors"`
	QueueSize       int     `json:"queue_size"`
	QueueCapacity   int     `json:"queue_capacity"`
}

// Loop captures an image every interval on one background goroutine and
// offers each result to a bounded queue without blocking.
type Loop struct {
	profiles ProfileSource
	camera   Camera
	store    Store
	logger   *logger.Logger
	queue    chan Item

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	interval  time.Duration
	startedAt time.Time

	stopTimeout time.Duration

	totalCount  atomic.Int64
	errorCount  atomic.Int64
	dropCount   atomic.Int64
	lastCapture atomic.Pointer[string]
}

// NewLoop creates a stopped loop. A nil camera selects the simulated path,
// which writes empty placeholder files with a synthetic score.
func NewLoop(profiles ProfileSource, camera Camera, store Store, queueSize int, log *logger.Logger) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Loop{
		profiles: profiles,
		camera:   camera,
		store:    store,
		logger:   log,
		queue:    make(chan Item, queueSize),
		interval: DefaultInterval,

		stopTimeout: defaultStopTimeout,
	}
}

// Queue is the receive side of the downstream queue.
func (l *Loop) Queue() <-chan Item {
	return l.queue
}

// Start launches the loop. It returns false if the loop is already running
// or a worker abandoned by a timed-out Stop is still inside its tick.
// A non-positive interval keeps the previous one.
func (l *Loop) Start(interval time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		l.logger.Warning("Capture loop already running")
		return false
	}
	if l.doneCh != nil {
		select {
		case <-l.doneCh:
		default:
			l.logger.Warning("Previous capture worker has not exited yet")
			return false
		}
	}
	if interval > 0 {
		l.interval = interval
	}

	l.running = true
	l.startedAt = time.Now()
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})

	go l.run(l.interval, l.stopCh, l.doneCh)

	l.logger.Info("Capture loop started, interval %.2fs", l.interval.Seconds())
	return true
}

// Stop signals the loop and waits up to 5 seconds for the in-flight tick.
// The wait happens without mu so status reads stay responsive.
// It returns false if the loop was not running.
func (l *Loop) Stop() bool {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		l.logger.Warning("Capture loop not running")
		return false
	}
	l.running = false
	close(l.stopCh)
	done := l.doneCh
	timeout := l.stopTimeout
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		l.logger.Warning("Capture loop did not stop within %s", timeout)
	}

	l.logger.Info("Capture loop stopped, total %d images", l.totalCount.Load())
	return true
}

func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) Status() Status {
	l.mu.Lock()
	running := l.running
	interval := l.interval
	startedAt := l.startedAt
	l.mu.Unlock()

	var uptime float64
	if running {
		uptime = model.RoundScore(time.Since(startedAt).Seconds())
	}

	var last *string
	if p := l.lastCapture.Load(); p != nil {
		ts := *p
		last = &ts
	}

	return Status{
		IsRunning:       running,
		TotalCount:      l.totalCount.Load(),
		LastCaptureTime: last,
		IntervalSec:     interval.Seconds(),
		UptimeSeconds:   uptime,
		ErrorCount:      l.errorCount.Load(),
		QueueSize:       len(l.queue),
		QueueCapacity:   cap(l.queue),
	}
}

// Dropped reports how many items were discarded because the queue was full.
func (l *Loop) Dropped() int64 {
	return l.dropCount.Load()
}

func (l *Loop) run(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	l.logger.Debug("Capture goroutine started")

	for {
		start := time.Now()
		if err := l.safeTick(); err != nil {
			l.errorCount.Add(1)
			l.logger.Error("Capture tick failed: %v", err)
			if !sleep(stop, errorBackoff) {
				return
			}
			continue
		}

		if !sleep(stop, interval-time.Since(start)) {
			return
		}
	}
}

// sleep waits for d or until stop closes. It returns false when stopped.
func sleep(stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-stop:
			return false
		default:
			return true
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}

func (l *Loop) safeTick() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in capture tick: %v", r)
		}
	}()
	return l.tick()
}

func (l *Loop) tick() error {
	now := time.Now().UTC()
	imageID := model.NewImageID(now)

	path, err := l.store.ImagePath(now, imageID)
	if err != nil {
		return err
	}

	profileID, focusState := model.Unknown, model.Unknown
	if profile, err := l.profiles.GetCurrentProfile(); err != nil {
		l.logger.Warning("Failed to read current profile: %v", err)
	} else if profile != nil {
		profileID = profile.ProfileID
		if profile.CameraConfig.AFMode != "" {
			focusState = profile.CameraConfig.AFMode
		}
	}

	var (
		ok    bool
		score float64
	)
	if l.camera != nil {
		ok, score = l.camera.CaptureAndScore(path)
	} else {
		ok, score, err = simulatedCapture(path)
		if err != nil {
			return err
		}
		l.logger.Debug("Simulated capture %s", path)
	}
	if !ok {
		l.logger.Warning("Capture failed, skipping %s", path)
		return nil
	}

	rec := model.ImageRecord{
		ImageID:        imageID,
		ProfileID:      profileID,
		CameraID:       model.CameraID,
		Ts:             model.FormatTimestamp(now),
		DistanceBucket: model.Unknown,
		FocusState:     focusState,
		QualityScore:   model.RoundScore(score),
		FilePath:       path,
	}

	if err := l.store.SaveImageMetadata(&rec); err != nil {
		l.logger.Error("Failed to persist %s: %v", imageID, err)
	}

	l.totalCount.Add(1)
	l.lastCapture.Store(&rec.Ts)

	select {
	case l.queue <- Item{Path: path, Record: rec}:
	default:
		l.dropCount.Add(1)
		l.logger.Warning("Downstream queue full, dropping %s", imageID)
	}

	l.logger.Debug("Captured %s, quality %.1f", imageID, rec.QualityScore)
	return nil
}

// simulatedCapture writes an empty placeholder and a score in [80, 200).
func simulatedCapture(path string) (bool, float64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, 0, fmt.Errorf("failed to create image directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return false, 0, fmt.Errorf("failed to create placeholder: %w", err)
	}
	f.Close()
	return true, 80 + rand.Float64()*120, nil
}
