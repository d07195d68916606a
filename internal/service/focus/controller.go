package focus

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"agricam/internal/camera"
	"agricam/internal/logger"
	"agricam/internal/model"
)

// PollInterval is how often metadata is read while a one-shot scan runs.
const PollInterval = 50 * time.Millisecond

// ModeNotInitialized is reported by State before Initialize succeeds.
const ModeNotInitialized = "not_initialized"

// Scorer turns a captured image into a sharpness score.
type Scorer interface {
	Score(path string) float64
}

// Result is the outcome of a one-shot autofocus scan.
type Result struct {
	Success      bool
	Elapsed      time.Duration
	LensPosition *float64
}

// Snapshot describes the focus state for status endpoints.
type Snapshot struct {
	AFMode         string   `json:"af_mode"`
	LensPosition   *float64 `json:"lens_position"`
	AFState        string   `json:"af_state"`
	LockedPosition *float64 `json:"locked_position"`
}

type CameraInfo struct {
	Initialized bool   `json:"initialized"`
	Name        string `json:"name"`
	Simulated   bool   `json:"simulated"`
}

// Controller owns the camera adapter and its focus state machine:
// uninitialized -> ready(auto) -> locked -> ready(auto).
// Every adapter call happens with mu held.
type Controller struct {
	mu      sync.Mutex
	adapter camera.Adapter
	scorer  Scorer
	logger  *logger.Logger

	initialized    atomic.Bool
	mode           string
	lockedPosition *float64

	lastMu sync.RWMutex
	last   Snapshot
}

// NewController wraps adapter. The controller starts uninitialized.
func NewController(adapter camera.Adapter, scorer Scorer, log *logger.Logger) *Controller {
	c := &Controller{
		adapter: adapter,
		scorer:  scorer,
		logger:  log,
		mode:    model.AFModeAuto,
	}
	c.last = notInitializedSnapshot()
	return c
}

// Initialize opens and starts the camera in auto mode. It is idempotent.
func (c *Controller) Initialize() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized.Load() {
		return true
	}

	if err := c.adapter.Initialize(); err != nil {
		c.logger.Error("Failed to initialize camera %s: %v", c.adapter.Name(), err)
		return false
	}
	if err := c.adapter.Start(); err != nil {
		c.logger.Error("Failed to start camera %s: %v", c.adapter.Name(), err)
		c.adapter.Close()
		return false
	}

	c.mode = model.AFModeAuto
	c.lockedPosition = nil
	c.initialized.Store(true)
	c.refreshLocked()

	c.logger.Info("Focus controller initialized with %s", c.adapter.Name())
	return true
}

// Close stops and releases the camera.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized.Load() {
		return
	}
	c.adapter.Stop()
	c.adapter.Close()
	c.initialized.Store(false)
	c.lockedPosition = nil
	c.mode = model.AFModeAuto
	c.setLast(notInitializedSnapshot())
	c.logger.Info("Focus controller closed")
}

func (c *Controller) IsInitialized() bool {
	return c.initialized.Load()
}

func (c *Controller) CameraInfo() CameraInfo {
	return CameraInfo{
		Initialized: c.initialized.Load(),
		Name:        c.adapter.Name(),
		Simulated:   c.adapter.Simulated(),
	}
}

// TriggerOneShotAF starts a scan and polls until the camera reports focused
// or timeout elapses. It blocks the caller and holds the adapter for the
// whole scan. Operator action only, never per capture.
func (c *Controller) TriggerOneShotAF(ctx context.Context, timeout time.Duration) Result {
	if !c.initialized.Load() {
		c.logger.Error("Autofocus requested but camera is not initialized")
		return Result{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	if err := c.adapter.SetAutoFocus(true); err != nil {
		c.logger.Error("Failed to trigger autofocus: %v", err)
		return Result{Elapsed: time.Since(start)}
	}
	c.mode = model.AFModeAuto
	c.lockedPosition = nil

	var seen *camera.Metadata
	defer func() { c.cacheScanLocked(seen) }()

	deadline := start.Add(timeout)
	for {
		md, err := c.adapter.ReadMetadata()
		if err != nil {
			c.logger.Warning("Failed to read metadata during autofocus: %v", err)
		} else {
			seen = &md
		}
		if seen != nil && seen.AFState == camera.AFStateFocused {
			elapsed := time.Since(start)
			c.logger.Info("Autofocus succeeded in %.3fs, lens position %s", elapsed.Seconds(), formatPosition(seen.LensPosition))
			return Result{Success: true, Elapsed: elapsed, LensPosition: seen.LensPosition}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		wait := PollInterval
		if remaining < wait {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			c.logger.Warning("Autofocus cancelled: %v", ctx.Err())
			return Result{Elapsed: time.Since(start)}
		case <-time.After(wait):
		}
	}

	c.logger.Warning("Autofocus timed out after %.1fs", timeout.Seconds())
	return Result{Elapsed: time.Since(start)}
}

// LockFocus pins the lens at its current position. It returns nil and stays
// in auto mode when the position cannot be read.
func (c *Controller) LockFocus() *float64 {
	if !c.initialized.Load() {
		c.logger.Error("Focus lock requested but camera is not initialized")
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	md, err := c.adapter.ReadMetadata()
	if err != nil {
		c.logger.Error("Failed to read lens position for lock: %v", err)
		return nil
	}
	if md.LensPosition == nil {
		c.logger.Warning("Lens position unavailable, focus stays in auto mode")
		return nil
	}

	if !c.pinLocked(*md.LensPosition) {
		return nil
	}
	pos := *md.LensPosition
	return &pos
}

// UnlockFocus restores auto/macro/fast and clears the locked position.
func (c *Controller) UnlockFocus() bool {
	if !c.initialized.Load() {
		c.logger.Error("Focus unlock requested but camera is not initialized")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.adapter.SetAutoFocus(false); err != nil {
		c.logger.Error("Failed to unlock focus: %v", err)
		return false
	}
	c.mode = model.AFModeAuto
	c.lockedPosition = nil
	c.refreshLocked()
	c.logger.Info("Focus unlocked, auto mode restored")
	return true
}

// ApplyLensPosition pins the lens at a stored position.
func (c *Controller) ApplyLensPosition(pos float64) bool {
	if !c.initialized.Load() {
		c.logger.Error("Lens position requested but camera is not initialized")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pinLocked(pos)
}

// State returns the cached focus snapshot. It never touches the adapter:
// the cache is refreshed by the operations that already hold it.
func (c *Controller) State() Snapshot {
	if !c.initialized.Load() {
		return notInitializedSnapshot()
	}
	return c.getLast()
}

// CaptureAndScore captures to path and scores the result. A failed capture
// scores 0 and is not scored.
func (c *Controller) CaptureAndScore(path string) (bool, float64) {
	if !c.initialized.Load() {
		c.logger.Error("Capture requested but camera is not initialized")
		return false, 0
	}

	c.mu.Lock()
	err := c.adapter.Capture(path)
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("Capture to %s failed: %v", path, err)
		return false, 0
	}

	if c.scorer == nil {
		return true, 0
	}
	return true, c.scorer.Score(path)
}

// pinLocked switches to manual at pos. Caller holds mu.
func (c *Controller) pinLocked(pos float64) bool {
	if err := c.adapter.SetManualFocus(&pos); err != nil {
		c.logger.Error("Failed to pin lens position %.3f: %v", pos, err)
		return false
	}

	locked := pos
	c.mode = model.AFModeLocked
	c.lockedPosition = &locked
	c.refreshLocked()
	c.logger.Info("Focus locked at lens position %.3f", pos)
	return true
}

// cacheScanLocked stores the last metadata a scan saw, or the new mode with
// an unknown AF state when no frame was read. Caller holds mu.
func (c *Controller) cacheScanLocked(md *camera.Metadata) {
	if md != nil {
		c.setLast(c.snapshotFrom(*md))
		return
	}
	c.cacheModeLocked()
}

// cacheModeLocked keeps the cached lens but updates mode and lock. Caller holds mu.
func (c *Controller) cacheModeLocked() {
	snap := c.getLast()
	snap.AFMode = c.mode
	snap.LockedPosition = copyPosition(c.lockedPosition)
	snap.AFState = string(camera.AFStateUnknown)
	c.setLast(snap)
}

// refreshLocked reads metadata into the cached snapshot. Caller holds mu.
func (c *Controller) refreshLocked() {
	md, err := c.adapter.ReadMetadata()
	if err != nil {
		c.logger.Debug("Failed to refresh focus state: %v", err)
		c.cacheModeLocked()
		return
	}
	c.setLast(c.snapshotFrom(md))
}

// snapshotFrom builds a snapshot from metadata and the controller state. Caller holds mu.
func (c *Controller) snapshotFrom(md camera.Metadata) Snapshot {
	lens := md.LensPosition
	if lens == nil {
		lens = c.lockedPosition
	}
	return Snapshot{
		AFMode:         c.mode,
		LensPosition:   copyPosition(lens),
		AFState:        string(md.AFState),
		LockedPosition: copyPosition(c.lockedPosition),
	}
}

func (c *Controller) setLast(s Snapshot) {
	c.lastMu.Lock()
	c.last = s
	c.lastMu.Unlock()
}

func (c *Controller) getLast() Snapshot {
	c.lastMu.RLock()
	defer c.lastMu.RUnlock()
	return c.last
}

func notInitializedSnapshot() Snapshot {
	return Snapshot{AFMode: ModeNotInitialized, AFState: ModeNotInitialized}
}

func copyPosition(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func formatPosition(p *float64) string {
	if p == nil {
		return "unknown"
	}
	return strconv.FormatFloat(*p, 'f', 3, 64)
}
