package focus

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"agricam/internal/camera"
	"agricam/internal/logger"
	"agricam/internal/model"
)

type stubScorer struct {
	score float64
	calls int
	mu    sync.Mutex
}

func (s *stubScorer) Score(path string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.score
}

func newTestController(t *testing.T, opts ...camera.SimulatorOption) (*Controller, *camera.Simulator, *stubScorer) {
	t.Helper()

	sim := camera.NewSimulator(opts...)
	scorer := &stubScorer{score: 142.5}
	c := NewController(sim, scorer, logger.NewNop())
	if !c.Initialize() {
		t.Fatal("Initialize failed")
	}
	t.Cleanup(c.Close)
	return c, sim, scorer
}

func TestController_NotInitialized(t *testing.T) {
	c := NewController(camera.NewSimulator(), nil, logger.NewNop())

	snap := c.State()
	if snap.AFMode != ModeNotInitialized || snap.AFState != ModeNotInitialized {
		t.Errorf("Expected not_initialized snapshot, got %+v", snap)
	}
	if snap.LensPosition != nil || snap.LockedPosition != nil {
		t.Errorf("Expected nil positions, got %+v", snap)
	}

	if res := c.TriggerOneShotAF(context.Background(), time.Second); res.Success {
		t.Error("Trigger should fail when uninitialized")
	}
	if c.LockFocus() != nil {
		t.Error("Lock should return nil when uninitialized")
	}
	if c.UnlockFocus() {
		t.Error("Unlock should fail when uninitialized")
	}
	if ok, score := c.CaptureAndScore(filepath.Join(t.TempDir(), "a.jpg")); ok || score != 0 {
		t.Errorf("Capture should fail when uninitialized, got %v/%v", ok, score)
	}
}

func TestController_InitializeIdempotent(t *testing.T) {
	c, _, _ := newTestController(t)

	if !c.Initialize() {
		t.Error("Second Initialize should succeed")
	}
	info := c.CameraInfo()
	if !info.Initialized || !info.Simulated || info.Name != "simulator" {
		t.Errorf("Unexpected camera info: %+v", info)
	}
}

func TestController_TriggerSuccess(t *testing.T) {
	c, _, _ := newTestController(t)

	res := c.TriggerOneShotAF(context.Background(), 3*time.Second)
	if !res.Success {
		t.Fatal("Expected autofocus success")
	}
	if res.LensPosition == nil || *res.LensPosition != camera.DefaultLensPosition {
		t.Errorf("Expected lens position %v, got %v", camera.DefaultLensPosition, res.LensPosition)
	}
	if res.Elapsed > time.Second {
		t.Errorf("Expected fast focus, took %v", res.Elapsed)
	}
}

func TestController_TriggerTimeout(t *testing.T) {
	c, _, _ := newTestController(t, camera.WithNeverFocus())

	timeout := 300 * time.Millisecond
	res := c.TriggerOneShotAF(context.Background(), timeout)

	if res.Success {
		t.Fatal("Expected timeout")
	}
	if res.LensPosition != nil {
		t.Errorf("Expected nil lens position on timeout, got %v", *res.LensPosition)
	}
	if res.Elapsed < timeout || res.Elapsed > timeout+200*time.Millisecond {
		t.Errorf("Expected elapsed close to %v, got %v", timeout, res.Elapsed)
	}
}

func TestController_TriggerWithFocusDelay(t *testing.T) {
	c, _, _ := newTestController(t, camera.WithFocusDelay(120*time.Millisecond))

	res := c.TriggerOneShotAF(context.Background(), time.Second)
	if !res.Success {
		t.Fatal("Expected success after delay")
	}
	if res.Elapsed < 120*time.Millisecond {
		t.Errorf("Expected elapsed >= delay, got %v", res.Elapsed)
	}
}

func TestController_TriggerCancelled(t *testing.T) {
	c, _, _ := newTestController(t, camera.WithNeverFocus())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res := c.TriggerOneShotAF(ctx, 5*time.Second)
	if res.Success || res.Elapsed > time.Second {
		t.Errorf("Expected early cancellation, got %+v", res)
	}
}

func TestController_LockUnlock(t *testing.T) {
	c, sim, _ := newTestController(t)

	pos := c.LockFocus()
	if pos == nil || *pos != camera.DefaultLensPosition {
		t.Fatalf("Expected locked at %v, got %v", camera.DefaultLensPosition, pos)
	}
	if !sim.Manual() {
		t.Error("Adapter should be in manual mode")
	}

	snap := c.State()
	if snap.AFMode != model.AFModeLocked {
		t.Errorf("Expected locked mode, got %s", snap.AFMode)
	}
	if snap.LockedPosition == nil || *snap.LockedPosition != *pos {
		t.Errorf("Locked snapshot must carry the position, got %+v", snap)
	}

	if !c.UnlockFocus() {
		t.Fatal("Unlock failed")
	}
	snap = c.State()
	if snap.AFMode != model.AFModeAuto || snap.LockedPosition != nil {
		t.Errorf("Expected auto with no locked position, got %+v", snap)
	}
	if sim.Manual() {
		t.Error("Adapter should be back in auto mode")
	}
}

func TestController_TriggerFromLockedReturnsToAuto(t *testing.T) {
	c, _, _ := newTestController(t)

	c.LockFocus()
	c.TriggerOneShotAF(context.Background(), time.Second)

	if snap := c.State(); snap.AFMode != model.AFModeAuto || snap.LockedPosition != nil {
		t.Errorf("Expected auto after trigger, got %+v", snap)
	}
}

func TestController_ApplyLensPosition(t *testing.T) {
	c, _, _ := newTestController(t)

	if !c.ApplyLensPosition(6.75) {
		t.Fatal("ApplyLensPosition failed")
	}
	snap := c.State()
	if snap.AFMode != model.AFModeLocked || snap.LockedPosition == nil || *snap.LockedPosition != 6.75 {
		t.Errorf("Expected locked at 6.75, got %+v", snap)
	}
	if snap.LensPosition == nil || *snap.LensPosition != 6.75 {
		t.Errorf("Expected lens at 6.75, got %v", snap.LensPosition)
	}
}

func TestController_StateDoesNotBlockDuringScan(t *testing.T) {
	c, _, _ := newTestController(t, camera.WithNeverFocus())

	done := make(chan struct{})
	go func() {
		c.TriggerOneShotAF(context.Background(), 500*time.Millisecond)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	c.State()
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("State blocked for %v during scan", elapsed)
	}
	<-done
}

func TestController_CaptureAndScore(t *testing.T) {
	c, sim, scorer := newTestController(t)
	path := filepath.Join(t.TempDir(), "img.jpg")

	ok, score := c.CaptureAndScore(path)
	if !ok || score != 142.5 {
		t.Errorf("Expected (true, 142.5), got (%v, %v)", ok, score)
	}

	sim.SetCaptureFailure(true)
	ok, score = c.CaptureAndScore(path)
	if ok || score != 0 {
		t.Errorf("Expected (false, 0) on failure, got (%v, %v)", ok, score)
	}
	if scorer.calls != 1 {
		t.Errorf("Scorer should not run after a failed capture, calls=%d", scorer.calls)
	}
}

func TestController_Close(t *testing.T) {
	c, _, _ := newTestController(t)
	c.LockFocus()
	c.Close()

	if c.IsInitialized() {
		t.Error("Expected uninitialized after Close")
	}
	if snap := c.State(); snap.AFMode != ModeNotInitialized {
		t.Errorf("Expected not_initialized after Close, got %+v", snap)
	}
}

// ==================== Cached State Tests ====================

type slowMetadata struct {
	*camera.Simulator
	delay time.Duration
}

func (s *slowMetadata) ReadMetadata() (camera.Metadata, error) {
	time.Sleep(s.delay)
	return s.Simulator.ReadMetadata()
}

func TestController_StateDoesNotReadMetadata(t *testing.T) {
	sim := camera.NewSimulator()
	c := NewController(&slowMetadata{Simulator: sim, delay: 800 * time.Millisecond}, &stubScorer{score: 90}, logger.NewNop())
	if !c.Initialize() {
		t.Fatal("Initialize failed")
	}
	t.Cleanup(c.Close)

	start := time.Now()
	snap := c.State()
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("State should return the cached snapshot, took %v", elapsed)
	}
	if snap.AFMode != model.AFModeAuto || snap.LensPosition == nil {
		t.Errorf("Expected the snapshot cached by Initialize, got %+v", snap)
	}

	stop := make(chan struct{})
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		for {
			select {
			case <-stop:
				return
			default:
				c.State()
			}
		}
	}()

	start = time.Now()
	ok, _ := c.CaptureAndScore(filepath.Join(t.TempDir(), "img.jpg"))
	elapsed := time.Since(start)
	close(stop)
	<-polled

	if !ok {
		t.Fatal("Capture failed")
	}
	if elapsed > 300*time.Millisecond {
		t.Errorf("Capture waited %v behind status reads", elapsed)
	}
}

func TestController_TimedOutScanUpdatesCache(t *testing.T) {
	c, _, _ := newTestController(t, camera.WithNeverFocus())

	c.ApplyLensPosition(3.0)
	if res := c.TriggerOneShotAF(context.Background(), 100*time.Millisecond); res.Success {
		t.Fatal("Scan should time out")
	}

	snap := c.State()
	if snap.AFMode != model.AFModeAuto || snap.LockedPosition != nil {
		t.Errorf("Expected auto after a timed-out scan, got %+v", snap)
	}
	if snap.AFState == string(camera.AFStateFocused) {
		t.Errorf("Timed-out scan must not report focused, got %s", snap.AFState)
	}
}
