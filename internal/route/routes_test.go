package route

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agricam/internal/camera"
	"agricam/internal/config"
	"agricam/internal/dto"
	"agricam/internal/logger"
	"agricam/internal/model"
	"agricam/internal/repository/sqlite"
	"agricam/internal/service"
	"agricam/internal/service/capture"
	"agricam/internal/service/events"
	"agricam/internal/service/focus"
	"agricam/internal/service/storage"
	"agricam/internal/service/websocket"

	gorilla "github.com/gorilla/websocket"
)

type constScorer float64

func (s constScorer) Score(string) float64 { return float64(s) }

func setupRouter(t *testing.T, initialize bool) (http.Handler, *camera.Simulator) {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(dir, "profiles.db")
	cfg.ImageDirectory = filepath.Join(dir, "images")
	cfg.LogFile = filepath.Join(dir, "missing.log")

	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := logger.NewNop()
	profiles := sqlite.NewProfileRepository(db)
	store := storage.NewFileStore(cfg, log, sqlite.NewImageRepository(db))

	sim := camera.NewSimulator()
	controller := focus.NewController(sim, constScorer(150), log)
	if initialize && !controller.Initialize() {
		t.Fatal("Initialize failed")
	}
	t.Cleanup(controller.Close)

	loop := capture.NewLoop(profiles, controller, store, 8, log)
	t.Cleanup(func() { loop.Stop() })

	hub := websocket.NewHubService(log)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	manager := service.NewManager(profiles, controller, loop, store, hub, nil, log)
	return SetupRoutes(manager, cfg, log), sim
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

// ==================== Camera Routes ====================

func TestCameraRoutes_Unavailable(t *testing.T) {
	h, _ := setupRouter(t, false)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/camera/af/one-shot"},
		{http.MethodPost, "/camera/af/lock"},
		{http.MethodPost, "/camera/af/unlock"},
		{http.MethodPost, "/camera/capture"},
		{http.MethodPost, "/profile/create"},
	} {
		var body any
		if tc.path == "/profile/create" {
			body = dto.CreateProfileRequest{OperatorID: "op"}
		}
		if rr := do(t, h, tc.method, tc.path, body); rr.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: expected 503, got %d", tc.method, tc.path, rr.Code)
		}
	}

	rr := do(t, h, http.MethodGet, "/camera/af/state", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 for state, got %d", rr.Code)
	}
	if snap := decode[focus.Snapshot](t, rr); snap.AFMode != focus.ModeNotInitialized {
		t.Errorf("Expected not_initialized, got %+v", snap)
	}
}

func TestOneShotLockUnlock(t *testing.T) {
	h, _ := setupRouter(t, true)

	rr := do(t, h, http.MethodPost, "/camera/af/one-shot", map[string]float64{"timeout": 1})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	shot := decode[dto.OneShotResponse](t, rr)
	if !shot.Success || shot.LensPosition == nil || *shot.LensPosition != camera.DefaultLensPosition {
		t.Errorf("Unexpected one-shot response: %+v", shot)
	}

	rr = do(t, h, http.MethodPost, "/camera/af/lock", nil)
	lock := decode[dto.LockResponse](t, rr)
	if !lock.Success || lock.LockedPosition == nil || *lock.LockedPosition != camera.DefaultLensPosition {
		t.Errorf("Unexpected lock response: %+v", lock)
	}

	snap := decode[focus.Snapshot](t, do(t, h, http.MethodGet, "/camera/af/state", nil))
	if snap.AFMode != model.AFModeLocked {
		t.Errorf("Expected locked state, got %+v", snap)
	}

	unlock := decode[dto.MessageResponse](t, do(t, h, http.MethodPost, "/camera/af/unlock", nil))
	if !unlock.Success {
		t.Errorf("Unexpected unlock response: %+v", unlock)
	}
}

func TestOneShotValidation(t *testing.T) {
	h, _ := setupRouter(t, true)

	for _, timeout := range []float64{0, -1, 31} {
		rr := do(t, h, http.MethodPost, "/camera/af/one-shot", map[string]float64{"timeout": timeout})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("timeout %v: expected 400, got %d", timeout, rr.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/camera/af/one-shot", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", rr.Code)
	}
}

func TestCaptureRoute(t *testing.T) {
	h, _ := setupRouter(t, true)

	rr := do(t, h, http.MethodPost, "/camera/capture", dto.CaptureRequest{})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	res := decode[dto.CaptureResponse](t, rr)
	if !res.Success || res.ClarityScore != 150 || res.FilePath == "" {
		t.Errorf("Unexpected capture response: %+v", res)
	}

	rr = do(t, h, http.MethodPost, "/camera/capture", dto.CaptureRequest{FilePath: "../escape.jpg"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for traversal, got %d", rr.Code)
	}
}

func TestCameraStatus(t *testing.T) {
	h, _ := setupRouter(t, true)

	status := decode[dto.CameraStatusResponse](t, do(t, h, http.MethodGet, "/camera/status", nil))
	if !status.Initialized || status.CameraType != "simulator" || !status.Simulated {
		t.Errorf("Unexpected camera status: %+v", status)
	}
}

// ==================== Capture Loop Routes ====================

func TestCaptureLoopRoutes(t *testing.T) {
	h, _ := setupRouter(t, true)

	if rr := do(t, h, http.MethodPost, "/capture/stop", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 stopping an idle loop, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/capture/start", map[string]float64{"interval_sec": -1}); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for negative interval, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/capture/start", map[string]float64{"interval_sec": 0.001}); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an interval below the minimum, got %d", rr.Code)
	}

	rr := do(t, h, http.MethodPost, "/capture/start", map[string]float64{"interval_sec": 5})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	started := decode[dto.CaptureLoopResponse](t, rr)
	if !started.Status.IsRunning || started.Status.IntervalSec != 5 {
		t.Errorf("Unexpected start response: %+v", started)
	}

	if rr := do(t, h, http.MethodPost, "/capture/start", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 starting twice, got %d", rr.Code)
	}

	status := decode[capture.Status](t, do(t, h, http.MethodGet, "/capture/status", nil))
	if !status.IsRunning {
		t.Errorf("Expected running loop, got %+v", status)
	}

	if rr := do(t, h, http.MethodPost, "/capture/stop", nil); rr.Code != http.StatusOK {
		t.Errorf("Expected 200 on stop, got %d", rr.Code)
	}
}

func TestImageRoutes_Empty(t *testing.T) {
	h, _ := setupRouter(t, true)

	latest := decode[dto.LatestImageResponse](t, do(t, h, http.MethodGet, "/capture/latest", nil))
	if latest.Success || latest.Image != nil {
		t.Errorf("Expected no latest image, got %+v", latest)
	}

	images := decode[dto.ImagesResponse](t, do(t, h, http.MethodGet, "/capture/images?minutes=10", nil))
	if images.Count != 0 || images.Minutes != 10 || images.Images == nil {
		t.Errorf("Unexpected images response: %+v", images)
	}

	summary := decode[model.ImageSummary](t, do(t, h, http.MethodGet, "/capture/summary", nil))
	if summary.TotalCount != 0 {
		t.Errorf("Expected empty summary, got %+v", summary)
	}

	if rr := do(t, h, http.MethodGet, "/capture/image?path=../db", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for traversal, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/capture/image?path=nope.jpg", nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing image, got %d", rr.Code)
	}
}

// ==================== Profile Routes ====================

func TestProfileLifecycle(t *testing.T) {
	h, _ := setupRouter(t, true)

	if rr := do(t, h, http.MethodGet, "/profile/current", nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 with no current profile, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/profile/create", dto.CreateProfileRequest{}); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without operator_id, got %d", rr.Code)
	}

	rr := do(t, h, http.MethodPost, "/profile/create", dto.CreateProfileRequest{OperatorID: "alice"})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	first := decode[model.FocusProfile](t, rr)

	second := decode[model.FocusProfile](t, do(t, h, http.MethodPost, "/profile/create", dto.CreateProfileRequest{OperatorID: "bob"}))

	current := decode[model.FocusProfile](t, do(t, h, http.MethodGet, "/profile/current", nil))
	if current.ProfileID != second.ProfileID {
		t.Errorf("Expected current %s, got %s", second.ProfileID, current.ProfileID)
	}

	list := decode[service.ProfileList](t, do(t, h, http.MethodGet, "/profile/list?limit=1", nil))
	if list.Total != 2 || len(list.Profiles) != 1 {
		t.Errorf("Expected total 2 with one item, got total=%d len=%d", list.Total, len(list.Profiles))
	}

	if rr := do(t, h, http.MethodDelete, "/profile/"+second.ProfileID, nil); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 deleting current profile, got %d", rr.Code)
	}

	sel := decode[dto.SelectProfileResponse](t, do(t, h, http.MethodPost, "/profile/select/"+first.ProfileID, nil))
	if !sel.Success || sel.ProfileID != first.ProfileID {
		t.Errorf("Unexpected select response: %+v", sel)
	}

	if rr := do(t, h, http.MethodDelete, "/profile/"+second.ProfileID, nil); rr.Code != http.StatusOK {
		t.Errorf("Expected 200 deleting non-current profile, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/profile/"+second.ProfileID, nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/profile/select/missing", nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 selecting missing profile, got %d", rr.Code)
	}
}

// ==================== Health and Misc ====================

func TestHealthRoute(t *testing.T) {
	h, _ := setupRouter(t, true)

	rr := do(t, h, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	health := decode[service.HealthStatus](t, rr)
	if health.Status != "healthy" || health.CameraStatus != service.CameraReady {
		t.Errorf("Unexpected health: %+v", health)
	}
}

func TestLogsRouteMissingFile(t *testing.T) {
	h, _ := setupRouter(t, false)

	if rr := do(t, h, http.MethodGet, "/logs", nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing log file, got %d", rr.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := setupRouter(t, false)

	if rr := do(t, h, http.MethodGet, "/capture/start", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rr.Code)
	}
}

// ==================== Viewer Socket ====================

func TestViewerSocket_SendsLatestCapture(t *testing.T) {
	h, _ := setupRouter(t, true)
	srv := httptest.NewServer(h)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/view"

	empty, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	empty.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, msg, err := empty.ReadMessage(); err == nil {
		t.Errorf("Expected no greeting before any capture, got %s", msg)
	}
	empty.Close()

	if rr := do(t, h, http.MethodPost, "/capture/start", map[string]float64{"interval_sec": 60}); rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 on start, got %d", rr.Code)
	}
	var latest dto.LatestImageResponse
	for deadline := time.Now().Add(2 * time.Second); time.Now().Before(deadline); time.Sleep(20 * time.Millisecond) {
		if latest = decode[dto.LatestImageResponse](t, do(t, h, http.MethodGet, "/capture/latest", nil)); latest.Image != nil {
			break
		}
	}
	do(t, h, http.MethodPost, "/capture/stop", nil)
	if latest.Image == nil {
		t.Fatal("Expected a persisted capture")
	}

	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("Expected a latest event on connect: %v", err)
	}
	if ev.Type != events.TypeLatest || ev.ImageID != latest.Image.ImageID || ev.QualityScore != 150 {
		t.Errorf("Unexpected greeting: %+v", ev)
	}
}
