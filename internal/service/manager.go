package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"agricam/internal/logger"
	"agricam/internal/model"
	"agricam/internal/repository"
	"agricam/internal/service/capture"
	"agricam/internal/service/events"
	"agricam/internal/service/focus"
	"agricam/internal/service/storage"
	"agricam/internal/service/websocket"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// ProfileFocusTimeout bounds the autofocus scan run while creating a profile.
const ProfileFocusTimeout = 3 * time.Second

var (
	ErrCameraUnavailable = errors.New("camera not initialized")
	ErrFocusFailed       = errors.New("autofocus failed")
	ErrCaptureFailed     = errors.New("capture failed")
	ErrInvalidPath       = errors.New("file path must be relative to the image directory")
	ErrLoopRunning       = errors.New("capture loop already running")
	ErrLoopNotRunning    = errors.New("capture loop not running")
	ErrIntervalTooShort  = errors.New("capture interval below minimum")
)

// Camera status values reported by Health.
const (
	CameraNotInitialized = "not_initialized"
	CameraReady          = "ready"
	CameraCapturing      = "capturing"
)

type ProfileList struct {
	Profiles         []model.FocusProfile `json:"profiles"`
	Total            int                  `json:"total"`
	CurrentProfileID *string              `json:"current_profile_id"`
}

type CaptureResult struct {
	FilePath     string  `json:"file_path"`
	QualityScore float64 `json:"clarity_score"`
}

type CurrentProfileInfo struct {
	ProfileID    string   `json:"profile_id"`
	OperatorID   string   `json:"operator_id"`
	AFMode       string   `json:"af_mode"`
	LensPosition *float64 `json:"lens_position"`
}

type HealthStatus struct {
	Status           string              `json:"status"`
	Timestamp        string              `json:"timestamp"`
	Version          string              `json:"version"`
	UptimeSeconds    float64             `json:"uptime_seconds"`
	CameraStatus     string              `json:"camera_status"`
	Camera           focus.CameraInfo    `json:"camera"`
	CaptureStatus    capture.Status      `json:"capture_status"`
	ProfileLoaded    bool                `json:"profile_loaded"`
	CurrentProfile   *CurrentProfileInfo `json:"current_profile"`
	QueueSizes       map[string]int      `json:"queue_sizes"`
	ImagesIndexed    int                 `json:"images_indexed"`
	ViewerCount      int                 `json:"viewer_count"`
	EventsDispatched uint64              `json:"events_dispatched"`
	EventsDropped    int64               `json:"events_dropped"`
}

// Manager ties the controller, loop and stores together for the HTTP layer.
type Manager struct {
	profiles         repository.ProfileRepository
	controller       *focus.Controller
	loop             *capture.Loop
	store            *storage.FileStore
	websocketService *websocket.HubService
	dispatcher       *events.Dispatcher
	logger           *logger.Logger

	// profileMu keeps the current-profile row and the pinned lens position in step.
	profileMu sync.Mutex
	startedAt time.Time
}

func NewManager(profiles repository.ProfileRepository, controller *focus.Controller, loop *capture.Loop,
	store *storage.FileStore, websocketService *websocket.HubService, dispatcher *events.Dispatcher, log *logger.Logger) *Manager {
	return &Manager{
		profiles:         profiles,
		controller:       controller,
		loop:             loop,
		store:            store,
		websocketService: websocketService,
		dispatcher:       dispatcher,
		logger:           log,
		startedAt:        time.Now(),
	}
}

func (m *Manager) GetController() *focus.Controller {
	return m.controller
}

func (m *Manager) GetLoop() *capture.Loop {
	return m.loop
}

func (m *Manager) GetStore() *storage.FileStore {
	return m.store
}

func (m *Manager) GetWebsocketService() *websocket.HubService {
	return m.websocketService
}

// CreateProfile focuses, locks and stores a new current profile. The scan
// runs for at most ProfileFocusTimeout; when the lock cannot read a position
// the position found by the scan is used.
func (m *Manager) CreateProfile(ctx context.Context, operatorID string, notes *string, focusDistanceCm *int) (*model.FocusProfile, error) {
	if !m.controller.IsInitialized() {
		return nil, ErrCameraUnavailable
	}

	m.profileMu.Lock()
	defer m.profileMu.Unlock()

	m.logger.Info("Creating focus profile for operator %s", operatorID)

	res := m.controller.TriggerOneShotAF(ctx, ProfileFocusTimeout)
	if !res.Success {
		return nil, fmt.Errorf("%w after %.2fs", ErrFocusFailed, res.Elapsed.Seconds())
	}

	lensPosition := m.controller.LockFocus()
	if lensPosition == nil {
		lensPosition = res.LensPosition
	}

	distance := model.DefaultFocusDistanceCm
	if focusDistanceCm != nil {
		distance = *focusDistanceCm
	}

	afMode := model.AFModeLocked
	if lensPosition == nil {
		afMode = model.AFModeAuto
	}

	p := model.NewFocusProfile(operatorID, model.CameraConfig{
		AFMode:          afMode,
		LensPosition:    lensPosition,
		FocusDistanceCm: &distance,
	}, notes)
	p.IsCurrent = true

	if err := m.profiles.SaveProfile(p); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}

	m.logger.Info("Profile %s created (af_mode=%s)", p.ProfileID, afMode)
	return p, nil
}

// GetProfile returns repository.ErrProfileNotFound for an unknown id.
func (m *Manager) GetProfile(id string) (*model.FocusProfile, error) {
	p, err := m.profiles.GetProfileByID(id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", repository.ErrProfileNotFound, id)
	}
	return p, nil
}

// GetCurrentProfile returns (nil, nil) when no profile is current.
func (m *Manager) GetCurrentProfile() (*model.FocusProfile, error) {
	return m.profiles.GetCurrentProfile()
}

func (m *Manager) ListProfiles(limit, offset int) (*ProfileList, error) {
	profiles, err := m.profiles.ListProfiles(limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := m.profiles.CountProfiles()
	if err != nil {
		return nil, err
	}
	current, err := m.profiles.GetCurrentProfile()
	if err != nil {
		return nil, err
	}

	list := &ProfileList{Profiles: profiles, Total: total}
	if current != nil {
		id := current.ProfileID
		list.CurrentProfileID = &id
	}
	return list, nil
}

// SelectProfile makes id current and, when the camera is up, pins the stored
// lens position. A failed pin is logged and does not undo the selection.
func (m *Manager) SelectProfile(id string) (*model.FocusProfile, error) {
	m.profileMu.Lock()
	defer m.profileMu.Unlock()

	if err := m.profiles.SetCurrentProfile(id); err != nil {
		return nil, err
	}
	p, err := m.profiles.GetProfileByID(id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", repository.ErrProfileNotFound, id)
	}

	if pos := p.CameraConfig.LensPosition; pos != nil && m.controller.IsInitialized() {
		if !m.controller.ApplyLensPosition(*pos) {
			m.logger.Warning("Profile %s selected but lens position %.3f could not be applied", id, *pos)
		}
	}

	m.logger.Info("Profile %s selected", id)
	return p, nil
}

func (m *Manager) DeleteProfile(id string) error {
	m.profileMu.Lock()
	defer m.profileMu.Unlock()

	if err := m.profiles.DeleteProfile(id); err != nil {
		return err
	}
	m.logger.Info("Profile %s deleted", id)
	return nil
}

// CaptureOnce takes a single scored image. An empty filePath uses the same
// naming as the capture loop; otherwise it is resolved under the image directory.
func (m *Manager) CaptureOnce(filePath string) (*CaptureResult, error) {
	if !m.controller.IsInitialized() {
		return nil, ErrCameraUnavailable
	}

	path, err := m.resolveCapturePath(filePath)
	if err != nil {
		return nil, err
	}

	ok, score := m.controller.CaptureAndScore(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCaptureFailed, path)
	}
	return &CaptureResult{FilePath: path, QualityScore: model.RoundScore(score)}, nil
}

func (m *Manager) resolveCapturePath(filePath string) (string, error) {
	if filePath == "" {
		now := time.Now().UTC()
		return m.store.ImagePath(now, model.NewImageID(now))
	}
	if !filepath.IsLocal(filePath) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, filePath)
	}
	return filepath.Join(m.store.BaseDir(), filePath), nil
}

// StartCapture starts the loop; a non-positive interval keeps the last one.
// Positive intervals shorter than capture.MinInterval are rejected.
func (m *Manager) StartCapture(intervalSec float64) (capture.Status, error) {
	if intervalSec > 0 && intervalSec < capture.MinInterval.Seconds() {
		return m.loop.Status(), fmt.Errorf("%w: %vs < %vs", ErrIntervalTooShort, intervalSec, capture.MinInterval.Seconds())
	}
	interval := time.Duration(intervalSec * float64(time.Second))
	if !m.loop.Start(interval) {
		return m.loop.Status(), ErrLoopRunning
	}
	return m.loop.Status(), nil
}

func (m *Manager) StopCapture() (capture.Status, error) {
	if !m.loop.Stop() {
		return m.loop.Status(), ErrLoopNotRunning
	}
	return m.loop.Status(), nil
}

// Health aggregates camera, loop and profile state. It never fails: a
// profile lookup error is logged and reported as no profile.
func (m *Manager) Health() HealthStatus {
	loopStatus := m.loop.Status()

	cameraStatus := CameraNotInitialized
	if m.controller.IsInitialized() {
		cameraStatus = CameraReady
		if loopStatus.IsRunning {
			cameraStatus = CameraCapturing
		}
	}

	h := HealthStatus{
		Status:        "healthy",
		Timestamp:     model.FormatTimestamp(time.Now()),
		Version:       Version,
		UptimeSeconds: model.RoundScore(time.Since(m.startedAt).Seconds()),
		CameraStatus:  cameraStatus,
		Camera:        m.controller.CameraInfo(),
		CaptureStatus: loopStatus,
		EventsDropped: m.loop.Dropped(),
		QueueSizes: map[string]int{
			"capture":          loopStatus.QueueSize,
			"capture_capacity": loopStatus.QueueCapacity,
		},
	}

	if m.websocketService != nil {
		h.ViewerCount = m.websocketService.GetClientCount()
	}
	if m.dispatcher != nil {
		h.EventsDispatched = m.dispatcher.Stats().Dispatched
	}

	if count, err := m.store.CountImages(); err != nil {
		m.logger.Warning("Health check could not count images: %v", err)
	} else {
		h.ImagesIndexed = count
	}

	current, err := m.profiles.GetCurrentProfile()
	if err != nil {
		m.logger.Warning("Health check could not read current profile: %v", err)
	}
	if current != nil {
		h.ProfileLoaded = true
		h.CurrentProfile = &CurrentProfileInfo{
			ProfileID:    current.ProfileID,
			OperatorID:   current.OperatorID,
			AFMode:       current.CameraConfig.AFMode,
			LensPosition: current.CameraConfig.LensPosition,
		}
	}
	return h
}
