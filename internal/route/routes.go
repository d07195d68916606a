package route

import (
	"net/http"

	"agricam/internal/config"
	"agricam/internal/handler"
	"agricam/internal/logger"
	"agricam/internal/middleware"
	"agricam/internal/service"
)

// SetupRoutes registers the camera, capture, profile and health endpoints
// and wraps the mux with request logging.
func SetupRoutes(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()
	httpLog := logger.Named("http")

	// Autofocus and single captures
	mux.HandleFunc("POST /camera/af/one-shot", handler.OneShotAFHandler(manager, cfg, httpLog))
	mux.HandleFunc("POST /camera/af/lock", handler.LockFocusHandler(manager, httpLog))
	mux.HandleFunc("POST /camera/af/unlock", handler.UnlockFocusHandler(manager, httpLog))
	mux.HandleFunc("GET /camera/af/state", handler.FocusStateHandler(manager, httpLog))
	mux.HandleFunc("POST /camera/capture", handler.CaptureImageHandler(manager, httpLog))
	mux.HandleFunc("GET /camera/status", handler.CameraStatusHandler(manager, httpLog))

	// Capture loop and image index
	mux.HandleFunc("POST /capture/start", handler.StartCaptureHandler(manager, cfg, httpLog))
	mux.HandleFunc("POST /capture/stop", handler.StopCaptureHandler(manager, httpLog))
	mux.HandleFunc("GET /capture/status", handler.CaptureStatusHandler(manager, httpLog))
	mux.HandleFunc("GET /capture/summary", handler.CaptureSummaryHandler(manager, httpLog))
	mux.HandleFunc("GET /capture/latest", handler.LatestImageHandler(manager, httpLog))
	mux.HandleFunc("GET /capture/images", handler.RecentImagesHandler(manager, httpLog))
	mux.HandleFunc("GET /capture/image", handler.ViewImageHandler(manager, httpLog))

	// Focus profiles
	mux.HandleFunc("POST /profile/create", handler.CreateProfileHandler(manager, httpLog))
	mux.HandleFunc("GET /profile/current", handler.CurrentProfileHandler(manager, httpLog))
	mux.HandleFunc("GET /profile/list", handler.ListProfilesHandler(manager, httpLog))
	mux.HandleFunc("GET /profile/{id}", handler.GetProfileHandler(manager, httpLog))
	mux.HandleFunc("POST /profile/select/{id}", handler.SelectProfileHandler(manager, httpLog))
	mux.HandleFunc("DELETE /profile/{id}", handler.DeleteProfileHandler(manager, httpLog))

	mux.HandleFunc("GET /health", handler.HealthHandler(manager, httpLog))
	mux.HandleFunc("GET /logs", handler.ShowLogsHandler(cfg))
	mux.HandleFunc("GET /api/view", handler.ViewWebsocketHandler(manager, httpLog))

	return middleware.RequestLogger(httpLog, mux)
}
