package handler

import (
	"math"
	"net/http"
	"time"

	"agricam/internal/config"
	"agricam/internal/dto"
	"agricam/internal/logger"
	"agricam/internal/service"
)

// MaxAFTimeout is the longest one-shot scan an operator may request.
const MaxAFTimeout = 30.0

// OneShotAFHandler runs a blocking autofocus scan. A timeout is reported with
// success=false and status 200.
func OneShotAFHandler(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.OneShotRequest
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, logger, "Invalid request body: "+err.Error())
			return
		}

		timeout := cfg.AFTimeoutSec
		if req.Timeout != nil {
			timeout = *req.Timeout
		}
		if timeout <= 0 || timeout > MaxAFTimeout {
			writeBadRequest(w, logger, "timeout must be in (0, 30] seconds")
			return
		}

		controller := manager.GetController()
		if !controller.IsInitialized() {
			writeError(w, logger, service.ErrCameraUnavailable)
			return
		}

		res := controller.TriggerOneShotAF(r.Context(), time.Duration(timeout*float64(time.Second)))

		msg := "Autofocus completed"
		if !res.Success {
			msg = "Autofocus did not converge within the timeout"
		}
		writeJSON(w, logger, http.StatusOK, dto.OneShotResponse{
			Success:      res.Success,
			Duration:     math.Round(res.Elapsed.Seconds()*1000) / 1000,
			LensPosition: res.LensPosition,
			Message:      msg,
		})
	}
}

func LockFocusHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		controller := manager.GetController()
		if !controller.IsInitialized() {
			writeError(w, logger, service.ErrCameraUnavailable)
			return
		}

		pos := controller.LockFocus()
		resp := dto.LockResponse{Success: pos != nil, LockedPosition: pos, Message: "Focus locked"}
		if pos == nil {
			resp.Message = "Lens position unavailable, focus left in auto mode"
		}
		writeJSON(w, logger, http.StatusOK, resp)
	}
}

func UnlockFocusHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		controller := manager.GetController()
		if !controller.IsInitialized() {
			writeError(w, logger, service.ErrCameraUnavailable)
			return
		}

		ok := controller.UnlockFocus()
		msg := "Focus unlocked, auto mode restored"
		if !ok {
			msg = "Failed to unlock focus"
		}
		writeJSON(w, logger, http.StatusOK, dto.MessageResponse{Success: ok, Message: msg})
	}
}

// FocusStateHandler never blocks on a running scan or capture.
func FocusStateHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, manager.GetController().State())
	}
}

func CaptureImageHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.CaptureRequest
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, logger, "Invalid request body: "+err.Error())
			return
		}

		res, err := manager.CaptureOnce(req.FilePath)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, dto.CaptureResponse{
			Success:      true,
			FilePath:     res.FilePath,
			ClarityScore: res.QualityScore,
			Message:      "Image captured",
		})
	}
}

func CameraStatusHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		controller := manager.GetController()
		info := controller.CameraInfo()
		writeJSON(w, logger, http.StatusOK, dto.CameraStatusResponse{
			Initialized: info.Initialized,
			CameraType:  info.Name,
			Simulated:   info.Simulated,
			AFState:     controller.State().AFState,
		})
	}
}
