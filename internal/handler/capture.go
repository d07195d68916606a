package handler

import (
	"fmt"
	"net/http"

	"agricam/internal/config"
	"agricam/internal/dto"
	"agricam/internal/logger"
	"agricam/internal/service"
	"agricam/internal/service/capture"
	"agricam/internal/service/storage"
)

func StartCaptureHandler(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.StartCaptureRequest
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, logger, "Invalid request body: "+err.Error())
			return
		}

		interval := cfg.CaptureIntervalSec
		if req.IntervalSec != nil {
			interval = *req.IntervalSec
		}
		if interval <= 0 {
			writeBadRequest(w, logger, "interval_sec must be positive")
			return
		}
		if interval < capture.MinInterval.Seconds() {
			writeBadRequest(w, logger, fmt.Sprintf("interval_sec must be at least %v", capture.MinInterval.Seconds()))
			return
		}

		status, err := manager.StartCapture(interval)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, dto.CaptureLoopResponse{
			Success: true,
			Message: "Capture loop started",
			Status:  status,
		})
	}
}

func StopCaptureHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := manager.StopCapture()
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, dto.CaptureLoopResponse{
			Success: true,
			Message: "Capture loop stopped",
			Status:  status,
		})
	}
}

func CaptureStatusHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, manager.GetLoop().Status())
	}
}

// CaptureSummaryHandler reports quality statistics for ?minutes= (default 30).
func CaptureSummaryHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		minutes := atoiDefault(r.URL.Query().Get("minutes"), storage.DefaultWindowMinutes)

		summary, err := manager.GetStore().Summary(minutes)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, summary)
	}
}

func RecentImagesHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		minutes := atoiDefault(r.URL.Query().Get("minutes"), storage.DefaultWindowMinutes)

		images, err := manager.GetStore().QueryImagesSince(minutes)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, dto.ImagesResponse{
			Images:  images,
			Count:   len(images),
			Minutes: minutes,
		})
	}
}

func LatestImageHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := manager.GetStore().GetLatestImage()
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if rec == nil {
			writeJSON(w, logger, http.StatusOK, dto.LatestImageResponse{Message: "No images captured yet"})
			return
		}
		writeJSON(w, logger, http.StatusOK, dto.LatestImageResponse{
			Success: true,
			Image:   rec,
			Message: "Latest image " + rec.ImageID,
		})
	}
}
