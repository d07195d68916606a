package dto

import (
	"agricam/internal/model"
	"agricam/internal/service/capture"
)

// StartCaptureRequest is the body of POST /capture/start. A missing interval
// uses the configured default.
type StartCaptureRequest struct {
	IntervalSec *float64 `json:"interval_sec"`
}

type CaptureLoopResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Status  capture.Status `json:"status"`
}

type ImagesResponse struct {
	Images  []model.ImageRecord `json:"images"`
	Count   int                 `json:"count"`
	Minutes int                 `json:"minutes"`
}

type LatestImageResponse struct {
	Success bool               `json:"success"`
	Image   *model.ImageRecord `json:"image"`
	Message string             `json:"message"`
}
