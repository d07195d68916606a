package dto

// OneShotRequest is the body of POST /camera/af/one-shot. Timeout is in seconds.
type OneShotRequest struct {
	Timeout *float64 `json:"timeout"`
}

type OneShotResponse struct {
	Success      bool     `json:"success"`
	Duration     float64  `json:"duration"`
	LensPosition *float64 `json:"lens_position"`
	Message      string   `json:"message"`
}

type LockResponse struct {
	Success        bool     `json:"success"`
	LockedPosition *float64 `json:"locked_position"`
	Message        string   `json:"message"`
}

// CaptureRequest is the body of POST /camera/capture. An empty FilePath lets
// the service pick one under the image directory.
type CaptureRequest struct {
	FilePath string `json:"file_path"`
}

type CaptureResponse struct {
	Success      bool    `json:"success"`
	FilePath     string  `json:"file_path"`
	ClarityScore float64 `json:"clarity_score"`
	Message      string  `json:"message"`
}

type CameraStatusResponse struct {
	Initialized bool   `json:"initialized"`
	CameraType  string `json:"camera_type"`
	Simulated   bool   `json:"simulated"`
	AFState     string `json:"af_state"`
}
