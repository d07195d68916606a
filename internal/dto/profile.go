package dto

type CreateProfileRequest struct {
	OperatorID      string  `json:"operator_id"`
	Notes           *string `json:"notes"`
	FocusDistanceCm *int    `json:"focus_distance_cm"`
}

type SelectProfileResponse struct {
	Success   bool   `json:"success"`
	ProfileID string `json:"profile_id"`
	Message   string `json:"message"`
}
