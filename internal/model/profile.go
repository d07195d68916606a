package model

import (
	"time"

	"github.com/google/uuid"
)

// Focus modes stored in CameraConfig.AFMode and copied into ImageRecord.FocusState.
const (
	AFModeAuto   = "auto"
	AFModeLocked = "locked"
)

// DefaultFocusDistanceCm is used when a profile is created without a distance.
const DefaultFocusDistanceCm = 45

// CameraConfig holds the focus settings captured in a profile.
type CameraConfig struct {
	AFMode          string   `json:"af_mode"`
	LensPosition    *float64 `json:"lens_position"`
	FocusDistanceCm *int     `json:"focus_distance_cm"`
}

// DistancePolicy maps the near/mid/far buckets to [min,max] ranges in cm.
type DistancePolicy struct {
	Near [2]int `json:"near"`
	Mid  [2]int `json:"mid"`
	Far  [2]int `json:"far"`
}

// DefaultDistancePolicy returns near=[40,52], mid=[52,85], far=[85,300].
func DefaultDistancePolicy() DistancePolicy {
	return DistancePolicy{
		Near: [2]int{40, 52},
		Mid:  [2]int{52, 85},
		Far:  [2]int{85, 300},
	}
}

// FocusProfile is a locked lens position plus the operator metadata around it.
type FocusProfile struct {
	ProfileID      string         `json:"profile_id"`
	OperatorID     string         `json:"operator_id"`
	CreatedAt      time.Time      `json:"created_at"`
	CameraConfig   CameraConfig   `json:"camera_config"`
	DistancePolicy DistancePolicy `json:"distance_policy"`
	Notes          *string        `json:"notes"`
	IsCurrent      bool           `json:"is_current"`
}

// NewFocusProfile builds a profile with a fresh id, the current UTC time and
// the default distance policy.
func NewFocusProfile(operatorID string, cfg CameraConfig, notes *string) *FocusProfile {
	return &FocusProfile{
		ProfileID:      uuid.NewString(),
		OperatorID:     operatorID,
		CreatedAt:      time.Now().UTC(),
		CameraConfig:   cfg,
		DistancePolicy: DefaultDistancePolicy(),
		Notes:          notes,
	}
}
