package repository

import (
	"time"

	"agricam/internal/model"
)

// ProfileRepository defines the interface for focus profile operations.
type ProfileRepository interface {
	// Create operations
	SaveProfile(p *model.FocusProfile) error

	// Read operations
	GetProfileByID(id string) (*model.FocusProfile, error)
	GetCurrentProfile() (*model.FocusProfile, error)
	ListProfiles(limit, offset int) ([]model.FocusProfile, error)
	CountProfiles() (int, error)

	// Update operations
	SetCurrentProfile(id string) error

	// Delete operations
	DeleteProfile(id string) error
}

// ImageRepository defines the interface for image record operations.
type ImageRepository interface {
	// Create operations
	Insert(rec *model.ImageRecord) error
	BulkInsert(recs []model.ImageRecord) (int, error)

	// Read operations
	QuerySince(since time.Time) ([]model.ImageRecord, error)
	GetLatest() (*model.ImageRecord, error)
	Count() (int, error)
}
