package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"agricam/internal/model"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "profiles", "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func newTestProfile(operator string, createdAt time.Time, current bool) *model.FocusProfile {
	lens := 5.0
	distance := 45
	p := model.NewFocusProfile(operator, model.CameraConfig{
		AFMode:          model.AFModeLocked,
		LensPosition:    &lens,
		FocusDistanceCm: &distance,
	}, nil)
	p.CreatedAt = createdAt.UTC()
	p.IsCurrent = current
	return p
}

func newTestImage(ts time.Time) *model.ImageRecord {
	return &model.ImageRecord{
		ImageID:        model.NewImageID(ts),
		ProfileID:      model.Unknown,
		CameraID:       model.CameraID,
		Ts:             model.FormatTimestamp(ts),
		DistanceBucket: model.Unknown,
		FocusState:     model.Unknown,
		QualityScore:   120.5,
		FilePath:       "/data/images/test.jpg",
		MetadataPath:   "/data/images/test.json",
	}
}
