package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"agricam/internal/model"
)

const imageColumns = `image_id, profile_id, camera_id, ts, distance_bucket, focus_state, quality_score, file_path, metadata_path`

// ImageRepository implements repository.ImageRepository for SQLite.
type ImageRepository struct {
	db *DB
}

// NewImageRepository creates a new SQLite image repository.
func NewImageRepository(db *DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// Insert adds a new image record to the database.
func (r *ImageRepository) Insert(rec *model.ImageRecord) error {
	return r.db.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO images (`+imageColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, imageArgs(rec)...); err != nil {
			return fmt.Errorf("failed to insert image: %w", err)
		}
		return nil
	})
}

// BulkInsert adds records in a single transaction, skipping ids that are
// already indexed. It returns how many rows were actually inserted.
func (r *ImageRepository) BulkInsert(recs []model.ImageRecord) (int, error) {
	inserted := 0
	err := r.db.withTx(func(tx *sql.Tx) error {
		inserted = 0

		stmt, err := tx.Prepare(`
			INSERT OR IGNORE INTO images (` + imageColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for i := range recs {
			res, err := stmt.Exec(imageArgs(&recs[i])...)
			if err != nil {
				return fmt.Errorf("failed to insert image %s: %w", recs[i].ImageID, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += int(n)
			}
		}
		return nil
	})
	return inserted, err
}

// QuerySince returns every image captured at or after since, newest first.
func (r *ImageRepository) QuerySince(since time.Time) ([]model.ImageRecord, error) {
	rows, err := r.db.Conn().Query(`
		SELECT `+imageColumns+`
		FROM images
		WHERE ts >= ?
		ORDER BY ts DESC
	`, model.FormatTimestamp(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	images := []model.ImageRecord{}
	for rows.Next() {
		rec, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, *rec)
	}

	return images, rows.Err()
}

// GetLatest returns the most recent image, or (nil, nil) on an empty index.
func (r *ImageRepository) GetLatest() (*model.ImageRecord, error) {
	row := r.db.Conn().QueryRow(`SELECT ` + imageColumns + ` FROM images ORDER BY ts DESC LIMIT 1`)

	rec, err := scanImage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest image: %w", err)
	}
	return rec, nil
}

// Count returns the number of indexed images.
func (r *ImageRepository) Count() (int, error) {
	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM images`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count images: %w", err)
	}
	return count, nil
}

func imageArgs(rec *model.ImageRecord) []any {
	var metadataPath any
	if rec.MetadataPath != "" {
		metadataPath = rec.MetadataPath
	}
	return []any{
		rec.ImageID, rec.ProfileID, rec.CameraID, rec.Ts, rec.DistanceBucket,
		rec.FocusState, rec.QualityScore, rec.FilePath, metadataPath,
	}
}

func scanImage(row rowScanner) (*model.ImageRecord, error) {
	var (
		rec            model.ImageRecord
		profileID      sql.NullString
		distanceBucket sql.NullString
		focusState     sql.NullString
		qualityScore   sql.NullFloat64
		metadataPath   sql.NullString
	)

	if err := row.Scan(&rec.ImageID, &profileID, &rec.CameraID, &rec.Ts, &distanceBucket,
		&focusState, &qualityScore, &rec.FilePath, &metadataPath); err != nil {
		return nil, err
	}

	rec.ProfileID = nullOr(profileID, model.Unknown)
	rec.DistanceBucket = nullOr(distanceBucket, model.Unknown)
	rec.FocusState = nullOr(focusState, model.Unknown)
	rec.QualityScore = qualityScore.Float64
	rec.MetadataPath = metadataPath.String

	return &rec, nil
}

func nullOr(s sql.NullString, fallback string) string {
	if s.Valid {
		return s.String
	}
	return fallback
}
