package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"agricam/internal/model"
	"agricam/internal/repository"
)

const profileColumns = `profile_id, operator_id, created_at, camera_config, distance_policy, notes, is_current`

// ProfileRepository implements repository.ProfileRepository for SQLite.
type ProfileRepository struct {
	db *DB
}

// NewProfileRepository creates a new SQLite profile repository.
func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// SaveProfile inserts a profile. A profile saved with IsCurrent set becomes the
// only current profile in the same transaction.
func (r *ProfileRepository) SaveProfile(p *model.FocusProfile) error {
	cameraConfig, err := json.Marshal(p.CameraConfig)
	if err != nil {
		return fmt.Errorf("failed to encode camera config: %w", err)
	}
	distancePolicy, err := json.Marshal(p.DistancePolicy)
	if err != nil {
		return fmt.Errorf("failed to encode distance policy: %w", err)
	}

	return r.db.withTx(func(tx *sql.Tx) error {
		if p.IsCurrent {
			if _, err := tx.Exec(`UPDATE profiles SET is_current = 0 WHERE is_current = 1`); err != nil {
				return fmt.Errorf("failed to clear current profile: %w", err)
			}
		}

		_, err := tx.Exec(`
			INSERT INTO profiles (`+profileColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, p.ProfileID, p.OperatorID, model.FormatTimestamp(p.CreatedAt), string(cameraConfig),
			string(distancePolicy), p.Notes, boolToInt(p.IsCurrent))
		if err != nil {
			return fmt.Errorf("failed to insert profile: %w", err)
		}
		return nil
	})
}

// GetProfileByID retrieves a profile by its id. A missing profile is (nil, nil).
func (r *ProfileRepository) GetProfileByID(id string) (*model.FocusProfile, error) {
	row := r.db.Conn().QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE profile_id = ?`, id)

	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// GetCurrentProfile returns the active profile, or (nil, nil) when none is active.
func (r *ProfileRepository) GetCurrentProfile() (*model.FocusProfile, error) {
	row := r.db.Conn().QueryRow(`SELECT ` + profileColumns + ` FROM profiles WHERE is_current = 1 LIMIT 1`)

	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current profile: %w", err)
	}
	return p, nil
}

// ListProfiles returns profiles newest first. A non-positive limit means no limit.
func (r *ProfileRepository) ListProfiles(limit, offset int) ([]model.FocusProfile, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Conn().Query(`
		SELECT `+profileColumns+`
		FROM profiles
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	profiles := []model.FocusProfile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}

	return profiles, rows.Err()
}

// CountProfiles returns the number of stored profiles.
func (r *ProfileRepository) CountProfiles() (int, error) {
	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM profiles`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return count, nil
}

// SetCurrentProfile makes id the only current profile.
func (r *ProfileRepository) SetCurrentProfile(id string) error {
	return r.db.withTx(func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM profiles WHERE profile_id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check profile: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", repository.ErrProfileNotFound, id)
		}

		if _, err := tx.Exec(`UPDATE profiles SET is_current = 0 WHERE is_current = 1`); err != nil {
			return fmt.Errorf("failed to clear current profile: %w", err)
		}
		if _, err := tx.Exec(`UPDATE profiles SET is_current = 1 WHERE profile_id = ?`, id); err != nil {
			return fmt.Errorf("failed to set current profile: %w", err)
		}
		return nil
	})
}

// DeleteProfile removes a profile that is not the current one.
func (r *ProfileRepository) DeleteProfile(id string) error {
	return r.db.withTx(func(tx *sql.Tx) error {
		var isCurrent int
		err := tx.QueryRow(`SELECT is_current FROM profiles WHERE profile_id = ?`, id).Scan(&isCurrent)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", repository.ErrProfileNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to check profile: %w", err)
		}
		if isCurrent == 1 {
			return repository.ErrProfileIsCurrent
		}

		if _, err := tx.Exec(`DELETE FROM profiles WHERE profile_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete profile: %w", err)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*model.FocusProfile, error) {
	var (
		p              model.FocusProfile
		createdAt      string
		cameraConfig   string
		distancePolicy string
		notes          sql.NullString
		isCurrent      int
	)

	if err := row.Scan(&p.ProfileID, &p.OperatorID, &createdAt, &cameraConfig, &distancePolicy, &notes, &isCurrent); err != nil {
		return nil, err
	}

	ts, err := model.ParseTimestamp(createdAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = ts

	if err := json.Unmarshal([]byte(cameraConfig), &p.CameraConfig); err != nil {
		return nil, fmt.Errorf("failed to decode camera config: %w", err)
	}
	p.DistancePolicy = model.DefaultDistancePolicy()
	if err := json.Unmarshal([]byte(distancePolicy), &p.DistancePolicy); err != nil {
		return nil, fmt.Errorf("failed to decode distance policy: %w", err)
	}
	if notes.Valid {
		n := notes.String
		p.Notes = &n
	}
	p.IsCurrent = isCurrent == 1

	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
