package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agricam/internal/config"
	"agricam/internal/logger"
	"agricam/internal/model"
	"agricam/internal/repository"
)

const (
	// MaxSummaryImages caps the image list returned with a summary.
	MaxSummaryImages = 100
	// DefaultWindowMinutes is the query window when none is given.
	DefaultWindowMinutes = 30

	dateDirLayout = "2006-01-02"
	sideFileExt   = ".json"
)

// FileStore keeps images on disk under <base>/<YYYY-MM-DD>/ with a JSON
// side-file next to each image, and mirrors every record into the index.
type FileStore struct {
	baseDir string
	images  repository.ImageRepository
	logger  *logger.Logger
	now     func() time.Time
}

// NewFileStore creates a FileStore rooted at cfg.ImageDirectory.
func NewFileStore(cfg *config.Config, log *logger.Logger, images repository.ImageRepository) *FileStore {
	return &FileStore{
		baseDir: cfg.ImageDirectory,
		images:  images,
		logger:  log,
		now:     time.Now,
	}
}

func (s *FileStore) BaseDir() string {
	return s.baseDir
}

// ImageDir returns the directory for t's UTC date, creating it if needed.
func (s *FileStore) ImageDir(t time.Time) (string, error) {
	dir := filepath.Join(s.baseDir, t.UTC().Format(dateDirLayout))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}
	return dir, nil
}

// ImagePath returns <dir>/<HHMMSS>_<last 6 of id>_cam_a.jpg for a capture at t.
func (s *FileStore) ImagePath(t time.Time, imageID string) (string, error) {
	dir, err := s.ImageDir(t)
	if err != nil {
		return "", err
	}
	suffix := imageID
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	name := fmt.Sprintf("%s_%s_%s.jpg", t.UTC().Format("150405"), suffix, model.CameraID)
	return filepath.Join(dir, name), nil
}

// SideFilePath swaps the image extension for .json.
func SideFilePath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + sideFileExt
}

// SaveImageMetadata writes the side-file and then the index row. Either
// failure is reported as repository.ErrPersistence; the two writes are not
// atomic together.
func (s *FileStore) SaveImageMetadata(rec *model.ImageRecord) error {
	rec.MetadataPath = SideFilePath(rec.FilePath)

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to encode metadata: %v", repository.ErrPersistence, err)
	}
	if err := os.WriteFile(rec.MetadataPath, data, 0644); err != nil {
		return fmt.Errorf("%w: failed to write side-file: %v", repository.ErrPersistence, err)
	}

	if err := s.images.Insert(rec); err != nil {
		if errors.Is(err, repository.ErrPersistence) {
			return err
		}
		return fmt.Errorf("%w: %v", repository.ErrPersistence, err)
	}

	s.logger.Debug("Saved metadata for %s", rec.ImageID)
	return nil
}

// QueryImagesSince returns images from the last minutes, newest first.
func (s *FileStore) QueryImagesSince(minutes int) ([]model.ImageRecord, error) {
	if minutes <= 0 {
		minutes = DefaultWindowMinutes
	}
	since := s.now().Add(-time.Duration(minutes) * time.Minute)

	images, err := s.images.QuerySince(since)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	return images, nil
}

// GetLatestImage returns the newest image or nil when none exist.
func (s *FileStore) GetLatestImage() (*model.ImageRecord, error) {
	return s.images.GetLatest()
}

func (s *FileStore) CountImages() (int, error) {
	return s.images.Count()
}

// Summary computes quality statistics over the window. Zero scores are
// excluded from the quality figures but counted in the total.
func (s *FileStore) Summary(minutes int) (*model.ImageSummary, error) {
	images, err := s.QueryImagesSince(minutes)
	if err != nil {
		return nil, err
	}

	summary := &model.ImageSummary{
		TotalCount: len(images),
		Images:     []model.ImageRecord{},
	}
	if len(images) == 0 {
		return summary, nil
	}

	var (
		sum      float64
		scored   int
		minScore = math.Inf(1)
		maxScore = math.Inf(-1)
	)
	for _, img := range images {
		if _, err := os.Stat(img.FilePath); err != nil {
			summary.MissingFiles++
		}
		if img.QualityScore == 0 {
			continue
		}
		scored++
		sum += img.QualityScore
		minScore = math.Min(minScore, img.QualityScore)
		maxScore = math.Max(maxScore, img.QualityScore)
	}

	if scored > 0 {
		summary.AverageQuality = model.RoundScore(sum / float64(scored))
		summary.MinQuality = model.RoundScore(minScore)
		summary.MaxQuality = model.RoundScore(maxScore)
	}

	if len(images) > MaxSummaryImages {
		images = images[:MaxSummaryImages]
	}
	summary.Images = images
	return summary, nil
}

// ScanSideFiles walks the date directories and decodes every side-file.
// Unreadable side-files are logged and skipped.
func (s *FileStore) ScanSideFiles() ([]model.ImageRecord, error) {
	var records []model.ImageRecord

	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == s.baseDir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || filepath.Ext(path) != sideFileExt {
			return nil
		}

		rec, err := readSideFile(path)
		if err != nil {
			s.logger.Warning("Skipping side-file %s: %v", path, err)
			return nil
		}
		records = append(records, *rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan image directory: %w", err)
	}

	return records, nil
}

// Reindex inserts every side-file that has no index row and reports how many
// side-files were found and how many rows were added.
func (s *FileStore) Reindex() (scanned, inserted int, err error) {
	records, err := s.ScanSideFiles()
	if err != nil {
		return 0, 0, err
	}
	if len(records) == 0 {
		return 0, 0, nil
	}

	inserted, err = s.images.BulkInsert(records)
	if err != nil {
		return len(records), 0, fmt.Errorf("failed to index side-files: %w", err)
	}
	s.logger.Info("Reindexed %d of %d side-files", inserted, len(records))
	return len(records), inserted, nil
}

func readSideFile(path string) (*model.ImageRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rec model.ImageRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode: %w", err)
	}
	if rec.ImageID == "" || rec.FilePath == "" {
		return nil, fmt.Errorf("missing image_id or file_path")
	}

	ts, err := model.ParseTimestamp(rec.Ts)
	if err != nil {
		return nil, err
	}
	rec.Ts = model.FormatTimestamp(ts)

	if rec.CameraID == "" {
		rec.CameraID = model.CameraID
	}
	if rec.ProfileID == "" {
		rec.ProfileID = model.Unknown
	}
	if rec.DistanceBucket == "" {
		rec.DistanceBucket = model.Unknown
	}
	if rec.FocusState == "" {
		rec.FocusState = model.Unknown
	}
	rec.MetadataPath = path
	return &rec, nil
}
