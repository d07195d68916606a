package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// CameraID is the logical name of the single supported camera.
	CameraID = "cam_a"
	// Unknown fills profile id, focus state and distance bucket when nothing better is known.
	Unknown = "unknown"
	// TimestampLayout is fixed width so that string order in the index equals time order.
	TimestampLayout = "2006-01-02T15:04:05.000000Z"
)

// ImageRecord is the metadata persisted for every captured image.
type ImageRecord struct {
	ImageID        string  `json:"image_id"`
	ProfileID      string  `json:"profile_id"`
	CameraID       string  `json:"camera_id"`
	Ts             string  `json:"ts"`
	DistanceBucket string  `json:"distance_bucket"`
	FocusState     string  `json:"focus_state"`
	QualityScore   float64 `json:"quality_score"`
	FilePath       string  `json:"file_path"`
	MetadataPath   string  `json:"metadata_path,omitempty"`
}

// ImageSummary aggregates quality statistics over a window of images.
type ImageSummary struct {
	TotalCount     int           `json:"total_count"`
	AverageQuality float64       `json:"average_quality"`
	MinQuality     float64       `json:"min_quality"`
	MaxQuality     float64       `json:"max_quality"`
	MissingFiles   int           `json:"missing_files"`
	Images         []ImageRecord `json:"images"`
}

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts TimestampLayout and any RFC 3339 variant.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// NewImageID returns img_<YYYYMMDDTHHMMSS>_<6 hex> for t in UTC.
func NewImageID(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("img_%s_%s", t.UTC().Format("20060102T150405"), suffix)
}

// RoundScore rounds a quality score to two decimals and clamps it at zero.
func RoundScore(score float64) float64 {
	if score < 0 || math.IsNaN(score) {
		return 0
	}
	return math.Round(score*100) / 100
}
