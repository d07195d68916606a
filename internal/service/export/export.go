package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"agricam/internal/logger"
	"agricam/internal/model"
)

// maxListedMissing caps the missing-file list written to the report.
const maxListedMissing = 20

var csvHeader = []string{
	"image_id", "profile_id", "camera_id", "ts", "distance_bucket",
	"focus_state", "quality_score", "file_path", "file_exists",
}

// ImageSource is the part of the file store an export reads from.
type ImageSource interface {
	QueryImagesSince(minutes int) ([]model.ImageRecord, error)
}

type Options struct {
	Minutes   int
	OutputDir string
	// SampleEvery copies every Nth image into a samples directory; 0 disables sampling.
	SampleEvery int
}

type Result struct {
	Total        int
	AvgQuality   float64
	MinQuality   float64
	MaxQuality   float64
	MissingFiles []string
	CSVPath      string
	ReportPath   string
	SampleDir    string
	Sampled      int
}

type Exporter struct {
	source ImageSource
	logger *logger.Logger
	now    func() time.Time
}

func NewExporter(source ImageSource, log *logger.Logger) *Exporter {
	return &Exporter{source: source, logger: log, now: time.Now}
}

// Export writes summary_<ts>.csv and report_<ts>.txt for the window. An
// empty window writes nothing and returns a Result with Total 0.
func (e *Exporter) Export(opts Options) (*Result, error) {
	images, err := e.source.QueryImagesSince(opts.Minutes)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	if len(images) == 0 {
		e.logger.Warning("No images captured in the last %d minutes", opts.Minutes)
		return &Result{}, nil
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	stamp := e.now().Format("20060102_150405")
	res := &Result{Total: len(images)}

	exists := make([]bool, len(images))
	for i, img := range images {
		_, err := os.Stat(img.FilePath)
		exists[i] = err == nil
		if !exists[i] {
			res.MissingFiles = append(res.MissingFiles, img.FilePath)
		}
	}
	res.AvgQuality, res.MinQuality, res.MaxQuality = qualityStats(images)

	res.CSVPath = filepath.Join(opts.OutputDir, "summary_"+stamp+".csv")
	if err := writeCSV(res.CSVPath, images, exists); err != nil {
		return nil, err
	}

	if opts.SampleEvery > 0 {
		res.SampleDir = filepath.Join(opts.OutputDir, "samples_"+stamp)
		n, err := e.sample(res.SampleDir, images, exists, opts.SampleEvery)
		if err != nil {
			return nil, err
		}
		res.Sampled = n
	}

	res.ReportPath = filepath.Join(opts.OutputDir, "report_"+stamp+".txt")
	if err := e.writeReport(res.ReportPath, opts.Minutes, res); err != nil {
		return nil, err
	}

	e.logger.Info("Exported %d images to %s (%d missing)", res.Total, res.CSVPath, len(res.MissingFiles))
	return res, nil
}

// qualityStats ignores zero scores, which mark unscored images.
func qualityStats(images []model.ImageRecord) (avg, lo, hi float64) {
	var sum float64
	n := 0
	for _, img := range images {
		q := img.QualityScore
		if q <= 0 {
			continue
		}
		if n == 0 || q < lo {
			lo = q
		}
		if q > hi {
			hi = q
		}
		sum += q
		n++
	}
	if n == 0 {
		return 0, 0, 0
	}
	return sum / float64(n), lo, hi
}

func writeCSV(path string, images []model.ImageRecord, exists []bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for i, img := range images {
		row := []string{
			img.ImageID, img.ProfileID, img.CameraID, img.Ts, img.DistanceBucket,
			img.FocusState, strconv.FormatFloat(img.QualityScore, 'f', -1, 64),
			img.FilePath, strconv.FormatBool(exists[i]),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return f.Close()
}

func (e *Exporter) sample(dir string, images []model.ImageRecord, exists []bool, every int) (int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create sample directory: %w", err)
	}

	copied := 0
	for i, img := range images {
		if i%every != 0 || !exists[i] {
			continue
		}
		if err := copyFile(img.FilePath, filepath.Join(dir, filepath.Base(img.FilePath))); err != nil {
			e.logger.Warning("Failed to sample %s: %v", img.FilePath, err)
			continue
		}
		copied++
	}
	return copied, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (e *Exporter) writeReport(path string, minutes int, res *Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "Capture summary report\n")
	fmt.Fprintf(f, "Generated: %s\n", e.now().Format(time.RFC3339))
	fmt.Fprintf(f, "Window: last %d minutes\n\n", minutes)
	fmt.Fprintf(f, "Total images:    %d\n", res.Total)
	fmt.Fprintf(f, "Average quality: %.2f\n", res.AvgQuality)
	fmt.Fprintf(f, "Min quality:     %.2f\n", res.MinQuality)
	fmt.Fprintf(f, "Max quality:     %.2f\n", res.MaxQuality)
	fmt.Fprintf(f, "Missing files:   %d\n", len(res.MissingFiles))
	if res.SampleDir != "" {
		fmt.Fprintf(f, "Sampled images:  %d (%s)\n", res.Sampled, res.SampleDir)
	}

	if len(res.MissingFiles) > 0 {
		fmt.Fprintf(f, "\nMissing:\n")
		for i, p := range res.MissingFiles {
			if i == maxListedMissing {
				fmt.Fprintf(f, "  ... and %d more\n", len(res.MissingFiles)-maxListedMissing)
				break
			}
			fmt.Fprintf(f, "  - %s\n", p)
		}
	}
	return f.Close()
}
