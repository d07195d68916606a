package quality

import (
	"fmt"
	"os"
	"strings"

	"agricam/internal/logger"

	"gocv.io/x/gocv"
)

const (
	MethodLaplacian = "laplacian"
	MethodTenengrad = "tenengrad"
)

// Scorer computes a sharpness score for an image file. Higher is sharper;
// around 100 is acceptable for the Laplacian method.
type Scorer struct {
	method string
	logger *logger.Logger
}

// NewScorer creates a scorer. Unknown methods fall back to laplacian.
func NewScorer(method string, log *logger.Logger) *Scorer {
	m := strings.ToLower(method)
	if m != MethodLaplacian && m != MethodTenengrad {
		log.Warning("Unknown quality method %q, using %s", method, MethodLaplacian)
		m = MethodLaplacian
	}
	return &Scorer{method: m, logger: log}
}

func (s *Scorer) Method() string {
	return s.method
}

// Score reads path as grayscale and returns its sharpness. Unreadable or
// empty images score 0.
func (s *Scorer) Score(path string) float64 {
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		s.logger.Warning("Cannot score image %s: missing or empty", path)
		return 0
	}

	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	defer img.Close()
	if img.Empty() {
		s.logger.Warning("Cannot decode image %s", path)
		return 0
	}

	var (
		score float64
		err   error
	)
	switch s.method {
	case MethodTenengrad:
		score, err = tenengrad(img)
	default:
		score, err = laplacianVariance(img)
	}
	if err != nil {
		s.logger.Error("Failed to score image %s: %v", path, err)
		return 0
	}
	return score
}

// laplacianVariance is the variance of the 64-bit Laplacian.
func laplacianVariance(gray gocv.Mat) (float64, error) {
	lap := gocv.NewMat()
	defer lap.Close()
	if err := gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault); err != nil {
		return 0, fmt.Errorf("failed to compute laplacian: %w", err)
	}

	mean := gocv.NewMat()
	defer mean.Close()
	stdDev := gocv.NewMat()
	defer stdDev.Close()
	if err := gocv.MeanStdDev(lap, &mean, &stdDev); err != nil {
		return 0, fmt.Errorf("failed to compute std dev: %w", err)
	}

	sd := stdDev.GetDoubleAt(0, 0)
	return sd * sd, nil
}

// tenengrad is the sum of squared Sobel gradient magnitudes.
func tenengrad(gray gocv.Mat) (float64, error) {
	gx := gocv.NewMat()
	defer gx.Close()
	gy := gocv.NewMat()
	defer gy.Close()

	if err := gocv.Sobel(gray, &gx, gocv.MatTypeCV64F, 1, 0, 3, 1, 0, gocv.BorderDefault); err != nil {
		return 0, fmt.Errorf("failed to compute x gradient: %w", err)
	}
	if err := gocv.Sobel(gray, &gy, gocv.MatTypeCV64F, 0, 1, 3, 1, 0, gocv.BorderDefault); err != nil {
		return 0, fmt.Errorf("failed to compute y gradient: %w", err)
	}

	gx2 := gocv.NewMat()
	defer gx2.Close()
	gy2 := gocv.NewMat()
	defer gy2.Close()
	if err := gocv.Multiply(gx, gx, &gx2); err != nil {
		return 0, fmt.Errorf("failed to square x gradient: %w", err)
	}
	if err := gocv.Multiply(gy, gy, &gy2); err != nil {
		return 0, fmt.Errorf("failed to square y gradient: %w", err)
	}

	sum := gocv.NewMat()
	defer sum.Close()
	if err := gocv.Add(gx2, gy2, &sum); err != nil {
		return 0, fmt.Errorf("failed to sum gradients: %w", err)
	}

	return sum.Sum().Val1, nil
}
