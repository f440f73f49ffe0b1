// Package liveness rejects frames that look like a replayed photo or screen.
// The checks are heuristics, not a biometric anti-spoofing guarantee.
package liveness

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/your-org/attendance/internal/models"
)

type Mode string

const (
	// Landmark admits a frame when at least one face carries landmarks
	// inside its box.
	Landmark Mode = "landmark"
	// Variance rejects flat frames whose grey-level variance is below the
	// threshold.
	Variance Mode = "variance"
	Both     Mode = "both"
	Off      Mode = "off"
)

const DefaultVarianceThreshold = 100

type FaceDetector interface {
	Detect(ctx context.Context, img image.Image) ([]models.Face, error)
}

type Gate struct {
	mode      Mode
	threshold float64
	detector  FaceDetector
}

// New builds a gate. An empty or unknown mode is an error; disabling the
// gate requires Off explicitly.
func New(mode Mode, threshold float64, detector FaceDetector) (*Gate, error) {
	switch mode {
	case Landmark, Variance, Both, Off:
	default:
		return nil, fmt.Errorf("unknown liveness mode %q", mode)
	}
	if threshold <= 0 {
		threshold = DefaultVarianceThreshold
	}
	if (mode == Landmark || mode == Both) && detector == nil {
		return nil, fmt.Errorf("liveness mode %q needs a face detector", mode)
	}
	return &Gate{mode: mode, threshold: threshold, detector: detector}, nil
}

func (g *Gate) Mode() Mode { return g.mode }

// IsLive runs detection itself. Callers that already detected faces should
// use Evaluate.
func (g *Gate) IsLive(ctx context.Context, img image.Image) (bool, error) {
	var faces []models.Face
	if g.mode == Landmark || g.mode == Both {
		var err error
		faces, err = g.detector.Detect(ctx, img)
		if err != nil {
			return false, fmt.Errorf("liveness detect: %w", err)
		}
	}
	return g.Evaluate(img, faces), nil
}

// Evaluate applies the gate to a frame and the faces detected in it.
func (g *Gate) Evaluate(img image.Image, faces []models.Face) bool {
	switch g.mode {
	case Off:
		return true
	case Landmark:
		return HasLandmarks(faces)
	case Variance:
		return GreyVariance(img) >= g.threshold
	case Both:
		return HasLandmarks(faces) && GreyVariance(img) >= g.threshold
	}
	return false
}

// HasLandmarks reports whether any face has a non-empty landmark set lying
// entirely within its bounding box.
func HasLandmarks(faces []models.Face) bool {
	for _, f := range faces {
		if len(f.Landmarks) == 0 {
			continue
		}
		inside := true
		for _, p := range f.Landmarks {
			if !p.In(f.Box) {
				inside = false
				break
			}
		}
		if inside {
			return true
		}
	}
	return false
}

// GreyVariance is the population variance of the frame's 8-bit luma.
func GreyVariance(img image.Image) float64 {
	if img == nil {
		return 0
	}
	b := img.Bounds()
	n := float64(b.Dx() * b.Dy())
	if n == 0 {
		return 0
	}

	var sum, sumSq float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := float64(color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
			sum += v
			sumSq += v * v
		}
	}
	mean := sum / n
	return sumSq/n - mean*mean
}
