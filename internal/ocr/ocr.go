// Package ocr detects caption text in video frames through pluggable backends.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"time"

	"github.com/timmy/textrun/internal/logger"
	"github.com/timmy/textrun/internal/metrics"
)

// ErrDetectionFailure wraps any backend error. The adapter never returns it from Detect;
// failed frames are logged and treated as having no text.
var ErrDetectionFailure = errors.New("text detection failed")

// DefaultCropFraction is the bottom share of the frame where captions are expected.
const DefaultCropFraction = 0.3

// Point is one corner of a detection bounding polygon, in crop coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Detection is one recognised text region.
type Detection struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	BBox       []Point `json:"bbox,omitempty"`
	Lang       string  `json:"lang,omitempty"`
}

// Backend recognises text in an image region.
type Backend interface {
	Name() string
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// AdapterConfig controls preprocessing applied before the backends see a frame.
type AdapterConfig struct {
	// CropFraction is the bottom share of the frame kept; values outside (0, 1] use the default.
	CropFraction float64
	// MaxWidth downsizes wide frames before detection; 0 disables scaling.
	MaxWidth int
}

// Adapter crops frames to the caption region and queries the backends in order.
type Adapter struct {
	backends     []Backend
	cropFraction float64
	maxWidth     int
}

// NewAdapter creates an adapter. The first backend is the primary; the rest are fallbacks.
func NewAdapter(cfg AdapterConfig, backends ...Backend) *Adapter {
	fraction := cfg.CropFraction
	if fraction <= 0 || fraction > 1 {
		fraction = DefaultCropFraction
	}
	return &Adapter{
		backends:     backends,
		cropFraction: fraction,
		maxWidth:     cfg.MaxWidth,
	}
}

// Backends returns the configured backend names in query order.
func (a *Adapter) Backends() []string {
	names := make([]string, 0, len(a.backends))
	for _, b := range a.backends {
		names = append(names, b.Name())
	}
	return names
}

// Detect returns the detections strictly above threshold, sorted by descending confidence,
// from the first backend that produced any. A nil result means no text was found.
func (a *Adapter) Detect(ctx context.Context, frame image.Image, threshold float64) []Detection {
	region := CropBottom(frame, a.cropFraction)
	if a.maxWidth > 0 {
		region = Downscale(region, a.maxWidth)
	}

	for _, backend := range a.backends {
		start := time.Now()
		raw, err := backend.Detect(ctx, region)
		metrics.DetectionDuration.WithLabelValues(backend.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.DetectionFailuresTotal.WithLabelValues(backend.Name()).Inc()
			logger.With(logger.Fields{"threshold": threshold}).WithBackend(backend.Name()).Since(start).Warn(ctx, "Treating frame as empty: %v", fmt.Errorf("%w: %v", ErrDetectionFailure, err))
			continue
		}

		kept := FilterAndSort(raw, threshold)
		if len(kept) > 0 {
			return kept
		}
	}
	return nil
}

// Best returns the highest-confidence detection above threshold.
func (a *Adapter) Best(ctx context.Context, frame image.Image, threshold float64) (Detection, bool) {
	candidates := a.Detect(ctx, frame, threshold)
	if len(candidates) == 0 {
		return Detection{}, false
	}
	return candidates[0], true
}

// FilterAndSort normalizes text, drops blank entries and those at or below threshold, then orders the rest by
// descending confidence. Equal confidences keep backend order.
func FilterAndSort(dets []Detection, threshold float64) []Detection {
	kept := make([]Detection, 0, len(dets))
	for _, d := range dets {
		d.Text = NormalizeText(d.Text)
		if d.Text == "" || d.Confidence <= threshold {
			continue
		}
		kept = append(kept, d)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Confidence > kept[j].Confidence
	})
	return kept
}
