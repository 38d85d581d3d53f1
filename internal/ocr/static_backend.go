package ocr

import (
	"context"
	"image"
)

// StaticBackend returns a fixed answer for every frame. It is used for dry runs.
type StaticBackend struct {
	BackendName string
	Detections  []Detection
	Err         error
}

// Name returns the backend name.
func (b *StaticBackend) Name() string {
	if b.BackendName == "" {
		return "static"
	}
	return b.BackendName
}

// Detect returns a copy of the configured detections.
func (b *StaticBackend) Detect(_ context.Context, _ image.Image) ([]Detection, error) {
	if b.Err != nil {
		return nil, b.Err
	}
	out := make([]Detection, len(b.Detections))
	copy(out, b.Detections)
	return out, nil
}

// FuncBackend adapts a function to the Backend interface.
type FuncBackend struct {
	BackendName string
	Fn          func(ctx context.Context, img image.Image) ([]Detection, error)
}

// Name returns the backend name.
func (b FuncBackend) Name() string { return b.BackendName }

// Detect calls Fn.
func (b FuncBackend) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	return b.Fn(ctx, img)
}
