package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
)

func testFrame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(y), A: 255})
		}
	}
	return img
}

func TestFilterAndSort(t *testing.T) {
	in := []Detection{
		{Text: "low", Confidence: 0.5},
		{Text: "edge", Confidence: 0.6},
		{Text: " mid ", Confidence: 0.7},
		{Text: "high", Confidence: 0.95},
		{Text: "   ", Confidence: 0.99},
	}
	got := FilterAndSort(in, 0.6)
	if len(got) != 2 {
		t.Fatalf("kept %d detections, want 2: %+v", len(got), got)
	}
	if got[0].Text != "high" || got[1].Text != "mid" {
		t.Errorf("order = [%q %q], want [high mid]", got[0].Text, got[1].Text)
	}
}

func TestAdapterFallsBackOnlyWhenPrimaryHasNothing(t *testing.T) {
	tests := []struct {
		name     string
		primary  Backend
		fallback Backend
		want     string
	}{
		{
			name:     "primary above threshold wins",
			primary:  &StaticBackend{BackendName: "ch", Detections: []Detection{{Text: "中文", Confidence: 0.8}}},
			fallback: &StaticBackend{BackendName: "ja", Detections: []Detection{{Text: "日本語", Confidence: 0.99}}},
			want:     "中文",
		},
		{
			name:     "primary below threshold",
			primary:  &StaticBackend{BackendName: "ch", Detections: []Detection{{Text: "中文", Confidence: 0.4}}},
			fallback: &StaticBackend{BackendName: "ja", Detections: []Detection{{Text: "日本語", Confidence: 0.7}}},
			want:     "日本語",
		},
		{
			name:     "primary error",
			primary:  &StaticBackend{BackendName: "ch", Err: errors.New("boom")},
			fallback: &StaticBackend{BackendName: "ja", Detections: []Detection{{Text: "日本語", Confidence: 0.7}}},
			want:     "日本語",
		},
		{
			name:     "nothing anywhere",
			primary:  &StaticBackend{BackendName: "ch"},
			fallback: &StaticBackend{BackendName: "ja", Err: errors.New("boom")},
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAdapter(AdapterConfig{}, tt.primary, tt.fallback)
			best, ok := a.Best(context.Background(), testFrame(10, 10), 0.6)
			if tt.want == "" {
				if ok {
					t.Errorf("expected no detection, got %+v", best)
				}
				return
			}
			if !ok || best.Text != tt.want {
				t.Errorf("best = %+v (ok=%v), want %q", best, ok, tt.want)
			}
		})
	}
}

func TestAdapterCropsBottomRegion(t *testing.T) {
	var seen image.Rectangle
	var topRow uint8
	backend := FuncBackend{BackendName: "probe", Fn: func(_ context.Context, img image.Image) ([]Detection, error) {
		seen = img.Bounds()
		r, _, _, _ := img.At(0, 0).RGBA()
		topRow = uint8(r >> 8)
		return nil, nil
	}}

	a := NewAdapter(AdapterConfig{CropFraction: 0.3}, backend)
	a.Detect(context.Background(), testFrame(20, 100), 0.5)

	if seen.Dx() != 20 || seen.Dy() != 30 {
		t.Errorf("backend saw %v, want 20x30", seen)
	}
	if topRow != 70 {
		t.Errorf("crop starts at row %d, want 70", topRow)
	}
}

func TestDownscaleKeepsAspect(t *testing.T) {
	out := Downscale(testFrame(400, 100), 200)
	if out.Bounds().Dx() != 200 || out.Bounds().Dy() != 50 {
		t.Errorf("downscaled to %v, want 200x50", out.Bounds())
	}
	same := testFrame(100, 10)
	if Downscale(same, 200) != same {
		t.Error("narrow image should be returned unchanged")
	}
}

func TestParseVLMLines(t *testing.T) {
	content := "```json\n{\"text\": \"你好\", \"confidence\": 0.92, \"lang\": \"ch_tra\"}\nplain line\n```\n"
	got := ParseVLMLines(content, 0.8)
	if len(got) != 2 {
		t.Fatalf("parsed %d lines, want 2: %+v", len(got), got)
	}
	if got[0].Text != "你好" || got[0].Confidence != 0.92 || got[0].Lang != "ch_tra" {
		t.Errorf("json line = %+v", got[0])
	}
	if got[1].Text != "plain line" || got[1].Confidence != 0.8 {
		t.Errorf("plain line = %+v", got[1])
	}
}
