package ocr

import (
	"testing"

	"github.com/timmy/textrun/internal/config"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  hello   world ", "hello world"},
		{`"quoted line"`, "quoted line"},
		{`"unbalanced`, `"unbalanced`},
		{"it's fine", "it's fine"},
		{"None.", ""},
		{"NO_TEXT", ""},
		{"无文字。", ""},
		{"   ", ""},
		{"今日は\t晴れ", "今日は 晴れ"},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFilterAndSortDropsPlaceholders(t *testing.T) {
	got := FilterAndSort([]Detection{
		{Text: "n/a", Confidence: 0.99},
		{Text: "caption", Confidence: 0.7},
	}, 0.5)
	if len(got) != 1 || got[0].Text != "caption" {
		t.Errorf("got %+v, want only caption", got)
	}
}

func TestNewAdapterFromConfig(t *testing.T) {
	ext := &config.ExtractionConfig{CropFraction: 0.25, MaxWidth: 640}

	adapter, err := NewAdapterFromConfig(&config.OCRConfig{Backends: []config.OCRBackendConfig{
		{Name: "easyocr", Type: "http", BaseURL: "http://localhost:8000"},
		{Name: "vlm", Type: "vlm", BaseURL: "http://localhost:9000/v1", Model: "qwen-vl"},
		{Name: "dry", Type: "static"},
	}}, ext)
	if err != nil {
		t.Fatalf("NewAdapterFromConfig: %v", err)
	}
	if got := adapter.Backends(); len(got) != 3 || got[0] != "easyocr" || got[2] != "dry" {
		t.Errorf("backends = %v", got)
	}

	if _, err := NewAdapterFromConfig(&config.OCRConfig{}, ext); err == nil {
		t.Error("expected error for empty backend list")
	}
	if _, err := NewAdapterFromConfig(&config.OCRConfig{Backends: []config.OCRBackendConfig{{Type: "tesseract"}}}, ext); err == nil {
		t.Error("expected error for unknown backend type")
	}
}
