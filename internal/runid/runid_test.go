package runid

import (
	"testing"
)

// TestGenerateDeterministic verifies that the same input always produces the same ID
func TestGenerateDeterministic(t *testing.T) {
	testCases := []struct {
		name   string
		series string
		label  string
		ts     float64
		text   string
	}{
		{name: "basic", series: "dQw4w9WgXcQ", label: "frame_000030", ts: 1.0, text: "你好"},
		{name: "zero timestamp", series: "abc", label: "frame_000000", ts: 0, text: "hello"},
		{name: "empty text", series: "abc", label: "frame_000090", ts: 3.0, text: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id1 := Generate(tc.series, tc.label, tc.ts, tc.text)
			id2 := Generate(tc.series, tc.label, tc.ts, tc.text)

			if id1 != id2 {
				t.Errorf("ID mismatch: first=%s, second=%s", id1, id2)
			}
			// 16 bytes -> 22 base64 characters without padding
			if len(id1) != 22 {
				t.Errorf("Invalid ID length: got %d, want 22", len(id1))
			}
			for _, r := range id1 {
				if r == '=' || r == '+' || r == '/' {
					t.Errorf("ID %q is not URL-safe unpadded base64", id1)
				}
			}
		})
	}
}

// TestGenerateUniqueness verifies that changing any single input changes the ID
func TestGenerateUniqueness(t *testing.T) {
	base := Generate("series", "frame_000030", 1.0, "text")

	variants := map[string]string{
		"series":    Generate("series2", "frame_000030", 1.0, "text"),
		"label":     Generate("series", "frame_000031", 1.0, "text"),
		"timestamp": Generate("series", "frame_000030", 1.001, "text"),
		"text":      Generate("series", "frame_000030", 1.0, "text!"),
	}

	for field, id := range variants {
		if id == base {
			t.Errorf("changing %s did not change the ID: %s", field, id)
		}
	}
}

func TestGenerateMillisecondPrecision(t *testing.T) {
	// Timestamps are canonicalised to milliseconds.
	if Generate("s", "frame_000000", 0, "a") != Generate("s", "frame_000000", 0.0004, "a") {
		t.Errorf("sub-millisecond differences should not change the ID")
	}
}

func TestPointIDDeterministic(t *testing.T) {
	id := Generate("s", "frame_000000", 0, "a")
	p1 := PointID(id)
	p2 := PointID(id)
	if p1 != p2 {
		t.Errorf("PointID mismatch: %s != %s", p1, p2)
	}
	if len(p1) != 36 {
		t.Errorf("Invalid UUID length: got %d, want 36", len(p1))
	}
	if PointID(id+"x") == p1 {
		t.Errorf("different run IDs should map to different point IDs")
	}
}
