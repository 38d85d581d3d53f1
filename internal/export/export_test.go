package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/timmy/textrun/internal/domain"
)

func run(id string, frame int64, ts float64, text string, conf float64) domain.Run {
	return domain.Run{TextRun: domain.TextRun{
		RunID:      id,
		FrameIndex: frame,
		FrameLabel: domain.FrameLabel(frame),
		Text:       text,
		Confidence: conf,
		Timestamp:  ts,
	}}
}

func TestBuildGapFreeAfterDeletion(t *testing.T) {
	a := run("a", 0, 0, "A", 0.9)
	b := run("b", 30, 1.0, "B", 0.8)
	b.IsDeleted = true
	c := run("c", 90, 3.0, "C", 0.7)

	records := Build([]domain.Run{a, b, c}, Options{})
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].EndSeconds != records[1].StartSeconds || records[0].EndFrame != records[1].StartFrame {
		t.Errorf("gap between A and C: A ends %v/%d, C starts %v/%d",
			records[0].EndSeconds, records[0].EndFrame, records[1].StartSeconds, records[1].StartFrame)
	}
	for _, r := range records {
		if r.ID == "b" || r.Text == "B" {
			t.Errorf("deleted run leaked into export: %+v", r)
		}
	}
}

func TestBuildTailAndOverride(t *testing.T) {
	edited := "fixed"
	a := run("a", 0, 0, "A", 0.9)
	last := run("z", 120, 4.0, "typo", 0.66)
	last.ModifiedText = &edited

	records := Build([]domain.Run{a, last}, Options{Episode: 3})
	final := records[len(records)-1]
	if final.Text != "fixed" {
		t.Errorf("text = %q, want override", final.Text)
	}
	if final.EndSeconds != 6.0 || final.EndFrame != 180 {
		t.Errorf("tail = %v/%d, want 6.0/180", final.EndSeconds, final.EndFrame)
	}
	if final.Episode != 3 {
		t.Errorf("episode = %d, want 3", final.Episode)
	}

	custom := Build([]domain.Run{a}, Options{TailSeconds: 1.5, TailFrames: 10})
	if custom[0].EndSeconds != 1.5 || custom[0].EndFrame != 10 {
		t.Errorf("custom tail = %v/%d", custom[0].EndSeconds, custom[0].EndFrame)
	}
}

func TestBuildUpToFrame(t *testing.T) {
	runs := []domain.Run{
		run("a", 0, 0, "A", 0.9),
		run("b", 30, 1.0, "B", 0.9),
		run("c", 60, 2.0, "C", 0.9),
	}
	limit := int64(30)
	records := Build(runs, Options{UpToFrame: &limit})
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[1].ID != "b" || records[1].EndSeconds != 3.0 {
		t.Errorf("last bounded record = %+v", records[1])
	}
}

func TestRecordJSONShape(t *testing.T) {
	records := Build([]domain.Run{run("a", 1845, 61.5, "A", 0.84)}, Options{})
	raw, err := json.Marshal(records[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{
		"id":          "a",
		"confidence":  0.84,
		"text":        "A",
		"start_time":  "00:01:01,500",
		"end_time":    "00:01:03,500",
		"start_frame": 1845.0,
		"end_frame":   1905.0,
	}
	for key, value := range want {
		if got[key] != value {
			t.Errorf("%s = %v, want %v", key, got[key], value)
		}
	}
	if _, ok := got["score"]; ok {
		t.Errorf("unexpected score key in %s", raw)
	}
}

func TestTimecodeRoundTrip(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{1.5, "00:00:01,500"},
		{61.234, "00:01:01,234"},
		{3723.0049, "01:02:03,005"},
		{-3, "00:00:00,000"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := FormatTimecode(tt.seconds)
			if got != tt.want {
				t.Fatalf("FormatTimecode(%v) = %q, want %q", tt.seconds, got, tt.want)
			}
			back, err := ParseTimecode(got)
			if err != nil {
				t.Fatalf("ParseTimecode(%q): %v", got, err)
			}
			if FormatTimecode(back) != got {
				t.Errorf("round trip %q -> %v -> %q", got, back, FormatTimecode(back))
			}
		})
	}
}

func TestParseTimecodeRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "00:00:00.000", "00:00,000", "00:61:00,000", "aa:00:00,000", "00:00:00,1000"} {
		if _, err := ParseTimecode(in); err == nil {
			t.Errorf("ParseTimecode(%q) succeeded, want error", in)
		}
	}
}

func TestWriteCSV(t *testing.T) {
	records := Build([]domain.Run{
		run("id1", 0, 0, "你好, 世界", 0.876),
		run("id2", 45, 1.5, "second", 0.61),
	}, Options{Episode: 2})

	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back csv: %v", err)
	}
	if strings.Join(rows[0], ",") != "id,score,text,episode,start_time,end_time,start_frame,end_frame" {
		t.Errorf("header = %v", rows[0])
	}
	want := []string{"id1", "0.9", "你好, 世界", "2", "00:00:00,000", "00:00:01,500", "0", "45"}
	if strings.Join(rows[1], "|") != strings.Join(want, "|") {
		t.Errorf("row 1 = %v, want %v", rows[1], want)
	}
	if rows[2][1] != "0.6" || rows[2][5] != "00:00:03,500" || rows[2][7] != "105" {
		t.Errorf("row 2 = %v", rows[2])
	}
}

func TestWriteSRT(t *testing.T) {
	records := Build([]domain.Run{run("a", 0, 0, "line one", 0.9)}, Options{})
	var buf bytes.Buffer
	if err := WriteSRT(&buf, records); err != nil {
		t.Fatalf("WriteSRT: %v", err)
	}
	want := "1\n00:00:00,000 --> 00:00:02,000\nline one\n\n"
	if buf.String() != want {
		t.Errorf("srt = %q, want %q", buf.String(), want)
	}
}

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryStorage) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return nil
}

func (m *memoryStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return io.NopCloser(bytes.NewReader(m.objects[key])), nil
}

func (m *memoryStorage) GetURL(key string) string { return "https://cdn.example.com/" + key }

func (m *memoryStorage) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func TestPublisherPublishCSV(t *testing.T) {
	store := &memoryStorage{}
	pub := NewPublisher(store, "")
	records := Build([]domain.Run{run("a", 0, 0, "A", 0.9)}, Options{})

	out, err := pub.PublishCSV(context.Background(), "dQw4w9WgXcQ", records)
	if err != nil {
		t.Fatalf("PublishCSV: %v", err)
	}
	if out.Key != "exports/dQw4w9WgXcQ/runs.csv" || out.Rows != 1 {
		t.Errorf("published = %+v", out)
	}
	if !strings.HasPrefix(string(store.objects[out.Key]), "id,score,text") {
		t.Errorf("uploaded body = %q", store.objects[out.Key])
	}
	if out.URL != "https://cdn.example.com/exports/dQw4w9WgXcQ/runs.csv" {
		t.Errorf("url = %q", out.URL)
	}
}
