package repository

import (
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
)

func TestParsePayload(t *testing.T) {
	payload := map[string]*pb.Value{
		"run_id":      {Kind: &pb.Value_StringValue{StringValue: "abc"}},
		"source_id":   {Kind: &pb.Value_StringValue{StringValue: "dQw4w9WgXcQ"}},
		"frame_label": {Kind: &pb.Value_StringValue{StringValue: "frame_000030"}},
		"frame_index": {Kind: &pb.Value_IntegerValue{IntegerValue: 30}},
		"text":        {Kind: &pb.Value_StringValue{StringValue: "字幕"}},
		"timestamp":   {Kind: &pb.Value_DoubleValue{DoubleValue: 1.0}},
		"episode":     {Kind: &pb.Value_IntegerValue{IntegerValue: 4}},
	}
	p := parsePayload(payload)
	if p.RunID != "abc" || p.SourceID != "dQw4w9WgXcQ" || p.FrameIndex != 30 || p.Text != "字幕" || p.Episode != 4 || p.Timestamp != 1.0 {
		t.Errorf("parsed payload = %+v", p)
	}
	if parsePayload(nil) != nil {
		t.Error("nil payload should parse to nil")
	}
}

func TestSourceFilter(t *testing.T) {
	f := sourceFilter("abc")
	if len(f.Must) != 1 {
		t.Fatalf("conditions = %d", len(f.Must))
	}
	field := f.Must[0].GetField()
	if field.GetKey() != "source_id" || field.GetMatch().GetKeyword() != "abc" {
		t.Errorf("filter = %+v", field)
	}
}
