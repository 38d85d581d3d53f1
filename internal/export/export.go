// Package export renders stored runs, with user edits applied, as subtitle-style records.
package export

import (
	"github.com/timmy/textrun/internal/domain"
)

const (
	// DefaultTailSeconds extends the last record when nothing follows it.
	DefaultTailSeconds = 2.0
	// DefaultTailFrames is the frame counterpart of DefaultTailSeconds.
	DefaultTailFrames = 60
)

// Options controls which runs are exported and how the last record ends.
type Options struct {
	// UpToFrame limits output to runs starting at or before this frame; nil exports everything.
	UpToFrame *int64
	Episode   int
	// TailSeconds and TailFrames extend the final record; zero values use the defaults.
	TailSeconds float64
	TailFrames  int64
}

// Record is one exported subtitle row. StartTime and EndTime are HH:MM:SS,mmm timecodes; the
// seconds fields carry the same instants unformatted.
type Record struct {
	ID           string  `json:"id"`
	Confidence   float64 `json:"confidence"`
	Text         string  `json:"text"`
	Episode      int     `json:"episode"`
	StartTime    string  `json:"start_time"`
	EndTime      string  `json:"end_time"`
	StartFrame   int64   `json:"start_frame"`
	EndFrame     int64   `json:"end_frame"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
}

// StartFrameLabel is the frame label of the run the record was built from.
func (r Record) StartFrameLabel() string { return domain.FrameLabel(r.StartFrame) }

// Build drops deleted runs, applies text overrides, and derives each record's end from the next
// surviving record. Runs must be ordered by frame index.
func Build(runs []domain.Run, opts Options) []Record {
	tailSeconds := opts.TailSeconds
	if tailSeconds <= 0 {
		tailSeconds = DefaultTailSeconds
	}
	tailFrames := opts.TailFrames
	if tailFrames <= 0 {
		tailFrames = DefaultTailFrames
	}

	records := make([]Record, 0, len(runs))
	for _, run := range runs {
		if run.IsDeleted {
			continue
		}
		if opts.UpToFrame != nil && run.FrameIndex > *opts.UpToFrame {
			continue
		}
		records = append(records, Record{
			ID:           run.RunID,
			Confidence:   run.Confidence,
			Text:         run.DisplayText(),
			Episode:      opts.Episode,
			StartSeconds: run.Timestamp,
			StartFrame:   run.FrameIndex,
		})
	}

	for i := range records {
		if i+1 < len(records) {
			records[i].EndSeconds = records[i+1].StartSeconds
			records[i].EndFrame = records[i+1].StartFrame
		} else {
			records[i].EndSeconds = records[i].StartSeconds + tailSeconds
			records[i].EndFrame = records[i].StartFrame + tailFrames
		}
		records[i].StartTime = FormatTimecode(records[i].StartSeconds)
		records[i].EndTime = FormatTimecode(records[i].EndSeconds)
	}
	return records
}
