package domain

import (
	"fmt"
	"time"
)

// FrameLabel renders the display label for a numeric frame index.
// The numeric index stays the authoritative ordering key; the label is never parsed back.
func FrameLabel(index int64) string {
	return fmt.Sprintf("frame_%06d", index)
}

// TextRun is the detection fact for one run: the text first seen at FrameIndex and kept until
// EndFrameIndex. Rewriting the same (source_id, frame_label) replaces the row.
type TextRun struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	SourceID      string    `gorm:"type:text;not null;uniqueIndex:idx_text_runs_source_frame,priority:1;index:idx_text_runs_source_index,priority:1" json:"source_id"`
	FrameLabel    string    `gorm:"type:text;not null;uniqueIndex:idx_text_runs_source_frame,priority:2" json:"frame_label"`
	FrameIndex    int64     `gorm:"not null;index:idx_text_runs_source_index,priority:2" json:"frame_index"`
	RunID         string    `gorm:"type:text;not null;index:idx_text_runs_run_id" json:"run_id"`
	Text          string    `gorm:"type:text;not null" json:"text"`
	Confidence    float64   `json:"confidence"`
	Lang          string    `gorm:"type:text" json:"lang,omitempty"`
	Timestamp     float64   `json:"timestamp"`
	EndFrameIndex int64     `json:"end_frame_index"`
	EndTimestamp  float64   `json:"end_timestamp"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for TextRun.
func (TextRun) TableName() string {
	return "text_runs"
}

// RunEdit is the user overlay for a run. It is stored apart from the detection fact so that
// reprocessing a frame never discards an edit, and an edit never rewrites what was detected.
type RunEdit struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	SourceID     string    `gorm:"type:text;not null;uniqueIndex:idx_run_edits_source_frame,priority:1" json:"source_id"`
	FrameLabel   string    `gorm:"type:text;not null;uniqueIndex:idx_run_edits_source_frame,priority:2" json:"frame_label"`
	ModifiedText *string   `gorm:"type:text" json:"modified_text,omitempty"`
	IsDeleted    bool      `gorm:"not null;default:false" json:"is_deleted"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for RunEdit.
func (RunEdit) TableName() string {
	return "run_edits"
}

// Run is a detection fact with its edit overlay applied.
type Run struct {
	TextRun
	ModifiedText *string `json:"modified_text,omitempty"`
	IsDeleted    bool    `json:"is_deleted"`
}

// ComposeRun applies an optional edit to a detection fact.
func ComposeRun(fact TextRun, edit *RunEdit) Run {
	r := Run{TextRun: fact}
	if edit != nil {
		if edit.ModifiedText != nil {
			t := *edit.ModifiedText
			r.ModifiedText = &t
		}
		r.IsDeleted = edit.IsDeleted
	}
	return r
}

// DisplayText returns the user override when present, otherwise the detected text.
func (r Run) DisplayText() string {
	if r.ModifiedText != nil {
		return *r.ModifiedText
	}
	return r.Text
}
