package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusIdle, JobStatusDownloading, true},
		{JobStatusIdle, JobStatusProcessing, false},
		{JobStatusDownloading, JobStatusExtracting, true},
		{JobStatusExtracting, JobStatusProcessing, true},
		{JobStatusProcessing, JobStatusPaused, true},
		{JobStatusPaused, JobStatusProcessing, true},
		{JobStatusPaused, JobStatusCompleted, false},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusCompleted, JobStatusProcessing, false},
		{JobStatusCancelled, JobStatusDownloading, true},
		{JobStatusError, JobStatusIdle, true},
		{JobStatusPaused, JobStatusPaused, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestJobStatusClasses(t *testing.T) {
	assert.True(t, JobStatusPaused.IsActive())
	assert.False(t, JobStatusPaused.IsTerminal())
	assert.True(t, JobStatusCancelled.IsTerminal())
	assert.False(t, JobStatusIdle.IsActive())
	assert.ElementsMatch(t, []JobStatus{JobStatusDownloading, JobStatusExtracting, JobStatusProcessing, JobStatusPaused}, ActiveStatuses())
}

func TestProgressPercent(t *testing.T) {
	assert.Equal(t, 0.0, Progress{ProcessedFrameCount: 10}.Percent())
	assert.InDelta(t, 25.0, Progress{ProcessedFrameCount: 25, TotalFrameCount: 100}.Percent(), 1e-9)
}

func TestProgressCloneDoesNotShare(t *testing.T) {
	p := Progress{CursorFrame: Int64Ptr(10)}
	c := p.Clone()
	*c.CursorFrame = 20
	assert.Equal(t, int64(10), *p.CursorFrame)
}

func TestProgressOf(t *testing.T) {
	job := &ExtractionJob{Status: JobStatusProcessing, CursorFrame: Int64Ptr(42), TotalFrameCount: 100, ProcessedFrameCount: 43}
	p := ProgressOf(job)
	assert.Equal(t, "frame_000042", p.CursorLabel)
	*p.CursorFrame = 0
	assert.Equal(t, int64(42), *job.CursorFrame)
}

func TestComposeRun(t *testing.T) {
	fact := TextRun{SourceID: "s", FrameLabel: FrameLabel(30), FrameIndex: 30, Text: "detected"}

	plain := ComposeRun(fact, nil)
	assert.Equal(t, "detected", plain.DisplayText())
	assert.False(t, plain.IsDeleted)

	text := "fixed"
	edited := ComposeRun(fact, &RunEdit{ModifiedText: &text, IsDeleted: true})
	assert.Equal(t, "fixed", edited.DisplayText())
	assert.Equal(t, "detected", edited.Text)
	assert.True(t, edited.IsDeleted)

	text = "changed later"
	assert.Equal(t, "fixed", *edited.ModifiedText)
}
