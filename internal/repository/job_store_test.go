package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/textrun/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *JobStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, Migrate(db))
	return NewJobStore(db)
}

func seedJob(t *testing.T, s *JobStore, sourceID string) *domain.ExtractionJob {
	t.Helper()
	job := &domain.ExtractionJob{
		SourceID:            sourceID,
		OriginURL:           "https://youtu.be/" + sourceID,
		Status:              domain.JobStatusProcessing,
		FrameStride:         10,
		ConfidenceThreshold: 0.6,
		FPS:                 30,
		TotalFrameCount:     300,
	}
	require.NoError(t, s.UpsertJob(context.Background(), job))
	return job
}

func textRun(sourceID string, frame int64, text string) *domain.TextRun {
	return &domain.TextRun{
		SourceID:      sourceID,
		FrameIndex:    frame,
		RunID:         fmt.Sprintf("run-%d", frame),
		Text:          text,
		Confidence:    0.9,
		Timestamp:     float64(frame) / 30,
		EndFrameIndex: frame + 10,
		EndTimestamp:  float64(frame+10) / 30,
	}
}

func TestAppendOrReplaceRunIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedJob(t, s, "vid00000001")

	require.NoError(t, s.AppendOrReplaceRun(ctx, textRun("vid00000001", 20, "hello")))
	require.NoError(t, s.AppendOrReplaceRun(ctx, textRun("vid00000001", 20, "hello")))

	n, err := s.CountRuns(ctx, "vid00000001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	replaced := textRun("vid00000001", 20, "hello world")
	replaced.EndFrameIndex = 50
	require.NoError(t, s.AppendOrReplaceRun(ctx, replaced))

	_, runs, err := s.GetJob(ctx, "vid00000001")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "hello world", runs[0].Text)
	assert.Equal(t, int64(50), runs[0].EndFrameIndex)
	assert.Equal(t, "frame_000020", runs[0].FrameLabel)
}

func TestGetJobOrdersByNumericFrame(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedJob(t, s, "vid00000002")

	for _, f := range []int64{1000000, 90, 5, 300} {
		require.NoError(t, s.AppendOrReplaceRun(ctx, textRun("vid00000002", f, fmt.Sprint(f))))
	}

	_, runs, err := s.GetJob(ctx, "vid00000002")
	require.NoError(t, err)
	var got []int64
	for _, r := range runs {
		got = append(got, r.FrameIndex)
	}
	assert.Equal(t, []int64{5, 90, 300, 1000000}, got)

	since := int64(90)
	newer, err := s.GetRunsSince(ctx, "vid00000002", &since)
	require.NoError(t, err)
	require.Len(t, newer, 2)
	assert.Equal(t, int64(300), newer[0].FrameIndex)
}

func TestGetJobNotFound(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestEditRunPartialUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedJob(t, s, "vid00000003")
	require.NoError(t, s.AppendOrReplaceRun(ctx, textRun("vid00000003", 10, "tpyo")))

	label := domain.FrameLabel(10)
	fixed := "typo"
	run, err := s.EditRun(ctx, "vid00000003", label, &fixed, nil)
	require.NoError(t, err)
	assert.Equal(t, "typo", run.DisplayText())
	assert.False(t, run.IsDeleted)

	deleted := true
	run, err = s.EditRun(ctx, "vid00000003", label, nil, &deleted)
	require.NoError(t, err)
	assert.True(t, run.IsDeleted)
	require.NotNil(t, run.ModifiedText)
	assert.Equal(t, "typo", *run.ModifiedText, "text edit must survive a delete-only edit")

	// Reprocessing the frame keeps the overlay and the detected text stays the fact.
	require.NoError(t, s.AppendOrReplaceRun(ctx, textRun("vid00000003", 10, "tpyo")))
	_, runs, err := s.GetJob(ctx, "vid00000003")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "tpyo", runs[0].Text)
	assert.Equal(t, "typo", runs[0].DisplayText())
	assert.True(t, runs[0].IsDeleted)

	_, err = s.EditRun(ctx, "vid00000003", domain.FrameLabel(999), &fixed, nil)
	assert.ErrorIs(t, err, ErrRunNotFound)

	cleared := ""
	run, err = s.EditRun(ctx, "vid00000003", label, &cleared, nil)
	require.NoError(t, err)
	assert.Nil(t, run.ModifiedText)
	assert.Equal(t, "tpyo", run.DisplayText())
	assert.True(t, run.IsDeleted, "clearing text leaves the delete flag alone")

	_, runs, err = s.GetJob(ctx, "vid00000003")
	require.NoError(t, err)
	assert.Nil(t, runs[0].ModifiedText)
}

func TestUpdateProgressIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedJob(t, s, "vid00000004")

	p, err := s.UpdateProgress(ctx, "vid00000004", domain.Progress{
		Status:              domain.JobStatusProcessing,
		CursorFrame:         domain.Int64Ptr(50),
		ProcessedFrameCount: 6,
		LastTimestamp:       1.66,
	})
	require.NoError(t, err)
	assert.Equal(t, "frame_000050", p.CursorLabel)
	assert.Equal(t, int64(300), p.TotalFrameCount)

	p, err = s.UpdateProgress(ctx, "vid00000004", domain.Progress{
		Status:              domain.JobStatusProcessing,
		CursorFrame:         domain.Int64Ptr(40),
		ProcessedFrameCount: 5,
		LastTimestamp:       1.33,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), p.ProcessedFrameCount)
	assert.Equal(t, 1.66, p.LastTimestamp)

	snap, ok := s.Progress("vid00000004")
	require.True(t, ok)
	assert.Equal(t, int64(6), snap.ProcessedFrameCount)

	job, err := s.FindJob(ctx, "vid00000004")
	require.NoError(t, err)
	assert.Equal(t, int64(6), job.ProcessedFrameCount)

	_, err = s.UpdateProgress(ctx, "nope", domain.Progress{Status: domain.JobStatusProcessing})
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestUpdateProgressRejectsIllegalTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedJob(t, s, "vid00000010")

	_, err := s.UpdateProgress(ctx, "vid00000010", domain.Progress{Status: domain.JobStatusCancelled, CursorFrame: domain.Int64Ptr(20)})
	require.NoError(t, err)

	p, err := s.UpdateProgress(ctx, "vid00000010", domain.Progress{Status: domain.JobStatusProcessing, CursorFrame: domain.Int64Ptr(30)})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, domain.JobStatusCancelled, p.Status)

	job, err := s.FindJob(ctx, "vid00000010")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, job.Status)
	require.NotNil(t, job.CursorFrame)
	assert.Equal(t, int64(20), *job.CursorFrame)
}

func TestProgressSnapshotIsACopy(t *testing.T) {
	s := newTestStore(t)
	seedJob(t, s, "vid00000005")
	_, err := s.UpdateProgress(context.Background(), "vid00000005", domain.Progress{
		Status:      domain.JobStatusProcessing,
		CursorFrame: domain.Int64Ptr(10),
	})
	require.NoError(t, err)

	snap, _ := s.Progress("vid00000005")
	*snap.CursorFrame = 999
	again, _ := s.Progress("vid00000005")
	assert.Equal(t, int64(10), *again.CursorFrame)
}

func TestMarkCompletedKeepsRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedJob(t, s, "vid00000006")
	require.NoError(t, s.AppendOrReplaceRun(ctx, textRun("vid00000006", 0, "a")))
	_, err := s.UpdateProgress(ctx, "vid00000006", domain.Progress{
		Status:      domain.JobStatusProcessing,
		ResumeFrame: domain.Int64Ptr(0),
	})
	require.NoError(t, err)

	require.NoError(t, s.MarkCompleted(ctx, "vid00000006"))

	job, runs, err := s.GetJob(ctx, "vid00000006")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Nil(t, job.ResumeFrame)
	assert.NotNil(t, job.CompletedAt)
	assert.Len(t, runs, 1)

	snap, _ := s.Progress("vid00000006")
	assert.Equal(t, domain.JobStatusCompleted, snap.Status)
}

func TestClearRunsRemovesFactsAndEdits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedJob(t, s, "vid00000008")
	seedJob(t, s, "vid00000009")
	require.NoError(t, s.AppendOrReplaceRun(ctx, textRun("vid00000008", 0, "a")))
	require.NoError(t, s.AppendOrReplaceRun(ctx, textRun("vid00000009", 0, "b")))
	deleted := true
	_, err := s.EditRun(ctx, "vid00000008", domain.FrameLabel(0), nil, &deleted)
	require.NoError(t, err)

	require.NoError(t, s.ClearRuns(ctx, "vid00000008"))

	_, runs, err := s.GetJob(ctx, "vid00000008")
	require.NoError(t, err)
	assert.Empty(t, runs)

	// A run written again at the same frame must not inherit the old edit.
	require.NoError(t, s.AppendOrReplaceRun(ctx, textRun("vid00000008", 0, "a")))
	_, runs, err = s.GetJob(ctx, "vid00000008")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].IsDeleted)

	n, err := s.CountRuns(ctx, "vid00000009")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestConcurrentWritesForOneSource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedJob(t, s, "vid00000007")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.AppendOrReplaceRun(ctx, textRun("vid00000007", int64(i%5)*10, "x")))
		}(i)
	}
	wg.Wait()

	n, err := s.CountRuns(ctx, "vid00000007")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}
