package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/textrun/internal/domain"
	"github.com/timmy/textrun/internal/logger"
	"github.com/timmy/textrun/internal/metrics"
	"github.com/timmy/textrun/internal/pipeline"
	"github.com/timmy/textrun/internal/runid"
	"github.com/timmy/textrun/internal/segment"
	"github.com/timmy/textrun/internal/video"
)

// ExtractStats holds statistics for one worker run.
type ExtractStats struct {
	FramesProcessed int64
	FramesSkipped   int64
	RunsPersisted   int64
	StartTime       time.Time
}

// run drives one job from download to a final status. It owns the segmentation engine and is
// the only writer of the job's progress apart from pause/resume status flips.
func (s *ExtractionService) run(ctx context.Context, aj *activeJob, job *domain.ExtractionJob, point resumePoint) {
	metrics.ActiveJobs.Inc()
	stats := &ExtractStats{StartTime: time.Now()}
	defer func() {
		metrics.ActiveJobs.Dec()
		aj.cancel()
		s.mu.Lock()
		if s.active == aj {
			s.active = nil
		}
		s.mu.Unlock()
		close(aj.done)
	}()

	sourceID := job.SourceID
	prog := domain.ProgressOf(job)

	// Downloading
	// Cancellation aborts a download outright. Later stages only observe it at the frame gate
	// so that detection is never interrupted mid-frame.
	dlCtx, dlCancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-aj.ctl.Done():
			dlCancel()
		case <-dlCtx.Done():
		}
	}()
	stopStage := stageTimer("download")
	path, err := s.resolver.Resolve(dlCtx, job.OriginURL)
	stopStage()
	dlCancel()
	if err != nil {
		if aj.ctl.Cancelled() || ctx.Err() != nil {
			s.finishCancelled(ctx, aj, prog, nil)
			return
		}
		s.fail(ctx, sourceID, prog, fmt.Errorf("resolve %s: %w", job.OriginURL, err))
		return
	}

	// Extracting
	prog.Status = domain.JobStatusExtracting
	if prog, err = s.writeProgress(ctx, aj, prog); err != nil {
		s.fail(ctx, sourceID, prog, err)
		return
	}
	stopStage = stageTimer("open")
	src, err := s.open(ctx, path)
	stopStage()
	if err != nil {
		s.fail(ctx, sourceID, prog, err)
		return
	}

	fps := src.FPS()
	if fps <= 0 {
		fps = segment.DefaultFPS
	}
	job.FPS = fps
	job.TotalFrameCount = src.FrameCount()
	job.Status = domain.JobStatusProcessing
	job.CursorFrame = prog.CursorFrame
	job.ResumeFrame = prog.ResumeFrame
	job.LastCloseFrame = prog.LastCloseFrame
	job.ProcessedFrameCount = prog.ProcessedFrameCount
	job.LastTimestamp = prog.LastTimestamp
	if err := s.store.UpsertJob(ctx, job); err != nil {
		s.fail(ctx, sourceID, prog, err)
		return
	}
	prog = domain.ProgressOf(job)
	s.events.Publish(pipeline.Event{SourceID: sourceID, Type: pipeline.EventTypeStatus, Status: prog.Status, Total: prog.TotalFrameCount})

	// Processing
	engine := segment.NewEngine(segment.Config{MinTextDuration: s.cfg.MinTextDuration, FPS: fps})
	engine.Restore(point.snapshot)

	walker := video.NewWalker(src, job.FrameStride, point.startFrame, aj.ctl).
		OnSkip(func(index int64, err error) {
			stats.FramesSkipped++
			metrics.FramesSkippedTotal.Inc()
			logger.With(logger.Fields{logger.FieldSourceID: sourceID}).WithFrame(index).Warn(ctx, "Skipping undecodable frame: %v", err)
		})

	stopStage = stageTimer("process")
	defer stopStage()

	for {
		frame, ok := walker.Next(ctx)
		if !ok {
			break
		}

		ev := segment.Event{Frame: frame.Index, Timestamp: frame.Timestamp}
		if det, found := s.detector.Best(ctx, frame.Image, job.ConfidenceThreshold); found {
			ev.Text = det.Text
			ev.Confidence = det.Confidence
			ev.Lang = det.Lang
		}
		stats.FramesProcessed++
		metrics.FramesProcessedTotal.Inc()

		if closed := engine.Observe(ev); closed != nil {
			if err := s.persistRun(ctx, sourceID, closed); err != nil {
				s.fail(ctx, sourceID, prog, err)
				return
			}
			stats.RunsPersisted++
		}

		prog.CursorFrame = domain.Int64Ptr(frame.Index)
		prog.ProcessedFrameCount = processedCount(frame.Index, job.TotalFrameCount)
		prog.LastTimestamp = frame.Timestamp
		prog.ResumeFrame = domain.Int64Ptr(resumeFrame(engine, walker, job.TotalFrameCount))
		prog.LastCloseFrame = engine.State().LastCloseFrame
		prog.Status = domain.JobStatusProcessing
		if prog, err = s.writeProgress(ctx, aj, prog); err != nil {
			s.fail(ctx, sourceID, prog, err)
			return
		}
		s.events.Publish(pipeline.Event{
			SourceID:  sourceID,
			Type:      pipeline.EventTypeProgress,
			Status:    prog.Status,
			Frame:     frame.Index,
			Processed: prog.ProcessedFrameCount,
			Total:     prog.TotalFrameCount,
			Text:      engine.OpenText(),
		})
	}

	done := logger.With(logger.Fields{
		"frames_processed": stats.FramesProcessed,
		"frames_skipped":   stats.FramesSkipped,
		"runs":             stats.RunsPersisted,
	}).Since(stats.StartTime)

	if walkErr := walker.Err(); walkErr != nil {
		if errors.Is(walkErr, pipeline.ErrCancelled) || errors.Is(walkErr, context.Canceled) {
			s.finishCancelled(ctx, aj, prog, engine)
			done.Info(ctx, "Extraction cancelled")
			return
		}
		s.fail(ctx, sourceID, prog, walkErr)
		return
	}

	if closed := engine.Finish(); closed != nil {
		if err := s.persistRun(ctx, sourceID, closed); err != nil {
			s.fail(ctx, sourceID, prog, err)
			return
		}
		stats.RunsPersisted++
	}
	if job.TotalFrameCount > 0 {
		prog.ProcessedFrameCount = job.TotalFrameCount
	}
	prog.Status = domain.JobStatusProcessing
	if _, err := s.writeProgress(ctx, aj, prog); err != nil {
		s.fail(ctx, sourceID, prog, err)
		return
	}
	if err := s.store.MarkCompleted(ctx, sourceID); err != nil {
		s.fail(ctx, sourceID, prog, err)
		return
	}
	metrics.JobsTotal.WithLabelValues(string(domain.JobStatusCompleted)).Inc()
	s.events.Publish(pipeline.Event{SourceID: sourceID, Type: pipeline.EventTypeStatus, Status: domain.JobStatusCompleted})
	if total, err := s.store.CountRuns(ctx, sourceID); err == nil {
		done = done.With(logger.Fields{"runs_total": total})
	}
	done = done.With(logger.Fields{"runs": stats.RunsPersisted})
	done.Info(ctx, "Extraction completed")
}

// finishCancelled closes the open run at the last observed frame and persists it. The resume
// position written with the last processed frame is kept: it still points at the start of the
// run that was open, so a resumed walk reproduces the uninterrupted run set.
func (s *ExtractionService) finishCancelled(ctx context.Context, aj *activeJob, prog domain.Progress, engine *segment.Engine) {
	// Writes below must land even when ctx was cancelled by Shutdown.
	wctx := context.WithoutCancel(ctx)
	if engine != nil {
		if closed := engine.Finish(); closed != nil {
			if err := s.persistRun(wctx, aj.sourceID, closed); err != nil {
				s.fail(wctx, aj.sourceID, prog, err)
				return
			}
		}
	}
	prog.Status = domain.JobStatusCancelled
	if _, err := s.store.UpdateProgress(wctx, aj.sourceID, prog); err != nil {
		s.log(ctx).WithError(err).Error("Failed to persist cancelled status")
	}
	metrics.JobsTotal.WithLabelValues(string(domain.JobStatusCancelled)).Inc()
	s.events.Publish(pipeline.Event{SourceID: aj.sourceID, Type: pipeline.EventTypeStatus, Status: domain.JobStatusCancelled})
}

// fail sets the job to error. Failures here are logged only; the worker stops either way.
func (s *ExtractionService) fail(ctx context.Context, sourceID string, prog domain.Progress, cause error) {
	wctx := context.WithoutCancel(ctx)
	s.log(ctx).WithError(cause).Error("Extraction failed")
	prog.Status = domain.JobStatusError
	prog.ErrorMessage = cause.Error()
	if _, err := s.store.UpdateProgress(wctx, sourceID, prog); err != nil {
		s.log(ctx).WithError(err).Error("Failed to persist error status")
	}
	metrics.JobsTotal.WithLabelValues(string(domain.JobStatusError)).Inc()
	s.events.Publish(pipeline.Event{SourceID: sourceID, Type: pipeline.EventTypeError, Status: domain.JobStatusError, Message: cause.Error()})
}

// writeProgress persists progress. A paused gate turns a processing status into paused.
func (s *ExtractionService) writeProgress(ctx context.Context, aj *activeJob, prog domain.Progress) (domain.Progress, error) {
	aj.statusMu.Lock()
	defer aj.statusMu.Unlock()
	if prog.Status == domain.JobStatusProcessing && aj.ctl.Paused() {
		prog.Status = domain.JobStatusPaused
	}
	out, err := s.store.UpdateProgress(ctx, aj.sourceID, prog)
	if err != nil {
		return prog, err
	}
	return out, nil
}

// persistRun writes a closed run. Its identity depends only on content, so a replayed frame
// after a resume overwrites the same row.
func (s *ExtractionService) persistRun(ctx context.Context, sourceID string, r *segment.Run) error {
	label := domain.FrameLabel(r.StartFrame)
	run := &domain.TextRun{
		SourceID:      sourceID,
		FrameLabel:    label,
		FrameIndex:    r.StartFrame,
		RunID:         runid.Generate(sourceID, label, r.StartTimestamp, r.Text),
		Text:          r.Text,
		Confidence:    r.Confidence,
		Lang:          r.Lang,
		Timestamp:     r.StartTimestamp,
		EndFrameIndex: r.EndFrame,
		EndTimestamp:  r.EndTimestamp,
	}
	if err := s.store.AppendOrReplaceRun(ctx, run); err != nil {
		return err
	}
	metrics.RunsPersistedTotal.Inc()
	s.events.Publish(pipeline.Event{SourceID: sourceID, Type: pipeline.EventTypeRun, Frame: r.StartFrame, Text: r.Text})
	logger.With(logger.Fields{"end_frame": r.EndFrame}).WithFrame(r.StartFrame).Debug(ctx, "Run persisted: %q", r.Text)
	return nil
}

// resumeFrame is the open run's start when one is open, else the next sampled frame. Past the
// last sampled frame it is the frame count, which resumes into an empty walk.
func resumeFrame(engine *segment.Engine, walker *video.Walker, total int64) int64 {
	if start, open := engine.OpenStart(); open {
		return start
	}
	next := walker.NextIndex()
	if total > 0 && next > total {
		return total
	}
	return next
}

// processedCount is the number of video frames up to and including index.
func processedCount(index, total int64) int64 {
	n := index + 1
	if total > 0 && n > total {
		return total
	}
	return n
}
