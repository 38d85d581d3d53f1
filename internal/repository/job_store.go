package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/timmy/textrun/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrPersistenceConflict wraps every failed store write.
	ErrPersistenceConflict = errors.New("persistence conflict")
	// ErrJobNotFound is returned when no job exists for a source ID.
	ErrJobNotFound = errors.New("job not found")
	// ErrRunNotFound is returned when editing a frame label that has no run.
	ErrRunNotFound = errors.New("run not found")
	// ErrInvalidTransition is returned when a progress write would break the job state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// JobStore is the single source of truth for extraction jobs and their runs.
// Writes for one source ID are serialized; progress reads are served from an in-memory
// snapshot and never wait on a writer.
type JobStore struct {
	db *gorm.DB

	locks sync.Map // source_id -> *sync.Mutex

	progressMu sync.RWMutex
	progress   map[string]domain.Progress
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{
		db:       db,
		progress: make(map[string]domain.Progress),
	}
}

func (s *JobStore) lock(sourceID string) func() {
	m, _ := s.locks.LoadOrStore(sourceID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *JobStore) setProgress(sourceID string, p domain.Progress) {
	s.progressMu.Lock()
	s.progress[sourceID] = p.Clone()
	s.progressMu.Unlock()
}

func conflict(op, sourceID string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ErrPersistenceConflict, op, sourceID, err)
}

// UpsertJob inserts the job or replaces every mutable column of an existing one.
func (s *JobStore) UpsertJob(ctx context.Context, job *domain.ExtractionJob) error {
	unlock := s.lock(job.SourceID)
	defer unlock()

	job.UpdatedAt = time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"origin_url", "status", "frame_stride", "confidence_threshold", "episode", "fps",
			"cursor_frame", "resume_frame", "last_close_frame", "total_frame_count",
			"processed_frame_count", "last_timestamp", "error_message", "updated_at", "completed_at",
		}),
	}).Create(job).Error
	if err != nil {
		return conflict("upsert job", job.SourceID, err)
	}

	s.setProgress(job.SourceID, domain.ProgressOf(job))
	return nil
}

// UpdateProgress is the worker's single write path for status and progress. Status changes must
// follow domain.CanTransition. ProcessedFrameCount and LastTimestamp never move backwards while the job is not reset.
func (s *JobStore) UpdateProgress(ctx context.Context, sourceID string, p domain.Progress) (domain.Progress, error) {
	unlock := s.lock(sourceID)
	defer unlock()

	prev, ok := s.Progress(sourceID)
	if !ok {
		job, err := s.loadJob(ctx, sourceID)
		if err != nil {
			return domain.Progress{}, err
		}
		prev = domain.ProgressOf(job)
	}
	if !domain.CanTransition(prev.Status, p.Status) {
		return prev, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, sourceID, prev.Status, p.Status)
	}
	if p.ProcessedFrameCount < prev.ProcessedFrameCount {
		p.ProcessedFrameCount = prev.ProcessedFrameCount
	}
	if p.LastTimestamp < prev.LastTimestamp {
		p.LastTimestamp = prev.LastTimestamp
	}
	if p.TotalFrameCount == 0 {
		p.TotalFrameCount = prev.TotalFrameCount
	}
	if p.CursorFrame != nil {
		p.CursorLabel = domain.FrameLabel(*p.CursorFrame)
	}
	p.UpdatedAt = time.Now().UTC()

	updates := map[string]interface{}{
		"status":                p.Status,
		"cursor_frame":          p.CursorFrame,
		"resume_frame":          p.ResumeFrame,
		"last_close_frame":      p.LastCloseFrame,
		"total_frame_count":     p.TotalFrameCount,
		"processed_frame_count": p.ProcessedFrameCount,
		"last_timestamp":        p.LastTimestamp,
		"error_message":         p.ErrorMessage,
		"updated_at":            p.UpdatedAt,
	}
	res := s.db.WithContext(ctx).Model(&domain.ExtractionJob{}).
		Where("source_id = ?", sourceID).
		Updates(updates)
	if res.Error != nil {
		return domain.Progress{}, conflict("update progress", sourceID, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.Progress{}, fmt.Errorf("%w: %s", ErrJobNotFound, sourceID)
	}

	s.setProgress(sourceID, p)
	return p.Clone(), nil
}

// Progress returns the last written progress snapshot for a job.
func (s *JobStore) Progress(sourceID string) (domain.Progress, bool) {
	s.progressMu.RLock()
	p, ok := s.progress[sourceID]
	s.progressMu.RUnlock()
	if !ok {
		return domain.Progress{}, false
	}
	return p.Clone(), true
}

// AppendOrReplaceRun writes a detection fact keyed by (source_id, frame_label).
// Writing the same frame twice leaves exactly one row; edits in the overlay survive.
func (s *JobStore) AppendOrReplaceRun(ctx context.Context, run *domain.TextRun) error {
	unlock := s.lock(run.SourceID)
	defer unlock()

	if run.FrameLabel == "" {
		run.FrameLabel = domain.FrameLabel(run.FrameIndex)
	}
	now := time.Now().UTC()
	run.UpdatedAt = now
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_id"}, {Name: "frame_label"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"frame_index", "run_id", "text", "confidence", "lang", "timestamp",
			"end_frame_index", "end_timestamp", "updated_at",
		}),
	}).Create(run).Error
	if err != nil {
		return conflict("append run", run.SourceID, err)
	}
	return nil
}

// EditRun applies a partial user edit: only non-nil fields change. An empty modifiedText clears
// the override so the detected text shows again.
func (s *JobStore) EditRun(ctx context.Context, sourceID, frameLabel string, modifiedText *string, isDeleted *bool) (*domain.Run, error) {
	unlock := s.lock(sourceID)
	defer unlock()

	var out domain.Run
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var fact domain.TextRun
		if err := tx.Where("source_id = ? AND frame_label = ?", sourceID, frameLabel).First(&fact).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s/%s", ErrRunNotFound, sourceID, frameLabel)
			}
			return conflict("load run", sourceID, err)
		}

		var edit domain.RunEdit
		err := tx.Where("source_id = ? AND frame_label = ?", sourceID, frameLabel).First(&edit).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return conflict("load edit", sourceID, err)
		}
		edit.SourceID = sourceID
		edit.FrameLabel = frameLabel
		if modifiedText != nil {
			if t := *modifiedText; t != "" {
				edit.ModifiedText = &t
			} else {
				edit.ModifiedText = nil
			}
		}
		if isDeleted != nil {
			edit.IsDeleted = *isDeleted
		}
		edit.UpdatedAt = time.Now().UTC()
		if edit.CreatedAt.IsZero() {
			edit.CreatedAt = edit.UpdatedAt
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_id"}, {Name: "frame_label"}},
			DoUpdates: clause.AssignmentColumns([]string{"modified_text", "is_deleted", "updated_at"}),
		}).Create(&edit).Error; err != nil {
			return conflict("save edit", sourceID, err)
		}

		out = domain.ComposeRun(fact, &edit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetJob returns the job and all of its runs ordered by frame index.
func (s *JobStore) GetJob(ctx context.Context, sourceID string) (*domain.ExtractionJob, []domain.Run, error) {
	job, err := s.loadJob(ctx, sourceID)
	if err != nil {
		return nil, nil, err
	}
	runs, err := s.GetRunsSince(ctx, sourceID, nil)
	if err != nil {
		return nil, nil, err
	}
	return job, runs, nil
}

// FindJob returns the job without its runs.
func (s *JobStore) FindJob(ctx context.Context, sourceID string) (*domain.ExtractionJob, error) {
	return s.loadJob(ctx, sourceID)
}

func (s *JobStore) loadJob(ctx context.Context, sourceID string) (*domain.ExtractionJob, error) {
	var job domain.ExtractionJob
	if err := s.db.WithContext(ctx).First(&job, "source_id = ?", sourceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, sourceID)
		}
		return nil, fmt.Errorf("load job %s: %w", sourceID, err)
	}
	return &job, nil
}

// GetRunsSince returns runs whose frame index is strictly greater than lastFrame,
// or all runs when lastFrame is nil, ordered by frame index.
func (s *JobStore) GetRunsSince(ctx context.Context, sourceID string, lastFrame *int64) ([]domain.Run, error) {
	q := s.db.WithContext(ctx).Where("source_id = ?", sourceID)
	if lastFrame != nil {
		q = q.Where("frame_index > ?", *lastFrame)
	}

	var facts []domain.TextRun
	if err := q.Order("frame_index ASC").Find(&facts).Error; err != nil {
		return nil, fmt.Errorf("list runs %s: %w", sourceID, err)
	}
	if len(facts) == 0 {
		return []domain.Run{}, nil
	}

	labels := make([]string, len(facts))
	for i, f := range facts {
		labels[i] = f.FrameLabel
	}
	var edits []domain.RunEdit
	if err := s.db.WithContext(ctx).
		Where("source_id = ? AND frame_label IN ?", sourceID, labels).
		Find(&edits).Error; err != nil {
		return nil, fmt.Errorf("list edits %s: %w", sourceID, err)
	}
	byLabel := make(map[string]*domain.RunEdit, len(edits))
	for i := range edits {
		byLabel[edits[i].FrameLabel] = &edits[i]
	}

	runs := make([]domain.Run, len(facts))
	for i, f := range facts {
		runs[i] = domain.ComposeRun(f, byLabel[f.FrameLabel])
	}
	return runs, nil
}

// MarkCompleted sets the job to completed and drops its resume position. Runs are kept.
func (s *JobStore) MarkCompleted(ctx context.Context, sourceID string) error {
	unlock := s.lock(sourceID)
	defer unlock()

	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&domain.ExtractionJob{}).
		Where("source_id = ?", sourceID).
		Updates(map[string]interface{}{
			"status":           domain.JobStatusCompleted,
			"resume_frame":     nil,
			"last_close_frame": nil,
			"error_message":    "",
			"completed_at":     now,
			"updated_at":       now,
		})
	if res.Error != nil {
		return conflict("mark completed", sourceID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, sourceID)
	}

	s.progressMu.Lock()
	if p, ok := s.progress[sourceID]; ok {
		p.Status = domain.JobStatusCompleted
		p.ResumeFrame = nil
		p.LastCloseFrame = nil
		p.ErrorMessage = ""
		p.UpdatedAt = now
		s.progress[sourceID] = p
	}
	s.progressMu.Unlock()
	return nil
}

// ClearRuns deletes the detection facts and edits of a source before it is processed from scratch.
func (s *JobStore) ClearRuns(ctx context.Context, sourceID string) error {
	unlock := s.lock(sourceID)
	defer unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source_id = ?", sourceID).Delete(&domain.RunEdit{}).Error; err != nil {
			return err
		}
		return tx.Where("source_id = ?", sourceID).Delete(&domain.TextRun{}).Error
	})
	if err != nil {
		return conflict("clear runs", sourceID, err)
	}
	return nil
}

// ListJobs returns the most recently updated jobs first.
func (s *JobStore) ListJobs(ctx context.Context, limit, offset int) ([]domain.ExtractionJob, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []domain.ExtractionJob
	if err := s.db.WithContext(ctx).Order("updated_at DESC").Limit(limit).Offset(offset).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// ListByStatus returns jobs in any of the given statuses.
func (s *JobStore) ListByStatus(ctx context.Context, statuses ...domain.JobStatus) ([]domain.ExtractionJob, error) {
	var jobs []domain.ExtractionJob
	if err := s.db.WithContext(ctx).Where("status IN ?", statuses).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs by status: %w", err)
	}
	return jobs, nil
}

// CountRuns returns the number of detection facts stored for a source.
func (s *JobStore) CountRuns(ctx context.Context, sourceID string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&domain.TextRun{}).Where("source_id = ?", sourceID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count runs %s: %w", sourceID, err)
	}
	return n, nil
}
