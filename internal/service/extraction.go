package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/textrun/internal/domain"
	"github.com/timmy/textrun/internal/download"
	"github.com/timmy/textrun/internal/export"
	"github.com/timmy/textrun/internal/logger"
	"github.com/timmy/textrun/internal/metrics"
	"github.com/timmy/textrun/internal/ocr"
	"github.com/timmy/textrun/internal/pipeline"
	"github.com/timmy/textrun/internal/repository"
	"github.com/timmy/textrun/internal/segment"
	"github.com/timmy/textrun/internal/video"
)

var (
	// ErrInvalidRequest is returned for malformed control requests.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrJobAlreadyRunning is returned when Start is called while a worker is active.
	ErrJobAlreadyRunning = errors.New("an extraction job is already running")
	// ErrNoActiveJob is returned when an operation needs a current job and none was started.
	ErrNoActiveJob = errors.New("no extraction job")
	// ErrInvalidResumeState marks stored progress that cannot be resumed from.
	// It is reported in the start response; the job then restarts from frame 0.
	ErrInvalidResumeState = errors.New("invalid resume state")
	// ErrStorageDisabled is returned by Publish when no object storage is configured.
	ErrStorageDisabled = errors.New("object storage is not configured")
)

// Resolver turns the URL of a start request into a local video file.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (string, error)
}

// VideoOpener opens a local video file for frame access.
type VideoOpener func(ctx context.Context, path string) (video.Source, error)

// OpenFFmpeg is the default VideoOpener.
func OpenFFmpeg(ctx context.Context, path string) (video.Source, error) {
	return video.Open(ctx, path)
}

// ExtractionConfig holds the pipeline defaults.
type ExtractionConfig struct {
	FrameStride         int
	ConfidenceThreshold float64
	MinTextDuration     float64
	TailSeconds         float64
	TailFrames          int64
}

// ExtractionService is the control surface for extraction jobs.
// At most one worker runs at a time; the control path reaches it only through the
// pipeline.Control gate and the job store.
type ExtractionService struct {
	store     *repository.JobStore
	detector  *ocr.Adapter
	resolver  Resolver
	open      VideoOpener
	events    *pipeline.EventBus
	publisher *export.Publisher
	logger    *logger.Logger
	cfg       ExtractionConfig

	mu      sync.Mutex
	active  *activeJob
	current string // source ID of the most recently started job
}

type activeJob struct {
	sourceID string
	jobID    string
	ctl      *pipeline.Control
	cancel   context.CancelFunc
	done     chan struct{}

	// statusMu orders pause/resume status writes against the worker's progress writes.
	statusMu sync.Mutex
}

// NewExtractionService creates a new extraction service. publisher may be nil.
func NewExtractionService(
	store *repository.JobStore,
	detector *ocr.Adapter,
	resolver Resolver,
	open VideoOpener,
	events *pipeline.EventBus,
	publisher *export.Publisher,
	log *logger.Logger,
	cfg *ExtractionConfig,
) *ExtractionService {
	if open == nil {
		open = OpenFFmpeg
	}
	if events == nil {
		events = pipeline.NewEventBus(0)
	}
	if log == nil {
		log = logger.GetDefault()
	}
	c := ExtractionConfig{
		FrameStride:         1,
		ConfidenceThreshold: 0.5,
		MinTextDuration:     segment.DefaultMinTextDuration,
	}
	if cfg != nil {
		c = *cfg
		if c.FrameStride < 1 {
			c.FrameStride = 1
		}
	}
	return &ExtractionService{
		store:     store,
		detector:  detector,
		resolver:  resolver,
		open:      open,
		events:    events,
		publisher: publisher,
		logger:    log,
		cfg:       c,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *ExtractionService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Events exposes the progress event bus.
func (s *ExtractionService) Events() *pipeline.EventBus {
	return s.events
}

// StartRequest starts or resumes extraction for one video.
// Nil FrameStride and ConfidenceThreshold fall back to the configured defaults.
type StartRequest struct {
	URL                 string   `json:"url" binding:"required"`
	FrameStride         *int     `json:"frame_stride,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	Episode             int      `json:"episode,omitempty"`
	// Restart ignores stored progress and processes the video from frame 0.
	Restart bool `json:"restart,omitempty"`
}

// StartResponse describes the job the worker was started for.
type StartResponse struct {
	SourceID    string           `json:"source_id"`
	JobID       string           `json:"job_id"`
	Status      domain.JobStatus `json:"status"`
	Resumed     bool             `json:"resumed"`
	StartFrame  int64            `json:"start_frame"`
	FrameStride int              `json:"frame_stride"`
	Threshold   float64          `json:"confidence_threshold"`
	Warning     string           `json:"warning,omitempty"`
}

// JobState is the last known status of a job as seen by the control path.
type JobState struct {
	SourceID string           `json:"source_id,omitempty"`
	Status   domain.JobStatus `json:"status"`
	Progress domain.Progress  `json:"progress"`
	Percent  float64          `json:"percent"`
	Active   bool             `json:"active"`
}

// ProgressResponse is a poll result: the job state plus runs written after the caller's cursor.
type ProgressResponse struct {
	JobState
	NewRuns []domain.Run `json:"new_runs"`
	LastSeq int64        `json:"last_seq"`
}

// resumePoint is where a worker starts walking and the segmentation state it restores.
type resumePoint struct {
	startFrame int64
	snapshot   segment.Snapshot
	processed  int64
	resumed    bool
}

func (r StartRequest) validate(defaults ExtractionConfig) (stride int, threshold float64, err error) {
	if strings.TrimSpace(r.URL) == "" {
		return 0, 0, fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}
	stride = defaults.FrameStride
	if r.FrameStride != nil {
		stride = *r.FrameStride
	}
	if stride < 1 {
		return 0, 0, fmt.Errorf("%w: frame_stride must be >= 1, got %d", ErrInvalidRequest, stride)
	}
	threshold = defaults.ConfidenceThreshold
	if r.ConfidenceThreshold != nil {
		threshold = *r.ConfidenceThreshold
	}
	if threshold < 0 || threshold > 1 {
		return 0, 0, fmt.Errorf("%w: confidence_threshold must be in [0, 1], got %g", ErrInvalidRequest, threshold)
	}
	if r.Episode < 0 {
		return 0, 0, fmt.Errorf("%w: episode must not be negative", ErrInvalidRequest)
	}
	return stride, threshold, nil
}

// Start validates the request, creates or resumes the job for the URL's source ID and launches
// the worker. A job that was paused, cancelled or interrupted resumes at its stored position with
// the stride and threshold it was created with.
func (s *ExtractionService) Start(ctx context.Context, req StartRequest) (*StartResponse, error) {
	stride, threshold, err := req.validate(s.cfg)
	if err != nil {
		return nil, err
	}
	url := strings.TrimSpace(req.URL)
	sourceID, err := download.SourceID(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return nil, fmt.Errorf("%w: %s", ErrJobAlreadyRunning, s.active.sourceID)
	}

	jobID := uuid.New().String()
	ctx = logger.SetJobID(logger.SetSourceID(ctx, sourceID), jobID)

	existing, err := s.store.FindJob(ctx, sourceID)
	if err != nil && !errors.Is(err, repository.ErrJobNotFound) {
		return nil, err
	}

	resp := &StartResponse{SourceID: sourceID, JobID: jobID}
	var job *domain.ExtractionJob
	var point resumePoint

	if existing != nil && !req.Restart && existing.Status != domain.JobStatusCompleted {
		point, err = resumeFrom(existing)
		if err != nil {
			resp.Warning = err.Error()
			s.log(ctx).WithError(err).Warn("Stored progress is not resumable, restarting from frame 0")
			s.events.Publish(pipeline.Event{SourceID: sourceID, Type: pipeline.EventTypeError, Message: err.Error()})
			point = resumePoint{}
		}
		job = existing
		if job.FrameStride < 1 || job.ConfidenceThreshold < 0 || job.ConfidenceThreshold > 1 {
			job.FrameStride = stride
			job.ConfidenceThreshold = threshold
		} else if job.FrameStride != stride || job.ConfidenceThreshold != threshold {
			s.log(ctx).Warnf("Keeping stored job settings: frame_stride=%d confidence_threshold=%g",
				job.FrameStride, job.ConfidenceThreshold)
		}
	} else {
		job = &domain.ExtractionJob{
			SourceID:            sourceID,
			FrameStride:         stride,
			ConfidenceThreshold: threshold,
		}
		if existing != nil {
			job.CreatedAt = existing.CreatedAt
			job.Episode = existing.Episode
			if err := s.store.ClearRuns(ctx, sourceID); err != nil {
				return nil, err
			}
		}
	}
	job.OriginURL = url
	if req.Episode > 0 {
		job.Episode = req.Episode
	}
	job.Status = domain.JobStatusDownloading
	job.ErrorMessage = ""
	job.CompletedAt = nil
	job.ResumeFrame = domain.Int64Ptr(point.startFrame)
	job.LastCloseFrame = point.snapshot.LastCloseFrame
	job.ProcessedFrameCount = point.processed
	if !point.resumed {
		job.CursorFrame = nil
		job.LastTimestamp = 0
	}

	if err := s.store.UpsertJob(ctx, job); err != nil {
		return nil, err
	}

	workerCtx, cancel := context.WithCancel(logger.Detach(ctx))
	workerCtx = logger.SetComponent(workerCtx, "extraction")
	aj := &activeJob{
		sourceID: sourceID,
		jobID:    jobID,
		ctl:      pipeline.NewControl(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.active = aj
	s.current = sourceID

	s.events.Publish(pipeline.Event{SourceID: sourceID, Type: pipeline.EventTypeStatus, Status: job.Status})
	s.log(ctx).WithFields(logger.Fields{
		"url":          url,
		"frame_stride": job.FrameStride,
		"threshold":    job.ConfidenceThreshold,
		"resumed":      point.resumed,
		"start_frame":  point.startFrame,
	}).Info("Starting extraction")

	go s.run(workerCtx, aj, job, point)

	resp.Status = job.Status
	resp.Resumed = point.resumed
	resp.StartFrame = point.startFrame
	resp.FrameStride = job.FrameStride
	resp.Threshold = job.ConfidenceThreshold
	return resp, nil
}

// resumeFrom validates the stored position of an unfinished job.
func resumeFrom(job *domain.ExtractionJob) (resumePoint, error) {
	if job.ResumeFrame == nil {
		if job.CursorFrame != nil {
			return resumePoint{}, fmt.Errorf("%w: %s has a cursor but no resume frame", ErrInvalidResumeState, job.SourceID)
		}
		// Never reached a frame; nothing to resume.
		return resumePoint{}, nil
	}
	start := *job.ResumeFrame
	if job.TotalFrameCount > 0 && start > job.TotalFrameCount && start < job.TotalFrameCount+int64(job.FrameStride) {
		// The sampled frame after the last one; nothing is left to walk.
		start = job.TotalFrameCount
	}
	if start < 0 || (job.TotalFrameCount > 0 && start > job.TotalFrameCount) {
		return resumePoint{}, fmt.Errorf("%w: %s resume frame %d outside [0, %d]",
			ErrInvalidResumeState, job.SourceID, start, job.TotalFrameCount)
	}
	if job.LastCloseFrame != nil && *job.LastCloseFrame > start {
		return resumePoint{}, fmt.Errorf("%w: %s last close frame %d after resume frame %d",
			ErrInvalidResumeState, job.SourceID, *job.LastCloseFrame, start)
	}
	if job.FrameStride < 1 {
		return resumePoint{}, fmt.Errorf("%w: %s stored frame_stride %d", ErrInvalidResumeState, job.SourceID, job.FrameStride)
	}
	var snap segment.Snapshot
	if job.LastCloseFrame != nil {
		snap.LastCloseFrame = domain.Int64Ptr(*job.LastCloseFrame)
	}
	return resumePoint{
		startFrame: start,
		snapshot:   snap,
		processed:  job.ProcessedFrameCount,
		resumed:    start > 0 || job.CursorFrame != nil,
	}, nil
}

// Pause clears the gate of the running job. Only a job in the processing stage can be paused;
// otherwise the last known state is returned unchanged.
func (s *ExtractionService) Pause(ctx context.Context) (*JobState, error) {
	aj := s.activeJob()
	if aj == nil {
		return s.State(ctx, "")
	}
	aj.statusMu.Lock()
	defer aj.statusMu.Unlock()

	p, ok := s.store.Progress(aj.sourceID)
	if ok && p.Status == domain.JobStatusProcessing && aj.ctl.Pause() {
		p.Status = domain.JobStatusPaused
		if _, err := s.store.UpdateProgress(ctx, aj.sourceID, p); err != nil {
			s.log(ctx).WithError(err).Warn("Failed to persist paused status")
		}
		s.events.Publish(pipeline.Event{SourceID: aj.sourceID, Type: pipeline.EventTypeStatus, Status: p.Status})
		logger.CtxInfo(ctx, "Paused extraction of %s", aj.sourceID)
	}
	return s.State(ctx, aj.sourceID)
}

// Resume sets the gate of a paused job.
func (s *ExtractionService) Resume(ctx context.Context) (*JobState, error) {
	aj := s.activeJob()
	if aj == nil {
		return s.State(ctx, "")
	}
	aj.statusMu.Lock()
	defer aj.statusMu.Unlock()

	if aj.ctl.Resume() {
		p, _ := s.store.Progress(aj.sourceID)
		if p.Status == domain.JobStatusPaused {
			p.Status = domain.JobStatusProcessing
			if _, err := s.store.UpdateProgress(ctx, aj.sourceID, p); err != nil {
				s.log(ctx).WithError(err).Warn("Failed to persist resumed status")
			}
			s.events.Publish(pipeline.Event{SourceID: aj.sourceID, Type: pipeline.EventTypeStatus, Status: p.Status})
		}
		logger.CtxInfo(ctx, "Resumed extraction of %s", aj.sourceID)
	}
	return s.State(ctx, aj.sourceID)
}

// Cancel raises the cancellation flag. The worker closes the open run, persists it and sets the
// job to cancelled at its next per-frame check.
func (s *ExtractionService) Cancel(ctx context.Context) (*JobState, error) {
	aj := s.activeJob()
	if aj == nil {
		return s.State(ctx, "")
	}
	aj.ctl.Cancel()
	logger.CtxInfo(ctx, "Cancellation requested for %s", aj.sourceID)
	return s.State(ctx, aj.sourceID)
}

// Wait blocks until the active worker, if any, has exited.
func (s *ExtractionService) Wait(ctx context.Context) error {
	aj := s.activeJob()
	if aj == nil {
		return nil
	}
	select {
	case <-aj.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels the active worker and waits for it to persist its position.
func (s *ExtractionService) Shutdown(ctx context.Context) error {
	aj := s.activeJob()
	if aj == nil {
		return nil
	}
	aj.ctl.Cancel()
	err := s.Wait(ctx)
	aj.cancel()
	return err
}

// Recover marks jobs left active by a previous process as cancelled so they can be resumed.
func (s *ExtractionService) Recover(ctx context.Context) (int, error) {
	jobs, err := s.store.ListByStatus(ctx, domain.ActiveStatuses()...)
	if err != nil {
		return 0, err
	}
	for i := range jobs {
		p := domain.ProgressOf(&jobs[i])
		p.Status = domain.JobStatusCancelled
		if _, err := s.store.UpdateProgress(ctx, jobs[i].SourceID, p); err != nil {
			return i, err
		}
		logger.CtxWarn(ctx, "Recovered interrupted job %s at frame %v", jobs[i].SourceID, jobs[i].CursorLabel())
	}
	return len(jobs), nil
}

func (s *ExtractionService) activeJob() *activeJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *ExtractionService) resolveSource(sourceID string) (string, error) {
	if sourceID != "" {
		return sourceID, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == "" {
		return "", ErrNoActiveJob
	}
	return s.current, nil
}

// State returns the last known state of a job; an empty sourceID means the current job.
// Without any job the state is idle.
func (s *ExtractionService) State(ctx context.Context, sourceID string) (*JobState, error) {
	sourceID, err := s.resolveSource(sourceID)
	if errors.Is(err, ErrNoActiveJob) {
		return &JobState{Status: domain.JobStatusIdle, Progress: domain.Progress{Status: domain.JobStatusIdle}}, nil
	}

	p, ok := s.store.Progress(sourceID)
	if !ok {
		job, err := s.store.FindJob(ctx, sourceID)
		if err != nil {
			return nil, err
		}
		p = domain.ProgressOf(job)
	}
	aj := s.activeJob()
	return &JobState{
		SourceID: sourceID,
		Status:   p.Status,
		Progress: p,
		Percent:  p.Percent(),
		Active:   aj != nil && aj.sourceID == sourceID,
	}, nil
}

// GetProgress returns the current job state and the runs whose start frame is after lastFrame.
// A nil lastFrame returns every run.
func (s *ExtractionService) GetProgress(ctx context.Context, sourceID string, lastFrame *int64) (*ProgressResponse, error) {
	state, err := s.State(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	resp := &ProgressResponse{JobState: *state, NewRuns: []domain.Run{}, LastSeq: s.events.LastSeq()}
	if state.SourceID == "" {
		return resp, nil
	}
	runs, err := s.store.GetRunsSince(ctx, state.SourceID, lastFrame)
	if err != nil {
		return nil, err
	}
	resp.NewRuns = runs
	return resp, nil
}

// EditRun applies a partial user edit to the run starting at frameLabel.
func (s *ExtractionService) EditRun(ctx context.Context, sourceID, frameLabel string, text *string, deleted *bool) (*domain.Run, error) {
	if strings.TrimSpace(frameLabel) == "" {
		return nil, fmt.Errorf("%w: frame label is required", ErrInvalidRequest)
	}
	if text == nil && deleted == nil {
		return nil, fmt.Errorf("%w: nothing to edit", ErrInvalidRequest)
	}
	sourceID, err := s.resolveSource(sourceID)
	if err != nil {
		return nil, err
	}
	run, err := s.store.EditRun(ctx, sourceID, frameLabel, text, deleted)
	if err != nil {
		return nil, err
	}
	logger.With(logger.Fields{
		logger.FieldSourceID: sourceID,
		"frame_label":        frameLabel,
	}).Info(ctx, "Run edited")
	return run, nil
}

// ExportResult holds the export records of one job.
type ExportResult struct {
	SourceID string           `json:"source_id"`
	Status   domain.JobStatus `json:"status"`
	Records  []export.Record  `json:"records"`
}

// Export renders the job's runs with edits applied. currentOnly limits the output to runs that
// start at or before the last processed frame.
func (s *ExtractionService) Export(ctx context.Context, sourceID string, currentOnly bool) (*ExportResult, error) {
	sourceID, err := s.resolveSource(sourceID)
	if err != nil {
		return nil, err
	}
	job, runs, err := s.store.GetJob(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	opts := export.Options{
		Episode:     job.Episode,
		TailSeconds: s.cfg.TailSeconds,
		TailFrames:  s.cfg.TailFrames,
	}
	if currentOnly {
		cursor := job.CursorFrame
		if p, ok := s.store.Progress(sourceID); ok {
			cursor = p.CursorFrame
		}
		if cursor == nil {
			cursor = domain.Int64Ptr(-1)
		}
		opts.UpToFrame = cursor
	}
	return &ExportResult{SourceID: sourceID, Status: job.Status, Records: export.Build(runs, opts)}, nil
}

// PublishResult lists the uploaded export objects.
type PublishResult struct {
	SourceID string            `json:"source_id"`
	CSV      *export.Published `json:"csv"`
	SRT      *export.Published `json:"srt"`
}

// Publish uploads the CSV and SRT exports of a job to object storage.
func (s *ExtractionService) Publish(ctx context.Context, sourceID string, currentOnly bool) (*PublishResult, error) {
	if s.publisher == nil {
		return nil, ErrStorageDisabled
	}
	res, err := s.Export(ctx, sourceID, currentOnly)
	if err != nil {
		return nil, err
	}
	csvObj, err := s.publisher.PublishCSV(ctx, res.SourceID, res.Records)
	if err != nil {
		return nil, err
	}
	srtObj, err := s.publisher.PublishSRT(ctx, res.SourceID, res.Records)
	if err != nil {
		return nil, err
	}
	return &PublishResult{SourceID: res.SourceID, CSV: csvObj, SRT: srtObj}, nil
}

// ListJobs returns stored jobs, most recently updated first.
func (s *ExtractionService) ListJobs(ctx context.Context, limit, offset int) ([]domain.ExtractionJob, error) {
	return s.store.ListJobs(ctx, limit, offset)
}

// stageTimer observes a pipeline stage duration.
func stageTimer(stage string) func() {
	start := time.Now()
	return func() {
		metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
