package domain

import "time"

// JobStatus represents the status of an extraction job.
// Values include JobStatusIdle, JobStatusDownloading, JobStatusExtracting, JobStatusProcessing,
// JobStatusPaused, JobStatusCompleted, JobStatusCancelled, and JobStatusError.
type JobStatus string

const (
	JobStatusIdle        JobStatus = "idle"
	JobStatusDownloading JobStatus = "downloading"
	JobStatusExtracting  JobStatus = "extracting"
	JobStatusProcessing  JobStatus = "processing"
	JobStatusPaused      JobStatus = "paused"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusCancelled   JobStatus = "cancelled"
	JobStatusError       JobStatus = "error"
)

// IsTerminal reports whether the status ends a job's active lifetime.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCancelled, JobStatusError:
		return true
	default:
		return false
	}
}

// IsActive reports whether a worker is expected to be driving the job.
func (s JobStatus) IsActive() bool {
	switch s {
	case JobStatusDownloading, JobStatusExtracting, JobStatusProcessing, JobStatusPaused:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a job may move from one status to another. A finished job
// only leaves its terminal status when it is started again.
func CanTransition(from, to JobStatus) bool {
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return to == JobStatusDownloading || to == JobStatusIdle
	}
	switch from {
	case JobStatusIdle:
		return to == JobStatusDownloading
	case JobStatusDownloading:
		return to == JobStatusExtracting || to == JobStatusError || to == JobStatusCancelled
	case JobStatusExtracting:
		return to == JobStatusProcessing || to == JobStatusError || to == JobStatusCancelled
	case JobStatusProcessing:
		return to == JobStatusPaused || to == JobStatusCompleted || to == JobStatusError || to == JobStatusCancelled
	case JobStatusPaused:
		return to == JobStatusProcessing || to == JobStatusError || to == JobStatusCancelled
	default:
		return false
	}
}

// ActiveStatuses lists the statuses for which IsActive is true.
func ActiveStatuses() []JobStatus {
	var out []JobStatus
	for _, s := range []JobStatus{
		JobStatusIdle, JobStatusDownloading, JobStatusExtracting, JobStatusProcessing,
		JobStatusPaused, JobStatusCompleted, JobStatusCancelled, JobStatusError,
	} {
		if s.IsActive() {
			out = append(out, s)
		}
	}
	return out
}

// ExtractionJob is the persisted progress of one video, keyed by its canonical source ID.
// FrameStride and ConfidenceThreshold are captured when the job is created and do not change
// while the job is resumable.
type ExtractionJob struct {
	SourceID            string     `gorm:"type:text;primaryKey" json:"source_id"`
	OriginURL           string     `gorm:"type:text;not null" json:"origin_url"`
	Status              JobStatus  `gorm:"type:text;not null;index:idx_extraction_jobs_status;default:idle" json:"status"`
	FrameStride         int        `gorm:"not null" json:"frame_stride"`
	ConfidenceThreshold float64    `gorm:"not null" json:"confidence_threshold"`
	Episode             int        `gorm:"default:0" json:"episode"`
	FPS                 float64    `gorm:"default:0" json:"fps"`
	CursorFrame         *int64     `json:"cursor_frame,omitempty"`
	ResumeFrame         *int64     `json:"resume_frame,omitempty"`
	LastCloseFrame      *int64     `json:"last_close_frame,omitempty"`
	TotalFrameCount     int64      `gorm:"default:0" json:"total_frame_count"`
	ProcessedFrameCount int64      `gorm:"default:0" json:"processed_frame_count"`
	LastTimestamp       float64    `gorm:"default:0" json:"last_timestamp"`
	ErrorMessage        string     `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

// TableName returns the database table name for ExtractionJob.
func (ExtractionJob) TableName() string {
	return "extraction_jobs"
}

// CursorLabel returns the display label of the last processed frame, or "" before any frame.
func (j *ExtractionJob) CursorLabel() string {
	if j.CursorFrame == nil {
		return ""
	}
	return FrameLabel(*j.CursorFrame)
}

// Progress is the mutable part of a job that the worker reports after each sampled frame.
type Progress struct {
	Status              JobStatus `json:"status"`
	CursorFrame         *int64    `json:"cursor_frame,omitempty"`
	CursorLabel         string    `json:"cursor_label,omitempty"`
	ResumeFrame         *int64    `json:"resume_frame,omitempty"`
	LastCloseFrame      *int64    `json:"last_close_frame,omitempty"`
	TotalFrameCount     int64     `json:"total_frame_count"`
	ProcessedFrameCount int64     `json:"processed_frame_count"`
	LastTimestamp       float64   `json:"last_timestamp"`
	ErrorMessage        string    `json:"error_message,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Percent returns processed/total as a percentage, or 0 when the total is unknown.
func (p Progress) Percent() float64 {
	if p.TotalFrameCount <= 0 {
		return 0
	}
	return float64(p.ProcessedFrameCount) / float64(p.TotalFrameCount) * 100
}

// ProgressOf snapshots the progress fields of a job.
func ProgressOf(j *ExtractionJob) Progress {
	return Progress{
		Status:              j.Status,
		CursorFrame:         copyInt64(j.CursorFrame),
		CursorLabel:         j.CursorLabel(),
		ResumeFrame:         copyInt64(j.ResumeFrame),
		LastCloseFrame:      copyInt64(j.LastCloseFrame),
		TotalFrameCount:     j.TotalFrameCount,
		ProcessedFrameCount: j.ProcessedFrameCount,
		LastTimestamp:       j.LastTimestamp,
		ErrorMessage:        j.ErrorMessage,
		UpdatedAt:           j.UpdatedAt,
	}
}

// Clone returns a deep copy so readers never share pointers with the writer.
func (p Progress) Clone() Progress {
	p.CursorFrame = copyInt64(p.CursorFrame)
	p.ResumeFrame = copyInt64(p.ResumeFrame)
	p.LastCloseFrame = copyInt64(p.LastCloseFrame)
	return p
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}
