package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type JobType string

const (
	JobTypeAnnual    JobType = "annual"
	JobTypeQuarterly JobType = "quarterly"
)

func ParseJobType(value string) (JobType, bool) {
	switch JobType(strings.ToLower(strings.TrimSpace(value))) {
	case JobTypeAnnual:
		return JobTypeAnnual, true
	case JobTypeQuarterly:
		return JobTypeQuarterly, true
	default:
		return "", false
	}
}

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition may leave the status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// UploadJob tracks one bulk-upload submission against the prediction
// platform, from local placeholder through upstream completion.
type UploadJob struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"user_id"`
	JobType              JobType    `json:"job_type"`
	Status               JobStatus  `json:"status"`
	OriginalFilename     string     `json:"original_filename"`
	FileSizeBytes        int64      `json:"file_size_bytes"`
	TotalRows            int        `json:"total_rows"`
	ProcessedRows        int        `json:"processed_rows"`
	SuccessfulRows       int        `json:"successful_rows"`
	FailedRows           int        `json:"failed_rows"`
	ProgressPercentage   int        `json:"progress_percentage"`
	TaskID               string     `json:"task_id,omitempty"`
	EstimatedTimeMinutes int        `json:"estimated_time_minutes,omitempty"`
	ErrorMessage         string     `json:"error_message,omitempty"`
	Placeholder          bool       `json:"-"`
	CreatedAt            time.Time  `json:"created_at"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

const placeholderIDPrefix = "local-"

// NewPlaceholderID mints a job id that is recognizably local. Placeholder
// ids are never sent upstream and never polled.
func NewPlaceholderID() string {
	return placeholderIDPrefix + uuid.NewString()
}

func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, placeholderIDPrefix)
}

// MapUpstreamStatus translates a status reported by the platform API into
// the tracked status. Unrecognized values keep the previous status so a
// tracked job never regresses on a garbled response.
func MapUpstreamStatus(reported string, previous JobStatus) JobStatus {
	switch JobStatus(strings.ToLower(strings.TrimSpace(reported))) {
	case JobStatusPending, JobStatusQueued:
		return JobStatusQueued
	case JobStatusProcessing:
		return JobStatusProcessing
	case JobStatusCompleted:
		return JobStatusCompleted
	case JobStatusFailed:
		return JobStatusFailed
	default:
		return previous
	}
}
