package platform

import (
	"context"
	"io"
	"time"

	"github.com/finsight/riskdash-back/internal/domain"
)

// UploadSubmission is the payload for a bulk-upload request.
type UploadSubmission struct {
	UserID   string
	JobType  domain.JobType
	Filename string
	Size     int64
	Content  io.Reader
}

// UploadAck is the platform's acknowledgement of a bulk upload.
type UploadAck struct {
	JobID                string `json:"job_id"`
	TaskID               string `json:"task_id,omitempty"`
	EstimatedTimeMinutes int    `json:"estimated_time_minutes,omitempty"`
	TotalRows            int    `json:"total_rows,omitempty"`
}

// JobRecord is a bulk-upload job as reported by the platform. The list
// endpoint is the authoritative source; the single-job endpoint is
// documented as potentially stale.
type JobRecord struct {
	JobID              string     `json:"job_id"`
	Status             string     `json:"status"`
	TotalRows          int        `json:"total_rows"`
	ProcessedRows      int        `json:"processed_rows"`
	SuccessfulRows     int        `json:"successful_rows"`
	FailedRows         int        `json:"failed_rows"`
	ProgressPercentage *int       `json:"progress_percentage,omitempty"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

type ListJobsQuery struct {
	UserID string
	Limit  int
	Offset int
}

// Scope selects which prediction endpoint a fetch goes to: the
// user-entitled set (personal + organization records) or the
// platform-wide system set. They differ in authorization rules and
// expected volume.
type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeSystem Scope = "system"
)

// PredictionQuery selects one page of predictions for one scope and period
// type. The acting user is passed explicitly; the platform trusts this
// service.
type PredictionQuery struct {
	Scope          Scope
	PeriodType     domain.PeriodType
	UserID         string
	OrganizationID string
	TenantID       string
	Page           int
	Size           int
}

type PredictionPage struct {
	Items []domain.Prediction `json:"items"`
	Total int                 `json:"total"`
	Pages int                 `json:"pages"`
}

type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client is the surface of the prediction platform consumed by this
// service. Implementations live in this package; tests substitute fakes.
type Client interface {
	SubmitBulkUpload(ctx context.Context, submission UploadSubmission) (UploadAck, error)
	ListJobs(ctx context.Context, query ListJobsQuery) ([]JobRecord, error)
	GetJobStatus(ctx context.Context, jobID string) (JobRecord, error)
	CancelJob(ctx context.Context, jobID string) error
	DeleteJob(ctx context.Context, jobID string) error
	FetchPredictions(ctx context.Context, query PredictionQuery) (PredictionPage, error)
	CreatePrediction(ctx context.Context, prediction domain.Prediction) (domain.Prediction, error)
	DeletePrediction(ctx context.Context, id string) error
	ListTenantOrganizations(ctx context.Context, tenantID string) ([]Organization, error)
}
