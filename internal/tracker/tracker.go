// Package tracker manages the lifecycle of bulk-upload jobs: placeholder
// on submit, promotion to the upstream id, a poll loop against the
// platform's job list, and explicit cancel/delete.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finsight/riskdash-back/internal/domain"
	"github.com/finsight/riskdash-back/internal/events"
	"github.com/finsight/riskdash-back/internal/platform"
	"github.com/finsight/riskdash-back/internal/repository"
)

var (
	ErrNotCancellable = errors.New("job can only be cancelled while processing")
	ErrJobProcessing  = errors.New("a processing job cannot be deleted")
)

type Config struct {
	// PollInterval is the fixed spacing between status checks. There is no
	// backoff: the platform's list endpoint is cheap and the loop is short
	// lived.
	PollInterval time.Duration
	// MissingGrace bounds how long a job may be absent from the list
	// before the tracker declares it failed instead of polling forever.
	MissingGrace time.Duration
	ListLimit    int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 1500 * time.Millisecond
	}
	if c.MissingGrace <= 0 {
		c.MissingGrace = 2 * time.Minute
	}
	if c.ListLimit <= 0 {
		c.ListLimit = 50
	}
	return c
}

// Tracker follows one user's upload jobs. Instances are independent; the
// session registry hands one to each principal.
type Tracker struct {
	client    platform.Client
	repo      repository.UploadJobsRepository
	publisher events.Publisher
	logger    *zap.Logger
	userID    string
	cfg       Config

	mu      sync.Mutex
	polling bool
	stop    chan struct{}
}

func New(
	userID string,
	client platform.Client,
	repo repository.UploadJobsRepository,
	publisher events.Publisher,
	logger *zap.Logger,
	cfg Config,
) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		client:    client,
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		userID:    userID,
		cfg:       cfg.withDefaults(),
	}
}

type SubmitInput struct {
	Filename  string
	SizeBytes int64
	JobType   domain.JobType
	Content   io.Reader
}

// Submit records a placeholder job so the submission is immediately
// visible, then hands the file to the platform. On success the placeholder
// is swapped for the server-assigned job and polling starts; on failure no
// job record remains.
func (t *Tracker) Submit(ctx context.Context, input SubmitInput) (*domain.UploadJob, error) {
	now := time.Now().UTC()
	placeholder := &domain.UploadJob{
		ID:               domain.NewPlaceholderID(),
		UserID:           t.userID,
		JobType:          input.JobType,
		Status:           domain.JobStatusPending,
		OriginalFilename: input.Filename,
		FileSizeBytes:    input.SizeBytes,
		Placeholder:      true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := t.repo.Create(ctx, placeholder); err != nil {
		return nil, fmt.Errorf("record placeholder job: %w", err)
	}

	ack, err := t.client.SubmitBulkUpload(ctx, platform.UploadSubmission{
		UserID:   t.userID,
		JobType:  input.JobType,
		Filename: input.Filename,
		Size:     input.SizeBytes,
		Content:  input.Content,
	})
	if err != nil {
		_ = t.repo.Delete(ctx, placeholder.ID)
		return nil, fmt.Errorf("submit upload: %w", err)
	}

	job := &domain.UploadJob{
		ID:                   ack.JobID,
		UserID:               t.userID,
		JobType:              input.JobType,
		Status:               domain.JobStatusQueued,
		OriginalFilename:     input.Filename,
		FileSizeBytes:        input.SizeBytes,
		TotalRows:            ack.TotalRows,
		TaskID:               ack.TaskID,
		EstimatedTimeMinutes: ack.EstimatedTimeMinutes,
		CreatedAt:            now,
		UpdatedAt:            time.Now().UTC(),
	}
	if err := t.repo.Delete(ctx, placeholder.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		t.logger.Warn("failed to drop placeholder job", zap.String("job_id", placeholder.ID), zap.Error(err))
	}
	if err := t.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("record upload job: %w", err)
	}

	t.publishJob(ctx, events.KindJobUpdated, job)
	t.StartPolling(job.ID)
	return job, nil
}

// StartPolling begins the poll loop for a job. Only one loop runs per
// tracker; a second call while one is active is a no-op. Placeholder ids
// are never polled.
func (t *Tracker) StartPolling(jobID string) {
	if domain.IsPlaceholderID(jobID) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.polling {
		return
	}
	t.polling = true
	t.stop = make(chan struct{})
	go t.pollLoop(jobID, t.stop)
}

// StopPolling halts the active loop, if any. The in-flight status request
// is not interrupted; the loop simply does not schedule another tick.
func (t *Tracker) StopPolling() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.polling {
		return
	}
	close(t.stop)
	t.polling = false
}

func (t *Tracker) Polling() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.polling
}

func (t *Tracker) pollLoop(jobID string, stop chan struct{}) {
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if done := t.pollOnce(jobID); done {
				t.mu.Lock()
				if t.stop == stop {
					t.polling = false
				}
				t.mu.Unlock()
				return
			}
		}
	}
}

// pollOnce reads the authoritative job list and applies the matching
// record. It returns true when polling should stop. Transient errors are
// logged and tolerated; only a terminal status or the missing-job grace
// period ends the loop.
func (t *Tracker) pollOnce(jobID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	job, err := t.repo.Get(ctx, jobID)
	if err != nil {
		// Deleted out from under the loop; nothing left to poll.
		return true
	}
	if job.Status.Terminal() {
		return true
	}

	records, err := t.client.ListJobs(ctx, platform.ListJobsQuery{
		UserID: t.userID,
		Limit:  t.cfg.ListLimit,
	})
	if err != nil {
		t.logger.Warn("poll tick failed", zap.String("job_id", jobID), zap.Error(err))
		return false
	}

	record, found := findRecord(records, jobID)
	if !found {
		if time.Since(job.CreatedAt) > t.cfg.MissingGrace {
			t.markFailed(ctx, job, "upload job is no longer reported by the platform")
			return true
		}
		return false
	}

	t.applyRecord(job, record)
	job.UpdatedAt = time.Now().UTC()
	if err := t.repo.Update(ctx, job); err != nil {
		t.logger.Warn("failed to persist poll update", zap.String("job_id", jobID), zap.Error(err))
		return false
	}

	switch {
	case job.Status == domain.JobStatusCompleted:
		t.publishJob(ctx, events.KindJobCompleted, job)
	case job.Status == domain.JobStatusFailed:
		t.publishJob(ctx, events.KindJobFailed, job)
	default:
		t.publishJob(ctx, events.KindJobUpdated, job)
	}
	return job.Status.Terminal()
}

// applyRecord folds an upstream record into the tracked job. A terminal
// local status is never overwritten (a cancelled job stays failed no
// matter what a late list read says); counters always update.
func (t *Tracker) applyRecord(job *domain.UploadJob, record platform.JobRecord) {
	job.TotalRows = record.TotalRows
	job.SuccessfulRows = record.SuccessfulRows
	job.FailedRows = record.FailedRows
	job.ProcessedRows = record.ProcessedRows
	if job.TotalRows > 0 && job.ProcessedRows > job.TotalRows {
		job.ProcessedRows = job.TotalRows
	}

	switch {
	case record.ProgressPercentage != nil:
		job.ProgressPercentage = clampPercent(*record.ProgressPercentage)
	case job.TotalRows > 0:
		job.ProgressPercentage = clampPercent(int(math.Round(
			float64(job.ProcessedRows) / float64(job.TotalRows) * 100,
		)))
	}

	if record.StartedAt != nil {
		job.StartedAt = record.StartedAt
	}
	if record.CompletedAt != nil {
		job.CompletedAt = record.CompletedAt
	}

	if job.Status.Terminal() {
		return
	}
	job.Status = domain.MapUpstreamStatus(record.Status, job.Status)
	if job.Status == domain.JobStatusFailed && record.ErrorMessage != "" {
		job.ErrorMessage = record.ErrorMessage
	}
	if job.Status == domain.JobStatusCompleted {
		job.ProgressPercentage = 100
	}
}

// Cancel is permitted only while the job is processing. On upstream
// success the job is locally failed with a fixed message, then counters
// are refreshed once from the list.
func (t *Tracker) Cancel(ctx context.Context, jobID string) error {
	job, err := t.getOwned(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusProcessing {
		return ErrNotCancellable
	}

	if err := t.client.CancelJob(ctx, jobID); err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}

	t.markFailed(ctx, job, "Cancelled by user")
	t.refreshCountersOnce(ctx, job)
	return nil
}

// Delete removes a non-processing job, locally only for placeholders, and
// only after the platform confirms for real jobs.
func (t *Tracker) Delete(ctx context.Context, jobID string) error {
	job, err := t.getOwned(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == domain.JobStatusProcessing {
		return ErrJobProcessing
	}

	if !job.Placeholder {
		if err := t.client.DeleteJob(ctx, jobID); err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
	}
	if err := t.repo.Delete(ctx, jobID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("drop job record: %w", err)
	}
	return nil
}

func (t *Tracker) Jobs(ctx context.Context) ([]domain.UploadJob, error) {
	return t.repo.ListByUser(ctx, t.userID)
}

func (t *Tracker) Job(ctx context.Context, jobID string) (*domain.UploadJob, error) {
	return t.getOwned(ctx, jobID)
}

func (t *Tracker) getOwned(ctx context.Context, jobID string) (*domain.UploadJob, error) {
	job, err := t.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != t.userID {
		return nil, repository.ErrNotFound
	}
	return job, nil
}

func (t *Tracker) markFailed(ctx context.Context, job *domain.UploadJob, message string) {
	now := time.Now().UTC()
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = message
	job.CompletedAt = &now
	job.UpdatedAt = now
	if err := t.repo.Update(ctx, job); err != nil {
		t.logger.Warn("failed to persist failure", zap.String("job_id", job.ID), zap.Error(err))
	}
	t.publishJob(ctx, events.KindJobFailed, job)
}

// refreshCountersOnce performs the single post-cancel status read. Only
// counters are taken; the status stays failed.
func (t *Tracker) refreshCountersOnce(ctx context.Context, job *domain.UploadJob) {
	records, err := t.client.ListJobs(ctx, platform.ListJobsQuery{
		UserID: t.userID,
		Limit:  t.cfg.ListLimit,
	})
	if err != nil {
		t.logger.Warn("final status refresh failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	record, found := findRecord(records, job.ID)
	if !found {
		return
	}
	t.applyRecord(job, record)
	job.UpdatedAt = time.Now().UTC()
	if err := t.repo.Update(ctx, job); err != nil {
		t.logger.Warn("failed to persist final refresh", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (t *Tracker) publishJob(ctx context.Context, kind events.Kind, job *domain.UploadJob) {
	if t.publisher == nil {
		return
	}
	err := t.publisher.Publish(ctx, events.Event{
		Kind:      kind,
		UserID:    t.userID,
		JobID:     job.ID,
		JobStatus: job.Status,
		Progress:  job.ProgressPercentage,
		Message:   job.ErrorMessage,
	})
	if err != nil {
		t.logger.Warn("failed to publish job event", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func findRecord(records []platform.JobRecord, jobID string) (platform.JobRecord, bool) {
	for _, record := range records {
		if record.JobID == jobID {
			return record, true
		}
	}
	return platform.JobRecord{}, false
}

func clampPercent(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
