package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/finsight/riskdash-back/internal/domain"
)

var ErrNotFound = errors.New("resource not found")

// UploadJobsRepository is the tracker's backing store. Placeholder jobs
// live here too, so a submission is visible to the UI before the platform
// acknowledges it.
type UploadJobsRepository interface {
	Create(ctx context.Context, job *domain.UploadJob) error
	Update(ctx context.Context, job *domain.UploadJob) error
	Get(ctx context.Context, jobID string) (*domain.UploadJob, error)
	Delete(ctx context.Context, jobID string) error
	ListByUser(ctx context.Context, userID string) ([]domain.UploadJob, error)
}

// MemoryUploadJobsRepository stores jobs in memory. It is the default when
// no database is configured.
type MemoryUploadJobsRepository struct {
	mu   sync.RWMutex
	jobs map[string]*domain.UploadJob
}

func NewMemoryUploadJobsRepository() *MemoryUploadJobsRepository {
	return &MemoryUploadJobsRepository{
		jobs: make(map[string]*domain.UploadJob),
	}
}

func (r *MemoryUploadJobsRepository) Create(_ context.Context, job *domain.UploadJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *MemoryUploadJobsRepository) Update(_ context.Context, job *domain.UploadJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *MemoryUploadJobsRepository) Get(_ context.Context, jobID string) (*domain.UploadJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func (r *MemoryUploadJobsRepository) Delete(_ context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[jobID]; !ok {
		return ErrNotFound
	}
	delete(r.jobs, jobID)
	return nil
}

func (r *MemoryUploadJobsRepository) ListByUser(_ context.Context, userID string) ([]domain.UploadJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]domain.UploadJob, 0)
	for _, job := range r.jobs {
		if job.UserID != userID {
			continue
		}
		items = append(items, *cloneJob(job))
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func cloneJob(job *domain.UploadJob) *domain.UploadJob {
	if job == nil {
		return nil
	}
	clone := *job
	if job.StartedAt != nil {
		startedAt := *job.StartedAt
		clone.StartedAt = &startedAt
	}
	if job.CompletedAt != nil {
		completedAt := *job.CompletedAt
		clone.CompletedAt = &completedAt
	}
	return &clone
}
