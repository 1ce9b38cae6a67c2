package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/finsight/riskdash-back/internal/domain"
)

func TestMemoryRepositoryRoundTrip(t *testing.T) {
	repo := NewMemoryUploadJobsRepository()
	ctx := context.Background()

	job := &domain.UploadJob{
		ID:     "job-1",
		UserID: "user-1",
		Status: domain.JobStatusQueued,
	}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	loaded, err := repo.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if loaded.Status != domain.JobStatusQueued {
		t.Fatalf("unexpected status %q", loaded.Status)
	}

	loaded.Status = domain.JobStatusProcessing
	if err := repo.Update(ctx, loaded); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	reloaded, _ := repo.Get(ctx, "job-1")
	if reloaded.Status != domain.JobStatusProcessing {
		t.Fatalf("update not persisted: %q", reloaded.Status)
	}

	if err := repo.Delete(ctx, "job-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := repo.Get(ctx, "job-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryRepositoryUpdateMissingJob(t *testing.T) {
	repo := NewMemoryUploadJobsRepository()
	err := repo.Update(context.Background(), &domain.UploadJob{ID: "ghost"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepositoryReturnsClones(t *testing.T) {
	repo := NewMemoryUploadJobsRepository()
	ctx := context.Background()

	startedAt := time.Now().UTC()
	job := &domain.UploadJob{ID: "job-1", UserID: "user-1", StartedAt: &startedAt}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first, _ := repo.Get(ctx, "job-1")
	first.Status = domain.JobStatusFailed
	*first.StartedAt = first.StartedAt.Add(time.Hour)

	second, _ := repo.Get(ctx, "job-1")
	if second.Status == domain.JobStatusFailed {
		t.Fatal("mutating a returned job leaked into the store")
	}
	if !second.StartedAt.Equal(startedAt) {
		t.Fatal("mutating a returned timestamp leaked into the store")
	}
}

func TestMemoryRepositoryListsOwnJobsNewestFirst(t *testing.T) {
	repo := NewMemoryUploadJobsRepository()
	ctx := context.Background()
	base := time.Now().UTC()

	jobs := []*domain.UploadJob{
		{ID: "old", UserID: "user-1", CreatedAt: base.Add(-2 * time.Hour)},
		{ID: "new", UserID: "user-1", CreatedAt: base},
		{ID: "other", UserID: "user-2", CreatedAt: base},
	}
	for _, job := range jobs {
		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	listed, err := repo.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(listed))
	}
	if listed[0].ID != "new" || listed[1].ID != "old" {
		t.Fatalf("wrong order: %q, %q", listed[0].ID, listed[1].ID)
	}
}
