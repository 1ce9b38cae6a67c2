package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finsight/riskdash-back/internal/domain"
)

// PostgresUploadJobsRepository persists tracked upload jobs so they survive
// service restarts.
type PostgresUploadJobsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUploadJobsRepository(ctx context.Context, databaseURL string) (*PostgresUploadJobsRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresUploadJobsRepository{pool: pool}, nil
}

func (r *PostgresUploadJobsRepository) Close() {
	r.pool.Close()
}

func (r *PostgresUploadJobsRepository) Create(ctx context.Context, job *domain.UploadJob) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO upload_jobs (
			id,
			user_id,
			job_type,
			status,
			original_filename,
			file_size_bytes,
			total_rows,
			processed_rows,
			successful_rows,
			failed_rows,
			progress_percentage,
			task_id,
			estimated_time_minutes,
			error_message,
			placeholder,
			created_at,
			started_at,
			completed_at,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`,
		job.ID,
		job.UserID,
		string(job.JobType),
		string(job.Status),
		job.OriginalFilename,
		job.FileSizeBytes,
		job.TotalRows,
		job.ProcessedRows,
		job.SuccessfulRows,
		job.FailedRows,
		job.ProgressPercentage,
		job.TaskID,
		job.EstimatedTimeMinutes,
		job.ErrorMessage,
		job.Placeholder,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert upload job: %w", err)
	}
	return nil
}

func (r *PostgresUploadJobsRepository) Update(ctx context.Context, job *domain.UploadJob) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE upload_jobs
		SET status = $2,
			total_rows = $3,
			processed_rows = $4,
			successful_rows = $5,
			failed_rows = $6,
			progress_percentage = $7,
			error_message = $8,
			started_at = $9,
			completed_at = $10,
			updated_at = $11
		WHERE id = $1
	`,
		job.ID,
		string(job.Status),
		job.TotalRows,
		job.ProcessedRows,
		job.SuccessfulRows,
		job.FailedRows,
		job.ProgressPercentage,
		job.ErrorMessage,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update upload job: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresUploadJobsRepository) Get(ctx context.Context, jobID string) (*domain.UploadJob, error) {
	row := r.pool.QueryRow(ctx, selectJobColumns+` WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query upload job: %w", err)
	}
	return job, nil
}

func (r *PostgresUploadJobsRepository) Delete(ctx context.Context, jobID string) error {
	command, err := r.pool.Exec(ctx, `DELETE FROM upload_jobs WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete upload job: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresUploadJobsRepository) ListByUser(ctx context.Context, userID string) ([]domain.UploadJob, error) {
	rows, err := r.pool.Query(ctx, selectJobColumns+` WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list upload jobs: %w", err)
	}
	defer rows.Close()

	items := make([]domain.UploadJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan upload job: %w", err)
		}
		items = append(items, *job)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate upload jobs: %w", rows.Err())
	}
	return items, nil
}

const selectJobColumns = `
	SELECT id, user_id, job_type, status, original_filename, file_size_bytes,
		total_rows, processed_rows, successful_rows, failed_rows,
		progress_percentage, task_id, estimated_time_minutes, error_message,
		placeholder, created_at, started_at, completed_at, updated_at
	FROM upload_jobs`

func scanJob(row pgx.Row) (*domain.UploadJob, error) {
	var (
		job         domain.UploadJob
		jobType     string
		status      string
		createdAt   time.Time
		startedAt   *time.Time
		completedAt *time.Time
		updatedAt   time.Time
	)
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&jobType,
		&status,
		&job.OriginalFilename,
		&job.FileSizeBytes,
		&job.TotalRows,
		&job.ProcessedRows,
		&job.SuccessfulRows,
		&job.FailedRows,
		&job.ProgressPercentage,
		&job.TaskID,
		&job.EstimatedTimeMinutes,
		&job.ErrorMessage,
		&job.Placeholder,
		&createdAt,
		&startedAt,
		&completedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.JobType = domain.JobType(jobType)
	job.Status = domain.JobStatus(status)
	job.CreatedAt = createdAt
	job.StartedAt = startedAt
	job.CompletedAt = completedAt
	job.UpdatedAt = updatedAt
	return &job, nil
}
