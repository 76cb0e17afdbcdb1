package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	"github.com/iavendas62-collab/qubix-sub003/internal/core/port"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type jobRepository struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

// NewJobRepository creates a new postgres job repository
func NewJobRepository(db *pgxpool.Pool, log *zap.Logger) port.JobRepository {
	return &jobRepository{
		db:  db,
		log: log,
	}
}

const jobColumns = `id, owner_id, job_type, resource_class,
	vram_gb, compute_units, ram_gb, storage_gb,
	epochs, resolution, dataset_size,
	budget, status, progress, assigned_provider_id,
	estimated_cost, actual_cost, failure_reason, reassignment_count,
	created_at, started_at, completed_at`

func (r *jobRepository) Save(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
	_, err := r.db.Exec(ctx, query,
		job.ID, job.OwnerID, job.JobType, job.ResourceClass,
		job.Requirements.VramGB, job.Requirements.ComputeUnits, job.Requirements.RamGB, job.Requirements.StorageGB,
		job.Params.Epochs, job.Params.Resolution, job.Params.DatasetSize,
		job.Budget, job.Status, job.Progress, job.AssignedProviderID,
		job.EstimatedCost, job.ActualCost, job.FailureReason, job.ReassignmentCount,
		job.CreatedAt, nullableTime(job.StartedAt), nullableTime(job.CompletedAt))

	if err != nil {
		r.log.Error("Failed to save job", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	return nil
}

func (r *jobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

func (r *jobRepository) ListByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateIf writes the job only when stored status and progress still match
// the expected values; the WHERE clause is the optimistic concurrency check
func (r *jobRepository) UpdateIf(ctx context.Context, job *domain.Job, expectedStatus domain.JobStatus, expectedProgress int) (bool, error) {
	query := `
		UPDATE jobs SET
			status = $1, progress = $2, assigned_provider_id = $3,
			estimated_cost = $4, actual_cost = $5, failure_reason = $6,
			reassignment_count = $7, started_at = $8, completed_at = $9
		WHERE id = $10 AND status = $11 AND progress = $12
	`
	tag, err := r.db.Exec(ctx, query,
		job.Status, job.Progress, job.AssignedProviderID,
		job.EstimatedCost, job.ActualCost, job.FailureReason,
		job.ReassignmentCount, nullableTime(job.StartedAt), nullableTime(job.CompletedAt),
		job.ID, expectedStatus, expectedProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job       domain.Job
		startedAt sql.NullTime
		doneAt    sql.NullTime
	)
	err := row.Scan(
		&job.ID, &job.OwnerID, &job.JobType, &job.ResourceClass,
		&job.Requirements.VramGB, &job.Requirements.ComputeUnits, &job.Requirements.RamGB, &job.Requirements.StorageGB,
		&job.Params.Epochs, &job.Params.Resolution, &job.Params.DatasetSize,
		&job.Budget, &job.Status, &job.Progress, &job.AssignedProviderID,
		&job.EstimatedCost, &job.ActualCost, &job.FailureReason, &job.ReassignmentCount,
		&job.CreatedAt, &startedAt, &doneAt)
	if err != nil {
		return nil, err
	}
	job.StartedAt = startedAt.Time
	job.CompletedAt = doneAt.Time
	return &job, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
