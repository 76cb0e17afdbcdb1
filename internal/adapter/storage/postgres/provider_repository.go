package postgres

import (
	"context"
	"errors"

	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	"github.com/iavendas62-collab/qubix-sub003/internal/core/port"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type providerRepository struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

// NewProviderRepository creates a new postgres provider repository
func NewProviderRepository(db *pgxpool.Pool, log *zap.Logger) port.ProviderRepository {
	return &providerRepository{
		db:  db,
		log: log,
	}
}

const providerColumns = `id, owner_id, resource_class, vram_gb, compute_units, ram_gb,
	price_per_hour, online, available, current_job_id,
	total_jobs, total_failures, total_earnings, last_heartbeat`

func (r *providerRepository) Save(ctx context.Context, p *domain.Provider) error {
	query := `
		INSERT INTO providers (` + providerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			resource_class = EXCLUDED.resource_class,
			vram_gb = EXCLUDED.vram_gb,
			compute_units = EXCLUDED.compute_units,
			ram_gb = EXCLUDED.ram_gb,
			price_per_hour = EXCLUDED.price_per_hour,
			online = EXCLUDED.online,
			last_heartbeat = EXCLUDED.last_heartbeat
	`
	_, err := r.db.Exec(ctx, query,
		p.ID, p.OwnerID, p.ResourceClass, p.Capacity.VramGB, p.Capacity.ComputeUnits, p.Capacity.RamGB,
		p.PricePerHour, p.Online, p.Available, p.CurrentJobID,
		p.TotalJobs, p.TotalFailures, p.TotalEarnings, p.LastHeartbeat)

	if err != nil {
		r.log.Error("Failed to save provider", zap.String("provider_id", p.ID), zap.Error(err))
		return err
	}
	return nil
}

func (r *providerRepository) GetByID(ctx context.Context, id string) (*domain.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE id = $1`
	row := r.db.QueryRow(ctx, query, id)

	var p domain.Provider
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.ResourceClass, &p.Capacity.VramGB, &p.Capacity.ComputeUnits, &p.Capacity.RamGB,
		&p.PricePerHour, &p.Online, &p.Available, &p.CurrentJobID,
		&p.TotalJobs, &p.TotalFailures, &p.TotalEarnings, &p.LastHeartbeat)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Acquire claims the provider for a job only while it is still available.
// The conditional WHERE keeps concurrent assigns mutually exclusive:
// exactly one UPDATE matches.
func (r *providerRepository) Acquire(ctx context.Context, providerID, jobID string) (bool, error) {
	query := `
		UPDATE providers SET available = FALSE, current_job_id = $1
		WHERE id = $2 AND available = TRUE
	`
	tag, err := r.db.Exec(ctx, query, jobID, providerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *providerRepository) Release(ctx context.Context, providerID string, earnings float64, completed, failed bool) error {
	query := `
		UPDATE providers SET
			available = TRUE,
			current_job_id = '',
			total_jobs = total_jobs + CASE WHEN $2 THEN 1 ELSE 0 END,
			total_failures = total_failures + CASE WHEN $3 THEN 1 ELSE 0 END,
			total_earnings = total_earnings + $1
		WHERE id = $4
	`
	_, err := r.db.Exec(ctx, query, earnings, completed, failed, providerID)
	if err != nil {
		r.log.Error("Failed to release provider", zap.String("provider_id", providerID), zap.Error(err))
	}
	return err
}
