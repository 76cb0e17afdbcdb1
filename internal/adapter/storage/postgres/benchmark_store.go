// Package postgres provides the pgx-backed repositories for jobs,
// providers, settlement transactions and benchmark samples.
package postgres

import (
	"context"

	postgresCfg "github.com/iavendas62-collab/qubix-sub003/config/storage/postgresql"
	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	"github.com/iavendas62-collab/qubix-sub003/internal/core/port"
	"go.uber.org/zap"
)

type benchmarkStore struct {
	db  *postgresCfg.DB
	log *zap.Logger
}

// NewBenchmarkStore creates the read-only benchmark lookup backed by the
// seeded benchmarks table
func NewBenchmarkStore(db *postgresCfg.DB, log *zap.Logger) port.BenchmarkStore {
	return &benchmarkStore{
		db:  db,
		log: log,
	}
}

func (s *benchmarkStore) Find(ctx context.Context, jobType domain.JobType, resourceClass string) ([]*domain.Benchmark, error) {
	query, args, err := s.db.QueryBuilder.
		Select("job_type", "resource_class", "measured_duration_seconds", "epochs", "resolution", "dataset_size").
		From("benchmarks").
		Where("job_type = ?", jobType).
		Where("resource_class = ?", resourceClass).
		OrderBy("measured_duration_seconds").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []*domain.Benchmark
	for rows.Next() {
		var b domain.Benchmark
		if err := rows.Scan(&b.JobType, &b.ResourceClass, &b.MeasuredDurationSeconds,
			&b.BaselineParams.Epochs, &b.BaselineParams.Resolution, &b.BaselineParams.DatasetSize); err != nil {
			return nil, err
		}
		samples = append(samples, &b)
	}
	return samples, rows.Err()
}
