// Package port provides behavior interfaces that connect core services to
// storage, messaging and the value-transfer network.
package port

import (
	"context"
	"time"

	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
)

// JobRepository defines how jobs are persisted
type JobRepository interface {
	Save(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	ListByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error)
	// UpdateIf writes the job only if its stored status and progress still
	// match the expected values. Returns false when the conditional update
	// lost; callers map that to ErrInvalidTransition or ErrStaleProgress.
	UpdateIf(ctx context.Context, job *domain.Job, expectedStatus domain.JobStatus, expectedProgress int) (bool, error)
}

// ProviderRepository defines how providers are persisted. Assignment state
// (Available/CurrentJobID) is owned exclusively by the job lifecycle.
type ProviderRepository interface {
	Save(ctx context.Context, provider *domain.Provider) error
	GetByID(ctx context.Context, id string) (*domain.Provider, error)
	// Acquire claims the provider for a job only if it is still available.
	// Returns false when a concurrent assign won the provider first.
	Acquire(ctx context.Context, providerID, jobID string) (bool, error)
	// Release frees the provider and, when earnings > 0, credits the
	// completed job to its cumulative totals; failed counts a failure.
	Release(ctx context.Context, providerID string, earnings float64, completed, failed bool) error
}

// TransactionRepository defines how settlement records are persisted
type TransactionRepository interface {
	Save(ctx context.Context, tx *domain.Transaction) error
	MarkCompleted(ctx context.Context, id, ledgerReference string) error
	ListByJob(ctx context.Context, jobID string) ([]*domain.Transaction, error)
}

// BenchmarkStore defines read-only lookup of historical execution-time
// samples keyed by (job type, resource class)
type BenchmarkStore interface {
	Find(ctx context.Context, jobType domain.JobType, resourceClass string) ([]*domain.Benchmark, error)
}

// ProviderDirectory defines how we track live cluster members (Redis).
// Snapshot is read-only; the matcher never mutates provider state.
type ProviderDirectory interface {
	Register(ctx context.Context, provider *domain.Provider) error
	Snapshot(ctx context.Context) ([]*domain.Provider, error)
}

// LedgerGateway is the boundary to the external value-transfer network.
// The raw wire protocol is opaque; the core depends only on this contract.
type LedgerGateway interface {
	GetBalance(ctx context.Context, identity string) (float64, error)
	Transfer(ctx context.Context, from, to string, amount float64) (string, error)
	ConfirmTransfer(ctx context.Context, reference string) (bool, error)
}

// EventPublisher defines how we push job and earnings events to subscribers
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// ReportConsumer defines how we receive execution reports from workers
type ReportConsumer interface {
	Consume(ctx context.Context, handler func(ctx context.Context, report *domain.ExecutionReport) error) error
}

// ReportPublisher is the worker-side counterpart of ReportConsumer
type ReportPublisher interface {
	PublishReport(ctx context.Context, report *domain.ExecutionReport) error
}

// Metrics defines how core services record operational counters (Prometheus)
type Metrics interface {
	JobStatusChanged(status domain.JobStatus)
	SettlementRecorded(txType domain.TransactionType, amount float64)
	BalanceCacheLookup(hit bool)
	BroadcastTick(duration time.Duration, skipped bool)
}
