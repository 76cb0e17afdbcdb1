// Package service provides the core marketplace engine: cost estimation,
// provider matching, the job lifecycle state machine, balance caching,
// dispatching and earnings broadcasting.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	"github.com/iavendas62-collab/qubix-sub003/internal/core/port"
	"go.uber.org/zap"
)

// LifecycleConfig carries the externally configured lifecycle knobs
type LifecycleConfig struct {
	// MaxReassignments bounds how often a failed job may re-enter the
	// matching pool before it stays FAILED terminally
	MaxReassignments int

	// ReferencePricePerHour prices the submission-time estimate before a
	// provider (with a real hourly rate) is known
	ReferencePricePerHour float64
}

type jobLifecycle struct {
	jobs         port.JobRepository
	providers    port.ProviderRepository
	transactions port.TransactionRepository
	ledger       port.LedgerGateway
	estimator    *costEstimator
	publisher    port.EventPublisher
	balances     *BalanceCache
	metrics      port.Metrics
	cfg          LifecycleConfig
	log          *zap.Logger
	now          func() time.Time
}

// NewJobLifecycle creates the state machine governing a job from
// submission to settlement
func NewJobLifecycle(
	jobs port.JobRepository,
	providers port.ProviderRepository,
	transactions port.TransactionRepository,
	ledger port.LedgerGateway,
	estimator *costEstimator,
	publisher port.EventPublisher,
	balances *BalanceCache,
	metrics port.Metrics,
	cfg LifecycleConfig,
	log *zap.Logger,
) *jobLifecycle {
	if cfg.ReferencePricePerHour <= 0 {
		cfg.ReferencePricePerHour = 1.0
	}
	return &jobLifecycle{
		jobs:         jobs,
		providers:    providers,
		transactions: transactions,
		ledger:       ledger,
		estimator:    estimator,
		publisher:    publisher,
		balances:     balances,
		metrics:      metrics,
		cfg:          cfg,
		log:          log,
		now:          time.Now,
	}
}

// Submit validates and persists a new job at PENDING with an initial cost
// estimate. The estimate is refined at assignment once the provider's real
// hourly rate is known.
func (l *jobLifecycle) Submit(ctx context.Context, job *domain.Job) error {
	if job.OwnerID == "" {
		return fmt.Errorf("%w: job owner is required", domain.ErrValidation)
	}
	if job.Requirements.VramGB < 0 || job.Requirements.ComputeUnits < 0 ||
		job.Requirements.RamGB < 0 || job.Requirements.StorageGB < 0 {
		return fmt.Errorf("%w: negative resource requirement", domain.ErrValidation)
	}
	if job.Budget <= 0 {
		return fmt.Errorf("%w: budget must be positive", domain.ErrValidation)
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = domain.JobStatusPending
	job.Progress = 0
	job.AssignedProviderID = ""
	job.CreatedAt = l.now()

	est, err := l.estimator.Estimate(ctx, job.JobType, job.ResourceClass, l.cfg.ReferencePricePerHour, job.Params)
	if err != nil {
		return fmt.Errorf("estimate for job %s: %w", job.ID, err)
	}
	job.EstimatedCost = est.Cost

	if err := l.jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}

	l.metrics.JobStatusChanged(domain.JobStatusPending)
	l.publish(ctx, domain.Event{
		Type:  domain.EventJobSubmitted,
		JobID: job.ID,
		Data:  est,
	})
	l.log.Info("Job submitted",
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.JobType)),
		zap.Float64("estimated_cost", est.Cost))
	return nil
}

// Assign moves a PENDING job to ASSIGNED and claims the provider. The
// provider claim is an optimistic conditional update: of two concurrent
// assigns against the same provider exactly one wins, the loser gets
// ErrInvalidTransition and its job stays PENDING.
func (l *jobLifecycle) Assign(ctx context.Context, jobID, providerID string) error {
	job, err := l.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status != domain.JobStatusPending {
		return fmt.Errorf("%w: job %s is %s, not PENDING", domain.ErrInvalidTransition, jobID, job.Status)
	}

	provider, err := l.providers.GetByID(ctx, providerID)
	if err != nil {
		return fmt.Errorf("load provider %s: %w", providerID, err)
	}
	if !provider.Online || !provider.Available {
		return fmt.Errorf("%w: provider %s is not available for job %s", domain.ErrInvalidTransition, providerID, jobID)
	}

	claimed, err := l.providers.Acquire(ctx, providerID, jobID)
	if err != nil {
		return fmt.Errorf("acquire provider %s: %w", providerID, err)
	}
	if !claimed {
		return fmt.Errorf("%w: provider %s was claimed concurrently, job %s stays pending", domain.ErrInvalidTransition, providerID, jobID)
	}

	// Refine the submission-time estimate with the provider's real rate
	if est, estErr := l.estimator.Estimate(ctx, job.JobType, provider.ResourceClass, provider.PricePerHour, job.Params); estErr == nil {
		job.EstimatedCost = est.Cost
	} else {
		l.log.Warn("Keeping submission-time estimate", zap.String("job_id", jobID), zap.Error(estErr))
	}

	job.Status = domain.JobStatusAssigned
	job.AssignedProviderID = providerID

	updated, err := l.jobs.UpdateIf(ctx, job, domain.JobStatusPending, 0)
	if err != nil || !updated {
		// Job changed underneath us (e.g. cancelled); give the provider back
		if relErr := l.providers.Release(ctx, providerID, 0, false, false); relErr != nil {
			l.log.Error("Failed to release provider after lost assign", zap.String("provider_id", providerID), zap.Error(relErr))
		}
		if err != nil {
			return fmt.Errorf("update job %s: %w", jobID, err)
		}
		return fmt.Errorf("%w: job %s left PENDING concurrently", domain.ErrInvalidTransition, jobID)
	}

	if err := l.recordTransaction(ctx, job.OwnerID, jobID, domain.TransactionTypeEscrowLock, job.EstimatedCost); err != nil {
		l.log.Error("Failed to record escrow lock", zap.String("job_id", jobID), zap.Error(err))
	}
	l.balances.Invalidate(job.OwnerID)

	l.metrics.JobStatusChanged(domain.JobStatusAssigned)
	l.publish(ctx, domain.Event{
		Type:       domain.EventJobAssigned,
		JobID:      jobID,
		ProviderID: providerID,
		Data:       map[string]any{"estimated_cost": job.EstimatedCost},
	})
	l.log.Info("Job assigned",
		zap.String("job_id", jobID),
		zap.String("provider_id", providerID),
		zap.Float64("estimated_cost", job.EstimatedCost))
	return nil
}

// ReportProgress applies a progress report to an ASSIGNED or RUNNING job.
// The first report moves the job to RUNNING and stamps StartedAt. Progress
// is clamped to [0,100] and must be monotonically non-decreasing; a lower
// report is rejected with ErrStaleProgress, not silently applied.
func (l *jobLifecycle) ReportProgress(ctx context.Context, jobID string, progress int) error {
	job, err := l.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status != domain.JobStatusAssigned && job.Status != domain.JobStatusRunning {
		return fmt.Errorf("%w: job %s is %s, progress not accepted", domain.ErrInvalidTransition, jobID, job.Status)
	}

	clamped := domain.ClampProgress(progress)
	if clamped < job.Progress {
		return fmt.Errorf("%w: job %s at %d%%, got %d%%", domain.ErrStaleProgress, jobID, job.Progress, clamped)
	}

	prevStatus, prevProgress := job.Status, job.Progress
	if job.Status == domain.JobStatusAssigned {
		job.Status = domain.JobStatusRunning
		job.StartedAt = l.now()
		l.metrics.JobStatusChanged(domain.JobStatusRunning)
	}
	job.Progress = clamped

	updated, err := l.jobs.UpdateIf(ctx, job, prevStatus, prevProgress)
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	if !updated {
		return fmt.Errorf("%w: job %s changed concurrently", domain.ErrStaleProgress, jobID)
	}

	l.publish(ctx, domain.Event{
		Type:       domain.EventJobProgress,
		JobID:      jobID,
		ProviderID: job.AssignedProviderID,
		Data:       map[string]any{"progress": clamped},
	})
	l.log.Debug("Progress applied", zap.String("job_id", jobID), zap.Int("progress", clamped))
	return nil
}

// Complete settles a RUNNING job: actual cost from elapsed processing time
// at the provider's rate, settlement transactions recorded before the job
// advances to COMPLETED, provider released and credited, escrow released
// through the ledger. A ledger transfer failure leaves the transactions
// PENDING for the caller to retry with backoff.
func (l *jobLifecycle) Complete(ctx context.Context, jobID, result string) error {
	job, err := l.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status != domain.JobStatusRunning {
		return fmt.Errorf("%w: job %s is %s, not RUNNING", domain.ErrInvalidTransition, jobID, job.Status)
	}

	provider, err := l.providers.GetByID(ctx, job.AssignedProviderID)
	if err != nil {
		return fmt.Errorf("load provider %s: %w", job.AssignedProviderID, err)
	}

	completedAt := l.now()
	elapsed := completedAt.Sub(job.StartedAt)
	if job.StartedAt.IsZero() || elapsed < 0 {
		elapsed = 0
	}
	actualCost := elapsed.Seconds() / 3600 * provider.PricePerHour

	// Settlement records must be durable (at least PENDING) before the job
	// may advance to COMPLETED
	payment := l.newTransaction(job.OwnerID, jobID, domain.TransactionTypePayment, actualCost)
	earning := l.newTransaction(provider.OwnerID, jobID, domain.TransactionTypeEarning, actualCost)
	release := l.newTransaction(job.OwnerID, jobID, domain.TransactionTypeEscrowRelease, job.EstimatedCost)
	for _, tx := range []*domain.Transaction{payment, earning, release} {
		if err := l.transactions.Save(ctx, tx); err != nil {
			return fmt.Errorf("record %s for job %s: %w", tx.Type, jobID, err)
		}
		l.metrics.SettlementRecorded(tx.Type, tx.Amount)
	}

	prevProgress := job.Progress
	job.Status = domain.JobStatusCompleted
	job.Progress = 100
	job.ActualCost = actualCost
	job.CompletedAt = completedAt

	updated, err := l.jobs.UpdateIf(ctx, job, domain.JobStatusRunning, prevProgress)
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	if !updated {
		return fmt.Errorf("%w: job %s changed concurrently", domain.ErrInvalidTransition, jobID)
	}

	if err := l.providers.Release(ctx, provider.ID, actualCost, true, false); err != nil {
		l.log.Error("Failed to release provider after completion",
			zap.String("provider_id", provider.ID), zap.Error(err))
	}

	// Best-effort ledger settlement; the transactions stay PENDING when the
	// upstream is unreachable and the caller retries
	if ref, transferErr := l.ledger.Transfer(ctx, job.OwnerID, provider.OwnerID, actualCost); transferErr != nil {
		l.log.Warn("Ledger transfer failed, settlement stays pending",
			zap.String("job_id", jobID), zap.Error(transferErr))
	} else {
		for _, tx := range []*domain.Transaction{payment, earning, release} {
			if markErr := l.transactions.MarkCompleted(ctx, tx.ID, ref); markErr != nil {
				l.log.Error("Failed to mark transaction completed",
					zap.String("transaction_id", tx.ID), zap.Error(markErr))
			}
		}
	}

	l.balances.Invalidate(job.OwnerID)
	l.balances.Invalidate(provider.OwnerID)

	l.metrics.JobStatusChanged(domain.JobStatusCompleted)
	l.publish(ctx, domain.Event{
		Type:       domain.EventJobCompleted,
		JobID:      jobID,
		ProviderID: provider.ID,
		Data: map[string]any{
			"actual_cost": actualCost,
			"duration":    FormatDuration(int(elapsed.Seconds())),
			"result":      result,
		},
	})
	l.log.Info("Job completed",
		zap.String("job_id", jobID),
		zap.String("provider_id", provider.ID),
		zap.Float64("actual_cost", actualCost))
	return nil
}

// Fail marks an ASSIGNED or RUNNING job FAILED, records the reason,
// releases the provider and refunds the escrowed amount to the consumer.
func (l *jobLifecycle) Fail(ctx context.Context, jobID, reason string) error {
	job, err := l.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status != domain.JobStatusAssigned && job.Status != domain.JobStatusRunning {
		return fmt.Errorf("%w: job %s is %s, cannot fail", domain.ErrInvalidTransition, jobID, job.Status)
	}

	prevStatus, prevProgress := job.Status, job.Progress
	job.Status = domain.JobStatusFailed
	job.FailureReason = reason
	job.CompletedAt = l.now()

	updated, err := l.jobs.UpdateIf(ctx, job, prevStatus, prevProgress)
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	if !updated {
		return fmt.Errorf("%w: job %s changed concurrently", domain.ErrInvalidTransition, jobID)
	}

	if job.AssignedProviderID != "" {
		if relErr := l.providers.Release(ctx, job.AssignedProviderID, 0, false, true); relErr != nil {
			l.log.Error("Failed to release provider after failure",
				zap.String("provider_id", job.AssignedProviderID), zap.Error(relErr))
		}
	}

	if err := l.recordTransaction(ctx, job.OwnerID, jobID, domain.TransactionTypeRefund, job.EstimatedCost); err != nil {
		l.log.Error("Failed to record refund", zap.String("job_id", jobID), zap.Error(err))
	}
	l.balances.Invalidate(job.OwnerID)

	l.metrics.JobStatusChanged(domain.JobStatusFailed)
	l.publish(ctx, domain.Event{
		Type:       domain.EventJobFailed,
		JobID:      jobID,
		ProviderID: job.AssignedProviderID,
		Data:       map[string]any{"reason": reason},
	})
	l.log.Warn("Job failed", zap.String("job_id", jobID), zap.String("reason", reason))
	return nil
}

// Reassign puts a FAILED job back into the matching pool: progress resets,
// the attempt count and prior failure reason are kept in the audit trail.
// Beyond the configured attempt budget the job stays FAILED terminally.
func (l *jobLifecycle) Reassign(ctx context.Context, jobID string) error {
	job, err := l.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status != domain.JobStatusFailed {
		return fmt.Errorf("%w: job %s is %s, not FAILED", domain.ErrInvalidTransition, jobID, job.Status)
	}
	if job.ReassignmentCount >= l.cfg.MaxReassignments {
		return fmt.Errorf("%w: job %s already reassigned %d times", domain.ErrReassignmentExhausted, jobID, job.ReassignmentCount)
	}

	prevProgress := job.Progress
	job.ReassignmentCount++
	job.FailureReason = fmt.Sprintf("reassignment attempt %d: %s", job.ReassignmentCount, job.FailureReason)
	job.Status = domain.JobStatusPending
	job.Progress = 0
	job.AssignedProviderID = ""
	job.StartedAt = time.Time{}
	job.CompletedAt = time.Time{}

	updated, err := l.jobs.UpdateIf(ctx, job, domain.JobStatusFailed, prevProgress)
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	if !updated {
		return fmt.Errorf("%w: job %s changed concurrently", domain.ErrInvalidTransition, jobID)
	}

	l.metrics.JobStatusChanged(domain.JobStatusPending)
	l.log.Info("Job requeued for reassignment",
		zap.String("job_id", jobID),
		zap.Int("attempt", job.ReassignmentCount))
	return nil
}

// Cancel marks a PENDING or ASSIGNED job CANCELLED. Cancelling an already
// terminal job is rejected, never a double release. Cancellation of
// in-flight work is best-effort; stopping the execution itself is the
// execution collaborator's concern.
func (l *jobLifecycle) Cancel(ctx context.Context, jobID string) error {
	job, err := l.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status != domain.JobStatusPending && job.Status != domain.JobStatusAssigned {
		return fmt.Errorf("%w: job %s is %s, cannot cancel", domain.ErrInvalidTransition, jobID, job.Status)
	}

	prevStatus, prevProgress := job.Status, job.Progress
	wasAssigned := job.Status == domain.JobStatusAssigned
	job.Status = domain.JobStatusCancelled
	job.CompletedAt = l.now()

	updated, err := l.jobs.UpdateIf(ctx, job, prevStatus, prevProgress)
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	if !updated {
		return fmt.Errorf("%w: job %s changed concurrently", domain.ErrInvalidTransition, jobID)
	}

	if wasAssigned {
		if relErr := l.providers.Release(ctx, job.AssignedProviderID, 0, false, false); relErr != nil {
			l.log.Error("Failed to release provider after cancel",
				zap.String("provider_id", job.AssignedProviderID), zap.Error(relErr))
		}
		if err := l.recordTransaction(ctx, job.OwnerID, jobID, domain.TransactionTypeRefund, job.EstimatedCost); err != nil {
			l.log.Error("Failed to record refund", zap.String("job_id", jobID), zap.Error(err))
		}
		l.balances.Invalidate(job.OwnerID)
	}

	l.metrics.JobStatusChanged(domain.JobStatusCancelled)
	l.publish(ctx, domain.Event{
		Type:       domain.EventJobCancelled,
		JobID:      jobID,
		ProviderID: job.AssignedProviderID,
	})
	l.log.Info("Job cancelled", zap.String("job_id", jobID))
	return nil
}

func (l *jobLifecycle) newTransaction(ownerID, jobID string, txType domain.TransactionType, amount float64) *domain.Transaction {
	return &domain.Transaction{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		JobID:     jobID,
		Type:      txType,
		Amount:    amount,
		Status:    domain.TransactionStatusPending,
		CreatedAt: l.now(),
	}
}

func (l *jobLifecycle) recordTransaction(ctx context.Context, ownerID, jobID string, txType domain.TransactionType, amount float64) error {
	tx := l.newTransaction(ownerID, jobID, txType, amount)
	if err := l.transactions.Save(ctx, tx); err != nil {
		return err
	}
	l.metrics.SettlementRecorded(txType, amount)
	return nil
}

// publish forwards an event to the pub/sub collaborator; a publish failure
// is logged and never fails the state transition that triggered it
func (l *jobLifecycle) publish(ctx context.Context, event domain.Event) {
	event.OccurredAt = l.now()
	if err := l.publisher.Publish(ctx, event); err != nil {
		l.log.Warn("Failed to publish event",
			zap.String("event_type", string(event.Type)),
			zap.String("job_id", event.JobID),
			zap.Error(err))
	}
}
