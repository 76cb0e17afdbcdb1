package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	"github.com/iavendas62-collab/qubix-sub003/internal/core/port"
	"go.uber.org/zap"
)

type earningsBroadcaster struct {
	jobs      port.JobRepository
	providers port.ProviderRepository
	publisher port.EventPublisher
	metrics   port.Metrics
	interval  time.Duration
	log       *zap.Logger
	now       func() time.Time
	inFlight  atomic.Bool
}

// NewEarningsBroadcaster creates the periodic live-earnings push. Every
// interval it snapshots each provider with a RUNNING job and publishes an
// earnings_update event per provider.
func NewEarningsBroadcaster(
	jobs port.JobRepository,
	providers port.ProviderRepository,
	publisher port.EventPublisher,
	metrics port.Metrics,
	interval time.Duration,
	log *zap.Logger,
) *earningsBroadcaster {
	return &earningsBroadcaster{
		jobs:      jobs,
		providers: providers,
		publisher: publisher,
		metrics:   metrics,
		interval:  interval,
		log:       log,
		now:       time.Now,
	}
}

// Start runs the ticking loop until ctx is cancelled. Ticks never overlap:
// if one is still running when the next is due, the next is skipped and
// never retried - the following tick supersedes it.
func (b *earningsBroadcaster) Start(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.log.Info("Starting earnings broadcaster", zap.Duration("interval", b.interval))

	for {
		select {
		case <-ctx.Done():
			b.log.Info("Stopping earnings broadcaster")
			return
		case <-ticker.C:
			if !b.inFlight.CompareAndSwap(false, true) {
				b.metrics.BroadcastTick(0, true)
				b.log.Debug("Previous broadcast still running, skipping tick")
				continue
			}
			go func() {
				defer b.inFlight.Store(false)
				start := b.now()
				b.BroadcastOnce(ctx)
				b.metrics.BroadcastTick(b.now().Sub(start), false)
			}()
		}
	}
}

// BroadcastOnce pushes one earnings snapshot per provider with at least
// one RUNNING job. A push failure for one provider does not block the
// others.
func (b *earningsBroadcaster) BroadcastOnce(ctx context.Context) {
	running, err := b.jobs.ListByStatus(ctx, domain.JobStatusRunning)
	if err != nil {
		b.log.Error("Failed to list running jobs", zap.Error(err))
		return
	}
	if len(running) == 0 {
		return
	}

	byProvider := make(map[string][]*domain.Job)
	for _, job := range running {
		if job.AssignedProviderID == "" {
			continue
		}
		byProvider[job.AssignedProviderID] = append(byProvider[job.AssignedProviderID], job)
	}

	for providerID, jobs := range byProvider {
		snapshot, err := b.snapshotFor(ctx, providerID, jobs)
		if err != nil {
			b.log.Warn("Failed to build earnings snapshot",
				zap.String("provider_id", providerID), zap.Error(err))
			continue
		}

		event := domain.Event{
			Type:       domain.EventEarningsUpdate,
			ProviderID: providerID,
			OccurredAt: b.now(),
			Data:       snapshot,
		}
		if err := b.publisher.Publish(ctx, event); err != nil {
			b.log.Warn("Failed to push earnings update",
				zap.String("provider_id", providerID), zap.Error(err))
		}
	}
}

func (b *earningsBroadcaster) snapshotFor(ctx context.Context, providerID string, jobs []*domain.Job) (domain.EarningsSnapshot, error) {
	provider, err := b.providers.GetByID(ctx, providerID)
	if err != nil {
		return domain.EarningsSnapshot{}, err
	}

	snapshot := domain.EarningsSnapshot{
		ProviderID:      providerID,
		SettledEarnings: provider.TotalEarnings,
	}
	for _, job := range jobs {
		elapsed := b.now().Sub(job.StartedAt)
		if job.StartedAt.IsZero() || elapsed < 0 {
			elapsed = 0
		}
		accrued := elapsed.Seconds() / 3600 * provider.PricePerHour
		snapshot.AccruedEarnings += accrued
		snapshot.ActiveJobs = append(snapshot.ActiveJobs, domain.ActiveJobEarnings{
			JobID:          job.ID,
			Progress:       job.Progress,
			ElapsedSeconds: int(elapsed.Seconds()),
			EarningsSoFar:  accrued,
		})
	}
	return snapshot, nil
}
