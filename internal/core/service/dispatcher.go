package service

import (
	"context"
	"errors"
	"time"

	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	"github.com/iavendas62-collab/qubix-sub003/internal/core/port"
	"go.uber.org/zap"
)

type dispatcher struct {
	jobs      port.JobRepository
	directory port.ProviderDirectory
	matcher   *providerMatcher
	lifecycle *jobLifecycle
	interval  time.Duration
	log       *zap.Logger
}

// NewDispatcher creates the matching loop that drains PENDING jobs into
// assignments
func NewDispatcher(
	jobs port.JobRepository,
	directory port.ProviderDirectory,
	matcher *providerMatcher,
	lifecycle *jobLifecycle,
	interval time.Duration,
	log *zap.Logger,
) *dispatcher {
	return &dispatcher{
		jobs:      jobs,
		directory: directory,
		matcher:   matcher,
		lifecycle: lifecycle,
		interval:  interval,
		log:       log,
	}
}

// Start runs the polling loop
func (d *dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	count := 0
	for {
		select {
		case <-ctx.Done():
			d.log.Info("Stopping dispatch loop")
			return
		case <-ticker.C:
			count++
			if count%3 == 0 {
				candidates, err := d.directory.Snapshot(ctx)
				if err != nil {
					d.log.Warn("Failed to snapshot provider directory", zap.Error(err))
				}
				d.log.Info("Dispatcher heartbeat",
					zap.Int("online_providers", len(candidates)),
					zap.Duration("interval", d.interval))
			}

			if err := d.DispatchPending(ctx); err != nil {
				d.log.Error("Failed to dispatch jobs", zap.Error(err))
			}
		}
	}
}

// DispatchPending ranks candidates for each PENDING job and assigns the
// best one. A job with no compatible provider stays PENDING for the next
// cycle; a lost provider claim falls through to the next candidate.
func (d *dispatcher) DispatchPending(ctx context.Context) error {
	pending, err := d.jobs.ListByStatus(ctx, domain.JobStatusPending)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	d.log.Info("Dispatcher found pending jobs", zap.Int("count", len(pending)))

	candidates, err := d.directory.Snapshot(ctx)
	if err != nil {
		return err
	}

	available := candidates[:0]
	for _, p := range candidates {
		if p.Online && p.Available {
			available = append(available, p)
		}
	}
	if len(available) == 0 {
		d.log.Warn("No available providers to dispatch jobs")
		return nil
	}

	for _, job := range pending {
		results, err := d.matcher.Match(ctx, job, available, SortCostBenefit)
		if err != nil {
			d.log.Warn("Matching failed for job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		if len(results) == 0 {
			d.log.Debug("No compatible provider, job waits",
				zap.String("job_id", job.ID))
			continue
		}

		for _, result := range results {
			err := d.lifecycle.Assign(ctx, job.ID, result.ProviderID)
			if err == nil {
				d.log.Info("Successfully dispatched job",
					zap.String("job_id", job.ID),
					zap.String("provider_id", result.ProviderID),
					zap.Float64("score", result.CostBenefitScore))
				break
			}
			if errors.Is(err, domain.ErrInvalidTransition) {
				// Lost the provider to a concurrent assign; try the next
				// ranked candidate
				d.log.Debug("Candidate claimed concurrently, trying next",
					zap.String("job_id", job.ID),
					zap.String("provider_id", result.ProviderID))
				continue
			}
			d.log.Error("Failed to assign job", zap.String("job_id", job.ID), zap.Error(err))
			break
		}
	}

	return nil
}
