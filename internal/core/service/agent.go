package service

import (
	"context"
	"fmt"
	"time"

	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	"github.com/iavendas62-collab/qubix-sub003/internal/core/port"
	"go.uber.org/zap"
)

type providerAgent struct {
	profile   domain.Provider
	jobs      port.JobRepository
	directory port.ProviderDirectory
	reports   port.ReportPublisher
	log       *zap.Logger

	// Seconds of simulated wall-clock per job; stands in for actually
	// running the workload
	workDuration time.Duration
}

// NewProviderAgent builds the worker-side loop: heartbeat into the
// directory, pick up jobs assigned to this provider, simulate the
// execution and stream reports back to the broker.
func NewProviderAgent(
	profile domain.Provider,
	jobs port.JobRepository,
	directory port.ProviderDirectory,
	reports port.ReportPublisher,
	workDuration time.Duration,
	log *zap.Logger,
) *providerAgent {
	if workDuration <= 0 {
		workDuration = 5 * time.Second
	}
	return &providerAgent{
		profile:      profile,
		jobs:         jobs,
		directory:    directory,
		reports:      reports,
		workDuration: workDuration,
		log:          log,
	}
}

// Start launches the heartbeat and job pickup loops
func (a *providerAgent) Start(ctx context.Context) error {
	a.log.Info("Starting provider agent", zap.String("id", a.profile.ID))

	// Register immediately so the broker can match against us before the
	// first heartbeat tick
	if err := a.heartbeat(ctx); err != nil {
		return fmt.Errorf("initial heartbeat: %w", err)
	}

	go a.heartbeatLoop(ctx)
	go a.pickupLoop(ctx)

	return nil
}

func (a *providerAgent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.heartbeat(ctx); err != nil {
				a.log.Error("Heartbeat failed", zap.Error(err))
			} else {
				a.log.Debug("Heartbeat sent")
			}
		}
	}
}

func (a *providerAgent) heartbeat(ctx context.Context) error {
	p := a.profile
	p.Online = true
	p.LastHeartbeat = time.Now()
	return a.directory.Register(ctx, &p)
}

func (a *providerAgent) pickupLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			assigned, err := a.jobs.ListByStatus(ctx, domain.JobStatusAssigned)
			if err != nil {
				a.log.Error("Failed to poll assigned jobs", zap.Error(err))
				continue
			}
			for _, job := range assigned {
				if job.AssignedProviderID != a.profile.ID {
					continue
				}
				a.execute(ctx, job)
			}
		}
	}
}

// execute simulates running one job: progress reports at quarter marks,
// then a completion report. A real agent would shell out to the runtime
// here instead of sleeping.
func (a *providerAgent) execute(ctx context.Context, job *domain.Job) {
	a.log.Info("Executing job",
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.JobType)))

	step := a.workDuration / 4
	for _, progress := range []int{25, 50, 75, 100} {
		select {
		case <-ctx.Done():
			return
		case <-time.After(step):
		}

		report := &domain.ExecutionReport{
			JobID:    job.ID,
			Kind:     domain.ReportKindProgress,
			Progress: progress,
		}
		if err := a.reports.PublishReport(ctx, report); err != nil {
			a.log.Error("Failed to publish progress", zap.String("job_id", job.ID), zap.Error(err))
			return
		}
	}

	done := &domain.ExecutionReport{
		JobID:  job.ID,
		Kind:   domain.ReportKindCompleted,
		Result: fmt.Sprintf("simulated %s run on %s", job.JobType, a.profile.ID),
	}
	if err := a.reports.PublishReport(ctx, done); err != nil {
		a.log.Error("Failed to publish completion", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	a.log.Info("Job completed", zap.String("job_id", job.ID))
}
