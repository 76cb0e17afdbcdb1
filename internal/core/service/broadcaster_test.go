package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	promAdapter "github.com/iavendas62-collab/qubix-sub003/internal/adapter/monitoring/prometheus"
	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	"go.uber.org/zap"
)

func TestBroadcastOnce(t *testing.T) {
	ctx := context.Background()

	startedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := startedAt.Add(30 * time.Minute)

	seed := func(t *testing.T) (*memJobRepo, *memProviderRepo, *memPublisher, *earningsBroadcaster) {
		t.Helper()
		jobs := newMemJobRepo()
		providers := newMemProviderRepo()
		publisher := &memPublisher{}

		b := NewEarningsBroadcaster(jobs, providers, publisher, promAdapter.Nop{}, time.Second, zap.NewNop())
		b.now = func() time.Time { return now }
		return jobs, providers, publisher, b
	}

	t.Run("one snapshot per provider with running work", func(t *testing.T) {
		jobs, providers, publisher, b := seed(t)

		p := testProvider("p1", "RTX 4090", 24, 10, 64, 2.0)
		p.TotalEarnings = 7.5
		providers.Save(ctx, p)

		jobs.Save(ctx, &domain.Job{
			ID:                 "job-1",
			Status:             domain.JobStatusRunning,
			AssignedProviderID: "p1",
			Progress:           40,
			StartedAt:          startedAt,
		})
		jobs.Save(ctx, &domain.Job{
			ID:                 "job-2",
			Status:             domain.JobStatusRunning,
			AssignedProviderID: "p1",
			Progress:           10,
			StartedAt:          startedAt,
		})
		// Not running, must not appear
		jobs.Save(ctx, &domain.Job{
			ID:                 "job-3",
			Status:             domain.JobStatusAssigned,
			AssignedProviderID: "p1",
		})

		b.BroadcastOnce(ctx)

		updates := publisher.byType(domain.EventEarningsUpdate)
		if len(updates) != 1 {
			t.Fatalf("expected 1 earnings update, got %d", len(updates))
		}

		snapshot, ok := updates[0].Data.(domain.EarningsSnapshot)
		if !ok {
			t.Fatalf("unexpected payload type %T", updates[0].Data)
		}
		if snapshot.ProviderID != "p1" {
			t.Errorf("expected p1, got %s", snapshot.ProviderID)
		}
		if snapshot.SettledEarnings != 7.5 {
			t.Errorf("expected settled 7.5, got %.4f", snapshot.SettledEarnings)
		}
		if len(snapshot.ActiveJobs) != 2 {
			t.Fatalf("expected 2 active jobs, got %d", len(snapshot.ActiveJobs))
		}
		// 30 minutes at 2.0/hour accrues 1.0 per job
		if snapshot.AccruedEarnings != 2.0 {
			t.Errorf("expected accrued 2.0, got %.4f", snapshot.AccruedEarnings)
		}
		for _, aj := range snapshot.ActiveJobs {
			if aj.EarningsSoFar != 1.0 {
				t.Errorf("job %s: expected 1.0 accrued, got %.4f", aj.JobID, aj.EarningsSoFar)
			}
			if aj.ElapsedSeconds != 1800 {
				t.Errorf("job %s: expected 1800s elapsed, got %d", aj.JobID, aj.ElapsedSeconds)
			}
		}
	})

	t.Run("no running jobs publishes nothing", func(t *testing.T) {
		_, _, publisher, b := seed(t)
		b.BroadcastOnce(ctx)
		if len(publisher.events) != 0 {
			t.Errorf("expected no events, got %d", len(publisher.events))
		}
	})

	t.Run("one provider's push failure does not block the others", func(t *testing.T) {
		jobs, providers, publisher, b := seed(t)
		publisher.failFor = "p1"

		providers.Save(ctx, testProvider("p1", "RTX 4090", 24, 10, 64, 2.0))
		providers.Save(ctx, testProvider("p2", "RTX 4090", 24, 10, 64, 2.0))
		jobs.Save(ctx, &domain.Job{
			ID: "job-1", Status: domain.JobStatusRunning, AssignedProviderID: "p1", StartedAt: startedAt,
		})
		jobs.Save(ctx, &domain.Job{
			ID: "job-2", Status: domain.JobStatusRunning, AssignedProviderID: "p2", StartedAt: startedAt,
		})

		b.BroadcastOnce(ctx)

		updates := publisher.byType(domain.EventEarningsUpdate)
		if len(updates) != 1 {
			t.Fatalf("expected the healthy provider's update, got %d events", len(updates))
		}
		if updates[0].ProviderID != "p2" {
			t.Errorf("expected p2, got %s", updates[0].ProviderID)
		}
	})

	t.Run("missing provider skips that snapshot only", func(t *testing.T) {
		jobs, providers, publisher, b := seed(t)

		providers.Save(ctx, testProvider("p1", "RTX 4090", 24, 10, 64, 2.0))
		jobs.Save(ctx, &domain.Job{
			ID: "job-1", Status: domain.JobStatusRunning, AssignedProviderID: "p1", StartedAt: startedAt,
		})
		jobs.Save(ctx, &domain.Job{
			ID: "job-2", Status: domain.JobStatusRunning, AssignedProviderID: "p-gone", StartedAt: startedAt,
		})

		b.BroadcastOnce(ctx)

		updates := publisher.byType(domain.EventEarningsUpdate)
		if len(updates) != 1 {
			t.Fatalf("expected 1 update for the known provider, got %d", len(updates))
		}
		if updates[0].ProviderID != "p1" {
			t.Errorf("expected p1, got %s", updates[0].ProviderID)
		}
	})
}

// tickRecorder counts skipped ticks; everything else stays a no-op.
type tickRecorder struct {
	promAdapter.Nop
	mu      sync.Mutex
	skipped int
}

func (r *tickRecorder) BroadcastTick(d time.Duration, skipped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if skipped {
		r.skipped++
	}
}

func (r *tickRecorder) skippedTicks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipped
}

// gatedPublisher parks every Publish until released, so a broadcast can be
// held in flight across several ticks.
type gatedPublisher struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (p *gatedPublisher) Publish(ctx context.Context, event domain.Event) error {
	p.calls.Add(1)
	select {
	case p.entered <- struct{}{}:
	default:
	}
	<-p.release
	return nil
}

func TestBroadcastTicksNeverOverlap(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs := newMemJobRepo()
	providers := newMemProviderRepo()
	publisher := &gatedPublisher{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	recorder := &tickRecorder{}

	providers.Save(ctx, testProvider("p1", "RTX 4090", 24, 10, 64, 2.0))
	jobs.Save(ctx, &domain.Job{
		ID:                 "job-1",
		Status:             domain.JobStatusRunning,
		AssignedProviderID: "p1",
		StartedAt:          time.Now(),
	})

	b := NewEarningsBroadcaster(jobs, providers, publisher, recorder, 5*time.Millisecond, zap.NewNop())

	done := make(chan struct{})
	go func() {
		b.Start(ctx)
		close(done)
	}()

	// First tick reaches Publish and stalls there; later ticks must be
	// skipped, not queued.
	select {
	case <-publisher.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast never reached the publisher")
	}

	deadline := time.Now().Add(2 * time.Second)
	for recorder.skippedTicks() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no tick was skipped while a broadcast was in flight")
		}
		time.Sleep(time.Millisecond)
	}

	if got := publisher.calls.Load(); got != 1 {
		t.Errorf("expected a single in-flight broadcast, got %d concurrent publishes", got)
	}

	close(publisher.release)
	cancel()
	<-done
}
