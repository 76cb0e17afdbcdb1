package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	"go.uber.org/zap"
)

type memDirectory struct {
	mu        sync.Mutex
	providers map[string]domain.Provider
}

func newMemDirectory() *memDirectory {
	return &memDirectory{providers: make(map[string]domain.Provider)}
}

func (d *memDirectory) Register(ctx context.Context, provider *domain.Provider) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.providers[provider.ID] = *provider
	return nil
}

func (d *memDirectory) Snapshot(ctx context.Context) ([]*domain.Provider, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*domain.Provider, 0, len(d.providers))
	for _, p := range d.providers {
		copied := p
		out = append(out, &copied)
	}
	return out, nil
}

func dispatcherFixture(t *testing.T) (*lifecycleFixture, *memDirectory, *dispatcher) {
	t.Helper()
	f := newLifecycleFixture(t)
	directory := newMemDirectory()

	store := &memBenchmarkStore{samples: map[string][]*domain.Benchmark{
		"training/RTX 4090": {bench(domain.JobTypeTraining, "RTX 4090", 1200)},
		"training/RTX 3070": {bench(domain.JobTypeTraining, "RTX 3070", 3600)},
	}}
	estimator := NewCostEstimator(store, testEstimatorConfig(), zap.NewNop())
	matcher := NewProviderMatcher(estimator, testMatcherConfig(), zap.NewNop())

	d := NewDispatcher(f.jobs, directory, matcher, f.lifecycle, time.Second, zap.NewNop())
	return f, directory, d
}

func (f *lifecycleFixture) seedDirectoryProvider(t *testing.T, directory *memDirectory, id, class string, vram, compute, ram, price float64) {
	t.Helper()
	ctx := context.Background()
	p := testProvider(id, class, vram, compute, ram, price)
	if err := f.providers.Save(ctx, p); err != nil {
		t.Fatal(err)
	}
	if err := directory.Register(ctx, p); err != nil {
		t.Fatal(err)
	}
}

func TestDispatchPending(t *testing.T) {
	ctx := context.Background()

	t.Run("pending job lands on a compatible provider", func(t *testing.T) {
		f, directory, d := dispatcherFixture(t)
		f.seedDirectoryProvider(t, directory, "p1", "RTX 4090", 24, 10, 64, 1.5)
		job := f.submitJob(t, "job-1")

		if err := d.DispatchPending(ctx); err != nil {
			t.Fatal(err)
		}

		stored, _ := f.jobs.GetByID(ctx, job.ID)
		if stored.Status != domain.JobStatusAssigned {
			t.Errorf("expected ASSIGNED, got %s", stored.Status)
		}
		if stored.AssignedProviderID != "p1" {
			t.Errorf("expected p1, got %s", stored.AssignedProviderID)
		}
	})

	t.Run("no compatible provider leaves the job pending", func(t *testing.T) {
		f, directory, d := dispatcherFixture(t)
		f.seedDirectoryProvider(t, directory, "p-small", "RTX 3070", 4, 2, 8, 0.5)
		job := f.submitJob(t, "job-1")

		if err := d.DispatchPending(ctx); err != nil {
			t.Fatal(err)
		}
		if f.jobStatus(t, job.ID) != domain.JobStatusPending {
			t.Errorf("job should stay PENDING, got %s", f.jobStatus(t, job.ID))
		}
	})

	t.Run("stale directory entry falls through to the next candidate", func(t *testing.T) {
		f, directory, d := dispatcherFixture(t)
		f.seedDirectoryProvider(t, directory, "p1", "RTX 4090", 24, 10, 64, 1.5)
		f.seedDirectoryProvider(t, directory, "p2", "RTX 4090", 24, 10, 64, 2.5)

		// p1 is claimed in the repository but the directory snapshot does
		// not know yet
		if _, err := f.providers.Acquire(ctx, "p1", "other-job"); err != nil {
			t.Fatal(err)
		}

		job := f.submitJob(t, "job-1")
		if err := d.DispatchPending(ctx); err != nil {
			t.Fatal(err)
		}

		stored, _ := f.jobs.GetByID(ctx, job.ID)
		if stored.Status != domain.JobStatusAssigned {
			t.Fatalf("expected ASSIGNED via fallback, got %s", stored.Status)
		}
		if stored.AssignedProviderID != "p2" {
			t.Errorf("expected fallback to p2, got %s", stored.AssignedProviderID)
		}
	})

	t.Run("multiple jobs spread across providers", func(t *testing.T) {
		f, directory, d := dispatcherFixture(t)
		f.seedDirectoryProvider(t, directory, "p1", "RTX 4090", 24, 10, 64, 1.5)
		f.seedDirectoryProvider(t, directory, "p2", "RTX 4090", 24, 10, 64, 1.5)
		a := f.submitJob(t, "job-a")
		b := f.submitJob(t, "job-b")

		if err := d.DispatchPending(ctx); err != nil {
			t.Fatal(err)
		}

		assigned := map[string]bool{}
		for _, id := range []string{a.ID, b.ID} {
			stored, _ := f.jobs.GetByID(ctx, id)
			if stored.Status != domain.JobStatusAssigned {
				t.Errorf("job %s not assigned, status %s", id, stored.Status)
				continue
			}
			if assigned[stored.AssignedProviderID] {
				t.Errorf("provider %s double-booked", stored.AssignedProviderID)
			}
			assigned[stored.AssignedProviderID] = true
		}
	})

	t.Run("no providers at all is not an error", func(t *testing.T) {
		f, _, d := dispatcherFixture(t)
		f.submitJob(t, "job-1")
		if err := d.DispatchPending(ctx); err != nil {
			t.Fatal(err)
		}
	})
}
