package service

import (
	"context"
	"errors"
	"testing"

	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	"go.uber.org/zap"
)

type memBenchmarkStore struct {
	samples map[string][]*domain.Benchmark
	err     error
}

func (m *memBenchmarkStore) Find(ctx context.Context, jobType domain.JobType, resourceClass string) ([]*domain.Benchmark, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.samples[string(jobType)+"/"+resourceClass], nil
}

func testEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		HeuristicDurations: map[string]int{
			"training":  300,
			"inference": 120,
		},
		ParamExponents: map[string]float64{
			"epochs":       1,
			"dataset_size": 1,
			"resolution":   2,
		},
	}
}

func bench(jobType domain.JobType, class string, seconds int) *domain.Benchmark {
	return &domain.Benchmark{
		JobType:                 jobType,
		ResourceClass:           class,
		MeasuredDurationSeconds: seconds,
	}
}

func TestEstimateConfidence(t *testing.T) {
	ctx := context.Background()

	t.Run("no samples falls back to heuristic at low confidence", func(t *testing.T) {
		store := &memBenchmarkStore{samples: map[string][]*domain.Benchmark{}}
		e := NewCostEstimator(store, testEstimatorConfig(), zap.NewNop())

		est, err := e.Estimate(ctx, domain.JobTypeTraining, "RTX 4090", 2.0, domain.EstimationParams{})
		if err != nil {
			t.Fatal(err)
		}
		if est.Confidence != domain.ConfidenceLow {
			t.Errorf("expected low confidence, got %s", est.Confidence)
		}
		if est.DurationSeconds != 300 {
			t.Errorf("expected heuristic 300s, got %d", est.DurationSeconds)
		}
		// 300s at 2.0/hour
		if got, want := est.Cost, 300.0/3600*2.0; got != want {
			t.Errorf("expected cost %.4f, got %.4f", want, got)
		}
	})

	t.Run("single sample is medium confidence", func(t *testing.T) {
		store := &memBenchmarkStore{samples: map[string][]*domain.Benchmark{
			"training/RTX 4090": {bench(domain.JobTypeTraining, "RTX 4090", 120)},
		}}
		e := NewCostEstimator(store, testEstimatorConfig(), zap.NewNop())

		est, err := e.Estimate(ctx, domain.JobTypeTraining, "RTX 4090", 1.0, domain.EstimationParams{})
		if err != nil {
			t.Fatal(err)
		}
		if est.Confidence != domain.ConfidenceMedium {
			t.Errorf("expected medium confidence, got %s", est.Confidence)
		}
		if est.DurationSeconds != 120 {
			t.Errorf("expected 120s, got %d", est.DurationSeconds)
		}
	})

	t.Run("consistent samples are high confidence", func(t *testing.T) {
		store := &memBenchmarkStore{samples: map[string][]*domain.Benchmark{
			"training/RTX 4090": {
				bench(domain.JobTypeTraining, "RTX 4090", 100),
				bench(domain.JobTypeTraining, "RTX 4090", 110),
				bench(domain.JobTypeTraining, "RTX 4090", 120),
			},
		}}
		e := NewCostEstimator(store, testEstimatorConfig(), zap.NewNop())

		est, err := e.Estimate(ctx, domain.JobTypeTraining, "RTX 4090", 1.0, domain.EstimationParams{})
		if err != nil {
			t.Fatal(err)
		}
		if est.Confidence != domain.ConfidenceHigh {
			t.Errorf("expected high confidence, got %s", est.Confidence)
		}
		if est.DurationSeconds != 110 {
			t.Errorf("expected mean 110s, got %d", est.DurationSeconds)
		}
	})

	t.Run("spread samples degrade to medium", func(t *testing.T) {
		store := &memBenchmarkStore{samples: map[string][]*domain.Benchmark{
			"training/RTX 4090": {
				bench(domain.JobTypeTraining, "RTX 4090", 100),
				bench(domain.JobTypeTraining, "RTX 4090", 200),
			},
		}}
		e := NewCostEstimator(store, testEstimatorConfig(), zap.NewNop())

		est, err := e.Estimate(ctx, domain.JobTypeTraining, "RTX 4090", 1.0, domain.EstimationParams{})
		if err != nil {
			t.Fatal(err)
		}
		if est.Confidence != domain.ConfidenceMedium {
			t.Errorf("expected medium confidence, got %s", est.Confidence)
		}
	})

	t.Run("unknown job type without heuristic", func(t *testing.T) {
		store := &memBenchmarkStore{samples: map[string][]*domain.Benchmark{}}
		e := NewCostEstimator(store, testEstimatorConfig(), zap.NewNop())

		_, err := e.Estimate(ctx, domain.JobType("quantum"), "RTX 4090", 1.0, domain.EstimationParams{})
		if !errors.Is(err, domain.ErrUnknownJobType) {
			t.Errorf("expected ErrUnknownJobType, got %v", err)
		}
	})

	t.Run("negative price rejected", func(t *testing.T) {
		store := &memBenchmarkStore{samples: map[string][]*domain.Benchmark{}}
		e := NewCostEstimator(store, testEstimatorConfig(), zap.NewNop())

		_, err := e.Estimate(ctx, domain.JobTypeTraining, "RTX 4090", -0.5, domain.EstimationParams{})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}

func TestEstimateParamScaling(t *testing.T) {
	ctx := context.Background()
	base := bench(domain.JobTypeTraining, "RTX 4090", 100)
	base.BaselineParams = domain.EstimationParams{Epochs: 5, Resolution: 1080, DatasetSize: 10000}

	store := &memBenchmarkStore{samples: map[string][]*domain.Benchmark{
		"training/RTX 4090": {base},
	}}
	e := NewCostEstimator(store, testEstimatorConfig(), zap.NewNop())

	tests := []struct {
		name        string
		params      domain.EstimationParams
		wantSeconds int
	}{
		{"baseline params unchanged", domain.EstimationParams{Epochs: 5, Resolution: 1080, DatasetSize: 10000}, 100},
		{"double epochs scales linearly", domain.EstimationParams{Epochs: 10, Resolution: 1080, DatasetSize: 10000}, 200},
		{"double resolution scales quadratically", domain.EstimationParams{Epochs: 5, Resolution: 2160, DatasetSize: 10000}, 400},
		{"half dataset scales linearly", domain.EstimationParams{Epochs: 5, Resolution: 1080, DatasetSize: 5000}, 50},
		{"absent params contribute nothing", domain.EstimationParams{}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est, err := e.Estimate(ctx, domain.JobTypeTraining, "RTX 4090", 1.0, tt.params)
			if err != nil {
				t.Fatal(err)
			}
			if est.DurationSeconds != tt.wantSeconds {
				t.Errorf("expected %ds, got %ds", tt.wantSeconds, est.DurationSeconds)
			}
		})
	}
}

func TestEstimateRangeBands(t *testing.T) {
	ctx := context.Background()

	t.Run("low confidence gets the widest band", func(t *testing.T) {
		store := &memBenchmarkStore{samples: map[string][]*domain.Benchmark{}}
		e := NewCostEstimator(store, testEstimatorConfig(), zap.NewNop())

		r, err := e.EstimateRange(ctx, domain.JobTypeInference, "RTX 4090", 1.0, domain.EstimationParams{})
		if err != nil {
			t.Fatal(err)
		}
		// heuristic 120s, low band is +-50%
		if r.LowDurationSeconds != 60 || r.HighDurationSeconds != 180 {
			t.Errorf("expected [60, 180], got [%d, %d]", r.LowDurationSeconds, r.HighDurationSeconds)
		}
	})

	t.Run("high confidence gets the tightest band", func(t *testing.T) {
		store := &memBenchmarkStore{samples: map[string][]*domain.Benchmark{
			"inference/RTX 4090": {
				bench(domain.JobTypeInference, "RTX 4090", 100),
				bench(domain.JobTypeInference, "RTX 4090", 100),
			},
		}}
		e := NewCostEstimator(store, testEstimatorConfig(), zap.NewNop())

		r, err := e.EstimateRange(ctx, domain.JobTypeInference, "RTX 4090", 1.0, domain.EstimationParams{})
		if err != nil {
			t.Fatal(err)
		}
		if r.LowDurationSeconds != 90 || r.HighDurationSeconds != 110 {
			t.Errorf("expected [90, 110], got [%d, %d]", r.LowDurationSeconds, r.HighDurationSeconds)
		}
		if r.LowCost >= r.HighCost {
			t.Errorf("expected low cost %.4f below high cost %.4f", r.LowCost, r.HighCost)
		}
	})

	t.Run("store failure propagates", func(t *testing.T) {
		store := &memBenchmarkStore{err: errors.New("connection refused")}
		e := NewCostEstimator(store, testEstimatorConfig(), zap.NewNop())

		if _, err := e.EstimateRange(ctx, domain.JobTypeInference, "RTX 4090", 1.0, domain.EstimationParams{}); err == nil {
			t.Error("expected error from store failure")
		}
	})
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{45, "45 seconds"},
		{60, "1 minutes"},
		{90, "1 minutes 30 seconds"},
		{3600, "1 hours"},
		{7320, "2 hours 2 minutes"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.seconds); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
