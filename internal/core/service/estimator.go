package service

import (
	"context"
	"fmt"
	"math"

	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	"github.com/iavendas62-collab/qubix-sub003/internal/core/port"
	"go.uber.org/zap"
)

// consistencySpread is the max/min ratio under which multiple benchmark
// samples count as consistent
const consistencySpread = 1.25

// Range band percentages per confidence level. Deterministic, never
// randomized.
const (
	rangeBandLow    = 0.50
	rangeBandMedium = 0.25
	rangeBandHigh   = 0.10
)

// EstimatorConfig carries the externally configured fallback durations
// and parameter scaling exponents
type EstimatorConfig struct {
	// HeuristicDurations maps a job type to a conservative default
	// duration in seconds, used when no benchmark sample exists
	HeuristicDurations map[string]int

	// ParamExponents maps a workload parameter name to its scaling
	// exponent (1 = linear, 2 = quadratic)
	ParamExponents map[string]float64
}

type costEstimator struct {
	benchmarks port.BenchmarkStore
	cfg        EstimatorConfig
	log        *zap.Logger
}

// NewCostEstimator creates the estimator that derives duration/cost
// estimates from benchmark samples and pricing
func NewCostEstimator(benchmarks port.BenchmarkStore, cfg EstimatorConfig, log *zap.Logger) *costEstimator {
	return &costEstimator{
		benchmarks: benchmarks,
		cfg:        cfg,
		log:        log,
	}
}

// Estimate derives a point duration/cost estimate for running jobType on
// resourceClass at pricePerHour. Confidence reflects the benchmark
// coverage: no sample = low (heuristic fallback), one sample = medium,
// multiple consistent samples = high.
func (e *costEstimator) Estimate(ctx context.Context, jobType domain.JobType, resourceClass string, pricePerHour float64, params domain.EstimationParams) (domain.Estimate, error) {
	if pricePerHour < 0 {
		return domain.Estimate{}, fmt.Errorf("%w: negative price per hour %.4f", domain.ErrValidation, pricePerHour)
	}

	samples, err := e.benchmarks.Find(ctx, jobType, resourceClass)
	if err != nil {
		return domain.Estimate{}, fmt.Errorf("benchmark lookup for %s/%s: %w", jobType, resourceClass, err)
	}

	var (
		duration   float64
		confidence domain.Confidence
	)

	if len(samples) == 0 {
		fallback, ok := e.cfg.HeuristicDurations[string(jobType)]
		if !ok {
			return domain.Estimate{}, fmt.Errorf("%w: %q has no benchmark and no heuristic", domain.ErrUnknownJobType, jobType)
		}
		duration = float64(fallback)
		confidence = domain.ConfidenceLow
	} else {
		duration = e.scaledMeanDuration(samples, params)
		confidence = e.confidenceFor(samples)
	}

	seconds := int(math.Ceil(duration))
	return domain.Estimate{
		DurationSeconds: seconds,
		Cost:            float64(seconds) / 3600 * pricePerHour,
		Confidence:      confidence,
	}, nil
}

// EstimateRange wraps Estimate with a [low, high] band around the point
// estimate. The band width is a fixed function of confidence: lower
// confidence, wider band.
func (e *costEstimator) EstimateRange(ctx context.Context, jobType domain.JobType, resourceClass string, pricePerHour float64, params domain.EstimationParams) (domain.EstimateRange, error) {
	est, err := e.Estimate(ctx, jobType, resourceClass, pricePerHour, params)
	if err != nil {
		return domain.EstimateRange{}, err
	}

	band := rangeBandHigh
	switch est.Confidence {
	case domain.ConfidenceLow:
		band = rangeBandLow
	case domain.ConfidenceMedium:
		band = rangeBandMedium
	}

	// Round, not Floor/Ceil: float noise in 100 * 1.1 would otherwise
	// widen the band by a whole second.
	low := int(math.Round(float64(est.DurationSeconds) * (1 - band)))
	high := int(math.Round(float64(est.DurationSeconds) * (1 + band)))

	return domain.EstimateRange{
		Estimate:            est,
		LowDurationSeconds:  low,
		HighDurationSeconds: high,
		LowCost:             float64(low) / 3600 * pricePerHour,
		HighCost:            float64(high) / 3600 * pricePerHour,
	}, nil
}

// scaledMeanDuration averages the samples and scales the result by the
// declared workload parameters relative to the benchmark baseline
func (e *costEstimator) scaledMeanDuration(samples []*domain.Benchmark, params domain.EstimationParams) float64 {
	var sum float64
	for _, s := range samples {
		sum += float64(s.MeasuredDurationSeconds)
	}
	duration := sum / float64(len(samples))

	baseline := samples[0].BaselineParams
	duration *= e.paramFactor("epochs", params.Epochs, baseline.Epochs)
	duration *= e.paramFactor("dataset_size", params.DatasetSize, baseline.DatasetSize)
	duration *= e.paramFactor("resolution", params.Resolution, baseline.Resolution)
	return duration
}

// paramFactor returns the multiplicative adjustment for one workload
// parameter. Parameters absent from either side contribute nothing.
func (e *costEstimator) paramFactor(name string, declared, baseline int) float64 {
	if declared <= 0 || baseline <= 0 {
		return 1
	}
	exp, ok := e.cfg.ParamExponents[name]
	if !ok {
		exp = 1
	}
	return math.Pow(float64(declared)/float64(baseline), exp)
}

func (e *costEstimator) confidenceFor(samples []*domain.Benchmark) domain.Confidence {
	if len(samples) == 1 {
		return domain.ConfidenceMedium
	}

	minDur, maxDur := math.MaxFloat64, 0.0
	for _, s := range samples {
		d := float64(s.MeasuredDurationSeconds)
		minDur = math.Min(minDur, d)
		maxDur = math.Max(maxDur, d)
	}
	if minDur > 0 && maxDur/minDur <= consistencySpread {
		return domain.ConfidenceHigh
	}

	e.log.Debug("Inconsistent benchmark samples, degrading confidence",
		zap.Float64("min_duration", minDur),
		zap.Float64("max_duration", maxDur))
	return domain.ConfidenceMedium
}

// FormatDuration renders a duration in seconds as a human readable string
// for warnings and events
func FormatDuration(seconds int) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d seconds", seconds)
	case seconds < 3600:
		minutes := seconds / 60
		if rest := seconds % 60; rest != 0 {
			return fmt.Sprintf("%d minutes %d seconds", minutes, rest)
		}
		return fmt.Sprintf("%d minutes", minutes)
	default:
		hours := seconds / 3600
		if rest := (seconds % 3600) / 60; rest != 0 {
			return fmt.Sprintf("%d hours %d minutes", hours, rest)
		}
		return fmt.Sprintf("%d hours", hours)
	}
}
