package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	"go.uber.org/zap"
)

// SortCriterion selects the ranking order of match results
type SortCriterion string

const (
	SortCostBenefit SortCriterion = "cost_benefit"
	SortPriceLow    SortCriterion = "price_low"
	SortPerformance SortCriterion = "performance"
)

// MatcherConfig carries the scoring weights and the over-provision
// threshold. Weights should sum to 1.0.
type MatcherConfig struct {
	OverProvisionThreshold float64
	CostWeight             float64
	DurationWeight         float64
	ReliabilityWeight      float64
}

type providerMatcher struct {
	estimator *costEstimator
	cfg       MatcherConfig
	log       *zap.Logger
}

// NewProviderMatcher creates the matcher that scores and ranks candidate
// providers against a job's requirements
func NewProviderMatcher(estimator *costEstimator, cfg MatcherConfig, log *zap.Logger) *providerMatcher {
	return &providerMatcher{
		estimator: estimator,
		cfg:       cfg,
		log:       log,
	}
}

// Match filters candidates whose capacity dominates the job's requirement
// vector, estimates duration/cost per candidate and ranks them by the
// requested criterion. Candidates are read-only snapshots; the matcher
// never mutates provider state. An empty result is not an error - the
// caller decides how to surface "no resources available".
func (m *providerMatcher) Match(ctx context.Context, job *domain.Job, candidates []*domain.Provider, sortBy SortCriterion) ([]domain.MatchResult, error) {
	if job.Requirements.VramGB < 0 || job.Requirements.ComputeUnits < 0 || job.Requirements.RamGB < 0 {
		return nil, fmt.Errorf("%w: negative resource requirement for job %s", domain.ErrValidation, job.ID)
	}

	type scored struct {
		result   domain.MatchResult
		estimate domain.Estimate
		provider *domain.Provider
	}

	var compatible []scored
	for _, p := range candidates {
		if !p.Capacity.Covers(job.Requirements) {
			continue
		}

		est, err := m.estimator.Estimate(ctx, job.JobType, p.ResourceClass, p.PricePerHour, job.Params)
		if err != nil {
			if errors.Is(err, domain.ErrUnknownJobType) || errors.Is(err, domain.ErrValidation) {
				return nil, err
			}
			m.log.Warn("Estimation failed for candidate, skipping",
				zap.String("provider_id", p.ID),
				zap.Error(err))
			continue
		}

		result := domain.MatchResult{
			ProviderID:        p.ID,
			Compatibility:     domain.CompatibilityExact,
			EstimatedDuration: est.DurationSeconds,
			EstimatedCost:     est.Cost,
		}

		if m.overProvisioned(p.Capacity, job.Requirements) {
			result.Compatibility = domain.CompatibilityOverProvisioned
			result.Warnings = append(result.Warnings, "provider is over-provisioned for this job")
		}
		if job.Budget > 0 && est.Cost > job.Budget {
			result.Warnings = append(result.Warnings, "may exceed budget")
		}
		if est.Confidence == domain.ConfidenceLow {
			result.Warnings = append(result.Warnings, "estimate confidence is low")
		}

		compatible = append(compatible, scored{result: result, estimate: est, provider: p})
	}

	if len(compatible) == 0 {
		return []domain.MatchResult{}, nil
	}

	// Normalize cost and duration against the best candidate so the
	// cheapest/fastest score 1.0 on their component
	minCost, minDuration := compatible[0].result.EstimatedCost, compatible[0].result.EstimatedDuration
	for _, c := range compatible[1:] {
		if c.result.EstimatedCost < minCost {
			minCost = c.result.EstimatedCost
		}
		if c.result.EstimatedDuration < minDuration {
			minDuration = c.result.EstimatedDuration
		}
	}

	results := make([]domain.MatchResult, 0, len(compatible))
	for _, c := range compatible {
		costScore := 1.0
		if c.result.EstimatedCost > 0 {
			costScore = minCost / c.result.EstimatedCost
		}
		durationScore := 1.0
		if c.result.EstimatedDuration > 0 {
			durationScore = float64(minDuration) / float64(c.result.EstimatedDuration)
		}

		score := 100 * (m.cfg.CostWeight*costScore +
			m.cfg.DurationWeight*durationScore +
			m.cfg.ReliabilityWeight*c.provider.CompletionRatio())
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		c.result.CostBenefitScore = score
		results = append(results, c.result)
	}

	m.sortResults(results, sortBy)
	return results, nil
}

// overProvisioned reports whether the capacity exceeds every requirement
// dimension by more than the configured threshold. A zero-requirement
// dimension always counts as exceeded.
func (m *providerMatcher) overProvisioned(cap domain.Capacity, req domain.ResourceRequirements) bool {
	t := m.cfg.OverProvisionThreshold
	if t <= 0 {
		return false
	}
	return (req.VramGB == 0 || cap.VramGB > req.VramGB*t) &&
		(req.ComputeUnits == 0 || cap.ComputeUnits > req.ComputeUnits*t) &&
		(req.RamGB == 0 || cap.RamGB > req.RamGB*t)
}

// sortResults orders by the requested criterion, ties broken by provider
// id for determinism
func (m *providerMatcher) sortResults(results []domain.MatchResult, sortBy SortCriterion) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		switch sortBy {
		case SortPriceLow:
			if a.EstimatedCost != b.EstimatedCost {
				return a.EstimatedCost < b.EstimatedCost
			}
		case SortPerformance:
			if a.EstimatedDuration != b.EstimatedDuration {
				return a.EstimatedDuration < b.EstimatedDuration
			}
		default: // cost_benefit
			if a.CostBenefitScore != b.CostBenefitScore {
				return a.CostBenefitScore > b.CostBenefitScore
			}
		}
		return a.ProviderID < b.ProviderID
	})
}
