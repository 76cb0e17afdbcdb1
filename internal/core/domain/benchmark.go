package domain

// Benchmark is an immutable historical execution-time sample for a
// (job type, resource class) pair. BaselineParams records the workload
// parameters the sample was measured with so estimates can be scaled
// against a declared workload.
type Benchmark struct {
	JobType                 JobType          `json:"job_type"`
	ResourceClass           string           `json:"resource_class"`
	MeasuredDurationSeconds int              `json:"measured_duration_seconds"`
	BaselineParams          EstimationParams `json:"baseline_params"`
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Estimate is a point cost/duration estimate for running a job on a
// given resource class
type Estimate struct {
	DurationSeconds int        `json:"duration_seconds"`
	Cost            float64    `json:"cost"`
	Confidence      Confidence `json:"confidence"`
}

// EstimateRange is the [low, high] band around a point estimate; the
// band width is a fixed function of confidence.
type EstimateRange struct {
	Estimate
	LowDurationSeconds  int     `json:"low_duration_seconds"`
	HighDurationSeconds int     `json:"high_duration_seconds"`
	LowCost             float64 `json:"low_cost"`
	HighCost            float64 `json:"high_cost"`
}

type Compatibility string

const (
	CompatibilityExact           Compatibility = "exact"
	CompatibilityOverProvisioned Compatibility = "over_provisioned"
	CompatibilityIncompatible    Compatibility = "incompatible"
)

// MatchResult ranks one candidate provider against a job. Ephemeral:
// produced by the matcher and consumed immediately, never persisted.
type MatchResult struct {
	ProviderID        string        `json:"provider_id"`
	Compatibility     Compatibility `json:"compatibility"`
	EstimatedDuration int           `json:"estimated_duration"`
	EstimatedCost     float64       `json:"estimated_cost"`
	CostBenefitScore  float64       `json:"cost_benefit_score"` // 0-100
	Warnings          []string      `json:"warnings,omitempty"`
}
