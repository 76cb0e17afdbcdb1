package domain

import "time"

// Capacity is a provider's resource capacity vector
type Capacity struct {
	VramGB       float64 `json:"vram_gb"`
	ComputeUnits float64 `json:"compute_units"`
	RamGB        float64 `json:"ram_gb"`
}

// Covers reports whether the capacity dominates the requirement vector
// component-wise. Storage is not part of provider capacity and is
// checked by the execution collaborator, not the matcher.
func (c Capacity) Covers(req ResourceRequirements) bool {
	return c.VramGB >= req.VramGB &&
		c.ComputeUnits >= req.ComputeUnits &&
		c.RamGB >= req.RamGB
}

// Provider represents a registered resource supplier
type Provider struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	ResourceClass string    `json:"resource_class"` // GPU class identifier, e.g. "RTX 3090"
	Capacity      Capacity  `json:"capacity"`
	PricePerHour  float64   `json:"price_per_hour"`
	Online        bool      `json:"online"`
	Available     bool      `json:"available"`
	CurrentJobID  string    `json:"current_job_id,omitempty"`
	TotalJobs     int64     `json:"total_jobs"`
	TotalFailures int64     `json:"total_failures"`
	TotalEarnings float64   `json:"total_earnings"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// CompletionRatio returns the historical share of attempts this provider
// finished successfully. A provider with no history gets the benefit of
// the doubt so new providers are not starved of work.
func (p *Provider) CompletionRatio() float64 {
	attempts := p.TotalJobs + p.TotalFailures
	if attempts == 0 {
		return 1.0
	}
	return float64(p.TotalJobs) / float64(attempts)
}
