package domain

import "time"

type EventType string

const (
	EventJobSubmitted   EventType = "job_submitted"
	EventJobAssigned    EventType = "job_assigned"
	EventJobProgress    EventType = "job_progress"
	EventJobCompleted   EventType = "job_completed"
	EventJobFailed      EventType = "job_failed"
	EventJobCancelled   EventType = "job_cancelled"
	EventEarningsUpdate EventType = "earnings_update"
)

// Event is what the broker publishes to the pub/sub collaborator.
// Data carries the event-specific payload and must be JSON-serializable.
type Event struct {
	Type       EventType   `json:"type"`
	JobID      string      `json:"job_id,omitempty"`
	ProviderID string      `json:"provider_id,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data,omitempty"`
}

// ActiveJobEarnings is the per-job slice of a live earnings snapshot
type ActiveJobEarnings struct {
	JobID          string  `json:"job_id"`
	Progress       int     `json:"progress"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	EarningsSoFar  float64 `json:"earnings_so_far"`
}

// EarningsSnapshot is the payload of an earnings_update event
type EarningsSnapshot struct {
	ProviderID      string              `json:"provider_id"`
	SettledEarnings float64             `json:"settled_earnings"`
	AccruedEarnings float64             `json:"accrued_earnings"`
	ActiveJobs      []ActiveJobEarnings `json:"active_jobs"`
}
