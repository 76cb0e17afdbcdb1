package domain

import (
	"time"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusAssigned  JobStatus = "ASSIGNED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// Terminal reports whether a job in this status can never transition again,
// except FAILED which may re-enter PENDING through reassignment.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

type JobType string

const (
	JobTypeTraining  JobType = "training"
	JobTypeInference JobType = "inference"
	JobTypeRendering JobType = "rendering"
	JobTypeCustom    JobType = "custom"
)

// ResourceRequirements is the requirement vector a provider's capacity
// must dominate component-wise for the provider to be compatible.
type ResourceRequirements struct {
	VramGB       float64 `json:"vram_gb"`
	ComputeUnits float64 `json:"compute_units"`
	RamGB        float64 `json:"ram_gb"`
	StorageGB    float64 `json:"storage_gb"`
}

// EstimationParams are the declared workload parameters that scale the
// benchmark baseline duration (epochs/dataset linear, resolution quadratic).
type EstimationParams struct {
	Epochs      int `json:"epochs,omitempty"`
	Resolution  int `json:"resolution,omitempty"`
	DatasetSize int `json:"dataset_size,omitempty"`
}

// Job represents a unit of submitted work moving through the broker
type Job struct {
	ID                 string               `json:"id"`
	OwnerID            string               `json:"owner_id"`
	JobType            JobType              `json:"job_type"`
	ResourceClass      string               `json:"resource_class,omitempty"` // requested GPU class, e.g. "RTX 4090"
	Requirements       ResourceRequirements `json:"requirements"`
	Params             EstimationParams     `json:"params"`
	Budget             float64              `json:"budget"`
	Status             JobStatus            `json:"status"`
	Progress           int                  `json:"progress"` // 0-100, monotonic while RUNNING
	AssignedProviderID string               `json:"assigned_provider_id,omitempty"`
	EstimatedCost      float64              `json:"estimated_cost"`
	ActualCost         float64              `json:"actual_cost,omitempty"`
	FailureReason      string               `json:"failure_reason,omitempty"`
	ReassignmentCount  int                  `json:"reassignment_count"`
	CreatedAt          time.Time            `json:"created_at"`
	StartedAt          time.Time            `json:"started_at,omitempty"`
	CompletedAt        time.Time            `json:"completed_at,omitempty"`
}

// ClampProgress bounds a raw progress report to the valid 0-100 range
func ClampProgress(progress int) int {
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}
