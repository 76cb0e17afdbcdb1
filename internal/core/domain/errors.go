// Package domain provides the marketplace entities, status enums and the
// error taxonomy shared by services and adapters.
package domain

import "errors"

var (
	// ErrValidation marks malformed input, e.g. a negative compute
	// requirement. Rejected synchronously, never retried.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition marks a state-machine precondition violation,
	// including a losing concurrent assign attempt.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrStaleProgress marks a progress report lower than the job's
	// current progress. The caller may ignore or log it.
	ErrStaleProgress = errors.New("stale progress report")

	// ErrUnknownJobType marks a job type with neither a benchmark nor a
	// heuristic fallback duration.
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrUpstreamUnavailable marks a ledger or balance fetch failure.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrReassignmentExhausted marks a failed job that already used up
	// its reassignment budget; the job stays FAILED terminally.
	ErrReassignmentExhausted = errors.New("reassignment attempts exhausted")

	// ErrNotFound marks a missing job, provider or transaction.
	ErrNotFound = errors.New("not found")
)
