package domain

type ReportKind string

const (
	ReportKindProgress  ReportKind = "progress"
	ReportKindCompleted ReportKind = "completed"
	ReportKindFailed    ReportKind = "failed"
)

// ExecutionReport is what an execution worker sends back about a job it
// is running. Progress is only meaningful for progress reports, Result
// for completions, Reason for failures.
type ExecutionReport struct {
	JobID    string     `json:"job_id"`
	Kind     ReportKind `json:"kind"`
	Progress int        `json:"progress,omitempty"`
	Result   string     `json:"result,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}
