package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	"go.uber.org/zap"
)

type reportHandler struct {
	lifecycle *jobLifecycle
	log       *zap.Logger
}

// NewReportHandler creates the handler that applies execution reports from
// workers to the job state machine
func NewReportHandler(lifecycle *jobLifecycle, log *zap.Logger) *reportHandler {
	return &reportHandler{
		lifecycle: lifecycle,
		log:       log,
	}
}

// Handle applies one execution report. Stale or out-of-order reports are
// logged and dropped so the queue does not redeliver them forever; any
// other failure is returned for redelivery.
func (h *reportHandler) Handle(ctx context.Context, report *domain.ExecutionReport) error {
	if report.JobID == "" {
		h.log.Warn("Dropping report without job id")
		return nil
	}

	var err error
	switch report.Kind {
	case domain.ReportKindProgress:
		err = h.lifecycle.ReportProgress(ctx, report.JobID, report.Progress)
	case domain.ReportKindCompleted:
		err = h.lifecycle.Complete(ctx, report.JobID, report.Result)
	case domain.ReportKindFailed:
		err = h.lifecycle.Fail(ctx, report.JobID, report.Reason)
	default:
		h.log.Warn("Dropping report of unknown kind",
			zap.String("job_id", report.JobID),
			zap.String("kind", string(report.Kind)))
		return nil
	}

	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrStaleProgress) || errors.Is(err, domain.ErrInvalidTransition) {
		h.log.Warn("Dropping report rejected by state machine",
			zap.String("job_id", report.JobID),
			zap.String("kind", string(report.Kind)),
			zap.Error(err))
		return nil
	}
	return fmt.Errorf("apply %s report for job %s: %w", report.Kind, report.JobID, err)
}
