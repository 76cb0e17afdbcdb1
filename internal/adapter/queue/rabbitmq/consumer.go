package rabbitmq

import (
	"context"
	"encoding/json"

	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	"go.uber.org/zap"
)

// reportQueue carries execution reports (progress/completed/failed) from
// workers back to the broker
const reportQueue = "jobs.reports"

// Consume listens on the execution report queue and feeds each report to
// the handler. Reports are acked only after the handler returns nil; a
// handler error requeues the delivery.
func (q *queueService) Consume(ctx context.Context, handler func(ctx context.Context, report *domain.ExecutionReport) error) error {
	_, err := q.ch.QueueDeclare(
		reportQueue, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return err
	}

	msgs, err := q.ch.Consume(
		reportQueue, // queue
		"",          // consumer
		false,       // auto-ack (ack manually after the state machine applied it)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return err
	}

	q.log.Info("Started consuming execution reports", zap.String("queue", reportQueue))

	go func() {
		for d := range msgs {
			var report domain.ExecutionReport
			if err := json.Unmarshal(d.Body, &report); err != nil {
				q.log.Error("Failed to unmarshal execution report", zap.Error(err))
				d.Nack(false, false) // discard invalid message
				continue
			}

			q.log.Debug("Received execution report",
				zap.String("job_id", report.JobID),
				zap.String("kind", string(report.Kind)))

			if err := handler(ctx, &report); err != nil {
				q.log.Error("Report handling failed, requeueing", zap.Error(err))
				d.Nack(false, true)
			} else {
				d.Ack(false)
			}
		}
	}()

	return nil
}
