package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iavendas62-collab/qubix-sub003/internal/core/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// eventsExchange fans broker events out to subscribers (dashboards,
// notification workers) by routing key
const eventsExchange = "marketplace.events"

type queueService struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *zap.Logger
}

// NewQueueService connects to RabbitMQ with retry and declares the events
// exchange. The returned service is both the event publisher and the
// execution report consumer.
func NewQueueService(url string, log *zap.Logger) (*queueService, error) {
	var conn *amqp.Connection
	var err error

	// Retry connection up to 10 times with backoff
	maxRetries := 10
	for i := 1; i <= maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			ch, chErr := conn.Channel()
			if chErr == nil {
				if declErr := ch.ExchangeDeclare(
					eventsExchange, // name
					"topic",        // kind
					true,           // durable
					false,          // auto-delete
					false,          // internal
					false,          // no-wait
					nil,            // args
				); declErr != nil {
					conn.Close()
					return nil, fmt.Errorf("declare events exchange: %w", declErr)
				}
				return &queueService{
					conn: conn,
					ch:   ch,
					log:  log,
				}, nil
			}
			err = chErr
			conn.Close()
		}

		log.Warn("Failed to connect to RabbitMQ, retrying...",
			zap.Int("attempt", i),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)

		// Simple incremental backoff
		time.Sleep(time.Duration(i*2) * time.Second)
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
}

// Publish pushes one broker event to the events exchange. The routing key
// is "<event type>.<provider id>" so a subscriber can bind to all events
// of a type or just one provider's stream.
func (q *queueService) Publish(ctx context.Context, event domain.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	routingKey := string(event.Type)
	if event.ProviderID != "" {
		routingKey = fmt.Sprintf("%s.%s", event.Type, event.ProviderID)
	}

	err = q.ch.PublishWithContext(ctx,
		eventsExchange, // Exchange
		routingKey,     // Routing key
		false,          // Mandatory
		false,          // Immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   event.OccurredAt,
		})

	if err != nil {
		q.log.Error("Failed to publish event",
			zap.String("event_type", string(event.Type)),
			zap.String("key", routingKey),
			zap.Error(err))
		return err
	}

	q.log.Debug("Published event", zap.String("key", routingKey))
	return nil
}

// PublishReport pushes an execution report onto the durable report queue
// via the default exchange. Workers call this; the broker consumes it.
func (q *queueService) PublishReport(ctx context.Context, report *domain.ExecutionReport) error {
	if _, err := q.ch.QueueDeclare(
		reportQueue, // name
		true,        // durable
		false,       // auto-delete
		false,       // exclusive
		false,       // no-wait
		nil,         // args
	); err != nil {
		return fmt.Errorf("declare report queue: %w", err)
	}

	body, err := json.Marshal(report)
	if err != nil {
		return err
	}

	err = q.ch.PublishWithContext(ctx,
		"",          // default exchange
		reportQueue, // routed straight to the queue
		false,       // Mandatory
		false,       // Immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		q.log.Error("Failed to publish report",
			zap.String("job_id", report.JobID),
			zap.String("kind", string(report.Kind)),
			zap.Error(err))
		return err
	}

	q.log.Debug("Published report",
		zap.String("job_id", report.JobID),
		zap.String("kind", string(report.Kind)))
	return nil
}

// Close tears down channel and connection
func (q *queueService) Close() {
	if q.ch != nil {
		q.ch.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
}
