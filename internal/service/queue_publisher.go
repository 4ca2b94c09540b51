// Package queue_publisher provides functions to publish domain events to RabbitMQ.
// Errors are logged and returned to allow callers to ignore failures without
// interrupting the main request flow.
package queue_publisher

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/procurement-gateway/internal/logging"
	q "github.com/iliyamo/procurement-gateway/internal/queue"
)

// Publisher dials the broker per publish; submissions are rare enough that
// a held connection is not worth its reconnect handling.
type Publisher struct {
	URL string
	Log logging.Logger
}

func NewPublisher(url string, log logging.Logger) *Publisher {
	if log == nil {
		log = logging.Discard()
	}
	return &Publisher{URL: url, Log: log}
}

// PublishProcurementSubmitted publishes a ProcurementSubmittedEvent to the
// "procurement.submitted" queue. The function attempts to be robust and
// to never panic; any error is logged and returned so the caller can
// choose to ignore it. Messages are marked as persistent.
func (p *Publisher) PublishProcurementSubmitted(ctx context.Context, event q.ProcurementSubmittedEvent) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		p.Log.Warn(ctx, "rabbitmq: dial failed", "error", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.Log.Warn(ctx, "rabbitmq: channel open failed", "error", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		q.SubmittedQueueName, // name
		true,                 // durable
		false,                // autoDelete
		false,                // exclusive
		false,                // noWait
		nil,                  // args
	); err != nil {
		p.Log.Warn(ctx, "rabbitmq: queue declare failed", "error", err)
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.Log.Warn(ctx, "rabbitmq: marshal event failed", "error", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",                   // default exchange
		q.SubmittedQueueName, // routing key = queue name
		false,                // mandatory
		false,                // immediate
		pub,
	); err != nil {
		p.Log.Warn(ctx, "rabbitmq: publish failed", "error", err)
		return err
	}

	return nil
}
