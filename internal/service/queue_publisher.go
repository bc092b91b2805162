// Package queue_publisher publishes lending events to RabbitMQ.  Errors
// are logged and returned so handlers can ignore a broker outage without
// failing the request that triggered the event.
package queue_publisher

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/iliyamo/library-lending/internal/queue"
)

// PublishLoanIssued publishes a LoanIssuedEvent to the loan.issued queue.
func PublishLoanIssued(ctx context.Context, event q.LoanIssuedEvent) error {
	return publish(ctx, "loan.issued", event)
}

// PublishLoanReturned publishes a LoanReturnedEvent to the loan.returned
// queue.
func PublishLoanReturned(ctx context.Context, event q.LoanReturnedEvent) error {
	return publish(ctx, "loan.returned", event)
}

func publish(ctx context.Context, queueName string, event interface{}) error {
	conn, err := amqp.Dial(q.BrokerURL())
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Declare is idempotent; durable so events survive broker restarts.
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("rabbitmq: marshal event failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		log.Printf("rabbitmq: publish failed: %v", err)
		return err
	}
	return nil
}
