package deliverymq

import (
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

// Broker resources. The retry scheduler is not code: a message parked
// in the retry queue dead-letters back to the main exchange with the
// delivery routing key once its per-message TTL expires.
const (
	ExchangeMain = "webhookhub"
	ExchangeDLX  = "deliveries.dlx"

	QueueMain  = "webhookhub.deliveries"
	QueueRetry = "deliveries.retry.q"
	QueueDLQ   = "deliveries.dlq"

	RoutingKeyDelivery = "delivery"

	// Queue-level TTL on the main queue. A job that sits unconsumed
	// this long dead-letters to the DLX.
	mainQueueTTLMillis = 1_800_000
)

// DeclareInfra declares the full delivery topology. Declarations are
// idempotent: redeclaring with identical arguments is a no-op, while a
// mismatch fails the channel with PRECONDITION_FAILED, which is the
// loud failure we want on drifted infrastructure.
func DeclareInfra(conn *amqp091.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		ExchangeMain, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeMain, err)
	}
	if err := ch.ExchangeDeclare(
		ExchangeDLX, // name
		"fanout",    // type
		true,        // durable
		false,       // auto-deleted
		false,       // internal
		false,       // no-wait
		nil,         // arguments
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeDLX, err)
	}

	if _, err := ch.QueueDeclare(
		QueueMain, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		amqp091.Table{
			"x-message-ttl":          int32(mainQueueTTLMillis),
			"x-dead-letter-exchange": ExchangeDLX,
		}, // arguments
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueMain, err)
	}
	if _, err := ch.QueueDeclare(
		QueueRetry, // name
		true,       // durable
		false,      // delete when unused
		false,      // exclusive
		false,      // no-wait
		amqp091.Table{
			"x-dead-letter-exchange":    ExchangeMain,
			"x-dead-letter-routing-key": RoutingKeyDelivery,
		}, // arguments
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueRetry, err)
	}
	if _, err := ch.QueueDeclare(
		QueueDLQ, // name
		true,     // durable
		false,    // delete when unused
		false,    // exclusive
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueDLQ, err)
	}

	if err := ch.QueueBind(
		QueueMain,          // queue name
		RoutingKeyDelivery, // routing key
		ExchangeMain,       // exchange
		false,
		nil,
	); err != nil {
		return fmt.Errorf("bind queue %s: %w", QueueMain, err)
	}
	if err := ch.QueueBind(
		QueueDLQ,    // queue name
		"",          // routing key (fanout)
		ExchangeDLX, // exchange
		false,
		nil,
	); err != nil {
		return fmt.Errorf("bind queue %s: %w", QueueDLQ, err)
	}

	return nil
}

// TeardownInfra deletes the topology. Test helper.
func TeardownInfra(conn *amqp091.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	for _, queue := range []string{QueueMain, QueueRetry, QueueDLQ} {
		if _, err := ch.QueueDelete(queue, false, false, false); err != nil {
			return fmt.Errorf("delete queue %s: %w", queue, err)
		}
	}
	for _, exchange := range []string{ExchangeMain, ExchangeDLX} {
		if err := ch.ExchangeDelete(exchange, false, false); err != nil {
			return fmt.Errorf("delete exchange %s: %w", exchange, err)
		}
	}
	return nil
}
