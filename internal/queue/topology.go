// Package queue declares the upload-event topology on RabbitMQ and provides
// a publisher with confirms plus per-queue consumers with manual acks.
package queue

import (
	"fmt"

	"github.com/dmitrijs2005/flaxvault/internal/server/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	Exchange           = "flaxum.upload.object"
	DeadLetterExchange = "flaxum.upload.object.dlx"

	UserQueue  = "upload.user"
	RobotQueue = "upload.robot"

	UserRoutingKey  = "event.upload.user"
	RobotRoutingKey = "event.upload.robot"

	// RetryCountHeader counts how many times the worker has re-published a message.
	RetryCountHeader = "x-retry-count"
)

// Binding ties a work queue to its routing key.
type Binding struct {
	Queue      string
	RoutingKey string
}

// Bindings lists every work queue. Each has a dead-letter twin named by DeadLetterQueue.
var Bindings = []Binding{
	{Queue: UserQueue, RoutingKey: UserRoutingKey},
	{Queue: RobotQueue, RoutingKey: RobotRoutingKey},
}

// DeadLetterQueue names the queue that collects rejected messages of q.
func DeadLetterQueue(q string) string {
	return q + ".dead"
}

// RoutingKey selects the routing key for events created by kind.
func RoutingKey(kind models.ActorKind) string {
	if kind == models.ActorRobot {
		return RobotRoutingKey
	}
	return UserRoutingKey
}

// Channel is the subset of *amqp.Channel used by this package.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// DeclareTopology idempotently declares both exchanges, the work queues with
// their dead-letter routing, and the dead-letter queues.
func DeclareTopology(ch Channel) error {
	if err := ch.ExchangeDeclare(Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}
	if err := ch.ExchangeDeclare(DeadLetterExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", DeadLetterExchange, err)
	}

	for _, b := range Bindings {
		args := amqp.Table{"x-dead-letter-exchange": DeadLetterExchange}
		if _, err := ch.QueueDeclare(b.Queue, true, false, false, false, args); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.Queue, err)
		}
		if err := ch.QueueBind(b.Queue, b.RoutingKey, Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.Queue, err)
		}

		dead := DeadLetterQueue(b.Queue)
		if _, err := ch.QueueDeclare(dead, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", dead, err)
		}
		if err := ch.QueueBind(dead, b.RoutingKey, DeadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", dead, err)
		}
	}

	return nil
}

// RetryCount reads RetryCountHeader from headers, tolerating the integer
// widths the broker may hand back. Missing or malformed values count as 0.
func RetryCount(headers amqp.Table) int {
	switch v := headers[RetryCountHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	default:
		return 0
	}
}
