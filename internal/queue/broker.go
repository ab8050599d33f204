package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/flaxvault/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNacked is returned when the broker refuses a published message.
var ErrNacked = errors.New("message nacked by broker")

// publishChannel is the publishing side of *amqp.Channel.
type publishChannel interface {
	Channel
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
}

// Broker owns one AMQP connection, a confirm-mode channel for publishing and
// a fresh channel per consumer.
type Broker struct {
	conn       *amqp.Connection
	pub        publishChannel
	newChannel func() (Channel, error)
	logger     logging.Logger

	mu sync.Mutex
}

var amqpDial = amqp.Dial

// Dial connects to url, enables publisher confirms and declares the topology.
func Dial(url string, logger logging.Logger) (*Broker, error) {
	conn, err := amqpDial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp confirm mode: %w", err)
	}
	if err := DeclareTopology(ch); err != nil {
		_ = conn.Close()
		return nil, err
	}

	b := newBroker(ch, func() (Channel, error) { return conn.Channel() }, logger)
	b.conn = conn
	return b, nil
}

func newBroker(pub publishChannel, newChannel func() (Channel, error), logger logging.Logger) *Broker {
	return &Broker{
		pub:        pub,
		newChannel: newChannel,
		logger:     logger.With("module", "queue"),
	}
}

// Publish sends msg to Exchange with routingKey and waits for the broker's
// confirm. Messages are persistent JSON unless msg says otherwise.
func (b *Broker) Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	if msg.ContentType == "" {
		msg.ContentType = "application/json"
	}
	if msg.DeliveryMode == 0 {
		msg.DeliveryMode = amqp.Persistent
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	b.mu.Lock()
	dc, err := b.pub.PublishWithDeferredConfirmWithContext(ctx, Exchange, routingKey, false, false, msg)
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	// nil when the channel is not in confirm mode
	if dc == nil {
		return nil
	}

	ok, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("publish %s: wait confirm: %w", routingKey, err)
	}
	if !ok {
		return fmt.Errorf("publish %s: %w", routingKey, ErrNacked)
	}
	return nil
}

// Consume opens a dedicated channel with prefetch 1 and starts a manual-ack
// consumer on queue. Closing the returned channel stops the consumer.
func (b *Broker) Consume(queue, consumerTag string) (<-chan amqp.Delivery, Channel, error) {
	ch, err := b.newChannel()
	if err != nil {
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("qos: %w", err)
	}

	deliveries, err := ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	b.logger.Info(context.Background(), "consumer started", "queue", queue, "tag", consumerTag)
	return deliveries, ch, nil
}

// Close shuts down the publishing channel and the connection.
func (b *Broker) Close() error {
	var errs []error
	if b.pub != nil {
		errs = append(errs, b.pub.Close())
	}
	if b.conn != nil {
		errs = append(errs, b.conn.Close())
	}
	return errors.Join(errs...)
}
