package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/flaxvault/internal/logging"
	"github.com/dmitrijs2005/flaxvault/internal/metrics"
	"github.com/dmitrijs2005/flaxvault/internal/queue"
	"github.com/dmitrijs2005/flaxvault/internal/server/config"
	"github.com/dmitrijs2005/flaxvault/internal/server/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
)

const maxRetryDelay = 5 * time.Minute

// ErrDeliveriesClosed is returned by Run when the broker stops delivering.
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// Handler processes one decoded event. *Processor implements it.
type Handler interface {
	Process(ctx context.Context, ev models.UploadEvent) (Result, error)
	DropStaging(ctx context.Context, ev models.UploadEvent)
	// Fail records that ev is about to be dead-lettered.
	Fail(ctx context.Context, ev models.UploadEvent)
	// Touch records that ev is still in flight.
	Touch(ctx context.Context, ev models.UploadEvent)
}

// Consumer drives one queue: it acks successes, republishes transient
// failures with an incremented retry count and dead-letters the rest.
type Consumer struct {
	queue       string
	handler     Handler
	publisher   queue.Publisher
	maxAttempts int
	baseDelay   time.Duration
	metrics     *metrics.Metrics
	logger      logging.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewConsumer(queueName string, h Handler, pub queue.Publisher, cfg *config.Config,
	mt *metrics.Metrics, logger logging.Logger) *Consumer {
	return &Consumer{
		queue:       queueName,
		handler:     h,
		publisher:   pub,
		maxAttempts: cfg.WorkerMaxAttempts,
		baseDelay:   cfg.WorkerRetryBaseDelay,
		metrics:     mt,
		logger:      logger.With("module", "consumer", "queue", queueName),
		sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run handles deliveries one at a time until ctx is done or the channel closes.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%s: %w", c.queue, ErrDeliveriesClosed)
			}
			c.Handle(ctx, d)
		}
	}
}

func decodeEvent(body []byte) (models.UploadEvent, error) {
	var ev models.UploadEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, err
	}
	if ev.OwnerID == "" || ev.ObjectID == "" || ev.ContentKey == "" {
		return ev, errors.New("incomplete upload event")
	}
	return ev, nil
}

// Handle settles exactly one delivery.
func (c *Consumer) Handle(ctx context.Context, d amqp.Delivery) {
	started := time.Now()
	defer c.metrics.ObserveProcess(c.queue, started)

	ev, err := decodeEvent(d.Body)
	if err != nil {
		c.logger.Error(ctx, "undecodable message", "message_id", d.MessageId, "error", err)
		c.settle(ctx, d, metrics.OutcomeDeadLettered, d.Nack(false, false))
		return
	}

	res, err := c.handler.Process(ctx, ev)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			c.logger.Error(ctx, "ack failed", "object_id", ev.ObjectID, "error", ackErr)
			return
		}
		if res.DropStaging {
			c.handler.DropStaging(ctx, ev)
		}
		c.metrics.Encrypted(res.StoredBytes)
		c.metrics.WorkerOutcome(c.queue, res.Outcome)
		return
	}

	attempt := queue.RetryCount(d.Headers) + 1

	switch {
	case errors.Is(err, ErrPermanent):
		c.logger.Error(ctx, "permanent failure, dead-lettering", "object_id", ev.ObjectID, "error", err)
		c.deadLetter(ctx, d, ev)
	case ctx.Err() != nil:
		c.logger.Warn(ctx, "interrupted, requeueing", "object_id", ev.ObjectID)
		c.settle(ctx, d, metrics.OutcomeRequeued, d.Nack(false, true))
	case attempt >= c.maxAttempts:
		c.logger.Error(ctx, "retries exhausted, dead-lettering", "object_id", ev.ObjectID, "attempt", attempt, "error", err)
		c.deadLetter(ctx, d, ev)
	default:
		c.logger.Warn(ctx, "transient failure, retrying", "object_id", ev.ObjectID, "attempt", attempt, "error", err)
		c.retry(ctx, d, ev, attempt)
	}
}

// deadLetter marks the upload failed first, so the pending sweeper does not
// bring the event back, and then rejects d into the dead-letter queue.
func (c *Consumer) deadLetter(ctx context.Context, d amqp.Delivery, ev models.UploadEvent) {
	c.handler.Fail(ctx, ev)
	c.settle(ctx, d, metrics.OutcomeDeadLettered, d.Nack(false, false))
}

// backoff returns the delay before the given retry attempt (1-based).
func (c *Consumer) backoff(attempt int) time.Duration {
	if c.baseDelay <= 0 {
		return 0
	}
	b := retry.WithCappedDuration(maxRetryDelay, retry.NewExponential(c.baseDelay))
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d, _ = b.Next()
	}
	return d
}

// retry waits, republishes d with the retry count bumped and acks the
// original. If the wait is interrupted or the publish fails, the original is
// requeued instead so nothing is lost. The upload is touched before the wait
// and after the publish so the pending sweeper leaves it alone meanwhile.
func (c *Consumer) retry(ctx context.Context, d amqp.Delivery, ev models.UploadEvent, attempt int) {
	c.handler.Touch(ctx, ev)
	if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
		c.settle(ctx, d, metrics.OutcomeRequeued, d.Nack(false, true))
		return
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[queue.RetryCountHeader] = int32(attempt)

	err := c.publisher.Publish(ctx, d.RoutingKey, amqp.Publishing{
		Headers:      headers,
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Body:         d.Body,
	})
	if err != nil {
		c.logger.Error(ctx, "republish failed, requeueing", "message_id", d.MessageId, "error", err)
		c.settle(ctx, d, metrics.OutcomeRequeued, d.Nack(false, true))
		return
	}
	c.handler.Touch(ctx, ev)

	c.settle(ctx, d, metrics.OutcomeRetried, d.Ack(false))
}

func (c *Consumer) settle(ctx context.Context, d amqp.Delivery, outcome string, err error) {
	if err != nil {
		c.logger.Error(ctx, "failed to settle delivery", "message_id", d.MessageId, "outcome", outcome, "error", err)
		return
	}
	c.metrics.WorkerOutcome(c.queue, outcome)
}
