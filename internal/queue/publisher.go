package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/flaxvault/internal/server/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends a raw message with a routing key. *Broker implements it.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error
}

// EventPublisher encodes upload events and routes them by actor kind.
type EventPublisher struct {
	pub Publisher
}

func NewEventPublisher(pub Publisher) *EventPublisher {
	return &EventPublisher{pub: pub}
}

// PublishUpload sends ev to the user or robot queue depending on kind.
func (p *EventPublisher) PublishUpload(ctx context.Context, kind models.ActorKind, ev models.UploadEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode upload event: %w", err)
	}

	return p.pub.Publish(ctx, RoutingKey(kind), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ObjectID,
		Body:         body,
	})
}
