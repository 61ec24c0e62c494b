package messaging

import (
	"context"
	"encoding/json"
	"log/slog"

	"clubing-chat/internal/domain"
	"clubing-chat/internal/observability"

	amqp "github.com/rabbitmq/amqp091-go"
)

// LocalDelivery hands a relayed message to this instance's subscribers.
type LocalDelivery interface {
	Publish(clubID domain.ClubID, msg *domain.Message)
}

// Consumer delivers messages relayed by other instances to the local hub.
type Consumer struct {
	rmq    *RabbitMQ
	origin string
	local  LocalDelivery
}

// NewConsumer skips envelopes carrying origin, which this instance has
// already delivered itself.
func NewConsumer(rmq *RabbitMQ, origin string, local LocalDelivery) *Consumer {
	return &Consumer{
		rmq:    rmq,
		origin: origin,
		local:  local,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.rmq.Subscribe()
	if err != nil {
		return err
	}
	go c.consume(ctx, msgs)
	return nil
}

func (c *Consumer) consume(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping relay consumer")
			return
		case msg, ok := <-msgs:
			if !ok {
				slog.Warn("relay consumer channel closed")
				return
			}
			c.handle(msg.Body)
		}
	}
}

func (c *Consumer) handle(body []byte) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Message == nil {
		observability.RelayEvents.WithLabelValues("in", "invalid").Inc()
		slog.Error("discarding malformed relay envelope", slog.Int("body_size", len(body)))
		return
	}

	if env.Origin == c.origin {
		observability.RelayEvents.WithLabelValues("in", "own").Inc()
		return
	}

	c.local.Publish(env.ClubID, env.Message)
	observability.RelayEvents.WithLabelValues("in", "delivered").Inc()
	slog.Debug("delivered relayed message",
		slog.String("origin", env.Origin),
		slog.Int64("club_id", int64(env.ClubID)),
		slog.Int64("message_id", env.Message.ID))
}
