package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"clubing-chat/internal/domain"
	"clubing-chat/internal/observability"

	"github.com/google/uuid"
)

const (
	relayQueueSize      = 1024
	relayPublishTimeout = 5 * time.Second
)

// Envelope is the wire form of a relayed message.
type Envelope struct {
	Origin  string          `json:"origin"`
	ClubID  domain.ClubID   `json:"clubId"`
	Message *domain.Message `json:"message"`
}

// Publisher sends encoded envelopes to the broker.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

type outgoing struct {
	clubID domain.ClubID
	msg    *domain.Message
}

// Relay forwards locally stored messages to other instances. Publish only
// enqueues; Run drains the queue in order so peers see messages in the
// order they were committed here.
type Relay struct {
	origin string
	pub    Publisher
	queue  chan outgoing
}

func NewRelay(pub Publisher) *Relay {
	return newRelay(pub, relayQueueSize)
}

func newRelay(pub Publisher, size int) *Relay {
	return &Relay{
		origin: uuid.NewString(),
		pub:    pub,
		queue:  make(chan outgoing, size),
	}
}

// Origin identifies this instance in relayed envelopes.
func (r *Relay) Origin() string { return r.origin }

// Publish queues msg for relaying. A full queue drops the message for
// remote subscribers only; it is already stored and delivered locally.
func (r *Relay) Publish(clubID domain.ClubID, msg *domain.Message) {
	select {
	case r.queue <- outgoing{clubID: clubID, msg: msg}:
	default:
		observability.RelayEvents.WithLabelValues("out", "dropped").Inc()
		slog.Warn("relay queue full, message not relayed",
			slog.Int64("club_id", int64(clubID)),
			slog.Int64("message_id", msg.ID))
	}
}

// Run publishes queued messages until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping message relay")
			return ctx.Err()
		case out := <-r.queue:
			r.send(ctx, out)
		}
	}
}

func (r *Relay) send(ctx context.Context, out outgoing) {
	body, err := json.Marshal(Envelope{Origin: r.origin, ClubID: out.clubID, Message: out.msg})
	if err != nil {
		observability.RelayEvents.WithLabelValues("out", "failed").Inc()
		slog.Error("failed to encode relay envelope", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
	defer cancel()

	if err := r.pub.Publish(ctx, body); err != nil {
		observability.RelayEvents.WithLabelValues("out", "failed").Inc()
		slog.Error("failed to relay message",
			slog.String("error", err.Error()),
			slog.Int64("club_id", int64(out.clubID)),
			slog.Int64("message_id", out.msg.ID))
		return
	}
	observability.RelayEvents.WithLabelValues("out", "published").Inc()
}
