package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"clubing-chat/internal/domain"
	"clubing-chat/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// Broadcaster fans a stored message out to live subscribers. Publish must
// not block on slow receivers.
type Broadcaster interface {
	Publish(clubID domain.ClubID, msg *domain.Message)
}

// MultiBroadcaster publishes to every wrapped broadcaster in order.
type MultiBroadcaster []Broadcaster

func (m MultiBroadcaster) Publish(clubID domain.ClubID, msg *domain.Message) {
	for _, b := range m {
		if b != nil {
			b.Publish(clubID, msg)
		}
	}
}

// ContentFilter rewrites message text before it is stored.
type ContentFilter interface {
	Censor(content string) string
}

// SubmitRequest is one chat message as sent by an authenticated member.
type SubmitRequest struct {
	ClubID   domain.ClubID
	SenderID domain.MemberID
	Content  string
	Images   []domain.ImageRef
}

// IngestionPipeline validates, stores and broadcasts submitted messages.
type IngestionPipeline struct {
	rooms       domain.RoomRepository
	store       *MessageStore
	broadcaster Broadcaster
	filter      ContentFilter
	locks       *keyedMutex
}

// NewIngestionPipeline wires the pipeline. filter may be nil.
func NewIngestionPipeline(rooms domain.RoomRepository, store *MessageStore, broadcaster Broadcaster, filter ContentFilter) *IngestionPipeline {
	return &IngestionPipeline{
		rooms:       rooms,
		store:       store,
		broadcaster: broadcaster,
		filter:      filter,
		locks:       newKeyedMutex(),
	}
}

// Submit stores req and publishes it to the room. Nothing is stored or
// published when any check fails. Once the message is stored it is
// published even if ctx has been cancelled meanwhile; a ctx cancelled
// before the append leaves nothing stored or published.
func (p *IngestionPipeline) Submit(ctx context.Context, req SubmitRequest) (msg *domain.Message, err error) {
	ctx, span := observability.StartSpan(ctx, "chat.submit",
		attribute.Int64("club.id", int64(req.ClubID)),
		attribute.Int("message.images", len(req.Images)),
	)
	defer func() {
		observability.EndSpan(span, err)
		observability.MessagesIngested.WithLabelValues(outcome(err)).Inc()
	}()

	if !domain.HasBody(req.Content, req.Images) {
		return nil, domain.ErrEmptyMessage
	}

	if _, err := requireParticipant(ctx, p.rooms, req.ClubID, req.SenderID); err != nil {
		return nil, err
	}

	content := req.Content
	if p.filter != nil && strings.TrimSpace(content) != "" {
		content = p.filter.Censor(content)
	}

	// Append and publish under the club lock so subscribers see messages
	// in commit order.
	unlock := p.locks.Lock(req.ClubID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msg, err = p.store.Append(ctx, req.ClubID, req.SenderID, content, req.Images)
	if err != nil {
		return nil, err
	}

	if p.broadcaster != nil {
		p.broadcaster.Publish(req.ClubID, msg)
	}

	observability.FromContext(ctx).Debug("message stored",
		slog.Int64("message_id", msg.ID),
		slog.Int64("club_id", int64(req.ClubID)),
	)
	return msg, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "stored"
	case errors.Is(err, domain.ErrEmptyMessage), errors.Is(err, domain.ErrInvalidMessage):
		return "invalid"
	case errors.Is(err, domain.ErrNotParticipant), errors.Is(err, domain.ErrRoomNotFound):
		return "rejected"
	default:
		return "failed"
	}
}
