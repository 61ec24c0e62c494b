package service

import (
	"context"

	"clubing-chat/internal/domain"
	"clubing-chat/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// VisibilityResolver limits history to what a participant may read: only
// messages created at or after the participant joined.
type VisibilityResolver struct {
	rooms domain.RoomRepository
	store *MessageStore
}

func NewVisibilityResolver(rooms domain.RoomRepository, store *MessageStore) *VisibilityResolver {
	return &VisibilityResolver{rooms: rooms, store: store}
}

func (v *VisibilityResolver) VisibleHistory(ctx context.Context, clubID domain.ClubID, callerID domain.MemberID, skip, limit int) (messages []*domain.Message, err error) {
	ctx, span := observability.StartSpan(ctx, "chat.history",
		attribute.Int64("club.id", int64(clubID)),
		attribute.Int("history.skip", skip),
		attribute.Int("history.limit", limit),
	)
	defer func() { observability.EndSpan(span, err) }()

	participant, err := requireParticipant(ctx, v.rooms, clubID, callerID)
	if err != nil {
		return nil, err
	}

	messages, err = v.store.Query(ctx, clubID, participant.JoinedAt, skip, limit)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("history.returned", len(messages)))
	return messages, nil
}
