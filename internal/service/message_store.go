package service

import (
	"context"
	"fmt"
	"time"

	"clubing-chat/internal/domain"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultHistoryLimit = 30
	MaxHistoryLimit     = 100
)

var validate = validator.New()

// MessageStore is the append-only message log of every room.
type MessageStore struct {
	messages     domain.MessageRepository
	defaultLimit int
	maxLimit     int
	now          func() time.Time
}

// NewMessageStore wraps repo. Non-positive limits fall back to the package defaults.
func NewMessageStore(repo domain.MessageRepository, defaultLimit, maxLimit int) *MessageStore {
	if defaultLimit <= 0 {
		defaultLimit = DefaultHistoryLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxHistoryLimit
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &MessageStore{
		messages:     repo,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		now:          storeNow,
	}
}

// Append persists a message and returns it with ID and timestamp set.
func (s *MessageStore) Append(ctx context.Context, clubID domain.ClubID, senderID domain.MemberID, content string, images []domain.ImageRef) (*domain.Message, error) {
	if !domain.HasBody(content, images) {
		return nil, domain.ErrInvalidMessage
	}
	for i := range images {
		if err := validate.Struct(images[i]); err != nil {
			return nil, fmt.Errorf("%w: image %d: %v", domain.ErrInvalidMessage, i, err)
		}
	}

	msg := &domain.Message{
		ClubID:    clubID,
		SenderID:  senderID,
		Content:   content,
		Images:    append([]domain.ImageRef{}, images...),
		CreatedAt: s.now(),
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Query returns messages created at or after since, newest first.
func (s *MessageStore) Query(ctx context.Context, clubID domain.ClubID, since time.Time, skip, limit int) ([]*domain.Message, error) {
	skip, limit = s.Window(skip, limit)
	return s.messages.Query(ctx, clubID, since, skip, limit)
}

// Window normalizes paging arguments the way Query applies them.
func (s *MessageStore) Window(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	return skip, limit
}
