package domain

import (
	"context"
	"strings"
	"time"
)

// ImageRef points at an uploaded image and its thumbnail.
type ImageRef struct {
	Original  string `json:"original" validate:"required,max=2048"`
	Thumbnail string `json:"thumbnail" validate:"required,max=2048"`
}

// Message is an immutable chat message.
type Message struct {
	ID        int64      `json:"id"`
	ClubID    ClubID     `json:"clubId"`
	SenderID  MemberID   `json:"sender"`
	Content   string     `json:"content"`
	Images    []ImageRef `json:"images"`
	CreatedAt time.Time  `json:"timestamp"`
}

// HasBody reports whether the message carries text or at least one image.
func HasBody(content string, images []ImageRef) bool {
	return strings.TrimSpace(content) != "" || len(images) > 0
}

// MessageRepository is the durable, append-only message log.
type MessageRepository interface {
	// Append stores message and assigns its ID, stamping CreatedAt when it
	// is zero. It returns once the write is durable.
	Append(ctx context.Context, message *Message) error
	// Query returns messages of clubID created at or after since, newest
	// first, skipping the skip most recent matches.
	Query(ctx context.Context, clubID ClubID, since time.Time, skip, limit int) ([]*Message, error)
}
