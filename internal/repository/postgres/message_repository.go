package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"clubing-chat/internal/domain"
)

// MessageRepository implements domain.MessageRepository for PostgreSQL
type MessageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a new PostgreSQL message repository
func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append inserts a message and assigns its ID
func (r *MessageRepository) Append(ctx context.Context, message *domain.Message) error {
	defer observeQuery("insert", "chat_messages", time.Now())

	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	images := message.Images
	if images == nil {
		images = []domain.ImageRef{}
	}
	encoded, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("failed to encode images: %w", err)
	}

	query := `
		INSERT INTO chat_messages (club_id, sender_id, content, images, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err = r.db.QueryRowContext(ctx, query,
		int64(message.ClubID),
		string(message.SenderID),
		message.Content,
		encoded,
		message.CreatedAt,
	).Scan(&message.ID)

	if IsForeignKeyViolation(err, "") {
		return domain.ErrRoomNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	message.Images = images
	return nil
}

// Query returns messages of a club created at or after since, newest first
func (r *MessageRepository) Query(ctx context.Context, clubID domain.ClubID, since time.Time, skip, limit int) ([]*domain.Message, error) {
	defer observeQuery("select", "chat_messages", time.Now())

	query := `
		SELECT id, club_id, sender_id, content, images, created_at
		FROM chat_messages
		WHERE club_id = $1 AND created_at >= $2
		ORDER BY created_at DESC, id DESC
		OFFSET $3
		LIMIT $4
	`

	rows, err := r.db.QueryContext(ctx, query, int64(clubID), since, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0, limit)
	for rows.Next() {
		var (
			msg    domain.Message
			club   int64
			sender string
			images []byte
		)
		if err := rows.Scan(&msg.ID, &club, &sender, &msg.Content, &images, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.ClubID = domain.ClubID(club)
		msg.SenderID = domain.MemberID(sender)
		if err := json.Unmarshal(images, &msg.Images); err != nil {
			return nil, fmt.Errorf("failed to decode images of message %d: %w", msg.ID, err)
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}
