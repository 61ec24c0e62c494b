package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clubing-chat/internal/domain"
	"clubing-chat/internal/observability"
)

// RoomRepository implements domain.RoomRepository for PostgreSQL
type RoomRepository struct {
	db  *sql.DB
	txm *TxManager
}

// NewRoomRepository creates a new PostgreSQL room repository
func NewRoomRepository(db *sql.DB) *RoomRepository {
	return &RoomRepository{db: db, txm: NewTxManager(db)}
}

// EnsureRoom creates the room row if it is missing and returns the room.
// Concurrent callers for the same club observe a single row.
func (r *RoomRepository) EnsureRoom(ctx context.Context, clubID domain.ClubID) (*domain.Room, bool, error) {
	defer observeQuery("upsert", "chat_rooms", time.Now())

	query := `
		INSERT INTO chat_rooms (club_id)
		VALUES ($1)
		ON CONFLICT (club_id) DO NOTHING
		RETURNING created_at
	`
	var createdAt time.Time
	err := r.db.QueryRowContext(ctx, query, int64(clubID)).Scan(&createdAt)
	switch {
	case err == nil:
		return domain.NewRoom(clubID, createdAt), true, nil
	case errors.Is(err, sql.ErrNoRows):
		room, err := r.GetRoom(ctx, clubID)
		if err != nil {
			return nil, false, err
		}
		return room, false, nil
	default:
		return nil, false, fmt.Errorf("failed to ensure room: %w", err)
	}
}

// GetRoom loads a room with its full roster
func (r *RoomRepository) GetRoom(ctx context.Context, clubID domain.ClubID) (*domain.Room, error) {
	query := `
		SELECT created_at
		FROM chat_rooms
		WHERE club_id = $1
	`
	var createdAt time.Time
	err := r.db.QueryRowContext(ctx, query, int64(clubID)).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	participants, err := r.ListParticipants(ctx, clubID)
	if err != nil {
		return nil, err
	}

	room := domain.NewRoom(clubID, createdAt)
	for _, p := range participants {
		room.Admit(p.MemberID, p.JoinedAt)
	}
	return room, nil
}

// AddParticipants inserts the participations in one transaction. Members
// already on the roster keep their original join time.
func (r *RoomRepository) AddParticipants(ctx context.Context, clubID domain.ClubID, participants []domain.Participation) error {
	if len(participants) == 0 {
		return nil
	}
	defer observeQuery("insert", "chat_participants", time.Now())

	query := `
		INSERT INTO chat_participants (club_id, member_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (club_id, member_id) DO NOTHING
	`
	err := r.txm.WithTx(ctx, func(tx *sql.Tx) error {
		for _, p := range participants {
			if _, err := tx.ExecContext(ctx, query, int64(clubID), string(p.MemberID), p.JoinedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if IsForeignKeyViolation(err, "") {
		return domain.ErrRoomNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to add participants: %w", err)
	}
	return nil
}

// GetParticipant returns one roster entry, distinguishing a missing room
// from a missing member.
func (r *RoomRepository) GetParticipant(ctx context.Context, clubID domain.ClubID, memberID domain.MemberID) (*domain.Participation, error) {
	defer observeQuery("select", "chat_participants", time.Now())

	query := `
		SELECT p.member_id, p.joined_at
		FROM chat_rooms r
		LEFT JOIN chat_participants p ON p.club_id = r.club_id AND p.member_id = $2
		WHERE r.club_id = $1
	`
	var (
		member   sql.NullString
		joinedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, int64(clubID), string(memberID)).Scan(&member, &joinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	if !member.Valid {
		return nil, domain.ErrParticipantNotFound
	}

	return &domain.Participation{
		MemberID: domain.MemberID(member.String),
		JoinedAt: joinedAt.Time,
	}, nil
}

// ListParticipants returns the roster in admission order
func (r *RoomRepository) ListParticipants(ctx context.Context, clubID domain.ClubID) ([]domain.Participation, error) {
	query := `
		SELECT member_id, joined_at
		FROM chat_participants
		WHERE club_id = $1
		ORDER BY seq
	`
	rows, err := r.db.QueryContext(ctx, query, int64(clubID))
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	participants := make([]domain.Participation, 0)
	for rows.Next() {
		var (
			p      domain.Participation
			member string
		)
		if err := rows.Scan(&member, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.MemberID = domain.MemberID(member)
		participants = append(participants, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}
	return participants, nil
}

func observeQuery(operation, table string, start time.Time) {
	observability.DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}
