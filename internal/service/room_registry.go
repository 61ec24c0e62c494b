package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"clubing-chat/internal/domain"
	"clubing-chat/internal/observability"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
)

// RoomRegistry owns chat rooms and their rosters.
type RoomRegistry struct {
	rooms domain.RoomRepository
	clubs domain.ClubDirectory
	locks *keyedMutex
	now   func() time.Time
}

func NewRoomRegistry(rooms domain.RoomRepository, clubs domain.ClubDirectory) *RoomRegistry {
	return &RoomRegistry{
		rooms: rooms,
		clubs: clubs,
		locks: newKeyedMutex(),
		now:   storeNow,
	}
}

// storeNow is the timestamp source shared by rosters and messages. It is
// truncated to the precision every store keeps.
func storeNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// EnsureRoom returns the club's room, creating it on first use.
func (r *RoomRegistry) EnsureRoom(ctx context.Context, clubID domain.ClubID) (*domain.Room, error) {
	unlock := r.locks.Lock(clubID)
	defer unlock()

	room, _, err := r.rooms.EnsureRoom(ctx, clubID)
	return room, err
}

// RequireClubMember fails with ErrRoomNotResolvable for unknown clubs and
// ErrNotClubMember when memberID does not belong to the club.
func (r *RoomRegistry) RequireClubMember(ctx context.Context, clubID domain.ClubID, memberID domain.MemberID) error {
	exists, err := r.clubs.Exists(ctx, clubID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrRoomNotResolvable
	}

	member, err := r.clubs.IsMember(ctx, clubID, memberID)
	if err != nil {
		return err
	}
	if !member {
		return domain.ErrNotClubMember
	}
	return nil
}

// Join admits memberIDs to the club's room, creating the room if needed.
// Duplicates and members already on the roster are ignored; ids that do not
// belong to the club are skipped. created reports whether the room was
// created by this call.
func (r *RoomRegistry) Join(ctx context.Context, clubID domain.ClubID, memberIDs []domain.MemberID) (room *domain.Room, created bool, err error) {
	ctx, span := observability.StartSpan(ctx, "chat.room.join",
		attribute.Int64("club.id", int64(clubID)),
		attribute.Int("join.requested", len(memberIDs)),
	)
	defer func() { observability.EndSpan(span, err) }()

	ids := lo.Uniq(lo.Compact(memberIDs))
	if len(ids) == 0 {
		return nil, false, domain.ErrInvalidInput
	}

	exists, err := r.clubs.Exists(ctx, clubID)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, domain.ErrRoomNotResolvable
	}

	unlock := r.locks.Lock(clubID)
	defer unlock()

	room, created, err = r.rooms.EnsureRoom(ctx, clubID)
	if err != nil {
		return nil, false, err
	}

	log := observability.FromContext(observability.WithClubID(ctx, int64(clubID)))
	joinedAt := r.now()
	admitted := make([]domain.Participation, 0, len(ids))
	for _, id := range ids {
		if _, ok := room.Participant(id); ok {
			continue
		}
		member, err := r.clubs.IsMember(ctx, clubID, id)
		if err != nil {
			return nil, false, err
		}
		if !member {
			log.Warn("skipping join of non club member", slog.String("candidate", string(id)))
			continue
		}
		admitted = append(admitted, domain.Participation{MemberID: id, JoinedAt: joinedAt})
	}

	if len(admitted) > 0 {
		if err := r.rooms.AddParticipants(ctx, clubID, admitted); err != nil {
			return nil, false, err
		}
		// Another instance may have admitted the same member first; report
		// the join times that were actually kept.
		participants, err := r.rooms.ListParticipants(ctx, clubID)
		if err != nil {
			return nil, false, err
		}
		room.SetParticipants(participants)
	}

	span.SetAttributes(attribute.Int("join.admitted", len(admitted)))
	log.Info("room roster updated",
		slog.Bool("created", created),
		slog.Int("admitted", len(admitted)),
		slog.Int("participants", len(room.Participants)),
	)
	return room, created, nil
}

func (r *RoomRegistry) GetRoom(ctx context.Context, clubID domain.ClubID) (*domain.Room, error) {
	return r.rooms.GetRoom(ctx, clubID)
}

func (r *RoomRegistry) GetParticipant(ctx context.Context, clubID domain.ClubID, memberID domain.MemberID) (*domain.Participation, error) {
	return r.rooms.GetParticipant(ctx, clubID, memberID)
}

// ListParticipants returns the roster in admission order.
func (r *RoomRegistry) ListParticipants(ctx context.Context, clubID domain.ClubID) ([]domain.Participation, error) {
	return r.rooms.ListParticipants(ctx, clubID)
}

// requireParticipant maps a missing roster entry to ErrNotParticipant.
func requireParticipant(ctx context.Context, rooms domain.RoomRepository, clubID domain.ClubID, memberID domain.MemberID) (*domain.Participation, error) {
	p, err := rooms.GetParticipant(ctx, clubID, memberID)
	if errors.Is(err, domain.ErrParticipantNotFound) {
		return nil, domain.ErrNotParticipant
	}
	return p, err
}
