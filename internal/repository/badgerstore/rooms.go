package badgerstore

import (
	"context"
	"errors"
	"fmt"

	"clubing-chat/internal/domain"

	"github.com/dgraph-io/badger/v4"
)

func (s *Store) EnsureRoom(ctx context.Context, clubID domain.ClubID) (*domain.Room, bool, error) {
	var (
		room    *domain.Room
		created bool
	)
	err := s.update(ctx, func(txn *badger.Txn) error {
		existing, err := loadRoom(txn, clubID)
		if err == nil {
			room, created = existing, false
			return nil
		}
		if !errors.Is(err, domain.ErrRoomNotFound) {
			return err
		}

		room, created = domain.NewRoom(clubID, now()), true
		return saveRoom(txn, room)
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure room: %w", err)
	}
	return room, created, nil
}

func (s *Store) GetRoom(ctx context.Context, clubID domain.ClubID) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var room *domain.Room
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		room, err = loadRoom(txn, clubID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// AddParticipants admits each participation, keeping the join time of
// members already on the roster.
func (s *Store) AddParticipants(ctx context.Context, clubID domain.ClubID, participants []domain.Participation) error {
	if len(participants) == 0 {
		return nil
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		room, err := loadRoom(txn, clubID)
		if err != nil {
			return err
		}

		changed := false
		for _, p := range participants {
			if room.Admit(p.MemberID, p.JoinedAt) {
				changed = true
			}
		}
		if !changed {
			return nil
		}
		return saveRoom(txn, room)
	})
}

func (s *Store) GetParticipant(ctx context.Context, clubID domain.ClubID, memberID domain.MemberID) (*domain.Participation, error) {
	room, err := s.GetRoom(ctx, clubID)
	if err != nil {
		return nil, err
	}
	p, ok := room.Participant(memberID)
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	return &p, nil
}

func (s *Store) ListParticipants(ctx context.Context, clubID domain.ClubID) ([]domain.Participation, error) {
	room, err := s.GetRoom(ctx, clubID)
	if err != nil {
		return nil, err
	}
	return room.Participants, nil
}
