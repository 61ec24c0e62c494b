// Package badgerstore keeps rooms and messages in an embedded Badger
// database for single-node deployments.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"clubing-chat/internal/domain"

	"github.com/dgraph-io/badger/v4"
)

const (
	roomPrefix      = "room:"
	messagePrefix   = "msg:"
	messageSeqKey   = "seq:messages"
	seqBandwidth    = 100
	conflictRetries = 5
)

// Store implements domain.RoomRepository and domain.MessageRepository on Badger.
// Keys are zero padded so lexical order matches numeric order:
//
//	room:<club>                     JSON room with roster
//	msg:<club>:<unix nanos>:<id>    JSON message
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
	log *slog.Logger
}

// New wraps an open Badger database. The caller keeps ownership of db;
// Close only releases the message ID sequence.
func New(db *badger.DB, log *slog.Logger) (*Store, error) {
	seq, err := db.GetSequence([]byte(messageSeqKey), seqBandwidth)
	if err != nil {
		return nil, fmt.Errorf("failed to open message sequence: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, seq: seq, log: log}, nil
}

// Close releases leased sequence numbers.
func (s *Store) Close() error {
	return s.seq.Release()
}

func roomKey(clubID domain.ClubID) []byte {
	return []byte(fmt.Sprintf("%s%019d", roomPrefix, int64(clubID)))
}

func messageRoomPrefix(clubID domain.ClubID) []byte {
	return []byte(fmt.Sprintf("%s%019d:", messagePrefix, int64(clubID)))
}

func messageKey(m *domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%019d:%019d:%019d", messagePrefix, int64(m.ClubID), m.CreatedAt.UnixNano(), m.ID))
}

// update runs fn in a read-write transaction, retrying on write conflicts.
// A cancelled ctx aborts before the next attempt commits.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			if err := fn(txn); err != nil {
				return err
			}
			return ctx.Err()
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debug("badger transaction conflict, retrying", slog.Int("attempt", attempt+1))
	}
	return err
}

func loadRoom(txn *badger.Txn, clubID domain.ClubID) (*domain.Room, error) {
	item, err := txn.Get(roomKey(clubID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}

	var room domain.Room
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &room)
	}); err != nil {
		return nil, fmt.Errorf("failed to decode room %d: %w", clubID, err)
	}
	if room.Participants == nil {
		room.Participants = []domain.Participation{}
	}
	return &room, nil
}

func saveRoom(txn *badger.Txn, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to encode room %d: %w", room.ClubID, err)
	}
	return txn.Set(roomKey(room.ClubID), data)
}

func now() time.Time {
	return time.Now().UTC()
}

// sinceKey is the smallest key of clubID at or after since.
func sinceKey(clubID domain.ClubID, since time.Time) []byte {
	nanos := int64(0)
	if !since.IsZero() && since.UnixNano() > 0 {
		nanos = since.UnixNano()
	}
	return []byte(fmt.Sprintf("%s%019d:", messageRoomPrefix(clubID), nanos))
}

// upperBound sorts after every message key of clubID.
func upperBound(clubID domain.ClubID) []byte {
	return append(messageRoomPrefix(clubID), []byte(fmt.Sprintf("%019d", int64(math.MaxInt64)))...)
}
