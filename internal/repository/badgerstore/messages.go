package badgerstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clubing-chat/internal/domain"

	"github.com/dgraph-io/badger/v4"
)

// Append stores message under a time-ordered key. The room must exist.
func (s *Store) Append(ctx context.Context, message *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("failed to allocate message id: %w", err)
	}

	stored := *message
	stored.ID = int64(next) + 1
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now()
	}
	if stored.Images == nil {
		stored.Images = []domain.ImageRef{}
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	err = s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(stored.ClubID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrRoomNotFound
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return txn.Set(messageKey(&stored), data)
	})
	if err != nil {
		return err
	}

	*message = stored
	return nil
}

// Query walks the club's messages from newest to oldest, stopping at since.
func (s *Store) Query(ctx context.Context, clubID domain.ClubID, since time.Time, skip, limit int) ([]*domain.Message, error) {
	messages := make([]*domain.Message, 0, limit)
	if limit <= 0 {
		return messages, nil
	}

	prefix := messageRoomPrefix(clubID)
	floor := sinceKey(clubID, since)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		skipped := 0
		for it.Seek(upperBound(clubID)); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			if bytes.Compare(item.Key(), floor) < 0 {
				break
			}
			if skipped < skip {
				skipped++
				continue
			}

			var msg domain.Message
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return fmt.Errorf("failed to decode message %s: %w", item.Key(), err)
			}
			messages = append(messages, &msg)
			if len(messages) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return messages, nil
}
