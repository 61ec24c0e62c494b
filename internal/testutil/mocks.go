// Package testutil provides shared test doubles, fixtures and helpers for
// the chat packages.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"clubing-chat/internal/domain"
)

var ErrMockFailure = errors.New("mock: injected failure")

// MockRoomRepository is an in-memory domain.RoomRepository. Set a Func
// field to override one method.
type MockRoomRepository struct {
	mu sync.RWMutex

	EnsureRoomFunc       func(ctx context.Context, clubID domain.ClubID) (*domain.Room, bool, error)
	GetRoomFunc          func(ctx context.Context, clubID domain.ClubID) (*domain.Room, error)
	AddParticipantsFunc  func(ctx context.Context, clubID domain.ClubID, participants []domain.Participation) error
	GetParticipantFunc   func(ctx context.Context, clubID domain.ClubID, memberID domain.MemberID) (*domain.Participation, error)
	ListParticipantsFunc func(ctx context.Context, clubID domain.ClubID) ([]domain.Participation, error)

	Rooms map[domain.ClubID]*domain.Room
	Now   func() time.Time
}

func NewMockRoomRepository() *MockRoomRepository {
	return &MockRoomRepository{Rooms: make(map[domain.ClubID]*domain.Room)}
}

func cloneRoom(r *domain.Room) *domain.Room {
	out := domain.NewRoom(r.ClubID, r.CreatedAt)
	for _, p := range r.Participants {
		out.Admit(p.MemberID, p.JoinedAt)
	}
	return out
}

func (m *MockRoomRepository) EnsureRoom(ctx context.Context, clubID domain.ClubID) (*domain.Room, bool, error) {
	if m.EnsureRoomFunc != nil {
		return m.EnsureRoomFunc(ctx, clubID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if room, ok := m.Rooms[clubID]; ok {
		return cloneRoom(room), false, nil
	}
	now := time.Now()
	if m.Now != nil {
		now = m.Now()
	}
	room := domain.NewRoom(clubID, now)
	m.Rooms[clubID] = room
	return cloneRoom(room), true, nil
}

func (m *MockRoomRepository) GetRoom(ctx context.Context, clubID domain.ClubID) (*domain.Room, error) {
	if m.GetRoomFunc != nil {
		return m.GetRoomFunc(ctx, clubID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.Rooms[clubID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

func (m *MockRoomRepository) AddParticipants(ctx context.Context, clubID domain.ClubID, participants []domain.Participation) error {
	if m.AddParticipantsFunc != nil {
		return m.AddParticipantsFunc(ctx, clubID, participants)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.Rooms[clubID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	for _, p := range participants {
		room.Admit(p.MemberID, p.JoinedAt)
	}
	return nil
}

func (m *MockRoomRepository) GetParticipant(ctx context.Context, clubID domain.ClubID, memberID domain.MemberID) (*domain.Participation, error) {
	if m.GetParticipantFunc != nil {
		return m.GetParticipantFunc(ctx, clubID, memberID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.Rooms[clubID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	p, ok := room.Participant(memberID)
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	return &p, nil
}

func (m *MockRoomRepository) ListParticipants(ctx context.Context, clubID domain.ClubID) ([]domain.Participation, error) {
	if m.ListParticipantsFunc != nil {
		return m.ListParticipantsFunc(ctx, clubID)
	}
	room, err := m.GetRoom(ctx, clubID)
	if err != nil {
		return nil, err
	}
	return room.Participants, nil
}

// MockMessageRepository is an in-memory domain.MessageRepository.
type MockMessageRepository struct {
	mu     sync.RWMutex
	nextID int64

	AppendFunc func(ctx context.Context, message *domain.Message) error
	QueryFunc  func(ctx context.Context, clubID domain.ClubID, since time.Time, skip, limit int) ([]*domain.Message, error)

	Messages []*domain.Message
}

func NewMockMessageRepository() *MockMessageRepository {
	return &MockMessageRepository{}
}

func (m *MockMessageRepository) Append(ctx context.Context, message *domain.Message) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, message)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	message.ID = m.nextID
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	stored := *message
	m.Messages = append(m.Messages, &stored)
	return nil
}

func (m *MockMessageRepository) Query(ctx context.Context, clubID domain.ClubID, since time.Time, skip, limit int) ([]*domain.Message, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, clubID, since, skip, limit)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]*domain.Message, 0)
	for _, msg := range m.Messages {
		if msg.ClubID == clubID && !msg.CreatedAt.Before(since) {
			cp := *msg
			matches = append(matches, &cp)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID > matches[j].ID
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	if skip >= len(matches) {
		return []*domain.Message{}, nil
	}
	matches = matches[skip:]
	if limit < len(matches) {
		matches = matches[:limit]
	}
	return matches, nil
}

// Count returns the number of stored messages.
func (m *MockMessageRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Messages)
}

// MockClubDirectory answers from static club rosters.
type MockClubDirectory struct {
	mu sync.RWMutex

	ExistsFunc   func(ctx context.Context, clubID domain.ClubID) (bool, error)
	IsMemberFunc func(ctx context.Context, clubID domain.ClubID, memberID domain.MemberID) (bool, error)

	Clubs map[domain.ClubID]map[domain.MemberID]bool
}

func NewMockClubDirectory() *MockClubDirectory {
	return &MockClubDirectory{Clubs: make(map[domain.ClubID]map[domain.MemberID]bool)}
}

// AddClub registers a club with the given members.
func (m *MockClubDirectory) AddClub(clubID domain.ClubID, members ...domain.MemberID) *MockClubDirectory {
	m.mu.Lock()
	defer m.mu.Unlock()

	roster := make(map[domain.MemberID]bool, len(members))
	for _, member := range members {
		roster[member] = true
	}
	m.Clubs[clubID] = roster
	return m
}

func (m *MockClubDirectory) Exists(ctx context.Context, clubID domain.ClubID) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, clubID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.Clubs[clubID]
	return ok, nil
}

func (m *MockClubDirectory) IsMember(ctx context.Context, clubID domain.ClubID, memberID domain.MemberID) (bool, error) {
	if m.IsMemberFunc != nil {
		return m.IsMemberFunc(ctx, clubID, memberID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Clubs[clubID][memberID], nil
}

// RecordingBroadcaster captures published messages.
type RecordingBroadcaster struct {
	mu        sync.Mutex
	Published []*domain.Message
}

func (b *RecordingBroadcaster) Publish(clubID domain.ClubID, msg *domain.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Published = append(b.Published, msg)
}

func (b *RecordingBroadcaster) Messages() []*domain.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*domain.Message, len(b.Published))
	copy(out, b.Published)
	return out
}
