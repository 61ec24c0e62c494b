package domain

import (
	"context"
	"time"
)

// ClubID identifies a club. It is assigned by the club service.
type ClubID int64

// MemberID identifies a platform user.
type MemberID string

// Participation records when a member was admitted to a room.
type Participation struct {
	MemberID MemberID  `json:"memberId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Room is the chat channel of one club. Participants keep insertion order
// and hold at most one entry per member.
type Room struct {
	ClubID       ClubID          `json:"clubId"`
	CreatedAt    time.Time       `json:"createdAt"`
	Participants []Participation `json:"participants"`

	index map[MemberID]int
}

// NewRoom returns an empty room for the club.
func NewRoom(clubID ClubID, createdAt time.Time) *Room {
	return &Room{
		ClubID:       clubID,
		CreatedAt:    createdAt,
		Participants: []Participation{},
	}
}

func (r *Room) reindex() {
	r.index = make(map[MemberID]int, len(r.Participants))
	for i, p := range r.Participants {
		r.index[p.MemberID] = i
	}
}

// Participant returns the participation of memberID, if any.
func (r *Room) Participant(memberID MemberID) (Participation, bool) {
	if r.index == nil || len(r.index) != len(r.Participants) {
		r.reindex()
	}
	i, ok := r.index[memberID]
	if !ok {
		return Participation{}, false
	}
	return r.Participants[i], true
}

// Admit adds memberID with the given join time unless it is already a
// participant. It reports whether the roster changed.
func (r *Room) Admit(memberID MemberID, at time.Time) bool {
	if _, ok := r.Participant(memberID); ok {
		return false
	}
	r.Participants = append(r.Participants, Participation{MemberID: memberID, JoinedAt: at})
	r.index[memberID] = len(r.Participants) - 1
	return true
}

// SetParticipants replaces the roster with a stored one.
func (r *Room) SetParticipants(participants []Participation) {
	if participants == nil {
		participants = []Participation{}
	}
	r.Participants = participants
	r.index = nil
}

// RoomRepository persists rooms and their rosters.
type RoomRepository interface {
	// EnsureRoom returns the room for clubID, creating it when missing.
	// created reports whether this call created it.
	EnsureRoom(ctx context.Context, clubID ClubID) (room *Room, created bool, err error)
	GetRoom(ctx context.Context, clubID ClubID) (*Room, error)
	// AddParticipants stores the given participations, leaving existing
	// members untouched.
	AddParticipants(ctx context.Context, clubID ClubID, participants []Participation) error
	GetParticipant(ctx context.Context, clubID ClubID, memberID MemberID) (*Participation, error)
	ListParticipants(ctx context.Context, clubID ClubID) ([]Participation, error)
}

// ClubDirectory answers club membership questions. Clubs are owned by
// another service.
type ClubDirectory interface {
	Exists(ctx context.Context, clubID ClubID) (bool, error)
	IsMember(ctx context.Context, clubID ClubID, memberID MemberID) (bool, error)
}
