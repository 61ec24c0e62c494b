package websocket

import (
	"errors"

	"clubing-chat/internal/domain"
)

// Event names on the wire.
const (
	EventJoinRoom  = "joinRoom"
	EventLeaveRoom = "leaveRoom"
	EventMessage   = "message"
	EventJoined    = "joined"
	EventLeft      = "left"
	EventError     = "error"
)

// Error codes carried by error events.
const (
	CodeRoomNotFound   = "room_not_found"
	CodeNotParticipant = "not_a_participant"
	CodeInvalidMessage = "invalid_message"
	CodeRateLimited    = "rate_limited"
	CodeInternal       = "internal"
)

// inboundEvent is any client to server frame.
type inboundEvent struct {
	Event   string            `json:"event" validate:"required,oneof=joinRoom leaveRoom message"`
	ClubID  int64             `json:"clubId" validate:"gt=0"`
	Content string            `json:"content" validate:"max=4000"`
	Images  []domain.ImageRef `json:"images" validate:"max=10,dive"`
}

type messageEvent struct {
	Event   string          `json:"event"`
	Message *domain.Message `json:"message"`
}

type roomEvent struct {
	Event  string `json:"event"`
	ClubID int64  `json:"clubId"`
}

type errorEvent struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorCode maps service failures to the code sent to the client.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrRoomNotResolvable):
		return CodeRoomNotFound
	case errors.Is(err, domain.ErrNotParticipant), errors.Is(err, domain.ErrNotClubMember):
		return CodeNotParticipant
	case errors.Is(err, domain.ErrEmptyMessage), errors.Is(err, domain.ErrInvalidMessage), errors.Is(err, domain.ErrInvalidInput):
		return CodeInvalidMessage
	default:
		return CodeInternal
	}
}
