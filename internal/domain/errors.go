package domain

import "errors"

var (
	ErrRoomNotResolvable   = errors.New("club does not exist")
	ErrRoomNotFound        = errors.New("chat room not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrNotParticipant      = errors.New("member is not a participant of this chat room")
	ErrNotClubMember       = errors.New("member does not belong to this club")
	ErrEmptyMessage        = errors.New("message has neither content nor images")
	ErrInvalidMessage      = errors.New("invalid message")
	ErrInvalidInput        = errors.New("invalid input")
)
