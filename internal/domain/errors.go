package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("expired token")
	ErrNotInRoom       = errors.New("session is not a participant of the room")
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomClosed      = errors.New("room closed")
	ErrSessionNotFound = errors.New("session not found")
	ErrAlreadyInRoom   = errors.New("session already in a room")
	ErrNotConnected    = errors.New("session has no connection")
)

type TransitionError struct {
	From SessionState
	To   SessionState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal session transition %s -> %s", e.From, e.To)
}

// Reason maps an error to the reason string sent to clients.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrExpiredToken):
		return "expired_token"
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrRoomClosed):
		return "room_closed"
	case errors.Is(err, ErrNotInRoom):
		return "not_a_participant"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrAlreadyInRoom):
		return "already_in_room"
	}
	return "internal_error"
}
