package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type RoomID string

type RoomState string

const (
	RoomPending RoomState = "pending"
	RoomActive  RoomState = "active"
	RoomClosed  RoomState = "closed"
)

type CloseReason string

const (
	ReasonSkipped      CloseReason = "skipped"
	ReasonDisconnected CloseReason = "disconnected"
	ReasonLeft         CloseReason = "left"
)

type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// Room pairs exactly two sessions. Participants are fixed at creation and a
// closed room is never reopened.
type Room struct {
	ID           RoomID
	ParticipantA SessionID
	ParticipantB SessionID
	InitiatorID  SessionID
	CreatedAt    time.Time

	mu          sync.RWMutex
	state       RoomState
	closeReason CloseReason
}

// NewRoom builds a pending room. a is the initiator.
func NewRoom(a, b SessionID) *Room {
	return &Room{
		ID:           RoomID(uuid.NewString()),
		ParticipantA: a,
		ParticipantB: b,
		InitiatorID:  a,
		CreatedAt:    time.Now(),
		state:        RoomPending,
	}
}

func (r *Room) State() RoomState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Room) CloseReason() CloseReason {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closeReason
}

func (r *Room) IsClosed() bool { return r.State() == RoomClosed }

// Activate moves pending -> active. It never reopens a closed room.
func (r *Room) Activate() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RoomPending {
		return false
	}
	r.state = RoomActive
	return true
}

// Close reports false if the room was already closed.
func (r *Room) Close(reason CloseReason) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RoomClosed {
		return false
	}
	r.state = RoomClosed
	r.closeReason = reason
	return true
}

func (r *Room) Has(sid SessionID) bool {
	return sid == r.ParticipantA || sid == r.ParticipantB
}

// Partner returns the other participant of sid.
func (r *Room) Partner(sid SessionID) (SessionID, bool) {
	switch sid {
	case r.ParticipantA:
		return r.ParticipantB, true
	case r.ParticipantB:
		return r.ParticipantA, true
	}
	return "", false
}

func (r *Room) RoleOf(sid SessionID) Role {
	if sid == r.InitiatorID {
		return RoleInitiator
	}
	return RoleResponder
}
