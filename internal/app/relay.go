package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

// Relay forwards signaling between the two participants of a room. It never
// inspects payloads and never caches room state: every message re-checks
// membership and liveness.
type Relay struct {
	registry *Registry
	rooms    *RoomManager
	policy   Policy
}

func NewRelay(registry *Registry, rooms *RoomManager, policy Policy) *Relay {
	return &Relay{registry: registry, rooms: rooms, policy: policy}
}

// Forward delivers payload from sender to its partner in roomID. A partner
// without a connection (grace window) loses the message.
func (r *Relay) Forward(from domain.SessionID, roomID domain.RoomID, kind Kind, payload json.RawMessage) error {
	sender, ok := r.registry.Get(from)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if roomID == "" || sender.RoomID() != roomID {
		return domain.ErrNotInRoom
	}
	room, err := r.rooms.Get(roomID)
	if err != nil {
		return err
	}
	partner, ok := room.Partner(from)
	if !ok {
		return domain.ErrNotInRoom
	}

	msg, err := buildMessage(room.ID, from, kind, payload)
	if err != nil {
		return err
	}
	frame, err := Encode(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}

	// Closing may have raced the lookups above.
	if room.IsClosed() {
		return domain.ErrRoomClosed
	}
	sender.Touch()

	if err := r.registry.Send(partner, frame); err != nil {
		r.onSendError(room, partner, kind, err)
		return nil
	}

	switch kind {
	case KindOffer:
		room.Activate()
	case KindAnswer:
		room.Activate()
		r.rooms.MarkInCall(from, room.ID)
		r.rooms.MarkInCall(partner, room.ID)
	}
	return nil
}

func (r *Relay) onSendError(room *domain.Room, partner domain.SessionID, kind Kind, err error) {
	logger := log.With().
		Str("module", "app.relay").
		Str("room", string(room.ID)).
		Str("to", string(partner)).
		Str("kind", string(kind)).
		Logger()

	if !errors.Is(err, core.ErrBackpressure) || r.policy == nil {
		logger.Debug().Err(err).Msg("partner unreachable, message dropped")
		return
	}
	switch r.policy.OnBackPressure(room, partner, kind) {
	case KickMember:
		logger.Warn().Msg("partner too slow, closing its connection")
		if conn, ok := r.registry.Conn(partner); ok {
			conn.Close()
		}
	case DropFrame, NoAction:
		logger.Debug().Msg("partner backpressure, message dropped")
	}
}

func buildMessage(room domain.RoomID, from domain.SessionID, kind Kind, payload json.RawMessage) (any, error) {
	switch kind {
	case KindOffer:
		return SignalMsg{Type: kind, Room: room, From: from, Offer: payload}, nil
	case KindAnswer:
		return SignalMsg{Type: kind, Room: room, From: from, Answer: payload}, nil
	case KindCandidate:
		return SignalMsg{Type: kind, Room: room, From: from, Candidate: payload}, nil
	case KindChat:
		var text string
		if err := json.Unmarshal(payload, &text); err != nil {
			return nil, fmt.Errorf("chat payload: %w", err)
		}
		return ChatMsg{
			Type:      kind,
			Room:      room,
			Message:   text,
			From:      from,
			Timestamp: time.Now().UnixMilli(),
		}, nil
	}
	return nil, fmt.Errorf("unknown message kind %q", kind)
}
