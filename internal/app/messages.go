package app

import (
	"encoding/json"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
)

// Kind is a relayed message type.
type Kind string

const (
	KindOffer     Kind = "offer"
	KindAnswer    Kind = "answer"
	KindCandidate Kind = "candidate"
	KindChat      Kind = "chat_message"
)

// Server -> client message types.
const (
	TypeWelcome             = "welcome"
	TypeSearching           = "searching"
	TypeRoomAssigned        = "room_assigned"
	TypeRoomJoined          = "room_joined"
	TypePartnerSkipped      = "partner_skipped"
	TypePartnerDisconnected = "partner_disconnected"
	TypeJoinFailed          = "join_failed"
	TypeReconnectSuccess    = "reconnect_success"
	TypeReconnectFailed     = "reconnect_failed"
	TypeUserCount           = "user_count"
	TypeSearchTimeout       = "search_timeout"
	TypePong                = "pong"
	TypeError               = "error"
)

type WelcomeMsg struct {
	Type      string           `json:"type"`
	Token     string           `json:"token"`
	SessionID domain.SessionID `json:"sessionId"`
}

type RoomMsg struct {
	Type      string           `json:"type"`
	Room      domain.RoomID    `json:"room"`
	Initiator bool             `json:"initiator"`
	Role      domain.Role      `json:"role"`
	PartnerID domain.SessionID `json:"partnerId"`
}

// NewRoomMsg describes room r from the point of view of sid.
func NewRoomMsg(typ string, r *domain.Room, sid domain.SessionID) RoomMsg {
	partner, _ := r.Partner(sid)
	role := r.RoleOf(sid)
	return RoomMsg{
		Type:      typ,
		Room:      r.ID,
		Initiator: role == domain.RoleInitiator,
		Role:      role,
		PartnerID: partner,
	}
}

type SignalMsg struct {
	Type      Kind             `json:"type"`
	Room      domain.RoomID    `json:"room"`
	From      domain.SessionID `json:"from"`
	Offer     json.RawMessage  `json:"offer,omitempty"`
	Answer    json.RawMessage  `json:"answer,omitempty"`
	Candidate json.RawMessage  `json:"candidate,omitempty"`
}

type ChatMsg struct {
	Type      Kind             `json:"type"`
	Room      domain.RoomID    `json:"room"`
	Message   string           `json:"message"`
	From      domain.SessionID `json:"from"`
	Timestamp int64            `json:"timestamp"`
}

type NoticeMsg struct {
	Type string `json:"type"`
}

type FailedMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type ReconnectMsg struct {
	Type      string           `json:"type"`
	Token     string           `json:"token"`
	SessionID domain.SessionID `json:"sessionId"`
	Room      domain.RoomID    `json:"room,omitempty"`
	PartnerID domain.SessionID `json:"partnerId,omitempty"`
	Role      domain.Role      `json:"role,omitempty"`
	Initiator bool             `json:"initiator,omitempty"`
}

type UserCountMsg struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

func Encode(v any) (core.Frame, error) {
	return json.Marshal(v)
}
