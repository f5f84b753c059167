// Package domain contains the relay entities and their state rules, without transport.
package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type SessionID string

type SessionState string

const (
	StateIdle         SessionState = "idle"
	StateSearching    SessionState = "searching"
	StateMatched      SessionState = "matched"
	StateInCall       SessionState = "in_call"
	StateDisconnected SessionState = "disconnected"
)

var allowedTransitions = map[SessionState]map[SessionState]struct{}{
	StateIdle: {
		StateSearching:    {},
		StateDisconnected: {},
	},
	StateSearching: {
		StateIdle:         {},
		StateMatched:      {},
		StateDisconnected: {},
	},
	StateMatched: {
		StateInCall:       {},
		StateIdle:         {},
		StateDisconnected: {},
	},
	StateInCall: {
		StateIdle:         {},
		StateDisconnected: {},
	},
	StateDisconnected: {
		StateIdle:    {},
		StateMatched: {},
		StateInCall:  {},
	},
}

// CanTransition reports whether a session may move from one state to another.
func CanTransition(from, to SessionState) bool {
	_, ok := allowedTransitions[from][to]
	return ok
}

type MediaPrefs struct {
	AudioEnabled bool `json:"audioEnabled"`
	VideoEnabled bool `json:"videoEnabled"`
}

// Compatible reports whether two participants may be paired when
// media preference matching is enabled.
func (p MediaPrefs) Compatible(o MediaPrefs) bool {
	return p.VideoEnabled == o.VideoEnabled
}

// Session is one anonymous participant. The transport handle lives in the
// registry; a Session only carries identity and pairing state.
//
// Invariant: RoomID != "" only while State is matched or in_call.
type Session struct {
	ID SessionID

	mu          sync.RWMutex
	token       string
	state       SessionState
	resumeState SessionState
	prefs       MediaPrefs
	roomID      RoomID
	lastSeenAt  time.Time
}

func NewSession() *Session {
	return &Session{
		ID:         SessionID(uuid.NewString()),
		state:      StateIdle,
		lastSeenAt: time.Now(),
	}
}

// SessionView is a point-in-time copy of a Session.
type SessionView struct {
	ID         SessionID    `json:"id"`
	State      SessionState `json:"state"`
	Prefs      MediaPrefs   `json:"mediaPrefs"`
	RoomID     RoomID       `json:"roomId,omitempty"`
	LastSeenAt time.Time    `json:"lastSeenAt"`
}

func (s *Session) View() SessionView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionView{
		ID:         s.ID,
		State:      s.state,
		Prefs:      s.prefs,
		RoomID:     s.roomID,
		LastSeenAt: s.lastSeenAt,
	}
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) RoomID() RoomID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomID
}

func (s *Session) Prefs() MediaPrefs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) SetToken(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = value
}

func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeenAt = time.Now()
}

// StartSearch moves an idle session into the searching state.
func (s *Session) StartSearch(prefs MediaPrefs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roomID != "" {
		return ErrAlreadyInRoom
	}
	s.prefs = prefs
	if s.state == StateSearching {
		return nil
	}
	return s.transitionLocked(StateSearching)
}

// StopSearch returns a searching session to idle. Other states are untouched.
func (s *Session) StopSearch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSearching {
		return false
	}
	s.state = StateIdle
	return true
}

// Pair binds the session to a freshly created room.
func (s *Session) Pair(roomID RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roomID != "" {
		return ErrAlreadyInRoom
	}
	if err := s.transitionLocked(StateMatched); err != nil {
		return err
	}
	s.roomID = roomID
	return nil
}

// MarkInCall moves matched -> in_call if the session is still in roomID.
func (s *Session) MarkInCall(roomID RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roomID != roomID || s.state != StateMatched {
		return false
	}
	s.state = StateInCall
	return true
}

// Release clears the room binding. A connected session returns to idle,
// a disconnected one stays disconnected and forgets what it would resume.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = ""
	if s.state == StateDisconnected {
		s.resumeState = StateIdle
		return
	}
	s.state = StateIdle
}

// Disconnect marks the transport as gone. The room binding is parked so the
// invariant on RoomID holds; Resume restores it.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return
	}
	switch s.state {
	case StateMatched, StateInCall:
		s.resumeState = s.state
	default:
		s.resumeState = StateIdle
	}
	s.state = StateDisconnected
	s.roomID = ""
}

// Resume rebinds a disconnected session. roomID is the room it still
// belongs to, or empty when the room was closed meanwhile.
func (s *Session) Resume(roomID RoomID) SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeenAt = time.Now()
	if roomID == "" {
		s.state = StateIdle
		s.roomID = ""
		return s.state
	}
	next := s.resumeState
	if next != StateInCall {
		next = StateMatched
	}
	s.state = next
	s.roomID = roomID
	return s.state
}

func (s *Session) transitionLocked(to SessionState) error {
	if !CanTransition(s.state, to) {
		return &TransitionError{From: s.state, To: to}
	}
	s.state = to
	return nil
}
