package app

import (
	"sync"
	"time"

	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

const closedRoomRetention = 10 * time.Minute

// Directory is what the room manager needs from the connection registry.
type Directory interface {
	Get(sid domain.SessionID) (*domain.Session, bool)
	Notify(sid domain.SessionID, msg any) error
}

// RoomManager owns room lifecycle and the one-live-room-per-session index.
// Mutating calls are made by the orchestrator while it holds its lock;
// lookups may come from any goroutine.
type RoomManager struct {
	dir Directory

	mu        sync.RWMutex
	rooms     map[domain.RoomID]*domain.Room
	bySession map[domain.SessionID]domain.RoomID
	closed    map[domain.RoomID]closedRoom
}

type closedRoom struct {
	at   time.Time
	a, b domain.SessionID
}

func NewRoomManager(dir Directory) *RoomManager {
	return &RoomManager{
		dir:       dir,
		rooms:     make(map[domain.RoomID]*domain.Room),
		bySession: make(map[domain.SessionID]domain.RoomID),
		closed:    make(map[domain.RoomID]closedRoom),
	}
}

// CreateRoom pairs a and b into a new room. a becomes the initiator.
func (m *RoomManager) CreateRoom(a, b *domain.Session) (*domain.Room, error) {
	if a.ID == b.ID {
		return nil, domain.ErrAlreadyInRoom
	}
	room := domain.NewRoom(a.ID, b.ID)

	m.mu.Lock()
	_, busyA := m.bySession[a.ID]
	_, busyB := m.bySession[b.ID]
	if busyA || busyB {
		m.mu.Unlock()
		return nil, domain.ErrAlreadyInRoom
	}
	if err := a.Pair(room.ID); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := b.Pair(room.ID); err != nil {
		a.Release()
		m.mu.Unlock()
		return nil, err
	}
	m.rooms[room.ID] = room
	m.bySession[a.ID] = room.ID
	m.bySession[b.ID] = room.ID
	m.mu.Unlock()

	log.Info().
		Str("module", "app.rooms").
		Str("room", string(room.ID)).
		Str("initiator", string(a.ID)).
		Str("responder", string(b.ID)).
		Msg("room created")

	_ = m.dir.Notify(a.ID, NewRoomMsg(TypeRoomAssigned, room, a.ID))
	_ = m.dir.Notify(b.ID, NewRoomMsg(TypeRoomAssigned, room, b.ID))
	return room, nil
}

// Get returns a live room, or ErrRoomClosed / ErrRoomNotFound.
func (m *RoomManager) Get(id domain.RoomID) (*domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.rooms[id]; ok {
		return r, nil
	}
	if _, ok := m.closed[id]; ok {
		return nil, domain.ErrRoomClosed
	}
	return nil, domain.ErrRoomNotFound
}

// WasParticipant reports whether sid was one of the two sessions of the
// closed room id.
func (m *RoomManager) WasParticipant(id domain.RoomID, sid domain.SessionID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.closed[id]
	return ok && (c.a == sid || c.b == sid)
}

// RoomOf returns the live room sid participates in. It also answers for a
// disconnected session whose room is held open by a grace window.
func (m *RoomManager) RoomOf(sid domain.SessionID) (*domain.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.bySession[sid]
	if !ok {
		return nil, false
	}
	r, ok := m.rooms[id]
	return r, ok
}

func (m *RoomManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// MarkInCall records that sid progressed past the offer/answer exchange.
func (m *RoomManager) MarkInCall(sid domain.SessionID, roomID domain.RoomID) {
	if sess, ok := m.dir.Get(sid); ok && sess.MarkInCall(roomID) {
		log.Debug().Str("module", "app.rooms").Str("sid", string(sid)).Str("room", string(roomID)).Msg("in call")
	}
}

// CloseRoom closes room, clears both sessions and notifies every
// participant other than by. It reports false if the room was already closed.
func (m *RoomManager) CloseRoom(room *domain.Room, reason domain.CloseReason, by domain.SessionID) bool {
	if !room.Close(reason) {
		return false
	}

	now := time.Now()
	m.mu.Lock()
	delete(m.rooms, room.ID)
	for _, sid := range []domain.SessionID{room.ParticipantA, room.ParticipantB} {
		if m.bySession[sid] == room.ID {
			delete(m.bySession, sid)
		}
	}
	m.closed[room.ID] = closedRoom{at: now, a: room.ParticipantA, b: room.ParticipantB}
	for id, c := range m.closed {
		if now.Sub(c.at) > closedRoomRetention {
			delete(m.closed, id)
		}
	}
	m.mu.Unlock()

	for _, sid := range []domain.SessionID{room.ParticipantA, room.ParticipantB} {
		if sess, ok := m.dir.Get(sid); ok {
			sess.Release()
		}
		if sid == by {
			continue
		}
		_ = m.dir.Notify(sid, NoticeMsg{Type: noticeFor(reason)})
	}

	log.Info().
		Str("module", "app.rooms").
		Str("room", string(room.ID)).
		Str("reason", string(reason)).
		Str("by", string(by)).
		Msg("room closed")
	return true
}

// HandleSkip closes the skipping session's room. The skipper is not requeued.
func (m *RoomManager) HandleSkip(sess *domain.Session) error {
	room, ok := m.RoomOf(sess.ID)
	if !ok {
		return domain.ErrNotInRoom
	}
	m.CloseRoom(room, domain.ReasonSkipped, sess.ID)
	return nil
}

func noticeFor(reason domain.CloseReason) string {
	if reason == domain.ReasonSkipped {
		return TypePartnerSkipped
	}
	return TypePartnerDisconnected
}
