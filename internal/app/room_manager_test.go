package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Roulette/internal/app/apptest"
	"github.com/dkeye/Roulette/internal/domain"
)

type peer struct {
	sess *domain.Session
	conn *apptest.Conn
}

func newPeer(t *testing.T, r *Registry) peer {
	t.Helper()
	conn := apptest.NewConn()
	sess, _, err := r.Register(context.Background(), conn)
	require.NoError(t, err)
	return peer{sess: sess, conn: conn}
}

func pairUp(t *testing.T, m *RoomManager, a, b peer) *domain.Room {
	t.Helper()
	require.NoError(t, a.sess.StartSearch(both))
	require.NoError(t, b.sess.StartSearch(both))
	room, err := m.CreateRoom(a.sess, b.sess)
	require.NoError(t, err)
	return room
}

func TestCreateRoomAssignsComplementaryRoles(t *testing.T) {
	reg := newTestRegistry()
	m := NewRoomManager(reg)
	a, b := newPeer(t, reg), newPeer(t, reg)

	room := pairUp(t, m, a, b)

	assert.Equal(t, domain.RoomPending, room.State())
	assert.Equal(t, a.sess.ID, room.InitiatorID)
	for _, p := range []peer{a, b} {
		assert.Equal(t, domain.StateMatched, p.sess.State())
		assert.Equal(t, room.ID, p.sess.RoomID())
	}

	ma, ok := a.conn.Last(TypeRoomAssigned)
	require.True(t, ok)
	mb, ok := b.conn.Last(TypeRoomAssigned)
	require.True(t, ok)
	assert.Equal(t, true, ma["initiator"])
	assert.Equal(t, false, mb["initiator"])
	assert.Equal(t, "initiator", ma["role"])
	assert.Equal(t, "responder", mb["role"])
	assert.Equal(t, string(b.sess.ID), ma["partnerId"])
	assert.Equal(t, string(a.sess.ID), mb["partnerId"])
	assert.Equal(t, string(room.ID), ma["room"])
}

func TestCreateRoomRejectsBusySession(t *testing.T) {
	reg := newTestRegistry()
	m := NewRoomManager(reg)
	a, b, c := newPeer(t, reg), newPeer(t, reg), newPeer(t, reg)
	pairUp(t, m, a, b)

	require.NoError(t, c.sess.StartSearch(both))
	_, err := m.CreateRoom(a.sess, c.sess)
	assert.ErrorIs(t, err, domain.ErrAlreadyInRoom)
	assert.Equal(t, domain.StateSearching, c.sess.State())
	assert.Equal(t, 1, m.Count())
}

func TestHandleSkipClosesRoomAndNotifiesPartner(t *testing.T) {
	reg := newTestRegistry()
	m := NewRoomManager(reg)
	a, b := newPeer(t, reg), newPeer(t, reg)
	room := pairUp(t, m, a, b)

	require.NoError(t, m.HandleSkip(a.sess))

	assert.Equal(t, domain.RoomClosed, room.State())
	assert.Equal(t, domain.ReasonSkipped, room.CloseReason())
	assert.Equal(t, 1, b.conn.Count(TypePartnerSkipped))
	assert.Equal(t, 0, a.conn.Count(TypePartnerSkipped))
	for _, p := range []peer{a, b} {
		assert.Equal(t, domain.StateIdle, p.sess.State())
		assert.Empty(t, p.sess.RoomID())
		_, ok := m.RoomOf(p.sess.ID)
		assert.False(t, ok)
	}

	_, err := m.Get(room.ID)
	assert.ErrorIs(t, err, domain.ErrRoomClosed)
	assert.ErrorIs(t, m.HandleSkip(a.sess), domain.ErrNotInRoom)
}

func TestCloseRoomIsOnce(t *testing.T) {
	reg := newTestRegistry()
	m := NewRoomManager(reg)
	a, b := newPeer(t, reg), newPeer(t, reg)
	room := pairUp(t, m, a, b)

	assert.True(t, m.CloseRoom(room, domain.ReasonDisconnected, a.sess.ID))
	assert.False(t, m.CloseRoom(room, domain.ReasonSkipped, b.sess.ID))
	assert.Equal(t, 1, b.conn.Count(TypePartnerDisconnected))
	assert.Equal(t, 0, a.conn.Count(TypePartnerSkipped))
}

func TestWasParticipant(t *testing.T) {
	reg := newTestRegistry()
	m := NewRoomManager(reg)
	a, b := newPeer(t, reg), newPeer(t, reg)
	room := pairUp(t, m, a, b)
	assert.False(t, m.WasParticipant(room.ID, a.sess.ID), "room is still live")

	m.CloseRoom(room, domain.ReasonSkipped, a.sess.ID)
	assert.True(t, m.WasParticipant(room.ID, a.sess.ID))
	assert.True(t, m.WasParticipant(room.ID, b.sess.ID))
	assert.False(t, m.WasParticipant(room.ID, "someone-else"))
}

func TestRoomsAreNeverReused(t *testing.T) {
	reg := newTestRegistry()
	m := NewRoomManager(reg)
	a, b := newPeer(t, reg), newPeer(t, reg)
	first := pairUp(t, m, a, b)
	require.NoError(t, m.HandleSkip(b.sess))

	second := pairUp(t, m, a, b)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, domain.RoomClosed, first.State())
}

func TestGetUnknownRoom(t *testing.T) {
	m := NewRoomManager(newTestRegistry())
	_, err := m.Get("missing")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}
