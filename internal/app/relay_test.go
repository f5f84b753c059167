package app

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Roulette/internal/domain"
)

type relayFixture struct {
	reg   *Registry
	rooms *RoomManager
	relay *Relay
}

func newRelayFixture() relayFixture {
	reg := newTestRegistry()
	rooms := NewRoomManager(reg)
	return relayFixture{reg: reg, rooms: rooms, relay: NewRelay(reg, rooms, SimplePolicy{})}
}

var sdp = json.RawMessage(`{"type":"offer","sdp":"v=0"}`)

func TestRelayForwardsToPartnerOnly(t *testing.T) {
	f := newRelayFixture()
	a, b := newPeer(t, f.reg), newPeer(t, f.reg)
	room := pairUp(t, f.rooms, a, b)
	a.conn.Reset()
	b.conn.Reset()

	require.NoError(t, f.relay.Forward(a.sess.ID, room.ID, KindOffer, sdp))

	msg, ok := b.conn.Last("offer")
	require.True(t, ok)
	assert.Equal(t, string(a.sess.ID), msg["from"])
	assert.Equal(t, string(room.ID), msg["room"])
	assert.Equal(t, map[string]any{"type": "offer", "sdp": "v=0"}, msg["offer"])
	assert.Empty(t, a.conn.Messages())
	assert.Equal(t, domain.RoomActive, room.State())
}

func TestRelayAnswerMarksInCall(t *testing.T) {
	f := newRelayFixture()
	a, b := newPeer(t, f.reg), newPeer(t, f.reg)
	room := pairUp(t, f.rooms, a, b)

	require.NoError(t, f.relay.Forward(a.sess.ID, room.ID, KindOffer, sdp))
	assert.Equal(t, domain.StateMatched, a.sess.State())
	require.NoError(t, f.relay.Forward(b.sess.ID, room.ID, KindAnswer, json.RawMessage(`{"type":"answer"}`)))

	assert.Equal(t, domain.StateInCall, a.sess.State())
	assert.Equal(t, domain.StateInCall, b.sess.State())
	assert.Equal(t, 1, a.conn.Count("answer"))
}

func TestRelayIsolation(t *testing.T) {
	f := newRelayFixture()
	a, b := newPeer(t, f.reg), newPeer(t, f.reg)
	c, d := newPeer(t, f.reg), newPeer(t, f.reg)
	r1 := pairUp(t, f.rooms, a, b)
	pairUp(t, f.rooms, c, d)
	a.conn.Reset()
	b.conn.Reset()

	err := f.relay.Forward(c.sess.ID, r1.ID, KindOffer, sdp)
	assert.ErrorIs(t, err, domain.ErrNotInRoom)
	assert.Empty(t, a.conn.Messages())
	assert.Empty(t, b.conn.Messages())
}

func TestRelayRejectsClosedRoom(t *testing.T) {
	f := newRelayFixture()
	a, b := newPeer(t, f.reg), newPeer(t, f.reg)
	room := pairUp(t, f.rooms, a, b)
	f.rooms.CloseRoom(room, domain.ReasonSkipped, a.sess.ID)
	b.conn.Reset()

	err := f.relay.Forward(a.sess.ID, room.ID, KindCandidate, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, domain.ErrNotInRoom)
	assert.Empty(t, b.conn.Messages())
}

func TestRelayChat(t *testing.T) {
	f := newRelayFixture()
	a, b := newPeer(t, f.reg), newPeer(t, f.reg)
	room := pairUp(t, f.rooms, a, b)

	require.NoError(t, f.relay.Forward(a.sess.ID, room.ID, KindChat, json.RawMessage(`"hello"`)))
	msg, ok := b.conn.Last(string(KindChat))
	require.True(t, ok)
	assert.Equal(t, "hello", msg["message"])
	assert.Equal(t, string(a.sess.ID), msg["from"])
	assert.NotZero(t, msg["timestamp"])

	err := f.relay.Forward(a.sess.ID, room.ID, KindChat, json.RawMessage(`{"not":"text"}`))
	assert.Error(t, err)
}

func TestRelayDropsWhilePartnerDisconnected(t *testing.T) {
	f := newRelayFixture()
	a, b := newPeer(t, f.reg), newPeer(t, f.reg)
	room := pairUp(t, f.rooms, a, b)
	require.True(t, f.reg.Drop(b.sess.ID, b.conn))

	assert.NoError(t, f.relay.Forward(a.sess.ID, room.ID, KindCandidate, json.RawMessage(`{}`)))
	assert.Equal(t, 0, b.conn.Count("candidate"))
}

func TestRelayBackpressurePolicy(t *testing.T) {
	f := newRelayFixture()
	a, b := newPeer(t, f.reg), newPeer(t, f.reg)
	room := pairUp(t, f.rooms, a, b)
	b.conn.SetFull(true)

	require.NoError(t, f.relay.Forward(a.sess.ID, room.ID, KindCandidate, json.RawMessage(`{}`)))
	assert.False(t, b.conn.Closed(), "candidates are dropped")

	require.NoError(t, f.relay.Forward(a.sess.ID, room.ID, KindOffer, sdp))
	assert.True(t, b.conn.Closed(), "a lost offer kicks the slow peer")
}
