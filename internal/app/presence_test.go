package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPresenceCoalescesBroadcasts(t *testing.T) {
	reg := newTestRegistry()
	p := NewPresence(reg, time.Hour)
	a, b := newPeer(t, reg), newPeer(t, reg)

	p.Tick()
	assert.Equal(t, 0, a.conn.Count(TypeUserCount), "nothing changed yet")

	p.Notify()
	p.Notify()
	p.Tick()
	msg, ok := a.conn.Last(TypeUserCount)
	assert.True(t, ok)
	assert.Equal(t, float64(2), msg["count"])
	assert.Equal(t, 1, b.conn.Count(TypeUserCount))

	p.Notify()
	p.Tick()
	assert.Equal(t, 1, a.conn.Count(TypeUserCount), "same count is not resent")

	reg.Drop(b.sess.ID, b.conn)
	p.Notify()
	p.Tick()
	msg, _ = a.conn.Last(TypeUserCount)
	assert.Equal(t, float64(1), msg["count"])
	assert.Equal(t, 1, b.conn.Count(TypeUserCount), "dropped connections are skipped")
}
