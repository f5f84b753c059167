package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowedTransitions(t *testing.T) {
	cases := []struct {
		from SessionState
		to   SessionState
		ok   bool
	}{
		{from: StateIdle, to: StateSearching, ok: true},
		{from: StateSearching, to: StateMatched, ok: true},
		{from: StateMatched, to: StateInCall, ok: true},
		{from: StateInCall, to: StateIdle, ok: true},
		{from: StateInCall, to: StateDisconnected, ok: true},
		{from: StateDisconnected, to: StateInCall, ok: true},
		{from: StateIdle, to: StateMatched, ok: false},
		{from: StateIdle, to: StateInCall, ok: false},
		{from: StateInCall, to: StateSearching, ok: false},
		{from: StateDisconnected, to: StateSearching, ok: false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestSessionPairingLifecycle(t *testing.T) {
	s := NewSession()
	require.Equal(t, StateIdle, s.State())

	var te *TransitionError
	require.True(t, errors.As(s.Pair("r1"), &te), "idle sessions cannot be paired")

	require.NoError(t, s.StartSearch(MediaPrefs{AudioEnabled: true}))
	assert.Equal(t, StateSearching, s.State())
	require.NoError(t, s.StartSearch(MediaPrefs{VideoEnabled: true}))
	assert.True(t, s.Prefs().VideoEnabled)

	require.NoError(t, s.Pair("r1"))
	assert.Equal(t, StateMatched, s.State())
	assert.Equal(t, RoomID("r1"), s.RoomID())
	assert.ErrorIs(t, s.Pair("r2"), ErrAlreadyInRoom)
	assert.ErrorIs(t, s.StartSearch(MediaPrefs{}), ErrAlreadyInRoom)

	assert.False(t, s.MarkInCall("other"))
	assert.True(t, s.MarkInCall("r1"))
	assert.Equal(t, StateInCall, s.State())

	s.Release()
	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, s.RoomID())
}

func TestSessionDisconnectAndResume(t *testing.T) {
	s := NewSession()
	require.NoError(t, s.StartSearch(MediaPrefs{}))
	require.NoError(t, s.Pair("r1"))
	require.True(t, s.MarkInCall("r1"))

	s.Disconnect()
	assert.Equal(t, StateDisconnected, s.State())
	assert.Empty(t, s.RoomID(), "a disconnected session holds no room binding")

	assert.Equal(t, StateInCall, s.Resume("r1"))
	assert.Equal(t, RoomID("r1"), s.RoomID())
}

func TestSessionResumeAfterRoomClosed(t *testing.T) {
	s := NewSession()
	require.NoError(t, s.StartSearch(MediaPrefs{}))
	require.NoError(t, s.Pair("r1"))
	s.Disconnect()
	s.Release()
	assert.Equal(t, StateDisconnected, s.State())

	assert.Equal(t, StateIdle, s.Resume(""))
	assert.Empty(t, s.RoomID())
}

func TestStopSearch(t *testing.T) {
	s := NewSession()
	assert.False(t, s.StopSearch())
	require.NoError(t, s.StartSearch(MediaPrefs{}))
	assert.True(t, s.StopSearch())
	assert.Equal(t, StateIdle, s.State())
}
