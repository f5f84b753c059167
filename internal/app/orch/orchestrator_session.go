package orch

import (
	"context"
	"time"

	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

// Connect registers a new session for conn and sends it a welcome token.
func (o *Orchestrator) Connect(ctx context.Context, conn core.SignalConnection) (*domain.Session, error) {
	sess, tok, err := o.Registry.Register(ctx, conn)
	if err != nil {
		return nil, err
	}
	_ = o.Registry.Notify(sess.ID, app.WelcomeMsg{Type: app.TypeWelcome, Token: tok.Value, SessionID: sess.ID})
	o.Presence.Notify()
	return sess, nil
}

// Disconnect handles the loss of conn. The session leaves the queue; its room,
// if any, is kept for the grace window. A stale conn is ignored.
func (o *Orchestrator) Disconnect(ctx context.Context, sid domain.SessionID, conn core.SignalConnection) {
	o.mu.Lock()
	if !o.Registry.Drop(sid, conn) {
		o.mu.Unlock()
		return
	}
	o.queue.Remove(sid)
	if _, ok := o.Rooms.RoomOf(sid); ok {
		o.scheduleLocked(sid, o.Settings.GraceWindow, o.graceExpired)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Dur("grace", o.Settings.GraceWindow).Msg("holding room for reconnect")
	} else {
		o.scheduleLocked(sid, o.Settings.TokenTTL, o.tokenExpired)
	}
	o.mu.Unlock()

	if err := o.Registry.RefreshToken(ctx, sid); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("refresh token")
	}
	o.Presence.Notify()
}

// Resumed describes a successful rebind.
type Resumed struct {
	Session *domain.Session
	Token   domain.Token
	Room    *domain.Room
}

// Reconnect moves conn, currently owned by the fresh session current, onto
// the session that issued value. The fresh session is discarded. If the old
// session still has a live room, it is resumed without pairing again.
func (o *Orchestrator) Reconnect(ctx context.Context, current domain.SessionID, value string, conn core.SignalConnection) (Resumed, error) {
	o.mu.Lock()
	_, busy := o.Rooms.RoomOf(current)
	o.mu.Unlock()
	if busy {
		return Resumed{}, domain.ErrAlreadyInRoom
	}

	sess, tok, err := o.Registry.BindToken(ctx, value, conn)
	if err != nil {
		return Resumed{}, err
	}

	o.mu.Lock()
	discard := current != sess.ID
	if discard {
		o.discardPlaceholderLocked(current)
	}
	if c, ok := o.Registry.Conn(sess.ID); !ok || c != conn {
		o.mu.Unlock()
		o.revokePlaceholder(ctx, current, discard)
		return Resumed{}, domain.ErrExpiredToken
	}
	o.cancelTimerLocked(sess.ID)
	room, inRoom := o.Rooms.RoomOf(sess.ID)
	if sess.State() == domain.StateDisconnected {
		var roomID domain.RoomID
		if inRoom {
			roomID = room.ID
		}
		sess.Resume(roomID)
	}
	o.mu.Unlock()

	o.revokePlaceholder(ctx, current, discard)
	o.Presence.Notify()

	res := Resumed{Session: sess, Token: tok}
	if inRoom {
		res.Room = room
	}
	log.Info().Str("module", "orch").Str("sid", string(sess.ID)).Bool("room", inRoom).Msg("session resumed")
	return res, nil
}

// Leave destroys the session: it leaves the queue, its room is closed and
// its token revoked.
func (o *Orchestrator) Leave(ctx context.Context, sid domain.SessionID) {
	o.mu.Lock()
	o.queue.Remove(sid)
	o.cancelTimerLocked(sid)
	if room, ok := o.Rooms.RoomOf(sid); ok {
		o.Rooms.CloseRoom(room, domain.ReasonLeft, sid)
	}
	_, ok := o.Registry.Remove(sid)
	o.mu.Unlock()
	if !ok {
		return
	}

	if err := o.Registry.RevokeToken(ctx, sid); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("revoke token")
	}
	o.Presence.Notify()
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("session left")
}

// discardPlaceholderLocked removes the session a reconnecting connection was
// first given. It may have been paired while the token was being redeemed.
func (o *Orchestrator) discardPlaceholderLocked(sid domain.SessionID) {
	o.queue.Remove(sid)
	o.cancelTimerLocked(sid)
	if room, ok := o.Rooms.RoomOf(sid); ok {
		o.Rooms.CloseRoom(room, domain.ReasonDisconnected, sid)
	}
	o.Registry.Remove(sid)
}

func (o *Orchestrator) revokePlaceholder(ctx context.Context, sid domain.SessionID, discarded bool) {
	if !discarded {
		return
	}
	if err := o.Registry.RevokeToken(ctx, sid); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("revoke placeholder token")
	}
}

func (o *Orchestrator) scheduleLocked(sid domain.SessionID, d time.Duration, fire func(domain.SessionID, uint64)) {
	o.cancelTimerLocked(sid)
	o.gen++
	gen := o.gen
	o.timers[sid] = pendingTimer{
		timer: time.AfterFunc(d, func() { fire(sid, gen) }),
		gen:   gen,
	}
}

func (o *Orchestrator) cancelTimerLocked(sid domain.SessionID) {
	if p, ok := o.timers[sid]; ok {
		p.timer.Stop()
		delete(o.timers, sid)
	}
}

// claimLocked reports whether the timer gen is still the live one for sid
// and the session is still without a connection.
func (o *Orchestrator) claimLocked(sid domain.SessionID, gen uint64) bool {
	p, ok := o.timers[sid]
	if !ok || p.gen != gen {
		return false
	}
	delete(o.timers, sid)
	if _, connected := o.Registry.Conn(sid); connected {
		return false
	}
	return true
}

func (o *Orchestrator) graceExpired(sid domain.SessionID, gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.claimLocked(sid, gen) {
		return
	}
	if room, ok := o.Rooms.RoomOf(sid); ok {
		o.Rooms.CloseRoom(room, domain.ReasonDisconnected, sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room.ID)).Msg("grace window elapsed")
	}
	remaining := o.Settings.TokenTTL - o.Settings.GraceWindow
	if remaining < 0 {
		remaining = 0
	}
	o.scheduleLocked(sid, remaining, o.tokenExpired)
}

func (o *Orchestrator) tokenExpired(sid domain.SessionID, gen uint64) {
	o.mu.Lock()
	if !o.claimLocked(sid, gen) {
		o.mu.Unlock()
		return
	}
	if room, ok := o.Rooms.RoomOf(sid); ok {
		o.Rooms.CloseRoom(room, domain.ReasonDisconnected, sid)
	}
	o.Registry.Remove(sid)
	o.mu.Unlock()

	if err := o.Registry.ExpireToken(context.Background(), sid); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("expire token")
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("session expired")
}
