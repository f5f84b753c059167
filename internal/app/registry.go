package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Session *domain.Session
	Conn    core.SignalConnection
}

// Registry maps live connections to sessions and issues reconnection tokens.
// The connection is a replaceable field of the entry, never its key.
type Registry struct {
	tokens core.TokenStore

	mu       sync.RWMutex
	sessions map[domain.SessionID]*sessionEntry
	conns    map[core.SignalConnection]domain.SessionID
}

func NewRegistry(tokens core.TokenStore) *Registry {
	return &Registry{
		tokens:   tokens,
		sessions: make(map[domain.SessionID]*sessionEntry),
		conns:    make(map[core.SignalConnection]domain.SessionID),
	}
}

// Register creates an idle session bound to conn and issues its first token.
func (r *Registry) Register(ctx context.Context, conn core.SignalConnection) (*domain.Session, domain.Token, error) {
	sess := domain.NewSession()
	tok, err := r.tokens.Issue(ctx, sess.ID)
	if err != nil {
		return nil, domain.Token{}, fmt.Errorf("issue token: %w", err)
	}
	sess.SetToken(tok.Value)

	r.mu.Lock()
	r.sessions[sess.ID] = &sessionEntry{Session: sess, Conn: conn}
	r.conns[conn] = sess.ID
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("sid", string(sess.ID)).Msg("registered session")
	return sess, tok, nil
}

// BindToken redeems value and moves conn onto the session it belongs to.
// The token is rotated; the returned token is the only valid one afterwards.
// A previous connection of that session, if still open, is closed.
func (r *Registry) BindToken(ctx context.Context, value string, conn core.SignalConnection) (*domain.Session, domain.Token, error) {
	tok, err := r.tokens.Redeem(ctx, value)
	if err != nil {
		return nil, domain.Token{}, err
	}

	r.mu.Lock()
	e, ok := r.sessions[tok.SessionID]
	if !ok {
		r.mu.Unlock()
		return nil, domain.Token{}, domain.ErrExpiredToken
	}
	if prev, ok := r.conns[conn]; ok && prev != tok.SessionID {
		if pe, ok := r.sessions[prev]; ok && pe.Conn == conn {
			pe.Conn = nil
		}
	}
	old := e.Conn
	if old != nil && old != conn {
		delete(r.conns, old)
	}
	e.Conn = conn
	r.conns[conn] = tok.SessionID
	e.Session.SetToken(tok.Value)
	e.Session.Touch()
	r.mu.Unlock()

	if old != nil && old != conn {
		old.Close()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(tok.SessionID)).Msg("rebound session")
	return e.Session, tok, nil
}

// Drop unbinds conn from sid and marks the session disconnected. A conn that
// is no longer the session's current one is ignored.
func (r *Registry) Drop(sid domain.SessionID, conn core.SignalConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || e.Conn != conn {
		return false
	}
	delete(r.conns, conn)
	e.Conn = nil
	e.Session.Disconnect()
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("dropped connection")
	return true
}

// Remove forgets the session. Its connection, if any, is left to the adapter.
func (r *Registry) Remove(sid domain.SessionID) (*domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil, false
	}
	if e.Conn != nil {
		delete(r.conns, e.Conn)
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("removed session")
	return e.Session, true
}

// RefreshToken restarts the token TTL. It runs when a session loses its
// connection and periodically while it holds one.
func (r *Registry) RefreshToken(ctx context.Context, sid domain.SessionID) error {
	_, err := r.tokens.Refresh(ctx, sid)
	return err
}

func (r *Registry) ExpireToken(ctx context.Context, sid domain.SessionID) error {
	return r.tokens.Expire(ctx, sid)
}

func (r *Registry) RevokeToken(ctx context.Context, sid domain.SessionID) error {
	return r.tokens.Revoke(ctx, sid)
}

func (r *Registry) Get(sid domain.SessionID) (*domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) Conn(sid domain.SessionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || e.Conn == nil {
		return nil, false
	}
	return e.Conn, true
}

func (r *Registry) SessionOf(conn core.SignalConnection) (domain.SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.conns[conn]
	return sid, ok
}

// Send writes a frame to the session's current connection without blocking.
func (r *Registry) Send(sid domain.SessionID, f core.Frame) error {
	conn, ok := r.Conn(sid)
	if !ok {
		return domain.ErrNotConnected
	}
	return conn.TrySend(f)
}

// Notify encodes msg and sends it to sid. Delivery is best effort.
func (r *Registry) Notify(sid domain.SessionID, msg any) error {
	f, err := Encode(msg)
	if err != nil {
		return err
	}
	if err := r.Send(sid, f); err != nil {
		log.Debug().Err(err).Str("module", "app.registry").Str("sid", string(sid)).Msg("notify dropped")
		return err
	}
	return nil
}

// Connections returns a snapshot of all bound connections.
func (r *Registry) Connections() []core.SignalConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.SignalConnection, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Bound returns the ids of sessions that currently own a connection.
func (r *Registry) Bound() []domain.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.SessionID, 0, len(r.conns))
	for _, sid := range r.conns {
		out = append(out, sid)
	}
	return out
}

// Count returns the number of sessions that are not disconnected.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.sessions {
		if e.Session.State() != domain.StateDisconnected {
			n++
		}
	}
	return n
}
