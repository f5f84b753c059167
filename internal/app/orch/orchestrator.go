// Package orch serializes matchmaking and session/room transitions.
package orch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

type Settings struct {
	GraceWindow     time.Duration
	TokenTTL        time.Duration
	MatchMediaPrefs bool
	SearchTimeout   time.Duration
}

type pendingTimer struct {
	timer *time.Timer
	gen   uint64
}

// Orchestrator owns the matchmaking queue. Every operation that changes
// queue membership, pairs sessions, closes rooms or rebinds sessions runs
// under mu, so no session is ever consumed by two pairings or placed in two
// rooms. Sends made under mu are non-blocking.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
	Relay    *app.Relay
	Presence *app.Presence
	Settings Settings

	mu     sync.Mutex
	queue  *app.Queue
	timers map[domain.SessionID]pendingTimer
	gen    uint64
}

func New(registry *app.Registry, rooms *app.RoomManager, relay *app.Relay, presence *app.Presence, settings Settings) *Orchestrator {
	return &Orchestrator{
		Registry: registry,
		Rooms:    rooms,
		Relay:    relay,
		Presence: presence,
		Settings: settings,
		queue:    app.NewQueue(),
		timers:   make(map[domain.SessionID]pendingTimer),
	}
}

// Signal forwards an offer, answer, candidate or chat line. Rejected
// messages are logged and never reported to the sender.
func (o *Orchestrator) Signal(sid domain.SessionID, roomID domain.RoomID, kind app.Kind, payload json.RawMessage) error {
	err := o.Relay.Forward(sid, roomID, kind, payload)
	if err != nil {
		log.Warn().
			Err(err).
			Str("module", "orch").
			Str("sid", string(sid)).
			Str("room", string(roomID)).
			Str("kind", string(kind)).
			Msg("signal dropped")
	}
	return err
}

type Stats struct {
	Users     int `json:"users"`
	Searching int `json:"searching"`
	Rooms     int `json:"rooms"`
}

func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	searching := o.queue.Len()
	o.mu.Unlock()
	return Stats{
		Users:     o.Registry.Count(),
		Searching: searching,
		Rooms:     o.Rooms.Count(),
	}
}

// Run keeps the tokens of connected sessions alive and enforces the search
// timeout, if one is configured, until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) {
	keepalive := time.NewTicker(o.keepaliveEvery())
	defer keepalive.Stop()

	var searchC <-chan time.Time
	if o.Settings.SearchTimeout > 0 {
		search := time.NewTicker(o.Settings.SearchTimeout / 2)
		defer search.Stop()
		searchC = search.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			o.RefreshTokens(ctx)
		case now := <-searchC:
			o.ExpireSearches(now)
		}
	}
}

// A bound session's token is refreshed three times per TTL, so it never
// expires or gets swept while the connection is alive.
func (o *Orchestrator) keepaliveEvery() time.Duration {
	d := o.Settings.TokenTTL / 3
	if d <= 0 {
		d = time.Second
	}
	return d
}

// RefreshTokens restarts the token TTL of every session that owns a
// connection. The TTL of a dropped session counts from Disconnect.
func (o *Orchestrator) RefreshTokens(ctx context.Context) int {
	n := 0
	for _, sid := range o.Registry.Bound() {
		if err := o.Registry.RefreshToken(ctx, sid); err != nil {
			log.Debug().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("token keepalive")
			continue
		}
		n++
	}
	return n
}

// ExpireSearches removes sessions that have been searching longer than the
// search timeout and tells them so.
func (o *Orchestrator) ExpireSearches(now time.Time) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := o.queue.WaitingSince(now.Add(-o.Settings.SearchTimeout))
	for _, sid := range ids {
		o.queue.Remove(sid)
		if sess, ok := o.Registry.Get(sid); ok {
			sess.StopSearch()
		}
		_ = o.Registry.Notify(sid, app.NoticeMsg{Type: app.TypeSearchTimeout})
		log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("search timed out")
	}
	return len(ids)
}
