package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Presence broadcasts the live user count. Changes are coalesced and sent at
// most once per interval; delivery to busy connections is best effort.
type Presence struct {
	registry *Registry
	interval time.Duration

	dirty atomic.Bool
	last  atomic.Int64
}

func NewPresence(registry *Registry, interval time.Duration) *Presence {
	p := &Presence{registry: registry, interval: interval}
	p.last.Store(-1)
	return p
}

// Notify marks the count as possibly changed.
func (p *Presence) Notify() { p.dirty.Store(true) }

func (p *Presence) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick()
		}
	}
}

// Tick broadcasts if the count changed since the last broadcast.
func (p *Presence) Tick() {
	if !p.dirty.Swap(false) {
		return
	}
	count := p.registry.Count()
	if int64(count) == p.last.Load() {
		return
	}
	p.last.Store(int64(count))
	p.Broadcast(count)
}

func (p *Presence) Broadcast(count int) {
	frame, err := Encode(UserCountMsg{Type: TypeUserCount, Count: count})
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Msg("encode user count")
		return
	}
	sent, dropped := 0, 0
	for _, c := range p.registry.Connections() {
		if err := c.TrySend(frame); err != nil {
			dropped++
			continue
		}
		sent++
	}
	log.Debug().Str("module", "app.presence").Int("count", count).Int("sent", sent).Int("dropped", dropped).Msg("user count broadcast")
}
