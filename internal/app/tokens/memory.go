package tokens

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

type memEntry struct {
	tok       domain.Token
	tombstone bool
}

type MemoryStore struct {
	cfg core.TokenConfig

	mu        sync.Mutex
	byValue   map[string]*memEntry
	bySession map[domain.SessionID]string
}

func NewMemoryStore(cfg core.TokenConfig) *MemoryStore {
	return &MemoryStore{
		cfg:       cfg,
		byValue:   make(map[string]*memEntry),
		bySession: make(map[domain.SessionID]string),
	}
}

func (s *MemoryStore) Issue(_ context.Context, sid domain.SessionID) (domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(sid)
}

func (s *MemoryStore) issueLocked(sid domain.SessionID) (domain.Token, error) {
	value, err := domain.NewTokenValue()
	if err != nil {
		return domain.Token{}, err
	}
	if old, ok := s.bySession[sid]; ok {
		delete(s.byValue, old)
	}
	now := time.Now()
	tok := domain.Token{
		Value:     value,
		SessionID: sid,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	s.byValue[value] = &memEntry{tok: tok}
	s.bySession[sid] = value
	return tok, nil
}

func (s *MemoryStore) Redeem(_ context.Context, value string) (domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byValue[value]
	if !ok {
		return domain.Token{}, domain.ErrInvalidToken
	}
	if e.tombstone || e.tok.Expired(time.Now()) {
		return domain.Token{}, domain.ErrExpiredToken
	}
	delete(s.byValue, value)
	delete(s.bySession, e.tok.SessionID)
	return s.issueLocked(e.tok.SessionID)
}

func (s *MemoryStore) Refresh(_ context.Context, sid domain.SessionID) (domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.bySession[sid]
	if !ok {
		return domain.Token{}, domain.ErrInvalidToken
	}
	e := s.byValue[value]
	if e.tombstone {
		return domain.Token{}, domain.ErrExpiredToken
	}
	e.tok.ExpiresAt = time.Now().Add(s.cfg.TTL)
	return e.tok, nil
}

func (s *MemoryStore) Expire(_ context.Context, sid domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.bySession[sid]
	if !ok {
		return nil
	}
	delete(s.bySession, sid)
	if e, ok := s.byValue[value]; ok {
		e.tombstone = true
		if now := time.Now(); now.Before(e.tok.ExpiresAt) {
			e.tok.ExpiresAt = now
		}
	}
	return nil
}

func (s *MemoryStore) Revoke(_ context.Context, sid domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value, ok := s.bySession[sid]; ok {
		delete(s.byValue, value)
		delete(s.bySession, sid)
	}
	return nil
}

// Run drops tombstones older than the retention period until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sweep(time.Now()); n > 0 {
				log.Debug().Str("module", "app.tokens").Int("removed", n).Msg("swept tokens")
			}
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for value, e := range s.byValue {
		if now.Before(e.tok.ExpiresAt.Add(s.cfg.Retention)) {
			continue
		}
		delete(s.byValue, value)
		if s.bySession[e.tok.SessionID] == value {
			delete(s.bySession, e.tok.SessionID)
		}
		removed++
	}
	return removed
}

var _ core.TokenStore = (*MemoryStore)(nil)
