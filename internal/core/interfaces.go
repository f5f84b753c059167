package core

import (
	"context"
	"time"

	"github.com/dkeye/Roulette/internal/domain"
)

// TokenStore persists reconnection tokens. At most one live token maps to a
// session; Redeem rotates the value so a stale client cannot rebind twice.
//
// Expired tokens are kept as tombstones for a retention period so a late
// redeem reports ErrExpiredToken instead of ErrInvalidToken.
type TokenStore interface {
	// Issue creates a token for sid, invalidating any previous one.
	Issue(ctx context.Context, sid domain.SessionID) (domain.Token, error)
	// Redeem consumes value and returns its replacement.
	Redeem(ctx context.Context, value string) (domain.Token, error)
	// Refresh restarts the TTL of the session's current token.
	Refresh(ctx context.Context, sid domain.SessionID) (domain.Token, error)
	// Expire turns the session's token into a tombstone.
	Expire(ctx context.Context, sid domain.SessionID) error
	// Revoke forgets the session's token entirely.
	Revoke(ctx context.Context, sid domain.SessionID) error
}

// TokenConfig carries the deployment parameters shared by stores.
type TokenConfig struct {
	TTL       time.Duration
	Retention time.Duration
}
