package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Roulette/internal/app/tokens/tokenstoretest"
	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
)

func TestMemoryTokenStore(t *testing.T) {
	tokenstoretest.RunTokenStoreTests(t, func(t *testing.T, cfg core.TokenConfig) core.TokenStore {
		return NewMemoryStore(cfg)
	})
}

func TestMemorySweepDropsOldTombstones(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(core.TokenConfig{TTL: time.Minute, Retention: 10 * time.Millisecond})

	tok, err := s.Issue(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, s.Expire(ctx, "s1"))

	assert.Equal(t, 0, s.sweep(time.Now()))
	assert.Equal(t, 1, s.sweep(time.Now().Add(time.Second)))

	_, err = s.Redeem(ctx, tok.Value)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestMemorySweepKeepsRefreshedTokens(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(core.TokenConfig{TTL: 20 * time.Millisecond, Retention: 10 * time.Millisecond})

	tok, err := s.Issue(ctx, "s1")
	require.NoError(t, err)
	time.Sleep(25 * time.Millisecond)
	_, err = s.Refresh(ctx, "s1")
	require.NoError(t, err)

	assert.Equal(t, 0, s.sweep(time.Now().Add(15*time.Millisecond)))
	_, err = s.Redeem(ctx, tok.Value)
	assert.NoError(t, err)
}
