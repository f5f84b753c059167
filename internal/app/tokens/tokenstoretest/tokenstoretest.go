// Package tokenstoretest holds the behavior every core.TokenStore must show.
package tokenstoretest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
)

// Factory builds a fresh store for one subtest.
type Factory func(t *testing.T, cfg core.TokenConfig) core.TokenStore

var longLived = core.TokenConfig{TTL: time.Minute, Retention: time.Minute}

func RunTokenStoreTests(t *testing.T, newStore Factory) {
	t.Run("redeem rotates the value", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, longLived)

		tok, err := s.Issue(ctx, "s1")
		require.NoError(t, err)
		require.NotEmpty(t, tok.Value)
		assert.Equal(t, domain.SessionID("s1"), tok.SessionID)

		next, err := s.Redeem(ctx, tok.Value)
		require.NoError(t, err)
		assert.Equal(t, domain.SessionID("s1"), next.SessionID)
		assert.NotEqual(t, tok.Value, next.Value)

		_, err = s.Redeem(ctx, tok.Value)
		assert.ErrorIs(t, err, domain.ErrInvalidToken)

		_, err = s.Redeem(ctx, next.Value)
		assert.NoError(t, err)
	})

	t.Run("issue invalidates the previous token", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, longLived)

		first, err := s.Issue(ctx, "s1")
		require.NoError(t, err)
		second, err := s.Issue(ctx, "s1")
		require.NoError(t, err)

		_, err = s.Redeem(ctx, first.Value)
		assert.ErrorIs(t, err, domain.ErrInvalidToken)
		_, err = s.Redeem(ctx, second.Value)
		assert.NoError(t, err)
	})

	t.Run("unknown token", func(t *testing.T) {
		s := newStore(t, longLived)
		_, err := s.Redeem(context.Background(), "nope")
		assert.ErrorIs(t, err, domain.ErrInvalidToken)
	})

	t.Run("ttl elapses", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, core.TokenConfig{TTL: 20 * time.Millisecond, Retention: time.Minute})

		tok, err := s.Issue(ctx, "s1")
		require.NoError(t, err)
		time.Sleep(50 * time.Millisecond)

		_, err = s.Redeem(ctx, tok.Value)
		assert.ErrorIs(t, err, domain.ErrExpiredToken)
	})

	t.Run("refresh restarts the ttl", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, core.TokenConfig{TTL: 150 * time.Millisecond, Retention: time.Minute})

		tok, err := s.Issue(ctx, "s1")
		require.NoError(t, err)
		time.Sleep(100 * time.Millisecond)
		refreshed, err := s.Refresh(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, tok.Value, refreshed.Value)
		assert.True(t, refreshed.ExpiresAt.After(tok.ExpiresAt))
		time.Sleep(100 * time.Millisecond)

		_, err = s.Redeem(ctx, tok.Value)
		assert.NoError(t, err)
	})

	t.Run("expire leaves a tombstone", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, longLived)

		tok, err := s.Issue(ctx, "s1")
		require.NoError(t, err)
		require.NoError(t, s.Expire(ctx, "s1"))

		_, err = s.Redeem(ctx, tok.Value)
		assert.ErrorIs(t, err, domain.ErrExpiredToken)
		_, err = s.Refresh(ctx, "s1")
		assert.ErrorIs(t, err, domain.ErrInvalidToken)
	})

	t.Run("revoke forgets the token", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, longLived)

		tok, err := s.Issue(ctx, "s1")
		require.NoError(t, err)
		require.NoError(t, s.Revoke(ctx, "s1"))
		require.NoError(t, s.Revoke(ctx, "s1"))

		_, err = s.Redeem(ctx, tok.Value)
		assert.ErrorIs(t, err, domain.ErrInvalidToken)
	})

	t.Run("tokens are per session", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, longLived)

		a, err := s.Issue(ctx, "a")
		require.NoError(t, err)
		b, err := s.Issue(ctx, "b")
		require.NoError(t, err)
		require.NoError(t, s.Revoke(ctx, "a"))

		_, err = s.Redeem(ctx, a.Value)
		assert.ErrorIs(t, err, domain.ErrInvalidToken)
		got, err := s.Redeem(ctx, b.Value)
		require.NoError(t, err)
		assert.Equal(t, domain.SessionID("b"), got.SessionID)
	})

	t.Run("refresh racing redeem never revives the old value", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, longLived)

		for i := range 20 {
			sid := domain.SessionID(fmt.Sprintf("s%d", i))
			tok, err := s.Issue(ctx, sid)
			require.NoError(t, err)

			var (
				wg        sync.WaitGroup
				next      domain.Token
				redeemErr error
			)
			wg.Add(2)
			go func() {
				defer wg.Done()
				next, redeemErr = s.Redeem(ctx, tok.Value)
			}()
			go func() {
				defer wg.Done()
				_, _ = s.Refresh(ctx, sid)
			}()
			wg.Wait()
			require.NoError(t, redeemErr)

			_, err = s.Redeem(ctx, tok.Value)
			assert.ErrorIs(t, err, domain.ErrInvalidToken)
			got, err := s.Redeem(ctx, next.Value)
			require.NoError(t, err)
			assert.Equal(t, sid, got.SessionID)
		}
	})

	t.Run("refresh keeps a token alive past ttl and retention", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, core.TokenConfig{TTL: 60 * time.Millisecond, Retention: 20 * time.Millisecond})

		tok, err := s.Issue(ctx, "s1")
		require.NoError(t, err)
		for range 6 {
			time.Sleep(20 * time.Millisecond)
			_, err := s.Refresh(ctx, "s1")
			require.NoError(t, err)
		}

		_, err = s.Redeem(ctx, tok.Value)
		assert.NoError(t, err)
	})
}
