package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "roulette:tokens:"

type redisRecord struct {
	domain.Token
	Tombstone bool `json:"tombstone,omitempty"`
}

// RedisStore keeps tokens in Redis so any instance can redeem them.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	cfg       core.TokenConfig
}

func NewRedisStore(client *redis.Client, keyPrefix string, cfg core.TokenConfig) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, cfg: cfg}
}

// DialRedis connects to addr and verifies the server answers.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return cl, nil
}

func (s *RedisStore) tokenKey(value string) string           { return s.keyPrefix + "token:" + value }
func (s *RedisStore) sessionKey(sid domain.SessionID) string { return s.keyPrefix + "session:" + string(sid) }

func (s *RedisStore) keyTTL() time.Duration { return s.cfg.TTL + s.cfg.Retention }

func (s *RedisStore) Issue(ctx context.Context, sid domain.SessionID) (domain.Token, error) {
	value, err := domain.NewTokenValue()
	if err != nil {
		return domain.Token{}, err
	}
	now := time.Now()
	tok := domain.Token{
		Value:     value,
		SessionID: sid,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	raw, err := json.Marshal(redisRecord{Token: tok})
	if err != nil {
		return domain.Token{}, err
	}

	old, err := s.client.Get(ctx, s.sessionKey(sid)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Token{}, fmt.Errorf("lookup session token: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if old != "" {
			p.Del(ctx, s.tokenKey(old))
		}
		p.Set(ctx, s.tokenKey(value), raw, s.keyTTL())
		p.Set(ctx, s.sessionKey(sid), value, s.keyTTL())
		return nil
	})
	if err != nil {
		return domain.Token{}, fmt.Errorf("store token: %w", err)
	}
	return tok, nil
}

func (s *RedisStore) load(ctx context.Context, value string) (redisRecord, error) {
	var rec redisRecord
	raw, err := s.client.Get(ctx, s.tokenKey(value)).Bytes()
	if errors.Is(err, redis.Nil) {
		return rec, domain.ErrInvalidToken
	}
	if err != nil {
		return rec, fmt.Errorf("load token: %w", err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("decode token: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) Redeem(ctx context.Context, value string) (domain.Token, error) {
	rec, err := s.load(ctx, value)
	if err != nil {
		return domain.Token{}, err
	}
	if rec.Tombstone || rec.Expired(time.Now()) {
		return domain.Token{}, domain.ErrExpiredToken
	}
	// GETDEL makes the redeem single-use across concurrent callers.
	if err := s.client.GetDel(ctx, s.tokenKey(value)).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Token{}, domain.ErrInvalidToken
		}
		return domain.Token{}, fmt.Errorf("consume token: %w", err)
	}
	return s.Issue(ctx, rec.SessionID)
}

func (s *RedisStore) current(ctx context.Context, sid domain.SessionID) (redisRecord, error) {
	value, err := s.client.Get(ctx, s.sessionKey(sid)).Result()
	if errors.Is(err, redis.Nil) {
		return redisRecord{}, domain.ErrInvalidToken
	}
	if err != nil {
		return redisRecord{}, fmt.Errorf("lookup session token: %w", err)
	}
	return s.load(ctx, value)
}

const refreshAttempts = 3

// Refresh restarts the TTL of the session's current token. The session and
// token keys are watched, so a concurrent Redeem either wins outright or
// makes this attempt retry; a redeemed value is never written back.
func (s *RedisStore) Refresh(ctx context.Context, sid domain.SessionID) (domain.Token, error) {
	var err error
	for range refreshAttempts {
		var tok domain.Token
		err = s.client.Watch(ctx, func(tx *redis.Tx) error {
			var txErr error
			tok, txErr = s.refreshTx(ctx, tx, sid)
			return txErr
		}, s.sessionKey(sid))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.Token{}, err
		}
		return tok, nil
	}
	return domain.Token{}, fmt.Errorf("refresh token: %w", err)
}

func (s *RedisStore) refreshTx(ctx context.Context, tx *redis.Tx, sid domain.SessionID) (domain.Token, error) {
	value, err := tx.Get(ctx, s.sessionKey(sid)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Token{}, domain.ErrInvalidToken
	}
	if err != nil {
		return domain.Token{}, fmt.Errorf("lookup session token: %w", err)
	}
	key := s.tokenKey(value)
	if err := tx.Watch(ctx, key).Err(); err != nil {
		return domain.Token{}, fmt.Errorf("watch token: %w", err)
	}
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Token{}, domain.ErrInvalidToken
	}
	if err != nil {
		return domain.Token{}, fmt.Errorf("load token: %w", err)
	}
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Token{}, fmt.Errorf("decode token: %w", err)
	}
	if rec.Tombstone {
		return domain.Token{}, domain.ErrExpiredToken
	}

	rec.ExpiresAt = time.Now().Add(s.cfg.TTL)
	raw, err = json.Marshal(rec)
	if err != nil {
		return domain.Token{}, err
	}
	_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, raw, s.keyTTL())
		p.Expire(ctx, s.sessionKey(sid), s.keyTTL())
		return nil
	})
	if err != nil {
		return domain.Token{}, err
	}
	return rec.Token, nil
}

func (s *RedisStore) Expire(ctx context.Context, sid domain.SessionID) error {
	rec, err := s.current(ctx, sid)
	if errors.Is(err, domain.ErrInvalidToken) {
		return nil
	}
	if err != nil {
		return err
	}
	rec.Tombstone = true
	if now := time.Now(); now.Before(rec.ExpiresAt) {
		rec.ExpiresAt = now
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.tokenKey(rec.Value), raw, s.cfg.Retention)
		p.Del(ctx, s.sessionKey(sid))
		return nil
	})
	return err
}

func (s *RedisStore) Revoke(ctx context.Context, sid domain.SessionID) error {
	ctx = context.WithoutCancel(ctx)
	value, err := s.client.Get(ctx, s.sessionKey(sid)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.client.Del(ctx, s.tokenKey(value), s.sessionKey(sid)).Err()
}

var _ core.TokenStore = (*RedisStore)(nil)
