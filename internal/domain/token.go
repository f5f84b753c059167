package domain

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

const tokenBytes = 32

// Token is a bearer credential that lets a new transport resume a session.
type Token struct {
	Value     string    `json:"value"`
	SessionID SessionID `json:"session_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// NewTokenValue returns an unguessable url-safe random string.
func NewTokenValue() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
