package signal

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientRateLimiter caps inbound messages per client with a token bucket.
type ClientRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	limit    rate.Limit
	burst    int
}

type clientLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

func NewClientRateLimiter(perSecond float64, burst int) *ClientRateLimiter {
	return &ClientRateLimiter{
		limiters: make(map[string]*clientLimiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (rl *ClientRateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.limiters[key]
	if !ok {
		cl = &clientLimiter{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = cl
	}
	cl.seen = time.Now()
	return cl.lim.Allow()
}

// Sweep forgets clients idle for longer than idle.
func (rl *ClientRateLimiter) Sweep(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	n := 0
	for key, cl := range rl.limiters {
		if cl.seen.Before(cutoff) {
			delete(rl.limiters, key)
			n++
		}
	}
	return n
}

func (rl *ClientRateLimiter) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep(every)
		}
	}
}
