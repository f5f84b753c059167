package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientRateLimiter(t *testing.T) {
	rl := NewClientRateLimiter(1, 2)

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "buckets are per client")

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 2, rl.Sweep(time.Millisecond))
	assert.True(t, rl.Allow("a"), "swept client starts with a full bucket")
}
