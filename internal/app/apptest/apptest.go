// Package apptest provides an in-memory SignalConnection for tests.
package apptest

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/Roulette/internal/core"
)

// Conn records every frame sent to it.
type Conn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	full   bool
}

func NewConn() *Conn { return &Conn{} }

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SetFull makes TrySend report backpressure.
func (c *Conn) SetFull(full bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.full = full
}

// Messages decodes every frame received so far.
func (c *Conn) Messages() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (c *Conn) Types() []string {
	msgs := c.Messages()
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		t, _ := m["type"].(string)
		out = append(out, t)
	}
	return out
}

// Last returns the most recent message of the given type.
func (c *Conn) Last(typ string) (map[string]any, bool) {
	msgs := c.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i]["type"] == typ {
			return msgs[i], true
		}
	}
	return nil, false
}

func (c *Conn) Count(typ string) int {
	n := 0
	for _, t := range c.Types() {
		if t == typ {
			n++
		}
	}
	return n
}

func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}
