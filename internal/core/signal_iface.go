package core

import "errors"

// Frame is a raw encoded message for one transport write.
type Frame []byte

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
// TrySend never blocks: a full buffer yields ErrBackpressure.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
