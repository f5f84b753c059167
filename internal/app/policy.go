package app

import "github.com/dkeye/Roulette/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens when a partner's send buffer is full.
type Policy interface {
	OnBackPressure(room *domain.Room, slow domain.SessionID, kind Kind) BackpressureAction
}

// SimplePolicy kicks a slow peer when it would lose session descriptions,
// since the call cannot be set up without them. Candidates and chat lines are
// dropped.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(_ *domain.Room, _ domain.SessionID, kind Kind) BackpressureAction {
	switch kind {
	case KindOffer, KindAnswer:
		return KickMember
	}
	return DropFrame
}
