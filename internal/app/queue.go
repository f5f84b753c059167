package app

import (
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/dkeye/Roulette/internal/domain"
)

type queued struct {
	prefs domain.MediaPrefs
	since time.Time
}

// Queue is the FIFO pool of searching sessions, oldest first.
// It is not safe for concurrent use; the orchestrator serializes access.
type Queue struct {
	entries *orderedmap.OrderedMap[domain.SessionID, queued]
}

func NewQueue() *Queue {
	return &Queue{entries: orderedmap.New[domain.SessionID, queued]()}
}

// Enqueue appends sid. An already queued session keeps its position.
func (q *Queue) Enqueue(sid domain.SessionID, prefs domain.MediaPrefs) bool {
	if _, ok := q.entries.Get(sid); ok {
		return false
	}
	q.entries.Set(sid, queued{prefs: prefs, since: time.Now()})
	return true
}

func (q *Queue) Remove(sid domain.SessionID) bool {
	_, ok := q.entries.Delete(sid)
	return ok
}

func (q *Queue) Contains(sid domain.SessionID) bool {
	_, ok := q.entries.Get(sid)
	return ok
}

func (q *Queue) Len() int { return q.entries.Len() }

// TryMatch removes and returns the two earliest compatible sessions.
// With a nil compatible func any two sessions match, so the result is
// simply the two oldest.
func (q *Queue) TryMatch(compatible func(a, b domain.MediaPrefs) bool) (domain.SessionID, domain.SessionID, bool) {
	for first := q.entries.Oldest(); first != nil; first = first.Next() {
		for second := first.Next(); second != nil; second = second.Next() {
			if compatible != nil && !compatible(first.Value.prefs, second.Value.prefs) {
				continue
			}
			a, b := first.Key, second.Key
			q.entries.Delete(a)
			q.entries.Delete(b)
			return a, b, true
		}
	}
	return "", "", false
}

// WaitingSince returns sessions queued before cutoff, oldest first.
func (q *Queue) WaitingSince(cutoff time.Time) []domain.SessionID {
	var out []domain.SessionID
	for p := q.entries.Oldest(); p != nil; p = p.Next() {
		if !p.Value.since.Before(cutoff) {
			break
		}
		out = append(out, p.Key)
	}
	return out
}
