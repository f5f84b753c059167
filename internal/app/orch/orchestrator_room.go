package orch

import (
	"errors"

	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

// FindPartner queues sid and pairs the oldest eligible sessions. A session
// that already has a room is left alone.
func (o *Orchestrator) FindPartner(sid domain.SessionID, prefs domain.MediaPrefs) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	sess, ok := o.Registry.Get(sid)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if _, busy := o.Rooms.RoomOf(sid); busy {
		return domain.ErrAlreadyInRoom
	}
	if err := sess.StartSearch(prefs); err != nil {
		return err
	}
	if o.queue.Enqueue(sid, prefs) {
		_ = o.Registry.Notify(sid, app.NoticeMsg{Type: app.TypeSearching})
		log.Info().Str("module", "orch").Str("sid", string(sid)).Int("queued", o.queue.Len()).Msg("searching")
	}
	o.matchLocked()
	return nil
}

func (o *Orchestrator) matchLocked() {
	var compatible func(a, b domain.MediaPrefs) bool
	if o.Settings.MatchMediaPrefs {
		compatible = domain.MediaPrefs.Compatible
	}
	for {
		a, b, ok := o.queue.TryMatch(compatible)
		if !ok {
			return
		}
		sa, okA := o.Registry.Get(a)
		sb, okB := o.Registry.Get(b)
		if !okA || !okB {
			// Sessions leave the queue under mu before removal, so this only
			// happens if that rule is broken. Requeue whoever is left.
			log.Error().Str("module", "orch").Str("a", string(a)).Str("b", string(b)).Msg("queued session vanished")
			if okA {
				o.queue.Enqueue(a, sa.Prefs())
			}
			if okB {
				o.queue.Enqueue(b, sb.Prefs())
			}
			return
		}
		if _, err := o.Rooms.CreateRoom(sa, sb); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("a", string(a)).Str("b", string(b)).Msg("pairing failed")
			sa.StopSearch()
			sb.StopSearch()
		}
	}
}

// Skip ends the current room, or cancels a pending search.
func (o *Orchestrator) Skip(sid domain.SessionID) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	sess, ok := o.Registry.Get(sid)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if o.queue.Remove(sid) {
		sess.StopSearch()
		log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("search cancelled")
		return nil
	}
	return o.Rooms.HandleSkip(sess)
}

// Join confirms that sid belongs to roomID and returns the room. Only a
// former participant is told that a room is closed.
func (o *Orchestrator) Join(sid domain.SessionID, roomID domain.RoomID) (*domain.Room, error) {
	room, err := o.Rooms.Get(roomID)
	if errors.Is(err, domain.ErrRoomClosed) && !o.Rooms.WasParticipant(roomID, sid) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	if !room.Has(sid) {
		return nil, domain.ErrNotInRoom
	}
	return room, nil
}
