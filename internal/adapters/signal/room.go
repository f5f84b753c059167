package signal

import (
	"errors"

	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(st *connState, conn *WsSignalConn, in *inbound) {
	room, err := ctl.Orch.Join(st.sid, domain.RoomID(in.Room))
	if err != nil {
		// Outsiders learn nothing about rooms they are not part of.
		if errors.Is(err, domain.ErrNotInRoom) {
			err = domain.ErrRoomNotFound
		}
		log.Info().Err(err).Str("module", "signal").Str("sid", string(st.sid)).Str("room", in.Room).Msg("join failed")
		ctl.sendJSON(conn, app.FailedMsg{Type: app.TypeJoinFailed, Reason: domain.Reason(err)})
		return
	}
	ctl.sendJSON(conn, app.NewRoomMsg(app.TypeRoomJoined, room, st.sid))
}
