package signal

import (
	"context"
	"errors"

	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleFindPartner(st *connState, in *inbound) {
	prefs := domain.MediaPrefs{AudioEnabled: true, VideoEnabled: true}
	if in.AudioEnabled != nil {
		prefs.AudioEnabled = *in.AudioEnabled
	}
	if in.VideoEnabled != nil {
		prefs.VideoEnabled = *in.VideoEnabled
	}
	if err := ctl.Orch.FindPartner(st.sid, prefs); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(st.sid)).Msg("find_partner ignored")
	}
}

func (ctl *SignalWSController) handleSkip(st *connState) {
	if err := ctl.Orch.Skip(st.sid); err != nil && !errors.Is(err, domain.ErrNotInRoom) {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(st.sid)).Msg("skip ignored")
	}
}

// handleLeave destroys the session and hangs up.
func (ctl *SignalWSController) handleLeave(ctx context.Context, st *connState, conn *WsSignalConn) {
	log.Info().Str("module", "signal").Str("sid", string(st.sid)).Msg("leave")
	ctl.Orch.Leave(ctx, st.sid)
	conn.Close()
}

func (ctl *SignalWSController) handleReconnect(ctx context.Context, st *connState, conn *WsSignalConn, in *inbound) {
	if in.Token == "" {
		ctl.sendJSON(conn, app.FailedMsg{Type: app.TypeReconnectFailed, Reason: domain.Reason(domain.ErrInvalidToken)})
		return
	}
	res, err := ctl.Orch.Reconnect(ctx, st.sid, in.Token, conn)
	if err != nil {
		log.Info().Err(err).Str("module", "signal").Str("sid", string(st.sid)).Msg("reconnect failed")
		ctl.sendJSON(conn, app.FailedMsg{Type: app.TypeReconnectFailed, Reason: domain.Reason(err)})
		return
	}
	st.sid = res.Session.ID

	msg := app.ReconnectMsg{
		Type:      app.TypeReconnectSuccess,
		Token:     res.Token.Value,
		SessionID: res.Session.ID,
	}
	if res.Room != nil {
		view := app.NewRoomMsg(app.TypeReconnectSuccess, res.Room, res.Session.ID)
		msg.Room = view.Room
		msg.PartnerID = view.PartnerID
		msg.Role = view.Role
		msg.Initiator = view.Initiator
	}
	ctl.sendJSON(conn, msg)
}
