package signal

import "github.com/dkeye/Roulette/internal/app"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, app.NoticeMsg{Type: app.TypePong})
}
