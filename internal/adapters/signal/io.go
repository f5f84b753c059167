package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Roulette/internal/app"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Settings.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Settings.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.Settings.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, st *connState, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(st.sid)).Msg("readPump closing")
		ctl.Orch.Disconnect(context.WithoutCancel(ctx), st.sid, c)
		c.Close()
		cancel()
	}()

	c.conn.SetReadLimit(ctl.Settings.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Settings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.Settings.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(st.sid)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Settings.PongWait))
		if ctl.Limiter != nil && !ctl.Limiter.Allow(st.limiterKey()) {
			log.Warn().Str("module", "signal").Str("sid", string(st.sid)).Str("client", st.clientID).Msg("rate limited")
			continue
		}
		ctl.handleSignal(ctx, st, c, data)
	}
}

func (st *connState) limiterKey() string {
	if st.clientID != "" {
		return st.clientID
	}
	return string(st.sid)
}

// inbound is the union of every client -> server message.
type inbound struct {
	Type      string          `json:"type"`
	Room      string          `json:"room"`
	Token     string          `json:"token"`
	Message   string          `json:"message"`
	Offer     json.RawMessage `json:"offer"`
	Answer    json.RawMessage `json:"answer"`
	Candidate json.RawMessage `json:"candidate"`

	AudioEnabled *bool `json:"audioEnabled"`
	VideoEnabled *bool `json:"videoEnabled"`
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, st *connState, c *WsSignalConn, data []byte) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(st.sid)).Msg("bad json")
		ctl.sendJSON(c, app.FailedMsg{Type: app.TypeError, Reason: "bad_payload"})
		return
	}

	switch in.Type {
	case "ping":
		ctl.handlePing(c)
	case "find_partner":
		ctl.handleFindPartner(st, &in)
	case "skip", "stop":
		ctl.handleSkip(st)
	case "leave":
		ctl.handleLeave(ctx, st, c)
	case "join", "join_room":
		ctl.handleJoin(st, c, &in)
	case "offer":
		ctl.handleRelay(st, &in, app.KindOffer, in.Offer)
	case "answer":
		ctl.handleRelay(st, &in, app.KindAnswer, in.Answer)
	case "candidate":
		ctl.handleRelay(st, &in, app.KindCandidate, in.Candidate)
	case "chat_message":
		ctl.handleChat(st, &in)
	case "reconnect", "reconnect_user":
		ctl.handleReconnect(ctx, st, c, &in)
	default:
		log.Warn().Str("module", "signal").Str("type", in.Type).Msg("unknown signal")
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := app.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
