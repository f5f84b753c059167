package signal

import (
	"encoding/json"

	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

const maxChatLen = 2000

func (ctl *SignalWSController) handleRelay(st *connState, in *inbound, kind app.Kind, payload json.RawMessage) {
	if len(payload) == 0 {
		log.Warn().Str("module", "signal").Str("sid", string(st.sid)).Str("kind", string(kind)).Msg("empty payload")
		return
	}
	_ = ctl.Orch.Signal(st.sid, domain.RoomID(in.Room), kind, payload)
}

func (ctl *SignalWSController) handleChat(st *connState, in *inbound) {
	text := in.Message
	if text == "" {
		return
	}
	if r := []rune(text); len(r) > maxChatLen {
		text = string(r[:maxChatLen])
	}
	raw, err := json.Marshal(text)
	if err != nil {
		return
	}
	_ = ctl.Orch.Signal(st.sid, domain.RoomID(in.Room), app.KindChat, raw)
}
