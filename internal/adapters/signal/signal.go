package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Roulette/internal/app/orch"
	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ClientIDKey is the gin context key holding the browser's client id.
const ClientIDKey = "client_id"

type Settings struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	Settings Settings
	Limiter  *ClientRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, s Settings, limiter *ClientRateLimiter) *SignalWSController {
	return &SignalWSController{Orch: o, Settings: s, Limiter: limiter}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// connState is owned by the connection's read goroutine. sid changes when
// the connection resumes an earlier session.
type connState struct {
	sid      domain.SessionID
	clientID string
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	clientID := c.GetString(ClientIDKey)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Settings.SendBuffer),
	}
	// The welcome frame is queued before the pumps start.
	sess, err := ctl.Orch.Connect(ctx, conn)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("client", clientID).Msg("register session")
		conn.Close()
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sess.ID)).Str("client", clientID).Msg("new WS connection")

	st := &connState{sid: sess.ID, clientID: clientID}
	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, st, conn)
}
