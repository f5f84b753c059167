package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/app/orch"
	"github.com/dkeye/Roulette/internal/app/tokens"
	"github.com/dkeye/Roulette/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := tokens.NewMemoryStore(core.TokenConfig{TTL: time.Minute, Retention: time.Minute})
	reg := app.NewRegistry(store)
	rooms := app.NewRoomManager(reg)
	relay := app.NewRelay(reg, rooms, app.SimplePolicy{})
	presence := app.NewPresence(reg, time.Hour)
	o := orch.New(reg, rooms, relay, presence, orch.Settings{GraceWindow: 30 * time.Second, TokenTTL: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ctl := NewSignalWSController(o, Settings{
		ReadLimit:  64 * 1024,
		PingPeriod: time.Second,
		PongWait:   2 * time.Second,
		WriteWait:  time.Second,
		SendBuffer: 32,
	}, NewClientRateLimiter(1000, 1000))

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set(ClientIDKey, "test-client")
		ctl.HandleSignal(ctx, c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

type wsClient struct {
	t     *testing.T
	ws    *websocket.Conn
	sid   string
	token string
}

func dial(t *testing.T, url string) *wsClient {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	c := &wsClient{t: t, ws: ws}
	welcome := c.expect("welcome")
	c.sid, _ = welcome["sessionId"].(string)
	c.token, _ = welcome["token"].(string)
	require.NotEmpty(t, c.sid)
	require.NotEmpty(t, c.token)
	return c
}

func (c *wsClient) send(v map[string]any) {
	c.t.Helper()
	require.NoError(c.t, c.ws.WriteJSON(v))
}

// expect reads until a message of type typ arrives, skipping others.
func (c *wsClient) expect(typ string) map[string]any {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(c.t, c.ws.SetReadDeadline(deadline))
		var m map[string]any
		require.NoError(c.t, c.ws.ReadJSON(&m), "waiting for %s", typ)
		if m["type"] == typ {
			return m
		}
	}
}

func pairClients(t *testing.T, url string) (a, b *wsClient, room string) {
	t.Helper()
	a = dial(t, url)
	b = dial(t, url)
	a.send(map[string]any{"type": "find_partner"})
	a.expect("searching")
	b.send(map[string]any{"type": "find_partner"})

	ra := a.expect("room_assigned")
	rb := b.expect("room_assigned")
	require.Equal(t, ra["room"], rb["room"])
	assert.Equal(t, true, ra["initiator"])
	assert.Equal(t, false, rb["initiator"])
	assert.Equal(t, b.sid, ra["partnerId"])
	return a, b, ra["room"].(string)
}

func TestPingPong(t *testing.T) {
	c := dial(t, newTestServer(t))
	c.send(map[string]any{"type": "ping"})
	c.expect("pong")
}

func TestMatchAndRelay(t *testing.T) {
	a, b, room := pairClients(t, newTestServer(t))

	a.send(map[string]any{"type": "offer", "room": room, "offer": map[string]any{"type": "offer", "sdp": "v=0"}})
	offer := b.expect("offer")
	assert.Equal(t, a.sid, offer["from"])
	assert.Equal(t, room, offer["room"])
	assert.Equal(t, "v=0", offer["offer"].(map[string]any)["sdp"])

	b.send(map[string]any{"type": "answer", "room": room, "answer": map[string]any{"type": "answer", "sdp": "v=0"}})
	a.expect("answer")

	b.send(map[string]any{"type": "chat_message", "room": room, "message": "hi"})
	chat := a.expect("chat_message")
	assert.Equal(t, "hi", chat["message"])
	assert.Equal(t, b.sid, chat["from"])
	assert.NotZero(t, chat["timestamp"])
}

func TestSkipNotifiesPartner(t *testing.T) {
	a, b, _ := pairClients(t, newTestServer(t))
	a.send(map[string]any{"type": "skip"})
	b.expect("partner_skipped")
}

func TestJoin(t *testing.T) {
	url := newTestServer(t)
	a, _, room := pairClients(t, url)
	outsider := dial(t, url)

	a.send(map[string]any{"type": "join", "room": room})
	joined := a.expect("room_joined")
	assert.Equal(t, "initiator", joined["role"])

	outsider.send(map[string]any{"type": "join_room", "room": room})
	failed := outsider.expect("join_failed")
	assert.Equal(t, "room_not_found", failed["reason"])

	outsider.send(map[string]any{"type": "join", "room": "nope"})
	failed = outsider.expect("join_failed")
	assert.Equal(t, "room_not_found", failed["reason"])

	a.send(map[string]any{"type": "skip"})
	a.send(map[string]any{"type": "join", "room": room})
	failed = a.expect("join_failed")
	assert.Equal(t, "room_closed", failed["reason"])

	outsider.send(map[string]any{"type": "join", "room": room})
	failed = outsider.expect("join_failed")
	assert.Equal(t, "room_not_found", failed["reason"])
}

func TestReconnectResumesRoom(t *testing.T) {
	url := newTestServer(t)
	a, b, room := pairClients(t, url)
	require.NoError(t, a.ws.Close())

	again := dial(t, url)
	again.send(map[string]any{"type": "reconnect", "token": a.token})
	res := again.expect("reconnect_success")
	assert.Equal(t, a.sid, res["sessionId"])
	assert.Equal(t, room, res["room"])
	assert.Equal(t, b.sid, res["partnerId"])
	assert.Equal(t, true, res["initiator"])
	assert.NotEqual(t, a.token, res["token"])

	b.send(map[string]any{"type": "candidate", "room": room, "candidate": map[string]any{"candidate": "c1"}})
	cand := again.expect("candidate")
	assert.Equal(t, b.sid, cand["from"])

	// The redeemed token is spent.
	late := dial(t, url)
	late.send(map[string]any{"type": "reconnect_user", "token": a.token})
	failed := late.expect("reconnect_failed")
	assert.Equal(t, "invalid_token", failed["reason"])
}

func TestReconnectUnknownToken(t *testing.T) {
	c := dial(t, newTestServer(t))
	c.send(map[string]any{"type": "reconnect", "token": "bogus"})
	failed := c.expect("reconnect_failed")
	assert.Equal(t, "invalid_token", failed["reason"])

	c.send(map[string]any{"type": "reconnect"})
	failed = c.expect("reconnect_failed")
	assert.Equal(t, "invalid_token", failed["reason"])
}

func TestLeaveClosesSocket(t *testing.T) {
	a, b, _ := pairClients(t, newTestServer(t))
	a.send(map[string]any{"type": "leave"})
	b.expect("partner_disconnected")

	require.NoError(t, a.ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := a.ws.ReadMessage(); err != nil {
			break
		}
	}
}

func TestBadJSON(t *testing.T) {
	c := dial(t, newTestServer(t))
	require.NoError(t, c.ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg := c.expect("error")
	assert.Equal(t, "bad_payload", msg["reason"])
}
