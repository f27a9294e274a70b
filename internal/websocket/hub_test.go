package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/neon-reels/internal/game"
	"github.com/wfunc/neon-reels/internal/game/clock"
	"github.com/wfunc/neon-reels/internal/game/slot"
)

type wsEnv struct {
	t       *testing.T
	clock   *clock.ManualClock
	manager *game.SessionManager
	hub     *Hub
	server  *httptest.Server
	cancel  context.CancelFunc
}

func newWSEnv(t *testing.T, opts Options) *wsEnv {
	t.Helper()

	clk := clock.NewManualClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	manager, err := game.NewSessionManager(game.ManagerConfig{
		Clock:     clk,
		Rules:     game.DefaultRules(),
		NewRandom: func() slot.RandomSource { return slot.NewSeededRandom(7) },
	})
	require.NoError(t, err)

	hub := NewHub(NewGameMessageHandler(manager, nil), opts, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			session *game.Session
			owned   bool
			err     error
		)
		if id := r.URL.Query().Get("session_id"); id != "" {
			session, err = manager.GetSession(id)
		} else {
			session, err = manager.CreateSession("")
			owned = true
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			if owned {
				manager.RemoveSession(session.ID())
			}
			return
		}
		hub.Serve(conn, session, owned)
	}))

	env := &wsEnv{t: t, clock: clk, manager: manager, hub: hub, server: server, cancel: cancel}
	t.Cleanup(func() {
		server.Close()
		cancel()
		manager.Shutdown()
	})
	return env
}

func testOptions() Options {
	return Options{
		PongTimeout:    time.Minute,
		WriteTimeout:   time.Second,
		MaxMessageSize: 8192,
		SendBufferSize: 2048,
	}
}

// advance 以 10ms 步长推进时钟，每步用快照等待会话处理完定时任务
func (e *wsEnv) advance(session *game.Session, d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += 10 * time.Millisecond {
		e.clock.Advance(10 * time.Millisecond)
		_, _ = session.Snapshot()
	}
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	msgs chan Message
}

func (e *wsEnv) dial(query string) *wsClient {
	e.t.Helper()

	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(e.t, err)

	c := &wsClient{t: e.t, conn: conn, msgs: make(chan Message, 4096)}
	go func() {
		defer close(c.msgs)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var m Message
			if json.Unmarshal(data, &m) == nil {
				c.msgs <- m
			}
		}
	}()
	e.t.Cleanup(func() { conn.Close() })
	return c
}

func (c *wsClient) send(msgType string, data interface{}) {
	c.t.Helper()
	msg, err := NewMessage(msgType, "", data)
	require.NoError(c.t, err)
	raw, err := json.Marshal(msg)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, raw))
}

func (c *wsClient) sendRaw(raw string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func (c *wsClient) waitFor(msgType string, match func(Message) bool) Message {
	c.t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case m, ok := <-c.msgs:
			if !ok {
				c.t.Fatalf("连接已关闭，未收到 %s", msgType)
			}
			if m.Type == msgType && (match == nil || match(m)) {
				return m
			}
		case <-timeout:
			c.t.Fatalf("等待 %s 超时", msgType)
		}
	}
}

type snapshotView struct {
	SessionID  string                `json:"session_id"`
	Event      string                `json:"event"`
	State      string                `json:"state"`
	Balance    int64                 `json:"balance"`
	Bet        int64                 `json:"bet"`
	IsSpinning bool                  `json:"is_spinning"`
	IsDemo     bool                  `json:"is_demo"`
	History    []jsoniter.RawMessage `json:"history"`
}

func decode[T any](t *testing.T, m Message) T {
	t.Helper()
	var v T
	require.NoError(t, m.Bind(&v))
	return v
}

func snapshotEvent(event string) func(Message) bool {
	return func(m Message) bool {
		var v snapshotView
		return m.Bind(&v) == nil && v.Event == event
	}
}

func errorCode(code int) func(Message) bool {
	return func(m Message) bool {
		var v ErrorPayload
		return m.Bind(&v) == nil && v.Code == code
	}
}

func TestOwnedSessionLifecycle(t *testing.T) {
	env := newWSEnv(t, testOptions())
	c := env.dial("")

	connected := decode[ConnectedPayload](t, c.waitFor(MessageTypeConnected, nil))
	assert.True(t, connected.Owned)
	require.NotEmpty(t, connected.SessionID)

	initial := decode[snapshotView](t, c.waitFor(MessageTypeSnapshot, nil))
	assert.Equal(t, connected.SessionID, initial.SessionID)
	assert.Equal(t, int64(5000), initial.Balance)
	assert.Equal(t, int64(120), initial.Bet)
	assert.Equal(t, 1, env.manager.GetActiveSessions())

	session, err := env.manager.GetSession(connected.SessionID)
	require.NoError(t, err)

	// 下注校验在入口处完成
	c.send(MessageTypeSetBet, map[string]int64{"amount": 25})
	c.waitFor(MessageTypeError, errorCode(2004))
	c.send(MessageTypeSetBet, nil)
	c.waitFor(MessageTypeError, errorCode(1001))

	c.send(MessageTypeSetBet, map[string]int64{"amount": 200})
	changed := decode[snapshotView](t, c.waitFor(MessageTypeSnapshot, snapshotEvent("bet_changed")))
	assert.Equal(t, int64(200), changed.Bet)
	c.waitFor(MessageTypeOutcome, nil)

	// 快照在会话循环内推送，先于操作结果到达
	c.send(MessageTypeSpin, SpinRequest{})
	started := decode[snapshotView](t, c.waitFor(MessageTypeSnapshot, snapshotEvent("spin_started")))
	assert.True(t, started.IsSpinning)
	assert.Equal(t, int64(4800), started.Balance)

	outcome := decode[OutcomePayload](t, c.waitFor(MessageTypeOutcome, nil))
	assert.Equal(t, MessageTypeSpin, outcome.Action)
	assert.Equal(t, game.OutcomeStarted, outcome.Outcome)

	// 旋转中再次请求被忽略
	c.send(MessageTypeSpin, SpinRequest{})
	ignored := decode[OutcomePayload](t, c.waitFor(MessageTypeOutcome, nil))
	assert.Equal(t, game.OutcomeIgnored, ignored.Outcome)

	env.advance(session, 2500*time.Millisecond)
	settled := decode[snapshotView](t, c.waitFor(MessageTypeSnapshot, snapshotEvent("spin_settled")))
	assert.False(t, settled.IsSpinning)
	assert.Len(t, settled.History, 1)

	c.sendRaw("{not json")
	c.waitFor(MessageTypeError, errorCode(4007))
	c.send(MessageTypeSetBet, map[string]string{"amount": "many"})
	badBet := decode[ErrorPayload](t, c.waitFor(MessageTypeError, errorCode(4007)))
	assert.Contains(t, badBet.Details, "set_bet")
	c.send("jackpot", nil)
	unknown := decode[ErrorPayload](t, c.waitFor(MessageTypeError, errorCode(4008)))
	assert.Contains(t, unknown.Details, `"jackpot"`)

	c.send(MessageTypeState, nil)
	state := decode[snapshotView](t, c.waitFor(MessageTypeSnapshot, snapshotEvent("state")))
	assert.Equal(t, "idle", state.State)

	// 连接关闭后独占会话被销毁
	require.NoError(t, c.conn.Close())
	require.Eventually(t, func() bool {
		return env.manager.GetActiveSessions() == 0 && env.hub.GetOnlineCount() == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSharedSession(t *testing.T) {
	env := newWSEnv(t, testOptions())
	session, err := env.manager.CreateSession("cabinet-1")
	require.NoError(t, err)

	a := env.dial("?session_id=cabinet-1")
	b := env.dial("?session_id=cabinet-1")
	for _, c := range []*wsClient{a, b} {
		connected := decode[ConnectedPayload](t, c.waitFor(MessageTypeConnected, nil))
		assert.False(t, connected.Owned)
		assert.Equal(t, "cabinet-1", connected.SessionID)
		c.waitFor(MessageTypeSnapshot, nil)
	}

	a.send(MessageTypeDemo, nil)
	outcome := decode[OutcomePayload](t, a.waitFor(MessageTypeOutcome, nil))
	assert.Equal(t, game.OutcomeStarted, outcome.Outcome)

	// 另一个连接也收到同一会话的推送
	started := decode[snapshotView](t, b.waitFor(MessageTypeSnapshot, snapshotEvent("spin_started")))
	assert.True(t, started.IsDemo)

	b.send(MessageTypeReset, nil)
	reset := decode[snapshotView](t, a.waitFor(MessageTypeSnapshot, snapshotEvent("reset")))
	assert.Equal(t, int64(5000), reset.Balance)
	assert.False(t, reset.IsSpinning)

	// 非独占会话在连接关闭后保留
	require.NoError(t, a.conn.Close())
	require.Eventually(t, func() bool { return env.hub.GetOnlineCount() == 1 }, 3*time.Second, 10*time.Millisecond)
	_, err = env.manager.GetSession(session.ID())
	assert.NoError(t, err)

	// 会话被移除后的请求返回会话已关闭
	require.NoError(t, env.manager.RemoveSession("cabinet-1"))
	b.send(MessageTypeState, nil)
	b.waitFor(MessageTypeError, errorCode(2003))
}

func TestHeartbeat(t *testing.T) {
	opts := testOptions()
	opts.PingInterval = 20 * time.Millisecond
	env := newWSEnv(t, opts)

	c := env.dial("")
	c.waitFor(MessageTypePing, nil)
	c.send(MessageTypePong, nil)
	c.waitFor(MessageTypePing, nil)
}

func TestHubShutdown(t *testing.T) {
	env := newWSEnv(t, testOptions())
	c := env.dial("")
	c.waitFor(MessageTypeConnected, nil)
	require.Equal(t, 1, env.manager.GetActiveSessions())

	env.cancel()

	// 连接被关闭，读取通道随之关闭
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-c.msgs:
			return !ok
		default:
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return env.manager.GetActiveSessions() == 0 }, 3*time.Second, 10*time.Millisecond)

	session, err := env.manager.CreateSession("")
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(env.server.URL, "http")+"/ws?session_id="+session.ID(), nil)
	if err == nil {
		// 停止后的 Hub 不再接管连接
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, _, err = conn.ReadMessage()
		assert.Error(t, err)
		conn.Close()
	}
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "旋转", raw: `{"type":"spin","data":{"demo":true}}`, want: MessageTypeSpin},
		{name: "无数据", raw: `{"type":"state"}`, want: MessageTypeState},
		{name: "类型为空", raw: `{"data":{}}`, wantErr: true},
		{name: "非法JSON", raw: `{"type":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Type)
		})
	}

	msg, err := DecodeMessage([]byte(`{"type":"spin","data":{"demo":true}}`))
	require.NoError(t, err)
	var req SpinRequest
	require.NoError(t, msg.Bind(&req))
	assert.True(t, req.Demo)

	msg, err = DecodeMessage([]byte(`{"type":"set_bet","data":null}`))
	require.NoError(t, err)
	var bet BetRequest
	require.NoError(t, msg.Bind(&bet))
	assert.Nil(t, bet.Amount)

	msg, err = DecodeMessage([]byte(`{"type":"set_bet","data":{"amount":"many"}}`))
	require.NoError(t, err)
	assert.ErrorIs(t, msg.Bind(&bet), ErrInvalidMessage)
}

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage(MessageTypeOutcome, "cabinet-1", OutcomePayload{Action: "spin", Outcome: game.OutcomeRejected})
	require.NoError(t, err)
	assert.Equal(t, "cabinet-1", msg.SessionID)
	assert.Positive(t, msg.Timestamp)
	assert.JSONEq(t, `{"action":"spin","outcome":"rejected"}`, string(msg.Data))

	empty, err := NewMessage(MessageTypePing, "", nil)
	require.NoError(t, err)
	raw, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"data"`)
}
