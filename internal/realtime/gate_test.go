package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/opslinkcad/internal/domain/types"
	"github.com/dropDatabas3/opslinkcad/internal/session"
)

const allowedOrigin = "https://opslinkcad.com"

type allowList []string

func (a allowList) Allowed(origin string) bool {
	for _, o := range a {
		if o == origin {
			return true
		}
	}
	return false
}

type stubAuth struct {
	calls      atomic.Int32
	principals map[string]*session.Principal
}

func (s *stubAuth) Authenticate(_ context.Context, raw string) (*session.Principal, error) {
	s.calls.Add(1)
	if p, ok := s.principals[raw]; ok {
		return p, nil
	}
	return nil, session.ErrUnauthorized
}

type harness struct {
	hub  *Hub
	auth *stubAuth
	srv  *httptest.Server
	url  string
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	auth := &stubAuth{principals: map[string]*session.Principal{
		"dispatcher": {UserID: "u1", TenantID: "alpha", Caps: types.NewCapabilities("ws:subscribe", "evidence:read")},
		"civilian":   {UserID: "u2", TenantID: "alpha", Caps: types.NewCapabilities("civilian:read")},
		"owner":      {UserID: "u3", TenantID: "alpha", Caps: types.NewCapabilities(types.Wildcard)},
		"beta":       {UserID: "u4", TenantID: "beta", Caps: types.NewCapabilities(types.Wildcard)},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	hub.Start(ctx)

	srv := httptest.NewServer(NewGate(hub, allowList{allowedOrigin}, auth, cfg))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &harness{hub: hub, auth: auth, srv: srv, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (h *harness) dial(t *testing.T, origin, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	hdr := http.Header{}
	if origin != "" {
		hdr.Set("Origin", origin)
	}
	if token != "" {
		hdr.Set("Cookie", "opslinkcad_session="+token)
	}
	return websocket.DefaultDialer.Dial(h.url, hdr)
}

func readFrame(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func connect(t *testing.T, h *harness, token string) *websocket.Conn {
	t.Helper()
	c, _, err := h.dial(t, allowedOrigin, token)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	hello := readFrame(t, c)
	require.Equal(t, TypeHello, hello["type"])
	return c
}

func TestGate_RejectsOriginBeforeToken(t *testing.T) {
	h := newHarness(t, Config{})

	for _, origin := range []string{"", "https://evil.example"} {
		_, resp, err := h.dial(t, origin, "dispatcher")
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
	assert.Zero(t, h.auth.calls.Load())
}

func TestGate_RejectsBadTokenAndCloses(t *testing.T) {
	h := newHarness(t, Config{})

	for _, tok := range []string{"", "expired-or-forged"} {
		_, resp, err := h.dial(t, allowedOrigin, tok)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.True(t, resp.Close, "transport must be closed")
	}
	assert.Zero(t, h.hub.Count(""))
}

func TestGate_HelloPingSubscribe(t *testing.T) {
	h := newHarness(t, Config{})
	c := connect(t, h, "dispatcher")
	assert.Equal(t, 1, h.hub.Count("alpha"))

	require.NoError(t, c.WriteJSON(map[string]string{"type": "ping"}))
	pong := readFrame(t, c)
	assert.Equal(t, TypePong, pong["type"])
	assert.NotZero(t, pong["ts"])

	require.NoError(t, c.WriteJSON(map[string]string{"type": "subscribe"}))
	sub := readFrame(t, c)
	assert.Equal(t, TypeSubscribed, sub["type"])
	assert.Equal(t, ChannelTenant, sub["channel"])
}

func TestGate_SubscribeRequiresCapability(t *testing.T) {
	h := newHarness(t, Config{})

	civ := connect(t, h, "civilian")
	require.NoError(t, civ.WriteJSON(map[string]string{"type": "subscribe"}))
	frame := readFrame(t, civ)
	assert.Equal(t, TypeError, frame["type"])
	assert.Equal(t, ErrFrameForbidden, frame["error"])

	owner := connect(t, h, "owner")
	require.NoError(t, owner.WriteJSON(map[string]string{"type": "subscribe"}))
	assert.Equal(t, TypeSubscribed, readFrame(t, owner)["type"])
}

func TestGate_IgnoresMalformedFrames(t *testing.T) {
	h := newHarness(t, Config{})
	c := connect(t, h, "dispatcher")

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, c.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, TypePong, readFrame(t, c)["type"])
}

func TestGate_InboundRateLimit(t *testing.T) {
	h := newHarness(t, Config{InboundRate: 0.001, InboundBurst: 1})
	c := connect(t, h, "dispatcher")

	require.NoError(t, c.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, TypePong, readFrame(t, c)["type"])

	require.NoError(t, c.WriteJSON(map[string]string{"type": "ping"}))
	frame := readFrame(t, c)
	assert.Equal(t, TypeError, frame["type"])
	assert.Equal(t, ErrFrameRateLimited, frame["error"])
}

func TestHub_BroadcastGatedByTenantAndCapability(t *testing.T) {
	h := newHarness(t, Config{})
	disp := connect(t, h, "dispatcher")
	civ := connect(t, h, "civilian")
	other := connect(t, h, "beta")

	n := h.hub.Broadcast("alpha", Event{Type: "evidence.custody", Data: map[string]string{"evidence_id": "e1"}}, types.PermEvidenceRead)
	assert.Equal(t, 1, n)

	frame := readFrame(t, disp)
	assert.Equal(t, "evidence.custody", frame["type"])

	// nadie más lo recibe: un ping devuelve directamente el pong
	for _, c := range []*websocket.Conn{civ, other} {
		require.NoError(t, c.WriteJSON(map[string]string{"type": "ping"}))
		assert.Equal(t, TypePong, readFrame(t, c)["type"])
	}

	assert.Equal(t, 2, h.hub.Broadcast("alpha", Event{Type: "notice"}, ""))
}

func TestHub_UnregisterOnClose(t *testing.T) {
	h := newHarness(t, Config{})
	c := connect(t, h, "dispatcher")
	require.Equal(t, 1, h.hub.Count("alpha"))

	require.NoError(t, c.Close())
	assert.Eventually(t, func() bool { return h.hub.Count("alpha") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_FullBufferDropsWithoutBlocking(t *testing.T) {
	hub := NewHub(nil)
	slow := &Conn{tenantID: "alpha", caps: types.NewCapabilities(), send: make(chan []byte, 1), done: make(chan struct{})}
	fast := &Conn{tenantID: "alpha", caps: types.NewCapabilities(), send: make(chan []byte, 8), done: make(chan struct{})}
	hub.Register(slow)
	hub.Register(fast)

	assert.Equal(t, 2, hub.Broadcast("alpha", Event{Type: "a"}, ""))
	assert.Equal(t, 1, hub.Broadcast("alpha", Event{Type: "b"}, ""))
	assert.Len(t, fast.send, 2)
	assert.Len(t, slow.send, 1)

	hub.Unregister(slow)
	hub.Unregister(slow)
	assert.Equal(t, 1, hub.Count("alpha"))
}
