package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/opslinkcad/internal/config"
	store "github.com/dropDatabas3/opslinkcad/internal/store"
	"github.com/dropDatabas3/opslinkcad/internal/store/memory"
)

const (
	tenant        = "alpha"
	goodPassword  = "Str0ngPassw0rd!"
	allowedOrigin = "https://opslinkcad.com"
	cookieName    = "opslinkcad_session"
)

type env struct {
	t   *testing.T
	app *App
	srv *httptest.Server
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.App.Env = config.EnvTest
	cfg.Storage.Driver = config.DriverMemory
	cfg.JWT.AccessSecret = strings.Repeat("a", 32)
	cfg.JWT.RefreshSecret = strings.Repeat("r", 32)
	cfg.Auth.Cookie.Name = cookieName
	cfg.Auth.Cookie.Domain = "opslinkcad.com"
	cfg.Security.BcryptCost = 4
	// 96 bytes de 0x01 en base64
	cfg.Security.FLEMasterKey = strings.Repeat("AQEB", 32)
	return cfg
}

func newEnv(t *testing.T, start bool) *env {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	dal := memory.New()
	_, err := store.Seed(ctx, dal, store.SeedOptions{TenantID: tenant, TenantName: "OpsLink CAD Community"})
	require.NoError(t, err)

	app, err := Build(ctx, testConfig(), Options{DAL: dal})
	require.NoError(t, err)
	if start {
		app.Start(ctx)
	}
	srv := httptest.NewServer(app.Handler)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &env{t: t, app: app, srv: srv}
}

type reply struct {
	status  int
	body    map[string]any
	cookies []*http.Cookie
	header  http.Header
}

func (e *env) do(method, path string, body any, hdr map[string]string) reply {
	e.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(e.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	out := reply{status: resp.StatusCode, cookies: resp.Cookies(), header: resp.Header}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(e.t, json.Unmarshal(raw, &out.body))
	}
	return out
}

func bearer(tok string) map[string]string { return map[string]string{"Authorization": "Bearer " + tok} }

func (e *env) register(email, role string) {
	e.t.Helper()
	r := e.do(http.MethodPost, "/auth/register", map[string]string{
		"tenant_id": tenant, "email": email, "username": "user_" + strings.Split(email, "@")[0], "password": goodPassword, "role": role,
	}, nil)
	require.Equal(e.t, http.StatusCreated, r.status, r.body)
}

func (e *env) login(email string) reply {
	e.t.Helper()
	r := e.do(http.MethodPost, "/auth/login", map[string]string{"tenant_id": tenant, "email": email, "password": goodPassword}, nil)
	require.Equal(e.t, http.StatusOK, r.status, r.body)
	return r
}

func cookie(r reply, name string) *http.Cookie {
	for _, c := range r.cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAuthFlow_RegisterLoginMeLogout(t *testing.T) {
	e := newEnv(t, false)
	e.register("officer@alpha.test", "Officer")

	r := e.login("Officer@Alpha.test")
	access, _ := r.body["access_token"].(string)
	require.NotEmpty(t, access)
	assert.Equal(t, "Bearer", r.body["token_type"])
	assert.EqualValues(t, 1200, r.body["expires_in"])
	assert.Equal(t, "no-store", r.header.Get("Cache-Control"))

	ac := cookie(r, cookieName)
	require.NotNil(t, ac)
	assert.Equal(t, access, ac.Value)
	assert.True(t, ac.HttpOnly)
	assert.True(t, ac.Secure)
	assert.Equal(t, http.SameSiteNoneMode, ac.SameSite)
	assert.Equal(t, "/", ac.Path)

	rc := cookie(r, cookieName+"_refresh")
	require.NotNil(t, rc)
	assert.Equal(t, r.body["refresh_id"], rc.Value)
	assert.Equal(t, 30*24*3600, rc.MaxAge)

	me := e.do(http.MethodGet, "/auth/me", nil, bearer(access))
	require.Equal(t, http.StatusOK, me.status)
	user := me.body["user"].(map[string]any)
	assert.Equal(t, "officer@alpha.test", user["email"])
	assert.Equal(t, "Officer", user["role"])

	// tenant header distinto al del token
	mismatch := e.do(http.MethodGet, "/auth/me", nil, map[string]string{"Authorization": "Bearer " + access, "X-Tenant-ID": "bravo"})
	assert.Equal(t, http.StatusUnauthorized, mismatch.status)

	out := e.do(http.MethodPost, "/auth/logout", nil, map[string]string{
		"Authorization": "Bearer " + access,
		"Cookie":        rc.Name + "=" + rc.Value,
	})
	require.Equal(t, http.StatusOK, out.status)
	cleared := cookie(out, cookieName)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	after := e.do(http.MethodGet, "/auth/me", nil, bearer(access))
	assert.Equal(t, http.StatusUnauthorized, after.status)
}

func TestAuthFlow_RegisterErrors(t *testing.T) {
	e := newEnv(t, false)

	weak := e.do(http.MethodPost, "/auth/register", map[string]string{"tenant_id": tenant, "email": "a@alpha.test", "username": "abc", "password": "weak"}, nil)
	assert.Equal(t, http.StatusBadRequest, weak.status)
	assert.Equal(t, "PASSWORD_TOO_WEAK", weak.body["code"])

	community := e.do(http.MethodPost, "/auth/register", map[string]string{"tenant_id": "nowhere", "email": "a@alpha.test", "username": "abc", "password": goodPassword}, nil)
	assert.Equal(t, http.StatusBadRequest, community.status)
	assert.Equal(t, "Community not found", community.body["message"])

	e.register("dup@alpha.test", "")
	dup := e.do(http.MethodPost, "/auth/register", map[string]string{"tenant_id": tenant, "email": "dup@alpha.test", "username": "abc", "password": goodPassword}, nil)
	assert.Equal(t, http.StatusConflict, dup.status)

	bad := e.do(http.MethodPost, "/auth/register", nil, map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusBadRequest, bad.status)
}

func TestAuthFlow_LockoutAfterTenFailures(t *testing.T) {
	e := newEnv(t, false)
	e.register("target@alpha.test", "")

	for i := 0; i < 10; i++ {
		r := e.do(http.MethodPost, "/auth/login", map[string]string{"tenant_id": tenant, "email": "target@alpha.test", "password": "Wr0ngPassword!"}, nil)
		require.Equal(t, http.StatusUnauthorized, r.status, "attempt %d", i+1)
		assert.Equal(t, "Invalid credentials", r.body["message"])
	}

	r := e.do(http.MethodPost, "/auth/login", map[string]string{"tenant_id": tenant, "email": "target@alpha.test", "password": goodPassword}, nil)
	assert.Equal(t, http.StatusTooManyRequests, r.status)
	assert.Equal(t, "TOO_MANY_ATTEMPTS", r.body["code"])
	assert.Nil(t, cookie(r, cookieName))
}

func TestAuthFlow_LockoutIgnoresSpoofedForwardedFor(t *testing.T) {
	e := newEnv(t, false)
	e.register("target@alpha.test", "")

	// el peer (127.0.0.1) no es un proxy confiable: rotar el header no abre ventanas nuevas
	for i := 0; i < 10; i++ {
		hdr := map[string]string{"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i+1)}
		r := e.do(http.MethodPost, "/auth/login", map[string]string{"tenant_id": tenant, "email": "target@alpha.test", "password": "Wr0ngPassword!"}, hdr)
		require.Equal(t, http.StatusUnauthorized, r.status, "attempt %d", i+1)
	}

	hdr := map[string]string{"X-Forwarded-For": "198.51.100.200"}
	r := e.do(http.MethodPost, "/auth/login", map[string]string{"tenant_id": tenant, "email": "target@alpha.test", "password": goodPassword}, hdr)
	assert.Equal(t, http.StatusTooManyRequests, r.status)
	assert.Equal(t, "TOO_MANY_ATTEMPTS", r.body["code"])
}

func TestBuild_RejectsBadTrustedProxy(t *testing.T) {
	cfg := testConfig()
	cfg.Server.TrustedProxies = []string{"not-a-cidr"}
	_, err := Build(context.Background(), cfg, Options{DAL: memory.New()})
	assert.Error(t, err)
}

func TestAuthFlow_RefreshRotationAndReuse(t *testing.T) {
	e := newEnv(t, false)
	e.register("officer@alpha.test", "Officer")
	first := e.login("officer@alpha.test")
	refresh := first.body["refresh_token"].(string)

	second := e.do(http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refresh}, map[string]string{
		"Cookie": cookieName + "_refresh=" + first.body["refresh_id"].(string),
	})
	require.Equal(t, http.StatusOK, second.status, second.body)
	assert.NotEqual(t, first.body["refresh_id"], second.body["refresh_id"])

	reuse := e.do(http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refresh}, nil)
	assert.Equal(t, http.StatusUnauthorized, reuse.status)

	// la reutilización revoca también la sesión rotada
	me := e.do(http.MethodGet, "/auth/me", nil, bearer(second.body["access_token"].(string)))
	assert.Equal(t, http.StatusUnauthorized, me.status)
}

func TestCustody_PermissionsAndBroadcast(t *testing.T) {
	e := newEnv(t, true)
	e.register("admin@alpha.test", "Community Admin")
	e.register("officer@alpha.test", "Officer")
	admin := e.login("admin@alpha.test").body["access_token"].(string)
	officer := e.login("officer@alpha.test").body["access_token"].(string)

	// el officer escucha por websocket
	hdr := http.Header{}
	hdr.Set("Origin", allowedOrigin)
	hdr.Set("Cookie", cookieName+"="+officer)
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(e.srv.URL, "http")+"/ws", hdr)
	require.NoError(t, err)
	defer ws.Close()
	require.Equal(t, "hello", readFrame(t, ws)["type"])

	denied := e.do(http.MethodPost, "/evidence/EV-1/custody", map[string]any{"action": "seize"}, bearer(officer))
	assert.Equal(t, http.StatusForbidden, denied.status)

	ok := e.do(http.MethodPost, "/evidence/EV-1/custody", map[string]any{
		"action": "seize",
		"to":     map[string]string{"locker": "A1"},
		"note":   "scene",
	}, bearer(admin))
	require.Equal(t, http.StatusCreated, ok.status, ok.body)

	frame := readFrame(t, ws)
	assert.Equal(t, "evidence.custody", frame["type"])
	data := frame["data"].(map[string]any)
	assert.Equal(t, "EV-1", data["evidence_id"])

	list := e.do(http.MethodGet, "/evidence/EV-1/custody", nil, bearer(officer))
	require.Equal(t, http.StatusOK, list.status)
	assert.Len(t, list.body["events"], 1)
	assert.Equal(t, true, list.body["report"].(map[string]any)["ok"])

	audit := e.do(http.MethodGet, "/audit/verify", nil, bearer(admin))
	require.Equal(t, http.StatusOK, audit.status)
	assert.Equal(t, true, audit.body["report"].(map[string]any)["ok"])

	forbidden := e.do(http.MethodGet, "/audit/verify", nil, bearer(officer))
	assert.Equal(t, http.StatusForbidden, forbidden.status)
}

func TestCommunities_ReadOnly(t *testing.T) {
	e := newEnv(t, false)
	e.register("officer@alpha.test", "Officer")
	access := e.login("officer@alpha.test").body["access_token"].(string)

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/communities", nil, nil).status)

	list := e.do(http.MethodGet, "/communities", nil, bearer(access))
	require.Equal(t, http.StatusOK, list.status, list.body)
	comms, _ := list.body["communities"].([]any)
	require.Len(t, comms, 1)
	assert.Equal(t, tenant, comms[0].(map[string]any)["id"])

	one := e.do(http.MethodGet, "/communities/"+tenant, nil, bearer(access))
	require.Equal(t, http.StatusOK, one.status, one.body)
	assert.Equal(t, "OpsLink CAD Community", one.body["community"].(map[string]any)["name"])

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/communities/nope", nil, bearer(access)).status)
}

func TestCORS_StrictOrigins(t *testing.T) {
	e := newEnv(t, false)

	evil := e.do(http.MethodGet, "/health", nil, map[string]string{"Origin": "https://evil.example"})
	assert.Equal(t, http.StatusForbidden, evil.status)

	good := e.do(http.MethodOptions, "/auth/login", nil, map[string]string{"Origin": allowedOrigin})
	assert.Equal(t, http.StatusNoContent, good.status)
	assert.Equal(t, allowedOrigin, good.header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", good.header.Get("Access-Control-Allow-Credentials"))
}

func TestHealthAndMetrics(t *testing.T) {
	cold := newEnv(t, false)
	r := cold.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, true, r.body["db"])
	assert.Equal(t, false, r.body["ws"])
	assert.Equal(t, false, r.body["jobs"])
	assert.NotContains(t, r.body, "redis")

	warm := newEnv(t, true)
	r = warm.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, true, r.body["ws"])
	assert.Equal(t, true, r.body["jobs"])

	resp, err := warm.srv.Client().Get(warm.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), `opslinkcad_http_requests_total{method="GET",path="/health",status="200"}`)
}

func TestRateLimitHeaders(t *testing.T) {
	e := newEnv(t, false)
	r := e.do(http.MethodGet, "/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, r.status)
	assert.Equal(t, "600", r.header.Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, r.header.Get("X-RateLimit-Remaining"))
}

func TestUnknownRoute(t *testing.T) {
	e := newEnv(t, false)
	r := e.do(http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, r.status)
	assert.Equal(t, "NOT_FOUND", r.body["code"])
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
