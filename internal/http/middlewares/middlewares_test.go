package middlewares

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	"github.com/dropDatabas3/opslinkcad/internal/domain/types"
	"github.com/dropDatabas3/opslinkcad/internal/rate"
	"github.com/dropDatabas3/opslinkcad/internal/session"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

func errCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body.Code
}

func TestRequestID(t *testing.T) {
	var seen string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}), WithRequestID())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "abc-123", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 65))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Len(t, rr.Header().Get("X-Request-ID"), 32)
	assert.Equal(t, rr.Header().Get("X-Request-ID"), seen)
}

func TestRecover(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), WithRecover())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", errCode(t, rr))
}

func TestSecurityHeaders(t *testing.T) {
	h := Chain(okHandler, WithSecurityHeaders(), WithNoStore())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.Empty(t, rr.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.NotEmpty(t, rr.Header().Get("Strict-Transport-Security"))
}

func TestCORS(t *testing.T) {
	rejected := 0
	h := Chain(okHandler, WithCORS(NewOriginPolicy([]string{"https://app.opslinkcad.com/"}), func() { rejected++ }))

	t.Run("sin origin pasa", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("origin no listado", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, 1, rejected)
	})

	t.Run("preflight permitido", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", "https://APP.opslinkcad.com")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "https://APP.opslinkcad.com", rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("wildcard ignorado", func(t *testing.T) {
		assert.False(t, NewOriginPolicy([]string{"*"}).Allowed("https://x.example"))
		var nilPolicy *OriginPolicy
		assert.False(t, nilPolicy.Allowed("https://x.example"))
	})
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (rate.Result, error) {
	return rate.Result{}, errors.New("redis down")
}

func TestRateLimit(t *testing.T) {
	assert.Nil(t, WithRateLimit(RateLimitConfig{}))

	limited := 0
	lim := rate.NewMemoryLimiter(2, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	lim.Now = func() time.Time { return now }
	h := Chain(okHandler, WithRateLimit(RateLimitConfig{
		Limiter:   lim,
		Max:       2,
		Whitelist: []string{"/health"},
		OnLimited: func() { limited++ },
	}))

	hit := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	for i := 0; i < 2; i++ {
		rr := hit("/auth/login")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
	}
	rr := hit("/auth/login")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errCode(t, rr))
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, 1, limited)

	assert.Equal(t, http.StatusOK, hit("/health").Code)

	open := Chain(okHandler, WithRateLimit(RateLimitConfig{Limiter: failingLimiter{}}))
	rr = httptest.NewRecorder()
	open.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:1234"
	assert.Equal(t, "192.0.2.7", ClientIP(req))

	// sin WithClientIP el header no cuenta
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "192.0.2.7", ClientIP(req))
}

func TestProxyPolicy_Resolve(t *testing.T) {
	policy, err := NewProxyPolicy([]string{"10.0.0.0/8", " fd00::/8 "})
	require.NoError(t, err)

	tests := []struct {
		name   string
		remote string
		xff    []string
		want   string
	}{
		{name: "peer no confiable ignora xff", remote: "198.51.100.4:4000", xff: []string{"203.0.113.9"}, want: "198.51.100.4"},
		{name: "proxy confiable sin xff", remote: "10.0.0.2:4000", want: "10.0.0.2"},
		{name: "salto no confiable más a la derecha", remote: "10.0.0.2:4000", xff: []string{"1.1.1.1, 203.0.113.9, 10.1.1.1"}, want: "203.0.113.9"},
		{name: "headers repetidos", remote: "10.0.0.2:4000", xff: []string{"1.1.1.1", "203.0.113.9"}, want: "203.0.113.9"},
		{name: "todo confiable", remote: "10.0.0.2:4000", xff: []string{"10.9.9.9, 10.1.1.1"}, want: "10.9.9.9"},
		{name: "basura se corta", remote: "10.0.0.2:4000", xff: []string{"1.1.1.1, not-an-ip, 10.1.1.1"}, want: "10.1.1.1"},
		{name: "ipv6 confiable", remote: "[fd00::1]:4000", xff: []string{"2001:db8::5"}, want: "2001:db8::5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for _, v := range tt.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			assert.Equal(t, tt.want, policy.Resolve(req))
		})
	}

	var nilPolicy *ProxyPolicy
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:4000"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "10.0.0.2", nilPolicy.Resolve(req))

	_, err = NewProxyPolicy([]string{"10.0.0.1"})
	assert.Error(t, err)
}

func TestRateLimit_SpoofedForwardedForSharesKey(t *testing.T) {
	policy, err := NewProxyPolicy([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	lim := rate.NewMemoryLimiter(2, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	lim.Now = func() time.Time { return now }
	h := Chain(okHandler, WithClientIP(policy), WithRateLimit(RateLimitConfig{Limiter: lim, Max: 2}))

	hit := func(xff string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "198.51.100.4:5555"
		req.Header.Set("X-Forwarded-For", xff)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	// cada request inventa un origen distinto; la clave sigue siendo RemoteAddr
	assert.Equal(t, http.StatusOK, hit("203.0.113.1"))
	assert.Equal(t, http.StatusOK, hit("203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, hit("203.0.113.3"))
}

type fakeAuth struct {
	p   *session.Principal
	err error
}

func (f fakeAuth) Authenticate(_ context.Context, raw string) (*session.Principal, error) {
	if raw != "good" {
		return nil, session.ErrUnauthorized
	}
	return f.p, f.err
}

func TestRequireAuth(t *testing.T) {
	officer := &session.Principal{
		UserID:   "u1",
		TenantID: "alpha",
		Role:     "Officer",
		Caps:     types.NewCapabilities(types.PermEvidenceRead),
	}
	var got *session.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name   string
		auth   fakeAuth
		setup  func(r *http.Request)
		status int
		authz  string
	}{
		{
			name:   "sin token",
			auth:   fakeAuth{p: officer},
			setup:  func(*http.Request) {},
			status: http.StatusUnauthorized,
			authz:  `Bearer realm="api"`,
		},
		{
			name:   "token inválido",
			auth:   fakeAuth{p: officer},
			setup:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") },
			status: http.StatusUnauthorized,
			authz:  `Bearer realm="api", error="invalid_token"`,
		},
		{
			name:   "store caído",
			auth:   fakeAuth{err: fmt.Errorf("sessions: %w", repository.ErrUnavailable)},
			setup:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") },
			status: http.StatusServiceUnavailable,
		},
		{
			name: "tenant distinto",
			auth: fakeAuth{p: officer},
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer good")
				r.Header.Set(TenantHeader, "beta")
			},
			status: http.StatusUnauthorized,
		},
		{
			name: "cookie",
			auth: fakeAuth{p: officer},
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "opslinkcad_session", Value: "good"})
				r.Header.Set(TenantHeader, "alpha")
			},
			status: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			h := Chain(next, RequireAuth(tt.auth, "opslinkcad_session"))
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			tt.setup(req)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.status, rr.Code)
			if tt.authz != "" {
				assert.Equal(t, tt.authz, rr.Header().Get("WWW-Authenticate"))
			}
			if tt.status == http.StatusOK {
				assert.Same(t, officer, got)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestRequirePerm(t *testing.T) {
	officer := &session.Principal{UserID: "u1", TenantID: "alpha", Caps: types.NewCapabilities(types.PermEvidenceRead)}
	admin := &session.Principal{UserID: "u2", TenantID: "alpha", Caps: types.NewCapabilities(types.Wildcard)}
	h := Chain(okHandler, RequirePerm(types.PermEvidenceWrite))

	serve := func(p *session.Principal) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if p != nil {
			req = req.WithContext(WithPrincipal(req.Context(), p))
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(nil))
	assert.Equal(t, http.StatusForbidden, serve(officer))
	assert.Equal(t, http.StatusOK, serve(admin))
}

func TestLoggingRecorder(t *testing.T) {
	var status int
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
		rec, ok := w.(*statusRecorder)
		require.True(t, ok)
		status = rec.status
	}), WithRequestID(), WithLogging())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, http.StatusTeapot, status)

	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rec.Hijack()
	assert.Error(t, err)
}
