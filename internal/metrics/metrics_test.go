package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	cases := []struct{ in, want string }{
		{in: "", want: "/"},
		{in: "/", want: "/"},
		{in: "/health", want: "/health"},
		{in: "/evidence/123/custody", want: "/evidence/:param/custody"},
		{in: "/evidence/3f1c2b9e-8d7a-4c1e-9b2a-0a1b2c3d4e5f/custody", want: "/evidence/:param/custody"},
		{in: "/auth/login?x=1", want: "/auth/login"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizePath(tc.in), tc.in)
	}
}

func TestCounters(t *testing.T) {
	m, err := New(false)
	require.NoError(t, err)

	m.ObserveHTTP("GET", "/health", 0, 5*time.Millisecond)
	m.ObserveHTTP("GET", "/health", 503, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/health", "503")))

	done := m.TrackInflight("GET", "/ws")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpInflight.WithLabelValues("GET", "/ws")))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.httpInflight.WithLabelValues("GET", "/ws")))

	m.Connected()
	m.Connected()
	m.Disconnected()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.wsConnections))

	m.Inbound("ping")
	m.Inbound("whatever")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.wsInbound.WithLabelValues("ping")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.wsInbound.WithLabelValues("other")))

	m.SweepRun(2, 1, 5, nil)
	m.SweepRun(0, 0, 0, errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepRuns.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepRuns.WithLabelValues("failed")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.sweepDeleted.WithLabelValues("attempts")))

	m.AuthEvent("login", "ok")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authEvents.WithLabelValues("login", "ok")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m, err := New(true)
	require.NoError(t, err)
	m.RateLimited()
	m.ChainAppended("audit")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "opslinkcad_rate_limited_total 1")
	assert.Contains(t, body, `opslinkcad_chain_appends_total{chain="audit"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestIndependentRegistries(t *testing.T) {
	a, err := New(false)
	require.NoError(t, err)
	b, err := New(false)
	require.NoError(t, err)
	a.RateLimited()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.rateLimited))
}
