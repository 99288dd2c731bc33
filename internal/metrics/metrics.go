// Package metrics define los collectors Prometheus del servicio. Todo cuelga de
// un *Metrics con su propio registry para que los tests no compartan estado.
package metrics

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "opslinkcad"

type Metrics struct {
	reg *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        *prometheus.GaugeVec

	authEvents   *prometheus.CounterVec
	corsRejects  prometheus.Counter
	rateLimited  prometheus.Counter
	auditAppends *prometheus.CounterVec

	wsConnections prometheus.Gauge
	wsInbound     *prometheus.CounterVec
	wsDropped     prometheus.Counter

	sweepRuns    *prometheus.CounterVec
	sweepDeleted *prometheus.CounterVec
}

// New crea y registra todos los collectors. Con withRuntime agrega los
// collectors de proceso y Go runtime.
func New(withRuntime bool) (*Metrics, error) {
	m := &Metrics{
		reg: prometheus.NewRegistry(),

		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Número total de requests procesadas",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latencia de los requests HTTP",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpInflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_inflight_requests",
			Help:      "Requests en vuelo por método y ruta",
		}, []string{"method", "path"}),

		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_events_total",
			Help:      "Eventos de autenticación por flujo y resultado",
		}, []string{"flow", "result"}),
		corsRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cors_rejects_total",
			Help:      "Requests rechazadas por origin no permitido",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rechazadas por rate limit",
		}),
		auditAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_appends_total",
			Help:      "Eventos agregados a las cadenas de auditoría",
		}, []string{"chain"}),

		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Conexiones realtime abiertas",
		}),
		wsInbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_inbound_frames_total",
			Help:      "Frames recibidos por tipo",
		}, []string{"type"}),
		wsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_dropped_frames_total",
			Help:      "Frames descartados por buffer lleno",
		}),

		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Barridos de limpieza por resultado",
		}, []string{"result"}),
		sweepDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_deleted_total",
			Help:      "Filas borradas por el sweeper",
		}, []string{"kind"}),
	}

	cs := []prometheus.Collector{
		m.httpRequestsTotal, m.httpRequestDuration, m.httpInflight,
		m.authEvents, m.corsRejects, m.rateLimited, m.auditAppends,
		m.wsConnections, m.wsInbound, m.wsDropped,
		m.sweepRuns, m.sweepDeleted,
	}
	if withRuntime {
		cs = append(cs,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	for _, c := range cs {
		if err := registerCollector(m.reg, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// registerCollector registra el collector ignorando duplicados.
func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return err
	}
	return nil
}

// Handler expone /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ---- HTTP ----

// TrackInflight incrementa el gauge y retorna la función que lo decrementa.
func (m *Metrics) TrackInflight(method, path string) func() {
	g := m.httpInflight.WithLabelValues(method, path)
	g.Inc()
	return g.Dec
}

func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	if status == 0 {
		status = http.StatusOK
	}
	m.httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

func (m *Metrics) CORSRejected() { m.corsRejects.Inc() }

func (m *Metrics) RateLimited() { m.rateLimited.Inc() }

// ---- auth / audit ----

func (m *Metrics) AuthEvent(flow, result string) {
	m.authEvents.WithLabelValues(flow, result).Inc()
}

func (m *Metrics) ChainAppended(chain string) {
	m.auditAppends.WithLabelValues(chain).Inc()
}

// ---- realtime (satisface realtime.Observer) ----

var knownFrames = map[string]bool{"hello": true, "ping": true, "pong": true, "subscribe": true}

func (m *Metrics) Connected() { m.wsConnections.Inc() }
func (m *Metrics) Disconnected() { m.wsConnections.Dec() }
func (m *Metrics) Dropped() { m.wsDropped.Inc() }

func (m *Metrics) Inbound(frameType string) {
	if !knownFrames[frameType] {
		frameType = "other"
	}
	m.wsInbound.WithLabelValues(frameType).Inc()
}

// ---- sweeper ----

func (m *Metrics) SweepRun(sessions, refreshTokens, attempts int64, err error) {
	if err != nil {
		m.sweepRuns.WithLabelValues("failed").Inc()
	} else {
		m.sweepRuns.WithLabelValues("ok").Inc()
	}
	m.sweepDeleted.WithLabelValues("sessions").Add(float64(sessions))
	m.sweepDeleted.WithLabelValues("refresh_tokens").Add(float64(refreshTokens))
	m.sweepDeleted.WithLabelValues("attempts").Add(float64(attempts))
}

// ---- labels ----

var (
	uuidSegmentRE  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F-]{4}-[0-9a-fA-F-]{4,}$`)
	hexSegmentRE   = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)
	tokenSegmentRE = regexp.MustCompile(`^[A-Za-z0-9_-]{24,}$`)
)

// NormalizePath reemplaza segmentos dinámicos por :param. Se usa cuando el
// router no provee el patrón de la ruta (404, /ws).
func NormalizePath(p string) string {
	clean := strings.SplitN(p, "?", 2)[0]
	if clean == "" || clean == "/" {
		return "/"
	}
	var out []string
	for _, seg := range strings.Split(clean, "/") {
		if seg == "" {
			continue
		}
		if isDynamicSegment(seg) {
			out = append(out, ":param")
		} else {
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}

func isDynamicSegment(seg string) bool {
	if len(seg) > 48 {
		return true
	}
	if uuidSegmentRE.MatchString(seg) || hexSegmentRE.MatchString(seg) || tokenSegmentRE.MatchString(seg) {
		return true
	}
	_, err := strconv.Atoi(seg)
	return err == nil
}
