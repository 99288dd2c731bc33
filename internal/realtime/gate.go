// Package realtime autoriza upgrades websocket y reparte eventos por tenant.
//
// La compuerta es ordenada: primero el origen (sin tocar credenciales),
// después el token, después la sesión y el usuario, igual que un request
// HTTP autenticado. Cualquier falla corta el handshake; nunca hay upgrade
// parcial.
package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
	"github.com/dropDatabas3/opslinkcad/internal/session"
)

// OriginChecker decide si un Origin declarado está permitido.
type OriginChecker interface {
	Allowed(origin string) bool
}

// Authenticator resuelve un access token al principal.
type Authenticator interface {
	Authenticate(ctx context.Context, rawAccess string) (*session.Principal, error)
}

// Config ajusta el transporte.
type Config struct {
	CookieName      string
	MaxMessageBytes int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	SendBuffer      int

	// Límite de frames entrantes por conexión.
	InboundRate  rate.Limit
	InboundBurst int
}

func DefaultConfig() Config {
	return Config{
		CookieName:      "opslinkcad_session",
		MaxMessageBytes: 4 << 10,
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		PingPeriod:      54 * time.Second,
		SendBuffer:      32,
		InboundRate:     20,
		InboundBurst:    40,
	}
}

// Gate es el http.Handler del endpoint realtime.
type Gate struct {
	hub      *Hub
	origins  OriginChecker
	auth     Authenticator
	cfg      Config
	upgrader websocket.Upgrader
	obs      Observer
}

func NewGate(hub *Hub, origins OriginChecker, auth Authenticator, cfg Config) *Gate {
	def := DefaultConfig()
	if cfg.CookieName == "" {
		cfg.CookieName = def.CookieName
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = def.MaxMessageBytes
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.InboundRate == 0 {
		cfg.InboundRate = def.InboundRate
		cfg.InboundBurst = def.InboundBurst
	}

	return &Gate{
		hub:     hub,
		origins: origins,
		auth:    auth,
		cfg:     cfg,
		obs:     hub.obs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// el origen ya se validó antes de parsear credenciales
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func reject(w http.ResponseWriter, status int) {
	w.Header().Set("Connection", "close")
	http.Error(w, http.StatusText(status), status)
}

func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Component("realtime"), logger.Op("Gate.ServeHTTP"))

	// 1. origen, antes de cualquier credencial
	origin := r.Header.Get("Origin")
	if origin == "" || !g.origins.Allowed(origin) {
		log.Info("ws origin rejected", logger.Origin(origin))
		reject(w, http.StatusForbidden)
		return
	}

	// 2-3. token -> sesión -> usuario
	p, err := g.auth.Authenticate(ctx, session.TokenFromRequest(r, g.cfg.CookieName))
	if err != nil {
		if repository.IsUnavailable(err) {
			log.Warn("ws auth store unavailable", logger.Err(err))
			reject(w, http.StatusServiceUnavailable)
			return
		}
		reject(w, http.StatusUnauthorized)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade ya respondió al cliente
		log.Debug("ws upgrade failed", logger.Err(err))
		return
	}

	c := &Conn{
		id:       uuid.NewString(),
		tenantID: p.TenantID,
		userID:   p.UserID,
		caps:     p.Caps,
		ws:       ws,
		send:     make(chan []byte, g.cfg.SendBuffer),
		done:     make(chan struct{}),
		limiter:  rate.NewLimiter(g.cfg.InboundRate, g.cfg.InboundBurst),
		cfg:      g.cfg,
	}
	c.log = logger.L().With(logger.Component("realtime"), logger.ConnID(c.id), logger.TenantID(c.tenantID), logger.UserID(c.userID))

	g.hub.Register(c)
	defer func() {
		g.hub.Unregister(c)
		c.close()
		c.log.Debug("ws disconnected")
	}()

	c.enqueue(encode(helloFrame{Type: TypeHello, TenantID: c.tenantID}))
	c.log.Debug("ws connected")

	go c.writeLoop()
	c.readLoop(g.obs)
}
