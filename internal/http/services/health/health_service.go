// Package health agrega la disponibilidad de los componentes para /health.
package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	dto "github.com/dropDatabas3/opslinkcad/internal/http/dto/health"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
	"github.com/dropDatabas3/opslinkcad/internal/observability/readiness"
)

// DefaultTimeout acota cada ping dentro del health check.
const DefaultTimeout = 2 * time.Second

// PingFunc verifica una dependencia externa.
type PingFunc func(ctx context.Context) error

// Deps contiene las dependencias del health check. WS y Jobs son los States
// retornados por Hub.Start y Sweeper.Start; Redis es nil si no hay cache remota.
type Deps struct {
	DB    PingFunc
	Redis PingFunc
	WS    readiness.Probe
	Jobs  readiness.Probe

	Timeout time.Duration
	Now     func() time.Time
}

// Service define el health check.
type Service interface {
	Check(ctx context.Context) dto.Response
}

type service struct {
	deps Deps
}

// NewService creates a new health service.
func NewService(deps Deps) Service {
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultTimeout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &service{deps: deps}
}

// Check corre los pings en paralelo. OK refleja solo la base: sin DB la API
// no puede atender nada.
func (s *service) Check(ctx context.Context) dto.Response {
	out := dto.Response{
		API:  true,
		WS:   probeReady(s.deps.WS),
		Jobs: probeReady(s.deps.Jobs),
		TS:   s.deps.Now().UTC(),
	}

	var redisOK bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out.DB = s.ping(gctx, "db", s.deps.DB)
		return nil
	})
	if s.deps.Redis != nil {
		g.Go(func() error {
			redisOK = s.ping(gctx, "redis", s.deps.Redis)
			return nil
		})
	}
	_ = g.Wait()

	if s.deps.Redis != nil {
		out.Redis = &redisOK
	}
	out.OK = out.DB
	return out
}

func (s *service) ping(ctx context.Context, name string, fn PingFunc) bool {
	if fn == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.deps.Timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.From(ctx).Warn("health probe failed",
			logger.Layer("service"),
			logger.Component("health"),
			logger.String("probe", name),
			logger.Err(err),
		)
		return false
	}
	return true
}

func probeReady(p readiness.Probe) bool {
	return p != nil && p.Ready()
}
