// Package jobs corre la limpieza periódica: sesiones y refresh tokens
// expirados, e intentos de login fuera de la retención.
//
// Cada barrido es un DELETE por predicado temporal, así que es idempotente y
// puede correr al mismo tiempo que el tráfico.
package jobs

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
	"github.com/dropDatabas3/opslinkcad/internal/observability/readiness"
)

const (
	DefaultInterval          = 2 * time.Minute
	DefaultAttemptRetention  = 14 * 24 * time.Hour
	defaultTickTimeoutFactor = 2
)

// Stores son los repositorios que barre el sweeper.
type Stores struct {
	Sessions      repository.SessionRepository
	RefreshTokens repository.RefreshTokenRepository
	Attempts      repository.AttemptRepository
}

// Result cuenta lo borrado en un barrido.
type Result struct {
	Sessions      int64
	RefreshTokens int64
	Attempts      int64
}

// TickObserver recibe el resultado de cada barrido (métricas).
type TickObserver func(res Result, err error)

type Sweeper struct {
	stores    Stores
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	observe   TickObserver
	state     *readiness.State
}

type Option func(*Sweeper)

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithAttemptRetention(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.retention = d
		}
	}
}

func WithClock(now func() time.Time) Option { return func(s *Sweeper) { s.now = now } }

func WithObserver(fn TickObserver) Option { return func(s *Sweeper) { s.observe = fn } }

func NewSweeper(stores Stores, opts ...Option) *Sweeper {
	s := &Sweeper{
		stores:    stores,
		interval:  DefaultInterval,
		retention: DefaultAttemptRetention,
		now:       time.Now,
		state:     readiness.New("jobs"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State retorna el estado de readiness ("jobs").
func (s *Sweeper) State() *readiness.State { return s.state }

// Start lanza el loop en background y retorna su estado. El loop termina
// cuando ctx se cancela.
func (s *Sweeper) Start(ctx context.Context) *readiness.State {
	log := logger.From(ctx).With(logger.Component("jobs.sweeper"))
	s.state.MarkReady()
	log.Info("sweeper started", logger.Duration(s.interval))

	go func() {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				s.state.MarkDown(nil)
				log.Info("sweeper stopped")
				return
			case <-t.C:
				tickCtx, cancel := context.WithTimeout(ctx, s.interval*defaultTickTimeoutFactor)
				res, err := s.RunOnce(tickCtx)
				cancel()
				if err != nil {
					// un tick fallido no detiene el loop; el próximo reintenta
					log.Error("sweep tick failed", logger.Err(err))
				} else {
					log.Debug("sweep tick",
						logger.Any("sessions", res.Sessions),
						logger.Any("refresh_tokens", res.RefreshTokens),
						logger.Any("attempts", res.Attempts),
					)
				}
			}
		}
	}()
	return s.state
}

// RunOnce ejecuta un barrido con las tres limpiezas en paralelo.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	now := s.now()
	var res Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.stores.Sessions.DeleteExpired(gctx, now)
		if err != nil {
			return fmt.Errorf("sessions: %w", err)
		}
		res.Sessions = n
		return nil
	})
	g.Go(func() error {
		n, err := s.stores.RefreshTokens.DeleteExpired(gctx, now)
		if err != nil {
			return fmt.Errorf("refresh tokens: %w", err)
		}
		res.RefreshTokens = n
		return nil
	})
	g.Go(func() error {
		n, err := s.stores.Attempts.DeleteBefore(gctx, now.Add(-s.retention))
		if err != nil {
			return fmt.Errorf("attempts: %w", err)
		}
		res.Attempts = n
		return nil
	})
	err := g.Wait()

	if s.observe != nil {
		s.observe(res, err)
	}
	return res, err
}
