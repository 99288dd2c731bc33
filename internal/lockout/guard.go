// Package lockout limita la fuerza bruta sobre credenciales.
//
// La ventana es puramente temporal: cada intento queda registrado y los
// fallos viejos salen solos de la ventana. Un login exitoso no la limpia.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
)

const (
	DefaultThreshold = 10
	DefaultWindow    = 15 * time.Minute
)

// ErrTooManyAttempts indica que la tripleta (tenant, email, ip) alcanzó el umbral.
var ErrTooManyAttempts = errors.New("lockout: too many attempts")

// Guard cuenta fallos por (tenant, email, ip) en una ventana deslizante.
type Guard struct {
	attempts  repository.AttemptRepository
	threshold int64
	window    time.Duration
	now       func() time.Time
}

// Option configura un Guard.
type Option func(*Guard)

func WithThreshold(n int64) Option { return func(g *Guard) { g.threshold = n } }

func WithWindow(d time.Duration) Option { return func(g *Guard) { g.window = d } }

// WithClock reemplaza time.Now (tests).
func WithClock(now func() time.Time) Option { return func(g *Guard) { g.now = now } }

func New(attempts repository.AttemptRepository, opts ...Option) *Guard {
	g := &Guard{
		attempts:  attempts,
		threshold: DefaultThreshold,
		window:    DefaultWindow,
		now:       time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Normalize deja el email en la forma con la que se cuentan intentos.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Check rechaza con ErrTooManyAttempts si hay threshold o más fallos en la ventana.
// Debe llamarse antes de verificar la contraseña.
func (g *Guard) Check(ctx context.Context, tenantID, email, ip string) error {
	since := g.now().Add(-g.window)
	n, err := g.attempts.CountFailures(ctx, tenantID, Normalize(email), ip, since)
	if err != nil {
		return fmt.Errorf("lockout: count failures: %w", err)
	}
	if n >= g.threshold {
		return ErrTooManyAttempts
	}
	return nil
}

// Record guarda un intento, exitoso o no.
func (g *Guard) Record(ctx context.Context, tenantID, email, ip string, ok bool) error {
	err := g.attempts.Record(ctx, repository.AuthAttempt{
		TenantID: tenantID,
		Email:    Normalize(email),
		IP:       ip,
		OK:       ok,
		TS:       g.now(),
	})
	if err != nil {
		return fmt.Errorf("lockout: record attempt: %w", err)
	}
	return nil
}
