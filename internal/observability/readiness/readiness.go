// Package readiness reemplaza los flags globales de "componente listo" por
// valores explícitos: cada Start retorna su State y el health check los agrega.
package readiness

import (
	"sync"
	"sync/atomic"
	"time"
)

// Probe es lo que consume el health check.
type Probe interface {
	Name() string
	Ready() bool
}

// State es el estado de un componente. El zero value no está listo.
type State struct {
	name  string
	ready atomic.Bool

	mu      sync.RWMutex
	since   time.Time
	lastErr string
}

func New(name string) *State { return &State{name: name} }

func (s *State) Name() string { return s.name }

func (s *State) Ready() bool { return s != nil && s.ready.Load() }

// MarkReady marca el componente como listo y limpia el último error.
func (s *State) MarkReady() {
	s.mu.Lock()
	s.since = time.Now()
	s.lastErr = ""
	s.mu.Unlock()
	s.ready.Store(true)
}

// MarkDown marca el componente como no listo; err puede ser nil.
func (s *State) MarkDown(err error) {
	s.ready.Store(false)
	s.mu.Lock()
	s.since = time.Now()
	if err != nil {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()
}

// LastError retorna el último error registrado con MarkDown.
func (s *State) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Since retorna el momento del último cambio de estado.
func (s *State) Since() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.since
}

// Func adapta una función a Probe (p.ej. un ping al store).
type Func struct {
	N string
	F func() bool
}

func (f Func) Name() string { return f.N }
func (f Func) Ready() bool { return f.F() }
