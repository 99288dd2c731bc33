// Package store abstrae el almacenamiento detrás de DataAccessLayer.
//
// Cada driver (mongo, postgres, memory) vive en su sub-paquete y se registra
// en init(); el binario elige el driver por configuración:
//
//	import _ "github.com/dropDatabas3/opslinkcad/internal/store/mongo"
//
//	dal, err := store.Open(ctx, store.Config{Driver: "mongo", DSN: dsn})
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
)

// DefaultOpTimeout acota cada operación contra el store.
const DefaultOpTimeout = 8 * time.Second

// DataAccessLayer es una conexión abierta con todos los repositorios.
type DataAccessLayer interface {
	// Driver retorna el nombre del adapter ("mongo", "postgres", "memory").
	Driver() string

	Ping(ctx context.Context) error

	// EnsureSchema crea colecciones/tablas e índices únicos. Idempotente.
	EnsureSchema(ctx context.Context) error

	Close(ctx context.Context) error

	Tenants() repository.TenantRepository
	Roles() repository.RoleRepository
	Users() repository.UserRepository
	Sessions() repository.SessionRepository
	Devices() repository.DeviceRepository
	RefreshTokens() repository.RefreshTokenRepository
	Attempts() repository.AttemptRepository
	MFA() repository.MFARepository
	AuditEvents() repository.ChainRepository
	EvidenceChain() repository.ChainRepository
}

// Config configura la conexión.
type Config struct {
	Driver string
	DSN    string

	// Database aplica a mongo; si está vacío se toma del DSN o "opslinkcad".
	Database string

	OpTimeout time.Duration

	// Pool (postgres, mongo)
	MaxConns int32
	MinConns int32
}

// Adapter abre conexiones para un driver.
type Adapter interface {
	Name() string
	Open(ctx context.Context, cfg Config) (DataAccessLayer, error)
}

var (
	registryMu sync.RWMutex
	adapters   = make(map[string]Adapter)
)

// RegisterAdapter registra un adapter. Llamar en init(); nombres duplicados hacen panic.
func RegisterAdapter(a Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := a.Name()
	if _, exists := adapters[name]; exists {
		panic(fmt.Sprintf("store: adapter %q already registered", name))
	}
	adapters[name] = a
}

// ListAdapters retorna los drivers registrados, ordenados.
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open abre el driver indicado aplicando defaults.
func Open(ctx context.Context, cfg Config) (DataAccessLayer, error) {
	registryMu.RLock()
	a, ok := adapters[cfg.Driver]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: driver %q no registrado (disponibles: %v)", cfg.Driver, ListAdapters())
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultOpTimeout
	}
	return a.Open(ctx, cfg)
}
