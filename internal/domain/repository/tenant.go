package repository

import (
	"context"
	"time"
)

const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Tenant es la frontera de aislamiento (una comunidad).
type Tenant struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"created_at"`
}

// Active indica si el tenant acepta registros y logins.
func (t Tenant) Active() bool { return t.Status == StatusActive }

// Role agrupa capabilities; los usuarios copian Perms al registrarse.
type Role struct {
	TenantID  string    `bson:"tenant_id"`
	Name      string    `bson:"name"`
	Perms     []string  `bson:"perms"`
	CreatedAt time.Time `bson:"created_at"`
}

// TenantRepository define el acceso a tenants.
type TenantRepository interface {
	// Get retorna ErrNotFound si el tenant no existe.
	Get(ctx context.Context, id string) (*Tenant, error)

	// Upsert crea o actualiza nombre y estado. Usado por el seeding.
	Upsert(ctx context.Context, t Tenant) error

	// List retorna todos los tenants.
	List(ctx context.Context) ([]Tenant, error)
}

// RoleRepository define el acceso a roles, únicos por (tenant, name).
type RoleRepository interface {
	Get(ctx context.Context, tenantID, name string) (*Role, error)

	// Upsert reemplaza las perms del rol.
	Upsert(ctx context.Context, r Role) error
}
