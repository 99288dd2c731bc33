package repository

import (
	"context"
	"time"
)

// User es una cuenta dentro de un tenant. Email es único por tenant.
type User struct {
	ID           string    `bson:"_id"`
	TenantID     string    `bson:"tenant_id"`
	Email        string    `bson:"email"`
	Username     string    `bson:"username"`
	PasswordHash string    `bson:"password_hash"`
	Role         string    `bson:"role"`
	Perms        []string  `bson:"perms"`
	Status       string    `bson:"status"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// Active indica si la cuenta puede autenticarse.
func (u User) Active() bool { return u.Status == StatusActive }

// UserRepository define el acceso a usuarios.
type UserRepository interface {
	// Create retorna ErrConflict si (tenant, email) ya existe.
	Create(ctx context.Context, u User) error

	// GetByEmail busca por email normalizado (lowercase).
	GetByEmail(ctx context.Context, tenantID, email string) (*User, error)

	GetByID(ctx context.Context, tenantID, id string) (*User, error)
}
