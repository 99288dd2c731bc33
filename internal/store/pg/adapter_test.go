package pg

import (
	"context"
	"errors"
	"io/fs"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	"github.com/dropDatabas3/opslinkcad/internal/store"
	migrations "github.com/dropDatabas3/opslinkcad/migrations/postgres"
)

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr(nil))
	assert.ErrorIs(t, mapErr(pgx.ErrNoRows), repository.ErrNotFound)
	assert.ErrorIs(t, mapErr(&pgconn.PgError{Code: "23505", ConstraintName: "users_tenant_id_email_key"}), repository.ErrConflict)
	assert.ErrorIs(t, mapErr(context.DeadlineExceeded), repository.ErrUnavailable)

	other := errors.New("boom")
	assert.Equal(t, other, mapErr(other))
}

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "0001_init.sql", files[0])

	body, err := fs.ReadFile(migrations.FS, files[0])
	require.NoError(t, err)
	for _, table := range []string{"communities", "users", "sessions", "refresh_tokens", "auth_attempts", "mfa_secrets", "audit_events", "evidence_chain"} {
		assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, store.ListAdapters(), "postgres")
}
