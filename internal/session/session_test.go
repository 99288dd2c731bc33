package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	"github.com/dropDatabas3/opslinkcad/internal/security/token"
	"github.com/dropDatabas3/opslinkcad/internal/store/memory"
)

type fixture struct {
	mem   *memory.Store
	store *Store
	auth  *Authenticator
	codec *token.Codec
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{mem: memory.New(), now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	codec, err := token.NewCodec(token.Config{
		AccessKey:  []byte(strings.Repeat("a", 32)),
		RefreshKey: []byte(strings.Repeat("r", 32)),
		Now:        clock,
	})
	require.NoError(t, err)

	f.codec = codec
	f.store = NewStore(f.mem.Sessions(), f.mem.Devices(), WithClock(clock))
	f.auth = NewAuthenticator(codec, f.store, f.mem.Users())
	return f
}

func (f *fixture) user(t *testing.T, tenantID, id string, perms ...string) {
	t.Helper()
	require.NoError(t, f.mem.Users().Create(context.Background(), repository.User{
		ID:       id,
		TenantID: tenantID,
		Email:    id + "@example.com",
		Username: id,
		Role:     "Dispatcher",
		Perms:    perms,
		Status:   repository.StatusActive,
	}))
}

var laptop = Device{Name: "Browser", IP: "10.0.0.1", UserAgent: "test-agent"}

func TestDeviceFingerprint(t *testing.T) {
	fp := laptop.Fingerprint()
	assert.Len(t, fp, 24)
	assert.Equal(t, fp, Device{Name: "Browser", IP: "10.0.0.1", UserAgent: "test-agent"}.Fingerprint())
	assert.NotEqual(t, fp, Device{Name: "Browser", IP: "10.0.0.2", UserAgent: "test-agent"}.Fingerprint())
}

func TestStore_CreateAndResolve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sess, err := f.store.Create(ctx, "alpha", "u1", laptop)
	require.NoError(t, err)
	assert.True(t, sess.ExpiresAt.Equal(f.now.Add(DefaultTTL)))

	got, err := f.store.Resolve(ctx, "alpha", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	dev, err := f.mem.Devices().Get(ctx, "alpha", "u1", laptop.Fingerprint())
	require.NoError(t, err)
	assert.Equal(t, "Browser", dev.DeviceName)
}

func TestStore_DeviceOutlivesSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.store.Create(ctx, "alpha", "u1", laptop)
	require.NoError(t, err)
	first := f.now

	f.now = f.now.Add(time.Hour)
	_, err = f.store.Create(ctx, "alpha", "u1", laptop)
	require.NoError(t, err)

	dev, err := f.mem.Devices().Get(ctx, "alpha", "u1", laptop.Fingerprint())
	require.NoError(t, err)
	assert.True(t, dev.CreatedAt.Equal(first))
	assert.True(t, dev.LastSeenAt.Equal(f.now))
}

func TestStore_ResolveFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	revoked, err := f.store.Create(ctx, "alpha", "u1", laptop)
	require.NoError(t, err)
	require.NoError(t, f.store.Revoke(ctx, "alpha", revoked.ID))

	expired, err := f.store.Create(ctx, "alpha", "u1", laptop)
	require.NoError(t, err)

	f.now = f.now.Add(DefaultTTL + time.Second)

	cases := map[string]string{
		"missing": "does-not-exist",
		"revoked": revoked.ID,
		"expired": expired.ID,
		"empty":   "",
	}
	for name, id := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.store.Resolve(ctx, "alpha", id)
			assert.Equal(t, ErrUnauthorized, err)
		})
	}
}

func TestStore_RevokeKeepsRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sess, err := f.store.Create(ctx, "alpha", "u1", laptop)
	require.NoError(t, err)
	require.NoError(t, f.store.Revoke(ctx, "alpha", sess.ID))

	row, err := f.mem.Sessions().Get(ctx, "alpha", sess.ID)
	require.NoError(t, err)
	require.NotNil(t, row.RevokedAt)
}

func TestAuthenticator_LoginTokenResolves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "alpha", "u1", "ws:subscribe")

	sess, err := f.store.Create(ctx, "alpha", "u1", laptop)
	require.NoError(t, err)
	access, _, err := f.codec.IssueAccess("u1", sess.ID, "alpha")
	require.NoError(t, err)

	p, err := f.auth.Authenticate(ctx, access)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, "alpha", p.TenantID)
	assert.Equal(t, sess.ID, p.SessionID)
	assert.True(t, p.Can("ws:subscribe"))
	assert.False(t, p.Can("audit:read"))
}

func TestAuthenticator_CrossTenantRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "alpha", "u1")
	f.user(t, "beta", "u2")

	sess, err := f.store.Create(ctx, "alpha", "u1", laptop)
	require.NoError(t, err)

	_, err = f.store.Resolve(ctx, "beta", sess.ID)
	assert.Equal(t, ErrUnauthorized, err)

	// usuario real de beta con la sesión de alpha
	forged, _, err := f.codec.IssueAccess("u2", sess.ID, "beta")
	require.NoError(t, err)
	_, err = f.auth.Authenticate(ctx, forged)
	assert.Equal(t, ErrUnauthorized, err)

	// usuario de alpha declarando tenant beta
	forged, _, err = f.codec.IssueAccess("u1", sess.ID, "beta")
	require.NoError(t, err)
	_, err = f.auth.Authenticate(ctx, forged)
	assert.Equal(t, ErrUnauthorized, err)

	// el token legítimo sigue funcionando
	legit, _, err := f.codec.IssueAccess("u1", sess.ID, "alpha")
	require.NoError(t, err)
	_, err = f.auth.Authenticate(ctx, legit)
	require.NoError(t, err)
}

func TestAuthenticator_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "alpha", "u1")

	sess, err := f.store.Create(ctx, "alpha", "u1", laptop)
	require.NoError(t, err)

	otherUser, _, err := f.codec.IssueAccess("u2", sess.ID, "alpha")
	require.NoError(t, err)
	refresh, _, err := f.codec.IssueRefresh("u1", "jti", "alpha")
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"empty":         "",
		"garbage":       "not-a-jwt",
		"refresh token": refresh,
		"wrong subject": otherUser,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.auth.Authenticate(ctx, raw)
			assert.Equal(t, ErrUnauthorized, err)
		})
	}
}

func TestAuthenticator_DisabledUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.mem.Users().Create(ctx, repository.User{
		ID: "u1", TenantID: "alpha", Email: "u1@example.com", Status: repository.StatusDisabled,
	}))

	sess, err := f.store.Create(ctx, "alpha", "u1", laptop)
	require.NoError(t, err)
	access, _, err := f.codec.IssueAccess("u1", sess.ID, "alpha")
	require.NoError(t, err)

	_, err = f.auth.Authenticate(ctx, access)
	assert.Equal(t, ErrUnauthorized, err)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, TokenFromRequest(r, "opslinkcad_session"))

	r.Header.Set("Authorization", "Bearer abc.def")
	assert.Equal(t, "abc.def", TokenFromRequest(r, "opslinkcad_session"))

	r.AddCookie(&http.Cookie{Name: "opslinkcad_session", Value: "from-cookie"})
	assert.Equal(t, "from-cookie", TokenFromRequest(r, "opslinkcad_session"))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwdw==")
	assert.Empty(t, TokenFromRequest(r, "opslinkcad_session"))
}
