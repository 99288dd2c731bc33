package auth

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/opslinkcad/internal/audit"
	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	dto "github.com/dropDatabas3/opslinkcad/internal/http/dto/auth"
	"github.com/dropDatabas3/opslinkcad/internal/lockout"
	"github.com/dropDatabas3/opslinkcad/internal/security/fieldcipher"
	"github.com/dropDatabas3/opslinkcad/internal/security/password"
	"github.com/dropDatabas3/opslinkcad/internal/security/token"
	"github.com/dropDatabas3/opslinkcad/internal/security/totp"
	"github.com/dropDatabas3/opslinkcad/internal/session"
	store "github.com/dropDatabas3/opslinkcad/internal/store"
	"github.com/dropDatabas3/opslinkcad/internal/store/memory"
)

const (
	testTenant   = "alpha"
	testPassword = "Str0ngPassw0rd!"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	svc    Services
	deps   Deps
	dal    store.DataAccessLayer
	clock  *clock
	events []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{clock: &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}}

	dal := memory.New()
	_, err := store.Seed(ctx, dal, store.SeedOptions{TenantID: testTenant, TenantName: "Alpha", Now: h.clock.Now})
	require.NoError(t, err)
	h.dal = dal

	codec, err := token.NewCodec(token.Config{
		AccessKey:  []byte(strings.Repeat("a", 32)),
		RefreshKey: []byte(strings.Repeat("r", 32)),
		Now:        h.clock.Now,
	})
	require.NoError(t, err)

	master := make([]byte, fieldcipher.MasterKeySize)
	for i := range master {
		master[i] = byte(i)
	}
	cipher, err := fieldcipher.New(master)
	require.NoError(t, err)

	hasher, err := password.NewHasher(password.AlgBcrypt, 4)
	require.NoError(t, err)

	verifier := totp.NewVerifier("OpsLink CAD")
	verifier.Now = h.clock.Now

	sessions := session.NewStore(dal.Sessions(), dal.Devices(), session.WithClock(h.clock.Now))

	h.deps = Deps{
		DAL:      dal,
		Codec:    codec,
		Sessions: sessions,
		Lockout:  lockout.New(dal.Attempts(), lockout.WithClock(h.clock.Now)),
		Hasher:   hasher,
		Policy:   password.DefaultPolicy(),
		TOTP:     verifier,
		Cipher:   cipher,
		Audit:    audit.NewAuditChain(dal.AuditEvents(), audit.WithClock(h.clock.Now)),
		Now:      h.clock.Now,
		OnEvent:  func(flow, result string) { h.events = append(h.events, flow+":"+result) },
	}
	h.svc = NewServices(h.deps)
	return h
}

func (h *harness) register(t *testing.T, email string) string {
	t.Helper()
	res, err := h.svc.Register.Register(context.Background(), dto.RegisterRequest{
		TenantID: testTenant,
		Email:    email,
		Username: "officer1",
		Password: testPassword,
	})
	require.NoError(t, err)
	return res.UserID
}

func (h *harness) login(t *testing.T, email string) *dto.LoginResult {
	t.Helper()
	res, err := h.svc.Login.LoginPassword(context.Background(),
		dto.LoginRequest{TenantID: testTenant, Email: email, Password: testPassword},
		dto.ClientInfo{IP: "10.0.0.1", UserAgent: "test"})
	require.NoError(t, err)
	return res
}

func (h *harness) principal(t *testing.T, tokens *dto.IssuedTokens) *session.Principal {
	t.Helper()
	p, err := session.NewAuthenticator(h.deps.Codec, h.deps.Sessions, h.dal.Users()).
		Authenticate(context.Background(), tokens.AccessToken)
	require.NoError(t, err)
	return p
}

func TestRegister_CreatesUserWithRolePerms(t *testing.T) {
	h := newHarness(t)
	id := h.register(t, "  Officer@Example.com ")

	u, err := h.dal.Users().GetByID(context.Background(), testTenant, id)
	require.NoError(t, err)
	assert.Equal(t, "officer@example.com", u.Email)
	assert.Equal(t, "Civilian", u.Role)
	assert.NotEmpty(t, u.Perms)
	assert.NotEqual(t, testPassword, u.PasswordHash)

	events, err := h.dal.AuditEvents().List(context.Background(), repository.Partition{TenantID: testTenant})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "create", events[0].Action)
	assert.Equal(t, "user", events[0].Entity)
	assert.Contains(t, events[0].After, "officer@example.com")
	assert.Contains(t, h.events, "register:ok")
}

func TestRegister_Errors(t *testing.T) {
	h := newHarness(t)
	h.register(t, "dup@example.com")
	ctx := context.Background()

	cases := []struct {
		name string
		in   dto.RegisterRequest
		want error
	}{
		{"missing", dto.RegisterRequest{TenantID: testTenant}, ErrMissingFields},
		{"weak", dto.RegisterRequest{TenantID: testTenant, Email: "a@example.com", Username: "abc", Password: "short"}, ErrWeakPassword},
		{"bad email", dto.RegisterRequest{TenantID: testTenant, Email: "nope", Username: "abc", Password: testPassword}, ErrInvalidInput},
		{"short username", dto.RegisterRequest{TenantID: testTenant, Email: "a@example.com", Username: "ab", Password: testPassword}, ErrInvalidInput},
		{"unknown tenant", dto.RegisterRequest{TenantID: "bravo", Email: "a@example.com", Username: "abc", Password: testPassword}, ErrTenantNotFound},
		{"unknown role", dto.RegisterRequest{TenantID: testTenant, Email: "a@example.com", Username: "abc", Password: testPassword, Role: "Astronaut"}, ErrRoleNotFound},
		{"duplicate", dto.RegisterRequest{TenantID: testTenant, Email: "DUP@example.com", Username: "abc", Password: testPassword}, ErrEmailTaken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Register.Register(ctx, tc.in)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLogin_IssuesSessionAndRefresh(t *testing.T) {
	h := newHarness(t)
	uid := h.register(t, "officer@example.com")

	res := h.login(t, "officer@example.com")
	require.False(t, res.MFARequired)
	require.NotNil(t, res.Tokens)
	assert.Equal(t, uid, res.Tokens.UserID)
	assert.Equal(t, h.clock.Now().Add(token.DefaultAccessTTL), res.Tokens.AccessExpires)

	p := h.principal(t, res.Tokens)
	assert.Equal(t, uid, p.UserID)
	assert.Equal(t, testTenant, p.TenantID)

	row, err := h.dal.RefreshTokens().Get(context.Background(), testTenant, res.Tokens.RefreshID)
	require.NoError(t, err)
	assert.Equal(t, token.SHA256Hex(res.Tokens.RefreshToken), row.TokenHash)
	assert.Equal(t, res.Tokens.SessionID, row.SessionID)
}

func TestLogin_InvalidCredentialsIsUniform(t *testing.T) {
	h := newHarness(t)
	h.register(t, "officer@example.com")
	ctx := context.Background()
	client := dto.ClientInfo{IP: "10.0.0.1"}

	_, err := h.svc.Login.LoginPassword(ctx, dto.LoginRequest{TenantID: testTenant, Email: "officer@example.com", Password: "Wr0ngPassword!"}, client)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = h.svc.Login.LoginPassword(ctx, dto.LoginRequest{TenantID: testTenant, Email: "ghost@example.com", Password: testPassword}, client)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_LockoutAfterThreshold(t *testing.T) {
	h := newHarness(t)
	h.register(t, "officer@example.com")
	ctx := context.Background()
	client := dto.ClientInfo{IP: "10.0.0.1"}

	for i := 0; i < int(lockout.DefaultThreshold); i++ {
		_, err := h.svc.Login.LoginPassword(ctx, dto.LoginRequest{TenantID: testTenant, Email: "officer@example.com", Password: "Wr0ngPassword!"}, client)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	// el password correcto también queda bloqueado
	_, err := h.svc.Login.LoginPassword(ctx, dto.LoginRequest{TenantID: testTenant, Email: "officer@example.com", Password: testPassword}, client)
	require.ErrorIs(t, err, ErrTooManyAttempts)

	// otra IP no está bloqueada
	_, err = h.svc.Login.LoginPassword(ctx, dto.LoginRequest{TenantID: testTenant, Email: "officer@example.com", Password: testPassword}, dto.ClientInfo{IP: "10.0.0.2"})
	require.NoError(t, err)

	h.clock.Advance(lockout.DefaultWindow + time.Second)
	_, err = h.svc.Login.LoginPassword(ctx, dto.LoginRequest{TenantID: testTenant, Email: "officer@example.com", Password: testPassword}, client)
	require.NoError(t, err)
}

func enableMFA(t *testing.T, h *harness, tokens *dto.IssuedTokens) string {
	t.Helper()
	ctx := context.Background()
	p := h.principal(t, tokens)
	enr, err := h.svc.MFA.Enroll(ctx, p)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(enr.OTPAuthURL, "otpauth://totp/"))

	rec, err := h.dal.MFA().Get(ctx, testTenant, p.UserID)
	require.NoError(t, err)
	assert.False(t, rec.Enabled)
	assert.NotEqual(t, enr.Secret, rec.Secret.CT)

	code, err := h.deps.TOTP.CodeAt(enr.Secret, h.clock.Now())
	require.NoError(t, err)
	require.NoError(t, h.svc.MFA.Enable(ctx, p, code))
	return enr.Secret
}

func TestMFA_LoginRequiresSecondFactor(t *testing.T) {
	h := newHarness(t)
	uid := h.register(t, "officer@example.com")
	secret := enableMFA(t, h, h.login(t, "officer@example.com").Tokens)

	res := h.login(t, "officer@example.com")
	require.True(t, res.MFARequired)
	assert.Equal(t, uid, res.UserID)
	assert.Nil(t, res.Tokens)

	ctx := context.Background()
	client := dto.ClientInfo{IP: "10.0.0.1"}

	_, err := h.svc.MFA.Verify(ctx, dto.MFAVerifyRequest{TenantID: testTenant, UserID: uid, Code: "000000"}, client)
	require.ErrorIs(t, err, ErrInvalidCode)

	h.clock.Advance(30 * time.Second)
	code, err := h.deps.TOTP.CodeAt(secret, h.clock.Now())
	require.NoError(t, err)
	tokens, err := h.svc.MFA.Verify(ctx, dto.MFAVerifyRequest{TenantID: testTenant, UserID: uid, Code: code}, client)
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, uid, h.principal(t, tokens).UserID)

	// replay del mismo código
	_, err = h.svc.MFA.Verify(ctx, dto.MFAVerifyRequest{TenantID: testTenant, UserID: uid, Code: code}, client)
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestMFA_NotConfigured(t *testing.T) {
	h := newHarness(t)
	uid := h.register(t, "officer@example.com")
	_, err := h.svc.MFA.Verify(context.Background(), dto.MFAVerifyRequest{TenantID: testTenant, UserID: uid, Code: "123456"}, dto.ClientInfo{})
	require.ErrorIs(t, err, ErrMFANotConfigured)
}

func TestMFA_EnrollTwiceAfterEnableFails(t *testing.T) {
	h := newHarness(t)
	h.register(t, "officer@example.com")
	tokens := h.login(t, "officer@example.com").Tokens
	enableMFA(t, h, tokens)

	_, err := h.svc.MFA.Enroll(context.Background(), h.principal(t, tokens))
	require.ErrorIs(t, err, ErrMFAAlreadyEnabled)
}

func TestRefresh_RotatesAndDetectsReuse(t *testing.T) {
	h := newHarness(t)
	h.register(t, "officer@example.com")
	first := h.login(t, "officer@example.com").Tokens
	ctx := context.Background()

	second, err := h.svc.Refresh.Refresh(ctx, first.RefreshToken, first.RefreshID, dto.ClientInfo{})
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshID, second.RefreshID)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	// la sesión original queda revocada
	_, err = session.NewAuthenticator(h.deps.Codec, h.deps.Sessions, h.dal.Users()).Authenticate(ctx, first.AccessToken)
	require.ErrorIs(t, err, session.ErrUnauthorized)

	// reuse: revoca todo
	_, err = h.svc.Refresh.Refresh(ctx, first.RefreshToken, "", dto.ClientInfo{})
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, h.events, "refresh:reuse")

	_, err = h.svc.Refresh.Refresh(ctx, second.RefreshToken, "", dto.ClientInfo{})
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = session.NewAuthenticator(h.deps.Codec, h.deps.Sessions, h.dal.Users()).Authenticate(ctx, second.AccessToken)
	require.ErrorIs(t, err, session.ErrUnauthorized)
}

// racingDAL hace que las dos primeras lecturas de refresh token se esperen
// mutuamente, así ambos callers ven la fila sin revocar.
type racingDAL struct {
	store.DataAccessLayer
	refresh *racingRefresh
}

func (d racingDAL) RefreshTokens() repository.RefreshTokenRepository { return d.refresh }

type racingRefresh struct {
	repository.RefreshTokenRepository
	arrived sync.WaitGroup
	reads   atomic.Int32
}

func (r *racingRefresh) Get(ctx context.Context, tenantID, id string) (*repository.RefreshToken, error) {
	row, err := r.RefreshTokenRepository.Get(ctx, tenantID, id)
	if r.reads.Add(1) <= 2 {
		r.arrived.Done()
		r.arrived.Wait()
	}
	return row, err
}

func TestRefresh_ConcurrentRotationWinsOnce(t *testing.T) {
	h := newHarness(t)
	h.register(t, "officer@example.com")
	first := h.login(t, "officer@example.com").Tokens

	rr := &racingRefresh{RefreshTokenRepository: h.dal.RefreshTokens()}
	rr.arrived.Add(2)
	deps := h.deps
	deps.DAL = racingDAL{DataAccessLayer: h.dal, refresh: rr}
	var mu sync.Mutex
	var events []string
	deps.OnEvent = func(flow, result string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, flow+":"+result)
	}
	svc := NewRefreshService(deps)

	var wg sync.WaitGroup
	results := make([]error, 2)
	issued := make([]*dto.IssuedTokens, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			issued[i], results[i] = svc.Refresh(context.Background(), first.RefreshToken, first.RefreshID, dto.ClientInfo{})
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for i, err := range results {
		switch {
		case err == nil:
			ok++
			require.NotNil(t, issued[i])
		case assert.ErrorIs(t, err, ErrUnauthorized):
			rejected++
		}
	}
	assert.Equal(t, 1, ok, "un refresh token rota una sola vez")
	assert.Equal(t, 1, rejected)
	assert.Contains(t, events, "refresh:reuse")
}

func TestRefresh_Rejects(t *testing.T) {
	h := newHarness(t)
	h.register(t, "officer@example.com")
	tokens := h.login(t, "officer@example.com").Tokens
	ctx := context.Background()

	_, err := h.svc.Refresh.Refresh(ctx, "garbage", "", dto.ClientInfo{})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.svc.Refresh.Refresh(ctx, tokens.AccessToken, "", dto.ClientInfo{})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.svc.Refresh.Refresh(ctx, tokens.RefreshToken, "other-id", dto.ClientInfo{})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.svc.Refresh.Refresh(ctx, "", "", dto.ClientInfo{})
	require.ErrorIs(t, err, ErrMissingFields)
}

func TestLogout_RevokesSessionAndRefresh(t *testing.T) {
	h := newHarness(t)
	h.register(t, "officer@example.com")
	tokens := h.login(t, "officer@example.com").Tokens
	ctx := context.Background()
	p := h.principal(t, tokens)

	require.NoError(t, h.svc.Logout.Logout(ctx, p, tokens.RefreshID))

	_, err := session.NewAuthenticator(h.deps.Codec, h.deps.Sessions, h.dal.Users()).Authenticate(ctx, tokens.AccessToken)
	require.ErrorIs(t, err, session.ErrUnauthorized)

	row, err := h.dal.RefreshTokens().Get(ctx, testTenant, tokens.RefreshID)
	require.NoError(t, err)
	assert.NotNil(t, row.RevokedAt)

	events, err := h.dal.AuditEvents().List(ctx, repository.Partition{TenantID: testTenant})
	require.NoError(t, err)
	assert.Equal(t, "logout", events[len(events)-1].Action)

	report, err := h.deps.Audit.Verify(ctx, testTenant, "")
	require.NoError(t, err)
	assert.True(t, report.OK)
}
