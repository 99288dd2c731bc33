// Package memory implementa store.DataAccessLayer en memoria de proceso.
// Respeta las mismas restricciones de unicidad que los drivers durables;
// se usa en tests y en APP_ENV=dev.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	"github.com/dropDatabas3/opslinkcad/internal/store"
)

func init() {
	store.RegisterAdapter(adapter{})
}

type adapter struct{}

func (adapter) Name() string { return "memory" }

func (adapter) Open(context.Context, store.Config) (store.DataAccessLayer, error) {
	return New(), nil
}

type pair struct{ a, b string }

type triple struct{ a, b, c string }

// Store guarda todo bajo un único RWMutex, salvo las cadenas que llevan el suyo.
type Store struct {
	mu       sync.RWMutex
	tenants  map[string]repository.Tenant
	roles    map[pair]repository.Role
	users    map[string]repository.User
	sessions map[string]repository.Session
	devices  map[triple]repository.Device
	refresh  map[string]repository.RefreshToken
	attempts []repository.AuthAttempt
	mfa      map[pair]repository.MFASecret

	audit    *chain
	evidence *chain
}

// New retorna un store vacío.
func New() *Store {
	return &Store{
		tenants:  map[string]repository.Tenant{},
		roles:    map[pair]repository.Role{},
		users:    map[string]repository.User{},
		sessions: map[string]repository.Session{},
		devices:  map[triple]repository.Device{},
		refresh:  map[string]repository.RefreshToken{},
		mfa:      map[pair]repository.MFASecret{},
		audit:    newChain(),
		evidence: newChain(),
	}
}

func (s *Store) Driver() string { return "memory" }
func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) EnsureSchema(context.Context) error { return nil }
func (s *Store) Close(context.Context) error { return nil }

func (s *Store) Tenants() repository.TenantRepository { return tenantRepo{s} }
func (s *Store) Roles() repository.RoleRepository { return roleRepo{s} }
func (s *Store) Users() repository.UserRepository { return userRepo{s} }
func (s *Store) Sessions() repository.SessionRepository { return sessionRepo{s} }
func (s *Store) Devices() repository.DeviceRepository { return deviceRepo{s} }
func (s *Store) RefreshTokens() repository.RefreshTokenRepository { return refreshRepo{s} }
func (s *Store) Attempts() repository.AttemptRepository { return attemptRepo{s} }
func (s *Store) MFA() repository.MFARepository { return mfaRepo{s} }
func (s *Store) AuditEvents() repository.ChainRepository { return s.audit }
func (s *Store) EvidenceChain() repository.ChainRepository { return s.evidence }

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ─── Tenants / Roles ───

type tenantRepo struct{ s *Store }

func (r tenantRepo) Get(_ context.Context, id string) (*repository.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r tenantRepo) Upsert(_ context.Context, t repository.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if prev, ok := r.s.tenants[t.ID]; ok {
		t.CreatedAt = prev.CreatedAt
	}
	r.s.tenants[t.ID] = t
	return nil
}

func (r tenantRepo) List(context.Context) ([]repository.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]repository.Tenant, 0, len(r.s.tenants))
	for _, t := range r.s.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type roleRepo struct{ s *Store }

func (r roleRepo) Get(_ context.Context, tenantID, name string) (*repository.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	role, ok := r.s.roles[pair{tenantID, name}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	role.Perms = cloneStrings(role.Perms)
	return &role, nil
}

func (r roleRepo) Upsert(_ context.Context, role repository.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := pair{role.TenantID, role.Name}
	if prev, ok := r.s.roles[k]; ok {
		role.CreatedAt = prev.CreatedAt
	}
	role.Perms = cloneStrings(role.Perms)
	r.s.roles[k] = role
	return nil
}

// ─── Users ───

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, u repository.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.ID]; ok {
		return repository.ErrConflict
	}
	for _, existing := range r.s.users {
		if existing.TenantID == u.TenantID && existing.Email == u.Email {
			return repository.ErrConflict
		}
	}
	u.Perms = cloneStrings(u.Perms)
	r.s.users[u.ID] = u
	return nil
}

func (r userRepo) GetByEmail(_ context.Context, tenantID, email string) (*repository.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.TenantID == tenantID && u.Email == email {
			u.Perms = cloneStrings(u.Perms)
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r userRepo) GetByID(_ context.Context, tenantID, id string) (*repository.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok || u.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	u.Perms = cloneStrings(u.Perms)
	return &u, nil
}

// ─── Sessions / Devices ───

type sessionRepo struct{ s *Store }

func (r sessionRepo) Create(_ context.Context, sess repository.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sessions[sess.ID]; ok {
		return repository.ErrConflict
	}
	sess.RevokedAt = cloneTime(sess.RevokedAt)
	r.s.sessions[sess.ID] = sess
	return nil
}

func (r sessionRepo) Get(_ context.Context, tenantID, id string) (*repository.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sess, ok := r.s.sessions[id]
	if !ok || sess.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	sess.RevokedAt = cloneTime(sess.RevokedAt)
	return &sess, nil
}

func (r sessionRepo) Revoke(_ context.Context, tenantID, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok || sess.TenantID != tenantID {
		return repository.ErrNotFound
	}
	if sess.RevokedAt == nil {
		sess.RevokedAt = &at
		r.s.sessions[id] = sess
	}
	return nil
}

func (r sessionRepo) RevokeAllForUser(_ context.Context, tenantID, userID string, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, sess := range r.s.sessions {
		if sess.TenantID == tenantID && sess.UserID == userID && sess.RevokedAt == nil {
			t := at
			sess.RevokedAt = &t
			r.s.sessions[id] = sess
			n++
		}
	}
	return n, nil
}

func (r sessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, sess := range r.s.sessions {
		if sess.ExpiresAt.Before(now) {
			delete(r.s.sessions, id)
			n++
		}
	}
	return n, nil
}

type deviceRepo struct{ s *Store }

func (r deviceRepo) Upsert(_ context.Context, d repository.Device) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := triple{d.TenantID, d.UserID, d.DeviceID}
	if prev, ok := r.s.devices[k]; ok {
		d.CreatedAt = prev.CreatedAt
	}
	r.s.devices[k] = d
	return nil
}

func (r deviceRepo) Get(_ context.Context, tenantID, userID, deviceID string) (*repository.Device, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.devices[triple{tenantID, userID, deviceID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

// ─── Refresh tokens ───

type refreshRepo struct{ s *Store }

func (r refreshRepo) Create(_ context.Context, t repository.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.refresh[t.ID]; ok {
		return repository.ErrConflict
	}
	for _, existing := range r.s.refresh {
		if existing.TokenHash == t.TokenHash {
			return repository.ErrConflict
		}
	}
	t.RevokedAt = cloneTime(t.RevokedAt)
	r.s.refresh[t.ID] = t
	return nil
}

func (r refreshRepo) Get(_ context.Context, tenantID, id string) (*repository.RefreshToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.refresh[id]
	if !ok || t.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	t.RevokedAt = cloneTime(t.RevokedAt)
	return &t, nil
}

func (r refreshRepo) Revoke(_ context.Context, tenantID, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.refresh[id]
	if !ok || t.TenantID != tenantID {
		return repository.ErrNotFound
	}
	if t.RevokedAt != nil {
		return repository.ErrConflict
	}
	t.RevokedAt = &at
	r.s.refresh[id] = t
	return nil
}

func (r refreshRepo) RevokeAllForUser(_ context.Context, tenantID, userID string, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, t := range r.s.refresh {
		if t.TenantID == tenantID && t.UserID == userID && t.RevokedAt == nil {
			ts := at
			t.RevokedAt = &ts
			r.s.refresh[id] = t
			n++
		}
	}
	return n, nil
}

func (r refreshRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, t := range r.s.refresh {
		if t.ExpiresAt.Before(now) {
			delete(r.s.refresh, id)
			n++
		}
	}
	return n, nil
}

// ─── Attempts ───

type attemptRepo struct{ s *Store }

func (r attemptRepo) Record(_ context.Context, a repository.AuthAttempt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.attempts = append(r.s.attempts, a)
	return nil
}

func (r attemptRepo) CountFailures(_ context.Context, tenantID, email, ip string, since time.Time) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var n int64
	for _, a := range r.s.attempts {
		if !a.OK && a.TenantID == tenantID && a.Email == email && a.IP == ip && !a.TS.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r attemptRepo) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.attempts[:0]
	var n int64
	for _, a := range r.s.attempts {
		if a.TS.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	r.s.attempts = kept
	return n, nil
}

// ─── MFA ───

type mfaRepo struct{ s *Store }

func (r mfaRepo) Get(_ context.Context, tenantID, userID string) (*repository.MFASecret, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.mfa[pair{tenantID, userID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r mfaRepo) Upsert(_ context.Context, m repository.MFASecret) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := pair{m.TenantID, m.UserID}
	if prev, ok := r.s.mfa[k]; ok {
		m.CreatedAt = prev.CreatedAt
	}
	r.s.mfa[k] = m
	return nil
}

func (r mfaRepo) Enable(_ context.Context, tenantID, userID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := pair{tenantID, userID}
	m, ok := r.s.mfa[k]
	if !ok {
		return repository.ErrNotFound
	}
	m.Enabled = true
	m.UpdatedAt = at
	r.s.mfa[k] = m
	return nil
}

func (r mfaRepo) AdvanceStep(_ context.Context, tenantID, userID string, step int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := pair{tenantID, userID}
	m, ok := r.s.mfa[k]
	if !ok {
		return repository.ErrNotFound
	}
	if step <= m.LastStep {
		return repository.ErrConflict
	}
	m.LastStep = step
	r.s.mfa[k] = m
	return nil
}
