// Package token emite y verifica los tokens firmados del sistema.
//
// Access y refresh usan claves HMAC independientes: un refresh token nunca
// verifica como access y viceversa. Cualquier token malformado, expirado,
// firmado con otra clave o con otro algoritmo se rechaza con ErrInvalid.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultAccessTTL  = 20 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
	DefaultIssuer     = "opslinkcad"

	minKeyLen = 32

	typAccess  = "access"
	typRefresh = "refresh"
)

var (
	// ErrInvalid colapsa cualquier falla de verificación.
	ErrInvalid = errors.New("token: invalid")

	// ErrNotConfigured indica claves ausentes o débiles al construir el codec.
	ErrNotConfigured = errors.New("token: signing keys not configured")
)

// Config configura el Codec.
type Config struct {
	AccessKey  []byte
	RefreshKey []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string

	// Now permite fijar el reloj en tests.
	Now func() time.Time
}

// AccessClaims son los claims verificados de un access token.
type AccessClaims struct {
	Subject   string
	SessionID string
	TenantID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshClaims son los claims verificados de un refresh token.
type RefreshClaims struct {
	Subject   string
	TokenID   string
	TenantID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type accessJWT struct {
	SessionID string `json:"sid"`
	TenantID  string `json:"tid"`
	Typ       string `json:"typ"`
	jwt.RegisteredClaims
}

type refreshJWT struct {
	TenantID string `json:"tid"`
	Typ      string `json:"typ"`
	jwt.RegisteredClaims
}

// Codec es inmutable y seguro para uso concurrente.
type Codec struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
}

// NewCodec valida las claves. Claves ausentes, cortas o iguales son un error
// de configuración, no de request.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessKey) < minKeyLen {
		return nil, fmt.Errorf("%w: access key requiere >= %d bytes", ErrNotConfigured, minKeyLen)
	}
	if len(cfg.RefreshKey) < minKeyLen {
		return nil, fmt.Errorf("%w: refresh key requiere >= %d bytes", ErrNotConfigured, minKeyLen)
	}
	if string(cfg.AccessKey) == string(cfg.RefreshKey) {
		return nil, fmt.Errorf("%w: access y refresh deben usar claves distintas", ErrNotConfigured)
	}

	c := &Codec{
		accessKey:  append([]byte(nil), cfg.AccessKey...),
		refreshKey: append([]byte(nil), cfg.RefreshKey...),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		issuer:     cfg.Issuer,
		now:        cfg.Now,
	}
	if c.accessTTL <= 0 {
		c.accessTTL = DefaultAccessTTL
	}
	if c.refreshTTL <= 0 {
		c.refreshTTL = DefaultRefreshTTL
	}
	if c.issuer == "" {
		c.issuer = DefaultIssuer
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// AccessTTL retorna la vida del access token.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL retorna la vida del refresh token.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccess firma {sub, sid, tid}.
func (c *Codec) IssueAccess(subject, sessionID, tenantID string) (string, time.Time, error) {
	if subject == "" || sessionID == "" || tenantID == "" {
		return "", time.Time{}, fmt.Errorf("token: access claims incompletos")
	}
	now := c.now()
	exp := now.Add(c.accessTTL)
	claims := accessJWT{
		SessionID: sessionID,
		TenantID:  tenantID,
		Typ:       typAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign access: %w", err)
	}
	return raw, exp, nil
}

// IssueRefresh firma {sub, jti, tid}.
func (c *Codec) IssueRefresh(subject, tokenID, tenantID string) (string, time.Time, error) {
	if subject == "" || tokenID == "" || tenantID == "" {
		return "", time.Time{}, fmt.Errorf("token: refresh claims incompletos")
	}
	now := c.now()
	exp := now.Add(c.refreshTTL)
	claims := refreshJWT{
		TenantID: tenantID,
		Typ:      typRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign refresh: %w", err)
	}
	return raw, exp, nil
}

// VerifyAccess valida firma, algoritmo, issuer, expiración y claims requeridos.
func (c *Codec) VerifyAccess(raw string) (*AccessClaims, error) {
	var claims accessJWT
	if err := c.parse(raw, &claims, c.accessKey); err != nil {
		return nil, err
	}
	if claims.Typ != typAccess || claims.Subject == "" || claims.SessionID == "" || claims.TenantID == "" {
		return nil, ErrInvalid
	}
	return &AccessClaims{
		Subject:   claims.Subject,
		SessionID: claims.SessionID,
		TenantID:  claims.TenantID,
		IssuedAt:  numericTime(claims.IssuedAt),
		ExpiresAt: numericTime(claims.ExpiresAt),
	}, nil
}

// VerifyRefresh valida un refresh token con la clave de refresh.
func (c *Codec) VerifyRefresh(raw string) (*RefreshClaims, error) {
	var claims refreshJWT
	if err := c.parse(raw, &claims, c.refreshKey); err != nil {
		return nil, err
	}
	if claims.Typ != typRefresh || claims.Subject == "" || claims.ID == "" || claims.TenantID == "" {
		return nil, ErrInvalid
	}
	return &RefreshClaims{
		Subject:   claims.Subject,
		TokenID:   claims.ID,
		TenantID:  claims.TenantID,
		IssuedAt:  numericTime(claims.IssuedAt),
		ExpiresAt: numericTime(claims.ExpiresAt),
	}, nil
}

func (c *Codec) parse(raw string, claims jwt.Claims, key []byte) error {
	if raw == "" {
		return ErrInvalid
	}
	tk, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !tk.Valid {
		return ErrInvalid
	}
	return nil
}

func numericTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}
