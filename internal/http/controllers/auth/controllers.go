// Package auth contiene los controllers de autenticación.
package auth

import (
	"time"

	svc "github.com/dropDatabas3/opslinkcad/internal/http/services/auth"
)

// Controllers agrupa todos los controllers del dominio auth.
type Controllers struct {
	Register *RegisterController
	Login    *LoginController
	MFA      *MFAController
	Refresh  *RefreshController
	Logout   *LogoutController
	Me       *MeController
}

// NewControllers crea el agregador de controllers auth.
func NewControllers(s svc.Services, cookies CookieConfig) *Controllers {
	return &Controllers{
		Register: NewRegisterController(s.Register),
		Login:    NewLoginController(s.Login, cookies),
		MFA:      NewMFAController(s.MFA, cookies),
		Refresh:  NewRefreshController(s.Refresh, cookies),
		Logout:   NewLogoutController(s.Logout, cookies),
		Me:       NewMeController(),
	}
}

// CookieConfig define las cookies de sesión: Name lleva el access token y
// Name+"_refresh" el id del refresh token.
type CookieConfig struct {
	Name       string
	Domain     string
	Secure     bool
	RefreshTTL time.Duration
}
