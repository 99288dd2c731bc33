// Package auth contiene DTOs para endpoints de autenticación.
package auth

import "time"

type RegisterRequest struct {
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"` // default Civilian
}

type RegisterResponse struct {
	OK     bool   `json:"ok"`
	UserID string `json:"user_id"`
}

type LoginRequest struct {
	TenantID   string `json:"tenant_id"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceName string `json:"device_name,omitempty"`
}

// LoginResponse lleva los tokens crudos además de las cookies.
type LoginResponse struct {
	OK           bool   `json:"ok"`
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"` // "Bearer"
	ExpiresIn    int64  `json:"expires_in"` // segundos
	RefreshToken string `json:"refresh_token"`
	RefreshID    string `json:"refresh_id"`
}

// MFARequiredResponse es el resultado no terminal (202) del login con MFA.
type MFARequiredResponse struct {
	MFARequired bool   `json:"mfa_required"`
	UserID      string `json:"user_id"`
}

type MFAVerifyRequest struct {
	TenantID   string `json:"tenant_id"`
	UserID     string `json:"user_id"`
	Code       string `json:"code"`
	DeviceName string `json:"device_name,omitempty"`
}

type MFAEnrollResponse struct {
	OK         bool   `json:"ok"`
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
}

type MFAEnableRequest struct {
	Code string `json:"code"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	DeviceName   string `json:"device_name,omitempty"`
}

type MeUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type MeResponse struct {
	OK   bool   `json:"ok"`
	User MeUser `json:"user"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

// ClientInfo son los datos del transporte que el controller pasa al service.
type ClientInfo struct {
	IP         string
	UserAgent  string
	DeviceName string
}

// IssuedTokens es el resultado interno de abrir una sesión.
type IssuedTokens struct {
	UserID        string
	SessionID     string
	AccessToken   string
	AccessExpires time.Time
	RefreshToken  string
	RefreshID     string
	RefreshExp    time.Time
}

// LoginResult: Tokens != nil o MFARequired.
type LoginResult struct {
	MFARequired bool
	UserID      string
	Tokens      *IssuedTokens
}
