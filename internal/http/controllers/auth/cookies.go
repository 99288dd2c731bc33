package auth

import (
	"net/http"
	"time"

	dto "github.com/dropDatabas3/opslinkcad/internal/http/dto/auth"
)

func (c CookieConfig) refreshName() string { return c.Name + "_refresh" }

func (c CookieConfig) base(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteNoneMode,
	}
}

// setSession escribe access (sesión del navegador) y refresh id (persistente).
func (c CookieConfig) setSession(w http.ResponseWriter, t *dto.IssuedTokens) {
	http.SetCookie(w, c.base(c.Name, t.AccessToken))

	rc := c.base(c.refreshName(), t.RefreshID)
	rc.MaxAge = int(c.RefreshTTL / time.Second)
	if rc.MaxAge <= 0 {
		rc.MaxAge = int(time.Until(t.RefreshExp) / time.Second)
	}
	http.SetCookie(w, rc)
}

func (c CookieConfig) clear(w http.ResponseWriter) {
	for _, name := range []string{c.Name, c.refreshName()} {
		ck := c.base(name, "")
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		http.SetCookie(w, ck)
	}
}

// refreshID lee la cookie de refresh; "" si no está.
func (c CookieConfig) refreshID(r *http.Request) string {
	ck, err := r.Cookie(c.refreshName())
	if err != nil {
		return ""
	}
	return ck.Value
}

func tokenResponse(t *dto.IssuedTokens, now time.Time) dto.LoginResponse {
	return dto.LoginResponse{
		OK:           true,
		UserID:       t.UserID,
		AccessToken:  t.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(t.AccessExpires.Sub(now).Round(time.Second) / time.Second),
		RefreshToken: t.RefreshToken,
		RefreshID:    t.RefreshID,
	}
}
