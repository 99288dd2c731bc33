package session

import (
	"net/http"
	"strings"
)

// TokenFromRequest extrae el access token: primero la cookie, luego
// Authorization: Bearer. Es la misma extracción para HTTP y realtime.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value
		}
	}
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
