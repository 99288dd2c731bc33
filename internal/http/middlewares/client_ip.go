package middlewares

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ProxyPolicy decide de qué peers se acepta X-Forwarded-For.
// Un *ProxyPolicy nil no confía en nadie.
type ProxyPolicy struct {
	prefixes []netip.Prefix
}

// NewProxyPolicy parsea una lista de CIDRs (ej: 10.0.0.0/8).
func NewProxyPolicy(cidrs []string) (*ProxyPolicy, error) {
	p := &ProxyPolicy{}
	for _, c := range cidrs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		pfx, err := netip.ParsePrefix(c)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", c, err)
		}
		p.prefixes = append(p.prefixes, pfx.Masked())
	}
	return p, nil
}

// Trusted reporta si ip pertenece a algún proxy configurado.
func (p *ProxyPolicy) Trusted(ip netip.Addr) bool {
	if p == nil || !ip.IsValid() {
		return false
	}
	ip = ip.Unmap()
	for _, pfx := range p.prefixes {
		if pfx.Contains(ip) {
			return true
		}
	}
	return false
}

// Resolve retorna la IP del cliente. X-Forwarded-For sólo cuenta si el peer
// directo es un proxy confiable; se recorre de derecha a izquierda y gana el
// primer salto no confiable.
func (p *ProxyPolicy) Resolve(r *http.Request) string {
	remote := remoteHost(r.RemoteAddr)
	peer, err := netip.ParseAddr(remote)
	if err != nil || !p.Trusted(peer) {
		return remote
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	client := peer.Unmap().String()
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		ip, err := netip.ParseAddr(hop)
		if err != nil {
			// basura a la izquierda de un proxy confiable: no se sigue
			return client
		}
		client = ip.Unmap().String()
		if !p.Trusted(ip) {
			return client
		}
	}
	return client
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err == nil {
		return host
	}
	return addr
}

// WithClientIP resuelve la IP del cliente una vez por request.
func WithClientIP(p *ProxyPolicy) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := setClientIP(r.Context(), p.Resolve(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP retorna la IP resuelta por WithClientIP; sin ese middleware usa
// RemoteAddr y nunca lee X-Forwarded-For.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(ctxClientIPKey).(string); ok && ip != "" {
		return ip
	}
	return remoteHost(r.RemoteAddr)
}
