package rbac

import (
	"log/slog"
	"net/http"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current caller holds at least one of the capabilities.
func (m Middleware) RequireAny(caps ...Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(caps) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			p, ok := m.currentPrincipal(w, r)
			if !ok {
				return
			}
			for _, c := range caps {
				if p.Role.Can(c) {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.deny(w, r, p)
		})
	}
}

// RequireAll ensures the current caller holds every capability.
func (m Middleware) RequireAll(caps ...Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(caps) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			p, ok := m.currentPrincipal(w, r)
			if !ok {
				return
			}
			if err := Authorize(p, caps...); err != nil {
				m.deny(w, r, p)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) currentPrincipal(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok || !p.Valid() {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return Principal{}, false
	}
	return p, true
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, p Principal) {
	if m.Logger != nil {
		m.Logger.Warn("rbac denied", slog.String("user_id", p.UserID), slog.String("role", string(p.Role)), slog.String("path", r.URL.Path))
	}
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}
