package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/wholesale/internal/platform/httpx"
)

// PermissionsHandler exposes the role → capability table.
type PermissionsHandler struct {
	rbac Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/me", h.mine)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(CapViewReports))
		r.Get("/", h.matrix)
	})
}

func (h *PermissionsHandler) mine(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok || !p.Valid() {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "caller identity required")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"principal":    p,
		"capabilities": Capabilities(p.Role),
	})
}

func (h *PermissionsHandler) matrix(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, CapabilityMatrix())
}
