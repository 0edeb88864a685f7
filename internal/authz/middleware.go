package authz

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/athenaeum-app/athenaeum/internal/platform/httpx"
)

type principalContextKey struct{}

// ContextWithPrincipal stores the resolved principal in the context. The
// session loader and the bearer middleware call this; the gate itself never
// reads it.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the request principal. Absence resolves to
// the anonymous principal.
func PrincipalFromContext(ctx context.Context) Principal {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	if !ok {
		return Anonymous()
	}
	return p
}

type viewerRoleContextKey struct{}

// ContextWithViewerRole stores the viewer's resolved role for template
// navigation. Guards never read it; they ask the gate.
func ContextWithViewerRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, viewerRoleContextKey{}, role)
}

// ViewerRoleFromContext returns the stored viewer role, RoleNone when absent.
func ViewerRoleFromContext(ctx context.Context) Role {
	role, ok := ctx.Value(viewerRoleContextKey{}).(Role)
	if !ok {
		return RoleNone
	}
	return role
}

// Middleware guards route groups with explicit gate calls. Denial maps to
// 403, a missing principal to 401 (or a login redirect for HTML surfaces),
// and store failure to 500.
type Middleware struct {
	Gate   *Gate
	Logger *slog.Logger
	// LoginURL, when set, redirects unauthenticated requests to the login
	// form instead of writing a bare 401.
	LoginURL string
	// JSON switches error responses to RFC7807 problems for API surfaces.
	JSON bool
	// Observe, when set, receives every decision for metrics.
	Observe func(allowed bool, reason DenyReason)
}

// RequireRole admits only principals whose profile role equals role.
func (m Middleware) RequireRole(role Role) func(http.Handler) http.Handler {
	return m.require(RequireRole(role))
}

// RequireAny admits principals granted at least one of the permission keys.
func (m Middleware) RequireAny(keys ...string) func(http.Handler) http.Handler {
	return m.require(RequireAnyPermission(keys...))
}

// RequireAll admits principals granted every permission key.
func (m Middleware) RequireAll(keys ...string) func(http.Handler) http.Handler {
	return m.require(RequireAllPermissions(keys...))
}

// RequireAuthenticated admits any signed-in principal without consulting
// the permission store.
func (m Middleware) RequireAuthenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !PrincipalFromContext(r.Context()).Authenticated {
				m.unauthenticated(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			decision, err := m.Gate.Authorize(r.Context(), p, req)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("authorize", slog.String("requirement", req.String()), slog.Int64("user_id", p.UserID), slog.Any("error", err))
				}
				m.fail(w, http.StatusInternalServerError)
				return
			}
			if m.Observe != nil {
				m.Observe(decision.Allowed, decision.Reason)
			}
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}
			if decision.Reason == DenyUnauthenticated {
				m.unauthenticated(w, r)
				return
			}
			m.fail(w, http.StatusForbidden)
		})
	}
}

func (m Middleware) unauthenticated(w http.ResponseWriter, r *http.Request) {
	if m.LoginURL != "" {
		http.Redirect(w, r, m.LoginURL+"?next="+url.QueryEscape(r.URL.Path), http.StatusSeeOther)
		return
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="athenaeum"`)
	m.fail(w, http.StatusUnauthorized)
}

func (m Middleware) fail(w http.ResponseWriter, status int) {
	if m.JSON {
		httpx.Problem(w, status, http.StatusText(status), "")
		return
	}
	http.Error(w, http.StatusText(status), status)
}
