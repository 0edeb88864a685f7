package jobs

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/athenaeum-app/athenaeum/internal/authz"
)

type fixedStore struct {
	role authz.Role
}

func (s fixedStore) RoleOf(ctx context.Context, userID int64) (authz.Role, error) {
	return s.role, nil
}

func (s fixedStore) PermissionsOf(ctx context.Context, userID int64) ([]string, error) {
	return nil, nil
}

func jobsRouter(client *Client, store authz.Store) http.Handler {
	guard := authz.Middleware{Gate: authz.NewGate(store), Logger: slog.Default(), JSON: true}
	h := NewHandler(nil, client, guard, slog.Default())
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	return r
}

func postScan(t *testing.T, router http.Handler, p *authz.Principal) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/jobs/overdue-scan", nil)
	if p != nil {
		req = req.WithContext(authz.ContextWithPrincipal(req.Context(), *p))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	router := jobsRouter(nil, fixedStore{role: authz.RoleAdmin})

	req := httptest.NewRequest(http.MethodGet, "/jobs/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0}`, rec.Body.String())
}

func TestEnqueueOverdueScanAdminOnly(t *testing.T) {
	router := jobsRouter(nil, fixedStore{role: authz.RoleMember})

	rec := postScan(t, router, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Bearer realm="athenaeum"`, rec.Header().Get("WWW-Authenticate"))

	rec = postScan(t, router, &authz.Principal{UserID: 3, Authenticated: true})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestEnqueueOverdueScanWithoutClient(t *testing.T) {
	router := jobsRouter(nil, fixedStore{role: authz.RoleAdmin})

	rec := postScan(t, router, &authz.Principal{UserID: 1, Authenticated: true})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
