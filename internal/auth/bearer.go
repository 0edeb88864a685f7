package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/athenaeum-app/athenaeum/internal/authz"
)

// Bearer resolves Authorization headers into request principals for the
// API surfaces. Requests without a token pass through as anonymous so
// public reads keep working; guards downstream decide what that means.
type Bearer struct {
	Tokens *TokenIssuer
	Logger *slog.Logger
}

// Middleware extracts and verifies the bearer token when present.
func (b Bearer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r.WithContext(authz.ContextWithPrincipal(r.Context(), authz.Anonymous())))
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			next.ServeHTTP(w, r.WithContext(authz.ContextWithPrincipal(r.Context(), authz.Anonymous())))
			return
		}
		claims, err := b.Tokens.Verify(strings.TrimSpace(raw))
		if err != nil {
			if b.Logger != nil {
				b.Logger.Debug("bearer token rejected", slog.Any("error", err))
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="athenaeum", error="invalid_token"`)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		p, err := claims.Principal()
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="athenaeum", error="invalid_token"`)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(authz.ContextWithPrincipal(r.Context(), p)))
	})
}
