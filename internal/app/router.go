package app

import (
	"io/fs"
	"log"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/athenaeum-app/athenaeum/internal/auth"
	"github.com/athenaeum-app/athenaeum/internal/authz"
	"github.com/athenaeum-app/athenaeum/internal/blog"
	"github.com/athenaeum-app/athenaeum/internal/catalog"
	catalogrest "github.com/athenaeum-app/athenaeum/internal/catalog/rest"
	"github.com/athenaeum-app/athenaeum/internal/groups"
	"github.com/athenaeum-app/athenaeum/internal/observability"
	"github.com/athenaeum-app/athenaeum/internal/shared"
	"github.com/athenaeum-app/athenaeum/internal/social"
	"github.com/athenaeum-app/athenaeum/internal/users"
	"github.com/athenaeum-app/athenaeum/internal/view"
	"github.com/athenaeum-app/athenaeum/jobs"
	"github.com/athenaeum-app/athenaeum/report"
	"github.com/athenaeum-app/athenaeum/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthzStore     authz.Store

	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	GroupsHandler      *groups.Handler
	PermissionsHandler *authz.PermissionsHandler
	CatalogHandler     *catalog.Handler
	CatalogAPIHandler  *catalogrest.Handler
	BlogHandler        *blog.Handler
	SocialHandler      *social.Handler
	ReportHandler      *report.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Athenaeum defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		AuthzStore:     params.AuthzStore,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
		var flash *shared.FlashMessage
		if sess != nil {
			flash = sess.PopFlash()
		}
		p := authz.PrincipalFromContext(r.Context())
		data := view.TemplateData{
			Title:       "Athenaeum",
			CSRFToken:   csrfToken,
			Flash:       flash,
			CurrentPath: r.URL.Path,
			Viewer:      view.Viewer{Email: p.Email, Role: authz.ViewerRoleFromContext(r.Context()).String(), Authenticated: p.Authenticated},
		}
		if err := params.Templates.Render(w, "pages/home/index.html", data); err != nil {
			params.Logger.Error("render home", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.GroupsHandler != nil {
		r.Route("/groups", params.GroupsHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	r.Route("/catalog", params.CatalogHandler.MountRoutes)
	r.Route("/blog", params.BlogHandler.MountRoutes)
	r.Route("/api/catalog", params.CatalogAPIHandler.MountRoutes)
	r.Route("/api/accounts", params.SocialHandler.MountRoutes)
	if params.ReportHandler != nil {
		r.Route("/report", params.ReportHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers so
// browsers keep assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}

// Minimal base images ship no mime.types; the stylesheet must still come
// back as text/css from the embedded file server.
func init() {
	if mime.TypeByExtension(".css") != "" {
		return
	}
	if err := mime.AddExtensionType(".css", "text/css; charset=utf-8"); err != nil {
		log.Printf("app: register css mime type: %v", err)
	}
}
