package report

import (
	"bytes"
	"context"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/athenaeum-app/athenaeum/internal/authz"
	"github.com/athenaeum-app/athenaeum/internal/catalog"
	"github.com/athenaeum-app/athenaeum/internal/shared"
	"github.com/athenaeum-app/athenaeum/web"
)

// LoanSource supplies the loans included in the overdue report.
type LoanSource interface {
	OverdueLoans(ctx context.Context) ([]catalog.Loan, error)
}

// Handler serves PDF reports rendered through Gotenberg.
type Handler struct {
	logger    *slog.Logger
	client    *Client
	loans     LoanSource
	guard     authz.Middleware
	templates *template.Template
	rateLimit func(http.Handler) http.Handler
}

// NewHandler parses the report templates and constructs the handler.
func NewHandler(logger *slog.Logger, client *Client, loans LoanSource, guard authz.Middleware) (*Handler, error) {
	funcMap := template.FuncMap{
		"formatDay": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006")
		},
	}
	tpl, err := template.New("overdue_loans_pdf.html").Funcs(funcMap).ParseFS(web.Templates, "templates/reports/overdue_loans_pdf.html")
	if err != nil {
		return nil, err
	}
	limiter := httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		p := authz.PrincipalFromContext(r.Context())
		if p.Authenticated {
			return "user:" + strconv.FormatInt(p.UserID, 10), nil
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return "ip:" + r.RemoteAddr, nil
		}
		return "ip:" + host, nil
	}))
	return &Handler{
		logger:    logger,
		client:    client,
		loans:     loans,
		guard:     guard,
		templates: tpl,
		rateLimit: limiter,
	}, nil
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermCatalogLoanView))
		r.Use(h.rateLimit)
		r.Get("/loans/overdue.pdf", h.overdueLoansPDF)
	})
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type overdueRow struct {
	BookTitle string
	UserEmail string
	DueAt     time.Time
	DaysLate  int
}

type overdueReport struct {
	GeneratedAt time.Time
	Rows        []overdueRow
}

func newOverdueReport(loans []catalog.Loan, now time.Time) overdueReport {
	rows := make([]overdueRow, 0, len(loans))
	for _, l := range loans {
		late := int(now.Sub(l.DueAt).Hours() / 24)
		if late < 0 {
			late = 0
		}
		rows = append(rows, overdueRow{
			BookTitle: l.BookTitle,
			UserEmail: l.UserEmail,
			DueAt:     l.DueAt,
			DaysLate:  late,
		})
	}
	return overdueReport{GeneratedAt: now, Rows: rows}
}

func (h *Handler) overdueLoansPDF(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loans.OverdueLoans(r.Context())
	if err != nil {
		h.logger.Error("load overdue loans", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	vm := newOverdueReport(loans, time.Now())
	buf := &bytes.Buffer{}
	if err := h.templates.ExecuteTemplate(buf, "overdue_loans_pdf.html", vm); err != nil {
		h.logger.Error("render overdue loans report", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	pdf, err := h.client.RenderHTML(r.Context(), buf.String())
	if err != nil {
		h.logger.Error("generate overdue loans pdf", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=overdue-loans.pdf")
	_, _ = w.Write(pdf)
}
