// Package rest exposes the catalog over JSON. Reads are public; writes
// require a bearer token and the matching catalog permission.
package rest

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/athenaeum-app/athenaeum/internal/auth"
	"github.com/athenaeum-app/athenaeum/internal/authz"
	"github.com/athenaeum-app/athenaeum/internal/catalog"
	"github.com/athenaeum-app/athenaeum/internal/platform/httpx"
	"github.com/athenaeum-app/athenaeum/internal/shared"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Handler serves the catalog JSON API.
type Handler struct {
	logger      *slog.Logger
	service     *catalog.Service
	bearer      auth.Bearer
	guard       authz.Middleware
	idempotency *shared.IdempotencyStore
	validate    *validator.Validate
	rateLimit   func(http.Handler) http.Handler
}

// NewHandler builds Handler instance. The guard must be configured for
// JSON responses.
func NewHandler(logger *slog.Logger, service *catalog.Service, bearer auth.Bearer, guard authz.Middleware, idempotency *shared.IdempotencyStore) *Handler {
	limiter := httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
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
		logger:      logger,
		service:     service,
		bearer:      bearer,
		guard:       guard,
		idempotency: idempotency,
		validate:    validator.New(),
		rateLimit:   limiter,
	}
}

// MountRoutes registers the API endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.bearer.Middleware)

	r.Get("/books", h.listBooks)
	r.Get("/books/{id}", h.getBook)
	r.Get("/authors", h.listAuthors)
	r.Get("/authors/{id}", h.getAuthor)

	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Group(func(r chi.Router) {
			r.Use(h.guard.RequireAny(shared.PermCatalogBookCreate))
			r.Post("/books", h.createBook)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.guard.RequireAny(shared.PermCatalogBookEdit))
			r.Put("/books/{id}", h.updateBook)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.guard.RequireAny(shared.PermCatalogBookDelete))
			r.Delete("/books/{id}", h.deleteBook)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.guard.RequireAny(shared.PermCatalogAuthorCreate))
			r.Post("/authors", h.createAuthor)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.guard.RequireAny(shared.PermCatalogAuthorEdit))
			r.Put("/authors/{id}", h.updateAuthor)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.guard.RequireAny(shared.PermCatalogAuthorDelete))
			r.Delete("/authors/{id}", h.deleteAuthor)
		})
	})
}

type bookPayload struct {
	Title           string `json:"title" validate:"required,max=200"`
	AuthorID        int64  `json:"author_id" validate:"required,gt=0"`
	PublicationYear int    `json:"publication_year" validate:"required"`
}

type authorPayload struct {
	Name string `json:"name" validate:"required,max=120"`
}

func (h *Handler) listBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	authorID, _ := strconv.ParseInt(q.Get("author"), 10, 64)
	year, _ := strconv.Atoi(q.Get("year"))

	result, err := h.service.BrowseBooks(r.Context(), catalog.ListBooksRequest{
		Search:   strings.TrimSpace(q.Get("q")),
		AuthorID: authorID,
		Year:     year,
		Sort:     q.Get("sort"),
		Page:     page,
		PerPage:  perPage,
	})
	if err != nil {
		h.logger.Error("list books failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, newBookList(result))
}

func (h *Handler) getBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newBookResource(book))
}

func (h *Handler) createBook(w http.ResponseWriter, r *http.Request) {
	var payload bookPayload
	if !h.decode(w, r, &payload) {
		return
	}
	key, ok := h.beginIdempotent(w, r)
	if !ok {
		return
	}
	book, err := h.service.CreateBook(r.Context(), payload.Title, payload.AuthorID, payload.PublicationYear)
	if err != nil {
		h.rollbackIdempotent(r, key)
		h.respondBookError(w, err)
		return
	}
	w.Header().Set("Location", "/api/catalog/books/"+strconv.FormatInt(book.ID, 10))
	httpx.JSON(w, http.StatusCreated, newBookResource(book))
}

func (h *Handler) updateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var payload bookPayload
	if !h.decode(w, r, &payload) {
		return
	}
	book, err := h.service.UpdateBook(r.Context(), id, payload.Title, payload.AuthorID, payload.PublicationYear)
	if err != nil {
		h.respondBookError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newBookResource(book))
}

func (h *Handler) deleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteBook(r.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrBookBorrowed) {
			httpx.Problem(w, http.StatusConflict, "Conflict", "book has an open loan")
			return
		}
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) listAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.service.ListAuthors(r.Context())
	if err != nil {
		h.logger.Error("list authors failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	data := make([]authorResource, 0, len(authors))
	for _, a := range authors {
		data = append(data, newAuthorResource(a))
	}
	httpx.JSON(w, http.StatusOK, authorList{Data: data})
}

func (h *Handler) getAuthor(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	author, err := h.service.GetAuthor(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newAuthorResource(author))
}

func (h *Handler) createAuthor(w http.ResponseWriter, r *http.Request) {
	var payload authorPayload
	if !h.decode(w, r, &payload) {
		return
	}
	key, ok := h.beginIdempotent(w, r)
	if !ok {
		return
	}
	author, err := h.service.CreateAuthor(r.Context(), payload.Name)
	if err != nil {
		h.rollbackIdempotent(r, key)
		h.respondError(w, err)
		return
	}
	w.Header().Set("Location", "/api/catalog/authors/"+strconv.FormatInt(author.ID, 10))
	httpx.JSON(w, http.StatusCreated, newAuthorResource(author))
}

func (h *Handler) updateAuthor(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var payload authorPayload
	if !h.decode(w, r, &payload) {
		return
	}
	author, err := h.service.UpdateAuthor(r.Context(), id, payload.Name)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newAuthorResource(author))
}

func (h *Handler) deleteAuthor(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteAuthor(r.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrBookBorrowed) {
			httpx.Problem(w, http.StatusConflict, "Conflict", "author has books with open loans")
			return
		}
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

// decode reads and validates the JSON body, answering 400 or 422 itself
// when the payload is unusable.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, payload any) bool {
	if err := httpx.DecodeJSON(r, payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "request body is not valid JSON")
		return false
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", validationDetail(err))
		return false
	}
	return true
}

func (h *Handler) respondBookError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrInvalidYear):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "publication_year must be between 1000 and the current year")
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "author_id does not reference a known author")
	default:
		h.respondError(w, err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
		return
	}
	h.logger.Error("catalog api request failed", slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

// beginIdempotent claims the Idempotency-Key header when one was sent.
// Replays answer 409 without reaching the service.
func (h *Handler) beginIdempotent(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" || h.idempotency == nil {
		return "", true
	}
	if err := h.idempotency.Claim(r.Context(), key, "catalog"); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			httpx.Problem(w, http.StatusConflict, "Conflict", "idempotency key already used")
			return "", false
		}
		h.logger.Error("claim idempotency key failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return "", false
	}
	return key, true
}

func (h *Handler) rollbackIdempotent(r *http.Request, key string) {
	if key == "" || h.idempotency == nil {
		return
	}
	_ = h.idempotency.Release(r.Context(), key)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
		return 0, false
	}
	return id, true
}

func validationDetail(err error) string {
	fieldNames := map[string]string{
		"Title":           "title",
		"AuthorID":        "author_id",
		"PublicationYear": "publication_year",
		"Name":            "name",
	}
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return "request body failed validation"
	}
	parts := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		name := fieldNames[fieldErr.Field()]
		if name == "" {
			name = fieldErr.Field()
		}
		switch fieldErr.Tag() {
		case "required":
			parts = append(parts, name+" is required")
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", name, fieldErr.Param()))
		case "gt":
			parts = append(parts, name+" must be positive")
		default:
			parts = append(parts, name+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}
