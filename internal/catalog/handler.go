package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/athenaeum-app/athenaeum/internal/authz"
	"github.com/athenaeum-app/athenaeum/internal/shared"
	"github.com/athenaeum-app/athenaeum/internal/view"
)

const browsePerPage = 12

// Handler serves the catalog HTML surface: public browsing plus the
// permission-gated management forms.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     authz.Middleware
	audit     *shared.AuditLogger
	validate  *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard authz.Middleware, audit *shared.AuditLogger) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		guard:     guard,
		audit:     audit,
		validate:  validator.New(),
	}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.browseBooks)
	r.Get("/books/{id}", h.showBook)
	r.Get("/authors", h.listAuthors)
	r.Get("/libraries", h.listLibraries)
	r.Get("/libraries/{id}", h.showLibrary)

	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAuthenticated())
		r.Post("/books/{id}/borrow", h.borrowBook)
		r.Post("/books/{id}/return", h.returnBook)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermCatalogBookView))
		r.Get("/manage", h.manageBooks)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermCatalogBookCreate))
		r.Get("/books/new", h.showCreateBookForm)
		r.Post("/books", h.createBook)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermCatalogBookEdit))
		r.Get("/books/{id}/edit", h.showEditBookForm)
		r.Post("/books/{id}", h.updateBook)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermCatalogBookDelete))
		r.Get("/books/{id}/delete", h.confirmDeleteBook)
		r.Post("/books/{id}/delete", h.deleteBook)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermCatalogAuthorView))
		r.Get("/authors/manage", h.manageAuthors)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermCatalogAuthorCreate))
		r.Get("/authors/new", h.showCreateAuthorForm)
		r.Post("/authors", h.createAuthor)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermCatalogAuthorEdit))
		r.Get("/authors/{id}/edit", h.showEditAuthorForm)
		r.Post("/authors/{id}", h.updateAuthor)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermCatalogAuthorDelete))
		r.Get("/authors/{id}/delete", h.confirmDeleteAuthor)
		r.Post("/authors/{id}/delete", h.deleteAuthor)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermCatalogLoanView))
		r.Get("/loans", h.listLoans)
	})
}

type formErrors map[string]string

type bookForm struct {
	Title    string `validate:"required,max=200"`
	AuthorID int64  `validate:"required,gt=0"`
	Year     int    `validate:"required"`
}

type authorForm struct {
	Name string `validate:"required,max=120"`
}

func (h *Handler) browseBooks(w http.ResponseWriter, r *http.Request) {
	req := parseListRequest(r)
	page, err := h.service.BrowseBooks(r.Context(), req)
	if err != nil {
		h.logger.Error("browse books failed", slog.Any("error", err))
		h.render(w, r, "pages/catalog/index.html", map[string]any{"Errors": formErrors{"general": "could not load the catalog"}}, http.StatusInternalServerError)
		return
	}
	authors, err := h.service.ListAuthors(r.Context())
	if err != nil {
		h.logger.Error("list authors failed", slog.Any("error", err))
	}
	numBooks, numAuthors, numLibraries, err := h.service.Counts(r.Context())
	if err != nil {
		h.logger.Error("catalog counts failed", slog.Any("error", err))
	}
	h.render(w, r, "pages/catalog/index.html", map[string]any{
		"Books":        page.Books,
		"Pagination":   page.Pagination,
		"Authors":      authors,
		"Search":       req.Search,
		"AuthorID":     req.AuthorID,
		"Year":         req.Year,
		"Sort":         req.Sort,
		"NumBooks":     numBooks,
		"NumAuthors":   numAuthors,
		"NumLibraries": numLibraries,
	}, http.StatusOK)
}

func (h *Handler) showBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load book failed", slog.Int64("book_id", id), slog.Any("error", err))
		h.render(w, r, "pages/catalog/book_detail.html", map[string]any{"Errors": formErrors{"general": "could not load book"}}, http.StatusInternalServerError)
		return
	}

	p := authz.PrincipalFromContext(r.Context())
	canBorrow := p.Authenticated && book.BorrowerID == nil
	canReturn := false
	if p.Authenticated && book.BorrowerID != nil {
		if *book.BorrowerID == p.UserID {
			canReturn = true
		} else if ok, err := h.guard.Gate.HasPermission(r.Context(), p, shared.PermCatalogLoanEdit); err == nil && ok {
			canReturn = true
		}
	}

	h.render(w, r, "pages/catalog/book_detail.html", map[string]any{
		"Book":      book,
		"CanBorrow": canBorrow,
		"CanReturn": canReturn,
	}, http.StatusOK)
}

func (h *Handler) listAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.service.ListAuthors(r.Context())
	if err != nil {
		h.logger.Error("list authors failed", slog.Any("error", err))
		h.render(w, r, "pages/catalog/authors.html", map[string]any{"Errors": formErrors{"general": "could not load authors"}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/catalog/authors.html", map[string]any{"Authors": authors}, http.StatusOK)
}

func (h *Handler) listLibraries(w http.ResponseWriter, r *http.Request) {
	libraries, err := h.service.ListLibraries(r.Context())
	if err != nil {
		h.logger.Error("list libraries failed", slog.Any("error", err))
		h.render(w, r, "pages/catalog/libraries.html", map[string]any{"Errors": formErrors{"general": "could not load libraries"}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/catalog/libraries.html", map[string]any{"Libraries": libraries}, http.StatusOK)
}

func (h *Handler) showLibrary(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	library, err := h.service.GetLibrary(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load library failed", slog.Int64("library_id", id), slog.Any("error", err))
		h.render(w, r, "pages/catalog/library_detail.html", map[string]any{"Errors": formErrors{"general": "could not load library"}}, http.StatusInternalServerError)
		return
	}
	books, err := h.service.LibraryBooks(r.Context(), id)
	if err != nil {
		h.logger.Error("load library books failed", slog.Int64("library_id", id), slog.Any("error", err))
	}
	h.render(w, r, "pages/catalog/library_detail.html", map[string]any{"Library": library, "Books": books}, http.StatusOK)
}

func (h *Handler) borrowBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	p := authz.PrincipalFromContext(r.Context())
	loan, err := h.service.BorrowBook(r.Context(), id, p.UserID)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			http.NotFound(w, r)
		case errors.Is(err, ErrBookBorrowed):
			h.redirectWithFlash(w, r, "/catalog/books/"+strconv.FormatInt(id, 10), "error", "This book is already borrowed")
		default:
			h.logger.Error("borrow book failed", slog.Int64("book_id", id), slog.Any("error", err))
			h.redirectWithFlash(w, r, "/catalog/books/"+strconv.FormatInt(id, 10), "error", "Could not borrow book")
		}
		return
	}
	h.recordAudit(r, "catalog.borrowed", "book", strconv.FormatInt(id, 10), map[string]any{"loan_id": loan.ID, "due_at": loan.DueAt})
	h.redirectWithFlash(w, r, "/catalog/books/"+strconv.FormatInt(id, 10), "success", "Book borrowed, due "+loan.DueAt.Format("2 Jan 2006"))
}

func (h *Handler) returnBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	p := authz.PrincipalFromContext(r.Context())
	manage, err := h.guard.Gate.HasPermission(r.Context(), p, shared.PermCatalogLoanEdit)
	if err != nil {
		h.logger.Error("check loan permission failed", slog.Any("error", err))
	}
	loan, err := h.service.ReturnBook(r.Context(), id, p.UserID, manage)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotBorrowed):
			h.redirectWithFlash(w, r, "/catalog/books/"+strconv.FormatInt(id, 10), "error", "This book is not borrowed")
		case errors.Is(err, ErrLoanNotOwned):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		default:
			h.logger.Error("return book failed", slog.Int64("book_id", id), slog.Any("error", err))
			h.redirectWithFlash(w, r, "/catalog/books/"+strconv.FormatInt(id, 10), "error", "Could not return book")
		}
		return
	}
	h.recordAudit(r, "catalog.returned", "book", strconv.FormatInt(id, 10), map[string]any{"loan_id": loan.ID})
	h.redirectWithFlash(w, r, "/catalog/books/"+strconv.FormatInt(id, 10), "success", "Book returned")
}

func (h *Handler) manageBooks(w http.ResponseWriter, r *http.Request) {
	req := parseListRequest(r)
	req.PerPage = 20
	page, err := h.service.BrowseBooks(r.Context(), req)
	if err != nil {
		h.logger.Error("manage books failed", slog.Any("error", err))
		h.render(w, r, "pages/catalog/manage.html", map[string]any{"Errors": formErrors{"general": "could not load books"}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/catalog/manage.html", map[string]any{
		"Books":      page.Books,
		"Pagination": page.Pagination,
		"Search":     req.Search,
	}, http.StatusOK)
}

func (h *Handler) showCreateBookForm(w http.ResponseWriter, r *http.Request) {
	h.renderBookForm(w, r, bookForm{}, 0, formErrors{}, http.StatusOK)
}

func (h *Handler) createBook(w http.ResponseWriter, r *http.Request) {
	form, errs := h.parseBookForm(r)
	if len(errs) > 0 {
		h.renderBookForm(w, r, form, 0, errs, http.StatusUnprocessableEntity)
		return
	}
	book, err := h.service.CreateBook(r.Context(), form.Title, form.AuthorID, form.Year)
	if err != nil {
		h.renderBookForm(w, r, form, 0, h.bookErrors(err), http.StatusUnprocessableEntity)
		return
	}
	h.recordAudit(r, "catalog.book_created", "book", strconv.FormatInt(book.ID, 10), map[string]any{"title": book.Title})
	h.redirectWithFlash(w, r, "/catalog/manage", "success", "Book added")
}

func (h *Handler) showEditBookForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load book failed", slog.Int64("book_id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/catalog/manage", "error", "Could not load book")
		return
	}
	form := bookForm{Title: book.Title, AuthorID: book.AuthorID, Year: book.PublicationYear}
	h.renderBookForm(w, r, form, id, formErrors{}, http.StatusOK)
}

func (h *Handler) updateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	form, errs := h.parseBookForm(r)
	if len(errs) > 0 {
		h.renderBookForm(w, r, form, id, errs, http.StatusUnprocessableEntity)
		return
	}
	book, err := h.service.UpdateBook(r.Context(), id, form.Title, form.AuthorID, form.Year)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.renderBookForm(w, r, form, id, h.bookErrors(err), http.StatusUnprocessableEntity)
		return
	}
	h.recordAudit(r, "catalog.book_updated", "book", strconv.FormatInt(book.ID, 10), map[string]any{"title": book.Title})
	h.redirectWithFlash(w, r, "/catalog/manage", "success", "Book updated")
}

func (h *Handler) confirmDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load book failed", slog.Int64("book_id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/catalog/manage", "error", "Could not load book")
		return
	}
	h.render(w, r, "pages/catalog/book_delete.html", map[string]any{"Book": book}, http.StatusOK)
}

func (h *Handler) deleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteBook(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			http.NotFound(w, r)
		case errors.Is(err, ErrBookBorrowed):
			h.redirectWithFlash(w, r, "/catalog/manage", "error", "Cannot delete a borrowed book")
		default:
			h.logger.Error("delete book failed", slog.Int64("book_id", id), slog.Any("error", err))
			h.redirectWithFlash(w, r, "/catalog/manage", "error", "Could not delete book")
		}
		return
	}
	h.recordAudit(r, "catalog.book_deleted", "book", strconv.FormatInt(id, 10), nil)
	h.redirectWithFlash(w, r, "/catalog/manage", "success", "Book deleted")
}

func (h *Handler) manageAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.service.ListAuthors(r.Context())
	if err != nil {
		h.logger.Error("list authors failed", slog.Any("error", err))
		h.render(w, r, "pages/catalog/authors_manage.html", map[string]any{"Errors": formErrors{"general": "could not load authors"}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/catalog/authors_manage.html", map[string]any{"Authors": authors}, http.StatusOK)
}

func (h *Handler) showCreateAuthorForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/catalog/author_form.html", map[string]any{"Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) createAuthor(w http.ResponseWriter, r *http.Request) {
	form, errs := h.parseAuthorForm(r)
	if len(errs) > 0 {
		h.render(w, r, "pages/catalog/author_form.html", map[string]any{"Errors": errs, "Form": form}, http.StatusUnprocessableEntity)
		return
	}
	author, err := h.service.CreateAuthor(r.Context(), form.Name)
	if err != nil {
		h.logger.Error("create author failed", slog.Any("error", err))
		h.render(w, r, "pages/catalog/author_form.html", map[string]any{"Errors": formErrors{"general": "Could not create author"}, "Form": form}, http.StatusInternalServerError)
		return
	}
	h.recordAudit(r, "catalog.author_created", "author", strconv.FormatInt(author.ID, 10), map[string]any{"name": author.Name})
	h.redirectWithFlash(w, r, "/catalog/authors/manage", "success", "Author added")
}

func (h *Handler) showEditAuthorForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	author, err := h.service.GetAuthor(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load author failed", slog.Int64("author_id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/catalog/authors/manage", "error", "Could not load author")
		return
	}
	h.render(w, r, "pages/catalog/author_form.html", map[string]any{"Errors": formErrors{}, "Form": authorForm{Name: author.Name}, "AuthorID": id}, http.StatusOK)
}

func (h *Handler) updateAuthor(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	form, errs := h.parseAuthorForm(r)
	if len(errs) > 0 {
		h.render(w, r, "pages/catalog/author_form.html", map[string]any{"Errors": errs, "Form": form, "AuthorID": id}, http.StatusUnprocessableEntity)
		return
	}
	author, err := h.service.UpdateAuthor(r.Context(), id, form.Name)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("update author failed", slog.Int64("author_id", id), slog.Any("error", err))
		h.render(w, r, "pages/catalog/author_form.html", map[string]any{"Errors": formErrors{"general": "Could not update author"}, "Form": form, "AuthorID": id}, http.StatusInternalServerError)
		return
	}
	h.recordAudit(r, "catalog.author_updated", "author", strconv.FormatInt(author.ID, 10), map[string]any{"name": author.Name})
	h.redirectWithFlash(w, r, "/catalog/authors/manage", "success", "Author updated")
}

func (h *Handler) confirmDeleteAuthor(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	author, err := h.service.GetAuthor(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load author failed", slog.Int64("author_id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/catalog/authors/manage", "error", "Could not load author")
		return
	}
	h.render(w, r, "pages/catalog/author_delete.html", map[string]any{"Author": author}, http.StatusOK)
}

func (h *Handler) deleteAuthor(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteAuthor(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			http.NotFound(w, r)
		case errors.Is(err, ErrBookBorrowed):
			h.redirectWithFlash(w, r, "/catalog/authors/manage", "error", "Cannot delete an author while their books are borrowed")
		default:
			h.logger.Error("delete author failed", slog.Int64("author_id", id), slog.Any("error", err))
			h.redirectWithFlash(w, r, "/catalog/authors/manage", "error", "Could not delete author")
		}
		return
	}
	h.recordAudit(r, "catalog.author_deleted", "author", strconv.FormatInt(id, 10), nil)
	h.redirectWithFlash(w, r, "/catalog/authors/manage", "success", "Author deleted")
}

func (h *Handler) listLoans(w http.ResponseWriter, r *http.Request) {
	openOnly := r.URL.Query().Get("open") == "1"
	loans, err := h.service.Loans(r.Context(), openOnly)
	if err != nil {
		h.logger.Error("list loans failed", slog.Any("error", err))
		h.render(w, r, "pages/catalog/loans.html", map[string]any{"Errors": formErrors{"general": "could not load loans"}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/catalog/loans.html", map[string]any{"Loans": loans, "OpenOnly": openOnly}, http.StatusOK)
}

func (h *Handler) parseBookForm(r *http.Request) (bookForm, formErrors) {
	errs := formErrors{}
	if err := r.ParseForm(); err != nil {
		errs["general"] = "Invalid form submission"
		return bookForm{}, errs
	}
	authorID, _ := strconv.ParseInt(r.FormValue("author_id"), 10, 64)
	year, _ := strconv.Atoi(r.FormValue("publication_year"))
	form := bookForm{
		Title:    strings.TrimSpace(r.FormValue("title")),
		AuthorID: authorID,
		Year:     year,
	}
	if err := h.validate.Struct(form); err != nil {
		for _, fieldErr := range err.(validator.ValidationErrors) {
			switch fieldErr.Field() {
			case "Title":
				errs["title"] = "Title is required and must be at most 200 characters"
			case "AuthorID":
				errs["author_id"] = "Choose an author"
			case "Year":
				errs["publication_year"] = "Publication year is required"
			}
		}
	}
	return form, errs
}

// bookErrors maps service failures onto form fields.
func (h *Handler) bookErrors(err error) formErrors {
	switch {
	case errors.Is(err, ErrInvalidYear):
		return formErrors{"publication_year": "Publication year must be between 1000 and the current year"}
	case errors.Is(err, shared.ErrNotFound):
		return formErrors{"author_id": "Choose an author"}
	}
	h.logger.Error("save book failed", slog.Any("error", err))
	return formErrors{"general": "Could not save book"}
}

func (h *Handler) parseAuthorForm(r *http.Request) (authorForm, formErrors) {
	errs := formErrors{}
	if err := r.ParseForm(); err != nil {
		errs["general"] = "Invalid form submission"
		return authorForm{}, errs
	}
	form := authorForm{Name: strings.TrimSpace(r.FormValue("name"))}
	if err := h.validate.Struct(form); err != nil {
		errs["name"] = "Name is required and must be at most 120 characters"
	}
	return form, errs
}

func (h *Handler) renderBookForm(w http.ResponseWriter, r *http.Request, form bookForm, bookID int64, errs formErrors, status int) {
	authors, err := h.service.ListAuthors(r.Context())
	if err != nil {
		h.logger.Error("list authors failed", slog.Any("error", err))
	}
	h.render(w, r, "pages/catalog/book_form.html", map[string]any{
		"Form":    form,
		"BookID":  bookID,
		"Authors": authors,
		"Errors":  errs,
	}, status)
}

func parseListRequest(r *http.Request) ListBooksRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	authorID, _ := strconv.ParseInt(q.Get("author"), 10, 64)
	year, _ := strconv.Atoi(q.Get("year"))
	return ListBooksRequest{
		Search:   strings.TrimSpace(q.Get("q")),
		AuthorID: authorID,
		Year:     year,
		Sort:     q.Get("sort"),
		Page:     page,
		PerPage:  browsePerPage,
	}
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

func (h *Handler) recordAudit(r *http.Request, action, entity, entityID string, meta map[string]any) {
	p := authz.PrincipalFromContext(r.Context())
	if err := h.audit.Record(r.Context(), shared.AuditLog{ActorID: p.UserID, Action: action, Entity: entity, EntityID: entityID, Meta: meta}); err != nil {
		h.logger.Warn("record audit entry failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	p := authz.PrincipalFromContext(r.Context())
	viewData := view.TemplateData{
		Title:       "Catalog",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Viewer:      view.Viewer{Email: p.Email, Role: authz.ViewerRoleFromContext(r.Context()).String(), Authenticated: p.Authenticated},
		Data:        data,
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
