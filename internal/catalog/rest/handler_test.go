package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athenaeum-app/athenaeum/internal/auth"
	"github.com/athenaeum-app/athenaeum/internal/authz"
	"github.com/athenaeum-app/athenaeum/internal/catalog"
	"github.com/athenaeum-app/athenaeum/internal/shared"
)

// ============================================================================
// STUBS
// ============================================================================

type stubRepo struct {
	books   map[int64]catalog.Book
	authors map[int64]catalog.Author
	nextID  int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		books:   make(map[int64]catalog.Book),
		authors: make(map[int64]catalog.Author),
		nextID:  1,
	}
}

func (s *stubRepo) addAuthor(name string) catalog.Author {
	a := catalog.Author{ID: s.nextID, Name: name}
	s.authors[a.ID] = a
	s.nextID++
	return a
}

func (s *stubRepo) addBook(title string, authorID int64, year int) catalog.Book {
	b := catalog.Book{ID: s.nextID, Title: title, AuthorID: authorID, PublicationYear: year}
	s.books[b.ID] = b
	s.nextID++
	return b
}

func (s *stubRepo) all() []catalog.Book {
	out := make([]catalog.Book, 0, len(s.books))
	for _, b := range s.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *stubRepo) CountBooks(ctx context.Context, req catalog.ListBooksRequest) (int, error) {
	return len(s.books), nil
}

func (s *stubRepo) ListBooks(ctx context.Context, req catalog.ListBooksRequest, limit, offset int) ([]catalog.Book, error) {
	all := s.all()
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *stubRepo) GetBook(ctx context.Context, id int64) (catalog.Book, error) {
	b, ok := s.books[id]
	if !ok {
		return catalog.Book{}, shared.ErrNotFound
	}
	return b, nil
}

func (s *stubRepo) CreateBook(ctx context.Context, title string, authorID int64, year int) (catalog.Book, error) {
	return s.addBook(title, authorID, year), nil
}

func (s *stubRepo) UpdateBook(ctx context.Context, id int64, title string, authorID int64, year int) (catalog.Book, error) {
	b, ok := s.books[id]
	if !ok {
		return catalog.Book{}, shared.ErrNotFound
	}
	b.Title = title
	b.AuthorID = authorID
	b.PublicationYear = year
	s.books[id] = b
	return b, nil
}

func (s *stubRepo) DeleteBook(ctx context.Context, id int64) error {
	if _, ok := s.books[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.books, id)
	return nil
}

func (s *stubRepo) ListAuthors(ctx context.Context) ([]catalog.Author, error) {
	out := make([]catalog.Author, 0, len(s.authors))
	for _, a := range s.authors {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubRepo) GetAuthor(ctx context.Context, id int64) (catalog.Author, error) {
	a, ok := s.authors[id]
	if !ok {
		return catalog.Author{}, shared.ErrNotFound
	}
	return a, nil
}

func (s *stubRepo) CreateAuthor(ctx context.Context, name string) (catalog.Author, error) {
	return s.addAuthor(name), nil
}

func (s *stubRepo) UpdateAuthor(ctx context.Context, id int64, name string) (catalog.Author, error) {
	a, ok := s.authors[id]
	if !ok {
		return catalog.Author{}, shared.ErrNotFound
	}
	a.Name = name
	s.authors[id] = a
	return a, nil
}

func (s *stubRepo) CountBorrowedByAuthor(ctx context.Context, authorID int64) (int, error) {
	n := 0
	for _, b := range s.books {
		if b.AuthorID == authorID && b.BorrowerID != nil {
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) DeleteAuthor(ctx context.Context, id int64) error {
	if _, ok := s.authors[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.authors, id)
	return nil
}

func (s *stubRepo) ListLibraries(ctx context.Context) ([]catalog.Library, error) {
	return nil, nil
}

func (s *stubRepo) GetLibrary(ctx context.Context, id int64) (catalog.Library, error) {
	return catalog.Library{}, shared.ErrNotFound
}

func (s *stubRepo) LibraryBooks(ctx context.Context, libraryID int64) ([]catalog.Book, error) {
	return nil, nil
}

func (s *stubRepo) Counts(ctx context.Context) (int, int, int, error) {
	return len(s.books), len(s.authors), 0, nil
}

func (s *stubRepo) BorrowBook(ctx context.Context, bookID, userID int64, dueAt time.Time) (catalog.Loan, error) {
	b, ok := s.books[bookID]
	if !ok {
		return catalog.Loan{}, shared.ErrNotFound
	}
	if b.BorrowerID != nil {
		return catalog.Loan{}, catalog.ErrBookBorrowed
	}
	b.BorrowerID = &userID
	s.books[bookID] = b
	return catalog.Loan{ID: 1, BookID: bookID, UserID: userID, DueAt: dueAt}, nil
}

func (s *stubRepo) ReturnBook(ctx context.Context, bookID, userID int64, manage bool) (catalog.Loan, error) {
	return catalog.Loan{}, catalog.ErrNotBorrowed
}

func (s *stubRepo) ListLoans(ctx context.Context, openOnly bool) ([]catalog.Loan, error) {
	return nil, nil
}

func (s *stubRepo) ListOverdueLoans(ctx context.Context) ([]catalog.Loan, error) {
	return nil, nil
}

func (s *stubRepo) MarkOverdueLoans(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type stubStore struct {
	perms map[int64][]string
}

func (s *stubStore) RoleOf(ctx context.Context, userID int64) (authz.Role, error) {
	return authz.RoleMember, nil
}

func (s *stubStore) PermissionsOf(ctx context.Context, userID int64) ([]string, error) {
	return s.perms[userID], nil
}

// ============================================================================
// HARNESS
// ============================================================================

type apiHarness struct {
	router *chi.Mux
	repo   *stubRepo
	tokens *auth.TokenIssuer
}

func newAPIHarness(t *testing.T, perms map[int64][]string) *apiHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	repo := newStubRepo()
	service := catalog.NewService(repo)
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	gate := authz.NewGate(&stubStore{perms: perms})
	guard := authz.Middleware{Gate: gate, Logger: logger, JSON: true}
	handler := NewHandler(logger, service, auth.Bearer{Tokens: tokens, Logger: logger}, guard, nil)

	router := chi.NewRouter()
	router.Route("/api/catalog", handler.MountRoutes)
	return &apiHarness{router: router, repo: repo, tokens: tokens}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func (h *apiHarness) tokenFor(t *testing.T, userID int64) string {
	t.Helper()
	token, err := h.tokens.Issue(&auth.User{ID: userID, Email: "user@example.com"}, authz.RoleMember)
	require.NoError(t, err)
	return token
}

func (h *apiHarness) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

// ============================================================================
// TESTS
// ============================================================================

func TestListBooksIsPublic(t *testing.T) {
	h := newAPIHarness(t, nil)
	author := h.repo.addAuthor("Pramoedya Ananta Toer")
	h.repo.addBook("Bumi Manusia", author.ID, 1980)

	rec := h.do(t, http.MethodGet, "/api/catalog/books", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body bookList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 1)
	assert.Equal(t, 1, body.Meta.Total)
	assert.Equal(t, "Bumi Manusia", body.Data[0].Title)
}

func TestGetBookNotFound(t *testing.T) {
	h := newAPIHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/catalog/books/404", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestCreateBookRequiresToken(t *testing.T) {
	h := newAPIHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/catalog/books", "", `{"title":"X","author_id":1,"publication_year":1980}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateBookRequiresPermission(t *testing.T) {
	h := newAPIHarness(t, map[int64][]string{7: {shared.PermCatalogBookView}})
	token := h.tokenFor(t, 7)

	rec := h.do(t, http.MethodPost, "/api/catalog/books", token, `{"title":"X","author_id":1,"publication_year":1980}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateBook(t *testing.T) {
	h := newAPIHarness(t, map[int64][]string{7: {shared.PermCatalogBookCreate}})
	author := h.repo.addAuthor("Pramoedya Ananta Toer")
	token := h.tokenFor(t, 7)

	rec := h.do(t, http.MethodPost, "/api/catalog/books", token, `{"title":"Bumi Manusia","author_id":1,"publication_year":1980}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Location"))

	var body bookResource
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Bumi Manusia", body.Title)
	assert.Equal(t, author.ID, body.Author.ID)
}

func TestCreateBookValidatesPayload(t *testing.T) {
	h := newAPIHarness(t, map[int64][]string{7: {shared.PermCatalogBookCreate}})
	token := h.tokenFor(t, 7)

	rec := h.do(t, http.MethodPost, "/api/catalog/books", token, `{"author_id":1,"publication_year":1980}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "title is required")
}

func TestCreateBookRejectsBadYear(t *testing.T) {
	h := newAPIHarness(t, map[int64][]string{7: {shared.PermCatalogBookCreate}})
	h.repo.addAuthor("Author")
	token := h.tokenFor(t, 7)

	rec := h.do(t, http.MethodPost, "/api/catalog/books", token, `{"title":"Scroll","author_id":1,"publication_year":999}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "publication_year")
}

func TestDeleteBookConflictsWhileBorrowed(t *testing.T) {
	h := newAPIHarness(t, map[int64][]string{7: {shared.PermCatalogBookDelete}})
	author := h.repo.addAuthor("Author")
	book := h.repo.addBook("Bumi Manusia", author.ID, 1980)
	borrower := int64(9)
	book.BorrowerID = &borrower
	h.repo.books[book.ID] = book
	token := h.tokenFor(t, 7)

	rec := h.do(t, http.MethodDelete, "/api/catalog/books/2", token, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteBook(t *testing.T) {
	h := newAPIHarness(t, map[int64][]string{7: {shared.PermCatalogBookDelete}})
	author := h.repo.addAuthor("Author")
	h.repo.addBook("Bumi Manusia", author.ID, 1980)
	token := h.tokenFor(t, 7)

	rec := h.do(t, http.MethodDelete, "/api/catalog/books/2", token, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, h.repo.books)
}

func TestUpdateAuthor(t *testing.T) {
	h := newAPIHarness(t, map[int64][]string{7: {shared.PermCatalogAuthorEdit}})
	h.repo.addAuthor("Pramoedya")
	token := h.tokenFor(t, 7)

	rec := h.do(t, http.MethodPut, "/api/catalog/authors/1", token, `{"name":"Pramoedya Ananta Toer"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body authorResource
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Pramoedya Ananta Toer", body.Name)
}

func TestRejectedBearerToken(t *testing.T) {
	h := newAPIHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/catalog/books", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
}
