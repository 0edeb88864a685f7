package catalog

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athenaeum-app/athenaeum/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	books   map[int64]Book
	authors map[int64]Author
	loans   map[int64]Loan

	nextBookID   int64
	nextAuthorID int64
	nextLoanID   int64

	markedAt time.Time

	// Error injection
	countError  error
	listError   error
	borrowError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		books:        make(map[int64]Book),
		authors:      make(map[int64]Author),
		loans:        make(map[int64]Loan),
		nextBookID:   1,
		nextAuthorID: 1,
		nextLoanID:   1,
	}
}

func (m *mockRepository) addAuthor(name string) Author {
	a := Author{ID: m.nextAuthorID, Name: name}
	m.authors[a.ID] = a
	m.nextAuthorID++
	return a
}

func (m *mockRepository) addBook(title string, authorID int64, year int) Book {
	b := Book{ID: m.nextBookID, Title: title, AuthorID: authorID, PublicationYear: year}
	m.books[b.ID] = b
	m.nextBookID++
	return b
}

func (m *mockRepository) matches(b Book, req ListBooksRequest) bool {
	if req.AuthorID > 0 && b.AuthorID != req.AuthorID {
		return false
	}
	if req.Year > 0 && b.PublicationYear != req.Year {
		return false
	}
	return true
}

func (m *mockRepository) sorted(req ListBooksRequest) []Book {
	out := make([]Book, 0, len(m.books))
	for _, b := range m.books {
		if m.matches(b, req) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *mockRepository) CountBooks(ctx context.Context, req ListBooksRequest) (int, error) {
	if m.countError != nil {
		return 0, m.countError
	}
	return len(m.sorted(req)), nil
}

func (m *mockRepository) ListBooks(ctx context.Context, req ListBooksRequest, limit, offset int) ([]Book, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	all := m.sorted(req)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *mockRepository) GetBook(ctx context.Context, id int64) (Book, error) {
	b, ok := m.books[id]
	if !ok {
		return Book{}, shared.ErrNotFound
	}
	return b, nil
}

func (m *mockRepository) CreateBook(ctx context.Context, title string, authorID int64, year int) (Book, error) {
	b := m.addBook(title, authorID, year)
	return b, nil
}

func (m *mockRepository) UpdateBook(ctx context.Context, id int64, title string, authorID int64, year int) (Book, error) {
	b, ok := m.books[id]
	if !ok {
		return Book{}, shared.ErrNotFound
	}
	b.Title = title
	b.AuthorID = authorID
	b.PublicationYear = year
	m.books[id] = b
	return b, nil
}

func (m *mockRepository) DeleteBook(ctx context.Context, id int64) error {
	if _, ok := m.books[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.books, id)
	return nil
}

func (m *mockRepository) ListAuthors(ctx context.Context) ([]Author, error) {
	out := make([]Author, 0, len(m.authors))
	for _, a := range m.authors {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockRepository) GetAuthor(ctx context.Context, id int64) (Author, error) {
	a, ok := m.authors[id]
	if !ok {
		return Author{}, shared.ErrNotFound
	}
	return a, nil
}

func (m *mockRepository) CreateAuthor(ctx context.Context, name string) (Author, error) {
	return m.addAuthor(name), nil
}

func (m *mockRepository) UpdateAuthor(ctx context.Context, id int64, name string) (Author, error) {
	a, ok := m.authors[id]
	if !ok {
		return Author{}, shared.ErrNotFound
	}
	a.Name = name
	m.authors[id] = a
	return a, nil
}

func (m *mockRepository) CountBorrowedByAuthor(ctx context.Context, authorID int64) (int, error) {
	n := 0
	for _, b := range m.books {
		if b.AuthorID == authorID && b.BorrowerID != nil {
			n++
		}
	}
	return n, nil
}

func (m *mockRepository) DeleteAuthor(ctx context.Context, id int64) error {
	if _, ok := m.authors[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.authors, id)
	for bookID, b := range m.books {
		if b.AuthorID == id {
			delete(m.books, bookID)
		}
	}
	return nil
}

func (m *mockRepository) ListLibraries(ctx context.Context) ([]Library, error) {
	return nil, nil
}

func (m *mockRepository) GetLibrary(ctx context.Context, id int64) (Library, error) {
	return Library{}, shared.ErrNotFound
}

func (m *mockRepository) LibraryBooks(ctx context.Context, libraryID int64) ([]Book, error) {
	return nil, nil
}

func (m *mockRepository) Counts(ctx context.Context) (int, int, int, error) {
	return len(m.books), len(m.authors), 0, nil
}

func (m *mockRepository) BorrowBook(ctx context.Context, bookID, userID int64, dueAt time.Time) (Loan, error) {
	if m.borrowError != nil {
		return Loan{}, m.borrowError
	}
	b, ok := m.books[bookID]
	if !ok {
		return Loan{}, shared.ErrNotFound
	}
	if b.BorrowerID != nil {
		return Loan{}, ErrBookBorrowed
	}
	b.BorrowerID = &userID
	m.books[bookID] = b
	loan := Loan{ID: m.nextLoanID, BookID: bookID, UserID: userID, BorrowedAt: time.Now(), DueAt: dueAt}
	m.loans[loan.ID] = loan
	m.nextLoanID++
	return loan, nil
}

func (m *mockRepository) ReturnBook(ctx context.Context, bookID, userID int64, manage bool) (Loan, error) {
	var open *Loan
	for id := range m.loans {
		loan := m.loans[id]
		if loan.BookID == bookID && loan.ReturnedAt == nil {
			open = &loan
			break
		}
	}
	if open == nil {
		return Loan{}, ErrNotBorrowed
	}
	if open.UserID != userID && !manage {
		return Loan{}, ErrLoanNotOwned
	}
	now := time.Now()
	open.ReturnedAt = &now
	m.loans[open.ID] = *open
	b := m.books[bookID]
	b.BorrowerID = nil
	m.books[bookID] = b
	return *open, nil
}

func (m *mockRepository) ListLoans(ctx context.Context, openOnly bool) ([]Loan, error) {
	out := make([]Loan, 0, len(m.loans))
	for _, loan := range m.loans {
		if openOnly && loan.ReturnedAt != nil {
			continue
		}
		out = append(out, loan)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockRepository) ListOverdueLoans(ctx context.Context) ([]Loan, error) {
	out := make([]Loan, 0)
	for _, loan := range m.loans {
		if loan.ReturnedAt == nil && loan.IsOverdue {
			out = append(out, loan)
		}
	}
	return out, nil
}

func (m *mockRepository) MarkOverdueLoans(ctx context.Context, now time.Time) (int64, error) {
	m.markedAt = now
	var n int64
	for id, loan := range m.loans {
		if loan.ReturnedAt == nil && !loan.IsOverdue && loan.DueAt.Before(now) {
			loan.IsOverdue = true
			m.loans[id] = loan
			n++
		}
	}
	return n, nil
}

func newTestService() (*Service, *mockRepository) {
	repo := newMockRepository()
	return NewService(repo), repo
}

// ============================================================================
// BROWSE TESTS
// ============================================================================

func TestBrowseBooksPaginates(t *testing.T) {
	svc, repo := newTestService()
	author := repo.addAuthor("Pramoedya Ananta Toer")
	for i := 0; i < 25; i++ {
		repo.addBook(fmt.Sprintf("Book %02d", i), author.ID, 1980)
	}

	page, err := svc.BrowseBooks(context.Background(), ListBooksRequest{Page: 2, PerPage: 12})
	require.NoError(t, err)

	assert.Len(t, page.Books, 12)
	assert.Equal(t, 2, page.Pagination.Page)
	assert.Equal(t, 25, page.Pagination.Total)
	assert.Equal(t, 3, page.Pagination.TotalPages)
	assert.Equal(t, "Book 12", page.Books[0].Title)
}

func TestBrowseBooksClampsOutOfRangePage(t *testing.T) {
	svc, repo := newTestService()
	author := repo.addAuthor("Author")
	for i := 0; i < 25; i++ {
		repo.addBook(fmt.Sprintf("Book %02d", i), author.ID, 1980)
	}

	page, err := svc.BrowseBooks(context.Background(), ListBooksRequest{Page: 99, PerPage: 12})
	require.NoError(t, err)

	assert.Equal(t, 3, page.Pagination.Page)
	assert.Len(t, page.Books, 1)
	assert.Equal(t, "Book 24", page.Books[0].Title)
}

func TestBrowseBooksEmptyCatalog(t *testing.T) {
	svc, _ := newTestService()

	page, err := svc.BrowseBooks(context.Background(), ListBooksRequest{Page: 1, PerPage: 12})
	require.NoError(t, err)

	assert.Empty(t, page.Books)
	assert.Equal(t, 1, page.Pagination.Page)
	assert.Equal(t, 0, page.Pagination.Total)
}

func TestBrowseBooksFiltersByAuthorAndYear(t *testing.T) {
	svc, repo := newTestService()
	toer := repo.addAuthor("Pramoedya Ananta Toer")
	kartini := repo.addAuthor("R.A. Kartini")
	repo.addBook("Bumi Manusia", toer.ID, 1980)
	repo.addBook("Anak Semua Bangsa", toer.ID, 1980)
	repo.addBook("Habis Gelap Terbitlah Terang", kartini.ID, 1911)

	page, err := svc.BrowseBooks(context.Background(), ListBooksRequest{AuthorID: toer.ID, Year: 1980, Page: 1, PerPage: 12})
	require.NoError(t, err)

	assert.Len(t, page.Books, 2)
}

// ============================================================================
// BOOK TESTS
// ============================================================================

func TestCreateBookTrimsTitle(t *testing.T) {
	svc, repo := newTestService()
	author := repo.addAuthor("Author")

	book, err := svc.CreateBook(context.Background(), "  Bumi Manusia  ", author.ID, 1980)
	require.NoError(t, err)

	assert.Equal(t, "Bumi Manusia", book.Title)
}

func TestCreateBookRejectsAncientYear(t *testing.T) {
	svc, repo := newTestService()
	author := repo.addAuthor("Author")

	_, err := svc.CreateBook(context.Background(), "Scroll", author.ID, 999)
	assert.ErrorIs(t, err, ErrInvalidYear)
}

func TestCreateBookRejectsFutureYear(t *testing.T) {
	svc, repo := newTestService()
	author := repo.addAuthor("Author")

	_, err := svc.CreateBook(context.Background(), "Prophecy", author.ID, time.Now().Year()+1)
	assert.ErrorIs(t, err, ErrInvalidYear)
}

func TestCreateBookUnknownAuthor(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateBook(context.Background(), "Orphan", 404, 1980)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateBookRejectsInvalidYear(t *testing.T) {
	svc, repo := newTestService()
	author := repo.addAuthor("Author")
	book := repo.addBook("Bumi Manusia", author.ID, 1980)

	_, err := svc.UpdateBook(context.Background(), book.ID, "Bumi Manusia", author.ID, 30)
	assert.ErrorIs(t, err, ErrInvalidYear)
}

func TestDeleteBookRefusesWhileBorrowed(t *testing.T) {
	svc, repo := newTestService()
	author := repo.addAuthor("Author")
	book := repo.addBook("Bumi Manusia", author.ID, 1980)
	_, err := svc.BorrowBook(context.Background(), book.ID, 7)
	require.NoError(t, err)

	err = svc.DeleteBook(context.Background(), book.ID)
	assert.ErrorIs(t, err, ErrBookBorrowed)
}

// ============================================================================
// AUTHOR TESTS
// ============================================================================

func TestDeleteAuthorCascades(t *testing.T) {
	svc, repo := newTestService()
	author := repo.addAuthor("Author")
	repo.addBook("One", author.ID, 1980)
	repo.addBook("Two", author.ID, 1981)

	err := svc.DeleteAuthor(context.Background(), author.ID)
	require.NoError(t, err)

	assert.Empty(t, repo.books)
}

func TestDeleteAuthorRefusesWhileBooksBorrowed(t *testing.T) {
	svc, repo := newTestService()
	author := repo.addAuthor("Author")
	book := repo.addBook("One", author.ID, 1980)
	_, err := svc.BorrowBook(context.Background(), book.ID, 7)
	require.NoError(t, err)

	err = svc.DeleteAuthor(context.Background(), author.ID)
	assert.ErrorIs(t, err, ErrBookBorrowed)
}

func TestDeleteAuthorUnknown(t *testing.T) {
	svc, _ := newTestService()

	err := svc.DeleteAuthor(context.Background(), 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

// ============================================================================
// LOAN TESTS
// ============================================================================

func TestBorrowBookSetsDueDate(t *testing.T) {
	svc, repo := newTestService()
	author := repo.addAuthor("Author")
	book := repo.addBook("Bumi Manusia", author.ID, 1980)

	before := time.Now()
	loan, err := svc.BorrowBook(context.Background(), book.ID, 7)
	require.NoError(t, err)

	want := before.Add(LoanPeriod)
	assert.WithinDuration(t, want, loan.DueAt, time.Minute)
}

func TestBorrowBookAlreadyBorrowed(t *testing.T) {
	svc, repo := newTestService()
	author := repo.addAuthor("Author")
	book := repo.addBook("Bumi Manusia", author.ID, 1980)
	_, err := svc.BorrowBook(context.Background(), book.ID, 7)
	require.NoError(t, err)

	_, err = svc.BorrowBook(context.Background(), book.ID, 8)
	assert.ErrorIs(t, err, ErrBookBorrowed)
}

func TestReturnBookByBorrower(t *testing.T) {
	svc, repo := newTestService()
	author := repo.addAuthor("Author")
	book := repo.addBook("Bumi Manusia", author.ID, 1980)
	_, err := svc.BorrowBook(context.Background(), book.ID, 7)
	require.NoError(t, err)

	loan, err := svc.ReturnBook(context.Background(), book.ID, 7, false)
	require.NoError(t, err)

	assert.NotNil(t, loan.ReturnedAt)
	assert.Nil(t, repo.books[book.ID].BorrowerID)
}

func TestReturnBookRejectsStranger(t *testing.T) {
	svc, repo := newTestService()
	author := repo.addAuthor("Author")
	book := repo.addBook("Bumi Manusia", author.ID, 1980)
	_, err := svc.BorrowBook(context.Background(), book.ID, 7)
	require.NoError(t, err)

	_, err = svc.ReturnBook(context.Background(), book.ID, 8, false)
	assert.ErrorIs(t, err, ErrLoanNotOwned)
}

func TestReturnBookManagerOverride(t *testing.T) {
	svc, repo := newTestService()
	author := repo.addAuthor("Author")
	book := repo.addBook("Bumi Manusia", author.ID, 1980)
	_, err := svc.BorrowBook(context.Background(), book.ID, 7)
	require.NoError(t, err)

	loan, err := svc.ReturnBook(context.Background(), book.ID, 8, true)
	require.NoError(t, err)
	assert.NotNil(t, loan.ReturnedAt)
}

func TestReturnBookNotBorrowed(t *testing.T) {
	svc, repo := newTestService()
	author := repo.addAuthor("Author")
	book := repo.addBook("Bumi Manusia", author.ID, 1980)

	_, err := svc.ReturnBook(context.Background(), book.ID, 7, false)
	assert.ErrorIs(t, err, ErrNotBorrowed)
}

func TestMarkOverdueFlagsLateLoans(t *testing.T) {
	svc, repo := newTestService()
	author := repo.addAuthor("Author")
	late := repo.addBook("Late", author.ID, 1980)
	fresh := repo.addBook("Fresh", author.ID, 1981)
	_, err := svc.BorrowBook(context.Background(), late.ID, 7)
	require.NoError(t, err)
	_, err = svc.BorrowBook(context.Background(), fresh.ID, 8)
	require.NoError(t, err)

	// Mundurkan jatuh tempo pinjaman pertama supaya lewat batas.
	loan := repo.loans[1]
	loan.DueAt = time.Now().Add(-48 * time.Hour)
	repo.loans[1] = loan

	n, err := svc.MarkOverdue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), n)
	assert.True(t, repo.loans[1].IsOverdue)
	assert.False(t, repo.loans[2].IsOverdue)
	assert.WithinDuration(t, time.Now(), repo.markedAt, time.Minute)
}
