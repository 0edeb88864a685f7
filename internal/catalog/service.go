package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/athenaeum-app/athenaeum/internal/shared"
)

// RepositoryPort defines data access methods for the catalog.
type RepositoryPort interface {
	CountBooks(ctx context.Context, req ListBooksRequest) (int, error)
	ListBooks(ctx context.Context, req ListBooksRequest, limit, offset int) ([]Book, error)
	GetBook(ctx context.Context, id int64) (Book, error)
	CreateBook(ctx context.Context, title string, authorID int64, year int) (Book, error)
	UpdateBook(ctx context.Context, id int64, title string, authorID int64, year int) (Book, error)
	DeleteBook(ctx context.Context, id int64) error

	ListAuthors(ctx context.Context) ([]Author, error)
	GetAuthor(ctx context.Context, id int64) (Author, error)
	CreateAuthor(ctx context.Context, name string) (Author, error)
	UpdateAuthor(ctx context.Context, id int64, name string) (Author, error)
	CountBorrowedByAuthor(ctx context.Context, authorID int64) (int, error)
	DeleteAuthor(ctx context.Context, id int64) error

	ListLibraries(ctx context.Context) ([]Library, error)
	GetLibrary(ctx context.Context, id int64) (Library, error)
	LibraryBooks(ctx context.Context, libraryID int64) ([]Book, error)
	Counts(ctx context.Context) (books, authors, libraries int, err error)

	BorrowBook(ctx context.Context, bookID, userID int64, dueAt time.Time) (Loan, error)
	ReturnBook(ctx context.Context, bookID, userID int64, manage bool) (Loan, error)
	ListLoans(ctx context.Context, openOnly bool) ([]Loan, error)
	ListOverdueLoans(ctx context.Context) ([]Loan, error)
	MarkOverdueLoans(ctx context.Context, now time.Time) (int64, error)
}

// BookPage is one page of browse results.
type BookPage struct {
	Books      []Book
	Pagination shared.Pagination
}

// Service handles catalog business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// BrowseBooks returns one page of books. Out-of-range pages clamp to the
// last page rather than erroring.
func (s *Service) BrowseBooks(ctx context.Context, req ListBooksRequest) (BookPage, error) {
	total, err := s.repo.CountBooks(ctx, req)
	if err != nil {
		return BookPage{}, err
	}
	pagination := shared.NewPagination(req.Page, req.PerPage, total)
	books, err := s.repo.ListBooks(ctx, req, pagination.PerPage, pagination.Offset())
	if err != nil {
		return BookPage{}, err
	}
	return BookPage{Books: books, Pagination: pagination}, nil
}

// GetBook returns one book.
func (s *Service) GetBook(ctx context.Context, id int64) (Book, error) {
	return s.repo.GetBook(ctx, id)
}

// CreateBook validates the fields and inserts a book.
func (s *Service) CreateBook(ctx context.Context, title string, authorID int64, year int) (Book, error) {
	title = strings.TrimSpace(title)
	if !ValidPublicationYear(year) {
		return Book{}, ErrInvalidYear
	}
	if _, err := s.repo.GetAuthor(ctx, authorID); err != nil {
		return Book{}, err
	}
	return s.repo.CreateBook(ctx, title, authorID, year)
}

// UpdateBook validates the fields and stores them.
func (s *Service) UpdateBook(ctx context.Context, id int64, title string, authorID int64, year int) (Book, error) {
	title = strings.TrimSpace(title)
	if !ValidPublicationYear(year) {
		return Book{}, ErrInvalidYear
	}
	if _, err := s.repo.GetAuthor(ctx, authorID); err != nil {
		return Book{}, err
	}
	return s.repo.UpdateBook(ctx, id, title, authorID, year)
}

// DeleteBook removes a book unless it is out on loan.
func (s *Service) DeleteBook(ctx context.Context, id int64) error {
	book, err := s.repo.GetBook(ctx, id)
	if err != nil {
		return err
	}
	if book.BorrowerID != nil {
		return ErrBookBorrowed
	}
	return s.repo.DeleteBook(ctx, id)
}

// ListAuthors returns all authors.
func (s *Service) ListAuthors(ctx context.Context) ([]Author, error) {
	return s.repo.ListAuthors(ctx)
}

// GetAuthor returns one author.
func (s *Service) GetAuthor(ctx context.Context, id int64) (Author, error) {
	return s.repo.GetAuthor(ctx, id)
}

// CreateAuthor inserts an author.
func (s *Service) CreateAuthor(ctx context.Context, name string) (Author, error) {
	return s.repo.CreateAuthor(ctx, strings.TrimSpace(name))
}

// UpdateAuthor renames an author.
func (s *Service) UpdateAuthor(ctx context.Context, id int64, name string) (Author, error) {
	return s.repo.UpdateAuthor(ctx, id, strings.TrimSpace(name))
}

// DeleteAuthor removes an author and cascades their books, refusing while
// any of those books are out on loan.
func (s *Service) DeleteAuthor(ctx context.Context, id int64) error {
	if _, err := s.repo.GetAuthor(ctx, id); err != nil {
		return err
	}
	borrowed, err := s.repo.CountBorrowedByAuthor(ctx, id)
	if err != nil {
		return err
	}
	if borrowed > 0 {
		return ErrBookBorrowed
	}
	return s.repo.DeleteAuthor(ctx, id)
}

// ListLibraries returns all libraries.
func (s *Service) ListLibraries(ctx context.Context) ([]Library, error) {
	return s.repo.ListLibraries(ctx)
}

// GetLibrary returns one library.
func (s *Service) GetLibrary(ctx context.Context, id int64) (Library, error) {
	return s.repo.GetLibrary(ctx, id)
}

// LibraryBooks returns the books held by a library.
func (s *Service) LibraryBooks(ctx context.Context, libraryID int64) ([]Book, error) {
	return s.repo.LibraryBooks(ctx, libraryID)
}

// Counts returns catalog totals for the browse landing page.
func (s *Service) Counts(ctx context.Context) (books, authors, libraries int, err error) {
	return s.repo.Counts(ctx)
}

// BorrowBook opens a fourteen-day loan for the user.
func (s *Service) BorrowBook(ctx context.Context, bookID, userID int64) (Loan, error) {
	return s.repo.BorrowBook(ctx, bookID, userID, time.Now().Add(LoanPeriod))
}

// ReturnBook closes the open loan on a book. manage lets loan managers
// return on behalf of the borrower.
func (s *Service) ReturnBook(ctx context.Context, bookID, userID int64, manage bool) (Loan, error) {
	return s.repo.ReturnBook(ctx, bookID, userID, manage)
}

// Loans returns loans newest first, optionally only the open ones.
func (s *Service) Loans(ctx context.Context, openOnly bool) ([]Loan, error) {
	return s.repo.ListLoans(ctx, openOnly)
}

// OverdueLoans returns open loans past their due date.
func (s *Service) OverdueLoans(ctx context.Context) ([]Loan, error) {
	return s.repo.ListOverdueLoans(ctx)
}

// MarkOverdue flags open loans past their due date and reports how many
// were newly flagged. The worker runs this on a schedule.
func (s *Service) MarkOverdue(ctx context.Context) (int64, error) {
	return s.repo.MarkOverdueLoans(ctx, time.Now())
}
