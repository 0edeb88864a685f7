package catalog

import (
	"errors"
	"time"
)

// LoanPeriod is how long a borrowed book may be kept before it is due.
const LoanPeriod = 14 * 24 * time.Hour

// Author writes books.
type Author struct {
	ID        int64
	Name      string
	BookCount int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Book is one catalog title. BorrowerID is set while an open loan exists;
// AuthorName and BorrowerEmail are joined for listings.
type Book struct {
	ID              int64
	Title           string
	AuthorID        int64
	AuthorName      string
	PublicationYear int
	BorrowerID      *int64
	BorrowerEmail   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Library is a branch holding a set of books.
type Library struct {
	ID        int64
	Name      string
	BookCount int
	Librarian string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Loan records one borrowing. ReturnedAt is nil while the loan is open.
type Loan struct {
	ID         int64
	BookID     int64
	BookTitle  string
	UserID     int64
	UserEmail  string
	BorrowedAt time.Time
	DueAt      time.Time
	ReturnedAt *time.Time
	IsOverdue  bool
}

// ListBooksRequest carries the browse filters. Zero values mean "no filter".
type ListBooksRequest struct {
	Search   string
	AuthorID int64
	Year     int
	Sort     string
	Page     int
	PerPage  int
}

// ValidPublicationYear bounds publication years to 1000 through the current
// year. Both the HTML forms and the JSON API apply the same rule.
func ValidPublicationYear(year int) bool {
	return year >= 1000 && year <= time.Now().Year()
}

var (
	// ErrInvalidYear rejects publication years outside the valid range.
	ErrInvalidYear = errors.New("publication year out of range")
	// ErrBookBorrowed rejects borrowing or deleting a book with an open loan.
	ErrBookBorrowed = errors.New("book already borrowed")
	// ErrNotBorrowed rejects returning a book without an open loan.
	ErrNotBorrowed = errors.New("book is not borrowed")
	// ErrLoanNotOwned rejects returning someone else's loan without the
	// loan management permission.
	ErrLoanNotOwned = errors.New("loan belongs to another user")
)
