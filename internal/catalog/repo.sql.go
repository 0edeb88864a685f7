package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/athenaeum-app/athenaeum/internal/platform/db"
	"github.com/athenaeum-app/athenaeum/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const bookColumns = `b.id, b.title, b.author_id, a.name, b.publication_year, b.borrower_id, COALESCE(u.email, ''), b.created_at, b.updated_at`

const bookJoins = `FROM books b
	JOIN authors a ON a.id = b.author_id
	LEFT JOIN users u ON u.id = b.borrower_id`

func bookConditions(req ListBooksRequest) ([]string, []any) {
	var conditions []string
	var args []any
	argPos := 1

	if req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(b.title_fold LIKE $%d OR a.name_fold LIKE $%d)", argPos, argPos))
		args = append(args, likePattern(req.Search))
		argPos++
	}
	if req.AuthorID > 0 {
		conditions = append(conditions, fmt.Sprintf("b.author_id = $%d", argPos))
		args = append(args, req.AuthorID)
		argPos++
	}
	if req.Year > 0 {
		conditions = append(conditions, fmt.Sprintf("b.publication_year = $%d", argPos))
		args = append(args, req.Year)
		argPos++
	}
	return conditions, args
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	clause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		clause += " AND " + conditions[i]
	}
	return clause
}

func orderBooksBy(sort string) string {
	switch sort {
	case "-title":
		return "b.title_fold DESC"
	case "year":
		return "b.publication_year ASC, b.title_fold ASC"
	case "-year":
		return "b.publication_year DESC, b.title_fold ASC"
	default:
		return "b.title_fold ASC"
	}
}

// CountBooks returns how many books match the filters.
func (r *Repository) CountBooks(ctx context.Context, req ListBooksRequest) (int, error) {
	conditions, args := bookConditions(req)
	var total int
	err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) %s %s", bookJoins, whereClause(conditions)), args...).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ListBooks returns one page of books matching the filters.
func (r *Repository) ListBooks(ctx context.Context, req ListBooksRequest, limit, offset int) ([]Book, error) {
	conditions, args := bookConditions(req)
	argPos := len(args) + 1
	query := fmt.Sprintf(`SELECT %s %s %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		bookColumns, bookJoins, whereClause(conditions), orderBooksBy(req.Sort), argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var books []Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return books, nil
}

// GetBook returns one book by id.
func (r *Repository) GetBook(ctx context.Context, id int64) (Book, error) {
	book, err := scanBook(r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s %s WHERE b.id = $1`, bookColumns, bookJoins), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Book{}, shared.ErrNotFound
		}
		return Book{}, err
	}
	return book, nil
}

// CreateBook inserts a book with its folded search title.
func (r *Repository) CreateBook(ctx context.Context, title string, authorID int64, year int) (Book, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO books (title, title_fold, author_id, publication_year, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id`, title, foldSearch(title), authorID, year).Scan(&id)
	if err != nil {
		return Book{}, err
	}
	return r.GetBook(ctx, id)
}

// UpdateBook stores new book fields and refreshes the folded title.
func (r *Repository) UpdateBook(ctx context.Context, id int64, title string, authorID int64, year int) (Book, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE books SET title = $2, title_fold = $3, author_id = $4, publication_year = $5, updated_at = NOW()
		WHERE id = $1`, id, title, foldSearch(title), authorID, year)
	if err != nil {
		return Book{}, err
	}
	if tag.RowsAffected() == 0 {
		return Book{}, shared.ErrNotFound
	}
	return r.GetBook(ctx, id)
}

// DeleteBook removes a book. Loan history cascades away with it.
func (r *Repository) DeleteBook(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListAuthors returns all authors with their book counts.
func (r *Repository) ListAuthors(ctx context.Context) ([]Author, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.name, (SELECT COUNT(*) FROM books b WHERE b.author_id = a.id), a.created_at, a.updated_at
		FROM authors a ORDER BY a.name_fold`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var authors []Author
	for rows.Next() {
		var author Author
		if err := rows.Scan(&author.ID, &author.Name, &author.BookCount, &author.CreatedAt, &author.UpdatedAt); err != nil {
			return nil, err
		}
		authors = append(authors, author)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return authors, nil
}

// GetAuthor returns one author by id.
func (r *Repository) GetAuthor(ctx context.Context, id int64) (Author, error) {
	var author Author
	err := r.pool.QueryRow(ctx, `
		SELECT a.id, a.name, (SELECT COUNT(*) FROM books b WHERE b.author_id = a.id), a.created_at, a.updated_at
		FROM authors a WHERE a.id = $1`, id).
		Scan(&author.ID, &author.Name, &author.BookCount, &author.CreatedAt, &author.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Author{}, shared.ErrNotFound
		}
		return Author{}, err
	}
	return author, nil
}

// CreateAuthor inserts an author with the folded search name.
func (r *Repository) CreateAuthor(ctx context.Context, name string) (Author, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO authors (name, name_fold, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id`, name, foldSearch(name)).Scan(&id)
	if err != nil {
		return Author{}, err
	}
	return r.GetAuthor(ctx, id)
}

// UpdateAuthor renames an author and refreshes the folded name.
func (r *Repository) UpdateAuthor(ctx context.Context, id int64, name string) (Author, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE authors SET name = $2, name_fold = $3, updated_at = NOW() WHERE id = $1`, id, name, foldSearch(name))
	if err != nil {
		return Author{}, err
	}
	if tag.RowsAffected() == 0 {
		return Author{}, shared.ErrNotFound
	}
	return r.GetAuthor(ctx, id)
}

// CountBorrowedByAuthor returns how many of an author's books are out on
// loan. Deletion is refused while any are.
func (r *Repository) CountBorrowedByAuthor(ctx context.Context, authorID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM books WHERE author_id = $1 AND borrower_id IS NOT NULL`, authorID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteAuthor removes an author. Their books cascade away with them.
func (r *Repository) DeleteAuthor(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM authors WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const libraryColumns = `l.id, l.name,
	(SELECT COUNT(*) FROM library_books lb WHERE lb.library_id = l.id),
	COALESCE(lbr.name, ''), l.created_at, l.updated_at`

const libraryJoins = `FROM libraries l LEFT JOIN librarians lbr ON lbr.library_id = l.id`

// ListLibraries returns all libraries with book counts and librarian names.
func (r *Repository) ListLibraries(ctx context.Context) ([]Library, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s %s ORDER BY l.name`, libraryColumns, libraryJoins))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var libraries []Library
	for rows.Next() {
		var library Library
		if err := rows.Scan(&library.ID, &library.Name, &library.BookCount, &library.Librarian, &library.CreatedAt, &library.UpdatedAt); err != nil {
			return nil, err
		}
		libraries = append(libraries, library)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return libraries, nil
}

// GetLibrary returns one library by id.
func (r *Repository) GetLibrary(ctx context.Context, id int64) (Library, error) {
	var library Library
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s %s WHERE l.id = $1`, libraryColumns, libraryJoins), id).
		Scan(&library.ID, &library.Name, &library.BookCount, &library.Librarian, &library.CreatedAt, &library.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Library{}, shared.ErrNotFound
		}
		return Library{}, err
	}
	return library, nil
}

// LibraryBooks returns the books held by a library.
func (r *Repository) LibraryBooks(ctx context.Context, libraryID int64) ([]Book, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s %s
		JOIN library_books lb ON lb.book_id = b.id
		WHERE lb.library_id = $1
		ORDER BY b.title_fold`, bookColumns, bookJoins), libraryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var books []Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return books, nil
}

// Counts returns catalog totals for the browse landing page.
func (r *Repository) Counts(ctx context.Context) (books, authors, libraries int, err error) {
	err = r.pool.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM books),
		(SELECT COUNT(*) FROM authors),
		(SELECT COUNT(*) FROM libraries)`).Scan(&books, &authors, &libraries)
	return books, authors, libraries, err
}

// BorrowBook opens a loan. The book row is locked so concurrent borrowers
// cannot both see it free; a book carries at most one open loan.
func (r *Repository) BorrowBook(ctx context.Context, bookID, userID int64, dueAt time.Time) (Loan, error) {
	var loan Loan
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var borrowerID *int64
		if err := tx.QueryRow(ctx, `SELECT borrower_id FROM books WHERE id = $1 FOR UPDATE`, bookID).Scan(&borrowerID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}
		if borrowerID != nil {
			return ErrBookBorrowed
		}
		if _, err := tx.Exec(ctx, `UPDATE books SET borrower_id = $2, updated_at = NOW() WHERE id = $1`, bookID, userID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO loans (book_id, user_id, borrowed_at, due_at)
			VALUES ($1, $2, NOW(), $3)
			RETURNING id, book_id, user_id, borrowed_at, due_at`, bookID, userID, dueAt).
			Scan(&loan.ID, &loan.BookID, &loan.UserID, &loan.BorrowedAt, &loan.DueAt)
	})
	if err != nil {
		return Loan{}, err
	}
	return loan, nil
}

// ReturnBook closes the open loan on a book. Only the borrower may return
// it unless manage is set.
func (r *Repository) ReturnBook(ctx context.Context, bookID, userID int64, manage bool) (Loan, error) {
	var loan Loan
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT id, book_id, user_id, borrowed_at, due_at, is_overdue
			FROM loans WHERE book_id = $1 AND returned_at IS NULL
			FOR UPDATE`, bookID).
			Scan(&loan.ID, &loan.BookID, &loan.UserID, &loan.BorrowedAt, &loan.DueAt, &loan.IsOverdue)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotBorrowed
			}
			return err
		}
		if loan.UserID != userID && !manage {
			return ErrLoanNotOwned
		}
		now := time.Now()
		if _, err := tx.Exec(ctx, `UPDATE loans SET returned_at = $2 WHERE id = $1`, loan.ID, now); err != nil {
			return err
		}
		loan.ReturnedAt = &now
		_, err = tx.Exec(ctx, `UPDATE books SET borrower_id = NULL, updated_at = NOW() WHERE id = $1`, bookID)
		return err
	})
	if err != nil {
		return Loan{}, err
	}
	return loan, nil
}

const loanColumns = `ln.id, ln.book_id, b.title, ln.user_id, u.email, ln.borrowed_at, ln.due_at, ln.returned_at, ln.is_overdue`

const loanJoins = `FROM loans ln JOIN books b ON b.id = ln.book_id JOIN users u ON u.id = ln.user_id`

// ListLoans returns loans newest first, optionally only the open ones.
func (r *Repository) ListLoans(ctx context.Context, openOnly bool) ([]Loan, error) {
	query := fmt.Sprintf(`SELECT %s %s`, loanColumns, loanJoins)
	if openOnly {
		query += ` WHERE ln.returned_at IS NULL`
	}
	query += ` ORDER BY ln.borrowed_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLoans(rows)
}

// ListOverdueLoans returns open loans past their due date.
func (r *Repository) ListOverdueLoans(ctx context.Context) ([]Loan, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s %s
		WHERE ln.returned_at IS NULL AND ln.is_overdue
		ORDER BY ln.due_at ASC`, loanColumns, loanJoins))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLoans(rows)
}

// MarkOverdueLoans flags open loans whose due date has passed. It returns
// how many loans were newly flagged.
func (r *Repository) MarkOverdueLoans(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE loans SET is_overdue = TRUE
		WHERE returned_at IS NULL AND NOT is_overdue AND due_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func collectLoans(rows pgx.Rows) ([]Loan, error) {
	var loans []Loan
	for rows.Next() {
		var loan Loan
		if err := rows.Scan(&loan.ID, &loan.BookID, &loan.BookTitle, &loan.UserID, &loan.UserEmail, &loan.BorrowedAt, &loan.DueAt, &loan.ReturnedAt, &loan.IsOverdue); err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return loans, nil
}

func scanBook(row pgx.Row) (Book, error) {
	var book Book
	if err := row.Scan(&book.ID, &book.Title, &book.AuthorID, &book.AuthorName, &book.PublicationYear, &book.BorrowerID, &book.BorrowerEmail, &book.CreatedAt, &book.UpdatedAt); err != nil {
		return Book{}, err
	}
	return book, nil
}
