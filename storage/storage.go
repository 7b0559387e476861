package storage

import (
	"context"
	"database/sql"
	"time"
)

type Storage struct {
	DB *sql.DB
}

func (s *Storage) InitSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS books (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		isbn TEXT NOT NULL UNIQUE,
		total_copies INTEGER NOT NULL,
		available_copies INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS borrow_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		patron_id TEXT NOT NULL,
		book_id INTEGER NOT NULL,
		borrow_date DATETIME NOT NULL,
		due_date DATETIME NOT NULL,
		return_date DATETIME,
		FOREIGN KEY (book_id) REFERENCES books(id)
	);`
	_, err := s.DB.ExecContext(ctx, query)
	return err
}

const bookColumns = "id, title, author, isbn, total_copies, available_copies"

func (s *Storage) InsertBook(ctx context.Context, b Book) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO books (title, author, isbn, total_copies, available_copies)
		 VALUES (?, ?, ?, ?, ?)`,
		b.Title, b.Author, b.ISBN, b.TotalCopies, b.AvailableCopies)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Storage) GetBookByID(ctx context.Context, id int64) (Book, error) {
	var b Book
	err := s.DB.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = ?`, id,
	).Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.TotalCopies, &b.AvailableCopies)

	return b, err
}

func (s *Storage) GetBookByISBN(ctx context.Context, isbn string) (Book, error) {
	var b Book
	err := s.DB.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE isbn = ?`, isbn,
	).Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.TotalCopies, &b.AvailableCopies)

	return b, err
}

func (s *Storage) ListBooks(ctx context.Context) ([]Book, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books ORDER BY title, author`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBooks(rows)
}

// SearchBooks matches title and author partially and case-insensitively,
// ISBN exactly. Unknown fields fall back to title-or-author.
func (s *Storage) SearchBooks(ctx context.Context, term, field string) ([]Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE `
	var args []any

	switch field {
	case "isbn":
		query += "isbn = ?"
		args = append(args, term)
	case "title":
		query += "title LIKE ? COLLATE NOCASE"
		args = append(args, "%"+term+"%")
	case "author":
		query += "author LIKE ? COLLATE NOCASE"
		args = append(args, "%"+term+"%")
	default:
		query += "(title LIKE ? COLLATE NOCASE OR author LIKE ? COLLATE NOCASE)"
		args = append(args, "%"+term+"%", "%"+term+"%")
	}

	query += " ORDER BY title, author"

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBooks(rows)
}

func scanBooks(rows *sql.Rows) ([]Book, error) {
	var list []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.TotalCopies, &b.AvailableCopies); err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

func (s *Storage) AdjustAvailability(ctx context.Context, bookID int64, delta int) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE books SET available_copies = available_copies + ? WHERE id = ?`,
		delta, bookID)
	return err
}

func (s *Storage) InsertLoan(ctx context.Context, l Loan) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO borrow_records (patron_id, book_id, borrow_date, due_date)
		 VALUES (?, ?, ?, ?)`,
		l.PatronID, l.BookID, l.BorrowDate, l.DueDate)
	return err
}

func (s *Storage) CountActiveLoans(ctx context.Context, patronID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM borrow_records WHERE patron_id = ? AND return_date IS NULL`,
		patronID,
	).Scan(&n)
	return n, err
}

// CloseLoan stamps the return date on the patron's active loan for the
// book and returns the updated record. sql.ErrNoRows means no active loan.
func (s *Storage) CloseLoan(ctx context.Context, patronID string, bookID int64, returnedAt time.Time) (Loan, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Loan{}, err
	}
	defer tx.Rollback()

	var l Loan
	err = tx.QueryRowContext(ctx,
		`SELECT id, patron_id, book_id, borrow_date, due_date
		 FROM borrow_records
		 WHERE patron_id = ? AND book_id = ? AND return_date IS NULL
		 ORDER BY borrow_date DESC LIMIT 1`,
		patronID, bookID,
	).Scan(&l.ID, &l.PatronID, &l.BookID, &l.BorrowDate, &l.DueDate)
	if err != nil {
		return Loan{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE borrow_records SET return_date = ? WHERE id = ?`,
		returnedAt, l.ID); err != nil {
		return Loan{}, err
	}

	l.ReturnDate = &returnedAt
	return l, tx.Commit()
}

// LatestLoan returns the most recent loan for the patron and book,
// returned or not.
func (s *Storage) LatestLoan(ctx context.Context, patronID string, bookID int64) (Loan, error) {
	var l Loan
	var returned sql.NullTime
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, patron_id, book_id, borrow_date, due_date, return_date
		 FROM borrow_records
		 WHERE patron_id = ? AND book_id = ?
		 ORDER BY borrow_date DESC LIMIT 1`,
		patronID, bookID,
	).Scan(&l.ID, &l.PatronID, &l.BookID, &l.BorrowDate, &l.DueDate, &returned)
	if err != nil {
		return Loan{}, err
	}

	if returned.Valid {
		l.ReturnDate = &returned.Time
	}
	return l, nil
}

func (s *Storage) ListActiveLoans(ctx context.Context, patronID string) ([]Loan, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT br.id, br.patron_id, br.book_id, b.title, br.borrow_date, br.due_date
		 FROM borrow_records br
		 JOIN books b ON b.id = br.book_id
		 WHERE br.patron_id = ? AND br.return_date IS NULL
		 ORDER BY br.due_date`,
		patronID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Loan
	for rows.Next() {
		var l Loan
		if err := rows.Scan(&l.ID, &l.PatronID, &l.BookID, &l.Title, &l.BorrowDate, &l.DueDate); err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

func (s *Storage) ListLoanHistory(ctx context.Context, patronID string) ([]Loan, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT br.id, br.patron_id, br.book_id, b.title, br.borrow_date, br.due_date, br.return_date
		 FROM borrow_records br
		 JOIN books b ON b.id = br.book_id
		 WHERE br.patron_id = ?
		 ORDER BY br.borrow_date DESC`,
		patronID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLoansWithReturn(rows)
}

func (s *Storage) ListOverdueLoans(ctx context.Context, asOf time.Time) ([]Loan, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT br.id, br.patron_id, br.book_id, b.title, br.borrow_date, br.due_date, br.return_date
		 FROM borrow_records br
		 JOIN books b ON b.id = br.book_id
		 WHERE br.return_date IS NULL AND br.due_date < ?
		 ORDER BY br.due_date`,
		asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLoansWithReturn(rows)
}

func scanLoansWithReturn(rows *sql.Rows) ([]Loan, error) {
	var list []Loan
	for rows.Next() {
		var l Loan
		var returned sql.NullTime
		if err := rows.Scan(&l.ID, &l.PatronID, &l.BookID, &l.Title, &l.BorrowDate, &l.DueDate, &returned); err != nil {
			return nil, err
		}
		if returned.Valid {
			l.ReturnDate = &returned.Time
		}
		list = append(list, l)
	}
	return list, rows.Err()
}
