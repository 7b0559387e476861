package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"library-service/config"
	"library-service/payment"
	"library-service/storage"

	"github.com/sirupsen/logrus"
)

type Storage interface {
	InsertBook(ctx context.Context, b storage.Book) (int64, error)
	GetBookByID(ctx context.Context, id int64) (storage.Book, error)
	GetBookByISBN(ctx context.Context, isbn string) (storage.Book, error)
	ListBooks(ctx context.Context) ([]storage.Book, error)
	SearchBooks(ctx context.Context, term, field string) ([]storage.Book, error)
	AdjustAvailability(ctx context.Context, bookID int64, delta int) error
	InsertLoan(ctx context.Context, l storage.Loan) error
	CountActiveLoans(ctx context.Context, patronID string) (int, error)
	CloseLoan(ctx context.Context, patronID string, bookID int64, returnedAt time.Time) (storage.Loan, error)
	LatestLoan(ctx context.Context, patronID string, bookID int64) (storage.Loan, error)
	ListActiveLoans(ctx context.Context, patronID string) ([]storage.Loan, error)
	ListLoanHistory(ctx context.Context, patronID string) ([]storage.Loan, error)
	ListOverdueLoans(ctx context.Context, asOf time.Time) ([]storage.Loan, error)
}

type PaymentGateway interface {
	ProcessPayment(patronID string, amount float64, description string) (payment.Transaction, error)
	RefundPayment(transactionID string, amount float64) (string, error)
	VerifyPayment(transactionID string) payment.Status
}

type Service struct {
	Store   Storage
	Gateway PaymentGateway
	Log     *logrus.Logger

	// Now is the clock used for due dates and fee math. Defaults to
	// time.Now when unset.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

type AddBookParams struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn"`
	TotalCopies int    `json:"total_copies"`
}

func (s *Service) AddBook(ctx context.Context, p AddBookParams) (string, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return "", ValidationError("Title is required.")
	}
	if utf8.RuneCountInString(title) > 200 {
		return "", ValidationError("Title must be less than 200 characters.")
	}

	author := strings.TrimSpace(p.Author)
	if author == "" {
		return "", ValidationError("Author is required.")
	}
	if utf8.RuneCountInString(author) > 100 {
		return "", ValidationError("Author must be less than 100 characters.")
	}

	if len(p.ISBN) != 13 || !isDigits(p.ISBN) {
		return "", ValidationError("ISBN must be exactly 13 digits.")
	}
	if p.TotalCopies <= 0 {
		return "", ValidationError("Total copies must be a positive integer.")
	}

	msg := fmt.Sprintf("Book %q has been successfully added to the catalog.", title)

	// Re-adding a known ISBN is a no-op reported as success.
	if _, err := s.Store.GetBookByISBN(ctx, p.ISBN); err == nil {
		return msg, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	if _, err := s.Store.InsertBook(ctx, storage.Book{
		Title:           title,
		Author:          author,
		ISBN:            p.ISBN,
		TotalCopies:     p.TotalCopies,
		AvailableCopies: p.TotalCopies,
	}); err != nil {
		return "", err
	}

	return msg, nil
}

func (s *Service) GetBook(ctx context.Context, id int64) (storage.Book, error) {
	book, err := s.Store.GetBookByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Book{}, NotFoundError("Book not found.")
	}
	return book, err
}

func (s *Service) ListBooks(ctx context.Context) ([]storage.Book, error) {
	return s.Store.ListBooks(ctx)
}

func (s *Service) SearchBooks(ctx context.Context, term, searchType string) ([]storage.Book, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []storage.Book{}, nil
	}
	return s.Store.SearchBooks(ctx, term, searchType)
}

func (s *Service) BorrowBook(ctx context.Context, patronID string, bookID int64) (string, error) {
	if !validPatronID(patronID) {
		return "", ValidationError(msgInvalidPatron)
	}

	book, err := s.Store.GetBookByID(ctx, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", NotFoundError("Book not found.")
	}
	if err != nil {
		return "", err
	}
	if book.AvailableCopies <= 0 {
		return "", ConflictError("This book is currently not available.")
	}

	active, err := s.Store.CountActiveLoans(ctx, patronID)
	if err != nil {
		return "", err
	}
	if active >= config.MaxActiveLoans {
		return "", ConflictError(fmt.Sprintf(
			"You have reached the maximum borrowing limit of %d books.", config.MaxActiveLoans))
	}

	now := s.now()
	due := now.AddDate(0, 0, config.LoanPeriodDays)

	if err := s.Store.InsertLoan(ctx, storage.Loan{
		PatronID:   patronID,
		BookID:     bookID,
		BorrowDate: now,
		DueDate:    due,
	}); err != nil {
		return "", err
	}
	if err := s.Store.AdjustAvailability(ctx, bookID, -1); err != nil {
		return "", err
	}

	s.Log.WithFields(logrus.Fields{
		"patron_id": patronID,
		"book_id":   bookID,
		"due_date":  due.Format("2006-01-02"),
	}).Info("book borrowed")

	return fmt.Sprintf("Successfully borrowed %q. Due date: %s.", book.Title, due.Format("2006-01-02")), nil
}

func (s *Service) ReturnBook(ctx context.Context, patronID string, bookID int64) (string, error) {
	if !validPatronID(patronID) {
		return "", ValidationError(msgInvalidPatron)
	}

	book, err := s.Store.GetBookByID(ctx, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", NotFoundError("Book not found.")
	}
	if err != nil {
		return "", err
	}

	now := s.now()
	loan, err := s.Store.CloseLoan(ctx, patronID, bookID, now)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ConflictError("No active borrow record found for this patron and book.")
	}
	if err != nil {
		return "", err
	}

	// Availability never climbs above the owned copies.
	fresh, err := s.Store.GetBookByID(ctx, bookID)
	if err != nil {
		return "", err
	}
	if fresh.AvailableCopies < fresh.TotalCopies {
		if err := s.Store.AdjustAvailability(ctx, bookID, +1); err != nil {
			return "", err
		}
	}

	overdue := daysOverdue(loan.DueDate, now)
	if overdue > 0 {
		return fmt.Sprintf("Returned %q. %d day(s) overdue. Late fee: $%.2f.",
			book.Title, overdue, lateFee(overdue)), nil
	}
	return fmt.Sprintf("Returned %q on time. No late fee.", book.Title), nil
}

// FeeQuote is a late-fee calculation. Invalid input and missing records
// degrade into the Status field rather than erroring, so a quote is
// always available.
type FeeQuote struct {
	FeeAmount   float64 `json:"fee_amount"`
	DaysOverdue int     `json:"days_overdue"`
	Status      string  `json:"status"`
}

func (s *Service) LateFee(ctx context.Context, patronID string, bookID int64) (FeeQuote, error) {
	if !validPatronID(patronID) {
		return FeeQuote{Status: msgInvalidPatron}, nil
	}

	if _, err := s.Store.GetBookByID(ctx, bookID); errors.Is(err, sql.ErrNoRows) {
		return FeeQuote{Status: "Book not found."}, nil
	} else if err != nil {
		return FeeQuote{}, err
	}

	loan, err := s.Store.LatestLoan(ctx, patronID, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return FeeQuote{Status: "No active/known borrow record or due date unavailable."}, nil
	}
	if err != nil {
		return FeeQuote{}, err
	}

	asOf := s.now()
	status := "Not yet returned; fee calculated as of today."
	if loan.ReturnDate != nil {
		asOf = *loan.ReturnDate
		status = "Returned; historical fee at return date calculated."
	}

	overdue := daysOverdue(loan.DueDate, asOf)
	return FeeQuote{
		FeeAmount:   lateFee(overdue),
		DaysOverdue: overdue,
		Status:      status,
	}, nil
}

type LoanStatus struct {
	BookID      int64   `json:"book_id"`
	Title       string  `json:"title"`
	DueDate     string  `json:"due_date"`
	DaysOverdue int     `json:"days_overdue"`
	LateFee     float64 `json:"late_fee"`
}

type HistoryEntry struct {
	BookID     int64  `json:"book_id"`
	Title      string `json:"title"`
	BorrowDate string `json:"borrow_date"`
	DueDate    string `json:"due_date"`
	ReturnDate string `json:"return_date,omitempty"`
}

type PatronReport struct {
	PatronID             string         `json:"patron_id"`
	CurrentlyBorrowed    []LoanStatus   `json:"currently_borrowed"`
	TotalLateFeesOwed    float64        `json:"total_late_fees_owed"`
	NumCurrentlyBorrowed int            `json:"num_currently_borrowed"`
	History              []HistoryEntry `json:"history"`
	Status               string         `json:"status"`
}

func (s *Service) GetPatronReport(ctx context.Context, patronID string) (PatronReport, error) {
	report := PatronReport{
		PatronID:          patronID,
		CurrentlyBorrowed: []LoanStatus{},
		History:           []HistoryEntry{},
	}

	if !validPatronID(patronID) {
		report.Status = msgInvalidPatron
		return report, nil
	}

	active, err := s.Store.ListActiveLoans(ctx, patronID)
	if err != nil {
		return PatronReport{}, err
	}

	today := s.now()
	var total float64
	for _, l := range active {
		overdue := daysOverdue(l.DueDate, today)
		fee := lateFee(overdue)
		total += fee

		report.CurrentlyBorrowed = append(report.CurrentlyBorrowed, LoanStatus{
			BookID:      l.BookID,
			Title:       l.Title,
			DueDate:     l.DueDate.Format("2006-01-02"),
			DaysOverdue: overdue,
			LateFee:     fee,
		})
	}

	history, err := s.Store.ListLoanHistory(ctx, patronID)
	if err != nil {
		return PatronReport{}, err
	}
	for _, l := range history {
		entry := HistoryEntry{
			BookID:     l.BookID,
			Title:      l.Title,
			BorrowDate: l.BorrowDate.Format("2006-01-02"),
			DueDate:    l.DueDate.Format("2006-01-02"),
		}
		if l.ReturnDate != nil {
			entry.ReturnDate = l.ReturnDate.Format("2006-01-02")
		}
		report.History = append(report.History, entry)
	}

	report.TotalLateFeesOwed = round2(total)
	report.NumCurrentlyBorrowed = len(report.CurrentlyBorrowed)
	report.Status = "Complete"
	return report, nil
}

type PaymentReceipt struct {
	Message       string `json:"message"`
	TransactionID string `json:"transaction_id"`
}

func (s *Service) PayLateFees(ctx context.Context, patronID string, bookID int64) (PaymentReceipt, error) {
	if !validPatronID(patronID) {
		return PaymentReceipt{}, ValidationError(msgInvalidPatron)
	}

	quote, err := s.LateFee(ctx, patronID, bookID)
	if err != nil {
		return PaymentReceipt{}, err
	}
	if quote.FeeAmount <= 0 {
		return PaymentReceipt{}, ConflictError("No late fees owed for this book.")
	}

	book, err := s.Store.GetBookByID(ctx, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return PaymentReceipt{}, NotFoundError("Book not found.")
	}
	if err != nil {
		return PaymentReceipt{}, err
	}

	txn, err := s.Gateway.ProcessPayment(patronID, quote.FeeAmount,
		fmt.Sprintf("Late fees for '%s'", book.Title))
	if err != nil {
		s.Log.WithFields(logrus.Fields{
			"patron_id": patronID,
			"book_id":   bookID,
		}).WithError(err).Warn("late fee payment rejected")
		return PaymentReceipt{}, err
	}

	return PaymentReceipt{
		Message:       fmt.Sprintf("Payment of $%.2f processed successfully.", txn.Amount),
		TransactionID: txn.ID,
	}, nil
}

func (s *Service) RefundLateFeePayment(ctx context.Context, transactionID string, amount float64) (string, error) {
	if transactionID == "" || !strings.HasPrefix(transactionID, "txn_") {
		return "", ValidationError("Invalid transaction ID.")
	}
	if amount <= 0 {
		return "", ValidationError("Refund amount must be greater than 0.")
	}
	if amount > config.MaxLateFee {
		return "", ValidationError("Refund amount exceeds maximum late fee.")
	}

	return s.Gateway.RefundPayment(transactionID, amount)
}

func (s *Service) VerifyPayment(transactionID string) payment.Status {
	return s.Gateway.VerifyPayment(transactionID)
}

type OverdueSummary struct {
	ScannedAt    string  `json:"scanned_at"`
	OverdueLoans int     `json:"overdue_loans"`
	AccruedFees  float64 `json:"accrued_fees"`
}

// OverdueSweep scans active loans past due and reports the accrued
// fees. Run daily by cron when enabled, and on demand over HTTP.
func (s *Service) OverdueSweep(ctx context.Context) (OverdueSummary, error) {
	now := s.now()

	loans, err := s.Store.ListOverdueLoans(ctx, now)
	if err != nil {
		return OverdueSummary{}, err
	}

	var total float64
	for _, l := range loans {
		fee := lateFee(daysOverdue(l.DueDate, now))
		total += fee

		s.Log.WithFields(logrus.Fields{
			"patron_id": l.PatronID,
			"book_id":   l.BookID,
			"due_date":  l.DueDate.Format("2006-01-02"),
			"late_fee":  fee,
		}).Info("overdue loan")
	}

	summary := OverdueSummary{
		ScannedAt:    now.Format(time.RFC3339),
		OverdueLoans: len(loans),
		AccruedFees:  round2(total),
	}
	s.Log.Infof("Overdue sweep found %d loan(s), $%.2f accrued", summary.OverdueLoans, summary.AccruedFees)
	return summary, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validPatronID(id string) bool {
	return len(id) == 6 && isDigits(id)
}
