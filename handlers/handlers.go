package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"library-service/library"
	"library-service/payment"
	"library-service/storage"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type LibraryService interface {
	AddBook(ctx context.Context, p library.AddBookParams) (string, error)
	GetBook(ctx context.Context, id int64) (storage.Book, error)
	ListBooks(ctx context.Context) ([]storage.Book, error)
	SearchBooks(ctx context.Context, term, searchType string) ([]storage.Book, error)
	BorrowBook(ctx context.Context, patronID string, bookID int64) (string, error)
	ReturnBook(ctx context.Context, patronID string, bookID int64) (string, error)
	LateFee(ctx context.Context, patronID string, bookID int64) (library.FeeQuote, error)
	GetPatronReport(ctx context.Context, patronID string) (library.PatronReport, error)
	PayLateFees(ctx context.Context, patronID string, bookID int64) (library.PaymentReceipt, error)
	RefundLateFeePayment(ctx context.Context, transactionID string, amount float64) (string, error)
	VerifyPayment(transactionID string) payment.Status
	OverdueSweep(ctx context.Context) (library.OverdueSummary, error)
}

type Handler struct {
	Library LibraryService
	Log     *logrus.Logger
}

type messageResponse struct {
	Message string `json:"message"`
}

type loanRequest struct {
	PatronID string `json:"patron_id"`
	BookID   int64  `json:"book_id"`
}

func (h *Handler) AddBook(w http.ResponseWriter, r *http.Request) {
	var params library.AddBookParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	msg, err := h.Library.AddBook(r.Context(), params)
	if err != nil {
		h.respondError(w, err, "adding book")
		return
	}

	h.writeJSON(w, http.StatusCreated, messageResponse{Message: msg})
}

func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	searchType := r.URL.Query().Get("type")

	var (
		books []storage.Book
		err   error
	)
	if term == "" && searchType == "" {
		books, err = h.Library.ListBooks(r.Context())
	} else {
		books, err = h.Library.SearchBooks(r.Context(), term, searchType)
	}
	if err != nil {
		h.respondError(w, err, "listing books")
		return
	}

	if books == nil {
		books = []storage.Book{}
	}
	h.writeJSON(w, http.StatusOK, books)
}

func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid book id", http.StatusBadRequest)
		return
	}

	book, err := h.Library.GetBook(r.Context(), bookID)
	if err != nil {
		h.respondError(w, err, "fetching book")
		return
	}

	h.writeJSON(w, http.StatusOK, book)
}

func (h *Handler) BorrowBook(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	msg, err := h.Library.BorrowBook(r.Context(), req.PatronID, req.BookID)
	if err != nil {
		h.respondError(w, err, "borrowing book")
		return
	}

	h.writeJSON(w, http.StatusCreated, messageResponse{Message: msg})
}

func (h *Handler) ReturnBook(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	msg, err := h.Library.ReturnBook(r.Context(), req.PatronID, req.BookID)
	if err != nil {
		h.respondError(w, err, "returning book")
		return
	}

	h.writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

func (h *Handler) LateFee(w http.ResponseWriter, r *http.Request) {
	patronID := chi.URLParam(r, "patronID")
	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid book id", http.StatusBadRequest)
		return
	}

	quote, err := h.Library.LateFee(r.Context(), patronID, bookID)
	if err != nil {
		h.respondError(w, err, "calculating late fee")
		return
	}

	h.writeJSON(w, http.StatusOK, quote)
}

func (h *Handler) PatronReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.Library.GetPatronReport(r.Context(), chi.URLParam(r, "patronID"))
	if err != nil {
		h.respondError(w, err, "building patron report")
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) PayLateFees(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	receipt, err := h.Library.PayLateFees(r.Context(), req.PatronID, req.BookID)
	if err != nil {
		h.respondError(w, err, "paying late fees")
		return
	}

	h.writeJSON(w, http.StatusOK, receipt)
}

type refundRequest struct {
	Amount float64 `json:"amount"`
}

func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	msg, err := h.Library.RefundLateFeePayment(r.Context(), chi.URLParam(r, "transactionID"), req.Amount)
	if err != nil {
		h.respondError(w, err, "refunding payment")
		return
	}

	h.writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	status := h.Library.VerifyPayment(chi.URLParam(r, "transactionID"))
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) OverdueSweep(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Library.OverdueSweep(r.Context())
	if err != nil {
		h.respondError(w, err, "running overdue sweep")
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Log.WithError(err).Error("encoding response")
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error, op string) {
	var (
		validation library.ValidationError
		notFound   library.NotFoundError
		conflict   library.ConflictError
		gateway    payment.Error
	)

	switch {
	case errors.As(err, &validation):
		http.Error(w, validation.Error(), http.StatusBadRequest)
	case errors.As(err, &notFound):
		http.Error(w, notFound.Error(), http.StatusNotFound)
	case errors.As(err, &conflict):
		http.Error(w, conflict.Error(), http.StatusConflict)
	case errors.As(err, &gateway):
		http.Error(w, gateway.Error(), http.StatusPaymentRequired)
	default:
		h.Log.WithError(err).Error(op)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
