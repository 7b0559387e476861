package payment

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"library-service/config"
)

// Error is a gateway rejection: a validation failure or a decline, as
// opposed to an internal fault.
type Error string

func (e Error) Error() string { return string(e) }

const (
	StatusCompleted = "completed"
	StatusRefunded  = "refunded"
	StatusNotFound  = "not_found"
)

type Transaction struct {
	ID          string  `json:"transaction_id"`
	PatronID    string  `json:"patron_id"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Timestamp   int64   `json:"timestamp"`
}

type Status struct {
	TransactionID string  `json:"transaction_id"`
	Status        string  `json:"status"`
	Amount        float64 `json:"amount"`
	Timestamp     int64   `json:"timestamp"`
	Message       string  `json:"message"`
}

// Gateway simulates an external payment provider. Transactions it has
// processed are kept in memory; well-formed ids it has never seen still
// verify as completed, the way the provider sandbox behaves.
type Gateway struct {
	MaxAmount float64
	Now       func() time.Time

	mu           sync.Mutex
	transactions map[string]Transaction
}

func NewGateway() *Gateway {
	return &Gateway{
		MaxAmount:    config.MaxPaymentAmount,
		Now:          time.Now,
		transactions: make(map[string]Transaction),
	}
}

func (g *Gateway) ProcessPayment(patronID string, amount float64, description string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, Error("Invalid amount.")
	}
	if amount > g.MaxAmount {
		return Transaction{}, Error("Amount exceeds limit.")
	}
	if !validPatronID(patronID) {
		return Transaction{}, Error("Invalid patron ID.")
	}

	now := g.Now()
	txn := Transaction{
		ID:          fmt.Sprintf("txn_%s_%d", patronID, now.Unix()),
		PatronID:    patronID,
		Amount:      amount,
		Description: description,
		Status:      StatusCompleted,
		Timestamp:   now.Unix(),
	}

	g.mu.Lock()
	g.transactions[txn.ID] = txn
	g.mu.Unlock()

	return txn, nil
}

func (g *Gateway) RefundPayment(transactionID string, amount float64) (string, error) {
	if transactionID == "" || !strings.HasPrefix(transactionID, "txn_") {
		return "", Error("Invalid transaction ID.")
	}
	if amount <= 0 {
		return "", Error("Invalid refund amount.")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if txn, ok := g.transactions[transactionID]; ok {
		if txn.Status == StatusRefunded {
			return "", Error("Transaction already refunded.")
		}
		if amount > txn.Amount {
			return "", Error("Refund amount exceeds original payment.")
		}
		txn.Status = StatusRefunded
		g.transactions[transactionID] = txn
	}

	return fmt.Sprintf("Refund of $%.2f processed successfully.", amount), nil
}

func (g *Gateway) VerifyPayment(transactionID string) Status {
	if !strings.HasPrefix(transactionID, "txn_") {
		return Status{
			TransactionID: transactionID,
			Status:        StatusNotFound,
			Message:       "Transaction not found.",
		}
	}

	g.mu.Lock()
	txn, ok := g.transactions[transactionID]
	g.mu.Unlock()

	if ok {
		return Status{
			TransactionID: txn.ID,
			Status:        txn.Status,
			Amount:        txn.Amount,
			Timestamp:     txn.Timestamp,
			Message:       "Transaction verified.",
		}
	}

	return Status{
		TransactionID: transactionID,
		Status:        StatusCompleted,
		Amount:        0.0,
		Timestamp:     g.Now().Unix(),
		Message:       "Transaction verified.",
	}
}

func validPatronID(id string) bool {
	if len(id) != 6 {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
