package invoices

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storebooks/storebooks/internal/accounting"
)

// Status enumerates the invoice payment lifecycle.
type Status string

const (
	StatusUnpaid Status = "UNPAID"
	StatusPaid   Status = "PAID"
)

// DocTypeInvoice keys the per-tenant invoice counter.
const DocTypeInvoice = "INV"

// FormatInvoiceNumber renders the persisted invoice number.
func FormatInvoiceNumber(date time.Time, seq int64) string {
	return fmt.Sprintf("INV-%s-%04d", date.Format("20060102"), seq)
}

// Invoice is a receivable document. Recording its payment posts exactly
// one journal entry debiting the store's cash account.
type Invoice struct {
	ID             int64
	ClientID       int64
	StoreID        int64
	Number         string
	RefID          uuid.UUID
	CustomerName   string
	Total          decimal.Decimal
	InvoiceDate    time.Time
	Status         Status
	PaidBy         *int64
	PaidAt         *time.Time
	JournalEntryID *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Scope returns the tenancy keys of the invoice.
func (i Invoice) Scope() accounting.Scope {
	return accounting.Scope{ClientID: i.ClientID, StoreID: i.StoreID}
}

var (
	// ErrInvoiceNotFound indicates a missing invoice.
	ErrInvoiceNotFound = errors.New("invoices: invoice not found")
	// ErrAlreadyPaid indicates the invoice payment was recorded before.
	ErrAlreadyPaid = errors.New("invoices: invoice already paid")
	// ErrNoCashAccount indicates the store has no configured cash account.
	ErrNoCashAccount = errors.New("invoices: cash account not configured for store")
)

// CreateInvoiceInput groups fields required to raise an invoice.
type CreateInvoiceInput struct {
	Scope        accounting.Scope
	CustomerName string
	Total        decimal.Decimal
	InvoiceDate  time.Time
}

// Validate rejects malformed input before any state change.
func (in CreateInvoiceInput) Validate() error {
	if !in.Scope.Valid() {
		return errors.New("invoices: tenant scope required")
	}
	if in.CustomerName == "" {
		return errors.New("invoices: customer name required")
	}
	if !in.Total.IsPositive() {
		return accounting.ErrInvalidAmount
	}
	if in.InvoiceDate.IsZero() {
		return errors.New("invoices: invoice date required")
	}
	return nil
}
