package expenses

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storebooks/storebooks/internal/accounting"
)

// Status enumerates the expense approval lifecycle.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// DocTypeExpense keys the per-tenant expense counter.
const DocTypeExpense = "EXP"

// FormatExpenseNumber renders the persisted expense number.
func FormatExpenseNumber(date time.Time, seq int64) string {
	return fmt.Sprintf("EXP-%s-%04d", date.Format("20060102"), seq)
}

// Category links an expense category to the ledger account it posts to.
type Category struct {
	ID        int64
	ClientID  int64
	Name      string
	AccountID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expense is a spending record. Approval posts exactly one journal
// entry debiting the category's account.
type Expense struct {
	ID             int64
	ClientID       int64
	StoreID        int64
	Number         string
	RefID          uuid.UUID
	CategoryID     int64
	Amount         decimal.Decimal
	Description    string
	ExpenseDate    time.Time
	Status         Status
	ApprovedBy     *int64
	ApprovedAt     *time.Time
	JournalEntryID *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Scope returns the tenancy keys of the expense.
func (e Expense) Scope() accounting.Scope {
	return accounting.Scope{ClientID: e.ClientID, StoreID: e.StoreID}
}

var (
	// ErrExpenseNotFound indicates a missing expense.
	ErrExpenseNotFound = errors.New("expenses: expense not found")
	// ErrCategoryNotFound indicates a missing category.
	ErrCategoryNotFound = errors.New("expenses: category not found")
	// ErrInvalidStatus indicates the expense is not pending.
	ErrInvalidStatus = errors.New("expenses: invalid status for operation")
)

// CreateExpenseInput groups fields required to record an expense.
type CreateExpenseInput struct {
	Scope       accounting.Scope
	CategoryID  int64
	Amount      decimal.Decimal
	Description string
	ExpenseDate time.Time
}

// Validate rejects malformed input before any state change.
func (in CreateExpenseInput) Validate() error {
	if !in.Scope.Valid() {
		return errors.New("expenses: tenant scope required")
	}
	if in.CategoryID <= 0 {
		return errors.New("expenses: category id required")
	}
	if !in.Amount.IsPositive() {
		return accounting.ErrInvalidAmount
	}
	if in.ExpenseDate.IsZero() {
		return errors.New("expenses: expense date required")
	}
	return nil
}
