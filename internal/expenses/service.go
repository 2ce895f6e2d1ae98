package expenses

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/storebooks/storebooks/internal/accounting"
	"github.com/storebooks/storebooks/internal/shared"
)

// ReferenceType tags journal entries originated by expense approval.
const ReferenceType = "expense"

// Service coordinates the expense lifecycle. Approval creates and
// posts the journal entry inside the same transaction as the status
// change, so a posting failure leaves the expense pending.
type Service struct {
	repo    Repository
	journal *accounting.Journal
	engine  *accounting.Engine
	audit   accounting.AuditPort
	now     func() time.Time
}

// NewService constructs the expense service.
func NewService(repo Repository, journal *accounting.Journal, engine *accounting.Engine, audit accounting.AuditPort) *Service {
	return &Service{repo: repo, journal: journal, engine: engine, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateExpense records a pending expense with the next EXP number.
func (s *Service) CreateExpense(ctx context.Context, in CreateExpenseInput) (Expense, error) {
	if err := in.Validate(); err != nil {
		return Expense{}, err
	}
	var exp Expense
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetCategory(ctx, in.Scope.ClientID, in.CategoryID); err != nil {
			return err
		}
		seq, err := tx.Accounting().NextSequence(ctx, in.Scope.ClientID, DocTypeExpense)
		if err != nil {
			return err
		}
		exp, err = tx.InsertExpense(ctx, in, FormatExpenseNumber(in.ExpenseDate, seq))
		return err
	})
	if err != nil {
		return Expense{}, err
	}
	return exp, nil
}

// Approve transitions a pending expense to approved, posting a debit
// against the category's ledger account. The status change and the
// posting share one transaction.
func (s *Service) Approve(ctx context.Context, scope accounting.Scope, expenseID, actorID int64) (Expense, error) {
	if expenseID <= 0 {
		return Expense{}, errors.New("expenses: expense id required")
	}
	var exp Expense
	var entry accounting.JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		exp, err = tx.GetExpenseForUpdate(ctx, scope, expenseID)
		if err != nil {
			return err
		}
		if exp.Status != StatusPending {
			return ErrInvalidStatus
		}
		category, err := tx.GetCategory(ctx, exp.ClientID, exp.CategoryID)
		if err != nil {
			return err
		}
		entry, err = s.journal.CreateEntryTx(ctx, tx.Accounting(), accounting.CreateEntryInput{
			Scope:         scope,
			AccountID:     category.AccountID,
			Type:          accounting.MovementDebit,
			Amount:        exp.Amount,
			Date:          exp.ExpenseDate,
			Description:   fmt.Sprintf("Expense %s", exp.Number),
			ReferenceType: ReferenceType,
			ReferenceID:   exp.RefID,
		})
		if err != nil {
			return err
		}
		entry, err = s.engine.PostTx(ctx, tx.Accounting(), scope, entry.ID, actorID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.MarkApproved(ctx, exp.ID, entry.ID, actorID, now); err != nil {
			return err
		}
		exp.Status = StatusApproved
		exp.ApprovedBy = &actorID
		exp.ApprovedAt = &now
		exp.JournalEntryID = &entry.ID
		return nil
	})
	if err != nil {
		return Expense{}, err
	}
	s.engine.AfterPost(ctx, entry, actorID)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ClientID: exp.ClientID,
			ActorID:  actorID,
			Action:   "expense.approve",
			Entity:   "expense",
			EntityID: fmt.Sprintf("%d", exp.ID),
			Meta: map[string]any{
				"number":           exp.Number,
				"amount":           exp.Amount.StringFixed(2),
				"journal_entry_id": entry.ID,
			},
			At: s.now(),
		})
	}
	return exp, nil
}

// Reject marks a pending expense rejected. No ledger movement happens.
func (s *Service) Reject(ctx context.Context, scope accounting.Scope, expenseID, actorID int64) (Expense, error) {
	if expenseID <= 0 {
		return Expense{}, errors.New("expenses: expense id required")
	}
	var exp Expense
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		exp, err = tx.GetExpenseForUpdate(ctx, scope, expenseID)
		if err != nil {
			return err
		}
		if exp.Status != StatusPending {
			return ErrInvalidStatus
		}
		now := s.now()
		if err := tx.MarkRejected(ctx, exp.ID, actorID, now); err != nil {
			return err
		}
		exp.Status = StatusRejected
		exp.ApprovedBy = &actorID
		exp.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return Expense{}, err
	}
	return exp, nil
}

// GetExpense loads a single expense within the tenant scope.
func (s *Service) GetExpense(ctx context.Context, scope accounting.Scope, expenseID int64) (Expense, error) {
	return s.repo.GetExpense(ctx, scope, expenseID)
}

// ListExpenses lists expenses, optionally filtered by status.
func (s *Service) ListExpenses(ctx context.Context, scope accounting.Scope, status Status) ([]Expense, error) {
	return s.repo.ListExpenses(ctx, scope, status)
}
