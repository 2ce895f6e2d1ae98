package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/storebooks/storebooks/internal/accounting"
	"github.com/storebooks/storebooks/internal/shared"
)

// ReferenceType tags journal entries originated by invoice payment.
const ReferenceType = "invoice"

// Service coordinates the invoice lifecycle. Recording a payment
// creates and posts the journal entry inside the same transaction as
// the status change, so a posting failure leaves the invoice unpaid.
type Service struct {
	repo    Repository
	journal *accounting.Journal
	engine  *accounting.Engine
	audit   accounting.AuditPort
	now     func() time.Time
}

// NewService constructs the invoice service.
func NewService(repo Repository, journal *accounting.Journal, engine *accounting.Engine, audit accounting.AuditPort) *Service {
	return &Service{repo: repo, journal: journal, engine: engine, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateInvoice raises an unpaid invoice with the next INV number.
func (s *Service) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (Invoice, error) {
	if err := in.Validate(); err != nil {
		return Invoice{}, err
	}
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.Accounting().NextSequence(ctx, in.Scope.ClientID, DocTypeInvoice)
		if err != nil {
			return err
		}
		inv, err = tx.InsertInvoice(ctx, in, FormatInvoiceNumber(in.InvoiceDate, seq))
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// RecordPayment marks the invoice paid and posts a debit against the
// store's cash account. The status change and the posting share one
// transaction, so either both commit or neither does.
func (s *Service) RecordPayment(ctx context.Context, scope accounting.Scope, invoiceID, actorID int64) (Invoice, error) {
	if invoiceID <= 0 {
		return Invoice{}, errors.New("invoices: invoice id required")
	}
	var inv Invoice
	var entry accounting.JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, scope, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == StatusPaid {
			return ErrAlreadyPaid
		}
		cashAccountID, err := tx.GetCashAccountID(ctx, scope)
		if err != nil {
			return err
		}
		entry, err = s.journal.CreateEntryTx(ctx, tx.Accounting(), accounting.CreateEntryInput{
			Scope:         scope,
			AccountID:     cashAccountID,
			Type:          accounting.MovementDebit,
			Amount:        inv.Total,
			Date:          s.now(),
			Description:   fmt.Sprintf("Payment for %s", inv.Number),
			ReferenceType: ReferenceType,
			ReferenceID:   inv.RefID,
		})
		if err != nil {
			return err
		}
		entry, err = s.engine.PostTx(ctx, tx.Accounting(), scope, entry.ID, actorID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.MarkPaid(ctx, inv.ID, entry.ID, actorID, now); err != nil {
			return err
		}
		inv.Status = StatusPaid
		inv.PaidBy = &actorID
		inv.PaidAt = &now
		inv.JournalEntryID = &entry.ID
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.engine.AfterPost(ctx, entry, actorID)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ClientID: inv.ClientID,
			ActorID:  actorID,
			Action:   "invoice.pay",
			Entity:   "invoice",
			EntityID: fmt.Sprintf("%d", inv.ID),
			Meta: map[string]any{
				"number":           inv.Number,
				"total":            inv.Total.StringFixed(2),
				"journal_entry_id": entry.ID,
			},
			At: s.now(),
		})
	}
	return inv, nil
}

// GetInvoice loads a single invoice within the tenant scope.
func (s *Service) GetInvoice(ctx context.Context, scope accounting.Scope, invoiceID int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, scope, invoiceID)
}

// ListInvoices lists invoices, optionally filtered by status.
func (s *Service) ListInvoices(ctx context.Context, scope accounting.Scope, status Status) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, scope, status)
}
