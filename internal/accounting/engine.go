package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/storebooks/storebooks/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// BalanceInvalidator drops cached balances after a posting commits.
type BalanceInvalidator interface {
	Invalidate(ctx context.Context, clientID, accountID int64) error
}

// PostingMetrics counts engine outcomes.
type PostingMetrics interface {
	ObservePosting(op, result string)
}

// Engine transitions journal entries between unposted and posted. It is
// the only component allowed to mutate account balances, and it does so
// inside a single transaction together with the ledger row and the
// posted flag.
type Engine struct {
	repo    RepositoryPort
	audit   AuditPort
	conv    SignConvention
	cache   BalanceInvalidator
	metrics PostingMetrics
	now     func() time.Time
}

// NewEngine constructs the posting engine.
func NewEngine(repo RepositoryPort, audit AuditPort, conv SignConvention) *Engine {
	return &Engine{repo: repo, audit: audit, conv: conv, now: time.Now}
}

// WithNow overrides the clock for testing.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// SetBalanceCache wires cache invalidation for committed postings.
func (e *Engine) SetBalanceCache(cache BalanceInvalidator) {
	e.cache = cache
}

// SetMetrics wires outcome counters.
func (e *Engine) SetMetrics(m PostingMetrics) {
	e.metrics = m
}

// Post applies the entry's movement to its account, records the
// immutable ledger row and marks the entry posted, all within one
// transaction. Posting an already-posted entry changes nothing and
// returns ErrAlreadyPosted, which callers treat as a benign outcome.
func (e *Engine) Post(ctx context.Context, scope Scope, entryID, postedBy int64) (JournalEntry, error) {
	if !scope.Valid() {
		return JournalEntry{}, errors.New("accounting: tenant scope required")
	}
	if entryID <= 0 {
		return JournalEntry{}, errors.New("accounting: entry id required")
	}
	var entry JournalEntry
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = e.PostTx(ctx, tx, scope, entryID, postedBy)
		return err
	})
	e.observe("post", err)
	if err != nil {
		return entry, err
	}
	e.afterCommit(ctx, entry, postedBy, "journal.post")
	return entry, nil
}

// PostTx runs the posting sequence on an open transaction. Document
// adapters use it to commit their own state change and the posting as
// one atomic unit.
func (e *Engine) PostTx(ctx context.Context, tx TxRepository, scope Scope, entryID, postedBy int64) (JournalEntry, error) {
	entry, err := tx.GetEntryForUpdate(ctx, scope, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if entry.IsPosted {
		return entry, ErrAlreadyPosted
	}
	acct, err := tx.GetAccountForUpdate(ctx, entry.ClientID, entry.AccountID)
	if err != nil {
		return JournalEntry{}, err
	}
	newBalance := acct.Balance.Add(e.conv.Delta(acct.Type, entry.Type, entry.Amount))
	if err := tx.UpdateAccountBalance(ctx, acct.ID, newBalance); err != nil {
		return JournalEntry{}, err
	}
	if _, err := tx.InsertLedgerEntry(ctx, LedgerEntry{
		ClientID:       entry.ClientID,
		StoreID:        entry.StoreID,
		AccountID:      entry.AccountID,
		JournalEntryID: entry.ID,
		Date:           entry.Date,
		Type:           entry.Type,
		Amount:         entry.Amount,
		BalanceAfter:   newBalance,
		ReferenceType:  entry.ReferenceType,
		ReferenceID:    entry.ReferenceID,
	}); err != nil {
		return JournalEntry{}, err
	}
	postedAt := e.now()
	if err := tx.MarkPosted(ctx, entry.ID, postedBy, postedAt); err != nil {
		return JournalEntry{}, err
	}
	entry.IsPosted = true
	entry.PostedBy = &postedBy
	entry.PostedAt = &postedAt
	return entry, nil
}

// Unpost reverses a posted entry: the balance delta is undone, the
// ledger row for the entry is removed and the posted flag cleared.
// Unposting an unposted entry returns ErrNotPosted without changes.
func (e *Engine) Unpost(ctx context.Context, scope Scope, entryID, actorID int64) (JournalEntry, error) {
	if !scope.Valid() {
		return JournalEntry{}, errors.New("accounting: tenant scope required")
	}
	if entryID <= 0 {
		return JournalEntry{}, errors.New("accounting: entry id required")
	}
	var entry JournalEntry
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = e.UnpostTx(ctx, tx, scope, entryID)
		return err
	})
	e.observe("unpost", err)
	if err != nil {
		return entry, err
	}
	e.afterCommit(ctx, entry, actorID, "journal.unpost")
	return entry, nil
}

// UnpostTx runs the reversal sequence on an open transaction.
func (e *Engine) UnpostTx(ctx context.Context, tx TxRepository, scope Scope, entryID int64) (JournalEntry, error) {
	entry, err := tx.GetEntryForUpdate(ctx, scope, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if !entry.IsPosted {
		return entry, ErrNotPosted
	}
	acct, err := tx.GetAccountForUpdate(ctx, entry.ClientID, entry.AccountID)
	if err != nil {
		return JournalEntry{}, err
	}
	newBalance := acct.Balance.Add(e.conv.Delta(acct.Type, entry.Type.Reverse(), entry.Amount))
	if err := tx.UpdateAccountBalance(ctx, acct.ID, newBalance); err != nil {
		return JournalEntry{}, err
	}
	deleted, err := tx.DeleteLedgerByEntry(ctx, entry.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	if deleted == 0 {
		return JournalEntry{}, ErrLedgerRowMissing
	}
	if err := tx.MarkUnposted(ctx, entry.ID); err != nil {
		return JournalEntry{}, err
	}
	entry.IsPosted = false
	entry.PostedBy = nil
	entry.PostedAt = nil
	return entry, nil
}

// AfterPost performs the post-commit bookkeeping (cache invalidation
// and audit) for a posting applied via PostTx inside a caller-owned
// transaction. Call it only after that transaction has committed.
func (e *Engine) AfterPost(ctx context.Context, entry JournalEntry, actorID int64) {
	e.observe("post", nil)
	e.afterCommit(ctx, entry, actorID, "journal.post")
}

func (e *Engine) observe(op string, err error) {
	if e.metrics == nil {
		return
	}
	switch {
	case err == nil:
		e.metrics.ObservePosting(op, "applied")
	case errors.Is(err, ErrAlreadyPosted), errors.Is(err, ErrNotPosted):
		e.metrics.ObservePosting(op, "noop")
	default:
		e.metrics.ObservePosting(op, "error")
	}
}

func (e *Engine) afterCommit(ctx context.Context, entry JournalEntry, actorID int64, action string) {
	if e.cache != nil {
		_ = e.cache.Invalidate(ctx, entry.ClientID, entry.AccountID)
	}
	if e.audit != nil {
		_ = e.audit.Record(ctx, shared.AuditLog{
			ClientID: entry.ClientID,
			ActorID:  actorID,
			Action:   action,
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"number":         entry.Number,
				"account_id":     entry.AccountID,
				"type":           string(entry.Type),
				"amount":         entry.Amount.StringFixed(2),
				"reference_type": entry.ReferenceType,
			},
			At: e.now(),
		})
	}
}
