package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DocTypeJournal keys the per-tenant journal entry counter.
const DocTypeJournal = "JE"

// FormatEntryNumber renders the persisted entry number. The format is
// read back by existing reports and must stay bit-exact.
func FormatEntryNumber(date time.Time, seq int64) string {
	return fmt.Sprintf("JE-%s-%04d", date.Format("20060102"), seq)
}

// Journal is the journal entry store: it creates unposted entries and
// answers posted/unposted queries. Posting itself belongs to Engine.
type Journal struct {
	repo RepositoryPort
}

// NewJournal constructs the journal entry store.
func NewJournal(repo RepositoryPort) *Journal {
	return &Journal{repo: repo}
}

// CreateEntry validates and persists a new unposted journal entry,
// assigning the next tenant-scoped entry number.
func (j *Journal) CreateEntry(ctx context.Context, in CreateEntryInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := j.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = j.CreateEntryTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// CreateEntryTx persists a new unposted entry on an open transaction.
// The sequence row is locked by the counter upsert, so concurrent
// callers never observe the same number.
func (j *Journal) CreateEntryTx(ctx context.Context, tx TxRepository, in CreateEntryInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	acct, err := tx.GetAccount(ctx, in.Scope.ClientID, in.AccountID)
	if err != nil {
		return JournalEntry{}, err
	}
	if !acct.IsActive {
		return JournalEntry{}, ErrAccountInactive
	}
	seq, err := tx.NextSequence(ctx, in.Scope.ClientID, DocTypeJournal)
	if err != nil {
		return JournalEntry{}, err
	}
	return tx.InsertJournalEntry(ctx, in, FormatEntryNumber(in.Date, seq))
}

// GetEntry loads a single journal entry within the tenant scope.
func (j *Journal) GetEntry(ctx context.Context, scope Scope, entryID int64) (JournalEntry, error) {
	if !scope.Valid() {
		return JournalEntry{}, errors.New("accounting: tenant scope required")
	}
	var entry JournalEntry
	err := j.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetEntry(ctx, scope, entryID)
		return err
	})
	return entry, err
}

// FindUnposted lists entries awaiting posting.
func (j *Journal) FindUnposted(ctx context.Context, scope Scope, f EntryFilter) ([]JournalEntry, error) {
	return j.find(ctx, scope, false, f)
}

// FindPosted lists entries already applied to the ledger.
func (j *Journal) FindPosted(ctx context.Context, scope Scope, f EntryFilter) ([]JournalEntry, error) {
	return j.find(ctx, scope, true, f)
}

func (j *Journal) find(ctx context.Context, scope Scope, posted bool, f EntryFilter) ([]JournalEntry, error) {
	if !scope.Valid() {
		return nil, errors.New("accounting: tenant scope required")
	}
	var entries []JournalEntry
	err := j.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, err = tx.ListEntries(ctx, scope, posted, f)
		return err
	})
	return entries, err
}

// ListLedger returns the immutable ledger rows for an account, oldest
// first, optionally bounded by entry date.
func (j *Journal) ListLedger(ctx context.Context, scope Scope, accountID int64, from, to time.Time) ([]LedgerEntry, error) {
	if !scope.Valid() {
		return nil, errors.New("accounting: tenant scope required")
	}
	if accountID <= 0 {
		return nil, errors.New("accounting: account id required")
	}
	var entries []LedgerEntry
	err := j.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, err = tx.ListLedger(ctx, scope, accountID, from, to)
		return err
	})
	return entries, err
}
