package accounting

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// mockRepository is an in-memory TxRepository with snapshot rollback so
// transactional behaviour can be exercised without a database. WithTx
// holds the mutex for the whole callback, standing in for row locks.
type mockRepository struct {
	mu sync.Mutex

	accounts  map[int64]*Account
	entries   map[int64]*JournalEntry
	ledger    map[int64]*LedgerEntry
	sequences map[string]int64

	nextAccountID int64
	nextLedgerID  int64
	nextEntryID   int64

	// Error injection
	txError          error
	insertLedgerErr  error
	updateBalanceErr error
	markPostedErr    error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		accounts:      make(map[int64]*Account),
		entries:       make(map[int64]*JournalEntry),
		ledger:        make(map[int64]*LedgerEntry),
		sequences:     make(map[string]int64),
		nextAccountID: 1,
		nextEntryID:   1,
		nextLedgerID:  1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(ctx, &mockTxRepo{mock: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type mockSnapshot struct {
	accounts  map[int64]*Account
	entries   map[int64]*JournalEntry
	ledger    map[int64]*LedgerEntry
	sequences map[string]int64
}

func (m *mockRepository) snapshot() mockSnapshot {
	snap := mockSnapshot{
		accounts:  make(map[int64]*Account, len(m.accounts)),
		entries:   make(map[int64]*JournalEntry, len(m.entries)),
		ledger:    make(map[int64]*LedgerEntry, len(m.ledger)),
		sequences: make(map[string]int64, len(m.sequences)),
	}
	for id, a := range m.accounts {
		cp := *a
		snap.accounts[id] = &cp
	}
	for id, e := range m.entries {
		cp := *e
		snap.entries[id] = &cp
	}
	for id, l := range m.ledger {
		cp := *l
		snap.ledger[id] = &cp
	}
	for k, v := range m.sequences {
		snap.sequences[k] = v
	}
	return snap
}

func (m *mockRepository) restore(snap mockSnapshot) {
	m.accounts = snap.accounts
	m.entries = snap.entries
	m.ledger = snap.ledger
	m.sequences = snap.sequences
}

// addAccount seeds an account outside any transaction.
func (m *mockRepository) addAccount(typ AccountType, balance decimal.Decimal) *Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextAccountID
	m.nextAccountID++
	acct := &Account{
		ID:        id,
		ClientID:  testClientID,
		Code:      fmt.Sprintf("%04d", 1000+id),
		Name:      fmt.Sprintf("Account %d", id),
		Type:      typ,
		Balance:   balance,
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.accounts[id] = acct
	return acct
}

// addEntry seeds an unposted journal entry outside any transaction.
func (m *mockRepository) addEntry(accountID int64, typ MovementType, amount decimal.Decimal) *JournalEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextEntryID
	m.nextEntryID++
	entry := &JournalEntry{
		ID:            id,
		ClientID:      testClientID,
		StoreID:       testStoreID,
		Number:        FormatEntryNumber(testDate, id),
		Date:          testDate,
		AccountID:     accountID,
		Type:          typ,
		Amount:        amount,
		ReferenceType: ReferenceManual,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	m.entries[id] = entry
	return entry
}

func (m *mockRepository) ledgerFor(entryID int64) []LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []LedgerEntry
	for _, l := range m.ledger {
		if l.JournalEntryID == entryID {
			rows = append(rows, *l)
		}
	}
	return rows
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) InsertAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	m := t.mock
	for _, a := range m.accounts {
		if a.ClientID == in.ClientID && a.Code == in.Code {
			return Account{}, ErrDuplicateCode
		}
	}
	id := m.nextAccountID
	m.nextAccountID++
	acct := &Account{
		ID:        id,
		ClientID:  in.ClientID,
		Code:      in.Code,
		Name:      in.Name,
		Type:      in.Type,
		ParentID:  in.ParentID,
		Balance:   decimal.Zero,
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.accounts[id] = acct
	return *acct, nil
}

func (t *mockTxRepo) GetAccount(ctx context.Context, clientID, accountID int64) (Account, error) {
	a, ok := t.mock.accounts[accountID]
	if !ok || a.ClientID != clientID {
		return Account{}, ErrAccountNotFound
	}
	return *a, nil
}

func (t *mockTxRepo) GetAccountForUpdate(ctx context.Context, clientID, accountID int64) (Account, error) {
	return t.GetAccount(ctx, clientID, accountID)
}

func (t *mockTxRepo) GetAccountByCode(ctx context.Context, clientID int64, code string) (Account, error) {
	for _, a := range t.mock.accounts {
		if a.ClientID == clientID && a.Code == code {
			return *a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (t *mockTxRepo) ListAccounts(ctx context.Context, clientID int64) ([]Account, error) {
	var accounts []Account
	for _, a := range t.mock.accounts {
		if a.ClientID == clientID {
			accounts = append(accounts, *a)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Code < accounts[j].Code })
	return accounts, nil
}

func (t *mockTxRepo) ListChildren(ctx context.Context, clientID, parentID int64) ([]Account, error) {
	var accounts []Account
	for _, a := range t.mock.accounts {
		if a.ClientID == clientID && a.ParentID != nil && *a.ParentID == parentID {
			accounts = append(accounts, *a)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Code < accounts[j].Code })
	return accounts, nil
}

func (t *mockTxRepo) UpdateAccountBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	if t.mock.updateBalanceErr != nil {
		return t.mock.updateBalanceErr
	}
	a, ok := t.mock.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	a.Balance = balance
	a.UpdatedAt = time.Now()
	return nil
}

func (t *mockTxRepo) UpdateAccountParent(ctx context.Context, clientID, accountID int64, parentID *int64) error {
	a, ok := t.mock.accounts[accountID]
	if !ok || a.ClientID != clientID {
		return ErrAccountNotFound
	}
	a.ParentID = parentID
	a.UpdatedAt = time.Now()
	return nil
}

func (t *mockTxRepo) DeactivateAccount(ctx context.Context, clientID, accountID int64) error {
	a, ok := t.mock.accounts[accountID]
	if !ok || a.ClientID != clientID {
		return ErrAccountNotFound
	}
	a.IsActive = false
	a.UpdatedAt = time.Now()
	return nil
}

func (t *mockTxRepo) NextSequence(ctx context.Context, clientID int64, docType string) (int64, error) {
	key := fmt.Sprintf("%d:%s", clientID, docType)
	t.mock.sequences[key]++
	return t.mock.sequences[key], nil
}

func (t *mockTxRepo) InsertJournalEntry(ctx context.Context, in CreateEntryInput, number string) (JournalEntry, error) {
	m := t.mock
	id := m.nextEntryID
	m.nextEntryID++
	entry := &JournalEntry{
		ID:            id,
		ClientID:      in.Scope.ClientID,
		StoreID:       in.Scope.StoreID,
		Number:        number,
		Date:          in.Date,
		AccountID:     in.AccountID,
		Type:          in.Type,
		Amount:        in.Amount,
		Description:   in.Description,
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	m.entries[id] = entry
	return *entry, nil
}

func (t *mockTxRepo) GetEntry(ctx context.Context, scope Scope, entryID int64) (JournalEntry, error) {
	e, ok := t.mock.entries[entryID]
	if !ok || e.ClientID != scope.ClientID || e.StoreID != scope.StoreID {
		return JournalEntry{}, ErrEntryNotFound
	}
	return *e, nil
}

func (t *mockTxRepo) GetEntryForUpdate(ctx context.Context, scope Scope, entryID int64) (JournalEntry, error) {
	return t.GetEntry(ctx, scope, entryID)
}

func (t *mockTxRepo) ListEntries(ctx context.Context, scope Scope, posted bool, f EntryFilter) ([]JournalEntry, error) {
	var entries []JournalEntry
	for _, e := range t.mock.entries {
		if e.ClientID != scope.ClientID || e.StoreID != scope.StoreID || e.IsPosted != posted {
			continue
		}
		if f.AccountID > 0 && e.AccountID != f.AccountID {
			continue
		}
		if f.ReferenceType != "" && e.ReferenceType != f.ReferenceType {
			continue
		}
		if !f.DateFrom.IsZero() && e.Date.Before(f.DateFrom) {
			continue
		}
		if !f.DateTo.IsZero() && e.Date.After(f.DateTo) {
			continue
		}
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID > entries[j].ID })
	if f.Limit > 0 && len(entries) > f.Limit {
		entries = entries[:f.Limit]
	}
	return entries, nil
}

func (t *mockTxRepo) MarkPosted(ctx context.Context, entryID, postedBy int64, at time.Time) error {
	if t.mock.markPostedErr != nil {
		return t.mock.markPostedErr
	}
	e, ok := t.mock.entries[entryID]
	if !ok {
		return ErrEntryNotFound
	}
	e.IsPosted = true
	e.PostedBy = &postedBy
	e.PostedAt = &at
	e.UpdatedAt = time.Now()
	return nil
}

func (t *mockTxRepo) MarkUnposted(ctx context.Context, entryID int64) error {
	e, ok := t.mock.entries[entryID]
	if !ok {
		return ErrEntryNotFound
	}
	e.IsPosted = false
	e.PostedBy = nil
	e.PostedAt = nil
	e.UpdatedAt = time.Now()
	return nil
}

func (t *mockTxRepo) InsertLedgerEntry(ctx context.Context, row LedgerEntry) (LedgerEntry, error) {
	if t.mock.insertLedgerErr != nil {
		return LedgerEntry{}, t.mock.insertLedgerErr
	}
	m := t.mock
	id := m.nextLedgerID
	m.nextLedgerID++
	row.ID = id
	row.CreatedAt = time.Now()
	cp := row
	m.ledger[id] = &cp
	return row, nil
}

func (t *mockTxRepo) DeleteLedgerByEntry(ctx context.Context, journalEntryID int64) (int64, error) {
	var deleted int64
	for id, l := range t.mock.ledger {
		if l.JournalEntryID == journalEntryID {
			delete(t.mock.ledger, id)
			deleted++
		}
	}
	return deleted, nil
}

func (t *mockTxRepo) ListLedger(ctx context.Context, scope Scope, accountID int64, from, to time.Time) ([]LedgerEntry, error) {
	var rows []LedgerEntry
	for _, l := range t.mock.ledger {
		if l.ClientID != scope.ClientID || l.StoreID != scope.StoreID || l.AccountID != accountID {
			continue
		}
		if !from.IsZero() && l.Date.Before(from) {
			continue
		}
		if !to.IsZero() && l.Date.After(to) {
			continue
		}
		rows = append(rows, *l)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}
