package accounting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storebooks/storebooks/internal/shared"
)

const (
	testClientID int64 = 7
	testStoreID  int64 = 3
	testActorID  int64 = 42
)

var (
	testDate  = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	testScope = Scope{ClientID: testClientID, StoreID: testStoreID}
)

type capturedAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (c *capturedAudit) Record(ctx context.Context, log shared.AuditLog) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, log)
	return nil
}

type capturedInvalidations struct {
	mu   sync.Mutex
	keys [][2]int64
}

func (c *capturedInvalidations) Invalidate(ctx context.Context, clientID, accountID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, [2]int64{clientID, accountID})
	return nil
}

type capturedMetrics struct {
	mu      sync.Mutex
	results map[string]int
}

func (c *capturedMetrics) ObservePosting(op, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.results == nil {
		c.results = make(map[string]int)
	}
	c.results[op+"/"+result]++
}

func newTestEngine(repo RepositoryPort, conv SignConvention) (*Engine, *capturedAudit) {
	audit := &capturedAudit{}
	engine := NewEngine(repo, audit, conv)
	engine.WithNow(func() time.Time { return testDate })
	return engine, audit
}

func TestPostAppliesDebitToAssetBalance(t *testing.T) {
	repo := newMockRepository()
	acct := repo.addAccount(AccountTypeAsset, decimal.NewFromInt(100))
	entry := repo.addEntry(acct.ID, MovementDebit, decimal.NewFromInt(40))
	engine, audit := newTestEngine(repo, SignUniform)

	posted, err := engine.Post(context.Background(), testScope, entry.ID, testActorID)
	require.NoError(t, err)
	assert.True(t, posted.IsPosted)
	require.NotNil(t, posted.PostedBy)
	assert.Equal(t, testActorID, *posted.PostedBy)
	require.NotNil(t, posted.PostedAt)
	assert.Equal(t, testDate, *posted.PostedAt)

	assert.Equal(t, "140", repo.accounts[acct.ID].Balance.String())

	rows := repo.ledgerFor(entry.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, MovementDebit, rows[0].Type)
	assert.Equal(t, "140", rows[0].BalanceAfter.String())

	require.Len(t, audit.logs, 1)
	assert.Equal(t, "journal.post", audit.logs[0].Action)
	assert.Equal(t, testClientID, audit.logs[0].ClientID)
}

func TestPostAppliesCreditUniformly(t *testing.T) {
	repo := newMockRepository()
	// Uniform convention: credits subtract regardless of account type.
	acct := repo.addAccount(AccountTypeRevenue, decimal.NewFromInt(100))
	entry := repo.addEntry(acct.ID, MovementCredit, decimal.NewFromInt(25))
	engine, _ := newTestEngine(repo, SignUniform)

	_, err := engine.Post(context.Background(), testScope, entry.ID, testActorID)
	require.NoError(t, err)
	assert.Equal(t, "75", repo.accounts[acct.ID].Balance.String())
}

func TestPostStrictSignsCreditNormalAccounts(t *testing.T) {
	cases := []struct {
		name    string
		typ     AccountType
		move    MovementType
		balance int64
		want    string
	}{
		{"credit grows revenue", AccountTypeRevenue, MovementCredit, 100, "150"},
		{"debit shrinks liability", AccountTypeLiability, MovementDebit, 100, "50"},
		{"debit grows asset", AccountTypeAsset, MovementDebit, 100, "150"},
		{"credit shrinks expense", AccountTypeExpense, MovementCredit, 100, "50"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMockRepository()
			acct := repo.addAccount(tc.typ, decimal.NewFromInt(tc.balance))
			entry := repo.addEntry(acct.ID, tc.move, decimal.NewFromInt(50))
			engine, _ := newTestEngine(repo, SignStrict)

			_, err := engine.Post(context.Background(), testScope, entry.ID, testActorID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, repo.accounts[acct.ID].Balance.String())
		})
	}
}

func TestPostTwiceIsBenignNoop(t *testing.T) {
	repo := newMockRepository()
	acct := repo.addAccount(AccountTypeAsset, decimal.NewFromInt(100))
	entry := repo.addEntry(acct.ID, MovementDebit, decimal.NewFromInt(40))
	engine, audit := newTestEngine(repo, SignUniform)
	metrics := &capturedMetrics{}
	engine.SetMetrics(metrics)

	_, err := engine.Post(context.Background(), testScope, entry.ID, testActorID)
	require.NoError(t, err)

	again, err := engine.Post(context.Background(), testScope, entry.ID, testActorID)
	require.ErrorIs(t, err, ErrAlreadyPosted)
	assert.True(t, again.IsPosted)

	assert.Equal(t, "140", repo.accounts[acct.ID].Balance.String())
	assert.Len(t, repo.ledgerFor(entry.ID), 1)
	assert.Len(t, audit.logs, 1)
	assert.Equal(t, 1, metrics.results["post/applied"])
	assert.Equal(t, 1, metrics.results["post/noop"])
}

func TestUnpostRestoresBalance(t *testing.T) {
	repo := newMockRepository()
	acct := repo.addAccount(AccountTypeAsset, decimal.NewFromInt(100))
	entry := repo.addEntry(acct.ID, MovementCredit, decimal.NewFromInt(30))
	engine, audit := newTestEngine(repo, SignUniform)

	_, err := engine.Post(context.Background(), testScope, entry.ID, testActorID)
	require.NoError(t, err)
	assert.Equal(t, "70", repo.accounts[acct.ID].Balance.String())

	unposted, err := engine.Unpost(context.Background(), testScope, entry.ID, testActorID)
	require.NoError(t, err)
	assert.False(t, unposted.IsPosted)
	assert.Nil(t, unposted.PostedBy)
	assert.Equal(t, "100", repo.accounts[acct.ID].Balance.String())
	assert.Empty(t, repo.ledgerFor(entry.ID))

	require.Len(t, audit.logs, 2)
	assert.Equal(t, "journal.unpost", audit.logs[1].Action)

	_, err = engine.Unpost(context.Background(), testScope, entry.ID, testActorID)
	require.ErrorIs(t, err, ErrNotPosted)
	assert.Equal(t, "100", repo.accounts[acct.ID].Balance.String())
}

func TestPostRollsBackWhenLedgerInsertFails(t *testing.T) {
	repo := newMockRepository()
	acct := repo.addAccount(AccountTypeAsset, decimal.NewFromInt(100))
	entry := repo.addEntry(acct.ID, MovementDebit, decimal.NewFromInt(40))
	repo.insertLedgerErr = errors.New("disk full")
	engine, audit := newTestEngine(repo, SignUniform)

	_, err := engine.Post(context.Background(), testScope, entry.ID, testActorID)
	require.Error(t, err)

	assert.Equal(t, "100", repo.accounts[acct.ID].Balance.String())
	assert.False(t, repo.entries[entry.ID].IsPosted)
	assert.Empty(t, repo.ledgerFor(entry.ID))
	assert.Empty(t, audit.logs)
}

func TestUnpostFailsWhenLedgerRowMissing(t *testing.T) {
	repo := newMockRepository()
	acct := repo.addAccount(AccountTypeAsset, decimal.NewFromInt(100))
	entry := repo.addEntry(acct.ID, MovementDebit, decimal.NewFromInt(40))
	repo.entries[entry.ID].IsPosted = true

	engine, _ := newTestEngine(repo, SignUniform)
	_, err := engine.Unpost(context.Background(), testScope, entry.ID, testActorID)
	require.ErrorIs(t, err, ErrLedgerRowMissing)
	// The reversal rolled back together with the delete.
	assert.Equal(t, "100", repo.accounts[acct.ID].Balance.String())
	assert.True(t, repo.entries[entry.ID].IsPosted)
}

func TestPostUnknownEntry(t *testing.T) {
	repo := newMockRepository()
	engine, _ := newTestEngine(repo, SignUniform)

	_, err := engine.Post(context.Background(), testScope, 999, testActorID)
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestPostForeignTenantEntryNotVisible(t *testing.T) {
	repo := newMockRepository()
	acct := repo.addAccount(AccountTypeAsset, decimal.NewFromInt(100))
	entry := repo.addEntry(acct.ID, MovementDebit, decimal.NewFromInt(40))
	engine, _ := newTestEngine(repo, SignUniform)

	foreign := Scope{ClientID: testClientID + 1, StoreID: testStoreID}
	_, err := engine.Post(context.Background(), foreign, entry.ID, testActorID)
	require.ErrorIs(t, err, ErrEntryNotFound)
	assert.Equal(t, "100", repo.accounts[acct.ID].Balance.String())
}

func TestPostInvalidatesBalanceCache(t *testing.T) {
	repo := newMockRepository()
	acct := repo.addAccount(AccountTypeAsset, decimal.NewFromInt(100))
	entry := repo.addEntry(acct.ID, MovementDebit, decimal.NewFromInt(40))
	engine, _ := newTestEngine(repo, SignUniform)
	invalidations := &capturedInvalidations{}
	engine.SetBalanceCache(invalidations)

	_, err := engine.Post(context.Background(), testScope, entry.ID, testActorID)
	require.NoError(t, err)
	require.Len(t, invalidations.keys, 1)
	assert.Equal(t, [2]int64{testClientID, acct.ID}, invalidations.keys[0])
}

func TestConcurrentPostsAccumulate(t *testing.T) {
	repo := newMockRepository()
	acct := repo.addAccount(AccountTypeAsset, decimal.Zero)
	engine, _ := newTestEngine(repo, SignUniform)

	const workers = 20
	entries := make([]*JournalEntry, workers)
	for i := range entries {
		entries[i] = repo.addEntry(acct.ID, MovementDebit, decimal.NewFromInt(1))
	}

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := engine.Post(context.Background(), testScope, id, testActorID)
			assert.NoError(t, err)
		}(e.ID)
	}
	wg.Wait()

	assert.Equal(t, "20", repo.accounts[acct.ID].Balance.String())
	total := 0
	for _, e := range entries {
		total += len(repo.ledgerFor(e.ID))
	}
	assert.Equal(t, workers, total)
}
