package accounting

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEntryInput(accountID int64) CreateEntryInput {
	return CreateEntryInput{
		Scope:         testScope,
		AccountID:     accountID,
		Type:          MovementDebit,
		Amount:        decimal.NewFromFloat(12.50),
		Date:          testDate,
		Description:   "office supplies",
		ReferenceType: ReferenceManual,
	}
}

func TestFormatEntryNumber(t *testing.T) {
	assert.Equal(t, "JE-20240115-0007", FormatEntryNumber(testDate, 7))
	assert.Equal(t, "JE-20241231-1234", FormatEntryNumber(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), 1234))
	// Sequences keep growing past four digits without truncation.
	assert.Equal(t, "JE-20240115-10001", FormatEntryNumber(testDate, 10001))
}

func TestCreateEntryAssignsSequentialNumbers(t *testing.T) {
	repo := newMockRepository()
	acct := repo.addAccount(AccountTypeExpense, decimal.Zero)
	journal := NewJournal(repo)

	for i := 1; i <= 3; i++ {
		entry, err := journal.CreateEntry(context.Background(), validEntryInput(acct.ID))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("JE-20240115-%04d", i), entry.Number)
		assert.False(t, entry.IsPosted)
	}
}

func TestConcurrentCreateEntryNumbersAreDistinct(t *testing.T) {
	repo := newMockRepository()
	acct := repo.addAccount(AccountTypeExpense, decimal.Zero)
	journal := NewJournal(repo)

	const workers = 20
	numbers := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := journal.CreateEntry(context.Background(), validEntryInput(acct.ID))
			assert.NoError(t, err)
			numbers <- entry.Number
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[string]struct{}, workers)
	for number := range numbers {
		_, dup := seen[number]
		assert.False(t, dup, "duplicate entry number %s", number)
		seen[number] = struct{}{}
	}
	require.Len(t, seen, workers)
	assert.Contains(t, seen, "JE-20240115-0001")
	assert.Contains(t, seen, fmt.Sprintf("JE-20240115-%04d", workers))
}

func TestCreateEntryRejectsInactiveAccount(t *testing.T) {
	repo := newMockRepository()
	acct := repo.addAccount(AccountTypeExpense, decimal.Zero)
	repo.accounts[acct.ID].IsActive = false
	journal := NewJournal(repo)

	_, err := journal.CreateEntry(context.Background(), validEntryInput(acct.ID))
	require.ErrorIs(t, err, ErrAccountInactive)
}

func TestCreateEntryRejectsUnknownAccount(t *testing.T) {
	repo := newMockRepository()
	journal := NewJournal(repo)

	_, err := journal.CreateEntry(context.Background(), validEntryInput(999))
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestCreateEntryValidation(t *testing.T) {
	repo := newMockRepository()
	acct := repo.addAccount(AccountTypeExpense, decimal.Zero)
	journal := NewJournal(repo)

	t.Run("zero amount", func(t *testing.T) {
		in := validEntryInput(acct.ID)
		in.Amount = decimal.Zero
		_, err := journal.CreateEntry(context.Background(), in)
		require.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("negative amount", func(t *testing.T) {
		in := validEntryInput(acct.ID)
		in.Amount = decimal.NewFromInt(-5)
		_, err := journal.CreateEntry(context.Background(), in)
		require.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("bad movement type", func(t *testing.T) {
		in := validEntryInput(acct.ID)
		in.Type = MovementType("transfer")
		_, err := journal.CreateEntry(context.Background(), in)
		require.Error(t, err)
	})

	t.Run("document reference needs id", func(t *testing.T) {
		in := validEntryInput(acct.ID)
		in.ReferenceType = "expense"
		in.ReferenceID = uuid.Nil
		_, err := journal.CreateEntry(context.Background(), in)
		require.Error(t, err)
	})

	t.Run("missing scope", func(t *testing.T) {
		in := validEntryInput(acct.ID)
		in.Scope = Scope{}
		_, err := journal.CreateEntry(context.Background(), in)
		require.Error(t, err)
	})
}

func TestFindPostedAndUnposted(t *testing.T) {
	repo := newMockRepository()
	acct := repo.addAccount(AccountTypeAsset, decimal.Zero)
	journal := NewJournal(repo)
	engine, _ := newTestEngine(repo, SignUniform)

	first, err := journal.CreateEntry(context.Background(), validEntryInput(acct.ID))
	require.NoError(t, err)
	second, err := journal.CreateEntry(context.Background(), validEntryInput(acct.ID))
	require.NoError(t, err)

	_, err = engine.Post(context.Background(), testScope, first.ID, testActorID)
	require.NoError(t, err)

	unposted, err := journal.FindUnposted(context.Background(), testScope, EntryFilter{})
	require.NoError(t, err)
	require.Len(t, unposted, 1)
	assert.Equal(t, second.ID, unposted[0].ID)

	posted, err := journal.FindPosted(context.Background(), testScope, EntryFilter{})
	require.NoError(t, err)
	require.Len(t, posted, 1)
	assert.Equal(t, first.ID, posted[0].ID)
}

func TestFindFiltersByAccountAndLimit(t *testing.T) {
	repo := newMockRepository()
	first := repo.addAccount(AccountTypeAsset, decimal.Zero)
	second := repo.addAccount(AccountTypeAsset, decimal.Zero)
	journal := NewJournal(repo)

	for i := 0; i < 3; i++ {
		_, err := journal.CreateEntry(context.Background(), validEntryInput(first.ID))
		require.NoError(t, err)
	}
	_, err := journal.CreateEntry(context.Background(), validEntryInput(second.ID))
	require.NoError(t, err)

	got, err := journal.FindUnposted(context.Background(), testScope, EntryFilter{AccountID: first.ID})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = journal.FindUnposted(context.Background(), testScope, EntryFilter{AccountID: first.ID, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	// Newest first.
	assert.Greater(t, got[0].ID, got[1].ID)
}

func TestListLedgerReturnsRowsOldestFirst(t *testing.T) {
	repo := newMockRepository()
	acct := repo.addAccount(AccountTypeAsset, decimal.Zero)
	journal := NewJournal(repo)
	engine, _ := newTestEngine(repo, SignUniform)

	for i := 0; i < 3; i++ {
		entry, err := journal.CreateEntry(context.Background(), validEntryInput(acct.ID))
		require.NoError(t, err)
		_, err = engine.Post(context.Background(), testScope, entry.ID, testActorID)
		require.NoError(t, err)
	}

	rows, err := journal.ListLedger(context.Background(), testScope, acct.ID, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "12.5", rows[0].BalanceAfter.String())
	assert.Equal(t, "25", rows[1].BalanceAfter.String())
	assert.Equal(t, "37.5", rows[2].BalanceAfter.String())
}
