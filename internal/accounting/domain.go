package accounting

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates chart of accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether the account type is a known category.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// MovementType is the direction of a journal entry. The lowercase
// values are persisted and read by downstream reports, so they must
// not change.
type MovementType string

const (
	MovementDebit  MovementType = "debit"
	MovementCredit MovementType = "credit"
)

// Valid reports whether the movement type is debit or credit.
func (m MovementType) Valid() bool {
	return m == MovementDebit || m == MovementCredit
}

// Reverse swaps debit and credit.
func (m MovementType) Reverse() MovementType {
	if m == MovementDebit {
		return MovementCredit
	}
	return MovementDebit
}

// ReferenceManual marks journal entries keyed to no business document.
const ReferenceManual = "manual"

// Scope carries the multi-tenancy keys every accounting record is
// partitioned by. Both ids arrive pre-validated from the caller.
type Scope struct {
	ClientID int64
	StoreID  int64
}

// Valid reports whether both tenancy keys are set.
func (s Scope) Valid() bool {
	return s.ClientID > 0 && s.StoreID > 0
}

// Account models a chart of accounts node. Balance is mutated only by
// the posting engine.
type Account struct {
	ID        int64
	ClientID  int64
	Code      string
	Name      string
	Type      AccountType
	ParentID  *int64
	Balance   decimal.Decimal
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JournalEntry is an intended single-account movement awaiting or
// having undergone posting.
type JournalEntry struct {
	ID            int64
	ClientID      int64
	StoreID       int64
	Number        string
	Date          time.Time
	AccountID     int64
	Type          MovementType
	Amount        decimal.Decimal
	Description   string
	ReferenceType string
	ReferenceID   uuid.UUID
	IsPosted      bool
	PostedBy      *int64
	PostedAt      *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Scope returns the tenancy keys of the entry.
func (e JournalEntry) Scope() Scope {
	return Scope{ClientID: e.ClientID, StoreID: e.StoreID}
}

// LedgerEntry is an immutable general ledger row recorded once per
// successful posting. BalanceAfter snapshots the account balance
// immediately after the movement was applied.
type LedgerEntry struct {
	ID             int64
	ClientID       int64
	StoreID        int64
	AccountID      int64
	JournalEntryID int64
	Date           time.Time
	Type           MovementType
	Amount         decimal.Decimal
	BalanceAfter   decimal.Decimal
	ReferenceType  string
	ReferenceID    uuid.UUID
	CreatedAt      time.Time
}

var (
	// ErrInvalidAmount indicates a non-positive entry amount.
	ErrInvalidAmount = errors.New("accounting: amount must be positive")
	// ErrAccountNotFound indicates a missing or foreign-tenant account.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrAccountInactive indicates the target account is deactivated.
	ErrAccountInactive = errors.New("accounting: account is inactive")
	// ErrDuplicateCode indicates the account code already exists for the tenant.
	ErrDuplicateCode = errors.New("accounting: account code already exists")
	// ErrInvalidParent indicates the parent does not resolve within the tenant.
	ErrInvalidParent = errors.New("accounting: parent account not found")
	// ErrParentCycle indicates the requested parent chain loops back on itself.
	ErrParentCycle = errors.New("accounting: parent chain forms a cycle")
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = errors.New("accounting: journal entry not found")
	// ErrAlreadyPosted signals a benign no-op: the entry is posted already.
	ErrAlreadyPosted = errors.New("accounting: entry already posted")
	// ErrNotPosted signals a benign no-op: the entry is not posted.
	ErrNotPosted = errors.New("accounting: entry not posted")
	// ErrLedgerRowMissing indicates unposting found no ledger row for the entry.
	ErrLedgerRowMissing = errors.New("accounting: ledger row missing for entry")
)

// CreateAccountInput groups fields required to create an account.
type CreateAccountInput struct {
	ClientID int64
	Code     string
	Name     string
	Type     AccountType
	ParentID *int64
}

// Validate ensures account input meets minimum criteria.
func (in CreateAccountInput) Validate() error {
	if in.ClientID <= 0 {
		return errors.New("accounting: client id required")
	}
	if in.Code == "" {
		return errors.New("accounting: account code required")
	}
	if in.Name == "" {
		return errors.New("accounting: account name required")
	}
	if !in.Type.Valid() {
		return fmt.Errorf("accounting: unknown account type %q", in.Type)
	}
	return nil
}

// CreateEntryInput groups fields required to create a journal entry.
type CreateEntryInput struct {
	Scope         Scope
	AccountID     int64
	Type          MovementType
	Amount        decimal.Decimal
	Date          time.Time
	Description   string
	ReferenceType string
	ReferenceID   uuid.UUID
}

// Validate rejects malformed input before any state change.
func (in CreateEntryInput) Validate() error {
	if !in.Scope.Valid() {
		return errors.New("accounting: tenant scope required")
	}
	if in.AccountID <= 0 {
		return errors.New("accounting: account id required")
	}
	if !in.Type.Valid() {
		return fmt.Errorf("accounting: unknown movement type %q", in.Type)
	}
	if !in.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if in.Date.IsZero() {
		return errors.New("accounting: entry date required")
	}
	if in.ReferenceType == "" {
		return errors.New("accounting: reference type required")
	}
	if in.ReferenceType != ReferenceManual && in.ReferenceID == uuid.Nil {
		return errors.New("accounting: reference id required")
	}
	return nil
}

// EntryFilter narrows FindPosted / FindUnposted results.
type EntryFilter struct {
	AccountID     int64
	ReferenceType string
	DateFrom      time.Time
	DateTo        time.Time
	Limit         int
}
