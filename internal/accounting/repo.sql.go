package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists accounting entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations. Every balance-affecting
// write goes through one of these inside a single transaction.
type TxRepository interface {
	InsertAccount(ctx context.Context, in CreateAccountInput) (Account, error)
	GetAccount(ctx context.Context, clientID, accountID int64) (Account, error)
	GetAccountForUpdate(ctx context.Context, clientID, accountID int64) (Account, error)
	GetAccountByCode(ctx context.Context, clientID int64, code string) (Account, error)
	ListAccounts(ctx context.Context, clientID int64) ([]Account, error)
	ListChildren(ctx context.Context, clientID, parentID int64) ([]Account, error)
	UpdateAccountBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error
	UpdateAccountParent(ctx context.Context, clientID, accountID int64, parentID *int64) error
	DeactivateAccount(ctx context.Context, clientID, accountID int64) error

	NextSequence(ctx context.Context, clientID int64, docType string) (int64, error)

	InsertJournalEntry(ctx context.Context, in CreateEntryInput, number string) (JournalEntry, error)
	GetEntry(ctx context.Context, scope Scope, entryID int64) (JournalEntry, error)
	GetEntryForUpdate(ctx context.Context, scope Scope, entryID int64) (JournalEntry, error)
	ListEntries(ctx context.Context, scope Scope, posted bool, f EntryFilter) ([]JournalEntry, error)
	MarkPosted(ctx context.Context, entryID, postedBy int64, at time.Time) error
	MarkUnposted(ctx context.Context, entryID int64) error

	InsertLedgerEntry(ctx context.Context, row LedgerEntry) (LedgerEntry, error)
	DeleteLedgerByEntry(ctx context.Context, journalEntryID int64) (int64, error)
	ListLedger(ctx context.Context, scope Scope, accountID int64, from, to time.Time) ([]LedgerEntry, error)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction so document adapters can
// run their own writes and a posting in one atomic unit.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes fn within a repeatable-read transaction. Under
// contention on the same account a concurrent transaction can fail
// with a serialization error (SQLSTATE 40001) after its lock wait;
// nothing is partially applied and the caller may retry the whole
// operation.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounting repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const accountColumns = `id, client_id, code, name, type, parent_id, balance::text, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var balance string
	err := row.Scan(&a.ID, &a.ClientID, &a.Code, &a.Name, &a.Type, &a.ParentID, &balance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Account{}, err
	}
	a.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return Account{}, fmt.Errorf("accounting: parse balance: %w", err)
	}
	return a, nil
}

func (r *txRepository) InsertAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO accounts (client_id, code, name, type, parent_id, balance, is_active)
VALUES ($1,$2,$3,$4,$5,0,TRUE) RETURNING `+accountColumns, in.ClientID, in.Code, in.Name, in.Type, in.ParentID)
	acct, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrDuplicateCode
		}
		return Account{}, err
	}
	return acct, nil
}

func (r *txRepository) GetAccount(ctx context.Context, clientID, accountID int64) (Account, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE client_id=$1 AND id=$2`, clientID, accountID)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return acct, nil
}

// GetAccountForUpdate locks the account row for the remainder of the
// transaction, serialising concurrent balance updates.
func (r *txRepository) GetAccountForUpdate(ctx context.Context, clientID, accountID int64) (Account, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE client_id=$1 AND id=$2 FOR UPDATE`, clientID, accountID)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return acct, nil
}

func (r *txRepository) GetAccountByCode(ctx context.Context, clientID int64, code string) (Account, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE client_id=$1 AND code=$2`, clientID, code)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return acct, nil
}

func (r *txRepository) ListAccounts(ctx context.Context, clientID int64) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE client_id=$1 ORDER BY code`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *txRepository) ListChildren(ctx context.Context, clientID, parentID int64) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE client_id=$1 AND parent_id=$2 ORDER BY code`, clientID, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	var accounts []Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

func (r *txRepository) UpdateAccountBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET balance=$2, updated_at=NOW() WHERE id=$1`, accountID, toNumeric(balance))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) UpdateAccountParent(ctx context.Context, clientID, accountID int64, parentID *int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET parent_id=$3, updated_at=NOW() WHERE client_id=$1 AND id=$2`, clientID, accountID, parentID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) DeactivateAccount(ctx context.Context, clientID, accountID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET is_active=FALSE, updated_at=NOW() WHERE client_id=$1 AND id=$2`, clientID, accountID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// NextSequence increments and returns the per-tenant counter for the
// document type. The upsert makes concurrent callers queue on the
// counter row, so no two calls observe the same value.
func (r *txRepository) NextSequence(ctx context.Context, clientID int64, docType string) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO document_sequences (client_id, doc_type, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (client_id, doc_type)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq
	`, clientID, docType).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

const entryColumns = `id, client_id, store_id, entry_number, entry_date, account_id, type, amount::text, description, reference_type, reference_id, is_posted, posted_by, posted_at, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	var amount string
	err := row.Scan(&e.ID, &e.ClientID, &e.StoreID, &e.Number, &e.Date, &e.AccountID, &e.Type, &amount, &e.Description, &e.ReferenceType, &e.ReferenceID, &e.IsPosted, &e.PostedBy, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return JournalEntry{}, err
	}
	e.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return JournalEntry{}, fmt.Errorf("accounting: parse amount: %w", err)
	}
	return e, nil
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, in CreateEntryInput, number string) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries
(client_id, store_id, entry_number, entry_date, account_id, type, amount, description, reference_type, reference_id, is_posted)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,FALSE) RETURNING `+entryColumns,
		in.Scope.ClientID, in.Scope.StoreID, number, in.Date, in.AccountID, in.Type, toNumeric(in.Amount), in.Description, in.ReferenceType, in.ReferenceID)
	return scanEntry(row)
}

func (r *txRepository) GetEntry(ctx context.Context, scope Scope, entryID int64) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE client_id=$1 AND store_id=$2 AND id=$3`, scope.ClientID, scope.StoreID, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, scope Scope, entryID int64) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE client_id=$1 AND store_id=$2 AND id=$3 FOR UPDATE`, scope.ClientID, scope.StoreID, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) ListEntries(ctx context.Context, scope Scope, posted bool, f EntryFilter) ([]JournalEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE client_id=$1 AND store_id=$2 AND is_posted=$3`
	args := []any{scope.ClientID, scope.StoreID, posted}
	if f.AccountID > 0 {
		args = append(args, f.AccountID)
		query += fmt.Sprintf(" AND account_id=$%d", len(args))
	}
	if f.ReferenceType != "" {
		args = append(args, f.ReferenceType)
		query += fmt.Sprintf(" AND reference_type=$%d", len(args))
	}
	if !f.DateFrom.IsZero() {
		args = append(args, f.DateFrom)
		query += fmt.Sprintf(" AND entry_date >= $%d", len(args))
	}
	if !f.DateTo.IsZero() {
		args = append(args, f.DateTo)
		query += fmt.Sprintf(" AND entry_date <= $%d", len(args))
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *txRepository) MarkPosted(ctx context.Context, entryID, postedBy int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET is_posted=TRUE, posted_by=$2, posted_at=$3, updated_at=NOW() WHERE id=$1`, entryID, postedBy, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) MarkUnposted(ctx context.Context, entryID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET is_posted=FALSE, posted_by=NULL, posted_at=NULL, updated_at=NOW() WHERE id=$1`, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

const ledgerColumns = `id, client_id, store_id, account_id, journal_entry_id, entry_date, type, amount::text, balance_after::text, reference_type, reference_id, created_at`

func scanLedger(row pgx.Row) (LedgerEntry, error) {
	var l LedgerEntry
	var amount, after string
	err := row.Scan(&l.ID, &l.ClientID, &l.StoreID, &l.AccountID, &l.JournalEntryID, &l.Date, &l.Type, &amount, &after, &l.ReferenceType, &l.ReferenceID, &l.CreatedAt)
	if err != nil {
		return LedgerEntry{}, err
	}
	if l.Amount, err = decimal.NewFromString(amount); err != nil {
		return LedgerEntry{}, fmt.Errorf("accounting: parse ledger amount: %w", err)
	}
	if l.BalanceAfter, err = decimal.NewFromString(after); err != nil {
		return LedgerEntry{}, fmt.Errorf("accounting: parse balance_after: %w", err)
	}
	return l, nil
}

func (r *txRepository) InsertLedgerEntry(ctx context.Context, row LedgerEntry) (LedgerEntry, error) {
	out := r.tx.QueryRow(ctx, `INSERT INTO general_ledger
(client_id, store_id, account_id, journal_entry_id, entry_date, type, amount, balance_after, reference_type, reference_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING `+ledgerColumns,
		row.ClientID, row.StoreID, row.AccountID, row.JournalEntryID, row.Date, row.Type, toNumeric(row.Amount), toNumeric(row.BalanceAfter), row.ReferenceType, row.ReferenceID)
	return scanLedger(out)
}

func (r *txRepository) DeleteLedgerByEntry(ctx context.Context, journalEntryID int64) (int64, error) {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM general_ledger WHERE journal_entry_id=$1`, journalEntryID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *txRepository) ListLedger(ctx context.Context, scope Scope, accountID int64, from, to time.Time) ([]LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM general_ledger WHERE client_id=$1 AND store_id=$2 AND account_id=$3`
	args := []any{scope.ClientID, scope.StoreID, accountID}
	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" AND entry_date >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND entry_date <= $%d", len(args))
	}
	query += " ORDER BY id ASC"
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []LedgerEntry
	for rows.Next() {
		entry, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func toNumeric(d decimal.Decimal) string {
	return d.StringFixed(2)
}
