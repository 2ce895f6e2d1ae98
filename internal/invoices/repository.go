package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/storebooks/storebooks/internal/accounting"
)

// Repository persists invoices.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, scope accounting.Scope, invoiceID int64) (Invoice, error)
	ListInvoices(ctx context.Context, scope accounting.Scope, status Status) ([]Invoice, error)
}

// TxRepository exposes transactional invoice operations alongside the
// accounting repository over the same transaction.
type TxRepository interface {
	InsertInvoice(ctx context.Context, in CreateInvoiceInput, number string) (Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, scope accounting.Scope, invoiceID int64) (Invoice, error)
	GetCashAccountID(ctx context.Context, scope accounting.Scope) (int64, error)
	MarkPaid(ctx context.Context, invoiceID, journalEntryID, actorID int64, at time.Time) error
	Accounting() accounting.TxRepository
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed invoice repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &pgTxRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (t *pgTxRepository) Accounting() accounting.TxRepository {
	return accounting.NewTxRepository(t.tx)
}

const invoiceColumns = `id, client_id, store_id, number, ref_id, customer_name, total::text, invoice_date, status, paid_by, paid_at, journal_entry_id, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var i Invoice
	var total string
	err := row.Scan(&i.ID, &i.ClientID, &i.StoreID, &i.Number, &i.RefID, &i.CustomerName, &total, &i.InvoiceDate, &i.Status, &i.PaidBy, &i.PaidAt, &i.JournalEntryID, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return Invoice{}, err
	}
	i.Total, err = decimal.NewFromString(total)
	if err != nil {
		return Invoice{}, fmt.Errorf("invoices: parse total: %w", err)
	}
	return i, nil
}

func (t *pgTxRepository) InsertInvoice(ctx context.Context, in CreateInvoiceInput, number string) (Invoice, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO invoices
(client_id, store_id, number, ref_id, customer_name, total, invoice_date, status)
VALUES ($1,$2,$3,gen_random_uuid(),$4,$5,$6,'UNPAID') RETURNING `+invoiceColumns,
		in.Scope.ClientID, in.Scope.StoreID, number, in.CustomerName, in.Total.StringFixed(2), in.InvoiceDate)
	return scanInvoice(row)
}

func (t *pgTxRepository) GetInvoiceForUpdate(ctx context.Context, scope accounting.Scope, invoiceID int64) (Invoice, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE client_id=$1 AND store_id=$2 AND id=$3 FOR UPDATE`, scope.ClientID, scope.StoreID, invoiceID)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (t *pgTxRepository) GetCashAccountID(ctx context.Context, scope accounting.Scope) (int64, error) {
	var accountID *int64
	err := t.tx.QueryRow(ctx, `SELECT cash_account_id FROM store_settings WHERE client_id=$1 AND store_id=$2`, scope.ClientID, scope.StoreID).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNoCashAccount
		}
		return 0, err
	}
	if accountID == nil {
		return 0, ErrNoCashAccount
	}
	return *accountID, nil
}

func (t *pgTxRepository) MarkPaid(ctx context.Context, invoiceID, journalEntryID, actorID int64, at time.Time) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE invoices SET status='PAID', paid_by=$2, paid_at=$3, journal_entry_id=$4, updated_at=NOW() WHERE id=$1`, invoiceID, actorID, at, journalEntryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *pgRepository) GetInvoice(ctx context.Context, scope accounting.Scope, invoiceID int64) (Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE client_id=$1 AND store_id=$2 AND id=$3`, scope.ClientID, scope.StoreID, invoiceID)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (r *pgRepository) ListInvoices(ctx context.Context, scope accounting.Scope, status Status) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE client_id=$1 AND store_id=$2`
	args := []any{scope.ClientID, scope.StoreID}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status=$%d", len(args))
	}
	query += " ORDER BY id DESC"
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}
