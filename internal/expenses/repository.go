package expenses

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

// Repository persists expenses.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetExpense(ctx context.Context, scope accounting.Scope, expenseID int64) (Expense, error)
	ListExpenses(ctx context.Context, scope accounting.Scope, status Status) ([]Expense, error)
}

// TxRepository exposes transactional expense operations alongside the
// accounting repository over the same transaction, so an approval and
// its posting commit or roll back together.
type TxRepository interface {
	InsertExpense(ctx context.Context, in CreateExpenseInput, number string) (Expense, error)
	GetExpenseForUpdate(ctx context.Context, scope accounting.Scope, expenseID int64) (Expense, error)
	GetCategory(ctx context.Context, clientID, categoryID int64) (Category, error)
	MarkApproved(ctx context.Context, expenseID, journalEntryID, actorID int64, at time.Time) error
	MarkRejected(ctx context.Context, expenseID, actorID int64, at time.Time) error
	Accounting() accounting.TxRepository
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed expense repository.
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

const expenseColumns = `id, client_id, store_id, number, ref_id, category_id, amount::text, description, expense_date, status, approved_by, approved_at, journal_entry_id, created_at, updated_at`

func scanExpense(row pgx.Row) (Expense, error) {
	var e Expense
	var amount string
	err := row.Scan(&e.ID, &e.ClientID, &e.StoreID, &e.Number, &e.RefID, &e.CategoryID, &amount, &e.Description, &e.ExpenseDate, &e.Status, &e.ApprovedBy, &e.ApprovedAt, &e.JournalEntryID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Expense{}, err
	}
	e.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return Expense{}, fmt.Errorf("expenses: parse amount: %w", err)
	}
	return e, nil
}

func (t *pgTxRepository) InsertExpense(ctx context.Context, in CreateExpenseInput, number string) (Expense, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO expenses
(client_id, store_id, number, ref_id, category_id, amount, description, expense_date, status)
VALUES ($1,$2,$3,gen_random_uuid(),$4,$5,$6,$7,'PENDING') RETURNING `+expenseColumns,
		in.Scope.ClientID, in.Scope.StoreID, number, in.CategoryID, in.Amount.StringFixed(2), in.Description, in.ExpenseDate)
	return scanExpense(row)
}

func (t *pgTxRepository) GetExpenseForUpdate(ctx context.Context, scope accounting.Scope, expenseID int64) (Expense, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE client_id=$1 AND store_id=$2 AND id=$3 FOR UPDATE`, scope.ClientID, scope.StoreID, expenseID)
	exp, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, ErrExpenseNotFound
		}
		return Expense{}, err
	}
	return exp, nil
}

func (t *pgTxRepository) GetCategory(ctx context.Context, clientID, categoryID int64) (Category, error) {
	var c Category
	err := t.tx.QueryRow(ctx, `SELECT id, client_id, name, account_id, created_at, updated_at FROM expense_categories WHERE client_id=$1 AND id=$2`, clientID, categoryID).
		Scan(&c.ID, &c.ClientID, &c.Name, &c.AccountID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, ErrCategoryNotFound
		}
		return Category{}, err
	}
	return c, nil
}

func (t *pgTxRepository) MarkApproved(ctx context.Context, expenseID, journalEntryID, actorID int64, at time.Time) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE expenses SET status='APPROVED', approved_by=$2, approved_at=$3, journal_entry_id=$4, updated_at=NOW() WHERE id=$1`, expenseID, actorID, at, journalEntryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

func (t *pgTxRepository) MarkRejected(ctx context.Context, expenseID, actorID int64, at time.Time) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE expenses SET status='REJECTED', approved_by=$2, approved_at=$3, updated_at=NOW() WHERE id=$1`, expenseID, actorID, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

func (r *pgRepository) GetExpense(ctx context.Context, scope accounting.Scope, expenseID int64) (Expense, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE client_id=$1 AND store_id=$2 AND id=$3`, scope.ClientID, scope.StoreID, expenseID)
	exp, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, ErrExpenseNotFound
		}
		return Expense{}, err
	}
	return exp, nil
}

func (r *pgRepository) ListExpenses(ctx context.Context, scope accounting.Scope, status Status) ([]Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE client_id=$1 AND store_id=$2`
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
	var expenses []Expense
	for rows.Next() {
		exp, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, exp)
	}
	return expenses, rows.Err()
}
