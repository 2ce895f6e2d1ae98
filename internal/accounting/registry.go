package accounting

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// maxParentDepth bounds the parent chain walk so corrupted data cannot
// spin the cycle check forever.
const maxParentDepth = 64

// BalanceReader caches account balances for the read path.
type BalanceReader interface {
	Get(ctx context.Context, clientID, accountID int64) (decimal.Decimal, bool, error)
	Set(ctx context.Context, clientID, accountID int64, balance decimal.Decimal) error
}

// Registry manages the chart of accounts. It never mutates balances;
// that is the posting engine's job.
type Registry struct {
	repo  RepositoryPort
	cache BalanceReader
	group singleflight.Group
}

// NewRegistry constructs the account registry.
func NewRegistry(repo RepositoryPort) *Registry {
	return &Registry{repo: repo}
}

// SetBalanceCache wires the balance read cache.
func (r *Registry) SetBalanceCache(cache BalanceReader) {
	r.cache = cache
}

// CreateAccount validates and persists a chart of accounts node.
func (r *Registry) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	var acct Account
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.ParentID != nil {
			if _, err := tx.GetAccount(ctx, in.ClientID, *in.ParentID); err != nil {
				if errors.Is(err, ErrAccountNotFound) {
					return ErrInvalidParent
				}
				return err
			}
		}
		var err error
		acct, err = tx.InsertAccount(ctx, in)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	return acct, nil
}

// UpdateParent re-hangs an account under a new parent, rejecting chains
// that would loop back through the account itself.
func (r *Registry) UpdateParent(ctx context.Context, clientID, accountID int64, parentID *int64) error {
	if accountID <= 0 {
		return errors.New("accounting: account id required")
	}
	return r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccount(ctx, clientID, accountID); err != nil {
			return err
		}
		if parentID != nil {
			if err := r.ensureNoCycle(ctx, tx, clientID, accountID, *parentID); err != nil {
				return err
			}
		}
		return tx.UpdateAccountParent(ctx, clientID, accountID, parentID)
	})
}

func (r *Registry) ensureNoCycle(ctx context.Context, tx TxRepository, clientID, accountID, parentID int64) error {
	cursor := parentID
	for depth := 0; depth < maxParentDepth; depth++ {
		if cursor == accountID {
			return ErrParentCycle
		}
		parent, err := tx.GetAccount(ctx, clientID, cursor)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return ErrInvalidParent
			}
			return err
		}
		if parent.ParentID == nil {
			return nil
		}
		cursor = *parent.ParentID
	}
	return ErrParentCycle
}

// GetAccount loads a single account.
func (r *Registry) GetAccount(ctx context.Context, clientID, accountID int64) (Account, error) {
	var acct Account
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		acct, err = tx.GetAccount(ctx, clientID, accountID)
		return err
	})
	return acct, err
}

// GetBalance returns the running balance for an account. Reads go
// through the cache when one is wired; concurrent misses for the same
// account are collapsed into a single lookup.
func (r *Registry) GetBalance(ctx context.Context, clientID, accountID int64) (decimal.Decimal, error) {
	if r.cache != nil {
		if balance, ok, err := r.cache.Get(ctx, clientID, accountID); err == nil && ok {
			return balance, nil
		}
	}
	key := fmt.Sprintf("%d:%d", clientID, accountID)
	v, err, _ := r.group.Do(key, func() (any, error) {
		acct, err := r.GetAccount(ctx, clientID, accountID)
		if err != nil {
			return decimal.Decimal{}, err
		}
		if r.cache != nil {
			_ = r.cache.Set(ctx, clientID, accountID, acct.Balance)
		}
		return acct.Balance, nil
	})
	if err != nil {
		return decimal.Decimal{}, err
	}
	return v.(decimal.Decimal), nil
}

// ListAccounts returns the tenant's chart of accounts ordered by code.
func (r *Registry) ListAccounts(ctx context.Context, clientID int64) ([]Account, error) {
	var accounts []Account
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx, clientID)
		return err
	})
	return accounts, err
}

// ListChildren returns the direct children of an account.
func (r *Registry) ListChildren(ctx context.Context, clientID, accountID int64) ([]Account, error) {
	var accounts []Account
	err := r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListChildren(ctx, clientID, accountID)
		return err
	})
	return accounts, err
}

// Deactivate soft-deletes an account. Accounts referenced by posted
// entries are never removed, only flagged inactive.
func (r *Registry) Deactivate(ctx context.Context, clientID, accountID int64) error {
	return r.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeactivateAccount(ctx, clientID, accountID)
	})
}
