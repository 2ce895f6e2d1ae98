package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/storebooks/storebooks/internal/accounting"
	"github.com/storebooks/storebooks/internal/observability"
)

// integrityScanConcurrency caps the per-client fan-out of the scan.
const integrityScanConcurrency = 4

// DriftedAccount describes an account whose stored balance no longer
// matches the sum of its ledger movements.
type DriftedAccount struct {
	ClientID  int64
	AccountID int64
	Code      string
	Balance   decimal.Decimal
	LedgerSum decimal.Decimal
}

// accountLedgerRow pairs an account's stored balance with the uniform
// debit-minus-credit sum of its ledger rows.
type accountLedgerRow struct {
	AccountID int64
	Code      string
	Type      accounting.AccountType
	Balance   decimal.Decimal
	LedgerSum decimal.Decimal
}

// integritySource feeds the scanner account balances and ledger sums.
type integritySource interface {
	ClientIDs(ctx context.Context) ([]int64, error)
	AccountRows(ctx context.Context, clientID int64) ([]accountLedgerRow, error)
}

// IntegrityScanner replays the general ledger per account and compares
// the result with the running balance kept on the account row.
type IntegrityScanner struct {
	src     integritySource
	logger  *slog.Logger
	metrics *observability.Metrics
	conv    accounting.SignConvention
}

// NewIntegrityScanner constructs a scanner for the given pool.
func NewIntegrityScanner(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics, conv accounting.SignConvention) *IntegrityScanner {
	var src integritySource
	if pool != nil {
		src = &pgIntegritySource{pool: pool}
	}
	return &IntegrityScanner{src: src, logger: logger, metrics: metrics, conv: conv}
}

// Run scans every client, or a single one when payload.ClientID is set,
// and reports drifted accounts through logs and the drift gauge.
func (s *IntegrityScanner) Run(ctx context.Context, payload LedgerIntegrityPayload) error {
	if s == nil || s.src == nil {
		return nil
	}
	clients, err := s.clientIDs(ctx, payload.ClientID)
	if err != nil {
		return fmt.Errorf("jobs: list clients: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(integrityScanConcurrency)
	for _, clientID := range clients {
		clientID := clientID
		g.Go(func() error {
			rows, err := s.src.AccountRows(ctx, clientID)
			if err != nil {
				return fmt.Errorf("jobs: scan client %d: %w", clientID, err)
			}
			drifted := s.detectDrift(clientID, rows)
			if s.metrics != nil {
				s.metrics.SetLedgerDrift(clientID, len(drifted))
			}
			for _, d := range drifted {
				s.logger.Warn("ledger drift detected",
					slog.Int64("client_id", d.ClientID),
					slog.Int64("account_id", d.AccountID),
					slog.String("code", d.Code),
					slog.String("balance", d.Balance.StringFixed(2)),
					slog.String("ledger_sum", d.LedgerSum.StringFixed(2)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.logger.Info("ledger integrity scan finished", slog.Int("clients", len(clients)))
	return nil
}

func (s *IntegrityScanner) clientIDs(ctx context.Context, only int64) ([]int64, error) {
	if only > 0 {
		return []int64{only}, nil
	}
	return s.src.ClientIDs(ctx)
}

// detectDrift compares each account's balance against its ledger sum
// under the scanner's sign convention. The source sums uniform deltas;
// strict conventions flip the sign for credit-normal account types.
func (s *IntegrityScanner) detectDrift(clientID int64, rows []accountLedgerRow) []DriftedAccount {
	var drifted []DriftedAccount
	for _, row := range rows {
		sum := row.LedgerSum
		if s.conv == accounting.SignStrict {
			switch row.Type {
			case accounting.AccountTypeLiability, accounting.AccountTypeEquity, accounting.AccountTypeRevenue:
				sum = sum.Neg()
			}
		}
		if !row.Balance.Equal(sum) {
			drifted = append(drifted, DriftedAccount{
				ClientID:  clientID,
				AccountID: row.AccountID,
				Code:      row.Code,
				Balance:   row.Balance,
				LedgerSum: sum,
			})
		}
	}
	return drifted
}

type pgIntegritySource struct {
	pool *pgxpool.Pool
}

func (p *pgIntegritySource) ClientIDs(ctx context.Context) ([]int64, error) {
	rows, err := p.pool.Query(ctx, `SELECT DISTINCT client_id FROM accounts ORDER BY client_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AccountRows recomputes every account balance from the ledger in a
// single aggregate query.
func (p *pgIntegritySource) AccountRows(ctx context.Context, clientID int64) ([]accountLedgerRow, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT a.id, a.code, a.type, a.balance::text,
		       COALESCE(SUM(CASE WHEN g.type = 'debit' THEN g.amount ELSE -g.amount END), 0)::text
		FROM accounts a
		LEFT JOIN general_ledger g ON g.client_id = a.client_id AND g.account_id = a.id
		WHERE a.client_id = $1
		GROUP BY a.id, a.code, a.type, a.balance`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []accountLedgerRow
	for rows.Next() {
		var (
			row                accountLedgerRow
			balanceStr, sumStr string
		)
		if err := rows.Scan(&row.AccountID, &row.Code, &row.Type, &balanceStr, &sumStr); err != nil {
			return nil, err
		}
		if row.Balance, err = decimal.NewFromString(balanceStr); err != nil {
			return nil, fmt.Errorf("parse balance for account %d: %w", row.AccountID, err)
		}
		if row.LedgerSum, err = decimal.NewFromString(sumStr); err != nil {
			return nil, fmt.Errorf("parse ledger sum for account %d: %w", row.AccountID, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
