package accounting

import "github.com/shopspring/decimal"

// SignConvention controls how a movement maps onto a balance delta.
type SignConvention int

const (
	// SignUniform applies debit=+ and credit=- to every account type.
	// This matches the behaviour existing ledger data was written
	// under, so it is the default.
	SignUniform SignConvention = iota
	// SignStrict inverts the delta for liability, equity and revenue
	// accounts, per textbook double-entry bookkeeping.
	SignStrict
)

// Delta returns the signed balance change for applying the movement to
// an account of the given type.
func (c SignConvention) Delta(t AccountType, m MovementType, amount decimal.Decimal) decimal.Decimal {
	d := amount
	if m == MovementCredit {
		d = d.Neg()
	}
	if c == SignStrict {
		switch t {
		case AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue:
			d = d.Neg()
		}
	}
	return d
}
