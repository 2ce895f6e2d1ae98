package accounting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type createAccountRequest struct {
	Code     string `json:"code" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Type     string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	ParentID *int64 `json:"parent_id" validate:"omitempty,gt=0"`
}

type updateParentRequest struct {
	ParentID *int64 `json:"parent_id" validate:"omitempty,gt=0"`
}

type createEntryRequest struct {
	AccountID     int64  `json:"account_id" validate:"required,gt=0"`
	Type          string `json:"type" validate:"required,oneof=debit credit"`
	Amount        string `json:"amount" validate:"required"`
	Date          string `json:"date" validate:"required,datetime=2006-01-02"`
	Description   string `json:"description"`
	ReferenceType string `json:"reference_type" validate:"omitempty,max=32"`
	ReferenceID   string `json:"reference_id" validate:"omitempty,uuid"`
}

type actorRequest struct {
	ActorID int64 `json:"actor_id" validate:"required,gt=0"`
}

type accountResponse struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	ParentID *int64 `json:"parent_id,omitempty"`
	Balance  string `json:"balance"`
	IsActive bool   `json:"is_active"`
}

func toAccountResponse(a Account) accountResponse {
	return accountResponse{
		ID:       a.ID,
		Code:     a.Code,
		Name:     a.Name,
		Type:     string(a.Type),
		ParentID: a.ParentID,
		Balance:  a.Balance.StringFixed(2),
		IsActive: a.IsActive,
	}
}

type entryResponse struct {
	ID            int64      `json:"id"`
	Number        string     `json:"entry_number"`
	Date          string     `json:"entry_date"`
	AccountID     int64      `json:"account_id"`
	Type          string     `json:"type"`
	Amount        string     `json:"amount"`
	Description   string     `json:"description,omitempty"`
	ReferenceType string     `json:"reference_type"`
	ReferenceID   *uuid.UUID `json:"reference_id,omitempty"`
	IsPosted      bool       `json:"is_posted"`
	PostedBy      *int64     `json:"posted_by,omitempty"`
	PostedAt      *time.Time `json:"posted_at,omitempty"`
}

func toEntryResponse(e JournalEntry) entryResponse {
	resp := entryResponse{
		ID:            e.ID,
		Number:        e.Number,
		Date:          e.Date.Format("2006-01-02"),
		AccountID:     e.AccountID,
		Type:          string(e.Type),
		Amount:        e.Amount.StringFixed(2),
		Description:   e.Description,
		ReferenceType: e.ReferenceType,
		IsPosted:      e.IsPosted,
		PostedBy:      e.PostedBy,
		PostedAt:      e.PostedAt,
	}
	if e.ReferenceID != uuid.Nil {
		ref := e.ReferenceID
		resp.ReferenceID = &ref
	}
	return resp
}

type ledgerRowResponse struct {
	ID             int64  `json:"id"`
	AccountID      int64  `json:"account_id"`
	JournalEntryID int64  `json:"journal_entry_id"`
	Date           string `json:"entry_date"`
	Type           string `json:"type"`
	Amount         string `json:"amount"`
	BalanceAfter   string `json:"balance_after"`
	ReferenceType  string `json:"reference_type"`
}

func toLedgerResponse(rows []LedgerEntry) []ledgerRowResponse {
	out := make([]ledgerRowResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, ledgerRowResponse{
			ID:             row.ID,
			AccountID:      row.AccountID,
			JournalEntryID: row.JournalEntryID,
			Date:           row.Date.Format("2006-01-02"),
			Type:           string(row.Type),
			Amount:         row.Amount.StringFixed(2),
			BalanceAfter:   row.BalanceAfter.StringFixed(2),
			ReferenceType:  row.ReferenceType,
		})
	}
	return out
}

type balanceResponse struct {
	AccountID int64  `json:"account_id"`
	Balance   string `json:"balance"`
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	return amount.Round(2), nil
}
