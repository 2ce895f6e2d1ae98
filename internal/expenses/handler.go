package expenses

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/storebooks/storebooks/internal/accounting"
	"github.com/storebooks/storebooks/internal/platform/httpx"
	"github.com/storebooks/storebooks/internal/shared"
)

// Handler exposes expense endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the expense HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches expense routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/{id}/approve", h.Approve)
	r.Post("/{id}/reject", h.Reject)
}

type createExpenseRequest struct {
	CategoryID  int64  `json:"category_id" validate:"required,gt=0"`
	Amount      string `json:"amount" validate:"required"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Description string `json:"description"`
}

type actorRequest struct {
	ActorID int64 `json:"actor_id" validate:"required,gt=0"`
}

type expenseResponse struct {
	ID             int64      `json:"id"`
	Number         string     `json:"number"`
	CategoryID     int64      `json:"category_id"`
	Amount         string     `json:"amount"`
	Description    string     `json:"description,omitempty"`
	Date           string     `json:"date"`
	Status         string     `json:"status"`
	JournalEntryID *int64     `json:"journal_entry_id,omitempty"`
	ApprovedBy     *int64     `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
}

func toExpenseResponse(e Expense) expenseResponse {
	return expenseResponse{
		ID:             e.ID,
		Number:         e.Number,
		CategoryID:     e.CategoryID,
		Amount:         e.Amount.StringFixed(2),
		Description:    e.Description,
		Date:           e.ExpenseDate.Format("2006-01-02"),
		Status:         string(e.Status),
		JournalEntryID: e.JournalEntryID,
		ApprovedBy:     e.ApprovedBy,
		ApprovedAt:     e.ApprovedAt,
	}
}

func scopeFrom(r *http.Request) (accounting.Scope, bool) {
	ts, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		return accounting.Scope{}, false
	}
	return accounting.Scope{ClientID: ts.ClientID, StoreID: ts.StoreID}, true
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope headers required")
		return
	}
	var req createExpenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimalFrom(req.Amount)
	if err != nil {
		accounting.RespondError(w, err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
		return
	}
	exp, err := h.service.CreateExpense(r.Context(), CreateExpenseInput{
		Scope:       scope,
		CategoryID:  req.CategoryID,
		Amount:      amount,
		Description: req.Description,
		ExpenseDate: date,
	})
	if err != nil {
		h.respondServiceError(w, "create expense", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toExpenseResponse(exp))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope headers required")
		return
	}
	expenses, err := h.service.ListExpenses(r.Context(), scope, Status(r.URL.Query().Get("status")))
	if err != nil {
		h.respondServiceError(w, "list expenses", err)
		return
	}
	out := make([]expenseResponse, 0, len(expenses))
	for _, exp := range expenses {
		out = append(out, toExpenseResponse(exp))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "approve", h.service.Approve)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "reject", h.service.Reject)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, action string, fn func(ctx context.Context, scope accounting.Scope, expenseID, actorID int64) (Expense, error)) {
	scope, ok := scopeFrom(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope headers required")
		return
	}
	expenseID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "expense id must be numeric")
		return
	}
	var req actorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	exp, err := fn(r.Context(), scope, expenseID, req.ActorID)
	if err != nil {
		h.respondServiceError(w, action, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toExpenseResponse(exp))
}

func decimalFrom(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, accounting.ErrInvalidAmount
	}
	return amount.Round(2), nil
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrExpenseNotFound), errors.Is(err, ErrCategoryNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Invalid Status", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		accounting.RespondError(w, err)
	}
}
