package invoices

import (
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

// Handler exposes invoice endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the invoice HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/{id}/pay", h.Pay)
}

type createInvoiceRequest struct {
	CustomerName string `json:"customer_name" validate:"required"`
	Total        string `json:"total" validate:"required"`
	Date         string `json:"date" validate:"required,datetime=2006-01-02"`
}

type payRequest struct {
	ActorID int64 `json:"actor_id" validate:"required,gt=0"`
}

type invoiceResponse struct {
	ID             int64      `json:"id"`
	Number         string     `json:"number"`
	CustomerName   string     `json:"customer_name"`
	Total          string     `json:"total"`
	Date           string     `json:"date"`
	Status         string     `json:"status"`
	JournalEntryID *int64     `json:"journal_entry_id,omitempty"`
	PaidBy         *int64     `json:"paid_by,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
}

func toInvoiceResponse(i Invoice) invoiceResponse {
	return invoiceResponse{
		ID:             i.ID,
		Number:         i.Number,
		CustomerName:   i.CustomerName,
		Total:          i.Total.StringFixed(2),
		Date:           i.InvoiceDate.Format("2006-01-02"),
		Status:         string(i.Status),
		JournalEntryID: i.JournalEntryID,
		PaidBy:         i.PaidBy,
		PaidAt:         i.PaidAt,
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
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	total, err := decimal.NewFromString(req.Total)
	if err != nil {
		accounting.RespondError(w, accounting.ErrInvalidAmount)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
		return
	}
	inv, err := h.service.CreateInvoice(r.Context(), CreateInvoiceInput{
		Scope:        scope,
		CustomerName: req.CustomerName,
		Total:        total.Round(2),
		InvoiceDate:  date,
	})
	if err != nil {
		h.respondServiceError(w, "create invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInvoiceResponse(inv))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope headers required")
		return
	}
	invoices, err := h.service.ListInvoices(r.Context(), scope, Status(r.URL.Query().Get("status")))
	if err != nil {
		h.respondServiceError(w, "list invoices", err)
		return
	}
	out := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, toInvoiceResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope headers required")
		return
	}
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "invoice id must be numeric")
		return
	}
	var req payRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inv, err := h.service.RecordPayment(r.Context(), scope, invoiceID, req.ActorID)
	if err != nil {
		h.respondServiceError(w, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvoiceNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyPaid):
		httpx.Problem(w, http.StatusConflict, "Already Paid", err.Error())
	case errors.Is(err, ErrNoCashAccount):
		httpx.Problem(w, http.StatusConflict, "Missing Configuration", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		accounting.RespondError(w, err)
	}
}
