package accounting

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/storebooks/storebooks/internal/platform/httpx"
	"github.com/storebooks/storebooks/internal/shared"
)

// Handler exposes the accounting core over HTTP.
type Handler struct {
	logger   *slog.Logger
	registry *Registry
	journal  *Journal
	engine   *Engine
	validate *validator.Validate
}

// NewHandler constructs the accounting HTTP handler.
func NewHandler(logger *slog.Logger, registry *Registry, journal *Journal, engine *Engine) *Handler {
	return &Handler{
		logger:   logger,
		registry: registry,
		journal:  journal,
		engine:   engine,
		validate: validator.New(),
	}
}

func scopeFrom(r *http.Request) (Scope, bool) {
	ts, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		return Scope{}, false
	}
	return Scope{ClientID: ts.ClientID, StoreID: ts.StoreID}, true
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope headers required")
		return
	}
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	acct, err := h.registry.CreateAccount(r.Context(), CreateAccountInput{
		ClientID: scope.ClientID,
		Code:     req.Code,
		Name:     req.Name,
		Type:     AccountType(req.Type),
		ParentID: req.ParentID,
	})
	if err != nil {
		h.logger.Error("create account", slog.Any("error", err))
		RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(acct))
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope headers required")
		return
	}
	accounts, err := h.registry.ListAccounts(r.Context(), scope.ClientID)
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		RespondError(w, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, acct := range accounts {
		out = append(out, toAccountResponse(acct))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) ListChildren(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope headers required")
		return
	}
	accountID, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "account id must be numeric")
		return
	}
	accounts, err := h.registry.ListChildren(r.Context(), scope.ClientID, accountID)
	if err != nil {
		h.logger.Error("list children", slog.Any("error", err))
		RespondError(w, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, acct := range accounts {
		out = append(out, toAccountResponse(acct))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope headers required")
		return
	}
	accountID, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "account id must be numeric")
		return
	}
	balance, err := h.registry.GetBalance(r.Context(), scope.ClientID, accountID)
	if err != nil {
		h.logger.Error("get balance", slog.Any("error", err))
		RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balanceResponse{AccountID: accountID, Balance: balance.StringFixed(2)})
}

func (h *Handler) UpdateParent(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope headers required")
		return
	}
	accountID, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "account id must be numeric")
		return
	}
	var req updateParentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.registry.UpdateParent(r.Context(), scope.ClientID, accountID, req.ParentID); err != nil {
		h.logger.Error("update parent", slog.Any("error", err))
		RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope headers required")
		return
	}
	accountID, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "account id must be numeric")
		return
	}
	if err := h.registry.Deactivate(r.Context(), scope.ClientID, accountID); err != nil {
		h.logger.Error("deactivate account", slog.Any("error", err))
		RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope headers required")
		return
	}
	accountID, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "account id must be numeric")
		return
	}
	from, err := dateQuery(r, "from")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "from must be YYYY-MM-DD")
		return
	}
	to, err := dateQuery(r, "to")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "to must be YYYY-MM-DD")
		return
	}
	rows, err := h.journal.ListLedger(r.Context(), scope, accountID, from, to)
	if err != nil {
		h.logger.Error("list ledger", slog.Any("error", err))
		RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toLedgerResponse(rows))
}

func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope headers required")
		return
	}
	var req createEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		RespondError(w, err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
		return
	}
	refID := uuid.Nil
	if req.ReferenceID != "" {
		refID, err = uuid.Parse(req.ReferenceID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Reference", "reference_id must be a UUID")
			return
		}
	}
	referenceType := req.ReferenceType
	if referenceType == "" {
		referenceType = ReferenceManual
	}
	entry, err := h.journal.CreateEntry(r.Context(), CreateEntryInput{
		Scope:         scope,
		AccountID:     req.AccountID,
		Type:          MovementType(req.Type),
		Amount:        amount,
		Date:          date,
		Description:   req.Description,
		ReferenceType: referenceType,
		ReferenceID:   refID,
	})
	if err != nil {
		h.logger.Error("create entry", slog.Any("error", err))
		RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope headers required")
		return
	}
	posted := r.URL.Query().Get("posted") == "true"
	filter := EntryFilter{ReferenceType: r.URL.Query().Get("reference_type")}
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", "account_id must be numeric")
			return
		}
		filter.AccountID = id
	}
	var entries []JournalEntry
	var err error
	if posted {
		entries, err = h.journal.FindPosted(r.Context(), scope, filter)
	} else {
		entries, err = h.journal.FindUnposted(r.Context(), scope, filter)
	}
	if err != nil {
		h.logger.Error("list entries", slog.Any("error", err))
		RespondError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toEntryResponse(entry))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) PostEntry(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "posted", func(scope Scope, entryID, actorID int64) (JournalEntry, error) {
		return h.engine.Post(r.Context(), scope, entryID, actorID)
	})
}

func (h *Handler) UnpostEntry(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "unposted", func(scope Scope, entryID, actorID int64) (JournalEntry, error) {
		return h.engine.Unpost(r.Context(), scope, entryID, actorID)
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, status string, fn func(Scope, int64, int64) (JournalEntry, error)) {
	scope, ok := scopeFrom(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope headers required")
		return
	}
	entryID, err := idParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be numeric")
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
	entry, err := fn(scope, entryID, req.ActorID)
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, map[string]any{"status": status, "entry": toEntryResponse(entry)})
	case errors.Is(err, ErrAlreadyPosted):
		httpx.JSON(w, http.StatusOK, map[string]any{"status": "already_posted", "entry": toEntryResponse(entry)})
	case errors.Is(err, ErrNotPosted):
		httpx.JSON(w, http.StatusOK, map[string]any{"status": "not_posted", "entry": toEntryResponse(entry)})
	default:
		h.logger.Error("entry transition", slog.String("target", status), slog.Any("error", err))
		RespondError(w, err)
	}
}

func dateQuery(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}
