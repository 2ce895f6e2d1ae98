package accounting

import (
	"errors"
	"net/http"

	"github.com/storebooks/storebooks/internal/platform/httpx"
)

// RespondError maps accounting sentinel errors to RFC7807 responses.
// Unknown errors fall through to the generic transport mapping.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrEntryNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateCode):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidParent),
		errors.Is(err, ErrParentCycle),
		errors.Is(err, ErrAccountInactive):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
