package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/neofi/eventledger/internal/auth"
	httperrors "github.com/neofi/eventledger/internal/http/errors"
	"github.com/neofi/eventledger/internal/ledger"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps the core error taxonomy onto HTTP statuses. Forbidden
// deliberately carries no detail: the same body answers "no access" and
// "no such event".
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation), errors.Is(err, auth.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid credentials"})
	case errors.Is(err, ledger.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
	case errors.Is(err, ledger.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, ledger.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "concurrent update conflict, retry the request"})
	case errors.Is(err, auth.ErrAccountExists):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "email or username already registered"})
	default:
		httperrors.LogError(r, "request failed", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}

func parseJSONBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
