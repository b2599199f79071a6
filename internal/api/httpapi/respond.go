package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aerocargo/shiptrack/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps the error-kind taxonomy to HTTP status codes directly
// against apperr's typed errors with errors.As.
func writeError(w http.ResponseWriter, err error) {
	var (
		validation *apperr.ValidationError
		notFound   *apperr.NotFoundError
		denied     *apperr.AccessDeniedError
		duplicate  *apperr.DuplicateError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: validation.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: notFound.Error()})
	case errors.As(err, &denied):
		writeJSON(w, http.StatusForbidden, errorBody{Error: denied.Error()})
	case errors.As(err, &duplicate):
		writeJSON(w, http.StatusConflict, errorBody{Error: duplicate.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func pagination(r *http.Request, maxLimit int) (limit, offset int) {
	limit = intParam(r, "limit", 20)
	if limit < 1 {
		limit = 1
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset = intParam(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func intParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	return n
}
