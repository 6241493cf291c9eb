package web

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/caio-sobreiro/dicomarc/errors"
)

// statusOf maps an archive error to its HTTP status.
func statusOf(err error) int {
	var (
		verr *errors.ValidationError
		cerr *errors.CapabilityError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &cerr):
		return http.StatusForbidden
	case errors.Is(err, errors.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrUnsupportedTransfer), errors.Is(err, errors.ErrNotAcceptable):
		return http.StatusNotAcceptable
	}
	return http.StatusInternalServerError
}

// writeError answers with the status of err and a JSON description. Server
// errors are logged and not described to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		loggerFrom(r.Context()).ErrorContext(r.Context(), "Request failed", "error", err)
		msg = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
