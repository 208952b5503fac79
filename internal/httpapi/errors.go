package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"sptm.org/internal/auth"
)

// errorBody is the wire shape of every error response.
type errorBody struct {
	Type    auth.ErrorType `json:"type"`
	Message string         `json:"message"`
	Code    int            `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error     errorBody `json:"error"`
	Timestamp string    `json:"timestamp"`
	Path      string    `json:"path"`
	RequestID string    `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders any error as the standard envelope. Typed engine errors
// keep their taxonomy; anything else collapses to AUTHENTICATION_FAILED so
// internals never leak.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	typed := auth.AsError(err)
	if typed == nil {
		typed = auth.ErrAuthenticationFailed()
	}
	writeJSON(w, typed.Code, errorEnvelope{
		Error: errorBody{
			Type:    typed.Type,
			Message: typed.Message,
			Code:    typed.Code,
			Details: typed.Details,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// writeBadRequest renders a malformed-input failure that has no engine error
// behind it.
func writeBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, http.StatusBadRequest, errorEnvelope{
		Error: errorBody{
			Type:    "INVALID_REQUEST",
			Message: msg,
			Code:    http.StatusBadRequest,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// decodeJSON relies on the MaxBodyBytes middleware for the size cap so a
// configured limit above the default is honored here too.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{
		Error: errorBody{
			Type:    "METHOD_NOT_ALLOWED",
			Message: "method not allowed",
			Code:    http.StatusMethodNotAllowed,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
		RequestID: RequestIDFromContext(r.Context()),
	})
}
