package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"tally/internal/core"
	"tally/internal/identity"
	"tally/internal/log"
	"tally/internal/records"
	"tally/internal/view"
)

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a size-limited JSON body into dst. An empty body is an
// error unless allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) (empty bool, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			if allowEmpty {
				return true, nil
			}
			return true, errors.New("request body is empty")
		}
		return false, fmt.Errorf("decode request body: %w", err)
	}
	return false, nil
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// parseAfter reads the long-poll version; ok is false when absent.
func parseAfter(r *http.Request) (after uint64, ok bool, err error) {
	v := strings.TrimSpace(r.URL.Query().Get("after"))
	if v == "" {
		return 0, false, nil
	}
	after, err = strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid after %q", v)
	}
	return after, true, nil
}

// eventLog writes through the request logger so events carry the request
// and session ids.
func eventLog(r *http.Request) *log.StructuredLogger {
	return log.NewStructuredLogger(log.FromContext(r.Context()))
}

// handleError maps domain errors to HTTP responses.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.FromContext(r.Context())
	var validation *core.ValidationError
	var store *records.StoreError

	switch {
	case errors.As(err, &validation):
		logger.DebugContext(r.Context(), "Validation error", log.FieldError, err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Field: validation.Field})
	case errors.Is(err, core.ErrInvalidMode):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, view.ErrSignedOut),
		errors.Is(err, view.ErrSessionClosed),
		errors.Is(err, view.ErrUnknownSession),
		errors.Is(err, identity.ErrInvalidToken):
		logger.WarnContext(r.Context(), "Unauthorized", log.FieldError, err)
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &store):
		eventLog(r).LogError(r.Context(), "Record store failure", err, store.Op, nil)
		writeError(w, http.StatusBadGateway, "record store unavailable")
	default:
		eventLog(r).LogError(r.Context(), "Unhandled error", err, "", nil)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
