package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/markdave123-py/samurai-chat/internal/core"
)

var kindStatus = map[string]int{
	"unauthenticated":      http.StatusUnauthorized,
	"forbidden":            http.StatusForbidden,
	"not_found":            http.StatusNotFound,
	"invalid_input":        http.StatusBadRequest,
	"invalid_role":         http.StatusBadRequest,
	"conflict":             http.StatusConflict,
	"name_space_exhausted": http.StatusConflict,
	"dispatch":             http.StatusBadGateway,
	"dispatch_timeout":     http.StatusGatewayTimeout,
	"config":               http.StatusInternalServerError,
	"storage":              http.StatusInternalServerError,
	"internal":             http.StatusInternalServerError,
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	if s, ok := kindStatus[core.Kind(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders the error envelope. Server-side faults get a fixed message
// so that paths and upstream details never reach the caller.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error, extra map[string]any) {
	kind := core.Kind(err)
	status := StatusFor(err)

	msg := err.Error()
	switch {
	case errors.Is(err, core.ErrDispatchTimeout):
		msg = "inference engine timed out"
	case errors.Is(err, core.ErrDispatch):
		msg = "inference engine unavailable"
	case status >= http.StatusInternalServerError:
		msg = "internal error"
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "kind", kind, "error", err)
	} else {
		logger.Debug("request rejected", "kind", kind, "error", err)
	}

	body := map[string]any{"ok": false, "error": msg, "kind": kind}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return core.ErrInvalidInput
	}
	return nil
}
