package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"example.com/timesheet/internal/domain"
)

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeDomainError maps a domain outcome onto an HTTP status. Anything that
// is not a domain error is logged and reported as a 500 without details.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		logger.Error("unexpected error", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal server error")
		return
	}

	detail := de.Message
	if detail == "" {
		detail = string(de.Kind)
	}
	switch de.Kind {
	case domain.KindNotFound:
		writeError(w, http.StatusNotFound, "not_found", detail)
	case domain.KindConflict:
		writeError(w, http.StatusConflict, "conflict", detail)
	case domain.KindInvalidArgument:
		writeError(w, http.StatusBadRequest, "invalid_argument", detail)
	case domain.KindInvalidState:
		writeError(w, http.StatusConflict, "invalid_state", detail)
	case domain.KindUnavailable:
		logger.Warn("store unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", detail)
	default:
		logger.Error("unmapped domain error", "kind", de.Kind, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal server error")
	}
}
