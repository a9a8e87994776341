package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yoyaku-app/yoyaku/internal/booking"
)

// Error codes surfaced in the JSON envelope, matching the public API contract.
const (
	codeInvalidRequest  = "INVALID_REQUEST"
	codeResourceMissing = "RESOURCE_NOT_FOUND"
	codeInvalidTimeSlot = "INVALID_TIME_SLOT"
	codeSlotConflict    = "TIME_SLOT_CONFLICT"
	codeBookingMissing  = "BOOKING_NOT_FOUND"
	codeInternal        = "INTERNAL_SERVER_ERROR"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, map[string]any{"data": v})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"error": errorBody{Code: code, Message: message}})
}

// writeEngineError maps the engine's typed errors onto HTTP statuses.
// StorageError details go to the log, never to the response body.
func writeEngineError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, booking.ErrResourceNotFound):
		writeError(w, http.StatusNotFound, codeResourceMissing, "resource not found")
	case errors.Is(err, booking.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, codeBookingMissing, "booking not found")
	case errors.Is(err, booking.ErrInvalidTimeSlot):
		writeError(w, http.StatusBadRequest, codeInvalidTimeSlot, "requested time slot is invalid")
	case errors.Is(err, booking.ErrTimeSlotConflict):
		writeError(w, http.StatusConflict, codeSlotConflict, "requested time slot is already booked")
	default:
		logger.Error("booking engine error", "err", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}
