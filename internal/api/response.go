package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
	"github.com/hackgods/opd-token-allocation/internal/doctor"
	"github.com/hackgods/opd-token-allocation/internal/events"
)

const (
	statusSuccess        = "success"
	statusPartialSuccess = "partial_success"
	statusFail           = "fail"
	statusError          = "error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends a fail envelope for 4xx codes and an error envelope otherwise.
func writeError(w http.ResponseWriter, status int, message string) {
	st := statusFail
	if status >= http.StatusInternalServerError {
		st = statusError
	}
	writeJSON(w, status, Envelope{Status: st, Message: message})
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Envelope{Status: statusSuccess, Message: message, Data: data})
}

func writeList(w http.ResponseWriter, n int, data any) {
	writeJSON(w, http.StatusOK, Envelope{Status: statusSuccess, Results: &n, Data: data})
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, doctor.ErrNotFound):
		writeError(w, http.StatusNotFound, "Doctor not found")
	case errors.Is(err, allocation.ErrTokenNotFound):
		writeError(w, http.StatusNotFound, allocation.MsgTokenNotFound)
	case errors.Is(err, allocation.ErrNotFound):
		writeError(w, http.StatusNotFound, allocation.MsgSlotNotFound)
	case errors.Is(err, allocation.ErrDuplicateToken):
		writeError(w, http.StatusConflict, allocation.MsgDuplicateBooking)
	case errors.Is(err, allocation.ErrSlotExists):
		writeError(w, http.StatusConflict, allocation.MsgSlotExists)
	case errors.Is(err, allocation.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, doctor.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, allocation.ErrInvalidPriority),
		errors.Is(err, allocation.ErrInvalidStatus),
		errors.Is(err, allocation.ErrInvalidSlot),
		errors.Is(err, allocation.ErrInvalidTime),
		errors.Is(err, doctor.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, events.ErrUnavailable):
		writeError(w, http.StatusNotImplemented, "Event history requires Postgres")
	default:
		writeError(w, http.StatusInternalServerError, "Something went wrong")
	}
}
