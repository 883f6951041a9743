package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
	"github.com/hackgods/opd-token-allocation/internal/doctor"
	"github.com/hackgods/opd-token-allocation/internal/events"
)

func TestHandleServiceError(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"token not found", fmt.Errorf("lookup failed: %w", allocation.ErrTokenNotFound), http.StatusNotFound, allocation.MsgTokenNotFound},
		{"slot not found", fmt.Errorf("token lookup in slot: %w", allocation.ErrSlotNotFound), http.StatusNotFound, allocation.MsgSlotNotFound},
		{"bare not found", allocation.ErrNotFound, http.StatusNotFound, allocation.MsgSlotNotFound},
		{"duplicate token", fmt.Errorf("slot S1: %w", allocation.ErrDuplicateToken), http.StatusConflict, allocation.MsgDuplicateBooking},
		{"slot exists", fmt.Errorf("token T1: %w", allocation.ErrSlotExists), http.StatusConflict, allocation.MsgSlotExists},
		{"doctor not found", fmt.Errorf("doctor D1: %w", doctor.ErrNotFound), http.StatusNotFound, "Doctor not found"},
		{"invalid priority", allocation.ErrInvalidPriority, http.StatusBadRequest, allocation.ErrInvalidPriority.Error()},
		{"no event store", events.ErrUnavailable, http.StatusNotImplemented, "Event history requires Postgres"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Something went wrong"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleServiceError(rec, tc.err)

			assert.Equal(t, tc.code, rec.Code)
			var env Envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, tc.message, env.Message)
		})
	}
}
