package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
	"github.com/hackgods/opd-token-allocation/internal/doctor"
	"github.com/hackgods/opd-token-allocation/internal/opd"
	"github.com/hackgods/opd-token-allocation/internal/ratelimit"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	svc     *opd.Service
}

func newTestServer(t *testing.T, mutate ...func(*RouterConfig)) *testServer {
	t.Helper()
	svc := opd.NewService(allocation.NewEngine(), doctor.NewRegistry())
	cfg := RouterConfig{
		Service:        svc,
		Logger:         zerolog.Nop(),
		Env:            "test",
		Version:        "test",
		AllowedOrigins: []string{"*"},
		BodyLimit:      1 << 20,
		RequestTimeout: 5 * time.Second,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return &testServer{t: t, handler: NewRouter(cfg), svc: svc}
}

func (s *testServer) do(method, path string, body any) (*httptest.ResponseRecorder, Envelope) {
	s.t.Helper()

	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		rdr = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env Envelope
	if rec.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

// data re-decodes the envelope payload into v.
func data(t *testing.T, env Envelope, v any) {
	t.Helper()
	raw, err := json.Marshal(env.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

func (s *testServer) seedSlot(capacity int) {
	s.t.Helper()
	rec, _ := s.do(http.MethodPost, "/api/v1/doctors", map[string]any{"id": "DOC001", "name": "Dr. Mehta"})
	require.Equal(s.t, http.StatusCreated, rec.Code)
	rec, _ = s.do(http.MethodPost, "/api/v1/slots", map[string]any{
		"id": "DOC001-9", "doctorId": "DOC001", "startTime": "09:00", "endTime": "10:00", "capacity": capacity,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code)
}

func (s *testServer) book(tokenID, priority string) (*httptest.ResponseRecorder, Envelope) {
	s.t.Helper()
	return s.do(http.MethodPost, "/api/v1/tokens/book", map[string]any{
		"slotId": "DOC001-9", "tokenId": tokenID, "patientId": "P-" + tokenID, "priority": priority,
	})
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var ready ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, "ok", ready.Status)
	assert.Equal(t, "disabled", ready.Dependencies["postgres"])
	assert.Equal(t, "disabled", ready.Dependencies["redis"])

	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var h ServiceHealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, "OPD Token Allocation Engine is running", h.Message)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	rec, env := s.do(http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "fail", env.Status)
	assert.Equal(t, "Can't find /api/v1/nope on this server!", env.Message)
}

func TestDoctorLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(http.MethodPost, "/api/v1/doctors", map[string]any{"id": "DOC001", "name": "Dr. Rao"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Doctor added successfully", env.Message)

	rec, _ = s.do(http.MethodPost, "/api/v1/doctors", map[string]any{"id": "DOC001", "name": "Dr. Rao"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env = s.do(http.MethodPost, "/api/v1/doctors", map[string]any{"name": "X"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Message, `"name"`)

	rec, env = s.do(http.MethodGet, "/api/v1/doctors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.Results)
	assert.Equal(t, 1, *env.Results)

	rec, env = s.do(http.MethodPut, "/api/v1/doctors/DOC001", map[string]any{"name": "Dr. Rao Sr."})
	require.Equal(t, http.StatusOK, rec.Code)
	var upd struct {
		Doctor doctor.Doctor `json:"doctor"`
	}
	data(t, env, &upd)
	assert.Equal(t, "Dr. Rao Sr.", upd.Doctor.Name)

	rec, _ = s.do(http.MethodDelete, "/api/v1/doctors/DOC001", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = s.do(http.MethodGet, "/api/v1/doctors/DOC001", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Doctor not found", env.Message)
}

func TestCreateSlotValidation(t *testing.T) {
	s := newTestServer(t)
	_, _ = s.do(http.MethodPost, "/api/v1/doctors", map[string]any{"id": "DOC001", "name": "Dr. Mehta"})

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"bad time", map[string]any{"doctorId": "DOC001", "startTime": "9am", "endTime": "10:00", "capacity": 5}, http.StatusBadRequest},
		{"capacity zero", map[string]any{"doctorId": "DOC001", "startTime": "09:00", "endTime": "10:00", "capacity": 0}, http.StatusBadRequest},
		{"capacity too large", map[string]any{"doctorId": "DOC001", "startTime": "09:00", "endTime": "10:00", "capacity": 51}, http.StatusBadRequest},
		{"missing doctor id", map[string]any{"startTime": "09:00", "endTime": "10:00", "capacity": 5}, http.StatusBadRequest},
		{"unknown doctor", map[string]any{"doctorId": "DOC404", "startTime": "09:00", "endTime": "10:00", "capacity": 5}, http.StatusNotFound},
		{"ok", map[string]any{"id": "S1", "doctorId": "DOC001", "startTime": "9:00", "endTime": "10:00", "capacity": 5}, http.StatusCreated},
		{"duplicate id", map[string]any{"id": "S1", "doctorId": "DOC001", "startTime": "9:00", "endTime": "10:00", "capacity": 5}, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := s.do(http.MethodPost, "/api/v1/slots", tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestBookingFlow(t *testing.T) {
	s := newTestServer(t)
	s.seedSlot(2)

	rec, env := s.book("T1", "online")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", env.Status)

	rec, _ = s.book("T2", "walk_in")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.book("T3", "paid")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "partial_success", env.Status)
	var queued BookResponse
	data(t, env, &queued)
	assert.False(t, queued.Success)
	assert.Equal(t, allocation.MsgSlotFull, queued.Message)
	assert.Equal(t, 1, queued.WaitingListPosition)

	rec, env = s.book("T1", "online")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, allocation.MsgDuplicateBooking, env.Message)

	rec, env = s.book("T4", "vip")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Message, "priority")

	rec, env = s.do(http.MethodPost, "/api/v1/tokens/book", map[string]any{
		"slotId": "nope", "patientId": "P1", "priority": "paid",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, allocation.MsgSlotNotFound, env.Message)

	rec, env = s.do(http.MethodPost, "/api/v1/tokens/cancel", map[string]any{"slotId": "DOC001-9", "tokenId": "T1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var cancelled CancelResponse
	data(t, env, &cancelled)
	assert.Equal(t, allocation.MsgCancelledPromoted, cancelled.Message)
	require.NotNil(t, cancelled.Promoted)
	assert.Equal(t, "T3", cancelled.Promoted.ID)

	rec, env = s.do(http.MethodPost, "/api/v1/tokens/cancel", map[string]any{"slotId": "DOC001-9", "tokenId": "T1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, allocation.MsgTokenNotFound, env.Message)
}

func TestEmergencyAndStatus(t *testing.T) {
	s := newTestServer(t)
	s.seedSlot(2)
	s.book("T1", "paid")
	s.book("T2", "walk_in")

	rec, env := s.do(http.MethodPost, "/api/v1/tokens/emergency", map[string]any{
		"slotId": "DOC001-9", "tokenId": "E1", "patientId": "PE",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var em EmergencyResponse
	data(t, env, &em)
	assert.True(t, em.Success)
	assert.Equal(t, "emergency", em.Token.Priority)
	require.NotNil(t, em.Preempted)
	assert.Equal(t, "T2", em.Preempted.ID)

	rec, env = s.do(http.MethodGet, "/api/v1/slots/DOC001/09:00/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st allocation.SlotStatus
	data(t, env, &st)
	require.Len(t, st.Tokens, 2)
	assert.Equal(t, "T1", st.Tokens[0].ID)
	assert.Equal(t, "E1", st.Tokens[1].ID)
	require.Len(t, st.WaitingList, 1)
	assert.Equal(t, "T2", st.WaitingList[0].ID)

	rec, env = s.do(http.MethodGet, "/api/v1/tokens/T2/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ts TokenStatusResponse
	data(t, env, &ts)
	assert.Equal(t, "DOC001-9", ts.Slot.ID)
	assert.Equal(t, 1, ts.Slot.WaitingListPosition)

	rec, env = s.do(http.MethodPut, "/api/v1/tokens/T1/status", map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Token status updated successfully", env.Message)

	rec, _ = s.do(http.MethodPut, "/api/v1/tokens/T1/status", map[string]any{"status": "done"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = s.do(http.MethodGet, "/api/v1/tokens/ZZZ/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, allocation.MsgTokenNotFound, env.Message)

	rec, _ = s.do(http.MethodGet, "/api/v1/slots/DOC001/9am/status", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSlotDelayAndUpdate(t *testing.T) {
	s := newTestServer(t)
	s.seedSlot(5)

	rec, env := s.do(http.MethodPost, "/api/v1/slots/DOC001-9/delay", map[string]any{"delayMinutes": 30})
	require.Equal(t, http.StatusOK, rec.Code)
	var d DelayResponse
	data(t, env, &d)
	assert.Equal(t, "Slot timing extended by 30 minutes", d.Message)
	assert.Equal(t, "10:30", d.NewEndTime)

	rec, _ = s.do(http.MethodPost, "/api/v1/slots/DOC001-9/delay", map[string]any{"delayMinutes": 481})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(http.MethodPut, "/api/v1/slots/DOC001-9", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = s.do(http.MethodPut, "/api/v1/slots/DOC001-9", map[string]any{"capacity": 8})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Slot updated successfully", env.Message)

	rec, env = s.do(http.MethodGet, "/api/v1/slots/doctor/DOC001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var slots struct {
		Slots []allocation.SlotInfo `json:"slots"`
	}
	data(t, env, &slots)
	require.Len(t, slots.Slots, 1)
	assert.Equal(t, 8, slots.Slots[0].Capacity)
	assert.Equal(t, "10:30", slots.Slots[0].EndTime)
}

func TestSlotEventsWithoutStore(t *testing.T) {
	s := newTestServer(t)
	s.seedSlot(5)
	rec, _ := s.do(http.MethodGet, "/api/v1/slots/DOC001-9/events", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec, _ = s.do(http.MethodGet, "/api/v1/slots/DOC001-9/events?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(http.MethodPost, "/api/v1/tokens/book", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON body", env.Message)

	rec, _ = s.do(http.MethodPost, "/api/v1/tokens/book", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBodyLimit(t *testing.T) {
	s := newTestServer(t, func(c *RouterConfig) { c.BodyLimit = 16 })
	big := `{"name":"` + strings.Repeat("a", 64) + `"}`
	rec, _ := s.do(http.MethodPost, "/api/v1/doctors", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *RouterConfig) { c.Limiter = ratelimit.NewStore(2, time.Hour) })

	for i := 0; i < 2; i++ {
		rec, _ := s.do(http.MethodGet, "/api/v1/doctors", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, env := s.do(http.MethodGet, "/api/v1/doctors", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, rateLimitMessage, env.Message)
	assert.Equal(t, "1800", rec.Header().Get("Retry-After"))

	// probes are not limited
	rec, _ = s.do(http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/doctors", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "error", env.Status)
}
