package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
	"github.com/hackgods/opd-token-allocation/internal/opd"
)

func createDoctorHandler(svc *opd.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateDoctorRequest
		if !decodeBody(w, r, &req) {
			return
		}

		var fe fieldErrors
		fe.name("name", req.Name)
		if fe.write(w) {
			return
		}

		d, err := svc.CreateDoctor(r.Context(), req.ID, req.Name)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeData(w, http.StatusCreated, "Doctor added successfully", map[string]any{"doctor": d})
	}
}

func listDoctorsHandler(svc *opd.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors := svc.ListDoctors(r.Context())
		writeList(w, len(doctors), map[string]any{"doctors": doctors})
	}
}

func getDoctorHandler(svc *opd.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := svc.GetDoctor(r.Context(), chi.URLParam(r, "doctorId"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, "", map[string]any{"doctor": detail})
	}
}

func updateDoctorHandler(svc *opd.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateDoctorRequest
		if !decodeBody(w, r, &req) {
			return
		}

		var fe fieldErrors
		fe.name("name", req.Name)
		if fe.write(w) {
			return
		}

		d, err := svc.UpdateDoctor(r.Context(), chi.URLParam(r, "doctorId"), req.Name)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, "Doctor updated successfully", map[string]any{"doctor": d})
	}
}

func deleteDoctorHandler(svc *opd.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteDoctor(r.Context(), chi.URLParam(r, "doctorId")); err != nil {
			handleServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func createSlotHandler(svc *opd.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSlotRequest
		if !decodeBody(w, r, &req) {
			return
		}

		var fe fieldErrors
		fe.required("doctorId", req.DoctorID)
		fe.timeLabel("startTime", req.StartTime)
		fe.timeLabel("endTime", req.EndTime)
		fe.intRange("capacity", req.Capacity, minCapacity, maxCapacity)
		if fe.write(w) {
			return
		}

		info, err := svc.CreateSlot(r.Context(), opd.SlotInput{
			ID:        req.ID,
			DoctorID:  req.DoctorID,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Capacity:  req.Capacity,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeData(w, http.StatusCreated, "Slot added successfully", map[string]any{"slot": info})
	}
}

func doctorSlotsHandler(svc *opd.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slots, err := svc.DoctorSlots(r.Context(), chi.URLParam(r, "doctorId"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeList(w, len(slots), map[string]any{"slots": slots})
	}
}

func slotStatusHandler(svc *opd.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		at := chi.URLParam(r, "time")

		var fe fieldErrors
		fe.timeLabel("time", at)
		if fe.write(w) {
			return
		}

		st, err := svc.SlotStatusAt(r.Context(), chi.URLParam(r, "doctorId"), at)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, "", st)
	}
}

func slotEventsHandler(svc *opd.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, `"limit" must be a positive integer`)
				return
			}
			limit = n
		}

		evs, err := svc.SlotEvents(r.Context(), chi.URLParam(r, "slotId"), limit)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeList(w, len(evs), map[string]any{"events": evs})
	}
}

func updateSlotHandler(svc *opd.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateSlotRequest
		if !decodeBody(w, r, &req) {
			return
		}

		var fe fieldErrors
		if req.StartTime != nil {
			fe.timeLabel("startTime", *req.StartTime)
		}
		if req.EndTime != nil {
			fe.timeLabel("endTime", *req.EndTime)
		}
		if req.Capacity != nil {
			fe.intRange("capacity", *req.Capacity, minCapacity, maxCapacity)
		}
		if req.StartTime == nil && req.EndTime == nil && req.Capacity == nil {
			fe.add("at least one of startTime, endTime or capacity is required")
		}
		if fe.write(w) {
			return
		}

		info, err := svc.UpdateSlot(r.Context(), chi.URLParam(r, "slotId"), allocation.SlotUpdate{
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Capacity:  req.Capacity,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, "Slot updated successfully", map[string]any{"slot": info})
	}
}

func delaySlotHandler(svc *opd.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DelaySlotRequest
		if !decodeBody(w, r, &req) {
			return
		}

		var fe fieldErrors
		fe.intRange("delayMinutes", req.DelayMinutes, minDelayMinutes, maxDelayMinutes)
		if fe.write(w) {
			return
		}

		res, err := svc.DelaySlot(r.Context(), chi.URLParam(r, "slotId"), req.DelayMinutes)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, "", DelayResponse{
			Success:     true,
			Message:     res.Message,
			PrevEndTime: res.PrevEndTime,
			NewEndTime:  res.NewEndTime,
		})
	}
}

func bookTokenHandler(svc *opd.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookTokenRequest
		if !decodeBody(w, r, &req) {
			return
		}

		var fe fieldErrors
		fe.required("slotId", req.SlotID)
		fe.required("patientId", req.PatientID)
		priority := fe.priority("priority", req.Priority)
		if fe.write(w) {
			return
		}

		res, err := svc.BookToken(r.Context(), opd.BookInput{
			SlotID:    req.SlotID,
			TokenID:   req.TokenID,
			PatientID: req.PatientID,
			Priority:  priority,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		body := BookResponse{
			Success:             res.Accepted,
			Message:             res.Message,
			WaitingListPosition: res.Position,
			Token:               toTokenResponse(res.Token),
		}
		if !res.Accepted {
			// queued is not a failure
			writeJSON(w, http.StatusAccepted, Envelope{Status: statusPartialSuccess, Data: body})
			return
		}
		writeData(w, http.StatusOK, "", body)
	}
}

func cancelTokenHandler(svc *opd.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CancelTokenRequest
		if !decodeBody(w, r, &req) {
			return
		}

		var fe fieldErrors
		fe.required("slotId", req.SlotID)
		fe.required("tokenId", req.TokenID)
		if fe.write(w) {
			return
		}

		res, err := svc.CancelToken(r.Context(), req.SlotID, req.TokenID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		body := CancelResponse{
			Success:         true,
			Message:         res.Message,
			FromWaitingList: res.FromWaitingList,
		}
		if res.Promoted != nil {
			p := toTokenResponse(*res.Promoted)
			body.Promoted = &p
		}
		writeData(w, http.StatusOK, "", body)
	}
}

func emergencyTokenHandler(svc *opd.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EmergencyTokenRequest
		if !decodeBody(w, r, &req) {
			return
		}

		var fe fieldErrors
		fe.required("slotId", req.SlotID)
		fe.required("patientId", req.PatientID)
		if fe.write(w) {
			return
		}

		res, err := svc.InsertEmergency(r.Context(), req.SlotID, req.TokenID, req.PatientID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		body := EmergencyResponse{
			Success:  res.Accepted,
			Message:  res.Message,
			Overflow: res.Overflow,
			Token:    toTokenResponse(res.Token),
		}
		if res.Preempted != nil {
			p := toTokenResponse(*res.Preempted)
			body.Preempted = &p
		}
		writeData(w, http.StatusOK, "", body)
	}
}

func tokenStatusHandler(svc *opd.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc, err := svc.TokenStatus(r.Context(), chi.URLParam(r, "tokenId"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, "", toTokenStatusResponse(loc))
	}
}

func updateTokenStatusHandler(svc *opd.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateTokenStatusRequest
		if !decodeBody(w, r, &req) {
			return
		}

		var fe fieldErrors
		status := fe.status("status", req.Status)
		if fe.write(w) {
			return
		}

		loc, err := svc.UpdateTokenStatus(r.Context(), chi.URLParam(r, "tokenId"), status)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, "Token status updated successfully", toTokenStatusResponse(loc))
	}
}
