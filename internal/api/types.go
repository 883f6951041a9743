package api

import (
	"time"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
)

type CreateDoctorRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type UpdateDoctorRequest struct {
	Name string `json:"name"`
}

type CreateSlotRequest struct {
	ID        string `json:"id"`
	DoctorID  string `json:"doctorId"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Capacity  int    `json:"capacity"`
}

type UpdateSlotRequest struct {
	StartTime *string `json:"startTime"`
	EndTime   *string `json:"endTime"`
	Capacity  *int    `json:"capacity"`
}

type DelaySlotRequest struct {
	DelayMinutes int `json:"delayMinutes"`
}

type BookTokenRequest struct {
	SlotID    string `json:"slotId"`
	TokenID   string `json:"tokenId"`
	PatientID string `json:"patientId"`
	Priority  string `json:"priority"`
}

type CancelTokenRequest struct {
	SlotID  string `json:"slotId"`
	TokenID string `json:"tokenId"`
}

type EmergencyTokenRequest struct {
	SlotID    string `json:"slotId"`
	TokenID   string `json:"tokenId"`
	PatientID string `json:"patientId"`
}

type UpdateTokenStatusRequest struct {
	Status string `json:"status"`
}

// Envelope wraps every API body.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Results *int   `json:"results,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type TokenResponse struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patientId"`
	Priority  string    `json:"priority"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func toTokenResponse(t allocation.Token) TokenResponse {
	return TokenResponse{
		ID:        t.ID,
		PatientID: t.PatientID,
		Priority:  t.Priority.String(),
		Status:    string(t.Status),
		CreatedAt: t.CreatedAt,
	}
}

type BookResponse struct {
	Success             bool          `json:"success"`
	Message             string        `json:"message"`
	WaitingListPosition int           `json:"waitingListPosition,omitempty"`
	Token               TokenResponse `json:"token"`
}

type CancelResponse struct {
	Success         bool           `json:"success"`
	Message         string         `json:"message"`
	FromWaitingList bool           `json:"fromWaitingList"`
	Promoted        *TokenResponse `json:"promoted,omitempty"`
}

type EmergencyResponse struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Overflow  bool           `json:"overflow,omitempty"`
	Preempted *TokenResponse `json:"preempted,omitempty"`
	Token     TokenResponse  `json:"token"`
}

type DelayResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	PrevEndTime string `json:"prevEndTime"`
	NewEndTime  string `json:"newEndTime"`
}

type TokenSlotResponse struct {
	ID                  string `json:"id"`
	DoctorID            string `json:"doctorId"`
	StartTime           string `json:"startTime"`
	EndTime             string `json:"endTime"`
	WaitingListPosition int    `json:"waitingListPosition,omitempty"`
}

type TokenStatusResponse struct {
	Token allocation.Token  `json:"token"`
	Slot  TokenSlotResponse `json:"slot"`
}

func toTokenStatusResponse(loc allocation.TokenLocation) TokenStatusResponse {
	return TokenStatusResponse{
		Token: loc.Token,
		Slot: TokenSlotResponse{
			ID:                  loc.Slot.ID,
			DoctorID:            loc.Slot.DoctorID,
			StartTime:           loc.Slot.StartTime,
			EndTime:             loc.Slot.EndTime,
			WaitingListPosition: loc.WaitingListPosition,
		},
	}
}
