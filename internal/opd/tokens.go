package opd

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
	"github.com/hackgods/opd-token-allocation/internal/events"
	"github.com/hackgods/opd-token-allocation/internal/telemetry"
)

type BookInput struct {
	SlotID    string
	TokenID   string
	PatientID string
	Priority  allocation.Priority
}

// BookToken admits or queues a new token. A queued token is a successful
// outcome, reported with Accepted false and its waiting list position.
func (s *Service) BookToken(ctx context.Context, in BookInput) (res allocation.BookResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "opd.BookToken",
		attribute.String("slot.id", in.SlotID),
		attribute.String("token.priority", in.Priority.String()),
	)
	defer func() {
		telemetry.EndSpan(span, err)
		s.metrics.Op(ctx, "book_token", err)
	}()

	tok, err := allocation.NewToken(in.TokenID, in.PatientID, in.Priority)
	if err != nil {
		return allocation.BookResult{}, err
	}

	res, err = s.engine.Book(in.SlotID, tok)
	if err != nil {
		return allocation.BookResult{}, err
	}
	span.SetAttributes(attribute.Bool("token.accepted", res.Accepted))

	l := s.log.Info().
		Str("slot_id", in.SlotID).
		Str("token_id", res.Token.ID).
		Str("priority", res.Token.Priority.String())
	payload := map[string]any{
		"patient_id": res.Token.PatientID,
		"priority":   res.Token.Priority,
	}

	if res.Accepted {
		l.Msg("token booked")
		s.metrics.TokenAdmitted(ctx, res.Token.Priority.String())
		s.logEvent(ctx, events.TokenBooked, in.SlotID, res.Token.ID, payload)
		return res, nil
	}

	l.Int("position", res.Position).Msg("slot full, token queued")
	s.metrics.TokenQueued(ctx, res.Token.Priority.String())
	payload["position"] = res.Position
	s.logEvent(ctx, events.TokenQueued, in.SlotID, res.Token.ID, payload)
	return res, nil
}

func (s *Service) CancelToken(ctx context.Context, slotID, tokenID string) (res allocation.CancelResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "opd.CancelToken",
		attribute.String("slot.id", slotID),
		attribute.String("token.id", tokenID),
	)
	defer func() {
		telemetry.EndSpan(span, err)
		s.metrics.Op(ctx, "cancel_token", err)
	}()

	res, err = s.engine.Cancel(slotID, tokenID)
	if err != nil {
		return allocation.CancelResult{}, err
	}

	s.log.Info().
		Str("slot_id", slotID).
		Str("token_id", tokenID).
		Bool("from_waiting_list", res.FromWaitingList).
		Msg("token cancelled")
	s.logEvent(ctx, events.TokenCancelled, slotID, tokenID, map[string]any{
		"from_waiting_list": res.FromWaitingList,
		"priority":          res.Cancelled.Priority,
	})

	if res.Promoted != nil {
		s.log.Info().
			Str("slot_id", slotID).
			Str("token_id", res.Promoted.ID).
			Str("priority", res.Promoted.Priority.String()).
			Msg("token promoted from waiting list")
		s.metrics.TokenAdmitted(ctx, res.Promoted.Priority.String())
		s.logEvent(ctx, events.TokenPromoted, slotID, res.Promoted.ID, map[string]any{
			"priority":    res.Promoted.Priority,
			"replaced_by": tokenID,
		})
	}
	return res, nil
}

// InsertEmergency admits an emergency token, preempting a lower priority
// occupant when the slot is full.
func (s *Service) InsertEmergency(ctx context.Context, slotID, tokenID, patientID string) (res allocation.EmergencyResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "opd.InsertEmergency", attribute.String("slot.id", slotID))
	defer func() {
		telemetry.EndSpan(span, err)
		s.metrics.Op(ctx, "insert_emergency", err)
	}()

	tok, err := allocation.NewToken(tokenID, patientID, allocation.PriorityEmergency)
	if err != nil {
		return allocation.EmergencyResult{}, err
	}

	res, err = s.engine.InsertEmergency(slotID, tok)
	if err != nil {
		return allocation.EmergencyResult{}, err
	}
	span.SetAttributes(attribute.Bool("slot.overflow", res.Overflow))

	if res.Preempted != nil {
		s.log.Info().
			Str("slot_id", slotID).
			Str("token_id", res.Preempted.ID).
			Str("priority", res.Preempted.Priority.String()).
			Msg("token preempted to waiting list")
		s.metrics.Preempted(ctx, res.Preempted.Priority.String())
		s.logEvent(ctx, events.TokenPreempted, slotID, res.Preempted.ID, map[string]any{
			"priority":     res.Preempted.Priority,
			"preempted_by": res.Token.ID,
		})
	}

	lvl := zerolog.InfoLevel
	if res.Overflow {
		lvl = zerolog.WarnLevel
	}
	s.log.WithLevel(lvl).
		Str("slot_id", slotID).
		Str("token_id", res.Token.ID).
		Bool("overflow", res.Overflow).
		Msg("emergency token inserted")
	s.metrics.TokenAdmitted(ctx, res.Token.Priority.String())

	payload := map[string]any{
		"patient_id": res.Token.PatientID,
		"overflow":   res.Overflow,
	}
	if res.Preempted != nil {
		payload["preempted_token_id"] = res.Preempted.ID
	}
	s.logEvent(ctx, events.EmergencyInserted, slotID, res.Token.ID, payload)
	return res, nil
}

func (s *Service) TokenStatus(ctx context.Context, tokenID string) (loc allocation.TokenLocation, err error) {
	ctx, span := telemetry.StartSpan(ctx, "opd.TokenStatus", attribute.String("token.id", tokenID))
	defer func() {
		telemetry.EndSpan(span, err)
		s.metrics.Op(ctx, "token_status", err)
	}()

	return s.engine.FindToken(tokenID)
}

func (s *Service) UpdateTokenStatus(ctx context.Context, tokenID string, status allocation.TokenStatus) (loc allocation.TokenLocation, err error) {
	ctx, span := telemetry.StartSpan(ctx, "opd.UpdateTokenStatus",
		attribute.String("token.id", tokenID),
		attribute.String("token.status", string(status)),
	)
	defer func() {
		telemetry.EndSpan(span, err)
		s.metrics.Op(ctx, "update_token_status", err)
	}()

	loc, err = s.engine.UpdateTokenStatus(tokenID, status)
	if err != nil {
		return allocation.TokenLocation{}, err
	}

	s.log.Info().Str("token_id", tokenID).Str("status", string(status)).Msg("token status updated")
	s.logEvent(ctx, events.TokenStatusUpdated, loc.Slot.ID, tokenID, map[string]any{
		"status": status,
	})
	return loc, nil
}
