package opd

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
	"github.com/hackgods/opd-token-allocation/internal/doctor"
	"github.com/hackgods/opd-token-allocation/internal/events"
	"github.com/hackgods/opd-token-allocation/internal/telemetry"
)

// DoctorDetail is a doctor together with the current state of its slots.
type DoctorDetail struct {
	doctor.Doctor
	Slots []allocation.SlotInfo `json:"slots"`
}

type SlotInput struct {
	ID        string
	DoctorID  string
	StartTime string
	EndTime   string
	Capacity  int
}

func (s *Service) CreateDoctor(ctx context.Context, id, name string) (d doctor.Doctor, err error) {
	ctx, span := telemetry.StartSpan(ctx, "opd.CreateDoctor")
	defer func() {
		telemetry.EndSpan(span, err)
		s.metrics.Op(ctx, "create_doctor", err)
	}()

	d, err = s.doctors.Create(id, name)
	if err != nil {
		return doctor.Doctor{}, err
	}
	s.log.Info().Str("doctor_id", d.ID).Str("name", d.Name).Msg("doctor created")
	return d, nil
}

func (s *Service) ListDoctors(ctx context.Context) []doctor.Doctor {
	_, span := telemetry.StartSpan(ctx, "opd.ListDoctors")
	defer span.End()
	return s.doctors.List()
}

func (s *Service) GetDoctor(ctx context.Context, id string) (detail DoctorDetail, err error) {
	ctx, span := telemetry.StartSpan(ctx, "opd.GetDoctor", attribute.String("doctor.id", id))
	defer func() {
		telemetry.EndSpan(span, err)
		s.metrics.Op(ctx, "get_doctor", err)
	}()

	d, err := s.doctors.Get(id)
	if err != nil {
		return DoctorDetail{}, err
	}
	return DoctorDetail{Doctor: d, Slots: s.slotInfos(d.SlotIDs)}, nil
}

func (s *Service) UpdateDoctor(ctx context.Context, id, name string) (d doctor.Doctor, err error) {
	ctx, span := telemetry.StartSpan(ctx, "opd.UpdateDoctor", attribute.String("doctor.id", id))
	defer func() {
		telemetry.EndSpan(span, err)
		s.metrics.Op(ctx, "update_doctor", err)
	}()

	d, err = s.doctors.Rename(id, name)
	if err != nil {
		return doctor.Doctor{}, err
	}
	s.log.Info().Str("doctor_id", id).Str("name", d.Name).Msg("doctor updated")
	return d, nil
}

func (s *Service) DeleteDoctor(ctx context.Context, id string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "opd.DeleteDoctor", attribute.String("doctor.id", id))
	defer func() {
		telemetry.EndSpan(span, err)
		s.metrics.Op(ctx, "delete_doctor", err)
	}()

	if err := s.doctors.Delete(id); err != nil {
		return err
	}
	s.log.Info().Str("doctor_id", id).Msg("doctor deleted")
	return nil
}

// CreateSlot provisions a slot for an existing doctor and registers it with the engine.
func (s *Service) CreateSlot(ctx context.Context, in SlotInput) (info allocation.SlotInfo, err error) {
	ctx, span := telemetry.StartSpan(ctx, "opd.CreateSlot", attribute.String("doctor.id", in.DoctorID))
	defer func() {
		telemetry.EndSpan(span, err)
		s.metrics.Op(ctx, "create_slot", err)
	}()

	if _, err := s.doctors.Get(in.DoctorID); err != nil {
		return allocation.SlotInfo{}, err
	}

	slot, err := allocation.NewSlot(in.ID, in.DoctorID, in.StartTime, in.EndTime, in.Capacity)
	if err != nil {
		return allocation.SlotInfo{}, err
	}
	if err := s.engine.AddSlot(slot); err != nil {
		return allocation.SlotInfo{}, err
	}
	if err := s.doctors.AttachSlot(in.DoctorID, slot.ID()); err != nil {
		// doctor removed concurrently; the slot stays registered with the engine
		return allocation.SlotInfo{}, fmt.Errorf("attach slot %s: %w", slot.ID(), err)
	}

	info = slot.Info()
	s.log.Info().
		Str("slot_id", info.ID).
		Str("doctor_id", info.DoctorID).
		Str("start_time", info.StartTime).
		Str("end_time", info.EndTime).
		Int("capacity", info.Capacity).
		Msg("slot created")

	s.logEvent(ctx, events.SlotCreated, info.ID, "", map[string]any{
		"doctor_id":  info.DoctorID,
		"start_time": info.StartTime,
		"end_time":   info.EndTime,
		"capacity":   info.Capacity,
	})
	return info, nil
}

func (s *Service) DoctorSlots(ctx context.Context, doctorID string) (infos []allocation.SlotInfo, err error) {
	ctx, span := telemetry.StartSpan(ctx, "opd.DoctorSlots", attribute.String("doctor.id", doctorID))
	defer func() {
		telemetry.EndSpan(span, err)
		s.metrics.Op(ctx, "doctor_slots", err)
	}()

	ids, err := s.doctors.SlotIDs(doctorID)
	if err != nil {
		return nil, err
	}
	return s.slotInfos(ids), nil
}

// SlotStatusAt reports the first slot of the doctor starting at startTime.
func (s *Service) SlotStatusAt(ctx context.Context, doctorID, startTime string) (st allocation.SlotStatus, err error) {
	ctx, span := telemetry.StartSpan(ctx, "opd.SlotStatusAt",
		attribute.String("doctor.id", doctorID),
		attribute.String("slot.start_time", startTime),
	)
	defer func() {
		telemetry.EndSpan(span, err)
		s.metrics.Op(ctx, "slot_status", err)
	}()

	ids, err := s.doctors.SlotIDs(doctorID)
	if err != nil {
		return allocation.SlotStatus{}, err
	}
	for _, id := range ids {
		slot, err := s.engine.GetSlot(id)
		if err != nil {
			continue
		}
		if slot.StartTime() == startTime {
			return s.engine.SlotStatus(id)
		}
	}
	return allocation.SlotStatus{}, fmt.Errorf("%w: %s for doctor %s", allocation.ErrSlotNotFound, startTime, doctorID)
}

func (s *Service) UpdateSlot(ctx context.Context, slotID string, upd allocation.SlotUpdate) (info allocation.SlotInfo, err error) {
	ctx, span := telemetry.StartSpan(ctx, "opd.UpdateSlot", attribute.String("slot.id", slotID))
	defer func() {
		telemetry.EndSpan(span, err)
		s.metrics.Op(ctx, "update_slot", err)
	}()

	info, err = s.engine.UpdateSlot(slotID, upd)
	if err != nil {
		return allocation.SlotInfo{}, err
	}

	payload := map[string]any{}
	if upd.StartTime != nil {
		payload["start_time"] = *upd.StartTime
	}
	if upd.EndTime != nil {
		payload["end_time"] = *upd.EndTime
	}
	if upd.Capacity != nil {
		payload["capacity"] = *upd.Capacity
	}
	s.log.Info().Str("slot_id", slotID).Fields(payload).Msg("slot updated")
	s.logEvent(ctx, events.SlotUpdated, slotID, "", payload)
	return info, nil
}

func (s *Service) DelaySlot(ctx context.Context, slotID string, delayMinutes int) (res allocation.DelayResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "opd.DelaySlot",
		attribute.String("slot.id", slotID),
		attribute.Int("delay.minutes", delayMinutes),
	)
	defer func() {
		telemetry.EndSpan(span, err)
		s.metrics.Op(ctx, "delay_slot", err)
	}()

	res, err = s.engine.ExtendSlotEnd(slotID, delayMinutes)
	if err != nil {
		return allocation.DelayResult{}, err
	}

	s.log.Info().
		Str("slot_id", slotID).
		Int("delay_minutes", delayMinutes).
		Str("new_end_time", res.NewEndTime).
		Msg("slot delayed")
	s.logEvent(ctx, events.SlotDelayed, slotID, "", map[string]any{
		"delay_minutes": delayMinutes,
		"prev_end_time": res.PrevEndTime,
		"new_end_time":  res.NewEndTime,
	})
	return res, nil
}

func (s *Service) slotInfos(ids []string) []allocation.SlotInfo {
	out := make([]allocation.SlotInfo, 0, len(ids))
	for _, id := range ids {
		slot, err := s.engine.GetSlot(id)
		if err != nil {
			s.log.Warn().Str("slot_id", id).Msg("doctor references unknown slot")
			continue
		}
		out = append(out, slot.Info())
	}
	return out
}
