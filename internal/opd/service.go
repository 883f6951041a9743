package opd

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
	"github.com/hackgods/opd-token-allocation/internal/doctor"
	"github.com/hackgods/opd-token-allocation/internal/events"
	"github.com/hackgods/opd-token-allocation/internal/telemetry"
)

const defaultSinkTimeout = 2 * time.Second

// Service is the entry point used by transports. It owns no allocation state
// itself: slots live in the engine, doctors in the registry.
type Service struct {
	engine  *allocation.Engine
	doctors *doctor.Registry

	sinks       []events.Sink
	store       events.Store
	sinkTimeout time.Duration

	metrics *telemetry.Metrics
	log     zerolog.Logger
}

type Option func(*Service)

func WithSinks(sinks ...events.Sink) Option {
	return func(s *Service) { s.sinks = append(s.sinks, sinks...) }
}

// WithStore enables SlotEvents. Without it SlotEvents returns events.ErrUnavailable.
func WithStore(store events.Store) Option {
	return func(s *Service) { s.store = store }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithSinkTimeout(d time.Duration) Option {
	return func(s *Service) { s.sinkTimeout = d }
}

func NewService(engine *allocation.Engine, doctors *doctor.Registry, opts ...Option) *Service {
	s := &Service{
		engine:      engine,
		doctors:     doctors,
		sinkTimeout: defaultSinkTimeout,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Engine() *allocation.Engine { return s.engine }

// SlotEvents returns the recorded trail of one slot, newest first.
func (s *Service) SlotEvents(ctx context.Context, slotID string, limit int) (evs []events.EventLog, err error) {
	ctx, span := telemetry.StartSpan(ctx, "opd.SlotEvents", attribute.String("slot.id", slotID))
	defer func() {
		telemetry.EndSpan(span, err)
		s.metrics.Op(ctx, "slot_events", err)
	}()

	if s.store == nil {
		return nil, events.ErrUnavailable
	}
	if _, err := s.engine.GetSlot(slotID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	return s.store.ListBySlot(ctx, slotID, limit)
}

// logEvent fans an event out to every sink. Sink failures are logged and
// counted but never surface to the caller.
func (s *Service) logEvent(ctx context.Context, eventType, slotID, tokenID string, payload map[string]any) {
	if len(s.sinks) == 0 {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("marshal event payload")
		data = nil
	}

	ev := events.EventLog{
		EventID:   uuid.NewString(),
		EventType: eventType,
		SlotID:    slotID,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}
	if tokenID != "" {
		tid := tokenID
		ev.TokenID = &tid
	}

	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sinkTimeout)
	defer cancel()

	for _, sink := range s.sinks {
		if err := sink.Record(sinkCtx, ev); err != nil {
			s.metrics.SinkError(ctx, sink.Name())
			s.log.Warn().
				Err(err).
				Str("sink", sink.Name()).
				Str("event_type", eventType).
				Str("slot_id", slotID).
				Msg("record event")
		}
	}
}
