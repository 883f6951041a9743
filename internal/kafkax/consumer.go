package kafkax

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/opd-token-allocation/internal/events"
)

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Handler processes one decoded event. Errors are logged and the message is
// not retried.
type Handler func(ctx context.Context, ev events.EventLog) error

func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

type Consumer struct {
	r         MessageReader
	handler   Handler
	log       zerolog.Logger
	retryWait time.Duration
}

func NewConsumer(r MessageReader, handler Handler, logger zerolog.Logger) *Consumer {
	return &Consumer{r: r, handler: handler, log: logger, retryWait: time.Second}
}

// Run reads until ctx is cancelled, then closes the reader.
func (c *Consumer) Run(ctx context.Context) {
	defer func() {
		if err := c.r.Close(); err != nil {
			c.log.Error().Err(err).Msg("close kafka reader")
		}
	}()

	for {
		msg, err := c.r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error().Err(err).Msg("kafka read error")
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryWait):
			}
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	ctx = ExtractTraceContext(ctx, msg.Headers)
	ctx, span := otel.Tracer("github.com/hackgods/opd-token-allocation/kafkax").Start(ctx, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("event.type", HeaderValue(msg.Headers, "event_type")),
		),
	)
	defer span.End()

	ev, err := DecodeEvent(msg)
	if err != nil {
		c.log.Error().Err(err).Int64("offset", msg.Offset).Msg("undecodable event")
		span.RecordError(err)
		return
	}
	if err := c.handler(ctx, ev); err != nil {
		c.log.Error().Err(err).Str("event_id", ev.EventID).Msg("event handler error")
		span.RecordError(err)
	}
}

var ErrEmptyMessage = errors.New("empty kafka message")

// DecodeEvent parses the message value. Header metadata fills fields the body
// leaves empty.
func DecodeEvent(msg kafka.Message) (events.EventLog, error) {
	if len(msg.Value) == 0 {
		return events.EventLog{}, ErrEmptyMessage
	}
	var ev events.EventLog
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return events.EventLog{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.EventID == "" {
		ev.EventID = HeaderValue(msg.Headers, "event_id")
	}
	if ev.EventType == "" {
		ev.EventType = HeaderValue(msg.Headers, "event_type")
	}
	if ev.SlotID == "" {
		ev.SlotID = string(msg.Key)
	}
	return ev, nil
}

func ExtractTraceContext(ctx context.Context, headers []kafka.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, &headerCarrier{headers: headers})
}
