package kafkax

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/opd-token-allocation/internal/events"
)

// fakeReader replays msgs, then blocks until ctx is done.
type fakeReader struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	errs   []error
	closed bool
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		f.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func eventMessage(t *testing.T, ev events.EventLog) kafka.Message {
	t.Helper()
	w := &fakeWriter{}
	require.NoError(t, NewEventPublisher(w).Record(context.Background(), ev))
	return w.msgs[0]
}

func TestDecodeEvent(t *testing.T) {
	msg := eventMessage(t, events.EventLog{EventID: "e-1", EventType: events.TokenBooked, SlotID: "DOC001-9"})
	ev, err := DecodeEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, "e-1", ev.EventID)
	assert.Equal(t, events.TokenBooked, ev.EventType)
	assert.Equal(t, "DOC001-9", ev.SlotID)

	_, err = DecodeEvent(kafka.Message{})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = DecodeEvent(kafka.Message{Value: []byte("{")})
	assert.Error(t, err)
}

func TestDecodeEventFallsBackToHeaders(t *testing.T) {
	msg := kafka.Message{
		Key:   []byte("S9"),
		Value: []byte(`{"payload":{}}`),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte("e-9")},
			{Key: "event_type", Value: []byte(events.SlotDelayed)},
		},
	}
	ev, err := DecodeEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, "e-9", ev.EventID)
	assert.Equal(t, events.SlotDelayed, ev.EventType)
	assert.Equal(t, "S9", ev.SlotID)
}

func TestConsumerRunHandlesMessagesAndStops(t *testing.T) {
	r := &fakeReader{
		msgs: []kafka.Message{
			eventMessage(t, events.EventLog{EventID: "e-1", EventType: events.TokenBooked, SlotID: "S"}),
			{Value: []byte("not json")},
			eventMessage(t, events.EventLog{EventID: "e-2", EventType: events.TokenCancelled, SlotID: "S"}),
		},
		errs: []error{errors.New("broker hiccup")},
	}

	var mu sync.Mutex
	var seen []string
	done := make(chan struct{})
	c := NewConsumer(r, func(_ context.Context, ev events.EventLog) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.EventID)
		if len(seen) == 2 {
			close(done)
		}
		return nil
	}, zerolog.Nop())
	c.retryWait = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(stopped)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events not consumed")
	}
	cancel()
	<-stopped

	assert.Equal(t, []string{"e-1", "e-2"}, seen)
	assert.True(t, r.closed)
}

func TestExtractTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	headers := []kafka.Header{{Key: "traceparent", Value: []byte("00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")}}
	sc := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), headers))
	assert.True(t, sc.IsValid())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())
	assert.True(t, sc.IsRemote())
}

func TestDecodeEventKeepsPayload(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{"priority": "paid"})
	msg := eventMessage(t, events.EventLog{EventID: "e-3", EventType: events.TokenQueued, SlotID: "S", Payload: payload})
	ev, err := DecodeEvent(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"priority":"paid"}`, string(ev.Payload))
}
