package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/opd-token-allocation/internal/events"
)

type fakePublisher struct {
	channel string
	message any
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	f.channel = channel
	f.message = message
	return redis.NewIntResult(1, f.err)
}

func TestEventPublisherRecord(t *testing.T) {
	pub := &fakePublisher{}
	p := NewEventPublisher(pub, "")

	ev := events.EventLog{EventID: "e-1", EventType: events.SlotDelayed, SlotID: "S1"}
	require.NoError(t, p.Record(context.Background(), ev))
	assert.Equal(t, "opd:events", pub.channel)

	var decoded events.EventLog
	require.NoError(t, json.Unmarshal(pub.message.([]byte), &decoded))
	assert.Equal(t, "e-1", decoded.EventID)
	assert.Equal(t, events.SlotDelayed, decoded.EventType)
}

func TestEventPublisherError(t *testing.T) {
	p := NewEventPublisher(&fakePublisher{err: errors.New("READONLY")}, "audit")
	err := p.Record(context.Background(), events.EventLog{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit")
}

// fakeScripter counts hits per key the way the fixed window script does.
type fakeScripter struct {
	counts map[string]int64
	ttl    int64
	err    error
}

func (f *fakeScripter) run(keys []string) *redis.Cmd {
	if f.err != nil {
		return redis.NewCmdResult(nil, f.err)
	}
	f.counts[keys[0]]++
	return redis.NewCmdResult([]any{f.counts[keys[0]], f.ttl}, nil)
}

func (f *fakeScripter) Eval(_ context.Context, _ string, keys []string, _ ...any) *redis.Cmd {
	return f.run(keys)
}

func (f *fakeScripter) EvalSha(_ context.Context, _ string, keys []string, _ ...any) *redis.Cmd {
	return f.run(keys)
}

func (f *fakeScripter) EvalRO(_ context.Context, _ string, keys []string, _ ...any) *redis.Cmd {
	return f.run(keys)
}

func (f *fakeScripter) EvalShaRO(_ context.Context, _ string, keys []string, _ ...any) *redis.Cmd {
	return f.run(keys)
}

func (f *fakeScripter) ScriptExists(context.Context, ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult([]bool{true}, nil)
}

func (f *fakeScripter) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

func TestRateLimiterFixedWindow(t *testing.T) {
	fs := &fakeScripter{counts: map[string]int64{}, ttl: 42_000}
	rl := NewRateLimiter(fs, 2, time.Minute, "")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := rl.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := rl.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 42*time.Second, d.RetryAfter)
	assert.EqualValues(t, 3, fs.counts["opd:rl:10.0.0.1"])

	d, err = rl.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRateLimiterScriptError(t *testing.T) {
	rl := NewRateLimiter(&fakeScripter{err: errors.New("connection refused")}, 2, time.Minute, "x")
	_, err := rl.Allow(context.Background(), "k")
	assert.Error(t, err)
}

func TestParseWindowResult(t *testing.T) {
	c, ttl, err := parseWindowResult([]any{int64(3), "1500"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, c)
	assert.EqualValues(t, 1500, ttl)

	_, _, err = parseWindowResult(int64(3))
	assert.Error(t, err)
	_, _, err = parseWindowResult([]any{3.5, int64(1)})
	assert.Error(t, err)
}

func TestClientOptions(t *testing.T) {
	opts := clientOptions("localhost:6379", "opd", "secret")

	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, "opd", opts.Username)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, clientName, opts.ClientName)
	assert.Equal(t, 10, opts.PoolSize)
	assert.Less(t, opts.ReadTimeout, 2*time.Second)
}

func TestNewRedisClientUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := NewRedisClient(ctx, "127.0.0.1:1", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis 127.0.0.1:1")
}
