package redisclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/opd-token-allocation/internal/events"
)

// Publisher is the slice of *redis.Client used for pub/sub.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// EventPublisher broadcasts every recorded event on one channel so dashboards
// can follow a slot live.
type EventPublisher struct {
	client  Publisher
	channel string
}

func NewEventPublisher(client Publisher, channel string) *EventPublisher {
	if channel == "" {
		channel = "opd:events"
	}
	return &EventPublisher{client: client, channel: channel}
}

func (p *EventPublisher) Name() string { return "redis" }

func (p *EventPublisher) Record(ctx context.Context, ev events.EventLog) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish event to %s: %w", p.channel, err)
	}
	return nil
}
