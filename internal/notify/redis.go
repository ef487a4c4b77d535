package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"archivist/internal/outbox"
	id "archivist/pkg/domain"
)

// Publisher is the part of *redis.Client the sink needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// UnitChannel is the Pub/Sub channel realtime clients of a unit subscribe to.
func UnitChannel(unit id.UnitID) string {
	return "archivist:unit:" + unit.String()
}

// RedisBroadcaster pushes a compact status message to the event's unit channel.
type RedisBroadcaster struct {
	publisher Publisher
}

func NewRedisBroadcaster(publisher Publisher) *RedisBroadcaster {
	return &RedisBroadcaster{publisher: publisher}
}

func (b *RedisBroadcaster) Name() string { return "redis" }

type broadcast struct {
	Kind        outbox.Kind     `json:"kind"`
	AggregateID string          `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
}

func (b *RedisBroadcaster) Deliver(ctx context.Context, event *outbox.Event) error {
	msg, err := json.Marshal(broadcast{
		Kind:        event.Kind,
		AggregateID: event.AggregateID.String(),
		Payload:     event.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal broadcast: %w", err)
	}
	if err := b.publisher.Publish(ctx, UnitChannel(event.UnitID), msg).Err(); err != nil {
		return fmt.Errorf("publish broadcast: %w", err)
	}
	return nil
}
