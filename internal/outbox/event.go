// Package outbox carries notifications out of the transactional core. Events
// are written in the same unit of work as the transition that caused them and
// relayed afterwards, at most once, to best-effort sinks.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "archivist/pkg/domain"
)

// Kind names the event for consumers.
type Kind string

const (
	KindRequestCreated       Kind = "request.created"
	KindRequestTransitioned  Kind = "request.transitioned"
	KindContainerArchived    Kind = "container.archived"
	KindSignatureInvalidated Kind = "signature.invalidated"
)

// Event is one pending notification. DispatchedAt is set when a relay claims
// it, before delivery.
type Event struct {
	ID           id.EventID      `json:"id"`
	Kind         Kind            `json:"kind"`
	AggregateID  uuid.UUID       `json:"aggregate_id"`
	UnitID       id.UnitID       `json:"unit_id"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"created_at"`
	DispatchedAt *time.Time      `json:"dispatched_at,omitempty"`
}

// NewEvent marshals payload into a new pending event.
func NewEvent(kind Kind, aggregateID uuid.UUID, unit id.UnitID, payload any, now time.Time) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal outbox payload: %w", err)
	}
	return &Event{
		ID:          id.NewEventID(),
		Kind:        kind,
		AggregateID: aggregateID,
		UnitID:      unit,
		Payload:     raw,
		CreatedAt:   now.UTC(),
	}, nil
}
