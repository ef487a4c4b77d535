package audit

import (
	"time"

	"github.com/google/uuid"

	"archivist/internal/isolation"
	id "archivist/pkg/domain"
)

// Action is the verb recorded on an audit entry.
type Action string

const (
	ActionCreated              Action = "Created"
	ActionUpdated              Action = "Updated"
	ActionApproved             Action = "Approved"
	ActionRejected             Action = "Rejected"
	ActionSentBack             Action = "Sent Back"
	ActionResubmitted          Action = "Resubmitted"
	ActionAllocated            Action = "Allocated"
	ActionIssued               Action = "Issued"
	ActionReturned             Action = "Returned"
	ActionCompleted            Action = "Completed"
	ActionDestroyed            Action = "Destroyed"
	ActionArchived             Action = "Archived"
	ActionSignatureApplied     Action = "E-Signature Applied"
	ActionSignatureInvalidated Action = "E-Signature Invalidated"
	ActionSignatureVerified    Action = "E-Signature Verified"
)

// Entry is one append-only audit record. There is no update or delete path.
type Entry struct {
	ID               id.AuditEntryID `json:"id"`
	ActorID          id.PrincipalID  `json:"actor_id"`
	ActorUsername    string          `json:"actor_username"`
	Action           Action          `json:"action"`
	Message          string          `json:"message"`
	TargetEntityType id.EntityType   `json:"target_entity_type"`
	TargetEntityID   uuid.UUID       `json:"target_entity_id"`
	UnitID           *id.UnitID      `json:"unit_id,omitempty"`
	OriginAddress    string          `json:"origin_address,omitempty"`
	OriginClient     string          `json:"origin_client,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Filter narrows a query. Zero fields match everything; Scope always applies.
type Filter struct {
	ActorID    *id.PrincipalID
	Action     Action
	From       time.Time
	To         time.Time
	TargetType id.EntityType
	TargetID   *uuid.UUID
	Limit      int
	Scope      isolation.Scope
}

// Matches applies every filter field except Limit to e.
func (f Filter) Matches(e *Entry) bool {
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.CreatedAt.After(f.To) {
		return false
	}
	if f.TargetType != "" && e.TargetEntityType != f.TargetType {
		return false
	}
	if f.TargetID != nil && e.TargetEntityID != *f.TargetID {
		return false
	}
	if f.Scope.Unscoped {
		return true
	}
	return e.UnitID != nil && f.Scope.Allows(*e.UnitID)
}
