package models

import (
	"time"

	"archivist/internal/audit"
	"archivist/internal/container"
	"archivist/internal/isolation"
	"archivist/internal/signature"
	id "archivist/pkg/domain"
)

// Type selects the workflow a request follows.
type Type string

const (
	TypeStorage     Type = "storage"
	TypeWithdrawal  Type = "withdrawal"
	TypeDestruction Type = "destruction"
)

func (t Type) IsValid() bool {
	return t == TypeStorage || t == TypeWithdrawal || t == TypeDestruction
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusSentBack  Status = "sent_back"
	StatusApproved  Status = "approved"
	StatusAllocated Status = "allocated"
	StatusIssued    Status = "issued"
	StatusReturned  Status = "returned"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// AllStatuses lists every status, terminal ones included.
var AllStatuses = []Status{
	StatusPending, StatusSentBack, StatusApproved, StatusAllocated,
	StatusIssued, StatusReturned, StatusRejected, StatusCompleted,
}

func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// Request is one workflow instance. It references exactly one container and
// is never deleted; Rejected and Completed are final.
//
// Invariants:
//   - Status only changes through an edge in the declared table
//   - Version increases by one on every persisted change
//   - UnitID equals the container's unit
type Request struct {
	ID               id.RequestID    `json:"id"`
	Type             Type            `json:"type"`
	Status           Status          `json:"status"`
	ContainerID      id.ContainerID  `json:"container_id"`
	UnitID           id.UnitID       `json:"unit_id"`
	RequesterID      id.PrincipalID  `json:"requester_id"`
	Purpose          string          `json:"purpose,omitempty"`
	ExpectedReturnAt *time.Time      `json:"expected_return_at,omitempty"`
	FullWithdrawal   bool            `json:"full_withdrawal"`
	ItemIDs          []id.ItemID     `json:"item_ids,omitempty"`
	IdempotencyKey   string          `json:"-"`
	ApprovedBy       *id.PrincipalID `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	AllocatedBy      *id.PrincipalID `json:"allocated_by,omitempty"`
	AllocatedAt      *time.Time      `json:"allocated_at,omitempty"`
	IssuedBy         *id.PrincipalID `json:"issued_by,omitempty"`
	IssuedAt         *time.Time      `json:"issued_at,omitempty"`
	ReturnedAt       *time.Time      `json:"returned_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	Version          int             `json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewRequest builds a Pending request at version 1.
func NewRequest(t Type, cont *container.Container, requester id.PrincipalID, purpose string, now time.Time) *Request {
	return &Request{
		ID:             id.NewRequestID(),
		Type:           t,
		Status:         StatusPending,
		ContainerID:    cont.ID,
		UnitID:         cont.UnitID,
		RequesterID:    requester,
		Purpose:        purpose,
		FullWithdrawal: true,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// CanApply finds the edge for action from the current status.
func (r *Request) CanApply(action Action) (Edge, error) {
	return FindEdge(action, r.Type, r.Status)
}

// ApplyEdge moves the request along e and stamps the actor fields the edge
// owns. Must only be called with an edge returned by CanApply.
func (r *Request) ApplyEdge(e Edge, actor id.PrincipalID, now time.Time) {
	r.Status = e.To
	r.UpdatedAt = now
	switch e.Action {
	case ActionApprove:
		r.ApprovedBy, r.ApprovedAt = &actor, &now
	case ActionAllocate:
		r.AllocatedBy, r.AllocatedAt = &actor, &now
	case ActionIssue:
		r.IssuedBy, r.IssuedAt = &actor, &now
	case ActionReturn:
		r.ReturnedAt = &now
	}
	if e.To == StatusCompleted {
		r.CompletedAt = &now
	}
}

// IsOpen reports whether the request still blocks its container.
func (r *Request) IsOpen() bool {
	return !r.Status.IsTerminal()
}

// NoticeKind classifies a change notice.
type NoticeKind string

const (
	NoticeChangeRequest NoticeKind = "change_request"
	NoticeReturnNote    NoticeKind = "return_note"
	NoticeRejection     NoticeKind = "rejection"
)

// ChangeNotice is feedback attached to a request; it never alters signatures
// or audit entries.
type ChangeNotice struct {
	ID        id.NoticeID    `json:"id"`
	RequestID id.RequestID   `json:"request_id"`
	Kind      NoticeKind     `json:"kind"`
	Reason    string         `json:"reason"`
	CreatedBy id.PrincipalID `json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
}

// RequestFilter narrows QueryRequests. Scope always applies.
type RequestFilter struct {
	Type        Type
	Status      Status
	ContainerID *id.ContainerID
	RequesterID *id.PrincipalID
	UnitID      *id.UnitID
	Limit       int
	Scope       isolation.Scope
}

func (f RequestFilter) Matches(r *Request) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.ContainerID != nil && r.ContainerID != *f.ContainerID {
		return false
	}
	if f.RequesterID != nil && r.RequesterID != *f.RequesterID {
		return false
	}
	if f.UnitID != nil && r.UnitID != *f.UnitID {
		return false
	}
	return f.Scope.Allows(r.UnitID)
}

// Outcome is the entity graph a create or transition produced.
type Outcome struct {
	Request      *Request             `json:"request"`
	Container    *container.Container `json:"container"`
	Items        []*container.Item    `json:"items,omitempty"`
	Signature    *signature.Signature `json:"signature,omitempty"`
	Notice       *ChangeNotice        `json:"notice,omitempty"`
	AuditEntries []*audit.Entry       `json:"audit_entries"`
	// Replayed is true when an idempotent create returned an earlier result.
	Replayed bool `json:"replayed,omitempty"`
}
