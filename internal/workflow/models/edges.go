package models

import (
	"fmt"
	"slices"

	"archivist/internal/identity"
	"archivist/internal/signature"
	dErrors "archivist/pkg/domain-errors"
)

// Action is a transition verb.
type Action string

const (
	ActionApprove            Action = "approve"
	ActionReject             Action = "reject"
	ActionSendBack           Action = "send_back"
	ActionResubmit           Action = "resubmit"
	ActionAllocate           Action = "allocate"
	ActionIssue              Action = "issue"
	ActionReturn             Action = "return"
	ActionClose              Action = "close"
	ActionConfirmDestruction Action = "confirm_destruction"
)

// AllActions lists every transition verb.
var AllActions = []Action{
	ActionApprove, ActionReject, ActionSendBack, ActionResubmit, ActionAllocate,
	ActionIssue, ActionReturn, ActionClose, ActionConfirmDestruction,
}

var allTypes = []Type{TypeStorage, TypeWithdrawal, TypeDestruction}

// Edge is one row of the transition table.
type Edge struct {
	Action     Action
	Types      []Type
	From       []Status
	To         Status
	Capability identity.Capability
	// SignAs is empty for edges that record no signature.
	SignAs signature.ActionType
	// RequesterOnly restricts the edge to the request's own requester.
	RequesterOnly bool
}

// Edges is the complete transition table. Any (status, action, type) not
// listed here is a state conflict.
var Edges = []Edge{
	{Action: ActionApprove, Types: allTypes, From: []Status{StatusPending}, To: StatusApproved,
		Capability: identity.CapApproveRequest, SignAs: signature.ActionApprove},
	{Action: ActionReject, Types: allTypes, From: []Status{StatusPending, StatusSentBack}, To: StatusRejected,
		Capability: identity.CapApproveRequest, SignAs: signature.ActionReject},
	{Action: ActionSendBack, Types: allTypes, From: []Status{StatusPending}, To: StatusSentBack,
		Capability: identity.CapApproveRequest, SignAs: signature.ActionReview},
	{Action: ActionResubmit, Types: allTypes, From: []Status{StatusSentBack}, To: StatusPending,
		Capability: identity.CapCreateRequest, RequesterOnly: true},
	{Action: ActionAllocate, Types: []Type{TypeStorage}, From: []Status{StatusApproved}, To: StatusCompleted,
		Capability: identity.CapAllocateStorage, SignAs: signature.ActionAllocate},
	{Action: ActionAllocate, Types: []Type{TypeWithdrawal}, From: []Status{StatusApproved}, To: StatusAllocated,
		Capability: identity.CapAllocateStorage, SignAs: signature.ActionAllocate},
	{Action: ActionIssue, Types: []Type{TypeWithdrawal}, From: []Status{StatusApproved, StatusAllocated}, To: StatusIssued,
		Capability: identity.CapAllocateStorage, SignAs: signature.ActionIssue},
	{Action: ActionReturn, Types: []Type{TypeWithdrawal}, From: []Status{StatusIssued}, To: StatusReturned,
		Capability: identity.CapAllocateStorage, SignAs: signature.ActionReturn},
	{Action: ActionClose, Types: []Type{TypeWithdrawal}, From: []Status{StatusReturned}, To: StatusCompleted,
		Capability: identity.CapAllocateStorage, SignAs: signature.ActionAcknowledge},
	{Action: ActionConfirmDestruction, Types: []Type{TypeDestruction}, From: []Status{StatusApproved}, To: StatusCompleted,
		Capability: identity.CapConfirmDestruction, SignAs: signature.ActionDestroy},
}

// CapabilityFor returns the capability an action requires. Each action needs
// the same capability for every request type.
func CapabilityFor(action Action) (identity.Capability, bool) {
	for _, e := range Edges {
		if e.Action == action {
			return e.Capability, true
		}
	}
	return 0, false
}

// IsRequesterOnly reports whether only the requester may take action.
func IsRequesterOnly(action Action) bool {
	for _, e := range Edges {
		if e.Action == action {
			return e.RequesterOnly
		}
	}
	return false
}

// FindEdge looks up the edge for (action, type, from).
func FindEdge(action Action, t Type, from Status) (Edge, error) {
	for _, e := range Edges {
		if e.Action == action && slices.Contains(e.Types, t) && slices.Contains(e.From, from) {
			return e, nil
		}
	}
	return Edge{}, dErrors.New(dErrors.CodeStateConflict,
		fmt.Sprintf("cannot %s a %s request in status %s", action, t, from))
}
