package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
)

// allowed is written out independently of Edges so the table is checked
// against an explicit expectation, not against itself.
var allowed = map[string]Status{
	"storage/pending/approve":                  StatusApproved,
	"withdrawal/pending/approve":               StatusApproved,
	"destruction/pending/approve":              StatusApproved,
	"storage/pending/reject":                   StatusRejected,
	"withdrawal/pending/reject":                StatusRejected,
	"destruction/pending/reject":               StatusRejected,
	"storage/sent_back/reject":                 StatusRejected,
	"withdrawal/sent_back/reject":              StatusRejected,
	"destruction/sent_back/reject":             StatusRejected,
	"storage/pending/send_back":                StatusSentBack,
	"withdrawal/pending/send_back":             StatusSentBack,
	"destruction/pending/send_back":            StatusSentBack,
	"storage/sent_back/resubmit":               StatusPending,
	"withdrawal/sent_back/resubmit":            StatusPending,
	"destruction/sent_back/resubmit":           StatusPending,
	"storage/approved/allocate":                StatusCompleted,
	"withdrawal/approved/allocate":             StatusAllocated,
	"withdrawal/approved/issue":                StatusIssued,
	"withdrawal/allocated/issue":               StatusIssued,
	"withdrawal/issued/return":                 StatusReturned,
	"withdrawal/returned/close":                StatusCompleted,
	"destruction/approved/confirm_destruction": StatusCompleted,
}

func TestEdgeTableIsExhaustive(t *testing.T) {
	checked := 0
	for _, typ := range allTypes {
		for _, from := range AllStatuses {
			for _, action := range AllActions {
				key := fmt.Sprintf("%s/%s/%s", typ, from, action)
				edge, err := FindEdge(action, typ, from)
				want, ok := allowed[key]
				if ok {
					require.NoError(t, err, key)
					assert.Equal(t, want, edge.To, key)
				} else {
					assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict), key)
				}
				checked++
			}
		}
	}
	assert.Equal(t, len(allTypes)*len(AllStatuses)*len(AllActions), checked)
}

func TestTerminalStatusesHaveNoOutgoingEdge(t *testing.T) {
	for _, e := range Edges {
		for _, from := range e.From {
			assert.False(t, from.IsTerminal(), "edge %s leaves terminal status %s", e.Action, from)
		}
	}
}

func TestEveryEdgeSignsExceptResubmit(t *testing.T) {
	for _, e := range Edges {
		if e.Action == ActionResubmit {
			assert.Empty(t, e.SignAs)
			assert.True(t, e.RequesterOnly)
			continue
		}
		assert.NotEmpty(t, e.SignAs, e.Action)
	}
}

func TestCapabilityIsUniformPerAction(t *testing.T) {
	for _, e := range Edges {
		c, ok := CapabilityFor(e.Action)
		require.True(t, ok)
		assert.Equal(t, c, e.Capability, e.Action)
	}
	_, ok := CapabilityFor("teleport")
	assert.False(t, ok)
}

func TestApplyEdgeStampsActor(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	actor := id.NewPrincipalID()
	r := &Request{Type: TypeWithdrawal, Status: StatusApproved}

	e, err := r.CanApply(ActionIssue)
	require.NoError(t, err)
	r.ApplyEdge(e, actor, now)
	assert.Equal(t, StatusIssued, r.Status)
	assert.Equal(t, actor, *r.IssuedBy)
	assert.Nil(t, r.CompletedAt)

	r.Status = StatusReturned
	e, err = r.CanApply(ActionClose)
	require.NoError(t, err)
	r.ApplyEdge(e, actor, now)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.NotNil(t, r.CompletedAt)
	assert.False(t, r.IsOpen())
}
