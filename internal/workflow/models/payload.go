package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"archivist/internal/container"
	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
)

// PayloadKind is the explicit discriminator of a payload variant.
type PayloadKind string

const (
	PayloadStorage     PayloadKind = "storage"
	PayloadWithdrawal  PayloadKind = "withdrawal"
	PayloadDestruction PayloadKind = "destruction"
	PayloadNone        PayloadKind = "none"
	PayloadReason      PayloadKind = "reason"
	PayloadLocation    PayloadKind = "location"
	PayloadReturn      PayloadKind = "return"
	PayloadResubmit    PayloadKind = "resubmit"
)

// Payload is a tagged union; each variant carries only its own fields.
type Payload interface {
	Kind() PayloadKind
}

type ItemInput struct {
	Number      string             `json:"number"`
	Name        string             `json:"name"`
	Kind        container.ItemKind `json:"kind,omitempty"`
	Description string             `json:"description,omitempty"`
}

// StoragePayload creates a new container with its items.
type StoragePayload struct {
	UnitID          id.UnitID   `json:"unit_id"`
	Purpose         string      `json:"purpose,omitempty"`
	DestructionDate *time.Time  `json:"destruction_date,omitempty"`
	Retained        bool        `json:"retained"`
	Items           []ItemInput `json:"items"`
}

type WithdrawalPayload struct {
	ContainerID      id.ContainerID `json:"container_id"`
	Purpose          string         `json:"purpose,omitempty"`
	ExpectedReturnAt time.Time      `json:"expected_return_at"`
	// FullWithdrawal defaults to true when omitted.
	FullWithdrawal *bool       `json:"full_withdrawal,omitempty"`
	ItemIDs        []id.ItemID `json:"item_ids,omitempty"`
}

type DestructionPayload struct {
	ContainerID id.ContainerID `json:"container_id"`
	Purpose     string         `json:"purpose,omitempty"`
}

// NonePayload is the variant for actions that take no input.
type NonePayload struct{}

// ReasonPayload carries the justification for reject and send_back.
type ReasonPayload struct {
	Reason string `json:"reason"`
}

type LocationPayload struct {
	LocationID id.LocationID `json:"location_id"`
}

type ReturnPayload struct {
	LocationID id.LocationID `json:"location_id"`
	Note       string        `json:"note,omitempty"`
}

// ResubmitPayload holds the fields a requester may edit after a send-back.
// ExpectedReturnAt applies to withdrawals only.
// ResubmitPayload carries the fields a requester may edit on a sent-back
// request. Items stay as filed. DestructionDate and Retained apply to storage
// requests, ExpectedReturnAt to withdrawals.
type ResubmitPayload struct {
	Purpose          *string    `json:"purpose,omitempty"`
	ExpectedReturnAt *time.Time `json:"expected_return_at,omitempty"`
	DestructionDate  *time.Time `json:"destruction_date,omitempty"`
	Retained         *bool      `json:"retained,omitempty"`
}

// ChangesRetention reports whether the resubmit edits the destruction plan.
func (p ResubmitPayload) ChangesRetention() bool {
	return p.DestructionDate != nil || p.Retained != nil
}

// Retention merges the edits over the container's current plan.
func (p ResubmitPayload) Retention(c *container.Container) (bool, *time.Time) {
	retained, date := c.Retained, c.DestructionDate
	if p.Retained != nil {
		retained = *p.Retained
	}
	if p.DestructionDate != nil {
		date = p.DestructionDate
	}
	if retained {
		date = nil
	}
	return retained, date
}

func (StoragePayload) Kind() PayloadKind     { return PayloadStorage }
func (WithdrawalPayload) Kind() PayloadKind  { return PayloadWithdrawal }
func (DestructionPayload) Kind() PayloadKind { return PayloadDestruction }
func (NonePayload) Kind() PayloadKind        { return PayloadNone }
func (ReasonPayload) Kind() PayloadKind      { return PayloadReason }
func (LocationPayload) Kind() PayloadKind    { return PayloadLocation }
func (ReturnPayload) Kind() PayloadKind      { return PayloadReturn }
func (ResubmitPayload) Kind() PayloadKind    { return PayloadResubmit }

// CreatePayloadKind is the variant a create of type t must carry.
func CreatePayloadKind(t Type) PayloadKind {
	return PayloadKind(t)
}

// TransitionPayloadKind is the variant action on a request of type t must
// carry.
func TransitionPayloadKind(action Action, t Type) PayloadKind {
	switch action {
	case ActionReject, ActionSendBack:
		return PayloadReason
	case ActionResubmit:
		return PayloadResubmit
	case ActionReturn:
		return PayloadReturn
	case ActionAllocate:
		if t == TypeStorage {
			return PayloadLocation
		}
	}
	return PayloadNone
}

// Validate checks the storage create rules that need no stored state.
func (p StoragePayload) Validate(now time.Time) error {
	if p.UnitID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "unit_id is required")
	}
	if len(p.Items) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one item is required")
	}
	seen := make(map[string]struct{}, len(p.Items))
	for _, it := range p.Items {
		n := strings.TrimSpace(it.Number)
		if _, dup := seen[n]; dup {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("item number %q appears more than once", n))
		}
		seen[n] = struct{}{}
	}
	if !p.Retained {
		if p.DestructionDate == nil {
			return dErrors.New(dErrors.CodeValidation, "destruction_date is required unless retained")
		}
		if !p.DestructionDate.After(now) {
			return dErrors.New(dErrors.CodeValidation, "destruction_date must be in the future")
		}
	}
	return nil
}

func (p WithdrawalPayload) Validate(now time.Time) error {
	if p.ContainerID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "container_id is required")
	}
	if !p.ExpectedReturnAt.After(now) {
		return dErrors.New(dErrors.CodeValidation, "expected_return_at must be in the future")
	}
	if !p.IsFull() && len(p.ItemIDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "a partial withdrawal must name at least one item")
	}
	return nil
}

func (p WithdrawalPayload) IsFull() bool {
	return p.FullWithdrawal == nil || *p.FullWithdrawal
}

func (p DestructionPayload) Validate() error {
	if p.ContainerID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "container_id is required")
	}
	return nil
}

// Validate requires at least minLength characters after trimming.
func (p ReasonPayload) Validate(minLength int) error {
	if len([]rune(strings.TrimSpace(p.Reason))) < minLength {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("reason must be at least %d characters", minLength))
	}
	return nil
}

func (p LocationPayload) Validate() error {
	if p.LocationID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "location_id is required")
	}
	return nil
}

func (p ReturnPayload) Validate() error {
	if p.LocationID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "location_id is required")
	}
	return nil
}

func (p ResubmitPayload) Validate(t Type, now time.Time) error {
	if p.ChangesRetention() {
		if t != TypeStorage {
			return dErrors.New(dErrors.CodeValidation, "destruction_date and retained apply to storage requests only")
		}
		if p.DestructionDate != nil && !p.DestructionDate.After(now) {
			return dErrors.New(dErrors.CodeValidation, "destruction_date must be in the future")
		}
	}
	if p.ExpectedReturnAt != nil {
		if t != TypeWithdrawal {
			return dErrors.New(dErrors.CodeValidation, "expected_return_at applies to withdrawal requests only")
		}
		if !p.ExpectedReturnAt.After(now) {
			return dErrors.New(dErrors.CodeValidation, "expected_return_at must be in the future")
		}
	}
	return nil
}

type envelope struct {
	Type PayloadKind `json:"type"`
}

// DecodePayload resolves a JSON payload by its "type" field. An empty body
// decodes to NonePayload.
func DecodePayload(raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return NonePayload{}, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "payload is not a JSON object")
	}
	var (
		p   Payload
		err error
	)
	switch env.Type {
	case PayloadStorage:
		p, err = decodeAs[StoragePayload](raw)
	case PayloadWithdrawal:
		p, err = decodeAs[WithdrawalPayload](raw)
	case PayloadDestruction:
		p, err = decodeAs[DestructionPayload](raw)
	case PayloadNone:
		p = NonePayload{}
	case PayloadReason:
		p, err = decodeAs[ReasonPayload](raw)
	case PayloadLocation:
		p, err = decodeAs[LocationPayload](raw)
	case PayloadReturn:
		p, err = decodeAs[ReturnPayload](raw)
	case PayloadResubmit:
		p, err = decodeAs[ResubmitPayload](raw)
	case "":
		return nil, dErrors.New(dErrors.CodeValidation, "payload type is required")
	default:
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown payload type %q", env.Type))
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed "+string(env.Type)+" payload")
	}
	return p, nil
}

func decodeAs[T Payload](raw json.RawMessage) (Payload, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
