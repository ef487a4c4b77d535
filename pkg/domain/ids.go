// Package domain holds typed identifiers shared across the workflow modules.
//
// Each identifier wraps a UUID so the compiler refuses to mix, say, a
// ContainerID with a RequestID. Construct identifiers from external input
// with the Parse* functions; they reject empty, malformed and nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "archivist/pkg/domain-errors"
)

type (
	PrincipalID  uuid.UUID
	UnitID       uuid.UUID
	RequestID    uuid.UUID
	ContainerID  uuid.UUID
	ItemID       uuid.UUID
	LocationID   uuid.UUID
	SignatureID  uuid.UUID
	AuditEntryID uuid.UUID
	NoticeID     uuid.UUID
	EventID      uuid.UUID
)

func (id PrincipalID) String() string  { return uuid.UUID(id).String() }
func (id UnitID) String() string       { return uuid.UUID(id).String() }
func (id RequestID) String() string    { return uuid.UUID(id).String() }
func (id ContainerID) String() string  { return uuid.UUID(id).String() }
func (id ItemID) String() string       { return uuid.UUID(id).String() }
func (id LocationID) String() string   { return uuid.UUID(id).String() }
func (id SignatureID) String() string  { return uuid.UUID(id).String() }
func (id AuditEntryID) String() string { return uuid.UUID(id).String() }
func (id NoticeID) String() string     { return uuid.UUID(id).String() }
func (id EventID) String() string      { return uuid.UUID(id).String() }

func (id PrincipalID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id UnitID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ContainerID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ItemID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id LocationID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id SignatureID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id AuditEntryID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id NoticeID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

// parseUUID enforces the identifier invariant: a valid, non-nil UUID.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return u, nil
}

func ParsePrincipalID(s string) (PrincipalID, error) {
	u, err := parseUUID(s, "principal id")
	return PrincipalID(u), err
}

func ParseUnitID(s string) (UnitID, error) {
	u, err := parseUUID(s, "unit id")
	return UnitID(u), err
}

func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s, "request id")
	return RequestID(u), err
}

func ParseContainerID(s string) (ContainerID, error) {
	u, err := parseUUID(s, "container id")
	return ContainerID(u), err
}

func ParseItemID(s string) (ItemID, error) {
	u, err := parseUUID(s, "item id")
	return ItemID(u), err
}

func ParseLocationID(s string) (LocationID, error) {
	u, err := parseUUID(s, "location id")
	return LocationID(u), err
}

func ParseSignatureID(s string) (SignatureID, error) {
	u, err := parseUUID(s, "signature id")
	return SignatureID(u), err
}

// New identifiers are random (v4) UUIDs.

func NewPrincipalID() PrincipalID   { return PrincipalID(uuid.New()) }
func NewUnitID() UnitID             { return UnitID(uuid.New()) }
func NewRequestID() RequestID       { return RequestID(uuid.New()) }
func NewContainerID() ContainerID   { return ContainerID(uuid.New()) }
func NewItemID() ItemID             { return ItemID(uuid.New()) }
func NewLocationID() LocationID     { return LocationID(uuid.New()) }
func NewSignatureID() SignatureID   { return SignatureID(uuid.New()) }
func NewAuditEntryID() AuditEntryID { return AuditEntryID(uuid.New()) }
func NewNoticeID() NoticeID         { return NoticeID(uuid.New()) }
func NewEventID() EventID           { return EventID(uuid.New()) }

// Text encoding keeps the canonical UUID form in JSON and YAML.

func (id PrincipalID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id UnitID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id RequestID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id ContainerID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id ItemID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id LocationID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id SignatureID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id AuditEntryID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id NoticeID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id EventID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }

func (id *PrincipalID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *UnitID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *RequestID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ContainerID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ItemID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *LocationID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *SignatureID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AuditEntryID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *NoticeID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EventID) UnmarshalText(b []byte) error      { return (*uuid.UUID)(id).UnmarshalText(b) }
