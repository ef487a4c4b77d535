// Package identity resolves the acting principal and the capability set its
// role grants for the current call, and re-verifies credentials for signing.
package identity

import (
	"slices"
	"time"

	id "archivist/pkg/domain"
)

// Status is the soft lifecycle state of a principal. Principals are never
// deleted because signatures reference them.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusLocked    Status = "locked"
)

// Principal is a provisioned user account.
type Principal struct {
	ID           id.PrincipalID
	Username     string
	DisplayName  string
	Email        string
	Role         string
	Units        []id.UnitID
	Status       Status
	PasswordHash string
	CreatedAt    time.Time
}

func (p *Principal) IsActive() bool {
	return p.Status == StatusActive
}

// InUnit reports whether the principal is assigned to unit.
func (p *Principal) InUnit(unit id.UnitID) bool {
	return slices.Contains(p.Units, unit)
}

// Unit is an organizational isolation boundary.
type Unit struct {
	ID   id.UnitID
	Code string
	Name string
}
