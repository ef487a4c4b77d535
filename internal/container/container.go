// Package container models the physical container lifecycle:
//
//	Active ⇄ Withdrawn, Archived → Withdrawn, Active → Archived,
//	Active|Archived → Destroyed (terminal)
//
// Status changes follow the Can/Apply split: CanX validates, ApplyX mutates.
// Callers run both inside one unit of work and persist with a
// version-conditional update.
package container

import (
	"time"

	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
)

// Status is the container lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusWithdrawn Status = "withdrawn"
	StatusArchived  Status = "archived"
	StatusDestroyed Status = "destroyed"
)

// edges is the complete container transition table.
var edges = map[Status][]Status{
	StatusActive:    {StatusWithdrawn, StatusArchived, StatusDestroyed},
	StatusArchived:  {StatusWithdrawn, StatusDestroyed},
	StatusWithdrawn: {StatusActive},
	StatusDestroyed: nil,
}

// CanTransitionTo reports whether to is a declared edge from s.
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range edges[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) IsValid() bool {
	_, ok := edges[s]
	return ok
}

// Container groups contained items and tracks where they are kept.
//
// Invariants:
//   - Barcode is unique and set at creation
//   - Destroyed has no outgoing edge
//   - At most one open withdrawal request targets a container; the withdrawal
//     create flips the status immediately so a second one fails CanWithdraw
//   - Version increases by one on every persisted change
type Container struct {
	ID              id.ContainerID `json:"id"`
	UnitID          id.UnitID      `json:"unit_id"`
	Barcode         string         `json:"barcode"`
	Status          Status         `json:"status"`
	LocationID      *id.LocationID `json:"location_id,omitempty"`
	DestructionDate *time.Time     `json:"destruction_date,omitempty"`
	Retained        bool           `json:"retained"`
	CreatedBy       id.PrincipalID `json:"created_by"`
	Version         int            `json:"version"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// New builds an Active container.
func New(containerID id.ContainerID, unit id.UnitID, barcode string, destructionDate *time.Time, retained bool, createdBy id.PrincipalID, now time.Time) (*Container, error) {
	if barcode == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "container barcode cannot be empty")
	}
	if !retained && destructionDate == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "destruction date is required unless the container is retained")
	}
	if retained {
		destructionDate = nil
	}
	return &Container{
		ID:              containerID,
		UnitID:          unit,
		Barcode:         barcode,
		Status:          StatusActive,
		DestructionDate: destructionDate,
		Retained:        retained,
		CreatedBy:       createdBy,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (c *Container) transition(to Status) error {
	if !c.Status.CanTransitionTo(to) {
		return dErrors.New(dErrors.CodeStateConflict,
			"container cannot move from "+string(c.Status)+" to "+string(to))
	}
	return nil
}

// CanWithdraw enforces the withdrawal allow-list {Active, Archived}.
func (c *Container) CanWithdraw() error {
	return c.transition(StatusWithdrawn)
}

func (c *Container) ApplyWithdrawal(now time.Time) {
	c.Status = StatusWithdrawn
	c.UpdatedAt = now
}

// CanRestore checks Withdrawn → Active, used when a withdrawal is rejected.
func (c *Container) CanRestore() error {
	return c.transition(StatusActive)
}

func (c *Container) ApplyRestore(now time.Time) {
	c.Status = StatusActive
	c.UpdatedAt = now
}

// CanReturn checks Withdrawn → Active for a returned container.
func (c *Container) CanReturn() error {
	return c.transition(StatusActive)
}

// ApplyReturn reactivates the container at a (possibly new) location.
func (c *Container) ApplyReturn(location id.LocationID, now time.Time) {
	c.Status = StatusActive
	c.LocationID = &location
	c.UpdatedAt = now
}

// CanAllocate accepts a location assignment only for an Active container.
func (c *Container) CanAllocate() error {
	if c.Status != StatusActive {
		return dErrors.New(dErrors.CodeStateConflict, "only an active container can be allocated storage")
	}
	return nil
}

func (c *Container) ApplyAllocation(location id.LocationID, now time.Time) {
	c.LocationID = &location
	c.UpdatedAt = now
}

func (c *Container) CanArchive() error {
	return c.transition(StatusArchived)
}

func (c *Container) ApplyArchive(now time.Time) {
	c.Status = StatusArchived
	c.UpdatedAt = now
}

// CanReschedule checks a new destruction plan: a container that is not
// retained needs a destruction date in the future, and a destroyed one keeps
// its plan.
func (c *Container) CanReschedule(retained bool, destructionDate *time.Time, now time.Time) error {
	if c.Status == StatusDestroyed {
		return dErrors.New(dErrors.CodeStateConflict, "a destroyed container cannot be rescheduled")
	}
	if retained {
		return nil
	}
	if destructionDate == nil {
		return dErrors.New(dErrors.CodeValidation, "destruction_date is required unless retained")
	}
	if !destructionDate.After(now) {
		return dErrors.New(dErrors.CodeValidation, "destruction_date must be in the future")
	}
	return nil
}

func (c *Container) ApplyReschedule(retained bool, destructionDate *time.Time, now time.Time) {
	c.Retained = retained
	if retained {
		c.DestructionDate = nil
	} else {
		at := destructionDate.UTC()
		c.DestructionDate = &at
	}
	c.UpdatedAt = now
}

// CanDestroy accepts Active or Archived only.
func (c *Container) CanDestroy() error {
	return c.transition(StatusDestroyed)
}

func (c *Container) ApplyDestruction(now time.Time) {
	c.Status = StatusDestroyed
	c.UpdatedAt = now
}
