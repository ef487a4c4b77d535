// Package isolation narrows reads and writes to the caller's organizational
// units. A caller holding the unscoped capability sees every unit.
package isolation

import (
	"slices"

	"archivist/internal/identity"
	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
)

// Scope is the set of units a caller may touch.
type Scope struct {
	Unscoped bool
	Units    []id.UnitID
}

// For derives the scope of a resolved caller.
func For(c *identity.Caller) Scope {
	if c == nil || c.Principal == nil {
		return Scope{}
	}
	if c.Has(identity.CapUnscoped) {
		return Scope{Unscoped: true}
	}
	return Scope{Units: slices.Clone(c.Principal.Units)}
}

// Allows reports whether unit is inside the scope.
func (s Scope) Allows(unit id.UnitID) bool {
	if s.Unscoped {
		return true
	}
	return slices.Contains(s.Units, unit)
}

// Empty reports whether the scope can match nothing. Queries short-circuit to
// an empty result instead of failing.
func (s Scope) Empty() bool {
	return !s.Unscoped && len(s.Units) == 0
}

// Filter keeps the items whose unit is inside the scope.
func Filter[T any](s Scope, items []T, unitOf func(T) id.UnitID) []T {
	if s.Unscoped {
		return items
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if s.Allows(unitOf(it)) {
			out = append(out, it)
		}
	}
	return out
}

// RequireUnit rejects a write or read of unit outside the scope. Call it
// before any side effect.
func RequireUnit(s Scope, unit id.UnitID) error {
	if !s.Allows(unit) {
		return dErrors.New(dErrors.CodeForbidden, "unit is outside the caller's scope")
	}
	return nil
}
