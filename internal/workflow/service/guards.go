package service

import (
	"fmt"

	"archivist/internal/identity"
	"archivist/internal/isolation"
	"archivist/internal/workflow/models"
	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
)

// guard is one step of the ordered pre-transition chain. Each returns a typed
// error and has no side effects.
type guard func() error

// runGuards evaluates guards in order and stops at the first failure.
func runGuards(guards ...guard) error {
	for _, g := range guards {
		if err := g(); err != nil {
			return err
		}
	}
	return nil
}

func requireActivePrincipal(c *identity.Caller) guard {
	return func() error {
		return identity.RequireActivePrincipal(c)
	}
}

// requireActiveSigner stands in for requireActivePrincipal on actions that
// re-verify a credential.
func requireActiveSigner(c *identity.Caller) guard {
	return func() error {
		return identity.RequireActiveSigner(c)
	}
}

func requireCapability(c *identity.Caller, capability identity.Capability) guard {
	return func() error {
		return identity.RequireCapability(c, capability)
	}
}

// requireRequester limits requester-only actions to the request's owner.
func requireRequester(c *identity.Caller, r *models.Request, action models.Action) guard {
	return func() error {
		if models.IsRequesterOnly(action) && c.Principal.ID != r.RequesterID {
			return dErrors.New(dErrors.CodeForbidden, "only the requester may "+string(action)+" this request")
		}
		return nil
	}
}

func requireUnitScope(c *identity.Caller, unit id.UnitID) guard {
	return func() error {
		return isolation.RequireUnit(isolation.For(c), unit)
	}
}

// requirePayloadKind rejects a payload variant that does not match the
// discriminator the action or request type demands.
func requirePayloadKind(p models.Payload, want models.PayloadKind) guard {
	return func() error {
		if p == nil {
			return dErrors.New(dErrors.CodeValidation, "payload is required")
		}
		if p.Kind() != want {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("payload type %s does not match expected %s", p.Kind(), want))
		}
		return nil
	}
}

// requireValid runs a variant's own validation.
func requireValid(validate func() error) guard {
	return validate
}

func requireExpectedVersion(r *models.Request, expected int) guard {
	return func() error {
		if expected > 0 && expected != r.Version {
			return dErrors.New(dErrors.CodeConcurrencyConflict,
				fmt.Sprintf("request is at version %d, not %d; reload and retry", r.Version, expected))
		}
		return nil
	}
}

// requireEdge resolves the transition edge into *edge.
func requireEdge(r *models.Request, action models.Action, edge *models.Edge) guard {
	return func() error {
		e, err := r.CanApply(action)
		if err != nil {
			return err
		}
		*edge = e
		return nil
	}
}
