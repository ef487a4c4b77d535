package identity

import (
	"context"
	"errors"

	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
	"archivist/pkg/platform/sentinel"
	"archivist/pkg/requestcontext"
)

// PrincipalStore loads provisioned principals.
type PrincipalStore interface {
	FindPrincipal(ctx context.Context, principalID id.PrincipalID) (*Principal, error)
}

// Caller is the acting principal together with the capabilities its role
// grants for this call.
type Caller struct {
	Principal    *Principal
	Capabilities CapabilitySet
}

func (c *Caller) Has(cap Capability) bool {
	return c != nil && c.Capabilities.Has(cap)
}

// Resolver turns the authenticated principal id in the context into a Caller.
type Resolver struct {
	principals PrincipalStore
	roles      Roles
}

func NewResolver(principals PrincipalStore, roles Roles) *Resolver {
	if roles == nil {
		roles = DefaultRoles()
	}
	return &Resolver{principals: principals, roles: roles}
}

// Resolve loads the principal named by requestcontext.PrincipalID and computes
// its capability set. A missing or unknown principal is unauthorized; status
// is left to RequireActivePrincipal so the guard order stays explicit.
func (r *Resolver) Resolve(ctx context.Context) (*Caller, error) {
	principalID := requestcontext.PrincipalID(ctx)
	if principalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "no authenticated principal")
	}
	p, err := r.principals.FindPrincipal(ctx, principalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "unknown principal")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load principal")
	}
	return &Caller{Principal: p, Capabilities: r.roles.Capabilities(p.Role)}, nil
}
