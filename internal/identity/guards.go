package identity

import (
	dErrors "archivist/pkg/domain-errors"
)

// RequireActivePrincipal fails unless the caller resolved to an active principal.
func RequireActivePrincipal(c *Caller) error {
	if c == nil || c.Principal == nil {
		return dErrors.New(dErrors.CodeUnauthorized, "no authenticated principal")
	}
	if !c.Principal.IsActive() {
		return dErrors.New(dErrors.CodeForbidden, "principal is "+string(c.Principal.Status))
	}
	return nil
}

// RequireActiveSigner is RequireActivePrincipal for actions that re-verify
// the caller's credential: an inactive signer fails signature verification.
func RequireActiveSigner(c *Caller) error {
	if c == nil || c.Principal == nil {
		return dErrors.New(dErrors.CodeUnauthorized, "no authenticated principal")
	}
	if !c.Principal.IsActive() {
		return dErrors.New(dErrors.CodeSignatureVerification, "signer is "+string(c.Principal.Status))
	}
	return nil
}

// RequireCapability fails unless the caller holds cap.
func RequireCapability(c *Caller, cap Capability) error {
	if !c.Has(cap) {
		return dErrors.New(dErrors.CodeForbidden, "missing capability "+cap.String())
	}
	return nil
}
