package identity

import (
	"context"
	"errors"

	dErrors "archivist/pkg/domain-errors"
	"archivist/pkg/platform/sentinel"
)

// UsernameLookup finds a principal by login name.
type UsernameLookup interface {
	FindPrincipalByUsername(ctx context.Context, username string) (*Principal, error)
}

// Authenticator checks a login. Every failure is the same Unauthorized error
// so callers cannot probe which usernames exist.
type Authenticator struct {
	principals UsernameLookup
	verifier   CredentialVerifier
}

func NewAuthenticator(principals UsernameLookup, verifier CredentialVerifier) *Authenticator {
	return &Authenticator{principals: principals, verifier: verifier}
}

func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*Principal, error) {
	p, err := a.principals.FindPrincipalByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errBadLogin
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load principal")
	}
	if !p.IsActive() {
		return nil, errBadLogin
	}
	if err := a.verifier.Verify(ctx, p, password); err != nil {
		if errors.Is(err, ErrCredentialMismatch) || dErrors.HasCode(err, dErrors.CodeSignatureVerification) {
			return nil, errBadLogin
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "credential check failed")
	}
	return p, nil
}

var errBadLogin = dErrors.New(dErrors.CodeUnauthorized, "invalid username or password")
