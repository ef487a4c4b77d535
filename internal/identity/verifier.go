package identity

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	dErrors "archivist/pkg/domain-errors"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks archivist/internal/identity CredentialVerifier,PrincipalStore

// CredentialVerifier checks a credential the signer re-enters at signing
// time. Implementations must not cache results.
type CredentialVerifier interface {
	Verify(ctx context.Context, principal *Principal, credential string) error
}

// ErrCredentialMismatch is returned when the credential does not match.
var ErrCredentialMismatch = errors.New("credential mismatch")

// PasswordVerifier compares the credential against the stored bcrypt hash.
type PasswordVerifier struct{}

func (PasswordVerifier) Verify(ctx context.Context, principal *Principal, credential string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if credential == "" || principal.PasswordHash == "" {
		return ErrCredentialMismatch
	}
	if err := bcrypt.CompareHashAndPassword([]byte(principal.PasswordHash), []byte(credential)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrCredentialMismatch
		}
		return err
	}
	return nil
}

// HashPassword produces the bcrypt hash stored for a principal.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "password is too long")
		}
		return "", err
	}
	return string(hashed), nil
}

// BoundedVerifier runs the inner verifier under a deadline and fails closed:
// mismatch, timeout and verifier errors all surface as
// CodeSignatureVerification.
type BoundedVerifier struct {
	inner   CredentialVerifier
	timeout time.Duration
}

// NewBoundedVerifier wraps inner. A non-positive timeout defaults to 3s.
func NewBoundedVerifier(inner CredentialVerifier, timeout time.Duration) *BoundedVerifier {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &BoundedVerifier{inner: inner, timeout: timeout}
}

// VerifyWithin is Verify with a per-call timeout taken from the settings record.
func (b *BoundedVerifier) VerifyWithin(ctx context.Context, principal *Principal, credential string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = b.timeout
	}
	if principal == nil || !principal.IsActive() {
		return dErrors.New(dErrors.CodeSignatureVerification, "signer is not active")
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- b.inner.Verify(vctx, principal, credential)
	}()

	select {
	case err := <-done:
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrCredentialMismatch):
			return dErrors.New(dErrors.CodeSignatureVerification, "credential verification failed")
		default:
			return dErrors.Wrap(err, dErrors.CodeSignatureVerification, "credential verifier unavailable")
		}
	case <-vctx.Done():
		return dErrors.Wrap(vctx.Err(), dErrors.CodeSignatureVerification, "credential verifier timed out")
	}
}

func (b *BoundedVerifier) Verify(ctx context.Context, principal *Principal, credential string) error {
	return b.VerifyWithin(ctx, principal, credential, b.timeout)
}
