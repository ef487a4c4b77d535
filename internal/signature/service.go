// Package signature creates, verifies and invalidates electronic signatures.
// The signer's credential is re-verified synchronously on every signing; a
// stored signature never changes except for a single additive invalidation.
package signature

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"archivist/internal/audit"
	"archivist/internal/identity"
	"archivist/internal/isolation"
	"archivist/internal/settings"
	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
	"archivist/pkg/platform/sentinel"
	"archivist/pkg/requestcontext"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks archivist/internal/signature Store

// Store persists signatures. AppendSignature returns sentinel.ErrImmutable for
// an id that already exists; InvalidateSignature returns it when the signature
// is already invalid.
type Store interface {
	AppendSignature(ctx context.Context, sig *Signature) error
	FindSignature(ctx context.Context, sigID id.SignatureID) (*Signature, error)
	ListSignatures(ctx context.Context, entityType id.EntityType, entityID uuid.UUID) ([]*Signature, error)
	InvalidateSignature(ctx context.Context, sigID id.SignatureID, inv Invalidation) error
}

// CredentialChecker is satisfied by identity.BoundedVerifier.
type CredentialChecker interface {
	VerifyWithin(ctx context.Context, principal *identity.Principal, credential string, timeout time.Duration) error
}

type Auditor interface {
	Append(ctx context.Context, e audit.Entry) (*audit.Entry, error)
}

type CallerResolver interface {
	Resolve(ctx context.Context) (*identity.Caller, error)
}

// TxRunner runs fn in one unit of work. Calls made with a context that is
// already inside a unit of work join it.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// SignRequest describes one signing. Settings, when set, is the record the
// surrounding unit of work already read.
type SignRequest struct {
	SignerID   id.PrincipalID
	ActionType ActionType
	Purpose    string
	TargetType id.EntityType
	TargetID   uuid.UUID
	UnitID     id.UnitID
	Snapshot   any
	Credential string
	Settings   *settings.Record
}

// Verification is the result of an integrity check.
type Verification struct {
	Signature *Signature `json:"signature"`
	Valid     bool       `json:"valid"`
	Reason    string     `json:"reason,omitempty"`
}

type Service struct {
	store      Store
	principals identity.PrincipalStore
	verifier   CredentialChecker
	auditor    Auditor
	settings   settings.Source
	resolver   CallerResolver
	tx         TxRunner
	logger     *slog.Logger
	metrics    *Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithResolver(r CallerResolver) Option {
	return func(s *Service) {
		s.resolver = r
	}
}

func WithTx(tx TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func NewService(store Store, principals identity.PrincipalStore, verifier CredentialChecker, auditor Auditor, source settings.Source, opts ...Option) *Service {
	s := &Service{
		store:      store,
		principals: principals,
		verifier:   verifier,
		auditor:    auditor,
		settings:   source,
		tx:         passthroughTx{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = identity.NewResolver(principals, nil)
	}
	return s
}

// Create re-verifies the signer's credential, seals the snapshot and persists
// the signature together with an "E-Signature Applied" audit entry. It must be
// called inside the caller's unit of work so a later failure rolls it back.
func (s *Service) Create(ctx context.Context, req SignRequest) (*Signature, error) {
	if !req.ActionType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown signature action type")
	}
	if !req.TargetType.IsValid() || req.TargetID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeValidation, "signature target is required")
	}

	signer, err := s.principals.FindPrincipal(ctx, req.SignerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeSignatureVerification, "signer not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeSignatureVerification, "failed to load signer")
	}

	rec := req.Settings
	if rec == nil {
		if rec, err = s.settings.Current(ctx); err != nil {
			return nil, err
		}
	}
	if err := s.checkCredential(ctx, signer, req.Credential, rec.CredentialTimeout); err != nil {
		return nil, err
	}

	snapshot, err := Canonicalize(req.Snapshot)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "snapshot cannot be canonicalized")
	}
	sig := &Signature{
		ID:                id.NewSignatureID(),
		SignerID:          signer.ID,
		SignerUsername:    signer.Username,
		SignerDisplayName: signer.DisplayName,
		SignerRole:        signer.Role,
		ActionType:        req.ActionType,
		Purpose:           req.Purpose,
		Timestamp:         requestcontext.Now(ctx),
		TargetEntityType:  req.TargetType,
		TargetEntityID:    req.TargetID,
		UnitID:            req.UnitID,
		Snapshot:          snapshot,
		OriginAddress:     requestcontext.ClientIP(ctx),
		OriginClient:      audit.NormalizeClient(requestcontext.UserAgent(ctx)),
		AuthMethod:        requestcontext.AuthMethod(ctx),
		IsValid:           true,
	}
	if err := Seal(sig); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "snapshot cannot be sealed")
	}

	if err := s.store.AppendSignature(ctx, sig); err != nil {
		if errors.Is(err, sentinel.ErrImmutable) {
			return nil, dErrors.Wrap(err, dErrors.CodeImmutabilityViolation, "signature already persisted")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist signature")
	}

	unit := req.UnitID
	if _, err := s.auditor.Append(ctx, audit.Entry{
		ActorID:          signer.ID,
		ActorUsername:    signer.Username,
		Action:           audit.ActionSignatureApplied,
		Message:          fmt.Sprintf("%s signature %s applied: %s", sig.ActionType, sig.ID, sig.Purpose),
		TargetEntityType: req.TargetType,
		TargetEntityID:   req.TargetID,
		UnitID:           &unit,
	}); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ObserveCreated(sig.ActionType)
	}
	return sig, nil
}

func (s *Service) checkCredential(ctx context.Context, signer *identity.Principal, credential string, timeout time.Duration) error {
	start := time.Now()
	err := s.verifier.VerifyWithin(ctx, signer, credential, timeout)
	if s.metrics != nil {
		s.metrics.ObserveCredentialCheck(err == nil, time.Since(start).Seconds())
	}
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "signature credential check failed",
				"signer_id", signer.ID,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		if dErrors.HasCode(err, dErrors.CodeSignatureVerification) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeSignatureVerification, "credential verification failed")
	}
	return nil
}

// ListFor returns every signature bound to the target, oldest first. Scope is
// checked by the caller against the target itself.
func (s *Service) ListFor(ctx context.Context, entityType id.EntityType, entityID uuid.UUID) ([]*Signature, error) {
	if !entityType.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown entity type")
	}
	sigs, err := s.store.ListSignatures(ctx, entityType, entityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list signatures")
	}
	return sigs, nil
}

// Verify checks a stored signature's integrity and records the result in the
// audit log.
func (s *Service) Verify(ctx context.Context, sigID id.SignatureID) (*Verification, error) {
	var result *Verification
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		caller, err := s.resolver.Resolve(ctx)
		if err != nil {
			return err
		}
		if err := identity.RequireActivePrincipal(caller); err != nil {
			return err
		}
		sig, err := s.load(ctx, sigID)
		if err != nil {
			return err
		}
		if err := isolation.RequireUnit(isolation.For(caller), sig.UnitID); err != nil {
			return err
		}

		valid, reason := VerifyIntegrity(sig)
		if s.metrics != nil {
			s.metrics.ObserveIntegrity(valid)
		}
		msg := "integrity verified"
		if !valid {
			msg = "integrity check failed: " + reason
		}
		unit := sig.UnitID
		if _, err := s.auditor.Append(ctx, audit.Entry{
			ActorID:          caller.Principal.ID,
			ActorUsername:    caller.Principal.Username,
			Action:           audit.ActionSignatureVerified,
			Message:          msg,
			TargetEntityType: id.EntitySignature,
			TargetEntityID:   uuid.UUID(sig.ID),
			UnitID:           &unit,
		}); err != nil {
			return err
		}
		result = &Verification{Signature: sig, Valid: valid, Reason: reason}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Invalidate marks a signature invalid. The original fields are untouched;
// the invalidator re-enters their own credential.
func (s *Service) Invalidate(ctx context.Context, sigID id.SignatureID, reason, credential string) (*Signature, error) {
	var out *Signature
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		caller, err := s.resolver.Resolve(ctx)
		if err != nil {
			return err
		}
		if err := identity.RequireActivePrincipal(caller); err != nil {
			return err
		}
		if err := identity.RequireCapability(caller, identity.CapInvalidateSignature); err != nil {
			return err
		}
		rec, err := s.settings.Current(ctx)
		if err != nil {
			return err
		}
		reason = strings.TrimSpace(reason)
		if len([]rune(reason)) < rec.ReasonMinLength {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("invalidation reason must be at least %d characters", rec.ReasonMinLength))
		}
		sig, err := s.load(ctx, sigID)
		if err != nil {
			return err
		}
		if err := isolation.RequireUnit(isolation.For(caller), sig.UnitID); err != nil {
			return err
		}
		if !sig.IsValid {
			return dErrors.New(dErrors.CodeImmutabilityViolation, "signature is already invalidated")
		}
		if err := s.checkCredential(ctx, caller.Principal, credential, rec.CredentialTimeout); err != nil {
			return err
		}

		inv := Invalidation{Reason: reason, By: caller.Principal.ID, At: requestcontext.Now(ctx).UTC()}
		if err := s.store.InvalidateSignature(ctx, sig.ID, inv); err != nil {
			if errors.Is(err, sentinel.ErrImmutable) {
				return dErrors.Wrap(err, dErrors.CodeImmutabilityViolation, "signature is already invalidated")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to invalidate signature")
		}
		unit := sig.UnitID
		if _, err := s.auditor.Append(ctx, audit.Entry{
			ActorID:          caller.Principal.ID,
			ActorUsername:    caller.Principal.Username,
			Action:           audit.ActionSignatureInvalidated,
			Message:          fmt.Sprintf("signature %s invalidated: %s", sig.ID, reason),
			TargetEntityType: id.EntitySignature,
			TargetEntityID:   uuid.UUID(sig.ID),
			UnitID:           &unit,
		}); err != nil {
			return err
		}

		sig.IsValid = false
		sig.InvalidationReason = inv.Reason
		sig.InvalidatedBy = &inv.By
		sig.InvalidatedAt = &inv.At
		out = sig
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, sigID id.SignatureID) (*Signature, error) {
	sig, err := s.store.FindSignature(ctx, sigID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "signature not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load signature")
	}
	return sig, nil
}

// RejectMutation is the answer to any attempt to edit or delete a stored
// signature.
func RejectMutation() error {
	return dErrors.New(dErrors.CodeImmutabilityViolation, "signatures cannot be modified or deleted")
}
