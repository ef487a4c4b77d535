// Package settings holds the versioned runtime policy record. Each unit of
// work reads the current record once at its start; edits append a new version
// instead of mutating shared state.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"archivist/internal/identity"
	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
	"archivist/pkg/platform/sentinel"
	"archivist/pkg/requestcontext"
)

// Record is one immutable version of the policy values.
type Record struct {
	Version           int             `json:"version"`
	CredentialTimeout time.Duration   `json:"credential_timeout"`
	SessionTimeout    time.Duration   `json:"session_timeout"`
	ReasonMinLength   int             `json:"reason_min_length"`
	CreatedBy         *id.PrincipalID `json:"created_by,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Bounds limits administrative edits. They come from deployment configuration.
type Bounds struct {
	SessionTimeoutMin time.Duration
	SessionTimeoutMax time.Duration
}

// Change is an administrative edit. Nil fields keep the current value.
type Change struct {
	CredentialTimeout *time.Duration
	SessionTimeout    *time.Duration
	ReasonMinLength   *int
}

// Store persists settings versions. AppendSettings returns sentinel.ErrConflict
// when the version already exists; LatestSettings returns sentinel.ErrNotFound
// before the first version is written.
type Store interface {
	LatestSettings(ctx context.Context) (*Record, error)
	AppendSettings(ctx context.Context, r *Record) error
}

// Source is the read accessor used at the start of each unit of work.
type Source interface {
	Current(ctx context.Context) (*Record, error)
}

type Service struct {
	store    Store
	defaults Record
	bounds   Bounds
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New returns a Service whose first version is seeded from defaults.
func New(store Store, defaults Record, bounds Bounds, opts ...Option) *Service {
	s := &Service{store: store, defaults: defaults, bounds: bounds}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the newest record, or the seeded defaults as version 0.
func (s *Service) Current(ctx context.Context) (*Record, error) {
	r, err := s.store.LatestSettings(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			d := s.defaults
			return &d, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load settings")
	}
	return r, nil
}

// Update appends a new version built from the current one.
func (s *Service) Update(ctx context.Context, caller *identity.Caller, change Change) (*Record, error) {
	if err := identity.RequireActivePrincipal(caller); err != nil {
		return nil, err
	}
	if err := identity.RequireCapability(caller, identity.CapManageContainers); err != nil {
		return nil, err
	}

	current, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	next := *current
	next.Version = current.Version + 1
	if change.CredentialTimeout != nil {
		next.CredentialTimeout = *change.CredentialTimeout
	}
	if change.SessionTimeout != nil {
		next.SessionTimeout = *change.SessionTimeout
	}
	if change.ReasonMinLength != nil {
		next.ReasonMinLength = *change.ReasonMinLength
	}
	actor := caller.Principal.ID
	next.CreatedBy = &actor
	next.CreatedAt = requestcontext.Now(ctx).UTC()

	if err := s.Validate(next); err != nil {
		return nil, err
	}
	if err := s.store.AppendSettings(ctx, &next); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConcurrencyConflict, "settings changed concurrently; reload and retry")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save settings")
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "settings updated",
			"version", next.Version,
			"actor_id", actor,
		)
	}
	return &next, nil
}

// Validate checks r against the configured bounds.
func (s *Service) Validate(r Record) error {
	if r.CredentialTimeout <= 0 {
		return dErrors.New(dErrors.CodeValidation, "credential timeout must be positive")
	}
	if r.ReasonMinLength < 1 {
		return dErrors.New(dErrors.CodeValidation, "reason minimum length must be at least 1")
	}
	if s.bounds.SessionTimeoutMin > 0 && r.SessionTimeout < s.bounds.SessionTimeoutMin {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("session timeout must be at least %s", s.bounds.SessionTimeoutMin))
	}
	if s.bounds.SessionTimeoutMax > 0 && r.SessionTimeout > s.bounds.SessionTimeoutMax {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("session timeout must be at most %s", s.bounds.SessionTimeoutMax))
	}
	return nil
}

// SessionTimeout is the live session lifetime, read from the current record.
func (s *Service) SessionTimeout(ctx context.Context) (time.Duration, error) {
	r, err := s.Current(ctx)
	if err != nil {
		return 0, err
	}
	return r.SessionTimeout, nil
}
