// Package audit is the append-only audit log. Appends join the caller's unit
// of work through the context, so an entry commits or rolls back with the
// change it records. A failed append is returned, never swallowed, and aborts
// the surrounding transition.
package audit

import (
	"context"
	"errors"
	"log/slog"

	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
	"archivist/pkg/platform/sentinel"
	"archivist/pkg/requestcontext"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks archivist/internal/audit Store

// Store persists entries. AppendAudit returns sentinel.ErrImmutable when the
// entry id already exists.
type Store interface {
	AppendAudit(ctx context.Context, entry *Entry) error
	QueryAudit(ctx context.Context, filter Filter) ([]*Entry, error)
}

// Service appends and queries audit entries.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *Metrics
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

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append records e. Missing id, timestamp and origin fields are filled from
// the request context.
func (s *Service) Append(ctx context.Context, e Entry) (*Entry, error) {
	if e.ActorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "audit entry requires an actor")
	}
	if e.Action == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "audit entry requires an action")
	}
	if !e.TargetEntityType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "audit entry requires a target")
	}
	if e.ID.IsNil() {
		e.ID = id.NewAuditEntryID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = requestcontext.Now(ctx).UTC()
	}
	if e.OriginAddress == "" {
		e.OriginAddress = requestcontext.ClientIP(ctx)
	}
	if e.OriginClient == "" {
		e.OriginClient = NormalizeClient(requestcontext.UserAgent(ctx))
	}

	if err := s.store.AppendAudit(ctx, &e); err != nil {
		if s.metrics != nil {
			s.metrics.IncPersistFailures()
		}
		if errors.Is(err, sentinel.ErrImmutable) {
			return nil, dErrors.Wrap(err, dErrors.CodeImmutabilityViolation, "audit entry already recorded")
		}
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "audit append failed",
				"action", e.Action,
				"target_type", e.TargetEntityType,
				"target_id", e.TargetEntityID,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append audit entry")
	}
	if s.metrics != nil {
		s.metrics.IncAppended(e.Action)
	}
	return &e, nil
}

// Query returns matching entries, newest first. An empty scope yields an
// empty result, not an error.
func (s *Service) Query(ctx context.Context, filter Filter) ([]*Entry, error) {
	if filter.Scope.Empty() {
		return []*Entry{}, nil
	}
	entries, err := s.store.QueryAudit(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query audit entries")
	}
	return entries, nil
}

// RejectMutation is the answer to any attempt to update or delete an entry.
func RejectMutation() error {
	return dErrors.New(dErrors.CodeImmutabilityViolation, "audit entries are append-only")
}
