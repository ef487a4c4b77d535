// Package service is the request workflow coordinator. Every entry point runs
// in exactly one unit of work: the request change, the container change, the
// signature, the audit entries and the outbox event commit together or not at
// all.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"archivist/internal/audit"
	"archivist/internal/container"
	"archivist/internal/identity"
	"archivist/internal/outbox"
	"archivist/internal/settings"
	"archivist/internal/signature"
	"archivist/internal/workflow/metrics"
	"archivist/internal/workflow/models"
	id "archivist/pkg/domain"
)

// RequestStore persists requests and their change notices. UpdateRequest is
// conditional on r.Version and increments it; a stale version yields
// sentinel.ErrConflict. CreateRequest returns sentinel.ErrAlreadyUsed for a
// reused idempotency key and sentinel.ErrInvalidState when the container
// already has an open request of the same type.
type RequestStore interface {
	CreateRequest(ctx context.Context, r *models.Request) error
	FindRequest(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	FindRequestByIdempotencyKey(ctx context.Context, requester id.PrincipalID, key string) (*models.Request, error)
	UpdateRequest(ctx context.Context, r *models.Request) error
	QueryRequests(ctx context.Context, filter models.RequestFilter) ([]*models.Request, error)
	HasOpenRequest(ctx context.Context, containerID id.ContainerID, t models.Type) (bool, error)
	AppendNotice(ctx context.Context, n *models.ChangeNotice) error
	ListNotices(ctx context.Context, requestID id.RequestID) ([]*models.ChangeNotice, error)
}

// ContainerStore persists containers, items and the location master data.
// UpdateContainer follows the same version rule as UpdateRequest.
type ContainerStore interface {
	CreateContainer(ctx context.Context, c *container.Container) error
	FindContainer(ctx context.Context, containerID id.ContainerID) (*container.Container, error)
	UpdateContainer(ctx context.Context, c *container.Container) error
	AddItems(ctx context.Context, items []*container.Item) error
	ListItems(ctx context.Context, containerID id.ContainerID) ([]*container.Item, error)
	FindLocation(ctx context.Context, locationID id.LocationID) (*container.Location, error)
	FindUnit(ctx context.Context, unitID id.UnitID) (*identity.Unit, error)
	NextBarcodeSequence(ctx context.Context, unitCode string, year int) (int, error)
}

type EventStore interface {
	AppendOutbox(ctx context.Context, event *outbox.Event) error
}

// UnitOfWork runs fn atomically. Nested calls join the outer unit.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Signer interface {
	Create(ctx context.Context, req signature.SignRequest) (*signature.Signature, error)
	ListFor(ctx context.Context, entityType id.EntityType, entityID uuid.UUID) ([]*signature.Signature, error)
}

type Auditor interface {
	Append(ctx context.Context, e audit.Entry) (*audit.Entry, error)
	Query(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error)
}

type CallerResolver interface {
	Resolve(ctx context.Context) (*identity.Caller, error)
}

// CredentialChecker is satisfied by identity.BoundedVerifier.
type CredentialChecker interface {
	VerifyWithin(ctx context.Context, principal *identity.Principal, credential string, timeout time.Duration) error
}

// Deps are the collaborators the coordinator cannot run without.
type Deps struct {
	Requests    RequestStore
	Containers  ContainerStore
	Events      EventStore
	Tx          UnitOfWork
	Signatures  Signer
	Audit       Auditor
	Resolver    CallerResolver
	Settings    settings.Source
	Credentials CredentialChecker
}

// Service orchestrates request, container, signature and audit changes.
type Service struct {
	requests    RequestStore
	containers  ContainerStore
	events      EventStore
	tx          UnitOfWork
	signatures  Signer
	audit       Auditor
	resolver    CallerResolver
	settings    settings.Source
	credentials CredentialChecker
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New constructs a Service.
func New(deps Deps, opts ...Option) *Service {
	s := &Service{
		requests:    deps.Requests,
		containers:  deps.Containers,
		events:      deps.Events,
		tx:          deps.Tx,
		signatures:  deps.Signatures,
		audit:       deps.Audit,
		resolver:    deps.Resolver,
		settings:    deps.Settings,
		credentials: deps.Credentials,
		tracer:      otel.Tracer("archivist/workflow"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
