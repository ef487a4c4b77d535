package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"archivist/internal/audit"
	"archivist/internal/container"
	"archivist/internal/identity"
	"archivist/internal/outbox"
	"archivist/internal/settings"
	"archivist/internal/workflow/models"
	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
	"archivist/pkg/platform/sentinel"
	"archivist/pkg/requestcontext"
)

func (s *Service) loadRequest(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	r, err := s.requests.FindRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request")
	}
	return r, nil
}

// loadContainer maps a missing container to missingCode: a referenced
// container is an integrity problem, a targeted one is not found.
func (s *Service) loadContainer(ctx context.Context, containerID id.ContainerID, missingCode dErrors.Code) (*container.Container, error) {
	c, err := s.containers.FindContainer(ctx, containerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(missingCode, "container not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load container")
	}
	return c, nil
}

// requireLocation loads a storage location that must exist and belong to unit.
func (s *Service) requireLocation(ctx context.Context, locationID id.LocationID, unit id.UnitID) (*container.Location, error) {
	loc, err := s.containers.FindLocation(ctx, locationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeIntegrity, "storage location not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load storage location")
	}
	if loc.UnitID != unit {
		return nil, dErrors.New(dErrors.CodeIntegrity, "storage location belongs to another unit")
	}
	return loc, nil
}

func (s *Service) saveRequest(ctx context.Context, r *models.Request) error {
	if err := s.requests.UpdateRequest(ctx, r); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConcurrencyConflict, "request was changed concurrently; reload and retry")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save request")
	}
	return nil
}

func (s *Service) saveContainer(ctx context.Context, c *container.Container) error {
	if err := s.containers.UpdateContainer(ctx, c); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConcurrencyConflict, "container was changed concurrently; reload and retry")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save container")
	}
	return nil
}

func (s *Service) insertRequest(ctx context.Context, r *models.Request) error {
	if err := s.requests.CreateRequest(ctx, r); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			return errDuplicateSubmission
		case errors.Is(err, sentinel.ErrInvalidState):
			return dErrors.New(dErrors.CodeStateConflict,
				fmt.Sprintf("container already has an open %s request", r.Type))
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create request")
	}
	return nil
}

// errDuplicateSubmission lets CreateRequest answer a lost idempotency race
// with the winner's outcome.
var errDuplicateSubmission = errors.New("duplicate submission")

func (s *Service) record(ctx context.Context, caller *identity.Caller, action audit.Action, msg string, target id.EntityType, targetID uuid.UUID, unit id.UnitID) (*audit.Entry, error) {
	return s.audit.Append(ctx, audit.Entry{
		ActorID:          caller.Principal.ID,
		ActorUsername:    caller.Principal.Username,
		Action:           action,
		Message:          msg,
		TargetEntityType: target,
		TargetEntityID:   targetID,
		UnitID:           &unit,
	})
}

func (s *Service) emit(ctx context.Context, kind outbox.Kind, aggregate uuid.UUID, unit id.UnitID, payload any) error {
	event, err := outbox.NewEvent(kind, aggregate, unit, payload, requestcontext.Now(ctx))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build outbox event")
	}
	if err := s.events.AppendOutbox(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write outbox event")
	}
	return nil
}

// verifyCredential re-checks the caller's credential for actions that need
// password re-entry but record no signature.
func (s *Service) verifyCredential(ctx context.Context, caller *identity.Caller, credential string, rec *settings.Record) error {
	return s.credentials.VerifyWithin(ctx, caller.Principal, credential, rec.CredentialTimeout)
}

// begin reads the settings record and resolves the caller once per unit of
// work.
func (s *Service) begin(ctx context.Context) (*settings.Record, *identity.Caller, error) {
	rec, err := s.settings.Current(ctx)
	if err != nil {
		return nil, nil, err
	}
	caller, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, nil, err
	}
	return rec, caller, nil
}

func (s *Service) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	if s.metrics != nil {
		s.metrics.ObserveTransition(op, outcome, start)
	}
	if s.logger == nil {
		return
	}
	if err != nil && outcome == string(dErrors.CodeInternal) {
		s.logger.ErrorContext(ctx, "workflow operation failed",
			"operation", op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return
	}
	s.logger.InfoContext(ctx, "workflow operation",
		"operation", op,
		"outcome", outcome,
		"principal_id", requestcontext.PrincipalID(ctx),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

var auditActionFor = map[models.Action]audit.Action{
	models.ActionApprove:            audit.ActionApproved,
	models.ActionReject:             audit.ActionRejected,
	models.ActionSendBack:           audit.ActionSentBack,
	models.ActionResubmit:           audit.ActionResubmitted,
	models.ActionAllocate:           audit.ActionAllocated,
	models.ActionIssue:              audit.ActionIssued,
	models.ActionReturn:             audit.ActionReturned,
	models.ActionClose:              audit.ActionCompleted,
	models.ActionConfirmDestruction: audit.ActionDestroyed,
}

// snapshot is the signed view of a transition.
type snapshot struct {
	Action     string               `json:"action"`
	FromStatus models.Status        `json:"from_status"`
	Request    *models.Request      `json:"request"`
	Container  *container.Container `json:"container"`
}
