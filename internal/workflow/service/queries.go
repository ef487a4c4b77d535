package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"archivist/internal/audit"
	"archivist/internal/container"
	"archivist/internal/identity"
	"archivist/internal/isolation"
	"archivist/internal/outbox"
	"archivist/internal/signature"
	"archivist/internal/workflow/models"
	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
	"archivist/pkg/requestcontext"
)

// ArchiveContainer moves an active container to the archive and signs the
// change.
func (s *Service) ArchiveContainer(ctx context.Context, containerID id.ContainerID, credential string) (*models.Outcome, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "workflow.ArchiveContainer",
		trace.WithAttributes(attribute.String("container.id", containerID.String())))
	defer span.End()

	var out *models.Outcome
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		rec, caller, err := s.begin(ctx)
		if err != nil {
			return err
		}
		if err := runGuards(
			requireActiveSigner(caller),
			requireCapability(caller, identity.CapManageContainers),
		); err != nil {
			return err
		}
		cont, err := s.loadContainer(ctx, containerID, dErrors.CodeNotFound)
		if err != nil {
			return err
		}
		if err := runGuards(requireUnitScope(caller, cont.UnitID), cont.CanArchive); err != nil {
			return err
		}

		from := cont.Status
		cont.ApplyArchive(requestcontext.Now(ctx).UTC())
		if err := s.saveContainer(ctx, cont); err != nil {
			return err
		}
		entry, err := s.record(ctx, caller, audit.ActionArchived,
			fmt.Sprintf("container %s status changed from %s to %s", cont.Barcode, from, cont.Status),
			id.EntityContainer, uuid.UUID(cont.ID), cont.UnitID)
		if err != nil {
			return err
		}
		sig, err := s.signatures.Create(ctx, signature.SignRequest{
			SignerID:   caller.Principal.ID,
			ActionType: signature.ActionModify,
			Purpose:    "archive container " + cont.Barcode,
			TargetType: id.EntityContainer,
			TargetID:   uuid.UUID(cont.ID),
			UnitID:     cont.UnitID,
			Snapshot:   snapshot{Action: "archive", Container: cont},
			Credential: credential,
			Settings:   rec,
		})
		if err != nil {
			return err
		}
		if err := s.emit(ctx, outbox.KindContainerArchived, uuid.UUID(cont.ID), cont.UnitID, containerEvent{
			ContainerID: cont.ID,
			Barcode:     cont.Barcode,
			FromStatus:  from,
			Status:      cont.Status,
			ActorID:     caller.Principal.ID,
		}); err != nil {
			return err
		}
		out = &models.Outcome{Container: cont, Signature: sig, AuditEntries: []*audit.Entry{entry}}
		return nil
	})
	s.finish(ctx, span, "archive", start, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type containerEvent struct {
	ContainerID id.ContainerID   `json:"container_id"`
	Barcode     string           `json:"barcode"`
	FromStatus  container.Status `json:"from_status"`
	Status      container.Status `json:"status"`
	ActorID     id.PrincipalID   `json:"actor_id"`
}

// QueryRequests lists requests inside the caller's scope. An empty scope
// yields an empty list, not an error.
func (s *Service) QueryRequests(ctx context.Context, filter models.RequestFilter) ([]*models.Request, error) {
	caller, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if err := identity.RequireActivePrincipal(caller); err != nil {
		return nil, err
	}
	filter.Scope = isolation.For(caller)
	if filter.Scope.Empty() {
		return []*models.Request{}, nil
	}
	found, err := s.requests.QueryRequests(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query requests")
	}
	return isolation.Filter(filter.Scope, found, func(r *models.Request) id.UnitID { return r.UnitID }), nil
}

// GetRequest loads one request. A request outside the caller's scope is
// reported as not found.
func (s *Service) GetRequest(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	caller, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if err := identity.RequireActivePrincipal(caller); err != nil {
		return nil, err
	}
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !isolation.For(caller).Allows(req.UnitID) {
		return nil, dErrors.New(dErrors.CodeNotFound, "request not found")
	}
	return req, nil
}

// GetContainer loads a container with its items under the same scope rule as
// GetRequest.
func (s *Service) GetContainer(ctx context.Context, containerID id.ContainerID) (*container.Container, []*container.Item, error) {
	caller, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := identity.RequireActivePrincipal(caller); err != nil {
		return nil, nil, err
	}
	cont, err := s.loadContainer(ctx, containerID, dErrors.CodeNotFound)
	if err != nil {
		return nil, nil, err
	}
	if !isolation.For(caller).Allows(cont.UnitID) {
		return nil, nil, dErrors.New(dErrors.CodeNotFound, "container not found")
	}
	items, err := s.containers.ListItems(ctx, cont.ID)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list container items")
	}
	return cont, items, nil
}

// ListChangeNotices returns the notices attached to a visible request, oldest
// first.
func (s *Service) ListChangeNotices(ctx context.Context, requestID id.RequestID) ([]*models.ChangeNotice, error) {
	if _, err := s.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	notices, err := s.requests.ListNotices(ctx, requestID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list change notices")
	}
	return notices, nil
}

// GetSignaturesFor lists the signatures recorded against a request or a
// container the caller can see.
func (s *Service) GetSignaturesFor(ctx context.Context, entityType id.EntityType, entityID uuid.UUID) ([]*signature.Signature, error) {
	switch entityType {
	case id.EntityRequest:
		if _, err := s.GetRequest(ctx, id.RequestID(entityID)); err != nil {
			return nil, err
		}
	case id.EntityContainer:
		if _, _, err := s.GetContainer(ctx, id.ContainerID(entityID)); err != nil {
			return nil, err
		}
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, "signatures are listed for requests or containers")
	}
	return s.signatures.ListFor(ctx, entityType, entityID)
}

// QueryAudit reads the audit trail inside the caller's scope.
func (s *Service) QueryAudit(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	caller, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if err := runGuards(
		requireActivePrincipal(caller),
		requireCapability(caller, identity.CapViewAudit),
	); err != nil {
		return nil, err
	}
	filter.Scope = isolation.For(caller)
	return s.audit.Query(ctx, filter)
}
