package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
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

// CreateCommand opens a new request. Payload must be the variant matching Type.
type CreateCommand struct {
	Type           models.Type
	Payload        models.Payload
	Credential     string
	IdempotencyKey string
}

// CreateRequest opens a storage, withdrawal or destruction request. A repeated
// submission with the same idempotency key returns the original outcome.
func (s *Service) CreateRequest(ctx context.Context, cmd CreateCommand) (*models.Outcome, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "workflow.CreateRequest",
		trace.WithAttributes(attribute.String("request.type", string(cmd.Type))))
	defer span.End()

	out, err := s.createRequest(ctx, cmd)
	if errors.Is(err, errDuplicateSubmission) {
		out, err = s.replayByKey(ctx, cmd)
	}
	s.finish(ctx, span, "create_"+string(cmd.Type), start, err)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		if out.Replayed {
			s.metrics.IncrementReplays()
		} else {
			s.metrics.IncrementCreated(string(cmd.Type))
		}
	}
	span.SetAttributes(attribute.String("request.id", out.Request.ID.String()))
	return out, nil
}

func (s *Service) createRequest(ctx context.Context, cmd CreateCommand) (*models.Outcome, error) {
	if !cmd.Type.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "request type must be storage, withdrawal or destruction")
	}
	var out *models.Outcome
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		rec, caller, err := s.begin(ctx)
		if err != nil {
			return err
		}
		if err := runGuards(
			requireActivePrincipal(caller),
			requireCapability(caller, identity.CapCreateRequest),
			requirePayloadKind(cmd.Payload, models.CreatePayloadKind(cmd.Type)),
		); err != nil {
			return err
		}

		if cmd.IdempotencyKey != "" {
			prev, err := s.requests.FindRequestByIdempotencyKey(ctx, caller.Principal.ID, cmd.IdempotencyKey)
			switch {
			case err == nil:
				out, err = s.replay(ctx, prev, cmd.Type)
				return err
			case !errors.Is(err, sentinel.ErrNotFound):
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check idempotency key")
			}
		}

		now := requestcontext.Now(ctx).UTC()
		switch p := cmd.Payload.(type) {
		case models.StoragePayload:
			out, err = s.createStorage(ctx, caller, p, cmd.IdempotencyKey, now)
		case models.WithdrawalPayload:
			out, err = s.createWithdrawal(ctx, caller, rec, p, cmd, now)
		case models.DestructionPayload:
			out, err = s.createDestruction(ctx, caller, rec, p, cmd, now)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// The payload discriminator is checked before unit scope because the target
// unit is only known from the payload variant.
func (s *Service) createStorage(ctx context.Context, caller *identity.Caller, p models.StoragePayload, key string, now time.Time) (*models.Outcome, error) {
	if err := runGuards(
		requireUnitScope(caller, p.UnitID),
		requireValid(func() error { return p.Validate(now) }),
	); err != nil {
		return nil, err
	}

	unit, err := s.containers.FindUnit(ctx, p.UnitID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeIntegrity, "unit not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load unit")
	}
	seq, err := s.containers.NextBarcodeSequence(ctx, unit.Code, now.Year())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate barcode")
	}
	cont, err := container.New(id.NewContainerID(), unit.ID, container.Barcode(unit.Code, now.Year(), seq),
		p.DestructionDate, p.Retained, caller.Principal.ID, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid container")
	}
	items := make([]*container.Item, 0, len(p.Items))
	for _, in := range p.Items {
		item, err := container.NewItem(id.NewItemID(), cont.ID, in.Number, in.Name, in.Kind, in.Description, now)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := s.containers.CreateContainer(ctx, cont); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConcurrencyConflict, "barcode was taken concurrently; retry")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create container")
	}
	if err := s.containers.AddItems(ctx, items); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to add items")
	}

	req := models.NewRequest(models.TypeStorage, cont, caller.Principal.ID, p.Purpose, now)
	req.IdempotencyKey = key
	if err := s.insertRequest(ctx, req); err != nil {
		return nil, err
	}
	created, err := s.record(ctx, caller, audit.ActionCreated,
		fmt.Sprintf("storage request %s created for container %s with %d items", req.ID, cont.Barcode, len(items)),
		id.EntityRequest, uuid.UUID(req.ID), req.UnitID)
	if err != nil {
		return nil, err
	}
	if err := s.emitCreated(ctx, req, cont); err != nil {
		return nil, err
	}
	return &models.Outcome{Request: req, Container: cont, Items: items, AuditEntries: []*audit.Entry{created}}, nil
}

func (s *Service) createWithdrawal(ctx context.Context, caller *identity.Caller, rec *settings.Record, p models.WithdrawalPayload, cmd CreateCommand, now time.Time) (*models.Outcome, error) {
	cont, err := s.loadContainer(ctx, p.ContainerID, dErrors.CodeIntegrity)
	if err != nil {
		return nil, err
	}
	if err := runGuards(
		requireUnitScope(caller, cont.UnitID),
		requireValid(func() error { return p.Validate(now) }),
		cont.CanWithdraw,
	); err != nil {
		return nil, err
	}
	if !p.IsFull() {
		if err := s.requireItemsInContainer(ctx, cont.ID, p.ItemIDs); err != nil {
			return nil, err
		}
	}
	if err := s.verifyCredential(ctx, caller, cmd.Credential, rec); err != nil {
		return nil, err
	}

	from := cont.Status
	cont.ApplyWithdrawal(now)
	if err := s.saveContainer(ctx, cont); err != nil {
		return nil, err
	}

	req := models.NewRequest(models.TypeWithdrawal, cont, caller.Principal.ID, p.Purpose, now)
	expected := p.ExpectedReturnAt.UTC()
	req.ExpectedReturnAt = &expected
	req.FullWithdrawal = p.IsFull()
	if !req.FullWithdrawal {
		req.ItemIDs = p.ItemIDs
	}
	req.IdempotencyKey = cmd.IdempotencyKey
	if err := s.insertRequest(ctx, req); err != nil {
		return nil, err
	}

	created, err := s.record(ctx, caller, audit.ActionCreated,
		fmt.Sprintf("withdrawal request %s created for container %s", req.ID, cont.Barcode),
		id.EntityRequest, uuid.UUID(req.ID), req.UnitID)
	if err != nil {
		return nil, err
	}
	updated, err := s.record(ctx, caller, audit.ActionUpdated,
		fmt.Sprintf("container %s status changed from %s to %s due to withdrawal request %s", cont.Barcode, from, cont.Status, req.ID),
		id.EntityContainer, uuid.UUID(cont.ID), cont.UnitID)
	if err != nil {
		return nil, err
	}
	if err := s.emitCreated(ctx, req, cont); err != nil {
		return nil, err
	}
	return &models.Outcome{Request: req, Container: cont, AuditEntries: []*audit.Entry{created, updated}}, nil
}

func (s *Service) createDestruction(ctx context.Context, caller *identity.Caller, rec *settings.Record, p models.DestructionPayload, cmd CreateCommand, now time.Time) (*models.Outcome, error) {
	cont, err := s.loadContainer(ctx, p.ContainerID, dErrors.CodeIntegrity)
	if err != nil {
		return nil, err
	}
	if err := runGuards(
		requireUnitScope(caller, cont.UnitID),
		requireValid(p.Validate),
		cont.CanDestroy,
	); err != nil {
		return nil, err
	}
	open, err := s.requests.HasOpenRequest(ctx, cont.ID, models.TypeDestruction)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check open destruction requests")
	}
	if open {
		return nil, dErrors.New(dErrors.CodeStateConflict, "container already has an open destruction request")
	}
	if err := s.verifyCredential(ctx, caller, cmd.Credential, rec); err != nil {
		return nil, err
	}

	req := models.NewRequest(models.TypeDestruction, cont, caller.Principal.ID, p.Purpose, now)
	req.IdempotencyKey = cmd.IdempotencyKey
	if err := s.insertRequest(ctx, req); err != nil {
		return nil, err
	}
	created, err := s.record(ctx, caller, audit.ActionCreated,
		fmt.Sprintf("destruction request %s created for container %s", req.ID, cont.Barcode),
		id.EntityRequest, uuid.UUID(req.ID), req.UnitID)
	if err != nil {
		return nil, err
	}
	if err := s.emitCreated(ctx, req, cont); err != nil {
		return nil, err
	}
	return &models.Outcome{Request: req, Container: cont, AuditEntries: []*audit.Entry{created}}, nil
}

func (s *Service) requireItemsInContainer(ctx context.Context, containerID id.ContainerID, itemIDs []id.ItemID) error {
	items, err := s.containers.ListItems(ctx, containerID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list container items")
	}
	held := make(map[id.ItemID]struct{}, len(items))
	for _, it := range items {
		held[it.ID] = struct{}{}
	}
	for _, itemID := range itemIDs {
		if _, ok := held[itemID]; !ok {
			return dErrors.New(dErrors.CodeIntegrity, fmt.Sprintf("item %s is not in container %s", itemID, containerID))
		}
	}
	return nil
}

type requestEvent struct {
	RequestID       id.RequestID     `json:"request_id"`
	Type            models.Type      `json:"type"`
	Action          string           `json:"action"`
	FromStatus      models.Status    `json:"from_status,omitempty"`
	Status          models.Status    `json:"status"`
	ContainerID     id.ContainerID   `json:"container_id"`
	ContainerStatus container.Status `json:"container_status"`
	ActorID         id.PrincipalID   `json:"actor_id"`
}

func (s *Service) emitCreated(ctx context.Context, req *models.Request, cont *container.Container) error {
	return s.emit(ctx, outbox.KindRequestCreated, uuid.UUID(req.ID), req.UnitID, requestEvent{
		RequestID:       req.ID,
		Type:            req.Type,
		Action:          "create",
		Status:          req.Status,
		ContainerID:     cont.ID,
		ContainerStatus: cont.Status,
		ActorID:         req.RequesterID,
	})
}

// replay rebuilds the outcome of an earlier create without new effects.
func (s *Service) replay(ctx context.Context, prev *models.Request, t models.Type) (*models.Outcome, error) {
	if prev.Type != t {
		return nil, dErrors.New(dErrors.CodeConflict, "idempotency key was already used for a different request type")
	}
	cont, err := s.loadContainer(ctx, prev.ContainerID, dErrors.CodeIntegrity)
	if err != nil {
		return nil, err
	}
	out := &models.Outcome{Request: prev, Container: cont, Replayed: true}
	if prev.Type == models.TypeStorage {
		if out.Items, err = s.containers.ListItems(ctx, cont.ID); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list container items")
		}
	}
	return out, nil
}

// replayByKey answers a submission that lost the idempotency race to a
// concurrent one carrying the same key.
func (s *Service) replayByKey(ctx context.Context, cmd CreateCommand) (*models.Outcome, error) {
	principalID := requestcontext.PrincipalID(ctx)
	prev, err := s.requests.FindRequestByIdempotencyKey(ctx, principalID, cmd.IdempotencyKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "duplicate submission")
	}
	return s.replay(ctx, prev, cmd.Type)
}
