package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"archivist/internal/audit"
	"archivist/internal/container"
	"archivist/internal/identity"
	"archivist/internal/outbox"
	"archivist/internal/settings"
	"archivist/internal/signature"
	"archivist/internal/workflow/models"
	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
	"archivist/pkg/requestcontext"
)

// TransitionCommand moves a request along one edge. A nil Payload is the
// empty variant. ExpectedVersion is optional; when zero, the version read just
// before the unit of work starts is used, so a request that moved on while the
// call waited for its lock is a concurrency conflict either way.
type TransitionCommand struct {
	RequestID       id.RequestID
	Action          models.Action
	Payload         models.Payload
	Credential      string
	ExpectedVersion int
}

// TransitionRequest applies one action to a request. Guards run in a fixed
// order before any side effect; the first failure wins.
func (s *Service) TransitionRequest(ctx context.Context, cmd TransitionCommand) (*models.Outcome, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "workflow.TransitionRequest", trace.WithAttributes(
		attribute.String("request.id", cmd.RequestID.String()),
		attribute.String("request.action", string(cmd.Action)),
	))
	defer span.End()

	out, err := s.transition(ctx, cmd)
	s.finish(ctx, span, string(cmd.Action), start, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) transition(ctx context.Context, cmd TransitionCommand) (*models.Outcome, error) {
	if !slices.Contains(models.AllActions, cmd.Action) {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown action %q", cmd.Action))
	}
	if cmd.Payload == nil {
		cmd.Payload = models.NonePayload{}
	}
	capability, _ := models.CapabilityFor(cmd.Action)
	expected := cmd.ExpectedVersion
	if expected <= 0 {
		expected = s.observedVersion(ctx, cmd.RequestID)
	}

	var out *models.Outcome
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		rec, caller, err := s.begin(ctx)
		if err != nil {
			return err
		}
		req, err := s.loadRequest(ctx, cmd.RequestID)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx).UTC()

		var edge models.Edge
		if err := runGuards(
			requireActiveSigner(caller),
			requireCapability(caller, capability),
			requireRequester(caller, req, cmd.Action),
			requireUnitScope(caller, req.UnitID),
			requirePayloadKind(cmd.Payload, models.TransitionPayloadKind(cmd.Action, req.Type)),
			requireValid(func() error { return validateTransitionPayload(cmd.Payload, req.Type, rec, now) }),
			requireExpectedVersion(req, expected),
			requireEdge(req, cmd.Action, &edge),
		); err != nil {
			return err
		}

		cont, err := s.loadContainer(ctx, req.ContainerID, dErrors.CodeIntegrity)
		if err != nil {
			return err
		}
		out, err = s.applyTransition(ctx, caller, rec, req, cont, edge, cmd, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// observedVersion reads the request outside any unit of work. A failed read
// yields zero and leaves the error to the locked read that follows.
func (s *Service) observedVersion(ctx context.Context, requestID id.RequestID) int {
	r, err := s.requests.FindRequest(ctx, requestID)
	if err != nil {
		return 0
	}
	return r.Version
}

func validateTransitionPayload(p models.Payload, t models.Type, rec *settings.Record, now time.Time) error {
	switch v := p.(type) {
	case models.ReasonPayload:
		return v.Validate(rec.ReasonMinLength)
	case models.LocationPayload:
		return v.Validate()
	case models.ReturnPayload:
		return v.Validate()
	case models.ResubmitPayload:
		return v.Validate(t, now)
	}
	return nil
}

// applyTransition runs the side effects of a resolved edge: container change,
// request change, notice, audit, signature and outbox event, in that order.
func (s *Service) applyTransition(ctx context.Context, caller *identity.Caller, rec *settings.Record, req *models.Request, cont *container.Container, edge models.Edge, cmd TransitionCommand, now time.Time) (*models.Outcome, error) {
	from := req.Status
	fromContainer := cont.Status
	containerChanged := false
	purpose := string(cmd.Action) + " " + string(req.Type) + " request"
	var notice *models.ChangeNotice

	switch p := cmd.Payload.(type) {
	case models.ReasonPayload:
		kind := models.NoticeChangeRequest
		if cmd.Action == models.ActionReject {
			kind = models.NoticeRejection
		}
		notice = newNotice(req.ID, kind, p.Reason, caller.Principal.ID, now)
		purpose = p.Reason

	case models.ResubmitPayload:
		if err := s.verifyCredential(ctx, caller, cmd.Credential, rec); err != nil {
			return nil, err
		}
		if p.Purpose != nil {
			req.Purpose = *p.Purpose
		}
		if p.ExpectedReturnAt != nil {
			at := p.ExpectedReturnAt.UTC()
			req.ExpectedReturnAt = &at
		}
		if p.ChangesRetention() {
			retained, date := p.Retention(cont)
			if err := cont.CanReschedule(retained, date, now); err != nil {
				return nil, err
			}
			cont.ApplyReschedule(retained, date, now)
			containerChanged = true
		}

	case models.LocationPayload:
		if _, err := s.requireLocation(ctx, p.LocationID, cont.UnitID); err != nil {
			return nil, err
		}
		if err := cont.CanAllocate(); err != nil {
			return nil, err
		}
		cont.ApplyAllocation(p.LocationID, now)
		containerChanged = true

	case models.ReturnPayload:
		if _, err := s.requireLocation(ctx, p.LocationID, cont.UnitID); err != nil {
			return nil, err
		}
		if err := cont.CanReturn(); err != nil {
			return nil, err
		}
		cont.ApplyReturn(p.LocationID, now)
		containerChanged = true
		if p.Note != "" {
			notice = newNotice(req.ID, models.NoticeReturnNote, p.Note, caller.Principal.ID, now)
		}
	}

	switch {
	case cmd.Action == models.ActionReject && req.Type == models.TypeWithdrawal && cont.Status == container.StatusWithdrawn:
		if err := cont.CanRestore(); err != nil {
			return nil, err
		}
		cont.ApplyRestore(now)
		containerChanged = true
	case cmd.Action == models.ActionConfirmDestruction:
		if err := cont.CanDestroy(); err != nil {
			return nil, err
		}
		cont.ApplyDestruction(now)
		containerChanged = true
	}

	req.ApplyEdge(edge, caller.Principal.ID, now)
	if err := s.saveRequest(ctx, req); err != nil {
		return nil, err
	}
	if containerChanged {
		if err := s.saveContainer(ctx, cont); err != nil {
			return nil, err
		}
	}
	if notice != nil {
		if err := s.requests.AppendNotice(ctx, notice); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save change notice")
		}
	}

	out := &models.Outcome{Request: req, Container: cont, Notice: notice}
	entry, err := s.record(ctx, caller, auditActionFor[cmd.Action],
		fmt.Sprintf("%s request %s moved from %s to %s", req.Type, req.ID, from, req.Status),
		id.EntityRequest, uuid.UUID(req.ID), req.UnitID)
	if err != nil {
		return nil, err
	}
	out.AuditEntries = append(out.AuditEntries, entry)
	if containerChanged && fromContainer != cont.Status {
		entry, err := s.record(ctx, caller, audit.ActionUpdated,
			fmt.Sprintf("container %s status changed from %s to %s due to %s request %s", cont.Barcode, fromContainer, cont.Status, req.Type, req.ID),
			id.EntityContainer, uuid.UUID(cont.ID), cont.UnitID)
		if err != nil {
			return nil, err
		}
		out.AuditEntries = append(out.AuditEntries, entry)
	}

	if edge.SignAs != "" {
		sig, err := s.signatures.Create(ctx, signature.SignRequest{
			SignerID:   caller.Principal.ID,
			ActionType: edge.SignAs,
			Purpose:    purpose,
			TargetType: id.EntityRequest,
			TargetID:   uuid.UUID(req.ID),
			UnitID:     req.UnitID,
			Snapshot:   snapshot{Action: string(cmd.Action), FromStatus: from, Request: req, Container: cont},
			Credential: cmd.Credential,
			Settings:   rec,
		})
		if err != nil {
			return nil, err
		}
		out.Signature = sig
	}

	if err := s.emit(ctx, outbox.KindRequestTransitioned, uuid.UUID(req.ID), req.UnitID, requestEvent{
		RequestID:       req.ID,
		Type:            req.Type,
		Action:          string(cmd.Action),
		FromStatus:      from,
		Status:          req.Status,
		ContainerID:     cont.ID,
		ContainerStatus: cont.Status,
		ActorID:         caller.Principal.ID,
	}); err != nil {
		return nil, err
	}
	return out, nil
}

func newNotice(requestID id.RequestID, kind models.NoticeKind, reason string, by id.PrincipalID, now time.Time) *models.ChangeNotice {
	return &models.ChangeNotice{
		ID:        id.NewNoticeID(),
		RequestID: requestID,
		Kind:      kind,
		Reason:    reason,
		CreatedBy: by,
		CreatedAt: now,
	}
}
