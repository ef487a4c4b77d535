package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"archivist/internal/audit"
	"archivist/internal/container"
	"archivist/internal/identity"
	"archivist/internal/isolation"
	"archivist/internal/outbox"
	"archivist/internal/settings"
	"archivist/internal/signature"
	"archivist/internal/workflow/models"
	workflow "archivist/internal/workflow/service"
	id "archivist/pkg/domain"
	"archivist/pkg/platform/sentinel"
)

var (
	_ workflow.RequestStore   = (*DB)(nil)
	_ workflow.ContainerStore = (*DB)(nil)
	_ workflow.EventStore     = (*DB)(nil)
	_ workflow.UnitOfWork     = (*DB)(nil)
	_ signature.Store         = (*DB)(nil)
	_ audit.Store             = (*DB)(nil)
	_ outbox.Store            = (*DB)(nil)
	_ outbox.Waker            = (*DB)(nil)
	_ settings.Store          = (*DB)(nil)
	_ identity.PrincipalStore = (*DB)(nil)
)

type DBSuite struct {
	suite.Suite
	db   *DB
	ctx  context.Context
	unit id.UnitID
	now  time.Time
}

func TestDBSuite(t *testing.T) {
	suite.Run(t, new(DBSuite))
}

func (s *DBSuite) SetupTest() {
	s.db = New()
	s.ctx = context.Background()
	s.unit = id.NewUnitID()
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *DBSuite) newContainer() *container.Container {
	c, err := container.New(id.NewContainerID(), s.unit, container.Barcode("U1", 2026, len(s.db.containers)+1),
		nil, true, id.NewPrincipalID(), s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.db.CreateContainer(s.ctx, c))
	return c
}

func (s *DBSuite) TestRunInTxRollsBackEveryWrite() {
	c := s.newContainer()
	boom := errors.New("boom")

	err := s.db.RunInTx(s.ctx, func(ctx context.Context) error {
		c.ApplyArchive(s.now)
		s.Require().NoError(s.db.UpdateContainer(ctx, c))
		r := models.NewRequest(models.TypeDestruction, c, id.NewPrincipalID(), "", s.now)
		s.Require().NoError(s.db.CreateRequest(ctx, r))
		s.Require().NoError(s.db.AppendAudit(ctx, &audit.Entry{ID: id.NewAuditEntryID()}))
		event, err := outbox.NewEvent(outbox.KindRequestCreated, uuid.UUID(r.ID), s.unit, map[string]string{}, s.now)
		s.Require().NoError(err)
		s.Require().NoError(s.db.AppendOutbox(ctx, event))
		_, err = s.db.NextBarcodeSequence(ctx, "U1", 2026)
		s.Require().NoError(err)
		return boom
	})
	s.Require().ErrorIs(err, boom)

	stored, err := s.db.FindContainer(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(container.StatusActive, stored.Status)
	s.Equal(1, stored.Version)
	s.Equal(1, c.Version, "caller copy is reverted too")
	s.Empty(s.db.requests)
	s.Empty(s.db.audit)
	s.Empty(s.db.outbox)
	seq, err := s.db.NextBarcodeSequence(s.ctx, "U1", 2026)
	s.Require().NoError(err)
	s.Equal(1, seq)
	s.Empty(s.db.Wake(), "no wake-up for a rolled back outbox write")
}

func (s *DBSuite) TestRunInTxRollsBackOnPanic() {
	c := s.newContainer()
	s.Panics(func() {
		_ = s.db.RunInTx(s.ctx, func(ctx context.Context) error {
			c.ApplyArchive(s.now)
			_ = s.db.UpdateContainer(ctx, c)
			panic("boom")
		})
	})
	stored, err := s.db.FindContainer(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(container.StatusActive, stored.Status)
}

func (s *DBSuite) TestNestedRunInTxJoinsOuter() {
	c := s.newContainer()
	err := s.db.RunInTx(s.ctx, func(ctx context.Context) error {
		return s.db.RunInTx(ctx, func(ctx context.Context) error {
			c.ApplyArchive(s.now)
			return s.db.UpdateContainer(ctx, c)
		})
	})
	s.Require().NoError(err)
	stored, err := s.db.FindContainer(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(container.StatusArchived, stored.Status)
}

func (s *DBSuite) TestRunInTxRejectsCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	called := false
	err := s.db.RunInTx(ctx, func(context.Context) error {
		called = true
		return nil
	})
	s.Require().Error(err)
	s.False(called)
}

func (s *DBSuite) TestVersionConditionalUpdates() {
	c := s.newContainer()
	stale, err := s.db.FindContainer(s.ctx, c.ID)
	s.Require().NoError(err)

	c.ApplyArchive(s.now)
	s.Require().NoError(s.db.UpdateContainer(s.ctx, c))
	s.Equal(2, c.Version)

	stale.ApplyDestruction(s.now)
	s.Require().ErrorIs(s.db.UpdateContainer(s.ctx, stale), sentinel.ErrConflict)

	r := models.NewRequest(models.TypeWithdrawal, c, id.NewPrincipalID(), "", s.now)
	s.Require().NoError(s.db.CreateRequest(s.ctx, r))
	other, err := s.db.FindRequest(s.ctx, r.ID)
	s.Require().NoError(err)
	r.Status = models.StatusApproved
	s.Require().NoError(s.db.UpdateRequest(s.ctx, r))
	other.Status = models.StatusRejected
	s.Require().ErrorIs(s.db.UpdateRequest(s.ctx, other), sentinel.ErrConflict)
}

func (s *DBSuite) TestCreateRequestConstraints() {
	c := s.newContainer()
	requester := id.NewPrincipalID()

	s.Run("idempotency key is unique per requester", func() {
		r := models.NewRequest(models.TypeStorage, c, requester, "", s.now)
		r.IdempotencyKey = "k1"
		s.Require().NoError(s.db.CreateRequest(s.ctx, r))

		dup := models.NewRequest(models.TypeStorage, c, requester, "", s.now)
		dup.IdempotencyKey = "k1"
		s.Require().ErrorIs(s.db.CreateRequest(s.ctx, dup), sentinel.ErrAlreadyUsed)

		found, err := s.db.FindRequestByIdempotencyKey(s.ctx, requester, "k1")
		s.Require().NoError(err)
		s.Equal(r.ID, found.ID)

		_, err = s.db.FindRequestByIdempotencyKey(s.ctx, id.NewPrincipalID(), "k1")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("one open withdrawal per container", func() {
		first := models.NewRequest(models.TypeWithdrawal, c, requester, "", s.now)
		s.Require().NoError(s.db.CreateRequest(s.ctx, first))
		second := models.NewRequest(models.TypeWithdrawal, c, requester, "", s.now)
		s.Require().ErrorIs(s.db.CreateRequest(s.ctx, second), sentinel.ErrInvalidState)

		open, err := s.db.HasOpenRequest(s.ctx, c.ID, models.TypeWithdrawal)
		s.Require().NoError(err)
		s.True(open)

		first.Status = models.StatusRejected
		s.Require().NoError(s.db.UpdateRequest(s.ctx, first))
		s.Require().NoError(s.db.CreateRequest(s.ctx, second))
	})
}

func (s *DBSuite) TestQueryRequestsAppliesScopeAndLimit() {
	c := s.newContainer()
	for i := 0; i < 3; i++ {
		r := models.NewRequest(models.TypeStorage, c, id.NewPrincipalID(), "", s.now.Add(time.Duration(i)*time.Minute))
		s.Require().NoError(s.db.CreateRequest(s.ctx, r))
	}

	found, err := s.db.QueryRequests(s.ctx, models.RequestFilter{Limit: 2, Scope: isolationFor(s.unit)})
	s.Require().NoError(err)
	s.Len(found, 2)
	s.True(found[0].CreatedAt.After(found[1].CreatedAt))

	none, err := s.db.QueryRequests(s.ctx, models.RequestFilter{Scope: isolationFor(id.NewUnitID())})
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *DBSuite) TestSignatureInvalidationIsSingleUse() {
	sig := &signature.Signature{
		ID:               id.NewSignatureID(),
		TargetEntityType: id.EntityRequest,
		TargetEntityID:   uuid.New(),
		Snapshot:         []byte(`{}`),
		IsValid:          true,
	}
	s.Require().NoError(s.db.AppendSignature(s.ctx, sig))
	s.Require().ErrorIs(s.db.AppendSignature(s.ctx, sig), sentinel.ErrImmutable)

	inv := signature.Invalidation{Reason: "signed the wrong request", By: id.NewPrincipalID(), At: s.now}
	s.Require().NoError(s.db.InvalidateSignature(s.ctx, sig.ID, inv))
	s.Require().ErrorIs(s.db.InvalidateSignature(s.ctx, sig.ID, inv), sentinel.ErrImmutable)

	stored, err := s.db.FindSignature(s.ctx, sig.ID)
	s.Require().NoError(err)
	s.False(stored.IsValid)
	s.Equal(inv.Reason, stored.InvalidationReason)

	listed, err := s.db.ListSignatures(s.ctx, id.EntityRequest, sig.TargetEntityID)
	s.Require().NoError(err)
	s.Len(listed, 1)
}

func (s *DBSuite) TestOutboxClaimAndWake() {
	err := s.db.RunInTx(s.ctx, func(ctx context.Context) error {
		for i := 0; i < 3; i++ {
			event, err := outbox.NewEvent(outbox.KindRequestCreated, uuid.New(), s.unit, map[string]int{"n": i}, s.now)
			if err != nil {
				return err
			}
			if err := s.db.AppendOutbox(ctx, event); err != nil {
				return err
			}
		}
		return nil
	})
	s.Require().NoError(err)

	select {
	case <-s.db.Wake():
	default:
		s.Fail("expected a wake-up after commit")
	}

	first, err := s.db.ClaimPending(s.ctx, 2, s.now)
	s.Require().NoError(err)
	s.Len(first, 2)
	rest, err := s.db.ClaimPending(s.ctx, 10, s.now)
	s.Require().NoError(err)
	s.Len(rest, 1)
	s.NotNil(rest[0].DispatchedAt)
	empty, err := s.db.ClaimPending(s.ctx, 10, s.now)
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *DBSuite) TestSettingsVersionSequence() {
	_, err := s.db.LatestSettings(s.ctx)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.db.AppendSettings(s.ctx, &settings.Record{Version: 1, ReasonMinLength: 10}))
	s.Require().ErrorIs(s.db.AppendSettings(s.ctx, &settings.Record{Version: 1}), sentinel.ErrConflict)

	latest, err := s.db.LatestSettings(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, latest.Version)
}

func isolationFor(units ...id.UnitID) isolation.Scope {
	return isolation.Scope{Units: units}
}
