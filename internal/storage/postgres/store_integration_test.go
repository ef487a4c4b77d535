//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"archivist/internal/audit"
	"archivist/internal/container"
	"archivist/internal/identity"
	"archivist/internal/isolation"
	"archivist/internal/outbox"
	"archivist/internal/platform/config"
	platformpg "archivist/internal/platform/postgres"
	"archivist/internal/settings"
	"archivist/internal/signature"
	"archivist/internal/storage/postgres"
	"archivist/internal/workflow/models"
	workflow "archivist/internal/workflow/service"
	id "archivist/pkg/domain"
	"archivist/pkg/platform/sentinel"
	"archivist/pkg/testutil/containers"
)

var (
	_ workflow.RequestStore   = (*postgres.Store)(nil)
	_ workflow.ContainerStore = (*postgres.Store)(nil)
	_ workflow.EventStore     = (*postgres.Store)(nil)
	_ workflow.UnitOfWork     = (*postgres.Store)(nil)
	_ signature.Store         = (*postgres.Store)(nil)
	_ audit.Store             = (*postgres.Store)(nil)
	_ outbox.Store            = (*postgres.Store)(nil)
	_ settings.Store          = (*postgres.Store)(nil)
	_ identity.PrincipalStore = (*postgres.Store)(nil)
	_ outbox.Waker            = (*postgres.Listener)(nil)
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	ctx      context.Context
	unit     identity.Unit
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(s.ctx,
		"outbox", "audit_entries", "signatures", "change_notices", "requests", "contained_items",
		"containers", "barcode_sequences", "storage_locations", "principal_units", "principals",
		"units", "settings_records")
	s.Require().NoError(err)

	s.now = time.Now().UTC().Truncate(time.Microsecond)
	s.unit = identity.Unit{ID: id.NewUnitID(), Code: "U1", Name: "Unit One"}
	s.Require().NoError(s.store.UpsertUnit(s.ctx, s.unit))
}

func (s *PostgresStoreSuite) newContainer() *container.Container {
	seq, err := s.store.NextBarcodeSequence(s.ctx, s.unit.Code, s.now.Year())
	s.Require().NoError(err)
	c, err := container.New(id.NewContainerID(), s.unit.ID, container.Barcode(s.unit.Code, s.now.Year(), seq),
		nil, true, id.NewPrincipalID(), s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateContainer(s.ctx, c))
	return c
}

func (s *PostgresStoreSuite) TestPrincipalUnitsRoundTrip() {
	other := identity.Unit{ID: id.NewUnitID(), Code: "U2", Name: "Unit Two"}
	s.Require().NoError(s.store.UpsertUnit(s.ctx, other))
	p := identity.Principal{
		ID: id.NewPrincipalID(), Username: "head", DisplayName: "Section Head", Role: "Section Head",
		Units: []id.UnitID{s.unit.ID, other.ID}, Status: identity.StatusActive, PasswordHash: "x", CreatedAt: s.now,
	}
	s.Require().NoError(s.store.UpsertPrincipal(s.ctx, p))

	got, err := s.store.FindPrincipal(s.ctx, p.ID)
	s.Require().NoError(err)
	s.ElementsMatch(p.Units, got.Units)

	s.Require().NoError(s.store.SetPrincipalStatus(s.ctx, p.ID, identity.StatusSuspended))
	got, err = s.store.FindPrincipal(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(identity.StatusSuspended, got.Status)
}

func (s *PostgresStoreSuite) TestBarcodeSequenceIsPerUnitAndYear() {
	a, err := s.store.NextBarcodeSequence(s.ctx, "U1", 2026)
	s.Require().NoError(err)
	b, err := s.store.NextBarcodeSequence(s.ctx, "U1", 2026)
	s.Require().NoError(err)
	c, err := s.store.NextBarcodeSequence(s.ctx, "U1", 2027)
	s.Require().NoError(err)
	s.Equal([]int{1, 2, 1}, []int{a, b, c})
}

func (s *PostgresStoreSuite) TestTransactionRollsBackEveryWrite() {
	c := s.newContainer()
	err := s.store.RunInTx(s.ctx, func(ctx context.Context) error {
		loaded, err := s.store.FindContainer(ctx, c.ID)
		s.Require().NoError(err)
		loaded.ApplyArchive(s.now)
		s.Require().NoError(s.store.UpdateContainer(ctx, loaded))
		r := models.NewRequest(models.TypeDestruction, loaded, id.NewPrincipalID(), "", s.now)
		s.Require().NoError(s.store.CreateRequest(ctx, r))
		return sentinel.ErrInvalidState
	})
	s.Require().ErrorIs(err, sentinel.ErrInvalidState)

	stored, err := s.store.FindContainer(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(container.StatusActive, stored.Status)
	s.Equal(1, stored.Version)
	out, err := s.store.QueryRequests(s.ctx, models.RequestFilter{Scope: isolation.Scope{Unscoped: true}})
	s.Require().NoError(err)
	s.Empty(out)
}

func (s *PostgresStoreSuite) TestConcurrentVersionedUpdatesHaveOneWinner() {
	c := s.newContainer()
	const writers = 10

	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			copyOf := *c
			copyOf.ApplyArchive(s.now)
			err := s.store.UpdateContainer(s.ctx, &copyOf)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
	s.Equal(int32(writers-1), conflicts.Load())
}

func (s *PostgresStoreSuite) TestOneOpenWithdrawalPerContainer() {
	c := s.newContainer()
	first := models.NewRequest(models.TypeWithdrawal, c, id.NewPrincipalID(), "", s.now)
	s.Require().NoError(s.store.CreateRequest(s.ctx, first))

	second := models.NewRequest(models.TypeWithdrawal, c, id.NewPrincipalID(), "", s.now)
	s.ErrorIs(s.store.CreateRequest(s.ctx, second), sentinel.ErrInvalidState)

	open, err := s.store.HasOpenRequest(s.ctx, c.ID, models.TypeWithdrawal)
	s.Require().NoError(err)
	s.True(open)

	first.Status = models.StatusRejected
	s.Require().NoError(s.store.UpdateRequest(s.ctx, first))
	s.Require().NoError(s.store.CreateRequest(s.ctx, second), "a closed request no longer blocks")
}

func (s *PostgresStoreSuite) TestIdempotencyKeyIsUniquePerRequester() {
	c := s.newContainer()
	requester := id.NewPrincipalID()
	r := models.NewRequest(models.TypeDestruction, c, requester, "", s.now)
	r.IdempotencyKey = "key-1"
	s.Require().NoError(s.store.CreateRequest(s.ctx, r))

	dup := models.NewRequest(models.TypeStorage, c, requester, "", s.now)
	dup.IdempotencyKey = "key-1"
	s.ErrorIs(s.store.CreateRequest(s.ctx, dup), sentinel.ErrAlreadyUsed)

	found, err := s.store.FindRequestByIdempotencyKey(s.ctx, requester, "key-1")
	s.Require().NoError(err)
	s.Equal(r.ID, found.ID)
}

func (s *PostgresStoreSuite) TestSignaturesAreAppendOnly() {
	sig := &signature.Signature{
		ID: id.NewSignatureID(), SignerID: id.NewPrincipalID(), SignerUsername: "head",
		SignerDisplayName: "Head", SignerRole: "Section Head", ActionType: signature.ActionApprove,
		Purpose: "approve", Timestamp: s.now, TargetEntityType: id.EntityRequest, TargetEntityID: uuid.New(),
		UnitID: s.unit.ID, Snapshot: []byte(`{"a":1}`), DataHash: "d", SignatureHash: "h",
		AuthMethod: "password", IsValid: true,
	}
	s.Require().NoError(s.store.AppendSignature(s.ctx, sig))
	s.ErrorIs(s.store.AppendSignature(s.ctx, sig), sentinel.ErrImmutable)

	_, err := s.postgres.DB.ExecContext(s.ctx, `UPDATE signatures SET purpose = 'forged' WHERE id = $1`, uuid.UUID(sig.ID))
	s.Require().Error(err, "core fields are guarded by the trigger")
	_, err = s.postgres.DB.ExecContext(s.ctx, `DELETE FROM signatures WHERE id = $1`, uuid.UUID(sig.ID))
	s.Require().Error(err)

	inv := signature.Invalidation{Reason: "entered in error", By: id.NewPrincipalID(), At: s.now}
	s.Require().NoError(s.store.InvalidateSignature(s.ctx, sig.ID, inv))
	s.ErrorIs(s.store.InvalidateSignature(s.ctx, sig.ID, inv), sentinel.ErrImmutable)

	got, err := s.store.FindSignature(s.ctx, sig.ID)
	s.Require().NoError(err)
	s.False(got.IsValid)
	s.Equal("entered in error", got.InvalidationReason)
	s.Equal(sig.SignatureHash, got.SignatureHash)
}

func (s *PostgresStoreSuite) TestAuditEntriesAreAppendOnlyAndScoped() {
	unit := s.unit.ID
	entry := &audit.Entry{
		ID: id.NewAuditEntryID(), ActorID: id.NewPrincipalID(), ActorUsername: "head", Action: audit.ActionCreated,
		Message: "created", TargetEntityType: id.EntityRequest, TargetEntityID: uuid.New(), UnitID: &unit,
		CreatedAt: s.now,
	}
	s.Require().NoError(s.store.AppendAudit(s.ctx, entry))

	_, err := s.postgres.DB.ExecContext(s.ctx, `UPDATE audit_entries SET message = 'x' WHERE id = $1`, uuid.UUID(entry.ID))
	s.Require().Error(err)

	inScope, err := s.store.QueryAudit(s.ctx, audit.Filter{Scope: isolation.Scope{Units: []id.UnitID{unit}}})
	s.Require().NoError(err)
	s.Len(inScope, 1)
	outOfScope, err := s.store.QueryAudit(s.ctx, audit.Filter{Scope: isolation.Scope{Units: []id.UnitID{id.NewUnitID()}}})
	s.Require().NoError(err)
	s.Empty(outOfScope)
}

func (s *PostgresStoreSuite) TestOutboxClaimsEachEventOnce() {
	for i := 0; i < 20; i++ {
		event, err := outbox.NewEvent(outbox.KindRequestCreated, uuid.New(), s.unit.ID, map[string]int{"n": i}, s.now.Add(time.Duration(i)*time.Millisecond))
		s.Require().NoError(err)
		s.Require().NoError(s.store.AppendOutbox(s.ctx, event))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = map[id.EventID]int{}
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events, err := s.store.ClaimPending(s.ctx, 10, time.Now())
			s.NoError(err)
			mu.Lock()
			defer mu.Unlock()
			for _, e := range events {
				claimed[e.ID]++
			}
		}()
	}
	wg.Wait()
	s.Len(claimed, 20)
	for _, n := range claimed {
		s.Equal(1, n)
	}
}

func (s *PostgresStoreSuite) TestListenerWakesOnOutboxInsert() {
	pool, err := platformpg.OpenPool(s.ctx, config.DatabaseConfig{URL: s.postgres.URL})
	s.Require().NoError(err)
	defer pool.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	listener := postgres.NewListener(pool, nopLogger())
	go func() { _ = listener.Run(ctx) }()

	s.Eventually(func() bool {
		event, err := outbox.NewEvent(outbox.KindRequestCreated, uuid.New(), s.unit.ID, map[string]string{}, s.now)
		if err != nil || s.store.AppendOutbox(s.ctx, event) != nil {
			return false
		}
		select {
		case <-listener.Wake():
			return true
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 100*time.Millisecond)
}

func (s *PostgresStoreSuite) TestSettingsSequence() {
	rec := &settings.Record{Version: 1, CredentialTimeout: 3 * time.Second, SessionTimeout: 30 * time.Minute,
		ReasonMinLength: 10, CreatedAt: s.now}
	s.Require().NoError(s.store.AppendSettings(s.ctx, rec))
	s.ErrorIs(s.store.AppendSettings(s.ctx, rec), sentinel.ErrConflict)

	latest, err := s.store.LatestSettings(s.ctx)
	s.Require().NoError(err)
	s.Equal(3*time.Second, latest.CredentialTimeout)
	s.Equal(1, latest.Version)
}

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
