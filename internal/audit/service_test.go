package audit_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"archivist/internal/audit"
	"archivist/internal/audit/mocks"
	"archivist/internal/isolation"
	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
	"archivist/pkg/platform/sentinel"
	"archivist/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	store   *mocks.MockStore
	service *audit.Service
	ctx     context.Context
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.service = audit.NewService(s.store)
	s.now = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), s.now)
	s.ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.7",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) entry() audit.Entry {
	return audit.Entry{
		ActorID:          id.NewPrincipalID(),
		ActorUsername:    "alice",
		Action:           audit.ActionUpdated,
		Message:          "container flipped to withdrawn",
		TargetEntityType: id.EntityContainer,
		TargetEntityID:   uuid.New(),
	}
}

func (s *ServiceSuite) TestAppend() {
	s.Run("fills id, time and origin from context", func() {
		s.store.EXPECT().AppendAudit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e *audit.Entry) error {
				s.False(e.ID.IsNil())
				s.Equal(s.now, e.CreatedAt)
				s.Equal("10.0.0.7", e.OriginAddress)
				s.Contains(e.OriginClient, "Chrome")
				s.Contains(e.OriginClient, "Windows")
				return nil
			})

		got, err := s.service.Append(s.ctx, s.entry())
		s.Require().NoError(err)
		s.Equal(audit.ActionUpdated, got.Action)
	})

	s.Run("rejects entries without an actor", func() {
		e := s.entry()
		e.ActorID = id.PrincipalID{}
		_, err := s.service.Append(s.ctx, e)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects entries without a target type", func() {
		e := s.entry()
		e.TargetEntityType = ""
		_, err := s.service.Append(s.ctx, e)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("duplicate id is an immutability violation", func() {
		s.store.EXPECT().AppendAudit(gomock.Any(), gomock.Any()).
			Return(fmt.Errorf("insert audit entry: %w", sentinel.ErrImmutable))

		_, err := s.service.Append(s.ctx, s.entry())
		s.True(dErrors.HasCode(err, dErrors.CodeImmutabilityViolation))
	})

	s.Run("store failures are surfaced", func() {
		s.store.EXPECT().AppendAudit(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

		_, err := s.service.Append(s.ctx, s.entry())
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestQuery() {
	s.Run("empty scope returns nothing without touching the store", func() {
		got, err := s.service.Query(s.ctx, audit.Filter{Scope: isolation.Scope{}})
		s.Require().NoError(err)
		s.Empty(got)
	})

	s.Run("scoped query reaches the store", func() {
		unit := id.NewUnitID()
		want := []*audit.Entry{{ID: id.NewAuditEntryID(), UnitID: &unit}}
		s.store.EXPECT().QueryAudit(gomock.Any(), gomock.Any()).Return(want, nil)

		got, err := s.service.Query(s.ctx, audit.Filter{Scope: isolation.Scope{Units: []id.UnitID{unit}}})
		s.Require().NoError(err)
		s.Equal(want, got)
	})
}

func (s *ServiceSuite) TestRejectMutation() {
	s.True(dErrors.HasCode(audit.RejectMutation(), dErrors.CodeImmutabilityViolation))
}

func TestFilterMatches(t *testing.T) {
	unit := id.NewUnitID()
	other := id.NewUnitID()
	actor := id.NewPrincipalID()
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e := &audit.Entry{
		ActorID:          actor,
		Action:           audit.ActionApproved,
		TargetEntityType: id.EntityRequest,
		UnitID:           &unit,
		CreatedAt:        at,
	}

	cases := []struct {
		name   string
		filter audit.Filter
		want   bool
	}{
		{"scope match", audit.Filter{Scope: isolation.Scope{Units: []id.UnitID{unit}}}, true},
		{"scope miss", audit.Filter{Scope: isolation.Scope{Units: []id.UnitID{other}}}, false},
		{"unscoped", audit.Filter{Scope: isolation.Scope{Unscoped: true}}, true},
		{"action miss", audit.Filter{Action: audit.ActionRejected, Scope: isolation.Scope{Unscoped: true}}, false},
		{"actor match", audit.Filter{ActorID: &actor, Scope: isolation.Scope{Unscoped: true}}, true},
		{"before range", audit.Filter{From: at.Add(time.Hour), Scope: isolation.Scope{Unscoped: true}}, false},
		{"after range", audit.Filter{To: at.Add(-time.Hour), Scope: isolation.Scope{Unscoped: true}}, false},
		{"target type miss", audit.Filter{TargetType: id.EntitySignature, Scope: isolation.Scope{Unscoped: true}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Matches(e); got != tc.want {
				t.Errorf("Matches() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNormalizeClient(t *testing.T) {
	if got := audit.NormalizeClient("   "); got != "" {
		t.Errorf("NormalizeClient(blank) = %q, want empty", got)
	}
	firefox := "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	got := audit.NormalizeClient(firefox)
	if !strings.HasPrefix(got, "Firefox 121.0 on ") || !strings.Contains(got, "Linux") {
		t.Errorf("NormalizeClient(firefox) = %q", got)
	}
}
