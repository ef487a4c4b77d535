package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"archivist/internal/identity"
	"archivist/internal/settings"
	"archivist/internal/settings/handler/mocks"
	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
	"archivist/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	service  *mocks.MockService
	resolver *mocks.MockCallerResolver
	router   chi.Router
	caller   *identity.Caller
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.resolver = mocks.NewMockCallerResolver(s.ctrl)
	s.router = chi.NewRouter()
	New(s.service, s.resolver, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
	s.caller = &identity.Caller{Principal: &identity.Principal{ID: id.NewPrincipalID(), Status: identity.StatusActive}}
}

func (s *HandlerSuite) TestGet() {
	s.service.EXPECT().Current(gomock.Any()).Return(&settings.Record{
		Version:           2,
		CredentialTimeout: 5 * time.Second,
		SessionTimeout:    30 * time.Minute,
		ReasonMinLength:   10,
	}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/settings"))

	testutil.AssertStatusOK(s.T(), rr)
	got := testutil.UnmarshalResponse[SettingsResponse](s.T(), rr)
	s.Equal(2, got.Version)
	s.Equal("5s", got.CredentialTimeout)
	s.Equal("30m0s", got.SessionTimeout)
	s.Nil(got.CreatedAt)
}

func (s *HandlerSuite) TestUpdate() {
	s.Run("parses durations into a change", func() {
		s.resolver.EXPECT().Resolve(gomock.Any()).Return(s.caller, nil)
		s.service.EXPECT().Update(gomock.Any(), s.caller, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ *identity.Caller, c settings.Change) (*settings.Record, error) {
				s.Require().NotNil(c.SessionTimeout)
				s.Equal(45*time.Minute, *c.SessionTimeout)
				s.Nil(c.CredentialTimeout)
				s.Nil(c.ReasonMinLength)
				return &settings.Record{Version: 3, SessionTimeout: *c.SessionTimeout, CreatedAt: time.Now()}, nil
			})

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPut, "/v1/settings",
			map[string]string{"session_timeout": "45m"}))

		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "version", float64(3))
	})

	s.Run("bad durations never reach the service", func() {
		s.resolver.EXPECT().Resolve(gomock.Any()).Return(s.caller, nil)
		s.service.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPut, "/v1/settings",
			map[string]string{"credential_timeout": "soon"}))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("an empty change is rejected", func() {
		s.resolver.EXPECT().Resolve(gomock.Any()).Return(s.caller, nil)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPut, "/v1/settings", map[string]any{}))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("a caller without the capability is forbidden", func() {
		s.resolver.EXPECT().Resolve(gomock.Any()).Return(s.caller, nil)
		s.service.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "missing capability"))

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPut, "/v1/settings",
			map[string]int{"reason_min_length": 12}))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, string(dErrors.CodeForbidden))
	})

	s.Run("an unauthenticated caller is refused before decoding", func() {
		s.resolver.EXPECT().Resolve(gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, "no authenticated principal"))

		rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPut, "/v1/settings", "{bad"))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, string(dErrors.CodeUnauthorized))
	})
}
