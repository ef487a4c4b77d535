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
	"archivist/internal/identity/handler/mocks"
	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
	"archivist/pkg/requestcontext"
	"archivist/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	auth     *mocks.MockAuthenticator
	tokens   *mocks.MockTokenIssuer
	sessions *mocks.MockSessionPolicy
	router   chi.Router
	now      time.Time
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.auth = mocks.NewMockAuthenticator(s.ctrl)
	s.tokens = mocks.NewMockTokenIssuer(s.ctrl)
	s.sessions = mocks.NewMockSessionPolicy(s.ctrl)
	s.now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	s.router = chi.NewRouter()
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), s.now)))
		})
	})
	New(s.auth, s.tokens, s.sessions, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *HandlerSuite) TestLogin() {
	p := &identity.Principal{
		ID:          id.NewPrincipalID(),
		Username:    "ayla",
		DisplayName: "Ayla",
		Role:        identity.RoleUser,
		Status:      identity.StatusActive,
	}

	s.Run("issues a token that lives for the session timeout", func() {
		s.auth.EXPECT().Authenticate(gomock.Any(), "ayla", "pw").Return(p, nil)
		s.sessions.EXPECT().SessionTimeout(gomock.Any()).Return(20*time.Minute, nil)
		s.tokens.EXPECT().GenerateAccessToken(p.ID, "password", s.now, 20*time.Minute).Return("signed.jwt.token", nil)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/sessions",
			map[string]string{"username": "  ayla ", "password": "pw"}))

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		got := testutil.UnmarshalResponse[SessionResponse](s.T(), rr)
		s.Equal("signed.jwt.token", got.AccessToken)
		s.Equal("Bearer", got.TokenType)
		s.True(got.ExpiresAt.Equal(s.now.Add(20 * time.Minute)))
		s.Equal(p.ID, got.Principal.ID)
		s.NotNil(got.Principal.Units)
	})

	s.Run("bad credentials are unauthorized", func() {
		s.auth.EXPECT().Authenticate(gomock.Any(), "ayla", "wrong").
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, "invalid username or password"))
		s.tokens.EXPECT().GenerateAccessToken(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/sessions",
			map[string]string{"username": "ayla", "password": "wrong"}))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, string(dErrors.CodeUnauthorized))
	})

	s.Run("username and password are required", func() {
		s.auth.EXPECT().Authenticate(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/sessions",
			map[string]string{"username": "ayla"}))

		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		s.Equal("password is required", testutil.UnmarshalErrorResponse(s.T(), rr)["error_description"])
	})
}

func (s *HandlerSuite) TestSessionPolicyFailureIsInternal() {
	p := &identity.Principal{ID: id.NewPrincipalID(), Username: "ayla", Status: identity.StatusActive}
	s.auth.EXPECT().Authenticate(gomock.Any(), gomock.Any(), gomock.Any()).Return(p, nil)
	s.sessions.EXPECT().SessionTimeout(gomock.Any()).Return(time.Duration(0), context.DeadlineExceeded)

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/sessions",
		map[string]string{"username": "ayla", "password": "pw"}))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, string(dErrors.CodeInternal))
}
