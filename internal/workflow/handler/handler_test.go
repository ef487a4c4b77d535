package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"archivist/internal/audit"
	"archivist/internal/container"
	"archivist/internal/signature"
	"archivist/internal/workflow/handler/mocks"
	"archivist/internal/workflow/models"
	"archivist/internal/workflow/service"
	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
	"archivist/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = chi.NewRouter()
	New(s.service, logger).Register(s.router)
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func pendingOutcome(t models.Type, version int) *models.Outcome {
	return &models.Outcome{
		Request: &models.Request{
			ID:      id.NewRequestID(),
			Type:    t,
			Status:  models.StatusPending,
			Version: version,
		},
		AuditEntries: []*audit.Entry{},
	}
}

func (s *HandlerSuite) TestCreate() {
	containerID := id.NewContainerID()
	returnAt := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	body := map[string]any{
		"type": "withdrawal",
		"payload": map[string]any{
			"type":               "withdrawal",
			"container_id":       containerID.String(),
			"expected_return_at": returnAt.Format(time.RFC3339),
		},
		"credential": "secret",
	}

	s.Run("decodes the payload variant and forwards the idempotency key", func() {
		out := pendingOutcome(models.TypeWithdrawal, 1)
		s.service.EXPECT().CreateRequest(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, cmd service.CreateCommand) (*models.Outcome, error) {
				s.Equal(models.TypeWithdrawal, cmd.Type)
				s.Equal("secret", cmd.Credential)
				s.Equal("key-1", cmd.IdempotencyKey)
				p, ok := cmd.Payload.(models.WithdrawalPayload)
				s.Require().True(ok, "payload decoded as %T", cmd.Payload)
				s.Equal(containerID, p.ContainerID)
				s.True(p.IsFull())
				return out, nil
			})

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/requests", body)
		req.Header.Set("Idempotency-Key", "key-1")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		got := testutil.UnmarshalResponse[models.Outcome](s.T(), rr)
		s.Equal(out.Request.ID, got.Request.ID)
	})

	s.Run("a replayed submission answers 200", func() {
		out := pendingOutcome(models.TypeWithdrawal, 1)
		out.Replayed = true
		s.service.EXPECT().CreateRequest(gomock.Any(), gomock.Any()).Return(out, nil)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/requests", body))

		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "replayed", true)
	})

	s.Run("malformed JSON never reaches the service", func() {
		s.service.EXPECT().CreateRequest(gomock.Any(), gomock.Any()).Times(0)

		rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/requests", "{bad-json"))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})

	s.Run("missing credential is a validation error", func() {
		s.service.EXPECT().CreateRequest(gomock.Any(), gomock.Any()).Times(0)
		noCredential := map[string]any{"type": "withdrawal", "payload": body["payload"]}

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/requests", noCredential))

		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		errBody := testutil.UnmarshalErrorResponse(s.T(), rr)
		s.Equal(string(dErrors.CodeValidation), errBody["error"])
		s.Equal("credential is required", errBody["error_description"])
	})

	s.Run("unknown payload type is a validation error", func() {
		s.service.EXPECT().CreateRequest(gomock.Any(), gomock.Any()).Times(0)
		bad := map[string]any{"type": "storage", "payload": map[string]any{"type": "bogus"}, "credential": "x"}

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/requests", bad))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("an oversized idempotency key is rejected", func() {
		s.service.EXPECT().CreateRequest(gomock.Any(), gomock.Any()).Times(0)
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/requests", body)
		req.Header.Set("Idempotency-Key", string(bytes.Repeat([]byte("k"), 129)))

		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})
}

func (s *HandlerSuite) TestTransition() {
	requestID := id.NewRequestID()
	path := "/v1/requests/" + requestID.String() + "/transitions"

	s.Run("If-Match supplies the expected version", func() {
		s.service.EXPECT().TransitionRequest(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, cmd service.TransitionCommand) (*models.Outcome, error) {
				s.Equal(requestID, cmd.RequestID)
				s.Equal(models.ActionApprove, cmd.Action)
				s.Equal(3, cmd.ExpectedVersion)
				s.Equal(models.NonePayload{}, cmd.Payload)
				return pendingOutcome(models.TypeWithdrawal, 4), nil
			})
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"action": "approve", "credential": "pw"})
		req.Header.Set("If-Match", `"3"`)

		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusOK(s.T(), rr)
	})

	s.Run("the body version wins over If-Match", func() {
		s.service.EXPECT().TransitionRequest(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, cmd service.TransitionCommand) (*models.Outcome, error) {
				s.Equal(7, cmd.ExpectedVersion)
				return pendingOutcome(models.TypeWithdrawal, 8), nil
			})
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{
			"action": "reject", "credential": "pw", "expected_version": 7,
			"payload": map[string]any{"type": "reason", "reason": "not needed any more"},
		})
		req.Header.Set("If-Match", `"3"`)

		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusOK(s.T(), rr)
	})

	s.Run("a malformed If-Match is a bad request", func() {
		s.service.EXPECT().TransitionRequest(gomock.Any(), gomock.Any()).Times(0)
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"action": "approve", "credential": "pw"})
		req.Header.Set("If-Match", "*")

		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})

	s.Run("unknown actions fail validation", func() {
		s.service.EXPECT().TransitionRequest(gomock.Any(), gomock.Any()).Times(0)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, path,
			map[string]any{"action": "teleport", "credential": "pw"}))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("service errors map to their status", func() {
		s.service.EXPECT().TransitionRequest(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeStateConflict, "approve is not allowed from completed"))

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, path,
			map[string]any{"action": "approve", "credential": "pw"}))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeStateConflict))
	})

	s.Run("an invalid request id is rejected", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/requests/nope/transitions",
			map[string]any{"action": "approve", "credential": "pw"}))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})
}

func (s *HandlerSuite) TestListRequests() {
	s.Run("query parameters become the filter", func() {
		unitID := id.NewUnitID()
		s.service.EXPECT().QueryRequests(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, f models.RequestFilter) ([]*models.Request, error) {
				s.Equal(models.TypeWithdrawal, f.Type)
				s.Equal(models.StatusIssued, f.Status)
				s.Require().NotNil(f.UnitID)
				s.Equal(unitID, *f.UnitID)
				s.Equal(25, f.Limit)
				return []*models.Request{pendingOutcome(models.TypeWithdrawal, 1).Request}, nil
			})

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet,
			"/v1/requests?type=withdrawal&status=issued&unit_id="+unitID.String()+"&limit=25"))

		testutil.AssertStatusOK(s.T(), rr)
		got := testutil.UnmarshalResponse[RequestListResponse](s.T(), rr)
		s.Equal(1, got.Count)
	})

	s.Run("an empty result is an empty list", func() {
		s.service.EXPECT().QueryRequests(gomock.Any(), gomock.Any()).Return(nil, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/requests"))

		testutil.AssertStatusOK(s.T(), rr)
		s.JSONEq(`{"requests":[],"count":0}`, rr.Body.String())
	})

	s.Run("rejects bad filters", func() {
		for _, q := range []string{"status=lost", "type=loan", "limit=0", "limit=501", "container_id=x"} {
			rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/requests?"+q))
			s.Equal(http.StatusBadRequest, rr.Code, q)
		}
	})
}

func (s *HandlerSuite) TestGetRequestSetsETag() {
	req := pendingOutcome(models.TypeStorage, 5).Request
	s.service.EXPECT().GetRequest(gomock.Any(), req.ID).Return(req, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/requests/"+req.ID.String()))

	testutil.AssertStatusOK(s.T(), rr)
	s.Equal(`"5"`, rr.Header().Get("ETag"))
}

func (s *HandlerSuite) TestGetRequestOutOfScopeIsNotFound() {
	s.service.EXPECT().GetRequest(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "request not found"))

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/requests/"+id.NewRequestID().String()))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
}

func (s *HandlerSuite) TestContainerRoutes() {
	containerID := id.NewContainerID()

	s.Run("get returns the container with its items", func() {
		c := &container.Container{ID: containerID, Barcode: "U1/2026/00001", Status: container.StatusActive, Version: 1}
		s.service.EXPECT().GetContainer(gomock.Any(), containerID).Return(c, nil, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/containers/"+containerID.String()))

		testutil.AssertStatusOK(s.T(), rr)
		got := testutil.UnmarshalResponse[ContainerResponse](s.T(), rr)
		s.Equal("U1/2026/00001", got.Container.Barcode)
		s.NotNil(got.Items)
	})

	s.Run("archive passes the credential through", func() {
		s.service.EXPECT().ArchiveContainer(gomock.Any(), containerID, "pw").
			Return(&models.Outcome{Container: &container.Container{ID: containerID}}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/v1/containers/"+containerID.String()+"/archive", map[string]string{"credential": "pw"}))

		testutil.AssertStatusOK(s.T(), rr)
	})
}

func (s *HandlerSuite) TestListSignatures() {
	containerID := uuid.New()
	s.service.EXPECT().GetSignaturesFor(gomock.Any(), id.EntityContainer, containerID).
		Return([]*signature.Signature{{ID: id.NewSignatureID()}}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/signatures/container/"+containerID.String()))

	testutil.AssertStatusOK(s.T(), rr)
	got := testutil.UnmarshalResponse[SignatureListResponse](s.T(), rr)
	s.Len(got.Signatures, 1)
}

func (s *HandlerSuite) TestAudit() {
	s.Run("query parameters become the filter", func() {
		targetID := uuid.New()
		s.service.EXPECT().QueryAudit(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, f audit.Filter) ([]*audit.Entry, error) {
				s.Equal(audit.ActionApproved, f.Action)
				s.Equal(id.EntityRequest, f.TargetType)
				s.Require().NotNil(f.TargetID)
				s.Equal(targetID, *f.TargetID)
				s.Equal(2026, f.From.Year())
				return []*audit.Entry{}, nil
			})

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet,
			"/v1/audit?action=Approved&target_type=request&target_id="+targetID.String()+"&from=2026-01-01T00:00:00Z"))

		testutil.AssertStatusOK(s.T(), rr)
	})

	s.Run("an inverted time range is rejected", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet,
			"/v1/audit?from=2026-02-01T00:00:00Z&to=2026-01-01T00:00:00Z"))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("mutations are refused", func() {
		for _, method := range []string{http.MethodPut, http.MethodPatch, http.MethodDelete} {
			rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), method, "/v1/audit/"+uuid.NewString()))
			require.Equal(s.T(), http.StatusConflict, rr.Code, method)
			assert.Equal(s.T(), string(dErrors.CodeImmutabilityViolation), testutil.UnmarshalErrorResponse(s.T(), rr)["error"])
		}
	})
}
