package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archivist/internal/platform/metrics"
	id "archivist/pkg/domain"
	"archivist/pkg/platform/httputil"
	authmw "archivist/pkg/platform/middleware/auth"
	"archivist/pkg/requestcontext"
	"archivist/pkg/testutil"
)

// metrics register on the default registry, so build them once.
var routerMetrics = metrics.New()

type stubValidator struct {
	principal id.PrincipalID
	issuedAt  time.Time
}

func (v stubValidator) ValidateToken(token string) (*authmw.JWTClaims, error) {
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return &authmw.JWTClaims{PrincipalID: v.principal.String(), AuthMethod: "password", IssuedAt: v.issuedAt}, nil
}

type fixedSessions time.Duration

func (f fixedSessions) SessionTimeout(context.Context) (time.Duration, error) {
	return time.Duration(f), nil
}

type registrarFunc func(r chi.Router)

func (f registrarFunc) Register(r chi.Router) { f(r) }

func newTestRouter(t *testing.T, checks ...HealthCheck) (http.Handler, id.PrincipalID) {
	t.Helper()
	principal := id.NewPrincipalID()
	whoami := registrarFunc(func(r chi.Router) {
		r.Get("/v1/whoami", func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteJSON(w, http.StatusOK, map[string]string{
				"principal_id": requestcontext.PrincipalID(r.Context()).String(),
				"auth_method":  requestcontext.AuthMethod(r.Context()),
			})
		})
	})
	ping := registrarFunc(func(r chi.Router) {
		r.Post("/v1/ping", func(w http.ResponseWriter, _ *http.Request) {
			httputil.WriteJSON(w, http.StatusOK, map[string]string{"pong": "yes"})
		})
	})
	return NewRouter(Config{
		AllowedOrigins: []string{"https://archive.example.com"},
		RequestTimeout: 5 * time.Second,
		Validator:      stubValidator{principal: principal, issuedAt: time.Now().Add(-time.Minute)},
		Sessions:       fixedSessions(30 * time.Minute),
		Metrics:        routerMetrics,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		HealthChecks:   checks,
		Public:         []Registrar{ping},
		Protected:      []Registrar{whoami},
	}), principal
}

func TestProtectedRoutes(t *testing.T) {
	router, principal := newTestRouter(t)

	testutil.Given(t, "no bearer token", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/v1/whoami"))
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})

	testutil.Given(t, "an invalid bearer token", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/v1/whoami")
		req.Header.Set("Authorization", "Bearer forged")
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	testutil.Given(t, "a valid bearer token", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/v1/whoami")
		req.Header.Set("Authorization", "Bearer good")
		rr := testutil.DoRequest(router, req)

		testutil.Then(t, "the principal reaches the handler", func(t *testing.T) {
			testutil.AssertStatusOK(t, rr)
			body := testutil.UnmarshalResponse[map[string]string](t, rr)
			assert.Equal(t, principal.String(), (*body)["principal_id"])
			assert.Equal(t, "password", (*body)["auth_method"])
		})
	})
}

func TestPublicRoutesSkipAuth(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, "/v1/ping"))

	testutil.AssertStatusOK(t, rr)
}

func TestExpiredSessionIsRefused(t *testing.T) {
	principal := id.NewPrincipalID()
	router := NewRouter(Config{
		Validator: stubValidator{principal: principal, issuedAt: time.Now().Add(-2 * time.Hour)},
		Sessions:  fixedSessions(30 * time.Minute),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Protected: []Registrar{registrarFunc(func(r chi.Router) {
			r.Get("/v1/whoami", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
		})},
	})
	req := testutil.NewRequest(t, http.MethodGet, "/v1/whoami")
	req.Header.Set("Authorization", "Bearer good")

	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	assert.Contains(t, rr.Body.String(), "Session has timed out")
}

func TestRequestIDIsEchoed(t *testing.T) {
	router, _ := newTestRouter(t)

	testutil.When(t, "the client sends one", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/healthz")
		req.Header.Set("X-Request-ID", "abc-123")
		rr := testutil.DoRequest(router, req)
		assert.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))
	})

	testutil.When(t, "the client sends none", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
		assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	})
}

func TestHealth(t *testing.T) {
	testutil.Given(t, "every dependency answers", func(t *testing.T) {
		router, _ := newTestRouter(t, HealthCheck{Name: "postgres", Check: func(context.Context) error { return nil }})
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "status", "ok")
	})

	testutil.Given(t, "a dependency is down", func(t *testing.T) {
		router, _ := newTestRouter(t,
			HealthCheck{Name: "postgres", Check: func(context.Context) error { return nil }},
			HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
		)
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
		testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
		body := testutil.UnmarshalResponse[healthResponse](t, rr)
		assert.Equal(t, "degraded", body.Status)
		assert.Equal(t, map[string]string{"redis": "connection refused"}, body.Checks)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, "/v1/ping"))

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `archivist_http_requests_total{method="POST",route="/v1/ping",status="200"}`))
}

func TestUnknownRouteIsJSON(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/nope"))

	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}

func TestCORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t)
	req := testutil.NewRequest(t, http.MethodOptions, "/v1/whoami")
	req.Header.Set("Origin", "https://archive.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	rr := testutil.DoRequest(router, req)

	assert.Equal(t, "https://archive.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}
