// Package handler exposes login over HTTP. A successful login returns a
// bearer token whose lifetime is the current session timeout.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"archivist/internal/identity"
	id "archivist/pkg/domain"
	"archivist/pkg/platform/httputil"
	"archivist/pkg/requestcontext"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks archivist/internal/identity/handler Authenticator,TokenIssuer,SessionPolicy

const authMethodPassword = "password"

type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*identity.Principal, error)
}

type TokenIssuer interface {
	GenerateAccessToken(principalID id.PrincipalID, authMethod string, now time.Time, expiresIn time.Duration) (string, error)
}

type SessionPolicy interface {
	SessionTimeout(ctx context.Context) (time.Duration, error)
}

// LoginRequest is the HTTP request body for POST /v1/sessions.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=256"`
}

func (r *LoginRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	return nil
}

// SessionResponse is the HTTP response for POST /v1/sessions.
type SessionResponse struct {
	AccessToken string            `json:"access_token"`
	TokenType   string            `json:"token_type"`
	ExpiresAt   time.Time         `json:"expires_at"`
	Principal   PrincipalResponse `json:"principal"`
}

type PrincipalResponse struct {
	ID          id.PrincipalID `json:"id"`
	Username    string         `json:"username"`
	DisplayName string         `json:"display_name"`
	Role        string         `json:"role"`
	Units       []id.UnitID    `json:"units"`
}

type Handler struct {
	auth     Authenticator
	tokens   TokenIssuer
	sessions SessionPolicy
	logger   *slog.Logger
}

func New(auth Authenticator, tokens TokenIssuer, sessions SessionPolicy, logger *slog.Logger) *Handler {
	return &Handler{auth: auth, tokens: tokens, sessions: sessions, logger: logger}
}

// Register mounts the login endpoint. It must sit outside the auth middleware.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/sessions", h.HandleLogin)
}

// HandleLogin handles POST /v1/sessions.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	p, err := h.auth.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		h.logger.WarnContext(ctx, "login failed",
			"request_id", requestID,
			"username", req.Username,
			"client_ip", requestcontext.ClientIP(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	ttl, err := h.sessions.SessionTimeout(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	now := requestcontext.Now(ctx)
	token, err := h.tokens.GenerateAccessToken(p.ID, authMethodPassword, now, ttl)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue access token",
			"request_id", requestID,
			"principal_id", p.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "login succeeded",
		"request_id", requestID,
		"principal_id", p.ID,
	)
	units := p.Units
	if units == nil {
		units = []id.UnitID{}
	}
	httputil.WriteJSON(w, http.StatusCreated, &SessionResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   now.Add(ttl),
		Principal: PrincipalResponse{
			ID:          p.ID,
			Username:    p.Username,
			DisplayName: p.DisplayName,
			Role:        p.Role,
			Units:       units,
		},
	})
}
