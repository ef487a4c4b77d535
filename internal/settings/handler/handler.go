package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"archivist/internal/identity"
	"archivist/internal/settings"
	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
	"archivist/pkg/platform/httputil"
	"archivist/pkg/requestcontext"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks archivist/internal/settings/handler Service,CallerResolver

type Service interface {
	Current(ctx context.Context) (*settings.Record, error)
	Update(ctx context.Context, caller *identity.Caller, change settings.Change) (*settings.Record, error)
}

type CallerResolver interface {
	Resolve(ctx context.Context) (*identity.Caller, error)
}

// UpdateRequest is the HTTP request body for PUT /v1/settings. Durations use
// Go duration syntax ("90s", "30m"); omitted fields keep their value.
type UpdateRequest struct {
	CredentialTimeout *string `json:"credential_timeout,omitempty"`
	SessionTimeout    *string `json:"session_timeout,omitempty"`
	ReasonMinLength   *int    `json:"reason_min_length,omitempty" validate:"omitempty,min=0,max=1000"`

	change settings.Change
}

// Validate parses the duration fields into a settings change.
func (r *UpdateRequest) Validate() error {
	if r.CredentialTimeout == nil && r.SessionTimeout == nil && r.ReasonMinLength == nil {
		return dErrors.New(dErrors.CodeValidation, "at least one setting must be provided")
	}
	var err error
	if r.change.CredentialTimeout, err = parseDuration("credential_timeout", r.CredentialTimeout); err != nil {
		return err
	}
	if r.change.SessionTimeout, err = parseDuration("session_timeout", r.SessionTimeout); err != nil {
		return err
	}
	r.change.ReasonMinLength = r.ReasonMinLength
	return nil
}

func parseDuration(field string, v *string) (*time.Duration, error) {
	if v == nil {
		return nil, nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, field+" must be a positive duration such as 30m")
	}
	return &d, nil
}

// SettingsResponse is the wire shape of a settings version.
type SettingsResponse struct {
	Version           int             `json:"version"`
	CredentialTimeout string          `json:"credential_timeout"`
	SessionTimeout    string          `json:"session_timeout"`
	ReasonMinLength   int             `json:"reason_min_length"`
	CreatedBy         *id.PrincipalID `json:"created_by,omitempty"`
	CreatedAt         *time.Time      `json:"created_at,omitempty"`
}

func toResponse(r *settings.Record) *SettingsResponse {
	resp := &SettingsResponse{
		Version:           r.Version,
		CredentialTimeout: r.CredentialTimeout.String(),
		SessionTimeout:    r.SessionTimeout.String(),
		ReasonMinLength:   r.ReasonMinLength,
		CreatedBy:         r.CreatedBy,
	}
	if !r.CreatedAt.IsZero() {
		at := r.CreatedAt
		resp.CreatedAt = &at
	}
	return resp
}

type Handler struct {
	service  Service
	resolver CallerResolver
	logger   *slog.Logger
}

func New(service Service, resolver CallerResolver, logger *slog.Logger) *Handler {
	return &Handler{service: service, resolver: resolver, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/settings", h.HandleGet)
	r.Put("/v1/settings", h.HandleUpdate)
}

// HandleGet handles GET /v1/settings.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Current(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(rec))
}

// HandleUpdate handles PUT /v1/settings. Each accepted edit appends a new
// version; earlier versions are kept.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, err := h.resolver.Resolve(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	rec, err := h.service.Update(ctx, caller, req.change)
	if err != nil {
		h.logger.WarnContext(ctx, "settings update failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(rec))
}
