package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"archivist/internal/signature"
	id "archivist/pkg/domain"
	"archivist/pkg/platform/httputil"
	"archivist/pkg/requestcontext"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks archivist/internal/signature/handler Service

// Service defines the signature operations exposed over HTTP.
type Service interface {
	Verify(ctx context.Context, sigID id.SignatureID) (*signature.Verification, error)
	Invalidate(ctx context.Context, sigID id.SignatureID, reason, credential string) (*signature.Signature, error)
}

// InvalidateRequest is the HTTP request body for POST /v1/signatures/{id}/invalidate.
type InvalidateRequest struct {
	Reason     string `json:"reason" validate:"required,max=2000"`
	Credential string `json:"credential" validate:"required,max=256"`
}

// Handler wires signature endpoints to the signature service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts signature endpoints on the router. Signatures are never
// edited or removed; those verbs always answer with an immutability error.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/signatures/{id}/verify", h.HandleVerify)
	r.Post("/v1/signatures/{id}/invalidate", h.HandleInvalidate)
	r.Put("/v1/signatures/{id}", h.HandleMutation)
	r.Patch("/v1/signatures/{id}", h.HandleMutation)
	r.Delete("/v1/signatures/{id}", h.HandleMutation)
}

// HandleVerify handles POST /v1/signatures/{id}/verify. A tampered signature
// is a successful check with valid=false, not an error.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sigID, err := id.ParseSignatureID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.Verify(ctx, sigID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !result.Valid {
		h.logger.WarnContext(ctx, "signature failed integrity check",
			"request_id", requestcontext.RequestID(ctx),
			"signature_id", sigID,
			"reason", result.Reason,
		)
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleInvalidate handles POST /v1/signatures/{id}/invalidate.
func (h *Handler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	sigID, err := id.ParseSignatureID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[InvalidateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	sig, err := h.service.Invalidate(ctx, sigID, req.Reason, req.Credential)
	if err != nil {
		h.logger.WarnContext(ctx, "signature invalidation failed",
			"request_id", requestID,
			"signature_id", sigID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "signature invalidated",
		"request_id", requestID,
		"signature_id", sigID,
		"principal_id", requestcontext.PrincipalID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, sig)
}

// HandleMutation answers PUT, PATCH and DELETE on a signature.
func (h *Handler) HandleMutation(w http.ResponseWriter, r *http.Request) {
	h.logger.WarnContext(r.Context(), "signature mutation rejected",
		"request_id", requestcontext.RequestID(r.Context()),
		"method", r.Method,
		"signature_id", chi.URLParam(r, "id"),
		"principal_id", requestcontext.PrincipalID(r.Context()),
	)
	httputil.WriteError(w, signature.RejectMutation())
}
