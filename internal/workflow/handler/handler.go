package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"archivist/internal/audit"
	"archivist/internal/container"
	"archivist/internal/signature"
	"archivist/internal/workflow/models"
	"archivist/internal/workflow/service"
	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
	"archivist/pkg/platform/httputil"
	"archivist/pkg/requestcontext"
)

// maxIdempotencyKeyLen bounds the Idempotency-Key header.
const maxIdempotencyKeyLen = 128

//go:generate mockgen -destination=mocks/mocks.go -package=mocks archivist/internal/workflow/handler Service

// Service defines the workflow operations exposed over HTTP.
type Service interface {
	CreateRequest(ctx context.Context, cmd service.CreateCommand) (*models.Outcome, error)
	TransitionRequest(ctx context.Context, cmd service.TransitionCommand) (*models.Outcome, error)
	ArchiveContainer(ctx context.Context, containerID id.ContainerID, credential string) (*models.Outcome, error)
	QueryRequests(ctx context.Context, filter models.RequestFilter) ([]*models.Request, error)
	GetRequest(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	GetContainer(ctx context.Context, containerID id.ContainerID) (*container.Container, []*container.Item, error)
	ListChangeNotices(ctx context.Context, requestID id.RequestID) ([]*models.ChangeNotice, error)
	GetSignaturesFor(ctx context.Context, entityType id.EntityType, entityID uuid.UUID) ([]*signature.Signature, error)
	QueryAudit(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error)
}

// Handler wires request, container and audit endpoints to the workflow
// service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts workflow endpoints on the router. Signature listings use a
// static segment per entity type so they never collide with the
// /v1/signatures/{id} routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/requests", h.HandleCreate)
	r.Get("/v1/requests", h.HandleList)
	r.Get("/v1/requests/{id}", h.HandleGet)
	r.Post("/v1/requests/{id}/transitions", h.HandleTransition)
	r.Get("/v1/requests/{id}/notices", h.HandleNotices)

	r.Get("/v1/containers/{id}", h.HandleGetContainer)
	r.Post("/v1/containers/{id}/archive", h.HandleArchive)

	r.Get("/v1/signatures/request/{entityID}", h.handleSignatures(id.EntityRequest))
	r.Get("/v1/signatures/container/{entityID}", h.handleSignatures(id.EntityContainer))

	r.Get("/v1/audit", h.HandleAudit)
	r.Put("/v1/audit/{id}", h.HandleAuditMutation)
	r.Patch("/v1/audit/{id}", h.HandleAuditMutation)
	r.Delete("/v1/audit/{id}", h.HandleAuditMutation)
}

// HandleCreate handles POST /v1/requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(key) > maxIdempotencyKeyLen {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "Idempotency-Key must be at most 128 characters"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateRequestBody](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	out, err := h.service.CreateRequest(ctx, service.CreateCommand{
		Type:           models.Type(req.Type),
		Payload:        req.ParsedPayload(),
		Credential:     req.Credential,
		IdempotencyKey: key,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "create request failed",
			"request_id", requestID,
			"type", req.Type,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "request created",
		"request_id", requestID,
		"workflow_request_id", out.Request.ID,
		"type", out.Request.Type,
		"replayed", out.Replayed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	status := http.StatusCreated
	if out.Replayed {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, out)
}

// HandleTransition handles POST /v1/requests/{id}/transitions.
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	target, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransitionBody](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	version, err := expectedVersion(req, r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out, err := h.service.TransitionRequest(ctx, service.TransitionCommand{
		RequestID:       target,
		Action:          models.Action(req.Action),
		Payload:         req.ParsedPayload(),
		Credential:      req.Credential,
		ExpectedVersion: version,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "transition failed",
			"request_id", requestID,
			"workflow_request_id", target,
			"action", req.Action,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "request transitioned",
		"request_id", requestID,
		"workflow_request_id", target,
		"action", req.Action,
		"status", out.Request.Status,
		"version", out.Request.Version,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleList handles GET /v1/requests.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRequestFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	found, err := h.service.QueryRequests(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRequestList(found))
}

// HandleGet handles GET /v1/requests/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	target, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := h.service.GetRequest(r.Context(), target)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("ETag", `"`+strconv.Itoa(req.Version)+`"`)
	httputil.WriteJSON(w, http.StatusOK, req)
}

// HandleNotices handles GET /v1/requests/{id}/notices.
func (h *Handler) HandleNotices(w http.ResponseWriter, r *http.Request) {
	target, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	notices, err := h.service.ListChangeNotices(r.Context(), target)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if notices == nil {
		notices = []*models.ChangeNotice{}
	}
	httputil.WriteJSON(w, http.StatusOK, &NoticeListResponse{Notices: notices})
}

// HandleGetContainer handles GET /v1/containers/{id}.
func (h *Handler) HandleGetContainer(w http.ResponseWriter, r *http.Request) {
	target, err := id.ParseContainerID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, items, err := h.service.GetContainer(r.Context(), target)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if items == nil {
		items = []*container.Item{}
	}
	httputil.WriteJSON(w, http.StatusOK, &ContainerResponse{Container: c, Items: items})
}

// HandleArchive handles POST /v1/containers/{id}/archive.
func (h *Handler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	target, err := id.ParseContainerID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ArchiveBody](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	out, err := h.service.ArchiveContainer(ctx, target, req.Credential)
	if err != nil {
		h.logger.WarnContext(ctx, "archive failed",
			"request_id", requestID,
			"container_id", target,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "container archived",
		"request_id", requestID,
		"container_id", target,
	)
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleSignatures(entityType id.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entityID, err := uuid.Parse(chi.URLParam(r, "entityID"))
		if err != nil || entityID == uuid.Nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid entity ID"))
			return
		}
		sigs, err := h.service.GetSignaturesFor(r.Context(), entityType, entityID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if sigs == nil {
			sigs = []*signature.Signature{}
		}
		httputil.WriteJSON(w, http.StatusOK, &SignatureListResponse{Signatures: sigs})
	}
}

// HandleAudit handles GET /v1/audit.
func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.service.QueryAudit(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAuditList(entries))
}

// HandleAuditMutation answers every attempt to change an audit entry.
func (h *Handler) HandleAuditMutation(w http.ResponseWriter, r *http.Request) {
	h.logger.WarnContext(r.Context(), "audit mutation rejected",
		"request_id", requestcontext.RequestID(r.Context()),
		"method", r.Method,
		"audit_entry_id", chi.URLParam(r, "id"),
		"principal_id", requestcontext.PrincipalID(r.Context()),
	)
	httputil.WriteError(w, audit.RejectMutation())
}
