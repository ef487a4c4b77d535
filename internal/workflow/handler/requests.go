package handler

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"archivist/internal/audit"
	"archivist/internal/workflow/models"
	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
)

// maxListLimit caps the page size a client may ask for.
const maxListLimit = 500

// CreateRequestBody is the HTTP request body for POST /v1/requests.
type CreateRequestBody struct {
	Type       string          `json:"type" validate:"required,oneof=storage withdrawal destruction"`
	Payload    json.RawMessage `json:"payload" validate:"required"`
	Credential string          `json:"credential" validate:"required,max=256"`

	parsedPayload models.Payload
}

// Validate decodes the tagged payload.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (b *CreateRequestBody) Validate() error {
	p, err := models.DecodePayload(b.Payload)
	if err != nil {
		return err
	}
	b.parsedPayload = p
	return nil
}

func (b *CreateRequestBody) ParsedPayload() models.Payload {
	return b.parsedPayload
}

// TransitionBody is the HTTP request body for POST /v1/requests/{id}/transitions.
type TransitionBody struct {
	Action          string          `json:"action" validate:"required,oneof=approve reject send_back resubmit allocate issue return close confirm_destruction"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Credential      string          `json:"credential" validate:"required,max=256"`
	ExpectedVersion *int            `json:"expected_version,omitempty" validate:"omitempty,min=1"`

	parsedPayload models.Payload
}

// Validate decodes the tagged payload. An omitted payload is the none variant.
func (b *TransitionBody) Validate() error {
	p, err := models.DecodePayload(b.Payload)
	if err != nil {
		return err
	}
	b.parsedPayload = p
	return nil
}

func (b *TransitionBody) ParsedPayload() models.Payload {
	return b.parsedPayload
}

// ArchiveBody is the HTTP request body for POST /v1/containers/{id}/archive.
type ArchiveBody struct {
	Credential string `json:"credential" validate:"required,max=256"`
}

// expectedVersion prefers the body field and falls back to an If-Match header
// holding the version number, quoted or bare. Zero means no expectation.
func expectedVersion(body *TransitionBody, r *http.Request) (int, error) {
	if body.ExpectedVersion != nil {
		return *body.ExpectedVersion, nil
	}
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" {
		return 0, nil
	}
	raw = strings.TrimPrefix(raw, "W/")
	v, err := strconv.Atoi(strings.Trim(raw, `"`))
	if err != nil || v < 1 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "If-Match must carry a request version")
	}
	return v, nil
}

// parseRequestFilter reads GET /v1/requests query parameters.
func parseRequestFilter(q url.Values) (models.RequestFilter, error) {
	var f models.RequestFilter
	if v := q.Get("type"); v != "" {
		t := models.Type(v)
		if !t.IsValid() {
			return f, dErrors.New(dErrors.CodeValidation, "type must be one of: storage withdrawal destruction")
		}
		f.Type = t
	}
	if v := q.Get("status"); v != "" {
		s := models.Status(v)
		known := false
		for _, candidate := range models.AllStatuses {
			if candidate == s {
				known = true
				break
			}
		}
		if !known {
			return f, dErrors.New(dErrors.CodeValidation, "unknown status "+strconv.Quote(v))
		}
		f.Status = s
	}
	if v := q.Get("container_id"); v != "" {
		cid, err := id.ParseContainerID(v)
		if err != nil {
			return f, err
		}
		f.ContainerID = &cid
	}
	if v := q.Get("requester_id"); v != "" {
		pid, err := id.ParsePrincipalID(v)
		if err != nil {
			return f, err
		}
		f.RequesterID = &pid
	}
	if v := q.Get("unit_id"); v != "" {
		uid, err := id.ParseUnitID(v)
		if err != nil {
			return f, err
		}
		f.UnitID = &uid
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		return f, err
	}
	f.Limit = limit
	return f, nil
}

// parseAuditFilter reads GET /v1/audit query parameters. from and to are
// RFC 3339 timestamps.
func parseAuditFilter(q url.Values) (audit.Filter, error) {
	var f audit.Filter
	if v := q.Get("actor_id"); v != "" {
		pid, err := id.ParsePrincipalID(v)
		if err != nil {
			return f, err
		}
		f.ActorID = &pid
	}
	f.Action = audit.Action(q.Get("action"))
	for _, bound := range []struct {
		name string
		dst  *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		v := q.Get(bound.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, dErrors.New(dErrors.CodeValidation, bound.name+" must be an RFC 3339 timestamp")
		}
		*bound.dst = t
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, dErrors.New(dErrors.CodeValidation, "to must not be before from")
	}
	if v := q.Get("target_type"); v != "" {
		t := id.EntityType(v)
		if !t.IsValid() {
			return f, dErrors.New(dErrors.CodeValidation, "target_type must be one of: request container signature")
		}
		f.TargetType = t
	}
	if v := q.Get("target_id"); v != "" {
		target, err := uuid.Parse(v)
		if err != nil {
			return f, dErrors.New(dErrors.CodeValidation, "target_id must be a valid UUID")
		}
		f.TargetID = &target
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		return f, err
	}
	f.Limit = limit
	return f, nil
}

func parseLimit(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and "+strconv.Itoa(maxListLimit))
	}
	return n, nil
}
