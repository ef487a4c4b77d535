package handler

import (
	"archivist/internal/audit"
	"archivist/internal/container"
	"archivist/internal/signature"
	"archivist/internal/workflow/models"
)

// RequestListResponse is the HTTP response for GET /v1/requests.
type RequestListResponse struct {
	Requests []*models.Request `json:"requests"`
	Count    int               `json:"count"`
}

// ContainerResponse is the HTTP response for GET /v1/containers/{id}.
type ContainerResponse struct {
	Container *container.Container `json:"container"`
	Items     []*container.Item    `json:"items"`
}

type NoticeListResponse struct {
	Notices []*models.ChangeNotice `json:"notices"`
}

type SignatureListResponse struct {
	Signatures []*signature.Signature `json:"signatures"`
}

type AuditListResponse struct {
	Entries []*audit.Entry `json:"entries"`
	Count   int            `json:"count"`
}

func toRequestList(found []*models.Request) *RequestListResponse {
	if found == nil {
		found = []*models.Request{}
	}
	return &RequestListResponse{Requests: found, Count: len(found)}
}

func toAuditList(found []*audit.Entry) *AuditListResponse {
	if found == nil {
		found = []*audit.Entry{}
	}
	return &AuditListResponse{Entries: found, Count: len(found)}
}
