package signature

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	id "archivist/pkg/domain"
)

// ActionType is what the signer attests to.
type ActionType string

const (
	ActionApprove     ActionType = "APPROVE"
	ActionReject      ActionType = "REJECT"
	ActionAcknowledge ActionType = "ACKNOWLEDGE"
	ActionCreate      ActionType = "CREATE"
	ActionAllocate    ActionType = "ALLOCATE"
	ActionIssue       ActionType = "ISSUE"
	ActionReturn      ActionType = "RETURN"
	ActionDestroy     ActionType = "DESTROY"
	ActionModify      ActionType = "MODIFY"
	ActionReview      ActionType = "REVIEW"
)

func (a ActionType) IsValid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionAcknowledge, ActionCreate, ActionAllocate,
		ActionIssue, ActionReturn, ActionDestroy, ActionModify, ActionReview:
		return true
	}
	return false
}

// timestampLayout fixes microsecond precision so hashes survive a round trip
// through a timestamptz column.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Signature is immutable once stored. Only the invalidation fields may be
// set later, once.
type Signature struct {
	ID                 id.SignatureID  `json:"id"`
	SignerID           id.PrincipalID  `json:"signer_id"`
	SignerUsername     string          `json:"signer_username"`
	SignerDisplayName  string          `json:"signer_display_name"`
	SignerRole         string          `json:"signer_role"`
	ActionType         ActionType      `json:"action_type"`
	Purpose            string          `json:"purpose"`
	Timestamp          time.Time       `json:"timestamp"`
	TargetEntityType   id.EntityType   `json:"target_entity_type"`
	TargetEntityID     uuid.UUID       `json:"target_entity_id"`
	UnitID             id.UnitID       `json:"unit_id"`
	Snapshot           json.RawMessage `json:"snapshot"`
	DataHash           string          `json:"data_hash"`
	SignatureHash      string          `json:"signature_hash"`
	OriginAddress      string          `json:"origin_address,omitempty"`
	OriginClient       string          `json:"origin_client,omitempty"`
	AuthMethod         string          `json:"auth_method"`
	IsValid            bool            `json:"is_valid"`
	InvalidationReason string          `json:"invalidation_reason,omitempty"`
	InvalidatedBy      *id.PrincipalID `json:"invalidated_by,omitempty"`
	InvalidatedAt      *time.Time      `json:"invalidated_at,omitempty"`
}

// Invalidation is the additive record written by Invalidate.
type Invalidation struct {
	Reason string
	By     id.PrincipalID
	At     time.Time
}

// Canonicalize renders v as compact JSON with object keys sorted at every
// level. Numbers keep their literal form.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonicalize snapshot: %w", err)
	}
	return out, nil
}

// DataHash is the hex SHA-256 of canonical snapshot bytes.
func DataHash(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// ComputeSignatureHash binds the signer, action, time, target and data hash.
func ComputeSignatureHash(s *Signature) string {
	composed := strings.Join([]string{
		s.SignerID.String(),
		s.SignerDisplayName,
		s.SignerRole,
		string(s.ActionType),
		s.Timestamp.UTC().Format(timestampLayout),
		string(s.TargetEntityType),
		s.TargetEntityID.String(),
		s.DataHash,
	}, "|")
	sum := sha256.Sum256([]byte(composed))
	return hex.EncodeToString(sum[:])
}

// Seal computes both hashes from the stored snapshot and timestamp.
func Seal(s *Signature) error {
	canonical, err := Canonicalize(s.Snapshot)
	if err != nil {
		return err
	}
	s.Snapshot = canonical
	s.Timestamp = s.Timestamp.UTC().Truncate(time.Microsecond)
	s.DataHash = DataHash(canonical)
	s.SignatureHash = ComputeSignatureHash(s)
	return nil
}

// VerifyIntegrity recomputes both hashes from the stored fields. Any mismatch
// means the record was altered after signing. An invalidated signature is
// reported as not valid with its reason.
func VerifyIntegrity(s *Signature) (bool, string) {
	if s == nil {
		return false, "signature missing"
	}
	canonical, err := Canonicalize(s.Snapshot)
	if err != nil {
		return false, "snapshot is not valid JSON"
	}
	if DataHash(canonical) != s.DataHash {
		return false, "data hash mismatch: snapshot was modified"
	}
	if ComputeSignatureHash(s) != s.SignatureHash {
		return false, "signature hash mismatch: signed fields were modified"
	}
	if !s.IsValid {
		return false, "invalidated: " + s.InvalidationReason
	}
	return true, ""
}
