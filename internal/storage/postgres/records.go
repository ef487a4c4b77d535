package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"archivist/internal/audit"
	"archivist/internal/outbox"
	"archivist/internal/settings"
	"archivist/internal/signature"
	id "archivist/pkg/domain"
	"archivist/pkg/platform/sentinel"
)

const signatureColumns = `id, signer_id, signer_username, signer_display_name, signer_role, action_type,
	purpose, signed_at, target_entity_type, target_entity_id, unit_id, snapshot, data_hash,
	signature_hash, origin_address, origin_client, auth_method, is_valid, invalidation_reason,
	invalidated_by, invalidated_at`

func scanSignature(row rowScanner) (*signature.Signature, error) {
	var (
		sig                     signature.Signature
		sigID, signerID, unitID uuid.UUID
		actionType, entityType  string
		reason                  sql.NullString
		invalidatedBy           uuid.NullUUID
		invalidatedAt           sql.NullTime
	)
	if err := row.Scan(&sigID, &signerID, &sig.SignerUsername, &sig.SignerDisplayName, &sig.SignerRole,
		&actionType, &sig.Purpose, &sig.Timestamp, &entityType, &sig.TargetEntityID, &unitID,
		&sig.Snapshot, &sig.DataHash, &sig.SignatureHash, &sig.OriginAddress, &sig.OriginClient,
		&sig.AuthMethod, &sig.IsValid, &reason, &invalidatedBy, &invalidatedAt); err != nil {
		return nil, err
	}
	sig.ID = id.SignatureID(sigID)
	sig.SignerID = id.PrincipalID(signerID)
	sig.UnitID = id.UnitID(unitID)
	sig.ActionType = signature.ActionType(actionType)
	sig.TargetEntityType = id.EntityType(entityType)
	sig.Timestamp = sig.Timestamp.UTC()
	sig.InvalidationReason = reason.String
	sig.InvalidatedBy = fromNullUUID[id.PrincipalID](invalidatedBy)
	sig.InvalidatedAt = fromNullTime(invalidatedAt)
	return &sig, nil
}

// AppendSignature inserts sig. Reusing an ID is an immutability violation.
func (s *Store) AppendSignature(ctx context.Context, sig *signature.Signature) error {
	_, err := s.exec(ctx).ExecContext(ctx, `INSERT INTO signatures (`+signatureColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, NULL, NULL, NULL)`,
		uuid.UUID(sig.ID), uuid.UUID(sig.SignerID), sig.SignerUsername, sig.SignerDisplayName, sig.SignerRole,
		string(sig.ActionType), sig.Purpose, sig.Timestamp, string(sig.TargetEntityType), sig.TargetEntityID,
		uuid.UUID(sig.UnitID), []byte(sig.Snapshot), sig.DataHash, sig.SignatureHash, sig.OriginAddress,
		sig.OriginClient, sig.AuthMethod, sig.IsValid)
	if err != nil {
		if errors.Is(translate(err), sentinel.ErrConflict) {
			return sentinel.ErrImmutable
		}
		return fmt.Errorf("append signature: %w", translate(err))
	}
	return nil
}

func (s *Store) FindSignature(ctx context.Context, sigID id.SignatureID) (*signature.Signature, error) {
	row := s.exec(ctx).QueryRowContext(ctx,
		`SELECT `+signatureColumns+` FROM signatures WHERE id = $1`, uuid.UUID(sigID))
	sig, err := scanSignature(row)
	if err != nil {
		return nil, fmt.Errorf("find signature: %w", translate(err))
	}
	return sig, nil
}

// ListSignatures returns the signatures on one entity in signing order.
func (s *Store) ListSignatures(ctx context.Context, entityType id.EntityType, entityID uuid.UUID) ([]*signature.Signature, error) {
	return s.collectSignatures(ctx, `SELECT `+signatureColumns+` FROM signatures
		WHERE target_entity_type = $1 AND target_entity_id = $2 ORDER BY signed_at, id`,
		string(entityType), entityID)
}

// EachSignature visits every stored signature in signing order. Rows are
// streamed so a full sweep does not hold the table in memory.
func (s *Store) EachSignature(ctx context.Context, fn func(*signature.Signature) error) error {
	rows, err := s.exec(ctx).QueryContext(ctx, `SELECT `+signatureColumns+` FROM signatures ORDER BY signed_at, id`)
	if err != nil {
		return fmt.Errorf("scan signatures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		sig, err := scanSignature(rows)
		if err != nil {
			return fmt.Errorf("scan signature: %w", err)
		}
		if err := fn(sig); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Store) collectSignatures(ctx context.Context, query string, args ...any) ([]*signature.Signature, error) {
	out := []*signature.Signature{}
	rows, err := s.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		sig, err := scanSignature(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signatures: %w", err)
	}
	return out, nil
}

// InvalidateSignature sets the invalidation fields once. The table trigger
// rejects a second invalidation and any core field change.
func (s *Store) InvalidateSignature(ctx context.Context, sigID id.SignatureID, inv signature.Invalidation) error {
	res, err := s.exec(ctx).ExecContext(ctx, `UPDATE signatures
		SET is_valid = FALSE, invalidation_reason = $2, invalidated_by = $3, invalidated_at = $4
		WHERE id = $1`, uuid.UUID(sigID), inv.Reason, uuid.UUID(inv.By), inv.At)
	if err != nil {
		return fmt.Errorf("invalidate signature: %w", translate(err))
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("invalidate signature: %w", err)
	} else if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) AppendAudit(ctx context.Context, e *audit.Entry) error {
	var unit uuid.NullUUID
	if e.UnitID != nil {
		unit = uuid.NullUUID{UUID: uuid.UUID(*e.UnitID), Valid: true}
	}
	_, err := s.exec(ctx).ExecContext(ctx, `INSERT INTO audit_entries
		(id, actor_id, actor_username, action, message, target_entity_type, target_entity_id,
		 unit_id, origin_address, origin_client, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.UUID(e.ID), uuid.UUID(e.ActorID), e.ActorUsername, string(e.Action), e.Message,
		string(e.TargetEntityType), e.TargetEntityID, unit, e.OriginAddress, e.OriginClient, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", translate(err))
	}
	return nil
}

// QueryAudit returns matches newest first.
func (s *Store) QueryAudit(ctx context.Context, f audit.Filter) ([]*audit.Entry, error) {
	if f.Scope.Empty() {
		return []*audit.Entry{}, nil
	}
	var w where
	w.units("unit_id", f.Scope.Unscoped, f.Scope.Units)
	if f.ActorID != nil {
		w.add("actor_id = ?", uuid.UUID(*f.ActorID))
	}
	if f.Action != "" {
		w.add("action = ?", string(f.Action))
	}
	if !f.From.IsZero() {
		w.add("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		w.add("created_at <= ?", f.To)
	}
	if f.TargetType != "" {
		w.add("target_entity_type = ?", string(f.TargetType))
	}
	if f.TargetID != nil {
		w.add("target_entity_id = ?", *f.TargetID)
	}
	query := `SELECT id, actor_id, actor_username, action, message, target_entity_type, target_entity_id,
		unit_id, origin_address, origin_client, created_at FROM audit_entries` + w.String() +
		` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.exec(ctx).QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()
	out := []*audit.Entry{}
	for rows.Next() {
		var (
			e                audit.Entry
			entryID, actorID uuid.UUID
			action, target   string
			unit             uuid.NullUUID
		)
		if err := rows.Scan(&entryID, &actorID, &e.ActorUsername, &action, &e.Message, &target,
			&e.TargetEntityID, &unit, &e.OriginAddress, &e.OriginClient, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ID = id.AuditEntryID(entryID)
		e.ActorID = id.PrincipalID(actorID)
		e.Action = audit.Action(action)
		e.TargetEntityType = id.EntityType(target)
		e.UnitID = fromNullUUID[id.UnitID](unit)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

// AppendOutbox queues event. The insert trigger notifies listeners on
// commit.
func (s *Store) AppendOutbox(ctx context.Context, e *outbox.Event) error {
	_, err := s.exec(ctx).ExecContext(ctx, `INSERT INTO outbox
		(id, kind, aggregate_id, unit_id, payload, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.UUID(e.ID), string(e.Kind), e.AggregateID, uuid.UUID(e.UnitID), []byte(e.Payload), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append outbox event: %w", translate(err))
	}
	return nil
}

// ClaimPending marks up to limit undispatched events as dispatched at now and
// returns them oldest first. Rows locked by another relay are skipped.
func (s *Store) ClaimPending(ctx context.Context, limit int, now time.Time) ([]*outbox.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.exec(ctx).QueryContext(ctx, `UPDATE outbox SET dispatched_at = $1
		WHERE id IN (
			SELECT id FROM outbox WHERE dispatched_at IS NULL
			ORDER BY created_at LIMIT $2 FOR UPDATE SKIP LOCKED)
		RETURNING id, kind, aggregate_id, unit_id, payload, created_at, dispatched_at`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox events: %w", err)
	}
	defer rows.Close()
	var out []*outbox.Event
	for rows.Next() {
		var (
			e               outbox.Event
			eventID, unitID uuid.UUID
			kind            string
			payload         []byte
			dispatched      sql.NullTime
		)
		if err := rows.Scan(&eventID, &kind, &e.AggregateID, &unitID, &payload, &e.CreatedAt, &dispatched); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.ID = id.EventID(eventID)
		e.Kind = outbox.Kind(kind)
		e.UnitID = id.UnitID(unitID)
		e.Payload = payload
		e.CreatedAt = e.CreatedAt.UTC()
		e.DispatchedAt = fromNullTime(dispatched)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox events: %w", err)
	}
	// RETURNING does not preserve the subquery order.
	slices.SortStableFunc(out, func(a, b *outbox.Event) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (s *Store) LatestSettings(ctx context.Context) (*settings.Record, error) {
	var (
		r                       settings.Record
		credentialMS, sessionMS int64
		createdBy               uuid.NullUUID
	)
	err := s.exec(ctx).QueryRowContext(ctx, `SELECT version, credential_timeout_ms, session_timeout_ms,
		reason_min_length, created_by, created_at FROM settings_records ORDER BY version DESC LIMIT 1`).
		Scan(&r.Version, &credentialMS, &sessionMS, &r.ReasonMinLength, &createdBy, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("latest settings: %w", translate(err))
	}
	r.CredentialTimeout = time.Duration(credentialMS) * time.Millisecond
	r.SessionTimeout = time.Duration(sessionMS) * time.Millisecond
	r.CreatedBy = fromNullUUID[id.PrincipalID](createdBy)
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

// AppendSettings accepts only the next version in sequence. A racing writer
// that took the same version gets ErrConflict.
func (s *Store) AppendSettings(ctx context.Context, r *settings.Record) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		var current int
		if err := s.exec(ctx).QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM settings_records`).Scan(&current); err != nil {
			return fmt.Errorf("current settings version: %w", err)
		}
		if r.Version != current+1 {
			return sentinel.ErrConflict
		}
		_, err := s.exec(ctx).ExecContext(ctx, `INSERT INTO settings_records
			(version, credential_timeout_ms, session_timeout_ms, reason_min_length, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			r.Version, r.CredentialTimeout.Milliseconds(), r.SessionTimeout.Milliseconds(),
			r.ReasonMinLength, nullUUID(r.CreatedBy), r.CreatedAt)
		if err != nil {
			return fmt.Errorf("append settings: %w", translate(err))
		}
		return nil
	})
}
