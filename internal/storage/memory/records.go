package memory

import (
	"context"
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

func cloneSignature(s *signature.Signature) *signature.Signature {
	out := *s
	out.Snapshot = slices.Clone(s.Snapshot)
	return &out
}

func (db *DB) AppendSignature(ctx context.Context, sig *signature.Signature) error {
	record, unlock := db.write(ctx)
	defer unlock()
	if _, ok := db.signatures[sig.ID]; ok {
		return sentinel.ErrImmutable
	}
	db.signatures[sig.ID] = cloneSignature(sig)
	db.sigSeq = append(db.sigSeq, sig.ID)
	record(func() {
		delete(db.signatures, sig.ID)
		db.sigSeq = db.sigSeq[:len(db.sigSeq)-1]
	})
	return nil
}

func (db *DB) FindSignature(ctx context.Context, sigID id.SignatureID) (*signature.Signature, error) {
	defer db.read(ctx)()
	s, ok := db.signatures[sigID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneSignature(s), nil
}

// ListSignatures returns the signatures on one entity in signing order.
func (db *DB) ListSignatures(ctx context.Context, entityType id.EntityType, entityID uuid.UUID) ([]*signature.Signature, error) {
	defer db.read(ctx)()
	out := []*signature.Signature{}
	for _, sigID := range db.sigSeq {
		s := db.signatures[sigID]
		if s.TargetEntityType == entityType && s.TargetEntityID == entityID {
			out = append(out, cloneSignature(s))
		}
	}
	return out, nil
}

// EachSignature visits every stored signature in signing order.
func (db *DB) EachSignature(ctx context.Context, fn func(*signature.Signature) error) error {
	defer db.read(ctx)()
	for _, sigID := range db.sigSeq {
		if err := fn(cloneSignature(db.signatures[sigID])); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateSignature sets the invalidation fields once; a second call is an
// immutability violation.
func (db *DB) InvalidateSignature(ctx context.Context, sigID id.SignatureID, inv signature.Invalidation) error {
	record, unlock := db.write(ctx)
	defer unlock()
	prev, ok := db.signatures[sigID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !prev.IsValid {
		return sentinel.ErrImmutable
	}
	next := cloneSignature(prev)
	by, at := inv.By, inv.At
	next.IsValid = false
	next.InvalidationReason = inv.Reason
	next.InvalidatedBy = &by
	next.InvalidatedAt = &at
	db.signatures[sigID] = next
	record(func() { db.signatures[sigID] = prev })
	return nil
}

func (db *DB) AppendAudit(ctx context.Context, entry *audit.Entry) error {
	record, unlock := db.write(ctx)
	defer unlock()
	copied := *entry
	db.audit = append(db.audit, &copied)
	record(func() { db.audit = db.audit[:len(db.audit)-1] })
	return nil
}

// QueryAudit returns matches newest first.
func (db *DB) QueryAudit(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	defer db.read(ctx)()
	out := []*audit.Entry{}
	for i := len(db.audit) - 1; i >= 0; i-- {
		e := db.audit[i]
		if !filter.Matches(e) {
			continue
		}
		copied := *e
		out = append(out, &copied)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// AppendOutbox queues event. The relay is woken once the surrounding unit of
// work commits.
func (db *DB) AppendOutbox(ctx context.Context, event *outbox.Event) error {
	record, unlock := db.write(ctx)
	defer unlock()
	copied := *event
	db.outbox = append(db.outbox, &copied)
	record(func() { db.outbox = db.outbox[:len(db.outbox)-1] })
	if st, ok := txFrom(ctx); ok {
		st.notify = true
	} else {
		db.signal()
	}
	return nil
}

// ClaimPending marks up to limit undispatched events as dispatched at now and
// returns them oldest first.
func (db *DB) ClaimPending(ctx context.Context, limit int, now time.Time) ([]*outbox.Event, error) {
	record, unlock := db.write(ctx)
	defer unlock()
	var out []*outbox.Event
	for _, e := range db.outbox {
		if e.DispatchedAt != nil {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		at := now
		e.DispatchedAt = &at
		claimed := e
		record(func() { claimed.DispatchedAt = nil })
		copied := *e
		out = append(out, &copied)
	}
	return out, nil
}

func (db *DB) LatestSettings(ctx context.Context) (*settings.Record, error) {
	defer db.read(ctx)()
	if len(db.settings) == 0 {
		return nil, sentinel.ErrNotFound
	}
	out := *db.settings[len(db.settings)-1]
	return &out, nil
}

// AppendSettings accepts only the next version in sequence.
func (db *DB) AppendSettings(ctx context.Context, r *settings.Record) error {
	record, unlock := db.write(ctx)
	defer unlock()
	if r.Version != len(db.settings)+1 {
		return sentinel.ErrConflict
	}
	copied := *r
	db.settings = append(db.settings, &copied)
	record(func() { db.settings = db.settings[:len(db.settings)-1] })
	return nil
}
