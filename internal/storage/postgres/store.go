// Package postgres is the PostgreSQL store backend. Every method runs on the
// transaction carried by the context when there is one, so a unit of work
// spans requests, containers, signatures, audit entries and outbox rows.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
	"archivist/pkg/platform/sentinel"
	"archivist/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// Store implements every store interface on one *sql.DB.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

type Option func(*Store)

// WithTxTimeout bounds units of work whose context has no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunInTx runs fn inside one database transaction. A context that already
// carries a transaction joins it.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := tx.From(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to begin transaction")
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(tx.WithTx(ctx, sqlTx)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: deadline exceeded")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit transaction")
	}
	return nil
}

func (s *Store) exec(ctx context.Context) tx.Executor {
	return tx.Pick(ctx, s.db)
}

// forUpdate locks the selected row for the rest of the surrounding
// transaction so racing transitions serialize on it.
func forUpdate(ctx context.Context, query string) string {
	if _, ok := tx.From(ctx); ok {
		return query + " FOR UPDATE"
	}
	return query
}

// Constraint names from schema.sql that carry a domain meaning.
const (
	constraintOpenWithdrawal  = "requests_open_withdrawal_idx"
	constraintOpenDestruction = "requests_open_destruction_idx"
	constraintIdempotencyKey  = "requests_requester_id_idempotency_key_key"
	constraintBarcode         = "containers_barcode_key"
	constraintItemNumber      = "contained_items_container_id_number_key"
)

// translate turns driver errors into sentinel facts. Unknown errors pass
// through unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "23505":
		switch pqErr.Constraint {
		case constraintOpenWithdrawal, constraintOpenDestruction:
			return sentinel.ErrInvalidState
		case constraintIdempotencyKey, constraintBarcode, constraintItemNumber:
			return sentinel.ErrAlreadyUsed
		}
		return sentinel.ErrConflict
	case "P0001":
		if strings.HasPrefix(pqErr.Message, "immutable") {
			return sentinel.ErrImmutable
		}
	}
	return err
}

func nullUUID[T ~[16]byte](v *T) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*v), Valid: true}
}

func fromNullUUID[T ~[16]byte](v uuid.NullUUID) *T {
	if !v.Valid {
		return nil
	}
	out := T(v.UUID)
	return &out
}

func fromNullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func uuidStrings[T ~[16]byte](ids []T) []string {
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = uuid.UUID(v).String()
	}
	return out
}

func parseUUIDs[T ~[16]byte](raw []string) ([]T, error) {
	out := make([]T, 0, len(raw))
	for _, s := range raw {
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, T(u))
	}
	return out, nil
}

// where accumulates AND-ed clauses; "?" in a clause becomes the next $n.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(w.args))))
}

// units narrows column to the scope. Unscoped callers get no clause.
func (w *where) units(column string, unscoped bool, units []id.UnitID) {
	if unscoped {
		return
	}
	w.add(column+" = ANY(?)", pq.Array(uuidStrings(units)))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}
