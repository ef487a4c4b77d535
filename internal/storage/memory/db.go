// Package memory is the in-process store backend. Every store interface the
// services consume is served by one DB so a unit of work can span all of them.
package memory

import (
	"context"
	"sync"
	"time"

	"archivist/internal/audit"
	"archivist/internal/container"
	"archivist/internal/identity"
	"archivist/internal/outbox"
	"archivist/internal/settings"
	"archivist/internal/signature"
	"archivist/internal/workflow/models"
	id "archivist/pkg/domain"
	dErrors "archivist/pkg/domain-errors"
)

const defaultTxTimeout = 5 * time.Second

type idempotencyKey struct {
	requester id.PrincipalID
	key       string
}

// DB holds every record behind one RWMutex. RunInTx keeps the write lock for
// the whole unit of work and records an undo step for each write, so a failed
// unit leaves no trace.
type DB struct {
	mu sync.RWMutex

	principals map[id.PrincipalID]*identity.Principal
	units      map[id.UnitID]*identity.Unit
	locations  map[id.LocationID]*container.Location
	containers map[id.ContainerID]*container.Container
	items      map[id.ContainerID][]*container.Item
	requests   map[id.RequestID]*models.Request
	requestSeq []id.RequestID
	idem       map[idempotencyKey]id.RequestID
	notices    map[id.RequestID][]*models.ChangeNotice
	signatures map[id.SignatureID]*signature.Signature
	sigSeq     []id.SignatureID
	audit      []*audit.Entry
	outbox     []*outbox.Event
	settings   []*settings.Record
	barcodes   map[string]int

	wake    chan struct{}
	timeout time.Duration
}

type Option func(*DB)

// WithTxTimeout bounds units of work whose context has no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(db *DB) {
		if d > 0 {
			db.timeout = d
		}
	}
}

func New(opts ...Option) *DB {
	db := &DB{
		principals: make(map[id.PrincipalID]*identity.Principal),
		units:      make(map[id.UnitID]*identity.Unit),
		locations:  make(map[id.LocationID]*container.Location),
		containers: make(map[id.ContainerID]*container.Container),
		items:      make(map[id.ContainerID][]*container.Item),
		requests:   make(map[id.RequestID]*models.Request),
		idem:       make(map[idempotencyKey]id.RequestID),
		notices:    make(map[id.RequestID][]*models.ChangeNotice),
		signatures: make(map[id.SignatureID]*signature.Signature),
		barcodes:   make(map[string]int),
		wake:       make(chan struct{}, 1),
		timeout:    defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

type txKey struct{}

type txState struct {
	undo   []func()
	notify bool
}

func txFrom(ctx context.Context) (*txState, bool) {
	st, ok := ctx.Value(txKey{}).(*txState)
	return st, ok
}

// RunInTx runs fn with exclusive access to the DB. Nested calls join the
// outer unit. An error or panic from fn reverts every write made inside it.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.timeout)
		defer cancel()
	}

	db.mu.Lock()
	st := &txState{}
	committed := false
	defer func() {
		if !committed {
			for i := len(st.undo) - 1; i >= 0; i-- {
				st.undo[i]()
			}
		}
		db.mu.Unlock()
		if committed && st.notify {
			db.signal()
		}
	}()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if err := fn(context.WithValue(ctx, txKey{}, st)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: deadline exceeded")
	}
	committed = true
	return nil
}

// write takes the write lock unless ctx already holds it through RunInTx.
// The returned record func registers an undo step; outside a unit of work it
// is a no-op.
func (db *DB) write(ctx context.Context) (record func(undo func()), unlock func()) {
	if st, ok := txFrom(ctx); ok {
		return func(undo func()) { st.undo = append(st.undo, undo) }, func() {}
	}
	db.mu.Lock()
	return func(func()) {}, db.mu.Unlock
}

func (db *DB) read(ctx context.Context) (unlock func()) {
	if _, ok := txFrom(ctx); ok {
		return func() {}
	}
	db.mu.RLock()
	return db.mu.RUnlock
}

// Wake fires after a commit that appended outbox events.
func (db *DB) Wake() <-chan struct{} {
	return db.wake
}

func (db *DB) signal() {
	select {
	case db.wake <- struct{}{}:
	default:
	}
}
