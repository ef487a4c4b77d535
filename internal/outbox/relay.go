package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"archivist/pkg/platform/circuit"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks archivist/internal/outbox Store,Sink

// Store persists outbox events. ClaimPending marks the returned events
// dispatched in the same statement, so an event is handed out at most once.
type Store interface {
	AppendOutbox(ctx context.Context, event *Event) error
	ClaimPending(ctx context.Context, limit int, now time.Time) ([]*Event, error)
}

// Sink delivers events to one external channel. Sinks are advisory; the
// request store stays the system of record.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event *Event) error
}

// Waker signals that new events were committed, letting the relay skip the
// rest of its poll interval.
type Waker interface {
	Wake() <-chan struct{}
}

type sinkState struct {
	sink    Sink
	breaker *circuit.Breaker
}

// Relay drains the outbox into the sinks.
type Relay struct {
	store     Store
	sinks     []sinkState
	interval  time.Duration
	batchSize int
	waker     Waker
	now       func() time.Time
	logger    *slog.Logger
	metrics   *Metrics
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithWaker(w Waker) Option {
	return func(r *Relay) {
		r.waker = w
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

func NewRelay(store Store, sinks []Sink, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		interval:  2 * time.Second,
		batchSize: 100,
		now:       time.Now,
	}
	for _, s := range sinks {
		if s == nil {
			continue
		}
		r.sinks = append(r.sinks, sinkState{
			sink:    s,
			breaker: circuit.New(s.Name(), circuit.WithCooldown(15*time.Second)),
		})
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run dispatches until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var wake <-chan struct{}
	if r.waker != nil {
		wake = r.waker.Wake()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-wake:
		}
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logWarn(ctx, "outbox claim failed", "error", err)
		}
	}
}

// RunOnce claims one batch and offers each event to every sink. Delivery
// failures are logged and counted; only a failure to claim is returned.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.store.ClaimPending(ctx, r.batchSize, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("claim outbox events: %w", err)
	}
	if r.metrics != nil {
		r.metrics.ObserveClaimed(len(events))
	}
	for _, event := range events {
		for i := range r.sinks {
			r.deliver(ctx, &r.sinks[i], event)
		}
	}
	return len(events), nil
}

func (r *Relay) deliver(ctx context.Context, st *sinkState, event *Event) {
	name := st.sink.Name()
	if !st.breaker.Allow() {
		r.observe(name, "skipped")
		return
	}
	if err := st.sink.Deliver(ctx, event); err != nil {
		_, change := st.breaker.RecordFailure()
		if change.Opened && r.metrics != nil {
			r.metrics.SetCircuitOpen(name, true)
		}
		r.observe(name, "failed")
		r.logWarn(ctx, "outbox delivery failed",
			"sink", name,
			"event_id", event.ID,
			"kind", event.Kind,
			"error", err,
		)
		return
	}
	_, change := st.breaker.RecordSuccess()
	if change.Closed && r.metrics != nil {
		r.metrics.SetCircuitOpen(name, false)
	}
	r.observe(name, "delivered")
}

func (r *Relay) observe(sink, outcome string) {
	if r.metrics != nil {
		r.metrics.ObserveDelivery(sink, outcome)
	}
}

func (r *Relay) logWarn(ctx context.Context, msg string, args ...any) {
	if r.logger != nil {
		r.logger.WarnContext(ctx, msg, args...)
	}
}
