package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const outboxChannel = "outbox_pending"

// Listener turns outbox insert notifications into relay wake-ups. The relay
// keeps polling, so a lost connection only delays delivery until the next
// tick.
type Listener struct {
	pool    *pgxpool.Pool
	wake    chan struct{}
	backoff time.Duration
	logger  *slog.Logger
}

func NewListener(pool *pgxpool.Pool, logger *slog.Logger) *Listener {
	return &Listener{
		pool:    pool,
		wake:    make(chan struct{}, 1),
		backoff: time.Second,
		logger:  logger,
	}
}

func (l *Listener) Wake() <-chan struct{} {
	return l.wake
}

// Run holds a dedicated connection in LISTEN until ctx is cancelled,
// reconnecting after failures.
func (l *Listener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.WarnContext(ctx, "outbox listener disconnected", "error", err, "retry_in", l.backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.backoff):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+outboxChannel); err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "outbox listener started", "channel", outboxChannel)
	for {
		if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
			return err
		}
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
}
