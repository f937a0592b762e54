package telegram

import (
	"context"
	"time"

	"github.com/m3rciful/botcore/core/logger"
	"github.com/m3rciful/botcore/core/telegram/api"
	"log/slog"
)

const (
	defaultLongPollTimeout = 60 * time.Second
	defaultUpdateLimit     = 100
	defaultQueueSize       = 256
)

// Checkpoint persists the acknowledgement offset across restarts. Both
// operations are best-effort from the pump's point of view: load failures
// fall back to offset 0, store failures are logged and polling continues.
type Checkpoint interface {
	Load(ctx context.Context) (int64, error)
	Store(ctx context.Context, offset int64) error
}

// PollerOptions configures the long-poll loop.
type PollerOptions struct {
	// Timeout is the server-side long-poll window; it doubles as the retry
	// back-off after transport or protocol failures.
	Timeout time.Duration
	// Limit caps a single batch (server maximum 100).
	Limit int
	// AllowedUpdates restricts the update kinds the server delivers.
	AllowedUpdates []string
	// Checkpoint optionally persists the offset.
	Checkpoint Checkpoint
}

// Poller converts the server's at-least-once long-poll delivery into an
// ordered update stream. The acknowledgement offset advances only after a
// batch has been handed downstream, so a crash in between redelivers.
type Poller struct {
	client     *api.Client
	timeout    time.Duration
	limit      int
	allowed    []string
	checkpoint Checkpoint
	nextOffset int64
}

// NewPoller builds a poller over client.
func NewPoller(client *api.Client, opts PollerOptions) *Poller {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultLongPollTimeout
	}
	limit := opts.Limit
	if limit <= 0 || limit > defaultUpdateLimit {
		limit = defaultUpdateLimit
	}
	return &Poller{
		client:     client,
		timeout:    timeout,
		limit:      limit,
		allowed:    opts.AllowedUpdates,
		checkpoint: opts.Checkpoint,
	}
}

// Offset reports the next acknowledgement offset (diagnostics only).
func (p *Poller) Offset() int64 {
	return p.nextOffset
}

// Run polls until ctx is cancelled, emitting every received update in batch
// order. It returns ctx's error on cancellation and otherwise only an error
// produced by emit.
func (p *Poller) Run(ctx context.Context, emit func(context.Context, api.Update) error) error {
	if p.checkpoint != nil {
		if offset, err := p.checkpoint.Load(ctx); err != nil {
			logger.Pump.Warn("checkpoint load failed",
				slog.String("event", "pump.checkpoint"),
				slog.String("err", err.Error()),
			)
		} else if offset > 0 {
			p.nextOffset = offset
			logger.Pump.Info("offset restored",
				slog.String("event", "pump.checkpoint"),
				slog.Int64("offset", offset),
			)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		updates, err := p.client.GetUpdates(ctx, api.GetUpdates{
			Offset:         p.nextOffset,
			Limit:          p.limit,
			Timeout:        int(p.timeout / time.Second),
			AllowedUpdates: p.allowed,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := p.backoff(ctx, err); err != nil {
				return err
			}
			continue
		}

		if len(updates) == 0 {
			continue
		}

		maxID := p.nextOffset - 1
		for i := range updates {
			if err := emit(ctx, updates[i]); err != nil {
				return err
			}
			if updates[i].ID > maxID {
				maxID = updates[i].ID
			}
		}
		// Advance only after every update of the batch reached downstream;
		// a crash before the next getUpdates redelivers them.
		p.nextOffset = maxID + 1

		if p.checkpoint != nil {
			if err := p.checkpoint.Store(ctx, p.nextOffset); err != nil {
				logger.Pump.Warn("checkpoint store failed",
					slog.String("event", "pump.checkpoint"),
					slog.Int64("offset", p.nextOffset),
					slog.String("err", err.Error()),
				)
			}
		}

		if logger.ShouldSampleDebug() {
			logger.Pump.Debug("batch received",
				slog.String("event", "pump.batch"),
				slog.Int("count", len(updates)),
				slog.Int64("next_offset", p.nextOffset),
				slog.Duration("duration", logger.Took(start)),
			)
		}
	}
}

// backoff sleeps after a poll failure for the long-poll window, or longer
// when the server supplied a retry_after hint. The sleep is cancellable.
func (p *Poller) backoff(ctx context.Context, cause error) error {
	sleep := p.timeout
	if hint, ok := api.RetryAfterHint(cause); ok && hint > sleep {
		sleep = hint
	}

	logger.Pump.Warn("poll failed",
		slog.String("event", "pump.retry"),
		slog.String("err", cause.Error()),
		slog.Duration("sleep", sleep),
	)

	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
