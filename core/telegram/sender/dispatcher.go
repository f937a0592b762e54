package sender

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/botcore/core/logger"
	"github.com/m3rciful/botcore/core/telegram/api"
	"github.com/m3rciful/botcore/core/telegram/netutil"
	"log/slog"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
}

type job struct {
	ctx    context.Context
	method string
	run    func(context.Context) error
}

// Dispatcher executes outbound API calls asynchronously with retries. It is
// the narrow sending surface handed to conversation handlers; they hold no
// reference back to the runtime.
type Dispatcher struct {
	client *api.Client
	opts   Options
	jobs   chan job
	stop   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	errs   atomic.Uint64
}

// NewDispatcher starts a dispatcher over client with sane defaults for
// zeroed options.
func NewDispatcher(client *api.Client, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}

	d := &Dispatcher{
		client: client,
		opts:   opts,
		jobs:   make(chan job, opts.QueueSize),
		stop:   make(chan struct{}),
	}

	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}

	return d
}

// SendMessage enqueues a sendMessage call.
func (d *Dispatcher) SendMessage(ctx context.Context, req api.SendMessage) error {
	return d.enqueue(ctx, req.Method(), func(runCtx context.Context) error {
		_, err := d.client.SendMessage(runCtx, req)
		return err
	})
}

// AnswerCallback enqueues an answerCallbackQuery call.
func (d *Dispatcher) AnswerCallback(ctx context.Context, req api.AnswerCallbackQuery) error {
	return d.enqueue(ctx, req.Method(), func(runCtx context.Context) error {
		return d.client.AnswerCallbackQuery(runCtx, req)
	})
}

// Enqueue schedules an arbitrary call for asynchronous execution.
// The run closure must be idempotent if retries are desired.
func (d *Dispatcher) Enqueue(ctx context.Context, method string, run func(context.Context) error) error {
	return d.enqueue(ctx, method, run)
}

func (d *Dispatcher) enqueue(ctx context.Context, method string, run func(context.Context) error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	select {
	case <-d.stop:
		return ErrQueueClosed
	default:
	}

	j := job{ctx: ctx, method: method, run: run}

	select {
	case d.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of failed jobs.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops workers and waits for them to finish processing queued jobs.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.stop)
		close(d.jobs)
		d.wg.Wait()
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.handleJob(j)
	}
}

func (d *Dispatcher) handleJob(j job) {
	ctx := j.ctx
	if ctx == nil || ctx.Err() != nil {
		// detach from a cancelled request scope; outbound replies should
		// still be attempted during session teardown
		ctx = context.Background()
	}

	deadlineCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	var lastErr error
	attempts := d.opts.MaxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := deadlineCtx.Err(); err != nil {
			lastErr = err
			break
		}

		err := j.run(deadlineCtx)
		if err == nil {
			if logger.ShouldSampleDebug() {
				logger.Send.Debug("sent",
					slog.String("event", "send.done"),
					slog.String("method", j.method),
					slog.Int("attempt", attempt),
					slog.Duration("duration", logger.Took(start)),
				)
			}
			return
		}
		lastErr = err

		delay, retriable := d.retryDelay(err, attempt)
		if !retriable || attempt == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-deadlineCtx.Done():
			timer.Stop()
			lastErr = deadlineCtx.Err()
			attempt = attempts
		case <-timer.C:
		}
		timer.Stop()
	}

	d.errs.Add(1)
	attrs := []any{
		slog.String("event", "send.fail"),
		slog.String("method", j.method),
		slog.Int("attempts", attempts),
		slog.Duration("duration", logger.Took(start)),
		slog.String("err", api.RedactToken(lastErr.Error())),
	}
	if pe, ok := api.AsProtocol(lastErr); ok && pe.MigrateToChatID != 0 {
		attrs = append(attrs, slog.Int64("migrate_to_chat_id", pe.MigrateToChatID))
	}
	logger.Send.Warn("send failed", attrs...)
}

// retryDelay decides whether err warrants another attempt and how long to
// wait: transient transport faults back off linearly, a server retry_after
// hint is respected as a minimum.
func (d *Dispatcher) retryDelay(err error, attempt int) (time.Duration, bool) {
	delay := d.opts.RetryBackoff * time.Duration(attempt)
	if hint, ok := api.RetryAfterHint(err); ok {
		if hint > delay {
			delay = hint
		}
		return delay, true
	}
	if _, ok := api.AsProtocol(err); ok {
		// server rejected the request; repeating it will not help
		return 0, false
	}
	if netutil.ShouldRetry(err) {
		return delay, true
	}
	if te, ok := api.AsTransport(err); ok && te.StatusCode >= 500 {
		return delay, true
	}
	return 0, false
}
