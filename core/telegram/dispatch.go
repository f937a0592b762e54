package telegram

import (
	"context"
	"errors"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/m3rciful/botcore/core/logger"
	"github.com/m3rciful/botcore/core/telegram/api"
	"github.com/m3rciful/botcore/core/telegram/session"
	"log/slog"
)

const (
	defaultMessageWorkers  = 8
	defaultCallbackWorkers = 4
)

// work is one resolved handler invocation waiting in a chat's mailbox.
type work struct {
	updateID int64
	chatID   api.ChatID
	sess     *session.Session
	user     *api.User
	run      func(context.Context, *session.Session) error
}

// dispatcher fans queued updates out across chats with bounded concurrency
// while keeping per-chat FIFO order: the loop goroutine resolves sessions and
// appends to a per-chat mailbox in channel order, and a pool worker drains
// one mailbox at a time. A slow chat therefore occupies at most one worker.
type dispatcher struct {
	registry *session.Registry

	mu      sync.Mutex
	pending map[string][]work
	active  map[string]struct{}
	wg      sync.WaitGroup
}

func newDispatcher(registry *session.Registry) *dispatcher {
	return &dispatcher{
		registry: registry,
		pending:  make(map[string][]work),
		active:   make(map[string]struct{}),
	}
}

// runMessages consumes the message queue until ctx is cancelled.
func (d *dispatcher) runMessages(ctx context.Context, pool *ants.Pool, in <-chan messageItem) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case it, ok := <-in:
			if !ok {
				return nil
			}
			msg := it.msg
			chatID := api.ChatInt(msg.Chat.ID)
			sess, _ := d.registry.GetOrCreate(chatID)
			d.submit(ctx, pool, work{
				updateID: it.updateID,
				chatID:   chatID,
				sess:     sess,
				user:     msg.From,
				run: func(callCtx context.Context, s *session.Session) error {
					return s.HandleMessage(callCtx, msg)
				},
			})
		}
	}
}

// runCallbacks consumes the callback queue until ctx is cancelled. Routing is
// by the callback sender's id, the private-chat convention: a group callback
// would belong to callback.message.chat.id.
func (d *dispatcher) runCallbacks(ctx context.Context, pool *ants.Pool, in <-chan callbackItem) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case it, ok := <-in:
			if !ok {
				return nil
			}
			cb := it.cb
			chatID := api.ChatInt(cb.From.ID)
			sess, _ := d.registry.GetOrCreate(chatID)
			d.submit(ctx, pool, work{
				updateID: it.updateID,
				chatID:   chatID,
				sess:     sess,
				run: func(callCtx context.Context, s *session.Session) error {
					return s.HandleCallback(callCtx, cb)
				},
			})
		}
	}
}

// submit appends w to its chat's mailbox and schedules a drainer unless one
// is already running for the chat. Pool saturation blocks the calling loop,
// which is the backpressure boundary.
func (d *dispatcher) submit(ctx context.Context, pool *ants.Pool, w work) {
	key := w.chatID.Key()

	d.mu.Lock()
	d.pending[key] = append(d.pending[key], w)
	if _, running := d.active[key]; running {
		d.mu.Unlock()
		return
	}
	d.active[key] = struct{}{}
	d.mu.Unlock()

	d.wg.Add(1)
	if err := pool.Submit(func() {
		defer d.wg.Done()
		d.drain(ctx, key)
	}); err != nil {
		d.wg.Done()
		d.mu.Lock()
		delete(d.active, key)
		d.mu.Unlock()
		if !errors.Is(err, ants.ErrPoolClosed) {
			logger.Disp.Error("pool submit failed",
				slog.String("event", "dispatch.submit"),
				slog.String("chat_id", w.chatID.String()),
				slog.String("err", err.Error()),
			)
		}
	}
}

// drain delivers the chat's mailbox in order until it is empty.
func (d *dispatcher) drain(ctx context.Context, key string) {
	for {
		d.mu.Lock()
		queue := d.pending[key]
		if len(queue) == 0 {
			delete(d.pending, key)
			delete(d.active, key)
			d.mu.Unlock()
			return
		}
		w := queue[0]
		d.pending[key] = queue[1:]
		d.mu.Unlock()

		if ctx.Err() != nil {
			logger.Disp.Debug("dropped at shutdown",
				slog.String("event", "dispatch.shutdown"),
				slog.Int64("update_id", w.updateID),
				slog.String("chat_id", w.chatID.String()),
			)
			continue
		}
		d.deliver(ctx, w)
	}
}

// wait blocks until every scheduled drainer has returned.
func (d *dispatcher) wait() {
	d.wg.Wait()
}

// deliver runs one handler invocation under a scope linked with both the
// runtime context and the session lifetime. Begin is idempotent and always
// precedes the handle; whichever flow reaches a fresh session first begins
// it.
func (d *dispatcher) deliver(ctx context.Context, w work) {
	ctx = withItemMeta(ctx, w.updateID, w.user, w.chatID)

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	unlink := context.AfterFunc(w.sess.Lifetime(), cancel)
	defer unlink()

	if err := w.sess.Begin(callCtx, w.user); err != nil {
		d.classify(ctx, w, err)
		return
	}
	if err := w.run(callCtx, w.sess); err != nil {
		d.classify(ctx, w, err)
	}
}

// classify maps a cancellation out of a handler invocation to its source:
// a dead session lifetime is a per-chat timeout, runtime shutdown is not an
// error at all.
func (d *dispatcher) classify(ctx context.Context, w work, err error) {
	switch {
	case ctx.Err() != nil:
		logger.LogEvent(ctx, logger.Disp, slog.LevelDebug, "dispatch.shutdown",
			slog.String("status", "cancelled"),
		)
	case w.sess.Lifetime().Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		logger.LogEvent(ctx, logger.Disp, slog.LevelWarn, "dispatch.timeout",
			slog.String("status", "cancelled"),
			slog.String("cause", "handler took too long"),
		)
	default:
		logger.LogEvent(ctx, logger.Disp, slog.LevelError, "dispatch.fail",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}

// withItemMeta enriches ctx with correlation fields for every log line
// produced while the item is handled.
func withItemMeta(ctx context.Context, updateID int64, from *api.User, chatID api.ChatID) context.Context {
	var userID int64
	if from != nil {
		userID = from.ID
	}
	ctx = logger.WithRID(ctx, logger.BuildRID(updateID, chatID.String(), userID))
	return logger.WithUpdateMeta(ctx, updateID, userID, chatID.String())
}
