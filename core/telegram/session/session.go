package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/m3rciful/botcore/core/logger"
	"github.com/m3rciful/botcore/core/telegram/api"
	"log/slog"
)

// Handler is the per-chat conversation logic driven by the runtime. All
// methods are invoked serially for one chat and never after End. Methods may
// block; they must return promptly once their context is cancelled.
type Handler interface {
	// Begin runs once before the first Handle. user is the author of the
	// first observed message, or nil when the chat surfaced via a callback.
	Begin(ctx context.Context, user *api.User) error
	// Handle processes one incoming message.
	Handle(ctx context.Context, msg *api.Message) error
	// HandleCallback processes one inline keyboard press.
	HandleCallback(ctx context.Context, cb *api.CallbackQuery) error
	// OnError is given every fault raised by Handle/HandleCallback.
	OnError(ctx context.Context, err error) error
	// End runs once when the conversation closes; user is nil unless the
	// closure was requested by a specific participant.
	End(ctx context.Context, user *api.User) error
	// Close releases handler resources after End.
	Close() error
}

// Control is the narrow surface a handler receives to manage its own
// conversation; it carries no reference back to the runtime.
type Control interface {
	// ChatID identifies the conversation.
	ChatID() api.ChatID
	// Stop requests asynchronous removal of the session. The handler's End
	// runs after the current invocation returns.
	Stop()
}

// Factory builds a handler for a newly observed chat.
type Factory func(chatID api.ChatID, ctl Control) Handler

// State tracks where a session is in its lifecycle.
type State int32

const (
	// StateFresh means the session exists but Begin has not completed.
	StateFresh State = iota
	// StateActive means Begin completed and the session accepts work.
	StateActive
	// StateEnding means teardown started; new work is rejected.
	StateEnding
	// StateEnded means End completed and the lifetime is cancelled.
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Session owns one chat conversation: its handler, its lifetime scope, and
// the serialization of all handler invocations for the chat.
type Session struct {
	chatID  api.ChatID
	handler Handler

	// runMu serializes Begin/Handle/End; no two handler invocations for the
	// same chat may overlap.
	runMu sync.Mutex

	mu     sync.Mutex
	state  State
	begun  bool
	ending bool
	timer  *time.Timer
	idle   time.Duration

	lifetime context.Context
	cancel   context.CancelFunc
	endDone  chan struct{}

	// remove detaches the session from its registry; set by the registry at
	// construction.
	remove func(*Session)
}

func newSession(chatID api.ChatID, factory Factory, idle time.Duration, remove func(*Session)) *Session {
	lifetime, cancel := context.WithCancel(context.Background())
	s := &Session{
		chatID:   chatID,
		idle:     idle,
		lifetime: lifetime,
		cancel:   cancel,
		endDone:  make(chan struct{}),
		remove:   remove,
	}
	s.handler = factory(chatID, s)
	if idle > 0 {
		s.timer = time.AfterFunc(idle, s.expire)
	}
	return s
}

// ChatID returns the immutable session key.
func (s *Session) ChatID() api.ChatID { return s.chatID }

// Lifetime is cancelled when the session ends; per-call scopes link to it.
func (s *Session) Lifetime() context.Context { return s.lifetime }

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Begin runs the handler's Begin callback once. Repeated calls are no-ops.
func (s *Session) Begin(ctx context.Context, user *api.User) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	if s.begun || s.state >= StateEnding {
		s.mu.Unlock()
		return nil
	}
	s.begun = true
	s.mu.Unlock()

	err := s.invoke(ctx, "begin", func() error {
		return s.handler.Begin(ctx, user)
	})

	s.mu.Lock()
	if s.state == StateFresh {
		s.state = StateActive
	}
	s.mu.Unlock()
	return err
}

// HandleMessage runs the handler for one message under ctx. Handler faults
// are consumed and routed to OnError; only cancellation is returned.
func (s *Session) HandleMessage(ctx context.Context, msg *api.Message) error {
	return s.handle(ctx, "message", func() error {
		return s.handler.Handle(ctx, msg)
	})
}

// HandleCallback runs the handler for one callback query under ctx.
func (s *Session) HandleCallback(ctx context.Context, cb *api.CallbackQuery) error {
	return s.handle(ctx, "callback", func() error {
		return s.handler.HandleCallback(ctx, cb)
	})
}

func (s *Session) handle(ctx context.Context, kind string, run func() error) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	if s.state >= StateEnding {
		s.mu.Unlock()
		logger.Sess.Debug("item dropped",
			slog.String("event", "session.drop"),
			slog.String("chat_id", s.chatID.String()),
			slog.String("kind", kind),
			slog.String("reason", "ending"),
		)
		return nil
	}
	s.mu.Unlock()

	err := s.invoke(ctx, kind, run)
	if err == nil || !isCancellation(err) {
		s.touch()
		return nil
	}
	return err
}

// invoke executes one handler callback with panic isolation. Faults other
// than cancellation are passed to the handler's OnError; a second fault there
// is logged and swallowed.
func (s *Session) invoke(ctx context.Context, kind string, run func() error) error {
	err := guard(run)
	if err == nil {
		return nil
	}
	if isCancellation(err) {
		return err
	}

	logger.Sess.Warn("handler fault",
		slog.String("event", "session.fault"),
		slog.String("chat_id", s.chatID.String()),
		slog.String("kind", kind),
		slog.String("err", err.Error()),
	)
	if onErrErr := guard(func() error { return s.handler.OnError(ctx, err) }); onErrErr != nil && !isCancellation(onErrErr) {
		logger.Sess.Error("on_error fault",
			slog.String("event", "session.fault"),
			slog.String("chat_id", s.chatID.String()),
			slog.String("kind", kind),
			slog.String("err", onErrErr.Error()),
		)
	}
	return nil
}

// End closes the session: it waits for the in-flight invocation, runs the
// handler's End once (only if Begin ran), then cancels the lifetime and
// releases the handler.
// A concurrent or repeated call waits for the first teardown to finish.
func (s *Session) End(ctx context.Context, user *api.User) error {
	s.mu.Lock()
	if s.ending {
		s.mu.Unlock()
		select {
		case <-s.endDone:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}
	s.ending = true
	s.state = StateEnding
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	if s.remove != nil {
		s.remove(s)
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	begun := s.begun
	s.mu.Unlock()

	var endErr error
	if begun {
		endErr = guard(func() error { return s.handler.End(ctx, user) })
		if endErr != nil && !isCancellation(endErr) {
			logger.Sess.Warn("end fault",
				slog.String("event", "session.end"),
				slog.String("chat_id", s.chatID.String()),
				slog.String("err", endErr.Error()),
			)
		}
	}

	s.cancel()
	if err := s.handler.Close(); err != nil {
		logger.Sess.Debug("handler close failed",
			slog.String("event", "session.close"),
			slog.String("chat_id", s.chatID.String()),
			slog.String("err", err.Error()),
		)
	}

	s.mu.Lock()
	s.state = StateEnded
	s.mu.Unlock()
	close(s.endDone)

	logger.Sess.Debug("session ended",
		slog.String("event", "session.end"),
		slog.String("chat_id", s.chatID.String()),
	)
	return endErr
}

// Stop requests asynchronous teardown; safe to call from inside a handler
// invocation.
func (s *Session) Stop() {
	go func() {
		_ = s.End(context.Background(), nil)
	}()
}

// touch rearms the inactivity timer after a completed invocation.
func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil && !s.ending {
		s.timer.Reset(s.idle)
	}
}

// expire fires on inactivity: the session removes itself and ends with no
// initiating user.
func (s *Session) expire() {
	logger.Sess.Info("session expired",
		slog.String("event", "session.expire"),
		slog.String("chat_id", s.chatID.String()),
		slog.Duration("idle", s.idle),
	)
	_ = s.End(context.Background(), nil)
}

// guard converts a handler panic into an error so one chat cannot take the
// process down.
func guard(run func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return run()
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
