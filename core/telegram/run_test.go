package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	coreconfig "github.com/m3rciful/botcore/core/config"
	"github.com/m3rciful/botcore/core/telegram/api"
	"github.com/m3rciful/botcore/core/telegram/session"
)

// botServer fakes the Bot API: scripted getUpdates batches, everything else
// acknowledged blindly.
type botServer struct {
	mu      sync.Mutex
	batches []string
	offsets []int64
	srv     *httptest.Server
}

func newBotServer(t *testing.T, batches ...string) *botServer {
	t.Helper()
	b := &botServer{batches: batches}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			var req struct {
				Offset int64 `json:"offset"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)

			b.mu.Lock()
			b.offsets = append(b.offsets, req.Offset)
			var body string
			if len(b.batches) > 0 {
				body = b.batches[0]
				b.batches = b.batches[1:]
			}
			b.mu.Unlock()

			if body == "" {
				// drained: emulate an expiring long poll without stalling tests
				select {
				case <-r.Context().Done():
					return
				case <-time.After(50 * time.Millisecond):
				}
				body = `{"ok":true,"result":[]}`
			}
			w.Write([]byte(body))
		default:
			w.Write([]byte(`{"ok":true,"result":true}`))
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *botServer) lastOffset() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.offsets) == 0 {
		return -1
	}
	return b.offsets[len(b.offsets)-1]
}

func testConfig(apiHost string) *coreconfig.Config {
	return &coreconfig.Config{
		Telegram: coreconfig.TelegramConfig{
			Token:                  "TEST",
			APIHost:                apiHost,
			LongPollTimeoutSeconds: 1,
		},
		Runtime: coreconfig.RuntimeConfig{
			QueueSize:            16,
			ShutdownGraceSeconds: 2,
		},
	}
}

// traceHandler records one chat's invocation history.
type traceHandler struct {
	chatID api.ChatID
	rec    *recorder

	faultOn string
	blockOn string
	started chan struct{}
}

// recorder collects events across all sessions of a test run.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) chatEvents(chat api.ChatID) []string {
	prefix := chat.String() + ":"
	var out []string
	for _, ev := range r.snapshot() {
		if strings.HasPrefix(ev, prefix) {
			out = append(out, strings.TrimPrefix(ev, prefix))
		}
	}
	return out
}

func (r *recorder) waitFor(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range r.snapshot() {
			if ev == want {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("event %q never recorded; trace: %v", want, r.snapshot())
}

func (h *traceHandler) Begin(ctx context.Context, user *api.User) error {
	who := "nil"
	if user != nil {
		who = user.FirstName
	}
	h.rec.add("%s:begin(%s)", h.chatID, who)
	return nil
}

func (h *traceHandler) Handle(ctx context.Context, msg *api.Message) error {
	if h.blockOn != "" && msg.Text == h.blockOn {
		if h.started != nil {
			close(h.started)
			h.started = nil
		}
		<-ctx.Done()
		h.rec.add("%s:handle_cancelled", h.chatID)
		return ctx.Err()
	}
	h.rec.add("%s:handle(%s)", h.chatID, msg.Text)
	if h.faultOn != "" && msg.Text == h.faultOn {
		return errors.New("induced fault")
	}
	return nil
}

func (h *traceHandler) HandleCallback(ctx context.Context, cb *api.CallbackQuery) error {
	h.rec.add("%s:callback(%s)", h.chatID, cb.Data)
	return nil
}

func (h *traceHandler) OnError(ctx context.Context, err error) error {
	h.rec.add("%s:on_error(%s)", h.chatID, err.Error())
	return nil
}

func (h *traceHandler) End(ctx context.Context, user *api.User) error {
	h.rec.add("%s:end", h.chatID)
	return nil
}

func (h *traceHandler) Close() error { return nil }

// startBot runs RunBot in the background and returns a stop function that
// cancels it and waits for the clean exit.
func startBot(t *testing.T, opts RunOptions) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunBot(ctx, opts)
	}()
	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("RunBot returned %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Fatal("RunBot did not shut down")
		}
	}
}

func TestRunBotSingleMessage(t *testing.T) {
	srv := newBotServer(t,
		`{"ok":true,"result":[{"update_id":7,"message":{"message_id":1,"chat":{"id":42},"from":{"id":9,"first_name":"A"},"text":"hi"}}]}`,
	)
	rec := &recorder{}
	var stops, starts int
	var hookMu sync.Mutex

	stop := startBot(t, RunOptions{
		Config: testConfig(srv.srv.URL),
		Factory: func(chatID api.ChatID, ctl session.Control) session.Handler {
			return &traceHandler{chatID: chatID, rec: rec}
		},
		Hooks: Hooks{
			Start: func(context.Context, Runtime) error {
				hookMu.Lock()
				starts++
				hookMu.Unlock()
				return nil
			},
			Stop: func(context.Context, Runtime) error {
				hookMu.Lock()
				stops++
				hookMu.Unlock()
				return nil
			},
		},
	})

	rec.waitFor(t, "42:handle(hi)")

	// the batch is acknowledged with offset 8 once handed downstream
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && srv.lastOffset() != 8 {
		time.Sleep(10 * time.Millisecond)
	}
	if got := srv.lastOffset(); got != 8 {
		t.Fatalf("acknowledged offset = %d, want 8", got)
	}

	stop()

	events := rec.chatEvents(api.ChatInt(42))
	want := []string{"begin(A)", "handle(hi)", "end"}
	if len(events) != len(want) {
		t.Fatalf("chat 42 events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("chat 42 events = %v, want %v", events, want)
		}
	}

	hookMu.Lock()
	defer hookMu.Unlock()
	if starts != 1 || stops != 1 {
		t.Fatalf("start/stop hooks ran %d/%d times", starts, stops)
	}
}

func TestRunBotInterleavedChats(t *testing.T) {
	srv := newBotServer(t,
		`{"ok":true,"result":[
			{"update_id":8,"message":{"message_id":1,"chat":{"id":1},"from":{"id":1,"first_name":"u1"},"text":"m8"}},
			{"update_id":9,"message":{"message_id":2,"chat":{"id":2},"from":{"id":2,"first_name":"u2"},"text":"m9"}},
			{"update_id":10,"message":{"message_id":3,"chat":{"id":1},"from":{"id":1,"first_name":"u1"},"text":"m10"}}
		]}`,
	)
	rec := &recorder{}

	stop := startBot(t, RunOptions{
		Config: testConfig(srv.srv.URL),
		Factory: func(chatID api.ChatID, ctl session.Control) session.Handler {
			return &traceHandler{chatID: chatID, rec: rec}
		},
	})

	rec.waitFor(t, "1:handle(m10)")
	rec.waitFor(t, "2:handle(m9)")
	stop()

	chat1 := rec.chatEvents(api.ChatInt(1))
	wantChat1 := []string{"begin(u1)", "handle(m8)", "handle(m10)", "end"}
	if len(chat1) != len(wantChat1) {
		t.Fatalf("chat 1 events = %v", chat1)
	}
	for i := range wantChat1 {
		if chat1[i] != wantChat1[i] {
			t.Fatalf("chat 1 events = %v, want %v", chat1, wantChat1)
		}
	}

	handles := 0
	for _, ev := range rec.chatEvents(api.ChatInt(2)) {
		if strings.HasPrefix(ev, "handle(") {
			handles++
		}
	}
	if handles != 1 {
		t.Fatalf("chat 2 handled %d messages, want 1", handles)
	}
}

func TestRunBotCallbackCreatesSession(t *testing.T) {
	srv := newBotServer(t,
		`{"ok":true,"result":[{"update_id":11,"callback_query":{"id":"cbq1","from":{"id":77,"first_name":"C"},"data":"press"}}]}`,
	)
	rec := &recorder{}

	stop := startBot(t, RunOptions{
		Config: testConfig(srv.srv.URL),
		Factory: func(chatID api.ChatID, ctl session.Control) session.Handler {
			return &traceHandler{chatID: chatID, rec: rec}
		},
	})

	rec.waitFor(t, "77:callback(press)")
	stop()

	events := rec.chatEvents(api.ChatInt(77))
	// no message author on the callback path: Begin receives nil
	want := []string{"begin(nil)", "callback(press)", "end"}
	if len(events) != len(want) {
		t.Fatalf("chat 77 events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("chat 77 events = %v, want %v", events, want)
		}
	}
}

func TestRunBotHandlerFaultRoutedAndRecovered(t *testing.T) {
	srv := newBotServer(t,
		`{"ok":true,"result":[
			{"update_id":20,"message":{"message_id":1,"chat":{"id":5},"from":{"id":5,"first_name":"F"},"text":"boom"}},
			{"update_id":21,"message":{"message_id":2,"chat":{"id":5},"from":{"id":5,"first_name":"F"},"text":"after"}}
		]}`,
	)
	rec := &recorder{}

	stop := startBot(t, RunOptions{
		Config: testConfig(srv.srv.URL),
		Factory: func(chatID api.ChatID, ctl session.Control) session.Handler {
			return &traceHandler{chatID: chatID, rec: rec, faultOn: "boom"}
		},
	})

	rec.waitFor(t, "5:on_error(induced fault)")
	rec.waitFor(t, "5:handle(after)")
	stop()

	events := rec.chatEvents(api.ChatInt(5))
	want := []string{"begin(F)", "handle(boom)", "on_error(induced fault)", "handle(after)", "end"}
	if len(events) != len(want) {
		t.Fatalf("chat 5 events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("chat 5 events = %v, want %v", events, want)
		}
	}
}

func TestRunBotGracefulShutdownMidHandle(t *testing.T) {
	srv := newBotServer(t,
		`{"ok":true,"result":[{"update_id":30,"message":{"message_id":1,"chat":{"id":5},"from":{"id":5,"first_name":"S"},"text":"slow"}}]}`,
	)
	rec := &recorder{}
	started := make(chan struct{})
	var stops int
	var hookMu sync.Mutex

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunBot(ctx, RunOptions{
			Config: testConfig(srv.srv.URL),
			Factory: func(chatID api.ChatID, ctl session.Control) session.Handler {
				return &traceHandler{chatID: chatID, rec: rec, blockOn: "slow", started: started}
			},
			Hooks: Hooks{
				Stop: func(context.Context, Runtime) error {
					hookMu.Lock()
					stops++
					hookMu.Unlock()
					return nil
				},
			},
		})
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never started")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunBot returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("shutdown hung on an in-flight handler")
	}

	events := rec.chatEvents(api.ChatInt(5))
	sawCancel, sawEnd := false, false
	for _, ev := range events {
		if ev == "handle_cancelled" {
			sawCancel = true
		}
		if ev == "end" {
			if !sawCancel {
				t.Fatalf("end must follow the cancelled handle, events = %v", events)
			}
			sawEnd = true
		}
	}
	if !sawCancel || !sawEnd {
		t.Fatalf("expected cancelled handle and end, events = %v", events)
	}

	hookMu.Lock()
	defer hookMu.Unlock()
	if stops != 1 {
		t.Fatalf("stop hook ran %d times", stops)
	}
}

func TestRunBotStartFailureSkipsStop(t *testing.T) {
	srv := newBotServer(t)
	boom := errors.New("start failed")
	stopRan := false

	err := RunBot(context.Background(), RunOptions{
		Config: testConfig(srv.srv.URL),
		Factory: func(chatID api.ChatID, ctl session.Control) session.Handler {
			return &traceHandler{chatID: chatID, rec: &recorder{}}
		},
		Hooks: Hooks{
			Start: func(context.Context, Runtime) error { return boom },
			Stop: func(context.Context, Runtime) error {
				stopRan = true
				return nil
			},
		},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunBot returned %v, want start failure", err)
	}
	if stopRan {
		t.Fatal("stop hook must not run when start failed")
	}
}
