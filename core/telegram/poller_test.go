package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/botcore/core/telegram/api"
)

// pollScript serves scripted getUpdates responses and records the offsets
// the client acknowledged.
type pollScript struct {
	mu        sync.Mutex
	responses []string
	offsets   []int64
}

func (s *pollScript) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Offset int64 `json:"offset"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode getUpdates request: %v", err)
		}

		s.mu.Lock()
		s.offsets = append(s.offsets, req.Offset)
		var body string
		if len(s.responses) > 0 {
			body = s.responses[0]
			s.responses = s.responses[1:]
		} else {
			body = `{"ok":true,"result":[]}`
		}
		s.mu.Unlock()

		w.Write([]byte(body))
	}
}

func (s *pollScript) seenOffsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.offsets...)
}

func newScriptedPoller(t *testing.T, script *pollScript, opts PollerOptions) *Poller {
	t.Helper()
	srv := httptest.NewServer(script.handler(t))
	t.Cleanup(srv.Close)
	client := api.NewClient("TEST", api.WithBaseURL(srv.URL))
	return NewPoller(client, opts)
}

func TestPollerEmitsInOrderAndAdvancesOffset(t *testing.T) {
	script := &pollScript{responses: []string{
		`{"ok":true,"result":[
			{"update_id":7,"message":{"message_id":1,"chat":{"id":42},"text":"a"}},
			{"update_id":8,"message":{"message_id":2,"chat":{"id":42},"text":"b"}}
		]}`,
	}}
	p := newScriptedPoller(t, script, PollerOptions{Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	var emitted []int64
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, func(_ context.Context, u api.Update) error {
			emitted = append(emitted, u.ID)
			if len(emitted) == 2 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not finish")
	}

	if len(emitted) != 2 || emitted[0] != 7 || emitted[1] != 8 {
		t.Fatalf("emitted = %v", emitted)
	}
	if p.Offset() != 9 {
		t.Fatalf("next offset = %d, want 9", p.Offset())
	}

	offsets := script.seenOffsets()
	if offsets[0] != 0 {
		t.Fatalf("first request offset = %d, want 0", offsets[0])
	}
	for _, off := range offsets[1:] {
		if off != 9 {
			t.Fatalf("post-batch request offset = %d, want 9", off)
		}
	}
}

func TestPollerRetryAfterHonoured(t *testing.T) {
	script := &pollScript{responses: []string{
		`{"ok":false,"description":"flood","error_code":429,"parameters":{"retry_after":1}}`,
		`{"ok":true,"result":[{"update_id":3,"message":{"message_id":1,"chat":{"id":1},"text":"x"}}]}`,
	}}
	p := newScriptedPoller(t, script, PollerOptions{Timeout: 500 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	var emitted int
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, func(context.Context, api.Update) error {
			emitted++
			cancel()
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("poller did not finish")
	}

	if emitted != 1 {
		t.Fatalf("emitted = %d", emitted)
	}
	// retry_after of 1s exceeds the 500ms poll window, so it wins
	if took := time.Since(start); took < time.Second {
		t.Fatalf("poller retried after %v, want >= 1s", took)
	}

	offsets := script.seenOffsets()
	if len(offsets) < 2 || offsets[0] != 0 || offsets[1] != 0 {
		t.Fatalf("failed poll must retry the same offset, got %v", offsets)
	}
}

func TestPollerCancelDuringBackoff(t *testing.T) {
	script := &pollScript{responses: []string{
		`{"ok":false,"description":"internal","error_code":500}`,
	}}
	p := newScriptedPoller(t, script, PollerOptions{Timeout: 30 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, func(context.Context, api.Update) error {
			t.Error("nothing must be emitted")
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("backoff sleep is not cancellable")
	}
}

// memCheckpoint is an in-memory Checkpoint for tests.
type memCheckpoint struct {
	mu     sync.Mutex
	offset int64
	stores []int64
}

func (c *memCheckpoint) Load(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset, nil
}

func (c *memCheckpoint) Store(_ context.Context, offset int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = offset
	c.stores = append(c.stores, offset)
	return nil
}

func TestPollerCheckpointRestoreAndStore(t *testing.T) {
	script := &pollScript{responses: []string{
		`{"ok":true,"result":[{"update_id":12,"message":{"message_id":1,"chat":{"id":5},"text":"x"}}]}`,
	}}
	p := newScriptedPoller(t, script, PollerOptions{
		Timeout:    time.Second,
		Checkpoint: &memCheckpoint{offset: 10},
	})

	cp := p.checkpoint.(*memCheckpoint)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, func(context.Context, api.Update) error {
			cancel()
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not finish")
	}

	offsets := script.seenOffsets()
	if offsets[0] != 10 {
		t.Fatalf("restored offset = %d, want 10", offsets[0])
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if len(cp.stores) == 0 || cp.stores[0] != 13 {
		t.Fatalf("stored offsets = %v, want [13]", cp.stores)
	}
}

// A failing emit aborts the pump; its error must surface unchanged.
func TestPollerEmitErrorStopsRun(t *testing.T) {
	script := &pollScript{responses: []string{
		`{"ok":true,"result":[{"update_id":1,"message":{"message_id":1,"chat":{"id":1},"text":"x"}}]}`,
	}}
	p := newScriptedPoller(t, script, PollerOptions{Timeout: time.Second})

	sentinel := fmt.Errorf("downstream gone")
	err := p.Run(context.Background(), func(context.Context, api.Update) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Run returned %v, want sentinel", err)
	}
	if p.Offset() != 0 {
		t.Fatalf("offset must not advance past an unemitted batch, got %d", p.Offset())
	}
}
