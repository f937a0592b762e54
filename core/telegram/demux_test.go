package telegram

import (
	"context"
	"testing"
	"time"

	"github.com/m3rciful/botcore/core/telegram/api"
)

func TestQueuesRouteMessageVariants(t *testing.T) {
	q := newQueues(4)
	ctx := context.Background()
	msg := &api.Message{MessageID: 1, Chat: api.Chat{ID: 5}}

	updates := []api.Update{
		{ID: 1, Message: msg},
		{ID: 2, EditedMessage: msg},
		{ID: 3, ChannelPost: msg},
		{ID: 4, EditedChannelPost: msg},
	}
	for _, u := range updates {
		if err := q.route(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	for i := int64(1); i <= 4; i++ {
		select {
		case it := <-q.messages:
			if it.updateID != i {
				t.Fatalf("queue order broken: got %d, want %d", it.updateID, i)
			}
			if it.msg != msg {
				t.Fatal("routed message lost")
			}
		default:
			t.Fatalf("message %d missing from queue", i)
		}
	}
}

func TestQueuesRouteCallback(t *testing.T) {
	q := newQueues(4)
	cb := &api.CallbackQuery{ID: "x", From: api.User{ID: 7}}
	if err := q.route(context.Background(), api.Update{ID: 9, CallbackQuery: cb}); err != nil {
		t.Fatal(err)
	}
	select {
	case it := <-q.callbacks:
		if it.updateID != 9 || it.cb != cb {
			t.Fatalf("unexpected item %+v", it)
		}
	default:
		t.Fatal("callback missing from queue")
	}
	if len(q.messages) != 0 {
		t.Fatal("callback must not reach the message queue")
	}
}

func TestQueuesDropUnsupported(t *testing.T) {
	q := newQueues(4)
	if err := q.route(context.Background(), api.Update{ID: 11}); err != nil {
		t.Fatal(err)
	}
	if len(q.messages) != 0 || len(q.callbacks) != 0 {
		t.Fatal("unsupported update must be dropped")
	}
}

func TestQueuesBlockingSendIsCancellable(t *testing.T) {
	q := newQueues(1)
	ctx, cancel := context.WithCancel(context.Background())
	msg := &api.Message{MessageID: 1, Chat: api.Chat{ID: 5}}

	if err := q.route(ctx, api.Update{ID: 1, Message: msg}); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- q.route(ctx, api.Update{ID: 2, Message: msg})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked send did not observe cancellation")
	}
}
