package telegram

import (
	"context"

	"github.com/m3rciful/botcore/core/logger"
	"github.com/m3rciful/botcore/core/telegram/api"
	"log/slog"
)

// messageItem is one message-shaped update queued for dispatch.
type messageItem struct {
	updateID int64
	msg      *api.Message
}

// callbackItem is one callback query queued for dispatch.
type callbackItem struct {
	updateID int64
	cb       *api.CallbackQuery
}

// queues splits the update stream into homogeneous message and callback
// flows. Channels are bounded with blocking send; the queue capacity caps
// how far the producer can run ahead, and per-chat order is recovered
// downstream by session serialization.
type queues struct {
	messages  chan messageItem
	callbacks chan callbackItem
}

func newQueues(size int) *queues {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &queues{
		messages:  make(chan messageItem, size),
		callbacks: make(chan callbackItem, size),
	}
}

// route classifies one update onto exactly one queue. Unrecognized envelopes
// are logged and dropped. The send is cancellable.
func (q *queues) route(ctx context.Context, u api.Update) error {
	if msg := u.Content(); msg != nil {
		select {
		case q.messages <- messageItem{updateID: u.ID, msg: msg}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if u.CallbackQuery != nil {
		select {
		case q.callbacks <- callbackItem{updateID: u.ID, cb: u.CallbackQuery}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	logger.Queue.Warn("unsupported update",
		slog.String("event", "update.drop"),
		slog.Int64("update_id", u.ID),
	)
	return nil
}
