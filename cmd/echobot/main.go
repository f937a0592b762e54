package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/m3rciful/botcore/core/bootstrap"
	corecmd "github.com/m3rciful/botcore/core/cmd"
	coreconfig "github.com/m3rciful/botcore/core/config"
	coredatabase "github.com/m3rciful/botcore/core/database"
	"github.com/m3rciful/botcore/core/telegram"
	"github.com/m3rciful/botcore/core/telegram/api"
	"github.com/m3rciful/botcore/core/telegram/callbacks"
	"github.com/m3rciful/botcore/core/telegram/commands"
	"github.com/m3rciful/botcore/core/telegram/format"
	"github.com/m3rciful/botcore/core/telegram/keyboard"
	"github.com/m3rciful/botcore/core/telegram/sender"
	"github.com/m3rciful/botcore/core/telegram/session"
)

func main() {
	if err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		Build:             buildRunOptions,
	}); err != nil {
		log.Printf("echobot: %v", err)
		os.Exit(1)
	}
}

func buildRunOptions(cfg *coreconfig.Config, boot *bootstrap.Result) (telegram.RunOptions, error) {
	pollTimeout := 60 * time.Second
	if cfg.Telegram.LongPollTimeoutSeconds > 0 {
		pollTimeout = time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second
	}

	clientOpts := []api.Option{api.WithHTTPClient(telegram.BuildHTTPClient(pollTimeout))}
	if cfg.Telegram.APIHost != "" {
		clientOpts = append(clientOpts, api.WithBaseURL(cfg.Telegram.APIHost))
	}
	client := api.NewClient(cfg.Telegram.Token, clientOpts...)
	outbound := sender.NewDispatcher(client, sender.Options{})

	opts := telegram.RunOptions{
		Config: cfg,
		Client: client,
		Sender: outbound,
		Factory: func(chatID api.ChatID, ctl session.Control) session.Handler {
			h := &echoHandler{chatID: chatID, ctl: ctl, out: outbound, menu: commands.NewRegistry()}
			h.registerCommands()
			return h
		},
		Hooks: telegram.Hooks{
			Start: func(ctx context.Context, rt telegram.Runtime) error {
				// the published menu mirrors what every chat handler registers
				seed := &echoHandler{out: outbound, menu: commands.NewRegistry()}
				seed.registerCommands()
				return seed.menu.Publish(ctx, rt.Client)
			},
			Stop: func(ctx context.Context, rt telegram.Runtime) error {
				return nil
			},
		},
	}

	if boot.DB != nil {
		opts.Checkpoint = coredatabase.NewOffsetStore(boot.DB, "echobot")
	}
	return opts, nil
}

// echoHandler repeats every text message back to the chat and answers
// callback presses: a "say" press echoes its payload, any other key is
// named back.
type echoHandler struct {
	chatID api.ChatID
	ctl    session.Control
	out    *sender.Dispatcher
	menu   *commands.Registry
}

func (h *echoHandler) registerCommands() {
	h.menu.Register("/start", commands.Command{
		Description: "greet and explain the bot",
		Handler:     h.cmdStart,
	})
	h.menu.Register("/help", commands.Command{
		Description: "show usage",
		Handler:     h.cmdHelp,
		Aliases:     []string{"h"},
	})
	h.menu.Register("/stop", commands.Command{
		Description: "end this conversation",
		Handler:     h.cmdStop,
	})
}

func (h *echoHandler) Begin(ctx context.Context, user *api.User) error {
	text := "Hi\\! Send me anything and I will echo it back\\."
	if name := user.FullName(); name != "" {
		text = fmt.Sprintf("Hi, *%s*\\! Send me anything and I will echo it back\\.", format.EscapeV2(name))
	}
	return h.out.SendMessage(ctx, api.SendMessage{
		ChatID:    h.chatID,
		Text:      text,
		ParseMode: format.ModeMarkdownV2,
	})
}

func (h *echoHandler) Handle(ctx context.Context, msg *api.Message) error {
	if cmd, ok := msg.Command(); ok {
		if _, meta, found := h.menu.Lookup(cmd); found {
			return meta.Handler(ctx, msg)
		}
		return h.out.SendMessage(ctx, api.SendMessage{
			ChatID: h.chatID,
			Text:   fmt.Sprintf("Unknown command %s, try /help.", cmd),
		})
	}
	if msg.Text == "" {
		return h.out.SendMessage(ctx, api.SendMessage{
			ChatID: h.chatID,
			Text:   "I can only echo text messages.",
		})
	}
	return h.out.SendMessage(ctx, api.SendMessage{
		ChatID:           h.chatID,
		Text:             msg.Text,
		ReplyToMessageID: msg.MessageID,
	})
}

func (h *echoHandler) HandleCallback(ctx context.Context, cb *api.CallbackQuery) error {
	if err := h.out.AnswerCallback(ctx, api.AnswerCallbackQuery{CallbackQueryID: cb.ID}); err != nil {
		return err
	}
	key, payload := callbacks.Parse(cb)
	switch key {
	case "say":
		return h.out.SendMessage(ctx, api.SendMessage{ChatID: h.chatID, Text: payload})
	case "":
		return nil
	default:
		return h.out.SendMessage(ctx, api.SendMessage{
			ChatID: h.chatID,
			Text:   "You pressed: " + key,
		})
	}
}

func (h *echoHandler) OnError(ctx context.Context, err error) error {
	return h.out.SendMessage(ctx, api.SendMessage{
		ChatID: h.chatID,
		Text:   "Something went wrong, please try again.",
	})
}

func (h *echoHandler) End(ctx context.Context, user *api.User) error {
	return h.out.SendMessage(ctx, api.SendMessage{
		ChatID: h.chatID,
		Text:   "Bye! Send a new message any time to start over.",
	})
}

func (h *echoHandler) Close() error { return nil }

func (h *echoHandler) cmdStart(ctx context.Context, msg *api.Message) error {
	return h.Begin(ctx, msg.From)
}

func (h *echoHandler) cmdHelp(ctx context.Context, msg *api.Message) error {
	return h.out.SendMessage(ctx, api.SendMessage{
		ChatID: h.chatID,
		Text:   "Send any text and I echo it. /stop ends the conversation.",
		ReplyMarkup: keyboard.InlineButtons([]keyboard.InlineBtn{
			{Text: "Say hi", Unique: "say", Data: "hi"},
		}),
	})
}

func (h *echoHandler) cmdStop(ctx context.Context, msg *api.Message) error {
	h.ctl.Stop()
	return nil
}
