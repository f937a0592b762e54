package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	coreconfig "github.com/m3rciful/botcore/core/config"
	"github.com/m3rciful/botcore/core/heartbeat"
	"github.com/m3rciful/botcore/core/logger"
	"github.com/m3rciful/botcore/core/telegram/api"
	"github.com/m3rciful/botcore/core/telegram/sender"
	"github.com/m3rciful/botcore/core/telegram/session"
	"log/slog"
)

const defaultShutdownGrace = 5 * time.Second

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Client   *api.Client
	Sender   *sender.Dispatcher
	Registry *session.Registry
}

// Hooks are process-wide bot lifecycle callbacks. Start runs before the
// first update is pulled; Stop runs at shutdown whenever Start succeeded.
type Hooks struct {
	Start func(ctx context.Context, rt Runtime) error
	Stop  func(ctx context.Context, rt Runtime) error
}

// RunOptions controls the behaviour of RunBot.
type RunOptions struct {
	Config *coreconfig.Config

	// Client overrides the API client built from Config.
	Client *api.Client
	// Factory builds a chat handler for every new conversation. Required.
	Factory session.Factory
	// Registry overrides the default session registry.
	Registry *session.Registry
	// Checkpoint optionally persists the acknowledgement offset.
	Checkpoint Checkpoint

	// Sender overrides the outbound dispatcher built from SenderOptions.
	// RunBot closes it on exit either way.
	Sender        *sender.Dispatcher
	SenderOptions sender.Options

	Hooks Hooks

	DisableWebhookCleanup bool
}

// RunBot composes and runs the bot until the provided context is done. It
// returns nil on a clean cancellation and the pump's failure otherwise.
func RunBot(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	if opts.Factory == nil {
		return fmt.Errorf("telegram: handler factory is required")
	}

	cfg := opts.Config
	pollTimeout := defaultLongPollTimeout
	if cfg.Telegram.LongPollTimeoutSeconds > 0 {
		pollTimeout = time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second
	}

	client := opts.Client
	if client == nil {
		clientOpts := []api.Option{api.WithHTTPClient(BuildHTTPClient(pollTimeout))}
		if cfg.Telegram.APIHost != "" {
			clientOpts = append(clientOpts, api.WithBaseURL(cfg.Telegram.APIHost))
		}
		client = api.NewClient(cfg.Telegram.Token, clientOpts...)
	}

	idle := time.Duration(cfg.Runtime.SessionIdleSeconds) * time.Second
	registry := opts.Registry
	if registry == nil {
		registry = session.NewRegistry(opts.Factory, idle)
	}

	outbound := opts.Sender
	if outbound == nil {
		outbound = sender.NewDispatcher(client, opts.SenderOptions)
	}

	poller := NewPoller(client, PollerOptions{
		Timeout:        pollTimeout,
		Limit:          cfg.Telegram.UpdateLimit,
		AllowedUpdates: cfg.Telegram.AllowedUpdates,
		Checkpoint:     opts.Checkpoint,
	})

	logger.TG.Info("polling mode",
		slog.String("event", "mode"),
		slog.String("mode", "longpoll"),
		slog.Duration("timeout", pollTimeout),
		slog.Int("message_workers", messageWorkers(cfg)),
		slog.Int("callback_workers", callbackWorkers(cfg)),
	)

	if !opts.DisableWebhookCleanup {
		cleanupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.DeleteWebhook(cleanupCtx, api.DeleteWebhook{})
		cancel()
		if err != nil {
			logger.TG.Warn("failed to delete webhook",
				slog.String("event", "delete_webhook"),
				slog.String("err", err.Error()),
			)
		} else {
			logger.TG.Info("webhook deleted",
				slog.String("event", "delete_webhook"),
			)
		}
	}

	rt := Runtime{Client: client, Sender: outbound, Registry: registry}

	if opts.Hooks.Start != nil {
		if err := opts.Hooks.Start(ctx, rt); err != nil {
			outbound.Close()
			return fmt.Errorf("telegram: start hook: %w", err)
		}
	}

	msgPool, err := ants.NewPool(messageWorkers(cfg))
	if err != nil {
		outbound.Close()
		return fmt.Errorf("telegram: message pool: %w", err)
	}
	cbPool, err := ants.NewPool(callbackWorkers(cfg))
	if err != nil {
		msgPool.Release()
		outbound.Close()
		return fmt.Errorf("telegram: callback pool: %w", err)
	}

	q := newQueues(cfg.Runtime.QueueSize)
	disp := newDispatcher(registry)

	var beat *heartbeat.Service
	if spec := cfg.Runtime.StatsSchedule; spec != "" {
		beat, err = heartbeat.New(spec, func(reportCtx context.Context) {
			logger.Beat.Info("runtime stats",
				slog.String("event", "stats"),
				slog.Int("sessions", registry.Len()),
				slog.Int64("next_offset", poller.Offset()),
				slog.Int("messages_queued", len(q.messages)),
				slog.Int("callbacks_queued", len(q.callbacks)),
				slog.Uint64("send_errors", outbound.ErrorCount()),
			)
		})
		if err != nil {
			logger.Beat.Warn("stats schedule rejected",
				slog.String("event", "stats"),
				slog.String("spec", spec),
				slog.String("err", err.Error()),
			)
		} else {
			beat.Start()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(gctx, q.route) })
	g.Go(func() error { return disp.runMessages(gctx, msgPool, q.messages) })
	g.Go(func() error { return disp.runCallbacks(gctx, cbPool, q.callbacks) })

	runErr := g.Wait()

	if beat != nil {
		beat.Stop()
	}
	disp.wait()
	msgPool.Release()
	cbPool.Release()

	shutdownSessions(registry, shutdownGrace(cfg))

	if opts.Hooks.Stop != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace(cfg))
		if err := opts.Hooks.Stop(stopCtx, rt); err != nil {
			logger.TG.Warn("stop hook failed",
				slog.String("event", "shutdown"),
				slog.String("err", err.Error()),
			)
		}
		cancel()
	}

	outbound.Close()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// shutdownSessions ends every live session under a fresh bounded scope.
// Individual teardown errors are aggregated for the log and otherwise
// ignored.
func shutdownSessions(registry *session.Registry, grace time.Duration) {
	sessions := registry.Snapshot()
	if len(sessions) == 0 {
		registry.Clear()
		return
	}

	start := time.Now()
	var errs *multierror.Error
	for _, s := range sessions {
		endCtx, cancel := context.WithTimeout(context.Background(), grace)
		if err := s.End(endCtx, nil); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("chat %s: %w", s.ChatID().String(), err))
		}
		cancel()
	}
	registry.Clear()

	if err := errs.ErrorOrNil(); err != nil {
		logger.Sess.Warn("session teardown finished with errors",
			slog.String("event", "shutdown"),
			slog.Int("sessions", len(sessions)),
			slog.Int("errors", len(errs.Errors)),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.Sess.Info("sessions closed",
		slog.String("event", "shutdown"),
		slog.Int("sessions", len(sessions)),
		slog.Duration("duration", logger.Took(start)),
	)
}

func messageWorkers(cfg *coreconfig.Config) int {
	if cfg.Runtime.MessageWorkers > 0 {
		return cfg.Runtime.MessageWorkers
	}
	return defaultMessageWorkers
}

func callbackWorkers(cfg *coreconfig.Config) int {
	if cfg.Runtime.CallbackWorkers > 0 {
		return cfg.Runtime.CallbackWorkers
	}
	return defaultCallbackWorkers
}

func shutdownGrace(cfg *coreconfig.Config) time.Duration {
	if cfg.Runtime.ShutdownGraceSeconds > 0 {
		return time.Duration(cfg.Runtime.ShutdownGraceSeconds) * time.Second
	}
	return defaultShutdownGrace
}
