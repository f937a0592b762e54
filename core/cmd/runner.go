package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m3rciful/botcore/core/bootstrap"
	coreconfig "github.com/m3rciful/botcore/core/config"
	"github.com/m3rciful/botcore/core/logger"
	coretelegram "github.com/m3rciful/botcore/core/telegram"
	"log/slog"
)

// Options describe how to load configuration, bootstrap the app, and run the bot.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	// Build maps loaded configuration and bootstrap output to run options.
	Build func(cfg *coreconfig.Config, boot *bootstrap.Result) (coretelegram.RunOptions, error)

	ShutdownLogger func() error
	RunBot         func(ctx context.Context, opts coretelegram.RunOptions) error
}

// Run loads configuration, bootstraps infrastructure, and starts the bot
// runtime until an interrupt arrives.
func Run(opts Options) error {
	if opts.Build == nil {
		return fmt.Errorf("cmd: Build is required")
	}

	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	cfgPath := os.Getenv(env)
	if cfgPath == "" {
		cfgPath = opts.DefaultConfigPath
	}

	log.Printf("loading config: %s", cfgPath)
	cfg, err := coreconfig.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	boot, err := bootstrap.Run(bootstrap.Options{Config: cfg})
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	if boot.DB != nil {
		defer func() {
			if err := boot.DB.Close(); err != nil {
				logger.DB.Warn("db close failed",
					slog.String("event", "db.close"),
					slog.String("err", err.Error()),
				)
			}
		}()
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	runOpts, err := opts.Build(cfg, boot)
	if err != nil {
		return fmt.Errorf("cmd: run options build failed: %w", err)
	}
	if runOpts.Config == nil {
		runOpts.Config = cfg
	}

	startedAt := time.Now()
	prevStart := runOpts.Hooks.Start
	runOpts.Hooks.Start = func(ctx context.Context, rt coretelegram.Runtime) error {
		if prevStart != nil {
			if err := prevStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.L.With("component", "app").Info("app ready",
			slog.String("event", "ready"),
			slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
		)
		return nil
	}

	prevStop := runOpts.Hooks.Stop
	runOpts.Hooks.Stop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.L.With("component", "app").Info("shutting down...",
			slog.String("event", "shutdown"),
		)
		if prevStop != nil {
			return prevStop(ctx, rt)
		}
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	run := opts.RunBot
	if run == nil {
		run = coretelegram.RunBot
	}
	return run(ctx, runOpts)
}
