package commands

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/m3rciful/botcore/core/logger"
	"github.com/m3rciful/botcore/core/telegram/api"
	"log/slog"
)

// HandlerFunc processes a command message inside a chat handler.
type HandlerFunc func(ctx context.Context, msg *api.Message) error

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     HandlerFunc
	Description string
	Hidden      bool
	Aliases     []string
}

// Registry holds the command table shared by a bot's chat handlers.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds a new command under its /name key.
func (r *Registry) Register(name string, cmd Command) {
	if r == nil || name == "" || cmd.Handler == nil || cmd.Description == "" {
		logger.TG.Warn("command registration skipped",
			slog.String("event", "register.command.skip"),
			slog.String("name", name),
			slog.String("reason", "invalid"),
		)
		return
	}
	if !strings.HasPrefix(name, "/") {
		logger.TG.Warn("command registration skipped",
			slog.String("event", "register.command.skip"),
			slog.String("name", name),
			slog.String("reason", "no_slash_prefix"),
		)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[name]; exists {
		logger.TG.Warn("duplicate command",
			slog.String("event", "register.command.duplicate"),
			slog.String("name", name),
		)
		return
	}
	r.commands[name] = cmd
}

// Lookup searches for a command by name or alias and returns the canonical
// key with metadata if found.
func (r *Registry) Lookup(name string) (string, Command, bool) {
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[name]; ok {
		return name, cmd, true
	}
	for key, cmd := range r.commands {
		for _, alias := range cmd.Aliases {
			if alias == name || "/"+alias == name {
				return key, cmd, true
			}
		}
	}
	return "", Command{}, false
}

// List returns the commands as wire entries sorted by name, optionally
// filtering out hidden ones.
func (r *Registry) List(visibleOnly bool) []api.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []api.BotCommand
	for name, meta := range r.commands {
		if visibleOnly && meta.Hidden {
			continue
		}
		list = append(list, api.BotCommand{
			Command:     strings.TrimPrefix(name, "/"),
			Description: meta.Description,
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Command < list[j].Command })
	return list
}

// Publish pushes the visible command menu to the server.
func (r *Registry) Publish(ctx context.Context, client *api.Client) error {
	if client == nil {
		return errors.New("commands: nil client")
	}
	list := r.List(true)
	if len(list) == 0 {
		return nil
	}
	if err := client.SetMyCommands(ctx, api.SetMyCommands{Commands: list}); err != nil {
		logger.TG.Error("command menu publish failed",
			slog.String("event", "register.commands.set_failed"),
			slog.String("err", err.Error()),
		)
		return err
	}
	logger.TG.Info("command menu published",
		slog.String("event", "register.commands"),
		slog.Int("count", len(list)),
	)
	return nil
}
