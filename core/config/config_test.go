package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "12345:ABC"
  longpoll_timeout_seconds: 30
  allowed_updates: ["message", "callback_query"]
runtime:
  message_workers: 4
  session_idle_seconds: 600
logging:
  level: debug
  format: kv
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "12345:ABC" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.LongPollTimeoutSeconds != 30 {
		t.Fatalf("timeout = %d", cfg.Telegram.LongPollTimeoutSeconds)
	}
	if len(cfg.Telegram.AllowedUpdates) != 2 {
		t.Fatalf("allowed updates = %v", cfg.Telegram.AllowedUpdates)
	}
	if cfg.Runtime.MessageWorkers != 4 || cfg.Runtime.SessionIdleSeconds != 600 {
		t.Fatalf("runtime = %+v", cfg.Runtime)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "kv" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "from-file"
`)
	t.Setenv("BOT_TOKEN", "from-env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("env override lost, token = %q", cfg.Telegram.Token)
	}
}

func TestLoadRejectsMissingToken(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: info
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing token")
	}
}

func TestLoadRejectsBadLimits(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "x"
  update_limit: 500
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for update_limit")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
