package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load with missing file: %v", err)
	}
	if cfg.Server.WebSocket.Address != ":8080" {
		t.Errorf("websocket address = %q, want :8080", cfg.Server.WebSocket.Address)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("database driver = %q, want memory", cfg.Database.Driver)
	}
	if cfg.Combat.HandLimit != 4 {
		t.Errorf("hand limit = %d, want 4", cfg.Combat.HandLimit)
	}
	if cfg.Combat.LockWait != 2*time.Second {
		t.Errorf("lock wait = %v, want 2s", cfg.Combat.LockWait)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  websocket:
    address: ":9999"
    path: "/combat"
database:
  driver: "sqlite"
  path: "combat.db"
logging:
  level: "debug"
  format: "console"
combat:
  hand_limit: 6
  lock_wait: 500ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.WebSocket.Address != ":9999" || cfg.Server.WebSocket.Path != "/combat" {
		t.Errorf("websocket = %+v, want :9999 /combat", cfg.Server.WebSocket)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != "combat.db" {
		t.Errorf("database = %+v, want sqlite combat.db", cfg.Database)
	}
	if cfg.Combat.HandLimit != 6 {
		t.Errorf("hand limit = %d, want 6", cfg.Combat.HandLimit)
	}
	if cfg.Combat.LockWait != 500*time.Millisecond {
		t.Errorf("lock wait = %v, want 500ms", cfg.Combat.LockWait)
	}
}

func TestLoadValidation(t *testing.T) {
	if _, err := Load(writeConfig(t, "database:\n  driver: \"sqlite\"\n")); err == nil {
		t.Error("sqlite without path did not fail")
	}
	if _, err := Load(writeConfig(t, "database:\n  driver: \"postgres\"\n")); err == nil {
		t.Error("postgres without url did not fail")
	}
	if _, err := Load(writeConfig(t, "database:\n  driver: \"oracle\"\n")); err == nil {
		t.Error("unknown driver did not fail")
	}
	if _, err := Load(writeConfig(t, "combat:\n  hand_limit: 0\n")); err == nil {
		t.Error("zero hand limit did not fail")
	}
}
