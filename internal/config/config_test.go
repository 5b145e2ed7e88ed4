package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/procman/internal/logrotate"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	home, _ := os.UserHomeDir()
	if cfg.BaseDir != filepath.Join(home, DefaultBaseDirName) {
		t.Fatalf("unexpected base dir: %s", cfg.BaseDir)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Fatalf("unexpected backend: %s", cfg.Store.Backend)
	}
	if cfg.Store.Path != filepath.Join(cfg.BaseDir, DefaultDBFileName) {
		t.Fatalf("unexpected db path: %s", cfg.Store.Path)
	}
	if cfg.Log.Dir != DefaultLogDir {
		t.Fatalf("unexpected log dir: %s", cfg.Log.Dir)
	}
	if cfg.Rotate.MaxFileSize != logrotate.DefaultMaxFileSize || cfg.Rotate.MaxFiles != logrotate.DefaultMaxFiles {
		t.Fatalf("unexpected rotate defaults: %+v", cfg.Rotate)
	}
	if !cfg.Rotate.Enabled {
		t.Fatalf("rotation should default to enabled")
	}
	if cfg.Server.Listen != DefaultListen || cfg.Server.BasePath != DefaultBasePath {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.ReapInterval() != 5*time.Second {
		t.Fatalf("unexpected reap interval: %v", cfg.ReapInterval())
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "procman.toml")
	content := `
base_dir = "` + dir + `"

[store]
backend = "sqlite"
path = "` + filepath.Join(dir, "custom.db") + `"

[log]
dir = "` + filepath.Join(dir, "logs") + `"
max_file_size = 1048576
max_files = 2
enabled = false

[server]
listen = "0.0.0.0:9090"
base_path = "/procman"
reap_interval = "10s"

[logging]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseDir != dir {
		t.Fatalf("unexpected base dir: %s", cfg.BaseDir)
	}
	if cfg.Store.Path != filepath.Join(dir, "custom.db") {
		t.Fatalf("unexpected db path: %s", cfg.Store.Path)
	}
	if cfg.Rotate.MaxFileSize != 1048576 || cfg.Rotate.MaxFiles != 2 || cfg.Rotate.Enabled {
		t.Fatalf("unexpected rotate config: %+v", cfg.Rotate)
	}
	if cfg.Server.Listen != "0.0.0.0:9090" || cfg.Server.BasePath != "/procman" {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.ReapInterval() != 10*time.Second {
		t.Fatalf("unexpected reap interval: %v", cfg.ReapInterval())
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected log level: %s", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestPostgresRequiresDSN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "procman.toml")
	if err := os.WriteFile(path, []byte("[store]\nbackend = \"postgres\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "dsn") {
		t.Fatalf("expected dsn error, got %v", err)
	}
}

func TestStoreDSN(t *testing.T) {
	cfg := Config{Store: StoreConfig{Backend: "postgres", DSN: "postgres://u@h/db"}}
	if cfg.StoreDSN() != "postgres://u@h/db" {
		t.Fatalf("postgres dsn: %s", cfg.StoreDSN())
	}
	cfg = Config{Store: StoreConfig{Backend: "sqlite", Path: "/tmp/x.db"}}
	if cfg.StoreDSN() != "/tmp/x.db" {
		t.Fatalf("sqlite dsn: %s", cfg.StoreDSN())
	}
}

func TestUnknownBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "procman.toml")
	if err := os.WriteFile(path, []byte("[store]\nbackend = \"mysql\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
