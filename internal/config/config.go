package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/procman/internal/logger"
	"github.com/loykin/procman/internal/logrotate"
)

const (
	DefaultBaseDirName = ".procman"
	DefaultDBFileName  = "procman.db"
	DefaultLogDir      = "./logs"
	DefaultListen      = "127.0.0.1:8080"
	DefaultBasePath    = "/api"
)

// StoreConfig selects the persistence backend.
// Backend is "sqlite" (default) or "postgres". Path applies to sqlite,
// DSN to postgres.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen       string `mapstructure:"listen"`
	BasePath     string `mapstructure:"base_path"`
	Metrics      bool   `mapstructure:"metrics"`
	ReapInterval string `mapstructure:"reap_interval"`
}

// Config is the daemon/CLI configuration, loaded from TOML with
// defaults filled in for anything the file omits.
type Config struct {
	BaseDir string           `mapstructure:"base_dir"`
	Store   StoreConfig      `mapstructure:"store"`
	Log     LogConfig        `mapstructure:"log"`
	Server  ServerConfig     `mapstructure:"server"`
	Logging logger.Config    `mapstructure:"logging"`
	Rotate  logrotate.Config `mapstructure:"-"`
}

// LogConfig configures process output logging and rotation.
type LogConfig struct {
	Dir         string `mapstructure:"dir"`
	MaxFileSize int64  `mapstructure:"max_file_size"`
	MaxFiles    int    `mapstructure:"max_files"`
	Enabled     bool   `mapstructure:"enabled"`
}

// Load reads configuration from path. An empty path means defaults
// only; a missing file at an explicit path is an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_dir", "")
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("log.dir", DefaultLogDir)
	v.SetDefault("log.max_file_size", logrotate.DefaultMaxFileSize)
	v.SetDefault("log.max_files", logrotate.DefaultMaxFiles)
	v.SetDefault("log.enabled", true)
	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.base_path", DefaultBasePath)
	v.SetDefault("server.metrics", true)
	v.SetDefault("server.reap_interval", "5s")
	v.SetDefault("logging.level", "info")
}

func (c *Config) normalize() error {
	if c.BaseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		c.BaseDir = filepath.Join(home, DefaultBaseDirName)
	} else if strings.HasPrefix(c.BaseDir, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		c.BaseDir = filepath.Join(home, strings.TrimPrefix(c.BaseDir, "~"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Store.Backend)) {
	case "", "sqlite":
		c.Store.Backend = "sqlite"
		if c.Store.Path == "" {
			c.Store.Path = filepath.Join(c.BaseDir, DefaultDBFileName)
		}
	case "postgres", "postgresql":
		c.Store.Backend = "postgres"
		if c.Store.DSN == "" {
			return fmt.Errorf("store backend %q requires a dsn", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Log.Dir == "" {
		c.Log.Dir = DefaultLogDir
	}
	c.Rotate = logrotate.Config{
		MaxFileSize: c.Log.MaxFileSize,
		MaxFiles:    c.Log.MaxFiles,
		Enabled:     c.Log.Enabled,
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = DefaultBasePath
	}
	return nil
}

// StoreDSN builds the DSN consumed by the store factory.
func (c Config) StoreDSN() string {
	if c.Store.Backend == "postgres" {
		return c.Store.DSN
	}
	return c.Store.Path
}

// ReapInterval parses the configured reaper interval, falling back to
// the default on malformed input.
func (c Config) ReapInterval() time.Duration {
	d, err := time.ParseDuration(c.Server.ReapInterval)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}
