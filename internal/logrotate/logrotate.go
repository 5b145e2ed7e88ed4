package logrotate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultMaxFileSize = 10 * 1024 * 1024
	DefaultMaxFiles    = 5

	// Backups are never numbered past this, so cleanup after a
	// configuration change only has to probe a fixed range.
	maxBackupIndex = 20
)

// Config controls size-based rotation of a process log file.
type Config struct {
	MaxFileSize int64 `mapstructure:"max_file_size"`
	MaxFiles    int   `mapstructure:"max_files"`
	Enabled     bool  `mapstructure:"enabled"`
}

func DefaultConfig() Config {
	return Config{
		MaxFileSize: DefaultMaxFileSize,
		MaxFiles:    DefaultMaxFiles,
		Enabled:     true,
	}
}

// Rotator rotates one live log file into a numbered backup chain:
// app.log -> app.1.log -> app.2.log ... with lower numbers newer.
type Rotator struct {
	cfg Config
}

func New(cfg Config) *Rotator {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = DefaultMaxFiles
	}
	return &Rotator{cfg: cfg}
}

func (r *Rotator) Config() Config { return r.cfg }

// NeedsRotation reports whether the live file has grown past the size
// limit. A missing file never needs rotation.
func (r *Rotator) NeedsRotation(path string) (bool, error) {
	if !r.cfg.Enabled {
		return false, nil
	}
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.Size() > r.cfg.MaxFileSize, nil
}

// RotateIfNeeded rotates the file when it has grown past the limit and
// reports whether a rotation happened.
func (r *Rotator) RotateIfNeeded(path string) (bool, error) {
	need, err := r.NeedsRotation(path)
	if err != nil || !need {
		return false, err
	}
	if err := r.ForceRotate(path); err != nil {
		return false, err
	}
	return true, nil
}

// ForceRotate shifts the backup chain by one, moves the live file to
// index 1, and recreates an empty live file. The oldest backup falls
// off the end of the chain.
func (r *Rotator) ForceRotate(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("rotate %s: file does not exist", path)
	}

	for i := r.cfg.MaxFiles - 1; i >= 1; i-- {
		src := backupPath(path, i)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, backupPath(path, i+1)); err != nil {
			return fmt.Errorf("shift backup %d: %w", i, err)
		}
	}

	if err := os.Rename(path, backupPath(path, 1)); err != nil {
		return fmt.Errorf("rotate %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("recreate %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	r.cleanupOldFiles(path)
	return nil
}

// RotatedFiles returns existing backup paths, newest first.
func (r *Rotator) RotatedFiles(path string) []string {
	out := make([]string, 0, r.cfg.MaxFiles)
	for i := 1; i <= r.cfg.MaxFiles; i++ {
		p := backupPath(path, i)
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// cleanupOldFiles removes backups numbered beyond MaxFiles, which can
// exist after MaxFiles was lowered.
func (r *Rotator) cleanupOldFiles(path string) {
	for i := r.cfg.MaxFiles + 1; i <= maxBackupIndex; i++ {
		_ = os.Remove(backupPath(path, i))
	}
}

// backupPath derives the numbered backup name: /d/app.log, 2 -> /d/app.2.log.
func backupPath(path string, index int) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, fmt.Sprintf("%s.%d.log", stem, index))
}
