package supervisor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/loykin/procman/internal/metrics"
	"github.com/loykin/procman/internal/store"
)

// GetProcessLogs returns the tail of the live log file. maxLines <= 0
// returns the whole file.
func (s *Supervisor) GetProcessLogs(ctx context.Context, name string, maxLines int) (string, error) {
	rec, err := s.logRecord(ctx, name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(rec.LogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read log %s: %w", rec.LogPath, err)
	}
	return tailLines(string(data), maxLines), nil
}

// GetRotatedLogs returns the paths of existing rotated backups for the
// process, newest first.
func (s *Supervisor) GetRotatedLogs(ctx context.Context, name string) ([]string, error) {
	rec, err := s.logRecord(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.rotator.RotatedFiles(rec.LogPath), nil
}

// RotateProcessLogs rotates the live log file unconditionally.
func (s *Supervisor) RotateProcessLogs(ctx context.Context, name string) error {
	rec, err := s.logRecord(ctx, name)
	if err != nil {
		return err
	}
	if err := s.rotator.ForceRotate(rec.LogPath); err != nil {
		return err
	}
	metrics.IncLogRotation(name)
	return nil
}

func (s *Supervisor) logRecord(ctx context.Context, name string) (store.Record, error) {
	rec, ok, err := s.store.GetByName(ctx, name)
	if err != nil {
		return store.Record{}, fmt.Errorf("load record: %w", err)
	}
	if !ok {
		return store.Record{}, &store.NotFoundError{Name: name}
	}
	return rec, nil
}

func tailLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return content
	}
	trimmed := strings.TrimRight(content, "\n")
	if trimmed == "" {
		return content
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) <= maxLines {
		return content
	}
	return strings.Join(lines[len(lines)-maxLines:], "\n") + "\n"
}
