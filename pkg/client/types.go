package client

import (
	"fmt"
	"time"
)

// StartRequest is the payload for starting a new process.
type StartRequest struct {
	Name       string            `json:"name"`
	Command    string            `json:"command"`
	Args       []string          `json:"args,omitempty"`
	EnvVars    map[string]string `json:"env_vars,omitempty"`
	WorkingDir string            `json:"working_dir,omitempty"`
	LogDir     string            `json:"log_dir,omitempty"`
}

// ProcessRecord mirrors the daemon's persisted process description.
type ProcessRecord struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Command    string            `json:"command"`
	Args       []string          `json:"args"`
	EnvVars    map[string]string `json:"env_vars"`
	WorkingDir string            `json:"working_dir"`
	PID        int               `json:"pid,omitempty"`
	Status     string            `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	LogPath    string            `json:"log_path"`
}

// ClearResult mirrors the daemon's clear sweep summary.
type ClearResult struct {
	ClearedCount  int      `json:"cleared_count"`
	ClearedNames  []string `json:"cleared_processes"`
	FailedNames   []string `json:"failed_processes"`
	OperationType string   `json:"operation_type"`
}

// APIError is a non-success response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: %s (status %d)", e.Message, e.StatusCode)
}
