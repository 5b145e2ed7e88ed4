package store

import (
	"context"
	"time"
)

// Status is the persisted lifecycle state of a supervised process.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusFailed  Status = "failed"
	StatusUnknown Status = "unknown"
)

// ParseStatus maps the serialized form back to a Status. Anything
// unrecognized is treated as unknown rather than failing the read.
func ParseStatus(s string) Status {
	switch s {
	case string(StatusRunning):
		return StatusRunning
	case string(StatusStopped):
		return StatusStopped
	case string(StatusFailed):
		return StatusFailed
	default:
		return StatusUnknown
	}
}

// Record is the durable description of one supervised process.
// Name is unique across all records; ID is assigned once at creation and
// never reused. PID is zero when no spawn attempt currently owns a handle.
type Record struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Command    string            `json:"command"`
	Args       []string          `json:"args"`
	EnvVars    map[string]string `json:"env_vars"`
	WorkingDir string            `json:"working_dir"`
	PID        int               `json:"pid,omitempty"`
	Status     Status            `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	LogPath    string            `json:"log_path"`
}

// Store is the persistence contract consumed by the supervisor.
// Implementations must enforce name uniqueness on Insert and return
// records from ListAll and GetByStatus ordered most-recently-created first.
type Store interface {
	EnsureSchema(ctx context.Context) error
	ExistsByName(ctx context.Context, name string) (bool, error)
	Insert(ctx context.Context, rec Record) error
	GetByName(ctx context.Context, name string) (Record, bool, error)
	GetByStatus(ctx context.Context, statuses []Status) ([]Record, error)
	ListAll(ctx context.Context) ([]Record, error)
	UpdateStatus(ctx context.Context, name string, status Status, pid int) error
	DeleteByName(ctx context.Context, name string) (bool, error)
	// DeleteByID exists for start-protocol rollback, where the record may
	// have been inserted but a rename under the same name must not be hit.
	DeleteByID(ctx context.Context, id string) (bool, error)
	Close() error
}

// FullStore is what the backends actually provide: process records and
// API tokens live in the same database.
type FullStore interface {
	Store
	TokenStore
}

// TokenStore persists API bearer tokens alongside the process records.
type TokenStore interface {
	InsertToken(ctx context.Context, tok Token) error
	GetToken(ctx context.Context, value string) (Token, bool, error)
	ListTokens(ctx context.Context) ([]Token, error)
	SetTokenActive(ctx context.Context, value string, active bool) (bool, error)
}

// Token is an API bearer credential. ExpiresAt is zero for non-expiring
// tokens. Revocation flips IsActive rather than deleting the row so the
// operator keeps an audit trail.
type Token struct {
	ID        string    `json:"id"`
	Value     string    `json:"token"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	IsActive  bool      `json:"is_active"`
}
