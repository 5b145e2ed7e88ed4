package procman

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/procman/internal/auth"
	cfg "github.com/loykin/procman/internal/config"
	"github.com/loykin/procman/internal/logrotate"
	"github.com/loykin/procman/internal/metrics"
	iapi "github.com/loykin/procman/internal/server"
	"github.com/loykin/procman/internal/store"
	"github.com/loykin/procman/internal/store/factory"
	"github.com/loykin/procman/internal/supervisor"
	"github.com/loykin/procman/internal/tracker"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = supervisor.Spec

type Record = store.Record

type Status = store.Status

type ClearResult = supervisor.ClearResult

type Token = store.Token

type Config = cfg.Config

const (
	StatusRunning = store.StatusRunning
	StatusStopped = store.StatusStopped
	StatusFailed  = store.StatusFailed
	StatusUnknown = store.StatusUnknown
)

// LoadConfig reads the TOML configuration at path, or defaults when
// path is empty.
func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

// Manager is a thin facade over the internal supervisor and its
// collaborators. It provides a stable public API for embedding.
type Manager struct {
	sup  *supervisor.Supervisor
	st   store.FullStore
	auth *auth.Service
}

// New opens the configured store and wires up a supervisor.
func New(ctx context.Context, c Config) (*Manager, error) {
	st, err := factory.NewFromDSN(c.StoreDSN())
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	sup := supervisor.New(st, tracker.New(), logrotate.New(c.Rotate), c.Log.Dir)
	return &Manager{sup: sup, st: st, auth: auth.NewService(st)}, nil
}

func (m *Manager) Close() error { return m.st.Close() }

func (m *Manager) Start(ctx context.Context, s Spec) (Record, error) {
	return m.sup.StartProcess(ctx, s)
}
func (m *Manager) Stop(ctx context.Context, name string) error {
	return m.sup.StopProcess(ctx, name)
}
func (m *Manager) Restart(ctx context.Context, name string) (Record, error) {
	return m.sup.RestartProcess(ctx, name)
}
func (m *Manager) Delete(ctx context.Context, name string) error {
	return m.sup.DeleteProcess(ctx, name)
}
func (m *Manager) List(ctx context.Context) ([]Record, error) {
	return m.sup.ListProcesses(ctx)
}
func (m *Manager) Status(ctx context.Context, name string) (Record, error) {
	return m.sup.GetProcessStatus(ctx, name)
}
func (m *Manager) Logs(ctx context.Context, name string, maxLines int) (string, error) {
	return m.sup.GetProcessLogs(ctx, name, maxLines)
}
func (m *Manager) RotatedLogs(ctx context.Context, name string) ([]string, error) {
	return m.sup.GetRotatedLogs(ctx, name)
}
func (m *Manager) RotateLogs(ctx context.Context, name string) error {
	return m.sup.RotateProcessLogs(ctx, name)
}
func (m *Manager) Clear(ctx context.Context, all bool) (ClearResult, error) {
	return m.sup.ClearProcesses(ctx, all)
}

// Token management for the HTTP API.

func (m *Manager) GenerateToken(ctx context.Context, name string, expiresInDays int) (Token, error) {
	return m.auth.Generate(ctx, name, expiresInDays)
}
func (m *Manager) ListTokens(ctx context.Context) ([]Token, error) {
	return m.auth.List(ctx)
}
func (m *Manager) RevokeToken(ctx context.Context, value string) (bool, error) {
	return m.auth.Revoke(ctx, value)
}

// StartReaper launches background collection of exited children and
// returns a function that stops it.
func (m *Manager) StartReaper(c Config) (stop func()) {
	tr := m.sup.Tracker()
	tr.StartReaper(c.ReapInterval())
	return tr.StopReaper
}

// NewHTTPServer builds the authenticated API server for this manager.
func NewHTTPServer(m *Manager, c Config) *http.Server {
	rt := iapi.NewRouter(m.sup, m.auth, c.Server.BasePath)
	return iapi.NewServer(c.Server.Listen, rt, c.Server.Metrics)
}

// RegisterMetrics registers the supervisor metrics with the default
// Prometheus registry. Safe to call more than once.
func RegisterMetrics() error {
	return metrics.Register(prometheus.DefaultRegisterer)
}

// MetricsHandler serves the default Prometheus gatherer.
func MetricsHandler() http.Handler { return metrics.Handler() }
