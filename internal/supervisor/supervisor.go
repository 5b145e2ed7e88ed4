package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/procman/internal/logrotate"
	"github.com/loykin/procman/internal/metrics"
	"github.com/loykin/procman/internal/store"
	"github.com/loykin/procman/internal/tracker"
)

const (
	// graceWindow separates "started and still running" from
	// "started and already exited".
	graceWindow = 200 * time.Millisecond

	// settleDelay is the wait after signaling a pid we hold no handle
	// for, since there is no exit status to collect directly.
	settleDelay = 500 * time.Millisecond

	// terminateWait bounds the graceful-shutdown window before a
	// tracked child is killed outright.
	terminateWait = 5 * time.Second
)

// Spec is the launch description for one supervised process.
type Spec struct {
	Name       string            `json:"name"`
	Command    string            `json:"command"`
	Args       []string          `json:"args"`
	Env        map[string]string `json:"env_vars"`
	WorkingDir string            `json:"working_dir"`
	LogDir     string            `json:"log_dir"`
}

// ClearResult summarizes one clear sweep.
type ClearResult struct {
	ClearedCount  int      `json:"cleared_count"`
	ClearedNames  []string `json:"cleared_processes"`
	FailedNames   []string `json:"failed_processes"`
	OperationType string   `json:"operation_type"`
}

// Supervisor starts, stops and reconciles supervised processes. It owns
// the child tracker and the rotation policy; persistence is delegated
// to the store.
type Supervisor struct {
	store   store.Store
	tracker *tracker.Tracker
	rotator *logrotate.Rotator
	logDir  string
}

func New(st store.Store, tr *tracker.Tracker, rot *logrotate.Rotator, defaultLogDir string) *Supervisor {
	if defaultLogDir == "" {
		defaultLogDir = "./logs"
	}
	return &Supervisor{store: st, tracker: tr, rotator: rot, logDir: defaultLogDir}
}

func (s *Supervisor) Tracker() *tracker.Tracker { return s.tracker }

// StartProcess runs the multi-step start protocol. Any failure after a
// step that created a resource rolls the created resources back in
// reverse order, so a failed start leaves nothing behind.
func (s *Supervisor) StartProcess(ctx context.Context, spec Spec) (store.Record, error) {
	if spec.Name == "" {
		return store.Record{}, &store.InvalidStateError{Reason: "process name is empty"}
	}
	if spec.Command == "" {
		return store.Record{}, &store.InvalidStateError{Reason: "command is empty"}
	}

	exists, err := s.store.ExistsByName(ctx, spec.Name)
	if err != nil {
		return store.Record{}, fmt.Errorf("check existing record: %w", err)
	}
	if exists {
		return store.Record{}, &store.AlreadyExistsError{Name: spec.Name}
	}

	// undo accumulates compensation steps as resources get created and
	// runs them newest-first on failure. Sub-step failures are warnings;
	// the originating error is what the caller sees.
	var undo []func()
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}

	logDir := spec.LogDir
	if logDir == "" {
		logDir = s.logDir
	}
	if _, statErr := os.Stat(logDir); os.IsNotExist(statErr) {
		if err := os.MkdirAll(logDir, 0o750); err != nil {
			return store.Record{}, fmt.Errorf("create log dir %s: %w", logDir, err)
		}
		undo = append(undo, func() {
			// only remove the directory if it is still empty
			if err := os.Remove(logDir); err != nil && !os.IsNotExist(err) {
				slog.Warn("rollback: could not remove log dir", "dir", logDir, "error", err)
			}
		})
	}

	logPath := filepath.Join(logDir, spec.Name+".log")
	if rotated, err := s.rotator.RotateIfNeeded(logPath); err != nil {
		rollback()
		return store.Record{}, fmt.Errorf("rotate existing log %s: %w", logPath, err)
	} else if rotated {
		metrics.IncLogRotation(spec.Name)
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		rollback()
		return store.Record{}, fmt.Errorf("create log file %s: %w", logPath, err)
	}
	undo = append(undo, func() {
		if err := os.Remove(logPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("rollback: could not remove log file", "path", logPath, "error", err)
		}
	})

	cmd := exec.Command(spec.Command, spec.Args...)
	if spec.WorkingDir != "" {
		cmd.Dir = spec.WorkingDir
	}
	env := os.Environ()
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	configureDetached(cmd)

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		rollback()
		return store.Record{}, fmt.Errorf("spawn %s: %w", spec.Command, err)
	}
	// The child holds its own descriptor now.
	_ = logFile.Close()

	handle := s.tracker.Add(cmd)
	undo = append(undo, func() {
		if err := handle.Terminate(terminateWait); err != nil {
			slog.Warn("rollback: could not terminate child", "pid", handle.PID(), "error", err)
		}
		s.tracker.Remove(handle.PID())
	})

	time.Sleep(graceWindow)

	status := store.StatusRunning
	pid := handle.PID()
	if handle.Exited() {
		status = store.StatusStopped
		pid = 0
	}

	now := time.Now().UTC()
	rec := store.Record{
		ID:         uuid.NewString(),
		Name:       spec.Name,
		Command:    spec.Command,
		Args:       spec.Args,
		EnvVars:    spec.Env,
		WorkingDir: spec.WorkingDir,
		PID:        pid,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
		LogPath:    logPath,
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		rollback()
		return store.Record{}, err
	}

	metrics.IncStart(spec.Name)
	slog.Info("process started", "name", spec.Name, "pid", pid, "status", status)
	return rec, nil
}

// StopProcess signals the process to exit and records it as stopped.
// A record without a pid cannot be stopped.
func (s *Supervisor) StopProcess(ctx context.Context, name string) error {
	rec, ok, err := s.store.GetByName(ctx, name)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	if !ok {
		return &store.NotFoundError{Name: name}
	}
	if rec.PID == 0 {
		return &store.InvalidStateError{Reason: fmt.Sprintf("process '%s' has no recorded pid", name)}
	}

	if err := s.stopPid(rec.PID); err != nil {
		return err
	}
	if err := s.store.UpdateStatus(ctx, name, store.StatusStopped, 0); err != nil {
		return fmt.Errorf("record stop: %w", err)
	}
	metrics.IncStop(name)
	slog.Info("process stopped", "name", name, "pid", rec.PID)
	return nil
}

// stopPid terminates a pid, preferring the tracked handle since only it
// can confirm exit rather than guessing via a settle delay.
func (s *Supervisor) stopPid(pid int) error {
	if h, ok := s.tracker.Get(pid); ok {
		if err := h.Terminate(terminateWait); err != nil {
			return fmt.Errorf("terminate pid %d: %w", pid, err)
		}
		s.tracker.Remove(pid)
		return nil
	}
	if !tracker.PidAlive(pid) {
		return nil
	}
	if err := tracker.SignalTerminate(pid); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	time.Sleep(settleDelay)
	return nil
}

// RestartProcess stops the process if it is alive, removes the record
// and starts it again with the same launch spec. The log directory is
// carried over so the rotation history stays with the process.
func (s *Supervisor) RestartProcess(ctx context.Context, name string) (store.Record, error) {
	rec, ok, err := s.store.GetByName(ctx, name)
	if err != nil {
		return store.Record{}, fmt.Errorf("load record: %w", err)
	}
	if !ok {
		return store.Record{}, &store.NotFoundError{Name: name}
	}

	if rec.PID != 0 && tracker.PidAlive(rec.PID) {
		if err := s.stopPid(rec.PID); err != nil {
			return store.Record{}, err
		}
		time.Sleep(settleDelay)
	}

	if _, err := s.store.DeleteByName(ctx, name); err != nil {
		return store.Record{}, fmt.Errorf("remove old record: %w", err)
	}

	newRec, err := s.StartProcess(ctx, Spec{
		Name:       rec.Name,
		Command:    rec.Command,
		Args:       rec.Args,
		Env:        rec.EnvVars,
		WorkingDir: rec.WorkingDir,
		LogDir:     filepath.Dir(rec.LogPath),
	})
	if err != nil {
		return store.Record{}, err
	}
	metrics.IncRestart(name)
	return newRec, nil
}

// DeleteProcess removes the record and, best effort, the log file.
// A live process is stopped first.
func (s *Supervisor) DeleteProcess(ctx context.Context, name string) error {
	rec, ok, err := s.store.GetByName(ctx, name)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	if !ok {
		return &store.NotFoundError{Name: name}
	}

	if rec.PID != 0 {
		if tracker.PidAlive(rec.PID) {
			if err := s.stopPid(rec.PID); err != nil {
				return err
			}
		} else {
			s.tracker.Remove(rec.PID)
		}
	}

	deleted, err := s.store.DeleteByName(ctx, name)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if !deleted {
		return &store.NotFoundError{Name: name}
	}

	if rec.LogPath != "" {
		if err := os.Remove(rec.LogPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("could not remove log file", "path", rec.LogPath, "error", err)
		}
	}
	metrics.IncDelete(name)
	slog.Info("process deleted", "name", name)
	return nil
}

// ClearProcesses sweeps records away. With all unset, only processes
// whose reconciled status is stopped or failed are removed; a failure
// on one process does not abort the sweep.
func (s *Supervisor) ClearProcesses(ctx context.Context, all bool) (ClearResult, error) {
	result := ClearResult{
		ClearedNames:  []string{},
		FailedNames:   []string{},
		OperationType: "stopped/failed processes",
	}
	if all {
		result.OperationType = "all processes"
	}

	records, err := s.ListProcesses(ctx)
	if err != nil {
		return result, err
	}

	for _, rec := range records {
		if !all && rec.Status != store.StatusStopped && rec.Status != store.StatusFailed {
			continue
		}
		if err := s.DeleteProcess(ctx, rec.Name); err != nil {
			slog.Warn("clear: could not remove process", "name", rec.Name, "error", err)
			result.FailedNames = append(result.FailedNames, rec.Name)
			continue
		}
		result.ClearedNames = append(result.ClearedNames, rec.Name)
		result.ClearedCount++
	}
	return result, nil
}

// ListProcesses returns all records with their status reconciled
// against observed liveness.
func (s *Supervisor) ListProcesses(ctx context.Context) ([]store.Record, error) {
	records, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	running := 0
	for i := range records {
		records[i] = s.reconcile(ctx, records[i])
		if records[i].Status == store.StatusRunning {
			running++
		}
	}
	metrics.SetRunningProcesses(running)
	return records, nil
}

// GetProcessStatus returns one record with its status reconciled.
func (s *Supervisor) GetProcessStatus(ctx context.Context, name string) (store.Record, error) {
	rec, ok, err := s.store.GetByName(ctx, name)
	if err != nil {
		return store.Record{}, fmt.Errorf("load record: %w", err)
	}
	if !ok {
		return store.Record{}, &store.NotFoundError{Name: name}
	}
	return s.reconcile(ctx, rec), nil
}

// reconcile probes liveness and persists the corrected status when it
// changed. Probe failures read as "not running", never as errors.
func (s *Supervisor) reconcile(ctx context.Context, rec store.Record) store.Record {
	alive := rec.PID != 0 && s.pidAlive(rec.PID)
	next := nextStatus(rec.Status, rec.PID != 0, alive)
	if next == rec.Status {
		return rec
	}
	pid := rec.PID
	if next != store.StatusRunning {
		pid = 0
	}
	if err := s.store.UpdateStatus(ctx, rec.Name, next, pid); err != nil {
		slog.Warn("could not persist reconciled status", "name", rec.Name, "status", next, "error", err)
	}
	rec.Status = next
	rec.PID = pid
	rec.UpdatedAt = time.Now().UTC()
	return rec
}

// pidAlive prefers the tracked handle, which distinguishes our exited
// child from an unrelated process that took over the pid.
func (s *Supervisor) pidAlive(pid int) bool {
	if h, ok := s.tracker.Get(pid); ok {
		return !h.Exited()
	}
	return tracker.PidAlive(pid)
}
