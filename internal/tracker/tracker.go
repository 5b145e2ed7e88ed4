package tracker

import (
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

const DefaultReapInterval = 5 * time.Second

// Handle owns one spawned child. A goroutine waits on the child so the
// exit status is collected as soon as it dies, regardless of when the
// reaper next runs.
type Handle struct {
	pid  int
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	waitErr error
}

func newHandle(cmd *exec.Cmd) *Handle {
	h := &Handle{
		pid:  cmd.Process.Pid,
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.waitErr = err
		h.mu.Unlock()
		close(h.done)
	}()
	return h
}

func (h *Handle) PID() int { return h.pid }

// Exited reports whether the child has been waited on.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// WaitExit blocks until the child exits or the timeout elapses.
func (h *Handle) WaitExit(timeout time.Duration) bool {
	if timeout <= 0 {
		<-h.done
		return true
	}
	select {
	case <-h.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// ExitErr returns the wait error once the child has exited, nil otherwise.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitErr
}

// Terminate asks the child to exit and escalates to a kill when it does
// not go away within wait.
func (h *Handle) Terminate(wait time.Duration) error {
	if h.Exited() {
		return nil
	}
	if err := terminateProcess(h.pid); err != nil {
		// The child may have died between the check and the signal.
		if h.Exited() {
			return nil
		}
		return err
	}
	if h.WaitExit(wait) {
		return nil
	}
	if err := killProcess(h.pid); err != nil && !h.Exited() {
		return err
	}
	h.WaitExit(2 * time.Second)
	return nil
}

// SignalTerminate asks an arbitrary pid to exit. Used for processes
// that predate this supervisor instance and so have no tracked handle.
func SignalTerminate(pid int) error {
	return terminateProcess(pid)
}

// Tracker maps pids to handles for children this daemon spawned.
// Entries for exited children linger until Reap removes them, so a
// status probe between exit and reap still finds the handle.
type Tracker struct {
	mu       sync.Mutex
	children map[int]*Handle

	reapStop chan struct{}
	reapDone chan struct{}
}

func New() *Tracker {
	return &Tracker{children: make(map[int]*Handle)}
}

// Add registers a started command and begins waiting on it.
// cmd.Start must have succeeded before Add is called.
func (t *Tracker) Add(cmd *exec.Cmd) *Handle {
	h := newHandle(cmd)
	t.mu.Lock()
	t.children[h.pid] = h
	t.mu.Unlock()
	return h
}

// Get returns the handle for pid if this daemon spawned it.
func (t *Tracker) Get(pid int) (*Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.children[pid]
	return h, ok
}

// Remove drops the handle for pid without signaling the child.
func (t *Tracker) Remove(pid int) {
	t.mu.Lock()
	delete(t.children, pid)
	t.mu.Unlock()
}

// Len reports the number of tracked children, exited or not.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.children)
}

// Reap removes handles whose children have exited and returns how many
// were dropped.
func (t *Tracker) Reap() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for pid, h := range t.children {
		if h.Exited() {
			delete(t.children, pid)
			n++
		}
	}
	return n
}

// StartReaper runs Reap on a fixed interval until StopReaper is called.
func (t *Tracker) StartReaper(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	t.mu.Lock()
	if t.reapStop != nil {
		t.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	t.reapStop = stop
	t.reapDone = done
	t.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := t.Reap(); n > 0 {
					slog.Debug("reaped exited children", "count", n)
				}
			case <-stop:
				return
			}
		}
	}()
}

// StopReaper stops the background reaper and waits for it to finish.
func (t *Tracker) StopReaper() {
	t.mu.Lock()
	stop, done := t.reapStop, t.reapDone
	t.reapStop, t.reapDone = nil, nil
	t.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
