package supervisor

import "github.com/loykin/procman/internal/store"

// nextStatus is the passive-reconciliation transition function.
// Failed is sticky: only an explicit start or restart moves a process
// out of it. A record claiming Running without a pid is inconsistent;
// it passes through Unknown and re-evaluates to Failed, since a
// pid-less process cannot be running. Stopped records are at rest and
// are left alone.
func nextStatus(old store.Status, hasPid, alive bool) store.Status {
	if old == store.StatusFailed {
		return store.StatusFailed
	}
	if !hasPid {
		switch old {
		case store.StatusRunning, store.StatusUnknown:
			return store.StatusFailed
		default:
			return old
		}
	}
	if alive {
		return store.StatusRunning
	}
	return store.StatusStopped
}
