//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// configureDetached starts the child in a new session so it is
// decoupled from this process's group and terminal and survives
// supervisor exit.
func configureDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
