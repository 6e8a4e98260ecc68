//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// setProcGroup puts the child in a new session so the supervisor can
// terminate the whole process group it spawns (shells, wrapper
// scripts) instead of only the direct child, per §9's design note.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// terminateGroup signals the negative pid (the process group) so any
// children the plugin itself forked die along with it.
func terminateGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}
