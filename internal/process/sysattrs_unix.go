//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the child in a new process group so the whole
// tree started by the launch script can be signalled at once.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
