//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

const createNewProcessGroup = 0x00000200

// configureSysProcAttr gives the child its own process group so console
// control events aimed at the launcher do not reach it.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNewProcessGroup}
}
