//go:build !windows

package process

import (
	"errors"
	"os"
	"syscall"
)

// killTree sends SIGKILL to the process group led by p. The group id equals
// the child's pid because of Setpgid. A group that is already gone is not an
// error.
func killTree(p *os.Process) error {
	err := syscall.Kill(-p.Pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	// Fall back to the leader alone, e.g. when the group could not be created.
	if kerr := p.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
		return kerr
	}
	return nil
}
