//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
)

// killTree terminates p and all of its descendants with taskkill. When
// taskkill is unavailable or fails the leader is killed directly.
func killTree(p *os.Process) error {
	if err := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(p.Pid)).Run(); err == nil {
		return nil
	}
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
