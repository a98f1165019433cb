//go:build !windows

package script

import "os/exec"

// Command returns the command that runs a resolved launch script on Unix systems.
// Scripts are handed to /bin/sh so they need not carry the executable bit.
func Command(path string) *exec.Cmd {
	// #nosec G204
	return exec.Command("/bin/sh", path)
}
