//go:build windows

package script

import "os/exec"

// Command returns the command that runs a resolved launch script on Windows systems.
func Command(path string) *exec.Cmd {
	// #nosec G204
	return exec.Command("cmd", "/c", path)
}
