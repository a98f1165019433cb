package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// daemonize re-executes the current command in the background without the
// --daemonize flag and exits the parent.
func daemonize(pidFile string, logFile string) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// #nosec 204
	cmd := exec.Command(executable, daemonArgs(os.Args[1:])...)
	configureDaemonAttrs(cmd)
	cmd.Stdin = nil
	if logFile != "" {
		// #nosec 304
		logF, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = logF.Close() }()
		cmd.Stdout = logF
		cmd.Stderr = logF
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}
	fmt.Printf("Daemon started with PID %d\n", cmd.Process.Pid)
	os.Exit(0)
	return nil
}

// daemonArgs drops the daemonize flag; the child keeps --pidfile and writes
// its own pid.
func daemonArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "--daemonize" || strings.HasPrefix(arg, "--daemonize=") {
			continue
		}
		out = append(out, arg)
	}
	return out
}

func currentPID() int { return os.Getpid() }

// writePidFile writes the daemon PID to a file
func writePidFile(pidFile string, pid int) error {
	// #nosec 302
	return os.WriteFile(pidFile, []byte(strconv.Itoa(pid)), 0o644)
}

// removePidFile removes the PID file
func removePidFile(pidFile string) error {
	if pidFile == "" {
		return nil
	}
	return os.Remove(pidFile)
}
