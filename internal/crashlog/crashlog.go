// Package crashlog persists the console of a server that exited unexpectedly.
package crashlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const suffix = "-latest.log"

// FileName derives the crash log file name from a server's display name.
// Every character outside [A-Za-z0-9._-] becomes an underscore, so spaces and
// path separators can never escape the crash log directory.
func FileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" || strings.Trim(s, ".") == "" {
		s = "server"
	}
	return s + suffix
}

// Write replaces <dir>/<FileName(name)> with console and returns the path.
// The content is written to a temporary file first and renamed into place, so
// a reader never observes a partially written log.
func Write(dir, name, console string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create crash log dir: %w", err)
	}
	path := filepath.Join(dir, FileName(name))
	tmp, err := os.CreateTemp(dir, ".crashlog-*")
	if err != nil {
		return "", fmt.Errorf("create temp crash log: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(console); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write crash log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close crash log: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("chmod crash log: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename crash log: %w", err)
	}
	return path, nil
}
