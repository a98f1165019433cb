package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrScriptNotFound is returned when neither the configured launch script nor
// its platform counterpart exists.
var ErrScriptNotFound = errors.New("script not found")

const (
	extShell = ".sh"
	extBatch = ".bat"
)

// Resolve locates the launch script for the current platform.
func Resolve(path string) (string, error) {
	return ResolveFor(runtime.GOOS, path)
}

// ResolveFor locates the launch script as it would be resolved on goos.
// An existing path is returned verbatim. Otherwise a missing .sh falls back to
// the .bat sibling on windows, and a missing .bat falls back to the .sh
// sibling everywhere else. No other fallback is attempted.
func ResolveFor(goos, path string) (string, error) {
	if exists(path) {
		return path, nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	var alt string
	switch {
	case goos == "windows" && ext == extShell:
		alt = stem + extBatch
	case goos != "windows" && ext == extBatch:
		alt = stem + extShell
	}
	if alt != "" && exists(alt) {
		return alt, nil
	}
	return "", fmt.Errorf("%w: %s", ErrScriptNotFound, path)
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
