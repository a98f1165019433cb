//go:build windows

package server

import (
	"path/filepath"
	"testing"
)

// getPlatformAbsPath returns a valid absolute path for Windows systems
func getPlatformAbsPath() string {
	return filepath.Join("C:\\", "tmp", "x")
}

func addPlatformSpecificSeeds(f *testing.F) {
	f.Add(`C:\srv\game`)
	f.Add(`C:\srv\..\windows`)
}
