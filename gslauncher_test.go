//go:build !windows

package gslauncher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/gslauncher/pkg/client"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "run.sh")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o755))
	return p
}

func TestSupervisorFacade(t *testing.T) {
	s := New(WithStopDefaults("stop", 2*time.Second), WithCrashLogDir(t.TempDir()))
	defer func() { _ = s.Close() }()

	script := writeScript(t, "echo up\nread line\necho \"got:$line\"\nexit 3\n")
	var lines []string
	done := make(chan struct{})
	require.NoError(t, s.Start(Launch{ID: "a", Name: "A", Script: script, OnOutput: func(_ string, line string) {
		lines = append(lines, line)
		if line == ExitMarker(3) {
			close(done)
		}
	}}))
	assert.True(t, s.IsRunning("a"))
	require.True(t, s.SendCommand("a", "hi"))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("no exit marker")
	}
	assert.Equal(t, StateCrashed, s.State("a"))
	assert.Equal(t, []string{"up", "got:hi", ExitMarker(3)}, lines)
	assert.True(t, s.Stop("a", "stop", time.Second))
	require.NoError(t, s.Remove("a"))
	assert.Empty(t, s.List())
}

func TestHTTPServerFacade(t *testing.T) {
	dir := t.TempDir()
	st, err := OpenStore(filepath.Join(dir, "servers.json"), nil)
	require.NoError(t, err)
	s := New()
	defer func() { _ = s.Close() }()

	srv, err := NewHTTPServer("127.0.0.1:0", "/api", s, st, nil)
	require.NoError(t, err)
	defer func() { _ = srv.Close() }()

	cl := client.New(client.Config{BaseURL: "http://" + srv.Addr + "/api", Timeout: 5 * time.Second})
	ctx := context.Background()
	require.True(t, cl.IsReachable(ctx))
	added, err := cl.Add(ctx, client.NewServer{Name: "x", StartScript: writeScript(t, "sleep 5\n"), ForceKillOnStop: true})
	require.NoError(t, err)
	rec, err := st.Get(added.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", rec.Name)
}
