//go:build !windows

package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/gslauncher/internal/env"
	"github.com/loykin/gslauncher/internal/history"
	"github.com/loykin/gslauncher/internal/script"
)

const (
	// reads stdin and exits cleanly on "stop"; echoes everything else
	cooperative = `while read line; do
  if [ "$line" = "stop" ]; then echo "bye"; exit 0; fi
  echo "cmd:$line"
done
`
	// never reads stdin
	stubborn = `echo "up"
while true; do sleep 0.1; done
`
)

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) on(_ string, line string) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
}

func (r *lineRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *lineRecorder) count(s string) int {
	n := 0
	for _, l := range r.snapshot() {
		if l == s {
			n++
		}
	}
	return n
}

type memSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (m *memSink) Send(_ context.Context, e history.Event) error {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	return nil
}

func (m *memSink) types() []history.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]history.EventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o755))
	return p
}

func newTestSupervisor(t *testing.T, opts ...Option) (*Supervisor, string) {
	t.Helper()
	crashDir := t.TempDir()
	opts = append([]Option{
		WithCrashLogDir(crashDir),
		WithStopDefaults("stop", 2*time.Second),
		WithKillSettle(2 * time.Second),
		WithDrainTimeout(500 * time.Millisecond),
	}, opts...)
	s := New(opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s, crashDir
}

func TestUnknownID(t *testing.T) {
	s, _ := newTestSupervisor(t)
	assert.False(t, s.IsRunning("nope"))
	_, ok := s.Console("nope")
	assert.False(t, ok)
	assert.Equal(t, StateNotRunning, s.State("nope"))
	assert.True(t, s.Stop("nope", "stop", time.Second))
	assert.False(t, s.SendCommand("nope", "hi"))
	assert.ErrorIs(t, s.Remove("nope"), ErrNotFound)
	_, ok = s.Status("nope")
	assert.False(t, ok)
}

func TestStartScriptNotFound(t *testing.T) {
	s, _ := newTestSupervisor(t)
	err := s.Start(Launch{ID: "a", Name: "A", Script: filepath.Join(t.TempDir(), "missing.sh")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, script.ErrScriptNotFound))
	assert.False(t, s.IsRunning("a"))
	assert.Equal(t, StateNotRunning, s.State("a"))
}

func TestStartRunsUntilGracefulStop(t *testing.T) {
	dir := t.TempDir()
	sink := &memSink{}
	s, crashDir := newTestSupervisor(t, WithHistory(sink))
	rec := &lineRecorder{}

	require.NoError(t, s.Start(Launch{ID: "a", Name: "Alpha", Script: writeScript(t, dir, "run.sh", cooperative), OnOutput: rec.on}))
	assert.True(t, s.IsRunning("a"))
	assert.Equal(t, StateRunning, s.State("a"))

	assert.True(t, s.Stop("a", "stop", 5*time.Second))
	assert.False(t, s.IsRunning("a"))

	require.Eventually(t, func() bool { return rec.count("bye") == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return s.State("a") == StateStopped }, 2*time.Second, 10*time.Millisecond)

	for _, l := range rec.snapshot() {
		assert.NotContains(t, l, "[PROCESS EXITED]")
	}
	_, err := os.Stat(filepath.Join(crashDir, "Alpha-latest.log"))
	assert.True(t, os.IsNotExist(err), "intentional stop must not write a crash log")

	require.Eventually(t, func() bool {
		ts := sink.types()
		return len(ts) == 2 && ts[0] == history.EventStart && ts[1] == history.EventStop
	}, 3*time.Second, 10*time.Millisecond)
}

func TestDuplicateStartIsNoop(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSupervisor(t)
	l := Launch{ID: "a", Name: "A", Script: writeScript(t, dir, "run.sh", stubborn)}
	require.NoError(t, s.Start(l))
	st, _ := s.Status("a")
	require.NoError(t, s.Start(l))
	st2, _ := s.Status("a")
	assert.Equal(t, st.PID, st2.PID)
	assert.Len(t, s.List(), 1)
	assert.True(t, s.Stop("a", "stop", 0))
}

func TestConcurrentStartSpawnsOnce(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSupervisor(t)
	l := Launch{ID: "a", Script: writeScript(t, dir, "run.sh", stubborn)}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Start(l))
		}()
	}
	wg.Wait()
	assert.Len(t, s.PIDs(), 1)
	assert.True(t, s.Stop("a", "", 0))
}

func TestStopZeroTimeoutKillsImmediately(t *testing.T) {
	dir := t.TempDir()
	sink := &memSink{}
	s, crashDir := newTestSupervisor(t, WithHistory(sink))
	require.NoError(t, s.Start(Launch{ID: "a", Name: "Stub", Script: writeScript(t, dir, "run.sh", stubborn)}))

	begin := time.Now()
	assert.True(t, s.Stop("a", "stop", 0))
	assert.Less(t, time.Since(begin), 1500*time.Millisecond)
	assert.False(t, s.IsRunning("a"))
	require.Eventually(t, func() bool { return s.State("a") == StateKilled }, 2*time.Second, 10*time.Millisecond)

	st, ok := s.Status("a")
	require.True(t, ok)
	require.NotNil(t, st.ExitCode)
	assert.Equal(t, -9, *st.ExitCode)

	_, err := os.Stat(filepath.Join(crashDir, "Stub-latest.log"))
	assert.True(t, os.IsNotExist(err))
	require.Eventually(t, func() bool {
		ts := sink.types()
		return len(ts) == 2 && ts[1] == history.EventKill
	}, 3*time.Second, 10*time.Millisecond)
}

func TestStopEscalatesAfterTimeout(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSupervisor(t)
	require.NoError(t, s.Start(Launch{ID: "a", Script: writeScript(t, dir, "run.sh", stubborn)}))

	begin := time.Now()
	assert.True(t, s.Stop("a", "stop", 300*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(begin), 300*time.Millisecond)
	require.Eventually(t, func() bool { return s.State("a") == StateKilled }, 2*time.Second, 10*time.Millisecond)
}

func TestStopKillsProcessGroup(t *testing.T) {
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("requires procfs")
	}
	dir := t.TempDir()
	s, _ := newTestSupervisor(t)
	pidFile := filepath.Join(dir, "child.pid")
	body := "sleep 30 &\necho $! > " + pidFile + "\nwait\n"
	require.NoError(t, s.Start(Launch{ID: "a", Script: writeScript(t, dir, "run.sh", body)}))

	var childPID string
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(pidFile)
		childPID = strings.TrimSpace(string(b))
		return err == nil && childPID != ""
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, s.Stop("a", "", 0))
	require.Eventually(t, func() bool { return !procAlive(childPID) }, 3*time.Second, 20*time.Millisecond,
		"grandchild should die with the group")
}

// procAlive treats zombies as dead since an orphaned child may wait for its
// new parent to reap it.
func procAlive(pid string) bool {
	b, err := os.ReadFile("/proc/" + pid + "/stat")
	if err != nil {
		return false
	}
	// state follows the parenthesised command name
	fields := strings.Fields(string(b[strings.LastIndexByte(string(b), ')')+1:]))
	return len(fields) > 0 && fields[0] != "Z" && fields[0] != "X"
}

func TestStopAlreadyExitedReturnsTrue(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSupervisor(t)
	require.NoError(t, s.Start(Launch{ID: "a", Script: writeScript(t, dir, "run.sh", "exit 0\n")}))
	require.Eventually(t, func() bool { return !s.IsRunning("a") }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, s.Stop("a", "stop", time.Second))
	assert.Equal(t, StateCrashed, s.State("a"))
}

func TestLineOrderWithinStream(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSupervisor(t)
	rec := &lineRecorder{}
	body := "printf 'a\\nb\\nc\\n'\nread x\n"
	require.NoError(t, s.Start(Launch{ID: "a", Script: writeScript(t, dir, "run.sh", body), OnOutput: rec.on}))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, rec.snapshot())
	console, ok := s.Console("a")
	require.True(t, ok)
	assert.Equal(t, "a\nb\nc", console)
	assert.True(t, s.Stop("a", "go", time.Second))
}

func TestUnexpectedExitWritesMarkerAndCrashLog(t *testing.T) {
	dir := t.TempDir()
	sink := &memSink{}
	s, crashDir := newTestSupervisor(t, WithHistory(sink))
	rec := &lineRecorder{}
	body := "echo hello\necho oops 1>&2\nexit 3\n"
	require.NoError(t, s.Start(Launch{ID: "a", Name: "My Server", Script: writeScript(t, dir, "run.sh", body), OnOutput: rec.on}))

	marker := ExitMarker(3)
	require.Eventually(t, func() bool { return rec.count(marker) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "[PROCESS EXITED] Return code 3", marker)

	lines := rec.snapshot()
	assert.Equal(t, marker, lines[len(lines)-1], "marker is delivered after all output")
	assert.Equal(t, StateCrashed, s.State("a"))

	console, ok := s.Console("a")
	require.True(t, ok, "console stays queryable after a crash")
	assert.NotContains(t, console, "[PROCESS EXITED]")

	logPath := filepath.Join(crashDir, "My_Server-latest.log")
	require.Eventually(t, func() bool {
		_, err := os.Stat(logPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	b, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, console, string(b))
	assert.Contains(t, string(b), "hello")
	assert.Contains(t, string(b), "oops")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, rec.count(marker), "exactly one marker")
	require.Eventually(t, func() bool {
		ts := sink.types()
		return len(ts) == 2 && ts[1] == history.EventCrash
	}, 3*time.Second, 10*time.Millisecond)
}

func TestCrashLogFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	s, _ := newTestSupervisor(t, WithCrashLogDir(blocker))
	rec := &lineRecorder{}
	require.NoError(t, s.Start(Launch{ID: "a", Script: writeScript(t, dir, "run.sh", "exit 1\n"), OnOutput: rec.on}))
	require.Eventually(t, func() bool { return rec.count(ExitMarker(1)) == 1 }, 3*time.Second, 10*time.Millisecond)

	// the supervisor keeps working
	require.NoError(t, s.Start(Launch{ID: "b", Script: writeScript(t, dir, "other.sh", stubborn)}))
	assert.True(t, s.IsRunning("b"))
	assert.True(t, s.Stop("b", "", 0))
}

func TestCallbackPanicDoesNotStopSupervision(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSupervisor(t)
	body := "echo one\necho two\nread x\n"
	require.NoError(t, s.Start(Launch{ID: "a", Script: writeScript(t, dir, "run.sh", body), OnOutput: func(string, string) { panic("boom") }}))
	require.Eventually(t, func() bool {
		c, _ := s.Console("a")
		return c == "one\ntwo"
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, s.SendCommand("a", "x"))
	require.Eventually(t, func() bool { return !s.IsRunning("a") }, 2*time.Second, 10*time.Millisecond)
}

func TestSendCommand(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSupervisor(t)
	rec := &lineRecorder{}
	require.NoError(t, s.Start(Launch{ID: "a", Script: writeScript(t, dir, "run.sh", cooperative), OnOutput: rec.on}))

	assert.True(t, s.SendCommand("a", "say hi"))
	require.Eventually(t, func() bool { return rec.count("cmd:say hi") == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.True(t, s.SendCommand("a", "stop"))
	require.Eventually(t, func() bool { return !s.IsRunning("a") }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, s.SendCommand("a", "after exit"))
}

func TestRestartReplacesStubbornProcess(t *testing.T) {
	dir := t.TempDir()
	sink := &memSink{}
	s, crashDir := newTestSupervisor(t, WithStopDefaults("stop", 200*time.Millisecond), WithHistory(sink))
	l := Launch{ID: "a", Name: "Stub", Script: writeScript(t, dir, "run.sh", stubborn)}
	require.NoError(t, s.Start(l))
	before, _ := s.Status("a")

	require.NoError(t, s.Restart(l))
	require.Eventually(t, func() bool { return s.IsRunning("a") }, 2*time.Second, 10*time.Millisecond)
	after, _ := s.Status("a")
	assert.NotEqual(t, before.PID, after.PID)
	assert.Equal(t, StateRunning, after.State)

	_, err := os.Stat(filepath.Join(crashDir, "Stub-latest.log"))
	assert.True(t, os.IsNotExist(err), "restart must not look like a crash")

	require.Eventually(t, func() bool {
		c, _ := s.Console("a")
		return c == "up"
	}, 2*time.Second, 10*time.Millisecond, "fresh handle starts with an empty console")

	require.Eventually(t, func() bool {
		ts := sink.types()
		has := map[history.EventType]int{}
		for _, e := range ts {
			has[e]++
		}
		return has[history.EventStart] == 2 && has[history.EventRestart] == 1 && has[history.EventKill] == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.True(t, s.Stop("a", "", 0))
}

func TestRestartNeverStarted(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSupervisor(t)
	require.NoError(t, s.Restart(Launch{ID: "a", Script: writeScript(t, dir, "run.sh", stubborn)}))
	assert.True(t, s.IsRunning("a"))
	assert.True(t, s.Stop("a", "", 0))
}

func TestRestartPropagatesScriptNotFound(t *testing.T) {
	s, _ := newTestSupervisor(t)
	err := s.Restart(Launch{ID: "a", Script: "/definitely/missing.sh"})
	assert.ErrorIs(t, err, script.ErrScriptNotFound)
}

func TestEnvOverridesAndDefaultWorkDir(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSupervisor(t, WithBaseEnv([]string{"PATH=" + os.Getenv("PATH"), "KEEP=base", "FOO=base"}))
	body := "pwd\necho \"$FOO $KEEP\"\nread x\n"
	require.NoError(t, s.Start(Launch{ID: "a", Script: writeScript(t, dir, "run.sh", body), Env: map[string]string{"FOO": "over"}}))

	wantDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		c, _ := s.Console("a")
		return strings.Count(c, "\n") == 1
	}, 2*time.Second, 10*time.Millisecond)
	c, _ := s.Console("a")
	parts := strings.Split(c, "\n")
	gotDir, err := filepath.EvalSymlinks(parts[0])
	require.NoError(t, err)
	assert.Equal(t, wantDir, gotDir)
	assert.Equal(t, "over base", parts[1])
	assert.True(t, s.Stop("a", "x", time.Second))
}

func TestExplicitWorkDir(t *testing.T) {
	dir := t.TempDir()
	work := t.TempDir()
	s, _ := newTestSupervisor(t)
	require.NoError(t, s.Start(Launch{ID: "a", Script: writeScript(t, dir, "run.sh", "pwd\nread x\n"), WorkDir: work}))
	want, _ := filepath.EvalSymlinks(work)
	require.Eventually(t, func() bool {
		c, _ := s.Console("a")
		got, _ := filepath.EvalSymlinks(c)
		return c != "" && got == want
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, s.Stop("a", "x", time.Second))
}

func TestBatFallsBackToShell(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSupervisor(t)
	writeScript(t, dir, "start.sh", "echo from-sh\nread x\n")
	require.NoError(t, s.Start(Launch{ID: "a", Script: filepath.Join(dir, "start.bat")}))
	require.Eventually(t, func() bool {
		c, _ := s.Console("a")
		return c == "from-sh"
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, s.Stop("a", "x", time.Second))
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSupervisor(t)
	require.NoError(t, s.Start(Launch{ID: "a", Script: writeScript(t, dir, "run.sh", stubborn)}))
	assert.ErrorIs(t, s.Remove("a"), ErrRunning)
	assert.True(t, s.Stop("a", "", 0))
	require.NoError(t, s.Remove("a"))
	_, ok := s.Console("a")
	assert.False(t, ok)
	assert.Equal(t, StateNotRunning, s.State("a"))
}

func TestStartAfterExitReplacesHandle(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSupervisor(t)
	p := writeScript(t, dir, "run.sh", "echo once\n")
	require.NoError(t, s.Start(Launch{ID: "a", Script: p}))
	require.Eventually(t, func() bool { return s.State("a") == StateCrashed }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Start(Launch{ID: "a", Script: writeScript(t, dir, "run2.sh", stubborn)}))
	assert.True(t, s.IsRunning("a"))
	assert.True(t, s.Stop("a", "", 0))
}

func TestStopAllAndClose(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSupervisor(t)
	require.NoError(t, s.Start(Launch{ID: "a", Script: writeScript(t, dir, "a.sh", cooperative)}))
	require.NoError(t, s.Start(Launch{ID: "b", Script: writeScript(t, dir, "b.sh", stubborn)}))
	require.NoError(t, s.Start(Launch{ID: "c", Script: writeScript(t, dir, "c.sh", stubborn)}))

	begin := time.Now()
	require.NoError(t, s.StopAll("stop", 300*time.Millisecond))
	assert.Less(t, time.Since(begin), 2*time.Second, "servers are stopped concurrently")
	assert.Empty(t, s.PIDs())

	require.Eventually(t, func() bool { return s.State("a") == StateStopped }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return s.State("b") == StateKilled }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Start(Launch{ID: "d", Script: writeScript(t, dir, "d.sh", stubborn)}), ErrClosed)
}

func TestListAndStatus(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSupervisor(t)
	require.NoError(t, s.Start(Launch{ID: "b", Name: "Bravo", Script: writeScript(t, dir, "b.sh", stubborn)}))
	require.NoError(t, s.Start(Launch{ID: "a", Script: writeScript(t, dir, "a.sh", "exit 2\n")}))
	require.Eventually(t, func() bool { return s.State("a") == StateCrashed }, 2*time.Second, 10*time.Millisecond)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "a", list[0].Name, "name defaults to id")
	require.NotNil(t, list[0].ExitCode)
	assert.Equal(t, 2, *list[0].ExitCode)
	assert.NotNil(t, list[0].StoppedAt)
	assert.Equal(t, "Bravo", list[1].Name)
	assert.Equal(t, StateRunning, list[1].State)
	assert.Nil(t, list[1].ExitCode)
	assert.Greater(t, list[1].PID, 0)
	assert.Contains(t, s.PIDs(), "b")
	assert.True(t, s.Stop("b", "", 0))
}

func TestDoneClosesOnExit(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSupervisor(t)
	_, ok := s.Done("a")
	assert.False(t, ok)

	require.NoError(t, s.Start(Launch{ID: "a", Name: "A", Script: writeScript(t, dir, "run.sh", cooperative)}))
	done, ok := s.Done("a")
	require.True(t, ok)
	select {
	case <-done:
		t.Fatal("done closed while running")
	default:
	}

	require.True(t, s.SendCommand("a", "stop"))
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("done not closed after exit")
	}
}

func TestStopKillsServerThatStoppedReadingStdin(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSupervisor(t)
	require.NoError(t, s.Start(Launch{ID: "x", Name: "X", Script: writeScript(t, dir, "run.sh", "exec sleep 60\n")}))

	delivered := make(chan bool, 1)
	go func() { delivered <- s.SendCommand("x", strings.Repeat("x", 128<<10)) }()
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	assert.True(t, s.Stop("x", "stop", 500*time.Millisecond))
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.False(t, s.IsRunning("x"))

	select {
	case ok := <-delivered:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("SendCommand still blocked after the server was killed")
	}
}

func TestSendCommandReturnsWhenStdinFull(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSupervisor(t, WithSendTimeout(200*time.Millisecond))
	require.NoError(t, s.Start(Launch{ID: "x", Name: "X", Script: writeScript(t, dir, "run.sh", "exec sleep 60\n")}))

	start := time.Now()
	assert.False(t, s.SendCommand("x", strings.Repeat("x", 128<<10)))
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.True(t, s.IsRunning("x"))
	assert.True(t, s.Stop("x", "stop", 0))
}

func TestStartRacingCloseIsRefused(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestSupervisor(t)
	// Close runs while the process is being spawned.
	s.baseEnv = func() *env.Env {
		go func() { _ = s.Close() }()
		require.Eventually(t, func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.closed
		}, 2*time.Second, 5*time.Millisecond)
		return env.FromOS()
	}

	err := s.Start(Launch{ID: "a", Name: "A", Script: writeScript(t, dir, "run.sh", stubborn)})
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, s.IsRunning("a"))
	assert.Empty(t, s.List())
	assert.Empty(t, s.PIDs())
}

func TestRestartAfterCloseIsRefused(t *testing.T) {
	s, _ := newTestSupervisor(t)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Restart(Launch{ID: "a", Script: "run.sh"}), ErrClosed)
}
