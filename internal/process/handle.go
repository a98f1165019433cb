package process

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/loykin/gslauncher/internal/capture"
)

var (
	// ErrExited is returned by Send once the child process has terminated.
	ErrExited = errors.New("process has exited")
	// ErrSendTimeout is returned by Send when the child does not drain its
	// stdin within the send timeout.
	ErrSendTimeout = errors.New("stdin write timed out")
)

// SendTimeout bounds a single stdin write.
const SendTimeout = 2 * time.Second

// Handle owns one running child process, its standard streams and the
// console lines captured from it.
//
// Lock Hierarchy:
//  1. mu - buffer and exit bookkeeping
//  2. stdinMu - serializes writes to the child's stdin
//
// The stop and kill flags are atomics so the exit watcher can read them
// without touching either lock.
type Handle struct {
	id        string
	name      string
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time

	stdin       *os.File
	sendTimeout time.Duration
	stdout      io.ReadCloser
	stderr io.ReadCloser

	mu        sync.Mutex
	lines     []string
	stoppedAt time.Time
	exitCode  int
	exitErr   error

	stdinMu sync.Mutex

	stopRequested atomic.Bool
	killed        atomic.Bool

	capturing sync.WaitGroup
	done      chan struct{}
	waitOnce  sync.Once
	closeOnce sync.Once
}

// Spawn starts cmd with piped stdin, stdout and stderr and returns the handle
// owning it. The command is placed in its own process group so a forced
// termination reaches every process the launch script started. The parent
// keeps the write end of stdin as an *os.File so writes can carry a deadline.
func Spawn(id, name string, cmd *exec.Cmd) (*Handle, error) {
	configureSysProcAttr(cmd)
	stdinR, stdin, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	cmd.Stdin = stdinR
	closeStdin := func() {
		_ = stdinR.Close()
		_ = stdin.Close()
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		closeStdin()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		closeStdin()
		_ = stdout.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		closeStdin()
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	// the child holds its own copy of the read end
	_ = stdinR.Close()
	return &Handle{
		id:          id,
		name:        name,
		cmd:         cmd,
		pid:         cmd.Process.Pid,
		startedAt:   time.Now(),
		stdin:       stdin,
		sendTimeout: SendTimeout,
		stdout:      stdout,
		stderr:      stderr,
		done:        make(chan struct{}),
	}, nil
}

// SetSendTimeout changes the bound on a single stdin write. Zero or less
// disables the deadline.
func (h *Handle) SetSendTimeout(d time.Duration) {
	h.stdinMu.Lock()
	h.sendTimeout = d
	h.stdinMu.Unlock()
}

func (h *Handle) ID() string           { return h.id }
func (h *Handle) Name() string         { return h.name }
func (h *Handle) PID() int             { return h.pid }
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Capture attaches one reader goroutine per output stream. Every line is
// appended to the console buffer and then passed to onLine (which may be nil)
// before the next line of that stream is read.
func (h *Handle) Capture(onLine func(id, line string), log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	streams := []struct {
		label string
		r     io.Reader
	}{{"stdout", h.stdout}, {"stderr", h.stderr}}
	for _, s := range streams {
		h.capturing.Add(1)
		lg := log.With(slog.String("server_id", h.id), slog.String("stream", s.label))
		go func(r io.Reader) {
			defer h.capturing.Done()
			capture.Lines(r, func(line string) {
				h.Append(line)
				if onLine != nil {
					onLine(h.id, line)
				}
			}, lg)
		}(s.r)
	}
}

// WaitCapture waits until both capture goroutines have reached end-of-stream
// or d elapses. It reports whether capture finished in time.
func (h *Handle) WaitCapture(d time.Duration) bool {
	ch := make(chan struct{})
	go func() {
		h.capturing.Wait()
		close(ch)
	}()
	select {
	case <-ch:
		return true
	case <-time.After(d):
		return false
	}
}

// Append adds a line to the console buffer.
func (h *Handle) Append(line string) {
	h.mu.Lock()
	h.lines = append(h.lines, line)
	h.mu.Unlock()
}

// Lines returns a copy of the console buffer.
func (h *Handle) Lines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.lines...)
}

// LineCount returns the number of buffered lines.
func (h *Handle) LineCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.lines)
}

// Console returns the buffered lines joined with newlines.
func (h *Handle) Console() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return strings.Join(h.lines, "\n")
}

// RequestStop marks the handle as intentionally stopping. Only the first call
// returns true; the flag is never cleared.
func (h *Handle) RequestStop() bool { return h.stopRequested.CompareAndSwap(false, true) }

func (h *Handle) StopRequested() bool { return h.stopRequested.Load() }

// Killed reports whether a forced termination was issued.
func (h *Handle) Killed() bool { return h.killed.Load() }

// Done is closed once the child process has been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Exit returns the exit code and the time the process stopped. ok is false
// while the process is still running.
func (h *Handle) Exit() (code int, stoppedAt time.Time, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stoppedAt.IsZero() {
		return 0, time.Time{}, false
	}
	return h.exitCode, h.stoppedAt, true
}

// Send writes text and a newline to the child's stdin. The pipe is unbuffered
// so the command is delivered as soon as Write returns. A child that stops
// reading fills the pipe; the write then fails with ErrSendTimeout once the
// send timeout elapses. Pipes without deadline support (windows) block.
func (h *Handle) Send(text string) error {
	if !h.Alive() {
		return ErrExited
	}
	h.stdinMu.Lock()
	defer h.stdinMu.Unlock()
	var deadline time.Time
	if h.sendTimeout > 0 {
		deadline = time.Now().Add(h.sendTimeout)
	}
	if err := h.stdin.SetWriteDeadline(deadline); err != nil && !errors.Is(err, os.ErrNoDeadline) {
		return fmt.Errorf("write stdin: %w", err)
	}
	if _, err := io.WriteString(h.stdin, text+"\n"); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("write stdin: %w", ErrSendTimeout)
		}
		return fmt.Errorf("write stdin: %w", err)
	}
	return nil
}

// Kill force-terminates the process (and its process group where supported).
func (h *Handle) Kill() error {
	if !h.Alive() {
		return nil
	}
	h.killed.Store(true)
	return killTree(h.cmd.Process)
}

// Wait blocks until the child exits and returns its exit code. Only the first
// caller waits on the OS process; later callers block on Done and receive the
// recorded result. The console pipes are left open so capture can drain them.
func (h *Handle) Wait() int {
	h.waitOnce.Do(func() {
		state, err := h.cmd.Process.Wait()
		code := -1
		if state != nil {
			code = exitCode(state)
		}
		h.mu.Lock()
		h.exitCode = code
		h.exitErr = err
		h.stoppedAt = time.Now()
		h.mu.Unlock()
		close(h.done)
	})
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

// CloseIO closes the parent's ends of all three pipes. Blocked capture reads
// return immediately afterwards.
func (h *Handle) CloseIO() {
	h.closeOnce.Do(func() {
		h.stdinMu.Lock()
		_ = h.stdin.Close()
		h.stdinMu.Unlock()
		_ = h.stdout.Close()
		_ = h.stderr.Close()
	})
}

// exitCode mirrors the convention of reporting signal deaths as the negated
// signal number.
func exitCode(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal())
	}
	return state.ExitCode()
}
