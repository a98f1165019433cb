// Package supervisor starts, stops, restarts and watches game server
// processes by id.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loykin/gslauncher/internal/crashlog"
	"github.com/loykin/gslauncher/internal/env"
	"github.com/loykin/gslauncher/internal/history"
	"github.com/loykin/gslauncher/internal/metrics"
	"github.com/loykin/gslauncher/internal/process"
	"github.com/loykin/gslauncher/internal/script"
)

var (
	// ErrStillRunning is returned when a process could not be confirmed
	// terminated after a forced kill.
	ErrStillRunning = errors.New("process still running after kill")
	// ErrRunning is returned by Remove for a server whose process is alive.
	ErrRunning = errors.New("server is running")
	// ErrNotFound is returned by Remove for an unknown id.
	ErrNotFound = errors.New("server not found")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("supervisor closed")
)

// OutputFunc receives every captured console line of a server, plus the exit
// marker line when the server exits unexpectedly. It is called from capture
// goroutines and must not block for long.
type OutputFunc func(id, line string)

// Launch describes one server start.
type Launch struct {
	ID      string
	Name    string
	Script  string
	WorkDir string // defaults to the script's directory
	Env     map[string]string
	// OnOutput is optional; lines are buffered either way.
	OnOutput OutputFunc
}

func (l Launch) displayName() string {
	if l.Name != "" {
		return l.Name
	}
	return l.ID
}

// Status is a snapshot of one server's lifecycle.
type Status struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	State     State      `json:"state"`
	PID       int        `json:"pid,omitempty"`
	StartedAt time.Time  `json:"started_at,omitempty"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	Lines     int        `json:"lines"`
}

// ExitMarker is the synthetic line delivered when a server exits without a
// stop request.
func ExitMarker(code int) string {
	return fmt.Sprintf("[PROCESS EXITED] Return code %d", code)
}

// Supervisor owns the registry of server processes.
//
// The registry mutex only guards lookups and inserts; it is never held while
// spawning, waiting, sleeping or doing I/O with a child.
type Supervisor struct {
	mu       sync.Mutex
	procs    map[string]*process.Handle
	starting map[string]struct{}
	closed   bool

	log          *slog.Logger
	crashDir     string
	history      history.Multi
	stopCommand  string
	stopTimeout  time.Duration
	killSettle   time.Duration
	drainTimeout time.Duration
	sendTimeout  time.Duration
	baseEnv      func() *env.Env

	// wg counts watchers, restarts and history sends. Add is only called
	// under mu while open, or from a goroutine already counted.
	wg sync.WaitGroup
}

// New creates a Supervisor.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		procs:        make(map[string]*process.Handle),
		starting:     make(map[string]struct{}),
		log:          slog.Default(),
		crashDir:     ".",
		stopCommand:  RestartCommand,
		stopTimeout:  RestartTimeout,
		killSettle:   KillSettle,
		drainTimeout: DrainTimeout,
		sendTimeout:  process.SendTimeout,
		baseEnv:      env.FromOS,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) lookup(id string) *process.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[id]
}

// Start launches the server described by l and returns once the process is
// spawned. Starting an id whose process is alive, or which is being started
// concurrently, is a no-op logged at WARN.
func (s *Supervisor) Start(l Launch) error {
	lg := s.log.With(slog.String("server_id", l.ID), slog.String("name", l.displayName()))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if h, ok := s.procs[l.ID]; ok && h.Alive() {
		s.mu.Unlock()
		lg.Warn("server already running", slog.Int("pid", h.PID()))
		return nil
	}
	if _, ok := s.starting[l.ID]; ok {
		s.mu.Unlock()
		lg.Warn("server start already in progress")
		return nil
	}
	s.starting[l.ID] = struct{}{}
	s.mu.Unlock()

	h, err := s.spawn(l)

	s.mu.Lock()
	delete(s.starting, l.ID)
	closed := s.closed
	if err == nil && !closed {
		s.procs[l.ID] = h
		s.wg.Add(1)
	}
	s.mu.Unlock()
	if err != nil {
		lg.Error("server start failed", slog.Any("error", err))
		return err
	}
	if closed {
		// Close already took its snapshot; nothing else would stop this one.
		lg.Warn("supervisor closed during start; killing", slog.Int("pid", h.PID()))
		_ = h.Kill()
		h.Wait()
		h.CloseIO()
		return ErrClosed
	}
	h.SetSendTimeout(s.sendTimeout)

	on := l.OnOutput
	name := l.displayName()
	h.Capture(func(id, line string) {
		metrics.IncOutputLine(name)
		if on != nil {
			on(id, line)
		}
	}, lg)

	go s.watch(h, on, lg)

	lg.Info("server started", slog.Int("pid", h.PID()))
	metrics.IncStart(name)
	s.updateRunning()
	return nil
}

func (s *Supervisor) spawn(l Launch) (*process.Handle, error) {
	path, err := script.Resolve(l.Script)
	if err != nil {
		return nil, err
	}
	cmd := script.Command(path)
	cmd.Dir = l.WorkDir
	if cmd.Dir == "" {
		cmd.Dir = filepath.Dir(path)
	}
	cmd.Env = s.baseEnv().Merge(l.Env)
	return process.Spawn(l.ID, l.displayName(), cmd)
}

// watch blocks until the handle's process exits, drains its output and
// classifies the exit. It is the only writer of crash logs.
func (s *Supervisor) watch(h *process.Handle, on OutputFunc, lg *slog.Logger) {
	defer s.wg.Done()
	s.record(history.Event{Type: history.EventStart, OccurredAt: h.StartedAt().UTC(), ServerID: h.ID(), Name: h.Name(), PID: h.PID()})

	code := h.Wait()
	lg.Info("server process exited", slog.Int("pid", h.PID()), slog.Int("exit_code", code))

	if !h.WaitCapture(s.drainTimeout) {
		lg.Warn("output capture still open after exit; closing pipes", slog.Duration("drain_timeout", s.drainTimeout))
	}
	h.CloseIO()
	h.WaitCapture(s.drainTimeout)
	s.updateRunning()

	evt := history.Event{OccurredAt: time.Now().UTC(), ServerID: h.ID(), Name: h.Name(), PID: h.PID()}.WithExit(code)
	switch {
	case !h.StopRequested():
		lg.Warn("server exited unexpectedly", slog.Int("exit_code", code))
		metrics.IncCrash(h.Name())
		if on != nil {
			notify(on, h.ID(), ExitMarker(code), lg)
		}
		path, err := crashlog.Write(s.crashDir, h.Name(), h.Console())
		if err != nil {
			lg.Error("failed to write crash log", slog.Any("error", err))
		} else {
			lg.Info("wrote crash log", slog.String("path", path))
		}
		evt.Type = history.EventCrash
	case h.Killed():
		metrics.IncKill(h.Name())
		evt.Type = history.EventKill
	default:
		metrics.IncStop(h.Name())
		evt.Type = history.EventStop
	}
	s.record(evt)
}

func notify(on OutputFunc, id, line string, lg *slog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			lg.Error("output callback panicked", slog.Any("panic", rec))
		}
	}()
	on(id, line)
}

// Stop asks the server to shut down by writing graceful to its stdin, waits
// up to timeout for it to exit and then kills its process group. A timeout of
// zero or less kills right after the graceful command. The graceful write
// never delays the kill past the grace period, even when the server has
// stopped reading stdin. Stop reports whether the process is confirmed
// terminated; an unknown or already exited id reports true.
func (s *Supervisor) Stop(id, graceful string, timeout time.Duration) bool {
	h := s.lookup(id)
	if h == nil || !h.Alive() {
		return true
	}
	lg := s.log.With(slog.String("server_id", id), slog.String("name", h.Name()), slog.Int("pid", h.PID()))

	h.RequestStop()
	if graceful != "" {
		sent := make(chan struct{})
		go func() {
			defer close(sent)
			if err := h.Send(graceful); err != nil {
				lg.Warn("failed to send graceful stop command", slog.Any("error", err))
			}
		}()
		if timeout <= 0 {
			t := time.NewTimer(s.sendTimeout)
			select {
			case <-sent:
			case <-h.Done():
			case <-t.C:
			}
			t.Stop()
		}
	}

	if timeout > 0 {
		t := time.NewTimer(timeout)
		select {
		case <-h.Done():
			t.Stop()
			lg.Info("server stopped gracefully")
			return true
		case <-t.C:
			lg.Warn("graceful stop timed out; killing", slog.Duration("timeout", timeout))
		}
	}
	return s.kill(h, lg)
}

// kill force-terminates h and waits up to killSettle for the watcher to
// observe the exit.
func (s *Supervisor) kill(h *process.Handle, lg *slog.Logger) bool {
	if !h.Alive() {
		return true
	}
	h.RequestStop()
	if err := h.Kill(); err != nil {
		lg.Error("kill failed", slog.Any("error", err))
	}
	t := time.NewTimer(s.killSettle)
	defer t.Stop()
	select {
	case <-h.Done():
		lg.Info("server killed")
		return true
	case <-t.C:
		lg.Error("server did not exit after kill", slog.Duration("settle", s.killSettle))
		return false
	}
}

// Restart stops the current process for l.ID with the restart command and
// grace period, then starts a fresh one. A replacement is never spawned while
// the old process is still alive; ErrStillRunning is returned instead.
func (s *Supervisor) Restart(l Launch) error {
	lg := s.log.With(slog.String("server_id", l.ID), slog.String("name", l.displayName()))
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()
	metrics.IncRestart(l.displayName())

	if old := s.lookup(l.ID); old != nil {
		s.record(history.Event{Type: history.EventRestart, OccurredAt: time.Now().UTC(), ServerID: l.ID, Name: l.displayName(), PID: old.PID()})
	}
	if !s.Stop(l.ID, s.stopCommand, s.stopTimeout) {
		if h := s.lookup(l.ID); h != nil && !s.kill(h, lg) {
			return fmt.Errorf("restart %s: %w", l.ID, ErrStillRunning)
		}
	}

	s.mu.Lock()
	delete(s.procs, l.ID)
	s.mu.Unlock()
	return s.Start(l)
}

// SendCommand writes text and a newline to the server's stdin. It reports
// false when there is no live process or the write fails.
func (s *Supervisor) SendCommand(id, text string) bool {
	h := s.lookup(id)
	if h == nil {
		return false
	}
	err := h.Send(text)
	metrics.IncCommand(h.Name(), err == nil)
	if err != nil {
		s.log.Debug("command not delivered", slog.String("server_id", id), slog.Any("error", err))
		return false
	}
	return true
}

// IsRunning reports whether id has a live process.
func (s *Supervisor) IsRunning(id string) bool {
	h := s.lookup(id)
	return h != nil && h.Alive()
}

// Done returns a channel closed once the current process of id has exited.
// ok is false when id has no handle.
func (s *Supervisor) Done(id string) (<-chan struct{}, bool) {
	h := s.lookup(id)
	if h == nil {
		return nil, false
	}
	return h.Done(), true
}

// Console returns the buffered console of id joined with newlines. ok is
// false only when id has no handle; an exited server keeps its console until
// it is restarted or removed.
func (s *Supervisor) Console(id string) (string, bool) {
	h := s.lookup(id)
	if h == nil {
		return "", false
	}
	return h.Console(), true
}

// State returns the lifecycle state of id.
func (s *Supervisor) State(id string) State {
	s.mu.Lock()
	h := s.procs[id]
	_, starting := s.starting[id]
	s.mu.Unlock()
	if starting {
		return StateStarting
	}
	return stateOf(h)
}

func stateOf(h *process.Handle) State {
	switch {
	case h == nil:
		return StateNotRunning
	case h.Alive() && h.StopRequested():
		return StateStopRequested
	case h.Alive():
		return StateRunning
	case !h.StopRequested():
		return StateCrashed
	case h.Killed():
		return StateKilled
	default:
		return StateStopped
	}
}

// Status returns a snapshot of id.
func (s *Supervisor) Status(id string) (Status, bool) {
	s.mu.Lock()
	h := s.procs[id]
	_, starting := s.starting[id]
	s.mu.Unlock()
	if h == nil {
		if starting {
			return Status{ID: id, State: StateStarting}, true
		}
		return Status{ID: id, State: StateNotRunning}, false
	}
	st := Status{
		ID:        id,
		Name:      h.Name(),
		State:     stateOf(h),
		PID:       h.PID(),
		StartedAt: h.StartedAt(),
		Lines:     h.LineCount(),
	}
	if code, stopped, ok := h.Exit(); ok {
		st.StoppedAt = &stopped
		st.ExitCode = &code
	}
	return st, true
}

// List returns the status of every known server ordered by id.
func (s *Supervisor) List() []Status {
	s.mu.Lock()
	ids := make([]string, 0, len(s.procs))
	for id := range s.procs {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	out := make([]Status, 0, len(ids))
	for _, id := range ids {
		if st, ok := s.Status(id); ok {
			out = append(out, st)
		}
	}
	return out
}

// PIDs returns the pid of every live server keyed by id.
func (s *Supervisor) PIDs() map[string]int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int32, len(s.procs))
	for id, h := range s.procs {
		if h.Alive() {
			out[id] = int32(h.PID())
		}
	}
	return out
}

// StopAll stops every live server concurrently and returns an error naming
// each server that could not be confirmed terminated.
func (s *Supervisor) StopAll(graceful string, timeout time.Duration) error {
	s.mu.Lock()
	var ids []string
	for id, h := range s.procs {
		if h.Alive() {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	var g errgroup.Group
	var mu sync.Mutex
	var errs []error
	for _, id := range ids {
		g.Go(func() error {
			if !s.Stop(id, graceful, timeout) {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", id, ErrStillRunning))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Remove forgets an exited server and its buffered console.
func (s *Supervisor) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.procs[id]
	if !ok {
		return ErrNotFound
	}
	if h.Alive() {
		return ErrRunning
	}
	delete(s.procs, id)
	return nil
}

// Close refuses further starts, stops every server with the configured stop
// command and grace period and waits for the watchers to finish.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	err := s.StopAll(s.stopCommand, s.stopTimeout)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2*s.drainTimeout + s.killSettle):
		s.log.Warn("timed out waiting for exit watchers")
	}
	return err
}

func (s *Supervisor) updateRunning() {
	s.mu.Lock()
	n := 0
	for _, h := range s.procs {
		if h.Alive() {
			n++
		}
	}
	s.mu.Unlock()
	metrics.SetRunning(n)
}

// record sends e to the history sinks in the background with a short timeout.
// The caller must itself be counted in wg.
func (s *Supervisor) record(e history.Event) {
	if len(s.history) == 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		if err := s.history.Send(ctx, e); err != nil {
			s.log.Warn("history event not recorded", slog.String("server_id", e.ServerID), slog.String("event", string(e.Type)), slog.Any("error", err))
		}
	}()
}
