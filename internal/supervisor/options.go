package supervisor

import (
	"log/slog"
	"time"

	"github.com/loykin/gslauncher/internal/env"
	"github.com/loykin/gslauncher/internal/history"
)

const (
	// RestartCommand is written to stdin when a restart asks the old process
	// to shut down.
	RestartCommand = "stop"
	// RestartTimeout is the grace period a restart allows before killing.
	RestartTimeout = 15 * time.Second
	// KillSettle bounds the wait for exit after a forced termination.
	KillSettle = 2 * time.Second
	// DrainTimeout bounds the wait for output capture after exit.
	DrainTimeout = 2 * time.Second

	historyTimeout = 2 * time.Second
)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.log = l
		}
	}
}

// WithCrashLogDir sets where crash logs are written (default ".").
func WithCrashLogDir(dir string) Option {
	return func(s *Supervisor) { s.crashDir = dir }
}

// WithHistory adds lifecycle event sinks.
func WithHistory(sinks ...history.Sink) Option {
	return func(s *Supervisor) {
		for _, k := range sinks {
			if k != nil {
				s.history = append(s.history, k)
			}
		}
	}
}

// WithStopDefaults overrides the command and grace period used by Restart
// and Close.
func WithStopDefaults(command string, timeout time.Duration) Option {
	return func(s *Supervisor) {
		s.stopCommand = command
		s.stopTimeout = timeout
	}
}

// WithKillSettle overrides KillSettle.
func WithKillSettle(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.killSettle = d
		}
	}
}

// WithDrainTimeout overrides DrainTimeout.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.drainTimeout = d
		}
	}
}

// WithSendTimeout bounds each stdin write (default process.SendTimeout).
// SendCommand fails once a server stops draining its stdin for that long.
func WithSendTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.sendTimeout = d
		}
	}
}

// WithBaseEnv replaces the OS environment as the base that Launch.Env
// overrides are applied to.
func WithBaseEnv(kvs []string) Option {
	return func(s *Supervisor) {
		base := env.FromList(kvs)
		s.baseEnv = func() *env.Env { return base }
	}
}
