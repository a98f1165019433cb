// Package gslauncher exposes the game server supervisor for embedding in
// other programs.
package gslauncher

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/gslauncher/internal/config"
	"github.com/loykin/gslauncher/internal/console"
	"github.com/loykin/gslauncher/internal/history"
	"github.com/loykin/gslauncher/internal/history/factory"
	"github.com/loykin/gslauncher/internal/metrics"
	"github.com/loykin/gslauncher/internal/process"
	iapi "github.com/loykin/gslauncher/internal/server"
	"github.com/loykin/gslauncher/internal/store"
	"github.com/loykin/gslauncher/internal/supervisor"
)

// Re-export core types for external consumers.

type Launch = supervisor.Launch

type Status = supervisor.Status

type State = supervisor.State

type OutputFunc = supervisor.OutputFunc

type Option = supervisor.Option

type Config = cfg.Config

type HistorySink = history.Sink

type HistoryEvent = history.Event

type ServerRecord = store.Record

type NewServerRecord = store.NewRecord

const (
	StateNotRunning    = supervisor.StateNotRunning
	StateStarting      = supervisor.StateStarting
	StateRunning       = supervisor.StateRunning
	StateStopRequested = supervisor.StateStopRequested
	StateStopped       = supervisor.StateStopped
	StateKilled        = supervisor.StateKilled
	StateCrashed       = supervisor.StateCrashed
)

var (
	ErrStillRunning = supervisor.ErrStillRunning
	ErrRunning      = supervisor.ErrRunning
	ErrNotFound     = supervisor.ErrNotFound
	ErrClosed       = supervisor.ErrClosed
	ErrSendTimeout  = process.ErrSendTimeout
)

func WithLogger(l *slog.Logger) Option       { return supervisor.WithLogger(l) }
func WithCrashLogDir(dir string) Option      { return supervisor.WithCrashLogDir(dir) }
func WithHistory(s ...HistorySink) Option    { return supervisor.WithHistory(s...) }
func WithBaseEnv(kvs []string) Option        { return supervisor.WithBaseEnv(kvs) }
func WithKillSettle(d time.Duration) Option  { return supervisor.WithKillSettle(d) }
func WithSendTimeout(d time.Duration) Option { return supervisor.WithSendTimeout(d) }
func WithStopDefaults(command string, timeout time.Duration) Option {
	return supervisor.WithStopDefaults(command, timeout)
}

// Supervisor is a thin facade over internal/supervisor.
type Supervisor struct{ inner *supervisor.Supervisor }

func New(opts ...Option) *Supervisor { return &Supervisor{inner: supervisor.New(opts...)} }

func (s *Supervisor) Start(l Launch) error     { return s.inner.Start(l) }
func (s *Supervisor) Restart(l Launch) error   { return s.inner.Restart(l) }
func (s *Supervisor) IsRunning(id string) bool { return s.inner.IsRunning(id) }
func (s *Supervisor) State(id string) State    { return s.inner.State(id) }
func (s *Supervisor) List() []Status           { return s.inner.List() }
func (s *Supervisor) Remove(id string) error   { return s.inner.Remove(id) }
func (s *Supervisor) Close() error             { return s.inner.Close() }
func (s *Supervisor) SendCommand(id, text string) bool {
	return s.inner.SendCommand(id, text)
}
func (s *Supervisor) Stop(id, graceful string, timeout time.Duration) bool {
	return s.inner.Stop(id, graceful, timeout)
}
func (s *Supervisor) StopAll(graceful string, timeout time.Duration) error {
	return s.inner.StopAll(graceful, timeout)
}
func (s *Supervisor) Console(id string) (string, bool)       { return s.inner.Console(id) }
func (s *Supervisor) Status(id string) (Status, bool)        { return s.inner.Status(id) }
func (s *Supervisor) Done(id string) (<-chan struct{}, bool) { return s.inner.Done(id) }

// ExitMarker returns the line delivered when a server exits on its own.
func ExitMarker(code int) string { return supervisor.ExitMarker(code) }

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewHistorySinks opens one history sink per DSN.
func NewHistorySinks(dsns []string) (history.Multi, error) { return factory.NewSinks(dsns) }

// Store is the JSON file of configured servers.
type Store = store.Store

func OpenStore(path string, log *slog.Logger) (*Store, error) { return store.Open(path, log) }

// NewHTTPServer starts an HTTP server exposing the API for sup and the servers
// in st. Console lines of servers started through the API are published to
// the streaming endpoint.
func NewHTTPServer(addr, basePath string, sup *Supervisor, st *Store, log *slog.Logger) (*http.Server, error) {
	hub := console.NewHub()
	r := iapi.NewRouter(sup.inner, st, basePath,
		iapi.WithHub(hub),
		iapi.WithOutput(hub.Publish),
		iapi.WithLogger(log))
	return iapi.NewServer(addr, r)
}

// Metrics helpers

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
