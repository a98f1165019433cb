package client

import "time"

// Server is a configured game server together with its live status.
type Server struct {
	ID              string            `json:"id" yaml:"id"`
	Name            string            `json:"name" yaml:"name"`
	StartScript     string            `json:"start_script" yaml:"start_script"`
	WorkDir         string            `json:"cwd,omitempty" yaml:"cwd,omitempty"`
	Env             map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	ForceKillOnStop bool              `json:"force_kill_on_stop" yaml:"force_kill_on_stop"`
	Status          ServerStatus      `json:"status" yaml:"status"`
}

// NewServer is the body of an add request.
type NewServer struct {
	Name            string            `json:"name"`
	StartScript     string            `json:"start_script"`
	WorkDir         string            `json:"cwd,omitempty"`
	Env             map[string]string `json:"env,omitempty"`
	ForceKillOnStop bool              `json:"force_kill_on_stop"`
}

// ServerPatch updates the non-nil fields of a server.
type ServerPatch struct {
	Name            *string            `json:"name,omitempty"`
	StartScript     *string            `json:"start_script,omitempty"`
	WorkDir         *string            `json:"cwd,omitempty"`
	Env             *map[string]string `json:"env,omitempty"`
	ForceKillOnStop *bool              `json:"force_kill_on_stop,omitempty"`
}

// ServerStatus is the lifecycle snapshot of one server.
type ServerStatus struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	State     string     `json:"state" yaml:"state"`
	PID       int        `json:"pid,omitempty" yaml:"pid,omitempty"`
	StartedAt time.Time  `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	StoppedAt *time.Time `json:"stopped_at,omitempty" yaml:"stopped_at,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty" yaml:"exit_code,omitempty"`
	Lines     int        `json:"lines" yaml:"lines"`
	Resources *Resources `json:"resources,omitempty" yaml:"resources,omitempty"`
}

// Resources is the latest CPU and memory sample of a running server.
type Resources struct {
	PID        int32     `json:"pid" yaml:"pid"`
	CPUPercent float64   `json:"cpu_percent" yaml:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss" yaml:"memory_rss"`
	NumThreads int32     `json:"num_threads" yaml:"num_threads"`
	SampledAt  time.Time `json:"sampled_at" yaml:"sampled_at"`
}

// StopOptions override the daemon's stop command and grace period.
type StopOptions struct {
	Command string
	Timeout time.Duration
}

// DaemonStatus is the body of GET /status.
type DaemonStatus struct {
	OK      bool   `json:"ok"`
	Running int    `json:"running"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
