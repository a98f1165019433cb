package supervisor

// State is the lifecycle position of one server id.
type State int32

const (
	StateNotRunning State = iota
	StateStarting
	StateRunning
	StateStopRequested
	StateStopped
	StateKilled
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateNotRunning:
		return "not_running"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopRequested:
		return "stop_requested"
	case StateStopped:
		return "stopped"
	case StateKilled:
		return "killed"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Alive reports whether the state has a live OS process behind it.
func (s State) Alive() bool { return s == StateRunning || s == StateStopRequested }
