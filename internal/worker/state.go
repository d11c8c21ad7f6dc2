package worker

// State is the supervisor lifecycle state.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateReady
	StateBusy
	StateCrashed
	StateRestarting
	StatePermanentlyFailed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateCrashed:
		return "crashed"
	case StateRestarting:
		return "restarting"
	case StatePermanentlyFailed:
		return "permanently_failed"
	}
	return "unknown"
}
