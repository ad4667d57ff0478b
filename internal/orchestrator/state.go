package orchestrator

// State is the orchestrator connection state.
type State int32

const (
	Idle State = iota
	Connecting
	Open
	Closing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}
