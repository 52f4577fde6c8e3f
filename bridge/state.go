package bridge

// State describes where a bridge is in its lifecycle. Transitions only move
// forward: Spawned, Initializing, Ready, then Querying and back to Ready for
// each cycle, and finally Closed once the process is gone.
type State int32

const (
	StateSpawned State = iota
	StateInitializing
	StateReady
	StateQuerying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateSpawned:
		return "spawned"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateQuerying:
		return "querying"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
