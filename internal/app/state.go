package service

// State is the service lifecycle position. Transitions only move forward:
// Uninitialized, Loading, then Ready or Failed. Failed is terminal.
type State int32

// Lifecycle states.
const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
