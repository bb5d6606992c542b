package cache

// State tracks the lifecycle of the cache store. Opening a store drives the
// machine Closed → Opening → {Healthy | Corrupted}; a corrupted store is
// backed up and recreated via Recovering, so the caller always ends up with
// either a Healthy store or an error.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateHealthy
	StateCorrupted
	StateRecovering
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateHealthy:
		return "healthy"
	case StateCorrupted:
		return "corrupted"
	case StateRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

type event int

const (
	eventOpen event = iota
	eventInitOK
	eventInitFailed
	eventRecoverStart
	eventRecoverOK
	eventRecoverFailed
	eventClose
)

// transition is the pure state-transition function. It returns the next
// state and whether the transition is legal; illegal transitions leave the
// state unchanged so the recovery path can be tested without a real store.
func transition(s State, e event) (State, bool) {
	switch s {
	case StateClosed:
		if e == eventOpen {
			return StateOpening, true
		}
	case StateOpening:
		switch e {
		case eventInitOK:
			return StateHealthy, true
		case eventInitFailed:
			return StateCorrupted, true
		}
	case StateCorrupted:
		switch e {
		case eventRecoverStart:
			return StateRecovering, true
		case eventClose:
			return StateClosed, true
		}
	case StateRecovering:
		switch e {
		case eventRecoverOK:
			return StateHealthy, true
		case eventRecoverFailed:
			return StateCorrupted, true
		}
	case StateHealthy:
		if e == eventClose {
			return StateClosed, true
		}
	}
	return s, false
}
