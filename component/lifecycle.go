package component

import (
	"context"
	"time"
)

// State is the lifecycle position of a component.
type State int

// Lifecycle states. A component moves Created -> Initialized -> Started ->
// Stopped; Failed is entered when Initialize cannot build the component and
// is left only by a successful Initialize.
const (
	StateCreated State = iota
	StateInitialized
	StateStarted
	StateStopped
	StateFailed
)

var stateNames = [...]string{"created", "initialized", "started", "stopped", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// LifecycleComponent is a Discoverable component the service starts and
// stops. Start after Stop requires a fresh Initialize.
type LifecycleComponent interface {
	Discoverable
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}
