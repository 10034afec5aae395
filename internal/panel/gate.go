package panel

import (
	"fmt"
	"sync"
)

// State is the gate's position in the operation lifecycle.
type State int

const (
	// Idle: all controls enabled, start visible, cancel hidden
	Idle State = iota

	// Starting: controls locked, operation launching
	Starting

	// Running: cancel control visible and enabled
	Running

	// Stopping: cancel disabled, awaiting the runner's signal
	Stopping
)

// String returns the state name for status displays.
func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Starting:
		return "STARTING"
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// Controls receives the gate's enable/disable decisions. Every field is
// optional; a view wires only the controls it has.
type Controls struct {
	// SetStartEnabled toggles the operation's start control
	SetStartEnabled func(enabled bool)

	// SetCancelVisible shows or hides the cancel control
	SetCancelVisible func(visible bool)

	// SetCancelEnabled toggles the cancel control
	SetCancelEnabled func(enabled bool)

	// SetNavigationEnabled toggles the enclosing navigation, so the user
	// cannot switch away from the view mid-operation
	SetNavigationEnabled func(enabled bool)

	// SetCloseAllowed toggles whether the application may close
	// immediately
	SetCloseAllowed func(allowed bool)
}

// Gate makes the interactive surface reflect operation state. All methods
// are called from the interactive thread; the mutex only guards the state
// read from close handlers.
type Gate struct {
	mu       sync.Mutex
	state    State
	controls Controls
}

// NewGate creates a gate in the Idle state.
func NewGate(controls Controls) *Gate {
	return &Gate{controls: controls}
}

// State returns the current gate state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Starting locks the surface for a launching operation. Fails if another
// operation is already in flight, which is how a second start press while
// one is pending is refused.
func (g *Gate) Starting() error {
	g.mu.Lock()
	if g.state != Idle {
		state := g.state
		g.mu.Unlock()
		return fmt.Errorf("operation already %s", state)
	}
	g.state = Starting
	g.mu.Unlock()

	g.apply(g.controls.SetStartEnabled, false)
	g.apply(g.controls.SetNavigationEnabled, false)
	g.apply(g.controls.SetCloseAllowed, false)
	g.apply(g.controls.SetCancelVisible, true)
	g.apply(g.controls.SetCancelEnabled, false)
	return nil
}

// Running marks the operation as launched: the cancel control goes live.
func (g *Gate) Running() {
	g.mu.Lock()
	if g.state != Starting {
		g.mu.Unlock()
		return
	}
	g.state = Running
	g.mu.Unlock()

	g.apply(g.controls.SetCancelEnabled, true)
}

// Stopping records a user cancel request: the cancel control is disabled
// while the operation winds down.
func (g *Gate) Stopping() {
	g.mu.Lock()
	if g.state != Running {
		g.mu.Unlock()
		return
	}
	g.state = Stopping
	g.mu.Unlock()

	g.apply(g.controls.SetCancelEnabled, false)
}

// Finished returns the surface to Idle from any state, restoring
// navigation and the close action.
func (g *Gate) Finished() {
	g.mu.Lock()
	g.state = Idle
	g.mu.Unlock()

	g.apply(g.controls.SetCancelVisible, false)
	g.apply(g.controls.SetCancelEnabled, false)
	g.apply(g.controls.SetStartEnabled, true)
	g.apply(g.controls.SetNavigationEnabled, true)
	g.apply(g.controls.SetCloseAllowed, true)
}

// AllowClose reports whether the application may close immediately. During
// any non-Idle state the close must be deferred behind a confirmation
// prompt instead.
func (g *Gate) AllowClose() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == Idle
}

func (g *Gate) apply(control func(bool), value bool) {
	if control != nil {
		control(value)
	}
}
