package panel

import "testing"

// recordingControls tracks the latest value the gate applied to each
// control.
type recordingControls struct {
	startEnabled  bool
	cancelVisible bool
	cancelEnabled bool
	navEnabled    bool
	closeAllowed  bool
}

func (c *recordingControls) controls() Controls {
	return Controls{
		SetStartEnabled:      func(v bool) { c.startEnabled = v },
		SetCancelVisible:     func(v bool) { c.cancelVisible = v },
		SetCancelEnabled:     func(v bool) { c.cancelEnabled = v },
		SetNavigationEnabled: func(v bool) { c.navEnabled = v },
		SetCloseAllowed:      func(v bool) { c.closeAllowed = v },
	}
}

func newTestGate() (*Gate, *recordingControls) {
	rc := &recordingControls{startEnabled: true, navEnabled: true, closeAllowed: true}
	return NewGate(rc.controls()), rc
}

func TestGateFullCycle(t *testing.T) {
	gate, rc := newTestGate()

	if gate.State() != Idle {
		t.Fatalf("Initial state = %s, want IDLE", gate.State())
	}

	if err := gate.Starting(); err != nil {
		t.Fatalf("Starting failed: %v", err)
	}
	if gate.State() != Starting {
		t.Errorf("State = %s, want STARTING", gate.State())
	}
	if rc.startEnabled || rc.navEnabled || rc.closeAllowed {
		t.Error("Starting must disable start, navigation, and close")
	}
	if !rc.cancelVisible || rc.cancelEnabled {
		t.Error("Starting must show a disabled cancel control")
	}

	gate.Running()
	if gate.State() != Running {
		t.Errorf("State = %s, want RUNNING", gate.State())
	}
	if !rc.cancelEnabled {
		t.Error("Running must enable the cancel control")
	}

	gate.Stopping()
	if gate.State() != Stopping {
		t.Errorf("State = %s, want STOPPING", gate.State())
	}
	if rc.cancelEnabled {
		t.Error("Stopping must disable the cancel control")
	}

	gate.Finished()
	if gate.State() != Idle {
		t.Errorf("State = %s, want IDLE", gate.State())
	}
	if !rc.startEnabled || !rc.navEnabled || !rc.closeAllowed {
		t.Error("Finished must restore start, navigation, and close")
	}
	if rc.cancelVisible {
		t.Error("Finished must hide the cancel control")
	}
}

func TestGateRefusesSecondStart(t *testing.T) {
	gate, _ := newTestGate()

	if err := gate.Starting(); err != nil {
		t.Fatalf("Starting failed: %v", err)
	}
	if err := gate.Starting(); err == nil {
		t.Error("Expected Starting to refuse while an operation is in flight")
	}

	gate.Running()
	if err := gate.Starting(); err == nil {
		t.Error("Expected Starting to refuse during RUNNING")
	}

	gate.Finished()
	if err := gate.Starting(); err != nil {
		t.Errorf("Starting after Finished failed: %v", err)
	}
}

func TestGateInvalidTransitionsIgnored(t *testing.T) {
	gate, rc := newTestGate()

	// Running and Stopping outside their predecessors are no-ops
	gate.Running()
	if gate.State() != Idle {
		t.Errorf("Running from IDLE moved state to %s", gate.State())
	}
	gate.Stopping()
	if gate.State() != Idle {
		t.Errorf("Stopping from IDLE moved state to %s", gate.State())
	}
	if rc.cancelVisible {
		t.Error("No-op transitions must not touch controls")
	}
}

func TestGateAllowClose(t *testing.T) {
	gate, _ := newTestGate()

	if !gate.AllowClose() {
		t.Error("Close must be allowed while IDLE")
	}
	if err := gate.Starting(); err != nil {
		t.Fatalf("Starting failed: %v", err)
	}
	if gate.AllowClose() {
		t.Error("Close must be deferred while STARTING")
	}
	gate.Running()
	if gate.AllowClose() {
		t.Error("Close must be deferred while RUNNING")
	}
	gate.Stopping()
	if gate.AllowClose() {
		t.Error("Close must be deferred while STOPPING")
	}
	gate.Finished()
	if !gate.AllowClose() {
		t.Error("Close must be allowed again after Finished")
	}
}

func TestGateNilControls(t *testing.T) {
	gate := NewGate(Controls{})
	if err := gate.Starting(); err != nil {
		t.Fatalf("Starting with no controls failed: %v", err)
	}
	gate.Running()
	gate.Stopping()
	gate.Finished()
	if gate.State() != Idle {
		t.Errorf("State = %s, want IDLE", gate.State())
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Idle, "IDLE"},
		{Starting, "STARTING"},
		{Running, "RUNNING"},
		{Stopping, "STOPPING"},
	}
	for _, test := range tests {
		if got := test.state.String(); got != test.want {
			t.Errorf("String(%d) = %s, want %s", int(test.state), got, test.want)
		}
	}
}
