package main

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goa-uva/solys2scope/internal/panel"
)

// stubSession is a minimal session that finishes as soon as it starts.
type stubSession struct {
	mu       sync.Mutex
	started  bool
	finished bool
}

func (s *stubSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	s.finished = true
	return nil
}

func (s *stubSession) Stop() {}

func (s *stubSession) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

func (s *stubSession) Err() error { return nil }

func (s *stubSession) wasStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func TestConnectingSessionConnectsBeforeStart(t *testing.T) {
	inner := &stubSession{}
	var order []string
	session := &connectingSession{
		Session: inner,
		connect: func() error {
			order = append(order, "connect")
			return nil
		},
	}

	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(order) != 1 || order[0] != "connect" {
		t.Errorf("Connect calls = %v, want exactly one before the session starts", order)
	}
	if !inner.wasStarted() {
		t.Error("Inner session never started")
	}
}

func TestConnectingSessionConnectFailure(t *testing.T) {
	wantErr := errors.New("connection refused")
	inner := &stubSession{}
	session := &connectingSession{Session: inner, connect: func() error { return wantErr }}

	if err := session.Start(); !errors.Is(err, wantErr) {
		t.Errorf("Start error = %v, want %v", err, wantErr)
	}
	if inner.wasStarted() {
		t.Error("Inner session must not start when the connect fails")
	}
}

func TestSlowConnectDoesNotBlockWatchCaller(t *testing.T) {
	// A connect that stalls, the way a dial to an unresponsive tracker
	// does, must stall the runner's worker, never the calling thread.
	release := make(chan struct{})
	session := &connectingSession{
		Session: &stubSession{},
		connect: func() error {
			<-release
			return nil
		},
	}

	done := make(chan error, 1)
	runner := panel.NewRunner(func(fn func()) { fn() })

	start := time.Now()
	runner.Watch(session, func(err error) { done <- err })
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("Watch blocked its caller for %v", elapsed)
	}

	close(release)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Completion error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Completion signal never arrived")
	}
}

func TestPrepSessionStopCancels(t *testing.T) {
	cancelled := false
	session := prepSession{cancel: func() { cancelled = true }}
	session.Stop()
	if !cancelled {
		t.Error("Stop must forward to the preparation cancel")
	}
	if session.IsFinished() {
		t.Error("A preparation session never reports finished on its own")
	}
}
