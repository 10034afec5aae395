package panel

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// syncDispatcher runs dispatched functions immediately on the calling
// goroutine, standing in for the UI event loop.
func syncDispatcher(fn func()) { fn() }

// fakeSession is a scripted operation session.
type fakeSession struct {
	mu       sync.Mutex
	startErr error
	started  bool
	stopped  bool
	finished bool
	err      error

	// finishAfter marks the session finished this long after Start
	finishAfter time.Duration

	// finishOnStop marks the session finished when Stop is called
	finishOnStop bool

	// startGate, when set, blocks Start until the channel is closed
	startGate chan struct{}
}

func (s *fakeSession) Start() error {
	if s.startGate != nil {
		<-s.startGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	if s.finishAfter > 0 {
		go func() {
			time.Sleep(s.finishAfter)
			s.mu.Lock()
			s.finished = true
			s.mu.Unlock()
		}()
	}
	return nil
}

func (s *fakeSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.finishOnStop {
		s.finished = true
	}
}

func (s *fakeSession) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

func (s *fakeSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSession) wasStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// fakeSpectrometer scripts the preparation chain.
type fakeSpectrometer struct {
	mu          sync.Mutex
	calls       []string
	connectErr  error
	restoreErr  error
	optimizeErr error

	// onRestore runs inside Restore, before it returns
	onRestore func()
}

func (f *fakeSpectrometer) call(name string, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return err
}

func (f *fakeSpectrometer) Connect() error { return f.call("connect", f.connectErr) }

func (f *fakeSpectrometer) Restore() error {
	if f.onRestore != nil {
		f.onRestore()
	}
	return f.call("restore", f.restoreErr)
}

func (f *fakeSpectrometer) Optimize() error { return f.call("optimize", f.optimizeErr) }

func (f *fakeSpectrometer) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fastRunner returns a runner polling quickly enough for tests.
func fastRunner() *Runner {
	r := NewRunner(syncDispatcher)
	r.interval = time.Millisecond
	return r
}

func TestWatchSignalsExactlyOnce(t *testing.T) {
	session := &fakeSession{finishAfter: 5 * time.Millisecond}

	var mu sync.Mutex
	signals := 0
	var got error
	done := make(chan struct{})
	fastRunner().Watch(session, func(err error) {
		mu.Lock()
		signals++
		got = err
		mu.Unlock()
		close(done)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Completion signal never arrived")
	}
	// Give a duplicate signal a chance to show up
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if signals != 1 {
		t.Errorf("Got %d completion signals, want exactly 1", signals)
	}
	if got != nil {
		t.Errorf("Completion error = %v, want nil", got)
	}
}

func TestWatchSignalsAfterTerminalState(t *testing.T) {
	session := &fakeSession{finishAfter: 5 * time.Millisecond}

	done := make(chan struct{})
	fastRunner().Watch(session, func(error) {
		if !session.IsFinished() {
			t.Error("Completion signaled before the session reached its terminal state")
		}
		close(done)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Completion signal never arrived")
	}
}

func TestWatchSurfacesSessionError(t *testing.T) {
	wantErr := errors.New("travel bounds exceeded")
	session := &fakeSession{finishAfter: time.Millisecond, err: wantErr}

	done := make(chan error, 1)
	fastRunner().Watch(session, func(err error) { done <- err })

	select {
	case err := <-done:
		if !errors.Is(err, wantErr) {
			t.Errorf("Completion error = %v, want %v", err, wantErr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Completion signal never arrived")
	}
}

func TestWatchStartFailureTakesTerminationPath(t *testing.T) {
	wantErr := errors.New("connection refused")
	session := &fakeSession{startErr: wantErr}

	done := make(chan error, 1)
	fastRunner().Watch(session, func(err error) { done <- err })

	select {
	case err := <-done:
		if !errors.Is(err, wantErr) {
			t.Errorf("Completion error = %v, want %v", err, wantErr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start failure was not routed to the termination path")
	}
}

func TestPrepareASDHappyPath(t *testing.T) {
	tracking := &fakeSession{finishOnStop: true}
	spectrometer := &fakeSpectrometer{}

	done := make(chan error, 1)
	fastRunner().PrepareASD(tracking, spectrometer, func(err error) { done <- err })

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Ready error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Ready signal never arrived")
	}

	if !tracking.wasStopped() {
		t.Error("Expected the pointing tracker to be stopped")
	}
	spectrometer.mu.Lock()
	defer spectrometer.mu.Unlock()
	want := []string{"connect", "restore", "optimize"}
	if len(spectrometer.calls) != len(want) {
		t.Fatalf("Spectrometer calls = %v, want %v", spectrometer.calls, want)
	}
	for i := range want {
		if spectrometer.calls[i] != want[i] {
			t.Errorf("Call %d = %s, want %s", i, spectrometer.calls[i], want[i])
		}
	}
}

func TestPrepareASDOptimizeFailureStopsTrackerFirst(t *testing.T) {
	wantErr := errors.New("optimization failed")
	tracking := &fakeSession{finishOnStop: true}
	spectrometer := &fakeSpectrometer{optimizeErr: wantErr}

	done := make(chan error, 1)
	var stoppedWhenReady bool
	fastRunner().PrepareASD(tracking, spectrometer, func(err error) {
		stoppedWhenReady = tracking.wasStopped() && tracking.IsFinished()
		done <- err
	})

	select {
	case err := <-done:
		if !errors.Is(err, wantErr) {
			t.Errorf("Ready error = %v, want %v", err, wantErr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Ready signal never arrived")
	}

	if !stoppedWhenReady {
		t.Error("Tracker must be stopped and drained before the failure is surfaced")
	}
}

func TestPrepareASDConnectFailureStopsTracker(t *testing.T) {
	tracking := &fakeSession{finishOnStop: true}
	spectrometer := &fakeSpectrometer{connectErr: errors.New("no route to host")}

	done := make(chan error, 1)
	fastRunner().PrepareASD(tracking, spectrometer, func(err error) { done <- err })

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected the connect failure to be surfaced")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Ready signal never arrived")
	}
	if !tracking.wasStopped() {
		t.Error("Expected the pointing tracker to be stopped after connect failure")
	}
}

func TestPrepareASDCancelSkipsRemainingSteps(t *testing.T) {
	tracking := &fakeSession{finishOnStop: true}
	spectrometer := &fakeSpectrometer{}

	// The cancel handle only exists once PrepareASD returns, but the chain
	// may reach Restore before that. Hand it over through a channel.
	cancelReady := make(chan func(), 1)
	spectrometer.onRestore = func() {
		cancel := <-cancelReady
		cancel()
	}

	done := make(chan error, 1)
	cancel := fastRunner().PrepareASD(tracking, spectrometer, func(err error) { done <- err })
	cancelReady <- cancel

	select {
	case err := <-done:
		if !errors.Is(err, ErrPrepareCancelled) {
			t.Errorf("Ready error = %v, want ErrPrepareCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Ready signal never arrived")
	}

	if !tracking.wasStopped() || !tracking.IsFinished() {
		t.Error("Expected the pointing tracker to be stopped and drained after cancel")
	}
	calls := spectrometer.callNames()
	want := []string{"connect", "restore"}
	if len(calls) != len(want) || calls[0] != want[0] || calls[1] != want[1] {
		t.Errorf("Spectrometer calls = %v, want %v; cancel must skip the remaining steps", calls, want)
	}
}

func TestPrepareASDCancelBeforeStartedChain(t *testing.T) {
	tracking := &fakeSession{finishOnStop: true}
	spectrometer := &fakeSpectrometer{}

	// A start slow enough that cancel lands before the chain begins.
	release := make(chan struct{})
	tracking.startGate = release

	done := make(chan error, 1)
	cancel := fastRunner().PrepareASD(tracking, spectrometer, func(err error) { done <- err })
	cancel()
	close(release)

	select {
	case err := <-done:
		if !errors.Is(err, ErrPrepareCancelled) {
			t.Errorf("Ready error = %v, want ErrPrepareCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Ready signal never arrived")
	}

	if calls := spectrometer.callNames(); len(calls) != 0 {
		t.Errorf("Spectrometer must not be touched after an early cancel, got %v", calls)
	}
}

func TestPrepareASDTrackingStartFailure(t *testing.T) {
	wantErr := errors.New("tracker unreachable")
	tracking := &fakeSession{startErr: wantErr}
	spectrometer := &fakeSpectrometer{}

	done := make(chan error, 1)
	fastRunner().PrepareASD(tracking, spectrometer, func(err error) { done <- err })

	select {
	case err := <-done:
		if !errors.Is(err, wantErr) {
			t.Errorf("Ready error = %v, want %v", err, wantErr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Ready signal never arrived")
	}

	spectrometer.mu.Lock()
	defer spectrometer.mu.Unlock()
	if len(spectrometer.calls) != 0 {
		t.Errorf("Spectrometer must not be touched when tracking fails to start, got %v", spectrometer.calls)
	}
}
