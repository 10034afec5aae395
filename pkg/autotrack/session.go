// Package autotrack implements the long-running instrument operations:
// body tracking, cross and mesh calibration scans, the black-moon routine,
// and one-shot background runs. Every operation satisfies the same
// start/poll/stop contract so callers can drive them uniformly.
package autotrack

import (
	"errors"
	"sync"
	"time"
)

// errAlreadyStarted is returned when Start is called twice on one session.
var errAlreadyStarted = errors.New("session already started")

// Session is the uniform contract for one in-flight operation.
// Start launches the operation on a background goroutine and returns
// immediately; IsFinished is non-blocking; Stop requests cooperative
// termination and is a no-op once finished.
type Session interface {
	Start() error
	IsFinished() bool
	Stop()
	Err() error
}

// Logger receives the operation's log stream. *oplog.Router satisfies it.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warning(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Mount is the subset of tracker commands the operations need.
// *solys2.Client satisfies it.
type Mount interface {
	MoveTo(azimuth, zenith float64) error
}

// lifecycle holds the two flags shared across the thread boundary: the
// stop request, set by the caller and read by the operation loop, and the
// finished flag, written exactly once by the operation.
type lifecycle struct {
	mu       sync.Mutex
	stopping bool
	finished bool
	err      error
}

// Stop requests early termination. The operation honors it at its next
// safe checkpoint, never mid-step. No-op once finished.
func (l *lifecycle) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finished {
		return
	}
	l.stopping = true
}

// IsFinished reports whether the operation has reached a terminal state.
func (l *lifecycle) IsFinished() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.finished
}

// Err returns the error the operation terminated with, if any.
// Only meaningful once IsFinished reports true.
func (l *lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// stopRequested reports whether Stop has been called.
func (l *lifecycle) stopRequested() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopping
}

// finish marks the operation terminal. The transition happens at most
// once; later calls keep the first error.
func (l *lifecycle) finish(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finished {
		return
	}
	l.finished = true
	l.err = err
}

// Run wraps a one-shot blocking function in the Session contract. Used for
// connectivity probes and single spectrometer acquisitions, which have no
// internal checkpoints and therefore ignore Stop until they return.
type Run struct {
	lifecycle

	// name identifies the run in its log stream
	name string

	// fn is the blocking work
	fn func() error

	// log receives start and termination events
	log Logger

	started bool
}

// NewRun creates a session around one blocking function.
func NewRun(name string, logger Logger, fn func() error) *Run {
	return &Run{name: name, fn: fn, log: logger}
}

// Start launches the function on a background goroutine.
func (r *Run) Start() error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errAlreadyStarted
	}
	r.started = true
	r.mu.Unlock()

	r.log.Info("%s started", r.name)
	go func() {
		err := r.fn()
		if err != nil {
			r.log.Error("%s failed: %v", r.name, err)
		} else {
			r.log.Info("%s finished", r.name)
		}
		r.finish(err)
	}()
	return nil
}

// sleeper abstracts time.Sleep so tests can run operations at full speed.
type sleeper func(d time.Duration)
