// Package panel implements the coordination layer between long-running
// instrument operations and a single-threaded interactive surface: the
// background runner that polls sessions, and the gate that locks the
// surface while one is in flight.
package panel

import (
	"errors"
	"sync"
	"time"

	"github.com/goa-uva/solys2scope/pkg/autotrack"
)

// ErrPrepareCancelled reports that the spectrometer preparation chain was
// cancelled before completing.
var ErrPrepareCancelled = errors.New("spectrometer preparation cancelled")

// Dispatcher posts a function onto the interactive thread. For the tview
// control panel this wraps Application.QueueUpdateDraw; tests use a
// synchronous dispatcher.
type Dispatcher func(fn func())

// Spectrometer is the subset of instrument operations the composite
// preparation path needs. *asd.Client satisfies it.
type Spectrometer interface {
	Connect() error
	Restore() error
	Optimize() error
}

// pollInterval is the coarse cadence for checking session completion.
// These are multi-second physical operations; sub-second responsiveness
// buys nothing.
const pollInterval = time.Second

// Runner bridges a session's background execution to the interactive
// thread. After a session starts, the runner polls its terminal flag on a
// worker goroutine and signals the interactive thread exactly once.
type Runner struct {
	// dispatch posts completion signals to the interactive thread
	dispatch Dispatcher

	// interval is the completion poll cadence
	interval time.Duration
}

// NewRunner creates a runner signaling through the given dispatcher.
func NewRunner(dispatch Dispatcher) *Runner {
	return &Runner{dispatch: dispatch, interval: pollInterval}
}

// Watch starts the session and polls it until terminal, then delivers the
// session's terminal error (nil on normal completion or user stop) to done
// on the interactive thread, exactly once. A failure to start takes the
// same path, so the caller has a single termination handler.
func (r *Runner) Watch(session autotrack.Session, done func(err error)) {
	go func() {
		if err := session.Start(); err != nil {
			r.dispatch(func() { done(err) })
			return
		}
		r.await(session)
		err := session.Err()
		r.dispatch(func() { done(err) })
	}()
}

// PrepareASD runs the spectrometer preparation chain on a worker goroutine:
// a short tracking session points the mount, the spectrometer is connected,
// restored, and optimized against the tracked light level while the mount
// keeps following, then tracking is stopped and drained. Only after the
// tracker has fully stopped is ready signaled, with the first error of the
// chain if any step failed. The mount is never left in motion on failure.
//
// The returned cancel requests a cooperative abort: cancellation takes
// effect between chain steps (a step already in flight runs to completion),
// and ready then receives ErrPrepareCancelled.
func (r *Runner) PrepareASD(tracking autotrack.Session, spectrometer Spectrometer, ready func(err error)) (cancel func()) {
	prep := &preparation{tracking: tracking}
	go func() {
		err := r.prepareASD(prep, spectrometer)
		r.dispatch(func() { ready(err) })
	}()
	return prep.cancel
}

// preparation carries the cancellation flag shared between the worker
// running the chain and the interactive thread requesting an abort.
type preparation struct {
	mu        sync.Mutex
	cancelled bool
	tracking  autotrack.Session
}

func (p *preparation) cancel() {
	p.mu.Lock()
	p.cancelled = true
	p.mu.Unlock()
	// Stopping the tracking session early is safe: the chain stops and
	// drains it again before signaling ready.
	p.tracking.Stop()
}

func (p *preparation) isCancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

func (r *Runner) prepareASD(prep *preparation, spectrometer Spectrometer) error {
	if err := prep.tracking.Start(); err != nil {
		return err
	}

	err := prepareSpectrometer(prep, spectrometer)

	// The tracker is stopped and drained regardless of how the
	// spectrometer chain went.
	prep.tracking.Stop()
	r.await(prep.tracking)

	if err != nil {
		return err
	}
	if prep.isCancelled() {
		return ErrPrepareCancelled
	}
	return prep.tracking.Err()
}

func prepareSpectrometer(prep *preparation, spectrometer Spectrometer) error {
	if prep.isCancelled() {
		return ErrPrepareCancelled
	}
	if err := spectrometer.Connect(); err != nil {
		return err
	}
	if prep.isCancelled() {
		return ErrPrepareCancelled
	}
	if err := spectrometer.Restore(); err != nil {
		return err
	}
	if prep.isCancelled() {
		return ErrPrepareCancelled
	}
	return spectrometer.Optimize()
}

// await polls the session's terminal flag at the runner's cadence.
func (r *Runner) await(session autotrack.Session) {
	for !session.IsFinished() {
		time.Sleep(r.interval)
	}
}
