package oplog

import (
	"strconv"
	"strings"
	"sync"
)

// countdownPrefix marks the machine-parseable seconds-remaining events that
// tracking and scan operations emit before each measurement point.
const countdownPrefix = "countdown:"

// asyncSink dispatches events to a handler on its own goroutine, so a slow
// display never blocks the operation emitting the events. Close drains the
// queue before returning, which is what makes detach lossless.
//
// The queue is bounded. A handler that stalls until the queue fills makes
// Handle block the emitter instead of dropping events: sinks must see every
// event exactly once, in order, so shedding load here is not an option. At
// the operations' emission cadence of a few events per second, filling the
// queue takes a stall of well over a minute.
type asyncSink struct {
	events  chan Event
	done    sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

func newAsyncSink(handler func(event Event)) *asyncSink {
	s := &asyncSink{events: make(chan Event, 64)}
	s.done.Add(1)
	go func() {
		defer s.done.Done()
		for event := range s.events {
			handler(event)
		}
	}()
	return s
}

// Handle queues the event for dispatch.
func (s *asyncSink) Handle(event Event) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.events <- event
}

// Close stops accepting events, drains the queue, and waits for the
// dispatcher goroutine to exit. Safe to call more than once.
func (s *asyncSink) Close() {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return
	}
	s.closed = true
	close(s.events)
	s.closeMu.Unlock()

	s.done.Wait()
}

// NewTranscriptSink returns a sink that forwards every formatted log line to
// display, in emission order. Used for scrolling transcript views.
func NewTranscriptSink(display func(line string)) Sink {
	return newAsyncSink(func(event Event) {
		display(event.Line())
	})
}

// NewCountdownSink returns a sink that extracts the seconds-remaining value
// from countdown events and forwards it to display. When the countdown
// reaches zero the terminal label is shown instead, so a run that triggers
// an automatic capture can show "MEASURING..." while a manual one shows
// "MEASURE NOW".
func NewCountdownSink(terminalLabel string, display func(value string)) Sink {
	return newAsyncSink(func(event Event) {
		remaining, ok := parseCountdown(event.Message)
		if !ok {
			return
		}
		if remaining == 0 {
			display(terminalLabel)
			return
		}
		display(strconv.Itoa(remaining))
	})
}

// NewStepSink returns a sink that invokes advanced once per countdown
// zero-crossing, driving a scan plan's progress display.
func NewStepSink(advanced func()) Sink {
	return newAsyncSink(func(event Event) {
		if remaining, ok := parseCountdown(event.Message); ok && remaining == 0 {
			advanced()
		}
	})
}

// parseCountdown extracts the seconds-remaining value from a countdown
// event message. Returns false for every other message.
func parseCountdown(message string) (int, bool) {
	if !strings.HasPrefix(message, countdownPrefix) {
		return 0, false
	}
	value, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(message, countdownPrefix)))
	if err != nil {
		return 0, false
	}
	return value, true
}
