// Package oplog routes an operation's log stream to a durable per-run file
// and to any number of live display sinks.
package oplog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents the severity of a log event
type Level string

const (
	LevelDebug   Level = "DEBUG"
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// Event is a single log entry routed to every sink.
type Event struct {
	Time    time.Time
	Level   Level
	Message string
}

// Line returns the event formatted as it appears in the log file.
func (e Event) Line() string {
	return fmt.Sprintf("%s:%s", e.Level, e.Message)
}

// Sink receives routed events. Handle is called in emission order from a
// single producer; implementations that dispatch asynchronously must drain
// their queue in Close so no event is lost or duplicated on detach.
type Sink interface {
	Handle(event Event)
	Close()
}

// Router fans out one operation's log stream to a per-run file and to the
// attached sinks. Construction without sinks is valid for headless use.
type Router struct {
	// file is the durable per-run log file
	file *os.File

	// path is the full path of the log file
	path string

	// sinks receive every event until detached
	sinks []Sink

	// mu serializes emission and sink list changes
	mu sync.Mutex

	// closed blocks further emission after Close
	closed bool
}

// FileName returns the per-run log file name for an operation started at the
// given instant. The UTC timestamp to the second keeps names unique under
// normal operation cadence.
func FileName(operation string, start time.Time) string {
	return fmt.Sprintf("%s_%s.log.txt", operation, start.UTC().Format("20060102150405"))
}

// NewRouter creates a router writing to a new per-run file in folder.
// The folder is created if it does not exist.
func NewRouter(operation, folder string, start time.Time) (*Router, error) {
	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log folder: %w", err)
	}

	path := filepath.Join(folder, FileName(operation, start))
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	return &Router{file: file, path: path}, nil
}

// Path returns the full path of the per-run log file.
func (r *Router) Path() string {
	return r.path
}

// Attach adds a sink. Events emitted after Attach returns reach the sink.
func (r *Router) Attach(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, sink)
}

// Detach removes a sink and closes it, draining any events still queued in
// the sink's dispatcher. Events emitted after Detach returns are not seen.
func (r *Router) Detach(sink Sink) {
	r.mu.Lock()
	for i, s := range r.sinks {
		if s == sink {
			r.sinks = append(r.sinks[:i], r.sinks[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	sink.Close()
}

// Close detaches every remaining sink and closes the log file.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sinks := r.sinks
	r.sinks = nil
	r.mu.Unlock()

	for _, sink := range sinks {
		sink.Close()
	}
	return r.file.Close()
}

// Debug logs a debug event
func (r *Router) Debug(format string, args ...interface{}) {
	r.emit(LevelDebug, format, args...)
}

// Info logs an info event
func (r *Router) Info(format string, args ...interface{}) {
	r.emit(LevelInfo, format, args...)
}

// Warning logs a warning event
func (r *Router) Warning(format string, args ...interface{}) {
	r.emit(LevelWarning, format, args...)
}

// Error logs an error event
func (r *Router) Error(format string, args ...interface{}) {
	r.emit(LevelError, format, args...)
}

// emit writes the event to the file and fans it out to every attached sink,
// preserving emission order. Fan-out happens under the router mutex, so a
// sink whose queue has filled backpressures every emitter until it drains;
// see asyncSink for why events are never dropped instead.
func (r *Router) emit(level Level, format string, args ...interface{}) {
	event := Event{
		Time:    time.Now(),
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	fmt.Fprintln(r.file, event.Line())
	for _, sink := range r.sinks {
		sink.Handle(event)
	}
}
