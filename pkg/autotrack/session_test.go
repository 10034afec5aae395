package autotrack

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goa-uva/solys2scope/pkg/positioncalc"
)

// recordingLogger captures the log stream for assertions.
type recordingLogger struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingLogger) record(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(level+":"+format, args...))
}

func (l *recordingLogger) Debug(format string, args ...interface{}) {
	l.record("DEBUG", format, args...)
}
func (l *recordingLogger) Info(format string, args ...interface{}) {
	l.record("INFO", format, args...)
}
func (l *recordingLogger) Warning(format string, args ...interface{}) {
	l.record("WARNING", format, args...)
}
func (l *recordingLogger) Error(format string, args ...interface{}) {
	l.record("ERROR", format, args...)
}

// count returns how many recorded events contain the substring.
func (l *recordingLogger) count(substring string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, event := range l.events {
		if strings.Contains(event, substring) {
			n++
		}
	}
	return n
}

// fakeMount records every commanded position and can fail on demand.
type fakeMount struct {
	mu    sync.Mutex
	moves []Offset
	err   error
}

func (m *fakeMount) MoveTo(azimuth, zenith float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.moves = append(m.moves, Offset{Azimuth: azimuth, Zenith: zenith})
	return nil
}

func (m *fakeMount) moveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.moves)
}

// fakeEphemeris returns a fixed position, or an error.
type fakeEphemeris struct {
	pos positioncalc.Position
	err error
}

func (e fakeEphemeris) Position(positioncalc.Body, positioncalc.Observer, time.Time) (positioncalc.Position, error) {
	return e.pos, e.err
}

// waitFinished polls the session until it reaches the terminal state.
func waitFinished(t *testing.T, s Session) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !s.IsFinished() {
		if time.Now().After(deadline) {
			t.Fatal("Session did not finish in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRunFinishesOnce(t *testing.T) {
	logger := &recordingLogger{}
	run := NewRun("connectivity probe", logger, func() error { return nil })

	if run.IsFinished() {
		t.Error("Expected session to start unfinished")
	}
	if err := run.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFinished(t, run)

	if run.Err() != nil {
		t.Errorf("Err = %v, want nil", run.Err())
	}
	// Terminal state is sticky
	run.Stop()
	if !run.IsFinished() {
		t.Error("Stop after finish must not resume the session")
	}
}

func TestRunSurfacesError(t *testing.T) {
	logger := &recordingLogger{}
	wantErr := errors.New("connection refused")
	run := NewRun("connectivity probe", logger, func() error { return wantErr })

	if err := run.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFinished(t, run)

	if !errors.Is(run.Err(), wantErr) {
		t.Errorf("Err = %v, want %v", run.Err(), wantErr)
	}
	if logger.count("ERROR") == 0 {
		t.Error("Expected the failure to be logged")
	}
}

func TestRunStartTwice(t *testing.T) {
	run := NewRun("probe", &recordingLogger{}, func() error { return nil })
	if err := run.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := run.Start(); err == nil {
		t.Error("Expected second Start to fail")
	}
	waitFinished(t, run)
}

func TestStopBeforeFinishIsHonored(t *testing.T) {
	release := make(chan struct{})
	run := NewRun("probe", &recordingLogger{}, func() error {
		<-release
		return nil
	})
	if err := run.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	run.Stop()
	if run.IsFinished() {
		t.Error("Stop must not mark the session finished by itself")
	}
	close(release)
	waitFinished(t, run)
}

func TestPlannedPositionWrapsAndClamps(t *testing.T) {
	eph := fakeEphemeris{pos: positioncalc.Position{Azimuth: 350, Zenith: 88}}

	azimuth, zenith, err := PlannedPosition(eph, positioncalc.Sun, positioncalc.Observer{}, Offset{Azimuth: 20, Zenith: 5}, time.Now())
	if err != nil {
		t.Fatalf("PlannedPosition failed: %v", err)
	}
	if azimuth != 10 {
		t.Errorf("Azimuth = %v, want 10 (wrapped)", azimuth)
	}
	if zenith != 90 {
		t.Errorf("Zenith = %v, want 90 (clamped)", zenith)
	}

	azimuth, zenith, err = PlannedPosition(eph, positioncalc.Sun, positioncalc.Observer{}, Offset{Azimuth: -355, Zenith: -100}, time.Now())
	if err != nil {
		t.Fatalf("PlannedPosition failed: %v", err)
	}
	if azimuth != 355 {
		t.Errorf("Azimuth = %v, want 355 (wrapped)", azimuth)
	}
	if zenith != 0 {
		t.Errorf("Zenith = %v, want 0 (clamped)", zenith)
	}
}

func TestPlannedPositionPropagatesError(t *testing.T) {
	eph := fakeEphemeris{err: errors.New("kernel not loaded")}
	if _, _, err := PlannedPosition(eph, positioncalc.Moon, positioncalc.Observer{}, Offset{}, time.Now()); err == nil {
		t.Error("Expected ephemeris error to propagate")
	}
}
