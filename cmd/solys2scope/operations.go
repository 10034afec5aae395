package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/goa-uva/solys2scope/internal/db"
	"github.com/goa-uva/solys2scope/internal/panel"
	"github.com/goa-uva/solys2scope/pkg/asd"
	"github.com/goa-uva/solys2scope/pkg/autotrack"
	"github.com/goa-uva/solys2scope/pkg/oplog"
	"github.com/goa-uva/solys2scope/pkg/positioncalc"
)

// scanKind selects the offset plan for a calibration scan.
type scanKind int

const (
	crossScan scanKind = iota
	meshScan
)

// acquireTimeout bounds one spectrometer capture. Long integration times
// take over two seconds per channel pass, so this is generous on purpose.
const acquireTimeout = 2 * time.Minute

// prepTrackInterval is the repositioning cadence of the short tracking
// session that runs while the spectrometer is prepared.
const prepTrackInterval = 5

// connectingSession defers the tracker connection into Start, which the
// background runner executes on its worker goroutine. The interactive
// thread never waits on the dial or the login exchange.
type connectingSession struct {
	autotrack.Session
	connect func() error
}

func (s *connectingSession) Start() error {
	if err := s.connect(); err != nil {
		return err
	}
	return s.Session.Start()
}

// prepSession adapts the preparation chain's cancel to the session
// contract, so the shared cancel control can drive it through the normal
// stop path.
type prepSession struct {
	cancel func()
}

func (p prepSession) Start() error     { return nil }
func (p prepSession) Stop()            { p.cancel() }
func (p prepSession) IsFinished() bool { return false }
func (p prepSession) Err() error       { return nil }

// startTrack launches a continuous tracking operation. With withASD set,
// the spectrometer is connected, restored and optimized against the
// tracked light level first, and every interval ends with a capture.
func (a *App) startTrack(body positioncalc.Body, form *tview.Form, withASD bool) {
	interval, err := intField(form, "Track interval (s)")
	if err != nil {
		a.addLog(err.Error())
		return
	}
	if withASD && a.spectro == nil {
		a.addLog("Enable the ASD spectrometer on the configuration page first")
		return
	}

	if err := a.gate.Starting(); err != nil {
		a.addLog(err.Error())
		return
	}
	a.updateStatus("Starting...")

	if withASD {
		a.prepareASDThenTrack(body, interval)
		return
	}
	a.launchTrack(body, interval)
}

// launchTrack starts the tracking session proper. The gate is already in
// Starting when this runs.
func (a *App) launchTrack(body positioncalc.Body, interval int) {
	name := fmt.Sprintf("%s_TRACK", body)
	a.launch(name, body.String(), func(router *oplog.Router, runID int) autotrack.Session {
		return autotrack.NewTracker(a.tracker, a.eph, router, autotrack.TrackerConfig{
			Body:            body,
			Observer:        a.observer,
			IntervalSeconds: interval,
			Measure:         a.measureFor(runID),
		})
	}, 0)
}

// startScan launches a cross or mesh calibration scan around the body.
func (a *App) startScan(body positioncalc.Body, form *tview.Form, kind scanKind) {
	azimuth, err := rangeField(form, "Azimuth range (min/max/step °)")
	if err != nil {
		a.addLog(err.Error())
		return
	}
	zenith, err := rangeField(form, "Zenith range (min/max/step °)")
	if err != nil {
		a.addLog(err.Error())
		return
	}
	countdownSeconds, err := intField(form, "Scan countdown (s)")
	if err != nil {
		a.addLog(err.Error())
		return
	}
	restSeconds, err := intField(form, "Scan rest (s)")
	if err != nil {
		a.addLog(err.Error())
		return
	}

	if err := a.gate.Starting(); err != nil {
		a.addLog(err.Error())
		return
	}
	a.updateStatus("Starting...")

	kindName := "CROSS"
	plan := autotrack.CrossPlan(azimuth, zenith)
	if kind == meshScan {
		kindName = "MESH"
		plan = autotrack.MeshPlan(azimuth, zenith)
	}
	name := fmt.Sprintf("%s_%s", body, kindName)

	a.launch(name, body.String(), func(router *oplog.Router, runID int) autotrack.Session {
		cfg := autotrack.ScanConfig{
			Body:             body,
			Observer:         a.observer,
			Azimuth:          azimuth,
			Zenith:           zenith,
			CountdownSeconds: countdownSeconds,
			RestSeconds:      restSeconds,
			Measure:          a.measureFor(runID),
		}
		if kind == meshScan {
			return autotrack.NewMeshScan(a.tracker, a.eph, router, cfg)
		}
		return autotrack.NewCrossScan(a.tracker, a.eph, router, cfg)
	}, len(plan))
}

// startBlackMoon launches the black-moon calibration routine. It is only
// meaningful with the spectrometer prepared, since both measurements are
// automatic captures.
func (a *App) startBlackMoon(form *tview.Form) {
	countdownSeconds, err := intField(form, "Scan countdown (s)")
	if err != nil {
		a.addLog(err.Error())
		return
	}
	if a.spectro == nil || !a.spectro.IsConnected() {
		a.addLog("Black moon requires a prepared ASD spectrometer")
		return
	}

	if err := a.gate.Starting(); err != nil {
		a.addLog(err.Error())
		return
	}
	a.updateStatus("Starting...")

	a.launch("BLACK_MOON", positioncalc.Moon.String(), func(router *oplog.Router, runID int) autotrack.Session {
		return autotrack.NewBlackMoon(a.tracker, a.eph, router, autotrack.BlackMoonConfig{
			Observer:         a.observer,
			CountdownSeconds: countdownSeconds,
			Measure:          a.measureFor(runID),
		})
	}, 2)
}

// prepareASDThenTrack runs the composite path: a short tracking session
// points the mount at the body while the spectrometer is connected,
// restored and optimized, then the real tracking operation starts with
// captures enabled. The gate stays locked across both phases.
func (a *App) prepareASDThenTrack(body positioncalc.Body, interval int) {
	router, err := oplog.NewRouter("ASD_PREP", a.config.Log.Folder, time.Now())
	if err != nil {
		a.addLog(fmt.Sprintf("Failed to open run log: %v", err))
		a.gate.Finished()
		a.updateStatus("Ready")
		return
	}
	a.attachSinks(router, true, nil)

	prep := &connectingSession{
		connect: a.connectTracker,
		Session: autotrack.NewTracker(a.tracker, a.eph, router, autotrack.TrackerConfig{
			Body:            body,
			Observer:        a.observer,
			IntervalSeconds: prepTrackInterval,
		}),
	}

	a.updateStatus("Preparing spectrometer...")
	cancel := a.runner.PrepareASD(prep, a.spectro, func(err error) {
		router.Close()
		a.op = nil
		switch {
		case errors.Is(err, panel.ErrPrepareCancelled):
			a.addLog("Spectrometer preparation cancelled")
			a.gate.Finished()
			a.updateStatus("Ready")
		case err != nil:
			a.addLog(fmt.Sprintf("Spectrometer preparation failed: %v", err))
			a.gate.Finished()
			a.updateStatus("Ready")
		default:
			a.addLog("Spectrometer ready, starting tracking")
			a.launchTrack(body, interval)
		}
	})

	// The chain is cancellable between its steps, so the cancel control
	// goes live for the preparation phase as well.
	a.op = &operation{name: "ASD_PREP", router: router, session: prepSession{cancel: cancel}}
	a.gate.Running()
}

// launch runs the common start path: run log, archive record, session
// construction, and hand-off to the background runner. The gate must
// already be in Starting. steps of 0 means the operation has no fixed
// step count.
func (a *App) launch(name, body string, build func(router *oplog.Router, runID int) autotrack.Session, steps int) {
	router, err := oplog.NewRouter(name, a.config.Log.Folder, time.Now())
	if err != nil {
		a.addLog(fmt.Sprintf("Failed to open run log: %v", err))
		a.gate.Finished()
		a.updateStatus("Ready")
		return
	}

	runID := a.archiveRunStart(name, body, router.Path())

	op := &operation{name: name, router: router, runID: runID, steps: steps}
	a.op = op

	automatic := a.measureFor(runID) != nil
	a.attachSinks(router, automatic, func() {
		op.stepsDone++
		if op.steps > 0 {
			a.updateStatus(fmt.Sprintf("%s step %d/%d", op.name, op.stepsDone, op.steps))
		}
	})

	// The connect happens inside Start, on the runner's worker goroutine.
	// A connection failure arrives through the same termination handler as
	// any other start failure.
	op.session = &connectingSession{connect: a.connectTracker, Session: build(router, runID)}

	a.runner.Watch(op.session, func(err error) { a.operationDone(op, err) })
	a.gate.Running()
	a.updateStatus(fmt.Sprintf("%s running, log %s", name, router.Path()))
}

// attachSinks wires the run log to the transcript, countdown and step
// displays. Sink callbacks run off the interactive thread, so every
// display update goes through the dispatcher.
func (a *App) attachSinks(router *oplog.Router, automatic bool, advanced func()) {
	router.Attach(oplog.NewTranscriptSink(func(line string) {
		a.tviewApp.QueueUpdateDraw(func() { a.addLog(line) })
	}))

	terminal := "MEASURE NOW"
	if automatic {
		terminal = "MEASURING..."
	}
	router.Attach(oplog.NewCountdownSink(terminal, func(value string) {
		a.tviewApp.QueueUpdateDraw(func() {
			a.countdownView.SetText(fmt.Sprintf("\n[yellow]%s[-]", value))
		})
	}))

	if advanced != nil {
		router.Attach(oplog.NewStepSink(func() {
			a.tviewApp.QueueUpdateDraw(advanced)
		}))
	}
}

// operationDone is the single termination handler, delivered on the
// interactive thread by the runner.
func (a *App) operationDone(op *operation, err error) {
	cancelled := a.gate.State() == panel.Stopping

	status := db.RunStatusCompleted
	switch {
	case err != nil:
		status = db.RunStatusFailed
		a.addLog(fmt.Sprintf("%s failed: %v", op.name, err))
	case cancelled:
		status = db.RunStatusCancelled
		a.addLog(fmt.Sprintf("%s cancelled", op.name))
	default:
		a.addLog(fmt.Sprintf("%s completed", op.name))
	}

	errText := ""
	if err != nil {
		errText = err.Error()
	}
	a.archiveRunFinish(op.runID, status, errText)

	op.router.Close()
	a.op = nil
	a.countdownView.SetText("")
	a.gate.Finished()
	a.updateStatus("Ready")
}

// cancelOperation requests cooperative termination of the running
// operation. The session stops at its next step boundary.
func (a *App) cancelOperation() {
	if a.op == nil || a.gate.State() != panel.Running {
		return
	}
	a.gate.Stopping()
	a.updateStatus(fmt.Sprintf("Stopping %s...", a.op.name))
	a.op.session.Stop()
}

// connectTracker makes sure the command connection to the tracker is up.
// It runs on worker goroutines, so it must not touch the display.
func (a *App) connectTracker() error {
	if a.tracker.IsConnected() {
		return nil
	}
	if err := a.tracker.Connect(); err != nil {
		return fmt.Errorf("tracker connection failed: %w", err)
	}
	return nil
}

// measureFor returns the automatic capture callback for a run, or nil
// when no prepared spectrometer is available.
func (a *App) measureFor(runID int) func() error {
	if a.spectro == nil || !a.spectro.IsConnected() {
		return nil
	}
	acquirer := asd.NewAcquirer(a.spectro, a.config.ASD.Folder, acquireTimeout)
	acquirer.Saved = func(spectrum *asd.Spectrum, path string) {
		a.archiveSpectrum(runID, spectrum, path)
	}
	return acquirer.Measure
}

// Run archive helpers. The archive is optional: a missing database or a
// failed insert degrades to log messages, never to a blocked operation.

func (a *App) archiveRunStart(name, body, logFile string) int {
	if a.runRepo == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run := &db.Run{Operation: name, Body: body, StartedAt: time.Now(), LogFile: logFile}
	if err := a.runRepo.Create(ctx, run); err != nil {
		a.addLog(fmt.Sprintf("Run archive insert failed: %v", err))
		return 0
	}
	return run.ID
}

func (a *App) archiveRunFinish(runID int, status, errText string) {
	if a.runRepo == nil || runID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.runRepo.Finish(ctx, runID, status, errText); err != nil {
		a.addLog(fmt.Sprintf("Run archive update failed: %v", err))
	}
}

func (a *App) archiveSpectrum(runID int, spectrum *asd.Spectrum, path string) {
	if a.spectrumRepo == nil || runID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	record := &db.SpectrumRecord{
		RunID:           runID,
		AcquiredAt:      spectrum.Time,
		IntegrationTime: int(spectrum.IntegrationTime),
		Drift:           spectrum.Drift,
		SWIR1Gain:       spectrum.SWIR1Gain,
		SWIR1Offset:     spectrum.SWIR1Offset,
		SWIR2Gain:       spectrum.SWIR2Gain,
		SWIR2Offset:     spectrum.SWIR2Offset,
		FilePath:        path,
	}
	if err := a.spectrumRepo.Create(ctx, record); err != nil {
		// Off-thread caller, so this cannot touch the transcript directly
		a.tviewApp.QueueUpdateDraw(func() {
			a.addLog(fmt.Sprintf("Spectrum archive insert failed: %v", err))
		})
	}
}

// Form field parsing helpers.

func intField(form *tview.Form, label string) (int, error) {
	item := form.GetFormItemByLabel(label)
	if item == nil {
		return 0, fmt.Errorf("missing form field %q", label)
	}
	text := strings.TrimSpace(item.(*tview.InputField).GetText())
	value, err := strconv.Atoi(text)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%s must be a non-negative whole number, got %q", label, text)
	}
	return value, nil
}

// rangeField parses a "min/max/step" triple in degrees.
func rangeField(form *tview.Form, label string) (autotrack.AxisRange, error) {
	item := form.GetFormItemByLabel(label)
	if item == nil {
		return autotrack.AxisRange{}, fmt.Errorf("missing form field %q", label)
	}
	text := strings.TrimSpace(item.(*tview.InputField).GetText())
	parts := strings.Split(text, "/")
	if len(parts) != 3 {
		return autotrack.AxisRange{}, fmt.Errorf("%s must be min/max/step, got %q", label, text)
	}

	values := make([]float64, 3)
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return autotrack.AxisRange{}, fmt.Errorf("%s has a non-numeric part %q", label, part)
		}
		values[i] = value
	}

	r := autotrack.AxisRange{Min: values[0], Max: values[1], Step: values[2]}
	if r.Max < r.Min {
		return autotrack.AxisRange{}, fmt.Errorf("%s has max below min", label)
	}
	if r.Step <= 0 && r.Max != r.Min {
		return autotrack.AxisRange{}, fmt.Errorf("%s needs a positive step", label)
	}
	return r, nil
}
