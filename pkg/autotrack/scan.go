package autotrack

import (
	"fmt"
	"time"

	"github.com/goa-uva/solys2scope/pkg/positioncalc"
)

// ScanConfig parameterizes a cross or mesh calibration scan.
type ScanConfig struct {
	// Body is the celestial body the offsets are relative to
	Body positioncalc.Body

	// Observer is the instrument site
	Observer positioncalc.Observer

	// Azimuth and Zenith bound the offset sweep on each axis
	Azimuth AxisRange
	Zenith  AxisRange

	// CountdownSeconds is the settling time at each offset before the
	// measurement point
	CountdownSeconds int

	// RestSeconds is the pause after each measurement point
	RestSeconds int

	// Measure, when set, is invoked at each step's measurement point
	// (an automatic instrument capture)
	Measure func() error

	// Tick overrides the one second countdown pace. Tests only.
	Tick time.Duration
}

// Scan steps the mount through an offset plan around the body's computed
// position, pausing at each offset for the countdown and optional capture.
// A stop request takes effect between steps, never mid-step.
type Scan struct {
	lifecycle

	kind    string
	plan    []Offset
	mount   Mount
	eph     positioncalc.Ephemeris
	log     Logger
	cfg     ScanConfig
	sleep   sleeper
	started bool
}

// NewCrossScan creates a cross scan session: a 1-D azimuth sweep followed
// by a 1-D zenith sweep.
func NewCrossScan(mount Mount, eph positioncalc.Ephemeris, logger Logger, cfg ScanConfig) *Scan {
	return newScan("CROSS", CrossPlan(cfg.Azimuth, cfg.Zenith), mount, eph, logger, cfg)
}

// NewMeshScan creates a mesh scan session: the full 2-D offset grid.
func NewMeshScan(mount Mount, eph positioncalc.Ephemeris, logger Logger, cfg ScanConfig) *Scan {
	return newScan("MESH", MeshPlan(cfg.Azimuth, cfg.Zenith), mount, eph, logger, cfg)
}

func newScan(kind string, plan []Offset, mount Mount, eph positioncalc.Ephemeris, logger Logger, cfg ScanConfig) *Scan {
	return &Scan{
		kind:  kind,
		plan:  plan,
		mount: mount,
		eph:   eph,
		log:   logger,
		cfg:   cfg,
		sleep: time.Sleep,
	}
}

// Plan returns the offset sequence the scan will visit, for progress
// displays.
func (s *Scan) Plan() []Offset {
	return s.plan
}

// Start validates the configuration and launches the scan on a background
// goroutine.
func (s *Scan) Start() error {
	if len(s.plan) == 0 {
		return fmt.Errorf("empty scan plan")
	}
	if s.cfg.CountdownSeconds < 0 || s.cfg.RestSeconds < 0 {
		return fmt.Errorf("negative countdown or rest time")
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	go s.run()
	return nil
}

func (s *Scan) run() {
	s.log.Info("%s scan started: %d offset steps", s.kind, len(s.plan))

	for i, offset := range s.plan {
		if s.stopRequested() {
			s.log.Info("%s scan stopped at step %d/%d", s.kind, i, len(s.plan))
			s.finish(nil)
			return
		}

		azimuth, zenith, err := PlannedPosition(s.eph, s.cfg.Body, s.cfg.Observer, offset, time.Now())
		if err != nil {
			s.log.Error("position calculation failed: %v", err)
			s.finish(err)
			return
		}

		if err := s.mount.MoveTo(azimuth, zenith); err != nil {
			s.log.Error("mount reposition failed: %v", err)
			s.finish(err)
			return
		}
		s.log.Info("step %d/%d: offset azimuth %.4f, zenith %.4f", i+1, len(s.plan), offset.Azimuth, offset.Zenith)

		countdown(s.log, s.sleep, s.cfg.CountdownSeconds, s.tick())

		if s.cfg.Measure != nil {
			if err := s.cfg.Measure(); err != nil {
				s.log.Error("instrument capture failed: %v", err)
				s.finish(err)
				return
			}
		}

		if s.cfg.RestSeconds > 0 {
			s.sleep(time.Duration(s.cfg.RestSeconds) * s.tick())
		}
	}

	s.log.Info("%s scan finished", s.kind)
	s.finish(nil)
}

func (s *Scan) tick() time.Duration {
	if s.cfg.Tick > 0 {
		return s.cfg.Tick
	}
	return time.Second
}
