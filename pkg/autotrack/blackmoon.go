package autotrack

import (
	"fmt"
	"time"

	"github.com/goa-uva/solys2scope/pkg/positioncalc"
)

// darkAzimuthOffset is how far from the moon the dark-signal measurement
// points, in degrees of azimuth. Far enough that no lunar light reaches the
// fore-optic, close enough to sample the same sky background.
const darkAzimuthOffset = 90.0

// BlackMoonConfig parameterizes the black-moon calibration routine.
type BlackMoonConfig struct {
	// Observer is the instrument site
	Observer positioncalc.Observer

	// CountdownSeconds is the settling time before each measurement
	CountdownSeconds int

	// Measure is invoked at the lunar and dark pointing in turn
	Measure func() error

	// Tick overrides the one second countdown pace. Tests only.
	Tick time.Duration
}

// BlackMoon is the fixed single-shot calibration routine: one measurement
// pointing at the moon, then one dark measurement offset away from it.
// Run blocks; Start wraps it in the Session contract.
type BlackMoon struct {
	lifecycle

	mount   Mount
	eph     positioncalc.Ephemeris
	log     Logger
	cfg     BlackMoonConfig
	sleep   sleeper
	started bool
}

// NewBlackMoon creates the calibration session.
func NewBlackMoon(mount Mount, eph positioncalc.Ephemeris, logger Logger, cfg BlackMoonConfig) *BlackMoon {
	return &BlackMoon{
		mount: mount,
		eph:   eph,
		log:   logger,
		cfg:   cfg,
		sleep: time.Sleep,
	}
}

// Start launches Run on a background goroutine.
func (b *BlackMoon) Start() error {
	if b.cfg.Measure == nil {
		return fmt.Errorf("black-moon routine requires an instrument capture")
	}

	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return errAlreadyStarted
	}
	b.started = true
	b.mu.Unlock()

	go func() { b.Run() }()
	return nil
}

// Run executes the calibration sequence and blocks until it finishes.
// The returned error is also available through Err.
func (b *BlackMoon) Run() error {
	err := b.run()
	b.finish(err)
	return err
}

func (b *BlackMoon) run() error {
	if b.cfg.Measure == nil {
		return fmt.Errorf("black-moon routine requires an instrument capture")
	}

	b.log.Info("black-moon calibration started")

	// Lunar measurement
	if err := b.measureAt(Offset{}, "lunar"); err != nil {
		return err
	}

	// Dark measurement beside the moon
	if err := b.measureAt(Offset{Azimuth: darkAzimuthOffset}, "dark"); err != nil {
		return err
	}

	b.log.Info("black-moon calibration finished")
	return nil
}

func (b *BlackMoon) measureAt(offset Offset, label string) error {
	azimuth, zenith, err := PlannedPosition(b.eph, positioncalc.Moon, b.cfg.Observer, offset, time.Now())
	if err != nil {
		b.log.Error("position calculation failed: %v", err)
		return err
	}

	if err := b.mount.MoveTo(azimuth, zenith); err != nil {
		b.log.Error("mount reposition failed: %v", err)
		return err
	}
	b.log.Info("%s measurement at azimuth %.4f, zenith %.4f", label, azimuth, zenith)

	countdown(b.log, b.sleep, b.cfg.CountdownSeconds, b.tick())

	if err := b.cfg.Measure(); err != nil {
		b.log.Error("%s capture failed: %v", label, err)
		return err
	}
	return nil
}

func (b *BlackMoon) tick() time.Duration {
	if b.cfg.Tick > 0 {
		return b.cfg.Tick
	}
	return time.Second
}
