package autotrack

import (
	"fmt"
	"math"
	"time"

	"github.com/goa-uva/solys2scope/pkg/positioncalc"
)

// PlannedPosition returns the mount pointing for the body at time t with the
// given offset applied, wrapped and clamped into the tracker's command
// ranges (azimuth 0-360 from north, zenith 0-90 from vertical).
func PlannedPosition(eph positioncalc.Ephemeris, body positioncalc.Body, observer positioncalc.Observer, offset Offset, t time.Time) (azimuth, zenith float64, err error) {
	pos, err := eph.Position(body, observer, t)
	if err != nil {
		return 0, 0, err
	}

	azimuth = math.Mod(pos.Azimuth+offset.Azimuth, 360.0)
	if azimuth < 0 {
		azimuth += 360.0
	}

	zenith = pos.Zenith + offset.Zenith
	if zenith < 0 {
		zenith = 0
	}
	if zenith > 90 {
		zenith = 90
	}
	return azimuth, zenith, nil
}

// TrackerConfig parameterizes a continuous tracking session.
type TrackerConfig struct {
	// Body is the celestial body to follow
	Body positioncalc.Body

	// Observer is the instrument site
	Observer positioncalc.Observer

	// IntervalSeconds is the time between mount repositions
	IntervalSeconds int

	// Measure, when set, is invoked after each reposition's countdown
	// reaches zero (an automatic instrument capture)
	Measure func() error

	// Tick overrides the one second countdown pace. Tests only.
	Tick time.Duration
}

// Tracker continuously repositions the mount to follow a celestial body
// until stopped or until a device error terminates it.
type Tracker struct {
	lifecycle

	mount   Mount
	eph     positioncalc.Ephemeris
	log     Logger
	cfg     TrackerConfig
	sleep   sleeper
	started bool
}

// NewTracker creates a tracking session. Start launches it.
func NewTracker(mount Mount, eph positioncalc.Ephemeris, logger Logger, cfg TrackerConfig) *Tracker {
	return &Tracker{
		mount: mount,
		eph:   eph,
		log:   logger,
		cfg:   cfg,
		sleep: time.Sleep,
	}
}

// Start validates the configuration and launches the tracking loop on a
// background goroutine.
func (t *Tracker) Start() error {
	if t.cfg.IntervalSeconds <= 0 {
		return fmt.Errorf("tracking interval must be positive, got %d", t.cfg.IntervalSeconds)
	}

	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return errAlreadyStarted
	}
	t.started = true
	t.mu.Unlock()

	go t.run()
	return nil
}

func (t *Tracker) run() {
	t.log.Info("%s tracking started, repositioning every %d s", t.cfg.Body, t.cfg.IntervalSeconds)

	for {
		if t.stopRequested() {
			t.log.Info("%s tracking stopped", t.cfg.Body)
			t.finish(nil)
			return
		}

		azimuth, zenith, err := PlannedPosition(t.eph, t.cfg.Body, t.cfg.Observer, Offset{}, time.Now())
		if err != nil {
			t.log.Error("position calculation failed: %v", err)
			t.finish(err)
			return
		}

		if err := t.mount.MoveTo(azimuth, zenith); err != nil {
			t.log.Error("mount reposition failed: %v", err)
			t.finish(err)
			return
		}
		t.log.Info("%s at azimuth %.4f, zenith %.4f", t.cfg.Body, azimuth, zenith)

		countdown(t.log, t.sleep, t.cfg.IntervalSeconds, t.tick())

		if t.cfg.Measure != nil {
			if err := t.cfg.Measure(); err != nil {
				t.log.Error("instrument capture failed: %v", err)
				t.finish(err)
				return
			}
		}
	}
}

func (t *Tracker) tick() time.Duration {
	if t.cfg.Tick > 0 {
		return t.cfg.Tick
	}
	return time.Second
}

// countdown emits one machine-parseable countdown event per tick down to
// zero. The zero event is the step boundary the display sinks key on.
func countdown(log Logger, sleep sleeper, seconds int, tick time.Duration) {
	for remaining := seconds; remaining > 0; remaining-- {
		log.Debug("countdown:%d", remaining)
		sleep(tick)
	}
	log.Debug("countdown:0")
}
