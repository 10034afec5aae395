package autotrack

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/goa-uva/solys2scope/pkg/positioncalc"
)

func TestBlackMoonRunSequence(t *testing.T) {
	mount := &fakeMount{}
	var mu sync.Mutex
	captures := 0
	bm := NewBlackMoon(mount, fakeEphemeris{pos: positioncalc.Position{Azimuth: 120, Zenith: 50}}, &recordingLogger{}, BlackMoonConfig{
		CountdownSeconds: 1,
		Tick:             fastTick,
		Measure: func() error {
			mu.Lock()
			captures++
			mu.Unlock()
			return nil
		},
	})

	if err := bm.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !bm.IsFinished() {
		t.Error("Expected session to be finished after Run returns")
	}

	mu.Lock()
	defer mu.Unlock()
	if captures != 2 {
		t.Errorf("Got %d captures, want 2 (lunar + dark)", captures)
	}

	mount.mu.Lock()
	defer mount.mu.Unlock()
	if len(mount.moves) != 2 {
		t.Fatalf("Mount moved %d times, want 2", len(mount.moves))
	}
	if mount.moves[0].Azimuth != 120 || mount.moves[0].Zenith != 50 {
		t.Errorf("Lunar pointing = %+v, want azimuth 120, zenith 50", mount.moves[0])
	}
	// Dark measurement is offset in azimuth, same zenith
	if math.Abs(mount.moves[1].Azimuth-210) > 1e-9 || mount.moves[1].Zenith != 50 {
		t.Errorf("Dark pointing = %+v, want azimuth 210, zenith 50", mount.moves[1])
	}
}

func TestBlackMoonStartSession(t *testing.T) {
	bm := NewBlackMoon(&fakeMount{}, fakeEphemeris{pos: positioncalc.Position{Azimuth: 120, Zenith: 50}}, &recordingLogger{}, BlackMoonConfig{
		CountdownSeconds: 1,
		Tick:             fastTick,
		Measure:          func() error { return nil },
	})

	if err := bm.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFinished(t, bm)
	if bm.Err() != nil {
		t.Errorf("Err = %v, want nil", bm.Err())
	}
}

func TestBlackMoonCaptureErrorTerminates(t *testing.T) {
	bm := NewBlackMoon(&fakeMount{}, fakeEphemeris{pos: positioncalc.Position{Azimuth: 120, Zenith: 50}}, &recordingLogger{}, BlackMoonConfig{
		Tick:    fastTick,
		Measure: func() error { return errors.New("shutter stuck") },
	})

	if err := bm.Run(); err == nil {
		t.Error("Expected Run to surface the capture error")
	}
	if bm.Err() == nil {
		t.Error("Expected Err to report the capture error")
	}
}

func TestBlackMoonRequiresCapture(t *testing.T) {
	bm := NewBlackMoon(&fakeMount{}, fakeEphemeris{}, &recordingLogger{}, BlackMoonConfig{})
	if err := bm.Start(); err == nil {
		t.Error("Expected Start to reject a missing instrument capture")
	}
}
