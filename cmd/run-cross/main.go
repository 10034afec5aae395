package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goa-uva/solys2scope/pkg/asd"
	"github.com/goa-uva/solys2scope/pkg/autotrack"
	"github.com/goa-uva/solys2scope/pkg/config"
	"github.com/goa-uva/solys2scope/pkg/oplog"
	"github.com/goa-uva/solys2scope/pkg/positioncalc"
	"github.com/goa-uva/solys2scope/pkg/solys2"
)

// main runs a cross or mesh scan headless, without the control panel.
// Intended for scripted calibration campaigns: the run log still goes to
// the per-run file, progress is mirrored to stdout, and Ctrl+C requests a
// clean stop at the next step boundary.
func main() {
	configPath := flag.String("config", "", "Path to configuration file (default: per-user config)")
	bodyName := flag.String("body", "sun", "Celestial body: sun or moon")
	mesh := flag.Bool("mesh", false, "Run the mesh plan instead of the cross plan")
	azMin := flag.Float64("az-min", -1.5, "Azimuth offset minimum in degrees")
	azMax := flag.Float64("az-max", 1.5, "Azimuth offset maximum in degrees")
	azStep := flag.Float64("az-step", 0.3, "Azimuth offset step in degrees")
	zeMin := flag.Float64("ze-min", -1.5, "Zenith offset minimum in degrees")
	zeMax := flag.Float64("ze-max", 1.5, "Zenith offset maximum in degrees")
	zeStep := flag.Float64("ze-step", 0.3, "Zenith offset step in degrees")
	countdownSeconds := flag.Int("countdown", 5, "Settling time before each measurement point in seconds")
	restSeconds := flag.Int("rest", 2, "Pause after each measurement point in seconds")
	withASD := flag.Bool("asd", false, "Capture a spectrum at each measurement point")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	body := positioncalc.Sun
	if *bodyName == "moon" {
		body = positioncalc.Moon
	} else if *bodyName != "sun" {
		log.Fatalf("Unknown body %q, expected sun or moon", *bodyName)
	}

	observer := positioncalc.Observer{
		Latitude:  cfg.Observer.Latitude,
		Longitude: cfg.Observer.Longitude,
		Height:    cfg.Observer.Height,
	}

	scanCfg := autotrack.ScanConfig{
		Body:             body,
		Observer:         observer,
		Azimuth:          autotrack.AxisRange{Min: *azMin, Max: *azMax, Step: *azStep},
		Zenith:           autotrack.AxisRange{Min: *zeMin, Max: *zeMax, Step: *zeStep},
		CountdownSeconds: *countdownSeconds,
		RestSeconds:      *restSeconds,
	}

	// Connect the instruments before opening the run log, so a bad
	// address fails fast without leaving an empty log file behind.
	tracker := solys2.NewClient(cfg.Solys2)
	if err := tracker.Connect(); err != nil {
		log.Fatalf("Tracker connection failed: %v", err)
	}
	defer tracker.Close()

	if *withASD {
		spectro := asd.NewClient(cfg.ASD.Host, cfg.ASD.Port)
		if err := spectro.Connect(); err != nil {
			log.Fatalf("Spectrometer connection failed: %v", err)
		}
		defer spectro.Close()

		if err := spectro.Restore(); err != nil {
			log.Fatalf("Spectrometer restore failed: %v", err)
		}
		if err := spectro.Optimize(); err != nil {
			log.Fatalf("Spectrometer optimization failed: %v", err)
		}

		acquirer := asd.NewAcquirer(spectro, cfg.ASD.Folder, 2*time.Minute)
		acquirer.Saved = func(spectrum *asd.Spectrum, path string) {
			fmt.Printf("  spectrum saved: %s\n", path)
		}
		scanCfg.Measure = acquirer.Measure
	}

	kind := "CROSS"
	if *mesh {
		kind = "MESH"
	}
	name := fmt.Sprintf("%s_%s", body, kind)

	router, err := oplog.NewRouter(name, cfg.Log.Folder, time.Now())
	if err != nil {
		log.Fatalf("Failed to open run log: %v", err)
	}
	defer router.Close()

	transcript := oplog.NewTranscriptSink(func(line string) {
		fmt.Println(line)
	})
	router.Attach(transcript)

	var scan *autotrack.Scan
	if *mesh {
		scan = autotrack.NewMeshScan(tracker, positioncalc.Builtin{}, router, scanCfg)
	} else {
		scan = autotrack.NewCrossScan(tracker, positioncalc.Builtin{}, router, scanCfg)
	}

	fmt.Printf("Starting %s: %d steps, log %s\n", name, len(scan.Plan()), router.Path())

	if err := scan.Start(); err != nil {
		log.Fatalf("Scan start failed: %v", err)
	}

	// Ctrl+C requests a cooperative stop; the scan finishes its current
	// step first.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-interrupt
		fmt.Println("Stop requested, finishing the current step...")
		scan.Stop()
	}()

	for !scan.IsFinished() {
		time.Sleep(time.Second)
	}

	if err := scan.Err(); err != nil {
		log.Fatalf("Scan terminated with error: %v", err)
	}
	fmt.Println("Scan finished")
}
