package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/goa-uva/solys2scope/pkg/autotrack"
	"github.com/goa-uva/solys2scope/pkg/config"
	"github.com/goa-uva/solys2scope/pkg/positioncalc"
)

// main inspects cross and mesh scans. With a run log file argument it
// parses the log into a step/level table; without one it prints the offset
// plan a scan with the given ranges would execute, with the absolute mount
// positions computed for the current instant.
func main() {
	configPath := flag.String("config", "", "Path to configuration file (default: per-user config)")
	level := flag.String("level", "", "When parsing a run log, only show this level (DEBUG, INFO, WARNING, ERROR)")
	bodyName := flag.String("body", "sun", "Celestial body: sun or moon")
	mesh := flag.Bool("mesh", false, "Show the mesh plan instead of the cross plan")
	azMin := flag.Float64("az-min", -1.5, "Azimuth offset minimum in degrees")
	azMax := flag.Float64("az-max", 1.5, "Azimuth offset maximum in degrees")
	azStep := flag.Float64("az-step", 0.3, "Azimuth offset step in degrees")
	zeMin := flag.Float64("ze-min", -1.5, "Zenith offset minimum in degrees")
	zeMax := flag.Float64("ze-max", 1.5, "Zenith offset maximum in degrees")
	zeStep := flag.Float64("ze-step", 0.3, "Zenith offset step in degrees")
	flag.Parse()

	if flag.NArg() > 0 {
		if err := showRunLog(flag.Arg(0), *level); err != nil {
			log.Fatalf("Failed to parse run log: %v", err)
		}
		return
	}

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
		fmt.Fprintf(os.Stderr, "Unknown body %q, expected sun or moon\n", *bodyName)
		os.Exit(1)
	}

	observer := positioncalc.Observer{
		Latitude:  cfg.Observer.Latitude,
		Longitude: cfg.Observer.Longitude,
		Height:    cfg.Observer.Height,
	}

	azimuth := autotrack.AxisRange{Min: *azMin, Max: *azMax, Step: *azStep}
	zenith := autotrack.AxisRange{Min: *zeMin, Max: *zeMax, Step: *zeStep}

	kind := "CROSS"
	plan := autotrack.CrossPlan(azimuth, zenith)
	if *mesh {
		kind = "MESH"
		plan = autotrack.MeshPlan(azimuth, zenith)
	}

	now := time.Now()
	eph := positioncalc.Builtin{}

	pos, err := eph.Position(body, observer, now)
	if err != nil {
		log.Fatalf("Position calculation failed: %v", err)
	}

	fmt.Printf("%s %s scan plan, %d steps\n", body, kind, len(plan))
	fmt.Printf("Body now at azimuth %.4f°, zenith %.4f°\n", pos.Azimuth, pos.Zenith)
	fmt.Println()
	fmt.Printf("%5s  %10s  %10s  %12s  %12s\n", "step", "az offset", "ze offset", "mount az", "mount ze")

	for i, offset := range plan {
		mountAz, mountZe, err := autotrack.PlannedPosition(eph, body, observer, offset, now)
		if err != nil {
			log.Fatalf("Position calculation failed: %v", err)
		}
		fmt.Printf("%5d  %+10.4f  %+10.4f  %12.4f  %12.4f\n",
			i+1, offset.Azimuth, offset.Zenith, mountAz, mountZe)
	}
}

// showRunLog parses a per-run log file into a step/level table. Steps are
// counted at countdown zero-crossings, the measurement-point boundaries.
func showRunLog(path, levelFilter string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	levelFilter = strings.ToUpper(strings.TrimSpace(levelFilter))

	fmt.Printf("%5s  %-8s  %s\n", "step", "level", "message")

	step := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		level, message, found := strings.Cut(line, ":")
		if !found {
			level = ""
			message = line
		}

		if message == "countdown:0" {
			step++
		}

		if levelFilter != "" && level != levelFilter {
			continue
		}
		fmt.Printf("%5d  %-8s  %s\n", step, level, message)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("\n%d measurement points\n", step)
	return nil
}
