package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/goa-uva/solys2scope/pkg/asd"
	"github.com/goa-uva/solys2scope/pkg/config"
	"github.com/goa-uva/solys2scope/pkg/solys2"
)

// main tests connectivity to the SOLYS2 tracker and, when enabled, the
// ASD spectrometer.
// Tests:
// 1. TCP reachability of the tracker command port
// 2. Protected mode login and status query
// 3. Position and adjustment readback
// 4. Firmware version query
// 5. ASD connect and single acquisition (optional)
func main() {
	configPath := flag.String("config", "", "Path to configuration file (default: per-user config)")
	withASD := flag.Bool("asd", false, "Also test the ASD spectrometer connection")
	acquire := flag.Bool("acquire", false, "Take one test spectrum (implies -asd)")
	flag.Parse()

	fmt.Println("======================================================================")
	fmt.Println("solys2scope - Instrument Connection Test")
	fmt.Println("======================================================================")
	fmt.Println()

	path := *configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Printf("Tracker Configuration:\n")
	fmt.Printf("  Host:         %s\n", cfg.Solys2.Host)
	fmt.Printf("  Port:         %d\n", cfg.Solys2.Port)
	fmt.Printf("  Command rate: %.1f/s\n", cfg.Solys2.CommandRate)
	fmt.Println()

	// Step 1: Probe the command port
	fmt.Println("Step 1: Probing tracker command port...")
	if err := solys2.Probe(cfg.Solys2); err != nil {
		log.Fatalf("Failed tracker probe: %v", err)
	}
	fmt.Println("  ✓ Tracker reachable")
	fmt.Println()

	// Step 2: Connect (logs in and verifies protected mode)
	fmt.Println("Step 2: Connecting and entering protected mode...")
	client := solys2.NewClient(cfg.Solys2)
	if err := client.Connect(); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()
	fmt.Println("  ✓ Connected, password accepted")
	fmt.Println()

	// Step 3: Read the current pointing
	fmt.Println("Step 3: Reading current position...")
	azimuth, zenith, err := client.Position()
	if err != nil {
		log.Fatalf("Failed to read position: %v", err)
	}
	fmt.Printf("  ✓ Azimuth %.4f°, zenith %.4f°\n", azimuth, zenith)
	fmt.Println()

	// Step 4: Read the stored fine adjustment
	fmt.Println("Step 4: Reading fine adjustment...")
	adjAzimuth, adjZenith, err := client.Adjustment()
	if err != nil {
		log.Fatalf("Failed to read adjustment: %v", err)
	}
	fmt.Printf("  ✓ Adjustment azimuth %+.4f°, zenith %+.4f°\n", adjAzimuth, adjZenith)
	fmt.Println()

	// Step 5: Query the firmware version
	fmt.Println("Step 5: Querying firmware version...")
	version, err := client.Version()
	if err != nil {
		log.Fatalf("Failed to query version: %v", err)
	}
	fmt.Printf("  ✓ Firmware: %s\n", version)
	fmt.Println()

	if !*withASD && !*acquire {
		fmt.Println("======================================================================")
		fmt.Println("✓ TRACKER TESTS PASSED (use -asd to test the spectrometer)")
		fmt.Println("======================================================================")
		return
	}

	// Step 6: Connect to the spectrometer
	fmt.Println("Step 6: Connecting to ASD spectrometer...")
	fmt.Printf("  Host: %s:%d\n", cfg.ASD.Host, cfg.ASD.Port)
	spectro := asd.NewClient(cfg.ASD.Host, cfg.ASD.Port)
	if err := spectro.Connect(); err != nil {
		log.Fatalf("Failed to connect to spectrometer: %v", err)
	}
	defer spectro.Close()
	fmt.Println("  ✓ Spectrometer connected")
	fmt.Println()

	if *acquire {
		// Step 7: One full acquisition round trip
		fmt.Println("Step 7: Acquiring a test spectrum...")
		spectrum, err := spectro.Acquire(2 * time.Minute)
		if err != nil {
			log.Fatalf("Failed to acquire: %v", err)
		}
		fmt.Printf("  ✓ %d channels, integration time %.1f ms, drift %d\n",
			len(spectrum.Values), spectrum.IntegrationTime.Milliseconds(), spectrum.Drift)

		saved, err := spectrum.Save(cfg.ASD.Folder)
		if err != nil {
			log.Fatalf("Failed to save spectrum: %v", err)
		}
		fmt.Printf("  ✓ Saved to %s\n", saved)
		fmt.Println()
	}

	fmt.Println("======================================================================")
	fmt.Println("✓ ALL TESTS PASSED")
	fmt.Println("======================================================================")
}
