package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/goa-uva/solys2scope/internal/db"
	"github.com/goa-uva/solys2scope/pkg/config"
	"github.com/goa-uva/solys2scope/pkg/positioncalc"
)

var (
	// Version information (set by build flags)
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (default: per-user config)")
	showVersion := flag.Bool("version", false, "Show version information")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("solys2scope version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	path := *configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	observer := positioncalc.Observer{
		Latitude:  cfg.Observer.Latitude,
		Longitude: cfg.Observer.Longitude,
		Height:    cfg.Observer.Height,
	}

	// The run archive is optional. The panel works fully without it.
	var database *db.DB
	if cfg.Database.Enabled {
		database, err = db.Connect(cfg.Database)
		if err != nil {
			log.Printf("Run archive unavailable: %v", err)
			database = nil
		} else {
			defer database.Close()
		}
	}

	app := NewApp(&AppConfig{
		Config:     cfg,
		ConfigPath: path,
		Observer:   observer,
		Database:   database,
	})

	if err := app.Run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

// printHelp prints usage information
func printHelp() {
	fmt.Println("solys2scope - SOLYS2 tracker control panel")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  solys2scope [options]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to configuration file (default: per-user config)")
	fmt.Println("  -version")
	fmt.Println("        Show version information")
	fmt.Println("  -help")
	fmt.Println("        Show this help message")
	fmt.Println()
	fmt.Println("KEYBOARD SHORTCUTS:")
	fmt.Println("  Navigation:")
	fmt.Println("    F1             Sun operations")
	fmt.Println("    F2             Moon operations")
	fmt.Println("    F3             Configuration")
	fmt.Println()
	fmt.Println("  Control:")
	fmt.Println("    x              Cancel the running operation")
	fmt.Println("    q or Ctrl+C    Quit application")
	fmt.Println()
	fmt.Println("OPERATIONS:")
	fmt.Println("  - Continuous sun or moon tracking with periodic repositioning")
	fmt.Println("  - Cross and mesh calibration scans around the body")
	fmt.Println("  - Black-moon calibration (lunar plus dark measurement)")
	fmt.Println("  - ASD FieldSpec preparation and coordinated captures")
	fmt.Println()
	fmt.Println("Per-run logs are written to the configured log folder, one")
	fmt.Println("timestamped file per operation.")
}
