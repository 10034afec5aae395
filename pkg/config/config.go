package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the complete application configuration.
// It covers the SOLYS2 connection, the observer site, logging,
// the optional ASD spectroradiometer and the optional run archive.
type Config struct {
	Solys2   Solys2Config   `json:"solys2"`
	Observer ObserverConfig `json:"observer"`
	Log      LogConfig      `json:"log"`
	Spice    SpiceConfig    `json:"spice"`
	ASD      ASDConfig      `json:"asd"`
	Database DatabaseConfig `json:"database"`
	Web      WebConfig      `json:"web"`
}

// Solys2Config contains SOLYS2 sun tracker connection settings.
type Solys2Config struct {
	// Host is the tracker address on the local network
	Host string `json:"host"`

	// Port is the TCP command port (factory default: 15000)
	Port int `json:"port"`

	// Password is the protection password ("solys" unless changed on the unit)
	Password string `json:"password"`

	// CommandRate is the maximum number of commands per second sent to the
	// tracker. The SOLYS2 firmware drops commands when flooded.
	CommandRate float64 `json:"command_rate"`
}

// ObserverConfig contains the instrument's geographic location.
// Required for the built-in sun and moon position calculations.
type ObserverConfig struct {
	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `json:"latitude"`

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64 `json:"longitude"`

	// Height in meters above sea level
	Height float64 `json:"height"`
}

// LogConfig contains operation log output settings.
type LogConfig struct {
	// Folder is the directory where per-run log files are written
	Folder string `json:"folder"`
}

// SpiceConfig contains ephemeris kernel settings.
type SpiceConfig struct {
	// KernelsPath is the directory holding SPICE kernels. Empty selects the
	// built-in low-precision ephemeris.
	KernelsPath string `json:"kernels_path"`
}

// ASDConfig contains ASD FieldSpec spectroradiometer settings.
type ASDConfig struct {
	// Enabled determines whether scans drive the spectrometer
	Enabled bool `json:"enabled"`

	// Host is the instrument controller address
	Host string `json:"host"`

	// Port is the instrument controller TCP port
	Port int `json:"port"`

	// Folder is the directory where acquired spectra are written
	Folder string `json:"folder"`
}

// DatabaseConfig contains the optional run archive connection settings.
type DatabaseConfig struct {
	// Enabled determines whether runs are archived to PostgreSQL
	Enabled bool `json:"enabled"`

	// Host is the database server hostname
	Host string `json:"host"`

	// Port is the database server port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// Username for database authentication
	Username string `json:"username"`

	// Password for database authentication (should be loaded from environment)
	Password string `json:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns"`
}

// WebConfig contains the status web server settings.
type WebConfig struct {
	// Port is the HTTP status server port
	Port int `json:"port"`

	// JWTSecret signs session tokens (should be loaded from environment)
	JWTSecret string `json:"jwt_secret"`
}

// DefaultPath returns the per-platform location of the configuration file,
// e.g. ~/.config/solys2scope/config.json on Linux.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(dir, "solys2scope", "config.json")
}

// Load reads configuration from a JSON file.
// If the file doesn't exist, returns a default configuration.
func Load(path string) (*Config, error) {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvironmentOverrides()
		return cfg, nil
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvironmentOverrides()

	return &cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to JSON with indentation
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Solys2: Solys2Config{
			Host:        "",
			Port:        15000,
			Password:    "solys",
			CommandRate: 5.0,
		},
		Observer: ObserverConfig{
			Latitude:  0.0,
			Longitude: 0.0,
			Height:    0.0,
		},
		Log: LogConfig{
			Folder: ".",
		},
		Spice: SpiceConfig{
			KernelsPath: "",
		},
		ASD: ASDConfig{
			Enabled: false,
			Host:    "",
			Port:    8080,
			Folder:  ".",
		},
		Database: DatabaseConfig{
			Enabled:      false,
			Host:         "localhost",
			Port:         5432,
			Database:     "solys2scope",
			Username:     "solys2scope",
			SSLMode:      "disable",
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		},
		Web: WebConfig{
			Port: 8080,
		},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// This allows sensitive data like passwords to be kept out of config files.
func (c *Config) applyEnvironmentOverrides() {
	if host := os.Getenv("SOLYS2SCOPE_HOST"); host != "" {
		c.Solys2.Host = host
	}
	if password := os.Getenv("SOLYS2SCOPE_PASSWORD"); password != "" {
		c.Solys2.Password = password
	}
	if dbPassword := os.Getenv("SOLYS2SCOPE_DB_PASSWORD"); dbPassword != "" {
		c.Database.Password = dbPassword
	}
	if secret := os.Getenv("SOLYS2SCOPE_JWT_SECRET"); secret != "" {
		c.Web.JWTSecret = secret
	}
	if asdHost := os.Getenv("SOLYS2SCOPE_ASD_HOST"); asdHost != "" {
		c.ASD.Host = asdHost
	}
}
