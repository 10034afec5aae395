package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultConfig verifies that DefaultConfig returns valid defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Solys2 defaults
	if cfg.Solys2.Port != 15000 {
		t.Errorf("Expected default port 15000, got %d", cfg.Solys2.Port)
	}
	if cfg.Solys2.Password != "solys" {
		t.Errorf("Expected factory password, got %s", cfg.Solys2.Password)
	}
	if cfg.Solys2.CommandRate != 5.0 {
		t.Errorf("Expected command rate 5.0, got %f", cfg.Solys2.CommandRate)
	}

	// Log defaults
	if cfg.Log.Folder != "." {
		t.Errorf("Expected log folder '.', got %s", cfg.Log.Folder)
	}

	// ASD defaults
	if cfg.ASD.Enabled {
		t.Error("Expected ASD disabled by default")
	}

	// Database defaults
	if cfg.Database.Enabled {
		t.Error("Expected archive disabled by default")
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Expected default postgres port 5432, got %d", cfg.Database.Port)
	}

	// Web defaults
	if cfg.Web.Port != 8080 {
		t.Errorf("Expected web port 8080, got %d", cfg.Web.Port)
	}
}

// TestLoadNonExistentFile tests that Load returns default config when file doesn't exist.
func TestLoadNonExistentFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.json")
	if err != nil {
		t.Fatalf("Expected no error for non-existent file, got: %v", err)
	}
	if cfg.Solys2.Port != 15000 {
		t.Errorf("Expected default port for missing file, got %d", cfg.Solys2.Port)
	}
}

// TestLoadInvalidJSON tests that Load rejects malformed files.
func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for invalid JSON, got nil")
	}
}

// TestSaveAndLoadRoundTrip tests that saved configuration loads back identically.
func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")

	cfg := DefaultConfig()
	cfg.Solys2.Host = "192.168.14.213"
	cfg.Solys2.Password = "secret"
	cfg.Observer.Latitude = 41.664
	cfg.Observer.Longitude = -4.706
	cfg.Observer.Height = 705.0
	cfg.Log.Folder = "/var/log/solys2scope"
	cfg.Spice.KernelsPath = "/opt/kernels"
	cfg.ASD.Enabled = true
	cfg.ASD.Host = "192.168.14.100"
	cfg.ASD.Folder = "/data/spectra"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Solys2.Host != cfg.Solys2.Host {
		t.Errorf("Host = %s, want %s", loaded.Solys2.Host, cfg.Solys2.Host)
	}
	if loaded.Observer.Height != cfg.Observer.Height {
		t.Errorf("Height = %f, want %f", loaded.Observer.Height, cfg.Observer.Height)
	}
	if loaded.Spice.KernelsPath != cfg.Spice.KernelsPath {
		t.Errorf("KernelsPath = %s, want %s", loaded.Spice.KernelsPath, cfg.Spice.KernelsPath)
	}
	if !loaded.ASD.Enabled {
		t.Error("Expected ASD enabled after round trip")
	}
	if loaded.ASD.Folder != cfg.ASD.Folder {
		t.Errorf("ASD folder = %s, want %s", loaded.ASD.Folder, cfg.ASD.Folder)
	}
}

// TestEnvironmentOverrides tests that environment variables take precedence.
func TestEnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := DefaultConfig()
	cfg.Solys2.Host = "10.0.0.1"
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SOLYS2SCOPE_HOST", "10.0.0.2")
	t.Setenv("SOLYS2SCOPE_PASSWORD", "fromenv")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Solys2.Host != "10.0.0.2" {
		t.Errorf("Host = %s, want env override 10.0.0.2", loaded.Solys2.Host)
	}
	if loaded.Solys2.Password != "fromenv" {
		t.Errorf("Password = %s, want env override", loaded.Solys2.Password)
	}
}

// TestSavedFileIsValidJSON verifies the on-disk format stays plain JSON.
func TestSavedFileIsValidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := DefaultConfig().Save(path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Saved file is not valid JSON: %v", err)
	}
	for _, key := range []string{"solys2", "observer", "log", "spice", "asd"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("Saved config missing %q section", key)
		}
	}
}
