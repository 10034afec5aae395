package main

import (
	"path/filepath"
	"testing"

	"github.com/rivo/tview"

	"github.com/goa-uva/solys2scope/pkg/config"
	"github.com/goa-uva/solys2scope/pkg/positioncalc"
)

// newTestApp builds an application around a default configuration. tview
// primitives are inert until Run, so the whole surface can be exercised
// without a terminal.
func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.DefaultConfig()
	return NewApp(&AppConfig{
		Config:     cfg,
		ConfigPath: filepath.Join(t.TempDir(), "config.json"),
		Observer: positioncalc.Observer{
			Latitude:  cfg.Observer.Latitude,
			Longitude: cfg.Observer.Longitude,
			Height:    cfg.Observer.Height,
		},
	})
}

func setField(t *testing.T, form *tview.Form, label, text string) {
	t.Helper()
	item := form.GetFormItemByLabel(label)
	if item == nil {
		t.Fatalf("Configuration form is missing the %q field", label)
	}
	item.(*tview.InputField).SetText(text)
}

func TestSaveConfigPersistsAllSettings(t *testing.T) {
	app := newTestApp(t)
	form := app.configForm

	setField(t, form, "Tracker host", "10.0.0.5")
	setField(t, form, "Tracker port", "15000")
	setField(t, form, "Tracker password", "observatory")
	setField(t, form, "Latitude (°)", "41.6636")
	setField(t, form, "Longitude (°)", "-4.7057")
	setField(t, form, "Height (m)", "705")
	setField(t, form, "Log folder", t.TempDir())
	setField(t, form, "SPICE kernels path", "/opt/spice/kernels")
	setField(t, form, "ASD host", "10.0.0.6")
	setField(t, form, "ASD port", "8080")
	setField(t, form, "ASD folder", t.TempDir())

	item := form.GetFormItemByLabel("ASD enabled")
	if item == nil {
		t.Fatal("Configuration form is missing the ASD enabled checkbox")
	}
	item.(*tview.Checkbox).SetChecked(true)

	app.saveConfig(form)

	if app.config.Spice.KernelsPath != "/opt/spice/kernels" {
		t.Errorf("KernelsPath = %q, want /opt/spice/kernels", app.config.Spice.KernelsPath)
	}
	if !app.config.ASD.Enabled {
		t.Error("ASD.Enabled not saved")
	}
	if app.config.ASD.Host != "10.0.0.6" || app.config.ASD.Port != 8080 {
		t.Errorf("ASD address = %s:%d, want 10.0.0.6:8080", app.config.ASD.Host, app.config.ASD.Port)
	}
	if app.spectro == nil {
		t.Error("Enabling the ASD must create the spectrometer client")
	}

	loaded, err := config.Load(app.configPath)
	if err != nil {
		t.Fatalf("Saved configuration does not load back: %v", err)
	}
	if loaded.Spice.KernelsPath != "/opt/spice/kernels" {
		t.Errorf("Loaded KernelsPath = %q, want /opt/spice/kernels", loaded.Spice.KernelsPath)
	}
	if !loaded.ASD.Enabled || loaded.ASD.Host != "10.0.0.6" || loaded.ASD.Port != 8080 {
		t.Errorf("Loaded ASD settings = %+v, want enabled at 10.0.0.6:8080", loaded.ASD)
	}
	if loaded.Solys2.Host != "10.0.0.5" || loaded.Solys2.Port != 15000 {
		t.Errorf("Loaded tracker address = %s:%d, want 10.0.0.5:15000", loaded.Solys2.Host, loaded.Solys2.Port)
	}
}

func TestSaveConfigRejectsBadASDPort(t *testing.T) {
	app := newTestApp(t)
	form := app.configForm

	setField(t, form, "ASD port", "not-a-port")
	before := app.config.ASD.Port
	app.saveConfig(form)
	if app.config.ASD.Port != before {
		t.Error("An invalid ASD port must abort the save")
	}
}

func TestSaveConfigDisabledASDClearsClient(t *testing.T) {
	app := newTestApp(t)
	form := app.configForm

	item := form.GetFormItemByLabel("ASD enabled")
	item.(*tview.Checkbox).SetChecked(false)
	app.saveConfig(form)
	if app.spectro != nil {
		t.Error("Disabling the ASD must drop the spectrometer client")
	}
}
