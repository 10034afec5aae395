package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rivo/tview"

	"github.com/goa-uva/solys2scope/pkg/asd"
	"github.com/goa-uva/solys2scope/pkg/solys2"
)

// createConfigPage builds the configuration page: connection and site
// settings, the spectrometer and ephemeris settings, the log folder, and
// the fine-adjustment controls.
func (a *App) createConfigPage() tview.Primitive {
	form := tview.NewForm()
	form.SetBorder(true).SetTitle(" Configuration ")

	cfg := a.config

	form.AddInputField("Tracker host", cfg.Solys2.Host, 24, nil, nil)
	form.AddInputField("Tracker port", strconv.Itoa(cfg.Solys2.Port), 8, nil, nil)
	form.AddInputField("Tracker password", cfg.Solys2.Password, 16, nil, nil)
	form.AddInputField("Latitude (°)", formatFloat(cfg.Observer.Latitude), 12, nil, nil)
	form.AddInputField("Longitude (°)", formatFloat(cfg.Observer.Longitude), 12, nil, nil)
	form.AddInputField("Height (m)", formatFloat(cfg.Observer.Height), 12, nil, nil)
	form.AddInputField("Log folder", cfg.Log.Folder, 32, nil, nil)
	form.AddInputField("SPICE kernels path", cfg.Spice.KernelsPath, 32, nil, nil)
	form.AddCheckbox("ASD enabled", cfg.ASD.Enabled, nil)
	form.AddInputField("ASD host", cfg.ASD.Host, 24, nil, nil)
	form.AddInputField("ASD port", strconv.Itoa(cfg.ASD.Port), 8, nil, nil)
	form.AddInputField("ASD folder", cfg.ASD.Folder, 32, nil, nil)
	form.AddInputField("Adjust azimuth (°)", "0.00", 8, nil, nil)
	form.AddInputField("Adjust zenith (°)", "0.00", 8, nil, nil)

	form.AddButton("Save", func() { a.saveConfig(form) })
	form.AddButton("Test Tracker", func() { a.testTracker() })
	form.AddButton("Apply Adjustment", func() { a.applyAdjustment(form) })
	form.AddButton("Home Tracker", func() { a.homeTracker() })

	a.configForm = form
	a.startForms = append(a.startForms, form)
	return form
}

// saveConfig reads the form back into the configuration and writes it to
// disk. Invalid fields abort the save with a message, the file on disk is
// left untouched.
func (a *App) saveConfig(form *tview.Form) {
	host := fieldText(form, "Tracker host")
	port, err := strconv.Atoi(fieldText(form, "Tracker port"))
	if err != nil || port <= 0 || port > 65535 {
		a.addLog("Tracker port must be a valid TCP port")
		return
	}
	latitude, err := strconv.ParseFloat(fieldText(form, "Latitude (°)"), 64)
	if err != nil || latitude < -90 || latitude > 90 {
		a.addLog("Latitude must be between -90 and 90 degrees")
		return
	}
	longitude, err := strconv.ParseFloat(fieldText(form, "Longitude (°)"), 64)
	if err != nil || longitude < -180 || longitude > 180 {
		a.addLog("Longitude must be between -180 and 180 degrees")
		return
	}
	height, err := strconv.ParseFloat(fieldText(form, "Height (m)"), 64)
	if err != nil {
		a.addLog("Height must be a number")
		return
	}
	asdEnabled := fieldChecked(form, "ASD enabled")
	asdPort, err := strconv.Atoi(fieldText(form, "ASD port"))
	if err != nil || asdPort <= 0 || asdPort > 65535 {
		a.addLog("ASD port must be a valid TCP port")
		return
	}

	a.config.Solys2.Host = host
	a.config.Solys2.Port = port
	a.config.Solys2.Password = fieldText(form, "Tracker password")
	a.config.Observer.Latitude = latitude
	a.config.Observer.Longitude = longitude
	a.config.Observer.Height = height
	a.config.Log.Folder = fieldText(form, "Log folder")
	a.config.Spice.KernelsPath = fieldText(form, "SPICE kernels path")
	a.config.ASD.Enabled = asdEnabled
	a.config.ASD.Host = fieldText(form, "ASD host")
	a.config.ASD.Port = asdPort
	a.config.ASD.Folder = fieldText(form, "ASD folder")
	a.observer.Latitude = latitude
	a.observer.Longitude = longitude
	a.observer.Height = height

	// A changed address only takes effect on the next connection.
	if a.tracker.IsConnected() {
		a.tracker.Close()
	}
	a.tracker = solys2.NewClient(a.config.Solys2)

	if a.spectro != nil && a.spectro.IsConnected() {
		a.spectro.Close()
	}
	a.spectro = nil
	if a.config.ASD.Enabled {
		a.spectro = asd.NewClient(a.config.ASD.Host, a.config.ASD.Port)
	}

	if err := a.config.Save(a.configPath); err != nil {
		a.addLog(fmt.Sprintf("Failed to save configuration: %v", err))
		return
	}
	a.addLog(fmt.Sprintf("Configuration saved to %s", a.configPath))
}

// testTracker probes the tracker at the configured address.
func (a *App) testTracker() {
	a.addLog(fmt.Sprintf("Probing tracker %s:%d...", a.config.Solys2.Host, a.config.Solys2.Port))
	go func() {
		err := solys2.Probe(a.config.Solys2)
		a.tviewApp.QueueUpdateDraw(func() {
			if err != nil {
				a.addLog(fmt.Sprintf("Tracker probe failed: %v", err))
				return
			}
			a.addLog("Tracker responded")
		})
	}()
}

// applyAdjustment sends a relative fine adjustment to the tracker. The
// client enforces the firmware's per-command limit, so an out-of-range
// delta comes back as an error rather than a silent clamp. The device
// exchange runs off the interactive thread, like testTracker.
func (a *App) applyAdjustment(form *tview.Form) {
	azimuth, err := strconv.ParseFloat(fieldText(form, "Adjust azimuth (°)"), 64)
	if err != nil {
		a.addLog("Adjustment azimuth must be a number")
		return
	}
	zenith, err := strconv.ParseFloat(fieldText(form, "Adjust zenith (°)"), 64)
	if err != nil {
		a.addLog("Adjustment zenith must be a number")
		return
	}

	tracker := a.tracker
	a.addLog("Applying adjustment...")
	go func() {
		report := a.adjustTracker(tracker, azimuth, zenith)
		a.tviewApp.QueueUpdateDraw(func() { a.addLog(report) })
	}()
}

// adjustTracker performs the adjustment exchange on a worker goroutine and
// returns the message to display.
func (a *App) adjustTracker(tracker *solys2.Client, azimuth, zenith float64) string {
	if !tracker.IsConnected() {
		if err := tracker.Connect(); err != nil {
			return fmt.Sprintf("Tracker connection failed: %v", err)
		}
	}
	if azimuth != 0 {
		if err := tracker.AdjustAzimuth(azimuth); err != nil {
			return fmt.Sprintf("Azimuth adjustment failed: %v", err)
		}
	}
	if zenith != 0 {
		if err := tracker.AdjustZenith(zenith); err != nil {
			return fmt.Sprintf("Zenith adjustment failed: %v", err)
		}
	}
	totalAz, totalZe, err := tracker.Adjustment()
	if err != nil {
		return fmt.Sprintf("Failed to read back adjustment: %v", err)
	}
	return fmt.Sprintf("Adjustment now azimuth %+.4f, zenith %+.4f", totalAz, totalZe)
}

// homeTracker sends the tracker to its home position, off the interactive
// thread.
func (a *App) homeTracker() {
	tracker := a.tracker
	a.addLog("Homing tracker...")
	go func() {
		report := "Tracker homing"
		err := error(nil)
		if !tracker.IsConnected() {
			err = tracker.Connect()
		}
		if err != nil {
			report = fmt.Sprintf("Tracker connection failed: %v", err)
		} else if err := tracker.Home(); err != nil {
			report = fmt.Sprintf("Home command failed: %v", err)
		}
		a.tviewApp.QueueUpdateDraw(func() { a.addLog(report) })
	}()
}

func fieldText(form *tview.Form, label string) string {
	item := form.GetFormItemByLabel(label)
	if item == nil {
		return ""
	}
	return strings.TrimSpace(item.(*tview.InputField).GetText())
}

func fieldChecked(form *tview.Form, label string) bool {
	item := form.GetFormItemByLabel(label)
	if item == nil {
		return false
	}
	return item.(*tview.Checkbox).IsChecked()
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
