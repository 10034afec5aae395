package main

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/goa-uva/solys2scope/internal/db"
	"github.com/goa-uva/solys2scope/internal/panel"
	"github.com/goa-uva/solys2scope/pkg/asd"
	"github.com/goa-uva/solys2scope/pkg/autotrack"
	"github.com/goa-uva/solys2scope/pkg/config"
	"github.com/goa-uva/solys2scope/pkg/oplog"
	"github.com/goa-uva/solys2scope/pkg/positioncalc"
	"github.com/goa-uva/solys2scope/pkg/solys2"
)

// Page names for the navigation bar
const (
	PageSun    = "sun"
	PageMoon   = "moon"
	PageConfig = "config"
)

// AppConfig holds the application configuration
type AppConfig struct {
	Config     *config.Config
	ConfigPath string
	Observer   positioncalc.Observer
	Database   *db.DB
}

// App represents the main control panel application
type App struct {
	// Configuration
	config     *config.Config
	configPath string
	observer   positioncalc.Observer
	eph        positioncalc.Ephemeris

	// Instruments
	tracker *solys2.Client
	spectro *asd.Client

	// Run archive (optional)
	database     *db.DB
	runRepo      *db.RunRepository
	spectrumRepo *db.SpectrumRepository

	// UI components
	tviewApp      *tview.Application
	pages         *tview.Pages
	navBar        *tview.TextView
	statusBar     *tview.TextView
	transcript    *tview.TextView
	countdownView *tview.TextView
	actionBar     *tview.Flex
	cancelButton  *tview.Button
	cancelVisible bool

	// Forms holding operation start buttons, indexed by page
	startForms []*tview.Form
	configForm *tview.Form

	// Operation coordination
	gate   *panel.Gate
	runner *panel.Runner

	// State, touched only on the interactive thread
	currentPage string
	navEnabled  bool
	op          *operation
}

// operation is the state of one in-flight run.
type operation struct {
	name      string
	session   autotrack.Session
	router    *oplog.Router
	runID     int
	stepsDone int
	steps     int
}

// NewApp creates a new application instance
func NewApp(cfg *AppConfig) *App {
	app := &App{
		config:      cfg.Config,
		configPath:  cfg.ConfigPath,
		observer:    cfg.Observer,
		eph:         positioncalc.Builtin{},
		tracker:     solys2.NewClient(cfg.Config.Solys2),
		database:    cfg.Database,
		currentPage: PageSun,
		navEnabled:  true,
	}

	if cfg.Config.ASD.Enabled {
		app.spectro = asd.NewClient(cfg.Config.ASD.Host, cfg.Config.ASD.Port)
	}

	if cfg.Database != nil {
		app.runRepo = db.NewRunRepository(cfg.Database)
		app.spectrumRepo = db.NewSpectrumRepository(cfg.Database)
	}

	app.setupUI()

	app.gate = panel.NewGate(panel.Controls{
		SetStartEnabled:      app.setStartEnabled,
		SetCancelVisible:     app.setCancelVisible,
		SetCancelEnabled:     app.setCancelEnabled,
		SetNavigationEnabled: app.setNavigationEnabled,
	})
	app.runner = panel.NewRunner(func(fn func()) {
		app.tviewApp.QueueUpdateDraw(fn)
	})

	return app
}

// setupUI initializes the user interface
func (a *App) setupUI() {
	a.tviewApp = tview.NewApplication()

	a.createNavBar()
	a.createStatusBar()
	a.createTranscriptPanel()
	a.createCountdownPanel()
	a.createActionBar()
	a.createPages()
	a.createLayout()

	a.tviewApp.SetInputCapture(a.handleKeyboard)
	a.updateNavBar()
	a.updateStatus("Ready")
}

// createNavBar creates the page navigation bar
func (a *App) createNavBar() {
	a.navBar = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
}

// createStatusBar creates the bottom status line
func (a *App) createStatusBar() {
	a.statusBar = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
}

// createTranscriptPanel creates the scrolling operation log panel
func (a *App) createTranscriptPanel() {
	a.transcript = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetMaxLines(200)
	a.transcript.SetBorder(true).SetTitle(" Operation Log ")
}

// createCountdownPanel creates the countdown display
func (a *App) createCountdownPanel() {
	a.countdownView = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.countdownView.SetBorder(true).SetTitle(" Next Measurement ")
}

// createActionBar creates the bottom bar holding the cancel control
func (a *App) createActionBar() {
	a.cancelButton = tview.NewButton("CANCEL (x)").SetSelectedFunc(a.cancelOperation)

	a.actionBar = tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.statusBar, 0, 1, false)
}

// createPages builds the sun, moon and configuration pages
func (a *App) createPages() {
	a.pages = tview.NewPages()
	a.pages.AddPage(PageSun, a.createBodyPage(positioncalc.Sun), true, true)
	a.pages.AddPage(PageMoon, a.createBodyPage(positioncalc.Moon), true, false)
	a.pages.AddPage(PageConfig, a.createConfigPage(), true, false)
}

// createBodyPage builds the operation page for one celestial body.
// The page is a form: scan parameters as input fields, operations as
// buttons.
func (a *App) createBodyPage(body positioncalc.Body) tview.Primitive {
	form := tview.NewForm()
	form.SetBorder(true).SetTitle(fmt.Sprintf(" %s Operations ", body))

	form.AddInputField("Track interval (s)", "10", 8, nil, nil)
	form.AddInputField("Azimuth range (min/max/step °)", "-1.5/1.5/0.3", 16, nil, nil)
	form.AddInputField("Zenith range (min/max/step °)", "-1.5/1.5/0.3", 16, nil, nil)
	form.AddInputField("Scan countdown (s)", "5", 8, nil, nil)
	form.AddInputField("Scan rest (s)", "2", 8, nil, nil)

	form.AddButton("Track", func() { a.startTrack(body, form, false) })
	form.AddButton("Cross Scan", func() { a.startScan(body, form, crossScan) })
	form.AddButton("Mesh Scan", func() { a.startScan(body, form, meshScan) })
	form.AddButton("Prepare ASD + Track", func() { a.startTrack(body, form, true) })
	if body == positioncalc.Moon {
		form.AddButton("Black Moon", func() { a.startBlackMoon(form) })
	}

	a.startForms = append(a.startForms, form)
	return form
}

// createLayout assembles the page area, the log sidebar and the bars
func (a *App) createLayout() {
	sidebar := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.countdownView, 5, 0, false).
		AddItem(a.transcript, 0, 1, false)

	center := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.pages, 0, 6, true).
		AddItem(sidebar, 0, 4, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.navBar, 1, 0, false).
		AddItem(center, 0, 1, true).
		AddItem(a.actionBar, 1, 0, false)

	a.tviewApp.SetRoot(root, true)
}

// updateNavBar renders the navigation bar, dimming it while locked
func (a *App) updateNavBar() {
	highlight := func(page, label string) string {
		if !a.navEnabled {
			return fmt.Sprintf("[gray]%s[-]", label)
		}
		if a.currentPage == page {
			return fmt.Sprintf("[black:yellow]%s[-:-]", label)
		}
		return fmt.Sprintf("[white]%s[-]", label)
	}
	a.navBar.SetText(fmt.Sprintf(" %s  %s  %s",
		highlight(PageSun, " F1 SUN "),
		highlight(PageMoon, " F2 MOON "),
		highlight(PageConfig, " F3 CONFIG ")))
}

// updateStatus renders the status line with the gate state
func (a *App) updateStatus(message string) {
	state := "IDLE"
	if a.gate != nil {
		state = a.gate.State().String()
	}
	a.statusBar.SetText(fmt.Sprintf(" [yellow]%s[-]  %s", state, message))
}

// addLog appends a formatted line to the transcript panel
func (a *App) addLog(line string) {
	timestamp := time.Now().Format("15:04:05")
	fmt.Fprintf(a.transcript, "[gray]%s[-] %s\n", timestamp, tview.Escape(line))
	a.transcript.ScrollToEnd()
}

// Gate control wiring. All of these run on the interactive thread.

func (a *App) setStartEnabled(enabled bool) {
	for _, form := range a.startForms {
		for i := 0; i < form.GetButtonCount(); i++ {
			form.GetButton(i).SetDisabled(!enabled)
		}
	}
}

func (a *App) setCancelVisible(visible bool) {
	if visible == a.cancelVisible {
		return
	}
	a.cancelVisible = visible
	if visible {
		a.actionBar.AddItem(a.cancelButton, 14, 0, false)
	} else {
		a.actionBar.RemoveItem(a.cancelButton)
	}
}

func (a *App) setCancelEnabled(enabled bool) {
	a.cancelButton.SetDisabled(!enabled)
}

func (a *App) setNavigationEnabled(enabled bool) {
	a.navEnabled = enabled
	a.updateNavBar()
}

// handleKeyboard handles global keyboard input. Single-letter shortcuts
// only fire when the focused primitive does not consume typed runes, so
// 'q' and 'x' can still be typed into input fields.
func (a *App) handleKeyboard(event *tcell.EventKey) *tcell.EventKey {
	typing := isTextInput(a.tviewApp.GetFocus())

	switch {
	case event.Key() == tcell.KeyCtrlC:
		a.requestClose()
		return nil
	case event.Rune() == 'q' && !typing:
		a.requestClose()
		return nil

	case event.Key() == tcell.KeyF1:
		a.switchPage(PageSun)
		return nil
	case event.Key() == tcell.KeyF2:
		a.switchPage(PageMoon)
		return nil
	case event.Key() == tcell.KeyF3:
		a.switchPage(PageConfig)
		return nil

	case event.Rune() == 'x' && !typing:
		a.cancelOperation()
		return nil
	}

	return event
}

// isTextInput reports whether a primitive consumes typed runes.
func isTextInput(p tview.Primitive) bool {
	switch p.(type) {
	case *tview.InputField, *tview.TextArea:
		return true
	}
	return false
}

// switchPage changes the visible page. Refused while an operation holds
// the navigation lock.
func (a *App) switchPage(page string) {
	if !a.navEnabled {
		a.addLog("Navigation is locked while an operation is running")
		return
	}
	a.currentPage = page
	a.pages.SwitchToPage(page)
	a.updateNavBar()
}

// requestClose closes immediately when idle, otherwise asks for
// confirmation so a running operation is not silently abandoned.
func (a *App) requestClose() {
	if a.gate.AllowClose() {
		a.Stop()
		return
	}

	modal := tview.NewModal().
		SetText("An operation is still running.\nQuit anyway and leave it unattended?").
		AddButtons([]string{"Return", "Quit"}).
		SetDoneFunc(func(index int, label string) {
			a.pages.RemovePage("quit-confirm")
			if label == "Quit" {
				a.Stop()
			}
		})
	a.pages.AddPage("quit-confirm", modal, true, true)
}

// Run starts the application
func (a *App) Run() error {
	return a.tviewApp.Run()
}

// Stop stops the application
func (a *App) Stop() {
	if a.op != nil && a.op.session != nil {
		a.op.session.Stop()
	}
	if a.tracker.IsConnected() {
		a.tracker.Close()
	}
	if a.spectro != nil && a.spectro.IsConnected() {
		a.spectro.Close()
	}
	a.tviewApp.Stop()
}
