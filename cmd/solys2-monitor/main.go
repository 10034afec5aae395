// solys2-monitor is a read-only dashboard for the SOLYS2 tracker: live
// pointing, computed sun and moon positions, and the recent run archive.
// It never sends motion commands, so it is safe to leave open while the
// control panel runs an operation.
package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/goa-uva/solys2scope/internal/db"
	"github.com/goa-uva/solys2scope/pkg/config"
	"github.com/goa-uva/solys2scope/pkg/positioncalc"
	"github.com/goa-uva/solys2scope/pkg/solys2"
)

// Sky strip dimensions
const (
	stripWidth = 74
)

type model struct {
	cfg      *config.Config
	observer positioncalc.Observer
	eph      positioncalc.Ephemeris
	tracker  *solys2.Client
	database *db.DB
	runRepo  *db.RunRepository

	// Tracker state from the last poll
	connected  bool
	azimuth    float64
	zenith     float64
	adjAzimuth float64
	adjZenith  float64

	// Computed body positions
	sun  positioncalc.Position
	moon positioncalc.Position

	// Run archive
	runs []db.Run

	err error
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case tickMsg:
		m.poll(time.Time(msg))
		return m, tick()
	}

	return m, nil
}

// poll refreshes the tracker reading, the computed body positions and the
// recent runs.
func (m *model) poll(now time.Time) {
	m.sun, _ = m.eph.Position(positioncalc.Sun, m.observer, now)
	m.moon, _ = m.eph.Position(positioncalc.Moon, m.observer, now)

	if !m.tracker.IsConnected() {
		if err := m.tracker.Connect(); err != nil {
			m.connected = false
			m.err = err
			return
		}
	}

	azimuth, zenith, err := m.tracker.Position()
	if err != nil {
		m.connected = false
		m.err = err
		m.tracker.Close()
		return
	}
	m.connected = true
	m.err = nil
	m.azimuth = azimuth
	m.zenith = zenith

	if adjAz, adjZe, err := m.tracker.Adjustment(); err == nil {
		m.adjAzimuth = adjAz
		m.adjZenith = adjZe
	}

	if m.runRepo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if runs, err := m.runRepo.Recent(ctx, 6); err == nil {
			m.runs = runs
		}
		cancel()
	}
}

func (m model) View() string {
	var s strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	s.WriteString(titleStyle.Render("SOLYS2SCOPE MONITOR"))
	s.WriteString("\n\n")

	s.WriteString(m.renderSkyStrip())
	s.WriteString("\n")

	s.WriteString(m.renderTracker())
	s.WriteString("\n")
	s.WriteString(m.renderBodies())
	s.WriteString("\n")

	if m.runRepo != nil {
		s.WriteString(m.renderRuns())
		s.WriteString("\n")
	}

	if m.err != nil {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		s.WriteString(errStyle.Render(fmt.Sprintf("Tracker: %v", m.err)))
		s.WriteString("\n")
	}

	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	s.WriteString(helpStyle.Render("Q: Quit"))
	s.WriteString("\n")

	return s.String()
}

// renderSkyStrip draws the azimuth band with the sun, the moon and the
// tracker pointing marked on it.
func (m model) renderSkyStrip() string {
	strip := make([]rune, stripWidth)
	for i := range strip {
		strip[i] = '·'
	}

	mark := func(azimuth float64, char rune) {
		col := int(math.Mod(azimuth, 360.0) / 360.0 * float64(stripWidth))
		if col >= 0 && col < stripWidth {
			strip[col] = char
		}
	}

	// Cardinal points first so body markers draw over them
	mark(0, 'N')
	mark(90, 'E')
	mark(180, 'S')
	mark(270, 'W')
	mark(m.sun.Azimuth, '☀')
	mark(m.moon.Azimuth, '☾')
	if m.connected {
		mark(m.azimuth, '▲')
	}

	var sky strings.Builder
	borderStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	sky.WriteString(borderStyle.Render("┌" + strings.Repeat("─", stripWidth) + "┐"))
	sky.WriteString("\n")
	sky.WriteString(borderStyle.Render("│"))
	for _, char := range strip {
		switch char {
		case '☀':
			sky.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true).Render(string(char)))
		case '☾':
			sky.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Render(string(char)))
		case '▲':
			sky.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true).Render(string(char)))
		case 'N', 'E', 'S', 'W':
			sky.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Render(string(char)))
		default:
			sky.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(string(char)))
		}
	}
	sky.WriteString(borderStyle.Render("│"))
	sky.WriteString("\n")
	sky.WriteString(borderStyle.Render("└" + strings.Repeat("─", stripWidth) + "┘"))
	sky.WriteString("\n")
	return sky.String()
}

func (m model) renderTracker() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	var s strings.Builder

	s.WriteString(headerStyle.Render("Tracker"))
	s.WriteString("\n")
	if !m.connected {
		s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("  NOT CONNECTED"))
		s.WriteString("\n")
		return s.String()
	}

	s.WriteString(fmt.Sprintf("  Azimuth  %8.4f°   Zenith  %8.4f°\n", m.azimuth, m.zenith))
	s.WriteString(fmt.Sprintf("  Adjust   %+8.4f°           %+8.4f°\n", m.adjAzimuth, m.adjZenith))
	return s.String()
}

func (m model) renderBodies() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	var s strings.Builder

	s.WriteString(headerStyle.Render("Bodies"))
	s.WriteString("\n")
	s.WriteString(m.renderBody("Sun ", m.sun))
	s.WriteString(m.renderBody("Moon", m.moon))
	return s.String()
}

func (m model) renderBody(name string, pos positioncalc.Position) string {
	line := fmt.Sprintf("  %s  Azimuth %8.4f°   Zenith %8.4f°", name, pos.Azimuth, pos.Zenith)
	if m.connected {
		line += fmt.Sprintf("   Δ %6.3f°", pointingError(m.azimuth, m.zenith, pos))
	}
	if pos.Zenith >= 90 {
		line += "   (below horizon)"
	}
	return line + "\n"
}

func (m model) renderRuns() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	var s strings.Builder

	s.WriteString(headerStyle.Render("Recent Runs"))
	s.WriteString("\n")
	if len(m.runs) == 0 {
		s.WriteString(dimStyle.Render("  none"))
		s.WriteString("\n")
		return s.String()
	}

	for _, run := range m.runs {
		status := run.Status
		style := dimStyle
		switch status {
		case db.RunStatusRunning:
			style = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
		case db.RunStatusFailed:
			style = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		}
		s.WriteString(fmt.Sprintf("  %s %-12s %s\n",
			run.StartedAt.Local().Format("15:04:05"),
			run.Operation,
			style.Render(status)))
	}
	return s.String()
}

// pointingError returns the angular separation between the tracker
// pointing and a body position, in degrees.
func pointingError(azimuth, zenith float64, pos positioncalc.Position) float64 {
	deg2rad := math.Pi / 180.0

	// Both directions as unit vectors, zenith measured from vertical
	a1 := azimuth * deg2rad
	z1 := zenith * deg2rad
	a2 := pos.Azimuth * deg2rad
	z2 := pos.Zenith * deg2rad

	cos := math.Cos(z1)*math.Cos(z2) + math.Sin(z1)*math.Sin(z2)*math.Cos(a1-a2)
	if cos > 1 {
		cos = 1
	}
	if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) / deg2rad
}

func main() {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	observer := positioncalc.Observer{
		Latitude:  cfg.Observer.Latitude,
		Longitude: cfg.Observer.Longitude,
		Height:    cfg.Observer.Height,
	}

	m := model{
		cfg:      cfg,
		observer: observer,
		eph:      positioncalc.Builtin{},
		tracker:  solys2.NewClient(cfg.Solys2),
	}

	// The run archive is optional for monitoring
	if cfg.Database.Enabled {
		if database, err := db.Connect(cfg.Database); err == nil {
			defer database.Close()
			m.database = database
			m.runRepo = db.NewRunRepository(database)
		}
	}

	m.poll(time.Now())

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
