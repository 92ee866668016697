package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/railsim/internal/core"
	"github.com/vovakirdan/railsim/internal/sim"
)

// Monitor layout constants
const (
	tableRows = 6 // visible rows in the trains/blocks table
	maxEvents = 4 // recent events shown under the map
	chromeH   = tableRows + maxEvents + 8
	minMapH   = 6
)

// Pane selects the table shown under the map.
type Pane int

const (
	PaneTrains Pane = iota
	PaneBlocks
)

// Model is the Bubble Tea model for watching a running world.
type Model struct {
	world  *sim.World
	title  string
	screen *core.Screen
	config core.RuntimeConfig

	trains table.Model
	blocks table.Model
	help   help.Model
	keys   WatchKeyMap

	pane     Pane
	paused   bool
	events   []string
	err      error
	quitting bool
	onQuit   func(*sim.World)
}

// NewModel creates a monitor for w. title names the scenario in the header.
func NewModel(w *sim.World, title string, cfg core.RuntimeConfig) Model {
	if cfg.TickRate <= 0 {
		cfg.TickRate = core.DefaultConfig().TickRate
	}
	h := help.New()
	h.ShowAll = false

	m := Model{
		world:  w,
		title:  title,
		screen: core.NewScreen(cfg.ScreenW, mapHeight(cfg.ScreenH)),
		config: cfg,
		trains: newTable([]table.Column{
			{Title: "Train", Width: 8},
			{Title: "Segment", Width: 8},
			{Title: "t", Width: 6},
			{Title: "Dir", Width: 9},
			{Title: "State", Width: 9},
			{Title: "Dest", Width: 6},
			{Title: "Remaining", Width: 10},
		}),
		blocks: newTable([]table.Column{
			{Title: "Block", Width: 14},
			{Title: "Train", Width: 8},
			{Title: "State", Width: 10},
		}),
		help: h,
		keys: DefaultWatchKeyMap(),
	}
	m.blocks.Blur()
	m.refresh()
	return m
}

// OnQuit registers fn to run with the world once the user quits.
func (m Model) OnQuit(fn func(*sim.World)) Model {
	m.onQuit = fn
	return m
}

func mapHeight(screenH int) int {
	return max(screenH-chromeH, minMapH)
}

func newTable(columns []table.Column) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(tableRows),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

// Init starts the tick loop.
func (m Model) Init() tea.Cmd {
	return tickCmd(m.config.TickRate)
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case TickMsg:
		if m.quitting {
			return m, nil
		}
		if !m.paused {
			m.step()
		}
		return m, tickCmd(m.config.TickRate)
	}

	return m, nil
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		if m.onQuit != nil {
			m.onQuit(m.world)
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Pause):
		m.paused = !m.paused

	case key.Matches(msg, m.keys.Step):
		if m.paused {
			m.step()
		}

	case key.Matches(msg, m.keys.Switch):
		if m.pane == PaneTrains {
			m.pane = PaneBlocks
			m.trains.Blur()
			m.blocks.Focus()
		} else {
			m.pane = PaneTrains
			m.blocks.Blur()
			m.trains.Focus()
		}

	case key.Matches(msg, m.keys.Reroute):
		m.err = m.world.RerouteAll()
		m.refresh()

	case key.Matches(msg, m.keys.Screenshot):
		m.saveScreenshot()

	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
		var cmd tea.Cmd
		if m.pane == PaneTrains {
			m.trains, cmd = m.trains.Update(msg)
		} else {
			m.blocks, cmd = m.blocks.Update(msg)
		}
		return m, cmd
	}

	return m, nil
}

// handleResize processes window resize events.
func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.config.ScreenW = msg.Width
	m.config.ScreenH = msg.Height
	m.screen.Resize(msg.Width, mapHeight(msg.Height))
	m.help.Width = msg.Width
	m.refresh()
	return m, nil
}

// step advances the world one tick and records its events.
func (m *Model) step() {
	for _, e := range m.world.Step(m.config.TickSeconds()) {
		if e.Kind == sim.EventCrossed {
			continue
		}
		m.events = append(m.events, e.String())
	}
	if n := len(m.events); n > maxEvents {
		m.events = append([]string(nil), m.events[n-maxEvents:]...)
	}
	m.refresh()
}

// refresh redraws the map and reloads both tables from the world.
func (m *Model) refresh() {
	status := m.world.Status()
	held := m.world.Traffic().Snapshot()
	Plot(m.screen, m.world.Network().Snapshot(), status, held)

	rows := make([]table.Row, len(status))
	for i, st := range status {
		dest := "-"
		if st.Destination != 0 {
			dest = st.Destination.String()
		}
		rows[i] = table.Row{
			string(st.ID),
			st.Segment.String(),
			fmt.Sprintf("%.2f", st.T),
			st.Direction.String(),
			st.State.String(),
			dest,
			fmt.Sprintf("%.1f", st.Remaining),
		}
	}
	m.trains.SetRows(rows)

	rows = make([]table.Row, len(held))
	for i, r := range held {
		rows[i] = table.Row{r.Block.String(), string(r.Train), r.State.String()}
	}
	m.blocks.SetRows(rows)
}

// saveScreenshot saves the current map to a file.
func (m *Model) saveScreenshot() {
	dir := filepath.Join(os.Getenv("HOME"), ".railsim", "screenshots")
	//nolint:errcheck // Best-effort directory creation
	os.MkdirAll(dir, 0o755)

	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("%s_%s.txt", m.title, timestamp)
	//nolint:errcheck // Best-effort save, the run continues regardless
	os.WriteFile(filepath.Join(dir, filename), []byte(m.screen.String()), 0o600)
}

// View renders the current state to a string for display.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	header := fmt.Sprintf("RAILSIM - %s", m.title)
	info := fmt.Sprintf("  tick %d  %s  v%d", m.world.Tick(), m.world.Elapsed().Truncate(time.Second/10), m.world.Network().Version())
	if m.paused {
		info += "  [paused]"
	}
	b.WriteString(titleStyle.Render(header))
	b.WriteString(dimStyle.Render(info))
	b.WriteString("\n")

	b.WriteString(RenderScreen(m.screen))
	b.WriteString("\n")

	for _, e := range m.events {
		b.WriteString(dimStyle.Render(e))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(colorStyles[core.ColorRed].Render(m.err.Error()))
		b.WriteString("\n")
	}

	tableStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
	label := "Trains"
	content := m.trains.View()
	if m.pane == PaneBlocks {
		label = "Blocks"
		content = m.blocks.View()
	}
	b.WriteString(titleStyle.Render(label))
	b.WriteString("\n")
	b.WriteString(tableStyle.Render(content))
	b.WriteString("\n")

	b.WriteString(dimStyle.Render(m.help.View(m.keys)))
	return b.String()
}

// Paused reports whether ticking is suspended.
func (m Model) Paused() bool {
	return m.paused
}

// IsQuitting returns true if user requested to quit.
func (m Model) IsQuitting() bool {
	return m.quitting
}

// Pane returns the table currently shown.
func (m Model) Pane() Pane {
	return m.pane
}

// Run starts the monitor m and blocks until the user quits.
func Run(m Model) error {
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(), // Use alternate screen buffer
	)

	_, err := p.Run()
	return err
}
