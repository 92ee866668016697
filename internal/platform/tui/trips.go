package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/railsim/internal/registry"
	"github.com/vovakirdan/railsim/internal/storage"
)

// Trip board layout constants
const (
	minWidthForSidebar = 80  // Minimum width to show scenario list sidebar
	sidebarWidth       = 20  // Width of scenario list sidebar
	maxTrips           = 100 // Max trips to load
)

// TripsModel is the Bubble Tea model for browsing recorded trips.
type TripsModel struct {
	scenarios   []registry.Info
	cursor      int
	store       *storage.Store
	trips       []storage.TripEntry
	stats       *storage.ScenarioStats
	err         error
	table       table.Model
	help        help.Model
	keys        TripsKeyMap
	width       int
	height      int
	quitting    bool
	goingBack   bool
	showSidebar bool
}

// NewTripsModel creates a trip board over every registered scenario.
func NewTripsModel(store *storage.Store, width, height int) TripsModel {
	h := help.New()
	h.ShowAll = false

	m := TripsModel{
		scenarios:   registry.List(),
		store:       store,
		keys:        DefaultTripsKeyMap(),
		help:        h,
		width:       width,
		height:      height,
		showSidebar: width >= minWidthForSidebar,
	}
	m.table = m.createTable()
	if len(m.scenarios) > 0 {
		m.load(m.scenarios[0].ID)
	}
	return m
}

// createTable creates a new table sized to the window.
func (m *TripsModel) createTable() table.Model {
	columns := []table.Column{
		{Title: "Train", Width: 8},
		{Title: "From", Width: 6},
		{Title: "To", Width: 6},
		{Title: "Legs", Width: 5},
		{Title: "Distance", Width: 9},
		{Title: "Ticks", Width: 7},
		{Title: "When", Width: 13},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(max(m.height-10, 3)),
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

// load reads trips and statistics for the given scenario.
func (m *TripsModel) load(scenarioID string) {
	m.trips, m.stats, m.err = nil, nil, nil
	if m.store != nil {
		m.trips, m.err = m.store.RecentTrips(scenarioID, maxTrips)
		if m.err == nil {
			m.stats, m.err = m.store.ScenarioStats(scenarioID)
		}
	}
	m.updateTableRows()
}

// updateTableRows updates the table with the loaded trips.
func (m *TripsModel) updateTableRows() {
	rows := make([]table.Row, len(m.trips))
	for i, t := range m.trips {
		rows[i] = table.Row{
			string(t.TrainID),
			t.Origin.String(),
			t.Destination.String(),
			fmt.Sprintf("%d", t.Legs),
			fmt.Sprintf("%.1f", t.Distance),
			fmt.Sprintf("%d", t.Ticks),
			t.CreatedAt.Format("Jan 02 15:04"),
		}
	}
	m.table.SetRows(rows)
	m.table.GotoTop()
}

// Init initializes the trip board.
func (m TripsModel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the trip board.
func (m TripsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Back):
			m.goingBack = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.NextScenario):
			if len(m.scenarios) > 0 {
				m.cursor = (m.cursor + 1) % len(m.scenarios)
				m.load(m.scenarios[m.cursor].ID)
			}
			return m, nil

		case key.Matches(msg, m.keys.PrevScenario):
			if len(m.scenarios) > 0 {
				m.cursor = (m.cursor - 1 + len(m.scenarios)) % len(m.scenarios)
				m.load(m.scenarios[m.cursor].ID)
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.showSidebar = m.width >= minWidthForSidebar
		m.table = m.createTable()
		m.updateTableRows()
		m.help.Width = msg.Width
		return m, nil
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the trip board.
func (m TripsModel) View() string {
	if m.quitting || m.goingBack {
		return ""
	}

	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("229")).
		MarginBottom(1)

	title := "TRIPS"
	if len(m.scenarios) > 0 {
		title = fmt.Sprintf("TRIPS - %s", m.scenarios[m.cursor].Title)
	}
	b.WriteString(titleStyle.Render(centerText(title, m.width)))
	b.WriteString("\n")
	b.WriteString(centerText(m.summary(), m.width))
	b.WriteString("\n\n")

	tableStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
	content := tableStyle.Render(m.renderTableContent())

	if m.showSidebar {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), "  ", content))
	} else {
		b.WriteString(content)
	}

	b.WriteString("\n")
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	b.WriteString(helpStyle.Render(m.help.View(m.keys)))

	return b.String()
}

// summary formats the aggregate line shown under the title.
func (m TripsModel) summary() string {
	if m.stats == nil {
		return ""
	}
	s := fmt.Sprintf("%d runs  %d trips  avg %.1f units in %.0f ticks  %d rejected edits",
		m.stats.Runs, m.stats.Trips, m.stats.AvgDistance, m.stats.AvgTicks, m.stats.Rejected)
	if !m.stats.LastRun.IsZero() {
		s += "  last " + m.stats.LastRun.Format("Jan 02 15:04")
	}
	return s
}

// renderSidebar renders the scenario list.
func (m TripsModel) renderSidebar() string {
	sidebarStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(sidebarWidth).
		Padding(0, 1)

	var sidebar strings.Builder
	sidebar.WriteString("Scenarios\n")
	sidebar.WriteString(strings.Repeat("-", sidebarWidth-4))
	sidebar.WriteString("\n")

	for i, sc := range m.scenarios {
		cursor := "  "
		style := lipgloss.NewStyle()
		if i == m.cursor {
			cursor = "> "
			style = style.Bold(true).Foreground(lipgloss.Color("229"))
		}

		name := sc.ID
		maxLen := sidebarWidth - 6
		if len(name) > maxLen {
			name = name[:maxLen-1] + "."
		}
		sidebar.WriteString(style.Render(cursor + name))
		sidebar.WriteString("\n")
	}
	return sidebarStyle.Render(sidebar.String())
}

// renderTableContent renders the table or an empty message.
func (m TripsModel) renderTableContent() string {
	emptyStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Italic(true).
		Padding(2, 4)

	switch {
	case m.store == nil:
		return emptyStyle.Render("No run database open.")
	case m.err != nil:
		return emptyStyle.Render("Could not load trips: " + m.err.Error())
	case len(m.trips) == 0:
		return emptyStyle.Render("No trips recorded yet.\nRun the scenario to record some!")
	}
	return m.table.View()
}

// IsGoingBack returns true if user wants to go back to the picker.
func (m TripsModel) IsGoingBack() bool {
	return m.goingBack
}

// IsQuitting returns true if user wants to quit entirely.
func (m TripsModel) IsQuitting() bool {
	return m.quitting
}

// RunTrips runs the trip board.
// Returns true if user wants to go back, false if quitting.
func RunTrips(store *storage.Store, width, height int) (goBack bool, err error) {
	p := tea.NewProgram(NewTripsModel(store, width, height), tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return false, err
	}

	m, ok := finalModel.(TripsModel)
	if !ok {
		return false, nil
	}
	return m.IsGoingBack(), nil
}
