package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"

	"github.com/vovakirdan/railsim/internal/core"
	"github.com/vovakirdan/railsim/internal/registry"
	"github.com/vovakirdan/railsim/internal/sim"
	"github.com/vovakirdan/railsim/internal/storage"
)

// WorldFactory builds an empty world for one session. rec journals the run
// and is never nil.
type WorldFactory func(rec sim.Recorder) *sim.World

// SSHServerConfig holds configuration for the SSH server.
type SSHServerConfig struct {
	// Address is the host:port to listen on (e.g., ":23235").
	Address string

	// HostKeyPath is the path to the host key file.
	// If empty, a key will be auto-generated at ~/.railsim/host_key.
	HostKeyPath string

	// DBPath is the path to the run database. Sessions run unrecorded when
	// it cannot be opened.
	DBPath string

	// IdleTimeout is how long to wait before closing idle connections.
	IdleTimeout time.Duration

	// TickRate is the simulation rate of every session.
	TickRate int

	// NewWorld builds each session's world.
	NewWorld WorldFactory

	// Logger receives session events. A default is created when nil.
	Logger *log.Logger
}

// DefaultSSHServerConfig returns a config with sensible defaults.
func DefaultSSHServerConfig() SSHServerConfig {
	return SSHServerConfig{
		Address:     ":23235",
		DBPath:      "~/.railsim/runs.db",
		IdleTimeout: 30 * time.Minute,
		TickRate:    30,
	}
}

// SSHServer wraps a Wish SSH server that gives every session its own world.
type SSHServer struct {
	config SSHServerConfig
	server *ssh.Server
	store  *storage.Store
	logger *log.Logger
}

// NewSSHServer creates a new SSH server with the given configuration.
func NewSSHServer(cfg SSHServerConfig) (*SSHServer, error) {
	if cfg.NewWorld == nil {
		return nil, errors.New("ssh server: no world factory")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Prefix:          "railsim-ssh",
		})
	}

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		logger.Warn("could not open run database", "error", err)
		// Continue without storage
		store = nil
	}

	srv := &SSHServer{
		config: cfg,
		store:  store,
		logger: logger,
	}

	hostKeyPath := cfg.HostKeyPath
	if hostKeyPath == "" {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return nil, fmt.Errorf("cannot get home directory: %w", homeErr)
		}
		hostKeyPath = filepath.Join(home, ".railsim", "host_key")
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(hostKeyPath), 0o700); mkdirErr != nil {
		return nil, fmt.Errorf("cannot create host key directory: %w", mkdirErr)
	}

	opts := []ssh.Option{
		wish.WithAddress(cfg.Address),
		wish.WithHostKeyPath(hostKeyPath),
		wish.WithIdleTimeout(cfg.IdleTimeout),
		wish.WithMiddleware(
			bubbletea.Middleware(srv.teaHandler),
			srv.loggingMiddleware,
		),
	}

	server, err := wish.NewServer(opts...)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, fmt.Errorf("cannot create SSH server: %w", err)
	}

	srv.server = server
	return srv, nil
}

// teaHandler creates a Bubble Tea program for each SSH session.
func (s *SSHServer) teaHandler(sshSession ssh.Session) (tea.Model, []tea.ProgramOption) {
	pty, _, ok := sshSession.Pty()
	if !ok {
		s.logger.Warn("no PTY requested", "user", sshSession.User())
		return nil, nil
	}

	cfg := core.RuntimeConfig{
		ScreenW:  pty.Window.Width,
		ScreenH:  pty.Window.Height,
		TickRate: s.config.TickRate,
		Seed:     time.Now().UnixNano(),
	}

	model := NewSessionModel(s.store, cfg, s.config.NewWorld)
	model.logger = s.logger.With("user", sshSession.User())

	// A dropped connection never sends the quit key.
	go func() {
		<-sshSession.Context().Done()
		model.active.finish()
	}()

	return model, []tea.ProgramOption{
		tea.WithAltScreen(),
	}
}

// loggingMiddleware logs SSH session events.
func (s *SSHServer) loggingMiddleware(next ssh.Handler) ssh.Handler {
	return func(sshSession ssh.Session) {
		s.logger.Info("session started",
			"user", sshSession.User(),
			"remote", sshSession.RemoteAddr().String(),
		)
		next(sshSession)
		s.logger.Info("session ended",
			"user", sshSession.User(),
			"remote", sshSession.RemoteAddr().String(),
		)
	}
}

// ListenAndServe starts the SSH server and blocks until shutdown.
func (s *SSHServer) ListenAndServe() error {
	s.logger.Info("starting SSH server", "address", s.config.Address)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()

	<-done
	s.logger.Info("shutting down...")
	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *SSHServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.server.Shutdown(ctx)
	if s.store != nil {
		s.store.Close()
	}
	return err
}

// Addr returns the server's listen address string.
func (s *SSHServer) Addr() string {
	return s.config.Address
}

// activeRun is the world a session is watching and its journal entry.
// It is shared between copies of the session model.
type activeRun struct {
	mu    sync.Mutex
	world *sim.World
	run   *storage.Run
}

func (a *activeRun) start(w *sim.World, run *storage.Run) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.world, a.run = w, run
}

// finish closes the world and marks the run finished. It is safe to call
// more than once.
func (a *activeRun) finish() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.world == nil {
		return
	}
	if a.run != nil {
		//nolint:errcheck // Best-effort, the session is ending regardless
		a.run.Finish(a.world.Tick())
	}
	a.world.Close()
	a.world, a.run = nil, nil
}

// SessionModel manages one session's flow: picker -> monitor -> picker, with
// the trip board reachable from the picker.
type SessionModel struct {
	store    *storage.Store
	config   core.RuntimeConfig
	newWorld WorldFactory
	logger   *log.Logger
	active   *activeRun

	menu     MenuModel
	watch    *Model
	trips    *TripsModel
	err      error
	quitting bool
}

// NewSessionModel creates a new session model.
func NewSessionModel(store *storage.Store, cfg core.RuntimeConfig, newWorld WorldFactory) SessionModel {
	return SessionModel{
		store:    store,
		config:   cfg,
		newWorld: newWorld,
		logger:   log.New(os.Stderr),
		active:   &activeRun{},
		menu:     NewMenuModel(cfg),
	}
}

// Init initializes the session.
func (m SessionModel) Init() tea.Cmd {
	return m.menu.Init()
}

// Update handles messages for the session.
func (m SessionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if wsm, ok := msg.(tea.WindowSizeMsg); ok {
		m.config.ScreenW = wsm.Width
		m.config.ScreenH = wsm.Height
	}

	switch {
	case m.watch != nil:
		return m.updateWatch(msg)
	case m.trips != nil:
		return m.updateTrips(msg)
	}
	return m.updateMenu(msg)
}

// updateMenu handles updates while the picker is shown.
func (m SessionModel) updateMenu(msg tea.Msg) (tea.Model, tea.Cmd) {
	newMenu, cmd := m.menu.Update(msg)
	if menuModel, ok := newMenu.(MenuModel); ok {
		m.menu = menuModel
	}

	if m.menu.IsQuitting() {
		m.quitting = true
		return m, tea.Quit
	}

	if m.menu.WantsTrips() {
		trips := NewTripsModel(m.store, m.config.ScreenW, m.config.ScreenH)
		m.trips = &trips
		return m, trips.Init()
	}

	if selected := m.menu.Selected(); selected != nil {
		watch, err := m.startWatch(selected.ID)
		if err != nil {
			m.logger.Warn("scenario failed", "scenario", selected.ID, "error", err)
			m.err = err
			m.menu = NewMenuModel(m.config)
			return m, nil
		}
		m.err = nil
		m.watch = &watch
		return m, watch.Init()
	}

	return m, cmd
}

// startWatch builds the chosen scenario into a fresh world.
func (m SessionModel) startWatch(id string) (Model, error) {
	sc, err := registry.Create(id)
	if err != nil {
		return Model{}, err
	}

	var rec sim.Recorder = nopRecorder{}
	var run *storage.Run
	if m.store != nil {
		if run, err = m.store.StartRun(id); err != nil {
			m.logger.Warn("run not recorded", "scenario", id, "error", err)
			run = nil
		} else {
			rec = run
		}
	}

	w := m.newWorld(rec)
	if err := sc.Build(w); err != nil {
		w.Close()
		return Model{}, err
	}
	m.active.start(w, run)
	m.logger.Info("watching", "scenario", id)
	return NewModel(w, sc.Title(), m.config), nil
}

// updateWatch handles updates while the monitor is shown.
func (m SessionModel) updateWatch(msg tea.Msg) (tea.Model, tea.Cmd) {
	newModel, cmd := m.watch.Update(msg)
	if watch, ok := newModel.(Model); ok {
		m.watch = &watch
	}

	if m.watch.IsQuitting() {
		m.active.finish()
		m.watch = nil
		m.menu = NewMenuModel(m.config)
		return m, m.menu.Init()
	}
	return m, cmd
}

// updateTrips handles updates while the trip board is shown.
func (m SessionModel) updateTrips(msg tea.Msg) (tea.Model, tea.Cmd) {
	newModel, cmd := m.trips.Update(msg)
	if trips, ok := newModel.(TripsModel); ok {
		m.trips = &trips
	}

	if m.trips.IsQuitting() {
		m.quitting = true
		return m, tea.Quit
	}
	if m.trips.IsGoingBack() {
		m.trips = nil
		m.menu = NewMenuModel(m.config)
		return m, m.menu.Init()
	}
	return m, cmd
}

// View renders the current view.
func (m SessionModel) View() string {
	if m.quitting {
		return ""
	}

	switch {
	case m.watch != nil:
		return m.watch.View()
	case m.trips != nil:
		return m.trips.View()
	}

	view := m.menu.View()
	if m.err != nil {
		view += "\n" + centerText(lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Render(m.err.Error()), m.config.ScreenW)
	}
	return view
}

type nopRecorder struct{}

func (nopRecorder) RecordMutation(sim.MutationRecord) error { return nil }
func (nopRecorder) RecordTrip(sim.Trip) error               { return nil }
