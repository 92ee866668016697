package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/railsim/internal/platform/tui"
	"github.com/vovakirdan/railsim/internal/sim"
)

var (
	flagSSHAddr     string
	flagHostKey     string
	flagIdleTimeout int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the SSH monitor server",
	Long: `Start an SSH server that lets users pick and watch scenarios.

Each SSH connection gets its own world and scenario picker. Runs are
recorded in the run database given by --db, shared by all sessions.

Host key handling:
  - If --host-key is provided, uses that key file
  - Otherwise, auto-generates a key at ~/.railsim/host_key

Examples:
  railsim serve                           # Listen on :23235 with auto-generated key
  railsim serve --ssh :2222               # Listen on port 2222
  railsim serve --host-key ./my_host_key  # Use specific host key
  railsim serve --rules strict --tps 20   # Configure every session

Users can connect with:
  ssh localhost -p 23235`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagSSHAddr, "ssh", ":23235", "SSH server address (host:port)")
	serveCmd.Flags().StringVar(&flagHostKey, "host-key", "", "Path to host key file (auto-generated if not specified)")
	serveCmd.Flags().IntVar(&flagIdleTimeout, "idle-timeout", 30, "Idle timeout in minutes before disconnecting")
}

func runServe(_ *cobra.Command, _ []string) {
	logger := newLogger("railsim-ssh")
	simCfg, err := loadConfig(logger)
	if err != nil {
		fail("%v", err)
	}

	cfg := tui.SSHServerConfig{
		Address:     flagSSHAddr,
		HostKeyPath: flagHostKey,
		DBPath:      flagDBPath,
		IdleTimeout: time.Duration(flagIdleTimeout) * time.Minute,
		TickRate:    simCfg.Sim.TickRate,
		Logger:      logger,
		NewWorld: func(rec sim.Recorder) *sim.World {
			return sim.New(
				sim.WithConfig(simCfg),
				sim.WithLogger(logger),
				sim.WithRecorder(rec),
			)
		},
	}

	server, err := tui.NewSSHServer(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating server: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Starting railsim SSH server on %s\n", server.Addr())
	if _, port, err := net.SplitHostPort(cfg.Address); err == nil {
		fmt.Printf("Connect with: ssh localhost -p %s\n", port)
	}
	fmt.Println("Press Ctrl+C to stop")

	if err := server.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
