// railsim runs rail network scenarios: track laid by editor operations,
// trains routed across it and block reservations keeping them apart.
//
// Usage:
//
//	railsim list                          - List built-in scenarios
//	railsim run <scenario>                - Run a scenario headless and record it
//	railsim watch [scenario]              - Watch a scenario in the terminal
//	railsim route <scenario> <from> <to>  - Plan a route between two points
//	railsim topology <scenario>           - Print the built network as YAML
//	railsim serve                         - Start the SSH monitor server
//	railsim trips [scenario]              - Show recorded trips
//	railsim journal <run-id>              - Show the edit journal of a run
//
// Global flags:
//
//	--config <path>     - Configuration file
//	--rules <preset>    - Placement rules preset: relaxed, standard, strict
//	--db <path>         - Run database (default: ~/.railsim/runs.db)
//	--tps <rate>        - Override the tick rate
//	--log-level <level> - debug, info, warn or error
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/railsim/internal/config"
	"github.com/vovakirdan/railsim/internal/registry"
	"github.com/vovakirdan/railsim/internal/scenario"
	"github.com/vovakirdan/railsim/internal/sim"
)

var (
	// Global flags
	flagConfig   string
	flagRules    string
	flagDBPath   string
	flagTPS      int
	flagLogLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "railsim",
	Short: "railsim - simulate trains on an editable rail network",
	Long: `railsim builds rail networks from scenario scripts and runs trains
across them, routing each one and keeping them apart with block reservations.

Available commands:
  list      - Show built-in scenarios
  run       - Run a scenario headless and record the run
  watch     - Watch a scenario live in the terminal
  route     - Plan a route between two named points
  topology  - Print the network a scenario builds
  serve     - Start the SSH monitor server
  trips     - View recorded trips
  journal   - View the edit journal of a run

Examples:
  railsim list
  railsim run diamond --ticks 3000
  railsim watch loop
  railsim route diamond A F
  railsim topology junction
  railsim trips diamond`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a configuration YAML")
	rootCmd.PersistentFlags().StringVar(&flagRules, "rules", "", "Placement rules preset: relaxed, standard, strict")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "~/.railsim/runs.db", "Path to the run database")
	rootCmd.PersistentFlags().IntVar(&flagTPS, "tps", 0, "Tick rate (0 = from configuration)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(topologyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tripsCmd)
	rootCmd.AddCommand(journalCmd)
}

// loadConfig reads the configuration and applies the global overrides.
func loadConfig(logger *log.Logger) (config.Config, error) {
	cfg, source, err := config.LoadWithSource(flagConfig)
	if err != nil {
		return config.Config{}, err
	}
	logger.Debug("configuration loaded", "source", source)

	if flagRules != "" {
		preset := config.RulesPreset(flagRules)
		if !config.IsKnownPreset(preset) {
			return config.Config{}, fmt.Errorf("unknown rules preset %q (use relaxed, standard or strict)", flagRules)
		}
		config.ApplyRulesPreset(&cfg, preset)
	}
	if flagTPS > 0 {
		cfg.Sim.TickRate = flagTPS
	}
	return cfg, cfg.Validate()
}

// newLogger returns the process logger at the level given by --log-level.
func newLogger(prefix string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          prefix,
	})
	level, err := log.ParseLevel(flagLogLevel)
	if err != nil {
		logger.Warn("unknown log level, using warn", "level", flagLogLevel)
		level = log.WarnLevel
	}
	logger.SetLevel(level)
	return logger
}

// buildScenario resolves arg and builds it into a new world.
func buildScenario(arg string, opts ...sim.Option) (registry.Scenario, *sim.World, error) {
	sc, err := scenario.Resolve(arg)
	if err != nil {
		return nil, nil, err
	}
	w := sim.New(opts...)
	if err := sc.Build(w); err != nil {
		w.Close()
		return nil, nil, err
	}
	return sc, w, nil
}

// fail prints err and exits.
func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
