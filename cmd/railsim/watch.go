package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vovakirdan/railsim/internal/config"
	"github.com/vovakirdan/railsim/internal/core"
	"github.com/vovakirdan/railsim/internal/platform/tui"
	"github.com/vovakirdan/railsim/internal/scenario"
	"github.com/vovakirdan/railsim/internal/sim"
	"github.com/vovakirdan/railsim/internal/storage"
)

var watchCmd = &cobra.Command{
	Use:   "watch [scenario]",
	Short: "Watch a scenario live in the terminal",
	Long: `Run a scenario in the terminal monitor.

Without an argument a scenario picker is shown first, and the monitor
returns to it when you quit. Runs are recorded in the run database.

Controls:
  Space/P  - Pause or resume
  N        - Single step while paused
  Tab      - Switch between the trains and blocks tables
  R        - Reroute every train
  Ctrl+S   - Save the map to ~/.railsim/screenshots
  Q        - Quit

Examples:
  railsim watch
  railsim watch junction
  railsim watch ./my-network.yaml --tps 60`,
	Args: cobra.MaximumNArgs(1),
	Run:  runWatch,
}

func runWatch(_ *cobra.Command, args []string) {
	// The monitor owns the terminal, so only errors reach the log.
	logger := newLogger("railsim")
	if logger.GetLevel() < log.ErrorLevel {
		logger.SetLevel(log.ErrorLevel)
	}

	cfg, err := loadConfig(logger)
	if err != nil {
		fail("%v", err)
	}

	store, err := storage.Open(flagDBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not open run database: %v\n", err)
		store = nil
	}
	if store != nil {
		defer store.Close()
	}

	width, height := 80, 24
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width = w
		height = h
	}
	rt := core.RuntimeConfig{
		ScreenW:  width,
		ScreenH:  height,
		TickRate: cfg.Sim.TickRate,
	}

	if len(args) == 1 {
		if err := watchScenario(args[0], cfg, rt, store, logger); err != nil {
			fail("%v", err)
		}
		return
	}

	for {
		res, err := tui.RunMenu(rt)
		if err != nil {
			fail("%v", err)
		}
		rt = res.Config
		if res.Quit {
			return
		}

		if res.WantsTrips {
			goBack, err := tui.RunTrips(store, rt.ScreenW, rt.ScreenH)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			if goBack {
				continue
			}
			return
		}

		if err := watchScenario(res.ScenarioID, cfg, rt, store, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

// watchScenario builds arg, records it when store is open and runs the
// monitor until the user quits.
func watchScenario(arg string, cfg config.Config, rt core.RuntimeConfig, store *storage.Store, logger *log.Logger) error {
	sc, err := scenario.Resolve(arg)
	if err != nil {
		return err
	}
	opts := []sim.Option{sim.WithConfig(cfg), sim.WithLogger(logger)}

	var run *storage.Run
	if store != nil {
		if run, err = store.StartRun(sc.ID()); err != nil {
			logger.Warn("could not start run, not recording", "error", err)
			run = nil
		} else {
			opts = append(opts, sim.WithRecorder(run))
		}
	}

	w := sim.New(opts...)
	defer w.Close()
	if err := sc.Build(w); err != nil {
		if run != nil {
			run.Finish(0) //nolint:errcheck // the build error is what matters
		}
		return err
	}

	m := tui.NewModel(w, sc.Title(), rt)
	if run != nil {
		m = m.OnQuit(func(w *sim.World) {
			if err := run.Finish(w.Tick()); err != nil {
				logger.Error("could not finish run", "error", err)
			}
		})
	}
	return tui.Run(m)
}
