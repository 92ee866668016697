package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/railsim/internal/observability"
	"github.com/vovakirdan/railsim/internal/scenario"
	"github.com/vovakirdan/railsim/internal/sim"
	"github.com/vovakirdan/railsim/internal/storage"
)

var (
	flagTicks       int
	flagRealtime    bool
	flagMetricsAddr string
	flagNoRecord    bool
)

var runCmd = &cobra.Command{
	Use:   "run <scenario>",
	Short: "Run a scenario headless",
	Long: `Build a scenario and step it for a number of ticks without a UI.

The run, every completed trip and every attempted edit are recorded in the
run database unless --no-record is given. With --metrics-addr the run serves
Prometheus metrics at /metrics while it lasts; tracing is configured in the
trace section of the configuration.

Examples:
  railsim run diamond
  railsim run loop --ticks 9000 --realtime --metrics-addr :9090
  railsim run ./my-network.yaml --rules strict --log-level info`,
	Args: cobra.ExactArgs(1),
	Run:  runRun,
}

func init() {
	runCmd.Flags().IntVar(&flagTicks, "ticks", 3000, "Ticks to run (0 = sim.max_ticks from configuration, or until interrupted)")
	runCmd.Flags().BoolVar(&flagRealtime, "realtime", false, "Pace ticks on the wall clock")
	runCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	runCmd.Flags().BoolVar(&flagNoRecord, "no-record", false, "Do not record the run")
}

func runRun(_ *cobra.Command, args []string) {
	logger := newLogger("railsim")
	cfg, err := loadConfig(logger)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := observability.InitTracing(ctx, cfg.Trace, os.Stderr, logger)
	if err != nil {
		fail("tracing: %v", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, logger)

	sc, err := scenario.Resolve(args[0])
	if err != nil {
		fail("%v", err)
	}

	opts := []sim.Option{sim.WithConfig(cfg), sim.WithLogger(logger), sim.WithContext(ctx)}

	if flagMetricsAddr != "" {
		collector, err := observability.NewCollector(nil)
		if err != nil {
			fail("metrics: %v", err)
		}
		opts = append(opts, sim.WithMetrics(collector))

		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		srv := &http.Server{Addr: flagMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "addr", flagMetricsAddr, "err", err)
			}
		}()
		defer srv.Shutdown(context.Background()) //nolint:errcheck // best-effort on exit
		logger.Info("serving metrics", "addr", flagMetricsAddr)
	}

	var run *storage.Run
	if !flagNoRecord {
		store, err := storage.Open(flagDBPath)
		if err != nil {
			logger.Warn("could not open run database, not recording", "error", err)
		} else {
			defer store.Close()
			if run, err = store.StartRun(sc.ID()); err != nil {
				logger.Warn("could not start run, not recording", "error", err)
				run = nil
			} else {
				opts = append(opts, sim.WithRecorder(run))
			}
		}
	}

	w := sim.New(opts...)
	defer w.Close()
	if err := sc.Build(w); err != nil {
		fail("%v", err)
	}

	ticks := flagTicks
	if ticks == 0 {
		ticks = cfg.Sim.MaxTicks
	}
	loop := sim.Loop{TickRate: cfg.Sim.TickRate, MaxTicks: ticks, Realtime: flagRealtime}

	counts := make(map[sim.EventKind]int)
	err = sim.Run(ctx, w, loop, func(tick uint64, events []sim.Event) error {
		for _, e := range events {
			counts[e.Kind]++
			if e.Kind != sim.EventCrossed {
				logger.Debug("event", "tick", tick, "event", e)
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fail("run: %v", err)
	}

	if run != nil {
		if err := run.Finish(w.Tick()); err != nil {
			logger.Warn("could not finish run", "error", err)
		}
	}

	fmt.Printf("Scenario %s - %s\n", sc.ID(), sc.Title())
	fmt.Printf("  ticks:    %d (%s simulated)\n", w.Tick(), w.Elapsed())
	fmt.Printf("  network:  v%d, %d segments, %d intersections\n",
		w.Network().Version(), w.Network().SegmentCount(), w.Network().IntersectionCount())
	fmt.Println()

	fmt.Printf("  %-10s  %s\n", "Event", "Count")
	fmt.Printf("  %-10s  %s\n", "-----", "-----")
	for k := sim.EventDispatched; k <= sim.EventReversed; k++ {
		fmt.Printf("  %-10s  %d\n", k, counts[k])
	}
	fmt.Println()

	fmt.Printf("  %-6s  %-8s  %-8s  %-8s  %s\n", "Train", "Segment", "State", "Dest", "Position")
	for _, st := range w.Status() {
		dest := "-"
		if st.Destination != 0 {
			dest = st.Destination.String()
		}
		fmt.Printf("  %-6s  %-8s  %-8s  %-8s  %s\n", st.ID, st.Segment, st.State, dest, st.Pos)
	}

	if stations := w.Stations(); len(stations) > 0 {
		fmt.Println()
		fmt.Printf("  %-12s  %-6s  %s\n", "Station", "At", "Trains")
		for _, st := range stations {
			fmt.Printf("  %-12s  %-6s  %v\n", st.Name, st.Intersection, st.Trains)
		}
	}

	if run != nil {
		fmt.Println()
		fmt.Printf("Recorded as run %s. See 'railsim journal %s'.\n", run.ID(), run.ID())
	}
}
