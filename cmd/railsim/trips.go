package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vovakirdan/railsim/internal/platform/tui"
	"github.com/vovakirdan/railsim/internal/registry"
	"github.com/vovakirdan/railsim/internal/storage"
)

var (
	flagTripLimit   int
	flagInteractive bool
)

var tripsCmd = &cobra.Command{
	Use:   "trips [scenario]",
	Short: "Show recorded trips",
	Long: `Display statistics and the most recent trips for a scenario.

Without a scenario, prints a summary line for every scenario that has been
run, followed by the most recent runs. With --interactive, opens the trip
board instead.

Examples:
  railsim trips
  railsim trips diamond --limit 20
  railsim trips --interactive`,
	Args: cobra.MaximumNArgs(1),
	Run:  runTrips,
}

func init() {
	tripsCmd.Flags().IntVar(&flagTripLimit, "limit", 10, "Number of trips or runs to show")
	tripsCmd.Flags().BoolVarP(&flagInteractive, "interactive", "i", false, "Open the trip board")
}

func runTrips(_ *cobra.Command, args []string) {
	store, err := storage.Open(flagDBPath)
	if err != nil {
		fail("opening run database: %v", err)
	}
	defer store.Close()

	if flagInteractive {
		width, height := 80, 24
		if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = w
			height = h
		}
		if _, err := tui.RunTrips(store, width, height); err != nil {
			fail("%v", err)
		}
		return
	}

	if len(args) == 0 {
		printAllStats(store)
		return
	}

	id := args[0]
	title := id
	if registry.Exists(id) {
		if sc, err := registry.Create(id); err == nil {
			title = sc.Title()
		}
	}

	stats, err := store.ScenarioStats(id)
	if err != nil {
		fail("retrieving stats: %v", err)
	}
	trips, err := store.RecentTrips(id, flagTripLimit)
	if err != nil {
		fail("retrieving trips: %v", err)
	}

	fmt.Printf("Trips - %s\n", title)
	fmt.Println()

	if stats.Runs == 0 {
		fmt.Println("No runs recorded yet.")
		fmt.Println()
		fmt.Printf("Run 'railsim run %s' to record one.\n", id)
		return
	}

	fmt.Printf("  runs:      %d (last %s)\n", stats.Runs, stats.LastRun.Local().Format("2006-01-02 15:04"))
	fmt.Printf("  trips:     %d\n", stats.Trips)
	if stats.Trips > 0 {
		fmt.Printf("  average:   %.1f units in %.0f ticks\n", stats.AvgDistance, stats.AvgTicks)
	}
	fmt.Printf("  rejected:  %d edits\n", stats.Rejected)
	fmt.Println()

	if len(trips) == 0 {
		fmt.Println("No trips completed yet.")
		return
	}

	fmt.Printf("  %-6s  %-6s  %-6s  %4s  %8s  %6s  %s\n", "Train", "From", "To", "Legs", "Distance", "Ticks", "Date")
	fmt.Printf("  %-6s  %-6s  %-6s  %4s  %8s  %6s  %s\n", "-----", "----", "--", "----", "--------", "-----", "----")
	for _, t := range trips {
		fmt.Printf("  %-6s  %-6s  %-6s  %4d  %8.1f  %6d  %s\n",
			t.TrainID, t.Origin, t.Destination, t.Legs, t.Distance, t.Ticks,
			t.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
}

func printAllStats(store *storage.Store) {
	all, err := store.AllScenarioStats()
	if err != nil {
		fail("retrieving stats: %v", err)
	}
	if len(all) == 0 {
		fmt.Println("No runs recorded yet.")
		fmt.Println()
		fmt.Println("Run 'railsim run <scenario>' to record one.")
		return
	}

	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Printf("  %-12s  %5s  %6s  %8s  %8s  %s\n", "Scenario", "Runs", "Trips", "Avg dist", "Rejected", "Last run")
	fmt.Printf("  %-12s  %5s  %6s  %8s  %8s  %s\n", "--------", "----", "-----", "--------", "--------", "--------")
	for _, id := range ids {
		s := all[id]
		fmt.Printf("  %-12s  %5d  %6d  %8.1f  %8d  %s\n",
			id, s.Runs, s.Trips, s.AvgDistance, s.Rejected, s.LastRun.Local().Format("2006-01-02 15:04"))
	}

	runs, err := store.RecentRuns(flagTripLimit)
	if err != nil {
		fail("retrieving runs: %v", err)
	}
	fmt.Println()
	fmt.Println("Recent runs:")
	fmt.Println()
	for _, r := range runs {
		state := "unfinished"
		if !r.FinishedAt.IsZero() {
			state = fmt.Sprintf("%d ticks", r.Ticks)
		}
		fmt.Printf("  %s  %-12s  %-12s  %s\n", r.RunID, r.ScenarioID, state, r.StartedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Println()
	fmt.Println("Run 'railsim journal <run-id>' for the edits of a run.")
}
