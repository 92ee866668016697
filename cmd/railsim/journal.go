package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/railsim/internal/storage"
)

var journalCmd = &cobra.Command{
	Use:   "journal <run-id>",
	Short: "Show the edit journal of a run",
	Long: `Display every topology change attempted during a run, in order, with
the network version it produced or the reason it was rejected, followed by
the trips completed in the run.

Run ids are printed by 'railsim run' and listed by 'railsim trips'.

Examples:
  railsim journal 4f0c2a5e-8d1b-4c6e-9a37-2b5d8e1f6c90`,
	Args: cobra.ExactArgs(1),
	Run:  runJournal,
}

func runJournal(_ *cobra.Command, args []string) {
	runID := args[0]

	store, err := storage.Open(flagDBPath)
	if err != nil {
		fail("opening run database: %v", err)
	}
	defer store.Close()

	run, err := store.RunByID(runID)
	if err != nil {
		fail("%v", err)
	}
	if run == nil {
		fail("no run %q", runID)
	}

	entries, err := store.Journal(runID)
	if err != nil {
		fail("retrieving journal: %v", err)
	}
	trips, err := store.TripsForRun(runID)
	if err != nil {
		fail("retrieving trips: %v", err)
	}

	fmt.Printf("Run %s - %s\n", run.RunID, run.ScenarioID)
	fmt.Printf("  started:   %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if run.FinishedAt.IsZero() {
		fmt.Println("  finished:  no")
	} else {
		fmt.Printf("  finished:  %s after %d ticks\n", run.FinishedAt.Local().Format("2006-01-02 15:04:05"), run.Ticks)
	}
	fmt.Println()

	if len(entries) == 0 {
		fmt.Println("No edits recorded.")
	} else {
		fmt.Printf("  %-4s  %-8s  %-18s  %-20s  %s\n", "#", "Version", "Operation", "Result", "Detail")
		fmt.Printf("  %-4s  %-8s  %-18s  %-20s  %s\n", "-", "-------", "---------", "------", "------")
		for i, e := range entries {
			result := "applied"
			version := fmt.Sprintf("v%d", e.Version)
			if e.ErrorKind != "" {
				result = "rejected: " + e.ErrorKind
				version = "-"
			}
			fmt.Printf("  %-4d  %-8s  %-18s  %-20s  %s\n", i+1, version, e.Op, result, e.Detail)
		}
	}
	fmt.Println()

	if len(trips) == 0 {
		fmt.Println("No trips completed.")
		return
	}
	fmt.Printf("  %-6s  %-6s  %-6s  %4s  %8s  %6s\n", "Train", "From", "To", "Legs", "Distance", "Ticks")
	fmt.Printf("  %-6s  %-6s  %-6s  %4s  %8s  %6s\n", "-----", "----", "--", "----", "--------", "-----")
	for _, t := range trips {
		fmt.Printf("  %-6s  %-6s  %-6s  %4d  %8.1f  %6d\n",
			t.TrainID, t.Origin, t.Destination, t.Legs, t.Distance, t.Ticks)
	}
}
