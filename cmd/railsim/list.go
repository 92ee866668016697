package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/railsim/internal/registry"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in scenarios",
	Long:  `Shows every scenario embedded in the binary.`,
	Run:   runList,
}

func runList(_ *cobra.Command, _ []string) {
	scenarios := registry.List()

	if len(scenarios) == 0 {
		fmt.Println("No scenarios available.")
		return
	}

	fmt.Println("Available scenarios:")
	fmt.Println()

	maxIDLen := 2 // "ID" header
	for _, s := range scenarios {
		if len(s.ID) > maxIDLen {
			maxIDLen = len(s.ID)
		}
	}

	fmt.Printf("  %-*s  %s\n", maxIDLen, "ID", "Title")
	fmt.Printf("  %-*s  %s\n", maxIDLen, "--", "-----")
	for _, s := range scenarios {
		fmt.Printf("  %-*s  %s\n", maxIDLen, s.ID, s.Title)
	}

	fmt.Println()
	fmt.Println("Run 'railsim watch <id>' to watch one, or pass a scenario file instead of an id.")
}
