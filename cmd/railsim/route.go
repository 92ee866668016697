package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/railsim/internal/navgraph"
	"github.com/vovakirdan/railsim/internal/network"
	"github.com/vovakirdan/railsim/internal/registry"
	"github.com/vovakirdan/railsim/internal/scenario"
	"github.com/vovakirdan/railsim/internal/sim"
)

var routeCmd = &cobra.Command{
	Use:   "route <scenario> <from> <to>",
	Short: "Plan a route between two points of a scenario",
	Long: `Build a scenario and print the shortest route between two points.

Points are the names used in the scenario (see 'railsim topology'), or
intersection ids such as I3. The algorithm follows the routing section of
the configuration.

Examples:
  railsim route diamond A F
  railsim route junction I1 I4`,
	Args: cobra.ExactArgs(3),
	Run:  runRoute,
}

func runRoute(_ *cobra.Command, args []string) {
	logger := newLogger("railsim")
	cfg, err := loadConfig(logger)
	if err != nil {
		fail("%v", err)
	}

	sc, w, err := buildScenario(args[0], sim.WithConfig(cfg), sim.WithLogger(logger))
	if err != nil {
		fail("%v", err)
	}
	defer w.Close()

	from, err := resolvePoint(sc, w.Network(), args[1])
	if err != nil {
		fail("%v", err)
	}
	to, err := resolvePoint(sc, w.Network(), args[2])
	if err != nil {
		fail("%v", err)
	}

	r, err := navgraph.FindRoute(w.Graph(), from, to, navgraph.WithAlgorithm(cfg.Algorithm()))
	if errors.Is(err, navgraph.ErrNoRoute) {
		fmt.Printf("No route from %s to %s in %s.\n", args[1], args[2], sc.Title())
		os.Exit(2)
	}
	if err != nil {
		fail("%v", err)
	}

	fmt.Printf("Route %s -> %s - %s (%s, network v%d)\n", args[1], args[2], sc.Title(), r.Algorithm, r.Version)
	fmt.Println()

	if r.Empty() {
		fmt.Println("Already there.")
		return
	}

	fmt.Printf("  %-3s  %-8s  %-9s  %-6s  %-6s  %8s  %8s\n", "#", "Segment", "Direction", "From", "To", "Length", "Total")
	fmt.Printf("  %-3s  %-8s  %-9s  %-6s  %-6s  %8s  %8s\n", "-", "-------", "---------", "----", "--", "------", "-----")
	for i, l := range r.Legs {
		fmt.Printf("  %-3d  %-8s  %-9s  %-6s  %-6s  %8.1f  %8.1f\n",
			i+1, l.Segment, l.Direction, l.From, l.To, l.Length, l.Cumulative)
	}
	fmt.Println()
	fmt.Printf("Distance: %.1f over %d segments (cost %.1f)\n", r.Distance, len(r.Legs), r.Cost)
}

// resolvePoint maps a scenario point name or an intersection id to an
// intersection of n.
func resolvePoint(sc registry.Scenario, n *network.Network, name string) (network.IntersectionID, error) {
	if s, ok := sc.(*scenario.Scenario); ok {
		if _, named := s.Points[name]; named {
			return s.Intersection(n, name)
		}
	}
	if rest, ok := strings.CutPrefix(name, "I"); ok {
		if v, err := strconv.ParseUint(rest, 10, 64); err == nil {
			id := network.IntersectionID(v)
			if _, ok := n.Intersection(id); ok {
				return id, nil
			}
			return 0, fmt.Errorf("no intersection %s", id)
		}
	}
	return 0, fmt.Errorf("unknown point %q", name)
}
