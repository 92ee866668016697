package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/railsim/internal/scenario"
	"github.com/vovakirdan/railsim/internal/sim"
)

var topologyCmd = &cobra.Command{
	Use:   "topology <scenario>",
	Short: "Print the network a scenario builds",
	Long: `Build a scenario and print the resulting network as YAML: every
intersection with the segment ends bound on each side, every segment with
its control points, and the intersection each named point resolved to.

Examples:
  railsim topology diamond
  railsim topology ./my-network.yaml > network.yaml`,
	Args: cobra.ExactArgs(1),
	Run:  runTopology,
}

type topologyDoc struct {
	Scenario          string            `yaml:"scenario"`
	Points            map[string]string `yaml:"points,omitempty"`
	scenario.Topology `yaml:",inline"`
}

func runTopology(_ *cobra.Command, args []string) {
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

	doc := topologyDoc{
		Scenario: sc.ID(),
		Topology: scenario.Describe(w.Network().Snapshot()),
	}
	if s, ok := sc.(*scenario.Scenario); ok {
		doc.Points = make(map[string]string)
		for _, name := range s.PointNames() {
			if id, err := s.Intersection(w.Network(), name); err == nil {
				doc.Points[name] = id.String()
			}
		}
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		fail("%v", err)
	}
	if err := enc.Close(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
