package config

import (
	_ "embed"
)

//go:embed defaults/railsim.yaml
var defaultYAML []byte

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Rail: RailConfig{
			Preset:           PresetStandard,
			MinCrossingAngle: 45,
			MinJunctionAngle: 15,
			MinSegmentLength: 1,
			MinCurveRadius:   5,
			SnapTolerance:    0.5,
			SampleSpacing:    1,
		},
		Routing: RoutingConfig{
			Algorithm:      "dijkstra",
			AsyncThreshold: 512,
			AutoReroute:    true,
			TrafficPenalty: 50,
		},
		Traffic: TrafficConfig{
			HoldWarnTicks: 300,
		},
		Sim: SimConfig{
			TickRate:     30,
			DefaultSpeed: 10,
			MaxTicks:     0,
		},
		Trace: TraceConfig{
			Enabled:     false,
			Exporter:    "none",
			ServiceName: "railsim",
		},
	}
}
