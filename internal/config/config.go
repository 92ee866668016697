// Package config provides YAML-based configuration loading and rule
// presets for the simulator.
package config

import (
	"errors"
	"fmt"

	"github.com/vovakirdan/railsim/internal/navgraph"
	"github.com/vovakirdan/railsim/internal/network"
)

// Config contains all configuration for a simulation run.
type Config struct {
	Rail    RailConfig    `yaml:"rail"`
	Routing RoutingConfig `yaml:"routing"`
	Traffic TrafficConfig `yaml:"traffic"`
	Sim     SimConfig     `yaml:"sim"`
	Trace   TraceConfig   `yaml:"trace"`
}

// RailConfig defines the geometric limits placements must satisfy.
type RailConfig struct {
	Preset           RulesPreset `yaml:"preset"`             // informational once applied
	MinCrossingAngle float64     `yaml:"min_crossing_angle"` // degrees
	MinJunctionAngle float64     `yaml:"min_junction_angle"` // degrees
	MinSegmentLength float64     `yaml:"min_segment_length"`
	MinCurveRadius   float64     `yaml:"min_curve_radius"` // 0 disables the check
	SnapTolerance    float64     `yaml:"snap_tolerance"`
	SampleSpacing    float64     `yaml:"sample_spacing"`
}

// RoutingConfig defines how routes are planned.
type RoutingConfig struct {
	Algorithm      string  `yaml:"algorithm"`       // "dijkstra" or "astar"
	AsyncThreshold int     `yaml:"async_threshold"` // segment count at which planning moves off the tick; 0 disables
	AutoReroute    bool    `yaml:"auto_reroute"`    // replan trains whose route went stale
	TrafficPenalty float64 `yaml:"traffic_penalty"` // extra cost of a segment another train holds; 0 ignores traffic
}

// TrafficConfig defines reservation behaviour.
type TrafficConfig struct {
	HoldWarnTicks int `yaml:"hold_warn_ticks"` // ticks a train may hold before a warning; 0 disables
}

// SimConfig defines the fixed-timestep loop.
type SimConfig struct {
	TickRate     int     `yaml:"tick_rate"`     // ticks per second
	DefaultSpeed float64 `yaml:"default_speed"` // world units per second for trains without one
	MaxTicks     int     `yaml:"max_ticks"`     // 0 runs until stopped
}

// TraceConfig defines tracing output.
type TraceConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Exporter    string `yaml:"exporter"` // "stdout" or "none"
	ServiceName string `yaml:"service_name"`
}

// NetworkRules converts the rail section into validator limits.
func (c Config) NetworkRules() network.Rules {
	return network.Rules{
		MinCrossingAngle: c.Rail.MinCrossingAngle,
		MinJunctionAngle: c.Rail.MinJunctionAngle,
		MinSegmentLength: c.Rail.MinSegmentLength,
		MinCurveRadius:   c.Rail.MinCurveRadius,
		SnapTolerance:    c.Rail.SnapTolerance,
		SampleSpacing:    c.Rail.SampleSpacing,
	}
}

// Algorithm returns the configured search algorithm.
func (c Config) Algorithm() navgraph.Algorithm {
	a, err := navgraph.ParseAlgorithm(c.Routing.Algorithm)
	if err != nil {
		return navgraph.Dijkstra
	}
	return a
}

// Validate rejects values no run can work with.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	r := c.Rail
	check(r.MinCrossingAngle >= 0 && r.MinCrossingAngle <= 90, "rail.min_crossing_angle %v must be within [0, 90]", r.MinCrossingAngle)
	check(r.MinJunctionAngle >= 0 && r.MinJunctionAngle <= 90, "rail.min_junction_angle %v must be within [0, 90]", r.MinJunctionAngle)
	check(r.MinSegmentLength > 0, "rail.min_segment_length %v must be positive", r.MinSegmentLength)
	check(r.MinCurveRadius >= 0, "rail.min_curve_radius %v must not be negative", r.MinCurveRadius)
	check(r.SnapTolerance > 0, "rail.snap_tolerance %v must be positive", r.SnapTolerance)
	check(r.SampleSpacing > 0, "rail.sample_spacing %v must be positive", r.SampleSpacing)
	if r.Preset != "" {
		check(IsKnownPreset(r.Preset), "rail.preset %q is unknown", r.Preset)
	}

	_, err := navgraph.ParseAlgorithm(c.Routing.Algorithm)
	check(err == nil, "routing.algorithm %q is unknown", c.Routing.Algorithm)
	check(c.Routing.AsyncThreshold >= 0, "routing.async_threshold %d must not be negative", c.Routing.AsyncThreshold)
	check(c.Routing.TrafficPenalty >= 0, "routing.traffic_penalty %v must not be negative", c.Routing.TrafficPenalty)
	check(c.Traffic.HoldWarnTicks >= 0, "traffic.hold_warn_ticks %d must not be negative", c.Traffic.HoldWarnTicks)

	check(c.Sim.TickRate > 0 && c.Sim.TickRate <= 1000, "sim.tick_rate %d must be within [1, 1000]", c.Sim.TickRate)
	check(c.Sim.DefaultSpeed > 0, "sim.default_speed %v must be positive", c.Sim.DefaultSpeed)
	check(c.Sim.MaxTicks >= 0, "sim.max_ticks %d must not be negative", c.Sim.MaxTicks)

	switch c.Trace.Exporter {
	case "", "none", "stdout":
	default:
		check(false, "trace.exporter %q must be stdout or none", c.Trace.Exporter)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
