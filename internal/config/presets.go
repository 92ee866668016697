package config

import "math"

// RulesPreset represents a named strictness level for placement rules.
type RulesPreset string

const (
	PresetRelaxed  RulesPreset = "relaxed"
	PresetStandard RulesPreset = "standard"
	PresetStrict   RulesPreset = "strict"
)

// Limits at the two ends of the strictness scale. Standard sits halfway.
var (
	relaxedRail = RailConfig{MinCrossingAngle: 30, MinJunctionAngle: 10, MinCurveRadius: 2.5}
	strictRail  = RailConfig{MinCrossingAngle: 60, MinJunctionAngle: 20, MinCurveRadius: 7.5}
)

// LevelForPreset returns the strictness level (0.0 relaxed, 1.0 strict) of
// a preset.
func LevelForPreset(preset RulesPreset) float64 {
	switch preset {
	case PresetRelaxed:
		return 0.0
	case PresetStrict:
		return 1.0
	default:
		return 0.5
	}
}

// IsKnownPreset reports whether preset names a built-in level.
func IsKnownPreset(preset RulesPreset) bool {
	switch preset {
	case PresetRelaxed, PresetStandard, PresetStrict:
		return true
	}
	return false
}

// RailAtLevel interpolates the angular and radius limits for a strictness
// level. Other fields of base are kept.
func RailAtLevel(base RailConfig, level float64) RailConfig {
	level = clampF(level, 0.0, 1.0)
	base.MinCrossingAngle = lerp(relaxedRail.MinCrossingAngle, strictRail.MinCrossingAngle, level)
	base.MinJunctionAngle = lerp(relaxedRail.MinJunctionAngle, strictRail.MinJunctionAngle, level)
	base.MinCurveRadius = lerp(relaxedRail.MinCurveRadius, strictRail.MinCurveRadius, level)
	return base
}

// ApplyRulesPreset modifies the config based on a rules preset. An empty
// preset leaves the config unchanged.
func ApplyRulesPreset(cfg *Config, preset RulesPreset) {
	if preset == "" {
		return
	}
	cfg.Rail = RailAtLevel(cfg.Rail, LevelForPreset(preset))
	cfg.Rail.Preset = preset

	// Strict networks also demand longer pieces of track.
	switch preset {
	case PresetStrict:
		cfg.Rail.MinSegmentLength = math.Max(cfg.Rail.MinSegmentLength, 2)
	case PresetRelaxed:
		cfg.Rail.SnapTolerance = math.Max(cfg.Rail.SnapTolerance, 1)
	}
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

// clampF restricts a float64 to [min, max].
func clampF(val, min, max float64) float64 {
	return math.Max(min, math.Min(max, val))
}
