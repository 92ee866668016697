package network

// Rules are the geometric limits enforced by the validator.
type Rules struct {
	MinCrossingAngle float64 // degrees; crossings away from a shared intersection
	MinJunctionAngle float64 // degrees; between segments leaving one intersection
	MinSegmentLength float64 // world units
	MinCurveRadius   float64 // world units; 0 disables the check
	SnapTolerance    float64 // world units; anchor snapping
	SampleSpacing    float64 // world units; polyline resolution for checks
}

// DefaultRules returns the standard limits.
func DefaultRules() Rules {
	return Rules{
		MinCrossingAngle: 45,
		MinJunctionAngle: 15,
		MinSegmentLength: 1,
		MinCurveRadius:   5,
		SnapTolerance:    0.5,
		SampleSpacing:    1,
	}
}

func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if r.SnapTolerance <= 0 {
		r.SnapTolerance = d.SnapTolerance
	}
	if r.SampleSpacing <= 0 {
		r.SampleSpacing = d.SampleSpacing
	}
	if r.MinSegmentLength <= 0 {
		r.MinSegmentLength = d.MinSegmentLength
	}
	return r
}

// junctionClearance is the radius around a shared intersection inside which
// polyline contacts are part of the junction rather than a crossing.
func (r Rules) junctionClearance() float64 {
	c := r.SnapTolerance
	if r.SampleSpacing > c {
		c = r.SampleSpacing
	}
	return c
}
