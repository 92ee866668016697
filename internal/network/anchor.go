package network

import (
	"fmt"

	"github.com/vovakirdan/railsim/internal/core"
)

// AnchorKind selects how a segment end is attached.
type AnchorKind uint8

const (
	// AnchorPoint attaches to a free point, snapping to an existing
	// intersection within the snap tolerance, or else splitting a segment
	// that passes within it.
	AnchorPoint AnchorKind = iota
	// AnchorIntersection attaches to an existing intersection.
	AnchorIntersection
	// AnchorSegment attaches to the point of an existing segment nearest to
	// Point, splitting that segment there.
	AnchorSegment
)

// Anchor describes where a new segment end attaches.
type Anchor struct {
	Kind         AnchorKind
	Intersection IntersectionID
	Segment      SegmentID
	Point        core.Vec2
}

// AtPoint anchors to a point.
func AtPoint(p core.Vec2) Anchor {
	return Anchor{Kind: AnchorPoint, Point: p}
}

// AtIntersection anchors to an existing intersection.
func AtIntersection(id IntersectionID) Anchor {
	return Anchor{Kind: AnchorIntersection, Intersection: id}
}

// OnSegment anchors to segment seg at the point nearest p.
func OnSegment(seg SegmentID, p core.Vec2) Anchor {
	return Anchor{Kind: AnchorSegment, Segment: seg, Point: p}
}

func (a Anchor) String() string {
	switch a.Kind {
	case AnchorIntersection:
		return a.Intersection.String()
	case AnchorSegment:
		return fmt.Sprintf("%s@%s", a.Segment, a.Point)
	}
	return a.Point.String()
}
