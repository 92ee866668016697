package scenario

import (
	"math"

	"github.com/vovakirdan/railsim/internal/network"
)

// Topology is a YAML view of a network snapshot, used for inspection.
type Topology struct {
	Version       uint64             `yaml:"version"`
	Intersections []IntersectionView `yaml:"intersections"`
	Segments      []SegmentView      `yaml:"segments"`
}

// IntersectionView lists the bindings on each side of an intersection.
type IntersectionView struct {
	ID     string   `yaml:"id"`
	At     Point    `yaml:"at"`
	Degree int      `yaml:"degree"`
	Right  []string `yaml:"right,omitempty"`
	Left   []string `yaml:"left,omitempty"`
}

// SegmentView is one segment with its Bézier control points.
type SegmentView struct {
	ID       string  `yaml:"id"`
	From     string  `yaml:"from"`
	To       string  `yaml:"to"`
	Length   float64 `yaml:"length"`
	Controls []Point `yaml:"controls"`
}

// Describe converts a snapshot for output. Coordinates are rounded to
// three decimals.
func Describe(snap *network.Snapshot) Topology {
	top := Topology{Version: snap.Version}
	for _, in := range snap.Intersections {
		v := IntersectionView{
			ID:     in.ID.String(),
			At:     Point{X: round(in.Pos.X), Y: round(in.Pos.Y)},
			Degree: in.Degree(),
		}
		for _, b := range in.Bindings {
			if b.Side == network.SideLeft {
				v.Left = append(v.Left, b.Binding.String())
			} else {
				v.Right = append(v.Right, b.Binding.String())
			}
		}
		top.Intersections = append(top.Intersections, v)
	}
	for _, seg := range snap.Segments {
		v := SegmentView{
			ID:     seg.ID.String(),
			From:   seg.Start.String(),
			To:     seg.End.String(),
			Length: round(seg.Length()),
		}
		for _, p := range seg.Curve.Controls() {
			v.Controls = append(v.Controls, Point{X: round(p.X), Y: round(p.Y)})
		}
		top.Segments = append(top.Segments, v)
	}
	return top
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}
