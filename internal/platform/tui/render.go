package tui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/railsim/internal/core"
	"github.com/vovakirdan/railsim/internal/network"
	"github.com/vovakirdan/railsim/internal/sim"
	"github.com/vovakirdan/railsim/internal/traffic"
)

// colorStyles maps core.Color to lipgloss styles.
var colorStyles = map[core.Color]lipgloss.Style{
	core.ColorDefault: lipgloss.NewStyle(),
	core.ColorRed:     lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	core.ColorGreen:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	core.ColorYellow:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	core.ColorBlue:    lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
	core.ColorMagenta: lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
	core.ColorCyan:    lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
	core.ColorWhite:   lipgloss.NewStyle().Foreground(lipgloss.Color("15")),
	core.ColorOrange:  lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	core.ColorGray:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
}

// RenderScreen converts a Screen buffer to a styled string for display.
// Groups adjacent cells with the same color to minimize ANSI escape sequences.
func RenderScreen(s *core.Screen) string {
	var sb strings.Builder
	// Pre-allocate with extra space for ANSI codes
	sb.Grow(s.Width()*s.Height()*2 + s.Height())

	for y := range s.Height() {
		if y > 0 {
			sb.WriteRune('\n')
		}

		x := 0
		for x < s.Width() {
			cell := s.GetCell(x, y)
			startColor := cell.Color

			var run strings.Builder
			for x < s.Width() {
				cell = s.GetCell(x, y)
				if cell.Color != startColor {
					break
				}
				run.WriteRune(cell.Rune)
				x++
			}

			style, ok := colorStyles[startColor]
			if !ok {
				style = colorStyles[core.ColorDefault]
			}
			sb.WriteString(style.Render(run.String()))
		}
	}
	return sb.String()
}

// maxSamples caps the samples taken along one segment.
const maxSamples = 512

// Plot draws a framed schematic of the network into s. Track is gray, blocks
// held by a train take that train's color, intersections are 'o' ('+' where
// three or more segments meet) and trains are '@'. The picture is scaled to
// fit inside the frame with terminal cells counted as twice as tall as they
// are wide.
func Plot(s *core.Screen, snap *network.Snapshot, trains []sim.TrainStatus, held []traffic.Reservation) {
	s.Clear()
	frame := core.NewRect(0, 0, s.Width(), s.Height())
	s.DrawBox(frame, core.ColorGray)
	inner := frame.Inset(1)

	if len(snap.Segments) == 0 {
		s.DrawTextCentered(s.Height()/2, "no track", core.ColorGray)
		return
	}
	proj, ok := newProjection(snap.Bounds(), s.Width(), s.Height())
	if !ok {
		return
	}

	colors := make(map[traffic.TrainID]core.Color, len(trains))
	for _, st := range trains {
		colors[st.ID] = st.Color
	}
	segColors := make(map[network.SegmentID]core.Color, len(held))
	for _, r := range held {
		if c, ok := colors[r.Train]; ok {
			segColors[r.Block.Segment] = c
		}
	}

	for _, seg := range snap.Segments {
		color, isHeld := segColors[seg.ID]
		if !isHeld {
			color = core.ColorGray
		}
		n := int(seg.Length()*proj.scale) + 2
		if n > maxSamples {
			n = maxSamples
		}
		samples := seg.Curve.UniformSamples(n)
		for i := 1; i < len(samples); i++ {
			x0, y0 := proj.cell(samples[i-1].Pos)
			x1, y1 := proj.cell(samples[i].Pos)
			s.DrawLine(x0, y0, x1, y1, trackRune(samples[i].Tangent), color, isHeld)
		}
	}

	for _, in := range snap.Intersections {
		r := 'o'
		if in.Degree() >= 3 {
			r = '+'
		}
		if x, y := proj.cell(in.Pos); inner.Contains(x, y) {
			s.SetColored(x, y, r, core.ColorWhite)
		}
	}

	for _, st := range trains {
		if x, y := proj.cell(st.Pos); inner.Contains(x, y) {
			s.SetColored(x, y, '@', st.Color)
		}
	}
}

// projection maps world coordinates to screen cells, y up.
type projection struct {
	min    core.Vec2
	scale  float64 // columns per world unit; rows get half
	bottom int
	left   int
}

func newProjection(b core.Bounds, width, height int) (projection, bool) {
	if b.Empty() || width < 3 || height < 3 {
		return projection{}, false
	}
	size := b.Size()
	cols, rows := float64(width-3), float64(height-3)

	scale := math.Inf(1)
	if size.X > 0 {
		scale = cols / size.X
	}
	if size.Y > 0 {
		scale = math.Min(scale, 2*rows/size.Y)
	}
	if math.IsInf(scale, 1) {
		scale = 1
	}

	usedW := int(math.Round(size.X * scale))
	usedH := int(math.Round(size.Y * scale / 2))
	return projection{
		min:    b.Min,
		scale:  scale,
		left:   1 + (width-3-usedW)/2,
		bottom: height - 2 - (height-3-usedH)/2,
	}, true
}

func (p projection) cell(v core.Vec2) (int, int) {
	x := p.left + int(math.Round((v.X-p.min.X)*p.scale))
	y := p.bottom - int(math.Round((v.Y-p.min.Y)*p.scale/2))
	return x, y
}

// trackRune picks the character closest to a world-space heading once
// squashed onto the screen.
func trackRune(heading core.Vec2) rune {
	deg := core.Degrees(math.Atan2(heading.Y/2, heading.X))
	if deg < 0 {
		deg += 180
	}
	switch {
	case deg < 22.5 || deg >= 157.5:
		return '-'
	case deg < 67.5:
		return '/'
	case deg < 112.5:
		return '|'
	default:
		return '\\'
	}
}
