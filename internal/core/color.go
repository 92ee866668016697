package core

// Color represents a foreground color for a screen cell.
// Uses ANSI 256-color codes for terminal compatibility.
type Color uint8

// Palette used by the network map.
const (
	ColorDefault Color = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
	ColorOrange
	ColorGray
)

// trainPalette cycles through distinguishable colors for trains.
var trainPalette = []Color{
	ColorCyan,
	ColorMagenta,
	ColorGreen,
	ColorOrange,
	ColorBlue,
	ColorYellow,
}

// TrainColor returns a stable color for the i-th train.
func TrainColor(i int) Color {
	if i < 0 {
		i = -i
	}
	return trainPalette[i%len(trainPalette)]
}
