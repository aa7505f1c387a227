package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"rockct3d/internal/models"
)

// Colormap maps a normalised intensity in [0,1] to a colour
type Colormap int

const (
	Gray Colormap = iota
	Viridis
)

// ParseColormap maps a configuration name to a Colormap
func ParseColormap(name string) (Colormap, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gray", "grey":
		return Gray, nil
	case "viridis":
		return Viridis, nil
	}
	return 0, fmt.Errorf("unknown colormap %q", name)
}

func (c Colormap) String() string {
	if c == Viridis {
		return "viridis"
	}
	return "gray"
}

// viridisStops samples the viridis map at nine evenly spaced points
var viridisStops = [][3]float64{
	{68, 1, 84},
	{71, 44, 122},
	{59, 81, 139},
	{44, 113, 142},
	{33, 144, 141},
	{39, 173, 129},
	{92, 200, 99},
	{170, 220, 50},
	{253, 231, 37},
}

// At returns the colour for t, clipped to [0,1]
func (c Colormap) At(t float64) color.RGBA {
	if math.IsNaN(t) {
		t = 0
	}
	t = math.Max(0, math.Min(1, t))

	if c == Viridis {
		pos := t * float64(len(viridisStops)-1)
		i := int(pos)
		if i >= len(viridisStops)-1 {
			i = len(viridisStops) - 2
		}
		frac := pos - float64(i)
		lo, hi := viridisStops[i], viridisStops[i+1]
		return color.RGBA{
			R: uint8(math.Round(lo[0] + frac*(hi[0]-lo[0]))),
			G: uint8(math.Round(lo[1] + frac*(hi[1]-lo[1]))),
			B: uint8(math.Round(lo[2] + frac*(hi[2]-lo[2]))),
			A: 255,
		}
	}

	g := uint8(math.Round(t * 255))
	return color.RGBA{R: g, G: g, B: g, A: 255}
}

// colorize renders a plane with values in [low,high] spread over the map.
// A zero range paints everything with the low end.
func colorize(s *models.Slice, low, high float64, cmap Colormap) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	span := high - low
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			t := 0.0
			if span > 0 {
				t = (s.At(x, y) - low) / span
			}
			img.SetRGBA(x, y, cmap.At(t))
		}
	}
	return img
}
