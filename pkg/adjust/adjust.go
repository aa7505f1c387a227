// Package adjust applies brightness/contrast transforms to single slices so
// that parameter combinations can be compared side by side.
package adjust

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
	"gonum.org/v1/gonum/stat"

	"rockct3d/internal/models"
)

// Normalize maps a slice linearly onto [0, 1]. A flat slice maps to zeros.
func Normalize(s *models.Slice) *models.Slice {
	out := models.NewSlice(s.Width, s.Height)
	min, max := s.Range()
	if max <= min {
		return out
	}
	scale := 1 / (max - min)
	for i, v := range s.Data {
		out.Data[i] = (v - min) * scale
	}
	return out
}

// Transform applies the brightness/contrast adjustment to a normalised slice
// and returns the clipped result in [0, 1]. The steps run in a fixed order:
// scale by contrast, recentre the post-contrast mean onto 0.5, scale by
// brightness, clip.
func Transform(s *models.Slice, brightness, contrast float64) *models.Slice {
	out := models.NewSlice(s.Width, s.Height)
	if len(s.Data) == 0 {
		return out
	}

	for i, v := range s.Data {
		out.Data[i] = v * contrast
	}

	shift := 0.5 - stat.Mean(out.Data, nil)
	for i, v := range out.Data {
		v = (v + shift) * brightness
		out.Data[i] = math.Max(0, math.Min(1, v))
	}
	return out
}

// ToGray8 rescales a [0, 1] slice to 8 bits, rounding half to even
func ToGray8(s *models.Slice) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, s.Width, s.Height))
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			v := math.RoundToEven(math.Max(0, math.Min(1, s.At(x, y))) * 255)
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	return img
}

// Adjust applies Transform to a normalised slice and returns the 8-bit image
func Adjust(s *models.Slice, brightness, contrast float64) *image.Gray {
	return ToGray8(Transform(s, brightness, contrast))
}

// Cell is one entry of an adjustment grid
type Cell struct {
	Brightness float64
	Contrast   float64
	Image      *image.Gray
}

// Grid adjusts the slice for every brightness/contrast pair. Rows follow
// brightness and columns follow contrast. The slice is normalised first.
func Grid(s *models.Slice, brightness, contrast []float64) [][]Cell {
	norm := Normalize(s)
	grid := make([][]Cell, len(brightness))
	for r, b := range brightness {
		grid[r] = make([]Cell, len(contrast))
		for c, k := range contrast {
			grid[r][c] = Cell{
				Brightness: b,
				Contrast:   k,
				Image:      Adjust(norm, b, k),
			}
		}
	}
	return grid
}

const labelHeight = 16

// Compose tiles the grid into one labelled image
func Compose(grid [][]Cell) (image.Image, error) {
	if len(grid) == 0 || len(grid[0]) == 0 {
		return nil, fmt.Errorf("empty adjustment grid")
	}

	bounds := grid[0][0].Image.Bounds()
	tileW, tileH := bounds.Dx(), bounds.Dy()+labelHeight
	canvas := imaging.New(tileW*len(grid[0]), tileH*len(grid), color.Black)

	for r, row := range grid {
		for c, cell := range row {
			canvas = imaging.Paste(canvas, cell.Image, image.Pt(c*tileW, r*tileH+labelHeight))
		}
	}

	dc := gg.NewContextForImage(canvas)
	dc.SetFontFace(basicfont.Face7x13)
	dc.SetRGB(1, 1, 1)
	for r, row := range grid {
		for c, cell := range row {
			label := fmt.Sprintf("b=%.2f c=%.2f", cell.Brightness, cell.Contrast)
			dc.DrawString(label, float64(c*tileW+2), float64(r*tileH+12))
		}
	}
	return dc.Image(), nil
}

// SaveGrid composes the grid and writes it as a PNG
func SaveGrid(grid [][]Cell, path string) error {
	img, err := Compose(grid)
	if err != nil {
		return err
	}
	return imaging.Save(img, path)
}
