// Package visualization draws slices, panels, boundary-face renders and
// charts of rock volumes.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"rockct3d/internal/models"
)

// Viewer extracts and saves 2D views of a volume. Values are mapped to the
// display range [low, high], which defaults to the volume's own range.
type Viewer struct {
	// volume holds the voxel data
	volume *models.Volume

	// display range
	low  float64
	high float64
}

// NewViewer creates a viewer over v
func NewViewer(v *models.Volume) *Viewer {
	low, high, _ := v.Stats()
	return &Viewer{volume: v, low: low, high: high}
}

// SetDisplayRange sets the values drawn as black and white
func (v *Viewer) SetDisplayRange(low, high float64) error {
	if !(high > low) {
		return fmt.Errorf("display range [%g, %g] is empty", low, high)
	}
	v.low, v.high = low, high
	return nil
}

// DisplayRange returns the values drawn as black and white
func (v *Viewer) DisplayRange() (low, high float64) {
	return v.low, v.high
}

func parseAxis(axis string) (models.Axis, error) {
	switch axis {
	case "x", "X":
		return models.AxisX, nil
	case "y", "Y":
		return models.AxisY, nil
	case "z", "Z":
		return models.AxisZ, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// ExtractSlice extracts a 2D slice along the given axis. An x slice is
// depth x height, a y slice width x depth and a z slice width x height.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	a, err := parseAxis(axis)
	if err != nil {
		return nil, err
	}
	plane, err := v.volume.Plane(a, position)
	if err != nil {
		return nil, err
	}

	img := image.NewGray16(image.Rect(0, 0, plane.Width, plane.Height))
	span := v.high - v.low
	for y := 0; y < plane.Height; y++ {
		for x := 0; x < plane.Width; x++ {
			t := 0.0
			if span > 0 {
				t = (plane.At(x, y) - v.low) / span
			}
			value := uint16(math.Round(math.Max(0, math.Min(1, t)) * 65535))
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	return img, nil
}

// SaveSlice saves an extracted slice; the format follows the file extension
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	return imaging.Save(img, filename)
}

// SaveSliceSequence extracts and saves every slice along the axis as PNG
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	a, err := parseAxis(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch a {
	case models.AxisX:
		maxPos = v.volume.Width
	case models.AxisY:
		maxPos = v.volume.Height
	case models.AxisZ:
		maxPos = v.volume.Depth
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", a, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}
	return nil
}
