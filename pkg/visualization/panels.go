package visualization

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"rockct3d/internal/models"
)

const (
	panelSize     = 192 // longest panel side in pixels, before rounding
	titleHeight   = 20
	margin        = 10
	colorbarWidth = 12
	colorbarLabel = 56
)

// Panel is one titled plane of a multi-panel figure
type Panel struct {
	Title string
	Plane *models.Slice
}

// OrthogonalSlices returns the central XY, XZ and YZ planes of v
func OrthogonalSlices(v *models.Volume) ([]Panel, error) {
	cuts := []struct {
		axis  models.Axis
		pos   int
		title string
	}{
		{models.AxisZ, v.Depth / 2, "XY (z=%d)"},
		{models.AxisY, v.Height / 2, "XZ (y=%d)"},
		{models.AxisX, v.Width / 2, "YZ (x=%d)"},
	}

	panels := make([]Panel, 0, len(cuts))
	for _, c := range cuts {
		plane, err := v.Plane(c.axis, c.pos)
		if err != nil {
			return nil, err
		}
		panels = append(panels, Panel{Title: fmt.Sprintf(c.title, c.pos), Plane: plane})
	}
	return panels, nil
}

// panelScale picks the integer upscale factor that brings the longest side
// near panelSize
func panelScale(s *models.Slice) int {
	longest := max(s.Width, s.Height)
	if longest == 0 {
		return 1
	}
	return max(1, panelSize/longest)
}

// RenderPanels lays the panels out in one row. Every panel is scaled over its
// own value range and gets a colorbar with its min and max.
func RenderPanels(panels []Panel, cmap Colormap) (image.Image, error) {
	if len(panels) == 0 {
		return nil, fmt.Errorf("no panels to draw")
	}

	type tile struct {
		img       image.Image
		low, high float64
		title     string
	}
	tiles := make([]tile, len(panels))
	width, height := margin, 0
	for i, p := range panels {
		if p.Plane == nil || p.Plane.Width == 0 || p.Plane.Height == 0 {
			return nil, fmt.Errorf("panel %q is empty", p.Title)
		}
		low, high := p.Plane.Range()
		k := panelScale(p.Plane)
		img := imaging.Resize(colorize(p.Plane, low, high, cmap), p.Plane.Width*k, p.Plane.Height*k, imaging.NearestNeighbor)
		tiles[i] = tile{img: img, low: low, high: high, title: p.Title}

		b := img.Bounds()
		width += b.Dx() + colorbarWidth + colorbarLabel + margin
		height = max(height, b.Dy())
	}
	height += titleHeight + 2*margin

	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)

	x := margin
	top := margin + titleHeight
	for _, t := range tiles {
		b := t.img.Bounds()
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(t.title, float64(x+b.Dx()/2), float64(margin+titleHeight/2), 0.5, 0.5)
		dc.DrawImage(t.img, x, top)

		drawColorbar(dc, cmap, x+b.Dx()+4, top, b.Dy(), t.low, t.high)
		x += b.Dx() + colorbarWidth + colorbarLabel + margin
	}

	return dc.Image(), nil
}

// drawColorbar paints a vertical bar from high (top) to low (bottom) with
// the two end values written beside it
func drawColorbar(dc *gg.Context, cmap Colormap, x, y, h int, low, high float64) {
	for i := 0; i < h; i++ {
		t := 1.0
		if h > 1 {
			t = 1 - float64(i)/float64(h-1)
		}
		dc.SetColor(cmap.At(t))
		dc.DrawRectangle(float64(x), float64(y+i), colorbarWidth, 1)
		dc.Fill()
	}

	dc.SetRGB(0, 0, 0)
	dc.DrawRectangle(float64(x), float64(y), colorbarWidth, float64(h))
	dc.SetLineWidth(1)
	dc.Stroke()

	lx := float64(x + colorbarWidth + 3)
	dc.DrawStringAnchored(fmt.Sprintf("%.4g", high), lx, float64(y), 0, 1)
	dc.DrawStringAnchored(fmt.Sprintf("%.4g", low), lx, float64(y+h), 0, 0)
}

// SavePanels renders the panels and writes them to path as PNG
func SavePanels(path string, panels []Panel, cmap Colormap) error {
	img, err := RenderPanels(panels, cmap)
	if err != nil {
		return err
	}
	return imaging.Save(img, path)
}
