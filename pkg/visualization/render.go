package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/f64"

	"rockct3d/internal/models"
)

// Faces holds the six boundary planes of a volume and their shared range.
// Front/Back are width x height, Top/Bottom width x depth and Left/Right
// depth x height.
type Faces struct {
	Front, Back *models.Slice // z = 0, z = D-1
	Top, Bottom *models.Slice // y = 0, y = H-1
	Left, Right *models.Slice // x = 0, x = W-1

	Width, Height, Depth int
	Min, Max             float64
}

// BoundaryFaces cuts the six outer planes of v. Interior voxels never appear
// in a boundary render.
func BoundaryFaces(v *models.Volume) (*Faces, error) {
	if v.Len() == 0 {
		return nil, fmt.Errorf("cannot render an empty volume")
	}
	f := &Faces{Width: v.Width, Height: v.Height, Depth: v.Depth}
	f.Min, f.Max, _ = v.Stats()

	cuts := []struct {
		dst  **models.Slice
		axis models.Axis
		pos  int
	}{
		{&f.Front, models.AxisZ, 0},
		{&f.Back, models.AxisZ, v.Depth - 1},
		{&f.Top, models.AxisY, 0},
		{&f.Bottom, models.AxisY, v.Height - 1},
		{&f.Left, models.AxisX, 0},
		{&f.Right, models.AxisX, v.Width - 1},
	}
	for _, c := range cuts {
		plane, err := v.Plane(c.axis, c.pos)
		if err != nil {
			return nil, err
		}
		*c.dst = plane
	}
	return f, nil
}

// MaskFaces cuts the boundary planes of a binary volume as 0/1 values
func MaskFaces(m *models.Mask) (*Faces, error) {
	return BoundaryFaces(m.ToVolume(1))
}

// RenderOptions controls the projected render
type RenderOptions struct {
	// Scale is the number of output pixels per voxel
	Scale float64
	// Angle of the receding depth axis, in degrees within (0, 90)
	Angle float64
	// Depth foreshortens the receding axis
	Depth float64
	// Colormap shared by all faces
	Colormap Colormap
}

// DefaultRenderOptions returns a cabinet-style projection at twice the voxel size
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{Scale: 2, Angle: 35, Depth: 0.6, Colormap: Gray}
}

func (o RenderOptions) validate() error {
	if !(o.Scale > 0) {
		return fmt.Errorf("render scale must be positive, got %g", o.Scale)
	}
	if !(o.Angle > 0 && o.Angle < 90) {
		return fmt.Errorf("render angle must lie in (0, 90), got %g", o.Angle)
	}
	if !(o.Depth > 0) {
		return fmt.Errorf("render depth must be positive, got %g", o.Depth)
	}
	return nil
}

// RenderOblique draws the box in an oblique projection: x to the right, y down
// and depth receding up and to the right. Hidden faces are painted first so
// the front, top and right faces end up on top.
func RenderOblique(f *Faces, opts RenderOptions) (image.Image, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	s := opts.Scale
	rad := opts.Angle * math.Pi / 180
	cx := opts.Depth * s * math.Cos(rad)  // screen x per depth step
	cy := -opts.Depth * s * math.Sin(rad) // screen y per depth step

	w, h, d := float64(f.Width), float64(f.Height), float64(f.Depth)
	ox := float64(margin + 16)
	oy := float64(margin+titleHeight) - cy*d

	boxW := int(math.Ceil(w*s + cx*d))
	boxH := int(math.Ceil(h*s - cy*d))
	width := int(ox) + boxW + margin + colorbarWidth + colorbarLabel
	height := int(oy+h*s) + margin + 16

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	paint := func(sl *models.Slice) image.Image { return colorize(sl, f.Min, f.Max, opts.Colormap) }

	// Each face maps plane pixel (u, v) to the canvas through its own affine
	faces := []struct {
		img image.Image
		m   f64.Aff3
	}{
		{paint(f.Back), f64.Aff3{s, 0, ox + cx*d, 0, s, oy + cy*d}},
		{paint(f.Bottom), f64.Aff3{s, cx, ox, 0, cy, oy + h*s}},
		{paint(f.Left), f64.Aff3{cx, 0, ox, cy, s, oy}},
		{paint(f.Right), f64.Aff3{cx, 0, ox + w*s, cy, s, oy}},
		{paint(f.Top), f64.Aff3{s, cx, ox, 0, cy, oy}},
		{paint(f.Front), f64.Aff3{s, 0, ox, 0, s, oy}},
	}
	for _, face := range faces {
		draw.BiLinear.Transform(canvas, face.m, face.img, face.img.Bounds(), draw.Over, nil)
	}

	dc := gg.NewContextForRGBA(canvas)
	dc.SetFontFace(basicfont.Face7x13)
	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(fmt.Sprintf("x (%d)", f.Width), ox+w*s/2, oy+h*s+4, 0.5, 1)
	dc.DrawStringAnchored("y", ox-4, oy+h*s/2, 1, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("z (%d)", f.Depth), ox+w*s+cx*d/2+4, oy+cy*d/2, 0, 1)

	drawColorbar(dc, opts.Colormap, int(ox)+boxW+margin, int(oy+cy*d), boxH, f.Min, f.Max)
	return dc.Image(), nil
}

// RenderNet draws the six faces unfolded around the front face so every
// face is visible in one static image:
//
//	      top
//	left front right back
//	      bottom
func RenderNet(f *Faces, opts RenderOptions) (image.Image, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	k := max(1, int(math.Round(opts.Scale)))

	tile := func(sl *models.Slice) *image.NRGBA {
		return imaging.Resize(colorize(sl, f.Min, f.Max, opts.Colormap), sl.Width*k, sl.Height*k, imaging.NearestNeighbor)
	}

	// Flips keep shared cube edges adjacent in the unfolded layout
	front := tile(f.Front)
	top := imaging.FlipV(tile(f.Top))
	bottom := tile(f.Bottom)
	left := imaging.FlipH(tile(f.Left))
	right := tile(f.Right)
	back := imaging.FlipH(tile(f.Back))

	W, H, D := f.Width*k, f.Height*k, f.Depth*k
	x0 := margin
	y0 := margin + titleHeight
	netW := 2*D + 2*W
	netH := 2*D + H

	width := x0 + netW + 2*margin + colorbarWidth + colorbarLabel
	height := y0 + netH + margin

	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	placed := []struct {
		img   image.Image
		x, y  int
		label string
	}{
		{top, x0 + D, y0, "top"},
		{left, x0, y0 + D, "left"},
		{front, x0 + D, y0 + D, "front"},
		{right, x0 + D + W, y0 + D, "right"},
		{back, x0 + 2*D + W, y0 + D, "back"},
		{bottom, x0 + D, y0 + D + H, "bottom"},
	}

	dc.SetFontFace(basicfont.Face7x13)
	for _, p := range placed {
		dc.DrawImage(p.img, p.x, p.y)
		b := p.img.Bounds()
		dc.SetRGB(0.8, 0.1, 0.1)
		dc.DrawRectangle(float64(p.x), float64(p.y), float64(b.Dx()), float64(b.Dy()))
		dc.SetLineWidth(1)
		dc.Stroke()
	}
	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(fmt.Sprintf("boundary faces %dx%dx%d (W x H x D)", f.Width, f.Height, f.Depth),
		float64(x0), float64(margin+titleHeight/2), 0, 0.5)
	for _, p := range placed {
		dc.DrawStringAnchored(p.label, float64(p.x+2), float64(p.y+2), 0, 1)
	}

	drawColorbar(dc, opts.Colormap, x0+netW+margin, y0+D, H, f.Min, f.Max)
	return dc.Image(), nil
}

// SaveImage writes img to path; the format follows the file extension
func SaveImage(path string, img image.Image) error {
	return imaging.Save(img, path)
}
