package visualization

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rockct3d/internal/models"
	"rockct3d/pkg/metrics"
)

// createDepthRamp gives every voxel its z index as value
func createDepthRamp(width, height, depth int) *models.Volume {
	v := models.NewVolume(width, height, depth)
	for i := range v.Data {
		v.Data[i] = float64(i / (width * height))
	}
	return v
}

func rgbaAt(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func TestColormap(t *testing.T) {
	if c := Gray.At(0); c != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("Gray.At(0) = %v", c)
	}
	if c := Gray.At(1.5); c != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("Gray.At(1.5) should clip to white, got %v", c)
	}
	if c := Viridis.At(0); c != (color.RGBA{68, 1, 84, 255}) {
		t.Errorf("Viridis.At(0) = %v", c)
	}
	if c := Viridis.At(1); c != (color.RGBA{253, 231, 37, 255}) {
		t.Errorf("Viridis.At(1) = %v", c)
	}
	if c := Viridis.At(math.NaN()); c != Viridis.At(0) {
		t.Errorf("NaN should map to the low end, got %v", c)
	}

	if cm, err := ParseColormap("Viridis"); err != nil || cm != Viridis {
		t.Errorf("ParseColormap(Viridis) = %v, %v", cm, err)
	}
	if _, err := ParseColormap("jet"); err == nil {
		t.Error("Expected error for unknown colormap")
	}
}

func TestOrthogonalSlices(t *testing.T) {
	v := createDepthRamp(10, 8, 6)
	panels, err := OrthogonalSlices(v)
	if err != nil {
		t.Fatal(err)
	}
	if len(panels) != 3 {
		t.Fatalf("Expected 3 panels, got %d", len(panels))
	}

	dims := [][2]int{{10, 8}, {10, 6}, {6, 8}}
	titles := []string{"XY (z=3)", "XZ (y=4)", "YZ (x=5)"}
	for i, p := range panels {
		if p.Plane.Width != dims[i][0] || p.Plane.Height != dims[i][1] {
			t.Errorf("Panel %d: expected %v, got %dx%d", i, dims[i], p.Plane.Width, p.Plane.Height)
		}
		if p.Title != titles[i] {
			t.Errorf("Panel %d: expected title %q, got %q", i, titles[i], p.Title)
		}
	}

	// the XY cut at z=3 is flat
	low, high := panels[0].Plane.Range()
	if low != 3 || high != 3 {
		t.Errorf("Expected flat XY plane at 3, got [%f,%f]", low, high)
	}
}

func TestSavePanels(t *testing.T) {
	panels, err := OrthogonalSlices(createDepthRamp(12, 12, 12))
	if err != nil {
		t.Fatal(err)
	}

	img, err := RenderPanels(panels, Viridis)
	if err != nil {
		t.Fatal(err)
	}
	// 12 voxels scale by 16 to 192 pixels per panel
	b := img.Bounds()
	if b.Dy() != 192+titleHeight+2*margin {
		t.Errorf("Unexpected figure height %d", b.Dy())
	}
	if b.Dx() != margin+3*(192+colorbarWidth+colorbarLabel+margin) {
		t.Errorf("Unexpected figure width %d", b.Dx())
	}

	path := filepath.Join(t.TempDir(), "orthogonal_slices.png")
	if err := SavePanels(path, panels, Gray); err != nil {
		t.Fatalf("SavePanels failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Figure not written: %v", err)
	}

	if _, err := RenderPanels(nil, Gray); err == nil {
		t.Error("Expected error for no panels")
	}
}

func TestBoundaryFaces(t *testing.T) {
	v := createDepthRamp(6, 5, 4)
	f, err := BoundaryFaces(v)
	if err != nil {
		t.Fatal(err)
	}

	if f.Min != 0 || f.Max != 3 {
		t.Errorf("Expected shared range [0,3], got [%f,%f]", f.Min, f.Max)
	}
	if f.Front.At(2, 2) != 0 || f.Back.At(2, 2) != 3 {
		t.Error("Front and back faces should hold z=0 and z=D-1")
	}
	if f.Top.Width != 6 || f.Top.Height != 4 {
		t.Errorf("Top face should be width x depth, got %dx%d", f.Top.Width, f.Top.Height)
	}
	if f.Right.Width != 4 || f.Right.Height != 5 {
		t.Errorf("Right face should be depth x height, got %dx%d", f.Right.Width, f.Right.Height)
	}
	if f.Top.At(0, 3) != 3 {
		t.Errorf("Top face row z=3 should hold 3, got %f", f.Top.At(0, 3))
	}

	m := models.NewMask(3, 3, 3)
	m.Set(1, 1, 1, true)
	mf, err := MaskFaces(m)
	if err != nil {
		t.Fatal(err)
	}
	if mf.Max != 1 {
		t.Errorf("Interior voxel should still set the shared range max, got %f", mf.Max)
	}
	if mf.Front.At(1, 1) != 0 {
		t.Error("Interior voxel must not show on the boundary")
	}
}

func TestRenderOblique(t *testing.T) {
	v := createDepthRamp(20, 16, 10)
	f, err := BoundaryFaces(v)
	if err != nil {
		t.Fatal(err)
	}
	opts := DefaultRenderOptions()

	img, err := RenderOblique(f, opts)
	if err != nil {
		t.Fatalf("RenderOblique failed: %v", err)
	}

	b := img.Bounds()
	if b.Dx() <= 20*2 || b.Dy() <= 16*2 {
		t.Errorf("Render %v smaller than the front face", b)
	}

	// the front face is z=0, the darkest value, and is painted last
	rad := opts.Angle * math.Pi / 180
	oy := float64(margin+titleHeight) + opts.Depth*opts.Scale*math.Sin(rad)*10
	cx, cy := margin+16+20, int(oy)+16
	if c := rgbaAt(img, cx, cy); c.R > 10 {
		t.Errorf("Expected dark front face at (%d,%d), got %v", cx, cy, c)
	}

	if _, err := RenderOblique(f, RenderOptions{Scale: 2, Angle: 90, Depth: 0.5}); err == nil {
		t.Error("Expected error for angle 90")
	}
	if _, err := RenderOblique(f, RenderOptions{Scale: 0, Angle: 30, Depth: 0.5}); err == nil {
		t.Error("Expected error for zero scale")
	}
}

func TestRenderNet(t *testing.T) {
	w, h, d := 8, 6, 4
	f, err := BoundaryFaces(createDepthRamp(w, h, d))
	if err != nil {
		t.Fatal(err)
	}

	img, err := RenderNet(f, RenderOptions{Scale: 2, Angle: 30, Depth: 0.5, Colormap: Gray})
	if err != nil {
		t.Fatalf("RenderNet failed: %v", err)
	}

	k := 2
	W, H, D := w*k, h*k, d*k
	b := img.Bounds()
	if b.Dx() != margin+2*D+2*W+2*margin+colorbarWidth+colorbarLabel || b.Dy() != margin+titleHeight+2*D+H+margin {
		t.Errorf("Unexpected net size %v", b)
	}

	y := margin + titleHeight + D + H/2
	front := rgbaAt(img, margin+D+W/2, y)
	back := rgbaAt(img, margin+2*D+W+W/2, y)
	if front.R != 0 {
		t.Errorf("Front face centre should be black, got %v", front)
	}
	if back.R != 255 {
		t.Errorf("Back face centre should be white, got %v", back)
	}
}

func TestMetricsChart(t *testing.T) {
	records := []metrics.Record{
		{Filter: "gaussian", SNR: 18.5},
		{Filter: "median", SNR: 21.0},
		{Filter: "identity", SNR: math.Inf(1)},
	}

	var buf bytes.Buffer
	if err := MetricsChart(records, &buf); err != nil {
		t.Fatalf("MetricsChart failed: %v", err)
	}
	if _, err := png.Decode(&buf); err != nil {
		t.Errorf("Chart is not a PNG: %v", err)
	}

	if err := MetricsChart(nil, &buf); err == nil {
		t.Error("Expected error for no records")
	}
}

func TestHistogramChart(t *testing.T) {
	data := make([]float64, 0, 200)
	for i := 0; i < 100; i++ {
		data = append(data, 50+float64(i%7), 200-float64(i%5))
	}
	markers := []Marker{{Name: "otsu", Value: 120}, {Name: "local", Value: math.NaN()}}

	var buf bytes.Buffer
	if err := HistogramChart(data, 64, markers, &buf); err != nil {
		t.Fatalf("HistogramChart failed: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("Chart is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 800 {
		t.Errorf("Expected 800 px wide chart, got %d", img.Bounds().Dx())
	}

	buf.Reset()
	if err := HistogramChart([]float64{7, 7, 7}, 256, markers, &buf); err != nil {
		t.Errorf("Flat histogram should still chart: %v", err)
	}

	if err := HistogramChart(nil, 10, nil, &buf); err == nil || !strings.Contains(err.Error(), "empty") {
		t.Errorf("Expected empty input error, got %v", err)
	}
}
