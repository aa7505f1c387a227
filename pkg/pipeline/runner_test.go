package pipeline

import (
	"context"
	"fmt"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"rockct3d/internal/models"
	"rockct3d/pkg/config"
	"rockct3d/pkg/stack"
	"rockct3d/pkg/threshold"
)

// createRockVolume places a bright block in a dark, slightly noisy volume
func createRockVolume() *models.Volume {
	v := models.NewVolume(24, 24, 8)
	for z := 0; z < v.Depth; z++ {
		for y := 0; y < v.Height; y++ {
			for x := 0; x < v.Width; x++ {
				noise := float64((x*7+y*13+z*5)%21) - 10
				val := 50 + noise
				if x >= 8 && x < 16 && y >= 8 && y < 16 && z >= 2 && z < 6 {
					val = 200 + noise
				}
				v.Set(x, y, z, val)
			}
		}
	}
	return v
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testParams(t *testing.T, figures bool) *Params {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "rock_sample.tif")
	if err := stack.WriteVolume(input, createRockVolume()); err != nil {
		t.Fatalf("Failed to write input stack: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Input.Path = input
	cfg.Processing.NumCores = 2
	cfg.Filters = []config.FilterConfig{
		{Name: "gaussian", Kind: "gaussian", Sigma: 1},
		{Name: "median", Kind: "median", Size: 3},
	}
	cfg.Threshold.BlockSize = 7
	cfg.Output.Dir = filepath.Join(dir, "out")
	cfg.Output.SaveFigures = figures
	cfg.Output.SaveIntermediaryResults = true

	params, err := ParamsFromConfig(cfg)
	if err != nil {
		t.Fatalf("ParamsFromConfig failed: %v", err)
	}
	return params
}

func TestProcess(t *testing.T) {
	params := testParams(t, true)
	params.ThresholdSource = OriginalSource
	runner := NewRunner(params, quietLogger())

	if err := runner.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if runner.Volume().Shape() != [3]int{8, 24, 24} {
		t.Errorf("Unexpected volume shape %v", runner.Volume().Shape())
	}
	if _, ok := runner.Filtered("median"); !ok {
		t.Error("Median variant missing")
	}
	if _, ok := runner.Filtered("rank"); ok {
		t.Error("Unconfigured variant reported")
	}

	records := runner.Metrics()
	if len(records) != 2 || records[0].Filter != "gaussian" || records[1].Filter != "median" {
		t.Fatalf("Unexpected metric records %+v", records)
	}
	for _, rec := range records {
		if rec.MSE <= 0 || math.IsInf(rec.SNR, 0) {
			t.Errorf("%s: expected finite SNR with positive MSE, got %+v", rec.Filter, rec)
		}
	}

	// background spans 40..60 and the block 190..210
	th := runner.Thresholds()
	// integer levels: the first split in the gap is the background maximum
	if v, ok := th["otsu"]; !ok || v != 60 {
		t.Errorf("Otsu threshold %f should be 60, the top background level", v)
	}
	if v, ok := th["yen"]; !ok || v <= 40 || v >= 210 {
		t.Errorf("Yen threshold %f should lie inside the data range", v)
	}
	if _, ok := th["local"]; ok {
		t.Error("Local method has no scalar threshold")
	}
	if runner.Segmented(threshold.MethodLocal) == nil {
		t.Error("Local mask should be computed alongside the selected method")
	}

	mask := runner.Mask()
	if !mask.At(12, 12, 4) || mask.At(0, 0, 0) || mask.At(20, 20, 7) {
		t.Error("Cleaned mask does not match the bright block")
	}
	if mask.Count() != 8*8*4 {
		t.Errorf("Expected the 256 voxel block, got %d voxels", mask.Count())
	}

	out, err := stack.ReadFile(filepath.Join(params.OutputDir, "segmented_rock.tif"))
	if err != nil {
		t.Fatalf("Output stack unreadable: %v", err)
	}
	if out.Shape() != runner.Volume().Shape() {
		t.Errorf("Output shape %v differs from input %v", out.Shape(), runner.Volume().Shape())
	}
	for i, v := range out.Data {
		want := 0.0
		if mask.Data[i] {
			want = 255
		}
		if v != want {
			t.Fatalf("Output voxel %d: expected %f, got %f", i, want, v)
		}
	}

	figures := []string{
		"orthogonal_slices.png",
		"filtered_gaussian.png",
		"filtered_median.png",
		"metrics_snr.png",
		"adjustment_grid.png",
		"histogram_thresholds.png",
		"thresholds_otsu.png",
		"thresholds_yen.png",
		"thresholds_local.png",
		"cleaned.png",
		"volume_oblique.png",
		"volume_net.png",
	}
	for _, name := range figures {
		if _, err := os.Stat(filepath.Join(params.OutputDir, name)); err != nil {
			t.Errorf("Figure %s missing: %v", name, err)
		}
	}
	for _, name := range []string{"gaussian.tif", "median.tif"} {
		if _, err := os.Stat(filepath.Join(params.IntermediaryDir, name)); err != nil {
			t.Errorf("Intermediary stack %s missing: %v", name, err)
		}
	}
}

func TestProcessWithoutFigures(t *testing.T) {
	params := testParams(t, false)
	params.ThresholdMethod = threshold.MethodYen
	params.ThresholdSource = OriginalSource
	params.Clean.MinSize = 0

	runner := NewRunner(params, nil)
	if err := runner.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(params.OutputDir, "orthogonal_slices.png")); !os.IsNotExist(err) {
		t.Error("Figures should not be written when disabled")
	}
	if runner.Mask().Count() == 0 {
		t.Error("Expected a non-empty segmentation")
	}
	if _, err := os.Stat(params.SlicesDir); !os.IsNotExist(err) {
		t.Error("Slices should not be extracted unless requested")
	}
}

func TestProcessExtractSlices(t *testing.T) {
	params := testParams(t, false)
	params.ThresholdSource = OriginalSource
	params.ExtractSlices = true

	runner := NewRunner(params, quietLogger())
	if err := runner.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	counts := map[string]int{"x": 24, "y": 24, "z": 8}
	for _, name := range []string{"mask", "source"} {
		for axis, n := range counts {
			for _, pos := range []int{0, n - 1} {
				path := filepath.Join(params.SlicesDir, name, axis, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
				if _, err := os.Stat(path); err != nil {
					t.Errorf("Missing slice %s: %v", path, err)
				}
			}
		}
	}

	f, err := os.Open(filepath.Join(params.SlicesDir, "mask", "z", "slice_z_004.png"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	inside := color.Gray16Model.Convert(img.At(12, 12)).(color.Gray16).Y
	outside := color.Gray16Model.Convert(img.At(2, 2)).(color.Gray16).Y
	if inside != 65535 || outside != 0 {
		t.Errorf("Mask slice should be white on the block and black elsewhere, got %d and %d", inside, outside)
	}
}

func TestProcessFigureFailureIsNotFatal(t *testing.T) {
	params := testParams(t, true)
	params.Render.Angle = 120 // rejected by the renderer

	runner := NewRunner(params, quietLogger())
	if err := runner.Process(context.Background()); err != nil {
		t.Fatalf("Figure failure should not stop the pipeline: %v", err)
	}
	if _, err := os.Stat(filepath.Join(params.OutputDir, "volume_oblique.png")); !os.IsNotExist(err) {
		t.Error("Rejected render should not produce a file")
	}
	if _, err := os.Stat(filepath.Join(params.OutputDir, "segmented_rock.tif")); err != nil {
		t.Errorf("Binary stack missing: %v", err)
	}
}

func TestProcessLoadFailure(t *testing.T) {
	params := testParams(t, false)
	params.Source = stack.Source{Path: filepath.Join(t.TempDir(), "missing.tif")}

	runner := NewRunner(params, quietLogger())
	if err := runner.Process(context.Background()); err == nil {
		t.Fatal("Expected load failure")
	}
	if runner.Mask() != nil {
		t.Error("No later step should run after a load failure")
	}
}

func TestParamsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Threshold.Method = "local"
	cfg.Render.Colormap = "viridis"

	params, err := ParamsFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if params.ThresholdMethod != threshold.MethodLocal {
		t.Errorf("Expected local method, got %v", params.ThresholdMethod)
	}
	if params.Local.BlockSize != 35 || params.Local.Offset != 10 {
		t.Errorf("Unexpected local params %+v", params.Local)
	}
	if params.Clean.MinSize != 64 || !params.Clean.FillHoles {
		t.Errorf("Unexpected cleanup options %+v", params.Clean)
	}
	if params.ExtractSlices || params.SlicesDir != filepath.Join(".", "slices") {
		t.Errorf("Unexpected slice settings %v %s", params.ExtractSlices, params.SlicesDir)
	}
	if params.BinaryFile != "segmented_rock.tif" {
		t.Errorf("Unexpected binary file %s", params.BinaryFile)
	}

	cfg.Threshold.Method = "triangle"
	if _, err := ParamsFromConfig(cfg); err == nil {
		t.Error("Expected error for unknown threshold method")
	}
}
