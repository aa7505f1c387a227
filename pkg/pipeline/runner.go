// Package pipeline runs the full rock segmentation workflow: load, view,
// denoise, score, adjust, threshold, clean, render and write, with optional
// slice sequences at the end.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"rockct3d/internal/models"
	"rockct3d/pkg/adjust"
	"rockct3d/pkg/config"
	"rockct3d/pkg/filter"
	"rockct3d/pkg/metrics"
	"rockct3d/pkg/morphology"
	"rockct3d/pkg/stack"
	"rockct3d/pkg/threshold"
	"rockct3d/pkg/visualization"
)

// OriginalSource names the unfiltered volume as a threshold source
const OriginalSource = "original"

// Params holds the pipeline parameters. ParamsFromConfig builds them from a
// validated configuration.
type Params struct {
	// Source locates the input stack
	Source stack.Source

	// Timeout bounds the remote fetch; zero means no limit
	Timeout time.Duration

	// Client serves gs:// URLs; nil creates one on demand
	Client *storage.Client

	// NumCores bounds the workers used by the filters
	NumCores int

	// Filters are the denoising variants, in report order
	Filters []config.FilterConfig

	// ThresholdMethod selects the mask that is cleaned and written
	ThresholdMethod threshold.Method

	// ThresholdSource is a filter name or OriginalSource
	ThresholdSource string

	// Bins is the histogram resolution of the global thresholds
	Bins int

	// Local configures the per-slice threshold
	Local threshold.LocalParams

	// Clean configures the binary cleanup
	Clean morphology.CleanOptions

	// AdjustSlice is the depth index of the adjustment grid; negative picks the centre
	AdjustSlice int

	// Brightness and Contrast span the adjustment grid
	Brightness []float64
	Contrast   []float64

	// Render configures the boundary-face figures
	Render visualization.RenderOptions

	// OutputDir receives the binary stack and the figures
	OutputDir string

	// BinaryFile is the file name of the cleaned stack inside OutputDir
	BinaryFile string

	// SaveFigures enables the PNG figures
	SaveFigures bool

	// SaveIntermediaryResults writes every filtered volume as a stack
	SaveIntermediaryResults bool

	// IntermediaryDir is where the filtered stacks go
	IntermediaryDir string

	// ExtractSlices saves x, y and z slice sequences of the cleaned mask and
	// the threshold source under SlicesDir
	ExtractSlices bool
	SlicesDir     string
}

// ParamsFromConfig converts a configuration into pipeline parameters
func ParamsFromConfig(cfg *config.Config) (*Params, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	method, err := threshold.ParseMethod(cfg.Threshold.Method)
	if err != nil {
		return nil, err
	}
	localMethod, err := threshold.ParseLocalMethod(cfg.Threshold.LocalMethod)
	if err != nil {
		return nil, err
	}
	cmap, err := visualization.ParseColormap(cfg.Render.Colormap)
	if err != nil {
		return nil, err
	}

	return &Params{
		Source: stack.Source{
			Path:  cfg.Input.Path,
			URL:   cfg.Input.URL,
			Cache: cfg.Input.CacheDownload,
		},
		Timeout:         time.Duration(cfg.Input.TimeoutSeconds) * time.Second,
		NumCores:        cfg.Processing.NumCores,
		Filters:         cfg.Filters,
		ThresholdMethod: method,
		ThresholdSource: cfg.Threshold.Source,
		Bins:            cfg.Threshold.Bins,
		Local: threshold.LocalParams{
			BlockSize: cfg.Threshold.BlockSize,
			Offset:    cfg.Threshold.Offset,
			Method:    localMethod,
		},
		Clean: morphology.CleanOptions{
			MinSize:      cfg.Cleanup.MinSize,
			Connectivity: morphology.Connectivity(cfg.Cleanup.Connectivity),
			FillHoles:    cfg.Cleanup.FillHoles,
		},
		AdjustSlice: cfg.Adjust.Slice,
		Brightness:  cfg.Adjust.Brightness,
		Contrast:    cfg.Adjust.Contrast,
		Render: visualization.RenderOptions{
			Scale:    cfg.Render.Scale,
			Angle:    cfg.Render.Angle,
			Depth:    cfg.Render.Depth,
			Colormap: cmap,
		},
		OutputDir:               cfg.Output.Dir,
		BinaryFile:              cfg.Output.BinaryFile,
		SaveFigures:             cfg.Output.SaveFigures,
		SaveIntermediaryResults: cfg.Output.SaveIntermediaryResults,
		IntermediaryDir:         filepath.Join(cfg.Output.Dir, cfg.Output.IntermediaryDir),
		ExtractSlices:           cfg.Output.ExtractSlices,
		SlicesDir:               filepath.Join(cfg.Output.Dir, cfg.Output.SlicesDir),
	}, nil
}

// Runner executes the pipeline once and keeps every intermediate result for
// inspection afterwards
type Runner struct {
	params *Params
	log    logrus.FieldLogger

	// volume is the loaded grayscale stack
	volume *models.Volume

	// variants holds the filtered volumes in configuration order
	variants []metrics.Variant

	// records scores each variant against the original
	records []metrics.Record

	// source is the volume that was thresholded
	source *models.Volume

	// results holds the mask of every threshold method
	results map[threshold.Method]threshold.Result

	// mask is the cleaned segmentation that gets written
	mask       *models.Mask
	cleanStats morphology.Stats
}

// NewRunner creates a runner. A nil logger discards all output.
func NewRunner(params *Params, logger logrus.FieldLogger) *Runner {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Runner{
		params:  params,
		log:     logger,
		results: make(map[threshold.Method]threshold.Result),
	}
}

// Process runs the complete pipeline. Only a load or compute failure stops
// it; figures that cannot be written are logged and skipped.
func (r *Runner) Process(ctx context.Context) error {
	if err := os.MkdirAll(r.params.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if r.params.SaveIntermediaryResults {
		if err := os.MkdirAll(r.params.IntermediaryDir, 0755); err != nil {
			return fmt.Errorf("failed to create intermediary directory: %w", err)
		}
	}

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"load", r.load},
		{"view", r.view},
		{"denoise", r.denoise},
		{"metrics", r.score},
		{"adjust", r.adjust},
		{"threshold", r.threshold},
		{"cleanup", r.cleanup},
		{"render", r.render},
		{"write", r.write},
		{"slices", r.slices},
	}

	for i, step := range steps {
		r.log.WithFields(logrus.Fields{"step": i + 1, "name": step.name}).Info("starting step")
		start := time.Now()
		if err := step.run(ctx); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.name, err)
		}
		r.log.WithFields(logrus.Fields{"step": i + 1, "name": step.name, "elapsed": time.Since(start).String()}).Debug("finished step")
	}
	return nil
}

// Step 1
func (r *Runner) load(ctx context.Context) error {
	if r.params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.params.Timeout)
		defer cancel()
	}

	v, err := stack.Open(ctx, r.params.Source, r.params.Client)
	if err != nil {
		return fmt.Errorf("failed to load volume: %w", err)
	}
	r.volume = v

	info := stack.Describe(v)
	r.log.WithFields(logrus.Fields{
		"shape":  info.Shape,
		"dtype":  info.DType,
		"min":    info.Min,
		"max":    info.Max,
		"mean":   info.Mean,
		"median": info.Median,
		"std":    info.StdDev,
		"memory": humanize.Bytes(info.Bytes),
	}).Info("loaded volume")
	return nil
}

// Step 2
func (r *Runner) view(context.Context) error {
	r.saveFigure("orthogonal_slices.png", func(path string) error {
		return r.savePanels(path, r.volume)
	})
	return nil
}

// Step 3
func (r *Runner) denoise(context.Context) error {
	for _, fc := range r.params.Filters {
		p, err := filter.Parse(fc)
		if err != nil {
			return fmt.Errorf("filter %q: %w", fc.Name, err)
		}
		out, err := filter.Apply(r.volume, p, r.params.NumCores)
		if err != nil {
			return fmt.Errorf("filter %q: %w", fc.Name, err)
		}
		r.variants = append(r.variants, metrics.Variant{Name: fc.Name, Volume: out})
		r.log.WithFields(logrus.Fields{"filter": fc.Name, "kind": p.Kind().String()}).Info("applied filter")

		r.saveFigure("filtered_"+fc.Name+".png", func(path string) error {
			return r.savePanels(path, out)
		})
		if r.params.SaveIntermediaryResults {
			path := filepath.Join(r.params.IntermediaryDir, fc.Name+".tif")
			if err := stack.WriteVolume(path, out); err != nil {
				r.log.WithFields(logrus.Fields{"filter": fc.Name, "error": err}).Warn("failed to save intermediary stack")
			}
		}
	}
	return nil
}

// Step 4
func (r *Runner) score(context.Context) error {
	if len(r.variants) == 0 {
		r.log.Warn("no filters configured, skipping metrics")
		return nil
	}

	records, err := metrics.Compare(r.volume, r.variants)
	if err != nil {
		return err
	}
	r.records = records
	for _, rec := range records {
		r.log.WithFields(logrus.Fields{
			"filter": rec.Filter,
			"mse":    rec.MSE,
			"snr":    formatDB(rec.SNR),
			"psnr":   formatDB(rec.PSNR),
			"ssim":   rec.SSIM,
		}).Info("filter quality")
	}

	r.saveFigure("metrics_snr.png", func(path string) error {
		return writeTo(path, func(w io.Writer) error { return visualization.MetricsChart(records, w) })
	})
	return nil
}

// Step 5
func (r *Runner) adjust(context.Context) error {
	z := r.params.AdjustSlice
	if z < 0 || z >= r.volume.Depth {
		if z >= r.volume.Depth {
			r.log.WithFields(logrus.Fields{"slice": z, "depth": r.volume.Depth}).Warn("adjust slice out of range, using centre slice")
		}
		z = r.volume.Depth / 2
	}
	plane, err := r.volume.Plane(models.AxisZ, z)
	if err != nil {
		return err
	}

	r.saveFigure("adjustment_grid.png", func(path string) error {
		return adjust.SaveGrid(adjust.Grid(plane, r.params.Brightness, r.params.Contrast), path)
	})
	return nil
}

// Step 6
func (r *Runner) threshold(context.Context) error {
	src, err := r.thresholdSource()
	if err != nil {
		return err
	}
	r.source = src

	for _, method := range []threshold.Method{threshold.MethodOtsu, threshold.MethodYen, threshold.MethodLocal} {
		res, err := threshold.Segment(src, threshold.Options{
			Method:  method,
			Bins:    r.params.Bins,
			Local:   r.params.Local,
			Workers: r.params.NumCores,
		})
		if err != nil {
			return fmt.Errorf("%s threshold: %w", method, err)
		}
		r.results[method] = res

		fields := logrus.Fields{
			"method":     method.String(),
			"source":     r.params.ThresholdSource,
			"foreground": fmt.Sprintf("%.2f%%", 100*float64(res.Mask.Count())/float64(res.Mask.Len())),
		}
		if !math.IsNaN(res.Threshold) {
			fields["threshold"] = res.Threshold
		}
		if res.Degenerate {
			r.log.WithFields(fields).Warn("histogram holds a single value, mask is empty")
		} else {
			r.log.WithFields(fields).Info("computed threshold")
		}

		r.saveFigure("thresholds_"+method.String()+".png", func(path string) error {
			return r.savePanels(path, res.Mask.ToVolume(1))
		})
	}

	r.saveFigure("histogram_thresholds.png", func(path string) error {
		markers := []visualization.Marker{
			{Name: "otsu", Value: r.results[threshold.MethodOtsu].Threshold},
			{Name: "yen", Value: r.results[threshold.MethodYen].Threshold},
		}
		return writeTo(path, func(w io.Writer) error {
			return visualization.HistogramChart(src.Data, r.params.Bins, markers, w)
		})
	})
	return nil
}

func (r *Runner) thresholdSource() (*models.Volume, error) {
	// an empty source selects the original, as in config validation
	name := r.params.ThresholdSource
	if name == "" || name == OriginalSource {
		return r.volume, nil
	}
	if v, ok := r.Filtered(name); ok {
		return v, nil
	}
	return nil, fmt.Errorf("threshold source %q is not a configured filter", name)
}

// Step 7
func (r *Runner) cleanup(context.Context) error {
	segmented := r.results[r.params.ThresholdMethod].Mask
	if segmented == nil {
		return fmt.Errorf("no mask for threshold method %s", r.params.ThresholdMethod)
	}

	mask, st, err := morphology.Clean(segmented, r.params.Clean)
	if err != nil {
		return err
	}
	r.mask, r.cleanStats = mask, st

	r.log.WithFields(logrus.Fields{
		"method":            r.params.ThresholdMethod.String(),
		"components":        st.Components,
		"removedComponents": st.RemovedComponents,
		"removedVoxels":     st.RemovedVoxels,
		"filledVoxels":      st.FilledVoxels,
		"foreground":        mask.Count(),
	}).Info("cleaned binary volume")

	r.saveFigure("cleaned.png", func(path string) error {
		return r.savePanels(path, mask.ToVolume(1))
	})
	return nil
}

// Step 8
func (r *Runner) render(context.Context) error {
	if !r.params.SaveFigures {
		return nil
	}
	faces, err := visualization.MaskFaces(r.mask)
	if err != nil {
		return err
	}

	r.saveFigure("volume_oblique.png", func(path string) error {
		img, err := visualization.RenderOblique(faces, r.params.Render)
		if err != nil {
			return err
		}
		return visualization.SaveImage(path, img)
	})
	r.saveFigure("volume_net.png", func(path string) error {
		img, err := visualization.RenderNet(faces, r.params.Render)
		if err != nil {
			return err
		}
		return visualization.SaveImage(path, img)
	})
	return nil
}

// Step 9
func (r *Runner) write(context.Context) error {
	path := filepath.Join(r.params.OutputDir, r.params.BinaryFile)
	if err := stack.WriteMask(path, r.mask); err != nil {
		return err
	}
	r.log.WithFields(logrus.Fields{"path": path, "pages": r.mask.Depth}).Info("wrote binary stack")
	return nil
}

// Step 10
func (r *Runner) slices(context.Context) error {
	if !r.params.ExtractSlices {
		return nil
	}

	maskViewer := visualization.NewViewer(r.mask.ToVolume(1))
	if err := maskViewer.SetDisplayRange(0, 1); err != nil {
		return err
	}
	viewers := []struct {
		name   string
		viewer *visualization.Viewer
	}{
		{"mask", maskViewer},
		{"source", visualization.NewViewer(r.source)},
	}

	for _, v := range viewers {
		for _, axis := range []string{"x", "y", "z"} {
			dir := filepath.Join(r.params.SlicesDir, v.name, axis)
			if err := v.viewer.SaveSliceSequence(axis, dir); err != nil {
				r.log.WithFields(logrus.Fields{"volume": v.name, "axis": axis, "error": err}).Warn("failed to save slices")
				continue
			}
			r.log.WithFields(logrus.Fields{"volume": v.name, "axis": axis, "dir": dir}).Debug("saved slices")
		}
	}
	return nil
}

// saveFigure draws one figure into the output directory. Failures are
// logged and do not stop the pipeline.
func (r *Runner) saveFigure(name string, draw func(path string) error) {
	if !r.params.SaveFigures {
		return
	}
	path := filepath.Join(r.params.OutputDir, name)
	if err := draw(path); err != nil {
		r.log.WithFields(logrus.Fields{"figure": name, "error": err}).Warn("failed to save figure")
		return
	}
	r.log.WithField("figure", path).Debug("saved figure")
}

func (r *Runner) savePanels(path string, v *models.Volume) error {
	panels, err := visualization.OrthogonalSlices(v)
	if err != nil {
		return err
	}
	return visualization.SavePanels(path, panels, r.params.Render.Colormap)
}

func writeTo(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatDB(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f dB", v)
}

// Volume returns the loaded stack
func (r *Runner) Volume() *models.Volume {
	return r.volume
}

// Filtered returns the volume produced by the named filter
func (r *Runner) Filtered(name string) (*models.Volume, bool) {
	for _, v := range r.variants {
		if v.Name == name {
			return v.Volume, true
		}
	}
	return nil, false
}

// Metrics returns the quality record of every filter in configuration order
func (r *Runner) Metrics() []metrics.Record {
	return r.records
}

// Thresholds returns the global threshold of each histogram method
func (r *Runner) Thresholds() map[string]float64 {
	out := make(map[string]float64)
	for method, res := range r.results {
		if !math.IsNaN(res.Threshold) {
			out[method.String()] = res.Threshold
		}
	}
	return out
}

// Segmented returns the uncleaned mask of the given method
func (r *Runner) Segmented(method threshold.Method) *models.Mask {
	return r.results[method].Mask
}

// Mask returns the cleaned segmentation
func (r *Runner) Mask() *models.Mask {
	return r.mask
}

// CleanStats reports what the cleanup step changed
func (r *Runner) CleanStats() morphology.Stats {
	return r.cleanStats
}
