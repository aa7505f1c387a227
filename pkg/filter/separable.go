package filter

import (
	"math"

	"golang.org/x/sync/errgroup"

	"rockct3d/internal/models"
)

// reflectIndex maps an out-of-range coordinate back into [0, n) by mirroring
// about the edges, repeating the edge sample (d c b a | a b c d | d c b a)
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

// windowBounds returns how far a window of the given size reaches before and
// after its centre. Even windows reach one further back.
func windowBounds(size int) (before, after int) {
	before = size / 2
	after = size - 1 - before
	return before, after
}

// parallel splits [0, n) into at most workers contiguous chunks and runs fn
// on each chunk concurrently
func parallel(n, workers int, fn func(lo, hi int) error) error {
	if n == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers

	var g errgroup.Group
	for lo := 0; lo < n; lo += chunk {
		lo, hi := lo, min(lo+chunk, n)
		g.Go(func() error {
			return fn(lo, hi)
		})
	}
	return g.Wait()
}

// axisWalk describes the lines of a volume along one axis. Axis indices
// follow Volume.Shape: 0 is z, 1 is y, 2 is x.
type axisWalk struct {
	n      int // samples per line
	stride int // distance between consecutive samples
	lines  int // number of lines
	width  int
	plane  int
	axis   int
}

func walk(v *models.Volume, axis int) axisWalk {
	w := axisWalk{width: v.Width, plane: v.Width * v.Height, axis: axis}
	switch axis {
	case 0:
		w.n, w.stride, w.lines = v.Depth, w.plane, w.plane
	case 1:
		w.n, w.stride, w.lines = v.Height, v.Width, v.Width*v.Depth
	default:
		w.n, w.stride, w.lines = v.Width, 1, v.Height*v.Depth
	}
	return w
}

// start returns the flat offset of the first sample of line i
func (w axisWalk) start(i int) int {
	switch w.axis {
	case 0:
		return i
	case 1:
		z, x := i/w.width, i%w.width
		return z*w.plane + x
	default:
		return i * w.width
	}
}

// linePass applies fn to every line of src along axis and stores the result
// in dst. fn receives the input line and an output buffer of the same length.
func linePass(v *models.Volume, src, dst []float64, axis, workers int, fn func(in, out []float64)) error {
	w := walk(v, axis)
	return parallel(w.lines, workers, func(lo, hi int) error {
		in := make([]float64, w.n)
		out := make([]float64, w.n)
		for line := lo; line < hi; line++ {
			base := w.start(line)
			for i := 0; i < w.n; i++ {
				in[i] = src[base+i*w.stride]
			}
			fn(in, out)
			for i := 0; i < w.n; i++ {
				dst[base+i*w.stride] = out[i]
			}
		}
		return nil
	})
}

// separable runs one line filter per axis in z, y, x order. A nil entry
// leaves that axis untouched.
func separable(v *models.Volume, perAxis [3]func(in, out []float64), workers int) (*models.Volume, error) {
	out := v.Clone()
	out.DType = "float64"
	scratch := make([]float64, len(v.Data))

	for axis, fn := range perAxis {
		if fn == nil {
			continue
		}
		if err := linePass(v, out.Data, scratch, axis, workers, fn); err != nil {
			return nil, err
		}
		out.Data, scratch = scratch, out.Data
	}
	return out, nil
}

// gaussianKernel returns normalised Gaussian weights for offsets -radius..radius
func gaussianKernel(sigma float64, radius int) []float64 {
	weights := make([]float64, 2*radius+1)
	sum := 0.0
	for i := range weights {
		x := float64(i - radius)
		weights[i] = math.Exp(-0.5 * x * x / (sigma * sigma))
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// correlate returns a line function computing out[i] = sum_j w[j]*in[i+j-before]
func correlate(weights []float64, before int) func(in, out []float64) {
	return func(in, out []float64) {
		n := len(in)
		for i := 0; i < n; i++ {
			sum := 0.0
			for j, w := range weights {
				sum += w * in[reflectIndex(i+j-before, n)]
			}
			out[i] = sum
		}
	}
}

func gaussian(v *models.Volume, sigmas [3]float64, truncate float64, workers int) (*models.Volume, error) {
	var perAxis [3]func(in, out []float64)
	for axis, sigma := range sigmas {
		if sigma <= 1e-15 {
			continue
		}
		radius := int(truncate*sigma + 0.5)
		perAxis[axis] = correlate(gaussianKernel(sigma, radius), radius)
	}
	return separable(v, perAxis, workers)
}

func uniform(v *models.Volume, sizes [3]int, workers int) (*models.Volume, error) {
	var perAxis [3]func(in, out []float64)
	for axis, size := range sizes {
		if size <= 1 {
			continue
		}
		before, after := windowBounds(size)
		perAxis[axis] = func(in, out []float64) {
			n := len(in)
			for i := 0; i < n; i++ {
				sum := 0.0
				for o := -before; o <= after; o++ {
					sum += in[reflectIndex(i+o, n)]
				}
				out[i] = sum / float64(size)
			}
		}
	}
	return separable(v, perAxis, workers)
}

// extremum computes the windowed maximum (or minimum) one axis at a time,
// which equals the extremum over the full box window
func extremum(v *models.Volume, sizes [3]int, max bool, workers int) (*models.Volume, error) {
	var perAxis [3]func(in, out []float64)
	for axis, size := range sizes {
		if size <= 1 {
			continue
		}
		before, after := windowBounds(size)
		perAxis[axis] = func(in, out []float64) {
			n := len(in)
			for i := 0; i < n; i++ {
				best := in[reflectIndex(i-before, n)]
				for o := -before + 1; o <= after; o++ {
					val := in[reflectIndex(i+o, n)]
					if (max && val > best) || (!max && val < best) {
						best = val
					}
				}
				out[i] = best
			}
		}
	}
	return separable(v, perAxis, workers)
}
