// Package threshold turns a grayscale volume into a binary one using a global
// histogram threshold (Otsu, Yen) or a per-slice local threshold map.
package threshold

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"rockct3d/internal/models"
	"rockct3d/pkg/filter"
)

// ErrEmpty is returned when there is nothing to threshold
var ErrEmpty = errors.New("threshold: empty input")

// Method selects a thresholding policy
type Method int

const (
	MethodOtsu Method = iota
	MethodYen
	MethodLocal
)

// String returns the configuration name of the method
func (m Method) String() string {
	switch m {
	case MethodOtsu:
		return "otsu"
	case MethodYen:
		return "yen"
	case MethodLocal:
		return "local"
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// ParseMethod maps a configuration name to a Method
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "otsu":
		return MethodOtsu, nil
	case "yen":
		return MethodYen, nil
	case "local", "adaptive":
		return MethodLocal, nil
	}
	return 0, fmt.Errorf("unknown threshold method %q", name)
}

// LocalMethod selects the neighbourhood statistic of the local threshold
type LocalMethod int

const (
	// LocalGaussian uses a Gaussian-weighted mean with sigma (block-1)/6
	LocalGaussian LocalMethod = iota
	// LocalMean uses the plain mean of the block
	LocalMean
)

// ParseLocalMethod maps a configuration name to a LocalMethod
func ParseLocalMethod(name string) (LocalMethod, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gaussian":
		return LocalGaussian, nil
	case "mean":
		return LocalMean, nil
	}
	return 0, fmt.Errorf("unknown local threshold method %q", name)
}

// LocalParams configures the per-slice local threshold
type LocalParams struct {
	// BlockSize is the odd edge length of the in-plane neighbourhood
	BlockSize int
	// Offset is subtracted from the neighbourhood statistic
	Offset float64
	// Method is the neighbourhood statistic
	Method LocalMethod
}

// DefaultLocalParams returns a 35x35 Gaussian neighbourhood with offset 10
func DefaultLocalParams() LocalParams {
	return LocalParams{BlockSize: 35, Offset: 10, Method: LocalGaussian}
}

// Local computes a threshold for every voxel from the neighbourhood in its own
// depth slice. Slices are thresholded independently of each other.
func Local(v *models.Volume, p LocalParams, workers int) (*models.Volume, error) {
	if v.Len() == 0 {
		return nil, ErrEmpty
	}
	if p.BlockSize < 3 || p.BlockSize%2 == 0 {
		return nil, fmt.Errorf("block size must be odd and at least 3, got %d", p.BlockSize)
	}

	var (
		tmap *models.Volume
		err  error
	)
	switch p.Method {
	case LocalGaussian:
		tmap, err = filter.Gaussian2D(v, float64(p.BlockSize-1)/6, workers)
	case LocalMean:
		tmap, err = filter.Uniform2D(v, p.BlockSize, workers)
	default:
		return nil, fmt.Errorf("unknown local threshold method %d", p.Method)
	}
	if err != nil {
		return nil, err
	}

	for i := range tmap.Data {
		tmap.Data[i] -= p.Offset
	}
	return tmap, nil
}

// Binarize marks every voxel strictly above t
func Binarize(v *models.Volume, t float64) *models.Mask {
	m := models.MaskLike(v)
	for i, val := range v.Data {
		m.Data[i] = val > t
	}
	return m
}

// BinarizeMap marks every voxel strictly above its own threshold in tmap
func BinarizeMap(v, tmap *models.Volume) (*models.Mask, error) {
	if !v.SameShape(tmap) {
		return nil, fmt.Errorf("threshold map shape %v does not match volume %v", tmap.Shape(), v.Shape())
	}
	m := models.MaskLike(v)
	for i, val := range v.Data {
		m.Data[i] = val > tmap.Data[i]
	}
	return m, nil
}

// Options configures Segment
type Options struct {
	Method  Method
	Bins    int
	Local   LocalParams
	Workers int
}

// Result is the outcome of Segment
type Result struct {
	Mask *models.Mask
	// Threshold is the global threshold, NaN for the local method
	Threshold float64
	// Degenerate is set when the histogram held a single value
	Degenerate bool
}

// Segment thresholds the volume with the selected method
func Segment(v *models.Volume, opts Options) (Result, error) {
	if v.Len() == 0 {
		return Result{}, ErrEmpty
	}

	switch opts.Method {
	case MethodOtsu, MethodYen:
		fn := Otsu
		if opts.Method == MethodYen {
			fn = Yen
		}
		t, degenerate, err := fn(v.Data, opts.Bins)
		if err != nil {
			return Result{}, err
		}
		return Result{Mask: Binarize(v, t), Threshold: t, Degenerate: degenerate}, nil

	case MethodLocal:
		tmap, err := Local(v, opts.Local, opts.Workers)
		if err != nil {
			return Result{}, err
		}
		m, err := BinarizeMap(v, tmap)
		if err != nil {
			return Result{}, err
		}
		return Result{Mask: m, Threshold: math.NaN()}, nil
	}

	return Result{}, fmt.Errorf("unknown threshold method %v", opts.Method)
}
