// Package filter implements the windowed statistical filters used to denoise
// a volume before thresholding. Every filter reads its input through a
// reflecting boundary (d c b a | a b c d | d c b a) and returns a new volume
// of the same shape.
package filter

import (
	"errors"
	"fmt"
	"strings"

	"rockct3d/internal/models"
	"rockct3d/pkg/config"
)

// ErrInvalidParams is returned when filter parameters are out of range
var ErrInvalidParams = errors.New("invalid filter parameters")

// Kind enumerates the supported filters
type Kind int

const (
	Gaussian Kind = iota
	Median
	Uniform
	Maximum
	Minimum
	Percentile
	Rank
)

var kindNames = map[Kind]string{
	Gaussian:   "gaussian",
	Median:     "median",
	Uniform:    "uniform",
	Maximum:    "maximum",
	Minimum:    "minimum",
	Percentile: "percentile",
	Rank:       "rank",
}

// String returns the configuration name of the kind
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a configuration name to a Kind. "mean" is accepted as an
// alias for uniform.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "mean" {
		return Uniform, nil
	}
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown filter kind %q", ErrInvalidParams, name)
}

// Params is the parameter record of one filter variant
type Params interface {
	Kind() Kind
	Validate() error
}

// GaussianParams configures Gaussian-weighted smoothing
type GaussianParams struct {
	// Sigma is the standard deviation in voxels; zero leaves the input unchanged
	Sigma float64
	// Truncate cuts the kernel at this many standard deviations (default 4)
	Truncate float64
}

// MedianParams configures the median filter
type MedianParams struct {
	Size int
}

// UniformParams configures the mean filter
type UniformParams struct {
	Size int
}

// MaximumParams configures the maximum filter
type MaximumParams struct {
	Size int
}

// MinimumParams configures the minimum filter
type MinimumParams struct {
	Size int
}

// PercentileParams configures the percentile filter. Percentile is in
// [-100, 100]; negative values are taken as Percentile+100.
type PercentileParams struct {
	Size       int
	Percentile float64
}

// RankParams configures the rank filter. Rank 0 selects the minimum of the
// window; negative ranks count down from the maximum.
type RankParams struct {
	Size int
	Rank int
}

func (GaussianParams) Kind() Kind   { return Gaussian }
func (MedianParams) Kind() Kind     { return Median }
func (UniformParams) Kind() Kind    { return Uniform }
func (MaximumParams) Kind() Kind    { return Maximum }
func (MinimumParams) Kind() Kind    { return Minimum }
func (PercentileParams) Kind() Kind { return Percentile }
func (RankParams) Kind() Kind       { return Rank }

func (p GaussianParams) Validate() error {
	if p.Sigma < 0 {
		return fmt.Errorf("%w: gaussian sigma must not be negative, got %g", ErrInvalidParams, p.Sigma)
	}
	if p.Truncate < 0 {
		return fmt.Errorf("%w: gaussian truncate must not be negative, got %g", ErrInvalidParams, p.Truncate)
	}
	return nil
}

func (p MedianParams) Validate() error  { return validateSize(Median, p.Size) }
func (p UniformParams) Validate() error { return validateSize(Uniform, p.Size) }
func (p MaximumParams) Validate() error { return validateSize(Maximum, p.Size) }
func (p MinimumParams) Validate() error { return validateSize(Minimum, p.Size) }

func (p PercentileParams) Validate() error {
	if err := validateSize(Percentile, p.Size); err != nil {
		return err
	}
	if p.Percentile < -100 || p.Percentile > 100 {
		return fmt.Errorf("%w: percentile must be in [-100, 100], got %g", ErrInvalidParams, p.Percentile)
	}
	return nil
}

func (p RankParams) Validate() error {
	if err := validateSize(Rank, p.Size); err != nil {
		return err
	}
	n := p.Size * p.Size * p.Size
	if p.Rank >= n || p.Rank < -n {
		return fmt.Errorf("%w: rank %d outside window of %d voxels", ErrInvalidParams, p.Rank, n)
	}
	return nil
}

func validateSize(k Kind, size int) error {
	if size < 1 {
		return fmt.Errorf("%w: %s size must be at least 1, got %d", ErrInvalidParams, k, size)
	}
	return nil
}

// Parse converts a configuration entry into the typed parameters of its kind
func Parse(fc config.FilterConfig) (Params, error) {
	kind, err := ParseKind(fc.Kind)
	if err != nil {
		return nil, err
	}

	var p Params
	switch kind {
	case Gaussian:
		p = GaussianParams{Sigma: fc.Sigma}
	case Median:
		p = MedianParams{Size: fc.Size}
	case Uniform:
		p = UniformParams{Size: fc.Size}
	case Maximum:
		p = MaximumParams{Size: fc.Size}
	case Minimum:
		p = MinimumParams{Size: fc.Size}
	case Percentile:
		p = PercentileParams{Size: fc.Size, Percentile: fc.Percentile}
	case Rank:
		p = RankParams{Size: fc.Size, Rank: fc.Rank}
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("filter %q: %w", fc.Name, err)
	}
	return p, nil
}

// Apply runs the filter described by p over the whole volume using up to
// workers goroutines. The input is not modified.
func Apply(v *models.Volume, p Params, workers int) (*models.Volume, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil parameters", ErrInvalidParams)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if v.Len() == 0 {
		return v.Like(), nil
	}

	sizes := func(n int) [3]int { return [3]int{n, n, n} }

	switch p := p.(type) {
	case GaussianParams:
		truncate := p.Truncate
		if truncate == 0 {
			truncate = 4
		}
		return gaussian(v, [3]float64{p.Sigma, p.Sigma, p.Sigma}, truncate, workers)
	case UniformParams:
		return uniform(v, sizes(p.Size), workers)
	case MaximumParams:
		return extremum(v, sizes(p.Size), true, workers)
	case MinimumParams:
		return extremum(v, sizes(p.Size), false, workers)
	case MedianParams:
		n := p.Size * p.Size * p.Size
		return rankFilter(v, p.Size, n/2, workers)
	case PercentileParams:
		n := p.Size * p.Size * p.Size
		return rankFilter(v, p.Size, percentileRank(p.Percentile, n), workers)
	case RankParams:
		n := p.Size * p.Size * p.Size
		rank := p.Rank
		if rank < 0 {
			rank += n
		}
		return rankFilter(v, p.Size, rank, workers)
	}

	return nil, fmt.Errorf("%w: unsupported filter %T", ErrInvalidParams, p)
}

// percentileRank converts a percentile to a 0-based rank in a window of n values
func percentileRank(percentile float64, n int) int {
	if percentile < 0 {
		percentile += 100
	}
	rank := int(float64(n) * percentile / 100)
	if rank >= n {
		rank = n - 1
	}
	return rank
}

// Gaussian2D smooths every depth slice on its own with an in-plane Gaussian.
// No smoothing happens across slices.
func Gaussian2D(v *models.Volume, sigma float64, workers int) (*models.Volume, error) {
	if sigma < 0 {
		return nil, fmt.Errorf("%w: gaussian sigma must not be negative, got %g", ErrInvalidParams, sigma)
	}
	return gaussian(v, [3]float64{0, sigma, sigma}, 4, workers)
}

// Uniform2D replaces every voxel with the mean of a size x size window in its
// own depth slice
func Uniform2D(v *models.Volume, size int, workers int) (*models.Volume, error) {
	if err := validateSize(Uniform, size); err != nil {
		return nil, err
	}
	return uniform(v, [3]int{1, size, size}, workers)
}
