package threshold

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// maxIntegerLevels caps the one-bin-per-level histogram at the uint16 range
const maxIntegerLevels = 1 << 16

// Histogram counts values in equal-width bins spanning [Min, Max]
type Histogram struct {
	Counts  []float64
	Centers []float64
	Min     float64
	Max     float64
}

// NewHistogram bins data into the given number of equal-width bins over its
// own range. The top edge is inclusive so the maximum lands in the last bin.
// A flat input yields a single bin.
func NewHistogram(data []float64, bins int) (*Histogram, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if bins < 1 {
		bins = 1
	}

	min, max := floats.Min(data), floats.Max(data)
	if max <= min {
		return &Histogram{
			Counts:  []float64{float64(len(data))},
			Centers: []float64{min},
			Min:     min,
			Max:     max,
		}, nil
	}

	// Binned by hand rather than with stat.Histogram, which needs sorted input
	// and an exclusive upper divider
	edges := make([]float64, bins+1)
	floats.Span(edges, min, max)

	h := &Histogram{
		Counts:  make([]float64, bins),
		Centers: make([]float64, bins),
		Min:     min,
		Max:     max,
	}
	for i := range h.Centers {
		h.Centers[i] = (edges[i] + edges[i+1]) / 2
	}

	width := (max - min) / float64(bins)
	for _, v := range data {
		idx := int((v - min) / width)
		if idx >= bins {
			idx = bins - 1
		} else if idx < 0 {
			idx = 0
		}
		h.Counts[idx]++
	}
	return h, nil
}

// integerHistogram bins integral data with one bin per level from its minimum
// to its maximum, so every bin centre is the level itself. It returns nil when
// a sample is not an integer or the span exceeds the uint16 range.
func integerHistogram(data []float64) *Histogram {
	if len(data) == 0 {
		return nil
	}
	min, max := floats.Min(data), floats.Max(data)
	if max-min+1 > maxIntegerLevels {
		return nil
	}
	for _, v := range data {
		if v != math.Trunc(v) {
			return nil
		}
	}

	levels := int(max-min) + 1
	h := &Histogram{
		Counts:  make([]float64, levels),
		Centers: make([]float64, levels),
		Min:     min,
		Max:     max,
	}
	for i := range h.Centers {
		h.Centers[i] = min + float64(i)
	}
	for _, v := range data {
		h.Counts[int(v-min)]++
	}
	return h
}

// thresholdHistogram picks the histogram the global methods search. Integral
// data gets one bin per level, as for integer images, so that binarising with
// value > threshold puts each level on the side of the split it was counted in.
func thresholdHistogram(data []float64, bins int) (*Histogram, error) {
	if h := integerHistogram(data); h != nil {
		return h, nil
	}
	return NewHistogram(data, bins)
}

// Degenerate reports whether the histogram holds a single distinct value
func (h *Histogram) Degenerate() bool {
	return len(h.Counts) == 1
}
