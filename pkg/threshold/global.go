package threshold

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Otsu returns the threshold that maximises the between-class variance of
// the histogram. The threshold is a bin centre and voxels strictly above it
// form the foreground. Integral data is binned one level per bin and bins is
// ignored. On a single-valued input the value itself is returned
// and Degenerate is reported through the second result.
func Otsu(data []float64, bins int) (float64, bool, error) {
	h, err := thresholdHistogram(data, bins)
	if err != nil {
		return 0, false, err
	}
	if h.Degenerate() {
		return h.Centers[0], true, nil
	}
	return otsuFromHistogram(h), false, nil
}

func otsuFromHistogram(h *Histogram) float64 {
	n := len(h.Counts)

	weighted := make([]float64, n)
	floats.MulTo(weighted, h.Counts, h.Centers)

	// Class weights and means below (1) and above (2) each split
	weight1 := floats.CumSum(make([]float64, n), h.Counts)
	sum1 := floats.CumSum(make([]float64, n), weighted)

	weight2 := reverseCumSum(h.Counts)
	sum2 := reverseCumSum(weighted)

	best, bestVariance := 0, math.Inf(-1)
	for i := 0; i < n-1; i++ {
		w1, w2 := weight1[i], weight2[i+1]
		if w1 == 0 || w2 == 0 {
			continue
		}
		m1 := sum1[i] / w1
		m2 := sum2[i+1] / w2
		variance := w1 * w2 * (m1 - m2) * (m1 - m2)
		if variance > bestVariance {
			best, bestVariance = i, variance
		}
	}
	return h.Centers[best]
}

// Yen returns the threshold maximising Yen's entropic correlation criterion.
// Terms whose logarithm argument is zero or not finite are skipped.
func Yen(data []float64, bins int) (float64, bool, error) {
	h, err := thresholdHistogram(data, bins)
	if err != nil {
		return 0, false, err
	}
	if h.Degenerate() {
		return h.Centers[0], true, nil
	}
	return yenFromHistogram(h), false, nil
}

func yenFromHistogram(h *Histogram) float64 {
	n := len(h.Counts)

	pmf := make([]float64, n)
	copy(pmf, h.Counts)
	floats.Scale(1/floats.Sum(pmf), pmf)

	pmfSq := make([]float64, n)
	floats.MulTo(pmfSq, pmf, pmf)

	p1 := floats.CumSum(make([]float64, n), pmf)
	p1Sq := floats.CumSum(make([]float64, n), pmfSq)
	p2Sq := reverseCumSum(pmfSq)

	best, bestCrit := 0, math.Inf(-1)
	for i := 0; i < n-1; i++ {
		denom := p1Sq[i] * p2Sq[i+1]
		numer := p1[i] * (1 - p1[i])
		arg := numer * numer / denom
		if denom == 0 || arg <= 0 || math.IsInf(arg, 0) || math.IsNaN(arg) {
			continue
		}
		crit := math.Log(arg)
		if crit > bestCrit {
			best, bestCrit = i, crit
		}
	}
	return h.Centers[best]
}

// reverseCumSum returns out[i] = sum(s[i:])
func reverseCumSum(s []float64) []float64 {
	out := make([]float64, len(s))
	acc := 0.0
	for i := len(s) - 1; i >= 0; i-- {
		acc += s[i]
		out[i] = acc
	}
	return out
}
