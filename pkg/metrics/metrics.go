// Package metrics scores filtered volumes against the original. The records
// are kept in memory for reporting and charts and are never persisted.
package metrics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"rockct3d/internal/models"
)

// ErrLengthMismatch is returned when the compared arrays differ in size
var ErrLengthMismatch = errors.New("metrics: inputs differ in length")

// Record holds the quality metrics of one filtered variant
type Record struct {
	// Filter is the name of the filtered variant
	Filter string

	// MSE is the mean squared error against the original
	MSE float64

	// SNR is the signal-to-noise ratio in dB, +Inf when MSE is zero
	SNR float64

	// PSNR is the peak signal-to-noise ratio in dB over the original's
	// dynamic range, +Inf when MSE is zero
	PSNR float64

	// SSIM is the single-window structural similarity index
	SSIM float64
}

// Variant pairs a filtered volume with the name it is reported under
type Variant struct {
	Name   string
	Volume *models.Volume
}

func checkLengths(a, b []float64) error {
	if len(a) != len(b) {
		return fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return fmt.Errorf("metrics: empty input")
	}
	return nil
}

// MSE computes the mean squared error between original and filtered
func MSE(original, filtered []float64) (float64, error) {
	if err := checkLengths(original, filtered); err != nil {
		return 0, err
	}
	d := floats.Distance(original, filtered, 2)
	return d * d / float64(len(original)), nil
}

// SNR computes 10*log10(Var(original)/MSE) in decibels. A perfect
// reconstruction (MSE of zero) yields +Inf.
func SNR(original, filtered []float64) (float64, error) {
	mse, err := MSE(original, filtered)
	if err != nil {
		return 0, err
	}
	if mse == 0 {
		return math.Inf(1), nil
	}
	_, variance := stat.PopMeanVariance(original, nil)
	return 10 * math.Log10(variance/mse), nil
}

// PSNR computes 10*log10(dataRange^2/MSE) in decibels, +Inf when MSE is zero
func PSNR(original, filtered []float64, dataRange float64) (float64, error) {
	mse, err := MSE(original, filtered)
	if err != nil {
		return 0, err
	}
	if mse == 0 {
		return math.Inf(1), nil
	}
	return 10 * math.Log10(dataRange*dataRange/mse), nil
}

// SSIM computes the Structural Similarity Index over the whole array as one
// window. dataRange scales the stabilising constants.
func SSIM(original, filtered []float64, dataRange float64) (float64, error) {
	if err := checkLengths(original, filtered); err != nil {
		return 0, err
	}

	const k1 = 0.01
	const k2 = 0.03

	c1 := (k1 * dataRange) * (k1 * dataRange)
	c2 := (k2 * dataRange) * (k2 * dataRange)

	muX := stat.Mean(original, nil)
	muY := stat.Mean(filtered, nil)

	sigmaX, sigmaY, sigmaXY := 0.0, 0.0, 0.0
	if len(original) > 1 {
		sigmaX = stat.Variance(original, nil)
		sigmaY = stat.Variance(filtered, nil)
		sigmaXY = stat.Covariance(original, filtered, nil)
	}

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)

	if den > 0 {
		return num / den, nil
	}
	return 0, nil
}

// Evaluate computes the full record for one filtered variant
func Evaluate(name string, original, filtered *models.Volume) (Record, error) {
	if !original.SameShape(filtered) {
		return Record{}, fmt.Errorf("%w: shape %v vs %v", ErrLengthMismatch, original.Shape(), filtered.Shape())
	}

	rec := Record{Filter: name}
	var err error

	if rec.MSE, err = MSE(original.Data, filtered.Data); err != nil {
		return Record{}, err
	}
	if rec.SNR, err = SNR(original.Data, filtered.Data); err != nil {
		return Record{}, err
	}

	min, max, _ := original.Stats()
	dataRange := max - min
	if dataRange == 0 {
		dataRange = 1
	}
	if rec.PSNR, err = PSNR(original.Data, filtered.Data, dataRange); err != nil {
		return Record{}, err
	}
	if rec.SSIM, err = SSIM(original.Data, filtered.Data, dataRange); err != nil {
		return Record{}, err
	}

	return rec, nil
}

// Compare evaluates every variant against the original, in order
func Compare(original *models.Volume, variants []Variant) ([]Record, error) {
	records := make([]Record, 0, len(variants))
	for _, v := range variants {
		rec, err := Evaluate(v.Name, original, v.Volume)
		if err != nil {
			return nil, fmt.Errorf("variant %q: %w", v.Name, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
