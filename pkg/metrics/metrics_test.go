package metrics

import (
	"errors"
	"math"
	"testing"

	"rockct3d/internal/models"
)

func TestMSEOfIdenticalInputIsZero(t *testing.T) {
	data := []float64{3, 1, 4, 1, 5, 9, 2, 6}

	mse, err := MSE(data, data)
	if err != nil {
		t.Fatal(err)
	}
	if mse != 0 {
		t.Errorf("Expected MSE 0, got %f", mse)
	}

	snr, err := SNR(data, data)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsInf(snr, 1) {
		t.Errorf("Expected SNR +Inf for perfect reconstruction, got %f", snr)
	}

	psnr, err := PSNR(data, data, 8)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsInf(psnr, 1) {
		t.Errorf("Expected PSNR +Inf for perfect reconstruction, got %f", psnr)
	}
}

func TestMSEAndSNRValues(t *testing.T) {
	original := []float64{0, 2, 4, 6}
	filtered := []float64{1, 1, 5, 5}

	mse, err := MSE(original, filtered)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(mse-1) > 1e-12 {
		t.Errorf("Expected MSE 1, got %f", mse)
	}

	// Population variance of the original is 5
	snr, err := SNR(original, filtered)
	if err != nil {
		t.Fatal(err)
	}
	if want := 10 * math.Log10(5); math.Abs(snr-want) > 1e-12 {
		t.Errorf("Expected SNR %f, got %f", want, snr)
	}

	psnr, err := PSNR(original, filtered, 6)
	if err != nil {
		t.Fatal(err)
	}
	if want := 10 * math.Log10(36); math.Abs(psnr-want) > 1e-12 {
		t.Errorf("Expected PSNR %f, got %f", want, psnr)
	}
}

func TestLengthMismatch(t *testing.T) {
	if _, err := MSE([]float64{1, 2}, []float64{1}); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Expected ErrLengthMismatch, got %v", err)
	}
	if _, err := MSE(nil, nil); err == nil {
		t.Error("Expected error for empty input")
	}
}

func TestSSIM(t *testing.T) {
	data := []float64{0.1, 0.5, 0.9, 0.3, 0.7}

	same, err := SSIM(data, data, 1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(same-1) > 1e-12 {
		t.Errorf("Expected SSIM 1 for identical input, got %f", same)
	}

	inverted := make([]float64, len(data))
	for i, v := range data {
		inverted[i] = 1 - v
	}
	other, err := SSIM(data, inverted, 1)
	if err != nil {
		t.Fatal(err)
	}
	if other >= same {
		t.Errorf("Inverted data should score lower SSIM, got %f", other)
	}
}

func TestCompare(t *testing.T) {
	original := models.NewVolume(4, 4, 2)
	for i := range original.Data {
		original.Data[i] = float64(i % 7)
	}
	noisy := original.Clone()
	noisy.Data[3] += 5

	records, err := Compare(original, []Variant{
		{Name: "copy", Volume: original.Clone()},
		{Name: "noisy", Volume: noisy},
	})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if len(records) != 2 || records[0].Filter != "copy" || records[1].Filter != "noisy" {
		t.Fatalf("Unexpected records %+v", records)
	}
	if records[0].MSE != 0 || !math.IsInf(records[0].SNR, 1) {
		t.Errorf("Identical variant should have MSE 0 and SNR +Inf, got %+v", records[0])
	}
	if want := 25.0 / 32; math.Abs(records[1].MSE-want) > 1e-12 {
		t.Errorf("Expected MSE %f, got %f", want, records[1].MSE)
	}
	if math.IsInf(records[1].SNR, 0) {
		t.Errorf("Noisy variant should have finite SNR")
	}

	wrong := models.NewVolume(2, 2, 2)
	if _, err := Compare(original, []Variant{{Name: "wrong", Volume: wrong}}); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Expected ErrLengthMismatch for shape mismatch, got %v", err)
	}
}
