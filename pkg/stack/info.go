package stack

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/montanaflynn/stats"

	"rockct3d/internal/models"
)

// bytesPerVoxel is the size of one float64 sample
const bytesPerVoxel = 8

// Info summarises a loaded volume
type Info struct {
	Shape [3]int
	DType string
	Min   float64
	Max   float64
	Mean  float64
	// Median and StdDev are zero for an empty volume
	Median float64
	StdDev float64
	// Bytes is the in-memory size of the voxel data
	Bytes uint64
}

// Describe reports the shape, value range and memory footprint of v
func Describe(v *models.Volume) Info {
	min, max, mean := v.Stats()
	info := Info{
		Shape: v.Shape(),
		DType: v.DType,
		Min:   min,
		Max:   max,
		Mean:  mean,
		Bytes: uint64(len(v.Data)) * bytesPerVoxel,
	}

	data := stats.Float64Data(v.Data)
	if data.Len() > 0 {
		info.Median, _ = data.Median()
		info.StdDev, _ = data.StandardDeviation()
	}
	return info
}

func (i Info) String() string {
	return fmt.Sprintf("shape=%v dtype=%s min=%g max=%g mean=%.4g median=%g std=%.4g memory=%s",
		i.Shape, i.DType, i.Min, i.Max, i.Mean, i.Median, i.StdDev, humanize.Bytes(i.Bytes))
}
