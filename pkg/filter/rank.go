package filter

import (
	"sort"

	"rockct3d/internal/models"
)

// reflectTable precomputes the reflected source coordinate of every
// (position, window offset) pair along an axis of length n
func reflectTable(n, size int) [][]int {
	before, _ := windowBounds(size)
	table := make([][]int, n)
	for i := range table {
		table[i] = make([]int, size)
		for k := 0; k < size; k++ {
			table[i][k] = reflectIndex(i+k-before, n)
		}
	}
	return table
}

// rankFilter replaces each voxel with the rank-th smallest value of the cubic
// window around it. Median, percentile and rank filters all reduce to this.
func rankFilter(v *models.Volume, size, rank int, workers int) (*models.Volume, error) {
	out := v.Like()
	if size == 1 {
		copy(out.Data, v.Data)
		return out, nil
	}

	xs := reflectTable(v.Width, size)
	ys := reflectTable(v.Height, size)
	zs := reflectTable(v.Depth, size)
	plane := v.Width * v.Height

	err := parallel(v.Depth, workers, func(lo, hi int) error {
		window := make([]float64, size*size*size)
		for z := lo; z < hi; z++ {
			for y := 0; y < v.Height; y++ {
				for x := 0; x < v.Width; x++ {
					k := 0
					for _, sz := range zs[z] {
						for _, sy := range ys[y] {
							row := sz*plane + sy*v.Width
							for _, sx := range xs[x] {
								window[k] = v.Data[row+sx]
								k++
							}
						}
					}
					sort.Float64s(window)
					out.Data[z*plane+y*v.Width+x] = window[rank]
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
