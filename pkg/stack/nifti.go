package stack

import (
	"fmt"
	"strings"

	"github.com/henghuang/nifti"

	"rockct3d/internal/models"
)

// IsNIfTI reports whether path names a .nii or .nii.gz volume
func IsNIfTI(path string) bool {
	p := strings.ToLower(path)
	return strings.HasSuffix(p, ".nii") || strings.HasSuffix(p, ".nii.gz")
}

// ReadNIfTI loads the first time point of a NIfTI-1 volume. The nifti
// library panics on malformed input, so panics are turned into errors.
func ReadNIfTI(path string) (v *models.Volume, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("failed to decode %s: %v", path, panicErr)
		}
	}()

	var img nifti.Nifti1Image
	img.LoadImage(path, true)

	dims := img.GetDims()
	width, height, depth := dims[0], dims[1], dims[2]
	if depth < 1 {
		depth = 1
	}
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("%w: %s has dimensions %dx%dx%d", ErrNoPages, path, width, height, depth)
	}

	return fromGrid(width, height, depth, func(x, y, z int) float64 {
		return float64(img.GetAt(x, y, z, 0))
	}), nil
}

// fromGrid copies a voxel accessor into a float64 volume
func fromGrid(width, height, depth int, at func(x, y, z int) float64) *models.Volume {
	v := models.NewVolume(width, height, depth)
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v.Set(x, y, z, at(x, y, z))
			}
		}
	}
	return v
}
