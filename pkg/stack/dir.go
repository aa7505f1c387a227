package stack

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"

	"rockct3d/internal/models"
)

var sliceExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true, ".bmp": true, ".gif": true, ".dcm": true,
}

// LoadDir loads a directory of 2D slices as a volume. Files are ordered by the
// number embedded in their name, so slice_2 comes before slice_10.
func LoadDir(dir string) (*models.Volume, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var imageFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if sliceExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			imageFiles = append(imageFiles, entry.Name())
		}
	}
	if len(imageFiles) == 0 {
		return nil, fmt.Errorf("%w: no slice images found in %s", ErrNoPages, dir)
	}

	sort.SliceStable(imageFiles, func(i, j int) bool {
		numI, numJ := extractNumber(imageFiles[i]), extractNumber(imageFiles[j])
		if numI != numJ {
			return numI < numJ
		}
		return imageFiles[i] < imageFiles[j]
	})

	slices := make([]image.Image, 0, len(imageFiles))
	for _, filename := range imageFiles {
		path := filepath.Join(dir, filename)
		if strings.EqualFold(filepath.Ext(filename), ".dcm") {
			frames, err := loadDICOM(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load dicom %s: %w", filename, err)
			}
			slices = append(slices, frames...)
			continue
		}
		img, err := loadImage(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", filename, err)
		}
		slices = append(slices, img)
	}

	return fromImages(slices)
}

// extractNumber returns the digits of the file name read as one number, or 0
func extractNumber(filename string) int {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	var digits strings.Builder
	for _, c := range base {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}

	if digits.Len() > 0 {
		if num, err := strconv.Atoi(digits.String()); err == nil {
			return num
		}
	}
	return 0
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	return img, err
}

func loadDICOM(path string) ([]image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeDICOM(data)
}
