package morphology

import (
	"rockct3d/internal/models"
)

// RemoveSmallObjects returns a copy of m without the connected components
// that have fewer than minSize voxels
func RemoveSmallObjects(m *models.Mask, minSize int, c Connectivity) (*models.Mask, error) {
	out := m.Clone()
	if minSize <= 1 {
		return out, nil
	}

	labels, sizes, err := Label(m, c)
	if err != nil {
		return nil, err
	}
	for idx, label := range labels {
		if label != 0 && sizes[label] < minSize {
			out.Data[idx] = false
		}
	}
	return out, nil
}

// FillHoles returns a copy of m in which every background region that does
// not touch the volume border is set. Background regions are face-connected,
// so background meeting only along a diagonal does not join.
func FillHoles(m *models.Mask) *models.Mask {
	inverse := m.Clone()
	for i, on := range inverse.Data {
		inverse.Data[i] = !on
	}

	// Face connectivity is always valid, so Label cannot fail here
	labels, sizes, _ := Label(inverse, Face)

	open := make([]bool, len(sizes))
	for z := 0; z < m.Depth; z++ {
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				if x != 0 && y != 0 && z != 0 && x != m.Width-1 && y != m.Height-1 && z != m.Depth-1 {
					continue
				}
				open[labels[m.Index(x, y, z)]] = true
			}
		}
	}

	out := m.Clone()
	for idx, label := range labels {
		if label != 0 && !open[label] {
			out.Data[idx] = true
		}
	}
	return out
}

// CleanOptions configures Clean
type CleanOptions struct {
	// MinSize is the smallest component kept, in voxels
	MinSize int
	// Connectivity used to find foreground components
	Connectivity Connectivity
	// FillHoles enables the hole filling step
	FillHoles bool
}

// Stats summarises what Clean changed
type Stats struct {
	Components        int
	RemovedComponents int
	RemovedVoxels     int
	FilledVoxels      int
}

// Clean removes small objects and then fills holes, in that order
func Clean(m *models.Mask, opts CleanOptions) (*models.Mask, Stats, error) {
	var st Stats

	_, sizes, err := Label(m, opts.Connectivity)
	if err != nil {
		return nil, st, err
	}
	st.Components = len(sizes) - 1
	for _, size := range sizes[1:] {
		if size < opts.MinSize {
			st.RemovedComponents++
		}
	}

	out, err := RemoveSmallObjects(m, opts.MinSize, opts.Connectivity)
	if err != nil {
		return nil, st, err
	}
	st.RemovedVoxels = m.Count() - out.Count()

	if opts.FillHoles {
		before := out.Count()
		out = FillHoles(out)
		st.FilledVoxels = out.Count() - before
	}

	return out, st, nil
}
