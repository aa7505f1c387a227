// Package morphology cleans binary volumes: it removes connected components
// below a size threshold and fills background regions enclosed by foreground.
package morphology

import (
	"fmt"

	"github.com/theodesp/unionfind"

	"rockct3d/internal/models"
)

// Connectivity selects which neighbours are adjacent in 3D
type Connectivity int

const (
	// Face connects the 6 voxels sharing a face
	Face Connectivity = 1
	// Edge also connects the 12 voxels sharing an edge (18 in total)
	Edge Connectivity = 2
	// Vertex connects all 26 surrounding voxels
	Vertex Connectivity = 3
)

// String returns the neighbourhood size of the connectivity
func (c Connectivity) String() string {
	switch c {
	case Face:
		return "6-connected"
	case Edge:
		return "18-connected"
	case Vertex:
		return "26-connected"
	}
	return fmt.Sprintf("connectivity(%d)", int(c))
}

type offset struct{ dx, dy, dz int }

// backwardOffsets lists the neighbours that precede a voxel in raster order
// for the given connectivity. Visiting only these during one forward sweep
// sees every adjacent pair exactly once.
func backwardOffsets(c Connectivity) []offset {
	var out []offset
	for dz := -1; dz <= 0; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				// keep only offsets strictly before (0,0,0) in z,y,x order
				if dz == 0 && (dy > 0 || (dy == 0 && dx >= 0)) {
					continue
				}
				order := abs(dx) + abs(dy) + abs(dz)
				if order <= int(c) {
					out = append(out, offset{dx, dy, dz})
				}
			}
		}
	}
	return out
}

func abs(a int) int {
	if a < 0 {
		return -a
	}
	return a
}

// Label assigns a positive label to every connected foreground component.
// labels holds one entry per voxel (0 for background) and sizes[l] is the
// voxel count of label l; sizes[0] is always zero.
func Label(m *models.Mask, c Connectivity) (labels []int32, sizes []int, err error) {
	if c < Face || c > Vertex {
		return nil, nil, fmt.Errorf("invalid connectivity %d", int(c))
	}

	n := m.Len()
	uf := unionfind.New(n)
	offsets := backwardOffsets(c)

	// First pass: join every foreground voxel with its earlier neighbours
	for z := 0; z < m.Depth; z++ {
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				idx := m.Index(x, y, z)
				if !m.Data[idx] {
					continue
				}
				for _, o := range offsets {
					nx, ny, nz := x+o.dx, y+o.dy, z+o.dz
					if nx < 0 || ny < 0 || nz < 0 || nx >= m.Width || ny >= m.Height {
						continue
					}
					nidx := m.Index(nx, ny, nz)
					if m.Data[nidx] {
						uf.Union(idx, nidx)
					}
				}
			}
		}
	}

	// Second pass: turn union-find roots into consecutive labels
	labels = make([]int32, n)
	rootLabel := make(map[int]int32)
	sizes = []int{0}
	for idx, on := range m.Data {
		if !on {
			continue
		}
		root := uf.Root(idx)
		label, ok := rootLabel[root]
		if !ok {
			label = int32(len(sizes))
			rootLabel[root] = label
			sizes = append(sizes, 0)
		}
		labels[idx] = label
		sizes[label]++
	}

	return labels, sizes, nil
}
