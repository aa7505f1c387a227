package models

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Axis names one of the three volume axes
type Axis int

const (
	// AxisZ runs through the stack (depth)
	AxisZ Axis = iota
	// AxisY runs down a slice (height)
	AxisY
	// AxisX runs across a slice (width)
	AxisX
)

// String returns the lowercase axis letter
func (a Axis) String() string {
	switch a {
	case AxisZ:
		return "z"
	case AxisY:
		return "y"
	case AxisX:
		return "x"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// Slice is a single 2D grayscale plane cut from a volume
type Slice struct {
	// Data holds the plane in row-major order
	Data []float64

	// Width and Height are the plane dimensions in pixels
	Width, Height int
}

// NewSlice allocates a zeroed plane
func NewSlice(width, height int) *Slice {
	return &Slice{
		Data:   make([]float64, width*height),
		Width:  width,
		Height: height,
	}
}

// At returns the value at (x, y)
func (s *Slice) At(x, y int) float64 {
	return s.Data[y*s.Width+x]
}

// Set stores v at (x, y)
func (s *Slice) Set(x, y int, v float64) {
	s.Data[y*s.Width+x] = v
}

// Range returns the minimum and maximum of the plane
func (s *Slice) Range() (min, max float64) {
	if len(s.Data) == 0 {
		return 0, 0
	}
	return floats.Min(s.Data), floats.Max(s.Data)
}

// Volume is a stack of grayscale slices held in memory
type Volume struct {
	// Data is the 3D volume data as a 1D array in row-major order,
	// indexed z*Width*Height + y*Width + x
	Data []float64

	// Width is the width of the volume in voxels
	Width int

	// Height is the height of the volume in voxels
	Height int

	// Depth is the number of slices
	Depth int

	// DType records the sample type the volume was decoded from
	// ("uint8", "uint16" or "float64")
	DType string
}

// NewVolume allocates a zeroed float64 volume
func NewVolume(width, height, depth int) *Volume {
	return &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
		DType:  "float64",
	}
}

// Index returns the flat offset of voxel (x, y, z)
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the voxel value at (x, y, z)
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores val at (x, y, z)
func (v *Volume) Set(x, y, z int, val float64) {
	v.Data[v.Index(x, y, z)] = val
}

// Len returns the number of voxels
func (v *Volume) Len() int {
	return v.Width * v.Height * v.Depth
}

// Shape returns the dimensions in (depth, height, width) order
func (v *Volume) Shape() [3]int {
	return [3]int{v.Depth, v.Height, v.Width}
}

// SameShape reports whether o has the same dimensions as v
func (v *Volume) SameShape(o *Volume) bool {
	return v.Width == o.Width && v.Height == o.Height && v.Depth == o.Depth
}

// Clone returns a deep copy of the volume
func (v *Volume) Clone() *Volume {
	out := *v
	out.Data = make([]float64, len(v.Data))
	copy(out.Data, v.Data)
	return &out
}

// Like allocates a zeroed float64 volume with the same shape as v
func (v *Volume) Like() *Volume {
	return NewVolume(v.Width, v.Height, v.Depth)
}

// Stats returns the minimum, maximum and mean voxel value
func (v *Volume) Stats() (min, max, mean float64) {
	if len(v.Data) == 0 {
		return 0, 0, 0
	}
	return floats.Min(v.Data), floats.Max(v.Data), stat.Mean(v.Data, nil)
}

// Plane extracts the 2D plane at pos along axis. For AxisZ the plane is
// width x height, for AxisY width x depth and for AxisX depth x height.
func (v *Volume) Plane(axis Axis, pos int) (*Slice, error) {
	var s *Slice
	switch axis {
	case AxisZ:
		if pos < 0 || pos >= v.Depth {
			return nil, fmt.Errorf("z position %d outside [0,%d)", pos, v.Depth)
		}
		s = NewSlice(v.Width, v.Height)
		copy(s.Data, v.Data[pos*v.Width*v.Height:(pos+1)*v.Width*v.Height])

	case AxisY:
		if pos < 0 || pos >= v.Height {
			return nil, fmt.Errorf("y position %d outside [0,%d)", pos, v.Height)
		}
		s = NewSlice(v.Width, v.Depth)
		for z := 0; z < v.Depth; z++ {
			for x := 0; x < v.Width; x++ {
				s.Set(x, z, v.At(x, pos, z))
			}
		}

	case AxisX:
		if pos < 0 || pos >= v.Width {
			return nil, fmt.Errorf("x position %d outside [0,%d)", pos, v.Width)
		}
		s = NewSlice(v.Depth, v.Height)
		for y := 0; y < v.Height; y++ {
			for z := 0; z < v.Depth; z++ {
				s.Set(z, y, v.At(pos, y, z))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %v", axis)
	}
	return s, nil
}

// Mask is a binary volume produced by thresholding or cleanup
type Mask struct {
	// Data holds one flag per voxel in the same order as Volume.Data
	Data []bool

	// Width, Height, Depth are the dimensions of the mask
	Width, Height, Depth int
}

// NewMask allocates an empty mask
func NewMask(width, height, depth int) *Mask {
	return &Mask{
		Data:   make([]bool, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
}

// MaskLike allocates an empty mask shaped like v
func MaskLike(v *Volume) *Mask {
	return NewMask(v.Width, v.Height, v.Depth)
}

// Index returns the flat offset of voxel (x, y, z)
func (m *Mask) Index(x, y, z int) int {
	return z*m.Width*m.Height + y*m.Width + x
}

// At reports whether voxel (x, y, z) is set
func (m *Mask) At(x, y, z int) bool {
	return m.Data[m.Index(x, y, z)]
}

// Set sets or clears voxel (x, y, z)
func (m *Mask) Set(x, y, z int, on bool) {
	m.Data[m.Index(x, y, z)] = on
}

// Len returns the number of voxels
func (m *Mask) Len() int {
	return m.Width * m.Height * m.Depth
}

// Count returns the number of set voxels
func (m *Mask) Count() int {
	n := 0
	for _, on := range m.Data {
		if on {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the mask
func (m *Mask) Clone() *Mask {
	out := *m
	out.Data = make([]bool, len(m.Data))
	copy(out.Data, m.Data)
	return &out
}

// Equal reports whether both masks have the same shape and contents
func (m *Mask) Equal(o *Mask) bool {
	if m.Width != o.Width || m.Height != o.Height || m.Depth != o.Depth {
		return false
	}
	for i := range m.Data {
		if m.Data[i] != o.Data[i] {
			return false
		}
	}
	return true
}

// ToVolume converts the mask to a numeric volume with set voxels at on
// and clear voxels at zero
func (m *Mask) ToVolume(on float64) *Volume {
	v := NewVolume(m.Width, m.Height, m.Depth)
	for i, set := range m.Data {
		if set {
			v.Data[i] = on
		}
	}
	return v
}
