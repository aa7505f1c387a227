package models

import (
	"testing"
)

func TestVolumeIndexing(t *testing.T) {
	v := NewVolume(4, 3, 2)
	v.Set(3, 2, 1, 7)

	if got := v.Data[1*4*3+2*4+3]; got != 7 {
		t.Errorf("Expected 7 at flat index, got %f", got)
	}
	if v.At(3, 2, 1) != 7 {
		t.Errorf("At did not return stored value")
	}
	if shape := v.Shape(); shape != [3]int{2, 3, 4} {
		t.Errorf("Expected shape [2 3 4], got %v", shape)
	}
}

func TestVolumePlane(t *testing.T) {
	width, height, depth := 4, 3, 2
	v := NewVolume(width, height, depth)
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v.Set(x, y, z, float64(100*z+10*y+x))
			}
		}
	}

	tests := []struct {
		axis          Axis
		pos           int
		width, height int
		px, py        int
		want          float64
	}{
		{AxisZ, 1, width, height, 2, 1, 112},
		{AxisY, 2, width, depth, 3, 1, 123},
		{AxisX, 1, depth, height, 1, 2, 121},
	}

	for _, tc := range tests {
		s, err := v.Plane(tc.axis, tc.pos)
		if err != nil {
			t.Fatalf("Plane(%v, %d) failed: %v", tc.axis, tc.pos, err)
		}
		if s.Width != tc.width || s.Height != tc.height {
			t.Errorf("Plane(%v) dimensions %dx%d, expected %dx%d",
				tc.axis, s.Width, s.Height, tc.width, tc.height)
		}
		if got := s.At(tc.px, tc.py); got != tc.want {
			t.Errorf("Plane(%v) value at (%d,%d) = %f, expected %f",
				tc.axis, tc.px, tc.py, got, tc.want)
		}
	}

	if _, err := v.Plane(AxisZ, depth); err == nil {
		t.Error("Expected error for out of range position")
	}
}

func TestVolumeStatsAndClone(t *testing.T) {
	v := NewVolume(2, 2, 1)
	copy(v.Data, []float64{1, 2, 3, 6})

	min, max, mean := v.Stats()
	if min != 1 || max != 6 || mean != 3 {
		t.Errorf("Stats() = %f, %f, %f; expected 1, 6, 3", min, max, mean)
	}

	c := v.Clone()
	c.Data[0] = 100
	if v.Data[0] != 1 {
		t.Error("Clone shares data with the original")
	}
}

func TestMask(t *testing.T) {
	m := NewMask(3, 3, 3)
	m.Set(1, 1, 1, true)
	m.Set(0, 0, 2, true)

	if m.Count() != 2 {
		t.Errorf("Expected 2 set voxels, got %d", m.Count())
	}

	c := m.Clone()
	if !c.Equal(m) {
		t.Error("Clone should equal the original")
	}
	c.Set(2, 2, 2, true)
	if c.Equal(m) {
		t.Error("Modified clone should differ")
	}

	v := m.ToVolume(255)
	if v.At(1, 1, 1) != 255 || v.At(0, 1, 1) != 0 {
		t.Error("ToVolume produced unexpected values")
	}
}
