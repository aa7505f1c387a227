package morphology

import (
	"testing"

	"rockct3d/internal/models"
)

// fillBox sets every voxel of the half-open box [x0,x1)x[y0,y1)x[z0,z1)
func fillBox(m *models.Mask, x0, y0, z0, x1, y1, z1 int) {
	for z := z0; z < z1; z++ {
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				m.Set(x, y, z, true)
			}
		}
	}
}

// createHollowCube returns a mask with a closed shell and an empty interior
func createHollowCube() *models.Mask {
	m := models.NewMask(9, 9, 9)
	fillBox(m, 2, 2, 2, 7, 7, 7)
	for z := 3; z < 6; z++ {
		for y := 3; y < 6; y++ {
			for x := 3; x < 6; x++ {
				m.Set(x, y, z, false)
			}
		}
	}
	return m
}

func TestBackwardOffsets(t *testing.T) {
	for c, want := range map[Connectivity]int{Face: 3, Edge: 9, Vertex: 13} {
		if got := len(backwardOffsets(c)); got != want {
			t.Errorf("%v: expected %d backward offsets, got %d", c, want, got)
		}
	}
}

func TestLabel(t *testing.T) {
	m := models.NewMask(6, 6, 3)
	fillBox(m, 0, 0, 0, 2, 2, 2) // 8 voxels
	fillBox(m, 4, 4, 0, 6, 6, 1) // 4 voxels
	m.Set(2, 2, 2, true)         // touches the first box only at a corner

	labels, sizes, err := Label(m, Face)
	if err != nil {
		t.Fatal(err)
	}
	if len(sizes) != 4 {
		t.Fatalf("Expected 3 face-connected components, got %d", len(sizes)-1)
	}
	if sizes[labels[m.Index(0, 0, 0)]] != 8 {
		t.Errorf("Expected first box of 8 voxels, got %d", sizes[labels[m.Index(0, 0, 0)]])
	}
	if labels[m.Index(3, 3, 0)] != 0 {
		t.Errorf("Background voxel should have label 0")
	}

	labels, sizes, err = Label(m, Vertex)
	if err != nil {
		t.Fatal(err)
	}
	if len(sizes) != 3 {
		t.Fatalf("Expected 2 vertex-connected components, got %d", len(sizes)-1)
	}
	if labels[m.Index(2, 2, 2)] != labels[m.Index(1, 1, 1)] {
		t.Errorf("Corner-touching voxel should join the box under vertex connectivity")
	}

	if _, _, err := Label(m, Connectivity(5)); err == nil {
		t.Error("Expected error for invalid connectivity")
	}
}

func TestRemoveSmallObjects(t *testing.T) {
	m := models.NewMask(12, 12, 6)
	fillBox(m, 0, 0, 0, 2, 2, 2)  // 8 voxels, below the threshold
	fillBox(m, 5, 5, 1, 10, 10, 5) // 100 voxels, above it

	out, err := RemoveSmallObjects(m, 20, Face)
	if err != nil {
		t.Fatal(err)
	}
	if out.At(0, 0, 0) || out.At(1, 1, 1) {
		t.Error("Small component should have been removed")
	}
	if out.Count() != 100 {
		t.Errorf("Expected only the 100 voxel component to remain, got %d voxels", out.Count())
	}
	if m.Count() != 108 {
		t.Error("Input mask was modified")
	}
}

func TestFillHoles(t *testing.T) {
	m := createHollowCube()
	shell := m.Count()

	filled := FillHoles(m)
	if filled.Count() != shell+27 {
		t.Errorf("Expected %d voxels after filling, got %d", shell+27, filled.Count())
	}
	if !filled.At(4, 4, 4) {
		t.Error("Cavity centre should be filled")
	}
	if filled.At(0, 0, 0) {
		t.Error("Outside background must stay empty")
	}

	// A cavity opened to the outside is not a hole
	open := createHollowCube()
	open.Set(4, 4, 2, false)
	if FillHoles(open).At(4, 4, 4) {
		t.Error("Cavity connected to the border must not be filled")
	}
}

func TestFillHolesIdempotent(t *testing.T) {
	m := createHollowCube()
	m.Set(0, 0, 0, true)
	once := FillHoles(m)
	twice := FillHoles(once)
	if !once.Equal(twice) {
		t.Error("Filling holes twice should equal filling once")
	}
}

func TestClean(t *testing.T) {
	m := createHollowCube()
	fillBox(m, 0, 0, 8, 1, 1, 9) // single stray voxel

	out, st, err := Clean(m, CleanOptions{MinSize: 5, Connectivity: Face, FillHoles: true})
	if err != nil {
		t.Fatal(err)
	}
	if out.At(0, 0, 8) {
		t.Error("Stray voxel should have been removed")
	}
	if !out.At(4, 4, 4) {
		t.Error("Cavity should have been filled")
	}
	if st.Components != 2 || st.RemovedComponents != 1 || st.RemovedVoxels != 1 || st.FilledVoxels != 27 {
		t.Errorf("Unexpected stats %+v", st)
	}
	if out.Count() != 125 {
		t.Errorf("Expected a solid 5x5x5 cube, got %d voxels", out.Count())
	}
}

func TestCleanMatchesSteps(t *testing.T) {
	m := createHollowCube()
	fillBox(m, 0, 0, 0, 2, 2, 2) // 8 voxel corner blob
	fillBox(m, 8, 8, 8, 9, 9, 9) // stray voxel

	for _, opts := range []CleanOptions{
		{MinSize: 10, Connectivity: Vertex, FillHoles: true},
		{MinSize: 10, Connectivity: Face, FillHoles: false},
		{MinSize: 0, Connectivity: Edge, FillHoles: true},
	} {
		out, st, err := Clean(m, opts)
		if err != nil {
			t.Fatal(err)
		}

		want, err := RemoveSmallObjects(m, opts.MinSize, opts.Connectivity)
		if err != nil {
			t.Fatal(err)
		}
		if st.RemovedVoxels != m.Count()-want.Count() {
			t.Errorf("%+v: removed %d voxels, RemoveSmallObjects removed %d", opts, st.RemovedVoxels, m.Count()-want.Count())
		}
		if opts.FillHoles {
			want = FillHoles(want)
		}
		if !out.Equal(want) {
			t.Errorf("%+v: Clean differs from RemoveSmallObjects followed by FillHoles", opts)
		}
	}
}
