package volume

import (
	"errors"
	"testing"
)

func TestExtent(t *testing.T) {
	e := Extent{0, 9, 0, 19, 2, 6}
	if e.Dx() != 10 || e.Dy() != 20 || e.Dz() != 5 {
		t.Errorf("dims = %d/%d/%d, want 10/20/5", e.Dx(), e.Dy(), e.Dz())
	}
	if e.VoxelCount() != 1000 {
		t.Errorf("VoxelCount = %d, want 1000", e.VoxelCount())
	}
	if !e.IsValid() {
		t.Error("IsValid = false")
	}
	if (Extent{0, -1, 0, 0, 0, 0}).IsValid() {
		t.Error("degenerate extent reported valid")
	}
}

func TestPhysicalDimensions(t *testing.T) {
	v := New(Extent{0, 99, 0, 49, 0, 9})
	v.Spacing = [3]float64{0.5, 2, 1.5}
	got := v.PhysicalDimensions()
	want := [3]float64{50, 100, 15}
	if got != want {
		t.Errorf("PhysicalDimensions = %v, want %v", got, want)
	}
}

func TestAddArray(t *testing.T) {
	v := New(Extent{0, 3, 0, 3, 0, 0})
	if err := v.AddArray(NewArray("Scalars", Uint8, 1, 16)); err != nil {
		t.Fatal(err)
	}
	if v.Active() != "Scalars" {
		t.Errorf("first array not active: %q", v.Active())
	}

	if err := v.AddArray(NewArray("Short", Uint8, 1, 8)); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("wrong voxel count = %v, want ErrSizeMismatch", err)
	}
	if err := v.AddArray(NewArray("Scalars", Uint16, 1, 16)); !errors.Is(err, ErrNameCollision) {
		t.Errorf("duplicate name = %v, want ErrNameCollision", err)
	}

	if err := v.AddArray(NewArray("Second", Float32, 2, 16)); err != nil {
		t.Fatal(err)
	}
	if v.Active() != "Scalars" {
		t.Errorf("active changed by second add: %q", v.Active())
	}
	if got := v.ArrayNames(); len(got) != 2 || got[1] != "Second" {
		t.Errorf("ArrayNames = %v", got)
	}
}

func TestRename(t *testing.T) {
	v := New(Extent{0, 1, 0, 1, 0, 0})
	v.AddArray(NewArray("a", Uint8, 1, 4))
	v.AddArray(NewArray("b", Uint8, 1, 4))

	if err := v.Rename("a", "b"); !errors.Is(err, ErrNameCollision) {
		t.Errorf("rename onto taken name = %v, want ErrNameCollision", err)
	}
	if err := v.Rename("missing", "c"); !errors.Is(err, ErrNoSuchArray) {
		t.Errorf("rename of absent array = %v, want ErrNoSuchArray", err)
	}

	if err := v.Rename("a", "c"); err != nil {
		t.Fatal(err)
	}
	if v.HasArray("a") || !v.HasArray("c") {
		t.Errorf("names after rename = %v", v.ArrayNames())
	}
	// The active selection follows the rename.
	if v.Active() != "c" {
		t.Errorf("active = %q, want c", v.Active())
	}
}

func TestSetTypeTiltAngleLifecycle(t *testing.T) {
	v := New(Extent{0, 1, 0, 1, 0, 4})
	v.AddArray(NewArray("Scalars", Float32, 1, 20))

	if v.Type() != TypeVolume {
		t.Errorf("default type = %v, want Volume", v.Type())
	}
	if v.TiltAngles() != nil {
		t.Error("tilt angles present before SetType")
	}

	v.SetType(TypeTiltSeries)
	angles := v.TiltAngles()
	if len(angles) != 5 {
		t.Fatalf("tilt angles len = %d, want 5 (z extent)", len(angles))
	}
	for _, a := range angles {
		if a != 0 {
			t.Fatalf("tilt angles not zero-filled: %v", angles)
		}
	}

	v.SetTiltAnglesSpan(-60, 60)
	angles = v.TiltAngles()
	if angles[0] != -60 || angles[4] != 60 || angles[2] != 0 {
		t.Errorf("span = %v, want -60..60", angles)
	}

	// Re-tagging the same type keeps the angles.
	v.SetType(TypeTiltSeries)
	if got := v.TiltAngles(); got[0] != -60 {
		t.Errorf("angles lost on re-tag: %v", got)
	}

	v.SetType(TypeVolume)
	if v.TiltAngles() != nil {
		t.Error("tilt angles survive switch to Volume")
	}
}

func TestResizeTiltAngles(t *testing.T) {
	f := NewFieldData()
	f.SetTiltAngles([]float64{1, 2, 3})
	f.ResizeTiltAngles(5)
	if got := f.TiltAngles(); len(got) != 5 || got[1] != 2 || got[4] != 0 {
		t.Errorf("grown angles = %v", got)
	}
	f.ResizeTiltAngles(2)
	if got := f.TiltAngles(); len(got) != 2 || got[0] != 1 {
		t.Errorf("shrunk angles = %v", got)
	}
}

func TestDeepCopy(t *testing.T) {
	v := New(Extent{0, 1, 0, 0, 0, 0})
	a := NewArray("Scalars", Uint16, 1, 2)
	a.SetValue(0, 0, 100)
	v.AddArray(a)
	v.SetType(TypeTiltSeries)
	v.Field.SetUnits([3]string{"um", "um", "um"})

	cp := v.DeepCopy()
	cp.ActiveArray().SetValue(0, 0, 7)
	cp.TiltAngles()[0] = 42
	cp.Field.SetUnits([3]string{"mm", "mm", "mm"})

	if v.ActiveArray().Value(0, 0) != 100 {
		t.Error("sample data shared after DeepCopy")
	}
	if v.TiltAngles()[0] != 0 {
		t.Error("tilt angles shared after DeepCopy")
	}
	if v.Field.Units()[0] != "um" {
		t.Error("units shared after DeepCopy")
	}
	if cp.Active() != "Scalars" || cp.Type() != TypeTiltSeries {
		t.Error("copy dropped active selection or type tag")
	}
}

func TestArrayValues(t *testing.T) {
	for _, tc := range []struct {
		typ SampleType
		in  float64
	}{
		{Uint8, 200},
		{Int8, -5},
		{Uint16, 40000},
		{Int16, -12345},
		{Uint32, 3000000000},
		{Int32, -7},
		{Float32, 1.25},
		{Float64, -9.5},
	} {
		a := NewArray("t", tc.typ, 2, 3)
		a.SetValue(2, 1, tc.in)
		if got := a.Value(2, 1); got != tc.in {
			t.Errorf("%v: Value = %v, want %v", tc.typ, got, tc.in)
		}
		if got := a.Value(2, 0); got != 0 {
			t.Errorf("%v: neighbor component disturbed: %v", tc.typ, got)
		}
	}
}

func TestArrayFloat64s(t *testing.T) {
	a := NewArray("t", Int16, 1, 4)
	for i, v := range []float64{-2, 0, 5, 30000} {
		a.SetValue(i, 0, v)
	}
	got := a.Float64s(0)
	want := []float64{-2, 0, 5, 30000}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Float64s[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
