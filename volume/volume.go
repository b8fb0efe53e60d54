// Package volume provides the in-memory representation of a regular 3-D
// scalar dataset: a bounded extent of voxels, one or more named component
// arrays over that extent, physical spacing/origin/orientation, and the
// side-channel field data that travels with the dataset (type tag, tilt
// angles, units, subsample provenance).
package volume

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Volume errors
var (
	ErrSizeMismatch  = errors.New("volume: array voxel count does not match extent")
	ErrNoSuchArray   = errors.New("volume: no such component array")
	ErrNameCollision = errors.New("volume: component array name already taken")
)

// Extent is an inclusive integer bounding box of voxel indices:
// [x0, x1, y0, y1, z0, z1].
type Extent [6]int

// Dx returns the number of voxels along the x axis.
func (e Extent) Dx() int { return e[1] - e[0] + 1 }

// Dy returns the number of voxels along the y axis.
func (e Extent) Dy() int { return e[3] - e[2] + 1 }

// Dz returns the number of voxels along the z axis.
func (e Extent) Dz() int { return e[5] - e[4] + 1 }

// VoxelCount returns the total number of voxels in the extent.
func (e Extent) VoxelCount() int {
	return e.Dx() * e.Dy() * e.Dz()
}

// IsValid reports whether the extent is non-degenerate.
func (e Extent) IsValid() bool {
	return e.Dx() > 0 && e.Dy() > 0 && e.Dz() > 0
}

// Volume is a regular 3-D array of scalar samples with one or more named
// component arrays sharing the same voxel count. Exactly one array is
// active at a time (or none, when the volume holds no arrays).
type Volume struct {
	// Extent defines the voxel index bounds along each axis.
	Extent Extent

	// Spacing is the physical size of a voxel along each axis.
	Spacing [3]float64

	// Origin is the physical position of voxel (x0, y0, z0).
	Origin [3]float64

	// Orientation holds informational rotation angles in degrees.
	Orientation [3]float64

	// Field carries the dataset's side-channel metadata.
	Field FieldData

	arrays []*Array
	active string
}

// New creates an empty volume over the given extent with unit spacing.
func New(extent Extent) *Volume {
	return &Volume{
		Extent:  extent,
		Spacing: [3]float64{1, 1, 1},
		Field:   NewFieldData(),
	}
}

// PhysicalDimensions returns the physical length of the volume along each
// axis: spacing times voxel count.
func (v *Volume) PhysicalDimensions() [3]float64 {
	var lengths [3]float64
	for axis := 0; axis < 3; axis++ {
		n := v.Extent[2*axis+1] - v.Extent[2*axis] + 1
		lengths[axis] = v.Spacing[axis] * float64(n)
	}
	return lengths
}

// AddArray attaches a component array to the volume. The array's voxel
// count must match the extent. The first array added becomes active.
func (v *Volume) AddArray(a *Array) error {
	if a.Len() != v.Extent.VoxelCount() {
		return fmt.Errorf("%w: %d voxels, extent wants %d",
			ErrSizeMismatch, a.Len(), v.Extent.VoxelCount())
	}
	if v.HasArray(a.Name()) {
		return fmt.Errorf("%w: %q", ErrNameCollision, a.Name())
	}
	v.arrays = append(v.arrays, a)
	if v.active == "" {
		v.active = a.Name()
	}
	return nil
}

// Array returns the named component array, or nil if absent.
func (v *Volume) Array(name string) *Array {
	for _, a := range v.arrays {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

// HasArray reports whether a component array with the given name exists.
func (v *Volume) HasArray(name string) bool {
	return v.Array(name) != nil
}

// ArrayNames returns the component array names in insertion order.
func (v *Volume) ArrayNames() []string {
	names := make([]string, len(v.arrays))
	for i, a := range v.arrays {
		names[i] = a.Name()
	}
	return names
}

// NumArrays returns the number of component arrays.
func (v *Volume) NumArrays() int {
	return len(v.arrays)
}

// Active returns the active component array name, or "" when the volume
// holds no arrays.
func (v *Volume) Active() string {
	return v.active
}

// ActiveArray returns the active component array, or nil.
func (v *Volume) ActiveArray() *Array {
	if v.active == "" {
		return nil
	}
	return v.Array(v.active)
}

// SetActive marks the named array active. The name must exist.
func (v *Volume) SetActive(name string) error {
	if !v.HasArray(name) {
		return fmt.Errorf("%w: %q", ErrNoSuchArray, name)
	}
	v.active = name
	return nil
}

// EnsureActive makes the first array active if no active array is set.
func (v *Volume) EnsureActive() {
	if v.active == "" && len(v.arrays) > 0 {
		v.active = v.arrays[0].Name()
	}
}

// Rename changes a component array's name. It fails if the old name does
// not exist or the new name is already taken. The active selection follows
// the rename.
func (v *Volume) Rename(oldName, newName string) error {
	if oldName == newName {
		return nil
	}
	a := v.Array(oldName)
	if a == nil {
		return fmt.Errorf("%w: %q", ErrNoSuchArray, oldName)
	}
	if v.HasArray(newName) {
		return fmt.Errorf("%w: %q", ErrNameCollision, newName)
	}
	a.name = newName
	if v.active == oldName {
		v.active = newName
	}
	return nil
}

// DeepCopy returns an independent copy of the volume, its component
// arrays, and its field data.
func (v *Volume) DeepCopy() *Volume {
	out := &Volume{
		Extent:      v.Extent,
		Spacing:     v.Spacing,
		Origin:      v.Origin,
		Orientation: v.Orientation,
		Field:       v.Field.Clone(),
		active:      v.active,
	}
	out.arrays = make([]*Array, len(v.arrays))
	for i, a := range v.arrays {
		out.arrays[i] = a.Clone()
	}
	return out
}

// SetExtent replaces the volume's extent. Component arrays are not
// resized; callers growing a volume must swap in matching arrays.
func (v *Volume) SetExtent(extent Extent) {
	v.Extent = extent
}

// ReplaceArray swaps the named array's storage for a new array of the
// same name. Used by grow-and-copy operations so the old buffer survives
// until the new one is fully built.
func (v *Volume) ReplaceArray(a *Array) error {
	for i, old := range v.arrays {
		if old.Name() == a.Name() {
			v.arrays[i] = a
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrNoSuchArray, a.Name())
}

// Type returns the dataset type recorded in the field data, defaulting
// to TypeVolume when no tag is present.
func (v *Volume) Type() DataSourceType {
	return v.Field.DataSourceType()
}

// SetType stamps the dataset type tag into the field data. Switching away
// from TypeTiltSeries clears any tilt-angle metadata; switching to it
// ensures a correctly sized tilt-angle array exists.
func (v *Volume) SetType(t DataSourceType) {
	v.Field.SetDataSourceType(t)
	if t != TypeTiltSeries {
		v.Field.ClearTiltAngles()
	} else {
		v.EnsureTiltAngles()
	}
}

// TiltAngles returns the tilt-angle array, or nil if absent.
func (v *Volume) TiltAngles() []float64 {
	return v.Field.TiltAngles()
}

// SetTiltAngles stores tilt angles, first ensuring the array is sized to
// the z extent. Extra input values are ignored; missing ones stay zero.
func (v *Volume) SetTiltAngles(angles []float64) {
	v.EnsureTiltAngles()
	dst := v.Field.TiltAngles()
	for i := 0; i < len(dst) && i < len(angles); i++ {
		dst[i] = angles[i]
	}
}

// SetTiltAnglesSpan fills the tilt-angle array with evenly spaced values
// from start to stop inclusive, the common acquisition pattern for a
// tomography tilt series.
func (v *Volume) SetTiltAnglesSpan(start, stop float64) {
	v.EnsureTiltAngles()
	angles := v.Field.TiltAngles()
	if len(angles) == 1 {
		angles[0] = start
		return
	}
	floats.Span(angles, start, stop)
}

// EnsureTiltAngles creates a zero-filled tilt-angle array sized to the z
// extent, or resizes an existing one preserving current values and
// zero-filling new slots.
func (v *Volume) EnsureTiltAngles() {
	v.Field.ResizeTiltAngles(v.Extent.Dz())
}
