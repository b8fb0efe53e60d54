package volume

// Field-data tag names. These travel with the dataset across copies and
// serialization, independent of per-voxel scalar data.
const (
	TagDataSourceType        = "tomviz_data_source_type"
	TagTiltAngles            = "tilt_angles"
	TagUnits                 = "units"
	TagWasSubsampled         = "was_subsampled"
	TagSubsampleStrides      = "subsample_strides"
	TagSubsampleVolumeBounds = "subsample_volume_bounds"
)

// DataSourceType tags how a dataset should be interpreted.
type DataSourceType int8

const (
	// TypeVolume is a plain reconstructed or acquired volume.
	TypeVolume DataSourceType = 0
	// TypeTiltSeries is a stack of projection images at different tilt
	// angles; it carries a tilt_angles array sized to the z extent.
	TypeTiltSeries DataSourceType = 1
	// TypeFIB is a focused-ion-beam slice stack.
	TypeFIB DataSourceType = 2
)

// String returns the dataset type name.
func (t DataSourceType) String() string {
	switch t {
	case TypeVolume:
		return "Volume"
	case TypeTiltSeries:
		return "TiltSeries"
	case TypeFIB:
		return "FIB"
	default:
		return "Unknown"
	}
}

// ParseDataSourceType maps a type name back to its tag value.
func ParseDataSourceType(s string) (DataSourceType, bool) {
	switch s {
	case "Volume":
		return TypeVolume, true
	case "TiltSeries":
		return TypeTiltSeries, true
	case "FIB":
		return TypeFIB, true
	default:
		return TypeVolume, false
	}
}

// FieldData is the typed side-channel metadata attached to a volume.
// Entries are addressed by tag name; absent entries report defaults.
type FieldData struct {
	entries map[string]any
}

// NewFieldData creates empty field data.
func NewFieldData() FieldData {
	return FieldData{entries: make(map[string]any)}
}

// Has reports whether the named entry exists.
func (f FieldData) Has(name string) bool {
	_, ok := f.entries[name]
	return ok
}

// Remove deletes the named entry if present.
func (f FieldData) Remove(name string) {
	delete(f.entries, name)
}

// Clone returns an independent copy of the field data.
func (f FieldData) Clone() FieldData {
	out := NewFieldData()
	for k, v := range f.entries {
		switch val := v.(type) {
		case []float64:
			cp := make([]float64, len(val))
			copy(cp, val)
			out.entries[k] = cp
		default:
			out.entries[k] = v
		}
	}
	return out
}

// DataSourceType returns the dataset type tag, defaulting to TypeVolume.
func (f FieldData) DataSourceType() DataSourceType {
	if v, ok := f.entries[TagDataSourceType].(DataSourceType); ok {
		return v
	}
	return TypeVolume
}

// SetDataSourceType stores the dataset type tag.
func (f FieldData) SetDataSourceType(t DataSourceType) {
	f.entries[TagDataSourceType] = t
}

// HasDataSourceType reports whether a type tag has been stamped.
func (f FieldData) HasDataSourceType() bool {
	return f.Has(TagDataSourceType)
}

// TiltAngles returns the tilt-angle array, or nil if absent. The returned
// slice aliases the stored array.
func (f FieldData) TiltAngles() []float64 {
	if v, ok := f.entries[TagTiltAngles].([]float64); ok {
		return v
	}
	return nil
}

// SetTiltAngles stores a tilt-angle array, replacing any existing one.
func (f FieldData) SetTiltAngles(angles []float64) {
	f.entries[TagTiltAngles] = angles
}

// ClearTiltAngles removes the tilt-angle array.
func (f FieldData) ClearTiltAngles() {
	delete(f.entries, TagTiltAngles)
}

// ResizeTiltAngles creates a zero-filled tilt-angle array of length n, or
// resizes an existing one preserving current values and zero-filling any
// new slots.
func (f FieldData) ResizeTiltAngles(n int) {
	cur := f.TiltAngles()
	if cur == nil {
		f.entries[TagTiltAngles] = make([]float64, n)
		return
	}
	if len(cur) == n {
		return
	}
	resized := make([]float64, n)
	copy(resized, cur)
	f.entries[TagTiltAngles] = resized
}

// Units returns the per-axis unit strings, defaulting to "nm".
func (f FieldData) Units() [3]string {
	if v, ok := f.entries[TagUnits].([3]string); ok {
		return v
	}
	return [3]string{"nm", "nm", "nm"}
}

// SetUnits stores the per-axis unit strings.
func (f FieldData) SetUnits(units [3]string) {
	f.entries[TagUnits] = units
}

// HasUnits reports whether units have been explicitly stored.
func (f FieldData) HasUnits() bool {
	return f.Has(TagUnits)
}

// WasSubsampled reports whether the dataset was produced by subsampling.
func (f FieldData) WasSubsampled() bool {
	if v, ok := f.entries[TagWasSubsampled].(bool); ok {
		return v
	}
	return false
}

// SetWasSubsampled stores the subsample flag.
func (f FieldData) SetWasSubsampled(b bool) {
	f.entries[TagWasSubsampled] = b
}

// SubsampleStrides returns the subsample strides, defaulting to ones.
func (f FieldData) SubsampleStrides() [3]int32 {
	if v, ok := f.entries[TagSubsampleStrides].([3]int32); ok {
		return v
	}
	return [3]int32{1, 1, 1}
}

// SetSubsampleStrides stores the subsample strides.
func (f FieldData) SetSubsampleStrides(s [3]int32) {
	f.entries[TagSubsampleStrides] = s
}

// SubsampleVolumeBounds returns the source-volume bounds of a subsampled
// dataset, defaulting to all -1 when absent.
func (f FieldData) SubsampleVolumeBounds() [6]int32 {
	if v, ok := f.entries[TagSubsampleVolumeBounds].([6]int32); ok {
		return v
	}
	return [6]int32{-1, -1, -1, -1, -1, -1}
}

// SetSubsampleVolumeBounds stores the source-volume bounds.
func (f FieldData) SetSubsampleVolumeBounds(b [6]int32) {
	f.entries[TagSubsampleVolumeBounds] = b
}
