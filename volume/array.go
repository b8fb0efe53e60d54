package volume

import (
	"encoding/binary"
	"math"
)

// SampleType identifies the scalar type of a component array's samples.
// The set is closed: every array in a volume is one of these.
type SampleType uint8

const (
	Uint8 SampleType = iota
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Float32
	Float64
)

// Size returns the number of bytes per sample.
func (t SampleType) Size() int {
	switch t {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// Signed reports whether the sample type is a signed integer type.
func (t SampleType) Signed() bool {
	return t == Int8 || t == Int16 || t == Int32
}

// String returns the sample type name.
func (t SampleType) String() string {
	switch t {
	case Uint8:
		return "uint8"
	case Int8:
		return "int8"
	case Uint16:
		return "uint16"
	case Int16:
		return "int16"
	case Uint32:
		return "uint32"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// Array is a named flat buffer of typed samples with one or more
// components per voxel. Samples are stored little-endian regardless of
// the source file's byte order; decoders normalize on write.
type Array struct {
	name  string
	typ   SampleType
	comps int
	data  []byte
}

// NewArray allocates a zero-filled array for voxels voxels with comps
// components per voxel.
func NewArray(name string, typ SampleType, comps, voxels int) *Array {
	return &Array{
		name:  name,
		typ:   typ,
		comps: comps,
		data:  make([]byte, voxels*comps*typ.Size()),
	}
}

// NewArrayFromBytes wraps an existing sample buffer. The buffer length
// must be a whole number of voxels; no copy is made.
func NewArrayFromBytes(name string, typ SampleType, comps int, data []byte) *Array {
	return &Array{name: name, typ: typ, comps: comps, data: data}
}

// Name returns the array name.
func (a *Array) Name() string { return a.name }

// Type returns the sample type.
func (a *Array) Type() SampleType { return a.typ }

// Components returns the number of components per voxel.
func (a *Array) Components() int { return a.comps }

// Len returns the voxel count.
func (a *Array) Len() int {
	stride := a.comps * a.typ.Size()
	if stride == 0 {
		return 0
	}
	return len(a.data) / stride
}

// Bytes returns the raw sample buffer. Mutating it mutates the array.
func (a *Array) Bytes() []byte { return a.data }

// Clone returns an independent copy of the array.
func (a *Array) Clone() *Array {
	data := make([]byte, len(a.data))
	copy(data, a.data)
	return &Array{name: a.name, typ: a.typ, comps: a.comps, data: data}
}

// Value reads component c of voxel i converted to float64.
func (a *Array) Value(i, c int) float64 {
	off := (i*a.comps + c) * a.typ.Size()
	switch a.typ {
	case Uint8:
		return float64(a.data[off])
	case Int8:
		return float64(int8(a.data[off]))
	case Uint16:
		return float64(binary.LittleEndian.Uint16(a.data[off:]))
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(a.data[off:])))
	case Uint32:
		return float64(binary.LittleEndian.Uint32(a.data[off:]))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(a.data[off:])))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(a.data[off:])))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(a.data[off:]))
	default:
		return 0
	}
}

// SetValue writes component c of voxel i, converting from float64.
func (a *Array) SetValue(i, c int, v float64) {
	off := (i*a.comps + c) * a.typ.Size()
	switch a.typ {
	case Uint8:
		a.data[off] = byte(v)
	case Int8:
		a.data[off] = byte(int8(v))
	case Uint16:
		binary.LittleEndian.PutUint16(a.data[off:], uint16(v))
	case Int16:
		binary.LittleEndian.PutUint16(a.data[off:], uint16(int16(v)))
	case Uint32:
		binary.LittleEndian.PutUint32(a.data[off:], uint32(v))
	case Int32:
		binary.LittleEndian.PutUint32(a.data[off:], uint32(int32(v)))
	case Float32:
		binary.LittleEndian.PutUint32(a.data[off:], math.Float32bits(float32(v)))
	case Float64:
		binary.LittleEndian.PutUint64(a.data[off:], math.Float64bits(v))
	}
}

// Float64s extracts all samples of component c as a float64 slice.
// Used for range scans and statistics.
func (a *Array) Float64s(c int) []float64 {
	n := a.Len()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = a.Value(i, c)
	}
	return out
}
