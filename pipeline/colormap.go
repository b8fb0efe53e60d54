package pipeline

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mrjoshuak/go-tomostack/volume"
)

// ColorNode is one control point of a piecewise color transfer function.
type ColorNode struct {
	Value float64 `json:"value"`
	R     float64 `json:"r"`
	G     float64 `json:"g"`
	B     float64 `json:"b"`
}

// OpacityNode is one control point of a piecewise opacity function.
type OpacityNode struct {
	Value float64 `json:"value"`
	Alpha float64 `json:"alpha"`
}

// ColorOpacityMap is the combined color and scalar-opacity transfer
// function of a source.
type ColorOpacityMap struct {
	Colors    []ColorNode   `json:"colors,omitempty"`
	Opacities []OpacityNode `json:"points,omitempty"`
}

// Box2D is the 2-D transfer-function box. A negative width means the box
// has never been set.
type Box2D struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NewBox2D returns an unset box.
func NewBox2D() Box2D {
	return Box2D{Width: -1, Height: -1}
}

// IsSet reports whether the box has been assigned.
func (b Box2D) IsSet() bool { return b.Width >= 0 }

// ColorMapState is the full transfer-function state carried by a source.
type ColorMapState struct {
	ColorOpacity    ColorOpacityMap
	GradientOpacity []OpacityNode
	Box             Box2D
}

// NewColorMapState returns a default grayscale ramp over [0, 255].
func NewColorMapState() ColorMapState {
	return ColorMapState{
		ColorOpacity: ColorOpacityMap{
			Colors: []ColorNode{
				{Value: 0, R: 0, G: 0, B: 0},
				{Value: 255, R: 1, G: 1, B: 1},
			},
			Opacities: []OpacityNode{
				{Value: 0, Alpha: 0},
				{Value: 255, Alpha: 1},
			},
		},
		Box: NewBox2D(),
	}
}

// Clone returns an independent copy of the state.
func (s ColorMapState) Clone() ColorMapState {
	out := s
	out.ColorOpacity.Colors = append([]ColorNode(nil), s.ColorOpacity.Colors...)
	out.ColorOpacity.Opacities = append([]OpacityNode(nil), s.ColorOpacity.Opacities...)
	out.GradientOpacity = append([]OpacityNode(nil), s.GradientOpacity...)
	return out
}

// Rescale linearly remaps every control point onto [lo, hi], preserving
// the relative positions of the nodes.
func (s *ColorMapState) Rescale(lo, hi float64) {
	rescaleColors(s.ColorOpacity.Colors, lo, hi)
	rescaleOpacities(s.ColorOpacity.Opacities, lo, hi)
	rescaleOpacities(s.GradientOpacity, lo, hi)
}

// RescaleToArray rescales the transfer functions onto the value range of
// the array's first component. Empty arrays are left alone.
func (s *ColorMapState) RescaleToArray(a *volume.Array) {
	if a == nil || a.Len() == 0 {
		return
	}
	vals := a.Float64s(0)
	s.Rescale(floats.Min(vals), floats.Max(vals))
}

// AutoContrast sets the opacity ramp between two quantiles of the
// array's value distribution, clipping outliers at either end.
func (s *ColorMapState) AutoContrast(a *volume.Array, loQ, hiQ float64) {
	if a == nil || a.Len() == 0 {
		return
	}
	vals := a.Float64s(0)
	sort.Float64s(vals)
	lo := stat.Quantile(loQ, stat.Empirical, vals, nil)
	hi := stat.Quantile(hiQ, stat.Empirical, vals, nil)
	if hi <= lo {
		return
	}
	s.ColorOpacity.Opacities = []OpacityNode{
		{Value: lo, Alpha: 0},
		{Value: hi, Alpha: 1},
	}
	rescaleColors(s.ColorOpacity.Colors, lo, hi)
}

func rescaleColors(nodes []ColorNode, lo, hi float64) {
	n := len(nodes)
	if n == 0 {
		return
	}
	oldLo, oldHi := nodes[0].Value, nodes[n-1].Value
	for i := range nodes {
		nodes[i].Value = remap(nodes[i].Value, oldLo, oldHi, lo, hi)
	}
}

func rescaleOpacities(nodes []OpacityNode, lo, hi float64) {
	n := len(nodes)
	if n == 0 {
		return
	}
	oldLo, oldHi := nodes[0].Value, nodes[n-1].Value
	for i := range nodes {
		nodes[i].Value = remap(nodes[i].Value, oldLo, oldHi, lo, hi)
	}
}

func remap(v, oldLo, oldHi, lo, hi float64) float64 {
	if oldHi == oldLo {
		return lo
	}
	return lo + (v-oldLo)/(oldHi-oldLo)*(hi-lo)
}
