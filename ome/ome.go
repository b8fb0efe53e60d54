// Package ome parses and generates the OME-XML metadata block embedded in
// the ImageDescription tag of OME-TIFF files.
//
// OME-XML describes the multi-dimensional layout of a microscopy image:
// axis sizes (X, Y, Z, C, T), the dimension ordering of planes in the file,
// and the physical size and units of a voxel. Only the subset of the schema
// needed to reconstruct a regular 3-D volume is handled here.
package ome

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// OME-XML errors
var (
	ErrNotOME  = errors.New("ome: image description is not OME-XML")
	ErrInvalid = errors.New("ome: invalid pixel metadata")
)

// Metadata holds the pixel-layout attributes of an OME image.
type Metadata struct {
	SizeX int
	SizeY int
	SizeZ int
	SizeC int
	SizeT int

	// DimensionOrder is the plane ordering in the file, e.g. "XYZCT".
	DimensionOrder string

	// BigEndian reports the declared sample byte order.
	BigEndian bool

	// PhysicalPixelSize is the per-axis voxel size. Axes without a
	// declared size default to 1.
	PhysicalPixelSize [3]float64

	// PhysicalPixelUnits is the per-axis unit string, default "um".
	PhysicalPixelUnits [3]string
}

type omeDocument struct {
	XMLName xml.Name `xml:"OME"`
	Image   struct {
		Pixels omePixels `xml:"Pixels"`
	} `xml:"Image"`
}

type omePixels struct {
	SizeX          int    `xml:"SizeX,attr"`
	SizeY          int    `xml:"SizeY,attr"`
	SizeZ          int    `xml:"SizeZ,attr"`
	SizeC          int    `xml:"SizeC,attr"`
	SizeT          int    `xml:"SizeT,attr"`
	DimensionOrder string `xml:"DimensionOrder,attr"`
	BigEndian      bool   `xml:"BigEndian,attr"`

	PhysicalSizeX     *float64 `xml:"PhysicalSizeX,attr"`
	PhysicalSizeY     *float64 `xml:"PhysicalSizeY,attr"`
	PhysicalSizeZ     *float64 `xml:"PhysicalSizeZ,attr"`
	PhysicalSizeXUnit string   `xml:"PhysicalSizeXUnit,attr"`
	PhysicalSizeYUnit string   `xml:"PhysicalSizeYUnit,attr"`
	PhysicalSizeZUnit string   `xml:"PhysicalSizeZUnit,attr"`
}

// Parse decodes an OME-XML document from an ImageDescription payload.
// The root element must be <OME>; anything else returns ErrNotOME.
func Parse(data []byte) (*Metadata, error) {
	// Some writers prepend a UTF-16 declaration to UTF-8 content, or pad
	// the description with trailing NULs.
	text := strings.TrimRight(string(data), "\x00")
	text = strings.Replace(text,
		`<?xml version="1.0" encoding="utf-16"?>`, "", 1)

	var doc omeDocument
	if err := xml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotOME, err)
	}

	p := doc.Image.Pixels
	m := &Metadata{
		SizeX:              p.SizeX,
		SizeY:              p.SizeY,
		SizeZ:              p.SizeZ,
		SizeC:              p.SizeC,
		SizeT:              p.SizeT,
		DimensionOrder:     p.DimensionOrder,
		BigEndian:          p.BigEndian,
		PhysicalPixelSize:  [3]float64{1, 1, 1},
		PhysicalPixelUnits: [3]string{"um", "um", "um"},
	}

	if p.PhysicalSizeX != nil {
		m.PhysicalPixelSize[0] = *p.PhysicalSizeX
	}
	if p.PhysicalSizeY != nil {
		m.PhysicalPixelSize[1] = *p.PhysicalSizeY
	}
	if p.PhysicalSizeZ != nil {
		m.PhysicalPixelSize[2] = *p.PhysicalSizeZ
	}
	if p.PhysicalSizeXUnit != "" {
		m.PhysicalPixelUnits[0] = p.PhysicalSizeXUnit
	}
	if p.PhysicalSizeYUnit != "" {
		m.PhysicalPixelUnits[1] = p.PhysicalSizeYUnit
	}
	if p.PhysicalSizeZUnit != "" {
		m.PhysicalPixelUnits[2] = p.PhysicalSizeZUnit
	}

	return m, nil
}

// Validate checks that the metadata describes a non-degenerate volume.
func (m *Metadata) Validate() error {
	if m.SizeX <= 0 || m.SizeY <= 0 || m.SizeZ <= 0 {
		return fmt.Errorf("%w: sizes %dx%dx%d", ErrInvalid,
			m.SizeX, m.SizeY, m.SizeZ)
	}
	for _, s := range m.PhysicalPixelSize {
		if s <= 0 {
			return fmt.Errorf("%w: non-positive physical pixel size", ErrInvalid)
		}
	}
	return nil
}

// XML renders the metadata as a minimal OME-XML document suitable for
// embedding in an ImageDescription tag.
func (m *Metadata) XML() string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<OME><Image><Pixels`)
	fmt.Fprintf(&b, ` SizeX="%d" SizeY="%d" SizeZ="%d" SizeC="%d" SizeT="%d"`,
		m.SizeX, m.SizeY, m.SizeZ, m.SizeC, m.SizeT)
	if m.DimensionOrder != "" {
		fmt.Fprintf(&b, ` DimensionOrder="%s"`, m.DimensionOrder)
	}
	fmt.Fprintf(&b, ` BigEndian="%t"`, m.BigEndian)
	fmt.Fprintf(&b, ` PhysicalSizeX="%g" PhysicalSizeY="%g" PhysicalSizeZ="%g"`,
		m.PhysicalPixelSize[0], m.PhysicalPixelSize[1], m.PhysicalPixelSize[2])
	fmt.Fprintf(&b, ` PhysicalSizeXUnit="%s" PhysicalSizeYUnit="%s" PhysicalSizeZUnit="%s"`,
		m.PhysicalPixelUnits[0], m.PhysicalPixelUnits[1], m.PhysicalPixelUnits[2])
	b.WriteString(`></Pixels></Image></OME>`)
	return b.String()
}
