package tiff

import (
	"encoding/binary"
	"fmt"

	"github.com/mrjoshuak/go-tomostack/volume"
)

// DefaultArrayName is the component array name given to decoded scalars.
const DefaultArrayName = "Scalars"

// DecodeVolume decodes the whole file into a volume: geometry from the
// OME metadata, one component array holding the decoded samples, spacing
// and units copied from the physical pixel size.
func (f *File) DecodeVolume() (*volume.Volume, error) {
	m, err := f.OME()
	if err != nil {
		return nil, err
	}
	st, err := f.SampleType()
	if err != nil {
		return nil, err
	}

	depth := f.NumPages()
	if depth < m.SizeZ {
		depth = m.SizeZ
	}
	ext := volume.Extent{0, f.primary[0].Width - 1, 0, f.primary[0].Height - 1, 0, depth - 1}
	comps := f.NumComponents()

	arr := volume.NewArray(DefaultArrayName, st, comps, ext.VoxelCount())
	if err := f.Decode(arr, ext); err != nil {
		return nil, err
	}

	vol := volume.New(ext)
	vol.Spacing = m.PhysicalPixelSize
	vol.Field.SetUnits(m.PhysicalPixelUnits)
	if err := vol.AddArray(arr); err != nil {
		return nil, err
	}
	return vol, nil
}

// Decode decodes the file's pixel data into dst, whose type and component
// count must match the file. Multi-page and tiled files require the full
// extent; single images honor x/y sub-extents.
//
// Layout dispatch, in priority order: tiled images (which may span many
// pages), multi-page strip volumes, the 2-samples-per-pixel vendor
// layout, then generic single images.
func (f *File) Decode(dst *volume.Array, ext volume.Extent) error {
	st, err := f.SampleType()
	if err != nil {
		return err
	}
	if dst.Type() != st || dst.Components() != f.NumComponents() {
		return fmt.Errorf("%w: destination array is %v x%d, file wants %v x%d",
			ErrExtent, dst.Type(), dst.Components(), st, f.NumComponents())
	}
	if dst.Len() != ext.VoxelCount() {
		return fmt.Errorf("%w: destination holds %d voxels, extent wants %d",
			ErrExtent, dst.Len(), ext.VoxelCount())
	}

	p := f.primary[0]
	switch {
	case p.Tiled():
		if !f.fullExtent(ext) {
			return fmt.Errorf("%w: tiled decode requires the full extent", ErrExtent)
		}
		return f.readTiles(dst, st)
	case f.NumPages() > 1:
		if !f.fullExtent(ext) {
			return fmt.Errorf("%w: multi-page decode requires the full extent", ErrExtent)
		}
		return f.readPages(dst, st)
	case p.SamplesPerPixel == 2:
		return f.readTwoSamplesPerPixel(p, dst.Bytes(), st)
	case !f.CanRead():
		return f.readRGBAFallback(p, dst.Bytes(), st, ext)
	default:
		return f.readGenericImage(p, dst.Bytes(), st, ext)
	}
}

func (f *File) fullExtent(ext volume.Extent) bool {
	p := f.primary[0]
	return ext[0] == 0 && ext[1] == p.Width-1 && ext[2] == 0 && ext[3] == p.Height-1
}

// readPages decodes a multi-page volume, one primary page per z slice.
// Pages the structured decoder cannot handle fall back to RGBA.
func (f *File) readPages(dst *volume.Array, st volume.SampleType) error {
	p := f.primary[0]
	comps := f.NumComponents()
	sliceBytes := p.Width * p.Height * comps * st.Size()
	full := volume.Extent{0, p.Width - 1, 0, p.Height - 1, 0, 0}

	for slice := 0; slice < f.NumPages(); slice++ {
		page := f.primary[slice]
		out := dst.Bytes()[slice*sliceBytes : (slice+1)*sliceBytes]
		var err error
		switch {
		case page.SamplesPerPixel == 2:
			err = f.readTwoSamplesPerPixel(page, out, st)
		case !f.CanRead():
			err = f.readRGBASlice(page, out, st)
		default:
			err = f.readGenericImage(page, out, st, full)
		}
		if err != nil {
			return fmt.Errorf("slice %d: %w", slice, err)
		}
	}
	return nil
}

// scanlines reads decoded scanlines of one page, caching the most
// recently decompressed strip. Compressed multi-row strips cannot be
// entered mid-stream, so a request inside a strip always decodes the
// whole strip and preceding rows are paid for whether used or not.
type scanlines struct {
	f          *File
	p          *Page
	sampleSize int
	rowBytes   int // bytes per scanline within one plane

	stripIdx int
	strip    []byte
}

func (f *File) newScanlines(p *Page, st volume.SampleType) *scanlines {
	size := st.Size()
	rowSamples := p.Width
	if p.PlanarConfig == PlanarContig {
		rowSamples *= p.SamplesPerPixel
	}
	return &scanlines{
		f:          f,
		p:          p,
		sampleSize: size,
		rowBytes:   rowSamples * size,
		stripIdx:   -1,
	}
}

// row returns the decoded bytes of one scanline of one plane.
func (s *scanlines) row(row, plane int) ([]byte, error) {
	p := s.p
	stripsPerPlane := (p.Height + p.RowsPerStrip - 1) / p.RowsPerStrip
	idx := plane*stripsPerPlane + row/p.RowsPerStrip
	if idx != s.stripIdx {
		if idx >= len(p.StripOffsets) || idx >= len(p.StripByteCounts) {
			return nil, fmt.Errorf("%w: strip %d out of range", ErrRead, idx)
		}
		off, n := p.StripOffsets[idx], p.StripByteCounts[idx]
		if off < 0 || n < 0 || off+n > int64(len(s.f.data)) {
			return nil, fmt.Errorf("%w: strip %d outside file", ErrRead, idx)
		}
		rows := p.RowsPerStrip
		if last := (row/p.RowsPerStrip)*p.RowsPerStrip + rows; last > p.Height {
			rows = p.Height - (row/p.RowsPerStrip)*p.RowsPerStrip
		}
		strip, err := s.f.decodeSegment(p, s.f.data[off:off+n],
			rows*s.rowBytes, s.rowBytes, s.sampleSize)
		if err != nil {
			return nil, fmt.Errorf("strip %d: %w", idx, err)
		}
		s.strip, s.stripIdx = strip, idx
	}
	inStrip := row % p.RowsPerStrip
	return s.strip[inStrip*s.rowBytes : (inStrip+1)*s.rowBytes], nil
}

// getSample reads sample idx from a little-endian buffer.
func getSample(buf []byte, idx, size int) uint32 {
	off := idx * size
	switch size {
	case 1:
		return uint32(buf[off])
	case 2:
		return uint32(binary.LittleEndian.Uint16(buf[off:]))
	default:
		return binary.LittleEndian.Uint32(buf[off:])
	}
}

// putSample writes sample idx of a little-endian buffer.
func putSample(buf []byte, idx, size int, v uint32) {
	off := idx * size
	switch size {
	case 1:
		buf[off] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf[off:], uint16(v))
	default:
		binary.LittleEndian.PutUint32(buf[off:], v)
	}
}

// evaluatePixel converts one source pixel into output samples and returns
// the number of output samples written.
//
// Grayscale min-is-white inversion and palette-grayscale expansion write
// only the low byte of wide samples, matching the byte-level arithmetic
// decoders of this format have always used.
func (f *File) evaluatePixel(p *Page, format Format, dst []byte, di int, src []byte, si, size int) int {
	switch format {
	case FormatGrayscale:
		if p.Photometric == PhotometricMinIsBlack {
			putSample(dst, di, size, getSample(src, si, size))
		} else {
			dst[di*size] = ^src[si*size]
		}
		return 1
	case FormatPaletteGrayscale:
		red, _, _ := p.color(int(src[si*size]))
		dst[di*size] = byte(red)
		return 1
	case FormatRGB:
		putSample(dst, di, size, getSample(src, si, size))
		putSample(dst, di+1, size, getSample(src, si+1, size))
		putSample(dst, di+2, size, getSample(src, si+2, size))
		if p.SamplesPerPixel == 4 {
			putSample(dst, di+3, size, uint32(255-byte(getSample(src, si+3, size))))
		}
		return p.SamplesPerPixel
	case FormatPaletteRGB:
		red, green, blue := p.color(int(getSample(src, si, size)))
		if size == 2 {
			putSample(dst, di, size, uint32(red)<<8)
			putSample(dst, di+1, size, uint32(green)<<8)
			putSample(dst, di+2, size, uint32(blue)<<8)
		} else {
			putSample(dst, di, size, uint32(red)>>8)
			putSample(dst, di+1, size, uint32(green)>>8)
			putSample(dst, di+2, size, uint32(blue)>>8)
		}
		return 3
	default:
		return 0
	}
}

// readGenericImage decodes a single grayscale, RGB, or palette image into
// out, honoring the x/y sub-extent. Only contiguous planar layout reaches
// this path.
func (f *File) readGenericImage(p *Page, out []byte, st volume.SampleType, ext volume.Extent) error {
	format := f.Format()
	size := st.Size()
	comps := f.NumComponents()
	sc := f.newScanlines(p, st)

	// Fast path: single-component min-is-black rows copy straight across.
	if p.PlanarConfig == PlanarContig && comps == 1 &&
		format == FormatGrayscale &&
		p.Photometric == PhotometricMinIsBlack &&
		p.SamplesPerPixel == 1 {
		return f.readGrayscaleRows(p, out, sc, size, ext)
	}

	if p.PlanarConfig != PlanarContig {
		return fmt.Errorf("%w: separate planar layout", ErrUnsupportedFormat)
	}

	rowSamples := (ext[1] - ext[0] + 1) * comps
	for row := ext[2]; row <= ext[3]; row++ {
		fileRow := row
		if p.flipped() {
			fileRow = p.Height - row - 1
		}
		line, err := sc.row(fileRow, 0)
		if err != nil {
			return err
		}
		di := (row - ext[2]) * rowSamples
		si := ext[0] * p.SamplesPerPixel
		for ix := ext[0]; ix <= ext[1]; ix++ {
			di += f.evaluatePixel(p, format, out, di, line, si, size)
			si += p.SamplesPerPixel
		}
	}
	return nil
}

// readGrayscaleRows copies scanlines of a single-component image directly
// into the output rows, applying the vertical flip through the row
// mapping alone.
func (f *File) readGrayscaleRows(p *Page, out []byte, sc *scanlines, size int, ext volume.Extent) error {
	rowBytes := (ext[1] - ext[0] + 1) * size
	for row := ext[2]; row <= ext[3]; row++ {
		fileRow := row
		if p.flipped() {
			fileRow = p.Height - row - 1
		}
		line, err := sc.row(fileRow, 0)
		if err != nil {
			return err
		}
		copy(out[(row-ext[2])*rowBytes:], line[ext[0]*size:ext[0]*size+rowBytes])
	}
	return nil
}

// readTwoSamplesPerPixel handles files that declare two samples per pixel
// but are really RGB, a quirk of some Zeiss microscopes. Output pixels
// are three components wide; with separate planes each source plane lands
// on its own color slot and the third component stays zero.
func (f *File) readTwoSamplesPerPixel(p *Page, out []byte, st volume.SampleType) error {
	size := st.Size()
	format := f.Format()
	sc := f.newScanlines(p, st)

	if p.PlanarConfig == PlanarContig {
		rowSamples := p.Width * p.SamplesPerPixel
		inc := 1
		for row := 0; row < p.Height; row++ {
			line, err := sc.row(row, 0)
			if err != nil {
				return err
			}
			var di int
			if !p.flipped() {
				di = row * p.Width * inc
			} else {
				di = p.Width * inc * (p.Height - row - 1)
			}
			for si := 0; si < rowSamples; si += p.SamplesPerPixel {
				inc = f.evaluatePixel(p, format, out, di, line, si, size)
				di += inc
			}
		}
		return nil
	}

	for s := 0; s < p.SamplesPerPixel; s++ {
		for row := 0; row < p.Height; row++ {
			line, err := sc.row(row, s)
			if err != nil {
				return err
			}
			var di int
			if !p.flipped() {
				di = row * p.Width * 3
			} else {
				di = p.Width * 3 * (p.Height - row - 1)
			}
			di += s
			for si := 0; si < p.Width; si++ {
				putSample(out, di, size, getSample(line, si, size))
				di += 3
			}
		}
	}
	return nil
}

// DecodeRGBA decodes the first primary page into a display oriented
// 8-bit RGBA raster whose row 0 is the bottom of the image. It works on
// any file our codecs can decompress, OME metadata or not.
func (f *File) DecodeRGBA() ([]byte, error) {
	return f.readRGBA(f.primary[0])
}

// readRGBA decodes any page our codecs can decompress into a display
// oriented 8-bit RGBA raster whose row 0 is the bottom of the image.
func (f *File) readRGBA(p *Page) ([]byte, error) {
	st, err := f.SampleType()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	sc := f.newScanlines(p, st)
	raster := make([]byte, p.Width*p.Height*4)

	shift := uint(8 * (size - 1))
	for fileRow := 0; fileRow < p.Height; fileRow++ {
		displayRow := fileRow
		if !p.flipped() {
			displayRow = p.Height - fileRow - 1
		}
		base := displayRow * p.Width * 4

		if p.PlanarConfig == PlanarSeparate {
			for s := 0; s < p.SamplesPerPixel && s < 4; s++ {
				line, err := sc.row(fileRow, s)
				if err != nil {
					return nil, err
				}
				for x := 0; x < p.Width; x++ {
					raster[base+x*4+s] = byte(getSample(line, x, size) >> shift)
				}
			}
		} else {
			line, err := sc.row(fileRow, 0)
			if err != nil {
				return nil, err
			}
			for x := 0; x < p.Width; x++ {
				si := x * p.SamplesPerPixel
				f.rgbaPixel(p, raster[base+x*4:base+x*4+4], line, si, size, shift)
			}
		}
		if p.SamplesPerPixel < 4 && p.Photometric != PhotometricPalette {
			for x := 0; x < p.Width; x++ {
				raster[base+x*4+3] = 255
			}
		}
	}
	return raster, nil
}

func (f *File) rgbaPixel(p *Page, dst, line []byte, si, size int, shift uint) {
	switch p.Photometric {
	case PhotometricMinIsBlack:
		v := byte(getSample(line, si, size) >> shift)
		dst[0], dst[1], dst[2] = v, v, v
	case PhotometricMinIsWhite:
		v := 255 - byte(getSample(line, si, size)>>shift)
		dst[0], dst[1], dst[2] = v, v, v
	case PhotometricPalette:
		red, green, blue := p.color(int(getSample(line, si, size)))
		dst[0] = byte(red >> 8)
		dst[1] = byte(green >> 8)
		dst[2] = byte(blue >> 8)
		dst[3] = 255
	case PhotometricRGB:
		for s := 0; s < p.SamplesPerPixel && s < 4; s++ {
			dst[s] = byte(getSample(line, si+s, size) >> shift)
		}
	}
}

// readRGBASlice fills one volume slice from the RGBA raster, bottom row
// first for flipped pages and top row first otherwise.
func (f *File) readRGBASlice(p *Page, out []byte, st volume.SampleType) error {
	raster, err := f.readRGBA(p)
	if err != nil {
		return err
	}
	size := st.Size()
	for yy := 0; yy < p.Height; yy++ {
		srcRow := yy
		if !p.flipped() {
			srcRow = p.Height - yy - 1
		}
		for xx := 0; xx < p.Width; xx++ {
			si := (srcRow*p.Width + xx) * 4
			di := (yy*p.Width + xx) * 4
			for c := 0; c < 4; c++ {
				putSample(out, di+c, size, uint32(raster[si+c]))
			}
		}
	}
	return nil
}

// readRGBAFallback fills a single image from the RGBA raster, honoring
// the x/y sub-extent. Raster rows map to output rows in raster order.
func (f *File) readRGBAFallback(p *Page, out []byte, st volume.SampleType, ext volume.Extent) error {
	raster, err := f.readRGBA(p)
	if err != nil {
		return err
	}
	size := st.Size()
	di := 0
	for yy := 0; yy < p.Height; yy++ {
		for xx := 0; xx < p.Width; xx++ {
			if xx < ext[0] || xx > ext[1] || yy < ext[2] || yy > ext[3] {
				continue
			}
			si := (yy*p.Width + xx) * 4
			for c := 0; c < 4; c++ {
				putSample(out, di+c, size, uint32(raster[si+c]))
			}
			di += 4
		}
	}
	return nil
}
