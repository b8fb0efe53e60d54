package tiff

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/mrjoshuak/go-tomostack/internal/binio"
	"github.com/mrjoshuak/go-tomostack/ome"
	"github.com/mrjoshuak/go-tomostack/volume"
)

// TIFF header magic.
const (
	byteOrderII = 0x4949 // little endian
	byteOrderMM = 0x4d4d // big endian
	magicNumber = 42
)

// TIFF field types.
const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeSByte     = 6
	typeUndefined = 7
	typeSShort    = 8
	typeSLong     = 9
	typeSRational = 10
	typeFloat     = 11
	typeDouble    = 12
)

var fieldTypeSize = map[uint16]int{
	typeByte: 1, typeASCII: 1, typeShort: 2, typeLong: 4,
	typeRational: 8, typeSByte: 1, typeUndefined: 1, typeSShort: 2,
	typeSLong: 4, typeSRational: 8, typeFloat: 4, typeDouble: 8,
}

// Page is one image directory of a TIFF file with the tags the decoder
// needs resolved to their effective values, defaults applied.
type Page struct {
	Width  int
	Height int

	BitsPerSample   int
	SamplesPerPixel int
	Compression     int
	Photometric     int
	PlanarConfig    int
	SampleFormat    int
	Orientation     int
	Predictor       int

	SubFileType    uint32
	HasSubFileType bool

	RowsPerStrip    int
	StripOffsets    []int64
	StripByteCounts []int64

	TileWidth      int
	TileHeight     int
	TileOffsets    []int64
	TileByteCounts []int64

	ColorMap [][3]uint16

	ImageDescription string
}

// Tiled reports whether the page stores its pixels as tiles.
func (p *Page) Tiled() bool {
	return p.TileWidth > 0 && p.TileHeight > 0 && len(p.TileOffsets) > 0
}

// File is an open TIFF file with its directory chain parsed and any
// embedded OME-XML metadata extracted.
type File struct {
	data  []byte
	order binary.ByteOrder

	pages   []*Page
	primary []*Page

	ome    *ome.Metadata
	omeErr error
}

// Open reads and parses the TIFF file at path. A missing file or a file
// without a valid TIFF header returns ErrCannotOpen.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotOpen, err)
	}
	return Parse(data)
}

// OpenReader reads and parses a TIFF stream.
func OpenReader(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotOpen, err)
	}
	return Parse(data)
}

// Parse parses an in-memory TIFF file.
func Parse(data []byte) (*File, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: truncated header", ErrCannotOpen)
	}

	var order binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		order = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad byte-order mark", ErrCannotOpen)
	}
	if order.Uint16(data[2:]) != magicNumber {
		return nil, fmt.Errorf("%w: bad magic number", ErrCannotOpen)
	}

	f := &File{data: data, order: order}

	offset := int64(order.Uint32(data[4:]))
	seen := make(map[int64]bool)
	for offset != 0 {
		if seen[offset] {
			return nil, fmt.Errorf("%w: directory cycle", ErrCannotOpen)
		}
		seen[offset] = true
		page, next, err := f.parsePage(offset)
		if err != nil {
			return nil, err
		}
		f.pages = append(f.pages, page)
		offset = next
	}
	if len(f.pages) == 0 {
		return nil, fmt.Errorf("%w: no image directories", ErrCannotOpen)
	}

	// Reduced-resolution and mask pages do not contribute volume slices.
	for _, p := range f.pages {
		if p.HasSubFileType && p.SubFileType&0x3 != 0 {
			continue
		}
		f.primary = append(f.primary, p)
	}
	if len(f.primary) == 0 {
		f.primary = f.pages[:1]
	}

	if desc := f.pages[0].ImageDescription; desc != "" {
		f.ome, f.omeErr = ome.Parse([]byte(desc))
		if f.omeErr == nil {
			f.omeErr = f.ome.Validate()
			if f.omeErr != nil {
				f.ome = nil
			}
		}
	} else {
		f.omeErr = ome.ErrNotOME
	}

	return f, nil
}

func (f *File) parsePage(offset int64) (*Page, int64, error) {
	r := binio.NewReader(f.data, f.order)
	if err := r.SetPos(int(offset)); err != nil {
		return nil, 0, fmt.Errorf("%w: directory offset out of range", ErrCannotOpen)
	}
	count, err := r.ReadUint16()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: truncated directory", ErrCannotOpen)
	}

	p := &Page{
		BitsPerSample:   1,
		SamplesPerPixel: 1,
		Compression:     CompressionNone,
		PlanarConfig:    PlanarContig,
		SampleFormat:    SampleFormatUint,
		Orientation:     OrientationBotLeft,
		Predictor:       1,
	}

	for i := 0; i < int(count); i++ {
		if err := r.SetPos(int(offset) + 2 + i*12); err != nil {
			return nil, 0, fmt.Errorf("%w: truncated directory entry", ErrCannotOpen)
		}
		tag, _ := r.ReadUint16()
		typ, _ := r.ReadUint16()
		n, err := r.ReadUint32()
		if err != nil {
			return nil, 0, fmt.Errorf("%w: truncated directory entry", ErrCannotOpen)
		}
		if err := f.applyTag(r, p, tag, typ, int(n)); err != nil {
			return nil, 0, err
		}
	}

	if err := r.SetPos(int(offset) + 2 + int(count)*12); err != nil {
		return nil, 0, fmt.Errorf("%w: truncated directory", ErrCannotOpen)
	}
	next, err := r.ReadUint32()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: truncated directory link", ErrCannotOpen)
	}

	if p.RowsPerStrip <= 0 || p.RowsPerStrip > p.Height {
		p.RowsPerStrip = p.Height
	}
	return p, int64(next), nil
}

// applyTag resolves one directory entry. The reader is positioned at the
// entry's value field; values wider than four bytes live at the offset
// stored there instead.
func (f *File) applyTag(r *binio.Reader, p *Page, tag, typ uint16, n int) error {
	size := fieldTypeSize[typ]
	if size == 0 || n < 0 {
		return nil // unknown field type, skip
	}
	if size*n > 4 {
		off, err := r.ReadUint32()
		if err != nil {
			return fmt.Errorf("%w: truncated tag %d", ErrCannotOpen, tag)
		}
		if err := r.SetPos(int(off)); err != nil {
			return fmt.Errorf("%w: tag %d value out of range", ErrCannotOpen, tag)
		}
	}

	switch tag {
	case tagImageWidth:
		p.Width = int(f.tagInt(r, typ))
	case tagImageLength:
		p.Height = int(f.tagInt(r, typ))
	case tagBitsPerSample:
		p.BitsPerSample = int(f.tagInt(r, typ))
	case tagCompression:
		p.Compression = int(f.tagInt(r, typ))
	case tagPhotometric:
		p.Photometric = int(f.tagInt(r, typ))
	case tagSamplesPerPixel:
		p.SamplesPerPixel = int(f.tagInt(r, typ))
	case tagRowsPerStrip:
		p.RowsPerStrip = int(f.tagInt(r, typ))
	case tagPlanarConfig:
		p.PlanarConfig = int(f.tagInt(r, typ))
	case tagSampleFormat:
		p.SampleFormat = int(f.tagInt(r, typ))
	case tagOrientation:
		p.Orientation = int(f.tagInt(r, typ))
	case tagPredictor:
		p.Predictor = int(f.tagInt(r, typ))
	case tagSubFileType:
		p.SubFileType = f.tagInt(r, typ)
		p.HasSubFileType = true
	case tagStripOffsets:
		p.StripOffsets = f.tagInts(r, typ, n)
	case tagStripByteCounts:
		p.StripByteCounts = f.tagInts(r, typ, n)
	case tagTileWidth:
		p.TileWidth = int(f.tagInt(r, typ))
	case tagTileLength:
		p.TileHeight = int(f.tagInt(r, typ))
	case tagTileOffsets:
		p.TileOffsets = f.tagInts(r, typ, n)
	case tagTileByteCounts:
		p.TileByteCounts = f.tagInts(r, typ, n)
	case tagImageDescription:
		b, err := r.ReadBytes(n)
		if err == nil {
			p.ImageDescription = string(b)
		}
	case tagColorMap:
		if n%3 != 0 {
			return nil
		}
		per := n / 3
		vals := make([]uint16, 0, n)
		for i := 0; i < n; i++ {
			v, err := r.ReadUint16()
			if err != nil {
				return fmt.Errorf("%w: truncated color map", ErrCannotOpen)
			}
			vals = append(vals, v)
		}
		p.ColorMap = make([][3]uint16, per)
		for i := 0; i < per; i++ {
			p.ColorMap[i] = [3]uint16{vals[i], vals[per+i], vals[2*per+i]}
		}
	}
	return nil
}

// tagInt reads one integer value of the given field type.
func (f *File) tagInt(r *binio.Reader, typ uint16) uint32 {
	switch typ {
	case typeByte, typeSByte, typeUndefined:
		b, _ := r.ReadBytes(1)
		if len(b) == 1 {
			return uint32(b[0])
		}
	case typeShort, typeSShort:
		v, _ := r.ReadUint16()
		return uint32(v)
	case typeLong, typeSLong:
		v, _ := r.ReadUint32()
		return v
	}
	return 0
}

// tagInts reads n integer values of the given field type.
func (f *File) tagInts(r *binio.Reader, typ uint16, n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(f.tagInt(r, typ))
	}
	return out
}

// NumPages returns the number of primary (full resolution) pages. For a
// multi-page volume this is the z extent.
func (f *File) NumPages() int { return len(f.primary) }

// Page returns the i'th primary page.
func (f *File) Page(i int) *Page { return f.primary[i] }

// ByteOrder returns the file's declared sample byte order.
func (f *File) ByteOrder() binary.ByteOrder { return f.order }

// OME returns the embedded OME-XML metadata, or an ErrUnsupportedFormat
// wrapping error when the description is absent or unparsable.
func (f *File) OME() (*ome.Metadata, error) {
	if f.ome == nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, f.omeErr)
	}
	return f.ome, nil
}

// Metadata summarizes the decoded geometry of a file.
type Metadata struct {
	Width      int
	Height     int
	NumSlices  int
	Components int
	SampleType volume.SampleType
	Format     Format
	Spacing    [3]float64
	Units      [3]string
}

// Metadata returns the file's decoded geometry. It fails with
// ErrUnsupportedFormat when OME metadata is missing or the pixel layout is
// outside the supported set; DecodeRGBA remains available in that case.
func (f *File) Metadata() (*Metadata, error) {
	m, err := f.OME()
	if err != nil {
		return nil, err
	}
	if !f.CanRead() {
		return nil, fmt.Errorf("%w: unsupported pixel layout", ErrUnsupportedFormat)
	}
	st, err := f.SampleType()
	if err != nil {
		return nil, err
	}
	return &Metadata{
		Width:      m.SizeX,
		Height:     m.SizeY,
		NumSlices:  m.SizeZ,
		Components: f.NumComponents(),
		SampleType: st,
		Format:     f.Format(),
		Spacing:    m.PhysicalPixelSize,
		Units:      m.PhysicalPixelUnits,
	}, nil
}

// CanRead reports whether the file's declared layout is inside the set the
// structured decoder supports. Files failing this check decode only
// through DecodeRGBA.
func (f *File) CanRead() bool {
	if f.ome == nil {
		return false
	}
	p := f.primary[0]
	if p.SamplesPerPixel <= 0 {
		return false
	}
	switch p.Compression {
	case CompressionNone, CompressionLZW, CompressionDeflate, CompressionPackBits:
	default:
		return false
	}
	switch p.Photometric {
	case PhotometricMinIsWhite, PhotometricMinIsBlack,
		PhotometricRGB, PhotometricPalette:
	default:
		return false
	}
	if p.PlanarConfig != PlanarContig {
		return false
	}
	switch p.BitsPerSample {
	case 8, 16, 32:
	default:
		return false
	}
	return true
}

// SampleType maps the file's bit depth and sample format onto a scalar
// type. Bit depths over 32 are unsupported.
func (f *File) SampleType() (volume.SampleType, error) {
	p := f.primary[0]
	signed := p.SampleFormat == SampleFormatInt
	floating := p.SampleFormat == SampleFormatFloat
	switch {
	case p.BitsPerSample <= 8:
		if signed {
			return volume.Int8, nil
		}
		return volume.Uint8, nil
	case p.BitsPerSample <= 16:
		if signed {
			return volume.Int16, nil
		}
		return volume.Uint16, nil
	case p.BitsPerSample <= 32:
		if floating {
			return volume.Float32, nil
		}
		if signed {
			return volume.Int32, nil
		}
		return volume.Uint32, nil
	default:
		return 0, fmt.Errorf("%w: %d bits per sample",
			ErrUnsupportedFormat, p.BitsPerSample)
	}
}

// Format classifies the first page's pixel interpretation. Palette images
// are inspected entry by entry: a table whose red, green, and blue columns
// agree everywhere is grayscale, anything else is color.
func (f *File) Format() Format {
	p := f.primary[0]
	switch p.Photometric {
	case PhotometricMinIsWhite, PhotometricMinIsBlack:
		return FormatGrayscale
	case PhotometricRGB:
		return FormatRGB
	case PhotometricPalette:
		if len(p.ColorMap) == 0 {
			return FormatOther
		}
		n := len(p.ColorMap)
		if n > 256 {
			n = 256
		}
		for i := 0; i < n; i++ {
			c := p.ColorMap[i]
			if c[0] != c[1] || c[0] != c[2] {
				return FormatPaletteRGB
			}
		}
		return FormatPaletteGrayscale
	default:
		return FormatOther
	}
}

// NumComponents returns the component count of decoded pixels: one for
// grayscale and gray palettes, the sample count for RGB and for decodable
// JPEG-2000 tiles, three for color palettes and the 2-samples-per-pixel
// layout, four for anything the structured decoder cannot handle.
func (f *File) NumComponents() int {
	p := f.primary[0]
	if !f.CanRead() {
		if p.jp2Decodable() {
			return p.SamplesPerPixel
		}
		return 4
	}
	if p.SamplesPerPixel == 2 {
		return 3
	}
	switch f.Format() {
	case FormatGrayscale, FormatPaletteGrayscale:
		return 1
	case FormatRGB:
		return p.SamplesPerPixel
	case FormatPaletteRGB:
		return 3
	default:
		return 4
	}
}

// flipped reports whether rows are mirrored vertically on decode.
// Top-left files map file rows to output rows directly; every other
// orientation is flipped.
func (p *Page) flipped() bool {
	return p.Orientation != OrientationTopLeft
}

// randomAccessRows reports whether scanlines of the page can be read in
// arbitrary order. Compressed streams with multi-row strips must be read
// front to back.
func (p *Page) randomAccessRows() bool {
	return p.Compression == CompressionNone || p.RowsPerStrip == 1
}
