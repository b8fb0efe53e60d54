package tiff

import (
	"bytes"
	"encoding/binary"
	"image"
	"sort"

	"github.com/klauspost/compress/zlib"
	jpeg2000 "github.com/mrjoshuak/go-jpeg2000"

	"github.com/mrjoshuak/go-tomostack/internal/binio"
	"github.com/mrjoshuak/go-tomostack/internal/packbits"
	"github.com/mrjoshuak/go-tomostack/ome"
)

// synthPage describes one image directory of a synthetic file built for
// tests. Zero-valued fields take the usual defaults: 8 bits, one sample
// per pixel, uncompressed, contiguous planes, one strip. The photometric
// zero value is min-is-white, so most pages set it explicitly.
type synthPage struct {
	width, height int

	bits         int
	spp          int
	compression  int
	photometric  int
	planar       int
	orientation  int
	sampleFormat int
	predictor    int
	rowsPerStrip int

	tileW, tileH int

	subFileType    uint32
	hasSubFileType bool

	colorMap    [][3]uint16
	description string

	// pixels holds raw samples in the file's byte order, row-major for
	// contiguous pages, plane-major for separate ones.
	pixels []byte
}

func (sp *synthPage) applyDefaults() {
	if sp.bits == 0 {
		sp.bits = 8
	}
	if sp.spp == 0 {
		sp.spp = 1
	}
	if sp.compression == 0 {
		sp.compression = CompressionNone
	}
	if sp.planar == 0 {
		sp.planar = PlanarContig
	}
	if sp.rowsPerStrip == 0 {
		sp.rowsPerStrip = sp.height
	}
}

func (sp *synthPage) sampleBytes() int { return (sp.bits + 7) / 8 }

// segments splits the pixel data into the raw strip or tile payloads in
// file order, boundary tiles zero-padded to the full tile size. Predictor
// differencing, when requested, is applied here (8-bit samples only).
func (sp *synthPage) segments() [][]byte {
	size := sp.sampleBytes()

	if need := sp.width * sp.height * sp.spp * size; len(sp.pixels) < need {
		sp.pixels = append(sp.pixels, make([]byte, need-len(sp.pixels))...)
	}

	if sp.tileW > 0 {
		pixelBytes := sp.spp * size
		across := (sp.width + sp.tileW - 1) / sp.tileW
		down := (sp.height + sp.tileH - 1) / sp.tileH
		var segs [][]byte
		for tr := 0; tr < down; tr++ {
			for tc := 0; tc < across; tc++ {
				tile := make([]byte, sp.tileW*sp.tileH*pixelBytes)
				rows := sp.tileH
				if over := (tr+1)*sp.tileH - sp.height; over > 0 {
					rows -= over
				}
				cols := sp.tileW
				if over := (tc+1)*sp.tileW - sp.width; over > 0 {
					cols -= over
				}
				for y := 0; y < rows; y++ {
					src := ((tr*sp.tileH+y)*sp.width + tc*sp.tileW) * pixelBytes
					copy(tile[y*sp.tileW*pixelBytes:], sp.pixels[src:src+cols*pixelBytes])
				}
				if sp.predictor == 2 {
					diffPredictor(tile, sp.tileW*pixelBytes, pixelBytes)
				}
				segs = append(segs, tile)
			}
		}
		return segs
	}

	planes := 1
	rowBytes := sp.width * sp.spp * size
	if sp.planar == PlanarSeparate {
		planes = sp.spp
		rowBytes = sp.width * size
	}
	var segs [][]byte
	for pl := 0; pl < planes; pl++ {
		for row := 0; row < sp.height; row += sp.rowsPerStrip {
			rows := sp.rowsPerStrip
			if row+rows > sp.height {
				rows = sp.height - row
			}
			start := (pl*sp.height + row) * rowBytes
			seg := make([]byte, rows*rowBytes)
			copy(seg, sp.pixels[start:start+rows*rowBytes])
			if sp.predictor == 2 {
				diffPredictor(seg, rowBytes, sp.spp*size)
			}
			segs = append(segs, seg)
		}
	}
	return segs
}

// diffPredictor forward-differences each row for horizontal predictor 2.
func diffPredictor(seg []byte, rowBytes, pixelBytes int) {
	for rs := 0; rs+rowBytes <= len(seg); rs += rowBytes {
		row := seg[rs : rs+rowBytes]
		for off := len(row) - 1; off >= pixelBytes; off-- {
			row[off] -= row[off-pixelBytes]
		}
	}
}

func (sp *synthPage) compressSegment(raw []byte) []byte {
	switch sp.compression {
	case CompressionPackBits:
		return packbits.Encode(raw)
	case CompressionDeflate:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		zw.Write(raw)
		zw.Close()
		return buf.Bytes()
	case CompressionJP2Lossy, CompressionJP2Lossless, CompressionJP2Aperio:
		return sp.encodeJP2Segment(raw)
	default:
		return raw
	}
}

// encodeJP2Segment wraps one raw grayscale tile in a lossless JPEG-2000
// codestream. Layouts the jp2 tile path rejects pass through unencoded;
// their payloads are never decoded.
func (sp *synthPage) encodeJP2Segment(raw []byte) []byte {
	r := image.Rect(0, 0, sp.tileW, sp.tileH)
	var img image.Image
	switch {
	case sp.spp == 1 && sp.bits == 8:
		g := image.NewGray(r)
		copy(g.Pix, raw)
		img = g
	case sp.spp == 1 && sp.bits == 16:
		// Gray16 pixels are big-endian; raw tile samples are
		// little-endian in these tests.
		g := image.NewGray16(r)
		for i := 0; i+1 < len(raw); i += 2 {
			g.Pix[i] = raw[i+1]
			g.Pix[i+1] = raw[i]
		}
		img = g
	default:
		return raw
	}
	opts := jpeg2000.DefaultOptions()
	opts.Lossless = true
	opts.NumResolutions = 2
	var buf bytes.Buffer
	if err := jpeg2000.Encode(&buf, img, opts); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// buildTIFF assembles a complete file from the given pages: pixel data
// and external tag values first, then the directory chain.
func buildTIFF(order binary.ByteOrder, pages ...*synthPage) []byte {
	w := binio.NewWriter(order)
	if order == binary.LittleEndian {
		w.WriteBytes([]byte("II"))
	} else {
		w.WriteBytes([]byte("MM"))
	}
	w.WriteUint16(magicNumber)
	prevLink := w.Len()
	w.WriteUint32(0)

	for _, sp := range pages {
		sp.applyDefaults()

		type entry struct {
			tag, typ   uint16
			count, val uint32
		}
		var entries []entry
		addShort := func(tag uint16, v int) {
			entries = append(entries, entry{tag, typeShort, 1, uint32(v)})
		}
		addLong := func(tag uint16, v uint32) {
			entries = append(entries, entry{tag, typeLong, 1, v})
		}
		addLongs := func(tag uint16, vals []uint32) {
			if len(vals) == 1 {
				addLong(tag, vals[0])
				return
			}
			off := uint32(w.Len())
			for _, v := range vals {
				w.WriteUint32(v)
			}
			entries = append(entries, entry{tag, typeLong, uint32(len(vals)), off})
		}

		var offs, counts []uint32
		for _, seg := range sp.segments() {
			data := sp.compressSegment(seg)
			offs = append(offs, uint32(w.Len()))
			counts = append(counts, uint32(len(data)))
			w.WriteBytes(data)
		}

		addShort(tagImageWidth, sp.width)
		addShort(tagImageLength, sp.height)
		addShort(tagBitsPerSample, sp.bits)
		addShort(tagCompression, sp.compression)
		addShort(tagPhotometric, sp.photometric)
		addShort(tagSamplesPerPixel, sp.spp)
		addShort(tagPlanarConfig, sp.planar)
		if sp.orientation != 0 {
			addShort(tagOrientation, sp.orientation)
		}
		if sp.sampleFormat != 0 {
			addShort(tagSampleFormat, sp.sampleFormat)
		}
		if sp.predictor >= 2 {
			addShort(tagPredictor, sp.predictor)
		}
		if sp.hasSubFileType {
			addLong(tagSubFileType, sp.subFileType)
		}

		if sp.tileW > 0 {
			addShort(tagTileWidth, sp.tileW)
			addShort(tagTileLength, sp.tileH)
			addLongs(tagTileOffsets, offs)
			addLongs(tagTileByteCounts, counts)
		} else {
			addLong(tagRowsPerStrip, uint32(sp.rowsPerStrip))
			addLongs(tagStripOffsets, offs)
			addLongs(tagStripByteCounts, counts)
		}

		if sp.description != "" {
			desc := append([]byte(sp.description), 0)
			off := uint32(w.Len())
			w.WriteBytes(desc)
			entries = append(entries, entry{tagImageDescription, typeASCII, uint32(len(desc)), off})
		}
		if len(sp.colorMap) > 0 {
			off := uint32(w.Len())
			for c := 0; c < 3; c++ {
				for _, rgb := range sp.colorMap {
					w.WriteUint16(rgb[c])
				}
			}
			entries = append(entries, entry{tagColorMap, typeShort, uint32(3 * len(sp.colorMap)), off})
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

		ifdOff := uint32(w.Len())
		w.PatchUint32(prevLink, ifdOff)
		w.WriteUint16(uint16(len(entries)))
		for _, e := range entries {
			w.WriteUint16(e.tag)
			w.WriteUint16(e.typ)
			w.WriteUint32(e.count)
			if e.typ == typeShort && e.count == 1 {
				w.WriteUint16(uint16(e.val))
				w.WriteUint16(0)
			} else {
				w.WriteUint32(e.val)
			}
		}
		prevLink = w.Len()
		w.WriteUint32(0)
	}
	return w.Bytes()
}

// omeMeta builds metadata for an x by y by z volume with unit voxels.
func omeMeta(x, y, z int) *ome.Metadata {
	return &ome.Metadata{
		SizeX: x, SizeY: y, SizeZ: z, SizeC: 1, SizeT: 1,
		DimensionOrder:     "XYZCT",
		PhysicalPixelSize:  [3]float64{1, 1, 1},
		PhysicalPixelUnits: [3]string{"um", "um", "um"},
	}
}

// omeDesc renders omeMeta as an ImageDescription payload.
func omeDesc(x, y, z int) string {
	return omeMeta(x, y, z).XML()
}

// gradient fills w*h bytes with distinct-enough values for mirror checks.
func gradient(w, h int) []byte {
	out := make([]byte, w*h)
	for i := range out {
		out[i] = byte(i*7 + 3)
	}
	return out
}

// noise fills n bytes from a fixed linear congruential sequence.
func noise(n int) []byte {
	out := make([]byte, n)
	state := uint32(12345)
	for i := range out {
		state = state*1664525 + 1013904223
		out[i] = byte(state >> 24)
	}
	return out
}
