package tiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"

	"github.com/klauspost/compress/zlib"
	jpeg2000 "github.com/mrjoshuak/go-jpeg2000"

	"github.com/mrjoshuak/go-tomostack/internal/packbits"
	"github.com/mrjoshuak/go-tomostack/internal/tifflzw"
)

// decodeSegment decompresses one strip or tile payload into exactly
// expected bytes of raw samples, normalized to little-endian with the
// horizontal predictor undone.
//
// rowBytes and sampleSize describe the segment's internal layout, which
// for tiles differs from the image's scanline layout.
func (f *File) decodeSegment(p *Page, src []byte, expected, rowBytes, sampleSize int) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch p.Compression {
	case CompressionNone:
		if len(src) < expected {
			return nil, fmt.Errorf("%w: short strip: %d bytes, want %d",
				ErrRead, len(src), expected)
		}
		out = make([]byte, expected)
		copy(out, src)
	case CompressionPackBits:
		out, err = packbits.Decode(src, expected)
	case CompressionLZW:
		out, err = tifflzw.Decode(src, expected)
	case CompressionDeflate:
		out, err = decodeDeflate(src, expected)
	default:
		return nil, fmt.Errorf("%w: compression scheme %d",
			ErrUnsupportedFormat, p.Compression)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}

	if f.order == binary.BigEndian && sampleSize > 1 {
		swapToLittleEndian(out, sampleSize)
	}
	if p.Predictor == 2 {
		undoHorizontalPredictor(out, rowBytes, p.SamplesPerPixel, sampleSize)
	}
	return out, nil
}

func decodeDeflate(src []byte, expected int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	out := make([]byte, expected)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, err
	}
	return out, nil
}

// swapToLittleEndian reverses the byte order of every sample in place.
func swapToLittleEndian(buf []byte, sampleSize int) {
	for off := 0; off+sampleSize <= len(buf); off += sampleSize {
		for i, j := off, off+sampleSize-1; i < j; i, j = i+1, j-1 {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}
}

// undoHorizontalPredictor reverses per-row horizontal differencing: each
// sample past the first pixel is a delta from the same component one
// pixel to the left. Samples are little-endian by the time this runs.
func undoHorizontalPredictor(buf []byte, rowBytes, samplesPerPixel, sampleSize int) {
	pixelBytes := samplesPerPixel * sampleSize
	for rowStart := 0; rowStart+rowBytes <= len(buf); rowStart += rowBytes {
		row := buf[rowStart : rowStart+rowBytes]
		for off := pixelBytes; off+sampleSize <= len(row); off += sampleSize {
			switch sampleSize {
			case 1:
				row[off] += row[off-pixelBytes]
			case 2:
				v := uint16(row[off]) | uint16(row[off+1])<<8
				prev := uint16(row[off-pixelBytes]) | uint16(row[off-pixelBytes+1])<<8
				v += prev
				row[off] = byte(v)
				row[off+1] = byte(v >> 8)
			case 4:
				v := uint32(row[off]) | uint32(row[off+1])<<8 |
					uint32(row[off+2])<<16 | uint32(row[off+3])<<24
				prev := uint32(row[off-pixelBytes]) | uint32(row[off-pixelBytes+1])<<8 |
					uint32(row[off-pixelBytes+2])<<16 | uint32(row[off-pixelBytes+3])<<24
				v += prev
				row[off] = byte(v)
				row[off+1] = byte(v >> 8)
				row[off+2] = byte(v >> 16)
				row[off+3] = byte(v >> 24)
			}
		}
	}
}

// jp2Compression reports whether the scheme is one of the JPEG-2000
// payload variants seen in microscopy TIFFs.
func jp2Compression(scheme int) bool {
	switch scheme {
	case CompressionJP2Lossy, CompressionJP2Lossless, CompressionJP2Aperio:
		return true
	default:
		return false
	}
}

// jp2Decodable reports whether a JPEG-2000 page maps onto the tile
// decoder with its declared sample count. Only tiled grayscale and RGB
// layouts at 8 or 16 bits line up with the decoded image.
func (p *Page) jp2Decodable() bool {
	if !jp2Compression(p.Compression) || !p.Tiled() {
		return false
	}
	if p.BitsPerSample != 8 && p.BitsPerSample != 16 {
		return false
	}
	switch p.Photometric {
	case PhotometricMinIsBlack:
		return p.SamplesPerPixel == 1
	case PhotometricRGB:
		return p.SamplesPerPixel == 3 || p.SamplesPerPixel == 4
	default:
		return false
	}
}

// decodeJP2Tile decodes a JPEG-2000 codestream tile into raw samples in
// the page's layout: little-endian, samplesPerPixel wide, size bytes per
// sample. Boundary tiles may decode smaller than the declared tile size;
// the caller only copies the region inside the image.
func decodeJP2Tile(p *Page, src []byte, size int) ([]byte, error) {
	img, err := jpeg2000.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: jpeg2000: %v", ErrRead, err)
	}
	b := img.Bounds()
	if b.Dx() > p.TileWidth || b.Dy() > p.TileHeight {
		return nil, fmt.Errorf("%w: jpeg2000 tile is %dx%d, want at most %dx%d",
			ErrRead, b.Dx(), b.Dy(), p.TileWidth, p.TileHeight)
	}

	out := make([]byte, p.TileWidth*p.TileHeight*p.SamplesPerPixel*size)
	if gray, ok := img.(*image.Gray); ok && p.SamplesPerPixel == 1 && size == 1 {
		for y := 0; y < b.Dy(); y++ {
			copy(out[y*p.TileWidth:], gray.Pix[y*gray.Stride:y*gray.Stride+b.Dx()])
		}
		return out, nil
	}
	// RGBA returns 16-bit channels; narrow to the page's declared depth.
	shift := uint(16 - 8*size)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			idx := (y*p.TileWidth + x) * p.SamplesPerPixel
			putSample(out, idx, size, r>>shift)
			switch p.SamplesPerPixel {
			case 3:
				putSample(out, idx+1, size, g>>shift)
				putSample(out, idx+2, size, bl>>shift)
			case 4:
				putSample(out, idx+1, size, g>>shift)
				putSample(out, idx+2, size, bl>>shift)
				putSample(out, idx+3, size, a>>shift)
			}
		}
	}
	return out, nil
}
