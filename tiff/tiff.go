// Package tiff provides reading of multi-page and tiled scientific TIFF
// files carrying embedded OME-XML metadata, decoding them into regular
// 3-D volumes.
//
// The reader understands four pixel layouts: multi-page volumes (one
// primary page per z slice), tiled images with partial boundary tiles,
// the vendor quirk of 2-samples-per-pixel files that are really RGB, and
// generic single images with grayscale, RGB, or palette photometrics.
// Files whose declared compression, photometric, or bit depth is outside
// the supported set can still be decoded through an RGBA fallback path
// that ignores OME semantics.
package tiff

import (
	"errors"
)

// Reader errors
var (
	// ErrCannotOpen indicates the file is missing or not a TIFF container.
	ErrCannotOpen = errors.New("tiff: cannot open file")

	// ErrUnsupportedFormat indicates OME-XML metadata is absent or
	// unparsable, or the declared pixel layout is outside the supported
	// set. Callers should fall back to DecodeRGBA.
	ErrUnsupportedFormat = errors.New("tiff: unsupported format")

	// ErrRead indicates an I/O or decompression failure mid-decode. The
	// output buffer contents are undefined.
	ErrRead = errors.New("tiff: read error")

	// ErrExtent indicates a decode request whose extent does not match
	// the file's geometry.
	ErrExtent = errors.New("tiff: extent mismatch")
)

// TIFF tag IDs used by the reader.
const (
	tagSubFileType       = 254
	tagImageWidth        = 256
	tagImageLength       = 257
	tagBitsPerSample     = 258
	tagCompression       = 259
	tagPhotometric       = 262
	tagImageDescription  = 270
	tagStripOffsets      = 273
	tagOrientation       = 274
	tagSamplesPerPixel   = 277
	tagRowsPerStrip      = 278
	tagStripByteCounts   = 279
	tagXResolution       = 282
	tagYResolution       = 283
	tagPlanarConfig      = 284
	tagResolutionUnit    = 296
	tagPageNumber        = 297
	tagPredictor         = 317
	tagColorMap          = 320
	tagTileWidth         = 322
	tagTileLength        = 323
	tagTileOffsets       = 324
	tagTileByteCounts    = 325
	tagSampleFormat      = 339
)

// Compression schemes.
const (
	CompressionNone     = 1
	CompressionLZW      = 5
	CompressionDeflate  = 8
	CompressionPackBits = 32773

	// JPEG-2000 payloads seen in whole-slide and microscopy TIFFs.
	CompressionJP2Lossy    = 33003
	CompressionJP2Lossless = 33005
	CompressionJP2Aperio   = 34712
)

// Photometric interpretations.
const (
	PhotometricMinIsWhite = 0
	PhotometricMinIsBlack = 1
	PhotometricRGB        = 2
	PhotometricPalette    = 3
	PhotometricYCbCr      = 6
)

// Planar configurations.
const (
	PlanarContig   = 1
	PlanarSeparate = 2
)

// Orientations. Only the vertical relationship matters for decoding:
// everything except OrientationTopLeft is treated as bottom-up.
const (
	OrientationTopLeft = 1
	OrientationBotLeft = 4
)

// Sample formats.
const (
	SampleFormatUint  = 1
	SampleFormatInt   = 2
	SampleFormatFloat = 3
)

// Format classifies the pixel interpretation of an image.
type Format int

const (
	// FormatNone means the format has not been determined yet.
	FormatNone Format = iota
	// FormatGrayscale is single-component intensity data.
	FormatGrayscale
	// FormatPaletteGrayscale is palette data whose table is gray.
	FormatPaletteGrayscale
	// FormatRGB is interleaved color data, optionally with alpha.
	FormatRGB
	// FormatPaletteRGB is palette data with a colorful table.
	FormatPaletteRGB
	// FormatOther is anything else; only the RGBA fallback can decode it.
	FormatOther
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatGrayscale:
		return "Grayscale"
	case FormatPaletteGrayscale:
		return "PaletteGrayscale"
	case FormatRGB:
		return "RGB"
	case FormatPaletteRGB:
		return "PaletteRGB"
	case FormatOther:
		return "Other"
	default:
		return "None"
	}
}
