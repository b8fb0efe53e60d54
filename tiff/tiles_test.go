package tiff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/mrjoshuak/go-tomostack/volume"
)

// Tiled and striped encodings of the same pixels must decode identically,
// boundary tiles included.
func TestTiledMatchesStriped(t *testing.T) {
	const w, h = 100, 100
	px := noise(w * h)

	for _, tc := range []struct {
		name        string
		orientation int
	}{
		{"bottom-left", 0},
		{"top-left", OrientationTopLeft},
	} {
		t.Run(tc.name, func(t *testing.T) {
			page := func(tiled bool) *synthPage {
				sp := &synthPage{
					width: w, height: h,
					photometric: PhotometricMinIsBlack,
					orientation: tc.orientation,
					description: omeDesc(w, h, 1),
					pixels:      px,
				}
				if tiled {
					sp.tileW, sp.tileH = 64, 64
				}
				return sp
			}
			_, tiledArr := decodeImage(t, buildTIFF(binary.LittleEndian, page(true)))
			_, stripArr := decodeImage(t, buildTIFF(binary.LittleEndian, page(false)))
			if !bytes.Equal(tiledArr.Bytes(), stripArr.Bytes()) {
				t.Fatal("tiled decode differs from striped decode")
			}

			// Pin the absolute row mapping, not just the twin equality.
			for row := 0; row < h; row++ {
				fileRow := row
				if tc.orientation != OrientationTopLeft {
					fileRow = h - row - 1
				}
				got := tiledArr.Bytes()[row*w : (row+1)*w]
				want := px[fileRow*w : (fileRow+1)*w]
				if !bytes.Equal(got, want) {
					t.Fatalf("row %d does not match file row %d", row, fileRow)
				}
			}
		})
	}
}

func TestTiled16Bit(t *testing.T) {
	const w, h = 30, 20
	px := make([]byte, w*h*2)
	for i := 0; i < w*h; i++ {
		binary.LittleEndian.PutUint16(px[i*2:], uint16(i*7+3))
	}
	page := func(tiled bool) *synthPage {
		sp := &synthPage{
			width: w, height: h,
			bits:        16,
			photometric: PhotometricMinIsBlack,
			description: omeDesc(w, h, 1),
			pixels:      px,
		}
		if tiled {
			sp.tileW, sp.tileH = 16, 16
		}
		return sp
	}
	_, tiledArr := decodeImage(t, buildTIFF(binary.LittleEndian, page(true)))
	_, stripArr := decodeImage(t, buildTIFF(binary.LittleEndian, page(false)))
	if !bytes.Equal(tiledArr.Bytes(), stripArr.Bytes()) {
		t.Error("16-bit tiled decode differs from striped decode")
	}
}

func TestTiledCompressed(t *testing.T) {
	const w, h = 20, 20
	px := noise(w * h)
	page := func(compression int) *synthPage {
		return &synthPage{
			width: w, height: h,
			compression: compression,
			photometric: PhotometricMinIsBlack,
			tileW:       8, tileH: 8,
			description: omeDesc(w, h, 1),
			pixels:      px,
		}
	}
	_, plain := decodeImage(t, buildTIFF(binary.LittleEndian, page(CompressionNone)))
	for _, compression := range []int{CompressionPackBits, CompressionDeflate} {
		_, arr := decodeImage(t, buildTIFF(binary.LittleEndian, page(compression)))
		if !bytes.Equal(arr.Bytes(), plain.Bytes()) {
			t.Errorf("compression %d tiled decode differs", compression)
		}
	}
}

func TestTiledRequiresFullExtent(t *testing.T) {
	sp := &synthPage{
		width: 16, height: 16,
		photometric: PhotometricMinIsBlack,
		tileW:       8, tileH: 8,
		description: omeDesc(16, 16, 1),
		pixels:      noise(16 * 16),
	}
	f, err := Parse(buildTIFF(binary.LittleEndian, sp))
	if err != nil {
		t.Fatal(err)
	}
	ext := volume.Extent{0, 7, 0, 7, 0, 0}
	arr := volume.NewArray(DefaultArrayName, volume.Uint8, 1, ext.VoxelCount())
	if err := f.Decode(arr, ext); !errors.Is(err, ErrExtent) {
		t.Errorf("sub-extent tiled decode = %v, want ErrExtent", err)
	}
}

func TestTiledMultiPage(t *testing.T) {
	const w, h, d = 12, 10, 2
	slices := make([][]byte, d)
	pages := make([]*synthPage, d)
	for s := range pages {
		slices[s] = noise(w * h)
		slices[s][0] = byte(50 + s)
		pages[s] = &synthPage{
			width: w, height: h,
			photometric: PhotometricMinIsBlack,
			tileW:       8, tileH: 8,
			pixels:      slices[s],
		}
	}
	pages[0].description = omeDesc(w, h, d)

	f, err := Parse(buildTIFF(binary.LittleEndian, pages...))
	if err != nil {
		t.Fatal(err)
	}
	vol, err := f.DecodeVolume()
	if err != nil {
		t.Fatal(err)
	}
	arr := vol.ActiveArray()
	for s := 0; s < d; s++ {
		for row := 0; row < h; row++ {
			got := arr.Bytes()[(s*h+row)*w : (s*h+row+1)*w]
			want := slices[s][(h-row-1)*w : (h-row)*w]
			if !bytes.Equal(got, want) {
				t.Fatalf("slice %d row %d mismatch", s, row)
			}
		}
	}
}

// JPEG-2000 tiles decode through the tile path with the page's declared
// component count and sample width, even though the layout sits outside
// the baseline compression set.
func TestTiledJP2Grayscale(t *testing.T) {
	const w, h = 8, 8
	px := noise(w * h)
	sp := &synthPage{
		width: w, height: h,
		tileW: 8, tileH: 8,
		compression: CompressionJP2Lossless,
		photometric: PhotometricMinIsBlack,
		description: omeDesc(w, h, 1),
		pixels:      px,
	}
	f, arr := decodeImage(t, buildTIFF(binary.LittleEndian, sp))
	if f.CanRead() {
		t.Fatal("jp2 layout reported readable")
	}
	if got := f.NumComponents(); got != 1 {
		t.Fatalf("NumComponents = %d, want 1", got)
	}
	for row := 0; row < h; row++ {
		got := arr.Bytes()[row*w : (row+1)*w]
		want := px[(h-row-1)*w : (h-row)*w]
		if !bytes.Equal(got, want) {
			t.Fatalf("row %d = % x, want % x", row, got, want)
		}
	}
}

func TestTiledJP2SixteenBit(t *testing.T) {
	const w, h = 8, 8
	vals := make([]uint16, w*h)
	px := make([]byte, w*h*2)
	for i := range vals {
		vals[i] = uint16(i*523 + 7)
		binary.LittleEndian.PutUint16(px[i*2:], vals[i])
	}
	sp := &synthPage{
		width: w, height: h,
		bits:  16,
		tileW: 8, tileH: 8,
		compression: CompressionJP2Lossless,
		photometric: PhotometricMinIsBlack,
		description: omeDesc(w, h, 1),
		pixels:      px,
	}
	_, arr := decodeImage(t, buildTIFF(binary.LittleEndian, sp))
	if arr.Type() != volume.Uint16 {
		t.Fatalf("sample type = %v, want Uint16", arr.Type())
	}
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			want := float64(vals[(h-row-1)*w+col])
			if got := arr.Value(row*w+col, 0); got != want {
				t.Fatalf("pixel (%d,%d) = %v, want %v", col, row, got, want)
			}
		}
	}
}

func TestTiledJP2RejectsWideSamples(t *testing.T) {
	const w, h = 8, 8
	sp := &synthPage{
		width: w, height: h,
		bits:  32,
		tileW: 8, tileH: 8,
		compression: CompressionJP2Lossless,
		photometric: PhotometricMinIsBlack,
		description: omeDesc(w, h, 1),
		pixels:      make([]byte, w*h*4),
	}
	f, err := Parse(buildTIFF(binary.LittleEndian, sp))
	if err != nil {
		t.Fatal(err)
	}
	st, err := f.SampleType()
	if err != nil {
		t.Fatal(err)
	}
	arr := volume.NewArray(DefaultArrayName, st, f.NumComponents(), w*h)
	err = f.Decode(arr, volume.Extent{0, w - 1, 0, h - 1, 0, 0})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("32-bit jp2 decode = %v, want ErrUnsupportedFormat", err)
	}
}
