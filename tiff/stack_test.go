package tiff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeStackFile(t *testing.T, dir, name string, sp *synthPage) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buildTIFF(binary.LittleEndian, sp), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDecodeStack(t *testing.T) {
	const w, h = 4, 3
	dir := t.TempDir()

	slices := make([][]byte, 2)
	paths := make([]string, 2)
	for s := range slices {
		slices[s] = make([]byte, w*h)
		for i := range slices[s] {
			slices[s][i] = byte(s*100 + i)
		}
		sp := &synthPage{
			width: w, height: h,
			photometric: PhotometricMinIsBlack,
			description: omeDesc(w, h, 1),
			pixels:      slices[s],
		}
		if s == 0 {
			m := omeMeta(w, h, 1)
			m.PhysicalPixelSize = [3]float64{0.5, 0.5, 3}
			m.PhysicalPixelUnits = [3]string{"nm", "nm", "nm"}
			sp.description = m.XML()
		}
		paths[s] = writeStackFile(t, dir, fmt.Sprintf("slice%d.tif", s), sp)
	}

	vol, err := DecodeStack(paths)
	if err != nil {
		t.Fatal(err)
	}
	if vol.Extent.Dz() != 2 {
		t.Fatalf("Dz = %d, want 2", vol.Extent.Dz())
	}
	if vol.Spacing != [3]float64{0.5, 0.5, 3} || vol.Field.Units()[0] != "nm" {
		t.Errorf("spacing = %v %v", vol.Spacing, vol.Field.Units())
	}

	arr := vol.ActiveArray()
	for s := 0; s < 2; s++ {
		for row := 0; row < h; row++ {
			got := arr.Bytes()[(s*h+row)*w : (s*h+row+1)*w]
			want := slices[s][(h-row-1)*w : (h-row)*w]
			if !bytes.Equal(got, want) {
				t.Errorf("slice %d row %d = %v, want %v", s, row, got, want)
			}
		}
	}
}

func TestDecodeStackGeometryMismatch(t *testing.T) {
	dir := t.TempDir()
	first := writeStackFile(t, dir, "a.tif", &synthPage{
		width: 4, height: 3,
		photometric: PhotometricMinIsBlack,
		description: omeDesc(4, 3, 1),
		pixels:      gradient(4, 3),
	})
	narrow := writeStackFile(t, dir, "b.tif", &synthPage{
		width: 3, height: 3,
		photometric: PhotometricMinIsBlack,
		description: omeDesc(3, 3, 1),
		pixels:      gradient(3, 3),
	})

	if _, err := DecodeStack([]string{first, narrow}); !errors.Is(err, ErrExtent) {
		t.Errorf("mismatched widths = %v, want ErrExtent", err)
	}
	if _, err := DecodeStack(nil); !errors.Is(err, ErrCannotOpen) {
		t.Errorf("empty list = %v, want ErrCannotOpen", err)
	}
}
