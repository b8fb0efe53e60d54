package tiff

import (
	"fmt"

	"github.com/mrjoshuak/go-tomostack/volume"
)

// readTiles decodes a tiled file, one primary page per z slice. Tiles
// whose extent hangs past the image edge are handled by three extra
// passes: the partial right column, the partial bottom row, and the
// corner where both overlap.
func (f *File) readTiles(dst *volume.Array, st volume.SampleType) error {
	p := f.primary[0]
	width, height := p.Width, p.Height
	tw, th := p.TileWidth, p.TileHeight
	if tw <= 0 || th <= 0 {
		return fmt.Errorf("%w: bad tile geometry %dx%d", ErrRead, tw, th)
	}
	if jp2Compression(p.Compression) && !p.jp2Decodable() {
		return fmt.Errorf("%w: JPEG-2000 payload with %d-bit samples, photometric %d",
			ErrUnsupportedFormat, p.BitsPerSample, p.Photometric)
	}
	pixelBytes := p.SamplesPerPixel * st.Size()
	rowMultiple := height%th == 0
	colMultiple := width%tw == 0
	flip := p.flipped()
	out := dst.Bytes()

	for slice := 0; slice < f.NumPages(); slice++ {
		page := f.primary[slice]

		rowBound := height
		if !rowMultiple {
			rowBound = height - th
		}
		colBound := width
		if !colMultiple {
			colBound = width - tw
		}

		for row := 0; row < rowBound; row += th {
			r := row
			if flip {
				r = height - row - th
			}
			for col := 0; col < colBound; col += tw {
				tile, err := f.readTile(page, st, col, r)
				if err != nil {
					return err
				}
				for yy := 0; yy < th; yy++ {
					y := yy
					if flip {
						y = th + height%th - yy - 1
					}
					di := ((slice*height+row+y)*width + col) * pixelBytes
					si := yy * tw * pixelBytes
					copy(out[di:di+tw*pixelBytes], tile[si:])
				}
			}
		}

		if !colMultiple {
			lenx := width % tw
			col := width - lenx
			for row := 0; row < rowBound; row += th {
				r := row
				if flip {
					r = height - row - th - 1
				}
				tile, err := f.readTile(page, st, col, r)
				if err != nil {
					return err
				}
				for yy := 0; yy < th; yy++ {
					y := yy
					if flip {
						y = th + height%th - yy - 1
					}
					di := ((slice*height+row+y)*width + col) * pixelBytes
					si := yy * tw * pixelBytes
					copy(out[di:di+lenx*pixelBytes], tile[si:])
				}
			}
		}

		if !rowMultiple {
			leny := height % th
			row := height - leny
			r := row
			if flip {
				r = 0
			}
			for col := 0; col < colBound; col += tw {
				tile, err := f.readTile(page, st, col, row)
				if err != nil {
					return err
				}
				for yy := 0; yy < leny; yy++ {
					y := yy
					if flip {
						y = leny - yy - 1
					}
					di := ((slice*height+r+y)*width + col) * pixelBytes
					si := yy * tw * pixelBytes
					copy(out[di:di+tw*pixelBytes], tile[si:])
				}
			}
		}

		if !colMultiple && !rowMultiple {
			lenx := width % tw
			col := width - lenx
			leny := height % th
			row := height - leny
			r := row
			if flip {
				r = 0
			}
			tile, err := f.readTile(page, st, col, row)
			if err != nil {
				return err
			}
			for yy := 0; yy < leny; yy++ {
				y := yy
				if flip {
					y = leny - yy - 1
				}
				di := ((slice*height+r+y)*width + col) * pixelBytes
				si := yy * tw * pixelBytes
				copy(out[di:di+lenx*pixelBytes], tile[si:])
			}
		}
	}
	return nil
}

// readTile decompresses the tile containing pixel (col, row) of a page
// and returns its raw samples, tileWidth*tileHeight pixels in row-major
// order.
func (f *File) readTile(p *Page, st volume.SampleType, col, row int) ([]byte, error) {
	tilesAcross := (p.Width + p.TileWidth - 1) / p.TileWidth
	idx := (row/p.TileHeight)*tilesAcross + col/p.TileWidth
	if idx < 0 || idx >= len(p.TileOffsets) || idx >= len(p.TileByteCounts) {
		return nil, fmt.Errorf("%w: tile (%d,%d) out of range", ErrRead, col, row)
	}
	off, n := p.TileOffsets[idx], p.TileByteCounts[idx]
	if off < 0 || n < 0 || off+n > int64(len(f.data)) {
		return nil, fmt.Errorf("%w: tile %d outside file", ErrRead, idx)
	}
	src := f.data[off : off+n]

	size := st.Size()
	if jp2Compression(p.Compression) {
		return decodeJP2Tile(p, src, size)
	}
	rowBytes := p.TileWidth * p.SamplesPerPixel * size
	return f.decodeSegment(p, src, p.TileHeight*rowBytes, rowBytes, size)
}
