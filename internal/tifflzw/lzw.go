// Package tifflzw implements the LZW variant used by TIFF compression
// type 5.
//
// TIFF LZW differs from the GIF flavor in two ways: codes are packed
// most-significant-bit first, and the code width increases one code early
// (when the next table entry would no longer fit in the current width,
// rather than when it no longer fits after insertion).
package tifflzw

import (
	"errors"
)

// LZW errors
var (
	ErrCorrupted = errors.New("tifflzw: corrupted data")
)

const (
	clearCode = 256
	eoiCode   = 257
	firstCode = 258
	maxWidth  = 12
)

type bitReader struct {
	data  []byte
	pos   int
	bits  uint32
	nbits uint
}

func (br *bitReader) read(width uint) (int, bool) {
	for br.nbits < width {
		if br.pos >= len(br.data) {
			return 0, false
		}
		br.bits = br.bits<<8 | uint32(br.data[br.pos])
		br.nbits += 8
		br.pos++
	}
	br.nbits -= width
	code := int(br.bits >> br.nbits)
	br.bits &= (1 << br.nbits) - 1
	return code, true
}

// Decode expands TIFF-LZW-compressed src into a new buffer of up to
// expected bytes. Decoding stops at the EOI code or when expected bytes
// have been produced.
func Decode(src []byte, expected int) ([]byte, error) {
	dst := make([]byte, 0, expected)

	// Table entries above 257 point at a prefix code and a suffix byte.
	var prefix [1 << maxWidth]int
	var suffix [1 << maxWidth]byte
	// First byte of each entry's expansion, for the KwKwK case.
	var first [1 << maxWidth]byte
	for i := 0; i < 256; i++ {
		suffix[i] = byte(i)
		first[i] = byte(i)
	}

	br := &bitReader{data: src}
	width := uint(9)
	next := firstCode
	prev := -1

	expand := func(code int) {
		// Expand iteratively to avoid deep recursion on long chains.
		var stack []byte
		for code >= firstCode {
			stack = append(stack, suffix[code])
			code = prefix[code]
		}
		stack = append(stack, byte(code))
		for i := len(stack) - 1; i >= 0; i-- {
			dst = append(dst, stack[i])
		}
	}

	for len(dst) < expected {
		code, ok := br.read(width)
		if !ok {
			// Truncated streams that already produced the expected
			// output are tolerated by some writers; anything else
			// is corrupt.
			if len(dst) == expected {
				break
			}
			return nil, ErrCorrupted
		}

		switch {
		case code == clearCode:
			width = 9
			next = firstCode
			prev = -1
			continue
		case code == eoiCode:
			if len(dst) != expected {
				return nil, ErrCorrupted
			}
			return dst, nil
		case code > next || code >= 1<<maxWidth:
			return nil, ErrCorrupted
		}

		if prev < 0 {
			if code >= firstCode {
				return nil, ErrCorrupted
			}
			dst = append(dst, byte(code))
		} else {
			var entryFirst byte
			if code == next {
				// KwKwK: the new entry is prev's expansion plus its
				// own first byte.
				expand(prev)
				entryFirst = first[prev]
				dst = append(dst, entryFirst)
			} else {
				expand(code)
				entryFirst = first[code]
			}
			if next < 1<<maxWidth {
				prefix[next] = prev
				suffix[next] = entryFirst
				first[next] = first[prev]
				next++
			}
		}
		prev = code

		// Early change: widen as soon as the next entry would not fit.
		if next == 1<<width-1 && width < maxWidth {
			width++
		}
	}

	if len(dst) > expected {
		dst = dst[:expected]
	}
	return dst, nil
}
