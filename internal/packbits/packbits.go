// Package packbits implements the PackBits run-length encoding used by
// TIFF compression type 32773.
package packbits

import (
	"errors"
)

// PackBits errors
var (
	ErrCorrupted = errors.New("packbits: corrupted data")
	ErrOverflow  = errors.New("packbits: decoded size exceeds expected size")
)

// Decode expands PackBits-compressed src into a new buffer of exactly
// expected bytes.
//
// The PackBits format uses signed control bytes:
//   - 0 to 127 (+n): the next (n+1) bytes are copied literally
//   - -1 to -127 (-n): the next byte is repeated (n+1) times
//   - -128: no operation, skipped
func Decode(src []byte, expected int) ([]byte, error) {
	dst := make([]byte, 0, expected)

	i := 0
	for i < len(src) && len(dst) < expected {
		n := int(int8(src[i]))
		i++
		switch {
		case n >= 0:
			count := n + 1
			if i+count > len(src) {
				return nil, ErrCorrupted
			}
			if len(dst)+count > expected {
				return nil, ErrOverflow
			}
			dst = append(dst, src[i:i+count]...)
			i += count
		case n == -128:
			// No-op control byte.
		default:
			count := 1 - n
			if i >= len(src) {
				return nil, ErrCorrupted
			}
			if len(dst)+count > expected {
				return nil, ErrOverflow
			}
			val := src[i]
			i++
			for j := 0; j < count; j++ {
				dst = append(dst, val)
			}
		}
	}

	if len(dst) != expected {
		return nil, ErrCorrupted
	}
	return dst, nil
}

// Encode compresses src using PackBits. Runs of three or more identical
// bytes are encoded as repeats; everything else is emitted literally.
func Encode(src []byte) []byte {
	if len(src) == 0 {
		return nil
	}

	dst := make([]byte, 0, len(src)+len(src)/128+1)

	i := 0
	for i < len(src) {
		val := src[i]
		runEnd := i + 1
		for runEnd < len(src) && src[runEnd] == val && runEnd-i < 128 {
			runEnd++
		}
		runLength := runEnd - i

		if runLength >= 3 {
			dst = append(dst, byte(-(runLength - 1)), val)
			i = runEnd
			continue
		}

		literalStart := i
		for i < len(src) && i-literalStart < 128 {
			if i+3 <= len(src) && src[i+1] == src[i] && src[i+2] == src[i] {
				break
			}
			i++
		}
		dst = append(dst, byte(i-literalStart-1))
		dst = append(dst, src[literalStart:i]...)
	}

	return dst
}
