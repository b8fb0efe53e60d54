package tiff

import (
	"fmt"

	"github.com/mrjoshuak/go-tomostack/volume"
)

// DecodeStack decodes an ordered list of files as one volume, one file
// per z slice. Every file must match the first in width, height, sample
// type, and component count. Spacing and units come from the first
// file's OME metadata.
func DecodeStack(paths []string) (*volume.Volume, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: empty path list", ErrCannotOpen)
	}

	first, err := Open(paths[0])
	if err != nil {
		return nil, err
	}
	m, err := first.OME()
	if err != nil {
		return nil, err
	}
	st, err := first.SampleType()
	if err != nil {
		return nil, err
	}
	comps := first.NumComponents()
	width := first.primary[0].Width
	height := first.primary[0].Height

	ext := volume.Extent{0, width - 1, 0, height - 1, 0, len(paths) - 1}
	arr := volume.NewArray(DefaultArrayName, st, comps, ext.VoxelCount())
	sliceBytes := width * height * comps * st.Size()
	sliceExt := volume.Extent{0, width - 1, 0, height - 1, 0, 0}

	for i, path := range paths {
		f := first
		if i > 0 {
			f, err = Open(path)
			if err != nil {
				return nil, fmt.Errorf("slice %d: %w", i, err)
			}
		}
		p := f.primary[0]
		if p.Width != width || p.Height != height {
			return nil, fmt.Errorf("%w: %s is %dx%d, stack is %dx%d",
				ErrExtent, path, p.Width, p.Height, width, height)
		}
		fst, err := f.SampleType()
		if err != nil {
			return nil, fmt.Errorf("slice %d: %w", i, err)
		}
		if fst != st || f.NumComponents() != comps {
			return nil, fmt.Errorf("%w: %s sample layout differs from stack",
				ErrExtent, path)
		}

		dst := volume.NewArrayFromBytes(DefaultArrayName, st, comps,
			arr.Bytes()[i*sliceBytes:(i+1)*sliceBytes])
		if err := f.Decode(dst, sliceExt); err != nil {
			return nil, fmt.Errorf("slice %d: %w", i, err)
		}
	}

	vol := volume.New(ext)
	vol.Spacing = m.PhysicalPixelSize
	vol.Field.SetUnits(m.PhysicalPixelUnits)
	if err := vol.AddArray(arr); err != nil {
		return nil, err
	}
	return vol, nil
}
