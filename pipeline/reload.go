package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
)

// reloadableExtensions are the container formats whose readers support
// re-reading with a resample request.
var reloadableExtensions = map[string]bool{
	".emd":  true,
	".h5":   true,
	".he5":  true,
	".hdf5": true,
}

// CanReloadAndResample reports whether the source can be re-read with
// different subsample settings: exactly one backing file with a
// recognized container extension.
func (ds *DataSource) CanReloadAndResample() bool {
	if len(ds.reader.FileNames) != 1 {
		return false
	}
	ext := strings.ToLower(filepath.Ext(ds.reader.FileNames[0]))
	return reloadableExtensions[ext]
}

// ReloadAndResample re-invokes the matching format reader with resample
// options, swaps the volume in place, records the subsample provenance,
// and re-executes the operator chain if one exists. The old volume is
// untouched on failure.
func (ds *DataSource) ReloadAndResample(opts ResampleOptions) error {
	if !ds.CanReloadAndResample() {
		err := fmt.Errorf("%w: %v", ErrNotReloadable, ds.reader.FileNames)
		ds.env.logf("reloadAndResample: %v", err)
		return err
	}
	path := ds.reader.FileNames[0]
	ext := strings.ToLower(filepath.Ext(path))

	var reader FormatReader
	if ds.env != nil {
		reader = ds.env.Readers.Lookup(ext)
	}
	if reader == nil {
		err := fmt.Errorf("%w: no reader registered for %q", ErrNotReloadable, ext)
		ds.env.logf("reloadAndResample: %v", err)
		return err
	}

	vol, err := reader(path, opts)
	if err != nil {
		return err
	}
	if opts.Subsample {
		vol.Field.SetWasSubsampled(true)
		vol.Field.SetSubsampleStrides(opts.Strides)
		vol.Field.SetSubsampleVolumeBounds(opts.VolumeBounds)
	}
	ds.vol = vol
	ds.DataModified()
	if len(ds.operators) > 0 {
		ds.execute(nil)
	}
	return nil
}
