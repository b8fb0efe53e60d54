package pipeline

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/mrjoshuak/go-tomostack/volume"
)

// PersistenceState tracks whether a source's state is reflected on disk.
type PersistenceState int

const (
	// Saved means the source matches its last explicit save.
	Saved PersistenceState = iota
	// Modified means the source mutated since the last save.
	Modified
	// Transient sources are never included in a save.
	Transient
)

// String returns the state name.
func (p PersistenceState) String() string {
	switch p {
	case Saved:
		return "Saved"
	case Modified:
		return "Modified"
	case Transient:
		return "Transient"
	default:
		return "Unknown"
	}
}

// ReaderInfo records where a source's data came from.
type ReaderInfo struct {
	FileNames    []string
	TVH5NodePath string
}

// pendingRestore is a deferred child-source restoration, fired once after
// the first pipeline execution produces the operator's output source.
type pendingRestore struct {
	op    Operator
	doc   *Document
	fired bool
}

// DataSource owns one volume, its metadata, time-series steps, color-map
// state, and back-references to the operators consuming it. All mutating
// calls must be serialized by the caller; the type performs no locking.
type DataSource struct {
	env *Env

	label  string
	id     string
	reader ReaderInfo

	vol   *volume.Volume
	steps TimeSeriesStore

	operators []Operator
	modules   []Module

	persistence   PersistenceState
	rename        map[string]string // current name -> original name
	unitsModified bool
	colorMap      ColorMapState

	// Calibration frames held for flat-field correction, released on
	// Close.
	darkFrame  *volume.Array
	whiteFrame *volume.Array

	suppressRescale bool
	pipelinePaused  bool
	pending         []*pendingRestore
}

// New wraps a volume in a data source. A nil env is valid for sources
// that never touch the pipeline.
func New(env *Env, vol *volume.Volume, persistence PersistenceState) *DataSource {
	ds := &DataSource{
		env:         env,
		vol:         vol,
		persistence: persistence,
		rename:      make(map[string]string),
		colorMap:    NewColorMapState(),
	}
	vol.EnsureActive()
	return ds
}

// NewFromFiles wraps a decoded volume and records its source files. The
// label defaults to the first file's base name.
func NewFromFiles(env *Env, vol *volume.Volume, files []string, persistence PersistenceState) *DataSource {
	ds := New(env, vol, persistence)
	ds.reader.FileNames = append([]string(nil), files...)
	if len(files) > 0 {
		ds.label = filepath.Base(files[0])
	}
	return ds
}

// Label returns the display label, falling back to the first file name.
func (ds *DataSource) Label() string {
	if ds.label != "" {
		return ds.label
	}
	if len(ds.reader.FileNames) > 0 {
		return filepath.Base(ds.reader.FileNames[0])
	}
	return "Data source"
}

// SetLabel changes the display label.
func (ds *DataSource) SetLabel(label string) {
	ds.label = label
	ds.markModified()
}

// ID returns the stable identifier, generating one on first use.
func (ds *DataSource) ID() string {
	if ds.id == "" {
		var b [8]byte
		rand.Read(b[:])
		ds.id = hex.EncodeToString(b[:])
	}
	return ds.id
}

// Volume returns the active volume.
func (ds *DataSource) Volume() *volume.Volume { return ds.vol }

// Reader returns the source-file information.
func (ds *DataSource) Reader() ReaderInfo { return ds.reader }

// SetReader records the source-file information.
func (ds *DataSource) SetReader(info ReaderInfo) { ds.reader = info }

// Persistence returns the persistence state.
func (ds *DataSource) Persistence() PersistenceState { return ds.persistence }

// SetPersistence sets the persistence state directly. Used by explicit
// save actions; mutations use markModified instead.
func (ds *DataSource) SetPersistence(p PersistenceState) { ds.persistence = p }

// markModified flags unsaved changes. Transient sources stay transient.
func (ds *DataSource) markModified() {
	if ds.persistence == Saved {
		ds.persistence = Modified
	}
}

// ColorMap returns the transfer-function state for mutation.
func (ds *DataSource) ColorMap() *ColorMapState { return &ds.colorMap }

// ActiveScalars returns the active component array name.
func (ds *DataSource) ActiveScalars() string { return ds.vol.Active() }

// SetActiveScalars selects the named component array. A missing name is
// a logged no-op; the previous selection stays.
func (ds *DataSource) SetActiveScalars(name string) error {
	if err := ds.vol.SetActive(name); err != nil {
		ds.env.logf("setActiveScalars: %v", err)
		return err
	}
	ds.markModified()
	return nil
}

// SetActiveScalarsIndex selects a component array by position.
func (ds *DataSource) SetActiveScalarsIndex(i int) error {
	names := ds.vol.ArrayNames()
	if i < 0 || i >= len(names) {
		err := fmt.Errorf("%w: scalar array %d of %d", ErrIndexOutOfRange, i, len(names))
		ds.env.logf("setActiveScalars: %v", err)
		return err
	}
	return ds.SetActiveScalars(names[i])
}

// RenameScalarsArray renames a component array, keeping the original
// name in the provenance map so serialization can record the history.
// Renaming to an existing name is rejected, not overwritten.
func (ds *DataSource) RenameScalarsArray(oldName, newName string) error {
	if oldName == newName {
		return nil
	}
	if ds.vol.HasArray(newName) {
		err := fmt.Errorf("%w: %q", ErrNameCollision, newName)
		ds.env.logf("renameScalarsArray: %v", err)
		return err
	}
	if err := ds.vol.Rename(oldName, newName); err != nil {
		ds.env.logf("renameScalarsArray: %v", err)
		return err
	}
	if original, ok := ds.rename[oldName]; ok {
		delete(ds.rename, oldName)
		if original != newName {
			ds.rename[newName] = original
		}
	} else {
		ds.rename[newName] = oldName
	}
	ds.markModified()
	return nil
}

// ScalarsRename returns the current-name to original-name map.
func (ds *DataSource) ScalarsRename() map[string]string {
	out := make(map[string]string, len(ds.rename))
	for k, v := range ds.rename {
		out[k] = v
	}
	return out
}

// Type returns the dataset type.
func (ds *DataSource) Type() volume.DataSourceType { return ds.vol.Type() }

// SetType stamps the dataset type into the volume's field data. Leaving
// TiltSeries clears tilt angles; entering it ensures a correctly sized
// tilt-angle array.
func (ds *DataSource) SetType(t volume.DataSourceType) {
	ds.vol.SetType(t)
	ds.markModified()
}

// TiltAngles returns the tilt-angle array, or nil.
func (ds *DataSource) TiltAngles() []float64 { return ds.vol.TiltAngles() }

// SetTiltAngles stores tilt angles sized to the z extent.
func (ds *DataSource) SetTiltAngles(angles []float64) {
	ds.vol.SetTiltAngles(angles)
	ds.markModified()
}

// Units returns the per-axis unit strings.
func (ds *DataSource) Units() [3]string { return ds.vol.Field.Units() }

// SetUnits stores unit strings and flags the spacing/units pair for
// serialization.
func (ds *DataSource) SetUnits(units [3]string) {
	ds.vol.Field.SetUnits(units)
	ds.unitsModified = true
	ds.markModified()
}

// Spacing returns the physical voxel size.
func (ds *DataSource) Spacing() [3]float64 { return ds.vol.Spacing }

// SetSpacing changes the physical voxel size and flags the spacing/units
// pair for serialization.
func (ds *DataSource) SetSpacing(spacing [3]float64) {
	ds.vol.Spacing = spacing
	ds.unitsModified = true
	ds.markModified()
}

// PhysicalDimensions returns spacing times voxel count per axis.
func (ds *DataSource) PhysicalDimensions() [3]float64 {
	return ds.vol.PhysicalDimensions()
}

// AppendSlice grows the volume along z by the slice's depth. The slice's
// x/y extent must match. The new storage is fully built before the old
// buffers are dropped, so a failure never corrupts existing data. The
// appended layers of the active array come from the slice's active
// array; other arrays are zero-filled.
func (ds *DataSource) AppendSlice(slice *volume.Volume) error {
	cur := ds.vol.Extent
	ext := slice.Extent
	if ext.Dx() != cur.Dx() || ext.Dy() != cur.Dy() {
		err := fmt.Errorf("%w: slice is %dx%d, volume is %dx%d",
			ErrExtentMismatch, ext.Dx(), ext.Dy(), cur.Dx(), cur.Dy())
		ds.env.logf("appendSlice: %v", err)
		return err
	}
	src := slice.ActiveArray()
	active := ds.vol.ActiveArray()
	if src == nil || active == nil {
		err := fmt.Errorf("%w: no scalar array to append", ErrExtentMismatch)
		ds.env.logf("appendSlice: %v", err)
		return err
	}
	if src.Type() != active.Type() || src.Components() != active.Components() {
		err := fmt.Errorf("%w: slice scalars are %v x%d, volume wants %v x%d",
			ErrExtentMismatch, src.Type(), src.Components(),
			active.Type(), active.Components())
		ds.env.logf("appendSlice: %v", err)
		return err
	}

	grown := cur
	grown[5] += ext.Dz()
	voxels := grown.VoxelCount()

	replacements := make([]*volume.Array, 0, len(ds.vol.ArrayNames()))
	for _, name := range ds.vol.ArrayNames() {
		old := ds.vol.Array(name)
		bigger := volume.NewArray(name, old.Type(), old.Components(), voxels)
		copy(bigger.Bytes(), old.Bytes())
		if name == active.Name() {
			copy(bigger.Bytes()[len(old.Bytes()):], src.Bytes())
		}
		replacements = append(replacements, bigger)
	}
	for _, a := range replacements {
		if err := ds.vol.ReplaceArray(a); err != nil {
			return err
		}
	}
	ds.vol.SetExtent(grown)
	if ds.Type() == volume.TypeTiltSeries {
		ds.vol.EnsureTiltAngles()
	}
	ds.markModified()
	ds.execute(nil)
	return nil
}

// AddTimeSeriesStep appends a snapshot to the time series.
func (ds *DataSource) AddTimeSeriesStep(vol *volume.Volume, label string) {
	ds.steps.Append(TimeSeriesStep{Volume: vol, Label: label})
	ds.markModified()
}

// NumTimeSeriesSteps returns the number of steps.
func (ds *DataSource) NumTimeSeriesSteps() int { return ds.steps.NumSteps() }

// CurrentTimeSeriesStep returns the current step index.
func (ds *DataSource) CurrentTimeSeriesStep() int { return ds.steps.Current() }

// ClearTimeSeriesSteps drops all steps and resets the index.
func (ds *DataSource) ClearTimeSeriesSteps() {
	ds.steps.Clear()
	ds.markModified()
}

// SwitchTimeSeriesStep makes step i's volume the active one. An
// out-of-range index is a logged no-op: the index and active volume are
// untouched. Color-map rescaling is suppressed for the duration so the
// transfer function does not jump between steps.
func (ds *DataSource) SwitchTimeSeriesStep(i int) error {
	if err := ds.steps.Switch(i); err != nil {
		ds.env.logf("switchTimeSeriesStep: %v", err)
		return err
	}
	ds.suppressRescale = true
	defer func() { ds.suppressRescale = false }()

	ds.vol = ds.steps.Step(i).Volume
	ds.DataModified()
	return nil
}

// DataModified re-synchronizes metadata after the volume's contents
// changed: the active selection is repaired, tilt angles are resized to
// the z extent for tilt series, and the color map is rescaled to the new
// value range unless a step switch is in progress.
func (ds *DataSource) DataModified() {
	ds.vol.EnsureActive()
	if ds.Type() == volume.TypeTiltSeries {
		ds.vol.EnsureTiltAngles()
	}
	if !ds.suppressRescale {
		ds.colorMap.RescaleToArray(ds.vol.ActiveArray())
	}
	ds.markModified()
}

// Clone returns an independent copy of the source: deep-copied volume,
// per-step copies of the time series, copied rename and color-map state.
// The clone starts in the Modified persistence state.
func (ds *DataSource) Clone() *DataSource {
	out := New(ds.env, ds.vol.DeepCopy(), Modified)
	out.label = ds.label
	out.reader = ds.reader
	out.unitsModified = ds.unitsModified
	out.colorMap = ds.colorMap.Clone()
	for k, v := range ds.rename {
		out.rename[k] = v
	}
	for i := 0; i < ds.steps.NumSteps(); i++ {
		step := ds.steps.Step(i)
		out.steps.Append(TimeSeriesStep{
			Volume: step.Volume.DeepCopy(),
			Label:  step.Label,
		})
	}
	out.steps.Switch(ds.steps.Current())
	return out
}

// Operators returns the operator back-references in chain order.
func (ds *DataSource) Operators() []Operator {
	return append([]Operator(nil), ds.operators...)
}

// NumOperators returns the operator count.
func (ds *DataSource) NumOperators() int { return len(ds.operators) }

// AddOperator appends an operator to the chain and executes it unless
// the pipeline is paused.
func (ds *DataSource) AddOperator(op Operator) {
	ds.operators = append(ds.operators, op)
	ds.markModified()
	if !ds.pipelinePaused {
		ds.execute(op)
	}
}

// RemoveOperator drops an operator from the chain.
func (ds *DataSource) RemoveOperator(op Operator) {
	for i, o := range ds.operators {
		if o == op {
			ds.operators = append(ds.operators[:i], ds.operators[i+1:]...)
			ds.markModified()
			return
		}
	}
}

// Modules returns the display modules attached to the source.
func (ds *DataSource) Modules() []Module {
	return append([]Module(nil), ds.modules...)
}

// AddModule attaches a display module.
func (ds *DataSource) AddModule(m Module) {
	ds.modules = append(ds.modules, m)
	ds.markModified()
}

// DarkFrame returns the dark calibration frame, or nil.
func (ds *DataSource) DarkFrame() *volume.Array { return ds.darkFrame }

// SetDarkFrame stores a dark calibration frame.
func (ds *DataSource) SetDarkFrame(a *volume.Array) { ds.darkFrame = a }

// WhiteFrame returns the white calibration frame, or nil.
func (ds *DataSource) WhiteFrame() *volume.Array { return ds.whiteFrame }

// SetWhiteFrame stores a white calibration frame.
func (ds *DataSource) SetWhiteFrame(a *volume.Array) { ds.whiteFrame = a }

// Close releases transient resources: calibration frames and any
// child-restore continuations that never fired.
func (ds *DataSource) Close() {
	ds.darkFrame = nil
	ds.whiteFrame = nil
	ds.pending = nil
}

// RunPipeline executes the operator chain and fires any deferred child
// restorations when the execution completes.
func (ds *DataSource) RunPipeline() *Completion {
	return ds.execute(nil)
}

// execute runs the chain through the env's executor, attaching pending
// child restorations to the completion. With no executor the completion
// is finished immediately.
func (ds *DataSource) execute(from Operator) *Completion {
	var c *Completion
	if ds.env != nil && ds.env.Executor != nil {
		c = ds.env.Executor.Execute(ds, from)
	}
	if c == nil {
		c = &Completion{}
		defer c.Finish()
	}
	for _, p := range ds.pending {
		p := p
		c.OnDone(func() { ds.fireRestore(p) })
	}
	return c
}

// fireRestore applies one deferred child-source restoration, exactly
// once. Operators that still have no child after execution are logged
// and skipped.
func (ds *DataSource) fireRestore(p *pendingRestore) {
	if p.fired {
		return
	}
	p.fired = true
	child := p.op.ChildDataSource()
	if child == nil {
		ds.env.logf("deferred restore: operator %q produced no child source",
			p.op.TypeName())
		return
	}
	if err := child.Deserialize(p.doc); err != nil {
		ds.env.logf("deferred restore: %v", err)
	}
}
