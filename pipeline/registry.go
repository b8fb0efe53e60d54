// Package pipeline provides the mutable data-source state machine sitting
// between decoded volumes and an external processing pipeline: active
// scalar selection, dataset type and tilt-angle bookkeeping, time-series
// steps, color-map state, and serialization of the whole thing to a
// structured document.
//
// All collaborators the state machine needs (the pipeline executor, view
// registry, color-map service, operator and module factories) are passed
// in through an Env value rather than reached through process globals, so
// a DataSource is fully testable in isolation.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/mrjoshuak/go-tomostack/volume"
)

// Pipeline errors
var (
	ErrExtentMismatch  = errors.New("pipeline: slice extent does not match volume")
	ErrNameCollision   = errors.New("pipeline: scalar array name already taken")
	ErrIndexOutOfRange = errors.New("pipeline: index out of range")
	ErrStateCorrupt    = errors.New("pipeline: state document references missing entity")
	ErrNotReloadable   = errors.New("pipeline: source cannot be reloaded")
	ErrUnknownType     = errors.New("pipeline: unknown factory type")
)

// Completion represents one pipeline execution. Hooks attached with
// OnDone fire exactly once, either when Finish is called or immediately
// if the execution already finished.
type Completion struct {
	done  bool
	hooks []func()
}

// OnDone attaches a continuation to the completion.
func (c *Completion) OnDone(fn func()) {
	if c.done {
		fn()
		return
	}
	c.hooks = append(c.hooks, fn)
}

// Finish marks the execution complete and fires pending hooks in order.
// Calling Finish again is a no-op.
func (c *Completion) Finish() {
	if c.done {
		return
	}
	c.done = true
	hooks := c.hooks
	c.hooks = nil
	for _, fn := range hooks {
		fn()
	}
}

// Done reports whether the execution has finished.
func (c *Completion) Done() bool { return c.done }

// Executor runs a source's operator chain. From restricts execution to
// the chain starting at the given operator; nil means the whole chain.
type Executor interface {
	Execute(ds *DataSource, from Operator) *Completion
}

// View identifies a render view a module is attached to.
type View struct {
	ID string
}

// Views resolves view references from state documents.
type Views interface {
	// View returns the view with the given id, or nil.
	View(id string) *View
	// ActiveView returns the fallback view for unresolvable references.
	ActiveView() *View
}

// ColorMaps is the color-map preset service.
type ColorMaps interface {
	ApplyPreset(name string, m *ColorOpacityMap) error
}

// Operator is one step of a source's processing chain. Operators are
// owned by the pipeline; a DataSource keeps back-references only.
type Operator interface {
	TypeName() string
	Serialize() (json.RawMessage, error)
	Deserialize(json.RawMessage) error

	// ChildDataSource returns the output source the operator produced, or
	// nil before its first execution.
	ChildDataSource() *DataSource
}

// OperatorFactory constructs an operator owned by ds.
type OperatorFactory func(ds *DataSource) (Operator, error)

// OperatorRegistry maps operator type names to factories.
type OperatorRegistry struct {
	factories map[string]OperatorFactory
}

// NewOperatorRegistry returns an empty registry.
func NewOperatorRegistry() *OperatorRegistry {
	return &OperatorRegistry{factories: make(map[string]OperatorFactory)}
}

// Register adds a factory under a type name, replacing any existing one.
func (r *OperatorRegistry) Register(typeName string, fn OperatorFactory) {
	r.factories[typeName] = fn
}

// Create constructs an operator of the named type.
func (r *OperatorRegistry) Create(typeName string, ds *DataSource) (Operator, error) {
	fn, ok := r.factories[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: operator %q", ErrUnknownType, typeName)
	}
	return fn(ds)
}

// Module is a display module attached to a source in a particular view.
type Module interface {
	TypeName() string
	Serialize() (json.RawMessage, error)
	Deserialize(json.RawMessage) error
	View() *View
}

// ModuleFactory constructs a module showing ds in view.
type ModuleFactory func(ds *DataSource, view *View) (Module, error)

// ModuleRegistry maps module type names to factories.
type ModuleRegistry struct {
	factories map[string]ModuleFactory
}

// NewModuleRegistry returns an empty registry.
func NewModuleRegistry() *ModuleRegistry {
	return &ModuleRegistry{factories: make(map[string]ModuleFactory)}
}

// Register adds a factory under a type name, replacing any existing one.
func (r *ModuleRegistry) Register(typeName string, fn ModuleFactory) {
	r.factories[typeName] = fn
}

// Create constructs a module of the named type.
func (r *ModuleRegistry) Create(typeName string, ds *DataSource, view *View) (Module, error) {
	fn, ok := r.factories[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: module %q", ErrUnknownType, typeName)
	}
	return fn(ds, view)
}

// ResampleOptions control a reload of a subsampled source.
type ResampleOptions struct {
	Strides      [3]int32
	VolumeBounds [6]int32
	Subsample    bool
}

// FormatReader loads a volume from a container file.
type FormatReader func(path string, opts ResampleOptions) (*volume.Volume, error)

// ReaderRegistry maps lower-case file extensions (with leading dot) to
// format readers.
type ReaderRegistry struct {
	readers map[string]FormatReader
}

// NewReaderRegistry returns an empty registry.
func NewReaderRegistry() *ReaderRegistry {
	return &ReaderRegistry{readers: make(map[string]FormatReader)}
}

// Register adds a reader for an extension, replacing any existing one.
func (r *ReaderRegistry) Register(ext string, fn FormatReader) {
	r.readers[ext] = fn
}

// Lookup returns the reader for an extension, or nil.
func (r *ReaderRegistry) Lookup(ext string) FormatReader {
	if r == nil {
		return nil
	}
	return r.readers[ext]
}

// Env carries the collaborators a DataSource operates against.
type Env struct {
	Executor  Executor
	Views     Views
	ColorMaps ColorMaps
	Operators *OperatorRegistry
	Modules   *ModuleRegistry
	Readers   *ReaderRegistry
	Logger    *log.Logger

	// RunPipelinesOnLoad triggers execution after deserializing a source
	// with operators.
	RunPipelinesOnLoad bool
}

// logf reports a diagnostic. Env and Logger may both be nil.
func (e *Env) logf(format string, args ...any) {
	if e == nil || e.Logger == nil {
		return
	}
	e.Logger.Printf(format, args...)
}
