package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/mrjoshuak/go-tomostack/volume"
)

// Document is the persisted state of a data source. Field names are part
// of the on-disk format and must not change.
type Document struct {
	Label             string              `json:"label,omitempty"`
	Reader            *ReaderDocument     `json:"reader,omitempty"`
	SubsampleSettings *SubsampleDocument  `json:"subsampleSettings,omitempty"`
	Spacing           *[3]float64         `json:"spacing,omitempty"`
	Units             string              `json:"units,omitempty"`
	Origin            *[3]float64         `json:"origin,omitempty"`
	Orientation       *[3]float64         `json:"orientation,omitempty"`
	ActiveScalars     string              `json:"activeScalars,omitempty"`
	ScalarsRename     map[string]string   `json:"scalarsRename,omitempty"`
	DataSourceType    string              `json:"dataSourceType,omitempty"`
	TiltAngles        []float64           `json:"tiltAngles,omitempty"`
	ColorOpacityMap   *ColorOpacityMap    `json:"colorOpacityMap,omitempty"`
	GradientOpacity   []OpacityNode       `json:"gradientOpacityMap,omitempty"`
	ColorMap2DBox     *Box2D              `json:"colorMap2DBox,omitempty"`
	Operators         []OperatorDocument  `json:"operators,omitempty"`
	Modules           []ModuleDocument    `json:"modules,omitempty"`
	ID                string              `json:"id,omitempty"`
	Active            bool                `json:"active,omitempty"`
}

// ReaderDocument records the source files.
type ReaderDocument struct {
	FileNames    []string `json:"fileNames,omitempty"`
	TVH5NodePath string   `json:"tvh5NodePath,omitempty"`
}

// SubsampleDocument records subsample provenance.
type SubsampleDocument struct {
	Strides      [3]int32 `json:"strides"`
	VolumeBounds [6]int32 `json:"volumeBounds"`
}

// OperatorDocument is one serialized operator of the chain, in order.
type OperatorDocument struct {
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	DataSources []Document      `json:"dataSources,omitempty"`
}

// ModuleDocument is one serialized display module.
type ModuleDocument struct {
	Type    string          `json:"type"`
	ViewID  string          `json:"viewId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Serialize captures the source's full state. Spacing and units are only
// written when they were explicitly modified; subsample provenance only
// when the volume was produced by subsampling. Transient child sources
// are skipped.
func (ds *DataSource) Serialize(active bool) (*Document, error) {
	doc := &Document{
		Label:         ds.Label(),
		ID:            ds.ID(),
		Active:        active,
		ActiveScalars: ds.vol.Active(),
	}

	if len(ds.reader.FileNames) > 0 || ds.reader.TVH5NodePath != "" {
		doc.Reader = &ReaderDocument{
			FileNames:    append([]string(nil), ds.reader.FileNames...),
			TVH5NodePath: ds.reader.TVH5NodePath,
		}
	}

	if ds.unitsModified {
		spacing := ds.vol.Spacing
		doc.Spacing = &spacing
		doc.Units = ds.vol.Field.Units()[0]
	}
	origin := ds.vol.Origin
	doc.Origin = &origin
	orientation := ds.vol.Orientation
	doc.Orientation = &orientation

	if ds.vol.Field.WasSubsampled() {
		doc.SubsampleSettings = &SubsampleDocument{
			Strides:      ds.vol.Field.SubsampleStrides(),
			VolumeBounds: ds.vol.Field.SubsampleVolumeBounds(),
		}
	}

	if len(ds.rename) > 0 {
		doc.ScalarsRename = ds.ScalarsRename()
	}

	if t := ds.vol.Type(); t != volume.TypeVolume {
		doc.DataSourceType = t.String()
	}
	if angles := ds.vol.TiltAngles(); len(angles) > 0 {
		doc.TiltAngles = append([]float64(nil), angles...)
	}

	co := ds.colorMap.ColorOpacity
	doc.ColorOpacityMap = &co
	doc.GradientOpacity = append([]OpacityNode(nil), ds.colorMap.GradientOpacity...)
	if ds.colorMap.Box.IsSet() {
		box := ds.colorMap.Box
		doc.ColorMap2DBox = &box
	}

	for _, m := range ds.modules {
		payload, err := m.Serialize()
		if err != nil {
			return nil, fmt.Errorf("module %q: %w", m.TypeName(), err)
		}
		md := ModuleDocument{Type: m.TypeName(), Payload: payload}
		if v := m.View(); v != nil {
			md.ViewID = v.ID
		}
		doc.Modules = append(doc.Modules, md)
	}

	for _, op := range ds.operators {
		payload, err := op.Serialize()
		if err != nil {
			return nil, fmt.Errorf("operator %q: %w", op.TypeName(), err)
		}
		od := OperatorDocument{Type: op.TypeName(), Payload: payload}
		if child := op.ChildDataSource(); child != nil && child.persistence != Transient {
			childDoc, err := child.Serialize(false)
			if err != nil {
				return nil, err
			}
			od.DataSources = append(od.DataSources, *childDoc)
		}
		doc.Operators = append(doc.Operators, od)
	}

	return doc, nil
}

// Deserialize restores state from a document. It is maximally tolerant:
// missing fields are skipped, unknown module or operator types fail only
// their own entry, and unresolvable view references fall back to the
// active view. Modules are restored before operators, the pipeline is
// paused while the chain is rebuilt, child sources are restored through
// a one-shot hook after the first execution, and execution resumes only
// when the env allows running pipelines on load.
func (ds *DataSource) Deserialize(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", ErrStateCorrupt)
	}

	if doc.Label != "" {
		ds.label = doc.Label
	}
	if doc.ID != "" {
		ds.id = doc.ID
	}
	if doc.Reader != nil {
		ds.reader = ReaderInfo{
			FileNames:    append([]string(nil), doc.Reader.FileNames...),
			TVH5NodePath: doc.Reader.TVH5NodePath,
		}
	}
	if doc.Spacing != nil {
		ds.vol.Spacing = *doc.Spacing
		ds.unitsModified = true
	}
	if doc.Units != "" {
		ds.vol.Field.SetUnits([3]string{doc.Units, doc.Units, doc.Units})
		ds.unitsModified = true
	}
	if doc.Origin != nil {
		ds.vol.Origin = *doc.Origin
	}
	if doc.Orientation != nil {
		ds.vol.Orientation = *doc.Orientation
	}
	if doc.SubsampleSettings != nil {
		ds.vol.Field.SetWasSubsampled(true)
		ds.vol.Field.SetSubsampleStrides(doc.SubsampleSettings.Strides)
		ds.vol.Field.SetSubsampleVolumeBounds(doc.SubsampleSettings.VolumeBounds)
	}

	// Replay recorded renames so array names match the document before
	// the active selection is restored.
	for newName, original := range doc.ScalarsRename {
		if ds.vol.HasArray(original) && !ds.vol.HasArray(newName) {
			if err := ds.vol.Rename(original, newName); err == nil {
				ds.rename[newName] = original
			}
		} else if ds.vol.HasArray(newName) {
			ds.rename[newName] = original
		}
	}
	if doc.ActiveScalars != "" {
		if err := ds.vol.SetActive(doc.ActiveScalars); err != nil {
			ds.env.logf("deserialize: %v", err)
		}
	}

	if doc.DataSourceType != "" {
		if t, ok := volume.ParseDataSourceType(doc.DataSourceType); ok {
			ds.vol.SetType(t)
		} else {
			ds.env.logf("deserialize: unknown dataset type %q", doc.DataSourceType)
		}
	}
	if len(doc.TiltAngles) > 0 && ds.vol.Type() == volume.TypeTiltSeries {
		ds.vol.SetTiltAngles(append([]float64(nil), doc.TiltAngles...))
		ds.vol.EnsureTiltAngles()
	}

	if doc.ColorOpacityMap != nil {
		ds.colorMap.ColorOpacity = *doc.ColorOpacityMap
	}
	if doc.GradientOpacity != nil {
		ds.colorMap.GradientOpacity = append([]OpacityNode(nil), doc.GradientOpacity...)
	}
	if doc.ColorMap2DBox != nil {
		ds.colorMap.Box = *doc.ColorMap2DBox
	}

	ds.deserializeModules(doc.Modules)

	ds.pipelinePaused = true
	ds.deserializeOperators(doc.Operators)
	ds.pipelinePaused = false

	if ds.env != nil && ds.env.RunPipelinesOnLoad && len(ds.operators) > 0 {
		ds.execute(nil)
	}
	return nil
}

func (ds *DataSource) deserializeModules(docs []ModuleDocument) {
	if len(docs) == 0 || ds.env == nil || ds.env.Modules == nil {
		return
	}
	for _, md := range docs {
		var view *View
		if ds.env.Views != nil {
			view = ds.env.Views.View(md.ViewID)
			if view == nil {
				ds.env.logf("deserialize: view %q not found, using active view", md.ViewID)
				view = ds.env.Views.ActiveView()
			}
		}
		m, err := ds.env.Modules.Create(md.Type, ds, view)
		if err != nil {
			ds.env.logf("deserialize: %v", err)
			continue
		}
		if len(md.Payload) > 0 {
			if err := m.Deserialize(md.Payload); err != nil {
				ds.env.logf("deserialize: module %q: %v", md.Type, err)
				continue
			}
		}
		ds.modules = append(ds.modules, m)
	}
}

func (ds *DataSource) deserializeOperators(docs []OperatorDocument) {
	if len(docs) == 0 || ds.env == nil || ds.env.Operators == nil {
		return
	}
	for _, od := range docs {
		op, err := ds.env.Operators.Create(od.Type, ds)
		if err != nil {
			ds.env.logf("deserialize: %v", err)
			continue
		}
		if len(od.Payload) > 0 {
			if err := op.Deserialize(od.Payload); err != nil {
				ds.env.logf("deserialize: operator %q: %v", od.Type, err)
				continue
			}
		}
		ds.operators = append(ds.operators, op)
		for i := range od.DataSources {
			childDoc := od.DataSources[i]
			ds.pending = append(ds.pending, &pendingRestore{op: op, doc: &childDoc})
		}
	}
}

// ResyncTypeTag re-reads the dataset type tag from the volume's field
// data after an external operation replaced it wholesale, repairing the
// tilt-angle invariant for tilt series.
func (ds *DataSource) ResyncTypeTag() {
	if ds.vol.Type() == volume.TypeTiltSeries {
		ds.vol.EnsureTiltAngles()
	} else {
		ds.vol.Field.ClearTiltAngles()
	}
}
