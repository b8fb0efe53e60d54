package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/mrjoshuak/go-tomostack/volume"
)

// testVolume builds a volume with one uint8 "Scalars" array filled with
// a deterministic ramp.
func testVolume(w, h, d int) *volume.Volume {
	v := volume.New(volume.Extent{0, w - 1, 0, h - 1, 0, d - 1})
	a := volume.NewArray("Scalars", volume.Uint8, 1, v.Extent.VoxelCount())
	for i := 0; i < a.Len(); i++ {
		a.SetValue(i, 0, float64(i%251))
	}
	if err := v.AddArray(a); err != nil {
		panic(err)
	}
	return v
}

// fakeExecutor records executions and hands out completions the test
// finishes by hand.
type fakeExecutor struct {
	calls       []Operator
	completions []*Completion
	finishNow   bool
}

func (e *fakeExecutor) Execute(ds *DataSource, from Operator) *Completion {
	c := &Completion{}
	e.calls = append(e.calls, from)
	e.completions = append(e.completions, c)
	if e.finishNow {
		c.Finish()
	}
	return c
}

type fakeViews struct {
	views  map[string]*View
	active *View
}

func (v *fakeViews) View(id string) *View { return v.views[id] }
func (v *fakeViews) ActiveView() *View    { return v.active }

type fakeOperator struct {
	typeName string
	payload  json.RawMessage
	child    *DataSource
}

func (o *fakeOperator) TypeName() string { return o.typeName }

func (o *fakeOperator) Serialize() (json.RawMessage, error) {
	if o.payload == nil {
		return json.RawMessage(`{}`), nil
	}
	return o.payload, nil
}

func (o *fakeOperator) Deserialize(raw json.RawMessage) error {
	o.payload = raw
	return nil
}

func (o *fakeOperator) ChildDataSource() *DataSource { return o.child }

type fakeModule struct {
	typeName string
	view     *View
	payload  json.RawMessage
}

func (m *fakeModule) TypeName() string { return m.typeName }

func (m *fakeModule) Serialize() (json.RawMessage, error) {
	if m.payload == nil {
		return json.RawMessage(`{}`), nil
	}
	return m.payload, nil
}

func (m *fakeModule) Deserialize(raw json.RawMessage) error {
	m.payload = raw
	return nil
}

func (m *fakeModule) View() *View { return m.view }

func TestCompletionHooks(t *testing.T) {
	var fired []int
	c := &Completion{}
	c.OnDone(func() { fired = append(fired, 1) })
	c.OnDone(func() { fired = append(fired, 2) })
	if c.Done() || len(fired) != 0 {
		t.Fatal("hooks fired before Finish")
	}
	c.Finish()
	if !c.Done() || len(fired) != 2 || fired[0] != 1 {
		t.Fatalf("after Finish: done=%t fired=%v", c.Done(), fired)
	}

	// A hook attached after completion fires immediately, and a second
	// Finish is a no-op.
	c.OnDone(func() { fired = append(fired, 3) })
	c.Finish()
	if len(fired) != 3 || fired[2] != 3 {
		t.Errorf("late hook: fired=%v", fired)
	}
}

func TestRegistries(t *testing.T) {
	ops := NewOperatorRegistry()
	ops.Register("crop", func(ds *DataSource) (Operator, error) {
		return &fakeOperator{typeName: "crop"}, nil
	})
	if _, err := ops.Create("bogus", nil); err == nil {
		t.Error("unknown operator type accepted")
	}
	op, err := ops.Create("crop", nil)
	if err != nil || op.TypeName() != "crop" {
		t.Errorf("Create = %v, %v", op, err)
	}

	mods := NewModuleRegistry()
	mods.Register("outline", func(ds *DataSource, view *View) (Module, error) {
		return &fakeModule{typeName: "outline", view: view}, nil
	})
	if _, err := mods.Create("bogus", nil, nil); err == nil {
		t.Error("unknown module type accepted")
	}

	var readers *ReaderRegistry
	if readers.Lookup(".emd") != nil {
		t.Error("nil registry lookup not nil")
	}
}
