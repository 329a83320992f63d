package stateserver

import (
	"testing"

	"github.com/toontownretro/otp-server/internal/dclass"
	"github.com/toontownretro/otp-server/internal/model"
)

type fakeBroadcaster struct {
	creates []*model.DistributedObject
	deletes []*model.DistributedObject
	moves   []*model.DistributedObject
	updates []*model.DistributedObject
}

func (f *fakeBroadcaster) BroadcastCreate(o *model.DistributedObject) { f.creates = append(f.creates, o) }
func (f *fakeBroadcaster) BroadcastDelete(o *model.DistributedObject) { f.deletes = append(f.deletes, o) }
func (f *fakeBroadcaster) BroadcastMove(o *model.DistributedObject, prev model.Location) {
	f.moves = append(f.moves, o)
}
func (f *fakeBroadcaster) BroadcastUpdate(o *model.DistributedObject, field *dclass.Field, v dclass.Value, sender uint64) {
	f.updates = append(f.updates, o)
}

type fakePersister struct {
	saved map[string]dclass.Value
}

func (f *fakePersister) SaveField(doID model.DoID, fieldName string, v dclass.Value) error {
	if f.saved == nil {
		f.saved = make(map[string]dclass.Value)
	}
	f.saved[fieldName] = v
	return nil
}

func testRegistry() *dclass.Registry {
	class := dclass.NewClass(1, "DistributedToon", []*dclass.Field{
		{Number: 1, Name: "setName", Kind: dclass.KindAtomic, Flags: dclass.FlagRequired | dclass.FlagDB | dclass.FlagBroadcast, Default: dclass.Str("")},
		{Number: 2, Name: "setHP", Kind: dclass.KindAtomic, Flags: dclass.FlagDB | dclass.FlagBroadcast | dclass.FlagOwnSend},
	})
	return dclass.NewRegistry(class)
}

func TestGenerateInsertsAndBroadcasts(t *testing.T) {
	bc := &fakeBroadcaster{}
	ss := New(testRegistry(), bc, nil)

	args := GenerateArgs{
		ParentID:       2000,
		ZoneID:         2100,
		ClassID:        1,
		DoID:           55,
		RequiredFields: dclass.Pack(dclass.Str("Mickey")),
	}
	if err := ss.Generate(args); err != nil {
		t.Fatal(err)
	}

	obj, ok := ss.Lookup(55)
	if !ok {
		t.Fatal("expected object to be registered")
	}
	if v, _ := obj.Field("setName"); v.Str != "Mickey" {
		t.Fatalf("expected setName=Mickey, got %+v", v)
	}
	if len(bc.creates) != 1 {
		t.Fatalf("expected one create broadcast, got %d", len(bc.creates))
	}
}

func TestGenerateRejectsDuplicateDoID(t *testing.T) {
	ss := New(testRegistry(), nil, nil)
	args := GenerateArgs{ClassID: 1, DoID: 1, RequiredFields: dclass.Pack(dclass.Str(""))}
	if err := ss.Generate(args); err != nil {
		t.Fatal(err)
	}
	if err := ss.Generate(args); err == nil {
		t.Fatal("expected error generating duplicate doId")
	}
}

func TestDeleteRemovesAndBroadcasts(t *testing.T) {
	bc := &fakeBroadcaster{}
	ss := New(testRegistry(), bc, nil)
	ss.Generate(GenerateArgs{ClassID: 1, DoID: 7, RequiredFields: dclass.Pack(dclass.Str(""))})

	ss.Delete(7)

	if _, ok := ss.Lookup(7); ok {
		t.Fatal("expected object removed")
	}
	if len(bc.deletes) != 1 {
		t.Fatalf("expected one delete broadcast, got %d", len(bc.deletes))
	}
}

func TestSetZoneUpdatesLocationAndBroadcasts(t *testing.T) {
	bc := &fakeBroadcaster{}
	ss := New(testRegistry(), bc, nil)
	ss.Generate(GenerateArgs{ClassID: 1, DoID: 7, ParentID: 2000, ZoneID: 2100, RequiredFields: dclass.Pack(dclass.Str(""))})

	ss.SetZone(7, model.Location{ParentID: 2000, ZoneID: 2200})

	obj, _ := ss.Lookup(7)
	if obj.Location().ZoneID != 2200 {
		t.Fatalf("expected zone 2200, got %d", obj.Location().ZoneID)
	}
	if len(bc.moves) != 1 {
		t.Fatalf("expected one move broadcast, got %d", len(bc.moves))
	}
}

func TestUpdateFieldPersistsForDBObjects(t *testing.T) {
	bc := &fakeBroadcaster{}
	ps := &fakePersister{}
	ss := New(testRegistry(), bc, ps)

	ss.Generate(GenerateArgs{ClassID: 1, DoID: 9, RequiredFields: dclass.Pack(dclass.Str("x"))})
	obj, _ := ss.Lookup(9)
	ss.RegisterHydrated(obj)
	// Generate() above also put it in the ephemeral map; remove that to
	// simulate a genuinely hydrated (DB-only) object for this test.
	ss.mu.Lock()
	delete(ss.objects, 9)
	ss.mu.Unlock()

	field := testRegistry()
	class, _ := field.ClassByNumber(1)
	hpField := class.FieldByNumber(2)

	if err := ss.UpdateField(9, hpField.Number, dclass.Pack(dclass.Uint64v(42)), 0); err != nil {
		t.Fatal(err)
	}

	if ps.saved["setHP"].UInt != 42 {
		t.Fatalf("expected persisted setHP=42, got %+v", ps.saved["setHP"])
	}
	if len(bc.updates) != 1 {
		t.Fatalf("expected one update broadcast, got %d", len(bc.updates))
	}
}

func TestUpdateFieldOnUnknownDoIDIsANoop(t *testing.T) {
	ss := New(testRegistry(), nil, nil)
	if err := ss.UpdateField(404, 2, dclass.Pack(dclass.Uint64v(1)), 0); err != nil {
		t.Fatalf("expected no error for unknown doId, got %v", err)
	}
}
