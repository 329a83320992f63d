package plaintext

import (
	"context"
	"testing"

	"github.com/toontownretro/otp-server/internal/dbbackend"
	"github.com/toontownretro/otp-server/internal/dclass"
	"github.com/toontownretro/otp-server/internal/model"
)

func testRegistry() *dclass.Registry {
	class := dclass.NewClass(1, "DistributedToon", []*dclass.Field{
		{Number: 1, Name: "setName", Kind: dclass.KindAtomic, Flags: dclass.FlagRequired | dclass.FlagDB, Default: dclass.Str("")},
		{Number: 2, Name: "setDNAString", Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Blob(nil)},
	})
	return dclass.NewRegistry(class)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	registry := testRegistry()
	backend := New(t.TempDir(), ".db", registry)
	ctx := context.Background()

	class, _ := registry.ClassByNumber(1)
	obj := model.NewDatabaseObject(10_000_000, class, model.NewUUID("DistributedToon", 10_000_000, 1700000000))
	obj.SetField("setName", dclass.Str("Mickey"))
	obj.SetField("setDNAString", dclass.Blob([]byte{1, 2, 3, 4}))

	if err := backend.Save(ctx, obj); err != nil {
		t.Fatal(err)
	}

	loaded, ok, err := backend.Load(ctx, 10_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected object to be found")
	}
	if loaded.UUID != obj.UUID {
		t.Fatalf("expected stable uuId, got %s want %s", loaded.UUID, obj.UUID)
	}
	if v, _ := loaded.Field("setName"); v.Str != "Mickey" {
		t.Fatalf("expected setName=Mickey, got %+v", v)
	}
	if v, _ := loaded.Field("setDNAString"); string(v.Blob) != string([]byte{1, 2, 3, 4}) {
		t.Fatalf("expected setDNAString round-trip, got %+v", v.Blob)
	}
}

func TestLoadOfMissingObjectIsNotFoundWithoutError(t *testing.T) {
	backend := New(t.TempDir(), ".db", testRegistry())
	_, ok, err := backend.Load(context.Background(), 12345)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected missing object to report not found")
	}
}

func TestNextDoIDStartsAtFirstPersistentAndIncrementsPastExisting(t *testing.T) {
	dir := t.TempDir()
	backend := New(dir, ".db", testRegistry())
	ctx := context.Background()

	first, err := backend.NextDoID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first != model.FirstPersistentDoID {
		t.Fatalf("expected first id %d, got %d", model.FirstPersistentDoID, first)
	}

	class, _ := testRegistry().ClassByNumber(1)
	obj := model.NewDatabaseObject(first, class, model.NewUUID("DistributedToon", first, 1700000000))
	if err := backend.Save(ctx, obj); err != nil {
		t.Fatal(err)
	}

	next, err := backend.NextDoID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if next != first+1 {
		t.Fatalf("expected next id %d, got %d", first+1, next)
	}
}

func TestVersionGateRejectsUnsupportedVersion(t *testing.T) {
	registry := testRegistry()
	backend := New(t.TempDir(), ".db", registry)
	ctx := context.Background()

	class, _ := registry.ClassByNumber(1)
	obj := model.NewDatabaseObject(10_000_001, class, model.NewUUID("DistributedToon", 10_000_001, 1700000000))
	obj.SchemaVersion = model.Version{Major: 0, Minor: 9, Sub: 0}
	if err := backend.Save(ctx, obj); err != nil {
		t.Fatal(err)
	}

	_, _, err := backend.Load(ctx, 10_000_001)
	if err == nil {
		t.Fatal("expected version gate to reject an out-of-range schema version")
	}
}

func TestAccountDirectoryBindsAndLooksUp(t *testing.T) {
	backend := New(t.TempDir(), ".db", testRegistry())
	ctx := context.Background()
	dir := backend.AccountDirectory()

	if _, ok, err := dir.Lookup(ctx, "alice"); err != nil || ok {
		t.Fatalf("expected unbound account to be absent, ok=%v err=%v", ok, err)
	}

	if err := dir.Bind(ctx, "alice", 10_000_000); err != nil {
		t.Fatal(err)
	}

	doID, ok, err := dir.Lookup(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || doID != 10_000_000 {
		t.Fatalf("expected bound doId 10000000, got %d ok=%v", doID, ok)
	}
}

var _ dbbackend.Backend = (*Backend)(nil)
