package dbserver

import (
	"context"
	"testing"

	"github.com/toontownretro/otp-server/internal/dbbackend"
	"github.com/toontownretro/otp-server/internal/dclass"
	"github.com/toontownretro/otp-server/internal/model"
)

// fakeBackend is an in-memory dbbackend.Backend for isolated testing.
type fakeBackend struct {
	objects  map[model.DoID]*model.DatabaseObject
	accounts map[string]model.DoID
	nextID   model.DoID
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		objects:  make(map[model.DoID]*model.DatabaseObject),
		accounts: make(map[string]model.DoID),
		nextID:   model.FirstPersistentDoID,
	}
}

func (f *fakeBackend) Load(ctx context.Context, doID model.DoID) (*model.DatabaseObject, bool, error) {
	obj, ok := f.objects[doID]
	return obj, ok, nil
}

func (f *fakeBackend) Save(ctx context.Context, obj *model.DatabaseObject) error {
	f.objects[obj.DoID] = obj
	return nil
}

func (f *fakeBackend) Exists(ctx context.Context, doID model.DoID) (bool, error) {
	_, ok := f.objects[doID]
	return ok, nil
}

func (f *fakeBackend) NextDoID(ctx context.Context) (model.DoID, error) {
	id := f.nextID
	f.nextID++
	return id, nil
}

func (f *fakeBackend) AccountDirectory() dbbackend.AccountDirectory { return f }

func (f *fakeBackend) Lookup(ctx context.Context, accountName string) (model.DoID, bool, error) {
	id, ok := f.accounts[accountName]
	return id, ok, nil
}

func (f *fakeBackend) Bind(ctx context.Context, accountName string, doID model.DoID) error {
	f.accounts[accountName] = doID
	return nil
}

type fakeHydrator struct {
	registered []model.DoID
}

func (h *fakeHydrator) RegisterHydrated(obj *model.DistributedObject) {
	h.registered = append(h.registered, obj.DoID)
}

func testRegistry() *dclass.Registry {
	toon := dclass.NewClass(1, "DistributedToon", []*dclass.Field{
		{Number: 1, Name: "setName", Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Str("")},
		{Number: 2, Name: FieldAccountID, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Uint64v(0)},
		{Number: 3, Name: FieldPetID, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Uint64v(0)},
		{Number: 4, Name: FieldColor, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Uint64v(0)},
		{Number: 5, Name: FieldFriendsList, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.ListOf()},
	})
	account := dclass.NewClass(2, ClassAccount, []*dclass.Field{
		{Number: 1, Name: fieldAvatarSet, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.ListOf()},
		{Number: 2, Name: fieldCreated, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Str("")},
		{Number: 3, Name: fieldLastLogin, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Str("")},
		{Number: 4, Name: fieldEstateID, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Uint64v(0)},
		{Number: 5, Name: fieldHouseIDSet, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.ListOf()},
	})
	estate := dclass.NewClass(3, ClassEstate, nil)
	house := dclass.NewClass(4, ClassHouse, []*dclass.Field{
		{Number: 1, Name: FieldName, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Str("")},
		{Number: 2, Name: FieldColor, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Uint64v(0)},
		{Number: 3, Name: FieldAvatarID, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Uint64v(0)},
	})
	return dclass.NewRegistry(toon, account, estate, house)
}

func newTestServer() (*DBServer, *fakeBackend, *fakeHydrator) {
	registry := testRegistry()
	backend := newFakeBackend()
	hydrator := &fakeHydrator{}
	return New(registry, backend, hydrator), backend, hydrator
}

func createToon(t *testing.T, ctx context.Context, d *DBServer, name string) model.DoID {
	t.Helper()
	resp, err := d.CreateStoredObject(ctx, CreateStoredObjectArgs{
		ClassName:  "DistributedToon",
		FieldNames: []string{"setName"},
		Values:     [][]byte{dclass.Pack(dclass.Str(name))},
	})
	if err != nil {
		t.Fatalf("CreateStoredObject: %v", err)
	}
	return resp.DoID
}

func TestCreateStoredObjectAllocatesAndAppliesDefaultsAndOverrides(t *testing.T) {
	d, _, hydrator := newTestServer()
	ctx := context.Background()

	id := createToon(t, ctx, d, "Mickey")
	if id != model.FirstPersistentDoID {
		t.Fatalf("doId = %d, want %d", id, model.FirstPersistentDoID)
	}
	if len(hydrator.registered) != 1 || hydrator.registered[0] != id {
		t.Fatalf("hydrator.registered = %v, want [%d]", hydrator.registered, id)
	}

	obj, ok, err := d.loadObject(ctx, id)
	if err != nil || !ok {
		t.Fatalf("loadObject: ok=%v err=%v", ok, err)
	}
	if v, _ := obj.Field("setName"); v.Str != "Mickey" {
		t.Fatalf("setName = %q, want Mickey", v.Str)
	}
	if v, ok := obj.Field(FieldAccountID); !ok || v.UInt != 0 {
		t.Fatalf("setAccountId default = %v (ok=%v), want 0", v, ok)
	}
}

func TestGetStoredValuesReturnsFoundAndPackedValues(t *testing.T) {
	d, _, _ := newTestServer()
	ctx := context.Background()
	id := createToon(t, ctx, d, "Donald")

	resp, err := d.GetStoredValues(ctx, GetStoredValuesArgs{
		DoID:       id,
		FieldNames: []string{"setName", "doesNotExist"},
	})
	if err != nil {
		t.Fatalf("GetStoredValues: %v", err)
	}
	if !resp.Found[0] {
		t.Fatalf("setName not found")
	}
	v, _, err := dclass.Unpack(resp.Values[0])
	if err != nil || v.Str != "Donald" {
		t.Fatalf("unpacked setName = %q (err=%v), want Donald", v.Str, err)
	}
	if resp.Found[1] {
		t.Fatalf("doesNotExist reported found")
	}
}

func TestSetStoredValuesPersistsAndIsVisibleToNextLoad(t *testing.T) {
	d, backend, _ := newTestServer()
	ctx := context.Background()
	id := createToon(t, ctx, d, "Goofy")

	err := d.SetStoredValues(ctx, SetStoredValuesArgs{
		DoID:       id,
		FieldNames: []string{"setName"},
		Values:     [][]byte{dclass.Pack(dclass.Str("Goofy2"))},
	})
	if err != nil {
		t.Fatalf("SetStoredValues: %v", err)
	}

	// loadObject returns the cached instance; mutation must already be
	// visible without going back through the backend.
	obj, _, _ := d.loadObject(ctx, id)
	if v, _ := obj.Field("setName"); v.Str != "Goofy2" {
		t.Fatalf("cached setName = %q, want Goofy2", v.Str)
	}

	stored, ok, err := backend.Load(ctx, id)
	if err != nil || !ok {
		t.Fatalf("backend.Load: ok=%v err=%v", ok, err)
	}
	if v, _ := stored.Field("setName"); v.Str != "Goofy2" {
		t.Fatalf("persisted setName = %q, want Goofy2", v.Str)
	}
}

func TestMakeFriendsIsIdempotentOnDuplicatePairs(t *testing.T) {
	d, _, _ := newTestServer()
	ctx := context.Background()
	a := createToon(t, ctx, d, "A")
	b := createToon(t, ctx, d, "B")

	for range 3 {
		resp, err := d.MakeFriends(ctx, MakeFriendsArgs{A: a, B: b, Flags: 1})
		if err != nil || !resp.Success {
			t.Fatalf("MakeFriends: success=%v err=%v", resp.Success, err)
		}
	}

	objA, _, _ := d.loadObject(ctx, a)
	v, _ := objA.Field(FieldFriendsList)
	if len(v.List) != 1 {
		t.Fatalf("A's friends list = %v, want exactly one entry", v.List)
	}
	if model.DoID(v.List[0].List[0].UInt) != b {
		t.Fatalf("A's friend = %d, want %d", v.List[0].List[0].UInt, b)
	}

	objB, _, _ := d.loadObject(ctx, b)
	v, _ = objB.Field(FieldFriendsList)
	if len(v.List) != 1 {
		t.Fatalf("B's friends list = %v, want exactly one entry", v.List)
	}
}

func TestRequestSecretAndSubmitSecretRoundTrip(t *testing.T) {
	d, _, _ := newTestServer()
	ctx := context.Background()
	requester := createToon(t, ctx, d, "Requester")
	owner := createToon(t, ctx, d, "Owner")

	req := d.RequestSecret(RequestSecretArgs{AvID: owner})
	if req.ReturnCode != 1 || req.Code == "" {
		t.Fatalf("RequestSecret: code=%q returnCode=%d", req.Code, req.ReturnCode)
	}

	sub := d.SubmitSecret(SubmitSecretArgs{RequesterID: requester, Code: req.Code})
	if sub.ReturnCode != 1 || sub.AvID != owner {
		t.Fatalf("SubmitSecret: returnCode=%d avId=%d, want 1/%d", sub.ReturnCode, sub.AvID, owner)
	}

	// Code is single-use.
	sub2 := d.SubmitSecret(SubmitSecretArgs{RequesterID: requester, Code: req.Code})
	if sub2.ReturnCode != 0 {
		t.Fatalf("second submit returnCode = %d, want 0", sub2.ReturnCode)
	}
}

func TestSubmitSecretRejectsSelfSubmission(t *testing.T) {
	d, _, _ := newTestServer()
	owner := createToon(t, context.Background(), d, "Owner")

	req := d.RequestSecret(RequestSecretArgs{AvID: owner})
	sub := d.SubmitSecret(SubmitSecretArgs{RequesterID: owner, Code: req.Code})
	if sub.ReturnCode != 3 {
		t.Fatalf("self-submit returnCode = %d, want 3", sub.ReturnCode)
	}

	// A self-match still consumes the code, same as any other match.
	sub2 := d.SubmitSecret(SubmitSecretArgs{RequesterID: owner, Code: req.Code})
	if sub2.ReturnCode != 0 {
		t.Fatalf("resubmitting a self-matched code returnCode = %d, want 0", sub2.ReturnCode)
	}
}

func TestGetEstateCreatesEstateAndHousesOnFirstCall(t *testing.T) {
	d, _, _ := newTestServer()
	ctx := context.Background()

	avatarID := createToon(t, ctx, d, "Minnie")

	accResp, err := d.CreateStoredObject(ctx, CreateStoredObjectArgs{ClassName: ClassAccount})
	if err != nil {
		t.Fatalf("CreateStoredObject(account): %v", err)
	}
	accountID := accResp.DoID

	accObj, _, _ := d.loadObject(ctx, accountID)
	acc := accountFromObject(accObj.DistributedObject)
	acc.AvatarSet[0] = avatarID
	applyAccountToObject(acc, accObj.DistributedObject)

	if err := d.SetStoredValues(ctx, SetStoredValuesArgs{
		DoID:       avatarID,
		FieldNames: []string{FieldAccountID},
		Values:     [][]byte{dclass.Pack(dclass.Uint64v(uint64(accountID)))},
	}); err != nil {
		t.Fatalf("SetStoredValues(avatar.accountId): %v", err)
	}

	resp, err := d.GetEstate(ctx, GetEstateArgs{AvatarDoID: avatarID})
	if err != nil {
		t.Fatalf("GetEstate: %v", err)
	}
	if resp.EstateID == 0 {
		t.Fatalf("GetEstate did not materialise an estate")
	}

	houseObj, ok, _ := d.loadObject(ctx, resp.HouseIDs[0])
	if !ok {
		t.Fatalf("occupied house slot 0 not hydrated")
	}
	if v, _ := houseObj.Field(FieldName); v.Str != "Minnie" {
		t.Fatalf("house setName = %q, want Minnie", v.Str)
	}
	if v, _ := houseObj.Field(FieldAvatarID); model.DoID(v.UInt) != avatarID {
		t.Fatalf("house setAvatarId = %d, want %d", v.UInt, avatarID)
	}

	// A second call must reuse the same estate rather than minting a new one.
	resp2, err := d.GetEstate(ctx, GetEstateArgs{AvatarDoID: avatarID})
	if err != nil {
		t.Fatalf("GetEstate (second call): %v", err)
	}
	if resp2.EstateID != resp.EstateID {
		t.Fatalf("second GetEstate minted a new estate: %d != %d", resp2.EstateID, resp.EstateID)
	}
}

var _ Hydrator = (*fakeHydrator)(nil)
