package clientagent

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/toontownretro/otp-server/internal/dbbackend"
	"github.com/toontownretro/otp-server/internal/dbserver"
	"github.com/toontownretro/otp-server/internal/dclass"
	"github.com/toontownretro/otp-server/internal/model"
	"github.com/toontownretro/otp-server/internal/protocol"
	"github.com/toontownretro/otp-server/internal/stateserver"
	"github.com/toontownretro/otp-server/internal/token"
	"github.com/toontownretro/otp-server/internal/visgroup"
)

const testValidToken = "ACCOUNT_NAME=alice&ACCOUNT_NUMBER=42&GAME_USERNAME=alice&valid=1&expires=9999999999&ACCOUNT_NAME_APPROVAL=YES&FAMILY_NUMBER=1&familyAdmin=1&OPEN_CHAT_ENABLED=YES&CREATE_FRIENDS_WITH_CHAT=YES&CHAT_CODE_CREATION_RULE=YES&WL_CHAT_ENABLED=YES&TOONTOWN_ACCESS=FULL&TOONTOWN_GAME_KEY=k"

const testAvatarClass = "DistributedToon"

// fakeBackend is a minimal in-memory dbbackend.Backend, mirroring the
// dbserver package's own test double.
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

func testRegistry() *dclass.Registry {
	toon := dclass.NewClass(1, testAvatarClass, []*dclass.Field{
		{Number: 1, Name: dbserver.FieldName, Kind: dclass.KindAtomic, Flags: dclass.FlagDB | dclass.FlagBroadcast, Default: dclass.Str("")},
		{Number: 2, Name: dbserver.FieldAccountID, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Uint64v(0)},
		{Number: 3, Name: dbserver.FieldPetID, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Uint64v(0)},
		{Number: 4, Name: dbserver.FieldFriendsList, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.ListOf()},
		{Number: 5, Name: fieldDNAString, Kind: dclass.KindAtomic, Flags: dclass.FlagDB | dclass.FlagRequired, Default: dclass.Blob(nil)},
		{Number: 6, Name: fieldWishName, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Str("")},
	})
	account := dclass.NewClass(2, dbserver.ClassAccount, []*dclass.Field{
		{Number: 1, Name: "setAvatarSet", Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.ListOf()},
		{Number: 2, Name: "setCreated", Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Str("")},
		{Number: 3, Name: "setLastLogin", Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Str("")},
		{Number: 4, Name: "setEstateId", Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Uint64v(0)},
		{Number: 5, Name: "setHouseIdSet", Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.ListOf()},
	})
	return dclass.NewRegistry(toon, account)
}

func newTestAgent(t *testing.T) *ClientAgent {
	t.Helper()
	registry := testRegistry()
	backend := newFakeBackend()
	db := dbserver.New(registry, backend, nil)
	ss := stateserver.New(registry, nil, db)

	a := New(Config{
		Registry:    registry,
		StateServer: ss,
		DBServer:    db,
		Visgroups:   visgroup.NewTable(nil),
		Names:       token.DefaultNames(),
		AvatarClass: testAvatarClass,
	})
	return a
}

// testClient drives one half of an in-process net.Pipe as a client
// would: write a length-prefixed (code, body) frame, read the next one
// back.
type testClient struct {
	t    *testing.T
	conn net.Conn
}

func (c *testClient) send(code uint16, body []byte) {
	c.t.Helper()
	w := protocol.NewWriter(2 + len(body))
	w.WriteUint16(code)
	w.WriteBytes(body)
	require.NoError(c.t, protocol.WriteFrame(c.conn, w.Bytes()))
}

func (c *testClient) recv() (uint16, []byte) {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := protocol.ReadFrame(c.conn)
	require.NoError(c.t, err)
	r := protocol.NewReader(frame)
	code, err := r.ReadUint16()
	require.NoError(c.t, err)
	body, err := r.ReadBytes(r.Remaining())
	require.NoError(c.t, err)
	return code, body
}

func newTestClient(t *testing.T, a *ClientAgent) *testClient {
	t.Helper()
	client, server := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		client.Close()
	})
	go a.serve(ctx, server)
	return &testClient{t: t, conn: client}
}

func loginFrame(playToken string) []byte {
	w := protocol.NewWriter(64)
	w.WriteString(playToken)
	w.WriteString("v1")
	w.WriteUint32(0)
	w.WriteUint32(0)
	return w.Bytes()
}

func TestLoginCreatesAccountAndRepliesSuccess(t *testing.T) {
	a := newTestAgent(t)
	c := newTestClient(t, a)

	c.send(protocol.ClientLogin2, loginFrame(testValidToken))
	code, body := c.recv()
	require.Equal(t, protocol.ClientLogin2Resp, code)

	r := protocol.NewReader(body)
	returnCode, err := r.ReadUint8()
	require.NoError(t, err)
	require.Equal(t, uint8(0), returnCode)
}

func TestAvatarCreateSelectAndDetails(t *testing.T) {
	a := newTestAgent(t)
	c := newTestClient(t, a)

	c.send(protocol.ClientLogin2, loginFrame(testValidToken))
	c.recv()

	createArgs := createAvatarArgs{Context: 7, DNA: []byte{1, 2, 3}, Slot: 0}
	c.send(protocol.ClientCreateAvatar, createArgs.encodeForTest())
	code, body := c.recv()
	require.Equal(t, protocol.ClientCreateAvatarResp, code)
	r := protocol.NewReader(body)
	ctxID, _ := r.ReadUint16()
	require.Equal(t, uint16(7), ctxID)
	rc, _ := r.ReadUint8()
	require.Equal(t, uint8(0), rc)
	avIDRaw, _ := r.ReadUint32()
	avID := model.DoID(avIDRaw)
	require.NotZero(t, avID)

	w := protocol.NewWriter(4)
	w.WriteUint32(uint32(avID))
	c.send(protocol.ClientSetAvatar, w.Bytes())
	code, body = c.recv()
	require.Equal(t, protocol.ClientGetAvatarDetailsResp, code)
	r = protocol.NewReader(body)
	rc2, _ := r.ReadUint8()
	require.Equal(t, uint8(0), rc2)
}

// TestUpdateFieldWithNeitherBroadcastNorOwnRecvIsSuppressed covers
// spec.md §4.3's update invariant "delivered only when f.broadcast ∨
// f.ownrecv": a field with neither flag set (e.g. the account-id field)
// must reach nobody, even the object's own owning session, which would
// otherwise count as visible.
func TestUpdateFieldWithNeitherBroadcastNorOwnRecvIsSuppressed(t *testing.T) {
	a := newTestAgent(t)
	c := newTestClient(t, a)

	c.send(protocol.ClientLogin2, loginFrame(testValidToken))
	c.recv()

	createArgs := createAvatarArgs{Context: 1, DNA: []byte{1, 2, 3}, Slot: 0}
	c.send(protocol.ClientCreateAvatar, createArgs.encodeForTest())
	_, body := c.recv()
	r := protocol.NewReader(body)
	r.ReadUint16()
	r.ReadUint8()
	avIDRaw, _ := r.ReadUint32()
	avID := model.DoID(avIDRaw)

	w := protocol.NewWriter(4)
	w.WriteUint32(uint32(avID))
	c.send(protocol.ClientSetAvatar, w.Bytes())
	c.recv()

	class, err := a.registry.ClassByName(testAvatarClass)
	require.NoError(t, err)
	accountIDField := class.FieldByName(dbserver.FieldAccountID)
	require.NotNil(t, accountIDField)
	require.False(t, accountIDField.IsBroadcast())
	require.False(t, accountIDField.IsOwnRecv())

	err = a.ss.UpdateField(avID, accountIDField.Number, dclass.Pack(dclass.Uint64v(99)), 0)
	require.NoError(t, err)

	c.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err = protocol.ReadFrame(c.conn)
	require.Error(t, err, "field with neither broadcast nor ownrecv must not be delivered")
}

func (a createAvatarArgs) encodeForTest() []byte {
	w := protocol.NewWriter(16)
	w.WriteUint16(a.Context)
	w.WriteBlob(a.DNA)
	w.WriteUint8(a.Slot)
	return w.Bytes()
}

func TestAddInterestEmitsExistingObjectsOnce(t *testing.T) {
	a := newTestAgent(t)
	c := newTestClient(t, a)

	c.send(protocol.ClientLogin2, loginFrame(testValidToken))
	c.recv()

	// Generate an ephemeral object at (parent=100, zone=200) directly via
	// the State Server, as another avatar's Client Agent would.
	class, err := a.registry.ClassByName(testAvatarClass)
	require.NoError(t, err)
	err = a.ss.Generate(stateserver.GenerateArgs{
		ParentID:       100,
		ZoneID:         200,
		ClassID:        class.Number,
		DoID:           123456,
		RequiredFields: dclass.PackRequired(class, dclass.FieldValues{fieldDNAString: dclass.Blob([]byte{9})}),
		OtherFields:    dclass.PackOther(class, dclass.FieldValues{}),
	})
	require.NoError(t, err)

	add := addInterestArgs{Handle: 1, Context: 5, ParentID: 100, Zones: []uint32{200}}
	w := protocol.NewWriter(32)
	w.WriteUint16(uint16(add.Handle))
	w.WriteUint32(add.Context)
	w.WriteUint32(uint32(add.ParentID))
	for _, z := range add.Zones {
		w.WriteUint32(z)
	}
	c.send(protocol.ClientAddInterest, w.Bytes())

	code, _ := c.recv()
	require.Equal(t, protocol.ClientCreateObjectRequiredOther, code)

	code, body := c.recv()
	require.Equal(t, protocol.ClientDoneInterestResp, code)
	r := protocol.NewReader(body)
	handle, _ := r.ReadUint16()
	require.Equal(t, uint16(1), handle)
}

func TestFriendsRoundTrip(t *testing.T) {
	a := newTestAgent(t)
	ctx := context.Background()

	resp1, err := a.db.CreateStoredObject(ctx, dbserver.CreateStoredObjectArgs{
		ClassName:  testAvatarClass,
		FieldNames: []string{dbserver.FieldName},
		Values:     [][]byte{dclass.Pack(dclass.Str("A"))},
	})
	require.NoError(t, err)
	resp2, err := a.db.CreateStoredObject(ctx, dbserver.CreateStoredObjectArgs{
		ClassName:  testAvatarClass,
		FieldNames: []string{dbserver.FieldName},
		Values:     [][]byte{dclass.Pack(dclass.Str("B"))},
	})
	require.NoError(t, err)

	_, err = a.db.MakeFriends(ctx, dbserver.MakeFriendsArgs{A: resp1.DoID, B: resp2.DoID, Flags: 1})
	require.NoError(t, err)

	objA, ok, err := a.db.LoadObject(ctx, resp1.DoID)
	require.NoError(t, err)
	require.True(t, ok)
	friends, _ := objA.Field(dbserver.FieldFriendsList)
	require.Len(t, friends.List, 1)
	require.Equal(t, resp2.DoID, model.DoID(friends.List[0].List[0].UInt))
}
