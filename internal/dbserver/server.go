package dbserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/toontownretro/otp-server/internal/dbbackend"
	"github.com/toontownretro/otp-server/internal/dclass"
	"github.com/toontownretro/otp-server/internal/md"
	"github.com/toontownretro/otp-server/internal/model"
	"github.com/toontownretro/otp-server/internal/protocol"
)

// Hydrator is the subset of the State Server the DBSS needs: whenever a
// persistent object's class is registered, materialise a hydrated
// placeholder so subsequent location updates resolve (spec.md §4.4
// GET_STORED_VALUES "as a side effect... a hydrated placeholder is
// created in the SS").
type Hydrator interface {
	RegisterHydrated(obj *model.DistributedObject)
}

// DBServer is the Database Server: it serves the 7 RPCs of spec.md
// §4.4 on channel 4003, backed by a pluggable dbbackend.Backend.
type DBServer struct {
	registry *dclass.Registry
	backend  dbbackend.Backend
	hydrator Hydrator
	secrets  *secretTable

	cache map[model.DoID]*model.DatabaseObject
}

// New builds a DBServer. hydrator may be nil in tests that only
// exercise backend plumbing.
func New(registry *dclass.Registry, backend dbbackend.Backend, hydrator Hydrator) *DBServer {
	return &DBServer{
		registry: registry,
		backend:  backend,
		hydrator: hydrator,
		secrets:  newSecretTable(uint64(time.Now().UnixNano())),
		cache:    make(map[model.DoID]*model.DatabaseObject),
	}
}

// Peer wraps the DBServer as an in-process MD peer subscribed to
// ChannelDBServer.
func (d *DBServer) Peer() *md.LocalPeer {
	return md.NewLocalPeer("dbserver", d.handle)
}

func (d *DBServer) handle(msg protocol.DataMessage) {
	ctx := context.Background()
	switch msg.Code {
	case protocol.DBServerGetStoredValues:
		args, err := DecodeGetStoredValuesArgs(msg.Payload)
		if err != nil {
			slog.Warn("dbss: bad get-stored-values args", "error", err)
			return
		}
		if _, err := d.GetStoredValues(ctx, args); err != nil {
			slog.Warn("dbss: get stored values failed", "error", err)
		}
	case protocol.DBServerSetStoredValues:
		args, err := DecodeSetStoredValuesArgs(msg.Payload)
		if err != nil {
			slog.Warn("dbss: bad set-stored-values args", "error", err)
			return
		}
		if err := d.SetStoredValues(ctx, args); err != nil {
			slog.Warn("dbss: set stored values failed", "error", err)
		}
	case protocol.DBServerCreateStoredObject:
		args, err := DecodeCreateStoredObjectArgs(msg.Payload)
		if err != nil {
			slog.Warn("dbss: bad create-stored-object args", "error", err)
			return
		}
		if _, err := d.CreateStoredObject(ctx, args); err != nil {
			slog.Warn("dbss: create stored object failed", "error", err)
		}
	case protocol.DBServerGetEstate:
		args, err := DecodeGetEstateArgs(msg.Payload)
		if err != nil {
			slog.Warn("dbss: bad get-estate args", "error", err)
			return
		}
		if _, err := d.GetEstate(ctx, args); err != nil {
			slog.Warn("dbss: get estate failed", "error", err)
		}
	case protocol.DBServerMakeFriends:
		args, err := DecodeMakeFriendsArgs(msg.Payload)
		if err != nil {
			slog.Warn("dbss: bad make-friends args", "error", err)
			return
		}
		if _, err := d.MakeFriends(ctx, args); err != nil {
			slog.Warn("dbss: make friends failed", "error", err)
		}
	case protocol.DBServerRequestSecret:
		args, err := DecodeRequestSecretArgs(msg.Payload)
		if err != nil {
			slog.Warn("dbss: bad request-secret args", "error", err)
			return
		}
		d.RequestSecret(args)
	case protocol.DBServerSubmitSecret:
		args, err := DecodeSubmitSecretArgs(msg.Payload)
		if err != nil {
			slog.Warn("dbss: bad submit-secret args", "error", err)
			return
		}
		d.SubmitSecret(args)
	default:
		slog.Debug("dbss: ignoring unknown code", "code", msg.Code)
	}
}

// loadObject returns the cached DatabaseObject for doID, loading it
// from the backend on first access. Per spec.md §5, the cache is the
// source of truth thereafter: a mutation via the returned pointer is
// immediately visible to the next loadObject call.
func (d *DBServer) loadObject(ctx context.Context, doID model.DoID) (*model.DatabaseObject, bool, error) {
	if obj, ok := d.cache[doID]; ok {
		return obj, true, nil
	}
	obj, ok, err := d.backend.Load(ctx, doID)
	if err != nil {
		return nil, false, fmt.Errorf("loading doId %d: %w", doID, err)
	}
	if !ok {
		return nil, false, nil
	}
	d.cache[doID] = obj
	if d.hydrator != nil {
		d.hydrator.RegisterHydrated(obj.DistributedObject)
	}
	return obj, true, nil
}

// SaveField implements stateserver.Persister: the SS calls this when a
// field update lands on a hydrated database object.
func (d *DBServer) SaveField(doID model.DoID, FieldName string, v dclass.Value) error {
	ctx := context.Background()
	obj, ok, err := d.loadObject(ctx, doID)
	if err != nil {
		return err
	}
	if !ok {
		slog.Debug("dbss: save field on unknown doId", "doId", doID, "field", FieldName)
		return nil
	}
	obj.SetField(FieldName, v)
	return d.backend.Save(ctx, obj)
}

// GetStoredValues serves DBSERVER_GET_STORED_VALUES.
func (d *DBServer) GetStoredValues(ctx context.Context, a GetStoredValuesArgs) (GetStoredValuesResp, error) {
	resp := GetStoredValuesResp{Context: a.Context, FieldNames: a.FieldNames}
	resp.Found = make([]bool, len(a.FieldNames))
	resp.Values = make([][]byte, len(a.FieldNames))

	obj, ok, err := d.loadObject(ctx, a.DoID)
	if err != nil || !ok {
		resp.ReturnCode = 1
		return resp, err
	}

	for i, name := range a.FieldNames {
		v, found := obj.Field(name)
		resp.Found[i] = found
		if found {
			resp.Values[i] = dclass.Pack(v)
		}
	}
	return resp, nil
}

// SetStoredValues serves DBSERVER_SET_STORED_VALUES.
func (d *DBServer) SetStoredValues(ctx context.Context, a SetStoredValuesArgs) error {
	obj, ok, err := d.loadObject(ctx, a.DoID)
	if err != nil {
		return err
	}
	if !ok {
		slog.Debug("dbss: set-stored-values on unknown doId", "doId", a.DoID)
		return nil
	}

	for i, name := range a.FieldNames {
		if obj.Class.FieldByName(name) == nil {
			continue
		}
		v, _, err := dclass.Unpack(a.Values[i])
		if err != nil {
			slog.Warn("dbss: ignoring undecodable field", "doId", a.DoID, "field", name, "error", err)
			continue
		}
		obj.SetField(name, v)
	}
	return d.backend.Save(ctx, obj)
}

// CreateStoredObject serves DBSERVER_CREATE_STORED_OBJECT.
func (d *DBServer) CreateStoredObject(ctx context.Context, a CreateStoredObjectArgs) (CreateStoredObjectResp, error) {
	class, err := d.registry.ClassByName(a.ClassName)
	if err != nil {
		return CreateStoredObjectResp{Context: a.Context}, fmt.Errorf("create stored object: %w", err)
	}

	doID, err := d.backend.NextDoID(ctx)
	if err != nil {
		return CreateStoredObjectResp{Context: a.Context}, fmt.Errorf("allocating doId: %w", err)
	}

	id := model.NewUUID(a.ClassName, doID, time.Now().Unix())
	obj := model.NewDatabaseObject(doID, class, id)
	for name, v := range dclass.DefaultFieldValues(class) {
		obj.SetField(name, v)
	}
	for i, name := range a.FieldNames {
		if class.FieldByName(name) == nil {
			continue
		}
		v, _, err := dclass.Unpack(a.Values[i])
		if err != nil {
			return CreateStoredObjectResp{Context: a.Context}, fmt.Errorf("decoding field %q: %w", name, err)
		}
		obj.SetField(name, v)
	}

	if err := d.backend.Save(ctx, obj); err != nil {
		return CreateStoredObjectResp{Context: a.Context}, fmt.Errorf("saving new object: %w", err)
	}
	d.cache[doID] = obj
	if d.hydrator != nil {
		d.hydrator.RegisterHydrated(obj.DistributedObject)
	}

	return CreateStoredObjectResp{Context: a.Context, DoID: doID}, nil
}

// MakeFriends serves DBSERVER_MAKE_FRIENDS: upsert each avatar into the
// other's friends list, idempotent on duplicate pairs.
func (d *DBServer) MakeFriends(ctx context.Context, a MakeFriendsArgs) (MakeFriendsResp, error) {
	objA, okA, err := d.loadObject(ctx, a.A)
	if err != nil {
		return MakeFriendsResp{Context: a.Context}, err
	}
	objB, okB, err := d.loadObject(ctx, a.B)
	if err != nil {
		return MakeFriendsResp{Context: a.Context}, err
	}
	if !okA || !okB {
		return MakeFriendsResp{Context: a.Context, Success: false}, nil
	}

	upsertFriend(objA.DistributedObject, a.B, a.Flags)
	upsertFriend(objB.DistributedObject, a.A, a.Flags)

	if err := d.backend.Save(ctx, objA); err != nil {
		return MakeFriendsResp{Context: a.Context}, err
	}
	if err := d.backend.Save(ctx, objB); err != nil {
		return MakeFriendsResp{Context: a.Context}, err
	}
	return MakeFriendsResp{Context: a.Context, Success: true}, nil
}

const FieldFriendsList = "setFriendsList"

// upsertFriend inserts (friendID, flags) into obj's friends list,
// updating flags in place if friendID is already present (spec.md §4.4
// MAKE_FRIENDS: "idempotent on duplicate pairs").
func upsertFriend(obj *model.DistributedObject, friendID model.DoID, flags uint8) {
	v, _ := obj.Field(FieldFriendsList)
	for i, entry := range v.List {
		if len(entry.List) == 2 && model.DoID(entry.List[0].UInt) == friendID {
			v.List[i] = dclass.Tuple(dclass.Uint64v(uint64(friendID)), dclass.Uint64v(uint64(flags)))
			obj.SetField(FieldFriendsList, v)
			return
		}
	}
	v.Tag = dclass.TagList
	v.List = append(v.List, dclass.Tuple(dclass.Uint64v(uint64(friendID)), dclass.Uint64v(uint64(flags))))
	obj.SetField(FieldFriendsList, v)
}

// RequestSecret serves DBSERVER_REQUEST_SECRET.
func (d *DBServer) RequestSecret(a RequestSecretArgs) RequestSecretResp {
	code, ok := d.secrets.request(a.AvID, time.Now())
	if !ok {
		return RequestSecretResp{Code: "", ReturnCode: 0}
	}
	return RequestSecretResp{Code: code, ReturnCode: 1}
}

// SubmitSecret serves DBSERVER_SUBMIT_SECRET.
func (d *DBServer) SubmitSecret(a SubmitSecretArgs) SubmitSecretResp {
	avID, code := d.secrets.submit(a.RequesterID, a.Code, time.Now())
	return SubmitSecretResp{AvID: avID, ReturnCode: code}
}

// LookupAccount resolves an existing account by external user name via
// the backend's account directory (spec.md §4.3 "Login": "looks up
// database/<userName>.txt").
func (d *DBServer) LookupAccount(ctx context.Context, userName string) (model.DoID, bool, error) {
	return d.backend.AccountDirectory().Lookup(ctx, userName)
}

// CreateAccount mints a new DistributedAccount object and binds
// userName to it in the account directory.
func (d *DBServer) CreateAccount(ctx context.Context, userName string) (model.DoID, error) {
	class, err := d.registry.ClassByName(ClassAccount)
	if err != nil {
		return 0, fmt.Errorf("create account: %w", err)
	}
	doID, err := d.backend.NextDoID(ctx)
	if err != nil {
		return 0, fmt.Errorf("allocating account doId: %w", err)
	}
	obj := model.NewDatabaseObject(doID, class, model.NewUUID(ClassAccount, doID, time.Now().Unix()))
	for name, v := range dclass.DefaultFieldValues(class) {
		obj.SetField(name, v)
	}
	if err := d.backend.Save(ctx, obj); err != nil {
		return 0, fmt.Errorf("saving new account: %w", err)
	}
	if err := d.backend.AccountDirectory().Bind(ctx, userName, doID); err != nil {
		return 0, fmt.Errorf("binding account directory: %w", err)
	}
	d.cache[doID] = obj
	if d.hydrator != nil {
		d.hydrator.RegisterHydrated(obj.DistributedObject)
	}
	return doID, nil
}

// LoadAccount returns the typed Account view of doID.
func (d *DBServer) LoadAccount(ctx context.Context, doID model.DoID) (model.Account, bool, error) {
	obj, ok, err := d.loadObject(ctx, doID)
	if err != nil || !ok {
		return model.Account{}, ok, err
	}
	return accountFromObject(obj.DistributedObject), true, nil
}

// SaveAccount persists the mutated fields of acc back onto its backing
// DatabaseObject.
func (d *DBServer) SaveAccount(ctx context.Context, acc model.Account) error {
	obj, ok, err := d.loadObject(ctx, acc.DoID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("save account: unknown doId %d", acc.DoID)
	}
	applyAccountToObject(acc, obj.DistributedObject)
	return d.backend.Save(ctx, obj)
}

// LoadObject exposes the cache-first object loader to the Client Agent
// (e.g. to read an avatar's setAvatarSet-independent fields before
// materialising it in the SS).
func (d *DBServer) LoadObject(ctx context.Context, doID model.DoID) (*model.DatabaseObject, bool, error) {
	return d.loadObject(ctx, doID)
}

// GetEstate serves DBSERVER_GET_ESTATE.
func (d *DBServer) GetEstate(ctx context.Context, a GetEstateArgs) (GetEstateResp, error) {
	resp := GetEstateResp{Context: a.Context}

	avatarObj, ok, err := d.loadObject(ctx, a.AvatarDoID)
	if err != nil {
		return resp, err
	}
	if !ok {
		resp.ReturnCode = 1
		return resp, nil
	}

	accountIDField, _ := avatarObj.Field(FieldAccountID)
	accountObj, ok, err := d.loadObject(ctx, model.DoID(accountIDField.UInt))
	if err != nil {
		return resp, err
	}
	if !ok {
		resp.ReturnCode = 1
		return resp, nil
	}

	acc := accountFromObject(accountObj.DistributedObject)
	if acc.EstateID == 0 {
		if err := d.createEstateAndHouses(ctx, &acc); err != nil {
			return resp, fmt.Errorf("materialising estate for account %d: %w", accountObj.DoID, err)
		}
		applyAccountToObject(acc, accountObj.DistributedObject)
		if err := d.backend.Save(ctx, accountObj); err != nil {
			return resp, err
		}
	}

	if err := d.syncHouses(ctx, acc); err != nil {
		return resp, err
	}
	if err := d.loadAvatarPets(ctx, acc); err != nil {
		return resp, err
	}

	resp.EstateID = acc.EstateID
	resp.HouseIDs = acc.HouseIDSet
	return resp, nil
}

func (d *DBServer) createEstateAndHouses(ctx context.Context, acc *model.Account) error {
	estateClass, err := d.registry.ClassByName(ClassEstate)
	if err != nil {
		return err
	}
	houseClass, err := d.registry.ClassByName(ClassHouse)
	if err != nil {
		return err
	}

	estateID, err := d.backend.NextDoID(ctx)
	if err != nil {
		return err
	}
	estateObj := model.NewDatabaseObject(estateID, estateClass, model.NewUUID(ClassEstate, estateID, time.Now().Unix()))
	if err := d.backend.Save(ctx, estateObj); err != nil {
		return err
	}
	d.cache[estateID] = estateObj
	if d.hydrator != nil {
		d.hydrator.RegisterHydrated(estateObj.DistributedObject)
	}
	acc.EstateID = estateID

	for i := range acc.HouseIDSet {
		houseID, err := d.backend.NextDoID(ctx)
		if err != nil {
			return err
		}
		houseObj := model.NewDatabaseObject(houseID, houseClass, model.NewUUID(ClassHouse, houseID, time.Now().Unix()))
		if err := d.backend.Save(ctx, houseObj); err != nil {
			return err
		}
		d.cache[houseID] = houseObj
		if d.hydrator != nil {
			d.hydrator.RegisterHydrated(houseObj.DistributedObject)
		}
		acc.HouseIDSet[i] = houseID
	}
	return nil
}

// syncHouses keeps each house's setName/setAvatarId/setColor in sync
// with the avatar occupying its slot (spec.md §4.4 GET_ESTATE).
func (d *DBServer) syncHouses(ctx context.Context, acc model.Account) error {
	for i, houseID := range acc.HouseIDSet {
		houseObj, ok, err := d.loadObject(ctx, houseID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		avID := acc.AvatarSet[i]
		if avID == 0 {
			houseObj.SetField(FieldAvatarID, dclass.Uint64v(0))
			if err := d.backend.Save(ctx, houseObj); err != nil {
				return err
			}
			continue
		}

		avatarObj, ok, err := d.loadObject(ctx, avID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if v, ok := avatarObj.Field(FieldName); ok {
			houseObj.SetField(FieldName, v)
		}
		if v, ok := avatarObj.Field(FieldColor); ok {
			houseObj.SetField(FieldColor, v)
		}
		houseObj.SetField(FieldAvatarID, dclass.Uint64v(uint64(avID)))
		if err := d.backend.Save(ctx, houseObj); err != nil {
			return err
		}
	}
	return nil
}

// loadAvatarPets materialises each occupying avatar's pet, if any
// (spec.md §4.4 GET_ESTATE: "load each avatar's pet if setPetId ≠ 0").
func (d *DBServer) loadAvatarPets(ctx context.Context, acc model.Account) error {
	for _, avID := range acc.AvatarSet {
		if avID == 0 {
			continue
		}
		avatarObj, ok, err := d.loadObject(ctx, avID)
		if err != nil || !ok {
			continue
		}
		petField, ok := avatarObj.Field(FieldPetID)
		if !ok || petField.UInt == 0 {
			continue
		}
		if _, _, err := d.loadObject(ctx, model.DoID(petField.UInt)); err != nil {
			return err
		}
	}
	return nil
}
