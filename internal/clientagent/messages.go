package clientagent

import (
	"fmt"

	"github.com/toontownretro/otp-server/internal/dclass"
	"github.com/toontownretro/otp-server/internal/model"
	"github.com/toontownretro/otp-server/internal/protocol"
)

// loginArgs is the decoded payload common to CLIENT_LOGIN_2 and
// CLIENT_LOGIN_TOONTOWN (spec.md §6): both carry playToken, a version
// string and a hash ahead of a variant tail this package ignores.
type loginArgs struct {
	PlayToken string
	Version   string
	Hash      uint32
	TokenType uint32
}

func decodeLoginArgs(data []byte) (loginArgs, error) {
	r := protocol.NewReader(data)
	token, err := r.ReadString()
	if err != nil {
		return loginArgs{}, fmt.Errorf("playToken: %w", err)
	}
	version, err := r.ReadString()
	if err != nil {
		return loginArgs{}, fmt.Errorf("version: %w", err)
	}
	hash, err := r.ReadUint32()
	if err != nil {
		return loginArgs{}, fmt.Errorf("hash: %w", err)
	}
	tokenType, err := r.ReadUint32()
	if err != nil {
		return loginArgs{}, fmt.Errorf("tokenType: %w", err)
	}
	return loginArgs{PlayToken: token, Version: version, Hash: hash, TokenType: tokenType}, nil
}

// loginResp is the shared shape of CLIENT_LOGIN_2_RESP /
// CLIENT_LOGIN_TOONTOWN_RESP (spec.md §4.3 "Login").
type loginResp struct {
	ReturnCode        uint8
	ErrorString       string
	AccountDoID       model.DoID
	UserName          string
	AccountName       string
	Paid              bool
	OpenChatEnabled   bool
	SecondsSinceEpoch uint32
	MicrosSinceEpoch  uint32
	MinutesRemaining  uint32
	AccountDays       uint32
	LastLogin         string
}

func (r loginResp) encode() []byte {
	w := protocol.NewWriter(64)
	w.WriteUint8(r.ReturnCode)
	w.WriteString(r.ErrorString)
	w.WriteUint32(uint32(r.AccountDoID))
	w.WriteString(r.UserName)
	w.WriteString(r.AccountName)
	w.WriteUint8(boolByte(r.Paid))
	w.WriteUint8(boolByte(r.OpenChatEnabled))
	w.WriteUint32(r.SecondsSinceEpoch)
	w.WriteUint32(r.MicrosSinceEpoch)
	w.WriteUint32(r.MinutesRemaining)
	w.WriteUint32(r.AccountDays)
	w.WriteString(r.LastLogin)
	return w.Bytes()
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// createAvatarArgs decodes CLIENT_CREATE_AVATAR.
type createAvatarArgs struct {
	Context uint16
	DNA     []byte
	Slot    uint8
}

func decodeCreateAvatarArgs(data []byte) (createAvatarArgs, error) {
	r := protocol.NewReader(data)
	ctx, err := r.ReadUint16()
	if err != nil {
		return createAvatarArgs{}, err
	}
	dna, err := r.ReadBlob()
	if err != nil {
		return createAvatarArgs{}, err
	}
	slot, err := r.ReadUint8()
	if err != nil {
		return createAvatarArgs{}, err
	}
	return createAvatarArgs{Context: ctx, DNA: dna, Slot: slot}, nil
}

type createAvatarResp struct {
	Context    uint16
	ReturnCode uint8
	AvID       model.DoID
}

func (r createAvatarResp) encode() []byte {
	w := protocol.NewWriter(8)
	w.WriteUint16(r.Context)
	w.WriteUint8(r.ReturnCode)
	w.WriteUint32(uint32(r.AvID))
	return w.Bytes()
}

// setNamePatternArgs decodes CLIENT_SET_NAME_PATTERN: an avId followed
// by four (index, flag) pairs indexing into the name dictionary.
type setNamePatternArgs struct {
	AvID  model.DoID
	Parts [4]struct {
		Index int16
		Flag  int16
	}
}

func decodeSetNamePatternArgs(data []byte) (setNamePatternArgs, error) {
	r := protocol.NewReader(data)
	avIDRaw, err := r.ReadUint32()
	if err != nil {
		return setNamePatternArgs{}, err
	}
	args := setNamePatternArgs{AvID: model.DoID(avIDRaw)}
	for i := range args.Parts {
		idx, err := r.ReadInt32()
		if err != nil {
			return setNamePatternArgs{}, err
		}
		flag, err := r.ReadInt32()
		if err != nil {
			return setNamePatternArgs{}, err
		}
		args.Parts[i].Index = int16(idx)
		args.Parts[i].Flag = int16(flag)
	}
	return args, nil
}

// setWishnameArgs decodes CLIENT_SET_WISHNAME.
type setWishnameArgs struct {
	AvID model.DoID
	Name string
}

func decodeSetWishnameArgs(data []byte) (setWishnameArgs, error) {
	r := protocol.NewReader(data)
	avIDRaw, err := r.ReadUint32()
	if err != nil {
		return setWishnameArgs{}, err
	}
	name, err := r.ReadString()
	if err != nil {
		return setWishnameArgs{}, err
	}
	return setWishnameArgs{AvID: model.DoID(avIDRaw), Name: name}, nil
}

// doIDArgs decodes the many single-uint32-doId request shapes
// (CLIENT_DELETE_AVATAR, CLIENT_SET_AVATAR, CLIENT_GET_AVATAR_DETAILS,
// CLIENT_GET_PET_DETAILS, CLIENT_REMOVE_FRIEND).
func decodeDoIDArgs(data []byte) (model.DoID, error) {
	r := protocol.NewReader(data)
	v, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	return model.DoID(v), nil
}

// addInterestArgs decodes CLIENT_ADD_INTEREST.
type addInterestArgs struct {
	Handle   model.InterestHandle
	Context  uint32
	ParentID model.DoID
	Zones    []uint32
}

func decodeAddInterestArgs(data []byte) (addInterestArgs, error) {
	r := protocol.NewReader(data)
	handle, err := r.ReadUint16()
	if err != nil {
		return addInterestArgs{}, err
	}
	ctx, err := r.ReadUint32()
	if err != nil {
		return addInterestArgs{}, err
	}
	parentID, err := r.ReadUint32()
	if err != nil {
		return addInterestArgs{}, err
	}
	var zones []uint32
	for r.Remaining() > 0 {
		z, err := r.ReadUint32()
		if err != nil {
			return addInterestArgs{}, err
		}
		zones = append(zones, z)
	}
	return addInterestArgs{
		Handle:   model.InterestHandle(handle),
		Context:  ctx,
		ParentID: model.DoID(parentID),
		Zones:    zones,
	}, nil
}

// removeInterestArgs decodes CLIENT_REMOVE_INTEREST.
type removeInterestArgs struct {
	Handle  model.InterestHandle
	Context uint32
}

func decodeRemoveInterestArgs(data []byte) (removeInterestArgs, error) {
	r := protocol.NewReader(data)
	handle, err := r.ReadUint16()
	if err != nil {
		return removeInterestArgs{}, err
	}
	ctx, err := r.ReadUint32()
	if err != nil {
		return removeInterestArgs{}, err
	}
	return removeInterestArgs{Handle: model.InterestHandle(handle), Context: ctx}, nil
}

func doneInterestResp(handle model.InterestHandle, context uint32) []byte {
	w := protocol.NewWriter(8)
	w.WriteUint16(uint16(handle))
	w.WriteUint32(context)
	return w.Bytes()
}

// objectUpdateFieldArgs decodes CLIENT_OBJECT_UPDATE_FIELD.
type objectUpdateFieldArgs struct {
	DoID    model.DoID
	FieldID int
	Payload []byte
}

func decodeObjectUpdateFieldArgs(data []byte) (objectUpdateFieldArgs, error) {
	r := protocol.NewReader(data)
	doID, err := r.ReadUint32()
	if err != nil {
		return objectUpdateFieldArgs{}, err
	}
	fieldID, err := r.ReadUint16()
	if err != nil {
		return objectUpdateFieldArgs{}, err
	}
	rest, err := r.ReadBytes(r.Remaining())
	if err != nil {
		return objectUpdateFieldArgs{}, err
	}
	return objectUpdateFieldArgs{DoID: model.DoID(doID), FieldID: int(fieldID), Payload: rest}, nil
}

// objectLocationArgs decodes CLIENT_OBJECT_LOCATION.
type objectLocationArgs struct {
	DoID     model.DoID
	ParentID model.DoID
	ZoneID   uint32
}

func decodeObjectLocationArgs(data []byte) (objectLocationArgs, error) {
	r := protocol.NewReader(data)
	doID, err := r.ReadUint32()
	if err != nil {
		return objectLocationArgs{}, err
	}
	parentID, err := r.ReadUint32()
	if err != nil {
		return objectLocationArgs{}, err
	}
	zoneID, err := r.ReadUint32()
	if err != nil {
		return objectLocationArgs{}, err
	}
	return objectLocationArgs{DoID: model.DoID(doID), ParentID: model.DoID(parentID), ZoneID: zoneID}, nil
}

func objectLocationMsg(doID, parentID model.DoID, zoneID uint32) []byte {
	w := protocol.NewWriter(12)
	w.WriteUint32(uint32(doID))
	w.WriteUint32(uint32(parentID))
	w.WriteUint32(zoneID)
	return w.Bytes()
}

func objectDisableMsg(doID model.DoID) []byte {
	w := protocol.NewWriter(4)
	w.WriteUint32(uint32(doID))
	return w.Bytes()
}

func avIDMsg(avID model.DoID) []byte {
	w := protocol.NewWriter(4)
	w.WriteUint32(uint32(avID))
	return w.Bytes()
}

func goGetLostMsg(reason uint16) []byte {
	w := protocol.NewWriter(2)
	w.WriteUint16(reason)
	return w.Bytes()
}

// createObjectRequiredOtherMsg packs CLIENT_CREATE_OBJECT_REQUIRED_OTHER
// for obj, mirroring how the SS packs STATESERVER_OBJECT_GENERATE
// (required fields in class order with default fallback, then a
// count-prefixed list of the remaining populated db fields).
func createObjectRequiredOtherMsg(obj *model.DistributedObject) []byte {
	fields := obj.Snapshot()
	w := protocol.NewWriter(64)
	w.WriteUint32(uint32(obj.DoID))
	loc := obj.Location()
	w.WriteUint32(uint32(loc.ParentID))
	w.WriteUint32(loc.ZoneID)
	w.WriteUint16(uint16(obj.Class.Number))
	w.WriteBlob(dclass.PackRequired(obj.Class, fields))
	w.WriteBlob(dclass.PackOther(obj.Class, fields))
	return w.Bytes()
}

// friendEntry is one row of CLIENT_GET_FRIEND_LIST[_EXTENDED]'s answer.
type friendEntry struct {
	DoID   model.DoID
	Name   string
	Online bool
}

type friendListAnswer struct {
	ReturnCode uint8
	Extended   bool
	Friends    []friendEntry
}

func (r friendListAnswer) encode() []byte {
	w := protocol.NewWriter(32)
	w.WriteUint8(r.ReturnCode)
	w.WriteUint16(uint16(len(r.Friends)))
	for _, f := range r.Friends {
		w.WriteUint32(uint32(f.DoID))
		w.WriteString(f.Name)
		if r.Extended {
			w.WriteUint8(boolByte(f.Online))
		}
	}
	return w.Bytes()
}

// avatarDetailsResp is CLIENT_GET_AVATAR_DETAILS_RESP's payload: a
// return code followed by the avatar's required+other field blobs (same
// shape CREATE_OBJECT_REQUIRED_OTHER uses, spec.md §4.3 scenario 2).
type avatarDetailsResp struct {
	ReturnCode uint8
	Object     *model.DistributedObject
}

func (r avatarDetailsResp) encode() []byte {
	w := protocol.NewWriter(64)
	w.WriteUint8(r.ReturnCode)
	if r.Object == nil {
		return w.Bytes()
	}
	w.WriteBytes(createObjectRequiredOtherMsg(r.Object))
	return w.Bytes()
}

type avatarSummary struct {
	Slot int
	AvID model.DoID
	Name string
	DNA  []byte
}

type getAvatarsResp struct {
	ReturnCode uint8
	Avatars    []avatarSummary
}

func (r getAvatarsResp) encode() []byte {
	w := protocol.NewWriter(32)
	w.WriteUint8(r.ReturnCode)
	w.WriteUint16(uint16(len(r.Avatars)))
	for _, a := range r.Avatars {
		w.WriteUint8(uint8(a.Slot))
		w.WriteUint32(uint32(a.AvID))
		w.WriteString(a.Name)
		w.WriteBlob(a.DNA)
	}
	return w.Bytes()
}

type deleteAvatarResp struct {
	ReturnCode uint8
}

func (r deleteAvatarResp) encode() []byte {
	w := protocol.NewWriter(1)
	w.WriteUint8(r.ReturnCode)
	return w.Bytes()
}

type setWishnameResp struct {
	ReturnCode uint8
	Name       string
}

func (r setWishnameResp) encode() []byte {
	w := protocol.NewWriter(16)
	w.WriteUint8(r.ReturnCode)
	w.WriteString(r.Name)
	return w.Bytes()
}
