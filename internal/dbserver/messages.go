// Package dbserver implements the Database Server: the glue between the
// DatabaseObject model and a dbbackend.Backend, serving the 7 RPCs of
// spec.md §4.4 on channel 4003.
package dbserver

import (
	"fmt"

	"github.com/toontownretro/otp-server/internal/model"
	"github.com/toontownretro/otp-server/internal/protocol"
)

// GetStoredValuesArgs is DBSERVER_GET_STORED_VALUES's payload.
type GetStoredValuesArgs struct {
	Context    uint32
	DoID       model.DoID
	FieldNames []string
}

func (a GetStoredValuesArgs) Encode() []byte {
	w := protocol.NewWriter(16)
	w.WriteUint32(a.Context)
	w.WriteUint32(uint32(a.DoID))
	w.WriteUint16(uint16(len(a.FieldNames)))
	for _, n := range a.FieldNames {
		w.WriteString(n)
	}
	return w.Bytes()
}

func DecodeGetStoredValuesArgs(data []byte) (GetStoredValuesArgs, error) {
	r := protocol.NewReader(data)
	ctx, err := r.ReadUint32()
	if err != nil {
		return GetStoredValuesArgs{}, err
	}
	doID, err := r.ReadUint32()
	if err != nil {
		return GetStoredValuesArgs{}, err
	}
	n, err := r.ReadUint16()
	if err != nil {
		return GetStoredValuesArgs{}, err
	}
	names := make([]string, n)
	for i := range names {
		names[i], err = r.ReadString()
		if err != nil {
			return GetStoredValuesArgs{}, err
		}
	}
	return GetStoredValuesArgs{Context: ctx, DoID: model.DoID(doID), FieldNames: names}, nil
}

// GetStoredValuesResp is DBSERVER_GET_STORED_VALUES_RESP's payload.
type GetStoredValuesResp struct {
	Context    uint32
	ReturnCode uint8
	FieldNames []string
	Found      []bool
	Values     [][]byte
}

func (r GetStoredValuesResp) Encode() []byte {
	w := protocol.NewWriter(16)
	w.WriteUint32(r.Context)
	w.WriteUint8(r.ReturnCode)
	w.WriteUint16(uint16(len(r.FieldNames)))
	for i, n := range r.FieldNames {
		w.WriteString(n)
		if r.Found[i] {
			w.WriteUint8(1)
			w.WriteBlob(r.Values[i])
		} else {
			w.WriteUint8(0)
		}
	}
	return w.Bytes()
}

// SetStoredValuesArgs is DBSERVER_SET_STORED_VALUES's payload.
type SetStoredValuesArgs struct {
	DoID       model.DoID
	FieldNames []string
	Values     [][]byte
}

func (a SetStoredValuesArgs) Encode() []byte {
	w := protocol.NewWriter(16)
	w.WriteUint32(uint32(a.DoID))
	w.WriteUint16(uint16(len(a.FieldNames)))
	for i, n := range a.FieldNames {
		w.WriteString(n)
		w.WriteBlob(a.Values[i])
	}
	return w.Bytes()
}

func DecodeSetStoredValuesArgs(data []byte) (SetStoredValuesArgs, error) {
	r := protocol.NewReader(data)
	doID, err := r.ReadUint32()
	if err != nil {
		return SetStoredValuesArgs{}, err
	}
	n, err := r.ReadUint16()
	if err != nil {
		return SetStoredValuesArgs{}, err
	}
	names := make([]string, n)
	values := make([][]byte, n)
	for i := range names {
		names[i], err = r.ReadString()
		if err != nil {
			return SetStoredValuesArgs{}, err
		}
		values[i], err = r.ReadBlob()
		if err != nil {
			return SetStoredValuesArgs{}, err
		}
	}
	return SetStoredValuesArgs{DoID: model.DoID(doID), FieldNames: names, Values: values}, nil
}

// CreateStoredObjectArgs is DBSERVER_CREATE_STORED_OBJECT's payload.
type CreateStoredObjectArgs struct {
	Context    uint32
	ClassName  string
	FieldNames []string
	Values     [][]byte
}

func (a CreateStoredObjectArgs) Encode() []byte {
	w := protocol.NewWriter(16)
	w.WriteUint32(a.Context)
	w.WriteString(a.ClassName)
	w.WriteUint16(uint16(len(a.FieldNames)))
	for i, n := range a.FieldNames {
		w.WriteString(n)
		w.WriteBlob(a.Values[i])
	}
	return w.Bytes()
}

func DecodeCreateStoredObjectArgs(data []byte) (CreateStoredObjectArgs, error) {
	r := protocol.NewReader(data)
	ctx, err := r.ReadUint32()
	if err != nil {
		return CreateStoredObjectArgs{}, err
	}
	className, err := r.ReadString()
	if err != nil {
		return CreateStoredObjectArgs{}, err
	}
	n, err := r.ReadUint16()
	if err != nil {
		return CreateStoredObjectArgs{}, err
	}
	names := make([]string, n)
	values := make([][]byte, n)
	for i := range names {
		names[i], err = r.ReadString()
		if err != nil {
			return CreateStoredObjectArgs{}, err
		}
		values[i], err = r.ReadBlob()
		if err != nil {
			return CreateStoredObjectArgs{}, err
		}
	}
	return CreateStoredObjectArgs{Context: ctx, ClassName: className, FieldNames: names, Values: values}, nil
}

// CreateStoredObjectResp is DBSERVER_CREATE_STORED_OBJECT_RESP's payload.
type CreateStoredObjectResp struct {
	Context uint32
	DoID    model.DoID
}

func (r CreateStoredObjectResp) Encode() []byte {
	w := protocol.NewWriter(8)
	w.WriteUint32(r.Context)
	w.WriteUint32(uint32(r.DoID))
	return w.Bytes()
}

// GetEstateArgs is DBSERVER_GET_ESTATE's payload.
type GetEstateArgs struct {
	Context    uint32
	AvatarDoID model.DoID
}

func (a GetEstateArgs) Encode() []byte {
	w := protocol.NewWriter(8)
	w.WriteUint32(a.Context)
	w.WriteUint32(uint32(a.AvatarDoID))
	return w.Bytes()
}

func DecodeGetEstateArgs(data []byte) (GetEstateArgs, error) {
	r := protocol.NewReader(data)
	ctx, err := r.ReadUint32()
	if err != nil {
		return GetEstateArgs{}, err
	}
	avID, err := r.ReadUint32()
	if err != nil {
		return GetEstateArgs{}, err
	}
	return GetEstateArgs{Context: ctx, AvatarDoID: model.DoID(avID)}, nil
}

// GetEstateResp is DBSERVER_GET_ESTATE_RESP's payload.
type GetEstateResp struct {
	Context    uint32
	ReturnCode uint8
	EstateID   model.DoID
	HouseIDs   [model.AccountAvatarSlots]model.DoID
}

func (r GetEstateResp) Encode() []byte {
	w := protocol.NewWriter(16)
	w.WriteUint32(r.Context)
	w.WriteUint8(r.ReturnCode)
	w.WriteUint32(uint32(r.EstateID))
	for _, id := range r.HouseIDs {
		w.WriteUint32(uint32(id))
	}
	return w.Bytes()
}

// MakeFriendsArgs is DBSERVER_MAKE_FRIENDS's payload.
type MakeFriendsArgs struct {
	A, B    model.DoID
	Flags   uint8
	Context uint32
}

func (a MakeFriendsArgs) Encode() []byte {
	w := protocol.NewWriter(16)
	w.WriteUint32(uint32(a.A))
	w.WriteUint32(uint32(a.B))
	w.WriteUint8(a.Flags)
	w.WriteUint32(a.Context)
	return w.Bytes()
}

func DecodeMakeFriendsArgs(data []byte) (MakeFriendsArgs, error) {
	r := protocol.NewReader(data)
	a, err := r.ReadUint32()
	if err != nil {
		return MakeFriendsArgs{}, err
	}
	b, err := r.ReadUint32()
	if err != nil {
		return MakeFriendsArgs{}, err
	}
	flags, err := r.ReadUint8()
	if err != nil {
		return MakeFriendsArgs{}, err
	}
	ctx, err := r.ReadUint32()
	if err != nil {
		return MakeFriendsArgs{}, err
	}
	return MakeFriendsArgs{A: model.DoID(a), B: model.DoID(b), Flags: flags, Context: ctx}, nil
}

// MakeFriendsResp is DBSERVER_MAKE_FRIENDS_RESP's payload.
type MakeFriendsResp struct {
	Context uint32
	Success bool
}

func (r MakeFriendsResp) Encode() []byte {
	w := protocol.NewWriter(8)
	w.WriteUint32(r.Context)
	if r.Success {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
	return w.Bytes()
}

// RequestSecretArgs is DBSERVER_REQUEST_SECRET's payload.
type RequestSecretArgs struct {
	AvID model.DoID
}

func (a RequestSecretArgs) Encode() []byte {
	w := protocol.NewWriter(4)
	w.WriteUint32(uint32(a.AvID))
	return w.Bytes()
}

func DecodeRequestSecretArgs(data []byte) (RequestSecretArgs, error) {
	r := protocol.NewReader(data)
	avID, err := r.ReadUint32()
	if err != nil {
		return RequestSecretArgs{}, err
	}
	return RequestSecretArgs{AvID: model.DoID(avID)}, nil
}

// RequestSecretResp is DBSERVER_REQUEST_SECRET_RESP's payload.
type RequestSecretResp struct {
	Code       string
	ReturnCode uint8
}

func (r RequestSecretResp) Encode() []byte {
	w := protocol.NewWriter(12)
	w.WriteString(r.Code)
	w.WriteUint8(r.ReturnCode)
	return w.Bytes()
}

// SubmitSecretArgs is DBSERVER_SUBMIT_SECRET's payload.
type SubmitSecretArgs struct {
	RequesterID model.DoID
	Code        string
}

func (a SubmitSecretArgs) Encode() []byte {
	w := protocol.NewWriter(12)
	w.WriteUint32(uint32(a.RequesterID))
	w.WriteString(a.Code)
	return w.Bytes()
}

func DecodeSubmitSecretArgs(data []byte) (SubmitSecretArgs, error) {
	r := protocol.NewReader(data)
	requester, err := r.ReadUint32()
	if err != nil {
		return SubmitSecretArgs{}, err
	}
	code, err := r.ReadString()
	if err != nil {
		return SubmitSecretArgs{}, fmt.Errorf("code: %w", err)
	}
	return SubmitSecretArgs{RequesterID: model.DoID(requester), Code: code}, nil
}

// SubmitSecretResp is DBSERVER_SUBMIT_SECRET_RESP's payload.
type SubmitSecretResp struct {
	ReturnCode uint8
	AvID       model.DoID
}

func (r SubmitSecretResp) Encode() []byte {
	w := protocol.NewWriter(8)
	w.WriteUint8(r.ReturnCode)
	w.WriteUint32(uint32(r.AvID))
	return w.Bytes()
}
