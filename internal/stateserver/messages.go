// Package stateserver implements the State Server: the authoritative
// in-memory registry of live distributed objects, their (parentId,
// zoneId) location, and the broadcast of lifecycle/field events
// (spec.md §4.2).
package stateserver

import (
	"fmt"

	"github.com/toontownretro/otp-server/internal/model"
	"github.com/toontownretro/otp-server/internal/protocol"
)

// GenerateArgs is the payload of STATESERVER_OBJECT_GENERATE_WITH_REQUIRED_OTHER.
type GenerateArgs struct {
	ParentID       model.DoID
	ZoneID         uint32
	ClassID        int
	DoID           model.DoID
	RequiredFields []byte
	OtherFields    []byte
}

func (a GenerateArgs) Encode() []byte {
	w := protocol.NewWriter(20 + len(a.RequiredFields) + len(a.OtherFields))
	w.WriteUint32(uint32(a.ParentID))
	w.WriteUint32(a.ZoneID)
	w.WriteUint32(uint32(a.ClassID))
	w.WriteUint32(uint32(a.DoID))
	w.WriteBlob(a.RequiredFields)
	w.WriteBlob(a.OtherFields)
	return w.Bytes()
}

func DecodeGenerateArgs(data []byte) (GenerateArgs, error) {
	r := protocol.NewReader(data)
	var a GenerateArgs
	parentID, err := r.ReadUint32()
	if err != nil {
		return a, fmt.Errorf("parentId: %w", err)
	}
	zoneID, err := r.ReadUint32()
	if err != nil {
		return a, fmt.Errorf("zoneId: %w", err)
	}
	classID, err := r.ReadUint32()
	if err != nil {
		return a, fmt.Errorf("classId: %w", err)
	}
	doID, err := r.ReadUint32()
	if err != nil {
		return a, fmt.Errorf("doId: %w", err)
	}
	req, err := r.ReadBlob()
	if err != nil {
		return a, fmt.Errorf("requiredFields: %w", err)
	}
	other, err := r.ReadBlob()
	if err != nil {
		return a, fmt.Errorf("otherFields: %w", err)
	}
	return GenerateArgs{
		ParentID:       model.DoID(parentID),
		ZoneID:         zoneID,
		ClassID:        int(classID),
		DoID:           model.DoID(doID),
		RequiredFields: req,
		OtherFields:    other,
	}, nil
}

// DeleteArgs is the payload of STATESERVER_OBJECT_DELETE_RAM.
type DeleteArgs struct {
	DoID model.DoID
}

func (a DeleteArgs) Encode() []byte {
	w := protocol.NewWriter(4)
	w.WriteUint32(uint32(a.DoID))
	return w.Bytes()
}

func DecodeDeleteArgs(data []byte) (DeleteArgs, error) {
	r := protocol.NewReader(data)
	doID, err := r.ReadUint32()
	if err != nil {
		return DeleteArgs{}, err
	}
	return DeleteArgs{DoID: model.DoID(doID)}, nil
}

// SetZoneArgs is the payload of STATESERVER_OBJECT_SET_ZONE.
type SetZoneArgs struct {
	DoID     model.DoID
	ParentID model.DoID
	ZoneID   uint32
}

func (a SetZoneArgs) Encode() []byte {
	w := protocol.NewWriter(12)
	w.WriteUint32(uint32(a.DoID))
	w.WriteUint32(uint32(a.ParentID))
	w.WriteUint32(a.ZoneID)
	return w.Bytes()
}

func DecodeSetZoneArgs(data []byte) (SetZoneArgs, error) {
	r := protocol.NewReader(data)
	doID, err := r.ReadUint32()
	if err != nil {
		return SetZoneArgs{}, err
	}
	parentID, err := r.ReadUint32()
	if err != nil {
		return SetZoneArgs{}, err
	}
	zoneID, err := r.ReadUint32()
	if err != nil {
		return SetZoneArgs{}, err
	}
	return SetZoneArgs{DoID: model.DoID(doID), ParentID: model.DoID(parentID), ZoneID: zoneID}, nil
}

// UpdateFieldArgs is the payload of STATESERVER_OBJECT_UPDATE_FIELD.
type UpdateFieldArgs struct {
	DoID    model.DoID
	FieldID int
	Payload []byte
}

func (a UpdateFieldArgs) Encode() []byte {
	w := protocol.NewWriter(8 + len(a.Payload))
	w.WriteUint32(uint32(a.DoID))
	w.WriteUint16(uint16(a.FieldID))
	w.WriteBlob(a.Payload)
	return w.Bytes()
}

func DecodeUpdateFieldArgs(data []byte) (UpdateFieldArgs, error) {
	r := protocol.NewReader(data)
	doID, err := r.ReadUint32()
	if err != nil {
		return UpdateFieldArgs{}, err
	}
	fieldID, err := r.ReadUint16()
	if err != nil {
		return UpdateFieldArgs{}, err
	}
	payload, err := r.ReadBlob()
	if err != nil {
		return UpdateFieldArgs{}, err
	}
	return UpdateFieldArgs{DoID: model.DoID(doID), FieldID: int(fieldID), Payload: payload}, nil
}
