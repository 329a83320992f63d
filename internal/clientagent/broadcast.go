package clientagent

import (
	"github.com/toontownretro/otp-server/internal/dclass"
	"github.com/toontownretro/otp-server/internal/model"
	"github.com/toontownretro/otp-server/internal/protocol"
)

// BroadcastCreate implements stateserver.Broadcaster: announce obj to
// every session whose interest currently covers its location.
func (a *ClientAgent) BroadcastCreate(obj *model.DistributedObject) {
	loc := obj.Location()
	msg := createObjectRequiredOtherMsg(obj)
	a.forEachSession(func(s *Session) {
		if s.visible(loc, obj.DoID) {
			a.sendRaw(s, protocol.ClientCreateObjectRequiredOther, msg)
		}
	})
}

// BroadcastDelete implements stateserver.Broadcaster.
func (a *ClientAgent) BroadcastDelete(obj *model.DistributedObject) {
	loc := obj.Location()
	msg := objectDisableMsg(obj.DoID)
	a.forEachSession(func(s *Session) {
		if s.visible(loc, obj.DoID) {
			a.sendRaw(s, protocol.ClientObjectDisable, msg)
		}
	})
}

// BroadcastMove implements stateserver.Broadcaster: sessions that lose
// visibility get a disable, sessions that gain it get a create, and
// sessions that keep it (or the owner) get the location update.
func (a *ClientAgent) BroadcastMove(obj *model.DistributedObject, prev model.Location) {
	cur := obj.Location()
	createMsg := createObjectRequiredOtherMsg(obj)
	disableMsg := objectDisableMsg(obj.DoID)
	locMsg := objectLocationMsg(obj.DoID, cur.ParentID, cur.ZoneID)

	a.forEachSession(func(s *Session) {
		wasVisible := s.visible(prev, obj.DoID)
		isVisible := s.visible(cur, obj.DoID)
		switch {
		case isVisible && !wasVisible:
			a.sendRaw(s, protocol.ClientCreateObjectRequiredOther, createMsg)
		case wasVisible && !isVisible:
			a.sendRaw(s, protocol.ClientObjectDisable, disableMsg)
		case isVisible || s.AvatarID() == obj.DoID:
			a.sendRaw(s, protocol.ClientObjectLocation, locMsg)
		}
	})
}

// BroadcastUpdate implements stateserver.Broadcaster's field-update fan
// out. ownrecv-only fields go to the owner alone and never echo back to
// their own originating session (spec.md §8 invariant 6); broadcast
// fields reach the owner plus every session with visibility, echo
// included. A field with neither flag set goes nowhere, even to its
// own object's owning session.
func (a *ClientAgent) BroadcastUpdate(obj *model.DistributedObject, field *dclass.Field, value dclass.Value, sender uint64) {
	loc := obj.Location()
	payload := fieldUpdateMsg(obj.DoID, field.Number, value)

	if field.IsOwnRecv() && !field.IsBroadcast() {
		if owner := a.lookupAvatarSession(obj.DoID); owner != nil && owner.Channel() != sender {
			a.sendRaw(owner, protocol.ClientObjectUpdateField, payload)
		}
		return
	}

	if !field.IsBroadcast() && !field.IsOwnRecv() {
		return
	}

	a.forEachSession(func(s *Session) {
		if s.Channel() == sender {
			return
		}
		if s.visible(loc, obj.DoID) {
			a.sendRaw(s, protocol.ClientObjectUpdateField, payload)
		}
	})
}

func fieldUpdateMsg(doID model.DoID, fieldNumber int, value dclass.Value) []byte {
	w := protocol.NewWriter(16)
	w.WriteUint32(uint32(doID))
	w.WriteUint16(uint16(fieldNumber))
	w.WriteBytes(dclass.Pack(value))
	return w.Bytes()
}
