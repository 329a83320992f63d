package clientagent

import (
	"sort"

	"github.com/toontownretro/otp-server/internal/model"
	"github.com/toontownretro/otp-server/internal/protocol"
)

// handleAddInterest implements spec.md §4.3's "Interest management":
// diff the new (parentId, zones) set against whatever the handle
// already covered, disable what drops out, emit creates for what newly
// appears, then ack with CLIENT_DONE_INTEREST_RESP.
func (a *ClientAgent) handleAddInterest(s *Session, payload []byte) error {
	args, err := decodeAddInterestArgs(payload)
	if err != nil {
		return nil
	}

	newZones := a.visgroups.Expand(args.Zones)

	s.mu.Lock()
	old, hadOld := s.interests[args.Handle]
	sameParent := hadOld && old.ParentID == args.ParentID

	preCovered := make(map[model.ZoneKey]struct{}, len(s.interestCache))
	for k := range s.interestCache {
		preCovered[k] = struct{}{}
	}

	var staleKeys []model.ZoneKey
	if hadOld {
		if sameParent {
			for z := range old.Zones {
				if _, keep := newZones[z]; !keep {
					staleKeys = append(staleKeys, model.ZoneKey{ParentID: old.ParentID, ZoneID: z})
				}
			}
		} else {
			for z := range old.Zones {
				staleKeys = append(staleKeys, model.ZoneKey{ParentID: old.ParentID, ZoneID: z})
			}
		}
	}

	s.interests[args.Handle] = model.Interest{Handle: args.Handle, ParentID: args.ParentID, Zones: newZones}
	s.rebuildInterestCacheLocked()
	stillCovered := make(map[model.ZoneKey]struct{}, len(s.interestCache))
	for k := range s.interestCache {
		stillCovered[k] = struct{}{}
	}
	s.mu.Unlock()

	// Disable objects that were visible only through the dropped zones,
	// unless another live interest still covers that (parentId, zoneId).
	for _, key := range staleKeys {
		if _, stillVisible := stillCovered[key]; stillVisible {
			continue
		}
		for _, obj := range a.ss.ObjectsInZone(key.ParentID, key.ZoneID) {
			if obj.DoID == s.AvatarID() {
				continue
			}
			a.sendRaw(s, protocol.ClientObjectDisable, objectDisableMsg(obj.DoID))
		}
	}

	// Emit CREATE_OBJECT_REQUIRED_OTHER for every object in a zone newly
	// covered by this interest, ordered by dclass number ascending.
	var fresh []*model.DistributedObject
	seen := make(map[model.DoID]struct{})
	for z := range newZones {
		key := model.ZoneKey{ParentID: args.ParentID, ZoneID: z}
		if _, alreadyVisible := preCovered[key]; alreadyVisible {
			continue
		}
		for _, obj := range a.ss.ObjectsInZone(args.ParentID, z) {
			if _, dup := seen[obj.DoID]; dup {
				continue
			}
			seen[obj.DoID] = struct{}{}
			fresh = append(fresh, obj)
		}
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Class.Number < fresh[j].Class.Number })
	for _, obj := range fresh {
		if obj.DoID == s.AvatarID() {
			continue
		}
		if err := a.sendRaw(s, protocol.ClientCreateObjectRequiredOther, createObjectRequiredOtherMsg(obj)); err != nil {
			return err
		}
	}

	return a.sendRaw(s, protocol.ClientDoneInterestResp, doneInterestResp(args.Handle, args.Context))
}

// handleRemoveInterest implements CLIENT_REMOVE_INTEREST: drop the
// handle, disable whatever it alone kept visible.
func (a *ClientAgent) handleRemoveInterest(s *Session, payload []byte) error {
	args, err := decodeRemoveInterestArgs(payload)
	if err != nil {
		return nil
	}

	s.mu.Lock()
	old, ok := s.interests[args.Handle]
	if !ok {
		s.mu.Unlock()
		return a.sendRaw(s, protocol.ClientDoneInterestResp, doneInterestResp(args.Handle, args.Context))
	}
	delete(s.interests, args.Handle)
	s.rebuildInterestCacheLocked()
	stillCovered := make(map[model.ZoneKey]struct{}, len(s.interestCache))
	for k := range s.interestCache {
		stillCovered[k] = struct{}{}
	}
	s.mu.Unlock()

	for z := range old.Zones {
		key := model.ZoneKey{ParentID: old.ParentID, ZoneID: z}
		if _, stillVisible := stillCovered[key]; stillVisible {
			continue
		}
		for _, obj := range a.ss.ObjectsInZone(key.ParentID, z) {
			if obj.DoID == s.AvatarID() {
				continue
			}
			a.sendRaw(s, protocol.ClientObjectDisable, objectDisableMsg(obj.DoID))
		}
	}

	return a.sendRaw(s, protocol.ClientDoneInterestResp, doneInterestResp(args.Handle, args.Context))
}
