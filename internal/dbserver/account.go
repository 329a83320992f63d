package dbserver

import (
	"github.com/toontownretro/otp-server/internal/dclass"
	"github.com/toontownretro/otp-server/internal/model"
)

// Well-known class and field names this package assumes the injected
// dclass.Registry provides (spec.md §3's account/estate/house shapes).
const (
	ClassAccount = "DistributedAccount"
	ClassEstate  = "DistributedEstate"
	ClassHouse   = "DistributedHouse"

	fieldAvatarSet  = "setAvatarSet"
	fieldCreated    = "setCreated"
	fieldLastLogin  = "setLastLogin"
	fieldEstateID   = "setEstateId"
	fieldHouseIDSet = "setHouseIdSet"

	FieldAccountID = "setAccountId" // on the avatar class: owning account doId
	FieldPetID     = "setPetId"     // on the avatar class: doId of owned pet, 0 = none
	FieldName      = "setName"      // shared by avatar and house
	FieldColor     = "setColor"     // house
	FieldAvatarID  = "setAvatarId"  // house: occupant avatar doId, 0 = vacant
)

func accountFromObject(obj *model.DistributedObject) model.Account {
	acc := model.Account{DoID: obj.DoID}
	if v, ok := obj.Field(fieldAvatarSet); ok {
		for i, item := range v.List {
			if i >= model.AccountAvatarSlots {
				break
			}
			acc.AvatarSet[i] = model.DoID(item.UInt)
		}
	}
	if v, ok := obj.Field(fieldCreated); ok {
		acc.Created = v.Str
	}
	if v, ok := obj.Field(fieldLastLogin); ok {
		acc.LastLogin = v.Str
	}
	if v, ok := obj.Field(fieldEstateID); ok {
		acc.EstateID = model.DoID(v.UInt)
	}
	if v, ok := obj.Field(fieldHouseIDSet); ok {
		for i, item := range v.List {
			if i >= model.AccountAvatarSlots {
				break
			}
			acc.HouseIDSet[i] = model.DoID(item.UInt)
		}
	}
	return acc
}

func applyAccountToObject(acc model.Account, obj *model.DistributedObject) {
	avatars := make([]dclass.Value, model.AccountAvatarSlots)
	for i, id := range acc.AvatarSet {
		avatars[i] = dclass.Uint64v(uint64(id))
	}
	obj.SetField(fieldAvatarSet, dclass.ListOf(avatars...))
	obj.SetField(fieldCreated, dclass.Str(acc.Created))
	obj.SetField(fieldLastLogin, dclass.Str(acc.LastLogin))
	obj.SetField(fieldEstateID, dclass.Uint64v(uint64(acc.EstateID)))

	houses := make([]dclass.Value, model.AccountAvatarSlots)
	for i, id := range acc.HouseIDSet {
		houses[i] = dclass.Uint64v(uint64(id))
	}
	obj.SetField(fieldHouseIDSet, dclass.ListOf(houses...))
}
