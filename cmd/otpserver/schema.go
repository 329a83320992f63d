package main

import (
	"github.com/toontownretro/otp-server/internal/dbserver"
	"github.com/toontownretro/otp-server/internal/dclass"
)

// buildRegistry returns the fixed DC schema this binary runs against.
// A real cluster generates this from a .dc file; dclass's own package
// doc admits the core assumes an external loader and registers classes
// in-process, so the schema is Go code here rather than a parsed file
// (no .dc compiler exists anywhere in the teacher or the rest of the
// example corpus to ground one on).
func buildRegistry() *dclass.Registry {
	avatar := dclass.NewClass(1, avatarClassName, []*dclass.Field{
		{Number: 1, Name: dbserver.FieldName, Kind: dclass.KindAtomic, Flags: dclass.FlagDB | dclass.FlagBroadcast, Default: dclass.Str("")},
		{Number: 2, Name: dbserver.FieldAccountID, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Uint64v(0)},
		{Number: 3, Name: dbserver.FieldPetID, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Uint64v(0)},
		{Number: 4, Name: dbserver.FieldFriendsList, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.ListOf()},
		{Number: 5, Name: fieldDNAString, Kind: dclass.KindAtomic, Flags: dclass.FlagDB | dclass.FlagRequired, Default: dclass.Blob(nil)},
		{Number: 6, Name: fieldWishName, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Str("")},
		{Number: 7, Name: "setTalk", Kind: dclass.KindAtomic, Flags: dclass.FlagClSend | dclass.FlagBroadcast | dclass.FlagOwnRecv, Default: dclass.Str("")},
		{Number: 8, Name: "setXYZH", Kind: dclass.KindAtomic, Flags: dclass.FlagClSend | dclass.FlagBroadcast | dclass.FlagOwnSend, Default: dclass.ListOf()},
	})

	account := dclass.NewClass(2, dbserver.ClassAccount, []*dclass.Field{
		{Number: 1, Name: "setAvatarSet", Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.ListOf()},
		{Number: 2, Name: "setCreated", Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Str("")},
		{Number: 3, Name: "setLastLogin", Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Str("")},
		{Number: 4, Name: "setEstateId", Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Uint64v(0)},
		{Number: 5, Name: "setHouseIdSet", Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.ListOf()},
	})

	estate := dclass.NewClass(3, dbserver.ClassEstate, []*dclass.Field{
		{Number: 1, Name: "setHouseIdSet", Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.ListOf()},
	})

	house := dclass.NewClass(4, dbserver.ClassHouse, []*dclass.Field{
		{Number: 1, Name: dbserver.FieldName, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Str("")},
		{Number: 2, Name: dbserver.FieldColor, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Uint64v(0)},
		{Number: 3, Name: dbserver.FieldAvatarID, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Uint64v(0)},
	})

	return dclass.NewRegistry(avatar, account, estate, house)
}

const (
	fieldDNAString  = "setDNAString"
	fieldWishName   = "setWishName"
	avatarClassName = "DistributedToon"
)
