package model

// AccountAvatarSlots is the fixed number of avatar slots an account
// carries (spec.md §3: "ordered 6-slot list of avatar doIds").
const AccountAvatarSlots = 6

// Account is the persisted account record (spec.md §3). It is stored
// as a DatabaseObject of class "Account"; this struct is the typed
// view callers work with after reading the AccountAvSet/Created/...
// fields out of a DatabaseObject.
type Account struct {
	DoID        DoID
	AvatarSet   [AccountAvatarSlots]DoID // 0 == empty slot
	Created     string                   // ISO seconds
	LastLogin   string                   // ISO seconds
	EstateID    DoID                     // 0 == none yet
	HouseIDSet  [AccountAvatarSlots]DoID
}

// SlotOf returns the slot index occupied by avatarID, or -1.
func (a *Account) SlotOf(avatarID DoID) int {
	for i, id := range a.AvatarSet {
		if id == avatarID {
			return i
		}
	}
	return -1
}

// HasAvatar reports whether avatarID is present in the account's slots.
func (a *Account) HasAvatar(avatarID DoID) bool {
	return a.SlotOf(avatarID) >= 0
}
