package model

// InterestHandle identifies one of a client's interest subscriptions
// (CLIENT_ADD_INTEREST's uint16 handle).
type InterestHandle uint16

// ZoneKey is a (parentId, zoneId) pair used as an interest-cache entry.
type ZoneKey struct {
	ParentID DoID
	ZoneID   uint32
}

// Interest is the per-client mapping handle -> (parentId, set<zoneId>)
// of spec.md §3.
type Interest struct {
	Handle   InterestHandle
	ParentID DoID
	Zones    map[uint32]struct{}
}

// ZoneKeys expands an Interest into the (parentId, zoneId) pairs it
// contributes to the interest cache.
func (i Interest) ZoneKeys() []ZoneKey {
	keys := make([]ZoneKey, 0, len(i.Zones))
	for z := range i.Zones {
		keys = append(keys, ZoneKey{ParentID: i.ParentID, ZoneID: z})
	}
	return keys
}
