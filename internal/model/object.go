package model

import (
	"sync"

	"github.com/google/uuid"
	"github.com/toontownretro/otp-server/internal/dclass"
)

// Location is a (parentId, zoneId) pair: an object's position in the
// visibility hierarchy. The zero value means "not yet placed".
type Location struct {
	ParentID DoID
	ZoneID   uint32
}

// QuietZone is never admitted into an interest set (spec.md §3).
const QuietZone uint32 = 1

// DistributedObject is the tuple (doId, dclass, parentId, zoneId,
// fields) of spec.md §3. It is safe for concurrent field reads/writes;
// callers that need a consistent multi-field snapshot should hold
// FieldsMu themselves.
type DistributedObject struct {
	DoID   DoID
	Class  *dclass.Class
	loc    Location
	locMu  sync.RWMutex
	FieldsMu sync.RWMutex
	Fields dclass.FieldValues
}

// NewDistributedObject constructs an object with the given identity.
// Fields starts as an empty map; callers populate it via SetField or
// by assigning into Fields directly before the object is published.
func NewDistributedObject(doID DoID, class *dclass.Class, loc Location) *DistributedObject {
	return &DistributedObject{
		DoID:   doID,
		Class:  class,
		loc:    loc,
		Fields: make(dclass.FieldValues),
	}
}

// Location returns the object's current (parentId, zoneId).
func (o *DistributedObject) Location() Location {
	o.locMu.RLock()
	defer o.locMu.RUnlock()
	return o.loc
}

// SetLocation updates the object's (parentId, zoneId) and returns the
// previous location, matching STATESERVER_OBJECT_SET_ZONE's need for
// (prevParentId, prevZoneId) (spec.md §4.2).
func (o *DistributedObject) SetLocation(loc Location) Location {
	o.locMu.Lock()
	defer o.locMu.Unlock()
	prev := o.loc
	o.loc = loc
	return prev
}

// SetField assigns the last-applied argument tuple for fieldName. A
// warning is the caller's responsibility when the field is not a `db`
// field on a DatabaseObject (spec.md §3); this method only stores.
func (o *DistributedObject) SetField(fieldName string, v dclass.Value) {
	o.FieldsMu.Lock()
	defer o.FieldsMu.Unlock()
	o.Fields[fieldName] = v
}

// Field returns the last-applied value for fieldName and whether it
// has ever been set.
func (o *DistributedObject) Field(fieldName string) (dclass.Value, bool) {
	o.FieldsMu.RLock()
	defer o.FieldsMu.RUnlock()
	v, ok := o.Fields[fieldName]
	return v, ok
}

// Snapshot copies the current field map for packing without holding
// FieldsMu across a potentially slow network write.
func (o *DistributedObject) Snapshot() dclass.FieldValues {
	o.FieldsMu.RLock()
	defer o.FieldsMu.RUnlock()
	cp := make(dclass.FieldValues, len(o.Fields))
	for k, v := range o.Fields {
		cp[k] = v
	}
	return cp
}

// DatabaseObject augments a DistributedObject with the (uuId,
// schemaVersion) persisted alongside it (spec.md §3).
type DatabaseObject struct {
	*DistributedObject
	UUID          uuid.UUID
	SchemaVersion Version
}

// Version is the (maj, min, sub) triple stamped on every persisted
// object so the version gate (spec.md §4.4) can reject unreadable data.
type Version struct {
	Major, Minor, Sub uint8
}

func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	return v.Sub < o.Sub
}

func (v Version) Greater(o Version) bool { return o.Less(v) }

// CurrentVersion and MinSupportedVersion bound the version gate of
// spec.md §4.4's "Version gate".
var (
	CurrentVersion      = Version{1, 0, 0}
	MinSupportedVersion = Version{1, 0, 0}
)

// NewDatabaseObject constructs a freshly-created persistent object.
func NewDatabaseObject(doID DoID, class *dclass.Class, id uuid.UUID) *DatabaseObject {
	return &DatabaseObject{
		DistributedObject: NewDistributedObject(doID, class, Location{}),
		UUID:              id,
		SchemaVersion:     CurrentVersion,
	}
}
