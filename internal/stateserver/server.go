package stateserver

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/toontownretro/otp-server/internal/dclass"
	"github.com/toontownretro/otp-server/internal/md"
	"github.com/toontownretro/otp-server/internal/model"
	"github.com/toontownretro/otp-server/internal/protocol"
)

// Broadcaster is the Client Agent's side of the SS->CA contract: it is
// asked to announce lifecycle and field events to the clients that
// should see them (spec.md §4.3 "Broadcast fan-out").
type Broadcaster interface {
	BroadcastCreate(obj *model.DistributedObject)
	BroadcastDelete(obj *model.DistributedObject)
	BroadcastMove(obj *model.DistributedObject, prev model.Location)
	BroadcastUpdate(obj *model.DistributedObject, field *dclass.Field, value dclass.Value, sender uint64)
}

// Persister is the subset of the Database Server the SS needs to
// persist a db object's mutated field (spec.md §4.2 "if the object is
// a database object, persist the new field value before acknowledging").
type Persister interface {
	SaveField(doID model.DoID, fieldName string, v dclass.Value) error
}

// StateServer owns the two doId-indexed registries and the handlers
// bound to channel 20100000 (spec.md §4.2).
type StateServer struct {
	registry *dclass.Registry

	mu        sync.RWMutex
	objects   map[model.DoID]*model.DistributedObject // ephemeral
	dbObjects map[model.DoID]*model.DistributedObject  // hydrated-from-DB

	broadcaster Broadcaster
	persister   Persister
}

// New builds a StateServer. broadcaster/persister may be nil in tests
// that only exercise registry bookkeeping.
func New(registry *dclass.Registry, broadcaster Broadcaster, persister Persister) *StateServer {
	return &StateServer{
		registry:    registry,
		objects:     make(map[model.DoID]*model.DistributedObject),
		dbObjects:   make(map[model.DoID]*model.DistributedObject),
		broadcaster: broadcaster,
		persister:   persister,
	}
}

// SetBroadcaster wires the Client Agent in after construction, breaking
// the SS/CA/DBSS construction cycle (the Client Agent itself is built
// from a live StateServer reference).
func (s *StateServer) SetBroadcaster(b Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcaster = b
}

// SetPersister wires the Database Server in after construction, for
// the same reason as SetBroadcaster.
func (s *StateServer) SetPersister(p Persister) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persister = p
}

// Peer wraps the StateServer as an in-process MD peer subscribed to
// ChannelStateServer, dispatching each inbound message to its handler.
func (s *StateServer) Peer() *md.LocalPeer {
	return md.NewLocalPeer("stateserver", s.handle)
}

func (s *StateServer) handle(msg protocol.DataMessage) {
	switch msg.Code {
	case protocol.StateServerObjectGenerateWithRequiredOther:
		args, err := DecodeGenerateArgs(msg.Payload)
		if err != nil {
			slog.Warn("ss: bad generate args", "error", err)
			return
		}
		if err := s.Generate(args); err != nil {
			slog.Warn("ss: generate failed", "error", err)
		}
	case protocol.StateServerObjectDeleteRAM:
		args, err := DecodeDeleteArgs(msg.Payload)
		if err != nil {
			slog.Warn("ss: bad delete args", "error", err)
			return
		}
		s.Delete(args.DoID)
	case protocol.StateServerObjectSetZone:
		args, err := DecodeSetZoneArgs(msg.Payload)
		if err != nil {
			slog.Warn("ss: bad set-zone args", "error", err)
			return
		}
		s.SetZone(args.DoID, model.Location{ParentID: args.ParentID, ZoneID: args.ZoneID})
	case protocol.StateServerObjectUpdateField:
		args, err := DecodeUpdateFieldArgs(msg.Payload)
		if err != nil {
			slog.Warn("ss: bad update-field args", "error", err)
			return
		}
		if err := s.UpdateField(args.DoID, args.FieldID, args.Payload, msg.Sender); err != nil {
			slog.Warn("ss: update field failed", "error", err)
		}
	default:
		slog.Debug("ss: ignoring unknown code", "code", msg.Code)
	}
}

// lookup returns the object for doID, preferring dbObjects on a
// collision (spec.md §4.2 "Tie-break when both registries could hold a
// doId": dbObjects wins; the invariant in §3 says this never actually
// happens in practice).
func (s *StateServer) lookup(doID model.DoID) (*model.DistributedObject, bool) {
	if o, ok := s.dbObjects[doID]; ok {
		return o, true
	}
	o, ok := s.objects[doID]
	return o, ok
}

// Generate handles STATESERVER_OBJECT_GENERATE_WITH_REQUIRED_OTHER:
// insert into the ephemeral registry, then ask the CA to broadcast
// creation.
func (s *StateServer) Generate(a GenerateArgs) error {
	class, err := s.registry.ClassByNumber(a.ClassID)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	obj := model.NewDistributedObject(a.DoID, class, model.Location{ParentID: a.ParentID, ZoneID: a.ZoneID})
	applyPackedRequired(obj, class, a.RequiredFields)
	applyPackedOther(obj, class, a.OtherFields)

	s.mu.Lock()
	if _, exists := s.objects[a.DoID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("generate: doId %d already exists in ephemeral registry", a.DoID)
	}
	if _, exists := s.dbObjects[a.DoID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("generate: doId %d already exists in db registry", a.DoID)
	}
	s.objects[a.DoID] = obj
	s.mu.Unlock()

	if s.broadcaster != nil {
		s.broadcaster.BroadcastCreate(obj)
	}
	return nil
}

// RegisterHydrated inserts obj into the hydrated-from-DB registry. The
// Database Server calls this the first time a persistent object is
// touched (GetStoredValues / GetEstate) so later location updates on
// it resolve (spec.md §3 "Hydrated object").
func (s *StateServer) RegisterHydrated(obj *model.DistributedObject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dbObjects[obj.DoID] = obj
}

// Lookup exposes the registries to other in-process components (e.g.
// the Database Server checking whether an object is already hydrated).
func (s *StateServer) Lookup(doID model.DoID) (*model.DistributedObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(doID)
}

// ObjectsInZone returns every live object (ephemeral or hydrated)
// currently located at (parentID, zoneID), used by the Client Agent to
// populate a newly-opened interest zone with CREATE_OBJECT_REQUIRED_OTHER
// messages (spec.md §4.3 "Interest management").
func (s *StateServer) ObjectsInZone(parentID model.DoID, zoneID uint32) []*model.DistributedObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.DistributedObject
	for _, obj := range s.objects {
		loc := obj.Location()
		if loc.ParentID == parentID && loc.ZoneID == zoneID {
			out = append(out, obj)
		}
	}
	for _, obj := range s.dbObjects {
		loc := obj.Location()
		if loc.ParentID == parentID && loc.ZoneID == zoneID {
			out = append(out, obj)
		}
	}
	return out
}

// Delete handles STATESERVER_OBJECT_DELETE_RAM.
func (s *StateServer) Delete(doID model.DoID) {
	s.mu.Lock()
	obj, ok := s.objects[doID]
	if ok {
		delete(s.objects, doID)
	}
	s.mu.Unlock()

	if !ok {
		slog.Debug("ss: delete of unknown doId", "doId", doID)
		return
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastDelete(obj)
	}
}

// SetZone handles STATESERVER_OBJECT_SET_ZONE.
func (s *StateServer) SetZone(doID model.DoID, loc model.Location) {
	s.mu.RLock()
	obj, ok := s.lookup(doID)
	s.mu.RUnlock()
	if !ok {
		slog.Debug("ss: set-zone of unknown doId", "doId", doID)
		return
	}

	prev := obj.SetLocation(loc)
	if s.broadcaster != nil {
		s.broadcaster.BroadcastMove(obj, prev)
	}
}

// UpdateField handles STATESERVER_OBJECT_UPDATE_FIELD: apply to the
// in-memory object (ephemeral or hydrated); if the object is a
// database object, persist the new value before acknowledging.
func (s *StateServer) UpdateField(doID model.DoID, fieldID int, payload []byte, sender uint64) error {
	s.mu.RLock()
	obj, ok := s.lookup(doID)
	_, isDB := s.dbObjects[doID]
	s.mu.RUnlock()
	if !ok {
		slog.Debug("ss: update-field of unknown doId", "doId", doID)
		return nil
	}

	field := obj.Class.FieldByNumber(fieldID)
	if field == nil {
		return fmt.Errorf("update field: class %q has no field number %d", obj.Class.Name, fieldID)
	}
	value, _, err := dclass.Unpack(payload)
	if err != nil {
		return fmt.Errorf("unpacking field %q: %w", field.Name, err)
	}
	obj.SetField(field.Name, value)

	if isDB && s.persister != nil {
		if err := s.persister.SaveField(doID, field.Name, value); err != nil {
			return fmt.Errorf("persisting field %q of doId %d: %w", field.Name, doID, err)
		}
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastUpdate(obj, field, value, sender)
	}
	return nil
}

func applyPackedRequired(obj *model.DistributedObject, class *dclass.Class, data []byte) {
	rest := data
	for _, f := range class.Fields {
		if !f.IsRequired() {
			continue
		}
		var v dclass.Value
		var err error
		v, rest, err = dclass.Unpack(rest)
		if err != nil {
			slog.Warn("ss: truncated required fields", "class", class.Name, "field", f.Name, "error", err)
			return
		}
		obj.SetField(f.Name, v)
	}
}

func applyPackedOther(obj *model.DistributedObject, class *dclass.Class, data []byte) {
	r := protocol.NewReader(data)
	count, err := r.ReadUint16()
	if err != nil {
		return
	}
	rest, err := r.ReadBytes(r.Remaining())
	if err != nil {
		return
	}
	for range count {
		if len(rest) < 2 {
			slog.Warn("ss: truncated other fields", "class", class.Name)
			return
		}
		fieldNum := uint16(rest[0]) | uint16(rest[1])<<8
		rest = rest[2:]

		var v dclass.Value
		v, rest, err = dclass.Unpack(rest)
		if err != nil {
			slog.Warn("ss: truncated other field", "class", class.Name, "fieldNumber", fieldNum, "error", err)
			return
		}
		if f := class.FieldByNumber(int(fieldNum)); f != nil {
			obj.SetField(f.Name, v)
		}
	}
}
