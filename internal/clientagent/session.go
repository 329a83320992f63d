// Package clientagent implements the Client Agent: the per-connection
// protocol state machine of spec.md §4.3, translating the external
// client wire protocol into calls against the State Server and Database
// Server and fanning SS-originated events back out to clients.
package clientagent

import (
	"net"
	"sync"

	"github.com/toontownretro/otp-server/internal/dclass"
	"github.com/toontownretro/otp-server/internal/model"
)

// State is a Client connection's position in the login state machine
// (spec.md §4.3 "Client connection state machine").
type State uint8

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateDisconnecting
)

// Session is one `Client` of spec.md §4.3: a TCP connection, its
// authentication state, avatar selection, and interest bookkeeping.
type Session struct {
	conn net.Conn

	mu        sync.Mutex
	state     State
	accountID model.DoID
	avatarID  model.DoID
	userName  string

	interests     map[model.InterestHandle]model.Interest
	interestCache map[model.ZoneKey]struct{}

	// clsendOverrides is the per-doId set of field numbers installed by
	// the internal CLIENT_SET_FIELD_SENDABLE message.
	clsendOverrides map[model.DoID]map[int]struct{}

	writeMu sync.Mutex
}

func newSession(conn net.Conn) *Session {
	return &Session{
		conn:            conn,
		interests:       make(map[model.InterestHandle]model.Interest),
		interestCache:   make(map[model.ZoneKey]struct{}),
		clsendOverrides: make(map[model.DoID]map[int]struct{}),
	}
}

// Channel is the session's puppet channel, used as the sender of any
// STATESERVER_OBJECT_UPDATE_FIELD it originates so broadcast fan-out can
// recognise and suppress the originating client's own echo.
func (s *Session) Channel() uint64 { return uint64(model.PuppetChannel(s.avatarID)) }

func (s *Session) AvatarID() model.DoID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.avatarID
}

// visible implements spec.md §4.3's visibility predicate:
// visible(c, o) ≡ (o.parentId, o.zoneId) ∈ c.interestCache ∨ o.doId = c.avatarId.
func (s *Session) visible(loc model.Location, doID model.DoID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleLocked(loc, doID)
}

func (s *Session) visibleLocked(loc model.Location, doID model.DoID) bool {
	if s.avatarID != 0 && doID == s.avatarID {
		return true
	}
	_, ok := s.interestCache[model.ZoneKey{ParentID: loc.ParentID, ZoneID: loc.ZoneID}]
	return ok
}

// canSendField implements spec.md §4.3's field-update authorisation
// rule.
func (s *Session) canSendField(doID model.DoID, f *dclass.Field) bool {
	if f.IsClSend() {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.IsOwnSend() && doID == s.avatarID {
		return true
	}
	if overrides, ok := s.clsendOverrides[doID]; ok {
		if _, ok := overrides[f.Number]; ok {
			return true
		}
	}
	return false
}

func (s *Session) allowField(doID model.DoID, fieldNumber int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clsendOverrides[doID] == nil {
		s.clsendOverrides[doID] = make(map[int]struct{})
	}
	s.clsendOverrides[doID][fieldNumber] = struct{}{}
}

// rebuildInterestCache recomputes interestCache as the union of every
// live interest's zone keys (spec.md §8 invariant 7).
func (s *Session) rebuildInterestCacheLocked() {
	cache := make(map[model.ZoneKey]struct{})
	for _, in := range s.interests {
		for _, k := range in.ZoneKeys() {
			cache[k] = struct{}{}
		}
	}
	s.interestCache = cache
}
