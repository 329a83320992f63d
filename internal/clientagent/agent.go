package clientagent

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/toontownretro/otp-server/internal/dbserver"
	"github.com/toontownretro/otp-server/internal/dclass"
	"github.com/toontownretro/otp-server/internal/model"
	"github.com/toontownretro/otp-server/internal/protocol"
	"github.com/toontownretro/otp-server/internal/stateserver"
	"github.com/toontownretro/otp-server/internal/token"
	"github.com/toontownretro/otp-server/internal/visgroup"
)

// ClientAgent is the cluster's externally-facing TCP listener: it holds
// every live Session, routes client wire messages to the State Server
// and Database Server, and implements stateserver.Broadcaster so the SS
// can push lifecycle and field events back out to clients (spec.md
// §4.3).
type ClientAgent struct {
	registry    *dclass.Registry
	ss          *stateserver.StateServer
	db          *dbserver.DBServer
	visgroups   *visgroup.Table
	names       token.NameDictionary
	avatarClass string

	mu       sync.RWMutex
	sessions map[model.DoID]*Session // keyed by avatarId, only while selected
	all      map[*Session]struct{}

	wishMu    sync.Mutex
	wishnames map[string]struct{}

	ln net.Listener
}

// Config bundles the dependencies New wires together.
type Config struct {
	Registry    *dclass.Registry
	StateServer *stateserver.StateServer
	DBServer    *dbserver.DBServer
	Visgroups   *visgroup.Table
	Names       token.NameDictionary
	AvatarClass string
}

func New(cfg Config) *ClientAgent {
	names := cfg.Names
	if names == nil {
		names = token.DefaultNames()
	}
	return &ClientAgent{
		registry:    cfg.Registry,
		ss:          cfg.StateServer,
		db:          cfg.DBServer,
		visgroups:   cfg.Visgroups,
		names:       names,
		avatarClass: cfg.AvatarClass,
		sessions:    make(map[model.DoID]*Session),
		all:         make(map[*Session]struct{}),
		wishnames:   make(map[string]struct{}),
	}
}

// Addr returns the listener's bound address once Run has started, or
// nil, mirroring md.Server.Addr.
func (a *ClientAgent) Addr() net.Addr {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

// Run listens on addr and serves clients until ctx is cancelled,
// mirroring the Message Director's own accept loop (spec.md §6 "Listen
// endpoints": "Client Agent TCP on 6667").
func (a *ClientAgent) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	a.mu.Lock()
	a.ln = ln
	a.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	slog.Info("client agent listening", "address", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accepting client: %w", err)
			}
		}
		go a.serve(ctx, conn)
	}
}

func (a *ClientAgent) serve(ctx context.Context, conn net.Conn) {
	s := newSession(conn)
	a.mu.Lock()
	a.all[s] = struct{}{}
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.all, s)
		a.mu.Unlock()
		a.releaseAvatar(ctx, s)
		conn.Close()
	}()

	for {
		payload, err := protocol.ReadFrame(conn)
		if err != nil {
			return
		}
		if err := a.dispatch(ctx, s, payload); err != nil {
			slog.Warn("ca: dispatch failed", "error", err)
			return
		}
		s.mu.Lock()
		disconnecting := s.state == StateDisconnecting
		s.mu.Unlock()
		if disconnecting {
			return
		}
	}
}

// dispatch decodes the leading uint16 message code and routes it to its
// handler, enforcing the UNAUTHENTICATED/AUTHENTICATED gating of
// spec.md §4.3's connection state machine.
func (a *ClientAgent) dispatch(ctx context.Context, s *Session, frame []byte) error {
	r := protocol.NewReader(frame)
	code, err := r.ReadUint16()
	if err != nil {
		return a.goGetLost(s, protocol.DisconnectMalformed)
	}
	body, err := r.ReadBytes(r.Remaining())
	if err != nil {
		return a.goGetLost(s, protocol.DisconnectMalformed)
	}

	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == StateUnauthenticated {
		switch code {
		case protocol.ClientHeartbeat:
			return nil
		case protocol.ClientLogin2:
			return a.handleLogin(ctx, s, protocol.ClientLogin2Resp, body)
		case protocol.ClientLoginToontown:
			return a.handleLogin(ctx, s, protocol.ClientLoginToontownResp, body)
		default:
			return a.goGetLost(s, protocol.DisconnectUnauthorized)
		}
	}

	switch code {
	case protocol.ClientHeartbeat:
		return nil
	case protocol.ClientDisconnect:
		s.mu.Lock()
		s.state = StateDisconnecting
		s.mu.Unlock()
		return nil
	case protocol.ClientGetAvatars:
		return a.handleGetAvatars(ctx, s)
	case protocol.ClientCreateAvatar:
		return a.handleCreateAvatar(ctx, s, body)
	case protocol.ClientSetNamePattern:
		return a.handleSetNamePattern(ctx, s, body)
	case protocol.ClientSetWishname:
		return a.handleSetWishname(ctx, s, body)
	case protocol.ClientDeleteAvatar:
		return a.handleDeleteAvatar(ctx, s, body)
	case protocol.ClientSetAvatar:
		return a.handleSetAvatar(ctx, s, body)
	case protocol.ClientGetAvatarDetails:
		return a.handleGetAvatarDetails(ctx, s, body)
	case protocol.ClientGetPetDetails:
		return a.handleGetPetDetails(ctx, s, body)
	case protocol.ClientAddInterest:
		return a.handleAddInterest(s, body)
	case protocol.ClientRemoveInterest:
		return a.handleRemoveInterest(s, body)
	case protocol.ClientObjectUpdateField:
		return a.handleObjectUpdateField(s, body)
	case protocol.ClientObjectLocation:
		return a.handleObjectLocation(s, body)
	case protocol.ClientGetFriendList:
		return a.handleGetFriendList(ctx, s, false)
	case protocol.ClientGetFriendListExtended:
		return a.handleGetFriendList(ctx, s, true)
	case protocol.ClientRemoveFriend:
		return a.handleRemoveFriend(ctx, s, body)
	default:
		slog.Debug("ca: ignoring unknown client message", "code", code)
		return nil
	}
}

// chatTalkField is rewritten onto ChannelChatRewrite per spec.md §4.3
// ("field-auth... setTalk is rerouted to the chat channel for
// moderation"), rather than the object's own puppet channel.
const chatTalkField = "setTalk"

// handleObjectUpdateField implements CLIENT_OBJECT_UPDATE_FIELD: verify
// field-send authorisation, then forward to the State Server as the
// originating session's puppet channel.
func (a *ClientAgent) handleObjectUpdateField(s *Session, payload []byte) error {
	args, err := decodeObjectUpdateFieldArgs(payload)
	if err != nil {
		return nil
	}
	obj, ok := a.ss.Lookup(args.DoID)
	if !ok {
		return nil
	}
	field := obj.Class.FieldByNumber(args.FieldID)
	if field == nil || !s.canSendField(args.DoID, field) {
		return nil
	}

	sender := s.Channel()
	if field.Name == chatTalkField {
		sender = uint64(model.ChannelChatRewrite)
	}
	return a.ss.UpdateField(args.DoID, args.FieldID, args.Payload, sender)
}

// handleObjectLocation implements CLIENT_OBJECT_LOCATION: a client may
// reposition an object it owns.
func (a *ClientAgent) handleObjectLocation(s *Session, payload []byte) error {
	args, err := decodeObjectLocationArgs(payload)
	if err != nil {
		return nil
	}
	if args.DoID != s.AvatarID() {
		return nil
	}
	a.ss.SetZone(args.DoID, model.Location{ParentID: args.ParentID, ZoneID: args.ZoneID})
	return nil
}

func (a *ClientAgent) goGetLost(s *Session, reason uint16) error {
	a.sendRaw(s, protocol.ClientGoGetLost, goGetLostMsg(reason))
	s.mu.Lock()
	s.state = StateDisconnecting
	s.mu.Unlock()
	return nil
}

func (a *ClientAgent) sendRaw(s *Session, code uint16, payload []byte) error {
	w := protocol.NewWriter(2 + len(payload))
	w.WriteUint16(code)
	w.WriteBytes(payload)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return protocol.WriteFrame(s.conn, w.Bytes())
}

func (a *ClientAgent) forEachSession(fn func(*Session)) {
	a.mu.RLock()
	sessions := make([]*Session, 0, len(a.all))
	for s := range a.all {
		sessions = append(sessions, s)
	}
	a.mu.RUnlock()
	for _, s := range sessions {
		fn(s)
	}
}

func (a *ClientAgent) registerAvatarSession(avID model.DoID, s *Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[avID] = s
}

func (a *ClientAgent) unregisterAvatarSession(avID model.DoID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, avID)
}

func (a *ClientAgent) lookupAvatarSession(avID model.DoID) *Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sessions[avID]
}
