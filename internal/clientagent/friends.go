package clientagent

import (
	"context"

	"github.com/toontownretro/otp-server/internal/dbserver"
	"github.com/toontownretro/otp-server/internal/model"
	"github.com/toontownretro/otp-server/internal/protocol"
)

// handleGetFriendList implements CLIENT_GET_FRIEND_LIST and its
// _EXTENDED sibling. spec.md §9 notes the original source carries two
// diverging branches for this call; the full-detail branch (name +
// online state for every entry) is treated as authoritative here and
// simply omitted from the wire reply when extended is false.
func (a *ClientAgent) handleGetFriendList(ctx context.Context, s *Session, extended bool) error {
	s.mu.Lock()
	avatarID := s.avatarID
	s.mu.Unlock()

	obj, ok, err := a.db.LoadObject(ctx, avatarID)
	if err != nil || !ok {
		return a.sendRaw(s, protocol.ClientFriendListAnswer, friendListAnswer{ReturnCode: 1, Extended: extended}.encode())
	}

	friends, _ := obj.Field(dbserver.FieldFriendsList)
	entries := make([]friendEntry, 0, len(friends.List))
	for _, entry := range friends.List {
		if len(entry.List) != 2 {
			continue
		}
		friendID := model.DoID(entry.List[0].UInt)
		name := ""
		if fo, ok, err := a.db.LoadObject(ctx, friendID); err == nil && ok {
			if v, ok := fo.Field(dbserver.FieldName); ok {
				name = v.Str
			}
		}
		entries = append(entries, friendEntry{
			DoID:   friendID,
			Name:   name,
			Online: a.lookupAvatarSession(friendID) != nil,
		})
	}

	return a.sendRaw(s, protocol.ClientFriendListAnswer, friendListAnswer{ReturnCode: 0, Extended: extended, Friends: entries}.encode())
}

// handleRemoveFriend implements CLIENT_REMOVE_FRIEND: drop friendID from
// the caller's friends list (and the reverse edge).
func (a *ClientAgent) handleRemoveFriend(ctx context.Context, s *Session, payload []byte) error {
	friendID, err := decodeDoIDArgs(payload)
	if err != nil {
		return nil
	}

	s.mu.Lock()
	avatarID := s.avatarID
	s.mu.Unlock()

	if err := removeFriendEdge(ctx, a.db, avatarID, friendID); err != nil {
		return err
	}
	return removeFriendEdge(ctx, a.db, friendID, avatarID)
}

func removeFriendEdge(ctx context.Context, db *dbserver.DBServer, owner, friend model.DoID) error {
	obj, ok, err := db.LoadObject(ctx, owner)
	if err != nil || !ok {
		return err
	}
	v, _ := obj.Field(dbserver.FieldFriendsList)
	kept := v.List[:0]
	for _, entry := range v.List {
		if len(entry.List) == 2 && model.DoID(entry.List[0].UInt) == friend {
			continue
		}
		kept = append(kept, entry)
	}
	v.List = kept
	obj.SetField(dbserver.FieldFriendsList, v)
	return db.SaveField(owner, dbserver.FieldFriendsList, v)
}
