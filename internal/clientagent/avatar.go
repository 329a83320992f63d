package clientagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/toontownretro/otp-server/internal/dbserver"
	"github.com/toontownretro/otp-server/internal/dclass"
	"github.com/toontownretro/otp-server/internal/model"
	"github.com/toontownretro/otp-server/internal/protocol"
)

// fieldDNAString and fieldWishName are avatar-only well-known field
// names this package assumes the injected registry's avatar class
// provides, alongside the shared ones dbserver already exports.
const (
	fieldDNAString = "setDNAString"
	fieldWishName  = "setWishName"
)

func (a *ClientAgent) handleCreateAvatar(ctx context.Context, s *Session, payload []byte) error {
	args, err := decodeCreateAvatarArgs(payload)
	if err != nil {
		return a.sendRaw(s, protocol.ClientCreateAvatarResp, createAvatarResp{Context: 0, ReturnCode: 2}.encode())
	}
	if args.Slot >= model.AccountAvatarSlots {
		return a.sendRaw(s, protocol.ClientCreateAvatarResp, createAvatarResp{Context: args.Context, ReturnCode: 1}.encode())
	}

	s.mu.Lock()
	accountID := s.accountID
	s.mu.Unlock()

	acc, ok, err := a.db.LoadAccount(ctx, accountID)
	if err != nil || !ok {
		return a.sendRaw(s, protocol.ClientCreateAvatarResp, createAvatarResp{Context: args.Context, ReturnCode: 2}.encode())
	}
	if acc.AvatarSet[args.Slot] != 0 {
		return a.sendRaw(s, protocol.ClientCreateAvatarResp, createAvatarResp{Context: args.Context, ReturnCode: 1}.encode())
	}

	resp, err := a.db.CreateStoredObject(ctx, dbserver.CreateStoredObjectArgs{
		ClassName:  a.avatarClass,
		FieldNames: []string{dbserver.FieldAccountID, fieldDNAString},
		Values:     [][]byte{dclass.Pack(dclass.Uint64v(uint64(accountID))), dclass.Pack(dclass.Blob(args.DNA))},
	})
	if err != nil {
		return a.sendRaw(s, protocol.ClientCreateAvatarResp, createAvatarResp{Context: args.Context, ReturnCode: 2}.encode())
	}

	acc.AvatarSet[args.Slot] = resp.DoID
	if err := a.db.SaveAccount(ctx, acc); err != nil {
		return a.sendRaw(s, protocol.ClientCreateAvatarResp, createAvatarResp{Context: args.Context, ReturnCode: 2}.encode())
	}

	return a.sendRaw(s, protocol.ClientCreateAvatarResp, createAvatarResp{Context: args.Context, ReturnCode: 0, AvID: resp.DoID}.encode())
}

func (a *ClientAgent) handleSetNamePattern(ctx context.Context, s *Session, payload []byte) error {
	args, err := decodeSetNamePatternArgs(payload)
	if err != nil {
		return nil
	}

	var parts []string
	for _, p := range args.Parts {
		if p.Index < 0 {
			continue
		}
		word, err := a.names.Word(int(p.Index))
		if err != nil {
			continue
		}
		parts = append(parts, word)
	}
	name := strings.Join(parts, " ")

	return a.db.SetStoredValues(ctx, dbserver.SetStoredValuesArgs{
		DoID:       args.AvID,
		FieldNames: []string{dbserver.FieldName},
		Values:     [][]byte{dclass.Pack(dclass.Str(name))},
	})
}

func (a *ClientAgent) handleSetWishname(ctx context.Context, s *Session, payload []byte) error {
	args, err := decodeSetWishnameArgs(payload)
	if err != nil {
		return a.sendRaw(s, protocol.ClientSetWishname, setWishnameResp{ReturnCode: 2}.encode())
	}

	a.wishMu.Lock()
	_, taken := a.wishnames[args.Name]
	if args.AvID == 0 {
		a.wishMu.Unlock()
		if taken {
			return a.sendRaw(s, protocol.ClientSetWishname, setWishnameResp{ReturnCode: 1, Name: args.Name}.encode())
		}
		return a.sendRaw(s, protocol.ClientSetWishname, setWishnameResp{ReturnCode: 0, Name: args.Name}.encode())
	}
	if taken {
		a.wishMu.Unlock()
		return a.sendRaw(s, protocol.ClientSetWishname, setWishnameResp{ReturnCode: 1, Name: args.Name}.encode())
	}
	a.wishnames[args.Name] = struct{}{}
	a.wishMu.Unlock()

	if err := a.db.SetStoredValues(ctx, dbserver.SetStoredValuesArgs{
		DoID:       args.AvID,
		FieldNames: []string{fieldWishName},
		Values:     [][]byte{dclass.Pack(dclass.Str(args.Name))},
	}); err != nil {
		return a.sendRaw(s, protocol.ClientSetWishname, setWishnameResp{ReturnCode: 2}.encode())
	}
	return a.sendRaw(s, protocol.ClientSetWishname, setWishnameResp{ReturnCode: 0, Name: args.Name}.encode())
}

func (a *ClientAgent) handleDeleteAvatar(ctx context.Context, s *Session, payload []byte) error {
	avID, err := decodeDoIDArgs(payload)
	if err != nil {
		return a.sendRaw(s, protocol.ClientDeleteAvatarResp, deleteAvatarResp{ReturnCode: 2}.encode())
	}

	s.mu.Lock()
	accountID := s.accountID
	active := s.avatarID == avID
	s.mu.Unlock()

	acc, ok, err := a.db.LoadAccount(ctx, accountID)
	if err != nil || !ok || !acc.HasAvatar(avID) {
		return a.sendRaw(s, protocol.ClientDeleteAvatarResp, deleteAvatarResp{ReturnCode: 1}.encode())
	}

	if active {
		a.releaseAvatar(ctx, s)
	}

	acc.AvatarSet[acc.SlotOf(avID)] = 0
	if err := a.db.SaveAccount(ctx, acc); err != nil {
		return a.sendRaw(s, protocol.ClientDeleteAvatarResp, deleteAvatarResp{ReturnCode: 2}.encode())
	}
	return a.sendRaw(s, protocol.ClientDeleteAvatarResp, deleteAvatarResp{ReturnCode: 0}.encode())
}

// handleSetAvatar implements spec.md §4.3's "Avatar selection".
func (a *ClientAgent) handleSetAvatar(ctx context.Context, s *Session, payload []byte) error {
	avID, err := decodeDoIDArgs(payload)
	if err != nil {
		return nil
	}

	if avID == 0 {
		a.releaseAvatar(ctx, s)
		return nil
	}

	s.mu.Lock()
	accountID := s.accountID
	s.mu.Unlock()

	acc, ok, err := a.db.LoadAccount(ctx, accountID)
	if err != nil || !ok || !acc.HasAvatar(avID) {
		return fmt.Errorf("ca: set-avatar: %d does not belong to account %d", avID, accountID)
	}

	obj, ok, err := a.db.LoadObject(ctx, avID)
	if err != nil || !ok {
		return fmt.Errorf("ca: set-avatar: avatar %d failed to load", avID)
	}

	if v, ok := obj.Field(dbserver.FieldAccountID); !ok || v.UInt == 0 {
		if err := a.db.SetStoredValues(ctx, dbserver.SetStoredValuesArgs{
			DoID:       avID,
			FieldNames: []string{dbserver.FieldAccountID},
			Values:     [][]byte{dclass.Pack(dclass.Uint64v(uint64(accountID)))},
		}); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.avatarID = avID
	s.mu.Unlock()
	a.registerAvatarSession(avID, s)

	if err := a.sendRaw(s, protocol.ClientGetAvatarDetailsResp, avatarDetailsResp{ReturnCode: 0, Object: obj.DistributedObject}.encode()); err != nil {
		return err
	}

	friends, _ := obj.Field(dbserver.FieldFriendsList)
	for _, entry := range friends.List {
		if len(entry.List) != 2 {
			continue
		}
		friendID := model.DoID(entry.List[0].UInt)
		if friend := a.lookupAvatarSession(friendID); friend != nil {
			a.sendRaw(friend, protocol.ClientFriendOnline, avIDMsg(avID))
		}
	}
	return nil
}

// releaseAvatar implements spec.md §4.3's avId=0 branch: notify online
// friends, then drop the session's claim on its avatar. The avatar
// remains a persistent database object; only its live presence ends.
func (a *ClientAgent) releaseAvatar(ctx context.Context, s *Session) {
	s.mu.Lock()
	oldAvatar := s.avatarID
	s.avatarID = 0
	s.mu.Unlock()
	if oldAvatar == 0 {
		return
	}
	a.unregisterAvatarSession(oldAvatar)

	obj, ok, err := a.db.LoadObject(ctx, oldAvatar)
	if err != nil || !ok {
		return
	}
	friends, _ := obj.Field(dbserver.FieldFriendsList)
	for _, entry := range friends.List {
		if len(entry.List) != 2 {
			continue
		}
		friendID := model.DoID(entry.List[0].UInt)
		if friend := a.lookupAvatarSession(friendID); friend != nil {
			a.sendRaw(friend, protocol.ClientFriendOffline, avIDMsg(oldAvatar))
		}
	}
}

func (a *ClientAgent) handleGetAvatarDetails(ctx context.Context, s *Session, payload []byte) error {
	doID, err := decodeDoIDArgs(payload)
	if err != nil {
		return nil
	}
	obj, ok, err := a.db.LoadObject(ctx, doID)
	if err != nil || !ok {
		return a.sendRaw(s, protocol.ClientGetAvatarDetailsResp, avatarDetailsResp{ReturnCode: 1}.encode())
	}
	return a.sendRaw(s, protocol.ClientGetAvatarDetailsResp, avatarDetailsResp{ReturnCode: 0, Object: obj.DistributedObject}.encode())
}

func (a *ClientAgent) handleGetPetDetails(ctx context.Context, s *Session, payload []byte) error {
	doID, err := decodeDoIDArgs(payload)
	if err != nil {
		return nil
	}
	obj, ok, err := a.db.LoadObject(ctx, doID)
	if err != nil || !ok {
		return a.sendRaw(s, protocol.ClientGetPetDetailsResp, avatarDetailsResp{ReturnCode: 1}.encode())
	}
	return a.sendRaw(s, protocol.ClientGetPetDetailsResp, avatarDetailsResp{ReturnCode: 0, Object: obj.DistributedObject}.encode())
}
