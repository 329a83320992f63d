package clientagent

import (
	"context"
	"log/slog"
	"time"

	"github.com/toontownretro/otp-server/internal/dbserver"
	"github.com/toontownretro/otp-server/internal/protocol"
	"github.com/toontownretro/otp-server/internal/token"
)

// lastLoginLayout is the ISO-seconds stamp format spec.md §4.3 asks for
// CREATED / LAST_LOGIN.
const lastLoginLayout = "2006-01-02 15:04:05"

// minutesRemaining is the hardcoded session-length hint the login
// response carries (spec.md §4.3 "minutes remaining (hardcoded 3 600 000)").
const minutesRemaining = 3_600_000

// handleLogin implements spec.md §4.3's "Login": resolve the account
// from the play token, stamp CREATED/LAST_LOGIN, and reply with the
// response shape shared by CLIENT_LOGIN_2 and CLIENT_LOGIN_TOONTOWN.
func (a *ClientAgent) handleLogin(ctx context.Context, s *Session, respCode uint16, payload []byte) error {
	args, err := decodeLoginArgs(payload)
	if err != nil {
		return a.sendRaw(s, respCode, loginResp{ReturnCode: 2, ErrorString: "malformed login request"}.encode())
	}

	info := token.Parse(args.PlayToken)
	if info.ReturnCode != 0 {
		return a.sendRaw(s, respCode, loginResp{ReturnCode: uint8(info.ReturnCode), ErrorString: info.RespString}.encode())
	}

	userName := info.UserName
	if userName == "" {
		userName = info.AccountName
	}

	doID, ok, err := a.db.LookupAccount(ctx, userName)
	if err != nil {
		slog.Warn("ca: account lookup failed", "user", userName, "error", err)
		return a.sendRaw(s, respCode, loginResp{ReturnCode: 2, ErrorString: "account lookup failed"}.encode())
	}
	if !ok {
		doID, err = a.db.CreateAccount(ctx, userName)
		if err != nil {
			slog.Warn("ca: account creation failed", "user", userName, "error", err)
			return a.sendRaw(s, respCode, loginResp{ReturnCode: 2, ErrorString: "account creation failed"}.encode())
		}
	}

	acc, ok, err := a.db.LoadAccount(ctx, doID)
	if err != nil || !ok {
		slog.Warn("ca: account load failed", "doId", doID, "error", err)
		return a.sendRaw(s, respCode, loginResp{ReturnCode: 2, ErrorString: "account load failed"}.encode())
	}

	now := time.Now().UTC()
	nowStr := now.Format(lastLoginLayout)
	prevLastLogin := acc.LastLogin

	if acc.Created == "" {
		acc.Created = nowStr
	}
	createdAt, err := time.Parse(lastLoginLayout, acc.Created)
	accountDays := 0
	if err == nil {
		accountDays = int(now.Sub(createdAt).Hours() / 24)
		if accountDays < 0 {
			accountDays = -accountDays
		}
	}
	acc.LastLogin = nowStr

	if err := a.db.SaveAccount(ctx, acc); err != nil {
		slog.Warn("ca: account save failed", "doId", doID, "error", err)
		return a.sendRaw(s, respCode, loginResp{ReturnCode: 2, ErrorString: "account save failed"}.encode())
	}

	s.mu.Lock()
	s.state = StateAuthenticated
	s.accountID = doID
	s.userName = userName
	s.mu.Unlock()

	resp := loginResp{
		ReturnCode:        0,
		AccountDoID:       doID,
		UserName:          userName,
		AccountName:       info.AccountName,
		Paid:              info.Paid,
		OpenChatEnabled:   info.OpenChatEnabled,
		SecondsSinceEpoch: uint32(now.Unix()),
		MicrosSinceEpoch:  uint32(now.Nanosecond() / 1000),
		MinutesRemaining:  minutesRemaining,
		AccountDays:       uint32(accountDays),
		LastLogin:         prevLastLogin,
	}
	return a.sendRaw(s, respCode, resp.encode())
}

func (a *ClientAgent) handleGetAvatars(ctx context.Context, s *Session) error {
	s.mu.Lock()
	accountID := s.accountID
	s.mu.Unlock()

	acc, ok, err := a.db.LoadAccount(ctx, accountID)
	if err != nil || !ok {
		return a.sendRaw(s, protocol.ClientGetAvatarsResp, getAvatarsResp{ReturnCode: 1}.encode())
	}

	var avatars []avatarSummary
	for slot, avID := range acc.AvatarSet {
		if avID == 0 {
			continue
		}
		obj, ok, err := a.db.LoadObject(ctx, avID)
		if err != nil || !ok {
			continue
		}
		name, _ := obj.Field(dbserver.FieldName)
		dna, _ := obj.Field(fieldDNAString)
		avatars = append(avatars, avatarSummary{Slot: slot, AvID: avID, Name: name.Str, DNA: dna.Blob})
	}
	return a.sendRaw(s, protocol.ClientGetAvatarsResp, getAvatarsResp{ReturnCode: 0, Avatars: avatars}.encode())
}
