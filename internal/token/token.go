// Package token parses the opaque play-token blob a login client
// presents: an '&'-separated set of KEY=VALUE pairs describing the
// account identity and entitlements the external DISL/whitelist system
// vouches for (spec.md §4.3 "Login", §9 parse_DISL_play_token_old).
//
// This package intentionally does not decrypt or decode anything; the
// caller is expected to have already stripped any transport-level
// encoding before Parse sees the token body.
package token

import (
	"strconv"
	"strings"
)

// ChatPermission is the CREATE_FRIENDS_WITH_CHAT / CHAT_CODE_CREATION_RULE
// tri-state the token carries.
type ChatPermission uint8

const (
	ChatNo ChatPermission = iota
	ChatCode
	ChatYes
)

// Info is the decoded form of a play token (spec.md §4.3's "TokenInfo
// record").
type Info struct {
	AccountName          string
	AccountNumber        int64
	UserName             string
	SWID                 string
	Valid                bool
	ExpiresUnix          int64 // 0 = never expires
	AccountNameApproved  bool
	FamilyNumber         int64
	FamilyAdmin          bool
	OpenChatEnabled      bool
	CreateFriendsWithChat ChatPermission
	ChatCodeCreationRule ChatPermission
	WhitelistChat        bool
	Paid                 bool
	GameKey              string

	// ReturnCode mirrors the login-response return code this token
	// should produce: 0 success, 2 malformed/missing-field, 1 expired.
	ReturnCode int
	RespString string
}

var chatPermissionValues = map[string]ChatPermission{
	"NO":     ChatNo,
	"CODE":   ChatCode,
	"PARENT": ChatCode,
	"YES":    ChatYes,
}

// explicitTrue reports whether s is one of the boolean spellings the
// redesigned parser accepts. Unlike the original parser's bare
// `bool(valid)` (true for any non-empty string, including "0" and
// "false"), this requires an actual affirmative spelling (spec.md §9:
// "a port SHOULD require explicit YES/true/1 semantics").
func explicitTrue(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "YES", "TRUE", "1":
		return true
	default:
		return false
	}
}

// Parse decodes raw into an Info. It never panics on malformed input;
// a missing required field yields ReturnCode 2 with the remaining
// fields best-effort populated.
func Parse(raw string) Info {
	vars := make(map[string]string)
	for _, line := range strings.Split(raw, "&") {
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		vars[name] = value
	}

	info := Info{ReturnCode: 0}

	accountName, ok := vars["ACCOUNT_NAME"]
	if !ok || accountName == "" {
		return invalid(info, "missing ACCOUNT_NAME")
	}
	info.AccountName = accountName

	if n, ok := vars["ACCOUNT_NUMBER"]; ok {
		if v, err := strconv.ParseInt(n, 10, 64); err == nil {
			info.AccountNumber = v
		}
	}
	info.UserName = vars["GAME_USERNAME"]
	info.SWID = vars["SWID"]

	validStr, ok := vars["valid"]
	if !ok || validStr == "" {
		return invalid(info, "missing valid")
	}
	info.Valid = explicitTrue(validStr)
	if !info.Valid {
		return invalid(info, "token marked invalid")
	}

	if expires, ok := vars["expires"]; ok && expires != "" {
		v, err := strconv.ParseInt(expires, 10, 64)
		if err != nil || v < 0 {
			info.ReturnCode = 1
			info.RespString = "invalid expire time"
			return info
		}
		info.ExpiresUnix = v
	}

	approval, ok := vars["ACCOUNT_NAME_APPROVAL"]
	if !ok || approval == "" {
		return invalid(info, "missing ACCOUNT_NAME_APPROVAL")
	}
	info.AccountNameApproved = approval == "YES"

	familyNumber, ok := vars["FAMILY_NUMBER"]
	if !ok || familyNumber == "" {
		return invalid(info, "missing FAMILY_NUMBER")
	}
	n, err := strconv.ParseInt(familyNumber, 10, 64)
	if err != nil {
		return invalid(info, "malformed FAMILY_NUMBER")
	}
	info.FamilyNumber = n

	familyAdmin, ok := vars["familyAdmin"]
	if !ok || familyAdmin == "" {
		return invalid(info, "missing familyAdmin")
	}
	info.FamilyAdmin = explicitTrue(familyAdmin) || familyAdmin == "1"

	openChat, ok := vars["OPEN_CHAT_ENABLED"]
	if !ok || openChat == "" {
		return invalid(info, "missing OPEN_CHAT_ENABLED")
	}
	info.OpenChatEnabled = openChat == "YES"

	createFriends, ok := vars["CREATE_FRIENDS_WITH_CHAT"]
	if !ok || createFriends == "" {
		return invalid(info, "missing CREATE_FRIENDS_WITH_CHAT")
	}
	info.CreateFriendsWithChat = chatPermissionValues[createFriends]

	codeRule, ok := vars["CHAT_CODE_CREATION_RULE"]
	if !ok || codeRule == "" {
		return invalid(info, "missing CHAT_CODE_CREATION_RULE")
	}
	info.ChatCodeCreationRule = chatPermissionValues[codeRule]

	info.WhitelistChat = true
	if wl, ok := vars["WL_CHAT_ENABLED"]; ok {
		info.WhitelistChat = wl == "YES"
	}

	if access, ok := vars["TOONTOWN_ACCESS"]; ok {
		info.Paid = access == "FULL"
	}

	gameKey, ok := vars["TOONTOWN_GAME_KEY"]
	if !ok || gameKey == "" {
		return invalid(info, "missing TOONTOWN_GAME_KEY")
	}
	info.GameKey = gameKey

	return info
}

func invalid(info Info, reason string) Info {
	info.ReturnCode = 2
	info.RespString = reason
	return info
}
