package protocol

// Client wire message codes (spec.md §6). Every frame's first field is
// a uint16 message type; these ids are treated as fixed by spec.md.
const (
	ClientHeartbeat         uint16 = 1
	ClientLogin2            uint16 = 2
	ClientLoginToontown     uint16 = 3
	ClientDisconnect        uint16 = 4
	ClientGetAvatars        uint16 = 5
	ClientCreateAvatar      uint16 = 6
	ClientSetNamePattern    uint16 = 7
	ClientSetWishname       uint16 = 8
	ClientDeleteAvatar      uint16 = 9
	ClientSetAvatar         uint16 = 10
	ClientAddInterest       uint16 = 11
	ClientRemoveInterest    uint16 = 12
	ClientObjectUpdateField uint16 = 13
	ClientObjectLocation    uint16 = 14
	ClientGetFriendList         uint16 = 15
	ClientGetFriendListExtended uint16 = 16
	ClientGetAvatarDetails      uint16 = 17
	ClientGetPetDetails         uint16 = 18
	ClientRemoveFriend          uint16 = 19

	// Server -> client responses.
	ClientLogin2Resp              uint16 = 101
	ClientLoginToontownResp       uint16 = 102
	ClientGetAvatarsResp          uint16 = 103
	ClientCreateAvatarResp        uint16 = 104
	ClientDeleteAvatarResp        uint16 = 105
	ClientGetAvatarDetailsResp    uint16 = 106
	ClientGetPetDetailsResp       uint16 = 107
	ClientDoneInterestResp        uint16 = 108
	ClientCreateObjectRequiredOther uint16 = 109
	ClientObjectDisable           uint16 = 110
	ClientGoGetLost               uint16 = 111
	ClientFriendOnline             uint16 = 112
	ClientFriendOffline            uint16 = 113
	ClientFriendListAnswer         uint16 = 114
)

// Internal bus message codes exchanged between MD/SS/CA/DBSS
// (spec.md §4.2, §4.4, §6 "Internal bus codes").
const (
	StateServerObjectGenerateWithRequiredOther uint16 = 1001
	StateServerObjectDeleteRAM                 uint16 = 1002
	StateServerObjectSetZone                   uint16 = 1003
	StateServerObjectUpdateField               uint16 = 1004

	ClientSetFieldSendable uint16 = 1005 // internal-only: installs a clsendOverride

	DBServerGetStoredValues    uint16 = 2001
	DBServerGetStoredValuesResp uint16 = 2002
	DBServerSetStoredValues    uint16 = 2003
	DBServerCreateStoredObject uint16 = 2004
	DBServerCreateStoredObjectResp uint16 = 2005
	DBServerGetEstate          uint16 = 2006
	DBServerGetEstateResp      uint16 = 2007
	DBServerMakeFriends        uint16 = 2008
	DBServerMakeFriendsResp    uint16 = 2009
	DBServerRequestSecret      uint16 = 2010
	DBServerRequestSecretResp  uint16 = 2011
	DBServerSubmitSecret       uint16 = 2012
	DBServerSubmitSecretResp   uint16 = 2013
)

// Client disconnect reason codes (spec.md §4.3, §7).
const (
	DisconnectMalformed        uint16 = 200
	DisconnectUnauthorized     uint16 = 220
	DisconnectAvatarDeleted    uint16 = 153
	DisconnectTokenInvalid     uint16 = 103
	DisconnectTokenExpired     uint16 = 105
	DisconnectTokenBanned      uint16 = 106
	DisconnectTokenNoAccess    uint16 = 122
	DisconnectTokenWrongServer uint16 = 123
)
