// Package integration exercises the cluster's components wired
// together the way cmd/otpserver wires them, over real TCP/UDP
// sockets rather than in-process pipes (spec.md §8's end-to-end
// scenarios), the way the teacher splits tests/integration from
// tests/e2e.
package integration

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/toontownretro/otp-server/internal/clientagent"
	"github.com/toontownretro/otp-server/internal/dbbackend/plaintext"
	"github.com/toontownretro/otp-server/internal/dbserver"
	"github.com/toontownretro/otp-server/internal/dclass"
	"github.com/toontownretro/otp-server/internal/eventlog"
	"github.com/toontownretro/otp-server/internal/protocol"
	"github.com/toontownretro/otp-server/internal/stateserver"
	"github.com/toontownretro/otp-server/internal/token"
	"github.com/toontownretro/otp-server/internal/visgroup"
)

const avatarClassName = "DistributedToon"

const validToken = "ACCOUNT_NAME=alice&ACCOUNT_NUMBER=42&GAME_USERNAME=alice&valid=1&expires=9999999999&ACCOUNT_NAME_APPROVAL=YES&FAMILY_NUMBER=1&familyAdmin=1&OPEN_CHAT_ENABLED=YES&CREATE_FRIENDS_WITH_CHAT=YES&CHAT_CODE_CREATION_RULE=YES&WL_CHAT_ENABLED=YES&TOONTOWN_ACCESS=FULL&TOONTOWN_GAME_KEY=k"

func testRegistry() *dclass.Registry {
	toon := dclass.NewClass(1, avatarClassName, []*dclass.Field{
		{Number: 1, Name: dbserver.FieldName, Kind: dclass.KindAtomic, Flags: dclass.FlagDB | dclass.FlagBroadcast, Default: dclass.Str("")},
		{Number: 2, Name: dbserver.FieldAccountID, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Uint64v(0)},
		{Number: 3, Name: dbserver.FieldPetID, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Uint64v(0)},
		{Number: 4, Name: dbserver.FieldFriendsList, Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.ListOf()},
		{Number: 5, Name: "setDNAString", Kind: dclass.KindAtomic, Flags: dclass.FlagDB | dclass.FlagRequired, Default: dclass.Blob(nil)},
		{Number: 6, Name: "setWishName", Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Str("")},
	})
	account := dclass.NewClass(2, dbserver.ClassAccount, []*dclass.Field{
		{Number: 1, Name: "setAvatarSet", Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.ListOf()},
		{Number: 2, Name: "setCreated", Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Str("")},
		{Number: 3, Name: "setLastLogin", Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Str("")},
		{Number: 4, Name: "setEstateId", Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.Uint64v(0)},
		{Number: 5, Name: "setHouseIdSet", Kind: dclass.KindAtomic, Flags: dclass.FlagDB, Default: dclass.ListOf()},
	})
	return dclass.NewRegistry(toon, account)
}

// buildCluster wires a State Server, Database Server and Client Agent
// together exactly as cmd/otpserver/main.go does, over a temp-directory
// plaintext backend, and starts the Client Agent listening on an
// ephemeral loopback port.
func buildCluster(t *testing.T) (addr string, db *dbserver.DBServer) {
	t.Helper()
	registry := testRegistry()
	backend := plaintext.New(t.TempDir(), ".dbo", registry)

	ss := stateserver.New(registry, nil, nil)
	dbss := dbserver.New(registry, backend, ss)
	ca := clientagent.New(clientagent.Config{
		Registry:    registry,
		StateServer: ss,
		DBServer:    dbss,
		Visgroups:   visgroup.NewTable(nil),
		Names:       token.DefaultNames(),
		AvatarClass: avatarClassName,
	})
	ss.SetBroadcaster(ca)
	ss.SetPersister(dbss)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errCh := make(chan error, 1)
	go func() { errCh <- ca.Run(ctx, "127.0.0.1:0") }()

	require.Eventually(t, func() bool { return ca.Addr() != nil }, 2*time.Second, 10*time.Millisecond)
	return ca.Addr().String(), dbss
}

type wireClient struct {
	t    *testing.T
	conn net.Conn
}

func dial(t *testing.T, addr string) *wireClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wireClient{t: t, conn: conn}
}

func (c *wireClient) send(code uint16, body []byte) {
	c.t.Helper()
	w := protocol.NewWriter(2 + len(body))
	w.WriteUint16(code)
	w.WriteBytes(body)
	require.NoError(c.t, protocol.WriteFrame(c.conn, w.Bytes()))
}

func (c *wireClient) recv() (uint16, []byte) {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	frame, err := protocol.ReadFrame(c.conn)
	require.NoError(c.t, err)
	r := protocol.NewReader(frame)
	code, err := r.ReadUint16()
	require.NoError(c.t, err)
	body, err := r.ReadBytes(r.Remaining())
	require.NoError(c.t, err)
	return code, body
}

func loginFrame(playToken string) []byte {
	w := protocol.NewWriter(64)
	w.WriteString(playToken)
	w.WriteString("v1")
	w.WriteUint32(0)
	w.WriteUint32(0)
	return w.Bytes()
}

func createAvatarFrame(ctxID uint16, dna []byte, slot uint8) []byte {
	w := protocol.NewWriter(16)
	w.WriteUint16(ctxID)
	w.WriteBlob(dna)
	w.WriteUint8(slot)
	return w.Bytes()
}

// TestLoginCreateSelectOverRealTCP drives a full client session across
// a real TCP connection: login, create an avatar, select it, confirming
// the process-boundary wiring cmd/otpserver assembles behaves the same
// as the in-process net.Pipe tests in internal/clientagent.
func TestLoginCreateSelectOverRealTCP(t *testing.T) {
	addr, _ := buildCluster(t)
	c := dial(t, addr)

	c.send(protocol.ClientLogin2, loginFrame(validToken))
	code, body := c.recv()
	require.Equal(t, protocol.ClientLogin2Resp, code)
	r := protocol.NewReader(body)
	rc, err := r.ReadUint8()
	require.NoError(t, err)
	require.Equal(t, uint8(0), rc)

	c.send(protocol.ClientCreateAvatar, createAvatarFrame(1, []byte{1, 2, 3}, 0))
	code, body = c.recv()
	require.Equal(t, protocol.ClientCreateAvatarResp, code)
	r = protocol.NewReader(body)
	_, _ = r.ReadUint16()
	rc2, _ := r.ReadUint8()
	require.Equal(t, uint8(0), rc2)
	avIDRaw, _ := r.ReadUint32()
	require.NotZero(t, avIDRaw)

	w := protocol.NewWriter(4)
	w.WriteUint32(avIDRaw)
	c.send(protocol.ClientSetAvatar, w.Bytes())
	code, body = c.recv()
	require.Equal(t, protocol.ClientGetAvatarDetailsResp, code)
	r = protocol.NewReader(body)
	rc3, _ := r.ReadUint8()
	require.Equal(t, uint8(0), rc3)
}

// TestEventLogRoundTripsOverRealUDP confirms the event-log sink, bound
// to a real UDP socket the way cmd/otpserver binds it, decodes a
// datagram sent from a separate process-like UDP client.
func TestEventLogRoundTripsOverRealUDP(t *testing.T) {
	received := make(chan eventlog.Event, 1)
	sink := eventlog.NewSink(func(ev eventlog.Event) { received <- ev })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go sink.ListenAndServe(ctx, "127.0.0.1:0")
	require.Eventually(t, func() bool { return sink.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	conn, err := net.Dial("udp", sink.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	body := protocol.NewWriter(32)
	body.WriteString("avatar-created")
	body.WriteString("alice")
	body.WriteString("slot 0")
	bodyBytes := body.Bytes()

	const headerSize = 10
	w := protocol.NewWriter(headerSize + len(bodyBytes))
	w.WriteUint16(uint16(headerSize + len(bodyBytes)))
	w.WriteUint16(1) // MessageServerEvent
	w.WriteUint16(7) // serverType
	w.WriteUint32(4003)
	w.WriteBytes(bodyBytes)

	_, err = conn.Write(w.Bytes())
	require.NoError(t, err)

	select {
	case ev := <-received:
		require.Equal(t, "avatar-created", ev.EventName)
		require.Equal(t, "alice", ev.Who)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event-log datagram")
	}
}
