package md

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/toontownretro/otp-server/internal/protocol"
)

// TCPPeer is an external MD peer (e.g. an AI server) connected over a
// framed TCP socket.
type TCPPeer struct {
	conn net.Conn
	id   string

	writeMu sync.Mutex
}

// NewTCPPeer wraps an accepted connection.
func NewTCPPeer(conn net.Conn) *TCPPeer {
	return &TCPPeer{conn: conn, id: conn.RemoteAddr().String()}
}

func (p *TCPPeer) ID() string { return p.id }

// Deliver writes msg as one length-prefixed frame.
func (p *TCPPeer) Deliver(msg protocol.DataMessage) error {
	payload, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encoding data message: %w", err)
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return protocol.WriteFrame(p.conn, payload)
}

// Serve reads frames from the peer until the connection closes or ctx
// is done, dispatching control messages to bus and data messages via
// bus.Publish. It implements the MD side of spec.md §4.1.
func Serve(bus *Bus, conn net.Conn) {
	peer := NewTCPPeer(conn)
	defer func() {
		bus.HandleDisconnect(peer)
		conn.Close()
	}()

	for {
		frame, err := protocol.ReadFrame(conn)
		if err != nil {
			slog.Debug("md: peer disconnected", "peer", peer.ID(), "error", err)
			return
		}
		msg, err := protocol.DecodeDataMessage(frame)
		if err != nil {
			slog.Warn("md: malformed frame", "peer", peer.ID(), "error", err)
			continue
		}

		if msg.IsControl() {
			handleControl(bus, peer, msg)
			continue
		}
		bus.Publish(peer, msg)
	}
}

func handleControl(bus *Bus, peer Peer, msg protocol.DataMessage) {
	switch msg.Code {
	case protocol.ControlSetChannel:
		ch, err := protocol.DecodeControlChannelArgs(msg.Payload)
		if err != nil {
			slog.Warn("md: bad CONTROL_SET_CHANNEL", "error", err)
			return
		}
		bus.Subscribe(peer, ch)
	case protocol.ControlRemoveChannel:
		ch, err := protocol.DecodeControlChannelArgs(msg.Payload)
		if err != nil {
			slog.Warn("md: bad CONTROL_REMOVE_CHANNEL", "error", err)
			return
		}
		bus.Unsubscribe(peer, ch)
	case protocol.ControlAddPostRemove:
		queued, err := protocol.DecodeControlAddPostRemove(msg.Payload)
		if err != nil {
			slog.Warn("md: bad CONTROL_ADD_POST_REMOVE", "error", err)
			return
		}
		bus.AddPostRemove(peer, queued)
	case protocol.ControlClearPostRemove:
		bus.ClearPostRemove(peer)
	default:
		slog.Warn("md: unknown control code", "code", msg.Code)
	}
}
