package eventlog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/toontownretro/otp-server/internal/protocol"
)

func encodeServerEvent(channel uint32, serverType uint16, event, who, description string) []byte {
	body := protocol.NewWriter(64)
	body.WriteString(event)
	body.WriteString(who)
	body.WriteString(description)
	bodyBytes := body.Bytes()

	w := protocol.NewWriter(headerSize + len(bodyBytes))
	w.WriteUint16(uint16(headerSize + len(bodyBytes)))
	w.WriteUint16(uint16(MessageServerEvent))
	w.WriteUint16(serverType)
	w.WriteUint32(channel)
	w.WriteBytes(bodyBytes)
	return w.Bytes()
}

func TestSinkDecodesSingleDatagramEvent(t *testing.T) {
	var got Event
	s := NewSink(func(ev Event) { got = ev })

	datagram := encodeServerEvent(4003, 1, "avatar-created", "alice", "slot 0")
	s.handleDatagram("127.0.0.1:9999", datagram)

	if got.EventName != "avatar-created" || got.Who != "alice" || got.Description != "slot 0" {
		t.Fatalf("decoded event = %+v", got)
	}
	if got.Channel != 4003 {
		t.Fatalf("channel = %d, want 4003", got.Channel)
	}
}

func TestSinkReassemblesAcrossDatagrams(t *testing.T) {
	var got Event
	s := NewSink(func(ev Event) { got = ev })

	full := encodeServerEvent(1, 2, "server-event", "bob", "a long description")
	split := len(full) / 2

	s.handleDatagram("10.0.0.1:1", full[:split])
	if got.EventName != "" {
		t.Fatalf("event fired before reassembly completed")
	}
	s.handleDatagram("10.0.0.1:1", full[split:])

	if got.EventName != "server-event" || got.Who != "bob" {
		t.Fatalf("reassembled event = %+v", got)
	}
}

func TestWriterFormatsPipeDelimitedLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.Write(Event{Type: MessageStatus, Channel: 7, ServerType: 3, Who: "ss", AvCount: 2, ObjCount: 5}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	if line != "STATUS|7|3|ss|2|5" {
		t.Fatalf("line = %q", line)
	}
}
