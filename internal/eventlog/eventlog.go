// Package eventlog implements the event logger: a UDP datagram sink for
// operational events any cluster process may emit (spec.md §1 "the
// event logger: a datagram sink for operational events", §6 "Event-log
// UDP protocol").
package eventlog

import (
	"fmt"

	"github.com/toontownretro/otp-server/internal/protocol"
)

// MessageType is the event-log datagram's second header field.
type MessageType uint16

const (
	MessageServerEvent MessageType = 1
	MessageStatus      MessageType = 2
	MessageStatusV2    MessageType = 3
)

// headerSize is the fixed prefix every datagram carries: length,
// messageType, serverType, channel (spec.md §6).
const headerSize = 2 + 2 + 2 + 4

// header is the fixed portion of every event-log datagram. channel is
// deliberately uint32 here, narrower than the cluster-wide
// model.Channel(uint64) used on the MD bus, matching the legacy
// event-log wire's own field width.
type header struct {
	Length      uint16
	MessageType MessageType
	ServerType  uint16
	Channel     uint32
}

func decodeHeader(data []byte) (header, error) {
	r := protocol.NewReader(data)
	length, err := r.ReadUint16()
	if err != nil {
		return header{}, err
	}
	msgType, err := r.ReadUint16()
	if err != nil {
		return header{}, err
	}
	serverType, err := r.ReadUint16()
	if err != nil {
		return header{}, err
	}
	channel, err := r.ReadUint32()
	if err != nil {
		return header{}, err
	}
	return header{Length: length, MessageType: MessageType(msgType), ServerType: serverType, Channel: channel}, nil
}

// Event is one fully reassembled, decoded event-log datagram.
type Event struct {
	Type       MessageType
	ServerType uint16
	Channel    uint32

	// MessageServerEvent
	EventName   string
	Who         string
	Description string

	// MessageStatus / MessageStatusV2
	AvCount     uint32
	ObjCount    uint32
	PingChannel uint64 // MessageStatusV2 only
}

func decodeBody(h header, body []byte) (Event, error) {
	ev := Event{Type: h.MessageType, ServerType: h.ServerType, Channel: h.Channel}
	r := protocol.NewReader(body)

	switch h.MessageType {
	case MessageServerEvent:
		var err error
		if ev.EventName, err = r.ReadString(); err != nil {
			return Event{}, fmt.Errorf("event name: %w", err)
		}
		if ev.Who, err = r.ReadString(); err != nil {
			return Event{}, fmt.Errorf("who: %w", err)
		}
		if ev.Description, err = r.ReadString(); err != nil {
			return Event{}, fmt.Errorf("description: %w", err)
		}
	case MessageStatus, MessageStatusV2:
		var err error
		if ev.Who, err = r.ReadString(); err != nil {
			return Event{}, fmt.Errorf("who: %w", err)
		}
		if ev.AvCount, err = r.ReadUint32(); err != nil {
			return Event{}, fmt.Errorf("avCount: %w", err)
		}
		if ev.ObjCount, err = r.ReadUint32(); err != nil {
			return Event{}, fmt.Errorf("objCount: %w", err)
		}
		if h.MessageType == MessageStatusV2 {
			if ev.PingChannel, err = r.ReadUint64(); err != nil {
				return Event{}, fmt.Errorf("pingChannel: %w", err)
			}
		}
	default:
		return Event{}, fmt.Errorf("unknown event-log message type %d", h.MessageType)
	}
	return ev, nil
}
