package protocol

import "fmt"

// ControlChannel is the reserved channel address a peer targets to
// speak to the Message Director itself rather than to another peer
// (spec.md §4.1 "Control messages accepted from peers").
const ControlChannel uint64 = 1

// Control message codes.
const (
	ControlSetChannel      uint16 = 1
	ControlRemoveChannel   uint16 = 2
	ControlAddPostRemove   uint16 = 3
	ControlClearPostRemove uint16 = 4
)

// DataMessage is the envelope every non-control datagram the MD routes
// is wrapped in (spec.md §4.1 "Data message format").
type DataMessage struct {
	Channels []uint64
	Sender   uint64
	Code     uint16
	Payload  []byte
}

// Encode serializes a DataMessage to the wire layout:
// numChannels:uint8, channels:uint64[], sender:uint64, code:uint16, payload:bytes.
func (m DataMessage) Encode() ([]byte, error) {
	if len(m.Channels) > 0xff {
		return nil, fmt.Errorf("too many channels: %d", len(m.Channels))
	}
	w := NewWriter(1 + 8*len(m.Channels) + 8 + 2 + len(m.Payload))
	w.WriteUint8(uint8(len(m.Channels)))
	for _, c := range m.Channels {
		w.WriteUint64(c)
	}
	w.WriteUint64(m.Sender)
	w.WriteUint16(m.Code)
	w.WriteBytes(m.Payload)
	return w.Bytes(), nil
}

// DecodeDataMessage parses the wire layout written by Encode.
func DecodeDataMessage(data []byte) (DataMessage, error) {
	r := NewReader(data)
	n, err := r.ReadUint8()
	if err != nil {
		return DataMessage{}, fmt.Errorf("reading channel count: %w", err)
	}
	channels := make([]uint64, n)
	for i := range channels {
		channels[i], err = r.ReadUint64()
		if err != nil {
			return DataMessage{}, fmt.Errorf("reading channel %d: %w", i, err)
		}
	}
	sender, err := r.ReadUint64()
	if err != nil {
		return DataMessage{}, fmt.Errorf("reading sender: %w", err)
	}
	code, err := r.ReadUint16()
	if err != nil {
		return DataMessage{}, fmt.Errorf("reading code: %w", err)
	}
	payload, err := r.ReadBytes(r.Remaining())
	if err != nil {
		return DataMessage{}, fmt.Errorf("reading payload: %w", err)
	}
	return DataMessage{Channels: channels, Sender: sender, Code: code, Payload: payload}, nil
}

// IsControl reports whether a DataMessage is addressed to the MD's own
// ControlChannel rather than routed to subscribers.
func (m DataMessage) IsControl() bool {
	return len(m.Channels) == 1 && m.Channels[0] == ControlChannel
}

// ControlSetChannelArgs / ControlAddPostRemoveArgs are the payload
// shapes for each control code.

// EncodeControlSetChannel builds the payload for CONTROL_SET_CHANNEL /
// CONTROL_REMOVE_CHANNEL: a single channel id.
func EncodeControlChannelArgs(channel uint64) []byte {
	w := NewWriter(8)
	w.WriteUint64(channel)
	return w.Bytes()
}

func DecodeControlChannelArgs(payload []byte) (uint64, error) {
	r := NewReader(payload)
	return r.ReadUint64()
}

// EncodeControlAddPostRemove wraps the message to queue-on-disconnect
// as the payload for CONTROL_ADD_POST_REMOVE.
func EncodeControlAddPostRemove(msg DataMessage) ([]byte, error) {
	return msg.Encode()
}

func DecodeControlAddPostRemove(payload []byte) (DataMessage, error) {
	return DecodeDataMessage(payload)
}
