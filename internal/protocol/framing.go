// Package protocol implements the length-prefixed wire framing shared
// by the Message Director and the Client Agent listeners (spec.md
// §4.1 "Wire framing"), plus the data-message/control-message codecs
// and the client-facing message type codes of §6.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderSize is the length of the little-endian uint16 byte-count
// prefix that precedes every datagram (spec.md §4.1).
const HeaderSize = 2

// MaxFrameSize bounds a single datagram's payload to keep a
// misbehaving peer from forcing an unbounded allocation.
const MaxFrameSize = 1 << 16

// WriteFrame writes payload to w preceded by its little-endian uint16
// length prefix (length counts the header itself, matching the MD/CA
// wire convention of "numChannels: ... payload: bytes" sitting behind
// one total length).
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize-HeaderSize {
		return fmt.Errorf("frame too large: %d bytes", len(payload))
	}
	var header [HeaderSize]byte
	binary.LittleEndian.PutUint16(header[:], uint16(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed datagram from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err // EOF propagates as-is so callers can detect a clean disconnect
	}
	n := binary.LittleEndian.Uint16(header[:])
	if int(n) > MaxFrameSize {
		return nil, fmt.Errorf("frame too large: %d bytes", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return payload, nil
}
