package md

import "github.com/toontownretro/otp-server/internal/protocol"

// LocalPeer is an in-process MD peer: the State Server, Database
// Server, and Client Agent all run colocated in the same binary and
// talk to the Bus directly through this adapter instead of a real
// socket (spec.md §4.1's "in-process dispatcher"). An external AI
// server would instead connect as a TCPPeer.
type LocalPeer struct {
	id      string
	receive func(protocol.DataMessage)
}

// NewLocalPeer builds a LocalPeer identified by id, invoking onReceive
// for every message the bus fans out to it.
func NewLocalPeer(id string, onReceive func(protocol.DataMessage)) *LocalPeer {
	return &LocalPeer{id: id, receive: onReceive}
}

func (p *LocalPeer) ID() string { return p.id }

func (p *LocalPeer) Deliver(msg protocol.DataMessage) error {
	p.receive(msg)
	return nil
}
