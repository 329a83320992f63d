// Package md implements the Message Director: a star-topology
// publish/subscribe bus over framed TCP (spec.md §4.1). Peers —
// whether a real TCP connection from an external process or an
// in-process component sharing this binary — subscribe to numeric
// channels; the Bus fans out every inbound data message to every other
// subscriber of each addressed channel.
package md

import (
	"log/slog"
	"sync"

	"github.com/toontownretro/otp-server/internal/protocol"
)

// Peer is anything the Message Director can route to: a TCP
// connection to an external process, or an in-process component
// (State Server, Client Agent, Database Server) colocated in the same
// binary. Both satisfy the same interface so routing code never knows
// the difference (spec.md §4.1's "in-process dispatcher" is simply a
// Peer that never touches a socket).
type Peer interface {
	ID() string
	Deliver(msg protocol.DataMessage) error
}

// Bus owns the channel subscription table and routes data messages
// between peers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]map[string]Peer // channel -> peerID -> Peer
	postRemove  map[string][]protocol.DataMessage
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[uint64]map[string]Peer),
		postRemove:  make(map[string][]protocol.DataMessage),
	}
}

// Subscribe adds peer as a listener on channel (CONTROL_SET_CHANNEL).
func (b *Bus) Subscribe(peer Peer, channel uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subscribers[channel]
	if !ok {
		set = make(map[string]Peer)
		b.subscribers[channel] = set
	}
	set[peer.ID()] = peer
}

// Unsubscribe removes peer from channel (CONTROL_REMOVE_CHANNEL).
func (b *Bus) Unsubscribe(peer Peer, channel uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subscribers[channel]; ok {
		delete(set, peer.ID())
		if len(set) == 0 {
			delete(b.subscribers, channel)
		}
	}
}

// AddPostRemove queues msg to be dispatched, as if peer had sent it,
// when peer disconnects (CONTROL_ADD_POST_REMOVE).
func (b *Bus) AddPostRemove(peer Peer, msg protocol.DataMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.postRemove[peer.ID()] = append(b.postRemove[peer.ID()], msg)
}

// ClearPostRemove drops peer's queued post-remove messages
// (CONTROL_CLEAR_POST_REMOVE).
func (b *Bus) ClearPostRemove(peer Peer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.postRemove, peer.ID())
}

// Publish routes msg to every subscriber of every addressed channel
// except from, exactly once per distinct subscriber. from is the peer
// that originated msg on this connection and is always excluded, even
// if it also subscribes to one of the addressed channels (spec.md
// §4.1 "never the sender"). Within a single call the fan-out is
// sequential so that a connection's messages are delivered to each
// destination in send order (spec.md §4.1's ordering guarantee),
// relying on Publish calls themselves being serialized per source
// connection by the caller.
func (b *Bus) Publish(from Peer, msg protocol.DataMessage) {
	b.mu.RLock()
	// Gather the unique set of destination peers across all channels
	// while holding the lock, then release it before delivering so a
	// slow peer can't stall subscription changes.
	delivered := make(map[string]Peer)
	for _, ch := range msg.Channels {
		for id, p := range b.subscribers[ch] {
			if from != nil && id == from.ID() {
				continue
			}
			delivered[id] = p
		}
	}
	b.mu.RUnlock()

	for _, p := range delivered {
		if err := p.Deliver(msg); err != nil {
			slog.Warn("md: delivery failed", "peer", p.ID(), "error", err)
		}
	}
}

// HandleDisconnect flushes peer's post-remove queue, dispatching each
// queued message as if peer had sent it, then releases its
// subscriptions (spec.md §4.1 "Disconnection").
func (b *Bus) HandleDisconnect(peer Peer) {
	b.mu.Lock()
	queued := b.postRemove[peer.ID()]
	delete(b.postRemove, peer.ID())
	for ch, set := range b.subscribers {
		delete(set, peer.ID())
		if len(set) == 0 {
			delete(b.subscribers, ch)
		}
	}
	b.mu.Unlock()

	for _, msg := range queued {
		b.Publish(peer, msg)
	}
}
