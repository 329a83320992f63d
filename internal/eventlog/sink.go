package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// maxDatagram bounds a single UDP read; event-log datagrams are small
// operational messages, never full object state.
const maxDatagram = 65507

// pending accumulates a logical event whose declared length exceeds
// what fit in the datagram that started it (spec.md §6 "possibly
// reassembled across datagrams when length > remainingSize").
// Reassembly is correlated by remote address: the event-log protocol
// carries no session id of its own, so a sender's next datagram is
// assumed to be the continuation of its last incomplete one.
type pending struct {
	header header
	body   []byte
}

// Sink listens for event-log UDP datagrams, reassembles multi-datagram
// events, and hands each complete Event to Handle.
type Sink struct {
	Handle func(Event)

	conn *net.UDPConn

	mu      sync.Mutex
	partial map[string]*pending
}

// NewSink builds a Sink that calls handle for every reassembled event.
func NewSink(handle func(Event)) *Sink {
	return &Sink{Handle: handle, partial: make(map[string]*pending)}
}

// Addr returns the listener's bound address once ListenAndServe has
// started, or nil.
func (s *Sink) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// ListenAndServe binds addr and processes datagrams until ctx is
// cancelled (spec.md §6 "Listen endpoints": "event-log UDP on 4343").
func (s *Sink) ListenAndServe(ctx context.Context, addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	slog.Info("event log listening", "address", conn.LocalAddr())
	buf := make([]byte, maxDatagram)
	for {
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("reading event-log datagram: %w", err)
			}
		}
		s.handleDatagram(remote.String(), buf[:n])
	}
}

func (s *Sink) handleDatagram(remote string, data []byte) {
	s.mu.Lock()
	p, ok := s.partial[remote]
	if ok {
		p.body = append(p.body, data...)
	} else {
		h, err := decodeHeader(data)
		if err != nil {
			s.mu.Unlock()
			slog.Warn("event log: bad header", "remote", remote, "error", err)
			return
		}
		p = &pending{header: h, body: append([]byte(nil), data[headerSize:]...)}
	}

	needed := int(p.header.Length) - headerSize
	if needed < 0 {
		needed = 0
	}
	if len(p.body) < needed {
		s.partial[remote] = p
		s.mu.Unlock()
		return
	}
	delete(s.partial, remote)
	s.mu.Unlock()

	ev, err := decodeBody(p.header, p.body[:needed])
	if err != nil {
		slog.Warn("event log: bad body", "remote", remote, "error", err)
		return
	}
	if s.Handle != nil {
		s.Handle(ev)
	}
}
