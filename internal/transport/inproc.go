package transport

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/kartikbazzad/edgegateway/internal/gwerrors"
)

// inprocBackend is a process-local, channel-backed transport: a named hub
// per address, one buffered channel per connected subscriber,
// fire-and-forget publish.
type inprocBackend struct {
	mu   sync.Mutex
	hubs map[string]*inprocHub
}

type inprocHub struct {
	mu   sync.Mutex
	subs map[*inprocSub]struct{}
}

const inprocChanBuffer = 64

func init() {
	Register("inproc", &inprocBackend{hubs: make(map[string]*inprocHub)})
}

func (b *inprocBackend) hub(address string) *inprocHub {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.hubs[address]
	if !ok {
		h = &inprocHub{subs: make(map[*inprocSub]struct{})}
		b.hubs[address] = h
	}
	return h
}

func (b *inprocBackend) Bind(address string) (PubSocket, error) {
	return &inprocPub{hub: b.hub(address)}, nil
}

func (b *inprocBackend) Dial(address string) (SubSocket, error) {
	sub := &inprocSub{
		hub: b.hub(address),
		ch:  make(chan []byte, inprocChanBuffer),
	}
	sub.hub.mu.Lock()
	sub.hub.subs[sub] = struct{}{}
	sub.hub.mu.Unlock()
	return sub, nil
}

type inprocPub struct {
	hub    *inprocHub
	mu     sync.Mutex
	closed bool
}

func (p *inprocPub) Send(buf []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return &gwerrors.TransportError{Kind: gwerrors.TransportSend, Err: gwerrors.ErrClosed}
	}

	p.hub.mu.Lock()
	subs := make([]*inprocSub, 0, len(p.hub.subs))
	for s := range p.hub.subs {
		subs = append(subs, s)
	}
	p.hub.mu.Unlock()

	for _, s := range subs {
		s.deliver(buf)
	}
	return nil
}

func (p *inprocPub) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

type inprocSub struct {
	hub    *inprocHub
	ch     chan []byte
	mu     sync.Mutex
	prefix []byte
	closed bool
}

func (s *inprocSub) Subscribe(prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefix = []byte(prefix)
	return nil
}

// deliver applies the client-side prefix filter and enqueues a copy of buf.
// Non-blocking: a full subscriber channel drops the frame, matching the
// spec's "best-effort" delivery guarantee under overload.
func (s *inprocSub) deliver(buf []byte) {
	s.mu.Lock()
	prefix := s.prefix
	s.mu.Unlock()

	idx := bytes.IndexByte(buf, 0)
	topic := buf
	if idx >= 0 {
		topic = buf[:idx]
	}
	if len(prefix) > 0 && !bytes.HasPrefix(topic, prefix) {
		return
	}

	cp := make([]byte, len(buf))
	copy(cp, buf)
	select {
	case s.ch <- cp:
	default:
	}
}

func (s *inprocSub) Recv() ([]byte, error) {
	buf, ok := <-s.ch
	if !ok {
		return nil, &gwerrors.TransportError{Kind: gwerrors.TransportClosed, Err: fmt.Errorf("inproc socket closed")}
	}
	return buf, nil
}

func (s *inprocSub) Close() error {
	s.hub.mu.Lock()
	delete(s.hub.subs, s)
	s.hub.mu.Unlock()

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
	return nil
}
