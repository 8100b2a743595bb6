package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/kartikbazzad/edgegateway/internal/gwerrors"
)

// unixBackend implements the "unix://" scheme over a length-prefixed
// framing on a net.Conn stream: the publisher's Bind starts a listener that
// accepts connecting subscribers, and every Dial is one subscriber
// connecting in. Frames are one-way datagrams, not request/response pairs.
const frameLenSize = 4

func init() {
	Register("unix", &unixBackend{hubs: make(map[string]*unixHub)})
}

type unixBackend struct {
	mu   sync.Mutex
	hubs map[string]*unixHub
}

func pathFromAddress(address string) string {
	return strings.TrimPrefix(address, "unix://")
}

type unixHub struct {
	mu        sync.Mutex
	listener  net.Listener
	conns     map[net.Conn][]byte // conn -> subscribed prefix
	closeOnce sync.Once
}

func (b *unixBackend) Bind(address string) (PubSocket, error) {
	path := pathFromAddress(address)
	_ = os.RemoveAll(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, &gwerrors.TransportError{Kind: gwerrors.TransportBind, Address: address, Err: err}
	}

	hub := &unixHub{listener: ln, conns: make(map[net.Conn]([]byte))}
	b.mu.Lock()
	b.hubs[address] = hub
	b.mu.Unlock()

	go hub.acceptLoop()
	return &unixPub{hub: hub}, nil
}

func (b *unixBackend) Dial(address string) (SubSocket, error) {
	path := pathFromAddress(address)
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, &gwerrors.TransportError{Kind: gwerrors.TransportConnect, Address: address, Err: err}
	}
	return &unixSub{conn: conn}, nil
}

func (h *unixHub) acceptLoop() {
	for {
		conn, err := h.listener.Accept()
		if err != nil {
			return
		}
		prefix, err := readFrame(conn)
		if err != nil {
			conn.Close()
			continue
		}
		h.mu.Lock()
		h.conns[conn] = prefix
		h.mu.Unlock()

		go h.watchDisconnect(conn)
	}
}

// watchDisconnect blocks on a one-byte read to notice when the
// subscriber's connection closes, then removes it from the broadcast set.
// Subscribers never write again after registering their prefix.
func (h *unixHub) watchDisconnect(conn net.Conn) {
	buf := make([]byte, 1)
	_, _ = conn.Read(buf)
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
}

type unixPub struct {
	hub    *unixHub
	mu     sync.Mutex
	closed bool
}

func (p *unixPub) Send(buf []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return &gwerrors.TransportError{Kind: gwerrors.TransportSend, Err: gwerrors.ErrClosed}
	}

	idx := bytes.IndexByte(buf, 0)
	topic := buf
	if idx >= 0 {
		topic = buf[:idx]
	}

	p.hub.mu.Lock()
	targets := make([]net.Conn, 0, len(p.hub.conns))
	for conn, prefix := range p.hub.conns {
		if len(prefix) == 0 || bytes.HasPrefix(topic, prefix) {
			targets = append(targets, conn)
		}
	}
	p.hub.mu.Unlock()

	for _, conn := range targets {
		if err := writeFrame(conn, buf); err != nil {
			p.hub.mu.Lock()
			delete(p.hub.conns, conn)
			p.hub.mu.Unlock()
		}
	}
	return nil
}

func (p *unixPub) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.hub.closeOnce.Do(func() {
		p.hub.listener.Close()
		p.hub.mu.Lock()
		for conn := range p.hub.conns {
			conn.Close()
		}
		p.hub.mu.Unlock()
	})
	return nil
}

type unixSub struct {
	conn net.Conn
}

func (s *unixSub) Subscribe(prefix string) error {
	if err := writeFrame(s.conn, []byte(prefix)); err != nil {
		return &gwerrors.TransportError{Kind: gwerrors.TransportSubscribe, Err: err}
	}
	return nil
}

func (s *unixSub) Recv() ([]byte, error) {
	buf, err := readFrame(s.conn)
	if err != nil {
		if err == io.EOF || err == net.ErrClosed || strings.Contains(err.Error(), "use of closed network connection") {
			return nil, &gwerrors.TransportError{Kind: gwerrors.TransportClosed, Err: err}
		}
		return nil, &gwerrors.TransportError{Kind: gwerrors.TransportRecv, Err: err}
	}
	return buf, nil
}

func (s *unixSub) Close() error {
	return s.conn.Close()
}

func readFrame(r io.Reader) ([]byte, error) {
	lenBuf := make([]byte, frameLenSize)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf)
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func writeFrame(w io.Writer, data []byte) error {
	lenBuf := make([]byte, frameLenSize)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))
	if _, err := w.Write(lenBuf); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}
