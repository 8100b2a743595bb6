package transport

import (
	"bytes"
	"net/url"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/kartikbazzad/edgegateway/internal/gwerrors"
)

// natsBackend implements the "nats://" scheme over real NATS core pub/sub
// (github.com/nats-io/nats.go), giving the transport layer an actual
// multi-process datagram bus. NATS subjects are token-matched
// ("foo.*"/"foo.>"), not byte-prefix matched, so this backend publishes
// every frame under one subject derived from the address's path and
// performs the spec's byte-prefix filtering client-side in the
// subscription's delivery channel - the same approach the inproc backend
// uses, applied here to a real network transport instead of an in-process
// hub.
func init() {
	Register("nats", &natsBackend{})
}

type natsBackend struct{}

// natsEndpoint splits a "nats://host:port/subject" address into the server
// URL NATS expects and the subject all frames for this logical bus travel
// under.
func natsEndpoint(address string) (serverURL, subject string, err error) {
	u, parseErr := url.Parse(address)
	if parseErr != nil {
		return "", "", &gwerrors.TransportError{Kind: gwerrors.TransportConnect, Address: address, Err: parseErr}
	}
	subject = strings.Trim(u.Path, "/")
	if subject == "" {
		subject = "edgegateway.default"
	} else {
		subject = "edgegateway." + strings.ReplaceAll(subject, "/", ".")
	}
	serverURL = "nats://" + u.Host
	return serverURL, subject, nil
}

func (b *natsBackend) Bind(address string) (PubSocket, error) {
	serverURL, subject, err := natsEndpoint(address)
	if err != nil {
		return nil, err
	}
	nc, err := nats.Connect(serverURL)
	if err != nil {
		return nil, &gwerrors.TransportError{Kind: gwerrors.TransportBind, Address: address, Err: err}
	}
	return &natsPub{nc: nc, subject: subject}, nil
}

func (b *natsBackend) Dial(address string) (SubSocket, error) {
	serverURL, subject, err := natsEndpoint(address)
	if err != nil {
		return nil, err
	}
	nc, err := nats.Connect(serverURL)
	if err != nil {
		return nil, &gwerrors.TransportError{Kind: gwerrors.TransportConnect, Address: address, Err: err}
	}
	return &natsSub{nc: nc, subject: subject, raw: make(chan *nats.Msg, inprocChanBuffer)}, nil
}

type natsPub struct {
	nc      *nats.Conn
	subject string
	mu      sync.Mutex
	closed  bool
}

func (p *natsPub) Send(buf []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return &gwerrors.TransportError{Kind: gwerrors.TransportSend, Err: gwerrors.ErrClosed}
	}
	if err := p.nc.Publish(p.subject, buf); err != nil {
		return &gwerrors.TransportError{Kind: gwerrors.TransportSend, Err: err}
	}
	return nil
}

func (p *natsPub) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.nc.Close()
	return nil
}

type natsSub struct {
	nc      *nats.Conn
	subject string
	sub     *nats.Subscription
	raw     chan *nats.Msg
	mu      sync.Mutex
	prefix  []byte
	closed  bool
}

func (s *natsSub) Subscribe(prefix string) error {
	s.mu.Lock()
	s.prefix = []byte(prefix)
	s.mu.Unlock()

	sub, err := s.nc.ChanSubscribe(s.subject, s.raw)
	if err != nil {
		return &gwerrors.TransportError{Kind: gwerrors.TransportSubscribe, Err: err}
	}
	s.sub = sub
	return nil
}

func (s *natsSub) Recv() ([]byte, error) {
	for {
		msg, ok := <-s.raw
		if !ok {
			return nil, &gwerrors.TransportError{Kind: gwerrors.TransportClosed, Err: gwerrors.ErrClosed}
		}

		s.mu.Lock()
		prefix := s.prefix
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil, &gwerrors.TransportError{Kind: gwerrors.TransportClosed, Err: gwerrors.ErrClosed}
		}

		idx := bytes.IndexByte(msg.Data, 0)
		topic := msg.Data
		if idx >= 0 {
			topic = msg.Data[:idx]
		}
		if len(prefix) > 0 && !bytes.HasPrefix(topic, prefix) {
			continue
		}
		return msg.Data, nil
	}
}

func (s *natsSub) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	s.nc.Close()
	close(s.raw)
	return nil
}
