package broker

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/kartikbazzad/edgegateway/internal/gwerrors"
	"github.com/kartikbazzad/edgegateway/internal/message"
	"github.com/kartikbazzad/edgegateway/internal/obslog"
	"github.com/kartikbazzad/edgegateway/internal/transport"
)

const maxTopicLen = 4096

// OnMessageFunc is the delivery callback a subscriber installs. It takes
// sole ownership of msg and must call msg.Destroy() (or clone it first).
// The broker's contract ends at "we deliver; you handle" - a callback that
// panics is the caller's bug and the worker does not swallow it.
type OnMessageFunc func(msg *message.Message, context any)

// PublisherHandle holds one bound transport pub endpoint.
type PublisherHandle struct {
	address string
	sock    transport.PubSocket
	log     *obslog.Logger
}

// PublisherCreate binds a publisher endpoint at address.
func PublisherCreate(address string, log *obslog.Logger) (*PublisherHandle, error) {
	if address == "" {
		return nil, fmt.Errorf("broker publisher create: %w", gwerrors.ErrInvalidArg)
	}
	sock, err := transport.Bind(address)
	if err != nil {
		return nil, fmt.Errorf("broker publisher create %s: %w", address, err)
	}
	if log == nil {
		log = obslog.Default()
	}
	return &PublisherHandle{address: address, sock: sock, log: log.With("address", address)}, nil
}

// Publish builds the wire frame topic || 0x00 || message_bytes and hands it
// to the transport. hintSize, if nonzero, must equal the exact serialized
// message size; otherwise Publish computes it via a sizing call to
// Message.ToBytes(nil).
//
// On success the frame has been accepted by the transport; delivery to any
// given subscriber is best-effort, with no broker-level acknowledgement.
func (p *PublisherHandle) Publish(topic string, msg *message.Message, hintSize int) error {
	if p == nil || msg == nil || topic == "" {
		return fmt.Errorf("broker publish: %w", gwerrors.ErrInvalidArg)
	}
	if len(topic) > maxTopicLen {
		return fmt.Errorf("broker publish: topic exceeds %d bytes: %w", maxTopicLen, gwerrors.ErrInvalidArg)
	}
	if !utf8.ValidString(topic) {
		return fmt.Errorf("broker publish: topic is not valid UTF-8: %w", gwerrors.ErrInvalidArg)
	}
	if strings.IndexByte(topic, 0) >= 0 {
		return fmt.Errorf("broker publish: topic contains NUL: %w", gwerrors.ErrInvalidArg)
	}

	size := hintSize
	if size == 0 {
		var err error
		size, err = msg.ToBytes(nil)
		if err != nil {
			return fmt.Errorf("broker publish: size message: %w", gwerrors.ErrSerialize)
		}
	}

	frame := make([]byte, len(topic)+1+size)
	copy(frame, topic)
	// frame[len(topic)] is the NUL terminator; left at its zero value.
	if _, err := msg.ToBytes(frame[len(topic)+1:]); err != nil {
		return fmt.Errorf("broker publish: serialize message: %w: %v", gwerrors.ErrSerialize, err)
	}

	if err := p.sock.Send(frame); err != nil {
		return fmt.Errorf("broker publish: %w", err)
	}
	messagesPublished.Inc()
	return nil
}

// Destroy closes the publisher's transport endpoint.
func (p *PublisherHandle) Destroy() error {
	return p.sock.Close()
}

// State is the SubscriberHandle's lifecycle stage.
type State int

const (
	StateConnected State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SubscriberHandle holds one connected transport sub endpoint, its
// subscription string, its receive worker, and the mutex-guarded
// {state, stop, callback, context} the worker and Unsubscribe/Destroy
// coordinate over.
type SubscriberHandle struct {
	address string
	sock    transport.SubSocket
	log     *obslog.Logger

	mu       sync.Mutex
	state    State
	stopReq  bool
	topic    string
	callback OnMessageFunc
	context  any

	wg sync.WaitGroup
}

// SubscriberCreate opens a sub endpoint connected to address. The returned
// handle starts in StateConnected; no worker runs until Subscribe.
func SubscriberCreate(address string, log *obslog.Logger) (*SubscriberHandle, error) {
	if address == "" {
		return nil, fmt.Errorf("broker subscriber create: %w", gwerrors.ErrInvalidArg)
	}
	sock, err := transport.Dial(address)
	if err != nil {
		return nil, fmt.Errorf("broker subscriber create %s: %w", address, err)
	}
	if log == nil {
		log = obslog.Default()
	}
	return &SubscriberHandle{
		address: address,
		sock:    sock,
		log:     log.With("address", address),
		state:   StateConnected,
	}, nil
}

// State returns the subscriber's current lifecycle stage.
func (s *SubscriberHandle) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe installs topic as the transport's byte-prefix filter and spawns
// exactly one receive worker, transitioning Connected -> Running. On
// failure the handle remains Connected with no worker leaked.
func (s *SubscriberHandle) Subscribe(topic string, onMessage OnMessageFunc, context any) error {
	if onMessage == nil {
		return fmt.Errorf("broker subscribe: %w", gwerrors.ErrInvalidArg)
	}

	s.mu.Lock()
	if s.state != StateConnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("broker subscribe: handle is %s, not connected: %w", state, gwerrors.ErrInvalidArg)
	}
	s.mu.Unlock()

	if err := s.sock.Subscribe(topic); err != nil {
		return fmt.Errorf("broker subscribe %s: %w", topic, err)
	}

	s.mu.Lock()
	s.topic = topic
	s.callback = onMessage
	s.context = context
	s.state = StateRunning
	s.mu.Unlock()

	s.wg.Add(1)
	activeWorkers.Inc()
	go s.worker()
	return nil
}

// Unsubscribe transitions Running -> Stopping -> Stopped: it flags the
// worker to stop, closes the socket to unblock any in-flight Recv, and
// joins the worker thread before returning. It is a no-op if the handle is
// not currently Running. After Unsubscribe returns, the callback is
// guaranteed not to be invoked again.
func (s *SubscriberHandle) Unsubscribe() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	s.stopReq = true
	s.mu.Unlock()

	_ = s.sock.Close()
	s.wg.Wait()
	return nil
}

// Destroy tears the handle down unconditionally: Unsubscribe if running,
// then closes the socket (idempotent if Unsubscribe already did).
func (s *SubscriberHandle) Destroy() error {
	_ = s.Unsubscribe()
	return s.sock.Close()
}

func (s *SubscriberHandle) worker() {
	defer func() {
		activeWorkers.Dec()
		s.wg.Done()
	}()

	for {
		s.mu.Lock()
		stop := s.stopReq
		callback := s.callback
		ctx := s.context
		s.mu.Unlock()

		if stop {
			_ = s.sock.Close()
			s.mu.Lock()
			s.state = StateStopped
			s.mu.Unlock()
			return
		}

		frame, err := s.sock.Recv()
		if err != nil {
			if gwerrors.IsClosed(err) {
				s.mu.Lock()
				s.state = StateStopped
				s.mu.Unlock()
				return
			}
			s.log.Warn("transient receive error, retrying", "error", err)
			continue
		}

		idx := bytes.IndexByte(frame, 0)
		if idx < 0 {
			s.log.Warn("dropping frame with no topic terminator")
			malformedDropped.Inc()
			continue
		}
		payload := frame[idx+1:]

		msg, err := message.FromBytes(payload)
		if err != nil {
			s.log.Warn("dropping malformed message", "error", err)
			malformedDropped.Inc()
			continue
		}

		messagesDelivered.Inc()
		callback(msg, ctx)
	}
}
