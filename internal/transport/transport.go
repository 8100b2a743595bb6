// Package transport is the thin, replaceable datagram pub/sub abstraction
// the broker is built on. The broker never parses an address; it hands the
// opaque URL to Bind/Dial and lets the scheme pick a backend.
package transport

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kartikbazzad/edgegateway/internal/gwerrors"
)

// PubSocket is a bound publisher endpoint. Send transfers ownership of buf
// to the transport; the caller must not touch buf again.
type PubSocket interface {
	Send(buf []byte) error
	Close() error
}

// SubSocket is a connected subscriber endpoint.
type SubSocket interface {
	// Subscribe installs a byte-prefix filter; empty prefix means "all".
	// Implementations that cannot filter server-side filter client-side
	// instead (inproc when a frame is delivered to the subscriber's queue,
	// nats in Recv), which is observably identical to the caller.
	Subscribe(prefix string) error

	// Recv blocks until a datagram arrives or the socket is closed, in
	// which case it returns a *gwerrors.TransportError with
	// Kind == TransportClosed.
	Recv() ([]byte, error)

	Close() error
}

// Backend is a named transport implementation registered against one or
// more URL schemes.
type Backend interface {
	Bind(address string) (PubSocket, error)
	Dial(address string) (SubSocket, error)
}

var registry = map[string]Backend{}

// Register installs a Backend under a URL scheme (e.g. "inproc", "unix",
// "nats"). Called from each backend's init().
func Register(scheme string, b Backend) {
	registry[scheme] = b
}

func schemeOf(address string) (string, error) {
	u, err := url.Parse(address)
	if err != nil || u.Scheme == "" {
		if idx := strings.Index(address, "://"); idx >= 0 {
			return address[:idx], nil
		}
		return "", fmt.Errorf("%w: address %q has no scheme", gwerrors.ErrInvalidArg, address)
	}
	return u.Scheme, nil
}

// Bind resolves address's scheme to a registered Backend and binds a
// publisher endpoint.
func Bind(address string) (PubSocket, error) {
	scheme, err := schemeOf(address)
	if err != nil {
		return nil, err
	}
	b, ok := registry[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: no transport registered for scheme %q", gwerrors.ErrInvalidArg, scheme)
	}
	return b.Bind(address)
}

// Dial resolves address's scheme to a registered Backend and opens a
// subscriber endpoint.
func Dial(address string) (SubSocket, error) {
	scheme, err := schemeOf(address)
	if err != nil {
		return nil, err
	}
	b, ok := registry[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: no transport registered for scheme %q", gwerrors.ErrInvalidArg, scheme)
	}
	return b.Dial(address)
}
