// Package gwerrors defines the error taxonomy shared by every component of
// the gateway runtime: message, transport, broker, loader, and gateway.
// Nothing panics across a component boundary; every fallible call returns
// one of these, wrapped with context via fmt.Errorf("...: %w", err).
package gwerrors

import "errors"

// Sentinel errors. Callers compare with errors.Is.
var (
	// ErrInvalidArg is a contract violation by the caller: nil where
	// non-nil is required, an oversized topic, an empty module path.
	ErrInvalidArg = errors.New("edgegateway: invalid argument")

	// ErrOutOfMemory surfaces an allocation failure. Go rarely returns
	// these explicitly; it is kept for parity with the spec's taxonomy,
	// and no code path in this repository returns it.
	ErrOutOfMemory = errors.New("edgegateway: out of memory")

	// ErrSerialize is an encode failure on the publish path.
	ErrSerialize = errors.New("edgegateway: serialize failed")

	// ErrMalformedMessage is a decode failure on the subscribe path.
	ErrMalformedMessage = errors.New("edgegateway: malformed message")

	// ErrBufferTooSmall is returned by Message.ToBytes when the caller's
	// buffer is smaller than the required size.
	ErrBufferTooSmall = errors.New("edgegateway: buffer too small")

	// ErrLoadFailed means a shared library could not be opened.
	ErrLoadFailed = errors.New("edgegateway: module load failed")

	// ErrSymbolMissing means the well-known entry point symbol was not
	// found in an opened library.
	ErrSymbolMissing = errors.New("edgegateway: module entry point missing")

	// ErrModuleCreateFailed means a module's Create returned a nil
	// handle or an error.
	ErrModuleCreateFailed = errors.New("edgegateway: module create failed")

	// ErrSpawnFailed means a subscriber's receive worker could not be
	// started.
	ErrSpawnFailed = errors.New("edgegateway: worker spawn failed")

	// ErrClosed means the operation was attempted on a handle that has
	// already been destroyed or torn down.
	ErrClosed = errors.New("edgegateway: handle closed")
)

// TransportKind identifies which transport operation failed.
type TransportKind int

const (
	TransportBind TransportKind = iota
	TransportConnect
	TransportSubscribe
	TransportSend
	TransportRecv
	TransportClosed
)

func (k TransportKind) String() string {
	switch k {
	case TransportBind:
		return "bind"
	case TransportConnect:
		return "connect"
	case TransportSubscribe:
		return "subscribe"
	case TransportSend:
		return "send"
	case TransportRecv:
		return "recv"
	case TransportClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TransportError wraps a transport-layer failure with the operation that
// failed and, for Recv errors mid-loop, whether the loop should treat it as
// terminal (Closed) or transient (anything else, which the broker's
// subscriber worker logs and retries).
type TransportError struct {
	Kind    TransportKind
	Address string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Address != "" {
		return "edgegateway: transport " + e.Kind.String() + " (" + e.Address + "): " + e.Err.Error()
	}
	return "edgegateway: transport " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsClosed reports whether err is a TransportError signaling that the
// underlying socket was closed out from under a blocked receive.
func IsClosed(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind == TransportClosed
	}
	return errors.Is(err, ErrClosed)
}

// RollbackError is returned by Gateway.Create (and, internally, by
// descriptor-driven construction) when staged module creation fails partway
// through. It names the module path that failed; every module before it in
// the descriptor has already been torn down in reverse order by the time
// this error is returned.
type RollbackError struct {
	FailedModulePath string
	Err              error
}

func (e *RollbackError) Error() string {
	return "edgegateway: gateway create failed at module " + e.FailedModulePath + ": " + e.Err.Error()
}

func (e *RollbackError) Unwrap() error { return e.Err }
