// Package module defines the capability vector a hosted module exposes to
// the Gateway: a small struct of constructor/destructor/receive closures,
// and a single opaque Handle value that carries a module instance's
// identity across the loader boundary.
package module

import (
	"encoding/json"

	"github.com/kartikbazzad/edgegateway/internal/message"
)

// Handle is the opaque identity of a created module instance. Equality is
// by pointer; the Gateway never inspects Handle's contents.
type Handle interface{}

// Capabilities is what a module library exports. Receive is optional: a
// module with no need to consume bus traffic can be created from a
// Capabilities value whose Receive field is nil. The Gateway never calls
// Receive itself, whether it is set or not.
type Capabilities struct {
	// Create constructs one module instance from its JSON configuration
	// block. The layout inside config is entirely up to the module; the
	// Gateway treats it as an opaque json.RawMessage.
	Create func(config json.RawMessage) (Handle, error)

	// Destroy releases every resource the Handle owns, synchronously
	// joining any goroutine the module spawned. The Gateway always calls
	// Destroy before unloading the module's library - never the other
	// way around.
	Destroy func(h Handle)

	// Receive, if non-nil, is invoked by a co-resident broker delivery
	// path when the hosting gateway wires messages to this module
	// in-process. Modules that only publish (never subscribe) leave
	// this nil.
	Receive func(h Handle, msg *message.Message)
}

// EntryPointName is the single well-known exported symbol every module
// shared library must provide.
const EntryPointName = "Module_GetAPIS"

// GetAPIsFunc is the function signature the entry point symbol resolves
// to: a shared library exports a func() *Capabilities under the name
// EntryPointName.
type GetAPIsFunc func() *Capabilities
