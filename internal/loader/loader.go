// Package loader opens a module's shared library, resolves its single
// well-known entry point, and hands the Gateway back the capability vector
// (internal/module) the library exports.
//
// Go's "plugin" package is the only way to load .so-compiled Go code at
// runtime; see DESIGN.md for why no third-party alternative was used here.
package loader

import (
	"fmt"
	"plugin"
	"sync"

	"github.com/kartikbazzad/edgegateway/internal/gwerrors"
	"github.com/kartikbazzad/edgegateway/internal/module"
)

// LibraryHandle identifies one loaded module library. The zero value is not
// valid; only Load and LoadStatic construct one.
type LibraryHandle struct {
	path   string
	plug   *plugin.Plugin // nil for statically registered modules
	static module.GetAPIsFunc
}

// Path returns the path (or registered name, for statics) the handle was
// loaded from.
func (h *LibraryHandle) Path() string {
	return h.path
}

// Load opens the shared library at path using Go's plugin mechanism. It
// does not resolve the entry point symbol; call ResolveAPIs for that.
func Load(path string) (*LibraryHandle, error) {
	if path == "" {
		return nil, fmt.Errorf("loader load: %w", gwerrors.ErrInvalidArg)
	}
	plug, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader load %s: %w: %v", path, gwerrors.ErrLoadFailed, err)
	}
	return &LibraryHandle{path: path, plug: plug}, nil
}

// ResolveAPIs looks up module.EntryPointName in the library and calls it to
// obtain the capability vector. Fails with ErrSymbolMissing if the symbol
// is absent or not of the expected shape.
func (h *LibraryHandle) ResolveAPIs() (*module.Capabilities, error) {
	if h.static != nil {
		caps := h.static()
		if caps == nil {
			return nil, fmt.Errorf("loader resolve apis %s: entry point returned nil: %w", h.path, gwerrors.ErrSymbolMissing)
		}
		return caps, nil
	}

	sym, err := h.plug.Lookup(module.EntryPointName)
	if err != nil {
		return nil, fmt.Errorf("loader resolve apis %s: %w: %v", h.path, gwerrors.ErrSymbolMissing, err)
	}

	// plugin.Lookup returns the symbol as an interface{} whose dynamic type
	// must exactly match what the module exported. We accept either the
	// named function type or a bare func() *module.Capabilities, since
	// modules built against a different copy of this package (a different
	// go.mod replace, a vendored build) may resolve to a structurally
	// identical but nominally distinct function type.
	switch fn := sym.(type) {
	case module.GetAPIsFunc:
		caps := fn()
		if caps == nil {
			return nil, fmt.Errorf("loader resolve apis %s: entry point returned nil: %w", h.path, gwerrors.ErrSymbolMissing)
		}
		return caps, nil
	case func() *module.Capabilities:
		caps := fn()
		if caps == nil {
			return nil, fmt.Errorf("loader resolve apis %s: entry point returned nil: %w", h.path, gwerrors.ErrSymbolMissing)
		}
		return caps, nil
	default:
		return nil, fmt.Errorf("loader resolve apis %s: symbol %s has unexpected type %T: %w",
			h.path, module.EntryPointName, sym, gwerrors.ErrSymbolMissing)
	}
}

// Unload releases the library handle. Go's plugin package has no unload
// primitive - a *plugin.Plugin, once opened, stays mapped for the life of
// the process - so for real .so libraries this is a documented no-op that
// keeps the Load/ResolveAPIs/Unload triad symmetric at the call site.
// It is equally a no-op for statically registered modules, whose registry
// entry stays in place. The caller's
// contract (never call Unload while any Handle from that library is
// alive) is unaffected either way.
func (h *LibraryHandle) Unload() error {
	return nil
}

var (
	staticMu  sync.Mutex
	staticReg = map[string]module.GetAPIsFunc{}
)

// RegisterStatic links a module into the gateway process at compile time
// under name, bypassing plugin.Open entirely. This is how the bundled
// example modules (modules/hello, modules/identitymap, modules/logsink)
// and tests load modules without building real .so artifacts - the task's
// own constraint against invoking the Go toolchain makes on-the-fly .so
// compilation unusable for anything this repository ships pre-built.
func RegisterStatic(name string, entryPoint module.GetAPIsFunc) {
	staticMu.Lock()
	defer staticMu.Unlock()
	staticReg[name] = entryPoint
}

// LoadStatic resolves a module previously registered with RegisterStatic.
func LoadStatic(name string) (*LibraryHandle, error) {
	staticMu.Lock()
	entryPoint, ok := staticReg[name]
	staticMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("loader load static %s: %w", name, gwerrors.ErrLoadFailed)
	}
	return &LibraryHandle{path: name, static: entryPoint}, nil
}

// IsStaticName reports whether name is registered as a static module,
// letting callers (the Gateway) route a module path
// to Load or LoadStatic without a separate scheme prefix in configuration.
func IsStaticName(name string) bool {
	staticMu.Lock()
	defer staticMu.Unlock()
	_, ok := staticReg[name]
	return ok
}
