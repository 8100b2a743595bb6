// Package gateway owns the gateway's lifecycle: an ordered list of module
// instances, staged creation with reverse-order rollback on partial
// failure, and reverse-order teardown on shutdown. Modules are only ever
// added and removed explicitly; nothing here evicts an instance on a timer.
package gateway

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kartikbazzad/edgegateway/internal/gwerrors"
	"github.com/kartikbazzad/edgegateway/internal/loader"
	"github.com/kartikbazzad/edgegateway/internal/module"
	"github.com/kartikbazzad/edgegateway/internal/obslog"
)

// Entry is one (module_path, module_config) pair in a gateway descriptor.
type Entry struct {
	ModulePath string
	Config     json.RawMessage
}

// instance is a fully created module: its library, its handle, and the
// capability vector used to destroy it. Only fully created instances ever
// appear in a Gateway's list.
type instance struct {
	path   string
	lib    *loader.LibraryHandle
	handle module.Handle
	caps   *module.Capabilities
}

// InstanceInfo describes one live module instance, for callers (the admin
// API's startup bookkeeping) that need to enumerate what a Gateway already
// holds without reaching into its internals.
type InstanceInfo struct {
	Path   string
	Handle module.Handle
}

// Gateway holds an ordered list of module instances. Add/Remove/Destroy
// serialize on one mutex; modules themselves may run concurrently with
// each other and with the gateway's own bookkeeping calls.
type Gateway struct {
	mu        sync.Mutex
	instances []*instance
	log       *obslog.Logger
}

// New returns an empty Gateway; equivalent to gateway_create with an empty
// descriptor.
func New(log *obslog.Logger) *Gateway {
	if log == nil {
		log = obslog.Default()
	}
	return &Gateway{log: log}
}

// Create builds a Gateway from an ordered descriptor. For each entry, in
// order: load the library, resolve its capability vector, call Create. On
// the first failure at any step, every already-appended instance is torn
// down in reverse order (Destroy, then Unload) before Create returns the
// error, which identifies the failing module path via *gwerrors.RollbackError.
func Create(descriptor []Entry, log *obslog.Logger) (*Gateway, error) {
	gw := New(log)
	for _, entry := range descriptor {
		if _, err := gw.addLocked(entry); err != nil {
			gw.destroyLocked()
			return nil, &gwerrors.RollbackError{FailedModulePath: entry.ModulePath, Err: err}
		}
	}
	return gw, nil
}

func openLibrary(path string) (*loader.LibraryHandle, error) {
	if loader.IsStaticName(path) {
		return loader.LoadStatic(path)
	}
	return loader.Load(path)
}

// addLocked performs one load/resolve/create/append cycle without taking
// gw.mu; callers must already hold it (or be single-threaded, as in Create
// before the Gateway is published to other goroutines).
func (gw *Gateway) addLocked(entry Entry) (module.Handle, error) {
	lib, err := openLibrary(entry.ModulePath)
	if err != nil {
		return nil, fmt.Errorf("add module %s: %w", entry.ModulePath, err)
	}

	caps, err := lib.ResolveAPIs()
	if err != nil {
		_ = lib.Unload()
		return nil, fmt.Errorf("add module %s: %w", entry.ModulePath, err)
	}

	if caps.Create == nil {
		_ = lib.Unload()
		return nil, fmt.Errorf("add module %s: capability vector has no Create: %w", entry.ModulePath, gwerrors.ErrModuleCreateFailed)
	}

	handle, err := caps.Create(entry.Config)
	if err != nil || handle == nil {
		_ = lib.Unload()
		return nil, fmt.Errorf("add module %s: %w: %v", entry.ModulePath, gwerrors.ErrModuleCreateFailed, err)
	}

	gw.instances = append(gw.instances, &instance{path: entry.ModulePath, lib: lib, handle: handle, caps: caps})
	gw.log.Info("module added", "path", entry.ModulePath, "count", len(gw.instances))
	return handle, nil
}

// AddModule runs one load/resolve/create/append cycle against a running
// Gateway. On failure the Gateway is left exactly as it was.
func (gw *Gateway) AddModule(entry Entry) (module.Handle, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return gw.addLocked(entry)
}

// RemoveModule locates the instance whose handle matches by identity,
// destroys and unloads it, and removes it from the list. No-op if handle
// is not found.
func (gw *Gateway) RemoveModule(handle module.Handle) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	for i, inst := range gw.instances {
		if inst.handle == handle {
			gw.teardown(inst)
			gw.instances = append(gw.instances[:i], gw.instances[i+1:]...)
			gw.log.Info("module removed", "count", len(gw.instances))
			return
		}
	}
}

// Len returns the number of currently live module instances.
func (gw *Gateway) Len() int {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return len(gw.instances)
}

// Instances returns a snapshot of every live module instance's path and
// handle, in append order. Callers (the admin API's startup registration)
// use this to learn about instances a Gateway was built with via Create,
// which never went through AddModule and so were never individually
// Tracked.
func (gw *Gateway) Instances() []InstanceInfo {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	out := make([]InstanceInfo, len(gw.instances))
	for i, inst := range gw.instances {
		out[i] = InstanceInfo{Path: inst.path, Handle: inst.handle}
	}
	return out
}

func (gw *Gateway) teardown(inst *instance) {
	if inst.caps.Destroy != nil {
		inst.caps.Destroy(inst.handle)
	}
	if err := inst.lib.Unload(); err != nil {
		gw.log.Warn("unload failed", "path", inst.lib.Path(), "error", err)
	}
}

// destroyLocked tears down every instance in reverse append order without
// taking gw.mu; used both by Destroy and by Create's rollback path.
func (gw *Gateway) destroyLocked() {
	for i := len(gw.instances) - 1; i >= 0; i-- {
		gw.teardown(gw.instances[i])
	}
	gw.instances = nil
}

// Destroy tears down every remaining instance in reverse append order, then
// releases the gateway. Safe to call once; a second call is a no-op.
func (gw *Gateway) Destroy() {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.destroyLocked()
}
