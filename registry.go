package rhi

import (
	"fmt"
	"sync"
)

// destroyer is the interface for native objects that require explicit
// destruction. Objects that do not implement it are simply dropped on
// release.
type destroyer interface {
	Destroy()
}

// entry is one ownership record. The registry owns the native object
// exclusively; it is destroyed when the entry is erased.
type entry struct {
	kind   ResourceKind
	native any
	stride uint32
}

// Registry maps opaque handles to native GPU object ownership records. No
// other component touches native objects except through it.
//
// The registry performs no reference counting against in-flight GPU use.
// Releasing a resource while GPU work that references it may still be
// executing is a caller precondition violation with undefined behavior; the
// engine's optional debug checks can flag it, but the registry itself never
// tracks per-submission references.
//
// Registry is safe for concurrent use. Locks are short-held around map
// mutations and never span a blocking wait.
type Registry struct {
	mu      sync.RWMutex
	entries map[Handle]entry
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[Handle]entry),
	}
}

// Register takes ownership of a freshly created native object and returns
// its new handle. The native object must not be destroyed by the caller
// afterwards.
func (r *Registry) Register(kind ResourceKind, native any) (Handle, error) {
	return r.RegisterWithStride(kind, native, 0)
}

// RegisterWithStride is Register with auxiliary element-stride metadata,
// used for structured buffers.
func (r *Registry) RegisterWithStride(kind ResourceKind, native any, stride uint32) (Handle, error) {
	if native == nil {
		return InvalidHandle, fmt.Errorf("rhi: register %s: nil native object", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return InvalidHandle, ErrClosed
	}

	h := newHandle()
	for {
		if _, taken := r.entries[h]; !taken {
			break
		}
		h = newHandle()
	}

	r.entries[h] = entry{kind: kind, native: native, stride: stride}
	return h, nil
}

// Lookup returns the native object for a handle. The second result is false
// if the handle is unknown or was already released; a stale object is never
// returned.
func (r *Registry) Lookup(h Handle) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[h]
	if !ok {
		return nil, false
	}
	return e.native, true
}

// Kind returns the resource kind recorded for a handle.
func (r *Registry) Kind(h Handle) (ResourceKind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[h]
	return e.kind, ok
}

// Stride returns the element stride recorded for a handle, or zero if none
// was set.
func (r *Registry) Stride(h Handle) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[h]
	return e.stride, ok
}

// Release erases the entry and destroys the owned native object. Releasing
// an unknown or already-released handle returns [ErrNotFound]; callers
// racing teardown may ignore it.
//
// Precondition: no GPU work that references the object may still be
// executing. The registry cannot check this; coordinate with the fence
// timelines before releasing.
func (r *Registry) Release(h Handle) error {
	r.mu.Lock()
	e, ok := r.entries[h]
	if ok {
		delete(r.entries, h)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %#x", ErrNotFound, uint64(h))
	}

	destroyNative(e.native)
	return nil
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close destroys every remaining entry and marks the registry closed.
// Close is idempotent.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	remaining := r.entries
	r.entries = make(map[Handle]entry)
	r.mu.Unlock()

	if len(remaining) > 0 {
		logger().Debug("rhi: registry close", "leaked", len(remaining))
	}
	for _, e := range remaining {
		destroyNative(e.native)
	}
}

// destroyNative destroys a native object if it knows how to.
func destroyNative(native any) {
	if d, ok := native.(destroyer); ok {
		d.Destroy()
	}
}
