package rhi

import "math/rand/v2"

// Handle is an opaque capability identifying a registered GPU object.
//
// Handles carry no structure a caller may rely on. They are drawn from the
// full 64-bit space by a non-cryptographic random generator, which makes
// accidental reuse of a released handle astronomically unlikely without
// generation counters. Treat a Handle as a capability, never as an index.
type Handle uint64

// InvalidHandle is the zero Handle. It is never issued by a Registry.
const InvalidHandle Handle = 0

// ResourceKind classifies what a registered native object is.
type ResourceKind int

const (
	// KindBuffer is a GPU buffer.
	KindBuffer ResourceKind = iota

	// KindTexture is a GPU texture or render target.
	KindTexture

	// KindShader is a compiled shader module.
	KindShader

	// KindPipeline is a built pipeline state object.
	KindPipeline

	// KindCommandList is a recorded command list.
	KindCommandList

	// KindCommandAllocator is a command recording allocator.
	KindCommandAllocator
)

// String returns the kind name for logs and error messages.
func (k ResourceKind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindTexture:
		return "texture"
	case KindShader:
		return "shader"
	case KindPipeline:
		return "pipeline"
	case KindCommandList:
		return "command-list"
	case KindCommandAllocator:
		return "command-allocator"
	default:
		return "unknown"
	}
}

// newHandle returns a fresh non-zero random handle. Collision against live
// entries is checked by the caller under the registry lock.
func newHandle() Handle {
	for {
		h := Handle(rand.Uint64())
		if h != InvalidHandle {
			return h
		}
	}
}
