package rhi

import "time"

// QueueKind identifies one of the hardware command queues the host hands to
// the engine. The three timelines are independent on purpose: copy and
// compute work must be able to proceed without false dependencies on
// unrelated graphics work.
type QueueKind int

const (
	// QueueGraphics is the queue frame command buffers are submitted to.
	QueueGraphics QueueKind = iota

	// QueueCompute is the asynchronous compute queue.
	QueueCompute

	// QueueCopy is the transfer queue that drains the staging ring.
	QueueCopy

	queueKindCount
)

// String returns the queue name for logs and error messages.
func (k QueueKind) String() string {
	switch k {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	case QueueCopy:
		return "copy"
	default:
		return "unknown"
	}
}

// Fence is an opaque timeline fence object created by a [Device]. The engine
// never inspects it; only the backend that created it knows its shape.
type Fence any

// Buffer is a native GPU buffer owned by the backend.
type Buffer interface {
	// Destroy releases the buffer's GPU resources.
	Destroy()
}

// Texture is a native GPU texture owned by the backend.
type Texture interface {
	// Destroy releases the texture's GPU resources.
	Destroy()
}

// CommandBuffer is a finished, submittable recording.
type CommandBuffer interface {
	// Destroy releases the command buffer after submission.
	Destroy()
}

// CommandEncoder records GPU commands for one submission. Encoders are
// single-use: after Finish the encoder must not be touched again.
type CommandEncoder interface {
	// CopyBufferToBuffer records a copy of size bytes from src to dst.
	CopyBufferToBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset, size uint64) error

	// CopyBufferToTexture records a copy from a tightly row-pitched buffer
	// region into a 2D texture.
	CopyBufferToTexture(src Buffer, srcOffset uint64, bytesPerRow uint32, dst Texture, width, height uint32) error

	// Finish ends recording and returns the command buffer for submission.
	Finish() (CommandBuffer, error)
}

// StagingMemory is a CPU-writable, GPU-readable region backing the staging
// ring. Bytes returns the writable view; Flush makes a written range visible
// to the GPU before a copy that reads it is submitted. Backends with
// persistently mapped memory implement Flush as a no-op.
type StagingMemory interface {
	// Bytes returns the CPU-writable view of the whole region.
	Bytes() []byte

	// Flush publishes [offset, offset+size) to the GPU-visible buffer.
	Flush(offset, size uint64) error

	// Buffer returns the GPU-visible buffer copies read from.
	Buffer() Buffer

	// Destroy releases the region.
	Destroy()
}

// Device is the engine's view of an already-created GPU device. The host
// performs bring-up (adapter selection, feature negotiation) out of band and
// hands the result in; see the backend/wgpu package for the hal adaptation.
type Device interface {
	// CreateFence creates a timeline fence whose value starts at zero.
	CreateFence() (Fence, error)

	// DestroyFence releases a fence created by CreateFence.
	DestroyFence(fence Fence)

	// WaitFence blocks until fence reaches value or the timeout elapses.
	// A zero timeout polls without blocking. It reports whether the value
	// was reached; a non-nil error means the device can no longer make
	// progress.
	WaitFence(fence Fence, value uint64, timeout time.Duration) (bool, error)

	// CreateCommandEncoder begins recording a new command buffer.
	CreateCommandEncoder(label string) (CommandEncoder, error)

	// CreateStagingMemory allocates a CPU-writable upload region of the
	// given size.
	CreateStagingMemory(size uint64) (StagingMemory, error)
}

// Queue is one hardware submission stream. Work submitted to a single queue
// retires in submission order; ordering across queues exists only where a
// GPU-side wait was explicitly inserted.
type Queue interface {
	// Submit enqueues the command buffers and then signals fence to value.
	// An empty buffer list submits a bare signal.
	Submit(buffers []CommandBuffer, fence Fence, value uint64) error

	// WaitFence makes work submitted to this queue after the call wait, on
	// the GPU timeline, until fence reaches value. The CPU is not stalled.
	WaitFence(fence Fence, value uint64) error
}
