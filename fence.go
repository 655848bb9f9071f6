package rhi

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// timeline is one queue's completion counter. next is the highest value
// handed out; retired is the highest value observed complete. retired is
// non-decreasing and never exceeds next.
type timeline struct {
	queue Queue
	fence Fence

	// mu serializes signal submission so values reach the queue in
	// strictly increasing order.
	mu   sync.Mutex
	next uint64

	retired atomic.Uint64
}

// Synchronizer maintains an independent fence timeline per hardware queue
// and exposes CPU-side and GPU-side wait primitives.
//
// Three timelines instead of one global counter is the point of the design:
// copy and compute submissions retire without false dependencies on
// unrelated graphics work. The synchronizer never implies an ordering
// between queues that was not explicitly requested through WaitGPU.
//
// Synchronizer is safe for concurrent use.
type Synchronizer struct {
	device      Device
	timelines   [queueKindCount]timeline
	waitTimeout time.Duration
	closed      atomic.Bool
}

// NewSynchronizer creates one fence timeline per queue. waitTimeout bounds
// waits that did not specify their own; it must be positive.
func NewSynchronizer(device Device, graphics, compute, copy Queue, waitTimeout time.Duration) (*Synchronizer, error) {
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}

	s := &Synchronizer{
		device:      device,
		waitTimeout: waitTimeout,
	}
	s.timelines[QueueGraphics].queue = graphics
	s.timelines[QueueCompute].queue = compute
	s.timelines[QueueCopy].queue = copy

	for kind := QueueKind(0); kind < queueKindCount; kind++ {
		fence, err := device.CreateFence()
		if err != nil {
			// Unwind fences already created.
			for k := QueueKind(0); k < kind; k++ {
				device.DestroyFence(s.timelines[k].fence)
			}
			return nil, fmt.Errorf("rhi: create %s fence: %w", kind, err)
		}
		s.timelines[kind].fence = fence
	}

	return s, nil
}

// Signal submits a bare signal on the queue and returns the new timeline
// value. Work enqueued before the signal completes before the value becomes
// observable as retired.
func (s *Synchronizer) Signal(kind QueueKind) (uint64, error) {
	return s.Submit(kind, nil)
}

// Submit enqueues command buffers on the queue followed by a signal of the
// next timeline value, and returns that value.
func (s *Synchronizer) Submit(kind QueueKind, buffers []CommandBuffer) (uint64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	tl := &s.timelines[kind]

	tl.mu.Lock()
	defer tl.mu.Unlock()

	value := tl.next + 1
	if err := tl.queue.Submit(buffers, tl.fence, value); err != nil {
		return 0, fmt.Errorf("rhi: submit on %s queue: %w", kind, err)
	}
	tl.next = value
	return value, nil
}

// RetiredValue returns the highest value known completed on the queue
// without blocking. The result is monotonic across calls.
func (s *Synchronizer) RetiredValue(kind QueueKind) uint64 {
	tl := &s.timelines[kind]

	tl.mu.Lock()
	next := tl.next
	tl.mu.Unlock()

	retired := tl.retired.Load()
	for v := retired + 1; v <= next; v++ {
		done, err := s.device.WaitFence(tl.fence, v, 0)
		if err != nil || !done {
			break
		}
		retired = v
	}
	advanceRetired(tl, retired)
	return tl.retired.Load()
}

// WaitCPU blocks the calling thread until the queue has retired value, or
// the timeout elapses. A value already retired returns immediately. A zero
// timeout applies the synchronizer's configured bound; a negative timeout
// waits without bound.
//
// A wait that exceeds its bound fails with [ErrWaitTimeout]; a backend error
// is reported as [ErrDeviceLost]. Both are distinct from the recoverable
// error kinds so the embedding layer can abort or recreate the device.
func (s *Synchronizer) WaitCPU(kind QueueKind, value uint64, timeout time.Duration) error {
	if value == 0 {
		return nil
	}
	tl := &s.timelines[kind]
	if value <= tl.retired.Load() {
		return nil
	}

	if timeout == 0 {
		timeout = s.waitTimeout
	}

	done, err := s.device.WaitFence(tl.fence, value, timeout)
	if err != nil {
		return fmt.Errorf("%w: waiting for %s fence value %d: %v", ErrDeviceLost, kind, value, err)
	}
	if !done {
		return fmt.Errorf("%w: %s fence value %d not retired after %v", ErrWaitTimeout, kind, value, timeout)
	}

	advanceRetired(tl, value)
	return nil
}

// WaitGPU inserts a GPU-side dependency: work subsequently enqueued on dst
// does not begin until src has retired value. The CPU is not stalled. This
// is how a graphics submission waits for a copy-queue upload without
// serializing the rest of the pipeline.
func (s *Synchronizer) WaitGPU(dst, src QueueKind, value uint64) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if value == 0 || dst == src {
		return nil
	}

	srcTL := &s.timelines[src]
	if err := s.timelines[dst].queue.WaitFence(srcTL.fence, value); err != nil {
		return fmt.Errorf("rhi: %s queue wait on %s fence value %d: %w", dst, src, value, err)
	}
	return nil
}

// Values returns the highest signaled and highest retired value for a
// queue, for diagnostics.
func (s *Synchronizer) Values(kind QueueKind) (next, retired uint64) {
	tl := &s.timelines[kind]
	tl.mu.Lock()
	next = tl.next
	tl.mu.Unlock()
	return next, tl.retired.Load()
}

// Close destroys the per-queue fences. Callers should drain outstanding
// work first (see Engine.WaitIdle). Close is idempotent.
func (s *Synchronizer) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	for kind := QueueKind(0); kind < queueKindCount; kind++ {
		s.device.DestroyFence(s.timelines[kind].fence)
	}
}

// advanceRetired lifts the retired watermark to value, never lowering it.
func advanceRetired(tl *timeline, value uint64) {
	for {
		cur := tl.retired.Load()
		if value <= cur || tl.retired.CompareAndSwap(cur, value) {
			return
		}
	}
}
