package rhi

import (
	"fmt"
	"sync"
)

// stagingRegion is one live staged allocation. Regions are created in
// request order and retire in the same order, which is what lets a single
// copy-fence watermark guard reuse instead of a per-byte map.
type stagingRegion struct {
	// startV and endV are virtual byte offsets: monotonically increasing,
	// physical position is startV % capacity.
	startV uint64
	endV   uint64

	// fenceValue is the copy-timeline value that marks the region
	// reusable. Zero while the allocation is still open (staged but not
	// yet recorded).
	fenceValue uint64
}

// StagingRing is a fixed-size circular upload area of CPU-writable,
// GPU-readable memory. CPU-sourced data is staged into it and copied to its
// destination on the copy queue, so uploads never allocate per call.
//
// Allocations are served strictly in request order. Before the cursor wraps
// onto previously granted bytes, the ring waits for the copy queue to retire
// the fence value associated with the oldest live region; that wait is the
// dominant source of upload stalls and is an expected outcome, not an error.
//
// StagingRing is safe for concurrent use. The internal lock is never held
// across a blocking fence wait.
type StagingRing struct {
	device Device
	sync   *Synchronizer
	reg    *Registry
	label  string

	// onUse, when set, is told which handle a staged copy targeted and the
	// copy-fence value covering it. Used by the engine's debug checks.
	onUse func(Handle, uint64)

	mu       sync.Mutex
	mem      StagingMemory
	capacity uint64
	headV    uint64 // next virtual write offset
	tailV    uint64 // start of the oldest live byte
	regions  []stagingRegion

	highWater uint64 // most live bytes ever held
	closed    bool
}

// NewStagingRing allocates the upload region and wires it to the copy
// queue's timeline.
func NewStagingRing(device Device, sync *Synchronizer, reg *Registry, capacity uint64, label string) (*StagingRing, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("rhi: staging capacity must be positive")
	}
	mem, err := device.CreateStagingMemory(capacity)
	if err != nil {
		return nil, fmt.Errorf("rhi: create staging memory (%d bytes): %w", capacity, err)
	}
	if label == "" {
		label = "rhi"
	}
	return &StagingRing{
		device:   device,
		sync:     sync,
		reg:      reg,
		label:    label,
		mem:      mem,
		capacity: capacity,
	}, nil
}

// Allocate reserves size bytes at the given alignment and returns the
// CPU-writable view plus the ring offset to pass to RecordCopyAndRelease.
//
// When the tail of the ring cannot hold the request, the cursor wraps to
// offset zero and the skipped bytes are abandoned for this pass. A request
// larger than the whole ring fails with [ErrCapacityExceeded]. When the ring
// is full of in-flight regions, Allocate blocks until the oldest retires on
// the copy queue; a wait failure propagates the synchronizer's distinct
// timeout/device-lost condition.
//
// Callers must write only within the returned slice and must not touch it
// after the associated copy has been recorded.
func (r *StagingRing) Allocate(size, align uint64) ([]byte, uint64, error) {
	if size == 0 {
		return nil, 0, fmt.Errorf("rhi: staging allocation size must be positive")
	}
	if align == 0 {
		align = 1
	}
	if align&(align-1) != 0 {
		return nil, 0, fmt.Errorf("rhi: staging alignment %d is not a power of two", align)
	}
	if size > r.capacity {
		return nil, 0, fmt.Errorf("%w: allocation of %d bytes exceeds ring capacity %d",
			ErrCapacityExceeded, size, r.capacity)
	}

	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, 0, ErrClosed
		}
		r.reapRetiredLocked()

		if data, offset, ok := r.tryPlaceLocked(size, align); ok {
			r.mu.Unlock()
			return data, offset, nil
		}

		// Ring is full. The oldest region must retire before its bytes
		// may be reused; wait outside the lock.
		if len(r.regions) == 0 {
			// Cannot happen: with no live regions, any request that
			// passed the capacity check places successfully.
			r.mu.Unlock()
			return nil, 0, fmt.Errorf("%w: empty ring cannot hold %d bytes", ErrCapacityExceeded, size)
		}
		oldest := r.regions[0]
		r.mu.Unlock()

		if oldest.fenceValue == 0 {
			return nil, 0, fmt.Errorf("%w: ring exhausted by an open allocation at offset %d; "+
				"record or abandon it before allocating more", ErrCapacityExceeded,
				oldest.startV%r.capacity)
		}

		logger().Debug("rhi: staging full, waiting on copy fence",
			"value", oldest.fenceValue, "size", size)
		if err := r.sync.WaitCPU(QueueCopy, oldest.fenceValue, 0); err != nil {
			return nil, 0, err
		}
	}
}

// tryPlaceLocked attempts to reserve size bytes at align from the current
// cursor, wrapping to physical offset zero when the tail does not fit.
func (r *StagingRing) tryPlaceLocked(size, align uint64) ([]byte, uint64, bool) {
	startV := alignUp(r.headV, align)

	// Wrap when the request does not fit before the physical end.
	if phys := startV % r.capacity; phys+size > r.capacity {
		skipped := r.capacity - phys
		startV += skipped
		logger().Debug("rhi: staging wrap", "abandoned", skipped, "generation", startV/r.capacity)
	}
	endV := startV + size

	if len(r.regions) == 0 {
		// Nothing live: the cursor may jump freely.
		r.tailV = startV
	} else if endV-r.tailV > r.capacity {
		return nil, 0, false
	}

	r.headV = endV
	r.regions = append(r.regions, stagingRegion{startV: startV, endV: endV})

	if live := r.headV - r.tailV; live > r.highWater {
		r.highWater = live
	}

	offset := startV % r.capacity
	return r.mem.Bytes()[offset : offset+size : offset+size], offset, true
}

// reapRetiredLocked pops leading regions whose copy fence has retired,
// advancing the tail. Allocations retire strictly in order, so scanning
// stops at the first live region.
func (r *StagingRing) reapRetiredLocked() {
	if len(r.regions) == 0 {
		return
	}
	retired := r.sync.RetiredValue(QueueCopy)
	i := 0
	for ; i < len(r.regions); i++ {
		reg := r.regions[i]
		if reg.fenceValue == 0 || reg.fenceValue > retired {
			break
		}
		r.tailV = reg.endV
	}
	if i > 0 {
		r.regions = append(r.regions[:0], r.regions[i:]...)
	}
}

// RecordCopyAndRelease issues the GPU copy from a staged region into a
// destination buffer on the copy queue, signals the copy timeline, and
// associates the signaled value with the region so its bytes become
// reusable once the value retires. It returns the signaled value, which can
// feed [Synchronizer.WaitGPU] to order dependent graphics work.
func (r *StagingRing) RecordCopyAndRelease(dst Handle, ringOffset, size, dstOffset uint64) (uint64, error) {
	native, err := r.openRegionTarget(dst, ringOffset, size)
	if err != nil {
		return 0, err
	}
	buffer, ok := native.(Buffer)
	if !ok {
		return 0, fmt.Errorf("rhi: handle %#x: staged copy destination must be a buffer", uint64(dst))
	}

	if err := r.mem.Flush(ringOffset, size); err != nil {
		return 0, fmt.Errorf("rhi: flush staging region [%d, %d): %w", ringOffset, ringOffset+size, err)
	}

	enc, err := r.device.CreateCommandEncoder(r.label + "-staging-copy")
	if err != nil {
		return 0, fmt.Errorf("%w: staging copy encoder: %v", ErrDeviceLost, err)
	}
	if err := enc.CopyBufferToBuffer(r.mem.Buffer(), ringOffset, buffer, dstOffset, size); err != nil {
		return 0, fmt.Errorf("rhi: record staging copy: %w", err)
	}

	return r.submitAndRelease(dst, ringOffset, enc)
}

// RecordTextureCopyAndRelease is RecordCopyAndRelease for 2D texture
// destinations. The staged bytes must hold height rows of bytesPerRow bytes.
func (r *StagingRing) RecordTextureCopyAndRelease(dst Handle, ringOffset uint64, bytesPerRow, width, height uint32) (uint64, error) {
	size := uint64(bytesPerRow) * uint64(height)
	native, err := r.openRegionTarget(dst, ringOffset, size)
	if err != nil {
		return 0, err
	}
	texture, ok := native.(Texture)
	if !ok {
		return 0, fmt.Errorf("rhi: handle %#x: staged copy destination must be a texture", uint64(dst))
	}

	if err := r.mem.Flush(ringOffset, size); err != nil {
		return 0, fmt.Errorf("rhi: flush staging region [%d, %d): %w", ringOffset, ringOffset+size, err)
	}

	enc, err := r.device.CreateCommandEncoder(r.label + "-staging-copy")
	if err != nil {
		return 0, fmt.Errorf("%w: staging copy encoder: %v", ErrDeviceLost, err)
	}
	if err := enc.CopyBufferToTexture(r.mem.Buffer(), ringOffset, bytesPerRow, texture, width, height); err != nil {
		return 0, fmt.Errorf("rhi: record staging texture copy: %w", err)
	}

	return r.submitAndRelease(dst, ringOffset, enc)
}

// openRegionTarget validates that an open staged region begins at ringOffset
// and that the destination handle resolves, returning the native object.
func (r *StagingRing) openRegionTarget(dst Handle, ringOffset, size uint64) (any, error) {
	r.mu.Lock()
	found := false
	for i := range r.regions {
		reg := &r.regions[i]
		if reg.fenceValue == 0 && reg.startV%r.capacity == ringOffset {
			if reg.endV-reg.startV < size {
				r.mu.Unlock()
				return nil, fmt.Errorf("rhi: staged region at offset %d holds %d bytes, copy wants %d",
					ringOffset, reg.endV-reg.startV, size)
			}
			found = true
			break
		}
	}
	r.mu.Unlock()

	if !found {
		return nil, fmt.Errorf("%w: no open staged region at ring offset %d", ErrNotFound, ringOffset)
	}

	native, ok := r.reg.Lookup(dst)
	if !ok {
		return nil, fmt.Errorf("%w: %#x", ErrNotFound, uint64(dst))
	}
	return native, nil
}

// submitAndRelease finishes the encoder, submits it on the copy queue, and
// tags the staged region with the signaled fence value.
func (r *StagingRing) submitAndRelease(dst Handle, ringOffset uint64, enc CommandEncoder) (uint64, error) {
	buffer, err := enc.Finish()
	if err != nil {
		return 0, fmt.Errorf("%w: closing staging copy: %v", ErrDeviceLost, err)
	}

	value, err := r.sync.Submit(QueueCopy, []CommandBuffer{buffer})
	buffer.Destroy()
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	for i := range r.regions {
		reg := &r.regions[i]
		if reg.fenceValue == 0 && reg.startV%r.capacity == ringOffset {
			reg.fenceValue = value
			break
		}
	}
	onUse := r.onUse
	r.mu.Unlock()

	if onUse != nil {
		onUse(dst, value)
	}
	return value, nil
}

// Capacity returns the ring size in bytes.
func (r *StagingRing) Capacity() uint64 {
	return r.capacity
}

// HighWater returns the most live staged bytes the ring has ever held.
func (r *StagingRing) HighWater() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.highWater
}

// Generation returns the ring's wrap generation: how many times the cursor
// has passed the physical end.
func (r *StagingRing) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.headV / r.capacity
}

// Live returns the number of staged regions not yet retired.
func (r *StagingRing) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reapRetiredLocked()
	return len(r.regions)
}

// Close releases the upload region. Outstanding copies must have retired;
// drain the copy queue first (see Engine.WaitIdle). Close is idempotent.
func (r *StagingRing) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.mem.Destroy()
}

// alignUp rounds v up to the next multiple of align (a power of two).
func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
