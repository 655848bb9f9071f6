package rhi

import "fmt"

// slotState tracks where a frame slot is in its lifecycle.
type slotState int

const (
	// slotIdle: the slot's previous work has retired (or never existed).
	slotIdle slotState = iota

	// slotRecording: Begin returned this slot's encoder and End has not
	// been called yet.
	slotRecording

	// slotSubmitted: the slot's work is in flight, tagged with fenceValue.
	slotSubmitted
)

// frameSlot is one of the N rotating per-frame command-recording resources.
// Slots are created once at construction and only re-tagged afterwards.
type frameSlot struct {
	state   slotState
	encoder CommandEncoder

	// fenceValue is the graphics-timeline value that must retire before
	// this slot's resources may be reused. Zero means never submitted.
	fenceValue uint64
}

// FramePipeline rotates a fixed number of frame slots so the CPU can record
// frame N+1 while the GPU finishes frame N. Begin gates slot reuse on the
// graphics timeline having retired the slot's previously tagged value.
//
// FramePipeline is NOT safe for concurrent use: a single goroutine drives
// Begin/End, the common pattern in rendering engines. Resource registration
// and uploads may still happen concurrently on other goroutines.
type FramePipeline struct {
	device Device
	sync   *Synchronizer
	label  string

	slots []frameSlot
	index int
	frame uint64 // absolute frame counter, for labels and diagnostics
}

// NewFramePipeline creates a pipeline with inFlight rotating slots.
// inFlight of one is legitimate: every frame then blocks on full GPU
// completion of the previous one, slow but never deadlocked.
func NewFramePipeline(device Device, sync *Synchronizer, inFlight int, label string) (*FramePipeline, error) {
	if inFlight < 1 || inFlight > MaxFramesInFlight {
		return nil, fmt.Errorf("rhi: frames in flight must be in [1, %d], got %d",
			MaxFramesInFlight, inFlight)
	}
	if label == "" {
		label = "rhi"
	}
	return &FramePipeline{
		device: device,
		sync:   sync,
		label:  label,
		slots:  make([]frameSlot, inFlight),
	}, nil
}

// Begin starts the next frame: it blocks until the current slot's previous
// work has retired on the graphics queue, then returns a fresh recording
// surface.
//
// Begin must not be called while a previous Begin is unmatched; that returns
// [ErrFrameBusy]. A wait failure surfaces the synchronizer's distinct
// timeout/device-lost condition, and a failure to acquire the recording
// resource is reported as [ErrDeviceLost] so the caller can tell it apart
// from an empty frame.
func (p *FramePipeline) Begin() (CommandEncoder, error) {
	slot := &p.slots[p.index]
	if slot.state == slotRecording {
		return nil, ErrFrameBusy
	}

	if slot.fenceValue != 0 {
		if err := p.sync.WaitCPU(QueueGraphics, slot.fenceValue, 0); err != nil {
			return nil, fmt.Errorf("rhi: frame %d slot %d: %w", p.frame, p.index, err)
		}
		logger().Debug("rhi: frame slot reclaimed",
			"frame", p.frame, "slot", p.index, "retired", slot.fenceValue)
	}

	enc, err := p.device.CreateCommandEncoder(fmt.Sprintf("%s-frame-%d", p.label, p.frame))
	if err != nil {
		return nil, fmt.Errorf("%w: resetting frame %d recording resources: %v",
			ErrDeviceLost, p.frame, err)
	}

	slot.encoder = enc
	slot.state = slotRecording
	return enc, nil
}

// End closes the current recording surface, submits it on the graphics
// queue, tags the slot with the newly signaled fence value, and advances to
// the next slot. It returns the signaled value.
func (p *FramePipeline) End() (uint64, error) {
	slot := &p.slots[p.index]
	if slot.state != slotRecording {
		return 0, ErrFrameNotRecording
	}

	buffer, err := slot.encoder.Finish()
	if err != nil {
		slot.encoder = nil
		slot.state = slotIdle
		return 0, fmt.Errorf("%w: closing frame %d command buffer: %v", ErrDeviceLost, p.frame, err)
	}

	value, err := p.sync.Submit(QueueGraphics, []CommandBuffer{buffer})
	buffer.Destroy()
	if err != nil {
		slot.encoder = nil
		slot.state = slotIdle
		return 0, err
	}

	slot.encoder = nil
	slot.fenceValue = value
	slot.state = slotSubmitted

	p.index = (p.index + 1) % len(p.slots)
	p.frame++
	return value, nil
}

// InFlight returns the number of frame slots.
func (p *FramePipeline) InFlight() int {
	return len(p.slots)
}

// Frame returns the absolute index of the frame Begin will record next.
func (p *FramePipeline) Frame() uint64 {
	return p.frame
}

// SlotFence returns the fence value currently tagged on slot i, for
// diagnostics. Zero means the slot was never submitted.
func (p *FramePipeline) SlotFence(i int) uint64 {
	if i < 0 || i >= len(p.slots) {
		return 0
	}
	return p.slots[i].fenceValue
}
