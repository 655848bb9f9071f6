package rhi

import (
	"errors"
	"testing"
	"time"
)

func newTestFrames(t *testing.T, rig *fakeRig, inFlight int) (*FramePipeline, *Synchronizer) {
	t.Helper()
	s := rig.newSync(time.Second)
	t.Cleanup(s.Close)
	p, err := NewFramePipeline(rig.device, s, inFlight, "test")
	if err != nil {
		t.Fatalf("NewFramePipeline() error = %v", err)
	}
	return p, s
}

func TestFramePipelineBounds(t *testing.T) {
	rig := newFakeRig(true)
	s := rig.newSync(time.Second)
	defer s.Close()

	for _, n := range []int{0, -1, MaxFramesInFlight + 1} {
		if _, err := NewFramePipeline(rig.device, s, n, ""); err == nil {
			t.Errorf("NewFramePipeline(inFlight=%d) error = nil, want non-nil", n)
		}
	}
	for n := 1; n <= MaxFramesInFlight; n++ {
		p, err := NewFramePipeline(rig.device, s, n, "")
		if err != nil {
			t.Errorf("NewFramePipeline(inFlight=%d) error = %v", n, err)
			continue
		}
		if p.InFlight() != n {
			t.Errorf("InFlight() = %d, want %d", p.InFlight(), n)
		}
	}
}

func TestFrameBeginEndCycle(t *testing.T) {
	rig := newFakeRig(true)
	p, _ := newTestFrames(t, rig, 2)

	for frame := 0; frame < 6; frame++ {
		enc, err := p.Begin()
		if err != nil {
			t.Fatalf("frame %d: Begin() error = %v", frame, err)
		}
		if enc == nil {
			t.Fatalf("frame %d: Begin() returned nil encoder", frame)
		}
		value, err := p.End()
		if err != nil {
			t.Fatalf("frame %d: End() error = %v", frame, err)
		}
		if want := uint64(frame + 1); value != want {
			t.Errorf("frame %d: End() = %d, want %d", frame, value, want)
		}
	}
	if p.Frame() != 6 {
		t.Errorf("Frame() = %d, want 6", p.Frame())
	}
}

func TestFrameBeginWhileRecording(t *testing.T) {
	rig := newFakeRig(true)
	p, _ := newTestFrames(t, rig, 2)

	if _, err := p.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := p.Begin(); !errors.Is(err, ErrFrameBusy) {
		t.Errorf("second Begin() error = %v, want ErrFrameBusy", err)
	}
}

func TestFrameEndWithoutBegin(t *testing.T) {
	rig := newFakeRig(true)
	p, _ := newTestFrames(t, rig, 2)

	if _, err := p.End(); !errors.Is(err, ErrFrameNotRecording) {
		t.Errorf("End() error = %v, want ErrFrameNotRecording", err)
	}
}

// With two slots, the third Begin reuses the first slot and must block until
// the first frame's submission retires on the graphics queue.
func TestFrameThirdBeginGatesOnFirstFence(t *testing.T) {
	rig := newFakeRig(false)
	p, _ := newTestFrames(t, rig, 2)

	for frame := 0; frame < 2; frame++ {
		if _, err := p.Begin(); err != nil {
			t.Fatalf("frame %d: Begin() error = %v", frame, err)
		}
		if _, err := p.End(); err != nil {
			t.Fatalf("frame %d: End() error = %v", frame, err)
		}
	}

	began := make(chan error, 1)
	go func() {
		_, err := p.Begin()
		began <- err
	}()

	select {
	case err := <-began:
		t.Fatalf("third Begin returned %v with frame 0 still in flight", err)
	case <-time.After(20 * time.Millisecond):
	}

	rig.gfx.complete(1) // retire frame 0 only
	select {
	case err := <-began:
		if err != nil {
			t.Fatalf("third Begin error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("third Begin still blocked after frame 0 retired")
	}
	rig.gfx.completeAll()
}

func TestFrameSingleSlotSerializes(t *testing.T) {
	rig := newFakeRig(true)
	p, _ := newTestFrames(t, rig, 1)

	// Every frame reuses the single slot; auto-retiring fences keep this
	// from blocking and the cycle must stay well formed.
	for frame := 0; frame < 3; frame++ {
		if _, err := p.Begin(); err != nil {
			t.Fatalf("frame %d: Begin() error = %v", frame, err)
		}
		if _, err := p.End(); err != nil {
			t.Fatalf("frame %d: End() error = %v", frame, err)
		}
	}
	if got := p.SlotFence(0); got != 3 {
		t.Errorf("SlotFence(0) = %d, want 3", got)
	}
}

func TestFrameBeginWaitFailure(t *testing.T) {
	rig := newFakeRig(false)
	p, _ := newTestFrames(t, rig, 1)

	if _, err := p.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := p.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	// Slot 0 is tagged and will never retire within the short timeout.
	rig.device.waitErr = errors.New("vk: device lost")
	_, err := p.Begin()
	if !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Begin() error = %v, want ErrDeviceLost", err)
	}
}

func TestFrameEndSubmitFailureResetsSlot(t *testing.T) {
	rig := newFakeRig(true)
	p, _ := newTestFrames(t, rig, 2)

	if _, err := p.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	rig.gfx.submitErr = errors.New("queue gone")
	if _, err := p.End(); err == nil {
		t.Fatal("End() error = nil, want non-nil")
	}

	// The slot must be recoverable: a new Begin starts over.
	rig.gfx.submitErr = nil
	if _, err := p.Begin(); err != nil {
		t.Errorf("Begin() after failed End error = %v", err)
	}
}
