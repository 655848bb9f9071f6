package rhi

import (
	"errors"
	"testing"
	"time"
)

func TestSynchronizerIndependentTimelines(t *testing.T) {
	rig := newFakeRig(true)
	s := rig.newSync(time.Second)
	defer s.Close()

	// Three signals on graphics, one on copy, none on compute.
	var last uint64
	for i := 0; i < 3; i++ {
		v, err := s.Signal(QueueGraphics)
		if err != nil {
			t.Fatalf("Signal(graphics) error = %v", err)
		}
		last = v
	}
	if last != 3 {
		t.Errorf("graphics value = %d, want 3", last)
	}

	if v, _ := s.Signal(QueueCopy); v != 1 {
		t.Errorf("copy value = %d, want 1", v)
	}

	if got := s.RetiredValue(QueueGraphics); got != 3 {
		t.Errorf("RetiredValue(graphics) = %d, want 3", got)
	}
	if got := s.RetiredValue(QueueCopy); got != 1 {
		t.Errorf("RetiredValue(copy) = %d, want 1", got)
	}
	if got := s.RetiredValue(QueueCompute); got != 0 {
		t.Errorf("RetiredValue(compute) = %d, want 0", got)
	}
}

func TestSynchronizerValuesMonotonic(t *testing.T) {
	rig := newFakeRig(false)
	s := rig.newSync(time.Second)
	defer s.Close()

	for i := 0; i < 5; i++ {
		if _, err := s.Signal(QueueCompute); err != nil {
			t.Fatalf("Signal() error = %v", err)
		}
	}
	next, retired := s.Values(QueueCompute)
	if next != 5 || retired != 0 {
		t.Fatalf("Values() = %d, %d, want 5, 0", next, retired)
	}

	rig.cmp.complete(2)
	if got := s.RetiredValue(QueueCompute); got != 2 {
		t.Errorf("RetiredValue() = %d, want 2", got)
	}

	rig.cmp.completeAll()
	if got := s.RetiredValue(QueueCompute); got != 5 {
		t.Errorf("RetiredValue() = %d, want 5", got)
	}
}

func TestWaitCPURetiredReturnsImmediately(t *testing.T) {
	rig := newFakeRig(true)
	s := rig.newSync(time.Second)
	defer s.Close()

	v, _ := s.Signal(QueueGraphics)
	if err := s.WaitCPU(QueueGraphics, v, 0); err != nil {
		t.Errorf("WaitCPU(retired) error = %v", err)
	}
	// Value zero predates all signals.
	if err := s.WaitCPU(QueueGraphics, 0, 0); err != nil {
		t.Errorf("WaitCPU(0) error = %v", err)
	}
}

func TestWaitCPUBlocksUntilSignal(t *testing.T) {
	rig := newFakeRig(false)
	s := rig.newSync(time.Second)
	defer s.Close()

	v, err := s.Signal(QueueCopy)
	if err != nil {
		t.Fatalf("Signal() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- s.WaitCPU(QueueCopy, v, time.Second)
	}()

	select {
	case err := <-done:
		t.Fatalf("WaitCPU returned %v before the fence was signaled", err)
	case <-time.After(20 * time.Millisecond):
	}

	rig.cpy.completeAll()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitCPU error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitCPU did not return after the fence was signaled")
	}
}

func TestWaitCPUTimeout(t *testing.T) {
	rig := newFakeRig(false)
	s := rig.newSync(time.Second)
	defer s.Close()

	v, _ := s.Signal(QueueGraphics)
	err := s.WaitCPU(QueueGraphics, v, 10*time.Millisecond)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("WaitCPU error = %v, want ErrWaitTimeout", err)
	}
	// Timeout must stay distinct from device loss.
	if errors.Is(err, ErrDeviceLost) {
		t.Error("timeout error matches ErrDeviceLost")
	}
}

func TestWaitCPUDeviceLost(t *testing.T) {
	rig := newFakeRig(false)
	s := rig.newSync(time.Second)
	defer s.Close()

	v, _ := s.Signal(QueueGraphics)
	rig.device.waitErr = errors.New("vk: device lost")

	err := s.WaitCPU(QueueGraphics, v, 10*time.Millisecond)
	if !errors.Is(err, ErrDeviceLost) {
		t.Errorf("WaitCPU error = %v, want ErrDeviceLost", err)
	}
	if errors.Is(err, ErrWaitTimeout) {
		t.Error("device-lost error matches ErrWaitTimeout")
	}
}

func TestWaitGPURecordsQueueWait(t *testing.T) {
	rig := newFakeRig(true)
	s := rig.newSync(time.Second)
	defer s.Close()

	v, _ := s.Signal(QueueCopy)
	if err := s.WaitGPU(QueueGraphics, QueueCopy, v); err != nil {
		t.Fatalf("WaitGPU() error = %v", err)
	}

	rig.gfx.mu.Lock()
	waits := len(rig.gfx.gpuWaits)
	var got gpuWait
	if waits > 0 {
		got = rig.gfx.gpuWaits[0]
	}
	rig.gfx.mu.Unlock()

	if waits != 1 {
		t.Fatalf("graphics queue waits = %d, want 1", waits)
	}
	if got.value != v {
		t.Errorf("queue wait value = %d, want %d", got.value, v)
	}
}

func TestWaitGPUSameQueueNoop(t *testing.T) {
	rig := newFakeRig(true)
	s := rig.newSync(time.Second)
	defer s.Close()

	v, _ := s.Signal(QueueGraphics)
	if err := s.WaitGPU(QueueGraphics, QueueGraphics, v); err != nil {
		t.Fatalf("WaitGPU(same queue) error = %v", err)
	}
	rig.gfx.mu.Lock()
	waits := len(rig.gfx.gpuWaits)
	rig.gfx.mu.Unlock()
	if waits != 0 {
		t.Errorf("graphics queue waits = %d, want 0", waits)
	}
}

func TestSynchronizerClosed(t *testing.T) {
	rig := newFakeRig(true)
	s := rig.newSync(time.Second)
	s.Close()
	s.Close() // idempotent

	if _, err := s.Signal(QueueGraphics); !errors.Is(err, ErrClosed) {
		t.Errorf("Signal() after Close error = %v, want ErrClosed", err)
	}
	for _, f := range rig.device.fences {
		f.mu.Lock()
		destroyed := f.destroyed
		f.mu.Unlock()
		if !destroyed {
			t.Error("Close did not destroy a fence")
		}
	}
}

func TestNewSynchronizerUnwindsOnFailure(t *testing.T) {
	rig := newFakeRig(true)
	rig.device.fenceErr = errors.New("out of memory")

	if _, err := NewSynchronizer(rig.device, rig.gfx, rig.cmp, rig.cpy, time.Second); err == nil {
		t.Fatal("NewSynchronizer() error = nil, want non-nil")
	}
	if n := len(rig.device.fences); n != 0 {
		t.Errorf("fences created = %d, want 0", n)
	}
}
