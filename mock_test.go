package rhi

import (
	"sync"
	"sync/atomic"
	"time"
)

// fakeFence is a monotonic completion counter the tests advance by hand
// (or automatically, for fakeQueue in auto mode).
type fakeFence struct {
	mu        sync.Mutex
	value     uint64
	destroyed bool
}

func (f *fakeFence) signal(v uint64) {
	f.mu.Lock()
	if v > f.value {
		f.value = v
	}
	f.mu.Unlock()
}

func (f *fakeFence) load() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// fakeBuffer carries real bytes so upload tests can verify content end to
// end.
type fakeBuffer struct {
	data      []byte
	destroyed atomic.Bool
}

func (b *fakeBuffer) Destroy() { b.destroyed.Store(true) }

type fakeTexture struct {
	width, height uint32
	pix           []byte
	destroyed     atomic.Bool
}

func newFakeTexture(width, height uint32) *fakeTexture {
	return &fakeTexture{width: width, height: height, pix: make([]byte, int(width)*int(height)*4)}
}

func (t *fakeTexture) Destroy() { t.destroyed.Store(true) }

type fakeCommandBuffer struct {
	destroyed atomic.Bool
}

func (b *fakeCommandBuffer) Destroy() { b.destroyed.Store(true) }

// fakeEncoder applies copies eagerly at record time, which keeps content
// checks deterministic without modeling GPU execution.
type fakeEncoder struct {
	label     string
	copies    int
	finishErr error
	finished  bool
}

func (e *fakeEncoder) CopyBufferToBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset, size uint64) error {
	s := src.(*fakeBuffer)
	d := dst.(*fakeBuffer)
	copy(d.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
	e.copies++
	return nil
}

func (e *fakeEncoder) CopyBufferToTexture(src Buffer, srcOffset uint64, bytesPerRow uint32, dst Texture, width, height uint32) error {
	s := src.(*fakeBuffer)
	d := dst.(*fakeTexture)
	rowBytes := int(width) * 4
	for row := 0; row < int(height); row++ {
		from := int(srcOffset) + row*int(bytesPerRow)
		to := row * int(d.width) * 4
		copy(d.pix[to:to+rowBytes], s.data[from:from+rowBytes])
	}
	e.copies++
	return nil
}

func (e *fakeEncoder) Finish() (CommandBuffer, error) {
	if e.finishErr != nil {
		return nil, e.finishErr
	}
	e.finished = true
	return &fakeCommandBuffer{}, nil
}

type fakeStagingMemory struct {
	buf       *fakeBuffer
	flushes   atomic.Int64
	destroyed atomic.Bool
}

func (m *fakeStagingMemory) Bytes() []byte { return m.buf.data }

func (m *fakeStagingMemory) Flush(offset, size uint64) error {
	m.flushes.Add(1)
	return nil
}

func (m *fakeStagingMemory) Buffer() Buffer { return m.buf }

func (m *fakeStagingMemory) Destroy() { m.destroyed.Store(true) }

// fakeDevice implements Device over the fakes above. Optional error fields
// let tests inject failures per call site.
type fakeDevice struct {
	mu     sync.Mutex
	fences []*fakeFence

	encoders   atomic.Int64
	encoderErr error

	staging    *fakeStagingMemory
	stagingErr error

	fenceErr error
	waitErr  error
}

func (d *fakeDevice) CreateFence() (Fence, error) {
	if d.fenceErr != nil {
		return nil, d.fenceErr
	}
	f := &fakeFence{}
	d.mu.Lock()
	d.fences = append(d.fences, f)
	d.mu.Unlock()
	return f, nil
}

func (d *fakeDevice) DestroyFence(fence Fence) {
	if f, ok := fence.(*fakeFence); ok {
		f.mu.Lock()
		f.destroyed = true
		f.mu.Unlock()
	}
}

func (d *fakeDevice) WaitFence(fence Fence, value uint64, timeout time.Duration) (bool, error) {
	if d.waitErr != nil {
		return false, d.waitErr
	}
	f := fence.(*fakeFence)
	if timeout == 0 {
		return f.load() >= value, nil
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if f.load() >= value {
			return true, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(200 * time.Microsecond)
	}
}

func (d *fakeDevice) CreateCommandEncoder(label string) (CommandEncoder, error) {
	if d.encoderErr != nil {
		return nil, d.encoderErr
	}
	d.encoders.Add(1)
	return &fakeEncoder{label: label}, nil
}

func (d *fakeDevice) CreateStagingMemory(size uint64) (StagingMemory, error) {
	if d.stagingErr != nil {
		return nil, d.stagingErr
	}
	m := &fakeStagingMemory{buf: &fakeBuffer{data: make([]byte, size)}}
	d.mu.Lock()
	d.staging = m
	d.mu.Unlock()
	return m, nil
}

type pendingSignal struct {
	fence *fakeFence
	value uint64
}

type gpuWait struct {
	fence *fakeFence
	value uint64
}

// fakeQueue records submissions. In auto mode every submitted fence value is
// signaled immediately; otherwise signals queue up until complete/completeAll.
type fakeQueue struct {
	auto bool

	mu       sync.Mutex
	pending  []pendingSignal
	gpuWaits []gpuWait

	submits   atomic.Int64
	submitErr error
	waitErr   error
}

func (q *fakeQueue) Submit(buffers []CommandBuffer, fence Fence, value uint64) error {
	if q.submitErr != nil {
		return q.submitErr
	}
	q.submits.Add(1)
	f := fence.(*fakeFence)
	if q.auto {
		f.signal(value)
		return nil
	}
	q.mu.Lock()
	q.pending = append(q.pending, pendingSignal{fence: f, value: value})
	q.mu.Unlock()
	return nil
}

func (q *fakeQueue) WaitFence(fence Fence, value uint64) error {
	if q.waitErr != nil {
		return q.waitErr
	}
	q.mu.Lock()
	q.gpuWaits = append(q.gpuWaits, gpuWait{fence: fence.(*fakeFence), value: value})
	q.mu.Unlock()
	return nil
}

// complete retires the oldest n pending submissions.
func (q *fakeQueue) complete(n int) {
	q.mu.Lock()
	if n > len(q.pending) {
		n = len(q.pending)
	}
	done := q.pending[:n]
	q.pending = q.pending[n:]
	q.mu.Unlock()
	for _, p := range done {
		p.fence.signal(p.value)
	}
}

func (q *fakeQueue) completeAll() {
	q.mu.Lock()
	done := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, p := range done {
		p.fence.signal(p.value)
	}
}

// fakeRig bundles a device with its three queues.
type fakeRig struct {
	device *fakeDevice
	gfx    *fakeQueue
	cmp    *fakeQueue
	cpy    *fakeQueue
}

func newFakeRig(auto bool) *fakeRig {
	return &fakeRig{
		device: &fakeDevice{},
		gfx:    &fakeQueue{auto: auto},
		cmp:    &fakeQueue{auto: auto},
		cpy:    &fakeQueue{auto: auto},
	}
}

func (r *fakeRig) newSync(timeout time.Duration) *Synchronizer {
	s, err := NewSynchronizer(r.device, r.gfx, r.cmp, r.cpy, timeout)
	if err != nil {
		panic(err)
	}
	return s
}
