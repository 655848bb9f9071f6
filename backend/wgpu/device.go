package wgpu

import (
	"fmt"
	"time"

	"github.com/gogpu/rhi"
	"github.com/gogpu/wgpu/hal"

	types "github.com/gogpu/gputypes"
)

// halDevice implements rhi.Device over a HAL device. The queue is retained
// for staging flushes and texture writes, which the HAL routes through the
// queue rather than the device.
type halDevice struct {
	raw   hal.Device
	queue hal.Queue
}

func (d *halDevice) CreateFence() (rhi.Fence, error) {
	return d.raw.CreateFence()
}

func (d *halDevice) DestroyFence(fence rhi.Fence) {
	if f, ok := fence.(hal.Fence); ok {
		d.raw.DestroyFence(f)
	}
}

func (d *halDevice) WaitFence(fence rhi.Fence, value uint64, timeout time.Duration) (bool, error) {
	f, ok := fence.(hal.Fence)
	if !ok {
		return false, fmt.Errorf("wgpu: %T is not a hal fence", fence)
	}
	return d.raw.Wait(f, value, timeout)
}

func (d *halDevice) CreateCommandEncoder(label string) (rhi.CommandEncoder, error) {
	enc, err := d.raw.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: label,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	return &encoder{raw: enc, queue: d.queue}, nil
}

func (d *halDevice) CreateStagingMemory(size uint64) (rhi.StagingMemory, error) {
	raw, err := d.raw.CreateBuffer(&hal.BufferDescriptor{
		Label: "rhi-staging-ring",
		Size:  size,
		Usage: types.BufferUsageCopySrc | types.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create staging buffer: %w", err)
	}
	return &stagingMemory{
		buf: &stagingBuffer{
			buffer: buffer{raw: raw, device: d.raw},
			shadow: make([]byte, size),
		},
		queue: d.queue,
	}, nil
}

// halQueue implements rhi.Queue over the single HAL hardware queue.
type halQueue struct {
	raw hal.Queue
}

func (q *halQueue) Submit(buffers []rhi.CommandBuffer, fence rhi.Fence, value uint64) error {
	var halBufs []hal.CommandBuffer
	if len(buffers) > 0 {
		halBufs = make([]hal.CommandBuffer, 0, len(buffers))
		for _, b := range buffers {
			cb, ok := b.(*commandBuffer)
			if !ok {
				return fmt.Errorf("wgpu: %T is not a wgpu command buffer", b)
			}
			halBufs = append(halBufs, cb.raw)
		}
	}

	var halFence hal.Fence
	if fence != nil {
		f, ok := fence.(hal.Fence)
		if !ok {
			return fmt.Errorf("wgpu: %T is not a hal fence", fence)
		}
		halFence = f
	}

	return q.raw.Submit(halBufs, halFence, value)
}

// WaitFence is a no-op. All engine queues map to the one HAL queue, which
// executes submissions in order, so any value signaled by earlier work has
// already retired by the time later work runs.
func (q *halQueue) WaitFence(fence rhi.Fence, value uint64) error {
	return nil
}

// buffer owns a HAL buffer.
type buffer struct {
	raw    hal.Buffer
	device hal.Device
}

func (b *buffer) Destroy() { b.device.DestroyBuffer(b.raw) }

// stagingBuffer is the ring's backing buffer plus its CPU shadow. The HAL
// has no persistent mapping, so staged writes land in the shadow and reach
// the GPU copy of the ring on Flush.
type stagingBuffer struct {
	buffer
	shadow []byte
}

// texture owns a HAL texture and remembers its dimensions for copies.
type texture struct {
	raw           hal.Texture
	device        hal.Device
	width, height uint32
	format        types.TextureFormat
}

func (t *texture) Destroy() { t.device.DestroyTexture(t.raw) }

// Size returns the texture dimensions in texels.
func (t *texture) Size() (width, height uint32) { return t.width, t.height }

type commandBuffer struct {
	raw hal.CommandBuffer
}

func (c *commandBuffer) Destroy() { c.raw.Destroy() }

// encoder wraps an open HAL command encoder.
type encoder struct {
	raw   hal.CommandEncoder
	queue hal.Queue
}

func (e *encoder) CopyBufferToBuffer(src rhi.Buffer, srcOffset uint64, dst rhi.Buffer, dstOffset, size uint64) error {
	s, err := rawBuffer(src)
	if err != nil {
		return err
	}
	d, err := rawBuffer(dst)
	if err != nil {
		return err
	}
	e.raw.CopyBufferToBuffer(s, d, []hal.BufferCopy{
		{
			SrcOffset: srcOffset,
			DstOffset: dstOffset,
			Size:      size,
		},
	})
	return nil
}

func (e *encoder) CopyBufferToTexture(src rhi.Buffer, srcOffset uint64, bytesPerRow uint32, dst rhi.Texture, width, height uint32) error {
	sb, ok := src.(*stagingBuffer)
	if !ok {
		return fmt.Errorf("wgpu: texture copy source must be staging memory, got %T", src)
	}
	t, ok := dst.(*texture)
	if !ok {
		return fmt.Errorf("wgpu: %T is not a wgpu texture", dst)
	}

	// The HAL encoder has no buffer-to-texture copy; the queue write below
	// is ordered before the fence signal submitted after this encoder, which
	// is the ordering the caller relies on.
	end := srcOffset + uint64(bytesPerRow)*uint64(height)
	if end > uint64(len(sb.shadow)) {
		return fmt.Errorf("wgpu: texture copy reads [%d, %d) beyond staging size %d",
			srcOffset, end, len(sb.shadow))
	}
	e.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  t.raw,
			MipLevel: 0,
			Origin:   hal.Origin3D{},
			Aspect:   types.TextureAspectAll,
		},
		sb.shadow[srcOffset:end],
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  bytesPerRow,
			RowsPerImage: height,
		},
		&hal.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

func (e *encoder) Finish() (rhi.CommandBuffer, error) {
	cb, err := e.raw.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("wgpu: end encoding: %w", err)
	}
	return &commandBuffer{raw: cb}, nil
}

// stagingMemory implements rhi.StagingMemory with a CPU shadow of the ring.
type stagingMemory struct {
	buf   *stagingBuffer
	queue hal.Queue
}

func (m *stagingMemory) Bytes() []byte { return m.buf.shadow }

func (m *stagingMemory) Flush(offset, size uint64) error {
	if offset+size > uint64(len(m.buf.shadow)) {
		return fmt.Errorf("wgpu: flush [%d, %d) beyond staging size %d",
			offset, offset+size, len(m.buf.shadow))
	}
	m.queue.WriteBuffer(m.buf.raw, offset, m.buf.shadow[offset:offset+size])
	return nil
}

func (m *stagingMemory) Buffer() rhi.Buffer { return m.buf }

func (m *stagingMemory) Destroy() { m.buf.Destroy() }

// rawBuffer unwraps an engine buffer back to its HAL buffer.
func rawBuffer(b rhi.Buffer) (hal.Buffer, error) {
	switch v := b.(type) {
	case *buffer:
		return v.raw, nil
	case *stagingBuffer:
		return v.raw, nil
	default:
		return nil, fmt.Errorf("wgpu: %T is not a wgpu buffer", b)
	}
}
