package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/rhi"
	"github.com/gogpu/wgpu/hal"
)

var (
	// ErrNilDevice is returned when a nil HAL device is passed.
	ErrNilDevice = errors.New("wgpu: nil hal device")

	// ErrNilQueue is returned when a nil HAL queue is passed.
	ErrNilQueue = errors.New("wgpu: nil hal queue")

	// ErrNilProvider is returned when a nil device provider is passed.
	ErrNilProvider = errors.New("wgpu: nil device provider")
)

// Adapter bridges a HAL device and queue to the engine interfaces. The
// caller keeps ownership of the device; destroying it is not the adapter's
// job.
type Adapter struct {
	device hal.Device
	queue  hal.Queue
}

// NewAdapter wraps an already opened HAL device and its queue.
func NewAdapter(device hal.Device, queue hal.Queue) (*Adapter, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if queue == nil {
		return nil, ErrNilQueue
	}
	return &Adapter{device: device, queue: queue}, nil
}

// FromProvider shares the device owned by a gpucontext provider. The
// provider must expose its raw HAL handles through HalDevice and HalQueue.
func FromProvider(provider gpucontext.DeviceProvider) (*Adapter, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}

	hp, ok := provider.(interface {
		HalDevice() any
		HalQueue() any
	})
	if !ok {
		return nil, fmt.Errorf("wgpu: provider %T does not expose HAL handles", provider)
	}

	device, ok := hp.HalDevice().(hal.Device)
	if !ok {
		return nil, fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok {
		return nil, fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}

	return NewAdapter(device, queue)
}

// Device returns the engine-facing device.
func (a *Adapter) Device() rhi.Device {
	return &halDevice{raw: a.device, queue: a.queue}
}

// Queues returns the graphics, compute and copy queues. All three share the
// single HAL hardware queue.
func (a *Adapter) Queues() (graphics, compute, copy rhi.Queue) {
	q := &halQueue{raw: a.queue}
	return q, q, q
}

// HalDevice returns the raw HAL device, for callers that need to create
// resources the adapter has no helper for.
func (a *Adapter) HalDevice() hal.Device { return a.device }

// HalQueue returns the raw HAL queue.
func (a *Adapter) HalQueue() hal.Queue { return a.queue }
