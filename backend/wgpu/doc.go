// Package wgpu adapts a gogpu/wgpu HAL device to the engine's device and
// queue interfaces.
//
// The HAL exposes a single hardware queue, so the adapter hands out the same
// queue for graphics, compute and copy work. Submission order is execution
// order on such a queue, which makes GPU-side waits between the engine's
// timelines trivially satisfied; the three fence timelines still advance
// independently.
//
// Usage:
//
//	adapter, err := wgpu.NewAdapter(halDevice, halQueue)
//	if err != nil { ... }
//	gfx, cmp, cpy := adapter.Queues()
//	engine, err := rhi.New(adapter.Device(), gfx, cmp, cpy)
//
// A device owned by a gpucontext provider can be shared instead:
//
//	adapter, err := wgpu.FromProvider(provider)
package wgpu
