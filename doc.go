// Package rhi implements the GPU resource-and-synchronization core used by
// gogpu rendering backends.
//
// # Overview
//
// rhi sits between a host renderer and a GPU backend. The host brings up the
// device and its hardware queues (graphics, compute, copy) and hands them to
// rhi; rhi hands back opaque handles and completion signals. It does not
// negotiate device capabilities, compile shaders, or talk to a window system.
//
// The package is built from five cooperating pieces:
//
//   - [Registry]: opaque 64-bit handles mapped to owned native GPU objects.
//   - [Synchronizer]: one monotonic fence timeline per hardware queue, with
//     CPU-side and GPU-side waits.
//   - [FramePipeline]: N rotating frame slots, gating command-resource reuse
//     on the GPU having retired the slot's previous work.
//   - [StagingRing]: a fixed circular upload area recycled against the copy
//     queue's timeline.
//   - [PipelineCache]: a name-keyed cache of built pipeline handles.
//
// [Engine] ties the pieces together behind a single constructor.
//
// # Quick Start
//
//	adapter, err := wgpu.NewAdapter(halDevice, halQueue)
//	if err != nil {
//	    // handle error
//	}
//	gfx, cmp, cpy := adapter.Queues()
//
//	engine, err := rhi.New(adapter.Device(), gfx, cmp, cpy,
//	    rhi.WithFramesInFlight(2),
//	    rhi.WithStagingSize(16<<20))
//	if err != nil {
//	    // handle error
//	}
//	defer engine.Close()
//
//	enc, err := engine.Frames().Begin()
//	// record work ...
//	_, err = engine.Frames().End()
//
// # Threading
//
// A single goroutine is expected to drive [FramePipeline.Begin] and
// [FramePipeline.End]. [Registry], [Synchronizer], [StagingRing] and
// [PipelineCache] are safe for concurrent use from additional goroutines,
// such as a background asset loader uploading through the copy queue. No
// component holds a lock across a blocking wait.
package rhi
