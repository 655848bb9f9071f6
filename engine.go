package rhi

import (
	"fmt"
	"sync"
)

// fenceUse remembers the last fence value associated with a handle, for the
// optional release-validation layer.
type fenceUse struct {
	kind  QueueKind
	value uint64
}

// Engine owns the resource registry, fence synchronizer, frame pipeline,
// staging ring and pipeline cache, built against a device and queues the
// host created. The engine never creates or selects devices itself.
//
// Engine methods are safe for concurrent use with the same exceptions as
// the underlying components: Frames() must be driven by one goroutine.
type Engine struct {
	device Device
	opts   engineOptions

	registry  *Registry
	sync      *Synchronizer
	frames    *FramePipeline
	staging   *StagingRing
	pipelines *PipelineCache

	// lastUse is populated only when debug checks are enabled.
	debugMu sync.Mutex
	lastUse map[Handle]fenceUse

	closeOnce sync.Once
}

// New creates an engine over an initialized device and its three hardware
// queues. Backends with fewer hardware queues may pass the same Queue for
// more than one kind; ordering guarantees then follow that queue's FIFO
// semantics.
func New(device Device, graphics, compute, copy Queue, opts ...Option) (*Engine, error) {
	if device == nil {
		return nil, fmt.Errorf("rhi: nil device")
	}
	if graphics == nil || compute == nil || copy == nil {
		return nil, fmt.Errorf("rhi: all three queues are required")
	}

	o := defaultEngineOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	sync, err := NewSynchronizer(device, graphics, compute, copy, o.waitTimeout)
	if err != nil {
		return nil, err
	}

	frames, err := NewFramePipeline(device, sync, o.framesInFlight, o.label)
	if err != nil {
		sync.Close()
		return nil, err
	}

	registry := NewRegistry()

	staging, err := NewStagingRing(device, sync, registry, o.stagingSize, o.label)
	if err != nil {
		registry.Close()
		sync.Close()
		return nil, err
	}

	e := &Engine{
		device:    device,
		opts:      o,
		registry:  registry,
		sync:      sync,
		frames:    frames,
		staging:   staging,
		pipelines: NewPipelineCache(),
	}

	if o.debugChecks {
		e.lastUse = make(map[Handle]fenceUse)
		staging.onUse = func(h Handle, value uint64) {
			e.NoteUse(h, QueueCopy, value)
		}
	}

	logger().Info("rhi: engine up",
		"frames", o.framesInFlight,
		"staging", o.stagingSize,
		"timeout", o.waitTimeout)
	return e, nil
}

// Registry returns the resource registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Sync returns the multi-queue fence synchronizer.
func (e *Engine) Sync() *Synchronizer { return e.sync }

// Frames returns the frame pipeline.
func (e *Engine) Frames() *FramePipeline { return e.frames }

// Staging returns the staging upload ring.
func (e *Engine) Staging() *StagingRing { return e.staging }

// Pipelines returns the pipeline state cache.
func (e *Engine) Pipelines() *PipelineCache { return e.pipelines }

// Register forwards to the registry.
func (e *Engine) Register(kind ResourceKind, native any) (Handle, error) {
	return e.registry.Register(kind, native)
}

// RegisterBuffer takes ownership of a backend buffer.
func (e *Engine) RegisterBuffer(native Buffer) (Handle, error) {
	return e.registry.Register(KindBuffer, native)
}

// RegisterBufferWithStride takes ownership of a structured buffer, recording
// its element stride alongside.
func (e *Engine) RegisterBufferWithStride(native Buffer, stride uint32) (Handle, error) {
	return e.registry.RegisterWithStride(KindBuffer, native, stride)
}

// RegisterTexture takes ownership of a backend texture.
func (e *Engine) RegisterTexture(native Texture) (Handle, error) {
	return e.registry.Register(KindTexture, native)
}

// RegisterShader takes ownership of a compiled shader module.
func (e *Engine) RegisterShader(native any) (Handle, error) {
	return e.registry.Register(KindShader, native)
}

// RegisterPipeline takes ownership of a built pipeline object. Pair it with
// Pipelines().Put to make the pipeline findable by name.
func (e *Engine) RegisterPipeline(native any) (Handle, error) {
	return e.registry.Register(KindPipeline, native)
}

// Lookup forwards to the registry.
func (e *Engine) Lookup(h Handle) (any, bool) {
	return e.registry.Lookup(h)
}

// Release releases a handle. With debug checks enabled it first warns if a
// fence value associated with the handle has not retired yet. The
// use-after-release precondition stays the caller's responsibility either
// way.
func (e *Engine) Release(h Handle) error {
	e.checkRelease(h)
	return e.registry.Release(h)
}

// NoteUse associates a fence value with a handle for the debug-only
// release-validation layer. Hosts that record handles into frame command
// buffers can call it with the value returned by FramePipeline.End. A
// no-op unless WithDebugChecks was set.
func (e *Engine) NoteUse(h Handle, kind QueueKind, value uint64) {
	if e.lastUse == nil {
		return
	}
	e.debugMu.Lock()
	prev := e.lastUse[h]
	if kind == prev.kind && value < prev.value {
		e.debugMu.Unlock()
		return
	}
	e.lastUse[h] = fenceUse{kind: kind, value: value}
	e.debugMu.Unlock()
}

// checkRelease warns when a handle is released while a fence value that may
// still cover its use has not retired.
func (e *Engine) checkRelease(h Handle) {
	if e.lastUse == nil {
		return
	}
	e.debugMu.Lock()
	use, ok := e.lastUse[h]
	delete(e.lastUse, h)
	e.debugMu.Unlock()

	if ok && use.value > e.sync.RetiredValue(use.kind) {
		logger().Warn("rhi: releasing handle with unretired fence",
			"handle", fmt.Sprintf("%#x", uint64(h)),
			"queue", use.kind.String(),
			"value", use.value)
	}
}

// WaitIdle signals every timeline and blocks until all three retire, i.e.
// until the GPU has drained all work submitted through the engine. The wait
// is bounded by the configured timeout.
func (e *Engine) WaitIdle() error {
	for kind := QueueKind(0); kind < queueKindCount; kind++ {
		value, err := e.sync.Signal(kind)
		if err != nil {
			return err
		}
		if err := e.sync.WaitCPU(kind, value, 0); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the GPU, then tears the engine down in reverse dependency
// order. Close is idempotent. A drain failure is logged and teardown
// proceeds; on a lost device there is nothing better to do.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if werr := e.WaitIdle(); werr != nil {
			logger().Warn("rhi: close without clean drain", "err", werr)
			err = werr
		}
		e.staging.Close()
		e.registry.Close()
		e.sync.Close()
		logger().Info("rhi: engine down")
	})
	return err
}
