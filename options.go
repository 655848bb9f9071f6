package rhi

import (
	"fmt"
	"time"
)

// Default engine configuration.
const (
	// DefaultFramesInFlight is the number of frame slots rotated by the
	// frame pipeline. Two slots let the CPU record frame N+1 while the GPU
	// finishes frame N.
	DefaultFramesInFlight = 2

	// MaxFramesInFlight bounds the slot count; deeper pipelines only add
	// latency.
	MaxFramesInFlight = 4

	// DefaultStagingSize is the size in bytes of the staging upload ring.
	DefaultStagingSize = 16 << 20

	// DefaultWaitTimeout bounds fence waits so a hung device surfaces as a
	// reportable condition instead of a frozen process.
	DefaultWaitTimeout = 5 * time.Second

	// stagingAlign is the default placement alignment for staged data.
	stagingAlign = 256
)

// Option configures an Engine during creation.
//
// Example:
//
//	engine, err := rhi.New(device, gfx, cmp, cpy,
//	    rhi.WithFramesInFlight(3),
//	    rhi.WithStagingSize(32<<20))
type Option func(*engineOptions)

// engineOptions holds optional configuration for Engine creation.
type engineOptions struct {
	framesInFlight int
	stagingSize    uint64
	waitTimeout    time.Duration
	label          string
	debugChecks    bool
}

// defaultEngineOptions returns the default engine options.
func defaultEngineOptions() engineOptions {
	return engineOptions{
		framesInFlight: DefaultFramesInFlight,
		stagingSize:    DefaultStagingSize,
		waitTimeout:    DefaultWaitTimeout,
		label:          "rhi",
	}
}

// validate reports the first configuration error, if any.
func (o *engineOptions) validate() error {
	if o.framesInFlight < 1 || o.framesInFlight > MaxFramesInFlight {
		return fmt.Errorf("rhi: frames in flight must be in [1, %d], got %d",
			MaxFramesInFlight, o.framesInFlight)
	}
	if o.stagingSize == 0 {
		return fmt.Errorf("rhi: staging size must be positive")
	}
	if o.waitTimeout <= 0 {
		return fmt.Errorf("rhi: wait timeout must be positive, got %v", o.waitTimeout)
	}
	return nil
}

// WithFramesInFlight sets the number of rotating frame slots. One is a
// legitimate, if slow, configuration: every frame then blocks on full GPU
// completion of the previous one.
func WithFramesInFlight(n int) Option {
	return func(o *engineOptions) {
		o.framesInFlight = n
	}
}

// WithStagingSize sets the staging upload ring capacity in bytes. A single
// staged allocation can never exceed this size.
func WithStagingSize(bytes uint64) Option {
	return func(o *engineOptions) {
		o.stagingSize = bytes
	}
}

// WithWaitTimeout sets the default bound applied to fence waits that did not
// specify their own. When the bound is exceeded the wait fails with
// [ErrWaitTimeout] instead of hanging the process.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *engineOptions) {
		o.waitTimeout = d
	}
}

// WithLabel sets the debug label prefix used for command encoders and the
// staging buffer.
func WithLabel(label string) Option {
	return func(o *engineOptions) {
		o.label = label
	}
}

// WithDebugChecks enables the optional release-validation layer: the engine
// remembers the last fence value associated with each handle at submission
// time and logs a warning when a handle is released before that value has
// retired. It never turns the precondition into a runtime failure.
func WithDebugChecks(enabled bool) Option {
	return func(o *engineOptions) {
		o.debugChecks = enabled
	}
}
