package rhi

import "errors"

// Package errors for the resource-and-synchronization core.
//
// The error kinds are deliberately distinct so the embedding layer can tell
// a recoverable miss from a configuration mistake from a dead device:
// [ErrNotFound] is routine and safe to ignore during teardown races,
// [ErrCapacityExceeded] means the engine was configured too small, and
// [ErrDeviceLost]/[ErrWaitTimeout] are fatal to the session.
var (
	// ErrNotFound is returned when a handle is unknown or was already
	// released. It is recoverable and causes no state corruption.
	ErrNotFound = errors.New("rhi: handle not found")

	// ErrCapacityExceeded is returned when a staging request can never be
	// satisfied, e.g. an allocation larger than the whole ring. This is a
	// configuration error, not a transient condition.
	ErrCapacityExceeded = errors.New("rhi: staging capacity exceeded")

	// ErrWaitTimeout is returned when a fence wait did not complete within
	// its bound. The device should be treated as unresponsive.
	ErrWaitTimeout = errors.New("rhi: fence wait timed out")

	// ErrDeviceLost is returned when the backend reports the device gone.
	// Fatal to the current session; recovery belongs to the embedding layer.
	ErrDeviceLost = errors.New("rhi: device lost")

	// ErrFrameBusy is returned when Begin is called while the current frame
	// slot still has an unmatched Begin/End pair.
	ErrFrameBusy = errors.New("rhi: frame already recording")

	// ErrFrameNotRecording is returned when End is called without a
	// preceding Begin.
	ErrFrameNotRecording = errors.New("rhi: no frame recording")

	// ErrClosed is returned when operating on a component after Close.
	ErrClosed = errors.New("rhi: closed")
)
