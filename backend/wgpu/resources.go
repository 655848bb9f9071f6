package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi"
	"github.com/gogpu/wgpu/hal"

	types "github.com/gogpu/gputypes"
)

// BufferUsage describes how a buffer created through the adapter will be
// used.
type BufferUsage uint32

const (
	BufferUsageMapRead BufferUsage = 1 << iota
	BufferUsageMapWrite
	BufferUsageCopySrc
	BufferUsageCopyDst
	BufferUsageIndex
	BufferUsageVertex
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndirect
)

// CreateBuffer creates a GPU buffer. Register the result with the engine's
// registry to obtain a handle; the registry then owns its destruction.
func (a *Adapter) CreateBuffer(label string, size uint64, usage BufferUsage) (rhi.Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("wgpu: buffer size must be positive")
	}

	raw, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: convertBufferUsage(usage),
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create buffer %q: %w", label, err)
	}
	return &buffer{raw: raw, device: a.device}, nil
}

// CreateTexture creates a 2D GPU texture that can receive staged uploads and
// be sampled or bound for storage.
func (a *Adapter) CreateTexture(label string, width, height uint32, format gputypes.TextureFormat) (rhi.Texture, error) {
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("wgpu: texture dimensions must be positive, got %dx%d", width, height)
	}

	halFormat := convertTextureFormat(format)
	raw, err := a.device.CreateTexture(&hal.TextureDescriptor{
		Label: label,
		Size: hal.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     types.TextureDimension2D,
		Format:        halFormat,
		Usage:         types.TextureUsageCopySrc | types.TextureUsageCopyDst | types.TextureUsageTextureBinding,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create texture %q: %w", label, err)
	}
	return &texture{
		raw:    raw,
		device: a.device,
		width:  width,
		height: height,
		format: halFormat,
	}, nil
}

func convertBufferUsage(usage BufferUsage) types.BufferUsage {
	var result types.BufferUsage

	if usage&BufferUsageMapRead != 0 {
		result |= types.BufferUsageMapRead
	}
	if usage&BufferUsageMapWrite != 0 {
		result |= types.BufferUsageMapWrite
	}
	if usage&BufferUsageCopySrc != 0 {
		result |= types.BufferUsageCopySrc
	}
	if usage&BufferUsageCopyDst != 0 {
		result |= types.BufferUsageCopyDst
	}
	if usage&BufferUsageIndex != 0 {
		result |= types.BufferUsageIndex
	}
	if usage&BufferUsageVertex != 0 {
		result |= types.BufferUsageVertex
	}
	if usage&BufferUsageUniform != 0 {
		result |= types.BufferUsageUniform
	}
	if usage&BufferUsageStorage != 0 {
		result |= types.BufferUsageStorage
	}
	if usage&BufferUsageIndirect != 0 {
		result |= types.BufferUsageIndirect
	}

	return result
}

func convertTextureFormat(format gputypes.TextureFormat) types.TextureFormat {
	switch format {
	case gputypes.TextureFormatRGBA8Unorm:
		return types.TextureFormatRGBA8Unorm
	case gputypes.TextureFormatBGRA8Unorm:
		return types.TextureFormatBGRA8Unorm
	default:
		return types.TextureFormatRGBA8Unorm
	}
}
