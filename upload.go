package rhi

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// UploadBuffer stages data in the upload ring and records the copy into the
// destination buffer at dstOffset on the copy queue. It returns the
// copy-timeline fence value covering the transfer; pass it to
// [Synchronizer.WaitGPU] before dependent graphics or compute work reads the
// buffer.
//
// The call may block while the ring waits for older uploads to retire.
func (e *Engine) UploadBuffer(dst Handle, dstOffset uint64, data []byte) (uint64, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("rhi: upload of zero bytes")
	}

	staged, ringOffset, err := e.staging.Allocate(uint64(len(data)), stagingAlign)
	if err != nil {
		return 0, err
	}
	copy(staged, data)

	return e.staging.RecordCopyAndRelease(dst, ringOffset, uint64(len(data)), dstOffset)
}

// UploadImage stages the pixels of img and records the copy into the
// destination texture, which must be width x height in an 8-bit RGBA format.
// Non-RGBA source images are converted on the CPU first. It returns the
// copy-timeline fence value covering the transfer.
func (e *Engine) UploadImage(dst Handle, img image.Image) (uint64, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("rhi: upload of empty image %dx%d", width, height)
	}

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != width*4 {
		converted := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.Draw(converted, converted.Bounds(), img, bounds.Min, draw.Src)
		rgba = converted
	}

	bytesPerRow := uint32(width * 4)
	size := uint64(bytesPerRow) * uint64(height)

	staged, ringOffset, err := e.staging.Allocate(size, stagingAlign)
	if err != nil {
		return 0, err
	}
	copy(staged, rgba.Pix[:size])

	return e.staging.RecordTextureCopyAndRelease(dst, ringOffset, bytesPerRow, uint32(width), uint32(height))
}
