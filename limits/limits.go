// Package limits provides centralized frame and audio size limits for the
// recording pipeline. This ensures consistent validation across different
// components of the system.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxFrameWidth is the widest frame the pipeline accepts (DCI 4K)
	// Frames wider than this are rejected before any buffer is allocated
	MaxFrameWidth = 4096

	// MaxFrameHeight is the tallest frame the pipeline accepts
	// This covers DCI 4K portrait captures (2160 landscape, rotated margin)
	MaxFrameHeight = 2304

	// MinFrameWidth is the narrowest frame the scaler can process
	// Below this size bilinear interpolation degrades to point sampling
	MinFrameWidth = 16

	// MinFrameHeight is the shortest frame the scaler can process
	MinFrameHeight = 16

	// MaxPlaneBytes is the absolute maximum for any single pixel plane
	// This prevents memory exhaustion from forged geometry (one 4:4:4 plane
	// at maximum geometry)
	MaxPlaneBytes = MaxFrameWidth * MaxFrameHeight

	// MaxAudioBatchSamples is the largest PCM batch a single append accepts
	// One second of 48kHz stereo; larger batches indicate a stalled producer
	MaxAudioBatchSamples = 48000 * 2
)

var (
	// ErrGeometryInvalid indicates a zero, negative, or odd frame dimension
	ErrGeometryInvalid = errors.New("invalid frame geometry")

	// ErrGeometryTooLarge indicates frame dimensions exceed the maximum size
	ErrGeometryTooLarge = errors.New("frame geometry too large")

	// ErrAudioBatchEmpty indicates an empty PCM batch was provided
	ErrAudioBatchEmpty = errors.New("empty audio batch")

	// ErrAudioBatchTooLarge indicates a PCM batch exceeds maximum size
	ErrAudioBatchTooLarge = errors.New("audio batch too large")
)

// ValidateGeometry validates frame dimensions against pipeline bounds.
// Dimensions must be even because 4:2:0 chroma subsampling stores one
// chroma sample per 2x2 luma block. Returns an error with context
// including the actual and maximum sizes.
func ValidateGeometry(width, height int) error {
	if width < MinFrameWidth || height < MinFrameHeight {
		return fmt.Errorf("%w: %dx%d below minimum %dx%d", ErrGeometryInvalid, width, height, MinFrameWidth, MinFrameHeight)
	}
	if width%2 != 0 || height%2 != 0 {
		return fmt.Errorf("%w: %dx%d has odd dimension", ErrGeometryInvalid, width, height)
	}
	if width > MaxFrameWidth || height > MaxFrameHeight {
		return fmt.Errorf("%w: %dx%d exceeds limit %dx%d", ErrGeometryTooLarge, width, height, MaxFrameWidth, MaxFrameHeight)
	}
	return nil
}

// ValidatePlane validates a pixel plane against the absolute maximum (MaxPlaneBytes).
// This limit prevents memory exhaustion and should be used for all untrusted input.
// Returns an error with context if the plane exceeds the limit.
func ValidatePlane(plane []byte) error {
	if len(plane) > MaxPlaneBytes {
		return fmt.Errorf("%w: plane size %d exceeds limit %d", ErrGeometryTooLarge, len(plane), MaxPlaneBytes)
	}
	return nil
}

// ValidateAudioBatch validates a PCM sample batch against MaxAudioBatchSamples.
// Returns an error with context if the batch is empty or exceeds the limit.
func ValidateAudioBatch(samples []int16) error {
	if len(samples) == 0 {
		return ErrAudioBatchEmpty
	}
	if len(samples) > MaxAudioBatchSamples {
		return fmt.Errorf("%w: %d samples exceeds limit %d", ErrAudioBatchTooLarge, len(samples), MaxAudioBatchSamples)
	}
	return nil
}
