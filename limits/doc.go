// Package limits provides centralized size constants and validation functions
// for the recording pipeline. This package ensures consistent size enforcement
// across all components of the dualcam implementation.
//
// # Frame Geometry Bounds
//
// The package defines the geometry envelope every video frame must fit before
// any buffer is allocated for it:
//
//   - MaxFrameWidth / MaxFrameHeight (4096x2304): The largest frame the
//     pipeline accepts, covering DCI 4K capture in either orientation.
//
//   - MinFrameWidth / MinFrameHeight (16x16): The smallest frame the bilinear
//     scaler can process without degrading to point sampling.
//
//   - Even dimensions: 4:2:0 chroma subsampling stores one chroma sample per
//     2x2 luma block, so odd dimensions are rejected outright.
//
//   - MaxPlaneBytes: The absolute maximum for any single pixel plane. This
//     prevents memory exhaustion from forged geometry metadata.
//
// # Audio Bounds
//
//   - MaxAudioBatchSamples: The largest PCM batch a single append accepts
//     (one second of 48kHz stereo). Larger batches indicate a stalled
//     producer, not real-time capture.
//
// # Validation Functions
//
// Each validation function reports bound violations with context:
//
//	err := limits.ValidateGeometry(width, height)
//	if err != nil {
//	    // Handle validation error (ErrGeometryInvalid or ErrGeometryTooLarge)
//	}
//
// # Error Types
//
// The package provides structured errors with context:
//
//   - ErrGeometryInvalid: Returned for zero, negative, odd, or sub-minimum dimensions
//   - ErrGeometryTooLarge: Returned when dimensions or plane sizes exceed the maximum
//   - ErrAudioBatchEmpty: Returned when an empty or nil PCM batch is provided
//   - ErrAudioBatchTooLarge: Returned when a PCM batch exceeds the limit
//
// # Memory Safety Considerations
//
// The MaxPlaneBytes limit provides defense against memory exhaustion when
// frame geometry arrives from an external capture source. All externally
// supplied frames should be validated against these limits before further
// processing.
package limits
