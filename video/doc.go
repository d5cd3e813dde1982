// Package video provides the frame model and pixel operations for the
// dual-camera pipeline.
//
// This package handles frame representation, format conversion, scaling,
// and compositing primitives for YUV 4:2:0 video. It integrates with the
// buffer pool and compositor to keep the capture-to-encode path free of
// per-frame allocations.
//
// The video data flow:
//
//	Capture (NV12/I420) -> Conversion -> Scaling -> Compositing -> Encoding
//
// All composed output is normalized to I420 (three separate planes). NV12
// input (the typical device delivery format, with interleaved chroma) is
// converted on the way in.
package video
