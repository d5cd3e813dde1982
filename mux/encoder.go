package mux

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/dualcam/limits"
	"github.com/opd-ai/dualcam/video"
)

// Packet is one encoded media sample ready for a container.
type Packet struct {
	Data []byte

	// PTS is the presentation timestamp relative to the writer's
	// anchor. The writer fills it in after rebasing.
	PTS time.Duration

	// Keyframe marks a sample decodable without predecessors.
	Keyframe bool
}

// VideoEncoder turns raw frames into container-ready packets.
//
// Implementations back onto whatever codec the session is configured
// for; the writer only relies on the backpressure contract: Ready
// reports whether the encoder can accept a frame right now, and a
// not-ready encoder causes the frame to be dropped, never queued.
type VideoEncoder interface {
	// Encode converts one frame into an encoded packet.
	Encode(frame *video.Frame) (Packet, error)

	// Ready reports whether the encoder can accept another frame.
	Ready() bool

	// Close flushes and releases encoder resources.
	Close() error
}

// AudioEncoder turns PCM batches into container-ready packets, with
// the same backpressure contract as VideoEncoder.
type AudioEncoder interface {
	Encode(pcm []int16) (Packet, error)
	Ready() bool
	Close() error
}

// RawVideoEncoder packs frames without compression.
//
// Packet format: [format:1][width:2][height:2] followed by the planes
// tightly packed, little-endian dimensions. I420 carries Y, U, V; NV12
// carries Y then the interleaved UV plane, byte-identical to what the
// camera delivered. Every packet is a keyframe. This is the
// passthrough encoder for the per-camera outputs, preserving the
// original streams untouched, and the default until a hardware codec
// is injected.
type RawVideoEncoder struct{}

// NewRawVideoEncoder creates a passthrough video encoder.
func NewRawVideoEncoder() *RawVideoEncoder {
	return &RawVideoEncoder{}
}

// Encode packs the frame's planes into a single packet.
func (e *RawVideoEncoder) Encode(frame *video.Frame) (Packet, error) {
	if frame == nil {
		return Packet{}, fmt.Errorf("frame cannot be nil")
	}
	if err := frame.Validate(); err != nil {
		return Packet{}, fmt.Errorf("invalid frame: %w", err)
	}

	ySize, chromaSize := video.PlaneSizes(frame.Width, frame.Height)
	data := make([]byte, 5+ySize+2*chromaSize)
	data[0] = byte(frame.Format)
	data[1] = byte(frame.Width)
	data[2] = byte(frame.Width >> 8)
	data[3] = byte(frame.Height)
	data[4] = byte(frame.Height >> 8)

	offset := 5
	offset += packPlane(data[offset:], frame.Y, frame.YStride, frame.Width, frame.Height)
	switch frame.Format {
	case video.FormatI420:
		offset += packPlane(data[offset:], frame.U, frame.UStride, frame.Width/2, frame.Height/2)
		packPlane(data[offset:], frame.V, frame.VStride, frame.Width/2, frame.Height/2)
	case video.FormatNV12:
		// One interleaved UV plane: width bytes per row, half height.
		packPlane(data[offset:], frame.U, frame.UStride, frame.Width, frame.Height/2)
	default:
		return Packet{}, fmt.Errorf("unsupported pixel format: %s", frame.Format)
	}

	return Packet{Data: data, Keyframe: true}, nil
}

// Ready always reports true: packing is pure memory work.
func (e *RawVideoEncoder) Ready() bool { return true }

// Close is a no-op for the stateless passthrough encoder.
func (e *RawVideoEncoder) Close() error { return nil }

// packPlane copies a possibly strided plane into dst tightly packed,
// returning the bytes written.
func packPlane(dst, src []byte, stride, width, height int) int {
	written := 0
	for row := 0; row < height; row++ {
		copy(dst[written:written+width], src[row*stride:row*stride+width])
		written += width
	}
	return written
}

// RawPCMEncoder packs int16 PCM batches as little-endian bytes.
type RawPCMEncoder struct{}

// NewRawPCMEncoder creates a passthrough audio encoder.
func NewRawPCMEncoder() *RawPCMEncoder {
	return &RawPCMEncoder{}
}

// Encode packs the samples into one packet.
func (e *RawPCMEncoder) Encode(pcm []int16) (Packet, error) {
	if err := limits.ValidateAudioBatch(pcm); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Encode",
			"samples":  len(pcm),
			"error":    err.Error(),
		}).Error("Audio batch validation failed")
		return Packet{}, err
	}

	data := make([]byte, 2*len(pcm))
	for i, sample := range pcm {
		data[2*i] = byte(sample)
		data[2*i+1] = byte(uint16(sample) >> 8)
	}
	return Packet{Data: data, Keyframe: true}, nil
}

// Ready always reports true.
func (e *RawPCMEncoder) Ready() bool { return true }

// Close is a no-op.
func (e *RawPCMEncoder) Close() error { return nil }
