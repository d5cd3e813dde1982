package video

import (
	"fmt"
	"time"

	"github.com/opd-ai/dualcam/limits"
)

// PixelFormat identifies the memory layout of a Frame's pixel data.
type PixelFormat uint8

const (
	// FormatI420 is planar 4:2:0 YUV with separate U and V planes.
	// All composed and encoded frames use this layout.
	FormatI420 PixelFormat = iota

	// FormatNV12 is biplanar 4:2:0 YUV with a full Y plane followed by
	// interleaved UV. This is the typical device capture delivery format.
	FormatNV12
)

// String returns a human-readable name for the pixel format.
func (f PixelFormat) String() string {
	switch f {
	case FormatI420:
		return "i420"
	case FormatNV12:
		return "nv12"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(f))
	}
}

// Source tags which camera position produced a frame.
type Source uint8

const (
	// SourceFront is the front (selfie) camera.
	SourceFront Source = iota
	// SourceBack is the back (world-facing) camera.
	SourceBack
	// SourceComposed marks frames produced by the compositor.
	SourceComposed
)

// String returns a human-readable name for the frame source.
func (s Source) String() string {
	switch s {
	case SourceFront:
		return "front"
	case SourceBack:
		return "back"
	case SourceComposed:
		return "composed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Luma and chroma constants for limited-range (video range) YUV.
const (
	// BlackY is the luma value of video-range black.
	BlackY = 16
	// WhiteY is the luma value of video-range white.
	WhiteY = 235
	// NeutralChroma is the chroma value of a colorless pixel.
	NeutralChroma = 128
)

// Frame represents a single video frame in YUV 4:2:0 format.
//
// For FormatI420 the Y, U, and V slices hold the three planes with their
// respective strides. For FormatNV12 the U slice holds the interleaved UV
// plane and V is nil.
//
// Frames are plain data. Ownership moves with the frame: the stage holding
// a frame either passes it on or returns it to the pool that allocated it.
type Frame struct {
	Width  int
	Height int
	Format PixelFormat

	Y []byte // Luminance plane
	U []byte // Chrominance U plane (interleaved UV for NV12)
	V []byte // Chrominance V plane (nil for NV12)

	YStride int // Stride for Y plane
	UStride int // Stride for U plane
	VStride int // Stride for V plane

	// PTS is the capture presentation timestamp on the session's
	// monotonic clock.
	PTS time.Duration

	// Source identifies which camera produced the frame.
	Source Source
}

// PlaneSizes returns the byte sizes of the luma plane and of one chroma
// plane for a tightly packed 4:2:0 frame of the given dimensions.
func PlaneSizes(width, height int) (ySize, chromaSize int) {
	ySize = width * height
	chromaSize = (width / 2) * (height / 2)
	return ySize, chromaSize
}

// NewFrame allocates a frame with tightly packed strides.
//
// Dimensions are validated against the pipeline geometry limits. This is
// the only place frames are allocated; steady-state operation recycles
// frames through the buffer pool instead.
func NewFrame(width, height int, format PixelFormat) (*Frame, error) {
	if err := limits.ValidateGeometry(width, height); err != nil {
		return nil, err
	}

	ySize, chromaSize := PlaneSizes(width, height)
	frame := &Frame{
		Width:   width,
		Height:  height,
		Format:  format,
		Y:       make([]byte, ySize),
		YStride: width,
	}

	switch format {
	case FormatI420:
		frame.U = make([]byte, chromaSize)
		frame.V = make([]byte, chromaSize)
		frame.UStride = width / 2
		frame.VStride = width / 2
	case FormatNV12:
		frame.U = make([]byte, 2*chromaSize)
		frame.UStride = width
	default:
		return nil, fmt.Errorf("unsupported pixel format: %s", format)
	}

	return frame, nil
}

// Validate checks that the frame's plane sizes and strides are consistent
// with its declared geometry and format.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("frame cannot be nil")
	}
	if err := limits.ValidateGeometry(f.Width, f.Height); err != nil {
		return err
	}

	if f.YStride < f.Width {
		return fmt.Errorf("Y stride %d below width %d", f.YStride, f.Width)
	}
	if len(f.Y) < f.YStride*f.Height {
		return fmt.Errorf("Y plane too small: got %d, expected %d", len(f.Y), f.YStride*f.Height)
	}
	if err := limits.ValidatePlane(f.Y); err != nil {
		return err
	}

	chromaHeight := f.Height / 2
	switch f.Format {
	case FormatI420:
		chromaWidth := f.Width / 2
		if f.UStride < chromaWidth || f.VStride < chromaWidth {
			return fmt.Errorf("chroma stride below width %d: U=%d V=%d", chromaWidth, f.UStride, f.VStride)
		}
		if len(f.U) < f.UStride*chromaHeight {
			return fmt.Errorf("U plane too small: got %d, expected %d", len(f.U), f.UStride*chromaHeight)
		}
		if len(f.V) < f.VStride*chromaHeight {
			return fmt.Errorf("V plane too small: got %d, expected %d", len(f.V), f.VStride*chromaHeight)
		}
	case FormatNV12:
		if f.UStride < f.Width {
			return fmt.Errorf("UV stride %d below width %d", f.UStride, f.Width)
		}
		if len(f.U) < f.UStride*chromaHeight {
			return fmt.Errorf("UV plane too small: got %d, expected %d", len(f.U), f.UStride*chromaHeight)
		}
	default:
		return fmt.Errorf("unsupported pixel format: %s", f.Format)
	}

	return nil
}

// Clone returns a deep copy of the frame with its own plane storage.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	clone := *f
	clone.Y = append([]byte(nil), f.Y...)
	clone.U = append([]byte(nil), f.U...)
	clone.V = append([]byte(nil), f.V...)
	return &clone
}

// Fill sets every pixel of an I420 frame to the given YUV value.
func (f *Frame) Fill(y, u, v byte) error {
	if f.Format != FormatI420 {
		return fmt.Errorf("fill requires I420, got %s", f.Format)
	}
	fillPlane(f.Y, f.Width, f.Height, f.YStride, y)
	fillPlane(f.U, f.Width/2, f.Height/2, f.UStride, u)
	fillPlane(f.V, f.Width/2, f.Height/2, f.VStride, v)
	return nil
}

// FillBlack sets an I420 frame to video-range black.
func (f *Frame) FillBlack() error {
	return f.Fill(BlackY, NeutralChroma, NeutralChroma)
}

func fillPlane(plane []byte, width, height, stride int, value byte) {
	for row := 0; row < height; row++ {
		line := plane[row*stride : row*stride+width]
		for i := range line {
			line[i] = value
		}
	}
}
