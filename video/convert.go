package video

import "fmt"

// ToI420 converts src into dst, which must be a preallocated I420 frame
// with the same dimensions.
//
// I420 input is copied plane by plane. NV12 input has its interleaved UV
// plane split into separate U and V planes. Conversion writes into a
// caller-supplied destination so the hot path never allocates; the
// compositor feeds scratch surfaces from its cache here.
func ToI420(src, dst *Frame) error {
	if src == nil || dst == nil {
		return fmt.Errorf("source and destination frames cannot be nil")
	}
	if dst.Format != FormatI420 {
		return fmt.Errorf("destination must be I420, got %s", dst.Format)
	}
	if src.Width != dst.Width || src.Height != dst.Height {
		return fmt.Errorf("dimension mismatch: src %dx%d, dst %dx%d",
			src.Width, src.Height, dst.Width, dst.Height)
	}
	if err := src.Validate(); err != nil {
		return fmt.Errorf("invalid source frame: %w", err)
	}
	if err := dst.Validate(); err != nil {
		return fmt.Errorf("invalid destination frame: %w", err)
	}

	switch src.Format {
	case FormatI420:
		copyPlane(src.Y, src.YStride, dst.Y, dst.YStride, src.Width, src.Height)
		copyPlane(src.U, src.UStride, dst.U, dst.UStride, src.Width/2, src.Height/2)
		copyPlane(src.V, src.VStride, dst.V, dst.VStride, src.Width/2, src.Height/2)
	case FormatNV12:
		copyPlane(src.Y, src.YStride, dst.Y, dst.YStride, src.Width, src.Height)
		deinterleaveChroma(src, dst)
	default:
		return fmt.Errorf("unsupported source format: %s", src.Format)
	}

	dst.PTS = src.PTS
	dst.Source = src.Source
	return nil
}

// deinterleaveChroma splits an NV12 UV plane into I420 U and V planes.
func deinterleaveChroma(src, dst *Frame) {
	chromaWidth := src.Width / 2
	chromaHeight := src.Height / 2
	for row := 0; row < chromaHeight; row++ {
		uv := src.U[row*src.UStride:]
		u := dst.U[row*dst.UStride:]
		v := dst.V[row*dst.VStride:]
		for col := 0; col < chromaWidth; col++ {
			u[col] = uv[2*col]
			v[col] = uv[2*col+1]
		}
	}
}
