package video

import (
	"fmt"

	"github.com/opd-ai/dualcam/limits"
)

// Scaler provides video frame scaling functionality.
//
// Implements YUV 4:2:0 frame scaling using bilinear interpolation for
// smooth resizing while maintaining color quality. Scaling writes into a
// caller-supplied destination frame so the hot path never allocates.
type Scaler struct {
	// No fields needed for stateless scaling operations
}

// NewScaler creates a new video frame scaler.
func NewScaler() *Scaler {
	return &Scaler{}
}

// Scale resizes an I420 frame into dst, whose dimensions define the target.
//
// Uses bilinear interpolation for high-quality scaling while maintaining
// the 4:2:0 format structure. Both destination dimensions must be even
// and at least 16 pixels to keep chroma subsampling and interpolation
// well-defined. Identical dimensions degrade to a plane copy.
func (s *Scaler) Scale(src, dst *Frame) error {
	if src == nil || dst == nil {
		return fmt.Errorf("source and destination frames cannot be nil")
	}
	if src.Format != FormatI420 || dst.Format != FormatI420 {
		return fmt.Errorf("scaling requires I420 frames: src=%s dst=%s", src.Format, dst.Format)
	}
	if dst.Width%2 != 0 || dst.Height%2 != 0 {
		return fmt.Errorf("target dimensions must be even for 4:2:0: %dx%d", dst.Width, dst.Height)
	}
	if dst.Width < limits.MinFrameWidth || dst.Height < limits.MinFrameHeight {
		return fmt.Errorf("target dimensions too small: %dx%d (minimum %dx%d)",
			dst.Width, dst.Height, limits.MinFrameWidth, limits.MinFrameHeight)
	}

	if src.Width == dst.Width && src.Height == dst.Height {
		return copyPlanes(src, dst)
	}

	err := s.scalePlane(src.Y, src.Width, src.Height, src.YStride,
		dst.Y, dst.Width, dst.Height, dst.YStride)
	if err != nil {
		return fmt.Errorf("failed to scale Y plane: %w", err)
	}

	err = s.scalePlane(src.U, src.Width/2, src.Height/2, src.UStride,
		dst.U, dst.Width/2, dst.Height/2, dst.UStride)
	if err != nil {
		return fmt.Errorf("failed to scale U plane: %w", err)
	}

	err = s.scalePlane(src.V, src.Width/2, src.Height/2, src.VStride,
		dst.V, dst.Width/2, dst.Height/2, dst.VStride)
	if err != nil {
		return fmt.Errorf("failed to scale V plane: %w", err)
	}

	return nil
}

// scalePlane scales a single plane using bilinear interpolation.
//
// This is an internal helper method that performs the actual pixel
// interpolation for individual Y, U, or V planes.
func (s *Scaler) scalePlane(src []byte, srcWidth, srcHeight, srcStride int,
	dst []byte, dstWidth, dstHeight, dstStride int) error {

	if len(src) < srcHeight*srcStride {
		return fmt.Errorf("source buffer too small: %d < %d", len(src), srcHeight*srcStride)
	}
	if len(dst) < dstHeight*dstStride {
		return fmt.Errorf("destination buffer too small: %d < %d", len(dst), dstHeight*dstStride)
	}

	xRatio := float64(srcWidth) / float64(dstWidth)
	yRatio := float64(srcHeight) / float64(dstHeight)

	for y := 0; y < dstHeight; y++ {
		srcY := float64(y) * yRatio
		y1 := int(srcY)
		y2 := y1 + 1
		if y2 >= srcHeight {
			y2 = srcHeight - 1
		}
		fy := srcY - float64(y1)

		for x := 0; x < dstWidth; x++ {
			srcX := float64(x) * xRatio
			x1 := int(srcX)
			x2 := x1 + 1
			if x2 >= srcWidth {
				x2 = srcWidth - 1
			}
			fx := srcX - float64(x1)

			p11 := float64(src[y1*srcStride+x1])
			p12 := float64(src[y1*srcStride+x2])
			p21 := float64(src[y2*srcStride+x1])
			p22 := float64(src[y2*srcStride+x2])

			top := p11*(1-fx) + p12*fx
			bottom := p21*(1-fx) + p22*fx
			pixel := top*(1-fy) + bottom*fy

			dst[y*dstStride+x] = byte(pixel + 0.5) // Round to nearest
		}
	}

	return nil
}

// IsScalingRequired checks if scaling is needed for given dimensions.
func (s *Scaler) IsScalingRequired(srcWidth, srcHeight, dstWidth, dstHeight int) bool {
	return srcWidth != dstWidth || srcHeight != dstHeight
}

// copyPlanes copies src into dst row by row, honoring both strides.
// Dimensions must already match.
func copyPlanes(src, dst *Frame) error {
	if err := src.Validate(); err != nil {
		return fmt.Errorf("invalid source frame: %w", err)
	}
	if err := dst.Validate(); err != nil {
		return fmt.Errorf("invalid destination frame: %w", err)
	}
	copyPlane(src.Y, src.YStride, dst.Y, dst.YStride, src.Width, src.Height)
	copyPlane(src.U, src.UStride, dst.U, dst.UStride, src.Width/2, src.Height/2)
	copyPlane(src.V, src.VStride, dst.V, dst.VStride, src.Width/2, src.Height/2)
	return nil
}

func copyPlane(src []byte, srcStride int, dst []byte, dstStride, width, height int) {
	for row := 0; row < height; row++ {
		copy(dst[row*dstStride:row*dstStride+width], src[row*srcStride:row*srcStride+width])
	}
}

// Blit copies src onto dst with its top-left corner at (x, y).
//
// Both frames must be I420 and the offsets must be even so chroma blocks
// stay aligned. The source must fit entirely inside the destination;
// callers compute placement rectangles with FitRect.
func Blit(dst, src *Frame, x, y int) error {
	if src == nil || dst == nil {
		return fmt.Errorf("source and destination frames cannot be nil")
	}
	if src.Format != FormatI420 || dst.Format != FormatI420 {
		return fmt.Errorf("blit requires I420 frames: src=%s dst=%s", src.Format, dst.Format)
	}
	if x%2 != 0 || y%2 != 0 {
		return fmt.Errorf("blit offset must be even for 4:2:0: (%d,%d)", x, y)
	}
	if x < 0 || y < 0 || x+src.Width > dst.Width || y+src.Height > dst.Height {
		return fmt.Errorf("blit out of bounds: %dx%d at (%d,%d) into %dx%d",
			src.Width, src.Height, x, y, dst.Width, dst.Height)
	}

	for row := 0; row < src.Height; row++ {
		dstOff := (y+row)*dst.YStride + x
		srcOff := row * src.YStride
		copy(dst.Y[dstOff:dstOff+src.Width], src.Y[srcOff:srcOff+src.Width])
	}

	chromaWidth := src.Width / 2
	chromaHeight := src.Height / 2
	cx := x / 2
	cy := y / 2
	for row := 0; row < chromaHeight; row++ {
		dstOff := (cy+row)*dst.UStride + cx
		srcOff := row * src.UStride
		copy(dst.U[dstOff:dstOff+chromaWidth], src.U[srcOff:srcOff+chromaWidth])

		dstOff = (cy+row)*dst.VStride + cx
		srcOff = row * src.VStride
		copy(dst.V[dstOff:dstOff+chromaWidth], src.V[srcOff:srcOff+chromaWidth])
	}

	return nil
}

// FitRect returns the largest even-dimension rectangle with the source's
// aspect ratio that fits within the given bounds, centered.
//
// Results are clamped to the scaler minimum, so degenerate aspect ratios
// accept slight distortion rather than collapsing to zero.
func FitRect(srcWidth, srcHeight, boundWidth, boundHeight int) (x, y, width, height int) {
	if srcWidth <= 0 || srcHeight <= 0 || boundWidth <= 0 || boundHeight <= 0 {
		return 0, 0, 0, 0
	}

	width = boundWidth
	height = boundWidth * srcHeight / srcWidth
	if height > boundHeight {
		height = boundHeight
		width = boundHeight * srcWidth / srcHeight
	}

	width = clampEven(width, limits.MinFrameWidth, boundWidth)
	height = clampEven(height, limits.MinFrameHeight, boundHeight)

	x = evenFloor((boundWidth - width) / 2)
	y = evenFloor((boundHeight - height) / 2)
	return x, y, width, height
}

func clampEven(v, min, max int) int {
	v = evenFloor(v)
	if v < min {
		v = min
	}
	if v > max {
		v = evenFloor(max)
	}
	return v
}

func evenFloor(v int) int {
	return v &^ 1
}
