package compositor

import (
	"errors"
	"fmt"

	"github.com/opd-ai/dualcam/video"
)

var (
	// ErrInvalidLayout indicates a layout descriptor whose parameters
	// cannot produce a valid composition for the current output geometry.
	// This is a recoverable configuration error: the call is rejected and
	// the pipeline keeps running with its previous layout.
	ErrInvalidLayout = errors.New("invalid layout")
)

// Mode selects how the two camera images share the composed frame.
type Mode uint8

const (
	// ModeSideBySide splits the frame into equal left and right halves,
	// front camera left, back camera right.
	ModeSideBySide Mode = iota

	// ModePictureInPicture fills the frame with the front camera and
	// overlays a scaled back-camera inset in one corner.
	ModePictureInPicture

	// ModePrimarySecondary splits the frame at a configurable ratio,
	// primary camera left, the other camera right.
	ModePrimarySecondary
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeSideBySide:
		return "side_by_side"
	case ModePictureInPicture:
		return "picture_in_picture"
	case ModePrimarySecondary:
		return "primary_secondary"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// Corner positions the picture-in-picture inset.
type Corner uint8

const (
	// CornerTopLeft places the inset at the top left.
	CornerTopLeft Corner = iota
	// CornerTopRight places the inset at the top right.
	CornerTopRight
	// CornerBottomLeft places the inset at the bottom left.
	CornerBottomLeft
	// CornerBottomRight places the inset at the bottom right.
	CornerBottomRight
)

// String returns a human-readable corner name.
func (c Corner) String() string {
	switch c {
	case CornerTopLeft:
		return "top_left"
	case CornerTopRight:
		return "top_right"
	case CornerBottomLeft:
		return "bottom_left"
	case CornerBottomRight:
		return "bottom_right"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// Inset geometry bounds for picture-in-picture layouts.
const (
	// MinInsetScale is the smallest inset fraction that still leaves a
	// recognizable image after 4:2:0 rounding.
	MinInsetScale = 0.1

	// MaxInsetScale keeps the inset from covering most of the primary
	// image.
	MaxInsetScale = 0.5

	// insetMargin is the distance in pixels from the inset border to the
	// frame edge. Even, so chroma blocks stay aligned.
	insetMargin = 16

	// insetBorder is the border thickness drawn around the inset, in
	// pixels. Even, so chroma blocks stay aligned.
	insetBorder = 4
)

// Split ratio bounds for primary/secondary layouts.
const (
	// MinSplitRatio is the smallest share of the width the primary image
	// may occupy.
	MinSplitRatio = 0.25

	// MaxSplitRatio is the largest share of the width the primary image
	// may occupy.
	MaxSplitRatio = 0.75
)

// Layout describes how a synchronized pair is arranged on the composed
// frame. Layouts are immutable values; the pipeline only swaps them at
// segment boundaries, never mid-frame.
type Layout struct {
	Mode Mode

	// Corner positions the inset. Picture-in-picture only.
	Corner Corner

	// InsetScale is the inset's width as a fraction of the output width.
	// Picture-in-picture only.
	InsetScale float64

	// Primary selects which camera fills the larger cell.
	// Primary/secondary only.
	Primary video.Source

	// Ratio is the primary cell's share of the output width.
	// Primary/secondary only.
	Ratio float64
}

// SideBySide returns the equal-split layout.
func SideBySide() Layout {
	return Layout{Mode: ModeSideBySide}
}

// PictureInPicture returns a layout with the back camera inset over the
// front camera at the given corner and scale fraction.
func PictureInPicture(corner Corner, scale float64) Layout {
	return Layout{Mode: ModePictureInPicture, Corner: corner, InsetScale: scale}
}

// PrimarySecondary returns an unequal split with the primary camera
// occupying ratio of the output width.
func PrimarySecondary(primary video.Source, ratio float64) Layout {
	return Layout{Mode: ModePrimarySecondary, Primary: primary, Ratio: ratio}
}

// Validate checks the layout against an output geometry. Geometry must
// already satisfy the pipeline limits; Validate only checks that the
// layout's own parameters carve cells the scaler can fill.
func (l Layout) Validate(outputWidth, outputHeight int) error {
	switch l.Mode {
	case ModeSideBySide:
		return nil

	case ModePictureInPicture:
		if l.InsetScale < MinInsetScale || l.InsetScale > MaxInsetScale {
			return fmt.Errorf("%w: inset scale %.2f outside [%.2f, %.2f]",
				ErrInvalidLayout, l.InsetScale, MinInsetScale, MaxInsetScale)
		}
		if l.Corner > CornerBottomRight {
			return fmt.Errorf("%w: corner %s", ErrInvalidLayout, l.Corner)
		}
		insetW := int(float64(outputWidth) * l.InsetScale)
		if insetW < 2*insetMargin {
			return fmt.Errorf("%w: inset %dpx too small for %dpx output",
				ErrInvalidLayout, insetW, outputWidth)
		}
		return nil

	case ModePrimarySecondary:
		if l.Primary != video.SourceFront && l.Primary != video.SourceBack {
			return fmt.Errorf("%w: primary must be a camera source, got %s",
				ErrInvalidLayout, l.Primary)
		}
		if l.Ratio < MinSplitRatio || l.Ratio > MaxSplitRatio {
			return fmt.Errorf("%w: split ratio %.2f outside [%.2f, %.2f]",
				ErrInvalidLayout, l.Ratio, MinSplitRatio, MaxSplitRatio)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidLayout, uint8(l.Mode))
	}
}

// String returns a compact description for logs and events.
func (l Layout) String() string {
	switch l.Mode {
	case ModePictureInPicture:
		return fmt.Sprintf("%s(%s, %.2f)", l.Mode, l.Corner, l.InsetScale)
	case ModePrimarySecondary:
		return fmt.Sprintf("%s(%s, %.2f)", l.Mode, l.Primary, l.Ratio)
	default:
		return l.Mode.String()
	}
}
