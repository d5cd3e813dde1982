package compositor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/dualcam/framesync"
	"github.com/opd-ai/dualcam/limits"
	"github.com/opd-ai/dualcam/quality"
	"github.com/opd-ai/dualcam/video"
)

// FramePool is the buffer source for composed output frames. Satisfied
// by bufferpool.Pool.
type FramePool interface {
	Acquire(width, height int, format video.PixelFormat) (*video.Frame, error)
	Release(frame *video.Frame)
}

// Config holds composition parameters.
type Config struct {
	// OutputWidth and OutputHeight define the full-quality composed
	// geometry. The quality governor's scale shrinks it at render time.
	OutputWidth  int
	OutputHeight int

	// FrameInterval is the render deadline. A compose that cannot claim
	// a render slot within this window is dropped, never queued.
	FrameInterval time.Duration

	// RenderSlots bounds how many composes may run concurrently,
	// modeling the depth of the underlying render queue.
	RenderSlots int

	// SurfaceCacheEntries bounds the scratch surface cache. Each entry
	// is one intermediate frame of a recently used geometry.
	SurfaceCacheEntries int
}

// DefaultConfig returns composition parameters for 1080p output at 30fps.
func DefaultConfig() *Config {
	return &Config{
		OutputWidth:   1920,
		OutputHeight:  1080,
		FrameInterval: 33 * time.Millisecond,

		// Two slots: one compose in flight per worker without letting a
		// stall pile work behind the render queue.
		RenderSlots: 2,

		// Eight scratch geometries covers both cameras' native sizes and
		// their scaled cells across a mid-session quality change.
		SurfaceCacheEntries: 8,
	}
}

// Stats is a point-in-time snapshot of composition counters.
type Stats struct {
	Composed           uint64 // Pairs successfully composed
	DroppedBusy        uint64 // Composes dropped at the render slot deadline
	DroppedUnavailable uint64 // Composes dropped for want of an output buffer
}

type surfaceKey struct {
	width  int
	height int
}

// Compositor renders synchronized pairs onto composed output frames.
//
// Compose is safe for concurrent use up to the configured render slot
// count. The compositor holds no per-session state: the same pair,
// layout, and quality state always produce pixel-identical output.
type Compositor struct {
	cfg    Config
	pool   FramePool
	scaler *video.Scaler

	slots chan struct{}

	// Scratch surfaces are checked out of the cache while in use so two
	// concurrent composes never scale into the same buffer.
	surfaceMu sync.Mutex
	surfaces  *lru.Cache

	composed           uint64
	droppedBusy        uint64
	droppedUnavailable uint64
}

// New creates a compositor drawing output frames from the given pool.
// A nil config uses DefaultConfig.
func New(cfg *Config, pool FramePool) (*Compositor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	resolved := *cfg
	def := DefaultConfig()
	if resolved.FrameInterval <= 0 {
		resolved.FrameInterval = def.FrameInterval
	}
	if resolved.RenderSlots <= 0 {
		resolved.RenderSlots = def.RenderSlots
	}
	if resolved.SurfaceCacheEntries <= 0 {
		resolved.SurfaceCacheEntries = def.SurfaceCacheEntries
	}
	if resolved.OutputWidth <= 0 || resolved.OutputHeight <= 0 {
		resolved.OutputWidth = def.OutputWidth
		resolved.OutputHeight = def.OutputHeight
	}
	if err := limits.ValidateGeometry(resolved.OutputWidth, resolved.OutputHeight); err != nil {
		return nil, fmt.Errorf("output geometry: %w", err)
	}
	if pool == nil {
		return nil, fmt.Errorf("frame pool cannot be nil")
	}

	logrus.WithFields(logrus.Fields{
		"function":       "New",
		"output_width":   resolved.OutputWidth,
		"output_height":  resolved.OutputHeight,
		"frame_interval": resolved.FrameInterval,
		"render_slots":   resolved.RenderSlots,
	}).Info("Creating compositor")

	c := &Compositor{
		cfg:      resolved,
		pool:     pool,
		scaler:   video.NewScaler(),
		slots:    make(chan struct{}, resolved.RenderSlots),
		surfaces: lru.New(resolved.SurfaceCacheEntries),
	}
	for i := 0; i < resolved.RenderSlots; i++ {
		c.slots <- struct{}{}
	}
	return c, nil
}

// OutputGeometry returns the composed dimensions for a given quality
// scale: the configured geometry multiplied by the scale, rounded down
// to even and clamped to the scaler minimum.
func (c *Compositor) OutputGeometry(scale float64) (width, height int) {
	if scale <= 0 || scale > 1 {
		scale = 1
	}
	width = evenDim(int(float64(c.cfg.OutputWidth) * scale))
	height = evenDim(int(float64(c.cfg.OutputHeight) * scale))
	if width < limits.MinFrameWidth {
		width = limits.MinFrameWidth
	}
	if height < limits.MinFrameHeight {
		height = limits.MinFrameHeight
	}
	return width, height
}

// Compose renders one synchronized pair into a pool-acquired frame.
//
// A (nil, nil) return is a dropped frame: the render deadline passed or
// no output buffer was available. Drops are counted, never errors. The
// caller keeps ownership of the pair's members and releases them after
// the call; the returned frame belongs to the caller.
//
// Parameters:
//   - pair: The synchronized front/back pair to render
//   - layout: How the two images share the output frame
//   - state: Current quality snapshot; its scale shrinks the output
//
// Returns:
//   - *video.Frame: The composed frame, or nil when dropped
//   - error: Validation failures only; drops are not errors
func (c *Compositor) Compose(pair framesync.Pair, layout Layout, state quality.State) (*video.Frame, error) {
	if pair.Front == nil || pair.Back == nil {
		return nil, fmt.Errorf("pair members cannot be nil")
	}
	if err := layout.Validate(c.cfg.OutputWidth, c.cfg.OutputHeight); err != nil {
		return nil, err
	}

	if !c.claimSlot() {
		atomic.AddUint64(&c.droppedBusy, 1)
		logrus.WithFields(logrus.Fields{
			"function": "Compose",
			"pair_pts": pair.PTS,
			"deadline": c.cfg.FrameInterval,
		}).Debug("Render deadline passed, dropping pair")
		return nil, nil
	}
	defer func() { c.slots <- struct{}{} }()

	width, height := c.OutputGeometry(state.Scale)
	out, err := c.pool.Acquire(width, height, video.FormatI420)
	if err != nil {
		atomic.AddUint64(&c.droppedUnavailable, 1)
		logrus.WithFields(logrus.Fields{
			"function": "Compose",
			"pair_pts": pair.PTS,
			"width":    width,
			"height":   height,
		}).Debug("No output buffer available, dropping pair")
		return nil, nil
	}

	if err := c.render(out, pair, layout); err != nil {
		c.pool.Release(out)
		return nil, fmt.Errorf("rendering %s: %w", layout, err)
	}

	out.PTS = pair.PTS
	out.Source = video.SourceComposed
	atomic.AddUint64(&c.composed, 1)
	return out, nil
}

// claimSlot waits up to one frame interval for a render slot.
func (c *Compositor) claimSlot() bool {
	select {
	case <-c.slots:
		return true
	default:
	}

	timer := time.NewTimer(c.cfg.FrameInterval)
	defer timer.Stop()
	select {
	case <-c.slots:
		return true
	case <-timer.C:
		return false
	}
}

// render draws the pair onto out per the layout. Draw order settles
// overlap: the back camera is always drawn last, so it wins.
func (c *Compositor) render(out *video.Frame, pair framesync.Pair, layout Layout) error {
	if err := out.FillBlack(); err != nil {
		return err
	}

	switch layout.Mode {
	case ModeSideBySide:
		half := evenDim(out.Width / 2)
		if err := c.drawCell(out, pair.Front, 0, 0, half, out.Height); err != nil {
			return fmt.Errorf("front cell: %w", err)
		}
		if err := c.drawCell(out, pair.Back, half, 0, out.Width-half, out.Height); err != nil {
			return fmt.Errorf("back cell: %w", err)
		}
		return nil

	case ModePictureInPicture:
		if err := c.drawCell(out, pair.Front, 0, 0, out.Width, out.Height); err != nil {
			return fmt.Errorf("primary image: %w", err)
		}
		return c.drawInset(out, pair.Back, layout)

	case ModePrimarySecondary:
		primary, secondary := pair.Front, pair.Back
		if layout.Primary == video.SourceBack {
			primary, secondary = pair.Back, pair.Front
		}
		split := evenDim(int(float64(out.Width) * layout.Ratio))
		if err := c.drawCell(out, primary, 0, 0, split, out.Height); err != nil {
			return fmt.Errorf("primary cell: %w", err)
		}
		if err := c.drawCell(out, secondary, split, 0, out.Width-split, out.Height); err != nil {
			return fmt.Errorf("secondary cell: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidLayout, uint8(layout.Mode))
	}
}

// drawCell aspect-fits src into the cell at (x, y) of the given size,
// centered over whatever the canvas already holds.
func (c *Compositor) drawCell(out, src *video.Frame, x, y, width, height int) error {
	fx, fy, fw, fh := video.FitRect(src.Width, src.Height, width, height)
	if fw == 0 || fh == 0 {
		return fmt.Errorf("cell %dx%d cannot fit %dx%d source", width, height, src.Width, src.Height)
	}
	scaled, err := c.scaleSource(src, fw, fh)
	if err != nil {
		return err
	}
	defer c.checkinSurface(scaled)

	return video.Blit(out, scaled, x+fx, y+fy)
}

// drawInset draws the picture-in-picture inset with its border at the
// layout's corner.
func (c *Compositor) drawInset(out, src *video.Frame, layout Layout) error {
	iw := evenDim(int(float64(out.Width) * layout.InsetScale))
	ih := evenDim(iw * src.Height / src.Width)

	maxH := evenDim(out.Height - 2*(insetMargin+insetBorder))
	if ih > maxH {
		ih = maxH
		iw = evenDim(ih * src.Width / src.Height)
	}
	if iw < limits.MinFrameWidth || ih < limits.MinFrameHeight {
		return fmt.Errorf("%w: inset %dx%d below scaler minimum", ErrInvalidLayout, iw, ih)
	}

	var x, y int
	switch layout.Corner {
	case CornerTopLeft:
		x, y = insetMargin, insetMargin
	case CornerTopRight:
		x, y = out.Width-insetMargin-iw, insetMargin
	case CornerBottomLeft:
		x, y = insetMargin, out.Height-insetMargin-ih
	case CornerBottomRight:
		x, y = out.Width-insetMargin-iw, out.Height-insetMargin-ih
	}

	fillRect(out, x-insetBorder, y-insetBorder, iw+2*insetBorder, ih+2*insetBorder,
		video.WhiteY, video.NeutralChroma, video.NeutralChroma)

	scaled, err := c.scaleSource(src, iw, ih)
	if err != nil {
		return err
	}
	defer c.checkinSurface(scaled)

	return video.Blit(out, scaled, x, y)
}

// scaleSource normalizes src to I420 and scales it to the target size
// using scratch surfaces. The caller must check the result back in.
func (c *Compositor) scaleSource(src *video.Frame, width, height int) (*video.Frame, error) {
	input := src
	if src.Format != video.FormatI420 {
		normalized, err := c.checkoutSurface(src.Width, src.Height)
		if err != nil {
			return nil, err
		}
		if err := video.ToI420(src, normalized); err != nil {
			c.checkinSurface(normalized)
			return nil, err
		}
		defer c.checkinSurface(normalized)
		input = normalized
	}

	scaled, err := c.checkoutSurface(width, height)
	if err != nil {
		return nil, err
	}
	if err := c.scaler.Scale(input, scaled); err != nil {
		c.checkinSurface(scaled)
		return nil, err
	}
	return scaled, nil
}

// checkoutSurface takes a scratch I420 surface of the given geometry out
// of the cache, allocating on a miss. Checked-out surfaces are invisible
// to other composes until checked back in.
func (c *Compositor) checkoutSurface(width, height int) (*video.Frame, error) {
	key := surfaceKey{width, height}

	c.surfaceMu.Lock()
	if cached, ok := c.surfaces.Get(key); ok {
		c.surfaces.Remove(key)
		c.surfaceMu.Unlock()
		return cached.(*video.Frame), nil
	}
	c.surfaceMu.Unlock()

	return video.NewFrame(width, height, video.FormatI420)
}

func (c *Compositor) checkinSurface(frame *video.Frame) {
	c.surfaceMu.Lock()
	c.surfaces.Add(surfaceKey{frame.Width, frame.Height}, frame)
	c.surfaceMu.Unlock()
}

// Stats returns a snapshot of composition counters.
func (c *Compositor) Stats() Stats {
	return Stats{
		Composed:           atomic.LoadUint64(&c.composed),
		DroppedBusy:        atomic.LoadUint64(&c.droppedBusy),
		DroppedUnavailable: atomic.LoadUint64(&c.droppedUnavailable),
	}
}

// fillRect paints a solid rectangle. Coordinates and sizes must be even
// and clipped to the frame by the caller's geometry math.
func fillRect(frame *video.Frame, x, y, width, height int, yv, uv, vv byte) {
	for row := 0; row < height; row++ {
		line := frame.Y[(y+row)*frame.YStride+x:]
		for i := 0; i < width; i++ {
			line[i] = yv
		}
	}
	cx, cy := x/2, y/2
	cw, ch := width/2, height/2
	for row := 0; row < ch; row++ {
		uLine := frame.U[(cy+row)*frame.UStride+cx:]
		vLine := frame.V[(cy+row)*frame.VStride+cx:]
		for i := 0; i < cw; i++ {
			uLine[i] = uv
			vLine[i] = vv
		}
	}
}

func evenDim(v int) int {
	return v &^ 1
}
