package compositor

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/opd-ai/dualcam/bufferpool"
	"github.com/opd-ai/dualcam/framesync"
	"github.com/opd-ai/dualcam/quality"
	"github.com/opd-ai/dualcam/video"
)

// Test geometry: 4:3 sources into a 4:3 output so full-frame cells fill
// completely and expected pixel values are easy to place.
const (
	testOutW = 320
	testOutH = 240
	testSrcW = 160
	testSrcH = 120

	frontY = 100
	backY  = 200
)

func newTestCompositor(t *testing.T) (*Compositor, *bufferpool.Pool) {
	t.Helper()
	pool := bufferpool.New(nil)
	comp, err := New(&Config{OutputWidth: testOutW, OutputHeight: testOutH}, pool)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return comp, pool
}

func sourceFrame(t *testing.T, source video.Source, yValue byte) *video.Frame {
	t.Helper()
	frame, err := video.NewFrame(testSrcW, testSrcH, video.FormatI420)
	if err != nil {
		t.Fatalf("NewFrame failed: %v", err)
	}
	if err := frame.Fill(yValue, video.NeutralChroma, video.NeutralChroma); err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	frame.Source = source
	return frame
}

func testPair(t *testing.T) framesync.Pair {
	t.Helper()
	return framesync.Pair{
		Front: sourceFrame(t, video.SourceFront, frontY),
		Back:  sourceFrame(t, video.SourceBack, backY),
		PTS:   40 * time.Millisecond,
	}
}

func normalState() quality.State {
	return quality.State{Level: quality.LevelNormal, Scale: 1.0, MaxFrameRate: 30}
}

func pixelY(frame *video.Frame, x, y int) byte {
	return frame.Y[y*frame.YStride+x]
}

func TestNew_NilPoolRejected(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	comp, err := New(nil, bufferpool.New(nil))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	w, h := comp.OutputGeometry(1.0)
	if w != 1920 || h != 1080 {
		t.Errorf("default geometry = %dx%d, want 1920x1080", w, h)
	}
}

func TestCompose_SideBySide(t *testing.T) {
	comp, pool := newTestCompositor(t)
	pair := testPair(t)

	out, err := comp.Compose(pair, SideBySide(), normalState())
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if out == nil {
		t.Fatal("Compose dropped the pair")
	}
	defer pool.Release(out)

	if out.Width != testOutW || out.Height != testOutH {
		t.Fatalf("output geometry = %dx%d, want %dx%d", out.Width, out.Height, testOutW, testOutH)
	}
	if out.Source != video.SourceComposed {
		t.Errorf("output source = %s, want composed", out.Source)
	}
	if out.PTS != pair.PTS {
		t.Errorf("output PTS = %v, want %v", out.PTS, pair.PTS)
	}

	// Front camera occupies the left cell, back camera the right cell.
	if got := pixelY(out, testOutW/4, testOutH/2); got != frontY {
		t.Errorf("left cell Y = %d, want %d", got, frontY)
	}
	if got := pixelY(out, 3*testOutW/4, testOutH/2); got != backY {
		t.Errorf("right cell Y = %d, want %d", got, backY)
	}
}

func TestCompose_PictureInPicture_BackCameraOnTop(t *testing.T) {
	comp, pool := newTestCompositor(t)
	pair := testPair(t)
	layout := PictureInPicture(CornerBottomRight, 0.25)

	out, err := comp.Compose(pair, layout, normalState())
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if out == nil {
		t.Fatal("Compose dropped the pair")
	}
	defer pool.Release(out)

	// The front camera fills the bounds (matching aspect ratios).
	if got := pixelY(out, testOutW/2, 20); got != frontY {
		t.Errorf("primary region Y = %d, want %d", got, frontY)
	}

	// Inset geometry: 0.25 of 320 = 80 wide, 60 tall for a 4:3 source,
	// bottom-right corner with a 16px margin.
	insetX := testOutW - insetMargin - 80
	insetY := testOutH - insetMargin - 60

	// Center of the inset must show the back camera: it is drawn last,
	// so it wins where the images overlap.
	if got := pixelY(out, insetX+40, insetY+30); got != backY {
		t.Errorf("inset center Y = %d, want back camera %d", got, backY)
	}

	// The border ring around the inset is white.
	if got := pixelY(out, insetX-2, insetY-2); got != video.WhiteY {
		t.Errorf("border Y = %d, want %d", got, video.WhiteY)
	}
}

func TestCompose_PrimarySecondary(t *testing.T) {
	comp, pool := newTestCompositor(t)
	pair := testPair(t)
	layout := PrimarySecondary(video.SourceBack, 0.5)

	out, err := comp.Compose(pair, layout, normalState())
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if out == nil {
		t.Fatal("Compose dropped the pair")
	}
	defer pool.Release(out)

	// Back camera is primary: left cell shows back, right shows front.
	if got := pixelY(out, testOutW/4, testOutH/2); got != backY {
		t.Errorf("primary cell Y = %d, want back camera %d", got, backY)
	}
	if got := pixelY(out, 3*testOutW/4, testOutH/2); got != frontY {
		t.Errorf("secondary cell Y = %d, want front camera %d", got, frontY)
	}
}

func TestCompose_Deterministic(t *testing.T) {
	comp, pool := newTestCompositor(t)
	pair := testPair(t)
	layout := PictureInPicture(CornerTopLeft, 0.3)
	state := normalState()

	first, err := comp.Compose(pair, layout, state)
	if err != nil || first == nil {
		t.Fatalf("first compose: frame=%v err=%v", first, err)
	}
	second, err := comp.Compose(pair, layout, state)
	if err != nil || second == nil {
		t.Fatalf("second compose: frame=%v err=%v", second, err)
	}
	defer pool.Release(first)
	defer pool.Release(second)

	if !bytes.Equal(first.Y, second.Y) || !bytes.Equal(first.U, second.U) || !bytes.Equal(first.V, second.V) {
		t.Error("recomposing the same pair produced different pixels")
	}
}

func TestCompose_QualityScaleShrinksOutput(t *testing.T) {
	comp, pool := newTestCompositor(t)
	pair := testPair(t)
	reduced := quality.State{Level: quality.LevelReduced, Scale: 0.5, MaxFrameRate: 24}

	out, err := comp.Compose(pair, SideBySide(), reduced)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if out == nil {
		t.Fatal("Compose dropped the pair")
	}
	defer pool.Release(out)

	if out.Width != testOutW/2 || out.Height != testOutH/2 {
		t.Errorf("output geometry = %dx%d, want %dx%d", out.Width, out.Height, testOutW/2, testOutH/2)
	}
}

func TestCompose_NV12InputNormalized(t *testing.T) {
	comp, pool := newTestCompositor(t)

	front, err := video.NewFrame(testSrcW, testSrcH, video.FormatNV12)
	if err != nil {
		t.Fatalf("NewFrame failed: %v", err)
	}
	for i := range front.Y {
		front.Y[i] = frontY
	}
	for i := range front.U {
		front.U[i] = video.NeutralChroma
	}
	front.Source = video.SourceFront

	pair := framesync.Pair{Front: front, Back: sourceFrame(t, video.SourceBack, backY)}

	out, err := comp.Compose(pair, SideBySide(), normalState())
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if out == nil {
		t.Fatal("Compose dropped the pair")
	}
	defer pool.Release(out)

	if got := pixelY(out, testOutW/4, testOutH/2); got != frontY {
		t.Errorf("left cell Y = %d, want %d from NV12 front", got, frontY)
	}
}

func TestCompose_DropsWhenOutputBufferUnavailable(t *testing.T) {
	pool := bufferpool.New(&bufferpool.Config{PerKeyCap: 1})
	comp, err := New(&Config{OutputWidth: testOutW, OutputHeight: testOutH}, pool)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Occupy the only output buffer of the composed geometry.
	held, err := pool.Acquire(testOutW, testOutH, video.FormatI420)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer pool.Release(held)

	out, err := comp.Compose(testPair(t), SideBySide(), normalState())
	if err != nil {
		t.Fatalf("Compose returned error: %v", err)
	}
	if out != nil {
		t.Fatal("expected dropped frame, got output")
	}
	if got := comp.Stats().DroppedUnavailable; got != 1 {
		t.Errorf("dropped_unavailable = %d, want 1", got)
	}
}

func TestCompose_DropsAtRenderDeadline(t *testing.T) {
	pool := bufferpool.New(nil)
	comp, err := New(&Config{
		OutputWidth:   testOutW,
		OutputHeight:  testOutH,
		FrameInterval: 5 * time.Millisecond,
		RenderSlots:   1,
	}, pool)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Hold the only render slot so the compose cannot claim it.
	<-comp.slots

	out, err := comp.Compose(testPair(t), SideBySide(), normalState())
	if err != nil {
		t.Fatalf("Compose returned error: %v", err)
	}
	if out != nil {
		t.Fatal("expected dropped frame, got output")
	}
	if got := comp.Stats().DroppedBusy; got != 1 {
		t.Errorf("dropped_busy = %d, want 1", got)
	}
	comp.slots <- struct{}{}

	// With the slot back, composition resumes.
	out, err = comp.Compose(testPair(t), SideBySide(), normalState())
	if err != nil || out == nil {
		t.Fatalf("compose after slot return: frame=%v err=%v", out, err)
	}
	pool.Release(out)
}

func TestCompose_InvalidLayoutRejected(t *testing.T) {
	comp, _ := newTestCompositor(t)

	_, err := comp.Compose(testPair(t), PrimarySecondary(video.SourceBack, 0.9), normalState())
	if !errors.Is(err, ErrInvalidLayout) {
		t.Fatalf("error = %v, want ErrInvalidLayout", err)
	}
}

func TestCompose_NilPairMembersRejected(t *testing.T) {
	comp, _ := newTestCompositor(t)

	if _, err := comp.Compose(framesync.Pair{}, SideBySide(), normalState()); err == nil {
		t.Fatal("expected error for nil pair members")
	}
}

func TestCompose_NoBufferLeak(t *testing.T) {
	comp, pool := newTestCompositor(t)

	for i := 0; i < 10; i++ {
		out, err := comp.Compose(testPair(t), SideBySide(), normalState())
		if err != nil || out == nil {
			t.Fatalf("compose %d: frame=%v err=%v", i, out, err)
		}
		pool.Release(out)
	}

	if got := pool.Outstanding(); got != 0 {
		t.Errorf("outstanding buffers = %d, want 0", got)
	}
}

func TestOutputGeometry_ClampsScale(t *testing.T) {
	comp, _ := newTestCompositor(t)

	tests := []struct {
		name  string
		scale float64
		wantW int
		wantH int
	}{
		{"full", 1.0, testOutW, testOutH},
		{"half", 0.5, testOutW / 2, testOutH / 2},
		{"zero falls back to full", 0, testOutW, testOutH},
		{"above one falls back to full", 1.5, testOutW, testOutH},
		{"tiny clamps to minimum", 0.01, 16, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := comp.OutputGeometry(tt.scale)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("OutputGeometry(%v) = %dx%d, want %dx%d", tt.scale, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}
