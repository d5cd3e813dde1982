package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opd-ai/dualcam/compositor"
	"github.com/opd-ai/dualcam/mux"
)

// Preset selects the composed output quality, mirroring the recording
// quality options the application layer exposes.
type Preset uint8

const (
	// Preset720p composes 1280x720 at 30fps.
	Preset720p Preset = iota
	// Preset1080p composes 1920x1080 at 30fps.
	Preset1080p
	// Preset4K composes 3840x2160 at 30fps.
	Preset4K
)

// Geometry returns the preset's composed output dimensions.
func (p Preset) Geometry() (width, height int) {
	switch p {
	case Preset720p:
		return 1280, 720
	case Preset4K:
		return 3840, 2160
	default:
		return 1920, 1080
	}
}

// FrameRate returns the preset's target composed frame rate.
func (p Preset) FrameRate() int {
	return 30
}

// FrameInterval returns the per-frame deadline at the preset's rate.
func (p Preset) FrameInterval() time.Duration {
	return time.Second / time.Duration(p.FrameRate())
}

// String returns a human-readable preset name.
func (p Preset) String() string {
	switch p {
	case Preset720p:
		return "720p"
	case Preset1080p:
		return "1080p"
	case Preset4K:
		return "4k"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// Destinations names the three recording outputs. Composed is
// mandatory; a nil Front or Back disables that passthrough output for
// the session.
type Destinations struct {
	Front    mux.Destination
	Back     mux.Destination
	Composed mux.Destination
}

// Session is one start-to-stop recording cycle.
type Session struct {
	ID           uuid.UUID
	Layout       compositor.Layout
	Destinations Destinations
	StartedAt    time.Time
}

func newSession(layout compositor.Layout, dests Destinations) *Session {
	return &Session{
		ID:           uuid.New(),
		Layout:       layout,
		Destinations: dests,
	}
}

// RecordingResult is the aggregated outcome of one session. Each
// destination reports independently: partial success is explicit,
// never collapsed into one boolean. Outputs that were not requested
// report StatusOK with zero frames.
type RecordingResult struct {
	SessionID uuid.UUID

	Front    mux.Result
	Back     mux.Result
	Composed mux.Result

	// Duration is the wall-clock session length from Running to stop.
	Duration time.Duration
}

// Failed reports whether any requested destination failed.
func (r RecordingResult) Failed() bool {
	return r.Front.Status != mux.StatusOK ||
		r.Back.Status != mux.StatusOK ||
		r.Composed.Status != mux.StatusOK
}

// String summarizes the per-destination outcomes for logs and events.
func (r RecordingResult) String() string {
	return fmt.Sprintf("front=%s back=%s composed=%s duration=%s",
		r.Front.Status, r.Back.Status, r.Composed.Status, r.Duration)
}
