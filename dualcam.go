// Package dualcam implements the real-time capture, composition, and
// encode pipeline of a dual-camera recording application.
//
// Two independently clocked camera streams and one audio stream flow
// in through a Recorder; synchronized frame pairs are composited into
// one output per the selected layout and muxed with audio onto a
// rebased timeline, while both original streams are preserved
// untouched through passthrough outputs:
//
//	front camera --+---------------> front passthrough output
//	               +-> frame sync -> compositor -> composed output
//	back camera  --+-> frame sync        ^ quality governor (advisory)
//	               +---------------> back passthrough output
//	audio -------------------------> composed output
//
// The Recorder is the integration surface for the application layer:
// capture collaborators push frames and samples in, recording control
// and the event stream come out. Everything underneath lives in the
// component packages (bufferpool, framesync, compositor, quality, mux,
// pipeline).
package dualcam

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/dualcam/audio"
	"github.com/opd-ai/dualcam/compositor"
	"github.com/opd-ai/dualcam/pipeline"
	"github.com/opd-ai/dualcam/quality"
	"github.com/opd-ai/dualcam/video"
)

// Config holds recorder-wide parameters.
type Config struct {
	// Preset selects the composed output quality.
	Preset pipeline.Preset

	// Layout is the initial composition layout.
	Layout compositor.Layout

	// CaptureWidth and CaptureHeight are the geometry the camera
	// collaborators deliver. AcquireFrame hands out buffers of this
	// size.
	CaptureWidth  int
	CaptureHeight int

	// CaptureFormat is the pixel layout the cameras deliver. Device
	// capture is typically NV12; the compositor normalizes internally.
	CaptureFormat video.PixelFormat

	// SyncWindow overrides the frame pairing tolerance. Zero uses one
	// frame interval.
	SyncWindow time.Duration

	// Workers overrides the composition worker pool size.
	Workers int

	// WriterFactory overrides how output writers are built, which is
	// where the container and codec choice lives. Nil records raw
	// packet logs.
	WriterFactory pipeline.WriterFactory

	// Quality overrides the governor thresholds. Nil derives defaults
	// from the preset.
	Quality *quality.Config
}

// DefaultConfig returns a recorder configuration for 1080p30
// side-by-side recording with NV12 capture input.
func DefaultConfig() *Config {
	return &Config{
		Preset:        pipeline.Preset1080p,
		Layout:        compositor.SideBySide(),
		CaptureWidth:  1920,
		CaptureHeight: 1080,
		CaptureFormat: video.FormatNV12,
	}
}

// Recorder is the dual-camera recording pipeline facade.
//
// Capture collaborators acquire frames with AcquireFrame, fill them,
// and hand them back through OnFrame; audio arrives through
// OnAudioSamples or OnAudioOpus. The application layer drives
// StartRecording/StopRecording and watches Events. All methods are
// safe for concurrent use.
type Recorder struct {
	cfg        Config
	controller *pipeline.Controller

	// The Opus decoder reuses its output buffer, so packet decode is
	// serialized. There is only one microphone.
	decoderMu sync.Mutex
	decoder   *audio.Decoder
}

// New creates a recorder. A nil config uses DefaultConfig.
func New(cfg *Config) (*Recorder, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	resolved := *cfg
	def := DefaultConfig()
	if resolved.CaptureWidth <= 0 || resolved.CaptureHeight <= 0 {
		resolved.CaptureWidth = def.CaptureWidth
		resolved.CaptureHeight = def.CaptureHeight
	}

	controller, err := pipeline.NewController(&pipeline.Config{
		Preset:        resolved.Preset,
		SyncWindow:    resolved.SyncWindow,
		Workers:       resolved.Workers,
		WriterFactory: resolved.WriterFactory,
		Quality:       resolved.Quality,
	})
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}
	if err := controller.SetLayout(resolved.Layout); err != nil {
		controller.Close()
		return nil, fmt.Errorf("initial layout: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":       "New",
		"preset":         resolved.Preset.String(),
		"layout":         resolved.Layout.String(),
		"capture_width":  resolved.CaptureWidth,
		"capture_height": resolved.CaptureHeight,
	}).Info("Creating dual-camera recorder")

	return &Recorder{
		cfg:        resolved,
		controller: controller,
		decoder:    audio.NewDecoder(),
	}, nil
}

// StartRecording opens a session composing with the current layout
// into the given destinations. Composed is mandatory; nil Front or
// Back skips that passthrough output.
func (r *Recorder) StartRecording(dests pipeline.Destinations) error {
	return r.controller.StartRecording(r.controller.Layout(), dests)
}

// StopRecording finalizes the session and reports each destination's
// outcome separately. Calling it again returns the same result.
func (r *Recorder) StopRecording() (pipeline.RecordingResult, error) {
	return r.controller.StopRecording()
}

// SetLayout changes the composition layout for the next session.
// Rejected while recording: layouts change only at segment boundaries.
func (r *Recorder) SetLayout(layout compositor.Layout) error {
	return r.controller.SetLayout(layout)
}

// Layout returns the layout the next session will compose with.
func (r *Recorder) Layout() compositor.Layout {
	return r.controller.Layout()
}

// State returns the pipeline lifecycle state.
func (r *Recorder) State() pipeline.State {
	return r.controller.State()
}

// Events returns the recorder's event bus.
func (r *Recorder) Events() *pipeline.Bus {
	return r.controller.Events()
}

// AcquireFrame returns a capture-geometry buffer for a collaborator to
// fill. An exhausted pool is a transient condition: the collaborator
// drops the camera frame and tries again next frame.
func (r *Recorder) AcquireFrame(source video.Source) (*video.Frame, error) {
	frame, err := r.controller.Pool().Acquire(r.cfg.CaptureWidth, r.cfg.CaptureHeight, r.cfg.CaptureFormat)
	if err != nil {
		return nil, err
	}
	frame.Source = source
	return frame, nil
}

// OnFrame hands a filled capture frame to the pipeline, which takes
// ownership and returns the buffer to the pool on every path.
func (r *Recorder) OnFrame(frame *video.Frame) {
	r.controller.OnFrame(frame)
}

// OnAudioSamples hands one PCM batch to the composed output.
func (r *Recorder) OnAudioSamples(pcm []int16, pts time.Duration) {
	r.controller.OnAudio(pcm, pts)
}

// OnAudioOpus decodes one Opus packet and hands the PCM to the
// composed output. Used when the audio collaborator delivers
// compressed microphone input.
func (r *Recorder) OnAudioOpus(packet []byte, pts time.Duration) error {
	r.decoderMu.Lock()
	pcm, _, err := r.decoder.Decode(packet)
	r.decoderMu.Unlock()
	if err != nil {
		return fmt.Errorf("decoding audio packet: %w", err)
	}
	r.controller.OnAudio(pcm, pts)
	return nil
}

// Reset clears a failed session so a new one can start.
func (r *Recorder) Reset() {
	r.controller.Reset()
}

// Outstanding reports how many frame buffers are currently in flight,
// for leak verification in tests and diagnostics.
func (r *Recorder) Outstanding() int {
	return r.controller.Pool().Outstanding()
}

// Close stops any in-flight session and releases the recorder.
func (r *Recorder) Close() error {
	return r.controller.Close()
}
