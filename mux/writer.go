package mux

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/dualcam/video"
)

// Status is the final disposition of one recording output.
type Status uint8

const (
	// StatusOK means the output was written and finalized completely.
	StatusOK Status = iota
	// StatusFailed means the output is absent or unusable; Result.Err
	// carries the reason.
	StatusFailed
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Result is the final accounting for one writer.
type Result struct {
	Name   string // Which output this writer produced
	Status Status
	Err    error // Failure reason, nil on success

	VideoFrames  uint64 // Video packets written
	AudioPackets uint64 // Audio packets written
	DroppedVideo uint64 // Video appends rejected by backpressure or failure
	DroppedAudio uint64 // Audio appends rejected by backpressure or failure
	DroppedStale uint64 // Appends discarded for pre-anchor or backwards timestamps

	// Duration is the highest rebased timestamp written to any track.
	Duration time.Duration
}

// Writer encodes and muxes one recording output on a rebased timeline.
//
// The anchor is fixed by the first accepted append after Start; every
// later timestamp is written relative to it. Appends report acceptance
// with a bool, never an error: per-frame problems are drop-and-count,
// and only Stop surfaces the writer's fate. All methods are safe for
// concurrent use.
type Writer struct {
	mu        sync.Mutex
	name      string
	container Container
	venc      VideoEncoder
	aenc      AudioEncoder

	started bool
	stopped bool
	failed  error

	anchored bool
	anchor   time.Duration

	hasVideo  bool
	lastVideo time.Duration
	hasAudio  bool
	lastAudio time.Duration

	videoFrames  uint64
	audioPackets uint64
	droppedVideo uint64
	droppedAudio uint64
	droppedStale uint64

	result Result
}

// NewWriter creates a writer for one output. The audio encoder may be
// nil for video-only outputs such as the per-camera passthroughs; their
// AppendAudio then rejects everything.
func NewWriter(name string, container Container, venc VideoEncoder, aenc AudioEncoder) (*Writer, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}
	if venc == nil {
		return nil, fmt.Errorf("video encoder cannot be nil")
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NewWriter",
		"writer":    name,
		"has_audio": aenc != nil,
	}).Info("Creating multiplex writer")

	return &Writer{
		name:      name,
		container: container,
		venc:      venc,
		aenc:      aenc,
	}, nil
}

// Start writes the container header and opens the writer for appends.
func (w *Writer) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, w.name)
	}
	if err := w.container.WriteHeader(); err != nil {
		w.failed = err
		logrus.WithFields(logrus.Fields{
			"function": "Start",
			"writer":   w.name,
			"error":    err.Error(),
		}).Error("Container header write failed")
		return fmt.Errorf("starting writer %s: %w", w.name, err)
	}
	w.started = true

	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"writer":   w.name,
	}).Info("Writer started")
	return nil
}

// AppendVideo encodes and writes one frame at the given capture
// timestamp. Returns whether the frame was written; rejected frames
// are counted and the caller simply moves on.
func (w *Writer) AppendVideo(frame *video.Frame, pts time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.acceptingLocked() || !w.venc.Ready() {
		w.droppedVideo++
		return false
	}

	pkt, err := w.venc.Encode(frame)
	if err != nil {
		// A frame the encoder cannot take is that frame's problem, not
		// the session's: drop and count, keep the output alive. Rebasing
		// happens after the encode so a rejected frame never fixes the
		// anchor.
		logrus.WithFields(logrus.Fields{
			"function": "AppendVideo",
			"writer":   w.name,
			"error":    err.Error(),
		}).Error("Video encode rejected frame")
		w.droppedVideo++
		return false
	}

	rel, ok := w.rebaseLocked(pts, w.hasVideo, w.lastVideo)
	if !ok {
		w.droppedStale++
		return false
	}
	pkt.PTS = rel
	if err := w.container.WriteVideo(pkt); err != nil {
		w.failLocked("video write", err)
		w.droppedVideo++
		return false
	}

	w.hasVideo = true
	w.lastVideo = rel
	w.videoFrames++
	return true
}

// AppendAudio encodes and writes one PCM batch at the given capture
// timestamp, with the same acceptance rules as AppendVideo.
func (w *Writer) AppendAudio(pcm []int16, pts time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.aenc == nil || !w.acceptingLocked() || !w.aenc.Ready() {
		w.droppedAudio++
		return false
	}

	pkt, err := w.aenc.Encode(pcm)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "AppendAudio",
			"writer":   w.name,
			"error":    err.Error(),
		}).Error("Audio encode rejected batch")
		w.droppedAudio++
		return false
	}

	rel, ok := w.rebaseLocked(pts, w.hasAudio, w.lastAudio)
	if !ok {
		w.droppedStale++
		return false
	}
	pkt.PTS = rel
	if err := w.container.WriteAudio(pkt); err != nil {
		w.failLocked("audio write", err)
		w.droppedAudio++
		return false
	}

	w.hasAudio = true
	w.lastAudio = rel
	w.audioPackets++
	return true
}

// acceptingLocked reports whether appends may proceed.
func (w *Writer) acceptingLocked() bool {
	return w.started && !w.stopped && w.failed == nil
}

// rebaseLocked fixes the anchor on the first accepted timestamp and
// converts pts to the relative timeline. It rejects timestamps that
// would rebase negative or run backwards within the track.
func (w *Writer) rebaseLocked(pts time.Duration, hasLast bool, last time.Duration) (time.Duration, bool) {
	if !w.anchored {
		w.anchor = pts
		w.anchored = true
		logrus.WithFields(logrus.Fields{
			"function": "rebaseLocked",
			"writer":   w.name,
			"anchor":   pts,
		}).Debug("Timeline anchor fixed")
	}

	rel := pts - w.anchor
	if rel < 0 {
		logrus.WithFields(logrus.Fields{
			"function": "rebaseLocked",
			"writer":   w.name,
			"pts":      pts,
			"anchor":   w.anchor,
		}).Debug("Discarding pre-anchor timestamp")
		return 0, false
	}
	if hasLast && rel < last {
		logrus.WithFields(logrus.Fields{
			"function": "rebaseLocked",
			"writer":   w.name,
			"relative": rel,
			"last":     last,
		}).Debug("Discarding backwards timestamp")
		return 0, false
	}
	return rel, true
}

// failLocked latches the first hard failure. Subsequent appends are
// counted drops; Stop reports the failure.
func (w *Writer) failLocked(stage string, err error) {
	if w.failed != nil {
		return
	}
	w.failed = fmt.Errorf("%s: %w", stage, err)
	logrus.WithFields(logrus.Fields{
		"function": "failLocked",
		"writer":   w.name,
		"stage":    stage,
		"error":    err.Error(),
	}).Error("Writer latched hard failure")
}

// Stop finalizes the container and returns the writer's result. Stop
// is idempotent: the second and later calls return the same result
// without touching the container again.
func (w *Writer) Stop() Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return w.result
	}
	w.stopped = true

	err := w.failed
	if !w.started {
		if err == nil {
			err = ErrNotStarted
		}
	} else {
		if encErr := w.venc.Close(); encErr != nil && err == nil {
			err = fmt.Errorf("closing video encoder: %w", encErr)
		}
		if w.aenc != nil {
			if encErr := w.aenc.Close(); encErr != nil && err == nil {
				err = fmt.Errorf("closing audio encoder: %w", encErr)
			}
		}
		if closeErr := w.container.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}

	duration := w.lastVideo
	if w.lastAudio > duration {
		duration = w.lastAudio
	}

	w.result = Result{
		Name:         w.name,
		Status:       StatusOK,
		Err:          err,
		VideoFrames:  w.videoFrames,
		AudioPackets: w.audioPackets,
		DroppedVideo: w.droppedVideo,
		DroppedAudio: w.droppedAudio,
		DroppedStale: w.droppedStale,
		Duration:     duration,
	}
	if err != nil {
		w.result.Status = StatusFailed
	}

	logrus.WithFields(logrus.Fields{
		"function":      "Stop",
		"writer":        w.name,
		"status":        w.result.Status.String(),
		"video_frames":  w.result.VideoFrames,
		"audio_packets": w.result.AudioPackets,
		"dropped_stale": w.result.DroppedStale,
		"duration":      w.result.Duration,
	}).Info("Writer stopped")

	return w.result
}

// DroppedTotal reports every append the writer rejected so far, for
// skipped-frame accounting while the session runs.
func (w *Writer) DroppedTotal() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.droppedVideo + w.droppedAudio + w.droppedStale
}
