package mux

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/opd-ai/dualcam/video"
)

// recordContainer captures packets so tests can verify exactly what a
// writer committed to the output.
type recordContainer struct {
	headerWrites int
	closes       int
	video        []Packet
	audio        []Packet
	failHeader   error
	failVideo    error
	failClose    error
}

func (c *recordContainer) WriteHeader() error {
	c.headerWrites++
	return c.failHeader
}

func (c *recordContainer) WriteVideo(pkt Packet) error {
	if c.failVideo != nil {
		return c.failVideo
	}
	c.video = append(c.video, pkt)
	return nil
}

func (c *recordContainer) WriteAudio(pkt Packet) error {
	c.audio = append(c.audio, pkt)
	return nil
}

func (c *recordContainer) Close() error {
	c.closes++
	return c.failClose
}

// stuckVideoEncoder models an encoder whose input queue is full.
type stuckVideoEncoder struct {
	RawVideoEncoder
}

func (*stuckVideoEncoder) Ready() bool { return false }

// rejectingVideoEncoder fails the first N encodes, then behaves like
// the raw encoder.
type rejectingVideoEncoder struct {
	RawVideoEncoder
	failures int
}

func (e *rejectingVideoEncoder) Encode(frame *video.Frame) (Packet, error) {
	if e.failures > 0 {
		e.failures--
		return Packet{}, fmt.Errorf("unsupported input")
	}
	return e.RawVideoEncoder.Encode(frame)
}

func testFrame(t *testing.T) *video.Frame {
	t.Helper()
	frame, err := video.NewFrame(32, 16, video.FormatI420)
	if err != nil {
		t.Fatalf("NewFrame failed: %v", err)
	}
	return frame
}

func startedWriter(t *testing.T) (*Writer, *recordContainer) {
	t.Helper()
	container := &recordContainer{}
	writer, err := NewWriter("composed", container, NewRawVideoEncoder(), NewRawPCMEncoder())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := writer.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return writer, container
}

func TestWriter_AnchorFixedByFirstAcceptedAppend(t *testing.T) {
	writer, container := startedWriter(t)

	// First accepted call fixes the anchor at 1000ms.
	if !writer.AppendVideo(testFrame(t), 1000*time.Millisecond) {
		t.Fatal("first video append rejected")
	}
	if got := container.video[0].PTS; got != 0 {
		t.Errorf("first video PTS = %v, want 0", got)
	}

	// A straggling audio sample captured before the anchor is silently
	// discarded, never written.
	if writer.AppendAudio([]int16{1, 2, 3}, 990*time.Millisecond) {
		t.Fatal("pre-anchor audio accepted")
	}
	if len(container.audio) != 0 {
		t.Fatal("pre-anchor audio reached the container")
	}

	// Audio at or after the anchor flows normally.
	if !writer.AppendAudio([]int16{1, 2, 3}, 1010*time.Millisecond) {
		t.Fatal("post-anchor audio rejected")
	}
	if got := container.audio[0].PTS; got != 10*time.Millisecond {
		t.Errorf("audio PTS = %v, want 10ms", got)
	}

	result := writer.Stop()
	if result.DroppedStale != 1 {
		t.Errorf("dropped_stale = %d, want 1", result.DroppedStale)
	}
	if result.VideoFrames != 1 || result.AudioPackets != 1 {
		t.Errorf("written = %d video / %d audio, want 1/1", result.VideoFrames, result.AudioPackets)
	}
}

func TestWriter_MonotonicPerTrack(t *testing.T) {
	writer, container := startedWriter(t)

	writer.AppendVideo(testFrame(t), 1000*time.Millisecond)
	writer.AppendVideo(testFrame(t), 1100*time.Millisecond)

	// A backwards video timestamp is discarded, never reordered.
	if writer.AppendVideo(testFrame(t), 1050*time.Millisecond) {
		t.Fatal("backwards video timestamp accepted")
	}

	// Equal timestamps are non-decreasing and pass.
	if !writer.AppendVideo(testFrame(t), 1100*time.Millisecond) {
		t.Fatal("equal video timestamp rejected")
	}

	// The audio track's monotonicity is independent of video's.
	if !writer.AppendAudio([]int16{0}, 1020*time.Millisecond) {
		t.Fatal("audio behind video head rejected")
	}

	var last time.Duration
	for i, pkt := range container.video {
		if pkt.PTS < last {
			t.Errorf("video packet %d PTS %v before %v", i, pkt.PTS, last)
		}
		last = pkt.PTS
	}
}

func TestWriter_BackpressureDropsNeverBuffers(t *testing.T) {
	container := &recordContainer{}
	writer, err := NewWriter("composed", container, &stuckVideoEncoder{}, nil)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := writer.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if writer.AppendVideo(testFrame(t), time.Duration(i)*time.Second) {
			t.Fatal("append accepted while encoder not ready")
		}
	}

	result := writer.Stop()
	if result.DroppedVideo != 5 {
		t.Errorf("dropped_video = %d, want 5", result.DroppedVideo)
	}
	if len(container.video) != 0 {
		t.Error("packets reached the container despite backpressure")
	}
	if result.Status != StatusOK {
		t.Errorf("status = %s, want ok: drops are not failures", result.Status)
	}
}

// An encode rejection is a per-frame drop: the writer stays alive and
// the rejected frame never fixes the timeline anchor.
func TestWriter_EncodeRejectionDoesNotLatch(t *testing.T) {
	container := &recordContainer{}
	writer, err := NewWriter("front", container, &rejectingVideoEncoder{failures: 1}, nil)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := writer.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if writer.AppendVideo(testFrame(t), 1000*time.Millisecond) {
		t.Fatal("append accepted despite encode rejection")
	}

	// An earlier timestamp is still accepted: the rejected frame did
	// not anchor the timeline at 1000ms.
	if !writer.AppendVideo(testFrame(t), 500*time.Millisecond) {
		t.Fatal("append rejected after recoverable encode failure")
	}
	if got := container.video[0].PTS; got != 0 {
		t.Errorf("first written PTS = %v, want 0", got)
	}

	result := writer.Stop()
	if result.Status != StatusOK {
		t.Errorf("status = %s, want ok: encode drops are not failures", result.Status)
	}
	if result.DroppedVideo != 1 {
		t.Errorf("dropped_video = %d, want 1", result.DroppedVideo)
	}
	if result.VideoFrames != 1 {
		t.Errorf("video frames = %d, want 1", result.VideoFrames)
	}
}

func TestWriter_AppendBeforeStartRejected(t *testing.T) {
	container := &recordContainer{}
	writer, err := NewWriter("front", container, NewRawVideoEncoder(), nil)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	if writer.AppendVideo(testFrame(t), 0) {
		t.Fatal("append accepted before Start")
	}
}

func TestWriter_IdempotentStop(t *testing.T) {
	writer, container := startedWriter(t)
	writer.AppendVideo(testFrame(t), 500*time.Millisecond)

	first := writer.Stop()
	second := writer.Stop()

	if first != second {
		t.Errorf("second Stop returned a different result:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if container.closes != 1 {
		t.Errorf("container closed %d times, want 1", container.closes)
	}
}

func TestWriter_HardFailureLatches(t *testing.T) {
	writer, container := startedWriter(t)
	container.failVideo = fmt.Errorf("encoder rejected bitstream")

	if writer.AppendVideo(testFrame(t), 0) {
		t.Fatal("append accepted despite container failure")
	}

	// The failure latches: later appends are counted drops.
	container.failVideo = nil
	if writer.AppendVideo(testFrame(t), time.Second) {
		t.Fatal("append accepted after latched failure")
	}

	result := writer.Stop()
	if result.Status != StatusFailed {
		t.Errorf("status = %s, want failed", result.Status)
	}
	if result.Err == nil {
		t.Error("failed result carries no reason")
	}
}

func TestWriter_VideoOnlyRejectsAudio(t *testing.T) {
	container := &recordContainer{}
	writer, err := NewWriter("back", container, NewRawVideoEncoder(), nil)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := writer.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if writer.AppendAudio([]int16{1}, 0) {
		t.Fatal("video-only writer accepted audio")
	}
	result := writer.Stop()
	if result.DroppedAudio != 1 {
		t.Errorf("dropped_audio = %d, want 1", result.DroppedAudio)
	}
}

func TestWriter_StartTwiceRejected(t *testing.T) {
	writer, _ := startedWriter(t)
	if err := writer.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("error = %v, want ErrAlreadyStarted", err)
	}
}

func TestWriter_StopWithoutStart(t *testing.T) {
	container := &recordContainer{}
	writer, err := NewWriter("composed", container, NewRawVideoEncoder(), nil)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	result := writer.Stop()
	if result.Status != StatusFailed {
		t.Errorf("status = %s, want failed", result.Status)
	}
	if !errors.Is(result.Err, ErrNotStarted) {
		t.Errorf("error = %v, want ErrNotStarted", result.Err)
	}
	if container.closes != 0 {
		t.Error("container closed for a writer that never started")
	}
}

func TestWriter_HeaderFailureSurfacesOnStart(t *testing.T) {
	container := &recordContainer{failHeader: fmt.Errorf("disk full")}
	writer, err := NewWriter("composed", container, NewRawVideoEncoder(), nil)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	if err := writer.Start(); err == nil {
		t.Fatal("Start succeeded despite header failure")
	}
	if writer.AppendVideo(testFrame(t), 0) {
		t.Fatal("append accepted after failed start")
	}
}

func TestWriter_DurationTracksHighestTimestamp(t *testing.T) {
	writer, _ := startedWriter(t)

	writer.AppendVideo(testFrame(t), 1000*time.Millisecond)
	writer.AppendVideo(testFrame(t), 1500*time.Millisecond)
	writer.AppendAudio([]int16{0}, 1800*time.Millisecond)

	result := writer.Stop()
	if result.Duration != 800*time.Millisecond {
		t.Errorf("duration = %v, want 800ms", result.Duration)
	}
}
