// Command dualcamd records a dual-camera session to disk.
//
// Without real camera devices it drives the pipeline from two synthetic
// pattern generators, which makes it usable as a smoke test for the
// whole capture-composition-encode path on any machine.
package main

import (
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/dualcam"
	"github.com/opd-ai/dualcam/compositor"
	"github.com/opd-ai/dualcam/mux"
	"github.com/opd-ai/dualcam/pipeline"
	"github.com/opd-ai/dualcam/video"

	flag "github.com/spf13/pflag"
)

// Populated via -ldflags="-X main.GitRevisionId=...".
var GitRevisionId string

func main() {
	flag.Parse()

	if flagHelp {
		help()
		os.Exit(0)
	}
	if flagVersion {
		fmt.Println("dualcamd", GitRevisionId)
		os.Exit(0)
	}

	level, err := logrus.ParseLevel(flagLogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q\n", flagLogLevel)
		os.Exit(1)
	}
	logrus.SetLevel(level)

	cfg, err := buildConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildConfig translates command line flags into a recorder config.
func buildConfig() (*dualcam.Config, error) {
	cfg := dualcam.DefaultConfig()

	switch flagPreset {
	case "720p":
		cfg.Preset = pipeline.Preset720p
	case "1080p":
		cfg.Preset = pipeline.Preset1080p
	case "4k":
		cfg.Preset = pipeline.Preset4K
	default:
		return nil, fmt.Errorf("unknown preset %q (want 720p, 1080p, or 4k)", flagPreset)
	}

	corner, err := parseCorner(flagCorner)
	if err != nil {
		return nil, err
	}
	switch flagLayout {
	case "sbs":
		cfg.Layout = compositor.SideBySide()
	case "pip":
		cfg.Layout = compositor.PictureInPicture(corner, flagInsetScale)
	case "primary":
		cfg.Layout = compositor.PrimarySecondary(video.SourceBack, flagRatio)
	default:
		return nil, fmt.Errorf("unknown layout %q (want sbs, pip, or primary)", flagLayout)
	}

	// Synthetic sources deliver at the composed geometry.
	cfg.CaptureWidth, cfg.CaptureHeight = cfg.Preset.Geometry()
	cfg.CaptureFormat = video.FormatI420
	return cfg, nil
}

func parseCorner(s string) (compositor.Corner, error) {
	switch strings.ToLower(s) {
	case "top-left":
		return compositor.CornerTopLeft, nil
	case "top-right":
		return compositor.CornerTopRight, nil
	case "bottom-left":
		return compositor.CornerBottomLeft, nil
	case "bottom-right":
		return compositor.CornerBottomRight, nil
	}
	return 0, fmt.Errorf("unknown corner %q", s)
}

func run(cfg *dualcam.Config) error {
	recorder, err := dualcam.New(cfg)
	if err != nil {
		return err
	}
	defer recorder.Close()

	if err := os.MkdirAll(flagOutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	dests := pipeline.Destinations{
		Composed: mux.FileDestination(filepath.Join(flagOutputDir, "composed.dcr")),
	}
	if !flagNoPassthrough {
		dests.Front = mux.FileDestination(filepath.Join(flagOutputDir, "front.dcr"))
		dests.Back = mux.FileDestination(filepath.Join(flagOutputDir, "back.dcr"))
	}

	events, unsubscribe := recorder.Events().Subscribe(32)
	defer unsubscribe()
	go reportEvents(events)

	if err := recorder.StartRecording(dests); err != nil {
		return err
	}
	color.Green("Recording %s for %s into %s", flagLayout, flagDuration, flagOutputDir)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	generate(recorder, cfg, stop)

	result, err := recorder.StopRecording()
	if err != nil {
		return err
	}
	printSummary(result)
	if result.Failed() {
		return fmt.Errorf("session %s finished with failed outputs", result.SessionID)
	}
	return nil
}

// generate runs the synthetic capture loop until the duration elapses
// or a signal arrives. Both cameras tick on one clock with a small
// fixed skew on the back camera, which exercises pairing the way
// independently clocked devices would.
func generate(recorder *dualcam.Recorder, cfg *dualcam.Config, stop <-chan os.Signal) {
	interval := cfg.Preset.FrameInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.After(flagDuration)

	start := time.Now()
	var frameIndex int
	for {
		select {
		case <-stop:
			return
		case <-deadline:
			return
		case <-ticker.C:
			pts := time.Since(start)
			pushSynthetic(recorder, video.SourceFront, pts, frameIndex, 60)
			pushSynthetic(recorder, video.SourceBack, pts+3*time.Millisecond, frameIndex, 180)
			recorder.OnAudioSamples(sineBatch(frameIndex, interval), pts)
			frameIndex++
		}
	}
}

// pushSynthetic fills one capture buffer with a scrolling gradient so
// the composed output is visually inspectable.
func pushSynthetic(recorder *dualcam.Recorder, source video.Source, pts time.Duration, index int, chroma byte) {
	frame, err := recorder.AcquireFrame(source)
	if err != nil {
		// Exhausted pool: skip this camera frame and move on.
		return
	}
	for row := 0; row < frame.Height; row++ {
		base := row * frame.YStride
		for col := 0; col < frame.Width; col++ {
			frame.Y[base+col] = byte((row + col + index*4) % 220)
		}
	}
	for i := range frame.U {
		frame.U[i] = chroma
	}
	for i := range frame.V {
		frame.V[i] = 255 - chroma
	}
	frame.PTS = pts
	recorder.OnFrame(frame)
}

// sineBatch produces one frame interval of 440Hz mono PCM at 48kHz.
func sineBatch(index int, interval time.Duration) []int16 {
	samples := int(48000 * interval.Seconds())
	pcm := make([]int16, samples)
	phase := float64(index*samples)
	for i := range pcm {
		pcm[i] = int16(8000 * math.Sin(2*math.Pi*440*(phase+float64(i))/48000))
	}
	return pcm
}

// reportEvents echoes pipeline events to the terminal as they happen.
func reportEvents(events <-chan pipeline.Event) {
	for ev := range events {
		switch ev.Kind {
		case pipeline.EventQualityChanged:
			color.Yellow("quality level changed: %s", ev.Quality.Level)
		case pipeline.EventFailed:
			color.Red("session failed: %s", ev.Reason)
		}
	}
}

func printSummary(result pipeline.RecordingResult) {
	fmt.Println()
	color.New(color.Bold).Printf("Session %s (%s)\n", result.SessionID, result.Duration.Round(time.Millisecond))
	type line struct {
		name string
		res  mux.Result
	}
	entries := []line{{"composed", result.Composed}}
	if !flagNoPassthrough {
		entries = append(entries, line{"front", result.Front}, line{"back", result.Back})
	}
	for _, entry := range entries {
		text := fmt.Sprintf("  %-9s %4d frames  %4d audio  %3d dropped",
			entry.name, entry.res.VideoFrames, entry.res.AudioPackets,
			entry.res.DroppedVideo+entry.res.DroppedAudio+entry.res.DroppedStale)
		if entry.res.Status == mux.StatusOK {
			color.Green("%s", text)
		} else {
			color.Red("%s  (%v)", text, entry.res.Err)
		}
	}
}
