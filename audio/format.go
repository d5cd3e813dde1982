package audio

import "time"

// DefaultSampleRate is the session audio rate. Matches the Opus internal
// rate so decoded packets need no resampling.
const DefaultSampleRate = 48000

// Format describes the shape of a PCM stream.
type Format struct {
	SampleRate int // Samples per second per channel
	Channels   int // 1 for mono, 2 for interleaved stereo
}

// DefaultFormat returns the session recording format: 48kHz mono.
func DefaultFormat() Format {
	return Format{SampleRate: DefaultSampleRate, Channels: 1}
}

// Duration returns the playback time of sampleCount samples in this
// format. Interleaved stereo counts both channels toward sampleCount.
func (f Format) Duration(sampleCount int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 || sampleCount <= 0 {
		return 0
	}
	frames := sampleCount / f.Channels
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// SamplesFor returns how many samples span duration d in this format.
func (f Format) SamplesFor(d time.Duration) int {
	if f.SampleRate <= 0 || f.Channels <= 0 || d <= 0 {
		return 0
	}
	frames := int(d * time.Duration(f.SampleRate) / time.Second)
	return frames * f.Channels
}

// DownmixStereo averages interleaved stereo pairs into mono samples.
// A trailing unpaired sample is dropped.
func DownmixStereo(pcm []int16) []int16 {
	mono := make([]int16, len(pcm)/2)
	for i := range mono {
		mono[i] = int16((int32(pcm[2*i]) + int32(pcm[2*i+1])) / 2)
	}
	return mono
}
