package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultFormat(t *testing.T) {
	f := DefaultFormat()
	assert.Equal(t, 48000, f.SampleRate)
	assert.Equal(t, 1, f.Channels)
}

func TestFormat_Duration(t *testing.T) {
	mono := Format{SampleRate: 48000, Channels: 1}
	stereo := Format{SampleRate: 48000, Channels: 2}

	assert.Equal(t, 20*time.Millisecond, mono.Duration(960))
	assert.Equal(t, time.Second, mono.Duration(48000))
	assert.Equal(t, 20*time.Millisecond, stereo.Duration(1920), "stereo counts both channels")
	assert.Zero(t, mono.Duration(0))
	assert.Zero(t, Format{}.Duration(960))
}

func TestFormat_SamplesFor(t *testing.T) {
	mono := Format{SampleRate: 48000, Channels: 1}
	stereo := Format{SampleRate: 48000, Channels: 2}

	assert.Equal(t, 960, mono.SamplesFor(20*time.Millisecond))
	assert.Equal(t, 1920, stereo.SamplesFor(20*time.Millisecond))
	assert.Zero(t, mono.SamplesFor(0))
	assert.Zero(t, mono.SamplesFor(-time.Second))
}

func TestFormat_DurationSamplesRoundTrip(t *testing.T) {
	f := DefaultFormat()
	for _, d := range []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, time.Second} {
		assert.Equal(t, d, f.Duration(f.SamplesFor(d)), "round trip for %v", d)
	}
}

func TestDownmixStereo(t *testing.T) {
	stereo := []int16{100, 200, -100, 100, 32767, 32767, -32768, -32768}
	mono := DownmixStereo(stereo)

	assert.Equal(t, []int16{150, 0, 32767, -32768}, mono)
}

func TestDownmixStereo_DropsTrailingSample(t *testing.T) {
	mono := DownmixStereo([]int16{10, 20, 99})
	assert.Equal(t, []int16{15}, mono)
}

func TestDownmixStereo_Empty(t *testing.T) {
	assert.Empty(t, DownmixStereo(nil))
}
