package audio

import (
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// Decoder decodes Opus packets into mono PCM for the recording pipeline.
//
// Uses pion/opus for decoding (pure Go). The decoder reuses one output
// buffer across calls, so a Decoder must not be shared between
// goroutines; the pipeline owns exactly one per session.
type Decoder struct {
	decoder *opus.Decoder
	output  []byte
}

// NewDecoder creates an Opus packet decoder.
func NewDecoder() *Decoder {
	logrus.WithFields(logrus.Fields{
		"function": "NewDecoder",
		"decoder":  "opus.Decoder",
	}).Info("Creating audio packet decoder")

	decoder := opus.NewDecoder()

	return &Decoder{
		decoder: &decoder,
		// One decoded frame: 1920 samples (40ms at 48kHz) covers the
		// frame sizes the decoder produces, times two bytes per sample
		// and two channels for stereo packets.
		output: make([]byte, 1920*2*2),
	}
}

// Decode decodes one Opus packet into mono PCM samples.
//
// Stereo packets are downmixed to mono. The returned sample rate comes
// from the packet's coded bandwidth.
//
// Parameters:
//   - data: One encoded Opus packet
//
// Returns:
//   - []int16: Decoded mono PCM samples
//   - int: Sample rate of the decoded audio in Hz
//   - error: Any error that occurred during decoding
func (d *Decoder) Decode(data []byte) ([]int16, int, error) {
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("empty audio packet")
	}

	// The output buffer is reused across calls and the decoder does not
	// report how much of it a short packet filled, so clear it first:
	// the tail must be silence, not the previous packet's samples.
	for i := range d.output {
		d.output[i] = 0
	}

	bandwidth, isStereo, err := d.decoder.Decode(data, d.output)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "Decode",
			"data_size": len(data),
			"error":     err.Error(),
		}).Error("Opus decode failed")
		return nil, 0, fmt.Errorf("opus decode failed: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Decode",
		"bandwidth": bandwidth.String(),
		"is_stereo": isStereo,
	}).Debug("Opus decode completed")

	// Convert []byte to []int16 (little-endian).
	sampleCount := len(d.output) / 2
	pcm := make([]int16, sampleCount)
	for i := 0; i < sampleCount; i++ {
		pcm[i] = int16(d.output[i*2]) | int16(d.output[i*2+1])<<8
	}

	if isStereo {
		pcm = DownmixStereo(pcm)
	}

	return pcm, int(bandwidth.SampleRate()), nil
}
