package mux

import (
	"fmt"

	"github.com/nareix/joy4/av"
	"github.com/nareix/joy4/codec/aacparser"
	"github.com/nareix/joy4/codec/h264parser"
	"github.com/nareix/joy4/format/mp4"
	"github.com/sirupsen/logrus"
)

// H264CodecData builds MP4 stream metadata from an encoder's SPS and
// PPS parameter sets. Hardware encoder integrations supply these from
// their configuration output.
func H264CodecData(sps, pps []byte) (av.CodecData, error) {
	codec, err := h264parser.NewCodecDataFromSPSAndPPS(sps, pps)
	if err != nil {
		return nil, fmt.Errorf("parsing H.264 parameter sets: %w", err)
	}
	return codec, nil
}

// AACCodecData builds MP4 stream metadata from an MPEG-4 audio
// specific configuration.
func AACCodecData(config []byte) (av.CodecData, error) {
	codec, err := aacparser.NewCodecDataFromMPEG4AudioConfigBytes(config)
	if err != nil {
		return nil, fmt.Errorf("parsing AAC configuration: %w", err)
	}
	return codec, nil
}

// MP4Container muxes pre-encoded H.264 and AAC packets into an MP4
// file. Video packets must already be in AVCC (length-prefixed NALU)
// form as produced by MP4-targeting encoders.
//
// The destination must support seeking: finalization rewrites the
// header with the sample tables accumulated during the session.
type MP4Container struct {
	dst   WriteSeekCloser
	muxer *mp4.Muxer

	streams  []av.CodecData
	audioIdx int8
}

// NewMP4Container creates an MP4 muxer over the destination sink.
// videoCodec is required; a nil audioCodec produces a video-only file,
// which is how the passthrough outputs use it when paired with an
// H.264 encoder.
func NewMP4Container(dst WriteSeekCloser, videoCodec, audioCodec av.CodecData) (*MP4Container, error) {
	if dst == nil {
		return nil, fmt.Errorf("destination cannot be nil")
	}
	if videoCodec == nil {
		return nil, fmt.Errorf("video codec data cannot be nil")
	}

	c := &MP4Container{
		dst:      dst,
		muxer:    mp4.NewMuxer(dst),
		streams:  []av.CodecData{videoCodec},
		audioIdx: -1,
	}
	if audioCodec != nil {
		c.audioIdx = 1
		c.streams = append(c.streams, audioCodec)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NewMP4Container",
		"streams":   len(c.streams),
		"has_audio": c.audioIdx >= 0,
	}).Info("Creating MP4 container")
	return c, nil
}

// WriteHeader emits the MP4 file type and stream boxes.
func (c *MP4Container) WriteHeader() error {
	if err := c.muxer.WriteHeader(c.streams); err != nil {
		return fmt.Errorf("writing MP4 header: %w", err)
	}
	return nil
}

// WriteVideo appends one H.264 access unit.
func (c *MP4Container) WriteVideo(pkt Packet) error {
	err := c.muxer.WritePacket(av.Packet{
		Idx:        0,
		IsKeyFrame: pkt.Keyframe,
		Time:       pkt.PTS,
		Data:       pkt.Data,
	})
	if err != nil {
		return fmt.Errorf("writing MP4 video packet: %w", err)
	}
	return nil
}

// WriteAudio appends one AAC frame. Fails when the container was built
// without an audio stream.
func (c *MP4Container) WriteAudio(pkt Packet) error {
	if c.audioIdx < 0 {
		return fmt.Errorf("container has no audio stream")
	}
	err := c.muxer.WritePacket(av.Packet{
		Idx:        c.audioIdx,
		IsKeyFrame: pkt.Keyframe,
		Time:       pkt.PTS,
		Data:       pkt.Data,
	})
	if err != nil {
		return fmt.Errorf("writing MP4 audio packet: %w", err)
	}
	return nil
}

// Close writes the trailer with the finalized sample tables and closes
// the destination.
func (c *MP4Container) Close() error {
	if err := c.muxer.WriteTrailer(); err != nil {
		c.dst.Close()
		return fmt.Errorf("finalizing MP4: %w", err)
	}
	if err := c.dst.Close(); err != nil {
		return fmt.Errorf("closing destination: %w", err)
	}
	return nil
}
