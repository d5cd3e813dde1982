package mux

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"time"
)

// Container finalizes encoded packets into one output stream. A
// container belongs to exactly one Writer, which serializes all calls.
type Container interface {
	// WriteHeader emits the stream preamble. Called once before any
	// packet.
	WriteHeader() error

	// WriteVideo appends one video packet with a rebased timestamp.
	WriteVideo(pkt Packet) error

	// WriteAudio appends one audio packet with a rebased timestamp.
	WriteAudio(pkt Packet) error

	// Close finalizes the stream and closes the destination. The
	// output is not valid until Close returns.
	Close() error
}

// Raw container framing.
const (
	rawMagic   = "DCRS"
	rawVersion = 1

	rawTrackVideo = 'V'
	rawTrackAudio = 'A'

	rawFlagKeyframe = 0x01
)

// RawContainer writes a length-prefixed packet log.
//
// Framing: a 5-byte header ("DCRS" plus a version byte), then one
// record per packet: [track:1][flags:1][pts_us:8][size:4][data], all
// integers little-endian. The format is deliberately trivial so the
// per-camera passthrough outputs can be inspected with a hex dump and
// replayed by tests.
type RawContainer struct {
	dst WriteSeekCloser
	buf *bufio.Writer
}

// NewRawContainer creates a raw packet log over the destination sink.
func NewRawContainer(dst WriteSeekCloser) *RawContainer {
	return &RawContainer{
		dst: dst,
		buf: bufio.NewWriter(dst),
	}
}

// WriteHeader emits the magic and version.
func (c *RawContainer) WriteHeader() error {
	if _, err := c.buf.WriteString(rawMagic); err != nil {
		return fmt.Errorf("writing raw header: %w", err)
	}
	if err := c.buf.WriteByte(rawVersion); err != nil {
		return fmt.Errorf("writing raw header: %w", err)
	}
	return nil
}

// WriteVideo appends one video record.
func (c *RawContainer) WriteVideo(pkt Packet) error {
	return c.writeRecord(rawTrackVideo, pkt)
}

// WriteAudio appends one audio record.
func (c *RawContainer) WriteAudio(pkt Packet) error {
	return c.writeRecord(rawTrackAudio, pkt)
}

func (c *RawContainer) writeRecord(track byte, pkt Packet) error {
	var head [14]byte
	head[0] = track
	if pkt.Keyframe {
		head[1] = rawFlagKeyframe
	}
	binary.LittleEndian.PutUint64(head[2:], uint64(pkt.PTS/time.Microsecond))
	binary.LittleEndian.PutUint32(head[10:], uint32(len(pkt.Data)))

	if _, err := c.buf.Write(head[:]); err != nil {
		return fmt.Errorf("writing record header: %w", err)
	}
	if _, err := c.buf.Write(pkt.Data); err != nil {
		return fmt.Errorf("writing record data: %w", err)
	}
	return nil
}

// Close flushes buffered records and closes the destination.
func (c *RawContainer) Close() error {
	if err := c.buf.Flush(); err != nil {
		c.dst.Close()
		return fmt.Errorf("flushing raw container: %w", err)
	}
	if err := c.dst.Close(); err != nil {
		return fmt.Errorf("closing destination: %w", err)
	}
	return nil
}
