// Package mux writes encoded recording outputs with a consistent
// relative timeline.
//
// A Writer accepts composed video frames and audio samples carrying
// capture timestamps, rebases them against a per-session anchor (the
// first accepted timestamp), and hands encoded packets to a container.
// Timestamps that would rebase negative, or run backwards within a
// track, are discarded rather than written: a container with
// out-of-order samples is corrupt, a container with gaps is merely
// variable frame rate.
//
// Backpressure is resolved by dropping. An encoder that reports not
// ready, or a writer that has latched a hard failure, rejects the
// append and counts it; nothing is ever queued behind the encoder.
//
// Two container implementations are provided. MP4Container muxes
// pre-encoded H.264 and AAC packets into a standard MP4 file.
// RawContainer writes a length-prefixed packet log, pairing with the
// raw passthrough encoders for lossless per-camera capture and for
// tests. The passthrough writers recording the original camera streams
// are ordinary Writers with no audio track and an independent anchor.
package mux
