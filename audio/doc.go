// Package audio provides PCM handling and Opus decoding for the
// recording pipeline's audio track.
//
// The capture side delivers either raw PCM batches or compressed Opus
// packets. Raw PCM flows straight to the session writer; Opus packets
// are decoded first using pion/opus (pure Go). Everything downstream of
// this package works in signed 16-bit mono PCM at the session sample
// rate, with stereo input downmixed on the way in.
package audio
