package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDecoder(t *testing.T) {
	d := NewDecoder()
	require.NotNil(t, d)
	assert.NotNil(t, d.decoder)
	assert.Len(t, d.output, 1920*2*2)
}

func TestDecoder_Decode_EmptyPacket(t *testing.T) {
	d := NewDecoder()
	pcm, rate, err := d.Decode(nil)

	assert.Error(t, err)
	assert.Nil(t, pcm)
	assert.Zero(t, rate)
}

// The output buffer is reused across packets; a decode must never see
// the previous packet's samples in the tail.
func TestDecoder_Decode_ClearsReusedBuffer(t *testing.T) {
	d := NewDecoder()
	for i := range d.output {
		d.output[i] = 0x7f
	}

	// A CELT-only TOC byte is rejected by the SILK-only decoder, after
	// the buffer has been cleared for the attempt.
	_, _, err := d.Decode([]byte{0xff})
	require.Error(t, err)

	for i, b := range d.output {
		if b != 0 {
			t.Fatalf("output[%d] = %#x, want buffer cleared between decodes", i, b)
		}
	}
}
