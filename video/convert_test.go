package video

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToI420_FromNV12(t *testing.T) {
	src, err := NewFrame(32, 32, FormatNV12)
	require.NoError(t, err)
	src.PTS = 7 * time.Millisecond
	src.Source = SourceFront

	for i := range src.Y {
		src.Y[i] = 50
	}
	// Interleave distinct U and V values.
	for i := 0; i < len(src.U); i += 2 {
		src.U[i] = 99    // U samples
		src.U[i+1] = 201 // V samples
	}

	dst, err := NewFrame(32, 32, FormatI420)
	require.NoError(t, err)

	require.NoError(t, ToI420(src, dst))

	assert.Equal(t, byte(50), dst.Y[0])
	assert.Equal(t, byte(50), dst.Y[len(dst.Y)-1])
	for i, v := range dst.U {
		require.Equal(t, byte(99), v, "U sample %d", i)
	}
	for i, v := range dst.V {
		require.Equal(t, byte(201), v, "V sample %d", i)
	}
	assert.Equal(t, src.PTS, dst.PTS)
	assert.Equal(t, SourceFront, dst.Source)
}

func TestToI420_FromI420Copies(t *testing.T) {
	src := createTestFrame(32, 32, 80, 90, 100)
	dst, err := NewFrame(32, 32, FormatI420)
	require.NoError(t, err)

	require.NoError(t, ToI420(src, dst))

	assert.Equal(t, src.Y, dst.Y)
	assert.Equal(t, src.U, dst.U)
	assert.Equal(t, src.V, dst.V)

	// Separate storage after the copy.
	src.Y[0] = 1
	assert.Equal(t, byte(80), dst.Y[0])
}

func TestToI420_ErrorCases(t *testing.T) {
	good, err := NewFrame(32, 32, FormatI420)
	require.NoError(t, err)

	t.Run("nil source", func(t *testing.T) {
		assert.Error(t, ToI420(nil, good))
	})
	t.Run("nil destination", func(t *testing.T) {
		assert.Error(t, ToI420(good, nil))
	})
	t.Run("dimension mismatch", func(t *testing.T) {
		small, err := NewFrame(16, 16, FormatI420)
		require.NoError(t, err)
		assert.Error(t, ToI420(good, small))
	})
	t.Run("nv12 destination", func(t *testing.T) {
		nv, err := NewFrame(32, 32, FormatNV12)
		require.NoError(t, err)
		assert.Error(t, ToI420(good, nv))
	})
}
