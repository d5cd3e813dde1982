package video

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/dualcam/limits"
)

// createTestFrame builds an I420 frame with a uniform fill for scaling
// and compositing tests.
func createTestFrame(width, height int, y, u, v byte) *Frame {
	frame, err := NewFrame(width, height, FormatI420)
	if err != nil {
		panic(err)
	}
	if err := frame.Fill(y, u, v); err != nil {
		panic(err)
	}
	return frame
}

func TestNewFrame_I420(t *testing.T) {
	frame, err := NewFrame(640, 480, FormatI420)

	require.NoError(t, err)
	assert.Equal(t, 640, frame.Width)
	assert.Equal(t, 480, frame.Height)
	assert.Equal(t, FormatI420, frame.Format)
	assert.Len(t, frame.Y, 640*480)
	assert.Len(t, frame.U, 320*240)
	assert.Len(t, frame.V, 320*240)
	assert.Equal(t, 640, frame.YStride)
	assert.Equal(t, 320, frame.UStride)
	assert.Equal(t, 320, frame.VStride)
	assert.NoError(t, frame.Validate())
}

func TestNewFrame_NV12(t *testing.T) {
	frame, err := NewFrame(640, 480, FormatNV12)

	require.NoError(t, err)
	assert.Len(t, frame.Y, 640*480)
	assert.Len(t, frame.U, 640*240) // Interleaved UV is two chroma planes
	assert.Nil(t, frame.V)
	assert.Equal(t, 640, frame.UStride)
	assert.NoError(t, frame.Validate())
}

func TestNewFrame_RejectsBadGeometry(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
	}{
		{"zero width", 0, 480},
		{"odd width", 641, 480},
		{"odd height", 640, 481},
		{"below minimum", 8, 8},
		{"over maximum", limits.MaxFrameWidth + 2, 480},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrame(tt.width, tt.height, FormatI420)
			assert.Error(t, err)
		})
	}
}

func TestFrame_Validate_DetectsShortPlanes(t *testing.T) {
	frame, err := NewFrame(64, 64, FormatI420)
	require.NoError(t, err)

	frame.Y = frame.Y[:len(frame.Y)-1]
	assert.Error(t, frame.Validate())

	frame, err = NewFrame(64, 64, FormatI420)
	require.NoError(t, err)
	frame.V = frame.V[:10]
	assert.Error(t, frame.Validate())
}

func TestFrame_Validate_NilFrame(t *testing.T) {
	var frame *Frame
	assert.Error(t, frame.Validate())
}

func TestFrame_Clone_IsIndependent(t *testing.T) {
	frame := createTestFrame(64, 64, 100, 110, 120)
	frame.PTS = 42 * time.Millisecond
	frame.Source = SourceBack

	clone := frame.Clone()

	require.NotNil(t, clone)
	assert.Equal(t, frame.PTS, clone.PTS)
	assert.Equal(t, frame.Source, clone.Source)
	assert.Equal(t, byte(100), clone.Y[0])

	frame.Y[0] = 7
	assert.Equal(t, byte(100), clone.Y[0]) // Clone keeps its own storage
}

func TestFrame_FillBlack(t *testing.T) {
	frame, err := NewFrame(32, 32, FormatI420)
	require.NoError(t, err)

	require.NoError(t, frame.FillBlack())

	assert.Equal(t, byte(BlackY), frame.Y[0])
	assert.Equal(t, byte(BlackY), frame.Y[len(frame.Y)-1])
	assert.Equal(t, byte(NeutralChroma), frame.U[0])
	assert.Equal(t, byte(NeutralChroma), frame.V[len(frame.V)-1])
}

func TestFrame_Fill_RejectsNV12(t *testing.T) {
	frame, err := NewFrame(32, 32, FormatNV12)
	require.NoError(t, err)
	assert.Error(t, frame.Fill(0, 0, 0))
}

func TestPixelFormat_String(t *testing.T) {
	assert.Equal(t, "i420", FormatI420.String())
	assert.Equal(t, "nv12", FormatNV12.String())
}

func TestSource_String(t *testing.T) {
	assert.Equal(t, "front", SourceFront.String())
	assert.Equal(t, "back", SourceBack.String())
	assert.Equal(t, "composed", SourceComposed.String())
}
