package limits

import (
	"errors"
	"testing"
)

// TestMaxPlaneBytesCalculation verifies that MaxPlaneBytes covers one full
// plane at maximum geometry
func TestMaxPlaneBytesCalculation(t *testing.T) {
	expected := MaxFrameWidth * MaxFrameHeight
	if MaxPlaneBytes != expected {
		t.Errorf("MaxPlaneBytes = %d, want %d (MaxFrameWidth * MaxFrameHeight)",
			MaxPlaneBytes, expected)
	}
}

// TestValidateGeometry exercises the accept and reject boundaries of the
// frame geometry envelope
func TestValidateGeometry(t *testing.T) {
	tests := []struct {
		name    string
		width   int
		height  int
		wantErr error
	}{
		{"minimum geometry", MinFrameWidth, MinFrameHeight, nil},
		{"common 1080p", 1920, 1080, nil},
		{"common 720p", 1280, 720, nil},
		{"maximum geometry", MaxFrameWidth, MaxFrameHeight, nil},
		{"zero width", 0, 1080, ErrGeometryInvalid},
		{"zero height", 1920, 0, ErrGeometryInvalid},
		{"negative width", -2, 1080, ErrGeometryInvalid},
		{"below minimum width", MinFrameWidth - 2, 720, ErrGeometryInvalid},
		{"below minimum height", 1280, MinFrameHeight - 2, ErrGeometryInvalid},
		{"odd width", 1921, 1080, ErrGeometryInvalid},
		{"odd height", 1920, 1081, ErrGeometryInvalid},
		{"width over maximum", MaxFrameWidth + 2, 1080, ErrGeometryTooLarge},
		{"height over maximum", 1920, MaxFrameHeight + 2, ErrGeometryTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGeometry(tt.width, tt.height)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateGeometry(%d, %d) = %v, want nil", tt.width, tt.height, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateGeometry(%d, %d) = %v, want %v", tt.width, tt.height, err, tt.wantErr)
			}
		})
	}
}

// TestValidatePlane verifies the absolute plane size ceiling
func TestValidatePlane(t *testing.T) {
	if err := ValidatePlane(make([]byte, MaxPlaneBytes)); err != nil {
		t.Errorf("plane at limit rejected: %v", err)
	}
	if err := ValidatePlane(make([]byte, MaxPlaneBytes+1)); !errors.Is(err, ErrGeometryTooLarge) {
		t.Errorf("plane over limit = %v, want ErrGeometryTooLarge", err)
	}
	// Empty planes are legal here; geometry validation catches zero dimensions.
	if err := ValidatePlane(nil); err != nil {
		t.Errorf("nil plane rejected: %v", err)
	}
}

// TestValidateAudioBatch verifies PCM batch bounds
func TestValidateAudioBatch(t *testing.T) {
	if err := ValidateAudioBatch(nil); !errors.Is(err, ErrAudioBatchEmpty) {
		t.Errorf("nil batch = %v, want ErrAudioBatchEmpty", err)
	}
	if err := ValidateAudioBatch(make([]int16, 960)); err != nil {
		t.Errorf("20ms mono batch rejected: %v", err)
	}
	if err := ValidateAudioBatch(make([]int16, MaxAudioBatchSamples)); err != nil {
		t.Errorf("batch at limit rejected: %v", err)
	}
	if err := ValidateAudioBatch(make([]int16, MaxAudioBatchSamples+1)); !errors.Is(err, ErrAudioBatchTooLarge) {
		t.Errorf("batch over limit = %v, want ErrAudioBatchTooLarge", err)
	}
}
