package caption

import (
	"math"
	"testing"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"00:00.000", 0},
		{"00:05.500", 5.5},
		{"01:30.250", 90.25},
		{"12:00.000", 720},
		{"1:02:03.500", 3723.5},
		{"  02:10.000  ", 130},
		{"garbage", 0},
		{"", 0},
		{"12", 0},
		{"-1:30.000", 0},
		{"aa:bb.cc", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseTime(tt.input)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("ParseTime(%q) = %f, expected %f", tt.input, got, tt.expected)
			}
		})
	}
}
