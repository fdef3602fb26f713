package media

import (
	"testing"
)

func TestParseSilenceLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected []float64
	}{
		{
			name:     "single silence end",
			line:     "[silencedetect @ 0x55d] silence_end: 12.345 | silence_duration: 2.1",
			expected: []float64{12.345},
		},
		{
			name:     "integer value",
			line:     "silence_end: 300 | silence_duration: 1.5",
			expected: []float64{300},
		},
		{
			name:     "no match",
			line:     "frame=  100 fps= 25 q=28.0 size=     512kB",
			expected: nil,
		},
		{
			name:     "silence start only",
			line:     "[silencedetect @ 0x55d] silence_start: 10.2",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSilenceLine(tt.line)
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("expected %v, got %v", tt.expected, got)
				}
			}
		})
	}
}

func TestFitResolution(t *testing.T) {
	tests := []struct {
		name                 string
		w, h, maxW, maxH     int
		expectedW, expectedH int
	}{
		{"already fits", 1280, 720, 1280, 720, 1280, 720},
		{"smaller untouched", 640, 360, 1280, 720, 640, 360},
		{"1080p landscape", 1920, 1080, 1280, 720, 1280, 720},
		{"4k landscape", 3840, 2160, 1280, 720, 1280, 720},
		{"portrait", 1080, 1920, 1280, 720, 404, 720},
		{"ultrawide capped by width", 2560, 1080, 1280, 720, 1280, 540},
		{"invalid dimensions", 0, 0, 1280, 720, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := fitResolution(tt.w, tt.h, tt.maxW, tt.maxH)
			if w != tt.expectedW || h != tt.expectedH {
				t.Errorf("expected %dx%d, got %dx%d", tt.expectedW, tt.expectedH, w, h)
			}
			if w%2 != 0 || h%2 != 0 {
				t.Errorf("scaled dimensions must be even, got %dx%d", w, h)
			}
		})
	}
}
