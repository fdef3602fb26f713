package render

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/coursemedia/captionburn/internal/media"
)

func TestEscapeFilterPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/tmp/subs.srt", "/tmp/subs.srt"},
		{"C:\\videos\\subs.srt", "C\\:\\\\videos\\\\subs.srt"},
		{"/tmp/it's here.srt", "/tmp/it\\'s here.srt"},
		{"/tmp/[draft],final;v2.srt", "/tmp/\\[draft\\]\\,final\\;v2.srt"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := escapeFilterPath(tt.input); got != tt.expected {
				t.Errorf("escapeFilterPath(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestIsSubtitlePathError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			"missing file",
			&media.TranscoderError{Op: "burn", Stderr: "subs.srt: No such file or directory", Err: errors.New("exit status 1")},
			true,
		},
		{
			"filter init failure",
			&media.TranscoderError{Op: "burn", Stderr: "Error initializing filter 'subtitles' with args", Err: errors.New("exit status 1")},
			true,
		},
		{
			"unrelated encode failure",
			&media.TranscoderError{Op: "burn", Stderr: "Conversion failed! Invalid data found", Err: errors.New("exit status 1")},
			false,
		},
		{
			"wrapped transcoder error",
			fmt.Errorf("burn: %w", &media.TranscoderError{Op: "burn", Stderr: "unable to open subs.srt", Err: errors.New("exit status 1")}),
			true,
		},
		{
			"plain error",
			errors.New("no such file"),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSubtitlePathError(tt.err); got != tt.expected {
				t.Errorf("isSubtitlePathError = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestReportProgress(t *testing.T) {
	output := strings.Join([]string{
		"frame=100",
		"out_time_ms=5000000",
		"progress=continue",
		"out_time_ms=10000000",
		"progress=end",
	}, "\n")

	var seen []int
	b := &Burner{}
	b.reportProgress(strings.NewReader(output), 10, func(p int) {
		seen = append(seen, p)
	})

	if len(seen) != 2 || seen[0] != 50 || seen[1] != 100 {
		t.Errorf("expected progress [50, 100], got %v", seen)
	}
}

func TestReportProgress_NoDuration(t *testing.T) {
	b := &Burner{}
	called := false
	b.reportProgress(strings.NewReader("out_time_ms=5000000\n"), 0, func(int) {
		called = true
	})
	if called {
		t.Error("progress must not be reported without a known duration")
	}
}
