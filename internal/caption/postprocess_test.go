package caption

import (
	"strings"
	"testing"

	"github.com/coursemedia/captionburn/pkg/models"
)

func TestPostProcess_Empty(t *testing.T) {
	if got := PostProcess(nil); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}

func TestPostProcess_SortsByStart(t *testing.T) {
	captions := []models.Caption{
		{Start: 10, End: 12, Text: "second line"},
		{Start: 0, End: 2, Text: "first line"},
	}

	out := PostProcess(captions)
	if len(out) != 2 {
		t.Fatalf("expected 2 captions, got %d", len(out))
	}
	if out[0].Text != "first line" || out[1].Text != "second line" {
		t.Errorf("captions not sorted by start time: %v", out)
	}
}

func TestPostProcess_MergesNearDuplicates(t *testing.T) {
	captions := []models.Caption{
		{Start: 0, End: 3, Text: "welcome to the course everyone"},
		{Start: 3.2, End: 6, Text: "welcome to the course everyone!"},
		{Start: 7, End: 9, Text: "completely different text here"},
	}

	out := PostProcess(captions)
	if len(out) != 2 {
		t.Fatalf("expected duplicate merge down to 2 captions, got %d: %v", len(out), out)
	}
	if out[0].End < 6 {
		t.Errorf("merged caption should keep the later end time, got %f", out[0].End)
	}
}

func TestPostProcess_KeepsDistantRepeats(t *testing.T) {
	// Same text but far apart in time is a legitimate repeat
	captions := []models.Caption{
		{Start: 0, End: 2, Text: "let us look at the example"},
		{Start: 30, End: 32, Text: "let us look at the example"},
	}

	out := PostProcess(captions)
	if len(out) != 2 {
		t.Errorf("distant repeats must not be merged, got %d captions", len(out))
	}
}

func TestPostProcess_ExtendsShortCaptions(t *testing.T) {
	captions := []models.Caption{
		{Start: 0, End: 0.2, Text: "a caption with quite a few words in it"},
	}

	out := PostProcess(captions)
	if len(out) != 1 {
		t.Fatalf("expected 1 caption, got %d", len(out))
	}
	if out[0].Duration() < 1.5 {
		t.Errorf("short caption should be extended to at least 1.5s, got %f", out[0].Duration())
	}
}

func TestPostProcess_TrimsLingeringCaptions(t *testing.T) {
	captions := []models.Caption{
		{Start: 0, End: 20, Text: "short text"},
	}

	out := PostProcess(captions)
	if out[0].Duration() > 6 {
		t.Errorf("lingering caption should be trimmed to at most 6s, got %f", out[0].Duration())
	}
}

func TestPostProcess_RemovesOverlaps(t *testing.T) {
	captions := []models.Caption{
		{Start: 0, End: 5, Text: "the first caption stays put"},
		{Start: 3, End: 8, Text: "the second one overlaps it badly"},
	}

	out := PostProcess(captions)
	for i := 1; i < len(out); i++ {
		if out[i].Start < out[i-1].End {
			t.Errorf("captions %d and %d overlap: %v", i-1, i, out)
		}
		if out[i].Duration() < 1 {
			t.Errorf("caption %d shorter than 1s after overlap fix: %v", i, out[i])
		}
	}
}

func TestPostProcess_SplitsLongCaptions(t *testing.T) {
	long := strings.Repeat("lengthy spoken phrase ", 6) // well past two lines
	captions := []models.Caption{
		{Start: 0, End: 2, Text: "an opening caption"},
		{Start: 3, End: 7, Text: strings.TrimSpace(long)},
	}

	out := PostProcess(captions)
	if len(out) < 3 {
		t.Fatalf("long caption should be split, got %d captions: %v", len(out), out)
	}
	for _, c := range out {
		if len(c.Text) > maxCaptionChars {
			t.Errorf("caption still over %d chars after split: %q", maxCaptionChars, c.Text)
		}
	}
	for i := 1; i < len(out); i++ {
		if out[i].Start < out[i-1].End {
			t.Errorf("split produced overlapping captions: %v", out)
		}
	}
}

func TestPostProcess_ReindexesSequentially(t *testing.T) {
	captions := []models.Caption{
		{Index: 7, Start: 0, End: 2, Text: "one"},
		{Index: 3, Start: 3, End: 5, Text: "two"},
	}

	out := PostProcess(captions)
	for i, c := range out {
		if c.Index != i {
			t.Errorf("expected index %d, got %d", i, c.Index)
		}
	}
}

func TestTextSimilarity(t *testing.T) {
	tests := []struct {
		name    string
		s1, s2  string
		minimum float64
		maximum float64
	}{
		{"identical", "hello world", "hello world", 1.0, 1.0},
		{"both empty", "", "", 1.0, 1.0},
		{"disjoint", "aaaa", "bbbb", 0, 0.1},
		{"shared prefix", "hello world there", "hello world friend", 0.6, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := textSimilarity(tt.s1, tt.s2)
			if got < tt.minimum || got > tt.maximum {
				t.Errorf("similarity = %f, expected in [%f, %f]", got, tt.minimum, tt.maximum)
			}
		})
	}
}

func TestPostProcess_Idempotent(t *testing.T) {
	input := []models.Caption{
		{Start: 2.8, End: 6, Text: "Welcome to the courses"},
		{Start: 0, End: 3, Text: "Welcome to the course"},
		{Start: 6.5, End: 9, Text: "Now let's get started"},
	}

	once := PostProcess(input)
	twice := PostProcess(once)

	if len(once) != len(twice) {
		t.Fatalf("second pass changed caption count: %d -> %d", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("caption %d changed on second pass: %+v -> %+v", i, once[i], twice[i])
		}
	}
}
