package subtitle

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/coursemedia/captionburn/internal/caption"
	"github.com/coursemedia/captionburn/pkg/models"
)

// ErrEmptyCaptionSet is returned when a write is attempted with no captions.
var ErrEmptyCaptionSet = errors.New("no captions to write")

const (
	maxLineChars = 42

	auditGapSeconds   = 3.0
	auditGapRatio     = 0.1  // a gap issue when more than 10% of pairs gap
	auditLongRatio    = 0.05 // a length issue when more than 5% of captions overflow
	maxBlockChars     = maxLineChars * 2
	lineBreakScanSpan = 15
)

// Writer produces SRT subtitle files.
type Writer struct {
	logger zerolog.Logger
}

// NewWriter creates an SRT writer.
func NewWriter(logger zerolog.Logger) *Writer {
	return &Writer{logger: logger}
}

// Write renders captions to an SRT file at outputPath. Captions failing the
// quality audit are post-processed once more before rendering. The file is
// written with a UTF-8 BOM since some players require it for non-ASCII text.
func (w *Writer) Write(captions []models.Caption, outputPath string) error {
	if len(captions) == 0 {
		return ErrEmptyCaptionSet
	}

	if issues := auditQuality(captions); len(issues) > 0 {
		w.logger.Info().Strs("issues", issues).Msg("Quality issues detected, re-running post-processing")
		captions = caption.PostProcess(captions)
		if len(captions) == 0 {
			return ErrEmptyCaptionSet
		}
	}

	var b strings.Builder
	b.WriteString("\xEF\xBB\xBF")

	for i, c := range captions {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n",
			i+1,
			FormatSRTTime(c.Start),
			FormatSRTTime(c.End),
			wrapText(c.Text),
		)
	}

	if err := os.WriteFile(outputPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write subtitle file: %w", err)
	}

	w.logger.Info().Str("path", outputPath).Int("captions", len(captions)).Msg("Subtitle file created")
	return nil
}

// auditQuality checks the caption set for symptoms of a bad model pass:
// frequent large gaps, any overlap, or too many over-long captions.
func auditQuality(captions []models.Caption) []string {
	var issues []string

	gapCount := 0
	overlapCount := 0
	for i := 1; i < len(captions); i++ {
		if captions[i].Start-captions[i-1].End > auditGapSeconds {
			gapCount++
		}
		if captions[i].Start < captions[i-1].End {
			overlapCount++
		}
	}
	if float64(gapCount) > float64(len(captions))*auditGapRatio {
		issues = append(issues, fmt.Sprintf("%d large gaps between captions", gapCount))
	}
	if overlapCount > 0 {
		issues = append(issues, fmt.Sprintf("%d overlapping captions", overlapCount))
	}

	longCount := 0
	for _, c := range captions {
		if len(c.Text) > maxBlockChars {
			longCount++
		}
	}
	if float64(longCount) > float64(len(captions))*auditLongRatio {
		issues = append(issues, fmt.Sprintf("%d captions exceed recommended length", longCount))
	}

	return issues
}

// FormatSRTTime renders seconds as the SRT timestamp HH:MM:SS,mmm.
func FormatSRTTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := int(seconds) / 3600
	m := (int(seconds) % 3600) / 60
	s := int(seconds) % 60
	ms := int(math.Floor(math.Mod(seconds, 1) * 1000))
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// wrapText breaks a single-line caption longer than one display line in two,
// splitting at a space near the midpoint. Text that already contains a line
// break is left alone.
func wrapText(text string) string {
	if len(text) <= maxLineChars || strings.Contains(text, "\n") {
		return text
	}

	middle := len(text) / 2
	spaceIndex := strings.Index(text[middle:], " ")
	if spaceIndex != -1 {
		spaceIndex += middle
	}
	if spaceIndex == -1 || spaceIndex > middle+lineBreakScanSpan {
		spaceIndex = strings.LastIndex(text[:middle+1], " ")
	}

	if spaceIndex == -1 {
		return text
	}
	return text[:spaceIndex] + "\n" + text[spaceIndex+1:]
}
