package caption

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/coursemedia/captionburn/pkg/models"
)

// PlaceholderSegmentCaptions produces minimal captions for a segment whose
// model calls all failed, so one bad segment degrades the output instead of
// failing the whole run. Times are absolute in the source video.
func PlaceholderSegmentCaptions(segment models.Segment) []models.Caption {
	mid := segment.StartTime + math.Min(10, segment.Duration/2)
	return []models.Caption{
		{
			Index: 0,
			Start: segment.StartTime,
			End:   mid,
			Text:  fmt.Sprintf("[Segment %d]", segment.Index+1),
		},
		{
			Index: 1,
			Start: mid,
			End:   segment.StartTime + segment.Duration,
			Text:  "[Video content]",
		},
	}
}

// ShortVideoFallback produces minimal captions for a short video whose
// direct captioning failed, derived from the file name.
func ShortVideoFallback(videoPath string, duration float64) []models.Caption {
	name := filepath.Base(videoPath)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")

	cut := math.Min(5, duration)
	return []models.Caption{
		{Index: 0, Start: 0, End: cut, Text: name},
		{Index: 1, Start: cut, End: duration, Text: "Video content"},
	}
}
