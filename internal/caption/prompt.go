package caption

import (
	"fmt"
	"strings"

	"github.com/coursemedia/captionburn/pkg/models"
)

// BuildPrompt assembles the captioning instruction for one model call.
// contentType steers domain-specific guidance; segmentInfo, when non-nil,
// tells the model which slice of a longer video it is seeing.
func BuildPrompt(contentType string, segmentInfo *models.SegmentInfo) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Generate accurate subtitles for this %s video.\n\n", contentType)

	b.WriteString(`Return the subtitles as a JSON array in exactly this format:
[
  {
    "index": (sequence number starting from 0),
    "startTime": (start time in mm:ss.sss format),
    "endTime": (end time in mm:ss.sss format),
    "text": (subtitle content)
  }
]

IMPORTANT timing rules:
1. Start from second 0 and keep the subtitles continuous
2. Each subtitle lasts NO more than 6 seconds and NO less than 1 second
3. Subtitles must be precisely SYNCHRONIZED with the speech in the video
4. Use exact timestamps in mm:ss.sss format (minutes:seconds.milliseconds)

IMPORTANT content rules:
1. At most 2 lines per subtitle, each line NO longer than 42 characters
2. Do NOT abbreviate; write words and phrases out in full
3. Preserve meaning and use domain terminology accurately
4. REMOVE repeated words, filler words, and non-verbal sounds (um, ah, etc.)
5. Do NOT add information that is not present in the audio
`)

	switch contentType {
	case "lecture":
		b.WriteString(`
Special guidance for lecture videos:
1. Preserve academic terms and formulas exactly
2. If the lecturer writes on a board, keep subtitles in sync with what is written
3. Subtitles must use correct grammar, punctuation, and capitalized proper nouns
4. Keep the question structure when the lecturer asks questions
`)
	case "tutorial":
		b.WriteString(`
Special guidance for tutorial videos:
1. Keep steps, ordering, and command/action names exact
2. Subtitles must stay in sync with on-screen actions
3. Reproduce file names, commands, and paths exactly
4. Keep subtitles short and easy to follow while the viewer works along
`)
	}

	if segmentInfo != nil {
		fmt.Fprintf(&b, `
About this segment:
- This is segment %d of the video
- Start time: %.1f seconds
- Segment duration: %.1f seconds
- Total video duration: %.1f seconds
Timestamps must be relative to the START OF THIS SEGMENT, not the full video.
`, segmentInfo.Index+1, segmentInfo.StartTime, segmentInfo.Duration, segmentInfo.TotalDuration)
	}

	return b.String()
}
