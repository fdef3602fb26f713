package caption

import (
	"math"
	"sort"
	"strings"

	"github.com/coursemedia/captionburn/pkg/models"
)

const (
	// maxCaptionChars is two display lines of 42 characters.
	maxCaptionChars = 84

	minDisplaySeconds  = 1.5
	secondsPerWord     = 0.3
	dedupSimilarity    = 0.8
	dedupMaxGapSeconds = 1.0
	interCaptionGap    = 0.1
)

// PostProcess cleans up raw model captions in three passes: near-duplicate
// merging, display-duration adjustment, then overlap removal with splitting
// of over-long captions. The input slice is not modified.
func PostProcess(captions []models.Caption) []models.Caption {
	if len(captions) == 0 {
		return nil
	}

	sorted := make([]models.Caption, len(captions))
	copy(sorted, captions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	deduped := mergeNearDuplicates(sorted)
	adjusted := adjustDurations(deduped)
	return resolveOverlaps(adjusted)
}

// mergeNearDuplicates collapses adjacent captions whose text is mostly the
// same and whose times nearly touch. Models repeat lines across a segment
// boundary or a retried call; the merged caption keeps the later end time.
func mergeNearDuplicates(captions []models.Caption) []models.Caption {
	out := make([]models.Caption, 0, len(captions))
	for i, cur := range captions {
		if i == 0 {
			out = append(out, cur)
			continue
		}
		prev := &out[len(out)-1]
		if textSimilarity(cur.Text, prev.Text) > dedupSimilarity &&
			math.Abs(cur.Start-prev.End) < dedupMaxGapSeconds {
			prev.End = math.Max(prev.End, cur.End)
			continue
		}
		out = append(out, cur)
	}
	return out
}

// textSimilarity measures how alike two strings are as the length of their
// longest common substring over the longer string's length.
func textSimilarity(s1, s2 string) float64 {
	longer, shorter := s1, s2
	if len(s2) > len(s1) {
		longer, shorter = s2, s1
	}
	if len(longer) == 0 {
		return 1.0
	}
	return float64(longestCommonSubstring(shorter, longer)) / float64(len(longer))
}

func longestCommonSubstring(shorter, longer string) int {
	longest := 0
	for i := 0; i < len(shorter); i++ {
		for j := 0; j < len(longer); j++ {
			k := 0
			for i+k < len(shorter) && j+k < len(longer) && shorter[i+k] == longer[j+k] {
				k++
			}
			if k > longest {
				longest = k
			}
		}
	}
	return longest
}

// adjustDurations stretches captions that flash by too fast and trims ones
// that linger. The ideal duration scales with word count.
func adjustDurations(captions []models.Caption) []models.Caption {
	out := make([]models.Caption, len(captions))
	for i, sub := range captions {
		words := len(strings.Fields(sub.Text))
		ideal := math.Max(minDisplaySeconds, float64(words)*secondsPerWord)
		current := sub.End - sub.Start

		if current < ideal {
			sub.End = sub.Start + ideal
		} else if current > ideal*2 && current > 6 {
			sub.End = sub.Start + math.Min(current, math.Max(6, ideal*1.5))
		}
		out[i] = sub
	}
	return out
}

// resolveOverlaps walks the captions in order pushing each overlapping start
// just past the previous end, and splits captions longer than two display
// lines at the word midpoint. The second half of a split is re-queued so it
// is itself checked for overlap and length.
func resolveOverlaps(captions []models.Caption) []models.Caption {
	pending := make([]models.Caption, len(captions))
	copy(pending, captions)

	out := make([]models.Caption, 0, len(pending))
	for i := 0; i < len(pending); i++ {
		cur := pending[i]

		if i == 0 {
			out = append(out, cur)
			continue
		}

		prev := out[len(out)-1]
		if cur.Start < prev.End {
			cur.Start = prev.End + interCaptionGap
			if cur.End-cur.Start < 1 {
				cur.End = cur.Start + 1
			}
		}

		if len(cur.Text) > maxCaptionChars {
			words := strings.Split(cur.Text, " ")
			mid := (len(words) + 1) / 2

			firstHalf := strings.Join(words[:mid], " ")
			secondHalf := strings.Join(words[mid:], " ")
			midTime := cur.Start + (cur.End-cur.Start)/2

			first := cur
			first.Text = firstHalf
			first.End = midTime
			out = append(out, first)

			second := cur
			second.Text = secondHalf
			second.Start = midTime + interCaptionGap
			pending = append(pending[:i+1], append([]models.Caption{second}, pending[i+1:]...)...)
			continue
		}

		out = append(out, cur)
	}

	for i := range out {
		out[i].Index = i
	}
	return out
}
