package caption

import (
	"strconv"
	"strings"
)

// ParseTime converts a model-emitted timestamp in "mm:ss.sss" form to
// seconds. Hours ("hh:mm:ss.sss") are tolerated since models occasionally
// emit them for long segments. Malformed input yields 0 so a single bad
// timestamp never aborts a whole segment.
func ParseTime(s string) float64 {
	parts := strings.Split(strings.TrimSpace(s), ":")

	switch len(parts) {
	case 2:
		minutes, err1 := strconv.ParseFloat(parts[0], 64)
		seconds, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil || minutes < 0 || seconds < 0 {
			return 0
		}
		return minutes*60 + seconds
	case 3:
		hours, err1 := strconv.ParseFloat(parts[0], 64)
		minutes, err2 := strconv.ParseFloat(parts[1], 64)
		seconds, err3 := strconv.ParseFloat(parts[2], 64)
		if err1 != nil || err2 != nil || err3 != nil || hours < 0 || minutes < 0 || seconds < 0 {
			return 0
		}
		return hours*3600 + minutes*60 + seconds
	}
	return 0
}
