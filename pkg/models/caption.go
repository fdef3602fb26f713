package models

// Caption represents one timed text line to be displayed over video.
// Times are offsets into the source video in seconds.
type Caption struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Duration returns the display duration of the caption in seconds.
func (c Caption) Duration() float64 {
	return c.End - c.Start
}

// RawCaption is the wire format returned by the captioning model.
// StartTime and EndTime use the "mm:ss.sss" format.
type RawCaption struct {
	Index     int    `json:"index"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Text      string `json:"text"`
}

// Segment is a bounded-duration slice of the source video, cut to its own
// temp file and captioned independently. StartTime is the offset of the
// segment into the source video.
type Segment struct {
	Index     int     `json:"index"`
	Path      string  `json:"path"`
	StartTime float64 `json:"start_time"`
	Duration  float64 `json:"duration"`
}

// SegmentInfo carries segment context into the captioning prompt so the
// model can keep its timestamps inside the segment's span.
type SegmentInfo struct {
	Index         int     `json:"index"`
	StartTime     float64 `json:"start_time"`
	Duration      float64 `json:"duration"`
	TotalDuration float64 `json:"total_duration,omitempty"`
}

// VideoMetadata holds the probe result for a media file.
type VideoMetadata struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Bitrate  int64   `json:"bitrate"`
	Size     int64   `json:"size"`
}
