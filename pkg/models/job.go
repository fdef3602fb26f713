package models

import "time"

// CaptionJob represents one request to caption and burn a video.
type CaptionJob struct {
	ID          string     `json:"id"`
	InputObject string     `json:"input_object"`
	ContentType string     `json:"content_type"`
	StyleName   string     `json:"style_name,omitempty"`
	Priority    int        `json:"priority"`
	Status      string     `json:"status"`
	Progress    float64    `json:"progress"`
	ErrorMsg    string     `json:"error_msg,omitempty"`
	WorkerID    string     `json:"worker_id,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CaptionJob status constants
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// RunResult is the terminal payload of a successful pipeline run.
type RunResult struct {
	Captions        []Caption `json:"captions"`
	SubtitlePath    string    `json:"subtitle_path"`
	OutputVideoPath string    `json:"output_video_path"`
}

// ProgressEvent is one progress update emitted while a job runs. Percent is
// 0-100; Result is set only on the terminal event of a successful run.
type ProgressEvent struct {
	ProcessID string     `json:"process_id"`
	Percent   float64    `json:"percent"`
	Message   string     `json:"message"`
	Error     string     `json:"error,omitempty"`
	Result    *RunResult `json:"result,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
