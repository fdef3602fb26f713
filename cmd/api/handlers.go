package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coursemedia/captionburn/internal/config"
	"github.com/coursemedia/captionburn/internal/middleware"
	"github.com/coursemedia/captionburn/internal/subtitle"
	"github.com/coursemedia/captionburn/pkg/models"
)

// jobQueue is the queue surface the API needs.
type jobQueue interface {
	PublishJobWithRetry(ctx context.Context, job *models.CaptionJob, retryCount int) error
	GetQueueDepth() (int, error)
	GetDLQDepth() (int, error)
}

// objectStore is the storage surface the API needs.
type objectStore interface {
	UploadFile(ctx context.Context, objectName, filePath string) error
	ArtifactURLs(ctx context.Context, jobID string, expiry time.Duration) (string, string, error)
}

// statusStore reads job progress published by workers.
type statusStore interface {
	LastEvent(ctx context.Context, processID string) (*models.ProgressEvent, error)
	Subscribe(ctx context.Context, processID string) (<-chan models.ProgressEvent, func() error)
}

// API holds the handler dependencies.
type API struct {
	storage objectStore
	queue   jobQueue
	status  statusStore
	logger  zerolog.Logger
}

func setupRouter(api *API, cfg *config.Config, zlog zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(zlog))

	router.GET("/health", api.healthCheck)
	router.GET("/api/v1/styles", api.listStyles)

	rl := middleware.NewRateLimiter(cfg.API.RateLimitRPS, cfg.API.RateLimitBurst)

	authed := router.Group("/api/v1")
	authed.Use(middleware.JWTAuth(), middleware.RateLimit(rl))
	{
		authed.POST("/jobs", api.submitJob)
		authed.GET("/jobs/:id", api.getJobStatus)
		authed.GET("/jobs/:id/events", api.streamJobEvents)
		authed.GET("/jobs/:id/artifacts", api.getJobArtifacts)
		authed.GET("/admin/queue", api.getQueueStats)
	}

	return router
}

func (api *API) healthCheck(c *gin.Context) {
	depth, err := api.queue.GetQueueDepth()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "queue unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"queue_depth": depth,
	})
}

func (api *API) listStyles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"styles": subtitle.PresetNames()})
}

var allowedVideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
}

// submitJob accepts a video upload and enqueues a caption job for it.
func (api *API) submitJob(c *gin.Context) {
	file, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No video file provided"})
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedVideoExtensions[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unsupported video format %q", ext)})
		return
	}

	jobID := uuid.New().String()

	// Stage the upload locally, then push it to object storage under the
	// job's prefix. Keeping the original filename matters: it feeds the
	// caption fallback for videos the model cannot process.
	tempPath := filepath.Join(os.TempDir(), jobID+"_"+filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, tempPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}
	defer os.Remove(tempPath)

	objectName := fmt.Sprintf("uploads/%s/%s", jobID, filepath.Base(file.Filename))
	if err := api.storage.UploadFile(c.Request.Context(), objectName, tempPath); err != nil {
		api.logger.Error().Err(err).Msg("Failed to upload video")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store video"})
		return
	}

	priority, _ := strconv.Atoi(c.PostForm("priority"))

	job := &models.CaptionJob{
		ID:          jobID,
		InputObject: objectName,
		ContentType: c.DefaultPostForm("content_type", "lecture"),
		StyleName:   c.PostForm("style"),
		Priority:    priority,
		Status:      models.JobStatusPending,
		CreatedAt:   time.Now(),
	}

	if err := api.queue.PublishJobWithRetry(c.Request.Context(), job, 0); err != nil {
		api.logger.Error().Err(err).Msg("Failed to enqueue job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue job"})
		return
	}

	c.JSON(http.StatusAccepted, job)
}

// jobStatusResponse is the wire shape of a job status query.
type jobStatusResponse struct {
	ID      string            `json:"id"`
	Status  string            `json:"status"`
	Percent float64           `json:"percent"`
	Message string            `json:"message,omitempty"`
	Error   string            `json:"error,omitempty"`
	Result  *models.RunResult `json:"result,omitempty"`
}

func statusFromEvent(event *models.ProgressEvent) jobStatusResponse {
	resp := jobStatusResponse{
		ID:      event.ProcessID,
		Percent: event.Percent,
		Message: event.Message,
		Error:   event.Error,
		Result:  event.Result,
	}

	switch {
	case event.Error != "":
		resp.Status = models.JobStatusFailed
	case event.Result != nil:
		resp.Status = models.JobStatusCompleted
	default:
		resp.Status = models.JobStatusProcessing
	}
	return resp
}

func (api *API) getJobStatus(c *gin.Context) {
	jobID := c.Param("id")

	event, err := api.status.LastEvent(c.Request.Context(), jobID)
	if err != nil {
		api.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to read job status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read job status"})
		return
	}
	if event == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	c.JSON(http.StatusOK, statusFromEvent(event))
}

// streamJobEvents streams progress updates for one job as server-sent
// events until the job reaches a terminal state or the client disconnects.
func (api *API) streamJobEvents(c *gin.Context) {
	jobID := c.Param("id")

	events, cancel := api.status.Subscribe(c.Request.Context(), jobID)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("progress", statusFromEvent(&event))
			// Terminal events end the stream
			return event.Error == "" && event.Result == nil
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (api *API) getJobArtifacts(c *gin.Context) {
	jobID := c.Param("id")

	event, err := api.status.LastEvent(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read job status"})
		return
	}
	if event == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if event.Result == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Job has not completed"})
		return
	}

	subtitleURL, outputURL, err := api.storage.ArtifactURLs(c.Request.Context(), jobID, time.Hour)
	if err != nil {
		api.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to presign artifacts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate download URLs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subtitle_url": subtitleURL,
		"output_url":   outputURL,
	})
}

func (api *API) getQueueStats(c *gin.Context) {
	depth, err := api.queue.GetQueueDepth()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read queue depth"})
		return
	}

	dlqDepth, err := api.queue.GetDLQDepth()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read DLQ depth"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"queue_depth": depth,
		"dlq_depth":   dlqDepth,
	})
}
