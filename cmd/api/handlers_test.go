package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursemedia/captionburn/internal/config"
	"github.com/coursemedia/captionburn/internal/middleware"
	"github.com/coursemedia/captionburn/pkg/models"
)

type fakeQueue struct {
	published []*models.CaptionJob
	depth     int
	dlqDepth  int
	err       error
}

func (q *fakeQueue) PublishJobWithRetry(ctx context.Context, job *models.CaptionJob, retryCount int) error {
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, job)
	return nil
}

func (q *fakeQueue) GetQueueDepth() (int, error) { return q.depth, q.err }
func (q *fakeQueue) GetDLQDepth() (int, error)   { return q.dlqDepth, q.err }

type fakeStore struct {
	uploaded map[string]string
	err      error
}

func (s *fakeStore) UploadFile(ctx context.Context, objectName, filePath string) error {
	if s.err != nil {
		return s.err
	}
	if s.uploaded == nil {
		s.uploaded = make(map[string]string)
	}
	s.uploaded[objectName] = filePath
	return nil
}

func (s *fakeStore) ArtifactURLs(ctx context.Context, jobID string, expiry time.Duration) (string, string, error) {
	if s.err != nil {
		return "", "", s.err
	}
	return "https://example.com/" + jobID + "/subtitles.srt", "https://example.com/" + jobID + "/output.mp4", nil
}

type fakeStatus struct {
	events map[string]*models.ProgressEvent
}

func (s *fakeStatus) LastEvent(ctx context.Context, processID string) (*models.ProgressEvent, error) {
	return s.events[processID], nil
}

func (s *fakeStatus) Subscribe(ctx context.Context, processID string) (<-chan models.ProgressEvent, func() error) {
	ch := make(chan models.ProgressEvent)
	close(ch)
	return ch, func() error { return nil }
}

func newTestAPI(t *testing.T) (*API, *fakeQueue, *fakeStore, *fakeStatus, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	middleware.SetJWTSecret("test-secret")

	q := &fakeQueue{depth: 2, dlqDepth: 1}
	store := &fakeStore{}
	status := &fakeStatus{events: make(map[string]*models.ProgressEvent)}

	api := &API{
		storage: store,
		queue:   q,
		status:  status,
		logger:  zerolog.Nop(),
	}

	cfg := &config.Config{}
	cfg.API.RateLimitRPS = 100
	cfg.API.RateLimitBurst = 100

	router := setupRouter(api, cfg, zerolog.Nop())
	return api, q, store, status, router
}

func authHeader(t *testing.T) string {
	t.Helper()
	token, err := middleware.GenerateToken("user-1", "u@example.com", time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func multipartVideo(t *testing.T, filename string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("video", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("not really a video"))
	require.NoError(t, err)

	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestSubmitJob(t *testing.T) {
	_, q, store, _, router := newTestAPI(t)

	body, contentType := multipartVideo(t, "intro_lecture.mp4", map[string]string{
		"content_type": "lecture",
		"style":        "highContrast",
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/jobs", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", authHeader(t))
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var job models.CaptionJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "lecture", job.ContentType)
	assert.Equal(t, "highContrast", job.StyleName)
	assert.Equal(t, models.JobStatusPending, job.Status)

	require.Len(t, q.published, 1)
	assert.Equal(t, job.ID, q.published[0].ID)
	assert.Contains(t, q.published[0].InputObject, "uploads/"+job.ID+"/")
	assert.Contains(t, store.uploaded, q.published[0].InputObject)
}

func TestSubmitJobRejectsUnknownExtension(t *testing.T) {
	_, q, _, _, router := newTestAPI(t)

	body, contentType := multipartVideo(t, "document.pdf", nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/jobs", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", authHeader(t))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, q.published)
}

func TestSubmitJobRequiresAuth(t *testing.T) {
	_, _, _, _, router := newTestAPI(t)

	body, contentType := multipartVideo(t, "intro.mp4", nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/jobs", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetJobStatus(t *testing.T) {
	_, _, _, status, router := newTestAPI(t)

	status.events["job-1"] = &models.ProgressEvent{
		ProcessID: "job-1",
		Percent:   42,
		Message:   "Captioning segments",
	}
	status.events["job-2"] = &models.ProgressEvent{
		ProcessID: "job-2",
		Percent:   100,
		Result:    &models.RunResult{SubtitlePath: "jobs/job-2/subtitles.srt"},
	}
	status.events["job-3"] = &models.ProgressEvent{
		ProcessID: "job-3",
		Percent:   100,
		Error:     "probe failed",
	}

	tests := []struct {
		jobID      string
		wantCode   int
		wantStatus string
	}{
		{"job-1", http.StatusOK, models.JobStatusProcessing},
		{"job-2", http.StatusOK, models.JobStatusCompleted},
		{"job-3", http.StatusOK, models.JobStatusFailed},
		{"missing", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.jobID, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/api/v1/jobs/"+tt.jobID, nil)
			req.Header.Set("Authorization", authHeader(t))
			router.ServeHTTP(w, req)

			require.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusOK {
				var resp jobStatusResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantStatus, resp.Status)
			}
		})
	}
}

func TestGetJobArtifacts(t *testing.T) {
	_, _, _, status, router := newTestAPI(t)

	status.events["running"] = &models.ProgressEvent{ProcessID: "running", Percent: 50}
	status.events["done"] = &models.ProgressEvent{
		ProcessID: "done",
		Percent:   100,
		Result:    &models.RunResult{OutputVideoPath: "jobs/done/output.mp4"},
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/jobs/running/artifacts", nil)
	req.Header.Set("Authorization", authHeader(t))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/v1/jobs/done/artifacts", nil)
	req.Header.Set("Authorization", authHeader(t))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "subtitle_url")
	assert.Contains(t, w.Body.String(), "output_url")
}

func TestHealthCheck(t *testing.T) {
	_, _, _, _, router := newTestAPI(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "queue_depth")
}

func TestListStyles(t *testing.T) {
	_, _, _, _, router := newTestAPI(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/styles", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "default")
	assert.Contains(t, w.Body.String(), "highContrast")
}

func TestQueueStats(t *testing.T) {
	_, _, _, _, router := newTestAPI(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/admin/queue", nil)
	req.Header.Set("Authorization", authHeader(t))
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dlq_depth")
}
