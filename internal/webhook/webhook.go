// Package webhook delivers caption job lifecycle notifications to
// configured HTTP endpoints, with HMAC-signed payloads and retry on
// transient failure.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coursemedia/captionburn/internal/config"
	"github.com/coursemedia/captionburn/pkg/models"
)

// Webhook event names
const (
	EventJobStarted   = "job.started"
	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"
)

// Event is the payload envelope posted to each endpoint.
type Event struct {
	ID        string      `json:"id"`
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// JobPayload is the data carried by job lifecycle events.
type JobPayload struct {
	Job    *models.CaptionJob `json:"job"`
	Result *models.RunResult  `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// Service posts events to the configured endpoints.
type Service struct {
	client     *http.Client
	endpoints  []config.WebhookConfig
	logger     zerolog.Logger
	maxRetries int
	retryDelay time.Duration
}

// NewService creates a webhook service. With no endpoints configured every
// notification is a no-op.
func NewService(endpoints []config.WebhookConfig, logger zerolog.Logger) *Service {
	return &Service{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		endpoints:  endpoints,
		logger:     logger,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Notify posts an event to every configured endpoint. Failed deliveries are
// retried with backoff; a still-failing endpoint is logged and skipped so one
// bad receiver never blocks the rest.
func (s *Service) Notify(ctx context.Context, event string, data interface{}) error {
	if len(s.endpoints) == 0 {
		return nil
	}

	payload := Event{
		ID:        uuid.New().String(),
		Event:     event,
		Timestamp: time.Now(),
		Data:      data,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	for _, endpoint := range s.endpoints {
		if err := s.deliver(ctx, endpoint, payload.ID, event, body); err != nil {
			s.logger.Warn().
				Err(err).
				Str("url", endpoint.URL).
				Str("event", event).
				Msg("Webhook delivery failed")
		}
	}

	return nil
}

func (s *Service) deliver(ctx context.Context, endpoint config.WebhookConfig, deliveryID, event string, body []byte) error {
	var lastErr error

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if attempt > 1 {
			delay := s.retryDelay * time.Duration(1<<(attempt-2))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = s.post(ctx, endpoint, deliveryID, event, body)
		if lastErr == nil {
			return nil
		}
	}

	return lastErr
}

func (s *Service) post(ctx context.Context, endpoint config.WebhookConfig, deliveryID, event string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "CaptionBurn-Webhook/1.0")
	req.Header.Set("X-Webhook-Event", event)
	req.Header.Set("X-Webhook-Delivery", deliveryID)

	if endpoint.Secret != "" {
		req.Header.Set("X-Webhook-Signature", Signature(body, endpoint.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}

	return nil
}

// Signature computes the HMAC-SHA256 header value for a payload.
func Signature(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// NotifyJobStarted sends notification when a job starts
func (s *Service) NotifyJobStarted(ctx context.Context, job *models.CaptionJob) error {
	return s.Notify(ctx, EventJobStarted, JobPayload{Job: job})
}

// NotifyJobCompleted sends notification when a job completes
func (s *Service) NotifyJobCompleted(ctx context.Context, job *models.CaptionJob, result *models.RunResult) error {
	return s.Notify(ctx, EventJobCompleted, JobPayload{Job: job, Result: result})
}

// NotifyJobFailed sends notification when a job fails
func (s *Service) NotifyJobFailed(ctx context.Context, job *models.CaptionJob, jobErr error) error {
	return s.Notify(ctx, EventJobFailed, JobPayload{Job: job, Error: jobErr.Error()})
}
