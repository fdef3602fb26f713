package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coursemedia/captionburn/pkg/models"
)

// statusTTL bounds how long the last known state of a finished job stays
// queryable.
const statusTTL = 24 * time.Hour

// RedisSink publishes progress events on a Redis channel per job and
// mirrors the latest event into a key so late subscribers can catch up.
type RedisSink struct {
	client *redis.Client
}

// NewRedisSink connects to Redis and verifies the connection.
func NewRedisSink(host string, port int, password string, db int) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisSink{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

func channelKey(processID string) string { return fmt.Sprintf("captionburn:progress:%s", processID) }
func statusKey(processID string) string  { return fmt.Sprintf("captionburn:status:%s", processID) }

// Publish sends the event to the job's channel and stores it as the job's
// latest state.
func (s *RedisSink) Publish(ctx context.Context, event models.ProgressEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal progress event: %w", err)
	}

	if err := s.client.Publish(ctx, channelKey(event.ProcessID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish progress: %w", err)
	}

	return s.client.Set(ctx, statusKey(event.ProcessID), data, statusTTL).Err()
}

// LastEvent returns the most recent event stored for a job, or nil when the
// job is unknown.
func (s *RedisSink) LastEvent(ctx context.Context, processID string) (*models.ProgressEvent, error) {
	data, err := s.client.Get(ctx, statusKey(processID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job status: %w", err)
	}

	var event models.ProgressEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress event: %w", err)
	}
	return &event, nil
}

// Subscribe returns a channel of events for one job. The returned cancel
// function must be called to release the underlying subscription.
func (s *RedisSink) Subscribe(ctx context.Context, processID string) (<-chan models.ProgressEvent, func() error) {
	sub := s.client.Subscribe(ctx, channelKey(processID))
	events := make(chan models.ProgressEvent)

	go func() {
		defer close(events)
		for msg := range sub.Channel() {
			var event models.ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, sub.Close
}
