// Package progress delivers pipeline progress events to interested
// consumers and keeps the latest state queryable.
package progress

import (
	"context"

	"github.com/coursemedia/captionburn/pkg/models"
)

// Sink receives progress events for running jobs.
type Sink interface {
	Publish(ctx context.Context, event models.ProgressEvent) error
	Close() error
}

// NopSink discards all events. Useful for one-shot CLI runs where progress
// goes to the terminal instead.
type NopSink struct{}

func (NopSink) Publish(ctx context.Context, event models.ProgressEvent) error { return nil }
func (NopSink) Close() error                                                  { return nil }
