package queue

import (
	"context"
	"encoding/json"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/coursemedia/captionburn/pkg/models"
)

type fakeAcknowledger struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error { f.acked = true; return nil }
func (f *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}
func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error { return nil }

func TestDispatchPassesConsumeContext(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "consume")

	body, err := json.Marshal(&models.CaptionJob{ID: "job-1"})
	if err != nil {
		t.Fatal(err)
	}
	ack := &fakeAcknowledger{}
	msg := amqp.Delivery{Acknowledger: ack, Body: body}

	var gotCtx context.Context
	var gotJob *models.CaptionJob
	q := &Queue{}
	q.dispatch(ctx, msg, func(ctx context.Context, job *models.CaptionJob) error {
		gotCtx = ctx
		gotJob = job
		return nil
	})

	if gotCtx == nil || gotCtx.Value(ctxKey{}) != "consume" {
		t.Error("handler should receive the consume context")
	}
	if gotJob == nil || gotJob.ID != "job-1" {
		t.Errorf("handler got job %+v", gotJob)
	}
	if !ack.acked {
		t.Error("successful jobs must be acked")
	}
	if ack.nacked {
		t.Error("successful jobs must not be nacked")
	}
}

func TestDispatchNacksMalformedJobs(t *testing.T) {
	ack := &fakeAcknowledger{}
	msg := amqp.Delivery{Acknowledger: ack, Body: []byte("not json")}

	q := &Queue{}
	q.dispatch(context.Background(), msg, func(ctx context.Context, job *models.CaptionJob) error {
		t.Error("handler should not run for malformed payloads")
		return nil
	})

	if !ack.nacked || ack.requeue {
		t.Error("malformed payloads must be nacked without requeue")
	}
	if ack.acked {
		t.Error("malformed payloads must not be acked")
	}
}

func TestRetryCountFromHeaders(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"missing", amqp.Table{}, 0},
		{"int", amqp.Table{"x-retry-count": 2}, 2},
		{"int32", amqp.Table{"x-retry-count": int32(3)}, 3},
		{"int64", amqp.Table{"x-retry-count": int64(4)}, 4},
		{"wrong type", amqp.Table{"x-retry-count": "5"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryCountFromHeaders(tt.headers); got != tt.want {
				t.Errorf("retryCountFromHeaders() = %d, want %d", got, tt.want)
			}
		})
	}
}
