package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/faq-assistant/internal/domain/catalog"
)

const (
	defaultQueueKey = "faq:jobs"

	minPopBackoff = 100 * time.Millisecond
	maxPopBackoff = 5 * time.Second
)

type jobEnvelope struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload"`
}

// ValkeyQueue persists jobs in a Valkey list. Consume drains it.
type ValkeyQueue struct {
	client      valkey.Client
	queueKey    string
	logger      *slog.Logger
	pollTimeout time.Duration

	// pop returns the next raw job, or "" when the poll timed out.
	pop   func(ctx context.Context) (string, error)
	sleep func(ctx context.Context, d time.Duration) error
}

// NewValkeyQueue constructs a Valkey-backed queue.
func NewValkeyQueue(client valkey.Client, queueKey string, logger *slog.Logger) *ValkeyQueue {
	if queueKey == "" {
		queueKey = defaultQueueKey
	}
	q := &ValkeyQueue{
		client:      client,
		queueKey:    queueKey,
		logger:      logger.With("component", "queue.valkey"),
		pollTimeout: 5 * time.Second,
		sleep:       sleepContext,
	}
	q.pop = q.brpop
	return q
}

// Enqueue pushes a job onto the queue.
func (q *ValkeyQueue) Enqueue(ctx context.Context, name string, payload map[string]any) error {
	encoded, err := json.Marshal(jobEnvelope{Name: name, Payload: payload})
	if err != nil {
		return err
	}
	cmd := q.client.B().Lpush().Key(q.queueKey).Element(string(encoded)).Build()
	return q.client.Do(ctx, cmd).Error()
}

// Consume pops jobs and runs handler until ctx is cancelled. Pop failures
// back off exponentially up to maxPopBackoff.
func (q *ValkeyQueue) Consume(ctx context.Context, handler Handler) error {
	q.logger.Info("worker started", "queue", q.queueKey)
	backoff := time.Duration(0)
	for {
		if err := ctx.Err(); err != nil {
			q.logger.Info("worker stopped", "queue", q.queueKey)
			return nil
		}
		raw, err := q.pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			backoff = nextBackoff(backoff)
			q.logger.Warn("valkey queue pop failed", "error", err, "retry_in_ms", backoff.Milliseconds())
			_ = q.sleep(ctx, backoff)
			continue
		}
		backoff = 0
		if raw == "" {
			continue
		}
		job, err := decodeJob(raw)
		if err != nil {
			q.logger.Warn("valkey queue unmarshal failed", "error", err)
			continue
		}
		if err := handler(ctx, job.Name, job.Payload); err != nil {
			q.logger.Warn("job failed", "job", job.Name, "error", err)
		}
	}
}

func (q *ValkeyQueue) brpop(ctx context.Context) (string, error) {
	resp := q.client.Do(ctx, q.client.B().Brpop().Key(q.queueKey).Timeout(q.pollTimeout.Seconds()).Build())
	values, err := resp.ToArray()
	if valkey.IsValkeyNil(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(values) < 2 {
		return "", nil
	}
	return values[1].ToString()
}

func nextBackoff(current time.Duration) time.Duration {
	if current <= 0 {
		return minPopBackoff
	}
	if next := current * 2; next < maxPopBackoff {
		return next
	}
	return maxPopBackoff
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func decodeJob(raw string) (jobEnvelope, error) {
	var job jobEnvelope
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return jobEnvelope{}, err
	}
	if job.Name == "" {
		return jobEnvelope{}, errors.New("job name is empty")
	}
	return job, nil
}

var _ catalog.JobQueue = (*ValkeyQueue)(nil)
