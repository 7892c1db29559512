package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestImmediateQueueRunsHandler(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	q := NewImmediateQueue(func(_ context.Context, name string, payload map[string]any) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, name+":"+payload["question"].(string))
		return nil
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Enqueue(ctx, "generate_embedding", map[string]any{"question": "q1"}))
	cancel()
	require.NoError(t, q.Enqueue(ctx, "generate_embedding", map[string]any{"question": "q2"}))
	q.Wait()

	require.ElementsMatch(t, []string{"generate_embedding:q1", "generate_embedding:q2"}, seen)
}

func TestImmediateQueueSwallowsHandlerErrors(t *testing.T) {
	q := NewImmediateQueue(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, q.Enqueue(context.Background(), "noop", nil))

	q.SetHandler(func(context.Context, string, map[string]any) error {
		return errors.New("boom")
	})
	require.NoError(t, q.Enqueue(context.Background(), "generate_embedding", nil))
	q.Wait()
}

func TestDecodeJob(t *testing.T) {
	job, err := decodeJob(`{"name":"generate_embedding","payload":{"faq_id":7,"question":"q"}}`)
	require.NoError(t, err)
	require.Equal(t, "generate_embedding", job.Name)
	require.Equal(t, float64(7), job.Payload["faq_id"])

	_, err = decodeJob(`{"payload":{}}`)
	require.Error(t, err)

	_, err = decodeJob(`not json`)
	require.Error(t, err)
}

func TestValkeyConsumeBacksOffOnPopErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		pops   int
		waits  []time.Duration
		jobs   []string
		popErr = errors.New("connection refused")
	)
	q := &ValkeyQueue{
		queueKey: "faq:jobs",
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		pop: func(context.Context) (string, error) {
			pops++
			switch {
			case pops <= 3:
				return "", popErr
			case pops == 4:
				return `{"name":"generate_embedding","payload":{"faq_id":1}}`, nil
			case pops == 5:
				return "", popErr
			default:
				cancel()
				return "", context.Canceled
			}
		},
		sleep: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	}

	err := q.Consume(ctx, func(_ context.Context, name string, _ map[string]any) error {
		jobs = append(jobs, name)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"generate_embedding"}, jobs)
	require.Equal(t, []time.Duration{minPopBackoff, 2 * minPopBackoff, 4 * minPopBackoff, minPopBackoff}, waits)
}

func TestNextBackoffIsCapped(t *testing.T) {
	d := time.Duration(0)
	for i := 0; i < 20; i++ {
		d = nextBackoff(d)
	}
	require.Equal(t, maxPopBackoff, d)
	require.Equal(t, minPopBackoff, nextBackoff(0))
}
