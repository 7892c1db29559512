package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	apperrors "github.com/yanqian/faq-assistant/pkg/errors"
)

// HandleJob executes a queued embedding job. Per-item failures in a batch
// are logged and skipped.
func (s *Service) HandleJob(ctx context.Context, name string, payload map[string]any) error {
	switch name {
	case JobGenerateEmbedding:
		target, err := targetFromPayload(payload, "faq_id")
		if err != nil {
			return err
		}
		if err := s.embedAndStore(ctx, target.ID, target.Question); err != nil {
			s.logger.Warn("embedding job failed", "job_id", payload["job_id"], "faq_id", target.ID, "error", err)
			return err
		}
		s.logger.Info("embedding job done", "job_id", payload["job_id"], "faq_id", target.ID)
		return nil
	case JobGenerateEmbeddingsBatch:
		raw, _ := payload["items"].([]any)
		var done, failed int
		for i, item := range raw {
			fields, ok := item.(map[string]any)
			if !ok {
				s.logger.Warn("batch item malformed", "index", i)
				failed++
				continue
			}
			target, err := targetFromPayload(fields, "id")
			if err != nil {
				s.logger.Warn("batch item malformed", "index", i, "error", err)
				failed++
				continue
			}
			if err := s.embedAndStore(ctx, target.ID, target.Question); err != nil {
				s.logger.Warn("batch item failed", "faq_id", target.ID, "error", err)
				failed++
				continue
			}
			done++
		}
		s.logger.Info("embedding batch done", "job_id", payload["job_id"], "embedded", done, "failed", failed)
		return nil
	default:
		return apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("unknown job %q", name), nil)
	}
}

func targetFromPayload(payload map[string]any, idKey string) (embedTarget, error) {
	id, err := int64Field(payload[idKey])
	if err != nil {
		return embedTarget{}, apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("job field %s is invalid", idKey), err)
	}
	question, _ := payload["question"].(string)
	if question == "" {
		return embedTarget{}, apperrors.Wrap(apperrors.CodeInvalidInput, "job field question is empty", nil)
	}
	return embedTarget{ID: id, Question: question}, nil
}

// int64Field accepts the shapes an id takes in memory and after a JSON round trip.
func int64Field(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
