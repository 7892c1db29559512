package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/faq-assistant/internal/domain/faq"
	"github.com/yanqian/faq-assistant/internal/infra/config"
	apperrors "github.com/yanqian/faq-assistant/pkg/errors"
	"github.com/yanqian/faq-assistant/pkg/metrics"
)

func TestRouter_AskQuestionLocalHit(t *testing.T) {
	score := 0.912345678
	svc := &stubFAQ{
		answerFn: func(ctx context.Context, req faq.Request) (faq.AnswerEnvelope, error) {
			require.Equal(t, "How do I reset my password?", req.Question)
			require.Empty(t, req.Partition)
			return faq.AnswerEnvelope{
				Source:          faq.SourceLocal,
				MatchedQuestion: "How can I reset my password?",
				Answer:          "Use the reset link.",
				SimilarityScore: &score,
			}, nil
		},
	}

	rec := performRequest(newRouterUnderTest(t, svc, nil), http.MethodPost, "/ask-question", `{"user_question":"How do I reset my password?"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, faq.SourceLocal, got.Source)
	require.Equal(t, "How can I reset my password?", got.MatchedQuestion)
	require.NotNil(t, got.SimilarityScore)
	require.Equal(t, 0.9123, *got.SimilarityScore)
}

func TestRouter_AskQuestionOffTopicHasNullScore(t *testing.T) {
	svc := &stubFAQ{
		answerFn: func(ctx context.Context, req faq.Request) (faq.AnswerEnvelope, error) {
			require.Equal(t, "billing", req.Partition)
			return faq.AnswerEnvelope{
				Source:          faq.SourceOffTopic,
				MatchedQuestion: faq.NoMatchedQuestion,
				Answer:          "not for me",
			}, nil
		},
	}

	rec := performRequest(newRouterUnderTest(t, svc, nil), http.MethodPost, "/ask-question", `{"user_question":"best pizza?","collection":"billing"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "off_topic", body["source"])
	require.Equal(t, "N/A", body["matched_question"])
	require.Contains(t, body, "similarity_score")
	require.Nil(t, body["similarity_score"])
}

func TestRouter_AskQuestionValidation(t *testing.T) {
	svc := &stubFAQ{}
	server := newRouterUnderTest(t, svc, nil)

	cases := map[string]string{
		"missing question": `{}`,
		"empty question":   `{"user_question":""}`,
		"too long":         `{"user_question":"` + strings.Repeat("a", 1001) + `"}`,
		"wrong type":       `{"user_question":42}`,
		"long collection":  `{"user_question":"q","collection":"` + strings.Repeat("c", 101) + `"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := performRequest(server, http.MethodPost, "/ask-question", body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			errBody := decodeErrorBody(t, rec.Body.Bytes())
			require.Equal(t, "invalid_request", errBody["error"]["code"])
			require.NotEmpty(t, errBody["error"]["message"])
		})
	}
	require.Zero(t, svc.calls)
}

func TestRouter_AskQuestionErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid input", apperrors.Wrap(apperrors.CodeInvalidInput, "question cannot be empty", nil), http.StatusBadRequest, "invalid_request"},
		{"embedding", apperrors.Wrap(apperrors.CodeEmbedding, "embedding request failed", errors.New("503")), http.StatusBadGateway, "embedding_error"},
		{"generation", apperrors.Wrap(apperrors.CodeGeneration, "answer generation failed", errors.New("timeout")), http.StatusBadGateway, "generation_error"},
		{"corpus", apperrors.Wrap(apperrors.CodeCorpus, "corpus read failed", errors.New("conn refused")), http.StatusServiceUnavailable, "corpus_error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubFAQ{
				answerFn: func(context.Context, faq.Request) (faq.AnswerEnvelope, error) {
					return faq.AnswerEnvelope{}, tc.err
				},
			}
			rec := performRequest(newRouterUnderTest(t, svc, nil), http.MethodPost, "/ask-question", `{"user_question":"q"}`, nil)
			require.Equal(t, tc.status, rec.Code)
			errBody := decodeErrorBody(t, rec.Body.Bytes())
			require.Equal(t, tc.code, errBody["error"]["code"])
		})
	}
}

func TestRouter_APIKey(t *testing.T) {
	svc := &stubFAQ{}
	server := newRouterUnderTest(t, svc, func(cfg *config.Config) {
		cfg.HTTP.APIKey = "s3cret"
	})
	body := `{"user_question":"q"}`

	rec := performRequest(server, http.MethodPost, "/ask-question", body, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = performRequest(server, http.MethodPost, "/ask-question", body, map[string]string{"Authorization": "wrong"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = performRequest(server, http.MethodPost, "/ask-question", body, map[string]string{"Authorization": "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = performRequest(server, http.MethodPost, "/ask-question", body, map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, svc.calls)
}

func TestRouter_RateLimit(t *testing.T) {
	server := newRouterUnderTest(t, &stubFAQ{}, func(cfg *config.Config) {
		cfg.HTTP.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, Burst: 2}
	})
	for i := 0; i < 2; i++ {
		rec := performRequest(server, http.MethodPost, "/ask-question", `{"user_question":"q"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := performRequest(server, http.MethodPost, "/ask-question", `{"user_question":"q"}`, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRouter_Health(t *testing.T) {
	health := &stubHealth{}
	server := newRouterUnderTestWithHealth(t, &stubFAQ{}, health)

	rec := performRequest(server, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "healthy")

	health.err = errors.New("connection refused")
	rec = performRequest(server, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "unhealthy")
}

func TestRouter_RootAndCORS(t *testing.T) {
	server := newRouterUnderTest(t, &stubFAQ{}, func(cfg *config.Config) {
		cfg.HTTP.AllowedOrigins = []string{"https://app.example"}
	})

	rec := performRequest(server, http.MethodGet, "/", "", map[string]string{"Origin": "https://app.example"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Body.String(), serviceName)

	rec = performRequest(server, http.MethodOptions, "/ask-question", "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(registry)
	cfg := testConfig()
	handler := NewHandler(&stubFAQ{}, &stubHealth{}, newTestLogger())
	server := NewRouter(cfg, handler, recorder, registry, newTestLogger())

	rec := performRequest(server, http.MethodPost, "/ask-question", `{"user_question":"q"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = performRequest(server, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `faq_http_requests_total{method="POST",route="/ask-question",status="200"} 1`)
}

func TestRoundScore(t *testing.T) {
	require.Equal(t, 0.8500, roundScore(0.85))
	require.Equal(t, 0.1235, roundScore(0.123456))
	require.Equal(t, 1.0, roundScore(0.99999))
}

func performRequest(server *http.Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	return rec
}

func testConfig() *config.Config {
	return &config.Config{
		HTTP: config.HTTPConfig{
			Address:      ":0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
		FAQ: config.FAQConfig{
			DefaultCollection: "default",
		},
	}
}

func newRouterUnderTest(t *testing.T, svc faq.Service, mutate func(*config.Config)) *http.Server {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	handler := NewHandler(svc, &stubHealth{}, newTestLogger())
	return NewRouter(cfg, handler, nil, nil, newTestLogger())
}

func newRouterUnderTestWithHealth(t *testing.T, svc faq.Service, health HealthChecker) *http.Server {
	t.Helper()
	cfg := testConfig()
	handler := NewHandler(svc, health, newTestLogger())
	return NewRouter(cfg, handler, nil, nil, newTestLogger())
}

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, nil)
	return slog.New(handler)
}

type stubFAQ struct {
	answerFn func(ctx context.Context, req faq.Request) (faq.AnswerEnvelope, error)
	calls    int
}

func (s *stubFAQ) Answer(ctx context.Context, req faq.Request) (faq.AnswerEnvelope, error) {
	s.calls++
	if s.answerFn != nil {
		return s.answerFn(ctx, req)
	}
	return faq.AnswerEnvelope{
		Source:          faq.SourceGenerated,
		MatchedQuestion: faq.NoMatchedQuestion,
		Answer:          "generated",
	}, nil
}

type stubHealth struct {
	err error
}

func (s *stubHealth) Ping(context.Context) error {
	return s.err
}

func decodeErrorBody(t *testing.T, raw []byte) map[string]map[string]string {
	t.Helper()
	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}
