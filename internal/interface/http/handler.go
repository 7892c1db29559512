package http

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/faq-assistant/internal/domain/faq"
)

const serviceName = "faq-assistant"

// HealthChecker reports whether the corpus storage is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handler wires the HTTP transport to the answer pipeline.
type Handler struct {
	faqSvc faq.Service
	health HealthChecker
	logger *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(faqSvc faq.Service, health HealthChecker, logger *slog.Logger) *Handler {
	return &Handler{
		faqSvc: faqSvc,
		health: health,
		logger: logger.With("component", "http.handler"),
	}
}

// AskRequest is the body of POST /ask-question.
type AskRequest struct {
	UserQuestion string `json:"user_question" binding:"required,min=1,max=1000"`
	Collection   string `json:"collection" binding:"max=100"`
}

// AskResponse mirrors faq.AnswerEnvelope with the score rounded for display.
type AskResponse struct {
	Source          faq.Source `json:"source"`
	MatchedQuestion string     `json:"matched_question"`
	Answer          string     `json:"answer"`
	SimilarityScore *float64   `json:"similarity_score"`
}

// Root describes the service.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": serviceName,
		"status":  "ok",
		"endpoints": []string{
			"GET /health",
			"GET /metrics",
			"POST /ask-question",
		},
	})
}

// Health pings the corpus storage.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if h.health != nil {
		if err := h.health.Ping(ctx); err != nil {
			h.logger.Error("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "connected"})
}

// AskQuestion answers a user question.
func (h *Handler) AskQuestion(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	// no collection searches every partition
	envelope, err := h.faqSvc.Answer(c.Request.Context(), faq.Request{
		Question:  req.UserQuestion,
		Partition: strings.TrimSpace(req.Collection),
	})
	if err != nil {
		abortWithError(c, fromDomainError(err))
		return
	}

	c.JSON(http.StatusOK, toAskResponse(envelope))
}

func toAskResponse(env faq.AnswerEnvelope) AskResponse {
	resp := AskResponse{
		Source:          env.Source,
		MatchedQuestion: env.MatchedQuestion,
		Answer:          env.Answer,
	}
	if env.SimilarityScore != nil {
		rounded := roundScore(*env.SimilarityScore)
		resp.SimilarityScore = &rounded
	}
	return resp
}

func roundScore(score float64) float64 {
	return math.Round(score*10000) / 10000
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
