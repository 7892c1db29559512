package chatgpt

import (
	"context"
	"errors"
	"log/slog"

	"github.com/yanqian/faq-assistant/internal/domain/faq"
)

// Completer adapts the chat completions client to faq.Completer.
type Completer struct {
	client *Client
	logger *slog.Logger
}

// NewCompleter wraps client.
func NewCompleter(client *Client, logger *slog.Logger) *Completer {
	return &Completer{client: client, logger: logger.With("component", "llm.chatgpt")}
}

// Complete sends a system and a user message and returns the first choice.
func (c *Completer) Complete(ctx context.Context, req faq.CompletionRequest) (string, error) {
	messages := make([]Message, 0, 2)
	if req.System != "" {
		messages = append(messages, Message{Role: "system", Content: req.System})
	}
	messages = append(messages, Message{Role: "user", Content: req.User})

	resp, err := c.client.CreateChatCompletion(ctx, ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chatgpt returned no choices")
	}
	c.logger.Debug("chat completion", "model", req.Model, "total_tokens", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

var _ faq.Completer = (*Completer)(nil)
