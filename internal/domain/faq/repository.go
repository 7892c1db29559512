package faq

import "context"

// Corpus is the read path into stored entries.
type Corpus interface {
	// Entries returns entries that have an embedding, in insertion order.
	// An empty partition means every partition.
	Entries(ctx context.Context, partition string) ([]Entry, error)
}

// NearestSearcher is implemented by corpora that can rank entries themselves.
// The returned MatchResult follows the same rules as a full scan.
type NearestSearcher interface {
	Nearest(ctx context.Context, vector []float32, partition string) (MatchResult, error)
}

// Embedder turns text into a vector of the configured dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CompletionRequest is a single system+user prompt sent to a chat model.
type CompletionRequest struct {
	Model       string
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Completer produces the text completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
