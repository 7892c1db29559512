package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/yanqian/faq-assistant/internal/domain/catalog"
)

const fallbackEncoding = "cl100k_base"

// TiktokenCounter counts tokens with the BPE encoding of an OpenAI model.
// The encoding is loaded on first use since it may need a download.
type TiktokenCounter struct {
	model string

	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

// NewTiktokenCounter constructs a counter for model.
func NewTiktokenCounter(model string) *TiktokenCounter {
	return &TiktokenCounter{model: model}
}

// Count implements catalog.TokenCounter.
func (c *TiktokenCounter) Count(text string) (int, error) {
	c.once.Do(func() {
		c.enc, c.err = tiktoken.EncodingForModel(c.model)
		if c.err != nil {
			c.enc, c.err = tiktoken.GetEncoding(fallbackEncoding)
		}
	})
	if c.err != nil {
		return 0, fmt.Errorf("load encoding for %s: %w", c.model, c.err)
	}
	return len(c.enc.Encode(text, nil, nil)), nil
}

var _ catalog.TokenCounter = (*TiktokenCounter)(nil)
