package prompt

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// Budgeter truncates text to a token ceiling so prompts stay inside the
// model's context window regardless of contract size.
type Budgeter struct {
	codec tokenizer.Codec
}

// NewBudgeter creates a Budgeter on the cl100k_base encoding, a close
// enough proxy for the chat models the engine targets.
func NewBudgeter() (*Budgeter, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return &Budgeter{codec: codec}, nil
}

// Count returns the token count of text.
func (b *Budgeter) Count(text string) (int, error) {
	ids, _, err := b.codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("encode text: %w", err)
	}
	return len(ids), nil
}

// Truncate cuts text down to at most maxTokens tokens, preserving the
// head of the document. Contracts front-load parties and key terms, so
// the head is the most informative slice to keep.
func (b *Budgeter) Truncate(text string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		return "", nil
	}
	ids, _, err := b.codec.Encode(text)
	if err != nil {
		return "", fmt.Errorf("encode text: %w", err)
	}
	if len(ids) <= maxTokens {
		return text, nil
	}
	truncated, err := b.codec.Decode(ids[:maxTokens])
	if err != nil {
		return "", fmt.Errorf("decode truncated text: %w", err)
	}
	return truncated, nil
}
