// Package tokenizer measures text length in model tokens. Chunk budgets and
// conversation memory caps are all expressed in these units.
package tokenizer

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding matches the tokenization the chat and embedding models use.
const DefaultEncoding = "cl100k_base"

// Counter measures text length in model-relevant token units. Count must be
// deterministic and side-effect-free.
type Counter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with a tiktoken BPE encoding. The encoder is
// loaded once on first use.
type TiktokenCounter struct {
	encoding string

	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

// NewTiktokenCounter returns a counter for the given encoding name, or the
// default cl100k_base encoding when empty.
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &TiktokenCounter{encoding: encoding}
}

func (c *TiktokenCounter) init() {
	c.enc, c.err = tiktoken.GetEncoding(c.encoding)
}

// Count returns the number of tokens in text. If the encoding cannot be
// loaded it falls back to the approximate counter so chunking still has a
// working budget.
func (c *TiktokenCounter) Count(text string) int {
	c.once.Do(c.init)
	if c.err != nil {
		return approxCount(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Ready reports whether the BPE encoding loaded successfully.
func (c *TiktokenCounter) Ready() error {
	c.once.Do(c.init)
	if c.err != nil {
		return fmt.Errorf("tokenizer encoding %q unavailable: %w", c.encoding, c.err)
	}
	return nil
}

// ApproxCounter is a deterministic heuristic counter used in tests and as a
// degraded fallback. It counts word and punctuation boundaries, which tracks
// BPE counts closely enough for budgeting.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int {
	return approxCount(text)
}

func approxCount(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			inWord = false
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			count++
			inWord = false
		default:
			if !inWord {
				count++
				inWord = true
			}
		}
	}
	if count == 0 && strings.TrimSpace(text) != "" {
		count = 1
	}
	return count
}
