// Package chunker splits ingested documents into token-bounded, overlapping
// chunks for embedding.
package chunker

import (
	"strings"

	"github.com/dirchat/dirchat/internal/domain"
	"github.com/dirchat/dirchat/internal/tokenizer"
)

const (
	// DefaultMaxTokens is the default token budget per chunk.
	DefaultMaxTokens = 900
	// DefaultOverlapTokens is the default overlap carried between
	// consecutive chunks of the same source.
	DefaultOverlapTokens = 100
)

// separators are tried largest-boundary first; text that still exceeds the
// budget after the last separator is cut at rune boundaries.
var separators = []string{"\n\n", "\n", ". ", " "}

// Splitter cuts documents into chunks no larger than MaxTokens as measured
// by the counter, preferring paragraph, line, sentence, and word boundaries
// over hard cuts.
type Splitter struct {
	counter       tokenizer.Counter
	maxTokens     int
	overlapTokens int
}

// NewSplitter creates a splitter. Non-positive maxTokens or negative overlap
// fall back to the defaults; overlap is clamped below the chunk budget.
func NewSplitter(counter tokenizer.Counter, maxTokens, overlapTokens int) *Splitter {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if overlapTokens < 0 {
		overlapTokens = DefaultOverlapTokens
	}
	if overlapTokens >= maxTokens {
		overlapTokens = maxTokens / 4
	}
	return &Splitter{
		counter:       counter,
		maxTokens:     maxTokens,
		overlapTokens: overlapTokens,
	}
}

// Split chunks each document independently, preserving document order and
// provenance. A document already within the budget becomes exactly one chunk
// equal to itself.
func (s *Splitter) Split(docs []domain.Document) []domain.Chunk {
	var chunks []domain.Chunk
	for _, doc := range docs {
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			continue
		}
		for _, piece := range s.splitText(content, separators) {
			chunks = append(chunks, domain.Chunk{
				Content: piece,
				Source:  doc.Source,
				Page:    doc.Page,
			})
		}
	}
	return chunks
}

func (s *Splitter) splitText(text string, seps []string) []string {
	if s.counter.Count(text) <= s.maxTokens {
		return []string{text}
	}
	if len(seps) == 0 {
		return s.hardCut(text)
	}

	sep := seps[0]
	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return s.splitText(text, seps[1:])
	}

	units := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if s.counter.Count(part) > s.maxTokens {
			units = append(units, s.splitText(part, seps[1:])...)
		} else {
			units = append(units, part)
		}
	}

	return s.merge(units, sep)
}

// merge greedily packs units into chunks up to the token budget, measuring
// the joined text so separator tokens count against the budget too. When a
// chunk closes, the trailing units worth up to overlapTokens seed the next
// chunk so context survives the cut point.
func (s *Splitter) merge(units []string, sep string) []string {
	var (
		chunks []string
		window []string
		joined string
	)

	for _, unit := range units {
		candidate := unit
		if len(window) > 0 {
			candidate = joined + sep + unit
		}

		if len(window) > 0 && s.counter.Count(candidate) > s.maxTokens {
			chunks = append(chunks, joined)

			window, joined = s.overlapTail(window, sep)
			if len(window) > 0 {
				candidate = joined + sep + unit
				if s.counter.Count(candidate) > s.maxTokens {
					window, joined = nil, ""
					candidate = unit
				}
			} else {
				candidate = unit
			}
		}

		window = append(window, unit)
		joined = candidate
	}
	if len(window) > 0 {
		chunks = append(chunks, joined)
	}

	return chunks
}

// overlapTail returns the longest run of trailing units that fits within the
// overlap budget.
func (s *Splitter) overlapTail(window []string, sep string) ([]string, string) {
	var tail []string
	tokens := 0
	for i := len(window) - 1; i >= 0; i-- {
		n := s.counter.Count(window[i])
		if tokens+n > s.overlapTokens {
			break
		}
		tail = append([]string{window[i]}, tail...)
		tokens += n
	}
	return tail, strings.Join(tail, sep)
}

// hardCut slices text at rune boundaries, shrinking the window until each
// slice fits the budget. Last resort for text with no usable separators.
func (s *Splitter) hardCut(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	for start < len(runes) {
		end := start + s.maxTokens
		if end > len(runes) {
			end = len(runes)
		}
		for end > start+1 && s.counter.Count(string(runes[start:end])) > s.maxTokens {
			step := (end - start) / 4
			if step == 0 {
				step = 1
			}
			end -= step
			if end <= start {
				end = start + 1
			}
		}
		out = append(out, string(runes[start:end]))
		start = end
	}
	return out
}
