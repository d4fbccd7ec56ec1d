package service

import (
	"sync"

	"github.com/dirchat/dirchat/internal/tokenizer"
)

// DefaultMemoryTokenBudget caps how much conversation history is replayed
// into the model prompt.
const DefaultMemoryTokenBudget = 2000

// Exchange is one completed question/answer pair.
type Exchange struct {
	Question string
	Answer   string
}

// Memory is the token-capped conversation history fed back into the model.
// When the budget is exceeded the oldest exchanges are evicted whole; it is
// distinct from the transcript, which keeps everything for display.
type Memory struct {
	mu      sync.Mutex
	counter tokenizer.Counter
	budget  int

	exchanges []Exchange
	tokens    []int
	total     int
}

// NewMemory creates a memory holding at most budget tokens of history.
func NewMemory(counter tokenizer.Counter, budget int) *Memory {
	if budget <= 0 {
		budget = DefaultMemoryTokenBudget
	}
	return &Memory{counter: counter, budget: budget}
}

// Append records a completed exchange, evicting the oldest exchanges until
// the history fits the token budget again. An exchange larger than the
// whole budget leaves the memory empty.
func (m *Memory) Append(question, answer string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cost := m.counter.Count(question) + m.counter.Count(answer)
	m.exchanges = append(m.exchanges, Exchange{Question: question, Answer: answer})
	m.tokens = append(m.tokens, cost)
	m.total += cost

	for m.total > m.budget && len(m.exchanges) > 0 {
		m.total -= m.tokens[0]
		m.exchanges = m.exchanges[1:]
		m.tokens = m.tokens[1:]
	}
}

// Exchanges returns a copy of the retained history, oldest first.
func (m *Memory) Exchanges() []Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Exchange, len(m.exchanges))
	copy(out, m.exchanges)
	return out
}

// Len returns the number of retained exchanges.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.exchanges)
}

// TokenCount returns the token cost of the retained history.
func (m *Memory) TokenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}
