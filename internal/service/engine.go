package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/dirchat/dirchat/internal/domain"
	"github.com/dirchat/dirchat/internal/index"
	"github.com/dirchat/dirchat/internal/openai"
)

const (
	// DefaultTopK is the number of chunks retrieved per question.
	DefaultTopK = 4
	// maxDisplaySources caps how many source references an answer carries.
	maxDisplaySources = 3
	// snippetRunes is the display length of a source snippet.
	snippetRunes = 200
)

// LLM generates a chat completion over prepared messages.
type LLM interface {
	Generate(ctx context.Context, messages []openai.Message) (string, error)
}

// Answer is the result of one question: the generated text and the sources
// it was grounded on.
type Answer struct {
	Text    string
	Sources []domain.SourceRef
}

// EngineConfig controls retrieval behavior.
type EngineConfig struct {
	TopK int
	Mode index.Mode
}

// DefaultEngineConfig returns the default retrieval configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TopK: DefaultTopK,
		Mode: index.ModeMMR,
	}
}

// Engine answers questions against an embedding index, replaying a
// token-capped history so follow-up questions resolve correctly. One
// question is in flight at a time; concurrent Ask calls fail fast.
type Engine struct {
	mu       sync.Mutex
	embedder index.Embedder
	searcher index.Searcher
	llm      LLM
	memory   *Memory
	prompt   PromptBuilder
	cfg      EngineConfig
}

// NewEngine creates an engine over a built index.
func NewEngine(embedder index.Embedder, searcher index.Searcher, llm LLM, memory *Memory, cfg EngineConfig) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Mode == "" {
		cfg.Mode = index.ModeMMR
	}
	return &Engine{
		embedder: embedder,
		searcher: searcher,
		llm:      llm,
		memory:   memory,
		cfg:      cfg,
	}
}

// Memory exposes the engine's conversation memory.
func (e *Engine) Memory() *Memory {
	return e.memory
}

// Ask retrieves the chunks most relevant to the question, generates an
// answer grounded on them, and records the exchange. A failed turn leaves
// the memory untouched.
func (e *Engine) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrEmptyQuestion
	}

	if !e.mu.TryLock() {
		return nil, domain.ErrAnswerInFlight
	}
	defer e.mu.Unlock()

	if e.searcher == nil || e.searcher.Len() == 0 {
		return nil, domain.ErrNoIndex
	}

	history := e.memory.Exchanges()

	retrievalQuery, err := e.retrievalQuery(ctx, history, question)
	if err != nil {
		return nil, err
	}

	vectors, err := e.embedder.EmbedTexts(ctx, []string{retrievalQuery})
	if err != nil {
		return nil, wrapUnlessDomain(err, domain.NewEmbeddingFailure)
	}

	chunks, err := e.searcher.Search(ctx, vectors[0], e.cfg.TopK, e.cfg.Mode)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "retrieval failed", err)
	}

	messages := e.buildMessages(history, chunks, question)
	text, err := e.llm.Generate(ctx, messages)
	if err != nil {
		return nil, wrapUnlessDomain(err, domain.NewGenerationFailure)
	}

	e.memory.Append(question, text)

	return &Answer{
		Text:    text,
		Sources: sourceRefs(chunks),
	}, nil
}

// retrievalQuery condenses a follow-up question into a standalone one when
// there is history to resolve against; the first question is used as-is.
func (e *Engine) retrievalQuery(ctx context.Context, history []Exchange, question string) (string, error) {
	if len(history) == 0 {
		return question, nil
	}

	condensed, err := e.llm.Generate(ctx, []openai.Message{
		{Role: openai.RoleSystem, Content: e.prompt.BuildCondensePrompt(history, question)},
	})
	if err != nil {
		return "", wrapUnlessDomain(err, domain.NewGenerationFailure)
	}

	condensed = strings.TrimSpace(condensed)
	if condensed == "" {
		return question, nil
	}
	return condensed, nil
}

func (e *Engine) buildMessages(history []Exchange, chunks []domain.Chunk, question string) []openai.Message {
	messages := make([]openai.Message, 0, 2*len(history)+2)
	messages = append(messages, openai.Message{
		Role:    openai.RoleSystem,
		Content: e.prompt.BuildSystemPrompt(e.prompt.BuildContext(chunks)),
	})
	for _, ex := range history {
		messages = append(messages,
			openai.Message{Role: domain.RoleUser, Content: ex.Question},
			openai.Message{Role: domain.RoleAssistant, Content: ex.Answer},
		)
	}
	return append(messages, openai.Message{Role: domain.RoleUser, Content: question})
}

// sourceRefs trims retrieved chunks down to display references.
func sourceRefs(chunks []domain.Chunk) []domain.SourceRef {
	n := len(chunks)
	if n > maxDisplaySources {
		n = maxDisplaySources
	}
	refs := make([]domain.SourceRef, 0, n)
	for _, c := range chunks[:n] {
		refs = append(refs, domain.SourceRef{
			Source:  c.Source,
			Page:    c.Page,
			Snippet: snippet(c.Content),
		})
	}
	return refs
}

func snippet(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= snippetRunes {
		return string(runes)
	}
	return string(runes[:snippetRunes]) + "…"
}

// wrapUnlessDomain wraps err with the given constructor unless the cause
// already carries a domain code, such as an authentication failure from
// the model provider.
func wrapUnlessDomain(err error, wrap func(error) *domain.DomainError) error {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return err
	}
	return wrap(err)
}
