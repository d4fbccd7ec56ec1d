// Package openai wraps the OpenAI API behind the narrow embedding and chat
// interfaces the pipeline depends on.
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/dirchat/dirchat/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the model used for chunk and query embeddings.
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultChatModel is the model used for answer generation.
	DefaultChatModel = openai.GPT3Dot5Turbo
)

// ErrEmptyInput is returned when there is nothing to embed or generate from.
var ErrEmptyInput = errors.New("input cannot be empty")

// API is the slice of the OpenAI client surface we use; satisfied by
// *openai.Client and by test doubles.
type API interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds client configuration.
type Config struct {
	APIKey         string
	EmbeddingModel openai.EmbeddingModel
	ChatModel      string
	Temperature    float32
}

// RoleSystem marks prompt-preamble messages; it never appears in a
// session transcript.
const RoleSystem domain.Role = "system"

// Message is one chat message forwarded to the model.
type Message struct {
	Role    domain.Role
	Content string
}

// Client wraps the OpenAI API client.
type Client struct {
	api API
	cfg Config
}

// NewClient creates a client with default models.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	return &Client{
		api: openai.NewClient(cfg.APIKey),
		cfg: cfg,
	}
}

// NewClientWithAPI creates a client over a custom API implementation (for testing).
func NewClientWithAPI(api API, cfg Config) *Client {
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	return &Client{api: api, cfg: cfg}
}

// EmbedTexts embeds a batch of texts, returning one vector per input in
// input order.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: c.cfg.EmbeddingModel,
	})
	if err != nil {
		return nil, mapAPIError(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: want %d, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// Generate runs a chat completion over the given messages and returns the
// assistant's reply text.
func (c *Client) Generate(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", ErrEmptyInput
	}

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.ChatModel,
		Temperature: requestTemperature(c.cfg.Temperature),
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    chatRole(m.Role),
			Content: m.Content,
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", mapAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// requestTemperature maps a configured temperature onto the wire value.
// The request field carries omitempty, so a literal zero would be dropped
// and the provider would fall back to its own default; the library's
// convention for an explicit zero is the smallest nonzero float.
func requestTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func chatRole(r domain.Role) string {
	switch r {
	case domain.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case domain.RoleUser:
		return openai.ChatMessageRoleUser
	default:
		return openai.ChatMessageRoleSystem
	}
}

// mapAPIError classifies upstream failures so callers can distinguish
// authentication, rate-limit, and malformed-request errors.
func mapAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.NewDomainErrorWithCause(domain.ErrCodeMissingCredential, "authentication failed", err)
		case http.StatusTooManyRequests:
			return domain.NewDomainErrorWithCause(domain.ErrCodeRateLimited, "rate limited by model provider", err)
		case http.StatusBadRequest:
			return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "malformed model request", err)
		}
	}
	return err
}
