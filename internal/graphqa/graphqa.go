// Package graphqa answers natural-language questions against a Neo4j
// graph by generating a Cypher query, running it, and phrasing the rows
// back into prose.
package graphqa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/dirchat/dirchat/internal/domain"
	"github.com/dirchat/dirchat/internal/openai"
	"github.com/dirchat/dirchat/internal/service"
)

// Runner executes Cypher against the graph and exposes its schema.
type Runner interface {
	Run(ctx context.Context, cypher string) ([]map[string]any, error)
	Schema(ctx context.Context) (string, error)
}

// Result is one answered graph question.
type Result struct {
	Answer string
	Cypher string
}

// Service turns questions into Cypher, executes them, and phrases the
// results.
type Service struct {
	runner Runner
	llm    service.LLM
}

// NewService creates a graph question-answering service.
func NewService(runner Runner, llm service.LLM) *Service {
	return &Service{runner: runner, llm: llm}
}

const cypherPrompt = `Task: Generate Cypher statement to query a graph database.
Instructions: Use only the provided relationship types and properties in the schema. Do not use any other relationship types or properties that are not provided.
Schema:
%s
Note: Do not include any explanations or apologies in your responses. Do not respond to any questions that might ask anything else than for you to construct a Cypher statement. Do not include any text except the generated Cypher statement.
Examples: Here are a few examples of generated Cypher statements for particular questions:
# What is the address of the Incheon campus?
MATCH (campus:Campus {name: 'Incheon Campus'})-[:LOCATED_AT]->(address:Address)
RETURN address.name

The question is: %s`

const answerPrompt = `You are an assistant that forms clear, human-readable answers.
The information section contains the results of a database query; use it to answer the question. Do not mention the query or the database. If the information is empty, say you don't know.
Information:
%s

Question: %s`

// Ask answers a question against the graph.
func (s *Service) Ask(ctx context.Context, question string) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrEmptyQuestion
	}

	schema, err := s.runner.Schema(ctx)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to read graph schema", err)
	}

	cypher, err := s.llm.Generate(ctx, []openai.Message{
		{Role: openai.RoleSystem, Content: fmt.Sprintf(cypherPrompt, schema, question)},
	})
	if err != nil {
		return nil, wrapGeneration(err)
	}

	cypher = stripFences(cypher)
	if cypher == "" {
		return nil, domain.NewGenerationFailure(errors.New("model produced no query"))
	}
	log.Printf("graphqa: generated query: %s", cypher)

	rows, err := s.runner.Run(ctx, cypher)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "graph query failed", err)
	}

	info, err := json.Marshal(rows)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to encode query results", err)
	}

	answer, err := s.llm.Generate(ctx, []openai.Message{
		{Role: openai.RoleSystem, Content: fmt.Sprintf(answerPrompt, string(info), question)},
	})
	if err != nil {
		return nil, wrapGeneration(err)
	}

	return &Result{Answer: strings.TrimSpace(answer), Cypher: cypher}, nil
}

// stripFences removes markdown code fences the model sometimes wraps
// queries in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```cypher")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func wrapGeneration(err error) error {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return err
	}
	return domain.NewGenerationFailure(err)
}
