package service

import (
	"fmt"
	"strings"

	"github.com/dirchat/dirchat/internal/domain"
)

// PromptBuilder assembles the chat messages sent to the model: the
// retrieved chunks stuffed into a system preamble, the retained history,
// and the user's question.
type PromptBuilder struct{}

// BuildContext formats retrieved chunks into a numbered excerpt block,
// labelling each with its source file and page.
func (pb *PromptBuilder) BuildContext(chunks []domain.Chunk) string {
	var parts []string
	for i, chunk := range chunks {
		parts = append(parts, fmt.Sprintf("### Excerpt %d (%s):", i+1, formatOrigin(chunk.Source, chunk.Page)))
		parts = append(parts, chunk.Content)
		parts = append(parts, "")
	}
	return strings.Join(parts, "\n")
}

// BuildSystemPrompt wraps the excerpt block in answering instructions.
func (pb *PromptBuilder) BuildSystemPrompt(contextBlock string) string {
	var parts []string

	parts = append(parts, "You are an assistant answering questions about the user's uploaded documents.")
	parts = append(parts, "Use only the following excerpts to answer. If the excerpts do not contain the answer, say that you don't know; do not make up an answer.")
	parts = append(parts, "")
	parts = append(parts, "## Document Excerpts:")
	parts = append(parts, contextBlock)

	return strings.Join(parts, "\n")
}

// BuildCondensePrompt asks the model to rewrite a follow-up question as a
// standalone one, so retrieval works without the conversation in view.
func (pb *PromptBuilder) BuildCondensePrompt(history []Exchange, question string) string {
	var parts []string

	parts = append(parts, "Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question.")
	parts = append(parts, "")
	parts = append(parts, "## Conversation:")
	for _, ex := range history {
		parts = append(parts, "User: "+ex.Question)
		parts = append(parts, "Assistant: "+ex.Answer)
	}
	parts = append(parts, "")
	parts = append(parts, "## Follow Up Question:")
	parts = append(parts, question)
	parts = append(parts, "")
	parts = append(parts, "Standalone question:")

	return strings.Join(parts, "\n")
}

func formatOrigin(source string, page *int) string {
	if page != nil {
		return fmt.Sprintf("%s, page %d", source, *page)
	}
	return source
}
