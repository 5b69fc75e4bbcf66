package prompt

import (
	"fmt"
	"strings"

	"github.com/kirillkom/it-support-rag/internal/core/domain"
)

const (
	DefaultTemperature     = 0.1
	DefaultMaxOutputTokens = 512
)

// NoGroundingAnswer is returned without calling a model when retrieval found nothing.
const NoGroundingAnswer = "I could not find anything in the IT support knowledge base related to your question. " +
	"Please contact IT Support so an engineer can help you directly."

const SystemPrompt = "You are an IT Support assistant. " +
	"Use the provided context as the main source of truth to answer the question. " +
	"The user question may contain typos or be more general than the examples in the context. " +
	"If the context is related to the question, use it and generalize from it to provide " +
	"the best possible practical answer. " +
	"Only if the context is clearly unrelated to the question, say that you don't know " +
	"and suggest contacting IT Support."

func BuildContext(chunks []domain.ContextChunk) string {
	parts := make([]string, 0, len(chunks))
	for idx, chunk := range chunks {
		parts = append(parts, fmt.Sprintf("[Doc %d | score=%.3f]\n%s", idx+1, chunk.Score, chunk.Text))
	}
	return strings.Join(parts, "\n\n")
}

// BuildUserMessage is the user turn sent next to SystemPrompt.
func BuildUserMessage(question string, chunks []domain.ContextChunk) string {
	return fmt.Sprintf("CONTEXT:\n%s\n\nQUESTION:\n%s\n\n"+
		"Answer in a clear, concise way. "+
		"If there are several possible solutions, list them as steps.", BuildContext(chunks), question)
}

// Normalize fills unset options with defaults. A zero temperature is kept;
// only a negative one counts as unset.
func Normalize(opts domain.GenerationOptions) domain.GenerationOptions {
	if opts.Temperature < 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = DefaultMaxOutputTokens
	}
	return opts
}
